package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/maxxi02/thesis-project01-sub001/internal/model"
)

type categoryRequest struct {
	Name string `json:"name"`
}

// ListCategories возвращает категории с необязательным поиском по имени.
func (h *Handler) ListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.service.ListCategories(r.Context(), r.URL.Query().Get("search"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if categories == nil {
		categories = []model.Category{}
	}
	respondJSON(w, http.StatusOK, categories)
}

// CreateCategory создаёт категорию.
func (h *Handler) CreateCategory(w http.ResponseWriter, r *http.Request) {
	var req categoryRequest
	if err := decodeJSON(r, &req, false); err != nil {
		h.writeError(w, r, err)
		return
	}

	category, err := h.service.CreateCategory(r.Context(), currentUser(r), req.Name)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, category)
}

// ListProducts возвращает товары по фильтрам search, category и status.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	products, err := h.service.ListProducts(r.Context(), model.ProductFilter{
		Search:   q.Get("search"),
		Category: q.Get("category"),
		Status:   model.ProductStatus(q.Get("status")),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if products == nil {
		products = []model.Product{}
	}
	respondJSON(w, http.StatusOK, products)
}

// GetProduct возвращает товар по идентификатору.
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	product, err := h.service.GetProduct(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, product)
}

// CreateProduct создаёт товар.
func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var in model.ProductInput
	if err := decodeJSON(r, &in, false); err != nil {
		h.writeError(w, r, err)
		return
	}

	product, err := h.service.CreateProduct(r.Context(), currentUser(r), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, product)
}

// UpdateProduct частично изменяет товар.
func (h *Handler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	var patch model.ProductPatch
	if err := decodeJSON(r, &patch, false); err != nil {
		h.writeError(w, r, err)
		return
	}

	product, err := h.service.UpdateProduct(r.Context(), currentUser(r), chi.URLParam(r, "id"), patch)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, product)
}

// DeleteProduct удаляет товар.
func (h *Handler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteProduct(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "Product deleted"})
}

type sellRequest struct {
	Quantity int `json:"quantity"`
}

// SellProduct оформляет прямую продажу товара.
func (h *Handler) SellProduct(w http.ResponseWriter, r *http.Request) {
	var req sellRequest
	if err := decodeJSON(r, &req, false); err != nil {
		h.writeError(w, r, err)
		return
	}

	sale, err := h.service.SellProduct(r.Context(), currentUser(r), chi.URLParam(r, "id"), req.Quantity)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, sale)
}

// ProductHistory возвращает журнал продаж товара.
func (h *Handler) ProductHistory(w http.ResponseWriter, r *http.Request) {
	history, err := h.service.ProductHistory(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if history == nil {
		history = []model.ProductHistory{}
	}
	respondJSON(w, http.StatusOK, history)
}
