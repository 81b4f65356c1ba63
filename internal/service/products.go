package service

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/maxxi02/thesis-project01-sub001/internal/model"
	"github.com/maxxi02/thesis-project01-sub001/internal/repository"
	"github.com/maxxi02/thesis-project01-sub001/internal/validation"
)

// ListCategories возвращает категории, имя которых содержит search.
func (s *Service) ListCategories(ctx context.Context, search string) ([]model.Category, error) {
	return s.repo.ListCategories(ctx, strings.TrimSpace(search))
}

// CreateCategory создаёт категорию с уникальным без учёта регистра именем.
func (s *Service) CreateCategory(ctx context.Context, by *model.User, name string) (*model.Category, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, validation.New("name is required")
	}

	exists, err := s.repo.CategoryExists(ctx, name)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, &model.ConflictError{Message: "Category already exists"}
	}

	c := &model.Category{
		ID:        uuid.New(),
		Name:      name,
		CreatedBy: model.ActorOf(by),
		CreatedAt: s.now().UTC(),
	}
	if err := s.repo.CreateCategory(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// ListProducts возвращает товары по фильтру, новые первыми.
func (s *Service) ListProducts(ctx context.Context, f model.ProductFilter) ([]model.Product, error) {
	f.Search = strings.TrimSpace(f.Search)
	if f.Status != "" && !f.Status.Valid() {
		return nil, validation.New("status must be one of: active, inactive, out-of-stock")
	}
	return s.repo.ListProducts(ctx, f)
}

// GetProduct возвращает товар по идентификатору.
func (s *Service) GetProduct(ctx context.Context, rawID string) (*model.Product, error) {
	id, err := parseID(rawID)
	if err != nil {
		return nil, err
	}
	return s.repo.GetProduct(ctx, id)
}

func normalizeSKU(sku string) string {
	return strings.ToUpper(strings.TrimSpace(sku))
}

// CreateProduct проверяет и сохраняет новый товар.
func (s *Service) CreateProduct(ctx context.Context, by *model.User, in model.ProductInput) (*model.Product, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.SKU = normalizeSKU(in.SKU)
	in.Category = strings.TrimSpace(in.Category)
	in.Description = strings.TrimSpace(in.Description)
	if err := validation.Struct(in); err != nil {
		return nil, err
	}

	exists, err := s.repo.SKUExists(ctx, in.SKU, uuid.Nil)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, repository.ErrSKUExists
	}

	now := s.now().UTC()
	actor := model.ActorOf(by)
	p := &model.Product{
		ID:          uuid.New(),
		Name:        in.Name,
		SKU:         in.SKU,
		Description: in.Description,
		Price:       *in.Price,
		Stock:       *in.Stock,
		Category:    in.Category,
		Status:      model.DeriveStatus(in.Status, *in.Stock),
		CreatedBy:   actor,
		UpdatedBy:   actor,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.CreateProduct(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// UpdateProduct применяет изменения к заблокированной строке товара и пересчитывает статус по остатку.
// Остаток, изменённый параллельной продажей, не затирается.
func (s *Service) UpdateProduct(ctx context.Context, by *model.User, rawID string, patch model.ProductPatch) (*model.Product, error) {
	id, err := parseID(rawID)
	if err != nil {
		return nil, err
	}

	if patch.SKU != nil {
		sku := normalizeSKU(*patch.SKU)
		patch.SKU = &sku
	}
	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		patch.Name = &name
	}
	if patch.Category != nil {
		category := strings.TrimSpace(*patch.Category)
		patch.Category = &category
	}
	if err := validation.Struct(patch); err != nil {
		return nil, err
	}

	actor := model.ActorOf(by)
	now := s.now().UTC()
	return s.repo.UpdateProduct(ctx, id, func(p *model.Product) error {
		if patch.SKU != nil && *patch.SKU != p.SKU {
			exists, err := s.repo.SKUExists(ctx, *patch.SKU, p.ID)
			if err != nil {
				return err
			}
			if exists {
				return repository.ErrSKUExists
			}
			p.SKU = *patch.SKU
		}
		if patch.Name != nil {
			p.Name = *patch.Name
		}
		if patch.Description != nil {
			p.Description = strings.TrimSpace(*patch.Description)
		}
		if patch.Price != nil {
			p.Price = *patch.Price
		}
		if patch.Stock != nil {
			p.Stock = *patch.Stock
		}
		if patch.Category != nil {
			p.Category = *patch.Category
		}
		if patch.Status != nil {
			p.Status = *patch.Status
		}

		p.Status = model.DeriveStatus(p.Status, p.Stock)
		p.UpdatedBy = actor
		p.UpdatedAt = now
		return nil
	})
}

// DeleteProduct удаляет товар.
func (s *Service) DeleteProduct(ctx context.Context, rawID string) error {
	id, err := parseID(rawID)
	if err != nil {
		return err
	}
	return s.repo.DeleteProduct(ctx, id)
}

// SellProduct оформляет прямую продажу: списывает остаток и пишет журнал продаж атомарно.
func (s *Service) SellProduct(ctx context.Context, by *model.User, rawID string, quantity int) (*model.Sale, error) {
	id, err := parseID(rawID)
	if err != nil {
		return nil, err
	}
	if quantity <= 0 {
		return nil, validation.New("quantity must be greater than 0")
	}
	return s.repo.SellProduct(ctx, id, quantity, model.ActorOf(by), s.now().UTC())
}

// ProductHistory возвращает журнал продаж товара.
func (s *Service) ProductHistory(ctx context.Context, rawID string) ([]model.ProductHistory, error) {
	id, err := parseID(rawID)
	if err != nil {
		return nil, err
	}
	if _, err := s.repo.GetProduct(ctx, id); err != nil {
		return nil, err
	}
	return s.repo.ListProductHistory(ctx, id)
}
