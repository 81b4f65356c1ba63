package repository

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maxxi02/thesis-project01-sub001/internal/model"
)

func newTestRepository(t *testing.T) *PostgresRepository {
	t.Helper()

	dsn := os.Getenv("TEST_DATABASE_URI")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URI is not set")
	}

	repo, err := NewPostgresRepository(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func seedProduct(t *testing.T, repo *PostgresRepository, stock int) *model.Product {
	t.Helper()

	now := time.Now().UTC().Truncate(time.Microsecond)
	actor := model.Actor{ID: uuid.New(), Name: "Admin", Role: model.RoleAdmin}
	p := &model.Product{
		ID:        uuid.New(),
		Name:      "Rice 25kg",
		SKU:       "RICE-" + uuid.NewString()[:8],
		Price:     12.5,
		Stock:     stock,
		Category:  "grains",
		Status:    model.DeriveStatus("", stock),
		CreatedBy: actor,
		UpdatedBy: actor,
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, repo.CreateProduct(context.Background(), p))
	return p
}

func TestSellProduct(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	p := seedProduct(t, repo, 10)
	seller := model.Actor{ID: uuid.New(), Name: "Cashier", Role: model.RoleCashier}

	_, err := repo.SellProduct(ctx, p.ID, 15, seller, time.Now())
	var stockErr *model.InsufficientStockError
	require.True(t, errors.As(err, &stockErr))
	assert.Contains(t, err.Error(), "Available: 10, Requested: 15")

	got, err := repo.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, got.Stock)

	sale, err := repo.SellProduct(ctx, p.ID, 3, seller, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 7, sale.Product.Stock)
	assert.InDelta(t, 37.5, sale.History.TotalAmount, 0.001)

	history, err := repo.ListProductHistory(ctx, p.ID)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestSellProduct_HistoryFailureRollsBackStock(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	p := seedProduct(t, repo, 10)

	fn := "fail_history_" + strings.ReplaceAll(p.ID.String(), "-", "")
	_, err := repo.pool.Exec(ctx, fmt.Sprintf(`
		CREATE FUNCTION %s() RETURNS trigger AS $$
		BEGIN
			IF NEW.product_id = '%s' THEN
				RAISE EXCEPTION 'history write rejected';
			END IF;
			RETURN NEW;
		END;
		$$ LANGUAGE plpgsql`, fn, p.ID))
	require.NoError(t, err)
	_, err = repo.pool.Exec(ctx, fmt.Sprintf(
		`CREATE TRIGGER %[1]s BEFORE INSERT ON product_history FOR EACH ROW EXECUTE FUNCTION %[1]s()`, fn))
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = repo.pool.Exec(context.Background(), fmt.Sprintf(`DROP TRIGGER IF EXISTS %s ON product_history`, fn))
		_, _ = repo.pool.Exec(context.Background(), fmt.Sprintf(`DROP FUNCTION IF EXISTS %s()`, fn))
	})

	seller := model.Actor{ID: uuid.New(), Name: "Cashier", Role: model.RoleCashier}
	_, err = repo.SellProduct(ctx, p.ID, 3, seller, time.Now())
	require.Error(t, err)

	got, err := repo.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, got.Stock)

	history, err := repo.ListProductHistory(ctx, p.ID)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestUpdateProduct_KeepsConcurrentSale(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	p := seedProduct(t, repo, 10)
	seller := model.Actor{ID: uuid.New(), Name: "Cashier", Role: model.RoleCashier}

	saleErr := make(chan error, 1)
	updated, err := repo.UpdateProduct(ctx, p.ID, func(locked *model.Product) error {
		go func() {
			_, err := repo.SellProduct(ctx, p.ID, 3, seller, time.Now())
			saleErr <- err
		}()
		// Продажа ждёт блокировку строки, пока идёт редактирование.
		time.Sleep(200 * time.Millisecond)
		locked.Name = "Rice 50kg"
		locked.UpdatedAt = time.Now().UTC()
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "Rice 50kg", updated.Name)
	require.NoError(t, <-saleErr)

	got, err := repo.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Rice 50kg", got.Name)
	assert.Equal(t, 7, got.Stock)
}

func TestDuplicateSKU(t *testing.T) {
	repo := newTestRepository(t)
	p := seedProduct(t, repo, 1)

	dup := *p
	dup.ID = uuid.New()
	err := repo.CreateProduct(context.Background(), &dup)
	assert.ErrorIs(t, err, model.ErrConflict)
}

func TestShipmentLifecycle(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	p := seedProduct(t, repo, 5)

	admin := &model.User{ID: uuid.New(), Name: "Admin", Email: "admin@example.com", Role: model.RoleAdmin}
	now := time.Now().UTC()
	ts := &model.ToShip{
		ID:                uuid.New(),
		ProductID:         p.ID,
		Quantity:          5,
		DeliveryPersonnel: model.Personnel{ID: uuid.New(), FullName: "Driver", Email: "driver@example.com"},
		Destination:       "Poblacion, Bongabong",
		Status:            model.DeliveryStatusPending,
		MarkedBy:          model.MarkerOf(admin),
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	product, err := repo.CreateShipment(ctx, ts, model.ActorOf(admin))
	require.NoError(t, err)
	assert.Equal(t, 0, product.Stock)
	assert.Equal(t, model.ProductStatusOutOfStock, product.Status)

	second := *ts
	second.ID = uuid.New()
	second.Quantity = 1
	_, err = repo.CreateShipment(ctx, &second, model.ActorOf(admin))
	var stockErr *model.InsufficientStockError
	require.True(t, errors.As(err, &stockErr))

	updated, err := repo.TransitionDelivery(ctx, ts.ID, model.DeliveryStatusInTransit, admin, now.Add(time.Minute))
	require.NoError(t, err)
	require.NotNil(t, updated.StartedAt)
	assert.Len(t, updated.Notifications, 2)

	_, err = repo.TransitionDelivery(ctx, ts.ID, model.DeliveryStatusPending, admin, now.Add(2*time.Minute))
	assert.ErrorIs(t, err, model.ErrInvalidTransition)

	cancelled, err := repo.TransitionDelivery(ctx, ts.ID, model.DeliveryStatusCancelled, admin, now.Add(3*time.Minute))
	require.NoError(t, err)
	require.NotNil(t, cancelled.CompletedAt)

	restored, err := repo.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, restored.Stock)
	assert.Equal(t, model.ProductStatusActive, restored.Status)

	count, err := repo.CountArchived(ctx, "driver@example.com")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, count, 1)

	_, deleted, err := repo.CleanupDeliveries(ctx, now.Add(RetentionPeriod+time.Hour), now)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, deleted, int64(1))

	_, err = repo.GetToShip(ctx, ts.ID)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestIncrementRateLimit(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	key := "test:" + uuid.NewString()
	start := time.Now().UTC().Truncate(time.Second)

	var rl *model.RateLimit
	var err error
	for i := 0; i < 6; i++ {
		rl, err = repo.IncrementRateLimit(ctx, key, 60, start.Add(time.Duration(i)*time.Second))
		require.NoError(t, err)
	}
	assert.Equal(t, 6, rl.Count)
	assert.True(t, rl.WindowStart.Equal(start))

	rl, err = repo.IncrementRateLimit(ctx, key, 60, start.Add(61*time.Second))
	require.NoError(t, err)
	assert.Equal(t, 1, rl.Count)

	require.NoError(t, repo.ClearRateLimit(ctx, key))
	_, err = repo.GetRateLimit(ctx, key)
	assert.ErrorIs(t, err, model.ErrNotFound)
}
