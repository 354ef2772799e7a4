package inventory_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nemonet1337/zaiWarehouse/pkg/inventory"
	"github.com/nemonet1337/zaiWarehouse/pkg/inventory/storage"
)

type testStore interface {
	inventory.Store
	inventory.Catalog
}

// fixture はエンジン一式とテストデータ作成ヘルパー
type fixture struct {
	store    testStore
	registry *prometheus.Registry
	metrics  *inventory.Metrics
	alerts   *inventory.AlertEngine
	engine   *inventory.MovementEngine
	seeder   *inventory.MovementEngine // アラート評価なし
	orders   *inventory.PurchaseOrderCoordinator
	index    *inventory.BalanceIndex
	query    *inventory.InventoryQuery
}

// newFixture はTEST_DATABASE_URLが設定されていればPostgreSQL、なければメモリストアを使う
func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWithConfig(t, nil)
}

func newFixtureWithConfig(t *testing.T, config *inventory.Config) *fixture {
	t.Helper()
	logger := zap.NewNop()
	store := newTestStore(t, logger)

	registry := prometheus.NewRegistry()
	metrics := inventory.NewMetrics(registry)
	alerts := inventory.NewAlertEngine(store, logger, metrics, config)
	engine := inventory.NewMovementEngine(store, alerts, logger, metrics, config)
	index := inventory.NewBalanceIndex(store)

	return &fixture{
		store:    store,
		registry: registry,
		metrics:  metrics,
		alerts:   alerts,
		engine:   engine,
		seeder:   inventory.NewMovementEngine(store, nil, logger, nil, config),
		orders:   inventory.NewPurchaseOrderCoordinator(store, engine, logger, metrics, config),
		index:    index,
		query:    inventory.NewInventoryQuery(store, index),
	}
}

func newTestStore(t *testing.T, logger *zap.Logger) testStore {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		return storage.NewMemoryStorage(time.Second, logger)
	}

	ctx := context.Background()
	pg, err := storage.NewPostgreSQLStorage(ctx, dsn, time.Second, logger)
	require.NoError(t, err)
	t.Cleanup(func() { pg.Close() })

	_, err = storage.Migrate(ctx, pg.DB(), storage.MigrationsFS(), logger)
	require.NoError(t, err)
	_, err = pg.DB().ExecContext(ctx, `TRUNCATE alerts, purchase_order_items, purchase_orders, stock_movements,
		warehouse_stock, products, warehouses, suppliers, sequences RESTART IDENTITY CASCADE`)
	require.NoError(t, err)
	return pg
}

func ptr[T any](v T) *T { return &v }

type productOpts struct {
	min, max, reorder *int64
	cost, price       string
}

func (f *fixture) product(t *testing.T, sku string, opts productOpts) int64 {
	t.Helper()
	cost, price := opts.cost, opts.price
	if cost == "" {
		cost = "1.00"
	}
	if price == "" {
		price = "2.00"
	}
	p := &inventory.Product{
		SKU:           sku,
		Name:          sku,
		Unit:          "個",
		UnitPrice:     decimal.RequireFromString(price),
		CostPrice:     decimal.RequireFromString(cost),
		MinStockLevel: opts.min,
		MaxStockLevel: opts.max,
		ReorderPoint:  opts.reorder,
		Active:        true,
	}
	require.NoError(t, f.store.CreateProduct(context.Background(), p))
	return p.ID
}

func (f *fixture) warehouse(t *testing.T, code string) int64 {
	t.Helper()
	w := &inventory.Warehouse{Code: code, Name: code, Active: true}
	require.NoError(t, f.store.CreateWarehouse(context.Background(), w))
	return w.ID
}

func (f *fixture) supplier(t *testing.T, name string) int64 {
	t.Helper()
	s := &inventory.Supplier{Name: name, Active: true}
	require.NoError(t, f.store.CreateSupplier(context.Background(), s))
	return s.ID
}

// seed はアラートを発生させずに入庫する
func (f *fixture) seed(t *testing.T, productID, warehouseID, qty int64) {
	t.Helper()
	_, err := f.seeder.Process(context.Background(), inventory.MovementRequest{
		ProductID:     productID,
		Type:          inventory.MovementTypeIn,
		Quantity:      qty,
		ToWarehouseID: ptr(warehouseID),
		Reason:        "初期在庫",
	})
	require.NoError(t, err)
}

func (f *fixture) balance(t *testing.T, warehouseID, productID int64) int64 {
	t.Helper()
	b, err := f.store.FindBalance(context.Background(), warehouseID, productID)
	require.NoError(t, err)
	if b == nil {
		return 0
	}
	return b.Quantity
}

// assertLedgerConsistent は台帳の再生結果が合計在庫と一致することを確認する
func (f *fixture) assertLedgerConsistent(t *testing.T, productID int64) {
	t.Helper()
	ctx := context.Background()
	total, err := f.index.TotalByProduct(ctx, productID)
	require.NoError(t, err)
	replayed, err := f.query.LedgerTotal(ctx, productID)
	require.NoError(t, err)
	require.Equal(t, total, replayed, "ledger replay must equal balance total")
}

// counter は登録済みカウンタの値をラベル一致で返す
func (f *fixture) counter(t *testing.T, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := f.registry.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	metrics:
		for _, m := range mf.GetMetric() {
			got := make(map[string]string, len(m.GetLabel()))
			for _, lp := range m.GetLabel() {
				got[lp.GetName()] = lp.GetValue()
			}
			for k, v := range labels {
				if got[k] != v {
					continue metrics
				}
			}
			return m.GetCounter().GetValue()
		}
	}
	return 0
}
