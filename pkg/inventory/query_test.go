package inventory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nemonet1337/zaiWarehouse/pkg/inventory"
)

func TestStatus(t *testing.T) {
	tests := []struct {
		name     string
		quantity int64
		min, max *int64
		want     inventory.StockStatus
	}{
		{"no thresholds", 0, nil, nil, inventory.StockStatusNormal},
		{"at min", 10, ptr(int64(10)), nil, inventory.StockStatusLow},
		{"above min", 11, ptr(int64(10)), ptr(int64(50)), inventory.StockStatusNormal},
		{"at max", 50, ptr(int64(10)), ptr(int64(50)), inventory.StockStatusOver},
		{"both match", 5, ptr(int64(5)), ptr(int64(5)), inventory.StockStatusLow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, inventory.Status(tt.quantity, tt.min, tt.max))
		})
	}
}

func TestInventoryQuery_LowAndOverStock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	empty := f.product(t, "EMPTY", productOpts{min: ptr(int64(5))})
	low := f.product(t, "LOW", productOpts{min: ptr(int64(10)), max: ptr(int64(100))})
	normal := f.product(t, "NORMAL", productOpts{min: ptr(int64(10)), max: ptr(int64(100))})
	over := f.product(t, "OVER", productOpts{max: ptr(int64(20))})
	f.product(t, "UNTRACKED", productOpts{})
	w1 := f.warehouse(t, "W1")
	w2 := f.warehouse(t, "W2")

	f.seed(t, low, w1, 4)
	f.seed(t, low, w2, 6)
	f.seed(t, normal, w1, 50)
	f.seed(t, over, w2, 25)

	// 残高行のない商品も在庫0として扱う
	lows, err := f.query.LowStock(ctx)
	require.NoError(t, err)
	require.Len(t, lows, 2)
	assert.Equal(t, empty, lows[0].Product.ID)
	assert.Zero(t, lows[0].Quantity)
	assert.Equal(t, low, lows[1].Product.ID)
	assert.Equal(t, int64(10), lows[1].Quantity)
	assert.Equal(t, inventory.StockStatusLow, lows[1].Status)

	overs, err := f.query.OverStock(ctx)
	require.NoError(t, err)
	require.Len(t, overs, 1)
	assert.Equal(t, over, overs[0].Product.ID)
	assert.Equal(t, inventory.StockStatusOver, overs[0].Status)

	lines, err := f.query.StockByWarehouse(ctx, w1)
	require.NoError(t, err)
	byProduct := map[int64]inventory.ProductStock{}
	for _, l := range lines {
		byProduct[l.Product.ID] = l
	}
	assert.Equal(t, int64(4), byProduct[low].Quantity)
	assert.Equal(t, inventory.StockStatusLow, byProduct[low].Status)
	assert.Equal(t, inventory.StockStatusNormal, byProduct[normal].Status)

	_, err = f.query.StockByWarehouse(ctx, 9999)
	assert.ErrorIs(t, err, inventory.ErrWarehouseNotFound)

	total, err := f.index.TotalByProduct(ctx, low)
	require.NoError(t, err)
	assert.Equal(t, int64(10), total)

	_, err = f.index.TotalByProduct(ctx, 9999)
	assert.ErrorIs(t, err, inventory.ErrProductNotFound)
}

func TestInventoryQuery_Value(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p1 := f.product(t, "P1", productOpts{price: "150.00"})
	p2 := f.product(t, "P2", productOpts{price: "10.50"})
	w1 := f.warehouse(t, "W1")
	w2 := f.warehouse(t, "W2")
	w3 := f.warehouse(t, "W3")

	f.seed(t, p1, w1, 3)
	f.seed(t, p1, w2, 2)
	f.seed(t, p2, w1, 4)

	value, err := f.query.WarehouseValue(ctx, w1)
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("492.00").Equal(value), value.String())

	value, err = f.query.WarehouseValue(ctx, w3)
	require.NoError(t, err)
	assert.True(t, value.IsZero())

	total, err := f.query.TotalValue(ctx)
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("792.00").Equal(total), total.String())
}

func TestInventoryQuery_ReorderSuggestions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	medium := f.product(t, "MEDIUM", productOpts{min: ptr(int64(10)), reorder: ptr(int64(12)), max: ptr(int64(50)), cost: "3.00"})
	critical := f.product(t, "CRITICAL", productOpts{min: ptr(int64(10)), reorder: ptr(int64(20)), max: ptr(int64(100)), cost: "2.50"})
	high := f.product(t, "HIGH", productOpts{min: ptr(int64(10)), reorder: ptr(int64(20))})
	healthy := f.product(t, "HEALTHY", productOpts{min: ptr(int64(10)), reorder: ptr(int64(20))})
	w1 := f.warehouse(t, "W1")

	f.seed(t, medium, w1, 10)
	f.seed(t, high, w1, 8)
	f.seed(t, healthy, w1, 30)

	suggestions, err := f.query.ReorderSuggestions(ctx)
	require.NoError(t, err)
	require.Len(t, suggestions, 3)

	assert.Equal(t, critical, suggestions[0].ProductID)
	assert.Equal(t, inventory.SeverityCritical, suggestions[0].Urgency)
	assert.Zero(t, suggestions[0].DaysUntilStockout)
	assert.Equal(t, int64(100), suggestions[0].ReorderQuantity)
	assert.True(t, decimal.RequireFromString("250.00").Equal(suggestions[0].EstimatedCost))

	assert.Equal(t, high, suggestions[1].ProductID)
	assert.Equal(t, inventory.SeverityHigh, suggestions[1].Urgency)
	assert.Equal(t, 3, suggestions[1].DaysUntilStockout)
	assert.Equal(t, int64(52), suggestions[1].ReorderQuantity)

	assert.Equal(t, medium, suggestions[2].ProductID)
	assert.Equal(t, inventory.SeverityMedium, suggestions[2].Urgency)
	assert.Equal(t, int64(40), suggestions[2].ReorderQuantity)
}

func TestInventoryQuery_ReorderSuggestionsFromDemand(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p1 := f.product(t, "DEMAND", productOpts{min: ptr(int64(10))})
	w1 := f.warehouse(t, "W1")

	f.seed(t, p1, w1, 20)
	_, err := f.seeder.Process(ctx, outRequest(p1, w1, 12))
	require.NoError(t, err)

	// 平均0.4/日、リードタイム7日、サービスレベル0.95 → 発注点 ceil(2.8 + 0.437) = 4
	suggestions, err := f.query.ReorderSuggestions(ctx)
	require.NoError(t, err)
	require.Len(t, suggestions, 1)
	assert.Equal(t, int64(8), suggestions[0].CurrentStock)
	assert.Equal(t, int64(4), suggestions[0].ReorderPoint)
	assert.Equal(t, int64(4), suggestions[0].ReorderQuantity)
	assert.Equal(t, inventory.SeverityMedium, suggestions[0].Urgency)
}

func TestInventoryQuery_Movements(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p1 := f.product(t, "P1", productOpts{})
	w1 := f.warehouse(t, "W1")

	start := time.Now().Add(-time.Minute)
	for i := 0; i < 3; i++ {
		f.seed(t, p1, w1, int64(i+1))
	}

	recent, err := f.query.MovementsRecent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, int64(3), recent[0].Quantity)

	between, err := f.query.MovementsBetween(ctx, start, time.Now().Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, between, 3)
	assert.Equal(t, int64(1), between[0].Quantity)

	_, err = f.query.MovementsBetween(ctx, time.Now(), start)
	var verr *inventory.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "from", verr.Field)

	_, err = f.query.MovementsByProduct(ctx, 9999)
	assert.ErrorIs(t, err, inventory.ErrProductNotFound)

	replayed, err := f.query.LedgerTotal(ctx, p1)
	require.NoError(t, err)
	assert.Equal(t, int64(6), replayed)
}

func TestInventoryQuery_MovementSummary(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p1 := f.product(t, "P1", productOpts{})
	w1 := f.warehouse(t, "W1")
	w2 := f.warehouse(t, "W2")

	start := time.Now().Add(-time.Minute)
	f.seed(t, p1, w1, 10)
	f.seed(t, p1, w1, 5)
	requests := []inventory.MovementRequest{
		{ProductID: p1, Type: inventory.MovementTypeOut, Quantity: 2, FromWarehouseID: ptr(w1)},
		{ProductID: p1, Type: inventory.MovementTypeTransfer, Quantity: 3, FromWarehouseID: ptr(w1), ToWarehouseID: ptr(w2)},
		{ProductID: p1, Type: inventory.MovementTypeAdjustment, Quantity: 1, ToWarehouseID: ptr(w2)},
	}
	for _, req := range requests {
		_, err := f.seeder.Process(ctx, req)
		require.NoError(t, err)
	}
	end := time.Now().Add(time.Minute)

	summary, err := f.query.MovementSummary(ctx, start, end)
	require.NoError(t, err)
	assert.Equal(t, inventory.MovementSummary{
		From: start, To: end, Total: 5, In: 2, Out: 1, Transfer: 1, Adjustment: 1,
	}, *summary)

	// 期間外は0件
	empty, err := f.query.MovementSummary(ctx, end, end.Add(time.Hour))
	require.NoError(t, err)
	assert.Zero(t, empty.Total)

	_, err = f.query.MovementSummary(ctx, end, start)
	assert.ErrorIs(t, err, inventory.ErrInvalidRequest)
}

func TestReplenishmentFormulas(t *testing.T) {
	assert.Equal(t, 2.33, inventory.ZScore(0.995))
	assert.Equal(t, 1.65, inventory.ZScore(0.95))
	assert.Equal(t, 1.28, inventory.ZScore(0.9))
	assert.Equal(t, 0.67, inventory.ZScore(0.5))

	// 1.65 × (10 × 0.25) × √4
	assert.InDelta(t, 8.25, inventory.SafetyStock(10, 4, 0.95), 1e-9)
	assert.InDelta(t, 48.25, inventory.ReorderPoint(10, 4, 8.25), 1e-9)

	eoq, err := inventory.EOQ(1000, 50, 4)
	require.NoError(t, err)
	assert.InDelta(t, 158.1139, eoq, 1e-4)

	_, err = inventory.EOQ(1000, 50, 0)
	var verr *inventory.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "holding_cost", verr.Field)
}
