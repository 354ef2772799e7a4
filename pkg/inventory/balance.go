package inventory

import (
	"context"
	"sort"
)

// Status classifies quantity against optional min and max levels.
// LOW takes precedence when both bounds match.
// 最小・最大在庫に対する在庫状態を返す。両方に該当する場合はLOWを優先
func Status(quantity int64, min, max *int64) StockStatus {
	if min != nil && quantity <= *min {
		return StockStatusLow
	}
	if max != nil && quantity >= *max {
		return StockStatusOver
	}
	return StockStatusNormal
}

// BalanceIndex derives totals and stock status from the store
// ストアから合計在庫と在庫状態を導出する
type BalanceIndex struct {
	store Reader
}

// NewBalanceIndex creates a new balance index
// 新しいBalanceIndexを作成
func NewBalanceIndex(store Reader) *BalanceIndex {
	return &BalanceIndex{store: store}
}

// TotalByProduct returns the sum of a product's balances across warehouses
// 全倉庫での商品の合計在庫を返す
func (b *BalanceIndex) TotalByProduct(ctx context.Context, productID int64) (int64, error) {
	if _, err := b.store.GetProduct(ctx, productID); err != nil {
		return 0, err
	}
	return b.store.TotalByProduct(ctx, productID)
}

// PerWarehouse lists the products held at a warehouse with their status
// 倉庫内の商品と在庫状態を一覧する
func (b *BalanceIndex) PerWarehouse(ctx context.Context, warehouseID int64) ([]ProductStock, error) {
	if _, err := b.store.GetWarehouse(ctx, warehouseID); err != nil {
		return nil, err
	}

	balances, err := b.store.ListBalancesByWarehouse(ctx, warehouseID)
	if err != nil {
		return nil, err
	}
	products, err := b.productsByID(ctx)
	if err != nil {
		return nil, err
	}

	lines := make([]ProductStock, 0, len(balances))
	for _, bal := range balances {
		p, ok := products[bal.ProductID]
		if !ok {
			continue
		}
		lines = append(lines, ProductStock{
			Product:  p,
			Quantity: bal.Quantity,
			Status:   Status(bal.Quantity, p.MinStockLevel, p.MaxStockLevel),
		})
	}
	return lines, nil
}

// LowStockProducts returns active products whose total is at or below min_stock_level
// 合計在庫が最小在庫以下の有効商品を返す
func (b *BalanceIndex) LowStockProducts(ctx context.Context) ([]ProductStock, error) {
	return b.filter(ctx, func(p Product, total int64) bool {
		return p.MinStockLevel != nil && total <= *p.MinStockLevel
	})
}

// OverStockProducts returns active products whose total is at or above max_stock_level
// 合計在庫が最大在庫以上の有効商品を返す
func (b *BalanceIndex) OverStockProducts(ctx context.Context) ([]ProductStock, error) {
	return b.filter(ctx, func(p Product, total int64) bool {
		return p.MaxStockLevel != nil && total >= *p.MaxStockLevel
	})
}

func (b *BalanceIndex) filter(ctx context.Context, match func(Product, int64) bool) ([]ProductStock, error) {
	products, err := b.store.ListProducts(ctx, true)
	if err != nil {
		return nil, err
	}
	totals, err := b.store.StockTotals(ctx)
	if err != nil {
		return nil, err
	}

	var out []ProductStock
	for _, p := range products {
		total := totals[p.ID]
		if !match(p, total) {
			continue
		}
		out = append(out, ProductStock{
			Product:  p,
			Quantity: total,
			Status:   Status(total, p.MinStockLevel, p.MaxStockLevel),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Product.ID < out[j].Product.ID })
	return out, nil
}

func (b *BalanceIndex) productsByID(ctx context.Context) (map[int64]Product, error) {
	products, err := b.store.ListProducts(ctx, false)
	if err != nil {
		return nil, err
	}
	byID := make(map[int64]Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}
	return byID, nil
}
