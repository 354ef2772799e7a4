package inventory

import (
	"context"
	"time"
)

const (
	defaultRecentMovementLimit = 50
	maxRecentMovementLimit     = 1000
)

// InventoryQuery serves read-only projections over the store
// ストアに対する読み取り専用の照会
type InventoryQuery struct {
	store Reader
	index *BalanceIndex
}

// NewInventoryQuery creates a new query service. index may be nil.
// 新しい照会サービスを作成
func NewInventoryQuery(store Reader, index *BalanceIndex) *InventoryQuery {
	if index == nil {
		index = NewBalanceIndex(store)
	}
	return &InventoryQuery{store: store, index: index}
}

// MovementsRecent returns the latest ledger entries, newest first
// 最新の在庫移動を新しい順に返す
func (q *InventoryQuery) MovementsRecent(ctx context.Context, limit int) ([]Movement, error) {
	if limit <= 0 {
		limit = defaultRecentMovementLimit
	}
	if limit > maxRecentMovementLimit {
		limit = maxRecentMovementLimit
	}
	return q.store.RecentMovements(ctx, limit)
}

// MovementsByProduct returns a product's ledger entries, newest first
// 商品の在庫移動履歴を新しい順に返す
func (q *InventoryQuery) MovementsByProduct(ctx context.Context, productID int64) ([]Movement, error) {
	if _, err := q.store.GetProduct(ctx, productID); err != nil {
		return nil, err
	}
	return q.store.MovementsByProduct(ctx, productID)
}

// MovementsBetween returns ledger entries created in [from, to], oldest first
// 期間内の在庫移動を古い順に返す
func (q *InventoryQuery) MovementsBetween(ctx context.Context, from, to time.Time) ([]Movement, error) {
	if from.After(to) {
		return nil, NewValidationError(ErrInvalidRequest, "from", "開始日時が終了日時より後です", from.Format(time.RFC3339))
	}
	return q.store.MovementsBetween(ctx, from, to)
}

// MovementSummary counts the ledger entries of [From, To] by movement type
// 期間内の在庫移動を種別ごとに集計
type MovementSummary struct {
	From       time.Time `json:"from"`
	To         time.Time `json:"to"`
	Total      int       `json:"total"`
	In         int       `json:"in"`
	Out        int       `json:"out"`
	Transfer   int       `json:"transfer"`
	Adjustment int       `json:"adjustment"`
}

// MovementSummary returns per-type movement counts for [from, to]
// 期間内の在庫移動件数を種別ごとに返す
func (q *InventoryQuery) MovementSummary(ctx context.Context, from, to time.Time) (*MovementSummary, error) {
	movements, err := q.MovementsBetween(ctx, from, to)
	if err != nil {
		return nil, err
	}
	summary := &MovementSummary{From: from, To: to, Total: len(movements)}
	for i := range movements {
		switch movements[i].Type {
		case MovementTypeIn:
			summary.In++
		case MovementTypeOut:
			summary.Out++
		case MovementTypeTransfer:
			summary.Transfer++
		case MovementTypeAdjustment:
			summary.Adjustment++
		}
	}
	return summary, nil
}

// TotalByProduct returns a product's stock summed over all warehouses
// 商品の全倉庫合計在庫を返す
func (q *InventoryQuery) TotalByProduct(ctx context.Context, productID int64) (int64, error) {
	return q.index.TotalByProduct(ctx, productID)
}

// StockByWarehouse lists a warehouse's balances with status
// 倉庫の在庫一覧を返す
func (q *InventoryQuery) StockByWarehouse(ctx context.Context, warehouseID int64) ([]ProductStock, error) {
	return q.index.PerWarehouse(ctx, warehouseID)
}

// LowStock returns products at or below their minimum level
func (q *InventoryQuery) LowStock(ctx context.Context) ([]ProductStock, error) {
	return q.index.LowStockProducts(ctx)
}

// OverStock returns products at or above their maximum level
func (q *InventoryQuery) OverStock(ctx context.Context) ([]ProductStock, error) {
	return q.index.OverStockProducts(ctx)
}

// LedgerTotal replays a product's ledger: Σ IN − Σ OUT + Σ adjustment deltas.
// It equals TotalByProduct for every committed state.
// 台帳を再生して商品の合計在庫を再構築する
func (q *InventoryQuery) LedgerTotal(ctx context.Context, productID int64) (int64, error) {
	movements, err := q.MovementsByProduct(ctx, productID)
	if err != nil {
		return 0, err
	}
	var total int64
	for i := range movements {
		total += movements[i].Effect()
	}
	return total, nil
}
