package inventory

import (
	"context"
	"time"
)

// Reader defines the read operations of the stock store.
// Get* return a NotFoundError when missing; Find* return nil, nil.
// ストアの読み取り操作を定義
type Reader interface {
	// 参照エンティティ - Reference entities
	GetProduct(ctx context.Context, id int64) (*Product, error)
	ListProducts(ctx context.Context, activeOnly bool) ([]Product, error)
	GetWarehouse(ctx context.Context, id int64) (*Warehouse, error)
	GetSupplier(ctx context.Context, id int64) (*Supplier, error)

	// 在庫残高 - Balances
	FindBalance(ctx context.Context, warehouseID, productID int64) (*Balance, error)
	ListBalancesByWarehouse(ctx context.Context, warehouseID int64) ([]Balance, error)
	TotalByProduct(ctx context.Context, productID int64) (int64, error)
	StockTotals(ctx context.Context) (map[int64]int64, error)

	// 台帳 - Ledger
	RecentMovements(ctx context.Context, limit int) ([]Movement, error)
	MovementsByProduct(ctx context.Context, productID int64) ([]Movement, error)
	MovementsBetween(ctx context.Context, from, to time.Time) ([]Movement, error)

	// 発注書 - Purchase orders
	GetPurchaseOrder(ctx context.Context, id int64) (*PurchaseOrder, error)
	ListPurchaseOrders(ctx context.Context, status *POStatus) ([]PurchaseOrder, error)
	CountPurchaseOrders(ctx context.Context, statuses ...POStatus) (int64, error)

	// アラート - Alerts
	GetAlert(ctx context.Context, id int64) (*Alert, error)
	FindUnresolvedAlert(ctx context.Context, productID int64, alertType AlertType) (*Alert, error)
	ListUnresolvedAlerts(ctx context.Context) ([]Alert, error)
	CountUnresolvedAlerts(ctx context.Context) (int64, error)
	RecentAlerts(ctx context.Context, limit int) ([]Alert, error)
}

// Tx is a store transaction. All mutations go through it.
// ストアのトランザクション。すべての更新はこれを経由する
type Tx interface {
	Reader

	// LockBalances locks balance rows in canonical order, creating zero rows when missing
	// 正規順序で残高行をロックし、存在しなければ数量0の行を作成する
	LockBalances(ctx context.Context, keys []BalanceKey) (map[BalanceKey]*Balance, error)
	UpsertBalance(ctx context.Context, balance *Balance) error

	// AppendMovement returns ErrDuplicateReference when (type, reference, product) was already recorded
	// 同一(type, reference, product)が記録済みの場合はErrDuplicateReferenceを返す
	AppendMovement(ctx context.Context, movement *Movement) error

	// NextSequence increments and returns the durable counter stored under key
	// keyで保存された永続カウンタを進めて返す
	NextSequence(ctx context.Context, key string) (int64, error)

	CreatePurchaseOrder(ctx context.Context, po *PurchaseOrder) error
	LockPurchaseOrder(ctx context.Context, id int64) (*PurchaseOrder, error)
	UpdatePurchaseOrder(ctx context.Context, po *PurchaseOrder) error

	// CreateAlert returns ErrDuplicateAlert when an open threshold alert of the same kind exists
	// 同種の未解決閾値アラートが存在する場合はErrDuplicateAlertを返す
	CreateAlert(ctx context.Context, alert *Alert) error
	LockAlert(ctx context.Context, id int64) (*Alert, error)
	UpdateAlert(ctx context.Context, alert *Alert) error

	// AfterCommit registers fn to run once the transaction has committed
	// コミット成功後に実行する関数を登録
	AfterCommit(fn func())
}

// Store defines the persistence abstraction of the inventory core
// 在庫コアの永続化抽象を定義
type Store interface {
	Reader

	// WithTx runs fn in a transaction, rolling back when fn returns an error
	// fnをトランザクション内で実行し、エラー時はロールバックする
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	Ping(ctx context.Context) error
	Close() error
}

// Catalog defines seeding operations for reference entities
// 参照エンティティの登録操作を定義
type Catalog interface {
	CreateProduct(ctx context.Context, product *Product) error
	CreateWarehouse(ctx context.Context, warehouse *Warehouse) error
	CreateSupplier(ctx context.Context, supplier *Supplier) error
	SetWarehouseActive(ctx context.Context, id int64, active bool) error
}

// AlertEvaluator is notified of balance keys touched by a committed movement
// コミット済み移動が触れた残高キーを受け取る
type AlertEvaluator interface {
	Evaluate(ctx context.Context, touched []BalanceKey)
}

type actorKey struct{}

// WithActor returns a context carrying the acting user
// 操作ユーザーを保持したコンテキストを返す
func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFromContext extracts the acting user, falling back to "system"
// コンテキストから操作ユーザーを取得
func ActorFromContext(ctx context.Context) string {
	if actor, ok := ctx.Value(actorKey{}).(string); ok && actor != "" {
		return actor
	}
	return "system"
}

func resolveActor(ctx context.Context, actor string) string {
	if actor != "" {
		return actor
	}
	return ActorFromContext(ctx)
}
