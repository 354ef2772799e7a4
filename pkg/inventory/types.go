// Package inventory provides the stock movement and inventory consistency core
package inventory

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Product represents a catalog product
// カタログ上の商品を表現
type Product struct {
	ID            int64           `json:"id" db:"id"`                           // 商品ID
	SKU           string          `json:"sku" db:"sku"`                         // SKU（一意）
	Name          string          `json:"name" db:"name"`                       // 商品名
	Unit          string          `json:"unit" db:"unit"`                       // 単位
	UnitPrice     decimal.Decimal `json:"unit_price" db:"unit_price"`           // 販売単価
	CostPrice     decimal.Decimal `json:"cost_price" db:"cost_price"`           // 仕入単価
	MinStockLevel *int64          `json:"min_stock_level" db:"min_stock_level"` // 最小在庫
	MaxStockLevel *int64          `json:"max_stock_level" db:"max_stock_level"` // 最大在庫
	ReorderPoint  *int64          `json:"reorder_point" db:"reorder_point"`     // 発注点
	Active        bool            `json:"active" db:"active"`                   // 有効フラグ（論理削除）
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at" db:"updated_at"`
}

// WarehouseType represents the kind of warehouse
// 倉庫の種類を表現
type WarehouseType string

const (
	WarehouseTypeMain        WarehouseType = "MAIN"
	WarehouseTypeBranch      WarehouseType = "BRANCH"
	WarehouseTypeColdStorage WarehouseType = "COLD_STORAGE"
)

// Warehouse represents a physical stock location
// 物理的な保管拠点を表現
type Warehouse struct {
	ID               int64         `json:"id" db:"id"`
	Code             string        `json:"code" db:"code"` // 倉庫コード（一意）
	Name             string        `json:"name" db:"name"`
	Type             WarehouseType `json:"type" db:"type"`
	Address          string        `json:"address" db:"address"`
	Capacity         *int64        `json:"capacity" db:"capacity"`                   // 最大収容量（nilは無制限）
	CurrentOccupancy int64         `json:"current_occupancy" db:"current_occupancy"` // 現在の占有量
	Active           bool          `json:"active" db:"active"`
	CreatedAt        time.Time     `json:"created_at" db:"created_at"`
}

// Supplier represents a vendor purchase orders are placed with
// 発注先の仕入先を表現
type Supplier struct {
	ID          int64     `json:"id" db:"id"`
	Name        string    `json:"name" db:"name"`
	ContactName string    `json:"contact_name" db:"contact_name"`
	Email       string    `json:"email" db:"email"`
	Phone       string    `json:"phone" db:"phone"`
	Active      bool      `json:"active" db:"active"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// BalanceKey identifies a balance row
// 在庫残高行を識別するキー
type BalanceKey struct {
	WarehouseID int64 `json:"warehouse_id"`
	ProductID   int64 `json:"product_id"`
}

// Less reports whether k sorts before o in canonical lock order
// 正規ロック順序でkがoより前かどうかを返す
func (k BalanceKey) Less(o BalanceKey) bool {
	if k.WarehouseID != o.WarehouseID {
		return k.WarehouseID < o.WarehouseID
	}
	return k.ProductID < o.ProductID
}

// CanonicalOrder returns the distinct keys sorted ascending by (warehouse_id, product_id)
// 重複を除き(warehouse_id, product_id)の昇順に並べたキーを返す
func CanonicalOrder(keys []BalanceKey) []BalanceKey {
	seen := make(map[BalanceKey]struct{}, len(keys))
	ordered := make([]BalanceKey, 0, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		ordered = append(ordered, k)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Less(ordered[j]) })
	return ordered
}

// Balance represents the quantity of a product at a warehouse
// 倉庫ごとの商品在庫数量を表現
type Balance struct {
	ID          int64     `json:"id" db:"id"`
	WarehouseID int64     `json:"warehouse_id" db:"warehouse_id"`
	ProductID   int64     `json:"product_id" db:"product_id"`
	Quantity    int64     `json:"quantity" db:"quantity"` // 常に0以上
	LastUpdated time.Time `json:"last_updated" db:"last_updated"`
}

// Key returns the balance key of the row
func (b *Balance) Key() BalanceKey {
	return BalanceKey{WarehouseID: b.WarehouseID, ProductID: b.ProductID}
}

// MovementType represents the kind of stock movement
// 在庫移動の種類を表現
type MovementType string

const (
	MovementTypeIn         MovementType = "IN"         // 入庫
	MovementTypeOut        MovementType = "OUT"        // 出庫
	MovementTypeTransfer   MovementType = "TRANSFER"   // 倉庫間移動
	MovementTypeAdjustment MovementType = "ADJUSTMENT" // 棚卸調整（絶対値）
)

// Valid reports whether t is a known movement type
func (t MovementType) Valid() bool {
	switch t {
	case MovementTypeIn, MovementTypeOut, MovementTypeTransfer, MovementTypeAdjustment:
		return true
	}
	return false
}

// Movement represents an append-only ledger entry
// 追記専用の在庫移動台帳エントリを表現
type Movement struct {
	ID              int64        `json:"id" db:"id"`
	ProductID       int64        `json:"product_id" db:"product_id"`
	FromWarehouseID *int64       `json:"from_warehouse_id,omitempty" db:"from_warehouse_id"`
	ToWarehouseID   *int64       `json:"to_warehouse_id,omitempty" db:"to_warehouse_id"`
	Quantity        int64        `json:"quantity" db:"quantity"`                                   // ADJUSTMENTの場合は調整後の絶対値
	AdjustmentDelta *int64       `json:"adjustment_delta,omitempty" db:"adjustment_delta"`         // ADJUSTMENTの場合の符号付き差分
	Type            MovementType `json:"type" db:"type"`
	Reason          string       `json:"reason" db:"reason"`
	Reference       string       `json:"reference" db:"reference"`
	PerformedBy     string       `json:"performed_by" db:"performed_by"`
	CreatedAt       time.Time    `json:"created_at" db:"created_at"`
}

// Effect returns the signed change this entry made to the product's total stock
// この台帳エントリが商品の総在庫に与えた符号付き変化量を返す
func (m *Movement) Effect() int64 {
	switch m.Type {
	case MovementTypeIn:
		return m.Quantity
	case MovementTypeOut:
		return -m.Quantity
	case MovementTypeAdjustment:
		if m.AdjustmentDelta != nil {
			return *m.AdjustmentDelta
		}
	}
	return 0
}

// MovementRequest is the input to MovementEngine.Process
// MovementEngine.Processへの入力
type MovementRequest struct {
	ProductID       int64        `json:"product_id"`
	Type            MovementType `json:"type"`
	Quantity        int64        `json:"quantity"`
	FromWarehouseID *int64       `json:"from_warehouse_id,omitempty"`
	ToWarehouseID   *int64       `json:"to_warehouse_id,omitempty"`
	Reason          string       `json:"reason,omitempty"`
	Reference       string       `json:"reference,omitempty"`
	Actor           string       `json:"actor,omitempty"`
}

// touched returns the affected keys, destination first
func (r MovementRequest) touched() []BalanceKey {
	var keys []BalanceKey
	if r.ToWarehouseID != nil {
		keys = append(keys, BalanceKey{WarehouseID: *r.ToWarehouseID, ProductID: r.ProductID})
	}
	if r.FromWarehouseID != nil {
		keys = append(keys, BalanceKey{WarehouseID: *r.FromWarehouseID, ProductID: r.ProductID})
	}
	return keys
}

// StockStatus classifies a quantity against product thresholds
// 閾値に対する在庫状態
type StockStatus string

const (
	StockStatusLow    StockStatus = "LOW"
	StockStatusNormal StockStatus = "NORMAL"
	StockStatusOver   StockStatus = "OVER"
)

// ProductStock pairs a product with a quantity and its status
// 商品と数量、在庫状態の組
type ProductStock struct {
	Product  Product     `json:"product"`
	Quantity int64       `json:"quantity"`
	Status   StockStatus `json:"status"`
}

// AlertType represents the kind of alert
// アラートの種類
type AlertType string

const (
	AlertTypeLowStock  AlertType = "LOW_STOCK"
	AlertTypeOverstock AlertType = "OVERSTOCK"
	AlertTypeAnomaly   AlertType = "ANOMALY"
)

// IsThreshold reports whether alerts of this type are deduplicated per product
func (t AlertType) IsThreshold() bool {
	return t == AlertTypeLowStock || t == AlertTypeOverstock
}

// Severity represents alert severity
// アラートの重要度
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// Alert represents a stock alert
// 在庫アラートを表現
type Alert struct {
	ID          int64      `json:"id" db:"id"`
	ProductID   *int64     `json:"product_id,omitempty" db:"product_id"`
	WarehouseID *int64     `json:"warehouse_id,omitempty" db:"warehouse_id"`
	Type        AlertType  `json:"type" db:"type"`
	Message     string     `json:"message" db:"message"`
	Severity    Severity   `json:"severity" db:"severity"`
	Resolved    bool       `json:"resolved" db:"resolved"`
	ResolvedBy  *string    `json:"resolved_by,omitempty" db:"resolved_by"`
	ResolvedAt  *time.Time `json:"resolved_at,omitempty" db:"resolved_at"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
}

// CreateAlertRequest is the input to AlertEngine.CreateAlert
// アラート作成リクエスト
type CreateAlertRequest struct {
	ProductID   *int64    `json:"product_id,omitempty"`
	WarehouseID *int64    `json:"warehouse_id,omitempty"`
	Type        AlertType `json:"type"`
	Message     string    `json:"message"`
	Severity    Severity  `json:"severity"`
}

// POStatus represents the purchase order state
// 発注書の状態
type POStatus string

const (
	POStatusDraft     POStatus = "DRAFT"
	POStatusPending   POStatus = "PENDING"
	POStatusApproved  POStatus = "APPROVED"
	POStatusReceived  POStatus = "RECEIVED"
	POStatusCancelled POStatus = "CANCELLED"
)

var poTransitions = map[POStatus][]POStatus{
	POStatusDraft:    {POStatusApproved, POStatusCancelled},
	POStatusPending:  {POStatusApproved, POStatusCancelled},
	POStatusApproved: {POStatusReceived, POStatusCancelled},
}

// CanTransitionTo reports whether the state machine allows s -> next
// 状態遷移が許可されているかを返す
func (s POStatus) CanTransitionTo(next POStatus) bool {
	for _, allowed := range poTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no transition leaves s
func (s POStatus) IsTerminal() bool {
	return s == POStatusReceived || s == POStatusCancelled
}

// PurchaseOrder represents a purchase order and its owned line items
// 発注書と明細を表現
type PurchaseOrder struct {
	ID                   int64           `json:"id" db:"id"`
	OrderNumber          string          `json:"order_number" db:"order_number"`
	SupplierID           int64           `json:"supplier_id" db:"supplier_id"`
	Status               POStatus        `json:"status" db:"status"`
	Notes                string          `json:"notes" db:"notes"`
	ExpectedDelivery     *time.Time      `json:"expected_delivery,omitempty" db:"expected_delivery"`
	TotalAmount          decimal.Decimal `json:"total_amount" db:"total_amount"`
	ReceivingWarehouseID *int64          `json:"receiving_warehouse_id,omitempty" db:"receiving_warehouse_id"`
	CreatedBy            string          `json:"created_by" db:"created_by"`
	ApprovedBy           *string         `json:"approved_by,omitempty" db:"approved_by"`
	ApprovedAt           *time.Time      `json:"approved_at,omitempty" db:"approved_at"`
	ReceivedAt           *time.Time      `json:"received_at,omitempty" db:"received_at"`
	CreatedAt            time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt            time.Time       `json:"updated_at" db:"updated_at"`
	Items                []POItem        `json:"items" db:"-"`
}

// ComputeTotal returns the sum of quantity x unit_price over all items
// 明細の数量×単価の合計を返す
func (po *PurchaseOrder) ComputeTotal() decimal.Decimal {
	total := decimal.Zero
	for _, item := range po.Items {
		total = total.Add(item.LineTotal())
	}
	return total
}

// Clone returns a deep copy of the order
func (po *PurchaseOrder) Clone() *PurchaseOrder {
	c := *po
	c.Items = append([]POItem(nil), po.Items...)
	return &c
}

// POItem represents a purchase order line
// 発注明細を表現
type POItem struct {
	ID               int64           `json:"id" db:"id"`
	PurchaseOrderID  int64           `json:"po_id" db:"po_id"`
	ProductID        int64           `json:"product_id" db:"product_id"`
	Quantity         int64           `json:"quantity" db:"quantity"`
	UnitPrice        decimal.Decimal `json:"unit_price" db:"unit_price"`
	ReceivedQuantity int64           `json:"received_quantity" db:"received_quantity"`
}

// LineTotal returns quantity x unit_price
func (i POItem) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(i.Quantity))
}

// POItemRequest is a requested purchase order line
type POItemRequest struct {
	ProductID int64            `json:"product_id"`
	Quantity  int64            `json:"quantity"`
	UnitPrice *decimal.Decimal `json:"unit_price,omitempty"` // 省略時は仕入単価
}

// PurchaseOrderRequest is the input to PurchaseOrderCoordinator.Create
// 発注書作成リクエスト
type PurchaseOrderRequest struct {
	SupplierID       int64           `json:"supplier_id"`
	Notes            string          `json:"notes,omitempty"`
	ExpectedDelivery *time.Time      `json:"expected_delivery,omitempty"`
	Items            []POItemRequest `json:"items"`
	Actor            string          `json:"actor,omitempty"`
}

// ReceiveRequest is the input to PurchaseOrderCoordinator.Receive
// 入荷リクエスト
type ReceiveRequest struct {
	Received    map[int64]int64 `json:"received"` // product_id -> 入荷数量
	WarehouseID *int64          `json:"warehouse_id,omitempty"`
	Actor       string          `json:"actor,omitempty"`
}

// OverReceipt describes a product received beyond the ordered quantity
// 発注数量を超えた入荷
type OverReceipt struct {
	ProductID int64 `json:"product_id"`
	Ordered   int64 `json:"ordered"`
	Received  int64 `json:"received"`
}

// ReceiveResult is returned by PurchaseOrderCoordinator.Receive
// 入荷処理の結果
type ReceiveResult struct {
	Order        *PurchaseOrder `json:"order"`
	Movements    []Movement     `json:"movements"`
	OverReceipts []OverReceipt  `json:"over_receipts,omitempty"`
}
