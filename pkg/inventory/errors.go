package inventory

import (
	"context"
	"errors"
	"fmt"
)

// Error kinds returned by the inventory core
// 在庫コアが返すエラー種別

var (
	// ErrNotFound is returned when a referenced entity doesn't exist
	// 参照先エンティティが存在しない場合のエラー
	ErrNotFound = errors.New("対象が見つかりません")

	// ErrProductNotFound is returned when a product doesn't exist or is inactive
	// 商品が存在しない、または無効な場合のエラー
	ErrProductNotFound = errors.New("商品が見つかりません")

	ErrWarehouseNotFound     = errors.New("倉庫が見つかりません")
	ErrSupplierNotFound      = errors.New("仕入先が見つかりません")
	ErrPurchaseOrderNotFound = errors.New("発注書が見つかりません")
	ErrAlertNotFound         = errors.New("アラートが見つかりません")
	ErrBalanceNotFound       = errors.New("在庫残高が見つかりません")

	// ErrWarehouseInactive is returned when a movement references a soft-deleted warehouse
	// 無効化された倉庫を参照した場合のエラー
	ErrWarehouseInactive = errors.New("倉庫は無効化されています")

	// ErrInvalidQuantity is returned for a quantity outside the allowed range
	// 数量が許容範囲外の場合のエラー
	ErrInvalidQuantity = errors.New("数量が不正です")

	// ErrInvalidMovement is returned when a movement request has the wrong shape for its type
	// 移動種別に対してリクエストの形が不正な場合のエラー
	ErrInvalidMovement = errors.New("在庫移動リクエストが不正です")

	// ErrInvalidRequest is returned when a request field other than a quantity is malformed
	// 数量以外のリクエスト項目が不正な場合のエラー
	ErrInvalidRequest = errors.New("リクエストが不正です")

	// ErrInvalidTransfer is returned when a transfer lacks a source or destination, or they are equal
	// 移動元・移動先が欠けている、または同一の場合のエラー
	ErrInvalidTransfer = errors.New("倉庫間移動の指定が不正です")

	// ErrInvalidTransition is returned when a purchase order state change is not allowed
	// 発注書の状態遷移が許可されていない場合のエラー
	ErrInvalidTransition = errors.New("許可されていない状態遷移です")

	// ErrInsufficientStock is returned when there's not enough stock
	// 在庫不足の場合のエラー
	ErrInsufficientStock = errors.New("在庫が不足しています")

	// ErrDuplicateReference is returned when a movement with the same reference was already recorded
	// 同一参照番号の在庫移動が既に記録されている場合のエラー
	ErrDuplicateReference = errors.New("参照番号が重複しています")

	// ErrDuplicateAlert is returned by stores when an open threshold alert already exists
	// 未解決の閾値アラートが既に存在する場合のストアエラー
	ErrDuplicateAlert = errors.New("未解決のアラートが既に存在します")

	// ErrAlreadyResolved is returned when resolving an alert twice
	// 解決済みアラートを再度解決しようとした場合のエラー
	ErrAlreadyResolved = errors.New("アラートは既に解決済みです")

	// ErrLockTimeout is returned when a row lock could not be acquired in time
	// 行ロックを時間内に取得できなかった場合のエラー
	ErrLockTimeout = errors.New("ロック待機がタイムアウトしました")

	// ErrDeadlock is returned for deadlocks and serialization failures
	// デッドロックまたは直列化失敗のエラー
	ErrDeadlock = errors.New("デッドロックまたは直列化エラーが発生しました")

	// ErrStoreUnavailable is returned when the backing store cannot be reached
	// ストアに接続できない場合のエラー
	ErrStoreUnavailable = errors.New("ストアが利用できません")

	// ErrCancelled is returned when an operation was cancelled before commit
	// コミット前に操作がキャンセルされた場合のエラー
	ErrCancelled = errors.New("操作がキャンセルされました")
)

// Entity names used in NotFoundError
const (
	EntityProduct       = "product"
	EntityWarehouse     = "warehouse"
	EntitySupplier      = "supplier"
	EntityPurchaseOrder = "purchase_order"
	EntityPOItem        = "purchase_order_item"
	EntityAlert         = "alert"
	EntityBalance       = "balance"
)

var entitySentinels = map[string]error{
	EntityProduct:       ErrProductNotFound,
	EntityWarehouse:     ErrWarehouseNotFound,
	EntitySupplier:      ErrSupplierNotFound,
	EntityPurchaseOrder: ErrPurchaseOrderNotFound,
	EntityAlert:         ErrAlertNotFound,
	EntityBalance:       ErrBalanceNotFound,
}

// NotFoundError represents a missing entity
// 存在しないエンティティを表現
type NotFoundError struct {
	Entity string `json:"entity"` // エンティティ名
	ID     int64  `json:"id"`     // ID
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s が見つかりません (id: %d)", e.Entity, e.ID)
}

// Unwrap matches both ErrNotFound and the entity-specific sentinel
func (e *NotFoundError) Unwrap() []error {
	if sentinel, ok := entitySentinels[e.Entity]; ok {
		return []error{ErrNotFound, sentinel}
	}
	return []error{ErrNotFound}
}

// InsufficientStockError carries the context of a failed withdrawal
// 在庫不足の詳細を保持
type InsufficientStockError struct {
	ProductID   int64  `json:"product_id"`
	ProductName string `json:"product_name"`
	WarehouseID int64  `json:"warehouse_id"`
	Available   int64  `json:"available"`
	Requested   int64  `json:"requested"`
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("在庫が不足しています [%s]: 利用可能 %d, 要求 %d (倉庫: %d)",
		e.ProductName, e.Available, e.Requested, e.WarehouseID)
}

func (e *InsufficientStockError) Unwrap() error {
	return ErrInsufficientStock
}

// InvalidTransitionError describes a rejected purchase order state change
// 拒否された発注書の状態遷移を表現
type InvalidTransitionError struct {
	OrderNumber string   `json:"order_number"`
	From        POStatus `json:"from"`
	To          POStatus `json:"to"`
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("発注書 %s は %s から %s へ遷移できません", e.OrderNumber, e.From, e.To)
}

func (e *InvalidTransitionError) Unwrap() error {
	return ErrInvalidTransition
}

// ValidationError represents a validation error with details
// 詳細付きバリデーションエラーを表現
type ValidationError struct {
	Field   string `json:"field"`   // エラーフィールド
	Message string `json:"message"` // エラーメッセージ
	Value   string `json:"value"`   // 無効な値
	Kind    error  `json:"-"`       // エラー種別
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("バリデーションエラー [%s]: %s (値: %s)", e.Field, e.Message, e.Value)
}

func (e *ValidationError) Unwrap() error {
	return e.Kind
}

// StorageError represents a storage layer error
// ストレージ層のエラーを表現
type StorageError struct {
	Operation string `json:"operation"` // 操作名
	Message   string `json:"message"`   // エラーメッセージ
	Cause     error  `json:"cause"`     // 原因エラー
}

func (e *StorageError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("ストレージエラー [%s]: %s (原因: %v)", e.Operation, e.Message, e.Cause)
	}
	return fmt.Sprintf("ストレージエラー [%s]: %s", e.Operation, e.Message)
}

func (e *StorageError) Unwrap() error {
	return e.Cause
}

// NewNotFoundError creates a new not-found error
// 新しいNotFoundエラーを作成
func NewNotFoundError(entity string, id int64) *NotFoundError {
	return &NotFoundError{Entity: entity, ID: id}
}

// NewValidationError creates a new validation error of the given kind
// 新しいバリデーションエラーを作成
func NewValidationError(kind error, field, message, value string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
		Value:   value,
		Kind:    kind,
	}
}

// NewStorageError creates a new storage error
// 新しいストレージエラーを作成
func NewStorageError(operation, message string, cause error) *StorageError {
	return &StorageError{
		Operation: operation,
		Message:   message,
		Cause:     cause,
	}
}

// NewCancelledError wraps a context error as ErrCancelled
// コンテキストのエラーをErrCancelledとして包む
func NewCancelledError(operation string, cause error) *StorageError {
	return NewStorageError(operation, "コミット前にキャンセルされました", fmt.Errorf("%w: %v", ErrCancelled, cause))
}

// IsRetryable reports whether err is a transient store failure worth retrying
// 再試行すべき一時的なストア障害かどうかを返す
func IsRetryable(err error) bool {
	return errors.Is(err, ErrLockTimeout) ||
		errors.Is(err, ErrDeadlock) ||
		errors.Is(err, ErrStoreUnavailable)
}

// asCancelled converts context expiry into ErrCancelled and leaves other errors alone
func asCancelled(operation string, err error) error {
	if err == nil || errors.Is(err, ErrCancelled) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return NewCancelledError(operation, err)
	}
	return err
}

// ErrorKind returns a stable label for err, used for metrics and API responses
// メトリクスとAPIレスポンス用のエラー種別ラベルを返す
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrCancelled):
		return "cancelled"
	case errors.Is(err, ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, ErrDuplicateReference):
		return "duplicate_reference"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidQuantity):
		return "invalid_quantity"
	case errors.Is(err, ErrInvalidTransfer):
		return "invalid_transfer"
	case errors.Is(err, ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, ErrInvalidMovement), errors.Is(err, ErrInvalidRequest), errors.Is(err, ErrWarehouseInactive):
		return "invalid_request"
	case errors.Is(err, ErrAlreadyResolved):
		return "already_resolved"
	case errors.Is(err, ErrLockTimeout):
		return "lock_timeout"
	case errors.Is(err, ErrDeadlock):
		return "deadlock"
	case errors.Is(err, ErrStoreUnavailable):
		return "store_unavailable"
	}
	var verr *ValidationError
	if errors.As(err, &verr) {
		return "invalid_request"
	}
	return "internal"
}
