package inventory

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/shopspring/decimal"
)

const (
	maxReferenceLength = 255
	maxReasonLength    = 500
	maxNotesLength     = 1000
)

// ValidateMovementRequest 在庫移動リクエストの形をバリデーション（ロック取得前）
func ValidateMovementRequest(req MovementRequest) error {
	if !req.Type.Valid() {
		return NewValidationError(ErrInvalidMovement, "type", "不明な移動種別です", string(req.Type))
	}

	if err := validateMovementQuantity(req.Type, req.Quantity); err != nil {
		return err
	}

	switch req.Type {
	case MovementTypeIn:
		if req.ToWarehouseID == nil || req.FromWarehouseID != nil {
			return NewValidationError(ErrInvalidMovement, "to_warehouse_id", "入庫には移動先倉庫のみを指定してください", warehousePair(req))
		}
	case MovementTypeOut:
		if req.FromWarehouseID == nil || req.ToWarehouseID != nil {
			return NewValidationError(ErrInvalidMovement, "from_warehouse_id", "出庫には移動元倉庫のみを指定してください", warehousePair(req))
		}
	case MovementTypeTransfer:
		if req.FromWarehouseID == nil || req.ToWarehouseID == nil {
			return NewValidationError(ErrInvalidTransfer, "warehouse_id", "倉庫間移動には移動元と移動先の両方が必要です", warehousePair(req))
		}
		if *req.FromWarehouseID == *req.ToWarehouseID {
			return NewValidationError(ErrInvalidTransfer, "to_warehouse_id", "移動元と移動先が同じ倉庫です", warehousePair(req))
		}
	case MovementTypeAdjustment:
		if (req.FromWarehouseID == nil) == (req.ToWarehouseID == nil) {
			return NewValidationError(ErrInvalidMovement, "warehouse_id", "調整には倉庫を1つだけ指定してください", warehousePair(req))
		}
	}

	if err := ValidateReference(req.Reference); err != nil {
		return err
	}
	if len(req.Reason) > maxReasonLength {
		return NewValidationError(ErrInvalidMovement, "reason", "理由が長すぎます", req.Reason)
	}
	return nil
}

// validateMovementQuantity 調整は0以上、それ以外は1以上
func validateMovementQuantity(t MovementType, quantity int64) error {
	if t == MovementTypeAdjustment {
		if quantity < 0 {
			return NewValidationError(ErrInvalidQuantity, "quantity", "調整後の数量は0以上である必要があります", fmt.Sprintf("%d", quantity))
		}
		return nil
	}
	if quantity < 1 {
		return NewValidationError(ErrInvalidQuantity, "quantity", "数量は1以上である必要があります", fmt.Sprintf("%d", quantity))
	}
	return nil
}

// ValidateReference 参照番号をバリデーション
func ValidateReference(reference string) error {
	if len(reference) > maxReferenceLength {
		return NewValidationError(ErrInvalidMovement, "reference", "参照番号が長すぎます", reference)
	}
	if strings.TrimSpace(reference) != reference {
		return NewValidationError(ErrInvalidMovement, "reference", "参照番号の前後に空白は使用できません", reference)
	}
	return nil
}

// ValidateProductLevels 最小在庫 ≤ 発注点 ≤ 最大在庫 をバリデーション
func ValidateProductLevels(p *Product) error {
	levels := []struct {
		name  string
		value *int64
	}{
		{"min_stock_level", p.MinStockLevel},
		{"reorder_point", p.ReorderPoint},
		{"max_stock_level", p.MaxStockLevel},
	}
	for _, l := range levels {
		if l.value != nil && *l.value < 0 {
			return NewValidationError(ErrInvalidQuantity, l.name, "在庫レベルは0以上である必要があります", fmt.Sprintf("%d", *l.value))
		}
	}
	if p.MinStockLevel != nil && p.ReorderPoint != nil && *p.MinStockLevel > *p.ReorderPoint {
		return NewValidationError(ErrInvalidQuantity, "reorder_point", "発注点は最小在庫以上である必要があります", fmt.Sprintf("%d", *p.ReorderPoint))
	}
	if p.ReorderPoint != nil && p.MaxStockLevel != nil && *p.ReorderPoint > *p.MaxStockLevel {
		return NewValidationError(ErrInvalidQuantity, "max_stock_level", "最大在庫は発注点以上である必要があります", fmt.Sprintf("%d", *p.MaxStockLevel))
	}
	if p.MinStockLevel != nil && p.MaxStockLevel != nil && *p.MinStockLevel > *p.MaxStockLevel {
		return NewValidationError(ErrInvalidQuantity, "max_stock_level", "最大在庫は最小在庫以上である必要があります", fmt.Sprintf("%d", *p.MaxStockLevel))
	}
	return nil
}

// Validate 発注明細をバリデーション
func (i POItemRequest) Validate() error {
	return validation.ValidateStruct(&i,
		validation.Field(&i.ProductID, validation.Required),
		validation.Field(&i.Quantity, validation.Required, validation.Min(int64(1))),
		validation.Field(&i.UnitPrice, validation.By(nonNegativeDecimal)),
	)
}

// Validate 発注書作成リクエストをバリデーション
func (r PurchaseOrderRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Notes, validation.Length(0, maxNotesLength)),
		validation.Field(&r.Items),
	)
}

// Validate アラート作成リクエストをバリデーション
func (r CreateAlertRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Type, validation.Required,
			validation.In(AlertTypeLowStock, AlertTypeOverstock, AlertTypeAnomaly)),
		validation.Field(&r.Severity, validation.Required,
			validation.In(SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical)),
		validation.Field(&r.Message, validation.Required, validation.Length(1, maxNotesLength)),
		validation.Field(&r.ProductID, validation.When(r.Type.IsThreshold(), validation.Required)),
	)
}

func nonNegativeDecimal(value interface{}) error {
	switch v := value.(type) {
	case *decimal.Decimal:
		if v != nil && v.IsNegative() {
			return errors.New("must not be negative")
		}
	case decimal.Decimal:
		if v.IsNegative() {
			return errors.New("must not be negative")
		}
	}
	return nil
}

// toValidationError ozzoのエラーを在庫バリデーションエラーへ変換する。
// quantity項目の違反はErrInvalidQuantity、それ以外はkindになる
func toValidationError(kind error, err error) error {
	if err == nil {
		return nil
	}
	var errs validation.Errors
	if !errors.As(err, &errs) || len(errs) == 0 {
		return NewValidationError(kind, "request", err.Error(), "")
	}
	field, cause := firstFieldError("", errs)
	if field == "quantity" || strings.HasSuffix(field, ".quantity") {
		kind = ErrInvalidQuantity
	}
	return NewValidationError(kind, field, cause.Error(), "")
}

// firstFieldError returns the first failing field in key order, with nested paths joined by dots
func firstFieldError(prefix string, errs validation.Errors) (string, error) {
	fields := make([]string, 0, len(errs))
	for field := range errs {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	path := fields[0]
	if prefix != "" {
		path = prefix + "." + path
	}
	var nested validation.Errors
	if errors.As(errs[fields[0]], &nested) && len(nested) > 0 {
		return firstFieldError(path, nested)
	}
	return path, errs[fields[0]]
}

func warehousePair(req MovementRequest) string {
	return fmt.Sprintf("from=%s to=%s", formatID(req.FromWarehouseID), formatID(req.ToWarehouseID))
}

func formatID(id *int64) string {
	if id == nil {
		return "nil"
	}
	return fmt.Sprintf("%d", *id)
}
