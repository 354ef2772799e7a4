package inventory

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// TotalValue returns Σ balance.quantity × product.unit_price over all warehouses
// 全倉庫の在庫金額（数量×販売単価）の合計を返す
func (q *InventoryQuery) TotalValue(ctx context.Context) (decimal.Decimal, error) {
	products, err := q.index.productsByID(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	totals, err := q.store.StockTotals(ctx)
	if err != nil {
		return decimal.Zero, err
	}

	value := decimal.Zero
	for productID, qty := range totals {
		p, ok := products[productID]
		if !ok {
			continue
		}
		value = value.Add(p.UnitPrice.Mul(decimal.NewFromInt(qty)))
	}
	return value, nil
}

// WarehouseValue returns the stock value held at one warehouse
// 倉庫単位の在庫金額を返す
func (q *InventoryQuery) WarehouseValue(ctx context.Context, warehouseID int64) (decimal.Decimal, error) {
	lines, err := q.index.PerWarehouse(ctx, warehouseID)
	if err != nil {
		return decimal.Zero, err
	}
	value := decimal.Zero
	for _, line := range lines {
		value = value.Add(line.Product.UnitPrice.Mul(decimal.NewFromInt(line.Quantity)))
	}
	return value, nil
}

// demandVariability is the assumed coefficient of variation of daily demand
const demandVariability = 0.25

// 発注点が未設定の商品に使う需要計算の前提
const (
	demandWindowDays    = 30
	defaultLeadTimeDays = 7
	defaultServiceLevel = 0.95
)

// ZScore returns the approximate Z value for a service level (0.0 - 1.0)
// サービスレベルに対するZ値の近似を返す
func ZScore(serviceLevel float64) float64 {
	switch {
	case serviceLevel >= 0.99:
		return 2.33
	case serviceLevel >= 0.975:
		return 1.96
	case serviceLevel >= 0.95:
		return 1.65
	case serviceLevel >= 0.90:
		return 1.28
	case serviceLevel >= 0.85:
		return 1.04
	case serviceLevel >= 0.80:
		return 0.84
	}
	return 0.67
}

// SafetyStock returns Z × (0.25 × avgDailyDemand) × √leadTimeDays
// 安全在庫を計算
func SafetyStock(avgDailyDemand float64, leadTimeDays int, serviceLevel float64) float64 {
	return ZScore(serviceLevel) * avgDailyDemand * demandVariability * math.Sqrt(float64(leadTimeDays))
}

// ReorderPoint returns avgDailyDemand × leadTimeDays + safetyStock
// 発注点を計算
func ReorderPoint(avgDailyDemand float64, leadTimeDays int, safetyStock float64) float64 {
	return avgDailyDemand*float64(leadTimeDays) + safetyStock
}

// EOQ returns the economic order quantity √(2DS/H)
// 経済的発注量を計算
func EOQ(annualDemand, orderCost, holdingCost float64) (float64, error) {
	if holdingCost <= 0 {
		return 0, NewValidationError(ErrInvalidRequest, "holding_cost", "保管コストは0より大きい必要があります", "")
	}
	return math.Sqrt(2 * annualDemand * orderCost / holdingCost), nil
}

// ReorderSuggestion is a rule-based replenishment proposal
// ルールベースの補充提案
type ReorderSuggestion struct {
	ProductID         int64           `json:"product_id"`
	ProductName       string          `json:"product_name"`
	CurrentStock      int64           `json:"current_stock"`
	ReorderPoint      int64           `json:"reorder_point"`
	ReorderQuantity   int64           `json:"reorder_quantity"`
	EstimatedCost     decimal.Decimal `json:"estimated_cost"`
	Urgency           Severity        `json:"urgency"`
	DaysUntilStockout int             `json:"days_until_stockout"`
}

// ReorderSuggestions proposes replenishment for every low-stock product.
// Products without a reorder point get one from recent OUT demand.
// It needs no external service and serves as the advisory fallback.
// 低在庫商品の補充提案を返す（外部サービス不要）
func (q *InventoryQuery) ReorderSuggestions(ctx context.Context) ([]ReorderSuggestion, error) {
	low, err := q.index.LowStockProducts(ctx)
	if err != nil {
		return nil, err
	}

	suggestions := make([]ReorderSuggestion, 0, len(low))
	for _, line := range low {
		p := line.Product
		stock := line.Quantity

		var reorderPoint int64
		if p.ReorderPoint != nil {
			reorderPoint = *p.ReorderPoint
		} else {
			avg, err := q.averageDailyUsage(ctx, p.ID)
			if err != nil {
				return nil, err
			}
			safety := SafetyStock(avg, defaultLeadTimeDays, defaultServiceLevel)
			reorderPoint = int64(math.Ceil(ReorderPoint(avg, defaultLeadTimeDays, safety)))
		}
		maxLevel := reorderPoint * 3
		if p.MaxStockLevel != nil {
			maxLevel = *p.MaxStockLevel
		}
		qty := maxLevel - stock
		if qty < 0 {
			qty = 0
		}

		urgency, days := SeverityMedium, 7
		switch {
		case stock == 0:
			urgency, days = SeverityCritical, 0
		case stock <= reorderPoint/2:
			urgency, days = SeverityHigh, 3
		}

		suggestions = append(suggestions, ReorderSuggestion{
			ProductID:         p.ID,
			ProductName:       p.Name,
			CurrentStock:      stock,
			ReorderPoint:      reorderPoint,
			ReorderQuantity:   qty,
			EstimatedCost:     p.CostPrice.Mul(decimal.NewFromInt(qty)),
			Urgency:           urgency,
			DaysUntilStockout: days,
		})
	}
	sort.SliceStable(suggestions, func(i, j int) bool {
		return suggestions[i].DaysUntilStockout < suggestions[j].DaysUntilStockout
	})
	return suggestions, nil
}

// averageDailyUsage returns the mean daily OUT quantity over the demand window
func (q *InventoryQuery) averageDailyUsage(ctx context.Context, productID int64) (float64, error) {
	movements, err := q.store.MovementsByProduct(ctx, productID)
	if err != nil {
		return 0, err
	}
	since := time.Now().AddDate(0, 0, -demandWindowDays)
	var out int64
	for _, m := range movements {
		if m.Type == MovementTypeOut && m.CreatedAt.After(since) {
			out += m.Quantity
		}
	}
	return float64(out) / demandWindowDays, nil
}
