// Package advisory talks to the external demand and anomaly advisory service.
// Nothing here mutates inventory state directly.
package advisory

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nemonet1337/zaiWarehouse/pkg/inventory"
)

// ErrUnavailable is returned when the advisory service cannot be reached
// アドバイザリサービスに到達できない
var ErrUnavailable = errors.New("アドバイザリサービスが利用できません")

// StatusError is returned for a non-2xx response
type StatusError struct {
	Path       string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("アドバイザリサービスエラー %s: HTTP %d: %s", e.Path, e.StatusCode, e.Body)
}

// DailyMovement is one day of inbound and outbound quantity
type DailyMovement struct {
	Date        string `json:"date"`
	QuantityIn  int64  `json:"quantity_in"`
	QuantityOut int64  `json:"quantity_out"`
}

// MovementData is one ledger entry as seen by anomaly detection
type MovementData struct {
	ProductID    int64  `json:"product_id"`
	ProductName  string `json:"product_name"`
	Date         string `json:"date"`
	Quantity     int64  `json:"quantity"`
	MovementType string `json:"movement_type"` // IN or OUT
}

// ForecastRequest asks for a demand forecast
// 需要予測リクエスト
type ForecastRequest struct {
	ProductID      int64           `json:"product_id"`
	ProductName    string          `json:"product_name"`
	HistoricalData []DailyMovement `json:"historical_data"`
	ForecastDays   int             `json:"forecast_days"`
}

// DayPrediction is one forecast day
type DayPrediction struct {
	Date            string  `json:"date"`
	PredictedDemand float64 `json:"predicted_demand"`
	LowerBound      float64 `json:"lower_bound"`
	UpperBound      float64 `json:"upper_bound"`
}

// ForecastResponse is the demand forecast
// 需要予測レスポンス
type ForecastResponse struct {
	ProductID      int64           `json:"product_id"`
	ProductName    string          `json:"product_name"`
	Predictions    []DayPrediction `json:"predictions"`
	Confidence     float64         `json:"confidence"`
	Trend          string          `json:"trend"`
	Recommendation string          `json:"recommendation"`
}

// ReorderRequest asks for a reorder point and EOQ
// 発注点計算リクエスト
type ReorderRequest struct {
	ProductID       int64   `json:"product_id"`
	ProductName     string  `json:"product_name"`
	CurrentStock    int64   `json:"current_stock"`
	AvgDailyUsage   float64 `json:"avg_daily_usage"`
	LeadTimeDays    int     `json:"lead_time_days"`
	UnitCost        float64 `json:"unit_cost"`
	OrderingCost    float64 `json:"ordering_cost"`
	HoldingCostRate float64 `json:"holding_cost_rate"`
	ServiceLevel    float64 `json:"service_level"`
}

// ReorderResponse is the reorder recommendation
type ReorderResponse struct {
	ProductID         int64   `json:"product_id"`
	ProductName       string  `json:"product_name"`
	ReorderPoint      int64   `json:"reorder_point"`
	ReorderQuantity   int64   `json:"reorder_quantity"`
	SafetyStock       int64   `json:"safety_stock"`
	EstimatedCost     float64 `json:"estimated_cost"`
	DaysUntilStockout int     `json:"days_until_stockout"`
	Urgency           string  `json:"urgency"`
	Recommendation    string  `json:"recommendation"`
}

// AnomalyRequest carries movements to check
type AnomalyRequest struct {
	Movements []MovementData `json:"movements"`
}

// AnomalyDetail describes one detected anomaly
// 検出された異常
type AnomalyDetail struct {
	ProductID     int64   `json:"product_id"`
	ProductName   string  `json:"product_name"`
	AnomalyType   string  `json:"anomaly_type"` // spike, drop, pattern_break
	Description   string  `json:"description"`
	Score         float64 `json:"score"`
	Severity      string  `json:"severity"` // high, medium, low
	DetectedAt    string  `json:"detected_at"`
	ExpectedValue float64 `json:"expected_value"`
	ActualValue   float64 `json:"actual_value"`
}

// AnomalyResponse lists detected anomalies
type AnomalyResponse struct {
	Anomalies    []AnomalyDetail `json:"anomalies"`
	TotalChecked int             `json:"total_checked"`
	AnomalyCount int             `json:"anomaly_count"`
}

// InventoryContext is optional context for a natural-language query
type InventoryContext struct {
	TotalProducts    int                      `json:"total_products"`
	TotalWarehouses  int                      `json:"total_warehouses"`
	LowStockProducts []map[string]interface{} `json:"low_stock_products"`
	RecentMovements  []map[string]interface{} `json:"recent_movements"`
}

// QueryRequest is a natural-language question
type QueryRequest struct {
	Question         string            `json:"question"`
	Language         string            `json:"language"`
	InventoryContext *InventoryContext `json:"inventory_context,omitempty"`
}

// QueryResponse is the answer to a natural-language question
type QueryResponse struct {
	Question   string   `json:"question"`
	Answer     string   `json:"answer"`
	Confidence float64  `json:"confidence"`
	Sources    []string `json:"sources"`
	Language   string   `json:"language"`
}

// Client is a JSON-over-HTTP advisory client
// アドバイザリサービスのHTTPクライアント
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a client for baseURL with a per-request timeout
// 新しいアドバイザリクライアントを作成
func NewClient(baseURL string, timeout time.Duration, logger *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// Forecast requests a demand forecast
// 需要予測を取得
func (c *Client) Forecast(ctx context.Context, req ForecastRequest) (*ForecastResponse, error) {
	if req.ForecastDays <= 0 {
		req.ForecastDays = 30
	}
	var resp ForecastResponse
	if err := c.post(ctx, "/api/ai/forecast", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Reorder requests a reorder recommendation
// 発注推奨を取得
func (c *Client) Reorder(ctx context.Context, req ReorderRequest) (*ReorderResponse, error) {
	if req.OrderingCost <= 0 {
		req.OrderingCost = 50
	}
	if req.HoldingCostRate <= 0 {
		req.HoldingCostRate = 0.2
	}
	if req.ServiceLevel <= 0 {
		req.ServiceLevel = 0.95
	}
	var resp ReorderResponse
	if err := c.post(ctx, "/api/ai/reorder", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Anomaly runs anomaly detection over the given movements
// 異常検知を実行
func (c *Client) Anomaly(ctx context.Context, req AnomalyRequest) (*AnomalyResponse, error) {
	var resp AnomalyResponse
	if err := c.post(ctx, "/api/ai/anomaly", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Query asks a natural-language question
func (c *Client) Query(ctx context.Context, req QueryRequest) (*QueryResponse, error) {
	if req.Language == "" {
		req.Language = "ja"
	}
	var resp QueryResponse
	if err := c.post(ctx, "/api/ai/query", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Health checks the service health endpoint
func (c *Client) Health(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return &StatusError{Path: "/health", StatusCode: resp.StatusCode}
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("リクエストのエンコードに失敗しました: %w", err)
	}

	requestID := uuid.NewString()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Request-ID", requestID)

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.logger.Warn("アドバイザリサービス呼び出しに失敗しました",
			zap.String("path", path),
			zap.String("request_id", requestID),
			zap.Error(err),
		)
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{Path: path, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("レスポンスのデコードに失敗しました %s: %w", path, err)
	}

	c.logger.Debug("アドバイザリサービス呼び出し完了",
		zap.String("path", path),
		zap.String("request_id", requestID),
		zap.Duration("duration", time.Since(start)),
	)
	return nil
}

// DailyHistory folds ledger entries into per-day inbound and outbound totals, oldest first.
// Transfers do not change the product total and are left out.
// 台帳エントリを日別の入出庫合計に集計
func DailyHistory(movements []inventory.Movement) []DailyMovement {
	byDay := make(map[string]*DailyMovement)
	for _, m := range movements {
		in, out := split(m)
		if in == 0 && out == 0 {
			continue
		}
		day := m.CreatedAt.Format("2006-01-02")
		d, ok := byDay[day]
		if !ok {
			d = &DailyMovement{Date: day}
			byDay[day] = d
		}
		d.QuantityIn += in
		d.QuantityOut += out
	}

	history := make([]DailyMovement, 0, len(byDay))
	for _, d := range byDay {
		history = append(history, *d)
	}
	sort.Slice(history, func(i, j int) bool { return history[i].Date < history[j].Date })
	return history
}

// split returns the inbound and outbound quantity of one entry
func split(m inventory.Movement) (in, out int64) {
	effect := m.Effect()
	if effect > 0 {
		return effect, 0
	}
	return 0, -effect
}
