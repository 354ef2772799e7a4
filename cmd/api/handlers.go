package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/nemonet1337/zaiWarehouse/internal/advisory"
	"github.com/nemonet1337/zaiWarehouse/pkg/inventory"
)

const defaultForecastDays = 30

// Handlers holds HTTP handlers for the inventory API
// 在庫API用のHTTPハンドラーを保持
type Handlers struct {
	store    inventory.Store
	engine   *inventory.MovementEngine
	orders   *inventory.PurchaseOrderCoordinator
	alerts   *inventory.AlertEngine
	query    *inventory.InventoryQuery
	advisory *advisory.Client  // nilの場合はアドバイザリ無効
	sweeper  *advisory.Sweeper // nilの場合はアドバイザリ無効
	logger   *zap.Logger
}

// NewHandlers creates new HTTP handlers
// 新しいHTTPハンドラーを作成
func NewHandlers(store inventory.Store, engine *inventory.MovementEngine, orders *inventory.PurchaseOrderCoordinator,
	alerts *inventory.AlertEngine, query *inventory.InventoryQuery, logger *zap.Logger) *Handlers {
	return &Handlers{
		store:  store,
		engine: engine,
		orders: orders,
		alerts: alerts,
		query:  query,
		logger: logger,
	}
}

// WithAdvisory enables the advisory endpoints
func (h *Handlers) WithAdvisory(client *advisory.Client, sweeper *advisory.Sweeper) *Handlers {
	h.advisory = client
	h.sweeper = sweeper
	return h
}

// APIResponse represents standard API response format
// 標準的なAPIレスポンス形式を表現
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Code    string      `json:"code,omitempty"` // エラー種別
}

// ResolveAlertRequest represents request to resolve an alert
type ResolveAlertRequest struct {
	ResolvedBy string `json:"resolved_by"`
}

// ApproveRequest represents request to approve a purchase order
type ApproveRequest struct {
	ApprovedBy string `json:"approved_by"`
}

// HealthCheck handles health check requests
// ヘルスチェックリクエストを処理
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status, code := "healthy", http.StatusOK
	if err := h.store.Ping(ctx); err != nil {
		h.logger.Warn("ヘルスチェックでストアに接続できません", zap.Error(err))
		status, code = "unhealthy", http.StatusServiceUnavailable
	}
	h.send(w, code, APIResponse{
		Success: code == http.StatusOK,
		Data: map[string]interface{}{
			"status":    status,
			"timestamp": time.Now(),
			"service":   "zaiWarehouse",
		},
	})
}

// RecordMovement handles IN, OUT, TRANSFER and ADJUSTMENT requests
// 在庫移動リクエストを処理
func (h *Handlers) RecordMovement(w http.ResponseWriter, r *http.Request) {
	var req inventory.MovementRequest
	if !h.decode(w, r, &req) {
		return
	}
	movement, err := h.engine.Process(r.Context(), req)
	if err != nil {
		h.sendError(w, err)
		return
	}
	h.sendCreated(w, movement)
}

// RecentMovements handles recent ledger requests
// 最近の在庫移動を返す
func (h *Handlers) RecentMovements(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 0)
	movements, err := h.query.MovementsRecent(r.Context(), limit)
	if err != nil {
		h.sendError(w, err)
		return
	}
	h.sendSuccess(w, movements)
}

// MovementsBetween handles ledger range requests (RFC3339 from/to)
// 期間指定の在庫移動を返す
func (h *Handlers) MovementsBetween(w http.ResponseWriter, r *http.Request) {
	from, to, ok := h.timeRange(w, r)
	if !ok {
		return
	}
	movements, err := h.query.MovementsBetween(r.Context(), from, to)
	if err != nil {
		h.sendError(w, err)
		return
	}
	h.sendSuccess(w, movements)
}

// MovementSummary handles per-type movement counts for a range (RFC3339 from/to)
// 期間内の在庫移動件数を種別ごとに返す
func (h *Handlers) MovementSummary(w http.ResponseWriter, r *http.Request) {
	from, to, ok := h.timeRange(w, r)
	if !ok {
		return
	}
	summary, err := h.query.MovementSummary(r.Context(), from, to)
	if err != nil {
		h.sendError(w, err)
		return
	}
	h.sendSuccess(w, summary)
}

func (h *Handlers) timeRange(w http.ResponseWriter, r *http.Request) (time.Time, time.Time, bool) {
	from, err := time.Parse(time.RFC3339, r.URL.Query().Get("from"))
	if err != nil {
		h.sendError(w, inventory.NewValidationError(inventory.ErrInvalidRequest, "from", "RFC3339形式で指定してください", r.URL.Query().Get("from")))
		return time.Time{}, time.Time{}, false
	}
	to, err := time.Parse(time.RFC3339, r.URL.Query().Get("to"))
	if err != nil {
		h.sendError(w, inventory.NewValidationError(inventory.ErrInvalidRequest, "to", "RFC3339形式で指定してください", r.URL.Query().Get("to")))
		return time.Time{}, time.Time{}, false
	}
	return from, to, true
}

// ProductMovements handles product history requests
// 商品の在庫移動履歴を返す
func (h *Handlers) ProductMovements(w http.ResponseWriter, r *http.Request) {
	productID, ok := h.pathID(w, r, "productId")
	if !ok {
		return
	}
	movements, err := h.query.MovementsByProduct(r.Context(), productID)
	if err != nil {
		h.sendError(w, err)
		return
	}
	h.sendSuccess(w, movements)
}

// ProductTotal handles total stock requests
// 商品の合計在庫を返す
func (h *Handlers) ProductTotal(w http.ResponseWriter, r *http.Request) {
	productID, ok := h.pathID(w, r, "productId")
	if !ok {
		return
	}
	total, err := h.query.TotalByProduct(r.Context(), productID)
	if err != nil {
		h.sendError(w, err)
		return
	}
	h.sendSuccess(w, map[string]int64{
		"product_id":     productID,
		"total_quantity": total,
	})
}

// WarehouseStock handles per-warehouse stock requests
// 倉庫別在庫を返す
func (h *Handlers) WarehouseStock(w http.ResponseWriter, r *http.Request) {
	warehouseID, ok := h.pathID(w, r, "warehouseId")
	if !ok {
		return
	}
	lines, err := h.query.StockByWarehouse(r.Context(), warehouseID)
	if err != nil {
		h.sendError(w, err)
		return
	}
	h.sendSuccess(w, lines)
}

// WarehouseValue handles per-warehouse valuation requests
func (h *Handlers) WarehouseValue(w http.ResponseWriter, r *http.Request) {
	warehouseID, ok := h.pathID(w, r, "warehouseId")
	if !ok {
		return
	}
	value, err := h.query.WarehouseValue(r.Context(), warehouseID)
	if err != nil {
		h.sendError(w, err)
		return
	}
	h.sendSuccess(w, map[string]interface{}{
		"warehouse_id": warehouseID,
		"value":        value,
	})
}

// TotalValue handles total valuation requests
func (h *Handlers) TotalValue(w http.ResponseWriter, r *http.Request) {
	value, err := h.query.TotalValue(r.Context())
	if err != nil {
		h.sendError(w, err)
		return
	}
	h.sendSuccess(w, map[string]interface{}{"value": value})
}

// LowStock handles low stock requests
// 低在庫商品を返す
func (h *Handlers) LowStock(w http.ResponseWriter, r *http.Request) {
	lines, err := h.query.LowStock(r.Context())
	if err != nil {
		h.sendError(w, err)
		return
	}
	h.sendSuccess(w, lines)
}

// OverStock handles overstock requests
func (h *Handlers) OverStock(w http.ResponseWriter, r *http.Request) {
	lines, err := h.query.OverStock(r.Context())
	if err != nil {
		h.sendError(w, err)
		return
	}
	h.sendSuccess(w, lines)
}

// ReorderSuggestions handles rule-based replenishment requests
// 補充提案を返す
func (h *Handlers) ReorderSuggestions(w http.ResponseWriter, r *http.Request) {
	suggestions, err := h.query.ReorderSuggestions(r.Context())
	if err != nil {
		h.sendError(w, err)
		return
	}
	h.sendSuccess(w, suggestions)
}

// CreatePurchaseOrder handles purchase order creation
// 発注書を作成
func (h *Handlers) CreatePurchaseOrder(w http.ResponseWriter, r *http.Request) {
	var req inventory.PurchaseOrderRequest
	if !h.decode(w, r, &req) {
		return
	}
	po, err := h.orders.Create(r.Context(), req)
	if err != nil {
		h.sendError(w, err)
		return
	}
	h.sendCreated(w, po)
}

// ListPurchaseOrders handles purchase order listing, optionally by ?status=
func (h *Handlers) ListPurchaseOrders(w http.ResponseWriter, r *http.Request) {
	var status *inventory.POStatus
	if s := r.URL.Query().Get("status"); s != "" {
		st := inventory.POStatus(s)
		status = &st
	}
	orders, err := h.orders.List(r.Context(), status)
	if err != nil {
		h.sendError(w, err)
		return
	}
	h.sendSuccess(w, orders)
}

// CountPendingPurchaseOrders handles the pending approval count
func (h *Handlers) CountPendingPurchaseOrders(w http.ResponseWriter, r *http.Request) {
	count, err := h.orders.CountPending(r.Context())
	if err != nil {
		h.sendError(w, err)
		return
	}
	h.sendSuccess(w, map[string]int64{"pending": count})
}

// GetPurchaseOrder handles purchase order lookup
func (h *Handlers) GetPurchaseOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "orderId")
	if !ok {
		return
	}
	po, err := h.orders.Get(r.Context(), id)
	if err != nil {
		h.sendError(w, err)
		return
	}
	h.sendSuccess(w, po)
}

// ApprovePurchaseOrder handles purchase order approval
// 発注書を承認
func (h *Handlers) ApprovePurchaseOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "orderId")
	if !ok {
		return
	}
	var req ApproveRequest
	if r.ContentLength > 0 && !h.decode(w, r, &req) {
		return
	}
	po, err := h.orders.Approve(r.Context(), id, req.ApprovedBy)
	if err != nil {
		h.sendError(w, err)
		return
	}
	h.sendSuccess(w, po)
}

// ReceivePurchaseOrder handles goods receipt
// 発注書の入荷を処理
func (h *Handlers) ReceivePurchaseOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "orderId")
	if !ok {
		return
	}
	var req inventory.ReceiveRequest
	if !h.decode(w, r, &req) {
		return
	}
	result, err := h.orders.Receive(r.Context(), id, req)
	if err != nil {
		h.sendError(w, err)
		return
	}
	h.sendSuccess(w, result)
}

// CancelPurchaseOrder handles purchase order cancellation
func (h *Handlers) CancelPurchaseOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "orderId")
	if !ok {
		return
	}
	po, err := h.orders.Cancel(r.Context(), id)
	if err != nil {
		h.sendError(w, err)
		return
	}
	h.sendSuccess(w, po)
}

// ListAlerts handles unresolved alert listing
// 未解決アラートを返す
func (h *Handlers) ListAlerts(w http.ResponseWriter, r *http.Request) {
	alerts, err := h.alerts.ListUnresolved(r.Context())
	if err != nil {
		h.sendError(w, err)
		return
	}
	h.sendSuccess(w, alerts)
}

// CountAlerts handles the unresolved alert count
func (h *Handlers) CountAlerts(w http.ResponseWriter, r *http.Request) {
	count, err := h.alerts.CountUnresolved(r.Context())
	if err != nil {
		h.sendError(w, err)
		return
	}
	h.sendSuccess(w, map[string]int64{"unresolved": count})
}

// RecentAlerts handles recent alert listing
func (h *Handlers) RecentAlerts(w http.ResponseWriter, r *http.Request) {
	alerts, err := h.alerts.RecentAlerts(r.Context(), queryInt(r, "limit", 0))
	if err != nil {
		h.sendError(w, err)
		return
	}
	h.sendSuccess(w, alerts)
}

// CreateAlert handles manual alert creation
func (h *Handlers) CreateAlert(w http.ResponseWriter, r *http.Request) {
	var req inventory.CreateAlertRequest
	if !h.decode(w, r, &req) {
		return
	}
	alert, err := h.alerts.CreateAlert(r.Context(), req)
	if err != nil {
		h.sendError(w, err)
		return
	}
	h.sendCreated(w, alert)
}

// ResolveAlert handles resolve alert requests
// アラート解決リクエストを処理
func (h *Handlers) ResolveAlert(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "alertId")
	if !ok {
		return
	}
	var req ResolveAlertRequest
	if r.ContentLength > 0 && !h.decode(w, r, &req) {
		return
	}
	alert, err := h.alerts.Resolve(r.Context(), id, req.ResolvedBy)
	if err != nil {
		h.sendError(w, err)
		return
	}
	h.sendSuccess(w, alert)
}

// Forecast asks the advisory service for a demand forecast of one product
// 需要予測をアドバイザリサービスに問い合わせる
func (h *Handlers) Forecast(w http.ResponseWriter, r *http.Request) {
	if h.advisory == nil {
		h.sendStatus(w, http.StatusServiceUnavailable, "advisory_disabled", "アドバイザリサービスは設定されていません")
		return
	}
	productID, ok := h.pathID(w, r, "productId")
	if !ok {
		return
	}
	product, err := h.store.GetProduct(r.Context(), productID)
	if err != nil {
		h.sendError(w, err)
		return
	}
	movements, err := h.query.MovementsByProduct(r.Context(), productID)
	if err != nil {
		h.sendError(w, err)
		return
	}

	forecast, err := h.advisory.Forecast(r.Context(), advisory.ForecastRequest{
		ProductID:      product.ID,
		ProductName:    product.Name,
		HistoricalData: advisory.DailyHistory(movements),
		ForecastDays:   queryInt(r, "days", defaultForecastDays),
	})
	if err != nil {
		h.sendAdvisoryError(w, err)
		return
	}
	h.sendSuccess(w, forecast)
}

// AnomalySweep runs one anomaly sweep on demand
// 異常検知スイープを即時実行
func (h *Handlers) AnomalySweep(w http.ResponseWriter, r *http.Request) {
	if h.sweeper == nil {
		h.sendStatus(w, http.StatusServiceUnavailable, "advisory_disabled", "アドバイザリサービスは設定されていません")
		return
	}
	created, err := h.sweeper.Run(r.Context())
	if err != nil {
		h.sendAdvisoryError(w, err)
		return
	}
	h.sendSuccess(w, map[string]int{"alerts_created": created})
}

// ヘルパーメソッド

func (h *Handlers) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		h.sendStatus(w, http.StatusBadRequest, "invalid_request", "無効なリクエスト形式です")
		return false
	}
	return true
}

func (h *Handlers) pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	raw := mux.Vars(r)[name]
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		h.sendStatus(w, http.StatusBadRequest, "invalid_request", "IDが不正です: "+raw)
		return 0, false
	}
	return id, true
}

func queryInt(r *http.Request, name string, defaultValue int) int {
	if raw := r.URL.Query().Get(name); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			return v
		}
	}
	return defaultValue
}

// statusFor maps an error kind to an HTTP status
// エラー種別をHTTPステータスに変換
func statusFor(kind string) int {
	switch kind {
	case "not_found":
		return http.StatusNotFound
	case "insufficient_stock", "duplicate_reference", "invalid_transition", "already_resolved":
		return http.StatusConflict
	case "invalid_quantity", "invalid_transfer", "invalid_request":
		return http.StatusBadRequest
	case "lock_timeout", "deadlock", "store_unavailable":
		return http.StatusServiceUnavailable
	case "cancelled":
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

// sendSuccess sends a successful API response
// 成功APIレスポンスを送信
func (h *Handlers) sendSuccess(w http.ResponseWriter, data interface{}) {
	h.send(w, http.StatusOK, APIResponse{Success: true, Data: data})
}

func (h *Handlers) sendCreated(w http.ResponseWriter, data interface{}) {
	h.send(w, http.StatusCreated, APIResponse{Success: true, Data: data})
}

// sendError sends an error API response with the status of the error kind
// エラーAPIレスポンスを送信
func (h *Handlers) sendError(w http.ResponseWriter, err error) {
	kind := inventory.ErrorKind(err)
	status := statusFor(kind)
	if status >= http.StatusInternalServerError {
		h.logger.Error("リクエスト処理に失敗しました", zap.String("error_kind", kind), zap.Error(err))
	}
	h.sendStatus(w, status, kind, err.Error())
}

func (h *Handlers) sendAdvisoryError(w http.ResponseWriter, err error) {
	h.logger.Warn("アドバイザリサービスの呼び出しに失敗しました", zap.Error(err))
	var statusErr *advisory.StatusError
	if errors.Is(err, advisory.ErrUnavailable) || errors.As(err, &statusErr) {
		h.sendStatus(w, http.StatusBadGateway, "advisory_unavailable", err.Error())
		return
	}
	h.sendError(w, err)
}

func (h *Handlers) sendStatus(w http.ResponseWriter, status int, code, message string) {
	h.send(w, status, APIResponse{Success: false, Error: message, Code: code})
}

func (h *Handlers) send(w http.ResponseWriter, status int, response APIResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.logger.Error("レスポンス送信に失敗しました", zap.Error(err))
	}
}
