package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/nemonet1337/zaiWarehouse/internal/advisory"
	"github.com/nemonet1337/zaiWarehouse/internal/config"
	"github.com/nemonet1337/zaiWarehouse/pkg/inventory"
	"github.com/nemonet1337/zaiWarehouse/pkg/inventory/storage"
)

func main() {
	// 設定読み込み
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("設定読み込みに失敗しました:", err)
	}

	// ログ設定
	logger, err := config.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatal("ログ初期化に失敗しました:", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// データベース接続
	store, err := storage.NewPostgreSQLStorage(ctx, cfg.DSN(), cfg.LockWait(), logger)
	if err != nil {
		logger.Fatal("データベース接続に失敗しました", zap.Error(err))
	}
	defer store.Close()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	// 在庫エンジン初期化
	handlers := newHandlers(store, registry, cfg.InventoryConfig(), logger)

	if cfg.Advisory.URL != "" {
		client := advisory.NewClient(cfg.Advisory.URL, cfg.Advisory.Timeout, logger)
		sweeper := advisory.NewSweeper(client, handlers.query, store, handlers.alerts, logger)
		handlers.WithAdvisory(client, sweeper)
		if cfg.Advisory.SweepInterval > 0 {
			go sweeper.RunEvery(ctx, cfg.Advisory.SweepInterval)
		}
		logger.Info("アドバイザリサービスを有効化しました",
			zap.String("url", cfg.Advisory.URL),
			zap.Duration("sweep_interval", cfg.Advisory.SweepInterval),
		)
	}

	router := setupRouter(handlers, routerOptions{
		registry:      registry,
		enableCORS:    cfg.API.EnableCORS,
		enableMetrics: cfg.API.EnableMetrics,
	})

	// HTTPサーバー設定
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.API.Port),
		Handler:      router,
		ReadTimeout:  cfg.API.ReadTimeout,
		WriteTimeout: cfg.API.WriteTimeout,
		IdleTimeout:  cfg.API.IdleTimeout,
	}

	go func() {
		logger.Info("在庫管理APIサーバーを開始します", zap.Int("port", cfg.API.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("サーバー開始に失敗しました", zap.Error(err))
		}
	}()

	// シャットダウンシグナル待機
	<-ctx.Done()
	logger.Info("サーバーをシャットダウンしています...")

	// グレースフルシャットダウン
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("サーバーシャットダウンに失敗しました", zap.Error(err))
	}

	logger.Info("サーバーが正常に停止しました")
}

// newHandlers wires the inventory engines over one store
// ストア上に在庫エンジン一式を構築
func newHandlers(store inventory.Store, reg prometheus.Registerer, invCfg *inventory.Config, logger *zap.Logger) *Handlers {
	metrics := inventory.NewMetrics(reg)
	alerts := inventory.NewAlertEngine(store, logger, metrics, invCfg)
	engine := inventory.NewMovementEngine(store, alerts, logger, metrics, invCfg)
	orders := inventory.NewPurchaseOrderCoordinator(store, engine, logger, metrics, invCfg)
	query := inventory.NewInventoryQuery(store, inventory.NewBalanceIndex(store))
	return NewHandlers(store, engine, orders, alerts, query, logger)
}

type routerOptions struct {
	registry      *prometheus.Registry
	enableCORS    bool
	enableMetrics bool
}

// setupRouter sets up HTTP routes
// HTTPルートを設定
func setupRouter(handlers *Handlers, opts routerOptions) *mux.Router {
	router := mux.NewRouter()

	// ヘルスチェック
	router.HandleFunc("/health", handlers.HealthCheck).Methods("GET")
	if opts.enableMetrics && opts.registry != nil {
		router.Handle("/metrics", promhttp.HandlerFor(opts.registry, promhttp.HandlerOpts{})).Methods("GET")
	}

	// API v1ルート
	api := router.PathPrefix("/api/v1").Subrouter()

	// 在庫移動
	api.HandleFunc("/movements", handlers.RecordMovement).Methods("POST")
	api.HandleFunc("/movements", handlers.RecentMovements).Methods("GET")
	api.HandleFunc("/movements/range", handlers.MovementsBetween).Methods("GET")
	api.HandleFunc("/movements/summary", handlers.MovementSummary).Methods("GET")

	// 在庫照会
	api.HandleFunc("/products/{productId}/movements", handlers.ProductMovements).Methods("GET")
	api.HandleFunc("/products/{productId}/total", handlers.ProductTotal).Methods("GET")
	api.HandleFunc("/products/{productId}/forecast", handlers.Forecast).Methods("GET")
	api.HandleFunc("/warehouses/{warehouseId}/stock", handlers.WarehouseStock).Methods("GET")
	api.HandleFunc("/warehouses/{warehouseId}/value", handlers.WarehouseValue).Methods("GET")
	api.HandleFunc("/stock/value", handlers.TotalValue).Methods("GET")
	api.HandleFunc("/stock/low", handlers.LowStock).Methods("GET")
	api.HandleFunc("/stock/over", handlers.OverStock).Methods("GET")
	api.HandleFunc("/stock/reorder-suggestions", handlers.ReorderSuggestions).Methods("GET")

	// 発注書
	api.HandleFunc("/purchase-orders", handlers.CreatePurchaseOrder).Methods("POST")
	api.HandleFunc("/purchase-orders", handlers.ListPurchaseOrders).Methods("GET")
	api.HandleFunc("/purchase-orders/pending/count", handlers.CountPendingPurchaseOrders).Methods("GET")
	api.HandleFunc("/purchase-orders/{orderId}", handlers.GetPurchaseOrder).Methods("GET")
	api.HandleFunc("/purchase-orders/{orderId}/approve", handlers.ApprovePurchaseOrder).Methods("POST")
	api.HandleFunc("/purchase-orders/{orderId}/receive", handlers.ReceivePurchaseOrder).Methods("POST")
	api.HandleFunc("/purchase-orders/{orderId}/cancel", handlers.CancelPurchaseOrder).Methods("POST")

	// アラート
	api.HandleFunc("/alerts", handlers.ListAlerts).Methods("GET")
	api.HandleFunc("/alerts", handlers.CreateAlert).Methods("POST")
	api.HandleFunc("/alerts/count", handlers.CountAlerts).Methods("GET")
	api.HandleFunc("/alerts/recent", handlers.RecentAlerts).Methods("GET")
	api.HandleFunc("/alerts/sweep", handlers.AnomalySweep).Methods("POST")
	api.HandleFunc("/alerts/{alertId}/resolve", handlers.ResolveAlert).Methods("POST")

	if opts.enableCORS {
		router.Use(corsMiddleware)
	}
	router.Use(loggingMiddleware(handlers.logger))

	return router
}

// corsMiddleware allows cross-origin requests (development use)
// CORS設定（開発用）
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Actor, X-Request-ID")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// statusRecorder captures the response status for logging
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

// loggingMiddleware logs HTTP requests and attaches the acting user to the context.
// X-Actor names the user; X-Request-ID is generated when absent.
// HTTPリクエストをログ出力するミドルウェア
func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			requestID := r.Header.Get("X-Request-ID")
			if requestID == "" {
				requestID = uuid.NewString()
			}
			w.Header().Set("X-Request-ID", requestID)

			ctx := r.Context()
			if actor := r.Header.Get("X-Actor"); actor != "" {
				ctx = inventory.WithActor(ctx, actor)
			}

			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r.WithContext(ctx))

			logger.Info("HTTPリクエスト",
				zap.String("request_id", requestID),
				zap.String("method", r.Method),
				zap.String("url", r.URL.Path),
				zap.Int("status", rec.status),
				zap.String("actor", inventory.ActorFromContext(ctx)),
				zap.String("remote_addr", r.RemoteAddr),
				zap.Duration("duration", time.Since(start)),
			)
		})
	}
}
