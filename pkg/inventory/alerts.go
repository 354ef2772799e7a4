package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

const defaultRecentAlertLimit = 10

// AlertEngine creates threshold alerts after commits and manages alert resolution
// コミット後の閾値アラート作成とアラート解決を担当
type AlertEngine struct {
	store   Store
	logger  *zap.Logger
	metrics *Metrics
	config  *Config
	now     func() time.Time
}

var _ AlertEvaluator = (*AlertEngine)(nil)

// NewAlertEngine creates a new alert engine. A nil config uses DefaultConfig.
// 新しいアラートエンジンを作成
func NewAlertEngine(store Store, logger *zap.Logger, metrics *Metrics, config *Config) *AlertEngine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AlertEngine{
		store:   store,
		logger:  logger,
		metrics: metrics,
		config:  normalizeConfig(config),
		now:     time.Now,
	}
}

// Evaluate checks thresholds for every product in touched.
// Failures are logged and never returned.
// 影響を受けた商品の閾値を評価する。失敗はログ出力のみ
func (a *AlertEngine) Evaluate(ctx context.Context, touched []BalanceKey) {
	seen := make(map[int64]struct{}, len(touched))
	for _, key := range touched {
		if _, ok := seen[key.ProductID]; ok {
			continue
		}
		seen[key.ProductID] = struct{}{}

		if err := a.evaluateProduct(ctx, key); err != nil {
			a.logger.Warn("閾値アラートの評価に失敗しました",
				zap.Int64("product_id", key.ProductID),
				zap.Int64("warehouse_id", key.WarehouseID),
				zap.Error(err),
			)
		}
	}
}

func (a *AlertEngine) evaluateProduct(ctx context.Context, key BalanceKey) error {
	product, err := a.store.GetProduct(ctx, key.ProductID)
	if err != nil {
		return err
	}
	total, err := a.store.TotalByProduct(ctx, key.ProductID)
	if err != nil {
		return err
	}

	productID := product.ID
	warehouseID := key.WarehouseID

	if product.MinStockLevel != nil && total <= *product.MinStockLevel {
		severity := SeverityHigh
		if total == 0 {
			severity = SeverityCritical
		}
		if _, _, err := a.create(ctx, CreateAlertRequest{
			ProductID:   &productID,
			WarehouseID: &warehouseID,
			Type:        AlertTypeLowStock,
			Severity:    severity,
			Message:     fmt.Sprintf("%s の在庫が最小在庫を下回りました (現在: %d, 最小: %d)", product.Name, total, *product.MinStockLevel),
		}); err != nil {
			return err
		}
	}

	if product.MaxStockLevel != nil && total >= *product.MaxStockLevel {
		if _, _, err := a.create(ctx, CreateAlertRequest{
			ProductID:   &productID,
			WarehouseID: &warehouseID,
			Type:        AlertTypeOverstock,
			Severity:    SeverityMedium,
			Message:     fmt.Sprintf("%s の在庫が最大在庫を超えました (現在: %d, 最大: %d)", product.Name, total, *product.MaxStockLevel),
		}); err != nil {
			return err
		}
	}
	return nil
}

// CreateAlert creates an alert. For LOW_STOCK and OVERSTOCK an existing
// unresolved alert of the same product and type is returned instead.
// アラートを作成する。閾値アラートは同一商品・種別の未解決アラートがあればそれを返す
func (a *AlertEngine) CreateAlert(ctx context.Context, req CreateAlertRequest) (*Alert, error) {
	if err := req.Validate(); err != nil {
		return nil, toValidationError(ErrInvalidRequest, err)
	}
	alert, _, err := a.create(ctx, req)
	return alert, err
}

func (a *AlertEngine) create(ctx context.Context, req CreateAlertRequest) (*Alert, bool, error) {
	ctx, cancel := withOperationDeadline(ctx, a.config.OperationDeadline)
	defer cancel()

	var (
		result  *Alert
		created bool
	)

	err := a.config.Retry.run(ctx, "create_alert", a.logger, a.metrics, func() error {
		return a.store.WithTx(ctx, func(tx Tx) error {
			if req.ProductID != nil {
				if _, err := tx.GetProduct(ctx, *req.ProductID); err != nil {
					return err
				}
			}
			if req.WarehouseID != nil {
				if _, err := tx.GetWarehouse(ctx, *req.WarehouseID); err != nil {
					return err
				}
			}

			if req.Type.IsThreshold() {
				existing, err := tx.FindUnresolvedAlert(ctx, *req.ProductID, req.Type)
				if err != nil {
					return err
				}
				if existing != nil {
					result, created = existing, false
					return nil
				}
			}

			alert := &Alert{
				ProductID:   req.ProductID,
				WarehouseID: req.WarehouseID,
				Type:        req.Type,
				Message:     req.Message,
				Severity:    req.Severity,
				CreatedAt:   a.now(),
			}
			if err := tx.CreateAlert(ctx, alert); err != nil {
				return err
			}
			result, created = alert, true
			return nil
		})
	})

	// 同時作成で一意制約に当たった場合は既存アラートを返す
	if errors.Is(err, ErrDuplicateAlert) && req.ProductID != nil {
		existing, ferr := a.store.FindUnresolvedAlert(ctx, *req.ProductID, req.Type)
		if ferr != nil {
			return nil, false, ferr
		}
		if existing != nil {
			result, created, err = existing, false, nil
		}
	}
	if err != nil {
		a.metrics.observeAlert(req.Type, "failed")
		return nil, false, err
	}

	if created {
		a.metrics.observeAlert(req.Type, "created")
		a.logger.Info("アラートを作成しました",
			zap.Int64("alert_id", result.ID),
			zap.String("alert_type", string(result.Type)),
			zap.String("severity", string(result.Severity)),
		)
	} else {
		a.metrics.observeAlert(req.Type, "suppressed")
		a.logger.Debug("未解決のアラートが存在するため作成を抑止しました",
			zap.Int64("alert_id", result.ID),
			zap.String("alert_type", string(result.Type)),
		)
	}
	return result, created, nil
}

// Resolve marks an alert resolved by actor
// アラートを解決済みにする
func (a *AlertEngine) Resolve(ctx context.Context, id int64, actor string) (*Alert, error) {
	actor = resolveActor(ctx, actor)

	ctx, cancel := withOperationDeadline(ctx, a.config.OperationDeadline)
	defer cancel()

	var resolved *Alert
	err := a.config.Retry.run(ctx, "resolve_alert", a.logger, a.metrics, func() error {
		return a.store.WithTx(ctx, func(tx Tx) error {
			alert, err := tx.LockAlert(ctx, id)
			if err != nil {
				return err
			}
			if alert.Resolved {
				return fmt.Errorf("アラート %d: %w", id, ErrAlreadyResolved)
			}

			now := a.now()
			alert.Resolved = true
			alert.ResolvedBy = &actor
			alert.ResolvedAt = &now
			if err := tx.UpdateAlert(ctx, alert); err != nil {
				return err
			}
			resolved = alert
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	a.logger.Info("アラートを解決しました",
		zap.Int64("alert_id", id),
		zap.String("resolved_by", actor),
	)
	return resolved, nil
}

// CountUnresolved returns the number of open alerts
// 未解決アラート数を返す
func (a *AlertEngine) CountUnresolved(ctx context.Context) (int64, error) {
	return a.store.CountUnresolvedAlerts(ctx)
}

// ListUnresolved returns open alerts, newest first
// 未解決アラートを新しい順に返す
func (a *AlertEngine) ListUnresolved(ctx context.Context) ([]Alert, error) {
	return a.store.ListUnresolvedAlerts(ctx)
}

// RecentAlerts returns the latest alerts regardless of state
// 状態に関わらず最近のアラートを返す
func (a *AlertEngine) RecentAlerts(ctx context.Context, limit int) ([]Alert, error) {
	if limit <= 0 {
		limit = defaultRecentAlertLimit
	}
	return a.store.RecentAlerts(ctx, limit)
}
