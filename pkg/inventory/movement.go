package inventory

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Config holds configuration for the inventory core
// 在庫コアの設定を保持
type Config struct {
	OperationDeadline           time.Duration `yaml:"operation_deadline"`             // 操作ごとの期限
	Retry                       RetryPolicy   `yaml:"retry"`                          // 再試行ポリシー
	SequenceKey                 string        `yaml:"sequence_key"`                   // 発注番号カウンタのキー
	DefaultReceivingWarehouseID int64         `yaml:"default_receiving_warehouse_id"` // デフォルト入荷倉庫（0は未設定）
}

// DefaultConfig returns the default core configuration
// デフォルト設定を返す
func DefaultConfig() *Config {
	return &Config{
		OperationDeadline: 10 * time.Second,
		Retry:             DefaultRetryPolicy(),
		SequenceKey:       "purchase_order_number",
	}
}

func normalizeConfig(config *Config) *Config {
	defaults := DefaultConfig()
	if config == nil {
		return defaults
	}
	c := *config
	if c.OperationDeadline <= 0 {
		c.OperationDeadline = defaults.OperationDeadline
	}
	if c.Retry.BaseDelay <= 0 {
		c.Retry.BaseDelay = defaults.Retry.BaseDelay
	}
	if c.Retry.Multiplier <= 0 {
		c.Retry.Multiplier = defaults.Retry.Multiplier
	}
	if c.Retry.MaxRetries < 0 {
		c.Retry.MaxRetries = 0
	}
	if c.SequenceKey == "" {
		c.SequenceKey = defaults.SequenceKey
	}
	return &c
}

// MovementEngine applies stock movements to balances and the ledger atomically
// 在庫移動を残高と台帳へ原子的に反映する
type MovementEngine struct {
	store   Store
	alerts  AlertEvaluator
	logger  *zap.Logger
	metrics *Metrics
	config  *Config
	now     func() time.Time
}

// NewMovementEngine creates a new movement engine. alerts may be nil.
// 新しい在庫移動エンジンを作成
func NewMovementEngine(store Store, alerts AlertEvaluator, logger *zap.Logger, metrics *Metrics, config *Config) *MovementEngine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MovementEngine{
		store:   store,
		alerts:  alerts,
		logger:  logger,
		metrics: metrics,
		config:  normalizeConfig(config),
		now:     time.Now,
	}
}

// Process validates and applies a movement in its own transaction
// 在庫移動をバリデーションし、単独のトランザクションで反映する
func (e *MovementEngine) Process(ctx context.Context, req MovementRequest) (*Movement, error) {
	start := time.Now()
	defer e.metrics.observeDuration("process_movement", start)

	opID := uuid.NewString()
	if err := ValidateMovementRequest(req); err != nil {
		e.metrics.observeMovement(req.Type, err)
		return nil, err
	}

	ctx, cancel := withOperationDeadline(ctx, e.config.OperationDeadline)
	defer cancel()

	var movement *Movement
	err := e.config.Retry.run(ctx, "process_movement", e.logger, e.metrics, func() error {
		return e.store.WithTx(ctx, func(tx Tx) error {
			m, err := e.ProcessInTx(ctx, tx, req)
			if err != nil {
				return err
			}
			movement = m
			return nil
		})
	})
	e.metrics.observeMovement(req.Type, err)
	if err != nil {
		e.logger.Warn("在庫移動に失敗しました",
			zap.String("op_id", opID),
			zap.Int64("product_id", req.ProductID),
			zap.String("movement_type", string(req.Type)),
			zap.Int64("quantity", req.Quantity),
			zap.String("error_kind", ErrorKind(err)),
			zap.Error(err),
		)
		return nil, err
	}

	e.logger.Info("在庫移動を記録しました",
		zap.String("op_id", opID),
		zap.Int64("movement_id", movement.ID),
		zap.Int64("product_id", movement.ProductID),
		zap.String("movement_type", string(movement.Type)),
		zap.Int64("quantity", movement.Quantity),
		zap.String("reference", movement.Reference),
		zap.String("performed_by", movement.PerformedBy),
	)
	return movement, nil
}

// ProcessInTx applies a movement inside tx. Callers own commit and retry.
// tx内で在庫移動を反映する。コミットと再試行は呼び出し側の責務
func (e *MovementEngine) ProcessInTx(ctx context.Context, tx Tx, req MovementRequest) (*Movement, error) {
	if err := ValidateMovementRequest(req); err != nil {
		return nil, err
	}

	product, err := tx.GetProduct(ctx, req.ProductID)
	if err != nil {
		return nil, err
	}
	if !product.Active {
		return nil, NewNotFoundError(EntityProduct, req.ProductID)
	}
	for _, id := range []*int64{req.FromWarehouseID, req.ToWarehouseID} {
		if id == nil {
			continue
		}
		if err := e.checkWarehouse(ctx, tx, *id); err != nil {
			return nil, err
		}
	}

	touched := req.touched()
	balances, err := tx.LockBalances(ctx, touched)
	if err != nil {
		return nil, err
	}

	now := e.now()
	movement := &Movement{
		ProductID:       req.ProductID,
		FromWarehouseID: req.FromWarehouseID,
		ToWarehouseID:   req.ToWarehouseID,
		Quantity:        req.Quantity,
		Type:            req.Type,
		Reason:          req.Reason,
		Reference:       req.Reference,
		PerformedBy:     resolveActor(ctx, req.Actor),
		CreatedAt:       now,
	}

	switch req.Type {
	case MovementTypeIn:
		dest := balances[BalanceKey{WarehouseID: *req.ToWarehouseID, ProductID: req.ProductID}]
		dest.Quantity += req.Quantity

	case MovementTypeOut:
		src := balances[BalanceKey{WarehouseID: *req.FromWarehouseID, ProductID: req.ProductID}]
		if err := checkAvailable(product, src, req.Quantity); err != nil {
			return nil, err
		}
		src.Quantity -= req.Quantity

	case MovementTypeTransfer:
		src := balances[BalanceKey{WarehouseID: *req.FromWarehouseID, ProductID: req.ProductID}]
		dest := balances[BalanceKey{WarehouseID: *req.ToWarehouseID, ProductID: req.ProductID}]
		if err := checkAvailable(product, src, req.Quantity); err != nil {
			return nil, err
		}
		src.Quantity -= req.Quantity
		dest.Quantity += req.Quantity

	case MovementTypeAdjustment:
		// 調整は絶対値で上書きし、差分を台帳に残す
		target := balances[touched[0]]
		delta := req.Quantity - target.Quantity
		movement.AdjustmentDelta = &delta
		target.Quantity = req.Quantity
	}

	for _, key := range CanonicalOrder(touched) {
		b := balances[key]
		b.LastUpdated = now
		if err := tx.UpsertBalance(ctx, b); err != nil {
			return nil, err
		}
	}

	if err := tx.AppendMovement(ctx, movement); err != nil {
		return nil, err
	}

	if e.alerts != nil {
		hookCtx := context.WithoutCancel(ctx)
		tx.AfterCommit(func() {
			e.alerts.Evaluate(hookCtx, touched)
		})
	}
	return movement, nil
}

func (e *MovementEngine) checkWarehouse(ctx context.Context, tx Tx, id int64) error {
	warehouse, err := tx.GetWarehouse(ctx, id)
	if err != nil {
		return err
	}
	if !warehouse.Active {
		return NewValidationError(ErrWarehouseInactive, "warehouse_id", "無効化された倉庫は使用できません", warehouse.Code)
	}
	return nil
}

func checkAvailable(product *Product, src *Balance, requested int64) error {
	if src.Quantity < requested {
		return &InsufficientStockError{
			ProductID:   product.ID,
			ProductName: product.Name,
			WarehouseID: src.WarehouseID,
			Available:   src.Quantity,
			Requested:   requested,
		}
	}
	return nil
}
