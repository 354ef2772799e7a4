package inventory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
)

const receiptReason = "発注書入荷"

// PurchaseOrderCoordinator owns the purchase order state machine
// 発注書の状態遷移を管理する
type PurchaseOrderCoordinator struct {
	store     Store
	movements *MovementEngine
	logger    *zap.Logger
	metrics   *Metrics
	config    *Config
	now       func() time.Time
}

// NewPurchaseOrderCoordinator creates a new coordinator
// 新しい発注書コーディネーターを作成
func NewPurchaseOrderCoordinator(store Store, movements *MovementEngine, logger *zap.Logger, metrics *Metrics, config *Config) *PurchaseOrderCoordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PurchaseOrderCoordinator{
		store:     store,
		movements: movements,
		logger:    logger,
		metrics:   metrics,
		config:    normalizeConfig(config),
		now:       time.Now,
	}
}

// FormatOrderNumber builds "PO-YYYYMMDD-NNNN"
// 発注番号を生成
func FormatOrderNumber(t time.Time, seq int64) string {
	return fmt.Sprintf("PO-%s-%04d", t.Format("20060102"), seq)
}

// Create creates a DRAFT purchase order
// 下書き状態の発注書を作成
func (c *PurchaseOrderCoordinator) Create(ctx context.Context, req PurchaseOrderRequest) (*PurchaseOrder, error) {
	start := time.Now()
	defer c.metrics.observeDuration("create_purchase_order", start)

	if err := req.Validate(); err != nil {
		return nil, toValidationError(ErrInvalidRequest, err)
	}
	actor := resolveActor(ctx, req.Actor)

	ctx, cancel := withOperationDeadline(ctx, c.config.OperationDeadline)
	defer cancel()

	var created *PurchaseOrder
	err := c.config.Retry.run(ctx, "create_purchase_order", c.logger, c.metrics, func() error {
		return c.store.WithTx(ctx, func(tx Tx) error {
			if _, err := tx.GetSupplier(ctx, req.SupplierID); err != nil {
				return err
			}

			now := c.now()
			po := &PurchaseOrder{
				SupplierID:       req.SupplierID,
				Status:           POStatusDraft,
				Notes:            req.Notes,
				ExpectedDelivery: req.ExpectedDelivery,
				CreatedBy:        actor,
				CreatedAt:        now,
				UpdatedAt:        now,
			}
			for _, item := range req.Items {
				product, err := tx.GetProduct(ctx, item.ProductID)
				if err != nil {
					return err
				}
				price := product.CostPrice
				if item.UnitPrice != nil {
					price = *item.UnitPrice
				}
				po.Items = append(po.Items, POItem{
					ProductID: item.ProductID,
					Quantity:  item.Quantity,
					UnitPrice: price,
				})
			}
			po.TotalAmount = po.ComputeTotal()

			seq, err := tx.NextSequence(ctx, c.config.SequenceKey)
			if err != nil {
				return err
			}
			po.OrderNumber = FormatOrderNumber(now, seq)

			if err := tx.CreatePurchaseOrder(ctx, po); err != nil {
				return err
			}
			created = po
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	c.metrics.observeTransition(POStatusDraft)
	c.logger.Info("発注書を作成しました",
		zap.Int64("purchase_order_id", created.ID),
		zap.String("order_number", created.OrderNumber),
		zap.Int64("supplier_id", created.SupplierID),
		zap.String("total_amount", created.TotalAmount.StringFixed(2)),
		zap.Int("items", len(created.Items)),
	)
	return created, nil
}

// Approve moves a DRAFT or PENDING order to APPROVED
// 発注書を承認する
func (c *PurchaseOrderCoordinator) Approve(ctx context.Context, id int64, actor string) (*PurchaseOrder, error) {
	actor = resolveActor(ctx, actor)
	return c.transition(ctx, id, POStatusApproved, "approve_purchase_order", func(_ Tx, po *PurchaseOrder, now time.Time) error {
		po.ApprovedBy = &actor
		po.ApprovedAt = &now
		return nil
	})
}

// Cancel moves a non-terminal order to CANCELLED. There are no stock effects.
// 発注書をキャンセルする（在庫への影響なし）
func (c *PurchaseOrderCoordinator) Cancel(ctx context.Context, id int64) (*PurchaseOrder, error) {
	return c.transition(ctx, id, POStatusCancelled, "cancel_purchase_order", nil)
}

// Receive books the received quantities as IN movements and marks the order RECEIVED,
// all in one transaction.
// 入荷数量をIN移動として記録し、同一トランザクションで発注書を入荷済みにする
func (c *PurchaseOrderCoordinator) Receive(ctx context.Context, id int64, req ReceiveRequest) (*ReceiveResult, error) {
	actor := resolveActor(ctx, req.Actor)

	var (
		movements []Movement
		over      []OverReceipt
	)
	po, err := c.transition(ctx, id, POStatusReceived, "receive_purchase_order", func(tx Tx, po *PurchaseOrder, now time.Time) error {
		movements, over = nil, nil

		warehouseID, err := c.receivingWarehouse(req)
		if err != nil {
			return err
		}

		ordered := make(map[int64]int64)
		for _, item := range po.Items {
			ordered[item.ProductID] += item.Quantity
		}
		for productID, qty := range req.Received {
			if _, ok := ordered[productID]; !ok {
				return NewNotFoundError(EntityPOItem, productID)
			}
			if qty < 0 {
				return NewValidationError(ErrInvalidQuantity, "received", "入荷数量は0以上である必要があります", fmt.Sprintf("%d", qty))
			}
		}
		assignReceived(po.Items, req.Received)

		productIDs := make([]int64, 0, len(req.Received))
		keys := make([]BalanceKey, 0, len(req.Received))
		for productID, qty := range req.Received {
			if qty == 0 {
				continue
			}
			productIDs = append(productIDs, productID)
			keys = append(keys, BalanceKey{WarehouseID: warehouseID, ProductID: productID})
		}
		sort.Slice(productIDs, func(i, j int) bool { return productIDs[i] < productIDs[j] })

		// 明細をまたいでも正規順序でロックする
		if _, err := tx.LockBalances(ctx, keys); err != nil {
			return err
		}

		for _, productID := range productIDs {
			qty := req.Received[productID]
			if qty > ordered[productID] {
				over = append(over, OverReceipt{ProductID: productID, Ordered: ordered[productID], Received: qty})
			}
			m, err := c.movements.ProcessInTx(ctx, tx, MovementRequest{
				ProductID:     productID,
				Type:          MovementTypeIn,
				Quantity:      qty,
				ToWarehouseID: &warehouseID,
				Reason:        receiptReason,
				Reference:     po.OrderNumber,
				Actor:         actor,
			})
			if err != nil {
				return err
			}
			movements = append(movements, *m)
		}

		po.ReceivedAt = &now
		po.ReceivingWarehouseID = &warehouseID
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, o := range over {
		c.logger.Warn("発注数量を超える入荷がありました",
			zap.String("order_number", po.OrderNumber),
			zap.Int64("product_id", o.ProductID),
			zap.Int64("ordered", o.Ordered),
			zap.Int64("received", o.Received),
		)
	}
	return &ReceiveResult{Order: po, Movements: movements, OverReceipts: over}, nil
}

// Get returns an order with its items
// 発注書を明細付きで取得
func (c *PurchaseOrderCoordinator) Get(ctx context.Context, id int64) (*PurchaseOrder, error) {
	return c.store.GetPurchaseOrder(ctx, id)
}

// List returns orders, optionally filtered by status
func (c *PurchaseOrderCoordinator) List(ctx context.Context, status *POStatus) ([]PurchaseOrder, error) {
	return c.store.ListPurchaseOrders(ctx, status)
}

// CountPending returns the number of DRAFT and PENDING orders
// 未承認（DRAFT/PENDING）の発注書数を返す
func (c *PurchaseOrderCoordinator) CountPending(ctx context.Context) (int64, error) {
	return c.store.CountPurchaseOrders(ctx, POStatusDraft, POStatusPending)
}

type transitionFunc func(tx Tx, po *PurchaseOrder, now time.Time) error

// transition locks the order row, checks the state machine, applies fn and persists the new status
func (c *PurchaseOrderCoordinator) transition(ctx context.Context, id int64, to POStatus, operation string, fn transitionFunc) (*PurchaseOrder, error) {
	start := time.Now()
	defer c.metrics.observeDuration(operation, start)

	ctx, cancel := withOperationDeadline(ctx, c.config.OperationDeadline)
	defer cancel()

	var (
		updated *PurchaseOrder
		from    POStatus
	)
	err := c.config.Retry.run(ctx, operation, c.logger, c.metrics, func() error {
		return c.store.WithTx(ctx, func(tx Tx) error {
			po, err := tx.LockPurchaseOrder(ctx, id)
			if err != nil {
				return err
			}
			if !po.Status.CanTransitionTo(to) {
				return &InvalidTransitionError{OrderNumber: po.OrderNumber, From: po.Status, To: to}
			}

			now := c.now()
			if fn != nil {
				if err := fn(tx, po, now); err != nil {
					return err
				}
			}
			from = po.Status
			po.Status = to
			po.UpdatedAt = now
			if err := tx.UpdatePurchaseOrder(ctx, po); err != nil {
				return err
			}
			updated = po
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	c.metrics.observeTransition(to)
	c.logger.Info("発注書の状態を更新しました",
		zap.Int64("purchase_order_id", updated.ID),
		zap.String("order_number", updated.OrderNumber),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
	)
	return updated, nil
}

func (c *PurchaseOrderCoordinator) receivingWarehouse(req ReceiveRequest) (int64, error) {
	if req.WarehouseID != nil {
		return *req.WarehouseID, nil
	}
	if c.config.DefaultReceivingWarehouseID > 0 {
		return c.config.DefaultReceivingWarehouseID, nil
	}
	return 0, NewValidationError(ErrInvalidMovement, "warehouse_id", "入荷倉庫が指定されていません", "")
}

// assignReceived spreads received quantities over the lines of each product;
// the last line of a product takes any remainder.
func assignReceived(items []POItem, received map[int64]int64) {
	last := make(map[int64]int)
	for i, item := range items {
		last[item.ProductID] = i
	}
	remaining := make(map[int64]int64, len(received))
	for productID, qty := range received {
		remaining[productID] = qty
	}
	for i := range items {
		productID := items[i].ProductID
		give := min(remaining[productID], items[i].Quantity)
		if last[productID] == i {
			give = remaining[productID]
		}
		items[i].ReceivedQuantity = give
		remaining[productID] -= give
	}
}
