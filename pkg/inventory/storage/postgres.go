package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/nemonet1337/zaiWarehouse/pkg/inventory"
)

const (
	productColumns   = `id, sku, name, unit, unit_price, cost_price, min_stock_level, max_stock_level, reorder_point, active, created_at, updated_at`
	warehouseColumns = `id, code, name, type, address, capacity, current_occupancy, active, created_at`
	supplierColumns  = `id, name, contact_name, email, phone, active, created_at`
	balanceColumns   = `id, warehouse_id, product_id, quantity, last_updated`
	movementColumns  = `id, product_id, from_warehouse_id, to_warehouse_id, quantity, adjustment_delta, type, reason, reference, performed_by, created_at`
	orderColumns     = `id, order_number, supplier_id, status, notes, expected_delivery, total_amount, receiving_warehouse_id, created_by, approved_by, approved_at, received_at, created_at, updated_at`
	itemColumns      = `id, po_id, product_id, quantity, unit_price, received_quantity`
	alertColumns     = `id, product_id, warehouse_id, type, message, severity, resolved, resolved_by, resolved_at, created_at`
)

// PostgreSQLStorage implements inventory.Store using PostgreSQL
// PostgreSQLを使用したStoreの実装
type PostgreSQLStorage struct {
	db       *sqlx.DB
	logger   *zap.Logger
	lockWait time.Duration
	pgReader
}

// すべてのインターフェースを実装することを明示
var (
	_ inventory.Store   = (*PostgreSQLStorage)(nil)
	_ inventory.Catalog = (*PostgreSQLStorage)(nil)
	_ inventory.Tx      = (*postgresTx)(nil)
)

// NewPostgreSQLStorage opens and pings a PostgreSQL connection pool
// 新しいPostgreSQLストレージインスタンスを作成
func NewPostgreSQLStorage(ctx context.Context, dsn string, lockWait time.Duration, logger *zap.Logger) (*PostgreSQLStorage, error) {
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("データベース接続に失敗しました: %w", err)
	}

	// 接続テスト
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, mapError("ping", err)
	}

	// 接続プール設定
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)

	return NewPostgreSQLStorageFromDB(db, lockWait, logger), nil
}

// NewPostgreSQLStorageFromDB wraps an existing pool
// 既存の接続プールからストレージを作成
func NewPostgreSQLStorageFromDB(db *sqlx.DB, lockWait time.Duration, logger *zap.Logger) *PostgreSQLStorage {
	if lockWait <= 0 {
		lockWait = DefaultLockWait
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PostgreSQLStorage{
		db:       db,
		logger:   logger,
		lockWait: lockWait,
		pgReader: pgReader{q: db},
	}
}

// WithTx runs fn in a REPEATABLE READ transaction with a bounded lock wait
// REPEATABLE READのトランザクションでfnを実行する
func (s *PostgreSQLStorage) WithTx(ctx context.Context, fn func(tx inventory.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return inventory.NewCancelledError("begin", err)
	}

	tx, err := s.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead})
	if err != nil {
		return mapError("begin", err)
	}
	committed := false
	defer func() {
		if committed {
			return
		}
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			s.logger.Warn("ロールバックに失敗しました", zap.Error(rbErr))
		}
	}()

	lockTimeout := fmt.Sprintf("%dms", s.lockWait.Milliseconds())
	if _, err := tx.ExecContext(ctx, `SELECT set_config('lock_timeout', $1, true)`, lockTimeout); err != nil {
		return mapError("set_lock_timeout", err)
	}

	ptx := &postgresTx{tx: tx, pgReader: pgReader{q: tx}}
	if err := fn(ptx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return inventory.NewCancelledError("commit", err)
	}
	if err := tx.Commit(); err != nil {
		return mapError("commit", err)
	}
	committed = true

	for _, hook := range ptx.hooks {
		hook()
	}
	return nil
}

// Ping checks the connection
func (s *PostgreSQLStorage) Ping(ctx context.Context) error {
	return mapError("ping", s.db.PingContext(ctx))
}

// Close closes the database connection
// データベース接続を閉じる
func (s *PostgreSQLStorage) Close() error {
	return s.db.Close()
}

// DB exposes the pool for migrations
func (s *PostgreSQLStorage) DB() *sqlx.DB {
	return s.db
}

// CreateProduct creates a product
// 商品を登録
func (s *PostgreSQLStorage) CreateProduct(ctx context.Context, product *inventory.Product) error {
	if err := inventory.ValidateProductLevels(product); err != nil {
		return err
	}
	now := time.Now()
	product.CreatedAt, product.UpdatedAt = now, now
	id, err := insertReturningID(ctx, s.db, `
		INSERT INTO products (sku, name, unit, unit_price, cost_price, min_stock_level, max_stock_level, reorder_point, active, created_at, updated_at)
		VALUES (:sku, :name, :unit, :unit_price, :cost_price, :min_stock_level, :max_stock_level, :reorder_point, :active, :created_at, :updated_at)
		RETURNING id`, product)
	if err != nil {
		return mapError("create_product", err)
	}
	product.ID = id
	return nil
}

// CreateWarehouse creates a warehouse
// 倉庫を登録
func (s *PostgreSQLStorage) CreateWarehouse(ctx context.Context, warehouse *inventory.Warehouse) error {
	if warehouse.Type == "" {
		warehouse.Type = inventory.WarehouseTypeMain
	}
	warehouse.CreatedAt = time.Now()
	id, err := insertReturningID(ctx, s.db, `
		INSERT INTO warehouses (code, name, type, address, capacity, current_occupancy, active, created_at)
		VALUES (:code, :name, :type, :address, :capacity, :current_occupancy, :active, :created_at)
		RETURNING id`, warehouse)
	if err != nil {
		return mapError("create_warehouse", err)
	}
	warehouse.ID = id
	return nil
}

// CreateSupplier creates a supplier
// 仕入先を登録
func (s *PostgreSQLStorage) CreateSupplier(ctx context.Context, supplier *inventory.Supplier) error {
	supplier.CreatedAt = time.Now()
	id, err := insertReturningID(ctx, s.db, `
		INSERT INTO suppliers (name, contact_name, email, phone, active, created_at)
		VALUES (:name, :contact_name, :email, :phone, :active, :created_at)
		RETURNING id`, supplier)
	if err != nil {
		return mapError("create_supplier", err)
	}
	supplier.ID = id
	return nil
}

// SetWarehouseActive soft-deletes or restores a warehouse
// 倉庫の論理削除・復元
func (s *PostgreSQLStorage) SetWarehouseActive(ctx context.Context, id int64, active bool) error {
	result, err := s.db.ExecContext(ctx, `UPDATE warehouses SET active = $2 WHERE id = $1`, id, active)
	if err != nil {
		return mapError("set_warehouse_active", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return inventory.NewNotFoundError(inventory.EntityWarehouse, id)
	}
	return nil
}

// postgresTx implements inventory.Tx on a sqlx transaction
type postgresTx struct {
	tx    *sqlx.Tx
	hooks []func()
	pgReader
}

// LockBalances takes FOR UPDATE locks in canonical order, inserting zero rows first
// 正規順序でFOR UPDATEロックを取得する
func (t *postgresTx) LockBalances(ctx context.Context, keys []inventory.BalanceKey) (map[inventory.BalanceKey]*inventory.Balance, error) {
	locked := make(map[inventory.BalanceKey]*inventory.Balance, len(keys))
	for _, key := range inventory.CanonicalOrder(keys) {
		if _, err := t.tx.ExecContext(ctx, `
			INSERT INTO warehouse_stock (warehouse_id, product_id, quantity, last_updated)
			VALUES ($1, $2, 0, NOW())
			ON CONFLICT (warehouse_id, product_id) DO NOTHING`,
			key.WarehouseID, key.ProductID,
		); err != nil {
			return nil, mapError("lock_balances", err)
		}

		var b inventory.Balance
		if err := sqlx.GetContext(ctx, t.tx, &b,
			`SELECT `+balanceColumns+` FROM warehouse_stock WHERE warehouse_id = $1 AND product_id = $2 FOR UPDATE`,
			key.WarehouseID, key.ProductID,
		); err != nil {
			return nil, mapError("lock_balances", err)
		}
		locked[key] = &b
	}
	return locked, nil
}

// UpsertBalance writes a balance row
// 残高行を更新
func (t *postgresTx) UpsertBalance(ctx context.Context, balance *inventory.Balance) error {
	if balance.LastUpdated.IsZero() {
		balance.LastUpdated = time.Now()
	}
	id, err := insertReturningID(ctx, t.tx, `
		INSERT INTO warehouse_stock (warehouse_id, product_id, quantity, last_updated)
		VALUES (:warehouse_id, :product_id, :quantity, :last_updated)
		ON CONFLICT (warehouse_id, product_id)
		DO UPDATE SET quantity = EXCLUDED.quantity, last_updated = EXCLUDED.last_updated
		RETURNING id`, balance)
	if err != nil {
		return mapError("upsert_balance", err)
	}
	balance.ID = id
	return nil
}

// AppendMovement inserts a ledger entry
// 台帳エントリを追加
func (t *postgresTx) AppendMovement(ctx context.Context, movement *inventory.Movement) error {
	if movement.CreatedAt.IsZero() {
		movement.CreatedAt = time.Now()
	}
	id, err := insertReturningID(ctx, t.tx, `
		INSERT INTO stock_movements (product_id, from_warehouse_id, to_warehouse_id, quantity, adjustment_delta, type, reason, reference, performed_by, created_at)
		VALUES (:product_id, :from_warehouse_id, :to_warehouse_id, :quantity, :adjustment_delta, :type, :reason, :reference, :performed_by, :created_at)
		RETURNING id`, movement)
	if err != nil {
		return mapError("append_movement", err)
	}
	movement.ID = id
	return nil
}

// NextSequence increments the counter row for key
// カウンタ行を進める
func (t *postgresTx) NextSequence(ctx context.Context, key string) (int64, error) {
	var value int64
	if err := t.tx.QueryRowxContext(ctx, `
		INSERT INTO sequences (key, value) VALUES ($1, 1)
		ON CONFLICT (key) DO UPDATE SET value = sequences.value + 1
		RETURNING value`, key,
	).Scan(&value); err != nil {
		return 0, mapError("next_sequence", err)
	}
	return value, nil
}

// CreatePurchaseOrder inserts an order and its items
// 発注書を明細付きで作成
func (t *postgresTx) CreatePurchaseOrder(ctx context.Context, po *inventory.PurchaseOrder) error {
	id, err := insertReturningID(ctx, t.tx, `
		INSERT INTO purchase_orders (order_number, supplier_id, status, notes, expected_delivery, total_amount, receiving_warehouse_id, created_by, approved_by, approved_at, received_at, created_at, updated_at)
		VALUES (:order_number, :supplier_id, :status, :notes, :expected_delivery, :total_amount, :receiving_warehouse_id, :created_by, :approved_by, :approved_at, :received_at, :created_at, :updated_at)
		RETURNING id`, po)
	if err != nil {
		return mapError("create_purchase_order", err)
	}
	po.ID = id

	for i := range po.Items {
		po.Items[i].PurchaseOrderID = id
		itemID, err := insertReturningID(ctx, t.tx, `
			INSERT INTO purchase_order_items (po_id, product_id, quantity, unit_price, received_quantity)
			VALUES (:po_id, :product_id, :quantity, :unit_price, :received_quantity)
			RETURNING id`, &po.Items[i])
		if err != nil {
			return mapError("create_purchase_order_item", err)
		}
		po.Items[i].ID = itemID
	}
	return nil
}

// LockPurchaseOrder selects the order row FOR UPDATE
// 発注書行をロックして取得
func (t *postgresTx) LockPurchaseOrder(ctx context.Context, id int64) (*inventory.PurchaseOrder, error) {
	return t.getPurchaseOrder(ctx, id, true)
}

// UpdatePurchaseOrder persists status fields and item received quantities
// 発注書の状態と入荷数量を更新
func (t *postgresTx) UpdatePurchaseOrder(ctx context.Context, po *inventory.PurchaseOrder) error {
	result, err := t.tx.NamedExecContext(ctx, `
		UPDATE purchase_orders
		SET status = :status, approved_by = :approved_by, approved_at = :approved_at,
		    received_at = :received_at, receiving_warehouse_id = :receiving_warehouse_id, updated_at = :updated_at
		WHERE id = :id`, po)
	if err != nil {
		return mapError("update_purchase_order", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return inventory.NewNotFoundError(inventory.EntityPurchaseOrder, po.ID)
	}

	for i := range po.Items {
		if _, err := t.tx.NamedExecContext(ctx,
			`UPDATE purchase_order_items SET received_quantity = :received_quantity WHERE id = :id`,
			&po.Items[i],
		); err != nil {
			return mapError("update_purchase_order_item", err)
		}
	}
	return nil
}

// CreateAlert inserts an alert; the partial unique index enforces one open threshold alert
// アラートを作成
func (t *postgresTx) CreateAlert(ctx context.Context, alert *inventory.Alert) error {
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = time.Now()
	}
	id, err := insertReturningID(ctx, t.tx, `
		INSERT INTO alerts (product_id, warehouse_id, type, message, severity, resolved, resolved_by, resolved_at, created_at)
		VALUES (:product_id, :warehouse_id, :type, :message, :severity, :resolved, :resolved_by, :resolved_at, :created_at)
		RETURNING id`, alert)
	if err != nil {
		return mapError("create_alert", err)
	}
	alert.ID = id
	return nil
}

// LockAlert selects the alert row FOR UPDATE
func (t *postgresTx) LockAlert(ctx context.Context, id int64) (*inventory.Alert, error) {
	var a inventory.Alert
	if err := sqlx.GetContext(ctx, t.tx, &a, `SELECT `+alertColumns+` FROM alerts WHERE id = $1 FOR UPDATE`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, inventory.NewNotFoundError(inventory.EntityAlert, id)
		}
		return nil, mapError("lock_alert", err)
	}
	return &a, nil
}

// UpdateAlert updates an unresolved alert
// 未解決アラートを更新
func (t *postgresTx) UpdateAlert(ctx context.Context, alert *inventory.Alert) error {
	result, err := t.tx.NamedExecContext(ctx, `
		UPDATE alerts SET resolved = :resolved, resolved_by = :resolved_by, resolved_at = :resolved_at
		WHERE id = :id AND resolved = false`, alert)
	if err != nil {
		return mapError("update_alert", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return inventory.NewStorageError("update_alert", "解決済みアラートは変更できません", inventory.ErrAlreadyResolved)
	}
	return nil
}

// AfterCommit registers a post-commit hook
func (t *postgresTx) AfterCommit(fn func()) {
	t.hooks = append(t.hooks, fn)
}

// pgReader implements inventory.Reader on a pool or a transaction
type pgReader struct {
	q sqlx.ExtContext
}

func (r pgReader) GetProduct(ctx context.Context, id int64) (*inventory.Product, error) {
	var p inventory.Product
	if err := sqlx.GetContext(ctx, r.q, &p, `SELECT `+productColumns+` FROM products WHERE id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, inventory.NewNotFoundError(inventory.EntityProduct, id)
		}
		return nil, mapError("get_product", err)
	}
	return &p, nil
}

func (r pgReader) ListProducts(ctx context.Context, activeOnly bool) ([]inventory.Product, error) {
	var products []inventory.Product
	if err := sqlx.SelectContext(ctx, r.q, &products,
		`SELECT `+productColumns+` FROM products WHERE ($1 = false OR active = true) ORDER BY id`, activeOnly,
	); err != nil {
		return nil, mapError("list_products", err)
	}
	return products, nil
}

func (r pgReader) GetWarehouse(ctx context.Context, id int64) (*inventory.Warehouse, error) {
	var w inventory.Warehouse
	if err := sqlx.GetContext(ctx, r.q, &w, `SELECT `+warehouseColumns+` FROM warehouses WHERE id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, inventory.NewNotFoundError(inventory.EntityWarehouse, id)
		}
		return nil, mapError("get_warehouse", err)
	}
	return &w, nil
}

func (r pgReader) GetSupplier(ctx context.Context, id int64) (*inventory.Supplier, error) {
	var s inventory.Supplier
	if err := sqlx.GetContext(ctx, r.q, &s, `SELECT `+supplierColumns+` FROM suppliers WHERE id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, inventory.NewNotFoundError(inventory.EntitySupplier, id)
		}
		return nil, mapError("get_supplier", err)
	}
	return &s, nil
}

func (r pgReader) FindBalance(ctx context.Context, warehouseID, productID int64) (*inventory.Balance, error) {
	var b inventory.Balance
	if err := sqlx.GetContext(ctx, r.q, &b,
		`SELECT `+balanceColumns+` FROM warehouse_stock WHERE warehouse_id = $1 AND product_id = $2`,
		warehouseID, productID,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, mapError("find_balance", err)
	}
	return &b, nil
}

func (r pgReader) ListBalancesByWarehouse(ctx context.Context, warehouseID int64) ([]inventory.Balance, error) {
	var balances []inventory.Balance
	if err := sqlx.SelectContext(ctx, r.q, &balances,
		`SELECT `+balanceColumns+` FROM warehouse_stock WHERE warehouse_id = $1 ORDER BY product_id`, warehouseID,
	); err != nil {
		return nil, mapError("list_balances", err)
	}
	return balances, nil
}

func (r pgReader) TotalByProduct(ctx context.Context, productID int64) (int64, error) {
	var total int64
	if err := sqlx.GetContext(ctx, r.q, &total,
		`SELECT COALESCE(SUM(quantity), 0) FROM warehouse_stock WHERE product_id = $1`, productID,
	); err != nil {
		return 0, mapError("total_by_product", err)
	}
	return total, nil
}

func (r pgReader) StockTotals(ctx context.Context) (map[int64]int64, error) {
	var rows []struct {
		ProductID int64 `db:"product_id"`
		Total     int64 `db:"total"`
	}
	if err := sqlx.SelectContext(ctx, r.q, &rows,
		`SELECT product_id, SUM(quantity) AS total FROM warehouse_stock GROUP BY product_id`,
	); err != nil {
		return nil, mapError("stock_totals", err)
	}
	totals := make(map[int64]int64, len(rows))
	for _, row := range rows {
		totals[row.ProductID] = row.Total
	}
	return totals, nil
}

func (r pgReader) RecentMovements(ctx context.Context, limit int) ([]inventory.Movement, error) {
	return r.selectMovements(ctx, "recent_movements",
		`SELECT `+movementColumns+` FROM stock_movements ORDER BY created_at DESC, id DESC LIMIT $1`, limit)
}

func (r pgReader) MovementsByProduct(ctx context.Context, productID int64) ([]inventory.Movement, error) {
	return r.selectMovements(ctx, "movements_by_product",
		`SELECT `+movementColumns+` FROM stock_movements WHERE product_id = $1 ORDER BY created_at DESC, id DESC`, productID)
}

func (r pgReader) MovementsBetween(ctx context.Context, from, to time.Time) ([]inventory.Movement, error) {
	return r.selectMovements(ctx, "movements_between",
		`SELECT `+movementColumns+` FROM stock_movements WHERE created_at BETWEEN $1 AND $2 ORDER BY created_at, id`, from, to)
}

func (r pgReader) selectMovements(ctx context.Context, operation, query string, args ...interface{}) ([]inventory.Movement, error) {
	var movements []inventory.Movement
	if err := sqlx.SelectContext(ctx, r.q, &movements, query, args...); err != nil {
		return nil, mapError(operation, err)
	}
	return movements, nil
}

func (r pgReader) GetPurchaseOrder(ctx context.Context, id int64) (*inventory.PurchaseOrder, error) {
	return r.getPurchaseOrder(ctx, id, false)
}

func (r pgReader) getPurchaseOrder(ctx context.Context, id int64, forUpdate bool) (*inventory.PurchaseOrder, error) {
	query := `SELECT ` + orderColumns + ` FROM purchase_orders WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	var po inventory.PurchaseOrder
	if err := sqlx.GetContext(ctx, r.q, &po, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, inventory.NewNotFoundError(inventory.EntityPurchaseOrder, id)
		}
		return nil, mapError("get_purchase_order", err)
	}
	if err := sqlx.SelectContext(ctx, r.q, &po.Items,
		`SELECT `+itemColumns+` FROM purchase_order_items WHERE po_id = $1 ORDER BY id`, id,
	); err != nil {
		return nil, mapError("get_purchase_order_items", err)
	}
	return &po, nil
}

func (r pgReader) ListPurchaseOrders(ctx context.Context, status *inventory.POStatus) ([]inventory.PurchaseOrder, error) {
	var orders []inventory.PurchaseOrder
	var err error
	if status != nil {
		err = sqlx.SelectContext(ctx, r.q, &orders,
			`SELECT `+orderColumns+` FROM purchase_orders WHERE status = $1 ORDER BY id DESC`, *status)
	} else {
		err = sqlx.SelectContext(ctx, r.q, &orders,
			`SELECT `+orderColumns+` FROM purchase_orders ORDER BY id DESC`)
	}
	if err != nil {
		return nil, mapError("list_purchase_orders", err)
	}
	if len(orders) == 0 {
		return orders, nil
	}

	ids := make([]int64, len(orders))
	index := make(map[int64]int, len(orders))
	for i, po := range orders {
		ids[i] = po.ID
		index[po.ID] = i
	}
	query, args, err := sqlx.In(`SELECT `+itemColumns+` FROM purchase_order_items WHERE po_id IN (?) ORDER BY id`, ids)
	if err != nil {
		return nil, fmt.Errorf("明細クエリの構築に失敗しました: %w", err)
	}
	var items []inventory.POItem
	if err := sqlx.SelectContext(ctx, r.q, &items, r.q.Rebind(query), args...); err != nil {
		return nil, mapError("list_purchase_order_items", err)
	}
	for _, item := range items {
		i := index[item.PurchaseOrderID]
		orders[i].Items = append(orders[i].Items, item)
	}
	return orders, nil
}

func (r pgReader) CountPurchaseOrders(ctx context.Context, statuses ...inventory.POStatus) (int64, error) {
	values := make([]string, len(statuses))
	for i, st := range statuses {
		values[i] = string(st)
	}
	var n int64
	if err := sqlx.GetContext(ctx, r.q, &n,
		`SELECT COUNT(*) FROM purchase_orders WHERE status = ANY($1)`, pq.Array(values),
	); err != nil {
		return 0, mapError("count_purchase_orders", err)
	}
	return n, nil
}

func (r pgReader) GetAlert(ctx context.Context, id int64) (*inventory.Alert, error) {
	var a inventory.Alert
	if err := sqlx.GetContext(ctx, r.q, &a, `SELECT `+alertColumns+` FROM alerts WHERE id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, inventory.NewNotFoundError(inventory.EntityAlert, id)
		}
		return nil, mapError("get_alert", err)
	}
	return &a, nil
}

func (r pgReader) FindUnresolvedAlert(ctx context.Context, productID int64, alertType inventory.AlertType) (*inventory.Alert, error) {
	var a inventory.Alert
	if err := sqlx.GetContext(ctx, r.q, &a,
		`SELECT `+alertColumns+` FROM alerts WHERE product_id = $1 AND type = $2 AND resolved = false ORDER BY id LIMIT 1`,
		productID, alertType,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, mapError("find_unresolved_alert", err)
	}
	return &a, nil
}

func (r pgReader) ListUnresolvedAlerts(ctx context.Context) ([]inventory.Alert, error) {
	var alerts []inventory.Alert
	if err := sqlx.SelectContext(ctx, r.q, &alerts,
		`SELECT `+alertColumns+` FROM alerts WHERE resolved = false ORDER BY created_at DESC, id DESC`,
	); err != nil {
		return nil, mapError("list_unresolved_alerts", err)
	}
	return alerts, nil
}

func (r pgReader) CountUnresolvedAlerts(ctx context.Context) (int64, error) {
	var n int64
	if err := sqlx.GetContext(ctx, r.q, &n, `SELECT COUNT(*) FROM alerts WHERE resolved = false`); err != nil {
		return 0, mapError("count_unresolved_alerts", err)
	}
	return n, nil
}

func (r pgReader) RecentAlerts(ctx context.Context, limit int) ([]inventory.Alert, error) {
	var alerts []inventory.Alert
	if err := sqlx.SelectContext(ctx, r.q, &alerts,
		`SELECT `+alertColumns+` FROM alerts ORDER BY created_at DESC, id DESC LIMIT $1`, limit,
	); err != nil {
		return nil, mapError("recent_alerts", err)
	}
	return alerts, nil
}

// insertReturningID runs a named INSERT ... RETURNING id
func insertReturningID(ctx context.Context, q sqlx.ExtContext, query string, arg interface{}) (int64, error) {
	rows, err := sqlx.NamedQueryContext(ctx, q, query, arg)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	var id int64
	if rows.Next() {
		if err := rows.Scan(&id); err != nil {
			return 0, err
		}
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}
	return id, nil
}
