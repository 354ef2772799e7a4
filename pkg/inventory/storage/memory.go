package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/nemonet1337/zaiWarehouse/pkg/inventory"
)

// MemoryStorage is an in-process store with row locks and staged transactions.
// Writes become visible on commit; row locks are held until commit or rollback.
// 行ロックとステージング付きトランザクションを持つインメモリストア
type MemoryStorage struct {
	mu         sync.RWMutex
	products   map[int64]inventory.Product
	warehouses map[int64]inventory.Warehouse
	suppliers  map[int64]inventory.Supplier
	balances   map[inventory.BalanceKey]inventory.Balance
	movements  []inventory.Movement
	orders     map[int64]*inventory.PurchaseOrder
	alerts     map[int64]inventory.Alert
	sequences  map[string]int64

	idMu sync.Mutex
	ids  map[string]int64

	locks    *rowLocks
	lockWait time.Duration
	logger   *zap.Logger
	memoryReader
}

// すべてのインターフェースを実装することを明示
var (
	_ inventory.Store   = (*MemoryStorage)(nil)
	_ inventory.Catalog = (*MemoryStorage)(nil)
	_ inventory.Tx      = (*memoryTx)(nil)
)

// NewMemoryStorage creates an empty in-memory store
// 空のインメモリストアを作成
func NewMemoryStorage(lockWait time.Duration, logger *zap.Logger) *MemoryStorage {
	if lockWait <= 0 {
		lockWait = DefaultLockWait
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &MemoryStorage{
		products:   make(map[int64]inventory.Product),
		warehouses: make(map[int64]inventory.Warehouse),
		suppliers:  make(map[int64]inventory.Supplier),
		balances:   make(map[inventory.BalanceKey]inventory.Balance),
		orders:     make(map[int64]*inventory.PurchaseOrder),
		alerts:     make(map[int64]inventory.Alert),
		sequences:  make(map[string]int64),
		ids:        make(map[string]int64),
		locks:      &rowLocks{rows: make(map[string]chan struct{})},
		lockWait:   lockWait,
		logger:     logger,
	}
	s.memoryReader = memoryReader{s: s, snap: s.committed}
	return s
}

func (s *MemoryStorage) nextID(table string) int64 {
	s.idMu.Lock()
	defer s.idMu.Unlock()
	s.ids[table]++
	return s.ids[table]
}

// WithTx runs fn in a staged transaction
// ステージング付きトランザクションでfnを実行
func (s *MemoryStorage) WithTx(ctx context.Context, fn func(tx inventory.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return inventory.NewCancelledError("begin", err)
	}

	tx := newMemoryTx(s)
	defer tx.releaseAll()

	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return inventory.NewCancelledError("commit", err)
	}

	tx.commit()
	tx.releaseAll()
	for _, hook := range tx.hooks {
		hook()
	}
	return nil
}

// Ping always succeeds
func (s *MemoryStorage) Ping(ctx context.Context) error { return nil }

// Close is a no-op
func (s *MemoryStorage) Close() error { return nil }

// CreateProduct stores a product, assigning its id
// 商品を登録
func (s *MemoryStorage) CreateProduct(ctx context.Context, product *inventory.Product) error {
	if err := inventory.ValidateProductLevels(product); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.products {
		if p.SKU == product.SKU {
			return inventory.NewStorageError("create_product", fmt.Sprintf("SKUが重複しています: %s", product.SKU), nil)
		}
	}
	now := time.Now()
	product.ID = s.nextID("products")
	product.CreatedAt, product.UpdatedAt = now, now
	s.products[product.ID] = *product
	return nil
}

// CreateWarehouse stores a warehouse, assigning its id
// 倉庫を登録
func (s *MemoryStorage) CreateWarehouse(ctx context.Context, warehouse *inventory.Warehouse) error {
	if warehouse.Capacity != nil && (warehouse.CurrentOccupancy < 0 || warehouse.CurrentOccupancy > *warehouse.Capacity) {
		return inventory.NewValidationError(inventory.ErrInvalidQuantity, "current_occupancy", "占有量が収容量の範囲外です", fmt.Sprintf("%d", warehouse.CurrentOccupancy))
	}
	if warehouse.Type == "" {
		warehouse.Type = inventory.WarehouseTypeMain
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, w := range s.warehouses {
		if w.Code == warehouse.Code {
			return inventory.NewStorageError("create_warehouse", fmt.Sprintf("倉庫コードが重複しています: %s", warehouse.Code), nil)
		}
	}
	warehouse.ID = s.nextID("warehouses")
	warehouse.CreatedAt = time.Now()
	s.warehouses[warehouse.ID] = *warehouse
	return nil
}

// CreateSupplier stores a supplier, assigning its id
// 仕入先を登録
func (s *MemoryStorage) CreateSupplier(ctx context.Context, supplier *inventory.Supplier) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	supplier.ID = s.nextID("suppliers")
	supplier.CreatedAt = time.Now()
	s.suppliers[supplier.ID] = *supplier
	return nil
}

// SetWarehouseActive soft-deletes or restores a warehouse
// 倉庫の論理削除・復元
func (s *MemoryStorage) SetWarehouseActive(ctx context.Context, id int64, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.warehouses[id]
	if !ok {
		return inventory.NewNotFoundError(inventory.EntityWarehouse, id)
	}
	w.Active = active
	s.warehouses[id] = w
	return nil
}

// committed copies the committed state
func (s *MemoryStorage) committed() *memorySnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := &memorySnapshot{
		balances:  make(map[inventory.BalanceKey]inventory.Balance, len(s.balances)),
		movements: append([]inventory.Movement(nil), s.movements...),
		orders:    make(map[int64]*inventory.PurchaseOrder, len(s.orders)),
		alerts:    make(map[int64]inventory.Alert, len(s.alerts)),
	}
	for k, b := range s.balances {
		snap.balances[k] = b
	}
	for id, po := range s.orders {
		snap.orders[id] = po.Clone()
	}
	for id, a := range s.alerts {
		snap.alerts[id] = a
	}
	return snap
}

// memoryTx stages writes until commit
type memoryTx struct {
	s         *MemoryStorage
	held      map[string]struct{}
	heldOrder []string
	balances  map[inventory.BalanceKey]inventory.Balance
	movements []inventory.Movement
	orders    map[int64]*inventory.PurchaseOrder
	alerts    map[int64]inventory.Alert
	sequences map[string]int64
	hooks     []func()
	memoryReader
}

func newMemoryTx(s *MemoryStorage) *memoryTx {
	tx := &memoryTx{
		s:         s,
		held:      make(map[string]struct{}),
		balances:  make(map[inventory.BalanceKey]inventory.Balance),
		orders:    make(map[int64]*inventory.PurchaseOrder),
		alerts:    make(map[int64]inventory.Alert),
		sequences: make(map[string]int64),
	}
	tx.memoryReader = memoryReader{s: s, snap: tx.merged}
	return tx
}

// merged overlays staged writes on the committed state
func (t *memoryTx) merged() *memorySnapshot {
	snap := t.s.committed()
	for k, b := range t.balances {
		snap.balances[k] = b
	}
	snap.movements = append(snap.movements, t.movements...)
	for id, po := range t.orders {
		snap.orders[id] = po.Clone()
	}
	for id, a := range t.alerts {
		snap.alerts[id] = a
	}
	return snap
}

func (t *memoryTx) lock(ctx context.Context, key string) error {
	if _, ok := t.held[key]; ok {
		return nil
	}
	if err := t.s.locks.acquire(ctx, key, t.s.lockWait); err != nil {
		return err
	}
	t.held[key] = struct{}{}
	t.heldOrder = append(t.heldOrder, key)
	return nil
}

func (t *memoryTx) releaseAll() {
	for i := len(t.heldOrder) - 1; i >= 0; i-- {
		t.s.locks.release(t.heldOrder[i])
	}
	t.heldOrder = nil
	t.held = make(map[string]struct{})
}

func (t *memoryTx) commit() {
	s := t.s
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, b := range t.balances {
		s.balances[k] = b
	}
	s.movements = append(s.movements, t.movements...)
	for id, po := range t.orders {
		s.orders[id] = po
	}
	for id, a := range t.alerts {
		s.alerts[id] = a
	}
	for key, v := range t.sequences {
		s.sequences[key] = v
	}
}

// LockBalances locks rows in canonical order, staging zero rows for missing keys
// 正規順序で残高行をロック
func (t *memoryTx) LockBalances(ctx context.Context, keys []inventory.BalanceKey) (map[inventory.BalanceKey]*inventory.Balance, error) {
	locked := make(map[inventory.BalanceKey]*inventory.Balance, len(keys))
	for _, key := range inventory.CanonicalOrder(keys) {
		if err := t.lock(ctx, balanceLockKey(key)); err != nil {
			return nil, err
		}
		b, err := t.currentBalance(key)
		if err != nil {
			return nil, err
		}
		locked[key] = b
	}
	return locked, nil
}

func (t *memoryTx) currentBalance(key inventory.BalanceKey) (*inventory.Balance, error) {
	if b, ok := t.balances[key]; ok {
		return &b, nil
	}
	t.s.mu.RLock()
	b, ok := t.s.balances[key]
	_, productOK := t.s.products[key.ProductID]
	_, warehouseOK := t.s.warehouses[key.WarehouseID]
	t.s.mu.RUnlock()
	if ok {
		return &b, nil
	}
	if !productOK {
		return nil, inventory.NewNotFoundError(inventory.EntityProduct, key.ProductID)
	}
	if !warehouseOK {
		return nil, inventory.NewNotFoundError(inventory.EntityWarehouse, key.WarehouseID)
	}
	placeholder := inventory.Balance{
		ID:          t.s.nextID("warehouse_stock"),
		WarehouseID: key.WarehouseID,
		ProductID:   key.ProductID,
		LastUpdated: time.Now(),
	}
	t.balances[key] = placeholder
	return &placeholder, nil
}

// UpsertBalance stages a balance row
// 残高行を更新
func (t *memoryTx) UpsertBalance(ctx context.Context, balance *inventory.Balance) error {
	if balance.Quantity < 0 {
		return inventory.NewStorageError("upsert_balance", "在庫数量は0以上である必要があります", inventory.ErrInvalidQuantity)
	}
	key := balance.Key()
	if err := t.lock(ctx, balanceLockKey(key)); err != nil {
		return err
	}
	current, err := t.currentBalance(key)
	if err != nil {
		return err
	}
	b := *balance
	b.ID = current.ID
	if b.LastUpdated.IsZero() {
		b.LastUpdated = time.Now()
	}
	t.balances[key] = b
	return nil
}

// AppendMovement stages a ledger entry, rejecting duplicate references
// 台帳エントリを追加
func (t *memoryTx) AppendMovement(ctx context.Context, movement *inventory.Movement) error {
	if movement.Reference != "" {
		// 同一参照番号の並行書き込みを直列化する
		if err := t.lock(ctx, referenceLockKey(movement)); err != nil {
			return err
		}
		for _, m := range t.merged().movements {
			if m.Type == movement.Type && m.Reference == movement.Reference && m.ProductID == movement.ProductID {
				return inventory.NewStorageError("append_movement",
					fmt.Sprintf("参照番号 %s は既に記録されています", movement.Reference), inventory.ErrDuplicateReference)
			}
		}
	}
	movement.ID = t.s.nextID("stock_movements")
	if movement.CreatedAt.IsZero() {
		movement.CreatedAt = time.Now()
	}
	t.movements = append(t.movements, *movement)
	return nil
}

// NextSequence increments a durable counter
// 永続カウンタを進める
func (t *memoryTx) NextSequence(ctx context.Context, key string) (int64, error) {
	if err := t.lock(ctx, "seq:"+key); err != nil {
		return 0, err
	}
	current, ok := t.sequences[key]
	if !ok {
		t.s.mu.RLock()
		current = t.s.sequences[key]
		t.s.mu.RUnlock()
	}
	current++
	t.sequences[key] = current
	return current, nil
}

// CreatePurchaseOrder stages an order with its items
// 発注書を明細付きで作成
func (t *memoryTx) CreatePurchaseOrder(ctx context.Context, po *inventory.PurchaseOrder) error {
	if _, err := t.GetSupplier(ctx, po.SupplierID); err != nil {
		return err
	}
	for _, existing := range t.merged().orders {
		if existing.OrderNumber == po.OrderNumber {
			return inventory.NewStorageError("create_purchase_order", fmt.Sprintf("発注番号が重複しています: %s", po.OrderNumber), nil)
		}
	}
	po.ID = t.s.nextID("purchase_orders")
	for i := range po.Items {
		po.Items[i].ID = t.s.nextID("purchase_order_items")
		po.Items[i].PurchaseOrderID = po.ID
	}
	if err := t.lock(ctx, orderLockKey(po.ID)); err != nil {
		return err
	}
	t.orders[po.ID] = po.Clone()
	return nil
}

// LockPurchaseOrder locks the order row and returns a copy
// 発注書行をロックして取得
func (t *memoryTx) LockPurchaseOrder(ctx context.Context, id int64) (*inventory.PurchaseOrder, error) {
	if err := t.lock(ctx, orderLockKey(id)); err != nil {
		return nil, err
	}
	return t.GetPurchaseOrder(ctx, id)
}

// UpdatePurchaseOrder stages the order status and item received quantities
func (t *memoryTx) UpdatePurchaseOrder(ctx context.Context, po *inventory.PurchaseOrder) error {
	if _, err := t.LockPurchaseOrder(ctx, po.ID); err != nil {
		return err
	}
	t.orders[po.ID] = po.Clone()
	return nil
}

// CreateAlert stages an alert; open threshold alerts are unique per (product, type)
// アラートを作成
func (t *memoryTx) CreateAlert(ctx context.Context, alert *inventory.Alert) error {
	if alert.Type.IsThreshold() && alert.ProductID != nil {
		if err := t.lock(ctx, fmt.Sprintf("alert-open:%d:%s", *alert.ProductID, alert.Type)); err != nil {
			return err
		}
		existing, err := t.FindUnresolvedAlert(ctx, *alert.ProductID, alert.Type)
		if err != nil {
			return err
		}
		if existing != nil {
			return inventory.NewStorageError("create_alert", "未解決のアラートが存在します", inventory.ErrDuplicateAlert)
		}
	}
	alert.ID = t.s.nextID("alerts")
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = time.Now()
	}
	if err := t.lock(ctx, alertLockKey(alert.ID)); err != nil {
		return err
	}
	t.alerts[alert.ID] = *alert
	return nil
}

// LockAlert locks the alert row and returns a copy
func (t *memoryTx) LockAlert(ctx context.Context, id int64) (*inventory.Alert, error) {
	if err := t.lock(ctx, alertLockKey(id)); err != nil {
		return nil, err
	}
	return t.GetAlert(ctx, id)
}

// UpdateAlert stages an alert. Resolved alerts are immutable.
// アラートを更新（解決済みは変更不可）
func (t *memoryTx) UpdateAlert(ctx context.Context, alert *inventory.Alert) error {
	current, err := t.LockAlert(ctx, alert.ID)
	if err != nil {
		return err
	}
	if current.Resolved {
		return inventory.NewStorageError("update_alert", "解決済みアラートは変更できません", inventory.ErrAlreadyResolved)
	}
	t.alerts[alert.ID] = *alert
	return nil
}

// AfterCommit registers a post-commit hook
func (t *memoryTx) AfterCommit(fn func()) {
	t.hooks = append(t.hooks, fn)
}

func balanceLockKey(k inventory.BalanceKey) string {
	return fmt.Sprintf("balance:%d:%d", k.WarehouseID, k.ProductID)
}

func referenceLockKey(m *inventory.Movement) string {
	return fmt.Sprintf("ref:%s:%d:%s", m.Type, m.ProductID, m.Reference)
}

func orderLockKey(id int64) string { return fmt.Sprintf("po:%d", id) }

func alertLockKey(id int64) string { return fmt.Sprintf("alert:%d", id) }

// rowLocks is a table of exclusive row locks with bounded waits
type rowLocks struct {
	mu   sync.Mutex
	rows map[string]chan struct{}
}

func (l *rowLocks) slot(key string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	ch, ok := l.rows[key]
	if !ok {
		ch = make(chan struct{}, 1)
		l.rows[key] = ch
	}
	return ch
}

func (l *rowLocks) acquire(ctx context.Context, key string, wait time.Duration) error {
	ch := l.slot(key)
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case ch <- struct{}{}:
		return nil
	case <-timer.C:
		return inventory.NewStorageError("lock", fmt.Sprintf("行ロックを取得できませんでした: %s", key), inventory.ErrLockTimeout)
	case <-ctx.Done():
		return inventory.NewCancelledError("lock", ctx.Err())
	}
}

func (l *rowLocks) release(key string) {
	<-l.slot(key)
}

// memorySnapshot is a point-in-time copy used by the read paths
type memorySnapshot struct {
	balances  map[inventory.BalanceKey]inventory.Balance
	movements []inventory.Movement
	orders    map[int64]*inventory.PurchaseOrder
	alerts    map[int64]inventory.Alert
}

// memoryReader implements inventory.Reader over a snapshot source
type memoryReader struct {
	s    *MemoryStorage
	snap func() *memorySnapshot
}

func (r memoryReader) GetProduct(ctx context.Context, id int64) (*inventory.Product, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	p, ok := r.s.products[id]
	if !ok {
		return nil, inventory.NewNotFoundError(inventory.EntityProduct, id)
	}
	return &p, nil
}

func (r memoryReader) ListProducts(ctx context.Context, activeOnly bool) ([]inventory.Product, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]inventory.Product, 0, len(r.s.products))
	for _, p := range r.s.products {
		if activeOnly && !p.Active {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r memoryReader) GetWarehouse(ctx context.Context, id int64) (*inventory.Warehouse, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	w, ok := r.s.warehouses[id]
	if !ok {
		return nil, inventory.NewNotFoundError(inventory.EntityWarehouse, id)
	}
	return &w, nil
}

func (r memoryReader) GetSupplier(ctx context.Context, id int64) (*inventory.Supplier, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	sup, ok := r.s.suppliers[id]
	if !ok {
		return nil, inventory.NewNotFoundError(inventory.EntitySupplier, id)
	}
	return &sup, nil
}

func (r memoryReader) FindBalance(ctx context.Context, warehouseID, productID int64) (*inventory.Balance, error) {
	b, ok := r.snap().balances[inventory.BalanceKey{WarehouseID: warehouseID, ProductID: productID}]
	if !ok {
		return nil, nil
	}
	return &b, nil
}

func (r memoryReader) ListBalancesByWarehouse(ctx context.Context, warehouseID int64) ([]inventory.Balance, error) {
	var out []inventory.Balance
	for _, b := range r.snap().balances {
		if b.WarehouseID == warehouseID {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out, nil
}

func (r memoryReader) TotalByProduct(ctx context.Context, productID int64) (int64, error) {
	var total int64
	for _, b := range r.snap().balances {
		if b.ProductID == productID {
			total += b.Quantity
		}
	}
	return total, nil
}

func (r memoryReader) StockTotals(ctx context.Context) (map[int64]int64, error) {
	totals := make(map[int64]int64)
	for _, b := range r.snap().balances {
		totals[b.ProductID] += b.Quantity
	}
	return totals, nil
}

func (r memoryReader) RecentMovements(ctx context.Context, limit int) ([]inventory.Movement, error) {
	movements := newestFirst(r.snap().movements)
	if limit > 0 && len(movements) > limit {
		movements = movements[:limit]
	}
	return movements, nil
}

func (r memoryReader) MovementsByProduct(ctx context.Context, productID int64) ([]inventory.Movement, error) {
	var out []inventory.Movement
	for _, m := range r.snap().movements {
		if m.ProductID == productID {
			out = append(out, m)
		}
	}
	return newestFirst(out), nil
}

func (r memoryReader) MovementsBetween(ctx context.Context, from, to time.Time) ([]inventory.Movement, error) {
	var out []inventory.Movement
	for _, m := range r.snap().movements {
		if !m.CreatedAt.Before(from) && !m.CreatedAt.After(to) {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r memoryReader) GetPurchaseOrder(ctx context.Context, id int64) (*inventory.PurchaseOrder, error) {
	po, ok := r.snap().orders[id]
	if !ok {
		return nil, inventory.NewNotFoundError(inventory.EntityPurchaseOrder, id)
	}
	return po, nil
}

func (r memoryReader) ListPurchaseOrders(ctx context.Context, status *inventory.POStatus) ([]inventory.PurchaseOrder, error) {
	var out []inventory.PurchaseOrder
	for _, po := range r.snap().orders {
		if status != nil && po.Status != *status {
			continue
		}
		out = append(out, *po)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (r memoryReader) CountPurchaseOrders(ctx context.Context, statuses ...inventory.POStatus) (int64, error) {
	var n int64
	for _, po := range r.snap().orders {
		for _, st := range statuses {
			if po.Status == st {
				n++
				break
			}
		}
	}
	return n, nil
}

func (r memoryReader) GetAlert(ctx context.Context, id int64) (*inventory.Alert, error) {
	a, ok := r.snap().alerts[id]
	if !ok {
		return nil, inventory.NewNotFoundError(inventory.EntityAlert, id)
	}
	return &a, nil
}

func (r memoryReader) FindUnresolvedAlert(ctx context.Context, productID int64, alertType inventory.AlertType) (*inventory.Alert, error) {
	for _, a := range r.snap().alerts {
		if !a.Resolved && a.Type == alertType && a.ProductID != nil && *a.ProductID == productID {
			return &a, nil
		}
	}
	return nil, nil
}

func (r memoryReader) ListUnresolvedAlerts(ctx context.Context) ([]inventory.Alert, error) {
	var out []inventory.Alert
	for _, a := range r.snap().alerts {
		if !a.Resolved {
			out = append(out, a)
		}
	}
	sortAlertsNewestFirst(out)
	return out, nil
}

func (r memoryReader) CountUnresolvedAlerts(ctx context.Context) (int64, error) {
	var n int64
	for _, a := range r.snap().alerts {
		if !a.Resolved {
			n++
		}
	}
	return n, nil
}

func (r memoryReader) RecentAlerts(ctx context.Context, limit int) ([]inventory.Alert, error) {
	out := make([]inventory.Alert, 0)
	for _, a := range r.snap().alerts {
		out = append(out, a)
	}
	sortAlertsNewestFirst(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func newestFirst(movements []inventory.Movement) []inventory.Movement {
	out := append([]inventory.Movement(nil), movements...)
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out
}

func sortAlertsNewestFirst(alerts []inventory.Alert) {
	sort.Slice(alerts, func(i, j int) bool {
		if !alerts[i].CreatedAt.Equal(alerts[j].CreatedAt) {
			return alerts[i].CreatedAt.After(alerts[j].CreatedAt)
		}
		return alerts[i].ID > alerts[j].ID
	})
}
