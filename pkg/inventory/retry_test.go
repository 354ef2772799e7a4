package inventory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// MockStore はテスト用のStoreモック
type MockStore struct {
	mock.Mock
	Reader
}

func (m *MockStore) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	args := m.Called(ctx, fn)
	if tx, ok := args.Get(0).(Tx); ok {
		return fn(tx)
	}
	return args.Error(1)
}

func (m *MockStore) Ping(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockStore) Close() error {
	return m.Called().Error(0)
}

func (m *MockStore) GetProduct(ctx context.Context, id int64) (*Product, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Product), args.Error(1)
}

// MockTx はテスト用のTxモック
type MockTx struct {
	mock.Mock
	Tx
}

func (m *MockTx) GetProduct(ctx context.Context, id int64) (*Product, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Product), args.Error(1)
}

func (m *MockTx) GetWarehouse(ctx context.Context, id int64) (*Warehouse, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Warehouse), args.Error(1)
}

func (m *MockTx) LockBalances(ctx context.Context, keys []BalanceKey) (map[BalanceKey]*Balance, error) {
	args := m.Called(ctx, keys)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[BalanceKey]*Balance), args.Error(1)
}

func (m *MockTx) UpsertBalance(ctx context.Context, balance *Balance) error {
	return m.Called(ctx, balance).Error(0)
}

func (m *MockTx) AppendMovement(ctx context.Context, movement *Movement) error {
	return m.Called(ctx, movement).Error(0)
}

func (m *MockTx) AfterCommit(fn func()) {
	m.Called(fn)
}

func fastRetry() *Config {
	return &Config{Retry: RetryPolicy{MaxRetries: 3, BaseDelay: time.Millisecond, Multiplier: 2}}
}

func TestRetryPolicy_Delay(t *testing.T) {
	p := DefaultRetryPolicy()
	assert.Equal(t, 3, p.MaxRetries)
	assert.Equal(t, 50*time.Millisecond, p.Delay(0))
	assert.Equal(t, 200*time.Millisecond, p.Delay(1))
	assert.Equal(t, 800*time.Millisecond, p.Delay(2))
}

func TestRetryPolicy_Run(t *testing.T) {
	p := RetryPolicy{MaxRetries: 3, BaseDelay: time.Millisecond, Multiplier: 2}
	logger := zap.NewNop()

	t.Run("stops on permanent error", func(t *testing.T) {
		calls := 0
		err := p.run(context.Background(), "op", logger, nil, func() error {
			calls++
			return ErrInsufficientStock
		})
		assert.ErrorIs(t, err, ErrInsufficientStock)
		assert.Equal(t, 1, calls)
	})

	t.Run("succeeds after transient errors", func(t *testing.T) {
		calls := 0
		err := p.run(context.Background(), "op", logger, nil, func() error {
			calls++
			if calls < 3 {
				return NewStorageError("lock", "timeout", ErrLockTimeout)
			}
			return nil
		})
		assert.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("context expiry becomes cancelled", func(t *testing.T) {
		calls := 0
		err := p.run(context.Background(), "op", logger, nil, func() error {
			calls++
			return context.DeadlineExceeded
		})
		assert.ErrorIs(t, err, ErrCancelled)
		assert.Equal(t, 1, calls)
	})

	t.Run("operation deadline keeps the transient error", func(t *testing.T) {
		ctx, cancel := withOperationDeadline(context.Background(), 20*time.Millisecond)
		defer cancel()
		calls := 0
		err := p.run(ctx, "op", logger, nil, func() error {
			calls++
			if calls == 1 {
				return NewStorageError("lock", "timeout", ErrLockTimeout)
			}
			<-ctx.Done()
			return NewCancelledError("lock", ctx.Err())
		})
		assert.ErrorIs(t, err, ErrLockTimeout)
		assert.NotErrorIs(t, err, ErrCancelled)
		assert.Equal(t, 2, calls)
	})

	t.Run("deadline during backoff keeps the transient error", func(t *testing.T) {
		slow := RetryPolicy{MaxRetries: 3, BaseDelay: time.Hour, Multiplier: 1}
		ctx, cancel := withOperationDeadline(context.Background(), 10*time.Millisecond)
		defer cancel()
		err := slow.run(ctx, "op", logger, nil, func() error {
			return NewStorageError("get", "down", ErrStoreUnavailable)
		})
		assert.ErrorIs(t, err, ErrStoreUnavailable)
	})

	t.Run("deadline without a transient failure is cancelled", func(t *testing.T) {
		ctx, cancel := withOperationDeadline(context.Background(), time.Millisecond)
		defer cancel()
		err := p.run(ctx, "op", logger, nil, func() error {
			<-ctx.Done()
			return ctx.Err()
		})
		assert.ErrorIs(t, err, ErrCancelled)
	})

	t.Run("cancel during backoff", func(t *testing.T) {
		slow := RetryPolicy{MaxRetries: 3, BaseDelay: time.Hour, Multiplier: 1}
		ctx, cancel := context.WithCancel(context.Background())
		err := slow.run(ctx, "op", logger, nil, func() error {
			cancel()
			return ErrStoreUnavailable
		})
		assert.ErrorIs(t, err, ErrCancelled)
	})
}

func TestMovementEngine_RetriesDeadlock(t *testing.T) {
	store := new(MockStore)
	tx := new(MockTx)
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	engine := NewMovementEngine(store, nil, nil, metrics, fastRetry())

	key := BalanceKey{WarehouseID: 2, ProductID: 1}
	store.On("WithTx", mock.Anything, mock.Anything).Return(nil, NewStorageError("commit", "deadlock", ErrDeadlock)).Twice()
	store.On("WithTx", mock.Anything, mock.Anything).Return(tx, nil).Once()

	tx.On("GetProduct", mock.Anything, int64(1)).Return(&Product{ID: 1, Name: "ナット", Active: true}, nil)
	tx.On("GetWarehouse", mock.Anything, int64(2)).Return(&Warehouse{ID: 2, Code: "W2", Active: true}, nil)
	tx.On("LockBalances", mock.Anything, []BalanceKey{key}).
		Return(map[BalanceKey]*Balance{key: {WarehouseID: 2, ProductID: 1, Quantity: 5}}, nil)
	tx.On("UpsertBalance", mock.Anything, mock.MatchedBy(func(b *Balance) bool { return b.Quantity == 8 })).Return(nil)
	tx.On("AppendMovement", mock.Anything, mock.AnythingOfType("*inventory.Movement")).
		Run(func(args mock.Arguments) { args.Get(1).(*Movement).ID = 42 }).
		Return(nil)

	m, err := engine.Process(context.Background(), MovementRequest{
		ProductID:     1,
		Type:          MovementTypeIn,
		Quantity:      3,
		ToWarehouseID: &key.WarehouseID,
		Actor:         "yamada",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(42), m.ID)
	assert.Equal(t, "yamada", m.PerformedBy)

	store.AssertNumberOfCalls(t, "WithTx", 3)
	tx.AssertExpectations(t)
	tx.AssertNotCalled(t, "AfterCommit", mock.Anything)

	assert.Equal(t, float64(2), testutil.ToFloat64(metrics.retries.WithLabelValues("process_movement", "deadlock")))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.movements.WithLabelValues("IN", "ok")))
}

func TestMovementEngine_RetryBudgetExhausted(t *testing.T) {
	store := new(MockStore)
	metrics := NewMetrics(nil)
	engine := NewMovementEngine(store, nil, nil, metrics, fastRetry())

	store.On("WithTx", mock.Anything, mock.Anything).Return(nil, NewStorageError("lock", "timeout", ErrLockTimeout))

	w := int64(1)
	_, err := engine.Process(context.Background(), MovementRequest{ProductID: 1, Type: MovementTypeOut, Quantity: 1, FromWarehouseID: &w})
	assert.ErrorIs(t, err, ErrLockTimeout)
	store.AssertNumberOfCalls(t, "WithTx", 4)
	assert.Equal(t, float64(3), testutil.ToFloat64(metrics.retries.WithLabelValues("process_movement", "lock_timeout")))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.movements.WithLabelValues("OUT", "lock_timeout")))
}

func TestMovementEngine_InvalidRequestNeverReachesStore(t *testing.T) {
	store := new(MockStore)
	engine := NewMovementEngine(store, nil, nil, nil, nil)

	_, err := engine.Process(context.Background(), MovementRequest{ProductID: 1, Type: MovementTypeIn, Quantity: 0})
	assert.ErrorIs(t, err, ErrInvalidQuantity)
	_, err = engine.Process(context.Background(), MovementRequest{ProductID: 1, Type: "MOVE", Quantity: 1})
	assert.ErrorIs(t, err, ErrInvalidMovement)
	store.AssertNotCalled(t, "WithTx", mock.Anything, mock.Anything)
}

func TestMovementEngine_RegistersAlertHook(t *testing.T) {
	store := new(MockStore)
	tx := new(MockTx)
	evaluator := &recordingEvaluator{}
	engine := NewMovementEngine(store, evaluator, nil, nil, fastRetry())

	src := BalanceKey{WarehouseID: 1, ProductID: 7}
	dst := BalanceKey{WarehouseID: 2, ProductID: 7}
	store.On("WithTx", mock.Anything, mock.Anything).Return(tx, nil)
	tx.On("GetProduct", mock.Anything, int64(7)).Return(&Product{ID: 7, Active: true}, nil)
	tx.On("GetWarehouse", mock.Anything, mock.Anything).Return(&Warehouse{Active: true}, nil)
	tx.On("LockBalances", mock.Anything, mock.Anything).Return(map[BalanceKey]*Balance{
		src: {WarehouseID: 1, ProductID: 7, Quantity: 10},
		dst: {WarehouseID: 2, ProductID: 7, Quantity: 0},
	}, nil)
	tx.On("UpsertBalance", mock.Anything, mock.Anything).Return(nil)
	tx.On("AppendMovement", mock.Anything, mock.Anything).Return(nil)

	var hook func()
	tx.On("AfterCommit", mock.Anything).Run(func(args mock.Arguments) { hook = args.Get(0).(func()) })

	_, err := engine.Process(context.Background(), MovementRequest{
		ProductID:       7,
		Type:            MovementTypeTransfer,
		Quantity:        4,
		FromWarehouseID: &src.WarehouseID,
		ToWarehouseID:   &dst.WarehouseID,
	})
	require.NoError(t, err)

	// フックはコミット後に呼ばれるまで評価しない
	assert.Empty(t, evaluator.touched)
	require.NotNil(t, hook)
	hook()
	assert.ElementsMatch(t, []BalanceKey{src, dst}, evaluator.touched)
	assert.NoError(t, evaluator.ctxErr)
}

type recordingEvaluator struct {
	touched []BalanceKey
	ctxErr  error
}

func (r *recordingEvaluator) Evaluate(ctx context.Context, touched []BalanceKey) {
	r.touched = append(r.touched, touched...)
	r.ctxErr = ctx.Err()
}

func TestAlertEngine_UsesConfiguredRetry(t *testing.T) {
	req := CreateAlertRequest{Type: AlertTypeAnomaly, Severity: SeverityLow, Message: "出庫量の急増"}

	store := new(MockStore)
	store.On("WithTx", mock.Anything, mock.Anything).Return(nil, NewStorageError("commit", "deadlock", ErrDeadlock))
	_, err := NewAlertEngine(store, nil, nil, fastRetry()).CreateAlert(context.Background(), req)
	assert.ErrorIs(t, err, ErrDeadlock)
	store.AssertNumberOfCalls(t, "WithTx", 4)

	noRetry := new(MockStore)
	noRetry.On("WithTx", mock.Anything, mock.Anything).Return(nil, NewStorageError("commit", "deadlock", ErrDeadlock))
	_, err = NewAlertEngine(noRetry, nil, nil, &Config{Retry: RetryPolicy{MaxRetries: 0, BaseDelay: time.Millisecond, Multiplier: 2}}).
		Resolve(context.Background(), 1, "tanaka")
	assert.ErrorIs(t, err, ErrDeadlock)
	noRetry.AssertNumberOfCalls(t, "WithTx", 1)

	// 操作期限はWithTxに渡るコンテキストに設定される
	bounded := new(MockStore)
	bounded.On("WithTx", mock.MatchedBy(func(ctx context.Context) bool {
		deadline, ok := ctx.Deadline()
		return ok && time.Until(deadline) <= 50*time.Millisecond
	}), mock.Anything).Return(nil, NewStorageError("commit", "deadlock", ErrDeadlock))
	_, err = NewAlertEngine(bounded, nil, nil, &Config{OperationDeadline: 50 * time.Millisecond}).CreateAlert(context.Background(), req)
	assert.ErrorIs(t, err, ErrDeadlock)
}

func TestAlertEngine_EvaluateLogsFailures(t *testing.T) {
	store := new(MockStore)
	core, logs := observer.New(zapcore.WarnLevel)
	alerts := NewAlertEngine(store, zap.New(core), nil, nil)

	store.On("GetProduct", mock.Anything, int64(3)).Return(nil, NewStorageError("get_product", "down", ErrStoreUnavailable))

	alerts.Evaluate(context.Background(), []BalanceKey{
		{WarehouseID: 1, ProductID: 3},
		{WarehouseID: 2, ProductID: 3},
	})

	store.AssertNumberOfCalls(t, "GetProduct", 1)
	entries := logs.FilterField(zap.Int64("product_id", 3)).All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
}

func TestErrorKind(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, "ok"},
		{NewNotFoundError(EntityProduct, 1), "not_found"},
		{&InsufficientStockError{}, "insufficient_stock"},
		{&InvalidTransitionError{}, "invalid_transition"},
		{NewValidationError(ErrInvalidQuantity, "quantity", "", ""), "invalid_quantity"},
		{NewValidationError(nil, "from", "", ""), "invalid_request"},
		{NewValidationError(ErrInvalidRequest, "notes", "", ""), "invalid_request"},
		{NewCancelledError("op", context.Canceled), "cancelled"},
		{NewStorageError("op", "", ErrDeadlock), "deadlock"},
		{errors.New("boom"), "internal"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ErrorKind(tt.err), "%v", tt.err)
	}

	nf := NewNotFoundError(EntityPurchaseOrder, 9)
	assert.ErrorIs(t, nf, ErrNotFound)
	assert.ErrorIs(t, nf, ErrPurchaseOrderNotFound)
	assert.NotErrorIs(t, nf, ErrProductNotFound)

	assert.True(t, IsRetryable(NewStorageError("op", "", ErrStoreUnavailable)))
	assert.False(t, IsRetryable(ErrDuplicateReference))
}
