package advisory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/nemonet1337/zaiWarehouse/pkg/inventory"
)

type stubDetector struct {
	got  AnomalyRequest
	resp *AnomalyResponse
	err  error
}

func (d *stubDetector) Anomaly(ctx context.Context, req AnomalyRequest) (*AnomalyResponse, error) {
	d.got = req
	return d.resp, d.err
}

type stubLedger struct {
	from, to  time.Time
	movements []inventory.Movement
}

func (l *stubLedger) MovementsBetween(ctx context.Context, from, to time.Time) ([]inventory.Movement, error) {
	l.from, l.to = from, to
	return l.movements, nil
}

type stubProducts map[int64]string

func (p stubProducts) GetProduct(ctx context.Context, id int64) (*inventory.Product, error) {
	name, ok := p[id]
	if !ok {
		return nil, inventory.NewNotFoundError(inventory.EntityProduct, id)
	}
	return &inventory.Product{ID: id, Name: name}, nil
}

type mockAlerts struct {
	mock.Mock
}

func (m *mockAlerts) CreateAlert(ctx context.Context, req inventory.CreateAlertRequest) (*inventory.Alert, error) {
	args := m.Called(ctx, req)
	if a := args.Get(0); a != nil {
		return a.(*inventory.Alert), args.Error(1)
	}
	return nil, args.Error(1)
}

func TestSweeperCreatesAnomalyAlerts(t *testing.T) {
	now := time.Date(2024, 4, 1, 12, 0, 0, 0, time.UTC)
	w1 := int64(1)
	ledger := &stubLedger{movements: []inventory.Movement{
		{ProductID: 10, Type: inventory.MovementTypeOut, FromWarehouseID: &w1, Quantity: 900, CreatedAt: now.Add(-time.Hour)},
		{ProductID: 10, Type: inventory.MovementTypeTransfer, Quantity: 5, CreatedAt: now.Add(-time.Hour)},
		{ProductID: 11, Type: inventory.MovementTypeIn, ToWarehouseID: &w1, Quantity: 20, CreatedAt: now.Add(-2 * time.Hour)},
	}}
	detector := &stubDetector{resp: &AnomalyResponse{
		Anomalies: []AnomalyDetail{
			{ProductID: 10, ProductName: "ナット", AnomalyType: "spike", Description: "出庫急増", Severity: "high"},
			{ProductID: 11, ProductName: "ワッシャー", AnomalyType: "drop", Description: "入庫減少", Severity: "unknown"},
		},
		TotalChecked: 2,
		AnomalyCount: 2,
	}}

	alerts := new(mockAlerts)
	alerts.On("CreateAlert", mock.Anything, mock.MatchedBy(func(req inventory.CreateAlertRequest) bool {
		return *req.ProductID == 10 && req.Severity == inventory.SeverityHigh && req.Type == inventory.AlertTypeAnomaly
	})).Return(&inventory.Alert{ID: 1}, nil).Once()
	alerts.On("CreateAlert", mock.Anything, mock.MatchedBy(func(req inventory.CreateAlertRequest) bool {
		return *req.ProductID == 11 && req.Severity == inventory.SeverityMedium
	})).Return(&inventory.Alert{ID: 2}, nil).Once()

	sweeper := NewSweeper(detector, ledger, stubProducts{10: "ナット", 11: "ワッシャー"}, alerts, nil)
	sweeper.now = func() time.Time { return now }

	created, err := sweeper.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, created)
	alerts.AssertExpectations(t)

	assert.Equal(t, now.Add(-DefaultSweepWindow), ledger.from)
	assert.Equal(t, now, ledger.to)
	require.Len(t, detector.got.Movements, 2)
	assert.Equal(t, MovementData{ProductID: 10, ProductName: "ナット", Date: "2024-04-01", Quantity: 900, MovementType: "OUT"}, detector.got.Movements[0])
	assert.Equal(t, "IN", detector.got.Movements[1].MovementType)
}

func TestSweeperDetectorFailure(t *testing.T) {
	ledger := &stubLedger{movements: []inventory.Movement{
		{ProductID: 10, Type: inventory.MovementTypeIn, Quantity: 1, CreatedAt: time.Now()},
	}}
	detector := &stubDetector{err: ErrUnavailable}
	alerts := new(mockAlerts)

	sweeper := NewSweeper(detector, ledger, stubProducts{10: "ナット"}, alerts, nil)
	created, err := sweeper.Run(context.Background())
	assert.True(t, errors.Is(err, ErrUnavailable))
	assert.Zero(t, created)
	alerts.AssertNotCalled(t, "CreateAlert", mock.Anything, mock.Anything)
}

func TestSweeperNoMovements(t *testing.T) {
	detector := &stubDetector{}
	sweeper := NewSweeper(detector, &stubLedger{}, stubProducts{}, new(mockAlerts), nil)

	created, err := sweeper.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, created)
	assert.Nil(t, detector.got.Movements)
}
