package advisory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/nemonet1337/zaiWarehouse/pkg/inventory"
)

// DefaultSweepWindow is how far back the anomaly sweep looks
const DefaultSweepWindow = 90 * 24 * time.Hour

// AnomalyDetector runs anomaly detection
type AnomalyDetector interface {
	Anomaly(ctx context.Context, req AnomalyRequest) (*AnomalyResponse, error)
}

// MovementSource provides ledger entries in a time range
type MovementSource interface {
	MovementsBetween(ctx context.Context, from, to time.Time) ([]inventory.Movement, error)
}

// ProductSource resolves product names
type ProductSource interface {
	GetProduct(ctx context.Context, id int64) (*inventory.Product, error)
}

// AlertSink records alerts
type AlertSink interface {
	CreateAlert(ctx context.Context, req inventory.CreateAlertRequest) (*inventory.Alert, error)
}

// Sweeper turns advisory anomaly findings into ANOMALY alerts
// 異常検知の結果をANOMALYアラートに変換する
type Sweeper struct {
	detector AnomalyDetector
	ledger   MovementSource
	products ProductSource
	alerts   AlertSink
	logger   *zap.Logger
	window   time.Duration
	now      func() time.Time
}

// NewSweeper creates a sweeper over the last DefaultSweepWindow of the ledger
// 新しいスイーパーを作成
func NewSweeper(detector AnomalyDetector, ledger MovementSource, products ProductSource, alerts AlertSink, logger *zap.Logger) *Sweeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sweeper{
		detector: detector,
		ledger:   ledger,
		products: products,
		alerts:   alerts,
		logger:   logger,
		window:   DefaultSweepWindow,
		now:      time.Now,
	}
}

// Run sends recent movements to anomaly detection and creates one alert per finding.
// It returns the number of alerts created.
// 直近の移動を異常検知に送り、検出ごとにアラートを作成する
func (s *Sweeper) Run(ctx context.Context) (int, error) {
	to := s.now()
	from := to.Add(-s.window)

	movements, err := s.ledger.MovementsBetween(ctx, from, to)
	if err != nil {
		return 0, fmt.Errorf("移動履歴の取得に失敗しました: %w", err)
	}

	data, err := s.movementData(ctx, movements)
	if err != nil {
		return 0, err
	}
	if len(data) == 0 {
		s.logger.Debug("異常検知の対象となる移動がありません")
		return 0, nil
	}

	resp, err := s.detector.Anomaly(ctx, AnomalyRequest{Movements: data})
	if err != nil {
		s.logger.Warn("異常検知に失敗しました", zap.Error(err))
		return 0, err
	}

	created := 0
	for _, finding := range resp.Anomalies {
		productID := finding.ProductID
		alert, err := s.alerts.CreateAlert(ctx, inventory.CreateAlertRequest{
			ProductID: &productID,
			Type:      inventory.AlertTypeAnomaly,
			Message:   anomalyMessage(finding),
			Severity:  severityOf(finding.Severity),
		})
		if err != nil {
			s.logger.Warn("異常アラートの作成に失敗しました",
				zap.Int64("product_id", finding.ProductID),
				zap.String("anomaly_type", finding.AnomalyType),
				zap.Error(err),
			)
			return created, err
		}
		created++
		s.logger.Info("異常アラートを作成しました",
			zap.Int64("alert_id", alert.ID),
			zap.Int64("product_id", finding.ProductID),
			zap.String("anomaly_type", finding.AnomalyType),
			zap.Float64("score", finding.Score),
		)
	}

	s.logger.Info("異常検知スイープ完了",
		zap.Int("movements", len(data)),
		zap.Int("total_checked", resp.TotalChecked),
		zap.Int("alerts_created", created),
	)
	return created, nil
}

// RunEvery runs the sweep on each tick until ctx is done
// ctxが終了するまで定期的にスイープを実行
func (s *Sweeper) RunEvery(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Run(ctx); err != nil {
				s.logger.Warn("定期スイープに失敗しました", zap.Error(err))
			}
		}
	}
}

func (s *Sweeper) movementData(ctx context.Context, movements []inventory.Movement) ([]MovementData, error) {
	names := make(map[int64]string)
	data := make([]MovementData, 0, len(movements))
	for _, m := range movements {
		in, out := split(m)
		if in == 0 && out == 0 {
			continue
		}

		name, ok := names[m.ProductID]
		if !ok {
			p, err := s.products.GetProduct(ctx, m.ProductID)
			if err != nil {
				return nil, fmt.Errorf("商品の取得に失敗しました: %w", err)
			}
			name = p.Name
			names[m.ProductID] = name
		}

		md := MovementData{
			ProductID:    m.ProductID,
			ProductName:  name,
			Date:         m.CreatedAt.Format("2006-01-02"),
			Quantity:     in,
			MovementType: string(inventory.MovementTypeIn),
		}
		if out > 0 {
			md.Quantity = out
			md.MovementType = string(inventory.MovementTypeOut)
		}
		data = append(data, md)
	}
	return data, nil
}

func anomalyMessage(d AnomalyDetail) string {
	return fmt.Sprintf("%s: %s (期待値 %.1f / 実績 %.1f)", d.ProductName, d.Description, d.ExpectedValue, d.ActualValue)
}

func severityOf(s string) inventory.Severity {
	switch sev := inventory.Severity(strings.ToUpper(s)); sev {
	case inventory.SeverityLow, inventory.SeverityMedium, inventory.SeverityHigh, inventory.SeverityCritical:
		return sev
	}
	return inventory.SeverityMedium
}
