package cost

import (
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/roosthq/roost/pkg/types"
)

// AnomalyDeviationPct is the deviation from expected spend, in percent,
// beyond which a window is anomalous
const AnomalyDeviationPct = 50.0

// DetectAnomalies compares each instance's spend over the window ending
// at now against the preceding window of the same length. An instance
// with no prior spend is skipped; there is nothing to deviate from.
func (s *Service) DetectAnomalies(window time.Duration, now time.Time) ([]*types.CostAnomaly, error) {
	instances, err := s.store.ListInstances()
	if err != nil {
		return nil, err
	}

	var anomalies []*types.CostAnomaly
	for _, inst := range instances {
		actual, err := s.sumEntries(inst.ID, now.Add(-window), now)
		if err != nil {
			return nil, err
		}
		expected, err := s.sumEntries(inst.ID, now.Add(-2*window), now.Add(-window))
		if err != nil {
			return nil, err
		}
		if expected == 0 {
			continue
		}

		deviation := math.Abs(actual-expected) / expected * 100
		if deviation <= AnomalyDeviationPct {
			continue
		}

		anomaly := &types.CostAnomaly{
			ID:           uuid.New().String(),
			InstanceID:   inst.ID,
			ExpectedUSD:  expected,
			ActualUSD:    actual,
			DeviationPct: deviation,
			WindowStart:  now.Add(-window),
			WindowEnd:    now,
			DetectedAt:   now,
		}
		if err := s.store.CreateCostAnomaly(anomaly); err != nil {
			return anomalies, err
		}
		anomalies = append(anomalies, anomaly)
		s.logger.Warn().
			Str("instance_id", inst.ID).
			Float64("expected_usd", expected).
			Float64("actual_usd", actual).
			Float64("deviation_pct", deviation).
			Msg("Cost anomaly detected")
	}
	return anomalies, nil
}

// DefaultMonitorInterval is how often budgets and anomalies are checked
const DefaultMonitorInterval = time.Hour

// Monitor periodically evaluates budgets and scans for anomalies
type Monitor struct {
	service  *Service
	interval time.Duration
	window   time.Duration

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewMonitor creates the cost monitor. The anomaly window matches the
// evaluation interval.
func NewMonitor(service *Service) *Monitor {
	return &Monitor{
		service:  service,
		interval: DefaultMonitorInterval,
		window:   24 * time.Hour,
		stopCh:   make(chan struct{}),
	}
}

// Start launches the evaluation loop
func (m *Monitor) Start() {
	m.wg.Add(1)
	go m.run()
	m.service.logger.Info().Dur("interval", m.interval).Msg("Cost monitor started")
}

// Stop halts the evaluation loop
func (m *Monitor) Stop() {
	close(m.stopCh)
	m.wg.Wait()
}

func (m *Monitor) run() {
	defer m.wg.Done()
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			now := m.service.nowFunc()
			if err := m.service.EvaluateBudgets(now); err != nil {
				m.service.logger.Error().Err(err).Msg("Budget sweep failed")
			}
			if _, err := m.service.DetectAnomalies(m.window, now); err != nil {
				m.service.logger.Error().Err(err).Msg("Anomaly sweep failed")
			}
		}
	}
}
