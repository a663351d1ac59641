package cost

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/roosthq/roost/pkg/log"
	"github.com/roosthq/roost/pkg/storage"
	"github.com/roosthq/roost/pkg/types"
)

// Rollup is the reporting resolution for spend totals
type Rollup string

const (
	RollupHourly  Rollup = "HOURLY"
	RollupDaily   Rollup = "DAILY"
	RollupMonthly Rollup = "MONTHLY"
)

// PeriodTotal is the spend over one reporting bucket
type PeriodTotal struct {
	PeriodStart time.Time                      `json:"periodStart"`
	TotalUSD    float64                        `json:"totalUsd"`
	ByCategory  map[types.CostCategory]float64 `json:"byCategory"`
}

// Service owns cost entries, budgets and recommendations
type Service struct {
	store   storage.Store
	logger  zerolog.Logger
	nowFunc func() time.Time
}

// NewService creates the cost service
func NewService(store storage.Store) *Service {
	return &Service{
		store:   store,
		logger:  log.WithComponent("cost"),
		nowFunc: time.Now,
	}
}

// ValidateEntry checks a cost entry before it is recorded
func ValidateEntry(entry *types.CostEntry) error {
	var details []string
	if entry.InstanceID == "" {
		details = append(details, "instanceId must not be empty")
	}
	if !types.ValidCostCategory(entry.Category) {
		details = append(details, "category must be one of COMPUTE, STORAGE, NETWORK, EGRESS, OTHER")
	}
	if entry.AmountUSD < 0 {
		details = append(details, "amountUsd must be non-negative")
	}
	if !entry.PeriodStart.Before(entry.PeriodEnd) {
		details = append(details, "periodStart must be before periodEnd")
	}
	if entry.Provider != "" && !types.ValidProvider(entry.Provider) {
		details = append(details, "provider is not supported")
	}
	if len(details) > 0 {
		return types.NewValidationError(details...)
	}
	return nil
}

// Record validates and stores a cost entry
func (s *Service) Record(entry *types.CostEntry) error {
	if err := ValidateEntry(entry); err != nil {
		return err
	}
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	entry.CreatedAt = s.nowFunc()
	return s.store.CreateCostEntry(entry)
}

func bucketStart(ts time.Time, rollup Rollup) time.Time {
	ts = ts.UTC()
	switch rollup {
	case RollupHourly:
		return ts.Truncate(time.Hour)
	case RollupDaily:
		return time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC)
	default:
		return time.Date(ts.Year(), ts.Month(), 1, 0, 0, 0, 0, time.UTC)
	}
}

// Totals sums entries into reporting buckets keyed by the entry's period
// start. An empty instance id totals the whole fleet.
func (s *Service) Totals(instanceID string, rollup Rollup, from, to time.Time) ([]PeriodTotal, error) {
	entries, err := s.store.ListCostEntries(instanceID, from, to)
	if err != nil {
		return nil, err
	}

	buckets := make(map[time.Time]*PeriodTotal)
	for _, entry := range entries {
		start := bucketStart(entry.PeriodStart, rollup)
		total, ok := buckets[start]
		if !ok {
			total = &PeriodTotal{
				PeriodStart: start,
				ByCategory:  make(map[types.CostCategory]float64),
			}
			buckets[start] = total
		}
		total.TotalUSD += entry.AmountUSD
		total.ByCategory[entry.Category] += entry.AmountUSD
	}

	totals := make([]PeriodTotal, 0, len(buckets))
	for _, total := range buckets {
		totals = append(totals, *total)
	}
	sort.Slice(totals, func(i, j int) bool { return totals[i].PeriodStart.Before(totals[j].PeriodStart) })
	return totals, nil
}

// AddRecommendation stores an optimization suggestion
func (s *Service) AddRecommendation(rec *types.OptimizationRecommendation) error {
	var details []string
	if rec.Action == "" {
		details = append(details, "action must not be empty")
	}
	if rec.Confidence < 0 || rec.Confidence > 100 {
		details = append(details, "confidence must be between 0 and 100")
	}
	if rec.PotentialSavingsUSD < 0 {
		details = append(details, "potentialSavingsUsd must be non-negative")
	}
	if len(details) > 0 {
		return types.NewValidationError(details...)
	}
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	rec.CreatedAt = s.nowFunc()
	return s.store.PutRecommendation(rec)
}

// Recommendations lists suggestions sorted by potential savings descending
func (s *Service) Recommendations() ([]*types.OptimizationRecommendation, error) {
	recs, err := s.store.ListRecommendations()
	if err != nil {
		return nil, err
	}
	sort.SliceStable(recs, func(i, j int) bool {
		return recs[i].PotentialSavingsUSD > recs[j].PotentialSavingsUSD
	})
	return recs, nil
}
