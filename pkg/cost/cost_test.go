package cost

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roosthq/roost/pkg/storage"
	"github.com/roosthq/roost/pkg/types"
)

func newTestService(t *testing.T) (*Service, storage.Store) {
	t.Helper()
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return NewService(store), store
}

func entry(id, instanceID string, category types.CostCategory, amount float64, start time.Time, d time.Duration) *types.CostEntry {
	return &types.CostEntry{
		ID:          id,
		InstanceID:  instanceID,
		Category:    category,
		AmountUSD:   amount,
		PeriodStart: start,
		PeriodEnd:   start.Add(d),
		Provider:    types.ProviderFly,
	}
}

func TestValidateEntry(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name  string
		entry *types.CostEntry
		valid bool
	}{
		{"valid", entry("c1", "i1", types.CostCompute, 1.5, now, time.Hour), true},
		{"zero amount", entry("c2", "i1", types.CostOther, 0, now, time.Hour), true},
		{"negative amount", entry("c3", "i1", types.CostCompute, -1, now, time.Hour), false},
		{"bad category", entry("c4", "i1", "GPU", 1, now, time.Hour), false},
		{"inverted period", entry("c5", "i1", types.CostCompute, 1, now, -time.Hour), false},
		{"no instance", entry("c6", "", types.CostCompute, 1, now, time.Hour), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateEntry(tt.entry)
			if tt.valid {
				assert.NoError(t, err)
			} else {
				_, ok := types.IsValidation(err)
				assert.True(t, ok)
			}
		})
	}
}

func TestTotalsRollup(t *testing.T) {
	service, _ := newTestService(t)

	day1 := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	day2 := time.Date(2026, 8, 2, 11, 0, 0, 0, time.UTC)
	require.NoError(t, service.Record(entry("c1", "i1", types.CostCompute, 10, day1, time.Hour)))
	require.NoError(t, service.Record(entry("c2", "i1", types.CostStorage, 5, day1, time.Hour)))
	require.NoError(t, service.Record(entry("c3", "i1", types.CostCompute, 20, day2, time.Hour)))

	daily, err := service.Totals("i1", RollupDaily, time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, daily, 2)
	assert.Equal(t, 15.0, daily[0].TotalUSD)
	assert.Equal(t, 10.0, daily[0].ByCategory[types.CostCompute])
	assert.Equal(t, 5.0, daily[0].ByCategory[types.CostStorage])
	assert.Equal(t, 20.0, daily[1].TotalUSD)
	assert.True(t, daily[0].PeriodStart.Before(daily[1].PeriodStart))

	monthly, err := service.Totals("i1", RollupMonthly, time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, monthly, 1)
	assert.Equal(t, 35.0, monthly[0].TotalUSD)
}

func TestValidateBudget(t *testing.T) {
	tests := []struct {
		name   string
		budget types.Budget
		valid  bool
	}{
		{"fleet monthly", types.Budget{Name: "b", Scope: types.BudgetScopeFleet, Period: types.BudgetMonthly, LimitUSD: 100, Thresholds: []int{50, 100}}, true},
		{"team weekly", types.Budget{Name: "b", Scope: types.BudgetScopeTeam, ScopeID: "t1", Period: types.BudgetWeekly, LimitUSD: 10, Thresholds: []int{80}}, true},
		{"team without scope id", types.Budget{Name: "b", Scope: types.BudgetScopeTeam, Period: types.BudgetWeekly, LimitUSD: 10, Thresholds: []int{80}}, false},
		{"fleet with scope id", types.Budget{Name: "b", Scope: types.BudgetScopeFleet, ScopeID: "x", Period: types.BudgetDaily, LimitUSD: 10, Thresholds: []int{50}}, false},
		{"bad threshold", types.Budget{Name: "b", Scope: types.BudgetScopeFleet, Period: types.BudgetMonthly, LimitUSD: 100, Thresholds: []int{60}}, false},
		{"no thresholds", types.Budget{Name: "b", Scope: types.BudgetScopeFleet, Period: types.BudgetMonthly, LimitUSD: 100}, false},
		{"zero limit", types.Budget{Name: "b", Scope: types.BudgetScopeFleet, Period: types.BudgetMonthly, Thresholds: []int{50}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateBudget(&tt.budget)
			if tt.valid {
				assert.NoError(t, err)
			} else {
				_, ok := types.IsValidation(err)
				assert.True(t, ok)
			}
		})
	}
}

func TestPeriodWindow(t *testing.T) {
	now := time.Date(2026, 8, 19, 15, 30, 0, 0, time.UTC) // a Wednesday

	start, end, key := periodWindow(types.BudgetMonthly, now)
	assert.Equal(t, time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC), end)
	assert.Equal(t, "2026-08", key)

	start, _, key = periodWindow(types.BudgetWeekly, now)
	assert.Equal(t, time.Date(2026, 8, 17, 0, 0, 0, 0, time.UTC), start) // Monday
	assert.Equal(t, "2026-W34", key)

	start, end, key = periodWindow(types.BudgetDaily, now)
	assert.Equal(t, time.Date(2026, 8, 19, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, start.AddDate(0, 0, 1), end)
	assert.Equal(t, "2026-08-19", key)
}

func TestBudgetAlertExactlyOnce(t *testing.T) {
	service, store := newTestService(t)
	now := time.Date(2026, 8, 19, 12, 0, 0, 0, time.UTC)

	budget := &types.Budget{
		Name:       "i1 monthly",
		Scope:      types.BudgetScopeInstance,
		ScopeID:    "i1",
		Period:     types.BudgetMonthly,
		LimitUSD:   100,
		Thresholds: []int{50, 100},
	}
	require.NoError(t, service.CreateBudget(budget))

	require.NoError(t, service.Record(entry("c1", "i1", types.CostCompute, 60, now.Add(-48*time.Hour), time.Hour)))

	fired, err := service.EvaluateBudget(budget, now)
	require.NoError(t, err)
	require.Len(t, fired, 1)
	assert.Equal(t, 50, fired[0].Threshold)
	assert.Equal(t, 60.0, fired[0].ActualUSD)

	// Re-evaluation of the same period fires nothing new
	fired, err = service.EvaluateBudget(budget, now)
	require.NoError(t, err)
	assert.Empty(t, fired)

	// Crossing the next threshold fires only that one
	require.NoError(t, service.Record(entry("c2", "i1", types.CostCompute, 50, now.Add(-24*time.Hour), time.Hour)))
	fired, err = service.EvaluateBudget(budget, now)
	require.NoError(t, err)
	require.Len(t, fired, 1)
	assert.Equal(t, 100, fired[0].Threshold)

	alerts, err := store.ListBudgetAlerts(budget.ID)
	require.NoError(t, err)
	assert.Len(t, alerts, 2)

	// A fresh billing period starts from scratch
	nextMonth := now.AddDate(0, 1, 0)
	require.NoError(t, service.Record(entry("c3", "i1", types.CostCompute, 55, nextMonth.Add(-time.Hour), time.Hour)))
	fired, err = service.EvaluateBudget(budget, nextMonth)
	require.NoError(t, err)
	require.Len(t, fired, 1)
	assert.Equal(t, 50, fired[0].Threshold)
}

func TestTeamScopedBudget(t *testing.T) {
	service, store := newTestService(t)
	now := time.Date(2026, 8, 19, 12, 0, 0, 0, time.UTC)

	require.NoError(t, store.CreateInstance(&types.Instance{ID: "i1", Name: "a", Provider: types.ProviderFly, TeamID: "t1", Status: types.StatusRunning}))
	require.NoError(t, store.CreateInstance(&types.Instance{ID: "i2", Name: "b", Provider: types.ProviderFly, Status: types.StatusRunning}))

	require.NoError(t, service.Record(entry("c1", "i1", types.CostCompute, 80, now.Add(-time.Hour), time.Hour)))
	require.NoError(t, service.Record(entry("c2", "i2", types.CostCompute, 500, now.Add(-time.Hour), time.Hour)))

	budget := &types.Budget{
		Name:       "team t1",
		Scope:      types.BudgetScopeTeam,
		ScopeID:    "t1",
		Period:     types.BudgetMonthly,
		LimitUSD:   100,
		Thresholds: []int{50, 100},
	}
	require.NoError(t, service.CreateBudget(budget))

	fired, err := service.EvaluateBudget(budget, now)
	require.NoError(t, err)
	require.Len(t, fired, 1)
	assert.Equal(t, 50, fired[0].Threshold)
	assert.Equal(t, 80.0, fired[0].ActualUSD)
}

func TestDetectAnomalies(t *testing.T) {
	service, store := newTestService(t)
	now := time.Date(2026, 8, 19, 0, 0, 0, 0, time.UTC)
	window := 24 * time.Hour

	require.NoError(t, store.CreateInstance(&types.Instance{ID: "i1", Name: "a", Provider: types.ProviderFly, Status: types.StatusRunning}))
	require.NoError(t, store.CreateInstance(&types.Instance{ID: "i2", Name: "b", Provider: types.ProviderFly, Status: types.StatusRunning}))
	require.NoError(t, store.CreateInstance(&types.Instance{ID: "i3", Name: "c", Provider: types.ProviderFly, Status: types.StatusRunning}))

	// i1 doubled: 100 then 200
	require.NoError(t, service.Record(entry("c1", "i1", types.CostCompute, 100, now.Add(-40*time.Hour), time.Hour)))
	require.NoError(t, service.Record(entry("c2", "i1", types.CostCompute, 200, now.Add(-12*time.Hour), time.Hour)))
	// i2 steady: 100 then 120
	require.NoError(t, service.Record(entry("c3", "i2", types.CostCompute, 100, now.Add(-40*time.Hour), time.Hour)))
	require.NoError(t, service.Record(entry("c4", "i2", types.CostCompute, 120, now.Add(-12*time.Hour), time.Hour)))
	// i3 has no prior spend
	require.NoError(t, service.Record(entry("c5", "i3", types.CostCompute, 300, now.Add(-12*time.Hour), time.Hour)))

	anomalies, err := service.DetectAnomalies(window, now)
	require.NoError(t, err)
	require.Len(t, anomalies, 1)
	assert.Equal(t, "i1", anomalies[0].InstanceID)
	assert.Equal(t, 100.0, anomalies[0].ExpectedUSD)
	assert.Equal(t, 200.0, anomalies[0].ActualUSD)
	assert.Equal(t, 100.0, anomalies[0].DeviationPct)

	stored, err := store.ListCostAnomalies()
	require.NoError(t, err)
	assert.Len(t, stored, 1)
}

func TestRecommendationsSortedBySavings(t *testing.T) {
	service, _ := newTestService(t)

	require.NoError(t, service.AddRecommendation(&types.OptimizationRecommendation{
		Action: "RIGHTSIZE", PotentialSavingsUSD: 12, Confidence: 70, Description: "downsize i1",
	}))
	require.NoError(t, service.AddRecommendation(&types.OptimizationRecommendation{
		Action: "SUSPEND_IDLE", PotentialSavingsUSD: 40, Confidence: 90, Description: "suspend i2 at night",
	}))
	require.NoError(t, service.AddRecommendation(&types.OptimizationRecommendation{
		InstanceID: "i3", Action: "DELETE_UNUSED", PotentialSavingsUSD: 25, Confidence: 60, Description: "i3 idle for 30d",
	}))

	err := service.AddRecommendation(&types.OptimizationRecommendation{Action: "RIGHTSIZE", Confidence: 150})
	_, ok := types.IsValidation(err)
	assert.True(t, ok)

	recs, err := service.Recommendations()
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, 40.0, recs[0].PotentialSavingsUSD)
	assert.Equal(t, 25.0, recs[1].PotentialSavingsUSD)
	assert.Equal(t, 12.0, recs[2].PotentialSavingsUSD)
}
