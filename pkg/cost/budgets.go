package cost

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/roosthq/roost/pkg/types"
)

// ValidateBudget checks a budget definition
func ValidateBudget(budget *types.Budget) error {
	var details []string
	if budget.Name == "" {
		details = append(details, "name must not be empty")
	}
	switch budget.Scope {
	case types.BudgetScopeFleet:
		if budget.ScopeID != "" {
			details = append(details, "scopeId must be empty for a fleet budget")
		}
	case types.BudgetScopeTeam, types.BudgetScopeInstance:
		if budget.ScopeID == "" {
			details = append(details, "scopeId must not be empty")
		}
	default:
		details = append(details, "scope must be one of FLEET, TEAM, INSTANCE")
	}
	switch budget.Period {
	case types.BudgetMonthly, types.BudgetWeekly, types.BudgetDaily:
	default:
		details = append(details, "period must be one of MONTHLY, WEEKLY, DAILY")
	}
	if budget.LimitUSD <= 0 {
		details = append(details, "limitUsd must be positive")
	}
	if len(budget.Thresholds) == 0 {
		details = append(details, "at least one alert threshold is required")
	}
	for _, threshold := range budget.Thresholds {
		if !types.ValidBudgetThreshold(threshold) {
			details = append(details, fmt.Sprintf("threshold %d is not one of 50, 75, 80, 90, 100", threshold))
		}
	}
	if len(details) > 0 {
		return types.NewValidationError(details...)
	}
	return nil
}

// CreateBudget validates and stores a budget
func (s *Service) CreateBudget(budget *types.Budget) error {
	if err := ValidateBudget(budget); err != nil {
		return err
	}
	if budget.ID == "" {
		budget.ID = uuid.New().String()
	}
	sort.Ints(budget.Thresholds)
	now := s.nowFunc()
	budget.CreatedAt = now
	budget.UpdatedAt = now
	return s.store.CreateBudget(budget)
}

// periodWindow resolves the billing window containing now and its stable
// key. The key anchors the exactly-once guarantee per threshold crossing.
func periodWindow(period types.BudgetPeriod, now time.Time) (start, end time.Time, key string) {
	now = now.UTC()
	switch period {
	case types.BudgetDaily:
		start = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		end = start.AddDate(0, 0, 1)
		key = start.Format("2006-01-02")
	case types.BudgetWeekly:
		weekday := int(now.Weekday())
		if weekday == 0 {
			weekday = 7
		}
		start = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1-weekday)
		end = start.AddDate(0, 0, 7)
		year, week := start.ISOWeek()
		key = fmt.Sprintf("%04d-W%02d", year, week)
	default:
		start = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
		end = start.AddDate(0, 1, 0)
		key = start.Format("2006-01")
	}
	return start, end, key
}

// scopedSpend sums entries falling in [from, to) for the budget's scope
func (s *Service) scopedSpend(budget *types.Budget, from, to time.Time) (float64, error) {
	switch budget.Scope {
	case types.BudgetScopeInstance:
		return s.sumEntries(budget.ScopeID, from, to)
	case types.BudgetScopeTeam:
		instances, err := s.store.ListInstances()
		if err != nil {
			return 0, err
		}
		var total float64
		for _, inst := range instances {
			if inst.TeamID != budget.ScopeID {
				continue
			}
			sum, err := s.sumEntries(inst.ID, from, to)
			if err != nil {
				return 0, err
			}
			total += sum
		}
		return total, nil
	default:
		return s.sumEntries("", from, to)
	}
}

func (s *Service) sumEntries(instanceID string, from, to time.Time) (float64, error) {
	entries, err := s.store.ListCostEntries(instanceID, from, to)
	if err != nil {
		return 0, err
	}
	var total float64
	for _, entry := range entries {
		total += entry.AmountUSD
	}
	return total, nil
}

// EvaluateBudget fires an alert for every threshold the current period's
// spend has crossed. The store enforces at most one alert per
// (budget, threshold, period key), so re-evaluation is idempotent.
func (s *Service) EvaluateBudget(budget *types.Budget, now time.Time) ([]*types.BudgetAlert, error) {
	start, end, key := periodWindow(budget.Period, now)
	actual, err := s.scopedSpend(budget, start, end)
	if err != nil {
		return nil, err
	}

	pct := actual / budget.LimitUSD * 100
	var fired []*types.BudgetAlert
	for _, threshold := range budget.Thresholds {
		if pct < float64(threshold) {
			continue
		}
		alert := &types.BudgetAlert{
			ID:        uuid.New().String(),
			BudgetID:  budget.ID,
			Threshold: threshold,
			PeriodKey: key,
			ActualUSD: actual,
			LimitUSD:  budget.LimitUSD,
			FiredAt:   now,
		}
		created, err := s.store.CreateBudgetAlert(alert)
		if err != nil {
			return fired, err
		}
		if created {
			fired = append(fired, alert)
			s.logger.Warn().
				Str("budget_id", budget.ID).
				Int("threshold", threshold).
				Str("period", key).
				Float64("actual_usd", actual).
				Msg("Budget threshold crossed")
		}
	}
	return fired, nil
}

// EvaluateBudgets runs every stored budget against the clock
func (s *Service) EvaluateBudgets(now time.Time) error {
	budgets, err := s.store.ListBudgets()
	if err != nil {
		return err
	}
	for _, budget := range budgets {
		if _, err := s.EvaluateBudget(budget, now); err != nil {
			s.logger.Error().Err(err).Str("budget_id", budget.ID).Msg("Budget evaluation failed")
		}
	}
	return nil
}
