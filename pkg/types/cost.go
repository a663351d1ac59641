package types

import "time"

// CostCategory classifies a cost entry
type CostCategory string

const (
	CostCompute CostCategory = "COMPUTE"
	CostStorage CostCategory = "STORAGE"
	CostNetwork CostCategory = "NETWORK"
	CostEgress  CostCategory = "EGRESS"
	CostOther   CostCategory = "OTHER"
)

// ValidCostCategory reports whether c is a defined category
func ValidCostCategory(c CostCategory) bool {
	switch c {
	case CostCompute, CostStorage, CostNetwork, CostEgress, CostOther:
		return true
	}
	return false
}

// CostEntry records spend attributed to an instance over a period
type CostEntry struct {
	ID          string       `json:"id"`
	InstanceID  string       `json:"instanceId"`
	Category    CostCategory `json:"category"`
	AmountUSD   float64      `json:"amountUsd"`
	PeriodStart time.Time    `json:"periodStart"`
	PeriodEnd   time.Time    `json:"periodEnd"`
	Provider    Provider     `json:"provider"`
	CreatedAt   time.Time    `json:"createdAt"`
}

// BudgetScope is what a budget limit applies to
type BudgetScope string

const (
	BudgetScopeFleet    BudgetScope = "FLEET"
	BudgetScopeTeam     BudgetScope = "TEAM"
	BudgetScopeInstance BudgetScope = "INSTANCE"
)

// BudgetPeriod is the window a budget limit covers
type BudgetPeriod string

const (
	BudgetMonthly BudgetPeriod = "MONTHLY"
	BudgetWeekly  BudgetPeriod = "WEEKLY"
	BudgetDaily   BudgetPeriod = "DAILY"
)

// BudgetThresholds is the set of allowed alert thresholds in percent
var BudgetThresholds = []int{50, 75, 80, 90, 100}

// ValidBudgetThreshold reports whether t is one of the allowed thresholds
func ValidBudgetThreshold(t int) bool {
	for _, v := range BudgetThresholds {
		if v == t {
			return true
		}
	}
	return false
}

// Budget is a spend limit with alert thresholds
type Budget struct {
	ID         string       `json:"id"`
	Name       string       `json:"name"`
	Scope      BudgetScope  `json:"scope"`
	ScopeID    string       `json:"scopeId,omitempty"`
	Period     BudgetPeriod `json:"period"`
	LimitUSD   float64      `json:"limitUsd"`
	Thresholds []int        `json:"thresholds"`
	CreatedAt  time.Time    `json:"createdAt"`
	UpdatedAt  time.Time    `json:"updatedAt"`
}

// BudgetAlert records a threshold crossing. Exactly one exists per
// (budget, threshold, period key).
type BudgetAlert struct {
	ID        string    `json:"id"`
	BudgetID  string    `json:"budgetId"`
	Threshold int       `json:"threshold"`
	PeriodKey string    `json:"periodKey"`
	ActualUSD float64   `json:"actualUsd"`
	LimitUSD  float64   `json:"limitUsd"`
	FiredAt   time.Time `json:"firedAt"`
}

// CostAnomaly records actual spend deviating from expected by more than 50%
type CostAnomaly struct {
	ID           string    `json:"id"`
	InstanceID   string    `json:"instanceId"`
	ExpectedUSD  float64   `json:"expectedUsd"`
	ActualUSD    float64   `json:"actualUsd"`
	DeviationPct float64   `json:"deviationPct"`
	WindowStart  time.Time `json:"windowStart"`
	WindowEnd    time.Time `json:"windowEnd"`
	DetectedAt   time.Time `json:"detectedAt"`
}

// OptimizationRecommendation suggests an action with estimated savings
type OptimizationRecommendation struct {
	ID                  string    `json:"id"`
	InstanceID          string    `json:"instanceId,omitempty"`
	Action              string    `json:"action"`
	PotentialSavingsUSD float64   `json:"potentialSavingsUsd"`
	Confidence          int       `json:"confidence"`
	Description         string    `json:"description"`
	CreatedAt           time.Time `json:"createdAt"`
}
