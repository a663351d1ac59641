package secscore

import (
	"math"

	"github.com/roosthq/roost/pkg/types"
)

// Per-finding score penalties. CVE weights follow the CVSS bands; an
// unrotated secret weighs in between a high and a medium CVE.
const (
	PenaltyCriticalCVE = 25
	PenaltyHighCVE     = 15
	PenaltyMediumCVE   = 8
	PenaltyLowCVE      = 3
	PenaltyOpenSecret  = 12
)

// ScoreInput is what the score is computed from
type ScoreInput struct {
	CriticalCVEs int
	HighCVEs     int
	MediumCVEs   int
	LowCVEs      int
	OpenSecrets  int
}

// ComputeScore maps findings to a 0-100 score, floored at 0
func ComputeScore(in ScoreInput) int {
	penalty := in.CriticalCVEs*PenaltyCriticalCVE +
		in.HighCVEs*PenaltyHighCVE +
		in.MediumCVEs*PenaltyMediumCVE +
		in.LowCVEs*PenaltyLowCVE +
		in.OpenSecrets*PenaltyOpenSecret
	score := 100 - penalty
	if score < 0 {
		score = 0
	}
	return score
}

// FleetScore is the arithmetic mean of instance scores, rounded to the
// nearest integer. No scores yields 0.
func FleetScore(scores []*types.SecurityScore) int {
	if len(scores) == 0 {
		return 0
	}
	var sum int
	for _, score := range scores {
		sum += score.Score
	}
	return int(math.Round(float64(sum) / float64(len(scores))))
}
