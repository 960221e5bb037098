package fraud

import (
	"math"

	"github.com/meridianpay/risk-engine/internal/domain/analysis"
	"github.com/meridianpay/risk-engine/internal/domain/transaction"
)

// scoreSummary collapses the per-detector results into the aggregate view the
// decision policy consumes.
type scoreSummary struct {
	ruleBasedScore  float64
	velocityScore   float64
	behavioralScore float64
	hardOverride    bool
	reasons         []string
	riskFactors     []string
	triggered       int
}

// summarize folds detector results into a single summary. The rule-based
// score is the maximum of all non-override contributions so that several
// medium signals never inflate past the strongest one. A hard override pins
// the rule-based score to 100.
func summarize(results []DetectorResult) scoreSummary {
	var s scoreSummary
	for _, r := range results {
		if r.Hard {
			s.hardOverride = true
			s.ruleBasedScore = 100
		} else if r.Score > s.ruleBasedScore {
			s.ruleBasedScore = r.Score
		}

		switch r.Name {
		case FactorVelocity, FactorRapidSuccession:
			s.velocityScore = math.Max(s.velocityScore, r.Score)
		case FactorGeoNovelty, FactorAccountTakeover:
			s.behavioralScore = math.Max(s.behavioralScore, r.Score)
		}

		if r.Triggered() {
			s.triggered++
			s.riskFactors = append(s.riskFactors, r.Name)
			s.reasons = append(s.reasons, r.Reasons...)
		}
	}
	return s
}

// combineScores merges the rule-based score with the model probability. The
// stronger signal wins; averaging would let a quiet model dilute a loud rule
// or vice versa.
func combineScores(ruleBasedScore, probability float64) float64 {
	modelScore := math.Round(probability * 100)
	return clampScore(math.Max(ruleBasedScore, modelScore))
}

func clampScore(score float64) float64 {
	return math.Max(0, math.Min(100, score))
}

// confidenceFor grows with the number of corroborating signals. A score
// backed by several independent detectors plus the model deserves more trust
// than the same number from a single source.
func confidenceFor(triggered int, modelScored bool) float64 {
	signals := triggered
	if modelScored {
		signals++
	}
	return math.Min(1.0, 0.2+0.2*float64(signals))
}

// decide applies the precedence-ordered decision policy. First match wins:
// hard override, block band, challenge band or high-value amount, review
// band, approve. High-value transactions always require MFA even when the
// score alone would not reach the challenge band.
func decide(th *Thresholds, tx *transaction.Context, score *analysis.RiskScore, hardOverride bool, opts AnalysisOptions) {
	challengeAt := th.ChallengeScore
	reviewAt := th.ReviewScore
	if opts.EnhancedChecks {
		challengeAt = th.EnhancedChallengeScore
		reviewAt = th.EnhancedReviewScore
	}

	highValue := tx.Amount.GreaterThanOrEqual(th.HighValueAmount)

	switch {
	case hardOverride || score.OverallRisk >= th.BlockScore:
		score.Decision = analysis.DecisionBlock
		score.RequiresManualReview = true
	case score.OverallRisk >= challengeAt || highValue:
		score.Decision = analysis.DecisionChallenge
		score.RequiresMFA = true
	case score.OverallRisk >= reviewAt:
		score.Decision = analysis.DecisionReview
		score.RequiresManualReview = true
	default:
		score.Decision = analysis.DecisionApprove
	}

	if highValue {
		score.RequiresMFA = true
		score.Reasons = append(score.Reasons, "High-value transaction requires verification")
	}
}
