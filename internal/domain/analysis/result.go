package analysis

import (
	"time"
)

// Decision is the final outcome of a risk analysis
type Decision string

const (
	DecisionApprove   Decision = "approve"
	DecisionChallenge Decision = "challenge"
	DecisionReview    Decision = "review"
	DecisionBlock     Decision = "block"
)

// SentinelRisk marks a result produced by the fail-safe path, where no
// meaningful score was computed.
const SentinelRisk = -1.0

// RiskScore is the sole output of one analysis. Created once per analysis,
// immutable afterwards, persisted to the audit trail and the analysis store.
type RiskScore struct {
	TransactionID        string    `json:"transaction_id"`
	Decision             Decision  `json:"decision"`
	RequiresMFA          bool      `json:"requires_mfa"`
	RequiresManualReview bool      `json:"requires_manual_review"`

	// OverallRisk is in [0,100]; SentinelRisk for fail-safe results.
	OverallRisk      float64 `json:"overall_risk"`
	FraudProbability float64 `json:"fraud_probability"` // [0,1]; 0 when the model was unavailable
	RuleBasedScore   float64 `json:"rule_based_score"`  // [0,100]
	VelocityScore    float64 `json:"velocity_score"`    // [0,100]
	BehavioralScore  float64 `json:"behavioral_score"`  // [0,100]
	Confidence       float64 `json:"confidence"`        // [0,1]

	Reasons     []string `json:"reasons"`
	RiskFactors []string `json:"risk_factors"`

	Timestamp time.Time `json:"timestamp"`

	// Review metadata set by MarkFalsePositive, persisted alongside the result
	FalsePositive bool   `json:"false_positive,omitempty"`
	ReviewerID    string `json:"reviewer_id,omitempty"`
	ReviewReason  string `json:"review_reason,omitempty"`
}

// Blocked reports whether the analysis ended in a hard block
func (r *RiskScore) Blocked() bool {
	return r.Decision == DecisionBlock
}

// Flagged reports whether the analysis requires any follow-up action
func (r *RiskScore) Flagged() bool {
	return r.Decision != DecisionApprove
}
