package database

import (
	"context"
	"encoding/json"
	stderrors "errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridianpay/risk-engine/internal/domain/analysis"
	"github.com/meridianpay/risk-engine/internal/domain/errors"
)

// AnalysisRepository persists risk analyses and serves aggregate counts
type AnalysisRepository struct {
	db *pgxpool.Pool
}

func NewAnalysisRepository(db *pgxpool.Pool) *AnalysisRepository {
	return &AnalysisRepository{db: db}
}

// SaveAnalysis upserts the analysis keyed by transaction ID. A re-analysis
// of the same transaction overwrites the previous result.
func (r *AnalysisRepository) SaveAnalysis(ctx context.Context, result *analysis.RiskScore) error {
	reasons, err := json.Marshal(result.Reasons)
	if err != nil {
		return errors.NewInternalError("failed to marshal reasons").WithCause(err)
	}
	factors, err := json.Marshal(result.RiskFactors)
	if err != nil {
		return errors.NewInternalError("failed to marshal risk factors").WithCause(err)
	}

	query := `
		INSERT INTO risk_analyses (
			transaction_id, decision, requires_mfa, requires_manual_review,
			overall_risk, fraud_probability, rule_based_score,
			velocity_score, behavioral_score, confidence,
			reasons, risk_factors, analyzed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (transaction_id) DO UPDATE SET
			decision = EXCLUDED.decision,
			requires_mfa = EXCLUDED.requires_mfa,
			requires_manual_review = EXCLUDED.requires_manual_review,
			overall_risk = EXCLUDED.overall_risk,
			fraud_probability = EXCLUDED.fraud_probability,
			rule_based_score = EXCLUDED.rule_based_score,
			velocity_score = EXCLUDED.velocity_score,
			behavioral_score = EXCLUDED.behavioral_score,
			confidence = EXCLUDED.confidence,
			reasons = EXCLUDED.reasons,
			risk_factors = EXCLUDED.risk_factors,
			analyzed_at = EXCLUDED.analyzed_at`

	_, err = r.db.Exec(ctx, query,
		result.TransactionID,
		string(result.Decision),
		result.RequiresMFA,
		result.RequiresManualReview,
		result.OverallRisk,
		result.FraudProbability,
		result.RuleBasedScore,
		result.VelocityScore,
		result.BehavioralScore,
		result.Confidence,
		reasons,
		factors,
		result.Timestamp,
	)
	if err != nil {
		return errors.NewInfrastructureError("analysis_store", "analysis insert failed").WithCause(err)
	}
	return nil
}

// GetAnalysis loads one stored analysis by transaction ID
func (r *AnalysisRepository) GetAnalysis(ctx context.Context, transactionID string) (*analysis.RiskScore, error) {
	query := `
		SELECT transaction_id, decision, requires_mfa, requires_manual_review,
		       overall_risk, fraud_probability, rule_based_score,
		       velocity_score, behavioral_score, confidence,
		       reasons, risk_factors, analyzed_at,
		       false_positive, reviewer_id, review_reason
		FROM risk_analyses
		WHERE transaction_id = $1`

	var (
		result       analysis.RiskScore
		decision     string
		reasons      []byte
		factors      []byte
		reviewerID   *string
		reviewReason *string
	)
	err := r.db.QueryRow(ctx, query, transactionID).Scan(
		&result.TransactionID, &decision, &result.RequiresMFA, &result.RequiresManualReview,
		&result.OverallRisk, &result.FraudProbability, &result.RuleBasedScore,
		&result.VelocityScore, &result.BehavioralScore, &result.Confidence,
		&reasons, &factors, &result.Timestamp,
		&result.FalsePositive, &reviewerID, &reviewReason,
	)
	if err != nil {
		if stderrors.Is(err, pgx.ErrNoRows) {
			return nil, errors.NewNotFoundError("analysis")
		}
		return nil, errors.NewInfrastructureError("analysis_store", "analysis query failed").WithCause(err)
	}

	result.Decision = analysis.Decision(decision)
	if err := json.Unmarshal(reasons, &result.Reasons); err != nil {
		return nil, errors.NewInternalError("stored reasons are unreadable").WithCause(err)
	}
	if err := json.Unmarshal(factors, &result.RiskFactors); err != nil {
		return nil, errors.NewInternalError("stored risk factors are unreadable").WithCause(err)
	}
	if reviewerID != nil {
		result.ReviewerID = *reviewerID
	}
	if reviewReason != nil {
		result.ReviewReason = *reviewReason
	}
	return &result, nil
}

// MarkFalsePositive flags a stored analysis as overturned by a reviewer.
// Counters are never rewritten; rates shift at the next statistics query.
func (r *AnalysisRepository) MarkFalsePositive(ctx context.Context, transactionID, reviewerID, reason string) error {
	query := `
		UPDATE risk_analyses
		SET false_positive = TRUE, reviewer_id = $2, review_reason = $3, reviewed_at = NOW()
		WHERE transaction_id = $1`

	tag, err := r.db.Exec(ctx, query, transactionID, reviewerID, reason)
	if err != nil {
		return errors.NewInfrastructureError("analysis_store", "false-positive update failed").WithCause(err)
	}
	if tag.RowsAffected() == 0 {
		return errors.NewNotFoundError("analysis")
	}
	return nil
}

// CountAnalyses aggregates decision counts, optionally bounded by analysis
// time. The false-positive count is restricted to blocked analyses so the
// derived rate answers "how often did we block legitimate transactions".
func (r *AnalysisRepository) CountAnalyses(ctx context.Context, timeRange *analysis.TimeRange) (analysis.Counts, error) {
	query := `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE decision = 'block'),
			COUNT(*) FILTER (WHERE decision = 'review'),
			COUNT(*) FILTER (WHERE decision = 'block' AND false_positive)
		FROM risk_analyses
		WHERE ($1::timestamptz IS NULL OR analyzed_at >= $1)
		  AND ($2::timestamptz IS NULL OR analyzed_at < $2)`

	var start, end interface{}
	if timeRange != nil {
		if !timeRange.Start.IsZero() {
			start = timeRange.Start
		}
		if !timeRange.End.IsZero() {
			end = timeRange.End
		}
	}

	var counts analysis.Counts
	err := r.db.QueryRow(ctx, query, start, end).Scan(
		&counts.TotalAnalyzed,
		&counts.TotalBlocked,
		&counts.TotalReviewed,
		&counts.TotalFalsePositives,
	)
	if err != nil {
		return analysis.Counts{}, errors.NewInfrastructureError("analysis_store", "statistics aggregation failed").WithCause(err)
	}
	return counts, nil
}
