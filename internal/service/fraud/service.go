package fraud

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/meridianpay/risk-engine/internal/domain/analysis"
	"github.com/meridianpay/risk-engine/internal/domain/audit"
	"github.com/meridianpay/risk-engine/internal/domain/errors"
	"github.com/meridianpay/risk-engine/internal/domain/transaction"
)

const systemActor = "risk-engine"

// engine implements Service. All dependencies are injected; any of audit,
// alerts and store may be nil-free stubs in tests but are required in
// production wiring.
type engine struct {
	thresholds *Thresholds
	history    HistoryStore
	duplicates DuplicateCache
	model      RiskModel
	audit      AuditTrail
	alerts     AlertBus
	store      AnalysisStore
	logger     *slog.Logger
	stats      *statsAggregator
}

// NewService assembles the risk-scoring engine. A nil thresholds uses
// production defaults; a nil model disables model scoring.
func NewService(
	thresholds *Thresholds,
	history HistoryStore,
	duplicates DuplicateCache,
	model RiskModel,
	auditTrail AuditTrail,
	alerts AlertBus,
	store AnalysisStore,
	logger *slog.Logger,
) (Service, error) {
	if thresholds == nil {
		thresholds = DefaultThresholds()
	}
	if err := thresholds.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &engine{
		thresholds: thresholds,
		history:    history,
		duplicates: duplicates,
		model:      model,
		audit:      auditTrail,
		alerts:     alerts,
		store:      store,
		logger:     logger,
		stats:      newStatsAggregator(),
	}, nil
}

// AnalyzeTransaction runs the full scoring pipeline. Validation errors are
// the only errors a caller sees; infrastructure failures inside the pipeline
// degrade to the fail-safe review result, and model failures degrade to
// rule-only scoring.
func (e *engine) AnalyzeTransaction(ctx context.Context, tx *transaction.Context, opts *AnalysisOptions) (*analysis.RiskScore, error) {
	started := time.Now()

	if tx == nil {
		return nil, errors.NewValidationError("MISSING_TRANSACTION", "transaction context is required")
	}
	if err := tx.Validate(); err != nil {
		return nil, err
	}
	options := AnalysisOptions{}
	if opts != nil {
		options = *opts
	}

	log := e.logger.With(
		slog.String("transaction_id", tx.TransactionID),
		slog.String("user_id", tx.UserID.String()),
	)

	fingerprint := Fingerprint(tx)

	seen, err := e.duplicates.Seen(ctx, fingerprint)
	if err != nil {
		return e.failSafe(ctx, tx, started, log, errors.NewInfrastructureError("duplicate_cache", "duplicate lookup failed").WithCause(err)), nil
	}
	if seen {
		result := e.duplicateResult(tx)
		e.finishAnalysis(ctx, tx, result, started, log)
		return result, nil
	}
	hist, err := e.fetchHistory(ctx, tx)
	if err != nil {
		return e.failSafe(ctx, tx, started, log, err), nil
	}

	results := runDetectors(e.thresholds, tx, hist)
	summary := summarize(results)

	outcome := safePredict(ctx, e.model, buildFeatures(tx, hist), e.thresholds.ModelTimeout)
	if outcome.err != nil {
		log.WarnContext(ctx, "model scoring unavailable, continuing rule-only", slog.Any("error", outcome.err))
	}

	result := &analysis.RiskScore{
		TransactionID:    tx.TransactionID,
		OverallRisk:      combineScores(summary.ruleBasedScore, outcome.probability),
		FraudProbability: outcome.probability,
		RuleBasedScore:   summary.ruleBasedScore,
		VelocityScore:    summary.velocityScore,
		BehavioralScore:  summary.behavioralScore,
		Confidence:       confidenceFor(summary.triggered, outcome.scored),
		Reasons:          summary.reasons,
		RiskFactors:      summary.riskFactors,
		Timestamp:        time.Now().UTC(),
	}
	decide(e.thresholds, tx, result, summary.hardOverride, options)

	e.finishAnalysis(ctx, tx, result, started, log)
	return result, nil
}

// duplicateResult is the fixed outcome for a replayed transaction. The block
// carries full score and probability but no manual-review flag; a duplicate
// needs no human follow-up.
func (e *engine) duplicateResult(tx *transaction.Context) *analysis.RiskScore {
	return &analysis.RiskScore{
		TransactionID:        tx.TransactionID,
		Decision:             analysis.DecisionBlock,
		RequiresManualReview: false,
		OverallRisk:          100,
		FraudProbability:     1,
		RuleBasedScore:       100,
		Confidence:           1,
		Reasons:              []string{ReasonDuplicate},
		RiskFactors:          []string{FactorDuplicate},
		Timestamp:            time.Now().UTC(),
	}
}

// failSafe produces the conservative result when the pipeline cannot score:
// route to review with MFA and manual review, and never block or approve on
// missing data.
func (e *engine) failSafe(ctx context.Context, tx *transaction.Context, started time.Time, log *slog.Logger, cause error) *analysis.RiskScore {
	log.ErrorContext(ctx, "analysis degraded to fail-safe", slog.Any("error", cause))

	result := &analysis.RiskScore{
		TransactionID:        tx.TransactionID,
		Decision:             analysis.DecisionReview,
		RequiresMFA:          true,
		RequiresManualReview: true,
		OverallRisk:          analysis.SentinelRisk,
		Reasons:              []string{ReasonSystemError},
		Timestamp:            time.Now().UTC(),
	}

	if event, err := audit.NewEvent(audit.EventAnalysisFailed, systemActor, tx.TransactionID, "analyze_transaction"); err == nil {
		event = event.WithSeverity(audit.SeverityWarning).
			WithResult(string(result.Decision)).
			WithMetadata(map[string]interface{}{"error": cause.Error()})
		if logErr := e.audit.LogEvent(ctx, event); logErr != nil {
			log.ErrorContext(ctx, "failed to audit fail-safe result", slog.Any("error", logErr))
		}
	}

	e.persist(ctx, result, log)
	e.stats.recordAnalysis(time.Since(started))
	return result
}

// finishAnalysis runs the post-decision side effects. Failures here are
// logged and swallowed; the decision already stands.
func (e *engine) finishAnalysis(ctx context.Context, tx *transaction.Context, result *analysis.RiskScore, started time.Time, log *slog.Logger) {
	// The fingerprint is armed only once a full analysis has completed, so a
	// transaction that degraded to the fail-safe can be resubmitted and
	// re-evaluated instead of being blocked as a replay.
	if !isDuplicate(result) {
		if err := e.duplicates.Record(ctx, Fingerprint(tx), DuplicateTTL); err != nil {
			// Losing one fingerprint weakens duplicate detection for five
			// minutes; it does not justify failing the analysis.
			log.WarnContext(ctx, "failed to record transaction fingerprint", slog.Any("error", err))
		}
	}

	e.persist(ctx, result, log)

	if event, err := audit.NewEvent(audit.EventAnalysisCompleted, systemActor, tx.TransactionID, "analyze_transaction"); err == nil {
		event = event.WithSeverity(audit.SeverityInfo).
			WithResult(string(result.Decision)).
			WithMetadata(map[string]interface{}{
				"overall_risk": result.OverallRisk,
				"risk_factors": result.RiskFactors,
			})
		if logErr := e.audit.LogEvent(ctx, event); logErr != nil {
			log.ErrorContext(ctx, "failed to audit analysis", slog.Any("error", logErr))
		}
	}

	// Duplicate blocks stay in the normal audit stream; only scored blocks
	// escalate to the security trail and the alert bus.
	if result.Blocked() && !isDuplicate(result) {
		if event, err := audit.NewEvent(audit.EventTransactionBlocked, systemActor, tx.TransactionID, "block_transaction"); err == nil {
			event = event.WithSeverity(audit.SeverityCritical).
				WithResult(string(result.Decision)).
				WithMetadata(map[string]interface{}{
					"overall_risk": result.OverallRisk,
					"reasons":      result.Reasons,
				})
			if logErr := e.audit.LogSecurityEvent(ctx, event); logErr != nil {
				log.ErrorContext(ctx, "failed to log security event", slog.Any("error", logErr))
			}
		}

		alert := &Alert{Transaction: tx, Result: result, EmittedAt: time.Now().UTC()}
		if err := e.alerts.Publish(ctx, AlertTopic, alert); err != nil {
			log.ErrorContext(ctx, "failed to publish fraud alert", slog.Any("error", err))
		}
	}

	elapsed := time.Since(started)
	e.stats.recordAnalysis(elapsed)

	log.InfoContext(ctx, "transaction analyzed",
		slog.String("decision", string(result.Decision)),
		slog.Float64("overall_risk", result.OverallRisk),
		slog.Duration("elapsed", elapsed),
	)
}

func (e *engine) persist(ctx context.Context, result *analysis.RiskScore, log *slog.Logger) {
	if err := e.store.SaveAnalysis(ctx, result); err != nil {
		log.ErrorContext(ctx, "failed to persist analysis", slog.Any("error", err))
	}
}

func isDuplicate(result *analysis.RiskScore) bool {
	for _, f := range result.RiskFactors {
		if f == FactorDuplicate {
			return true
		}
	}
	return false
}

func (e *engine) fetchHistory(ctx context.Context, tx *transaction.Context) (*historySnapshot, error) {
	transactions, err := e.history.FindRecentTransactions(ctx, tx.UserID, tx.AccountID, e.thresholds.HistoryLookback)
	if err != nil {
		return nil, errors.NewInfrastructureError("history_store", "transaction history fetch failed").WithCause(err)
	}
	logins, err := e.history.FindLoginHistory(ctx, tx.UserID)
	if err != nil {
		return nil, errors.NewInfrastructureError("history_store", "login history fetch failed").WithCause(err)
	}
	devices, err := e.history.FindDeviceHistory(ctx, tx.UserID)
	if err != nil {
		return nil, errors.NewInfrastructureError("history_store", "device history fetch failed").WithCause(err)
	}
	return &historySnapshot{transactions: transactions, logins: logins, devices: devices}, nil
}

// MarkFalsePositive flags a stored analysis as overturned. Counters derived
// from the flag shift at the next statistics query; nothing is rewritten.
func (e *engine) MarkFalsePositive(ctx context.Context, transactionID, reviewerID, reason string) error {
	if transactionID == "" {
		return errors.NewValidationError("MISSING_TRANSACTION_ID", "transaction ID is required")
	}
	if reviewerID == "" {
		return errors.NewValidationError("MISSING_REVIEWER_ID", "reviewer ID is required")
	}

	if err := e.store.MarkFalsePositive(ctx, transactionID, reviewerID, reason); err != nil {
		return err
	}

	if event, auditErr := audit.NewEvent(audit.EventFalsePositiveMarked, reviewerID, transactionID, "mark_false_positive"); auditErr == nil {
		event = event.WithSeverity(audit.SeverityInfo).WithResult("marked")
		if reason != "" {
			event = event.WithMetadata(map[string]interface{}{"reason": reason})
		}
		if logErr := e.audit.LogEvent(ctx, event); logErr != nil {
			e.logger.ErrorContext(ctx, "failed to audit false-positive mark",
				slog.String("transaction_id", transactionID), slog.Any("error", logErr))
		}
	}

	e.logger.InfoContext(ctx, "analysis marked as false positive",
		slog.String("transaction_id", transactionID),
		slog.String("reviewer_id", reviewerID),
	)
	return nil
}

// GetStatistics merges durable counts from the analysis store with
// in-process current metrics.
func (e *engine) GetStatistics(ctx context.Context, timeRange *analysis.TimeRange) (*analysis.Statistics, error) {
	// A zero bound means open-ended; ordering only applies when both are set.
	if timeRange != nil && !timeRange.Start.IsZero() && !timeRange.End.IsZero() && timeRange.End.Before(timeRange.Start) {
		return nil, errors.NewValidationError("INVALID_TIME_RANGE", fmt.Sprintf(
			"time range end %s precedes start %s", timeRange.End.Format(time.RFC3339), timeRange.Start.Format(time.RFC3339)))
	}

	counts, err := e.store.CountAnalyses(ctx, timeRange)
	if err != nil {
		return nil, errors.NewInfrastructureError("analysis_store", "statistics query failed").WithCause(err)
	}

	return analysis.NewStatistics(counts, e.stats.snapshot()), nil
}
