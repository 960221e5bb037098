package fraud

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/meridianpay/risk-engine/internal/domain/errors"
)

// predictOutcome is what the engine records about a model call. The engine
// never fails an analysis because of the model; a bad call degrades to
// rule-only scoring with probability zero.
type predictOutcome struct {
	probability float64
	scored      bool
	err         error
}

// safePredict invokes the model under a bounded timeout and absorbs every
// failure mode: returned error, exceeded deadline, panic inside the model,
// and malformed output (NaN, Inf, outside [0,1]).
func safePredict(ctx context.Context, model RiskModel, features Features, timeout time.Duration) predictOutcome {
	if model == nil {
		return predictOutcome{}
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type reply struct {
		prob float64
		err  error
	}
	ch := make(chan reply, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- reply{err: errors.NewModelError(fmt.Sprintf("model panicked: %v", r))}
			}
		}()
		prob, err := model.Predict(ctx, features)
		ch <- reply{prob: prob, err: err}
	}()

	select {
	case <-ctx.Done():
		return predictOutcome{err: errors.NewModelError("model prediction timed out").WithCause(ctx.Err())}
	case r := <-ch:
		if r.err != nil {
			return predictOutcome{err: errors.NewModelError("model prediction failed").WithCause(r.err)}
		}
		if math.IsNaN(r.prob) || math.IsInf(r.prob, 0) || r.prob < 0 || r.prob > 1 {
			return predictOutcome{err: errors.NewModelError(fmt.Sprintf("model returned malformed probability %v", r.prob))}
		}
		return predictOutcome{probability: r.prob, scored: true}
	}
}

// HeuristicModel is the bundled default: a hand-tuned weighted sum over the
// feature vector, squashed into [0,1]. It exists so the engine ships with a
// working model before a trained one is deployed.
type HeuristicModel struct{}

func NewHeuristicModel() *HeuristicModel { return &HeuristicModel{} }

func (m *HeuristicModel) Predict(_ context.Context, features Features) (float64, error) {
	score := 0.0

	if features[FeatureAmount] > 5000 {
		score += 0.15
	}
	if ratio := features[FeatureAmountVsAvg]; ratio > 3 {
		score += math.Min(0.25, (ratio-3)*0.05)
	}
	if features[FeatureTxCount24h] > 10 {
		score += 0.10
	}
	if features[FeatureFailedCount24h] >= 2 {
		score += 0.15
	}
	if features[FeatureNewDevice] == 1 {
		score += 0.15
	}
	if features[FeatureNewCountry] == 1 {
		score += 0.15
	}
	hour := features[FeatureHourOfDay]
	if hour >= 2 && hour <= 4 {
		score += 0.05
	}
	if features[FeatureIsWithdrawal] == 1 && features[FeatureAmount] > 1000 {
		score += 0.10
	}

	return math.Min(1.0, score), nil
}

// NoopModel always predicts zero. Used when model scoring is disabled so the
// engine runs on rules alone.
type NoopModel struct{}

func NewNoopModel() *NoopModel { return &NoopModel{} }

func (m *NoopModel) Predict(context.Context, Features) (float64, error) {
	return 0, nil
}
