package fraud

import (
	"time"

	"github.com/meridianpay/risk-engine/internal/domain/errors"
	"github.com/meridianpay/risk-engine/internal/domain/values"
)

// Detector names surfaced in RiskScore.RiskFactors
const (
	FactorDuplicate        = "duplicate"
	FactorVelocity         = "velocity"
	FactorImpossibleTravel = "impossible_travel"
	FactorRapidSuccession  = "rapid_succession"
	FactorMoneyMule        = "money_mule"
	FactorGeoNovelty       = "geo_novelty"
	FactorAccountTakeover  = "account_takeover"
)

// Fixed reason strings with contractual wording
const (
	ReasonDuplicate   = "Duplicate transaction detected"
	ReasonSystemError = "System error - manual review required"
)

// DuplicateTTL is how long a transaction fingerprint stays in the duplicate
// cache. An approved transaction replayed within this window is blocked.
const DuplicateTTL = 300 * time.Second

// AlertTopic is the bus topic for critical-risk notifications
const AlertTopic = "critical-fraud-alert"

// Thresholds holds the tunable decision parameters. Loaded once at startup;
// invalid values are a configuration error, never a per-request failure.
type Thresholds struct {
	// Decision bands on the combined [0,100] risk score
	BlockScore     float64
	ChallengeScore float64
	ReviewScore    float64

	// Stricter bands applied when AnalysisOptions.EnhancedChecks is set
	EnhancedChallengeScore float64
	EnhancedReviewScore    float64

	// Transactions at or above this amount always require MFA
	HighValueAmount values.Money

	// Velocity detector
	VelocityWindow time.Duration
	VelocityCount  int

	// Rapid-succession detector
	RapidWindow time.Duration
	RapidGap    time.Duration

	// Money-mule detector
	MuleWindow     time.Duration
	MuleRatio      float64
	MuleMinDeposit values.Money

	// Impossible-travel detector
	MaxTravelSpeedKmh float64

	// Account-takeover detector: local hours considered anomalous
	OddHourStart int
	OddHourEnd   int

	// History fetch lookback and model call budget
	HistoryLookback time.Duration
	ModelTimeout    time.Duration
}

// DefaultThresholds returns production defaults
func DefaultThresholds() *Thresholds {
	return &Thresholds{
		BlockScore:             85,
		ChallengeScore:         60,
		ReviewScore:            40,
		EnhancedChallengeScore: 50,
		EnhancedReviewScore:    30,
		HighValueAmount:        values.MustNewMoneyFromFloat(10000, values.USD),
		VelocityWindow:         5 * time.Minute,
		VelocityCount:          5,
		RapidWindow:            5 * time.Minute,
		RapidGap:               30 * time.Second,
		MuleWindow:             6 * time.Hour,
		MuleRatio:              0.9,
		MuleMinDeposit:         values.MustNewMoneyFromFloat(5000, values.USD),
		MaxTravelSpeedKmh:      900,
		OddHourStart:           2,
		OddHourEnd:             4,
		HistoryLookback:        24 * time.Hour,
		ModelTimeout:           500 * time.Millisecond,
	}
}

// Validate rejects threshold sets that cannot produce a coherent policy
func (t *Thresholds) Validate() error {
	if t.BlockScore <= 0 || t.BlockScore > 100 {
		return errors.NewConfigurationError("block_score", "block score must be in (0,100]")
	}
	if t.ChallengeScore <= 0 || t.ChallengeScore >= t.BlockScore {
		return errors.NewConfigurationError("challenge_score", "challenge score must be below block score")
	}
	if t.ReviewScore <= 0 || t.ReviewScore >= t.ChallengeScore {
		return errors.NewConfigurationError("review_score", "review score must be below challenge score")
	}
	if !t.HighValueAmount.IsPositive() {
		return errors.NewConfigurationError("high_value_amount", "high-value amount must be positive")
	}
	if t.VelocityWindow <= 0 || t.VelocityCount <= 0 {
		return errors.NewConfigurationError("velocity", "velocity window and count must be positive")
	}
	if t.MuleRatio <= 0 || t.MuleRatio > 1 {
		return errors.NewConfigurationError("mule_ratio", "mule ratio must be in (0,1]")
	}
	if t.MaxTravelSpeedKmh <= 0 {
		return errors.NewConfigurationError("max_travel_speed", "max travel speed must be positive")
	}
	if t.ModelTimeout <= 0 {
		return errors.NewConfigurationError("model_timeout", "model timeout must be positive")
	}
	return nil
}
