package fraud

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/meridianpay/risk-engine/internal/domain/transaction"
)

// historySnapshot is the read-only view of a user's recent activity handed to
// every detector. Fetched once per analysis; never mutated.
type historySnapshot struct {
	transactions []*transaction.HistoryRecord
	logins       []*transaction.LoginRecord
	devices      []*transaction.DeviceRecord
}

// DetectorResult is one detector's contribution: a sub-score in [0,100],
// human-readable reasons, and whether the result is a hard override that
// forces a block regardless of every other signal.
type DetectorResult struct {
	Name    string
	Score   float64
	Reasons []string
	Hard    bool
}

// Triggered reports whether the detector produced any signal
func (r DetectorResult) Triggered() bool {
	return r.Score > 0
}

type detectorFunc func(th *Thresholds, tx *transaction.Context, hist *historySnapshot) DetectorResult

// detectors in evaluation order. Each is a pure function of the transaction
// and the snapshot; no detector's output depends on another's.
var detectors = []detectorFunc{
	detectVelocity,
	detectImpossibleTravel,
	detectRapidSuccession,
	detectMoneyMule,
	detectGeoNovelty,
	detectAccountTakeover,
}

func runDetectors(th *Thresholds, tx *transaction.Context, hist *historySnapshot) []DetectorResult {
	results := make([]DetectorResult, 0, len(detectors))
	for _, d := range detectors {
		results = append(results, d(th, tx, hist))
	}
	return results
}

// detectVelocity counts completed-or-pending prior transactions inside the
// rolling velocity window. The score scales with the count past the
// threshold, capped at 100.
func detectVelocity(th *Thresholds, tx *transaction.Context, hist *historySnapshot) DetectorResult {
	result := DetectorResult{Name: FactorVelocity}

	cutoff := tx.Timestamp.Add(-th.VelocityWindow)
	count := 0
	for _, rec := range hist.transactions {
		if rec.Settled() && rec.Timestamp.After(cutoff) && !rec.Timestamp.After(tx.Timestamp) {
			count++
		}
	}

	if count < th.VelocityCount {
		return result
	}

	result.Score = math.Min(100, 60+float64(count-th.VelocityCount)*10)
	result.Reasons = append(result.Reasons, fmt.Sprintf(
		"High transaction velocity: %d transactions in %s", count, th.VelocityWindow))
	return result
}

// detectImpossibleTravel compares the current geolocation against the most
// recent prior transaction's location. An implied speed above the physical
// maximum is a hard override: score 100, decision forced to block.
func detectImpossibleTravel(th *Thresholds, tx *transaction.Context, hist *historySnapshot) DetectorResult {
	result := DetectorResult{Name: FactorImpossibleTravel}

	if tx.Geolocation == nil {
		return result
	}

	prev := latestLocated(hist.transactions, tx.Timestamp)
	if prev == nil {
		return result
	}

	distance := haversineKm(
		prev.Geolocation.Latitude, prev.Geolocation.Longitude,
		tx.Geolocation.Latitude, tx.Geolocation.Longitude,
	)
	// Sub-kilometer deltas are GPS jitter, not travel
	if distance < 1 {
		return result
	}

	elapsed := tx.Timestamp.Sub(prev.Timestamp)
	speed := impliedSpeedKmh(distance, elapsed)
	if speed <= th.MaxTravelSpeedKmh {
		return result
	}

	result.Score = 100
	result.Hard = true
	result.Reasons = append(result.Reasons, fmt.Sprintf(
		"Impossible travel detected: %.0f km in %s (%.0f km/h)", distance, elapsed.Round(time.Second), speed))
	return result
}

// detectRapidSuccession looks for bursts: transactions inside the rapid
// window whose inter-arrival gaps are at or below the burst granularity.
func detectRapidSuccession(th *Thresholds, tx *transaction.Context, hist *historySnapshot) DetectorResult {
	result := DetectorResult{Name: FactorRapidSuccession}

	cutoff := tx.Timestamp.Add(-th.RapidWindow)
	stamps := []time.Time{tx.Timestamp}
	for _, rec := range hist.transactions {
		if rec.Settled() && rec.Timestamp.After(cutoff) && !rec.Timestamp.After(tx.Timestamp) {
			stamps = append(stamps, rec.Timestamp)
		}
	}
	sort.Slice(stamps, func(i, j int) bool { return stamps[i].Before(stamps[j]) })

	bursts := 0
	for i := 1; i < len(stamps); i++ {
		if stamps[i].Sub(stamps[i-1]) <= th.RapidGap {
			bursts++
		}
	}

	if bursts < 2 {
		return result
	}

	result.Score = math.Min(100, 40+float64(bursts)*15)
	result.Reasons = append(result.Reasons, fmt.Sprintf(
		"Rapid transaction succession: %d transactions within %s of each other", bursts+1, th.RapidGap))
	return result
}

// detectMoneyMule looks for a large deposit followed within a bounded window
// by a withdrawal of comparable magnitude, a common laundering signal. The
// current transaction participates as the withdrawal leg when applicable.
func detectMoneyMule(th *Thresholds, tx *transaction.Context, hist *historySnapshot) DetectorResult {
	result := DetectorResult{Name: FactorMoneyMule}

	minRatio := decimal.NewFromFloat(th.MuleRatio)

	type leg struct {
		rec       *transaction.HistoryRecord
		timestamp time.Time
	}

	var deposits []leg
	for _, rec := range hist.transactions {
		if rec.Type == transaction.TypeDeposit && rec.Settled() &&
			rec.Amount.GreaterThanOrEqual(th.MuleMinDeposit) {
			deposits = append(deposits, leg{rec: rec, timestamp: rec.Timestamp})
		}
	}
	if len(deposits) == 0 {
		return result
	}

	for _, dep := range deposits {
		// Current transaction as the withdrawal leg
		if tx.Type == transaction.TypeWithdrawal || tx.Type == transaction.TypeTransfer {
			gap := tx.Timestamp.Sub(dep.timestamp)
			if gap > 0 && gap <= th.MuleWindow && tx.Amount.Ratio(dep.rec.Amount).GreaterThanOrEqual(minRatio) {
				result.Score = 70
				result.Reasons = append(result.Reasons, fmt.Sprintf(
					"Possible money mule pattern: deposit of %s followed by withdrawal of %s",
					dep.rec.Amount, tx.Amount))
				return result
			}
		}

		// Historical withdrawal legs: the pattern taints the account even
		// when the current transaction is unrelated
		for _, rec := range hist.transactions {
			if rec.Type != transaction.TypeWithdrawal || !rec.Settled() {
				continue
			}
			gap := rec.Timestamp.Sub(dep.timestamp)
			if gap > 0 && gap <= th.MuleWindow && rec.Amount.Ratio(dep.rec.Amount).GreaterThanOrEqual(minRatio) {
				result.Score = 70
				result.Reasons = append(result.Reasons, fmt.Sprintf(
					"Possible money mule pattern: deposit of %s followed by withdrawal of %s",
					dep.rec.Amount, rec.Amount))
				return result
			}
		}
	}

	return result
}

// detectGeoNovelty flags a transaction from a country with no precedent in
// the user's login or device history. A new-but-reachable location is
// anomalous yet never a hard override; impossible travel is checked
// independently.
func detectGeoNovelty(th *Thresholds, tx *transaction.Context, hist *historySnapshot) DetectorResult {
	result := DetectorResult{Name: FactorGeoNovelty}

	if tx.Geolocation == nil || tx.Geolocation.Country == "" {
		return result
	}

	for _, login := range hist.logins {
		if login.Geolocation != nil && login.Geolocation.Country == tx.Geolocation.Country {
			return result
		}
	}
	for _, dev := range hist.devices {
		if dev.Country == tx.Geolocation.Country {
			return result
		}
	}
	// No signal at all is different from a contradicting signal
	if len(hist.logins) == 0 && len(hist.devices) == 0 {
		return result
	}

	result.Score = 50
	result.Reasons = append(result.Reasons, fmt.Sprintf(
		"Transaction from previously unseen country: %s", tx.Geolocation.Country))
	return result
}

// detectAccountTakeover combines an unseen device fingerprint with recent
// failed transactions and an unusual local hour. Elevated contribution only;
// never a standalone override.
func detectAccountTakeover(th *Thresholds, tx *transaction.Context, hist *historySnapshot) DetectorResult {
	result := DetectorResult{Name: FactorAccountTakeover}

	if tx.DeviceFingerprint == "" {
		return result
	}
	for _, dev := range hist.devices {
		if dev.Fingerprint == tx.DeviceFingerprint {
			return result
		}
	}

	score := 30.0
	reasons := []string{"Transaction from unrecognized device"}

	failures := 0
	cutoff := tx.Timestamp.Add(-th.HistoryLookback)
	for _, rec := range hist.transactions {
		if rec.Status == transaction.StatusFailed && rec.Timestamp.After(cutoff) {
			failures++
		}
	}
	if failures >= 2 {
		score += 25
		reasons = append(reasons, fmt.Sprintf("%d failed transactions in recent history", failures))
	}

	hour := tx.Timestamp.Hour()
	if hour >= th.OddHourStart && hour <= th.OddHourEnd {
		score += 20
		reasons = append(reasons, fmt.Sprintf("Transaction at unusual hour (%02d:00 local)", hour))
	}

	result.Score = math.Min(75, score)
	result.Reasons = reasons
	return result
}

// latestLocated returns the most recent prior record carrying a geolocation
func latestLocated(records []*transaction.HistoryRecord, before time.Time) *transaction.HistoryRecord {
	var latest *transaction.HistoryRecord
	for _, rec := range records {
		if rec.Geolocation == nil || rec.Timestamp.After(before) {
			continue
		}
		if latest == nil || rec.Timestamp.After(latest.Timestamp) {
			latest = rec
		}
	}
	return latest
}

// haversineKm computes the great-circle distance between two points
func haversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	const earthRadiusKm = 6371.0

	lat1Rad := lat1 * math.Pi / 180
	lat2Rad := lat2 * math.Pi / 180
	deltaLat := (lat2 - lat1) * math.Pi / 180
	deltaLon := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(deltaLat/2)*math.Sin(deltaLat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*
			math.Sin(deltaLon/2)*math.Sin(deltaLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusKm * c
}

// impliedSpeedKmh converts distance and elapsed time to km/h. Zero or
// negative elapsed time (clock skew, simultaneous records) counts as
// instantaneous and returns +Inf.
func impliedSpeedKmh(distanceKm float64, elapsed time.Duration) float64 {
	hours := elapsed.Hours()
	if hours <= 0 {
		return math.Inf(1)
	}
	return distanceKm / hours
}
