package fraud

import (
	"time"

	"github.com/meridianpay/risk-engine/internal/domain/transaction"
)

// Feature names shared between the engine and bundled models. External models
// receive the same keys over the wire.
const (
	FeatureAmount          = "amount"
	FeatureHourOfDay       = "hour_of_day"
	FeatureDayOfWeek       = "day_of_week"
	FeatureTxCount24h      = "tx_count_24h"
	FeatureFailedCount24h  = "failed_count_24h"
	FeatureAvgAmount24h    = "avg_amount_24h"
	FeatureAmountVsAvg     = "amount_vs_avg"
	FeatureNewDevice       = "new_device"
	FeatureNewCountry      = "new_country"
	FeatureIsWithdrawal    = "is_withdrawal"
	FeatureIsTransfer      = "is_transfer"
	FeatureHasDestination  = "has_destination"
	FeatureKnownDevices    = "known_devices"
	FeatureRecentLogins24h = "recent_logins_24h"
)

// buildFeatures derives the model feature vector from the transaction and the
// same history snapshot the detectors saw. Values are plain float64 so any
// model backend can consume them without schema negotiation.
func buildFeatures(tx *transaction.Context, hist *historySnapshot) Features {
	f := Features{
		FeatureAmount:    tx.Amount.ToFloat64(),
		FeatureHourOfDay: float64(tx.Timestamp.Hour()),
		FeatureDayOfWeek: float64(tx.Timestamp.Weekday()),
	}

	var count, failed int
	var total float64
	cutoff := tx.Timestamp.Add(-24 * time.Hour)
	for _, rec := range hist.transactions {
		if rec.Timestamp.Before(cutoff) || rec.Timestamp.After(tx.Timestamp) {
			continue
		}
		count++
		total += rec.Amount.ToFloat64()
		if rec.Status == transaction.StatusFailed {
			failed++
		}
	}
	f[FeatureTxCount24h] = float64(count)
	f[FeatureFailedCount24h] = float64(failed)

	avg := 0.0
	if count > 0 {
		avg = total / float64(count)
	}
	f[FeatureAvgAmount24h] = avg
	if avg > 0 {
		f[FeatureAmountVsAvg] = tx.Amount.ToFloat64() / avg
	} else {
		f[FeatureAmountVsAvg] = 1
	}

	f[FeatureNewDevice] = boolFeature(tx.DeviceFingerprint != "" && !knownDevice(tx.DeviceFingerprint, hist.devices))
	f[FeatureNewCountry] = boolFeature(tx.Geolocation != nil && !knownCountry(tx.Geolocation.Country, hist))

	f[FeatureIsWithdrawal] = boolFeature(tx.Type == transaction.TypeWithdrawal)
	f[FeatureIsTransfer] = boolFeature(tx.Type == transaction.TypeTransfer)
	f[FeatureHasDestination] = boolFeature(tx.DestinationAccount != "")
	f[FeatureKnownDevices] = float64(len(hist.devices))

	logins := 0
	for _, l := range hist.logins {
		if !l.Timestamp.Before(cutoff) {
			logins++
		}
	}
	f[FeatureRecentLogins24h] = float64(logins)

	return f
}

func knownDevice(fingerprint string, devices []*transaction.DeviceRecord) bool {
	for _, dev := range devices {
		if dev.Fingerprint == fingerprint {
			return true
		}
	}
	return false
}

func knownCountry(country string, hist *historySnapshot) bool {
	if country == "" {
		return true
	}
	for _, l := range hist.logins {
		if l.Geolocation != nil && l.Geolocation.Country == country {
			return true
		}
	}
	for _, dev := range hist.devices {
		if dev.Country == country {
			return true
		}
	}
	return false
}

func boolFeature(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
