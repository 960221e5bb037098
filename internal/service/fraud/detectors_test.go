package fraud

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridianpay/risk-engine/internal/domain/transaction"
	"github.com/meridianpay/risk-engine/internal/domain/values"
)

var detectorNow = time.Date(2026, 3, 14, 15, 0, 0, 0, time.UTC)

func detectorTx(t *testing.T, amount float64, txType transaction.Type) *transaction.Context {
	t.Helper()
	tx, err := transaction.NewContext(
		uuid.NewString(),
		uuid.New(),
		uuid.New(),
		values.MustNewMoneyFromFloat(amount, values.USD),
		txType,
		detectorNow,
	)
	require.NoError(t, err)
	return tx
}

func historyRecord(amount float64, txType transaction.Type, at time.Time) *transaction.HistoryRecord {
	return &transaction.HistoryRecord{
		ID:        uuid.NewString(),
		Amount:    values.MustNewMoneyFromFloat(amount, values.USD),
		Timestamp: at,
		Status:    transaction.StatusCompleted,
		Type:      txType,
	}
}

func TestDetectVelocity(t *testing.T) {
	th := DefaultThresholds()

	tests := []struct {
		name      string
		records   func() []*transaction.HistoryRecord
		wantScore float64
	}{
		{
			name: "below threshold scores zero",
			records: func() []*transaction.HistoryRecord {
				var recs []*transaction.HistoryRecord
				for i := 0; i < 4; i++ {
					recs = append(recs, historyRecord(10, transaction.TypePayment, detectorNow.Add(-time.Duration(i+1)*time.Minute/2)))
				}
				return recs
			},
			wantScore: 0,
		},
		{
			name: "at threshold scores base",
			records: func() []*transaction.HistoryRecord {
				var recs []*transaction.HistoryRecord
				for i := 0; i < 5; i++ {
					recs = append(recs, historyRecord(10, transaction.TypePayment, detectorNow.Add(-time.Duration(i+1)*30*time.Second)))
				}
				return recs
			},
			wantScore: 60,
		},
		{
			name: "score grows with count and caps at 100",
			records: func() []*transaction.HistoryRecord {
				var recs []*transaction.HistoryRecord
				for i := 0; i < 12; i++ {
					recs = append(recs, historyRecord(10, transaction.TypePayment, detectorNow.Add(-time.Duration(i+1)*20*time.Second)))
				}
				return recs
			},
			wantScore: 100,
		},
		{
			name: "failed transactions do not count",
			records: func() []*transaction.HistoryRecord {
				var recs []*transaction.HistoryRecord
				for i := 0; i < 6; i++ {
					rec := historyRecord(10, transaction.TypePayment, detectorNow.Add(-time.Duration(i+1)*30*time.Second))
					rec.Status = transaction.StatusFailed
					recs = append(recs, rec)
				}
				return recs
			},
			wantScore: 0,
		},
		{
			name: "records outside the window do not count",
			records: func() []*transaction.HistoryRecord {
				var recs []*transaction.HistoryRecord
				for i := 0; i < 6; i++ {
					recs = append(recs, historyRecord(10, transaction.TypePayment, detectorNow.Add(-10*time.Minute)))
				}
				return recs
			},
			wantScore: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hist := &historySnapshot{transactions: tt.records()}
			result := detectVelocity(th, detectorTx(t, 25, transaction.TypePayment), hist)
			assert.Equal(t, FactorVelocity, result.Name)
			assert.Equal(t, tt.wantScore, result.Score)
			assert.False(t, result.Hard)
		})
	}
}

func TestDetectImpossibleTravel(t *testing.T) {
	th := DefaultThresholds()

	newYork := &transaction.Geolocation{Country: "US", City: "New York", Latitude: 40.7128, Longitude: -74.0060}
	london := &transaction.Geolocation{Country: "GB", City: "London", Latitude: 51.5074, Longitude: -0.1278}
	boston := &transaction.Geolocation{Country: "US", City: "Boston", Latitude: 42.3601, Longitude: -71.0589}

	located := func(geo *transaction.Geolocation, at time.Time) *transaction.HistoryRecord {
		rec := historyRecord(10, transaction.TypePayment, at)
		rec.Geolocation = geo
		return rec
	}

	t.Run("transatlantic hop in one hour is a hard override", func(t *testing.T) {
		tx := detectorTx(t, 25, transaction.TypePayment)
		tx.Geolocation = london
		hist := &historySnapshot{transactions: []*transaction.HistoryRecord{
			located(newYork, detectorNow.Add(-time.Hour)),
		}}

		result := detectImpossibleTravel(th, tx, hist)
		assert.Equal(t, float64(100), result.Score)
		assert.True(t, result.Hard)
		assert.NotEmpty(t, result.Reasons)
	})

	t.Run("reachable distance passes", func(t *testing.T) {
		tx := detectorTx(t, 25, transaction.TypePayment)
		tx.Geolocation = boston
		// ~306 km from New York in four hours
		hist := &historySnapshot{transactions: []*transaction.HistoryRecord{
			located(newYork, detectorNow.Add(-4*time.Hour)),
		}}

		result := detectImpossibleTravel(th, tx, hist)
		assert.Equal(t, float64(0), result.Score)
	})

	t.Run("same location with zero elapsed time passes", func(t *testing.T) {
		tx := detectorTx(t, 25, transaction.TypePayment)
		tx.Geolocation = newYork
		hist := &historySnapshot{transactions: []*transaction.HistoryRecord{
			located(newYork, detectorNow),
		}}

		result := detectImpossibleTravel(th, tx, hist)
		assert.Equal(t, float64(0), result.Score)
	})

	t.Run("no geolocation on transaction passes", func(t *testing.T) {
		tx := detectorTx(t, 25, transaction.TypePayment)
		hist := &historySnapshot{transactions: []*transaction.HistoryRecord{
			located(newYork, detectorNow.Add(-time.Hour)),
		}}

		result := detectImpossibleTravel(th, tx, hist)
		assert.Equal(t, float64(0), result.Score)
	})
}

func TestDetectRapidSuccession(t *testing.T) {
	th := DefaultThresholds()

	t.Run("burst of tightly spaced transactions triggers", func(t *testing.T) {
		var recs []*transaction.HistoryRecord
		for i := 1; i <= 4; i++ {
			recs = append(recs, historyRecord(10, transaction.TypePayment, detectorNow.Add(-time.Duration(i)*20*time.Second)))
		}
		hist := &historySnapshot{transactions: recs}

		result := detectRapidSuccession(th, detectorTx(t, 25, transaction.TypePayment), hist)
		assert.Greater(t, result.Score, float64(0))
		assert.Equal(t, FactorRapidSuccession, result.Name)
	})

	t.Run("spread out transactions pass", func(t *testing.T) {
		var recs []*transaction.HistoryRecord
		for i := 1; i <= 4; i++ {
			recs = append(recs, historyRecord(10, transaction.TypePayment, detectorNow.Add(-time.Duration(i)*time.Minute)))
		}
		hist := &historySnapshot{transactions: recs}

		result := detectRapidSuccession(th, detectorTx(t, 25, transaction.TypePayment), hist)
		assert.Equal(t, float64(0), result.Score)
	})

	t.Run("single tight pair is not enough", func(t *testing.T) {
		hist := &historySnapshot{transactions: []*transaction.HistoryRecord{
			historyRecord(10, transaction.TypePayment, detectorNow.Add(-10*time.Second)),
		}}

		result := detectRapidSuccession(th, detectorTx(t, 25, transaction.TypePayment), hist)
		assert.Equal(t, float64(0), result.Score)
	})
}

func TestDetectMoneyMule(t *testing.T) {
	th := DefaultThresholds()

	t.Run("large deposit then matching withdrawal triggers", func(t *testing.T) {
		hist := &historySnapshot{transactions: []*transaction.HistoryRecord{
			historyRecord(6000, transaction.TypeDeposit, detectorNow.Add(-2*time.Hour)),
		}}

		result := detectMoneyMule(th, detectorTx(t, 5800, transaction.TypeWithdrawal), hist)
		assert.Equal(t, float64(70), result.Score)
		assert.Equal(t, FactorMoneyMule, result.Name)
	})

	t.Run("historical deposit and withdrawal pair taints the account", func(t *testing.T) {
		hist := &historySnapshot{transactions: []*transaction.HistoryRecord{
			historyRecord(6000, transaction.TypeDeposit, detectorNow.Add(-5*time.Hour)),
			historyRecord(5900, transaction.TypeWithdrawal, detectorNow.Add(-3*time.Hour)),
		}}

		result := detectMoneyMule(th, detectorTx(t, 25, transaction.TypePayment), hist)
		assert.Equal(t, float64(70), result.Score)
	})

	t.Run("small deposit passes", func(t *testing.T) {
		hist := &historySnapshot{transactions: []*transaction.HistoryRecord{
			historyRecord(200, transaction.TypeDeposit, detectorNow.Add(-2*time.Hour)),
		}}

		result := detectMoneyMule(th, detectorTx(t, 190, transaction.TypeWithdrawal), hist)
		assert.Equal(t, float64(0), result.Score)
	})

	t.Run("withdrawal well below the deposit passes", func(t *testing.T) {
		hist := &historySnapshot{transactions: []*transaction.HistoryRecord{
			historyRecord(6000, transaction.TypeDeposit, detectorNow.Add(-2*time.Hour)),
		}}

		result := detectMoneyMule(th, detectorTx(t, 1000, transaction.TypeWithdrawal), hist)
		assert.Equal(t, float64(0), result.Score)
	})

	t.Run("withdrawal outside the window passes", func(t *testing.T) {
		hist := &historySnapshot{transactions: []*transaction.HistoryRecord{
			historyRecord(6000, transaction.TypeDeposit, detectorNow.Add(-10*time.Hour)),
		}}

		result := detectMoneyMule(th, detectorTx(t, 5800, transaction.TypeWithdrawal), hist)
		assert.Equal(t, float64(0), result.Score)
	})
}

func TestDetectGeoNovelty(t *testing.T) {
	th := DefaultThresholds()

	usLogin := &transaction.LoginRecord{
		Timestamp:   detectorNow.Add(-24 * time.Hour),
		Geolocation: &transaction.Geolocation{Country: "US"},
		Success:     true,
	}

	t.Run("unseen country triggers", func(t *testing.T) {
		tx := detectorTx(t, 25, transaction.TypePayment)
		tx.Geolocation = &transaction.Geolocation{Country: "BR", Latitude: -23.55, Longitude: -46.63}
		hist := &historySnapshot{logins: []*transaction.LoginRecord{usLogin}}

		result := detectGeoNovelty(th, tx, hist)
		assert.Equal(t, float64(50), result.Score)
		assert.False(t, result.Hard)
	})

	t.Run("known country from login history passes", func(t *testing.T) {
		tx := detectorTx(t, 25, transaction.TypePayment)
		tx.Geolocation = &transaction.Geolocation{Country: "US", Latitude: 40.7, Longitude: -74.0}
		hist := &historySnapshot{logins: []*transaction.LoginRecord{usLogin}}

		result := detectGeoNovelty(th, tx, hist)
		assert.Equal(t, float64(0), result.Score)
	})

	t.Run("known country from device history passes", func(t *testing.T) {
		tx := detectorTx(t, 25, transaction.TypePayment)
		tx.Geolocation = &transaction.Geolocation{Country: "DE", Latitude: 52.52, Longitude: 13.40}
		hist := &historySnapshot{devices: []*transaction.DeviceRecord{{Fingerprint: "dev-1", Country: "DE"}}}

		result := detectGeoNovelty(th, tx, hist)
		assert.Equal(t, float64(0), result.Score)
	})

	t.Run("empty history gives no signal", func(t *testing.T) {
		tx := detectorTx(t, 25, transaction.TypePayment)
		tx.Geolocation = &transaction.Geolocation{Country: "BR", Latitude: -23.55, Longitude: -46.63}

		result := detectGeoNovelty(th, tx, &historySnapshot{})
		assert.Equal(t, float64(0), result.Score)
	})
}

func TestDetectAccountTakeover(t *testing.T) {
	th := DefaultThresholds()

	knownDevices := []*transaction.DeviceRecord{{Fingerprint: "known-device", Country: "US"}}

	t.Run("known device passes", func(t *testing.T) {
		tx := detectorTx(t, 25, transaction.TypePayment)
		tx.DeviceFingerprint = "known-device"
		hist := &historySnapshot{devices: knownDevices}

		result := detectAccountTakeover(th, tx, hist)
		assert.Equal(t, float64(0), result.Score)
	})

	t.Run("new device alone is an elevated contribution", func(t *testing.T) {
		tx := detectorTx(t, 25, transaction.TypePayment)
		tx.DeviceFingerprint = "fresh-device"
		hist := &historySnapshot{devices: knownDevices}

		result := detectAccountTakeover(th, tx, hist)
		assert.Equal(t, float64(30), result.Score)
		assert.False(t, result.Hard)
	})

	t.Run("new device with failures and odd hour stacks but never overrides", func(t *testing.T) {
		tx, err := transaction.NewContext(
			uuid.NewString(), uuid.New(), uuid.New(),
			values.MustNewMoneyFromFloat(25, values.USD),
			transaction.TypePayment,
			time.Date(2026, 3, 14, 3, 0, 0, 0, time.UTC),
		)
		require.NoError(t, err)
		tx.DeviceFingerprint = "fresh-device"

		failed := historyRecord(10, transaction.TypePayment, tx.Timestamp.Add(-time.Hour))
		failed.Status = transaction.StatusFailed
		failed2 := historyRecord(10, transaction.TypePayment, tx.Timestamp.Add(-2*time.Hour))
		failed2.Status = transaction.StatusFailed

		hist := &historySnapshot{
			devices:      knownDevices,
			transactions: []*transaction.HistoryRecord{failed, failed2},
		}

		result := detectAccountTakeover(th, tx, hist)
		assert.Equal(t, float64(75), result.Score)
		assert.False(t, result.Hard)
		assert.Len(t, result.Reasons, 3)
	})

	t.Run("no fingerprint gives no signal", func(t *testing.T) {
		tx := detectorTx(t, 25, transaction.TypePayment)
		result := detectAccountTakeover(th, tx, &historySnapshot{devices: knownDevices})
		assert.Equal(t, float64(0), result.Score)
	})
}

func TestHaversineKm(t *testing.T) {
	// New York to London is roughly 5570 km
	d := haversineKm(40.7128, -74.0060, 51.5074, -0.1278)
	assert.InDelta(t, 5570, d, 20)

	// Same point
	assert.InDelta(t, 0, haversineKm(40.7128, -74.0060, 40.7128, -74.0060), 0.001)
}
