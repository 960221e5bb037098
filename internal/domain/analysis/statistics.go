package analysis

import (
	"fmt"
	"time"
)

// Counts are persisted aggregate counters over stored analyses
type Counts struct {
	TotalAnalyzed       int64 `json:"total_analyzed"`
	TotalBlocked        int64 `json:"total_blocked"`
	TotalReviewed       int64 `json:"total_reviewed"`
	TotalFalsePositives int64 `json:"total_false_positives"`
}

// CurrentMetrics are in-process counters, reset on restart
type CurrentMetrics struct {
	TransactionsAnalyzed int64         `json:"transactions_analyzed"`
	AvgProcessingTime    time.Duration `json:"avg_processing_time"`
}

// Statistics is the aggregate view returned by GetStatistics
type Statistics struct {
	Counts

	BlockRate         string `json:"block_rate"`
	ReviewRate        string `json:"review_rate"`
	FalsePositiveRate string `json:"false_positive_rate"`

	CurrentMetrics CurrentMetrics `json:"current_metrics"`
}

// TimeRange bounds a statistics query by analysis creation time
type TimeRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// NewStatistics derives the rate strings from raw counts. Rates are
// percentages with two decimals; the false-positive rate is relative to
// blocked transactions, computed from the flag at query time.
func NewStatistics(counts Counts, current CurrentMetrics) *Statistics {
	return &Statistics{
		Counts:            counts,
		BlockRate:         formatRate(counts.TotalBlocked, counts.TotalAnalyzed),
		ReviewRate:        formatRate(counts.TotalReviewed, counts.TotalAnalyzed),
		FalsePositiveRate: formatRate(counts.TotalFalsePositives, counts.TotalBlocked),
		CurrentMetrics:    current,
	}
}

func formatRate(part, whole int64) string {
	if whole == 0 {
		return "0.00%"
	}
	return fmt.Sprintf("%.2f%%", float64(part)/float64(whole)*100)
}
