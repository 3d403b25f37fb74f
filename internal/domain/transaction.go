package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status is the terminal state of a transaction as reported by the source.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
	StatusPending Status = "pending"
)

// Valid reports whether s is one of the allowed transaction statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusSuccess, StatusFailed, StatusPending:
		return true
	}
	return false
}

// DelayBucket classifies a transaction's processing time.
type DelayBucket string

const (
	BucketFast   DelayBucket = "fast"
	BucketMedium DelayBucket = "medium"
	BucketSlow   DelayBucket = "slow"
)

// Transaction is one raw transaction as produced by the generator or an
// external source. Amounts are decimals; float64 is never used for money.
type Transaction struct {
	TransactionID  string
	Timestamp      time.Time
	CustomerID     string
	Channel        string
	City           string
	Amount         decimal.Decimal
	Status         Status
	ProcessingTime float64 // seconds
}

// ProcessedTransaction is a raw transaction after cleaning and enrichment.
type ProcessedTransaction struct {
	Transaction

	FeePercent  decimal.Decimal
	Revenue     decimal.Decimal
	DelayBucket DelayBucket
}

// ComputeRevenue derives the revenue measure for a transaction: the fee
// taken on the amount, zero unless the transaction succeeded. Rounded to
// two decimal places.
func ComputeRevenue(amount decimal.Decimal, feePercent decimal.Decimal, status Status) decimal.Decimal {
	if status != StatusSuccess {
		return decimal.Zero
	}
	return amount.Mul(feePercent).Div(decimal.NewFromInt(100)).Round(2)
}

// BucketThresholds are the upper bounds (exclusive) for the fast and medium
// delay buckets, in seconds. Anything at or above Medium is slow.
type BucketThresholds struct {
	Fast   float64
	Medium float64
}

// Bucket classifies a processing time against the thresholds.
func (t BucketThresholds) Bucket(seconds float64) DelayBucket {
	switch {
	case seconds < t.Fast:
		return BucketFast
	case seconds < t.Medium:
		return BucketMedium
	default:
		return BucketSlow
	}
}
