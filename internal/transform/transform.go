// Package transform cleans and enriches a raw partition into a processed
// one: deduplicate, validate, enrich with channel fees, derive revenue and
// delay buckets. Every step is a pure function over the record set, so the
// same raw input always produces the same processed output.
package transform

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/txn-warehouse/internal/domain"
	"github.com/dvloznov/txn-warehouse/internal/partition"
	"github.com/dvloznov/txn-warehouse/internal/retry"
)

// Config controls one transformer instance.
type Config struct {
	// Fees maps channel name to fee percent. A record whose channel is not
	// in the table fails validation and is dropped.
	Fees map[string]decimal.Decimal

	Thresholds domain.BucketThresholds

	// FatalDropRate is the fraction of post-dedup records that may be
	// dropped before the stage fails instead of warning. At 1.0 only a
	// partition with zero survivors is fatal.
	FatalDropRate float64
}

// Report counts what the cleaning steps did to the partition.
type Report struct {
	Input      int
	Duplicates int
	Dropped    int
	Output     int
}

// Transformer turns raw partitions into processed ones.
type Transformer struct {
	store  partition.Store
	cfg    Config
	policy retry.Policy
	log    zerolog.Logger
}

// New creates a transformer.
func New(store partition.Store, cfg Config, policy retry.Policy, log zerolog.Logger) *Transformer {
	return &Transformer{store: store, cfg: cfg, policy: policy, log: log}
}

// Run reads the raw partition for date, applies the cleaning steps in
// order, and publishes the processed partition atomically.
func (t *Transformer) Run(ctx context.Context, date time.Time) (Report, error) {
	started := time.Now()

	data, err := t.store.Read(ctx, partition.RawDataKey(date))
	if err != nil {
		return Report{}, fmt.Errorf("Run: read raw partition: %w", err)
	}
	raw, err := partition.DecodeRaw(data)
	if err != nil {
		return Report{}, fmt.Errorf("Run: decode raw partition: %w", err)
	}

	processed, report := Clean(raw, t.cfg)

	if report.Output == 0 {
		return report, fmt.Errorf("Run: no records survived validation (input=%d duplicates=%d dropped=%d)",
			report.Input, report.Duplicates, report.Dropped)
	}
	if base := report.Input - report.Duplicates; base > 0 {
		rate := float64(report.Dropped) / float64(base)
		if rate > t.cfg.FatalDropRate {
			return report, fmt.Errorf("Run: drop rate %.2f exceeds fatal threshold %.2f", rate, t.cfg.FatalDropRate)
		}
		if report.Dropped > 0 {
			t.log.Warn().
				Int("dropped", report.Dropped).
				Float64("drop_rate", rate).
				Msg("records dropped during validation")
		}
	}

	out, err := partition.EncodeProcessed(processed)
	if err != nil {
		return report, fmt.Errorf("Run: encode processed partition: %w", err)
	}

	publish := func() error {
		return partition.PublishComplete(ctx, t.store,
			partition.ProcessedDataKey(date), partition.ProcessedMarkerKey(date), out)
	}
	if err := t.policy.Do(ctx, t.log, "processed partition publish", publish); err != nil {
		return report, fmt.Errorf("Run: publish processed partition: %w", err)
	}

	t.log.Info().
		Str("date", date.Format("2006-01-02")).
		Int("input", report.Input).
		Int("duplicates", report.Duplicates).
		Int("dropped", report.Dropped).
		Int("output", report.Output).
		Dur("elapsed", time.Since(started)).
		Msg("processed partition published")

	return report, nil
}

// Clean applies dedup, validation, enrichment and derivation in order.
func Clean(raw []domain.Transaction, cfg Config) ([]domain.ProcessedTransaction, Report) {
	report := Report{Input: len(raw)}

	deduped, removed := Dedupe(raw)
	report.Duplicates = removed

	valid, dropped := Validate(deduped)
	report.Dropped += dropped

	processed, dropped := Enrich(valid, cfg.Fees)
	report.Dropped += dropped

	Derive(processed, cfg.Thresholds)

	report.Output = len(processed)
	return processed, report
}

// Dedupe removes records sharing a transaction ID, keeping the first
// occurrence in input order. The removed count is a metric, not an error.
func Dedupe(records []domain.Transaction) ([]domain.Transaction, int) {
	seen := make(map[string]struct{}, len(records))
	out := records[:0:0]
	for _, r := range records {
		if _, dup := seen[r.TransactionID]; dup {
			continue
		}
		seen[r.TransactionID] = struct{}{}
		out = append(out, r)
	}
	return out, len(records) - len(out)
}

// Validate drops records with a non-positive amount, an unknown status, or
// an empty transaction ID.
func Validate(records []domain.Transaction) ([]domain.Transaction, int) {
	out := records[:0:0]
	for _, r := range records {
		if strings.TrimSpace(r.TransactionID) == "" {
			continue
		}
		if !r.Amount.IsPositive() {
			continue
		}
		if !r.Status.Valid() {
			continue
		}
		out = append(out, r)
	}
	return out, len(records) - len(out)
}

// Enrich joins records against the channel fee table. A record whose
// channel has no fee entry is a validation failure and is dropped.
func Enrich(records []domain.Transaction, fees map[string]decimal.Decimal) ([]domain.ProcessedTransaction, int) {
	out := make([]domain.ProcessedTransaction, 0, len(records))
	for _, r := range records {
		fee, ok := fees[r.Channel]
		if !ok {
			continue
		}
		out = append(out, domain.ProcessedTransaction{Transaction: r, FeePercent: fee})
	}
	return out, len(records) - len(out)
}

// Derive computes the revenue and delay-bucket measures in place.
func Derive(records []domain.ProcessedTransaction, thresholds domain.BucketThresholds) {
	for i := range records {
		records[i].Revenue = domain.ComputeRevenue(records[i].Amount, records[i].FeePercent, records[i].Status)
		records[i].DelayBucket = thresholds.Bucket(records[i].ProcessingTime)
	}
}
