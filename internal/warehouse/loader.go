// Package warehouse loads processed partitions into the dimensional store
// using a staging-then-merge protocol: one transaction per partition, temp
// staging tables, and natural-key upserts. Loading a partition twice leaves
// the warehouse exactly as loading it once.
package warehouse

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/txn-warehouse/internal/domain"
	"github.com/dvloznov/txn-warehouse/internal/retry"
)

// LoadResult reports what one partition load wrote.
type LoadResult struct {
	FactsWritten int64
	DimsUpserted int64
}

// Loader owns warehouse writes. The *sql.DB pool is injected and scoped by
// the caller; the loader never closes it.
type Loader struct {
	db      *sql.DB
	dialect Dialect
	policy  retry.Policy
	log     zerolog.Logger
}

// NewLoader creates a loader for the given pool and dialect.
func NewLoader(db *sql.DB, dialect Dialect, policy retry.Policy, log zerolog.Logger) *Loader {
	return &Loader{db: db, dialect: dialect, policy: policy, log: log}
}

// Load upserts one processed partition. Transient connection errors retry
// the whole partition load; constraint violations fail closed immediately.
// Any failure inside the transaction rolls back all dimension and fact
// writes for the partition.
func (l *Loader) Load(ctx context.Context, date time.Time, records []domain.ProcessedTransaction) (LoadResult, error) {
	started := time.Now()

	var result LoadResult
	op := func() error {
		res, err := l.loadOnce(ctx, date, records)
		if err != nil {
			if IsTransient(err) {
				return err
			}
			return retry.Permanent(err)
		}
		result = res
		return nil
	}

	if err := l.policy.Do(ctx, l.log, "warehouse load", op); err != nil {
		return LoadResult{}, fmt.Errorf("Load: partition %s: %w", date.Format(dateFormat), err)
	}

	l.log.Info().
		Str("date", date.Format(dateFormat)).
		Int64("facts_written", result.FactsWritten).
		Int64("dims_upserted", result.DimsUpserted).
		Dur("elapsed", time.Since(started)).
		Msg("partition loaded")

	return result, nil
}

func (l *Loader) loadOnce(ctx context.Context, date time.Time, records []domain.ProcessedTransaction) (LoadResult, error) {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return LoadResult{}, fmt.Errorf("loadOnce: begin: %w", err)
	}
	defer tx.Rollback()

	var result LoadResult

	if len(records) > 0 {
		for _, upsert := range []func(context.Context, *sql.Tx, Dialect, []domain.ProcessedTransaction) (int64, error){
			upsertDimDate, upsertDimChannel, upsertDimCustomer, upsertDimCity,
		} {
			n, err := upsert(ctx, tx, l.dialect, records)
			if err != nil {
				return LoadResult{}, err
			}
			result.DimsUpserted += n
		}

		facts, err := l.mergeFacts(ctx, tx, records)
		if err != nil {
			return LoadResult{}, err
		}
		result.FactsWritten = facts
	}

	if err := l.recordLoadRun(ctx, tx, date, result); err != nil {
		return LoadResult{}, err
	}

	if err := tx.Commit(); err != nil {
		return LoadResult{}, fmt.Errorf("loadOnce: commit: %w", err)
	}
	return result, nil
}

func (l *Loader) mergeFacts(ctx context.Context, tx *sql.Tx, records []domain.ProcessedTransaction) (int64, error) {
	loadedAt := time.Now().UTC()
	rows := make([][]any, 0, len(records))
	for _, r := range records {
		rows = append(rows, []any{
			r.TransactionID,
			r.Timestamp.UTC().Truncate(24 * time.Hour).Format(dateFormat),
			r.Channel,
			r.CustomerID,
			r.City,
			r.Amount,
			string(r.Status),
			r.ProcessingTime,
			string(r.DelayBucket),
			r.Revenue,
			loadedAt,
		})
	}

	merged, err := stageAndMerge(ctx, tx, l.dialect,
		"staging_fact_transactions",
		`CREATE TEMPORARY TABLE staging_fact_transactions (
			transaction_id          TEXT NOT NULL,
			full_date               DATE NOT NULL,
			channel_name            TEXT NOT NULL,
			customer_id             TEXT NOT NULL,
			city_name               TEXT NOT NULL,
			amount                  NUMERIC(12,2) NOT NULL,
			status                  TEXT NOT NULL,
			processing_time         DOUBLE PRECISION NOT NULL,
			processing_delay_bucket TEXT NOT NULL,
			revenue                 NUMERIC(12,2) NOT NULL,
			loaded_at               TIMESTAMP NOT NULL
		)`,
		[]string{
			"transaction_id", "full_date", "channel_name", "customer_id", "city_name",
			"amount", "status", "processing_time", "processing_delay_bucket", "revenue", "loaded_at",
		},
		rows,
		// Conflict on transaction_id overwrites every non-key column, so
		// reprocessing a partition corrects facts instead of duplicating them.
		`INSERT INTO fact_transactions (
			transaction_id, date_key, channel_key, customer_key, city_key,
			amount, status, processing_time, processing_delay_bucket, revenue, loaded_at
		)
		SELECT s.transaction_id, dd.date_key, dc.channel_key, dcu.customer_key, dci.city_key,
		       s.amount, s.status, s.processing_time, s.processing_delay_bucket, s.revenue, s.loaded_at
		FROM staging_fact_transactions s
		JOIN dim_date dd ON dd.full_date = s.full_date
		JOIN dim_channel dc ON dc.channel_name = s.channel_name
		JOIN dim_customer dcu ON dcu.customer_id = s.customer_id
		JOIN dim_city dci ON dci.city_name = s.city_name
		WHERE true
		ON CONFLICT (transaction_id) DO UPDATE SET
			date_key = excluded.date_key,
			channel_key = excluded.channel_key,
			customer_key = excluded.customer_key,
			city_key = excluded.city_key,
			amount = excluded.amount,
			status = excluded.status,
			processing_time = excluded.processing_time,
			processing_delay_bucket = excluded.processing_delay_bucket,
			revenue = excluded.revenue,
			loaded_at = excluded.loaded_at`,
	)
	if err != nil {
		return 0, err
	}

	// A staged fact that failed to resolve all four dimension keys silently
	// drops out of the join. That is a referential defect, not a retry case.
	if merged != int64(len(records)) {
		return 0, fmt.Errorf("mergeFacts: merged %d of %d staged facts, dimension resolution failed: %w",
			merged, len(records), domain.ErrIntegrity)
	}
	return merged, nil
}

func (l *Loader) recordLoadRun(ctx context.Context, tx *sql.Tx, date time.Time, result LoadResult) error {
	query := fmt.Sprintf(`INSERT INTO etl_load_runs (partition_date, facts_written, dims_upserted, loaded_at)
		VALUES (%s, %s, %s, %s)
		ON CONFLICT (partition_date) DO UPDATE SET
			facts_written = excluded.facts_written,
			dims_upserted = excluded.dims_upserted,
			loaded_at = excluded.loaded_at`,
		l.dialect.placeholder(1), l.dialect.placeholder(2), l.dialect.placeholder(3), l.dialect.placeholder(4))

	_, err := tx.ExecContext(ctx, query,
		date.UTC().Format(dateFormat), result.FactsWritten, result.DimsUpserted, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("recordLoadRun: %w", err)
	}
	return nil
}

// Complete reports whether a load run has been recorded for date. The
// audit row commits in the same transaction as the partition's facts, so
// its presence means the load finished.
func (l *Loader) Complete(ctx context.Context, date time.Time) (bool, error) {
	query := fmt.Sprintf("SELECT COUNT(*) FROM etl_load_runs WHERE partition_date = %s", l.dialect.placeholder(1))

	var n int
	if err := l.db.QueryRowContext(ctx, query, date.UTC().Format(dateFormat)).Scan(&n); err != nil {
		return false, fmt.Errorf("Complete: %w", err)
	}
	return n > 0, nil
}
