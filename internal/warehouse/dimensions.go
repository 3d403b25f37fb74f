package warehouse

import (
	"context"
	"database/sql"
	"fmt"
	"hash/fnv"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dvloznov/txn-warehouse/internal/domain"
)

const dateFormat = "2006-01-02"

var customerSegments = [...]string{"Retail", "Corporate", "SMB", "Enterprise"}

// customerAttrs derives stable dimension attributes from the customer's
// natural key, so re-loading any partition converges on the same row.
func customerAttrs(customerID string) (segment string, firstSeen string) {
	h := fnv.New32a()
	h.Write([]byte(customerID))
	v := h.Sum32()

	segment = customerSegments[v%uint32(len(customerSegments))]
	first := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, int(v%1825))
	return segment, first.Format(dateFormat)
}

// stageAndMerge loads rows into a per-transaction staging table and merges
// them into the target with natural-key conflict resolution. Returns the
// number of rows the merge touched.
func stageAndMerge(ctx context.Context, tx *sql.Tx, d Dialect, staging string, createStaging string, cols []string, rows [][]any, mergeSQL string) (int64, error) {
	if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+staging); err != nil {
		return 0, fmt.Errorf("stageAndMerge: drop %s: %w", staging, err)
	}
	if _, err := tx.ExecContext(ctx, createStaging); err != nil {
		return 0, fmt.Errorf("stageAndMerge: create %s: %w", staging, err)
	}
	if err := insertBatch(ctx, tx, d, staging, cols, rows); err != nil {
		return 0, fmt.Errorf("stageAndMerge: stage %s: %w", staging, err)
	}

	res, err := tx.ExecContext(ctx, mergeSQL)
	if err != nil {
		return 0, fmt.Errorf("stageAndMerge: merge %s: %w", staging, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("stageAndMerge: rows affected for %s: %w", staging, err)
	}
	return n, nil
}

// insertBatch inserts rows with multi-row VALUES, chunked to stay inside
// sqlite's bind-variable limit.
func insertBatch(ctx context.Context, tx *sql.Tx, d Dialect, table string, cols []string, rows [][]any) error {
	if len(rows) == 0 {
		return nil
	}
	const maxParams = 900
	chunk := maxParams / len(cols)

	for start := 0; start < len(rows); start += chunk {
		end := start + chunk
		if end > len(rows) {
			end = len(rows)
		}
		batch := rows[start:end]

		query := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s",
			table, joinCols(cols), d.valuesClause(len(batch), len(cols)))

		args := make([]any, 0, len(batch)*len(cols))
		for _, row := range batch {
			args = append(args, row...)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("insertBatch: %s: %w", table, err)
		}
	}
	return nil
}

func joinCols(cols []string) string {
	out := ""
	for i, c := range cols {
		if i > 0 {
			out += ", "
		}
		out += c
	}
	return out
}

func upsertDimDate(ctx context.Context, tx *sql.Tx, d Dialect, records []domain.ProcessedTransaction) (int64, error) {
	distinct := map[string]time.Time{}
	for _, r := range records {
		day := r.Timestamp.UTC().Truncate(24 * time.Hour)
		distinct[day.Format(dateFormat)] = day
	}

	keys := sortedKeys(distinct)
	rows := make([][]any, 0, len(keys))
	for _, k := range keys {
		day := distinct[k]
		rows = append(rows, []any{
			k, day.Year(), (int(day.Month())-1)/3 + 1, int(day.Month()), day.Day(), int(day.Weekday()),
		})
	}

	return stageAndMerge(ctx, tx, d,
		"staging_dim_date",
		`CREATE TEMPORARY TABLE staging_dim_date (
			full_date DATE NOT NULL, year INTEGER NOT NULL, quarter INTEGER NOT NULL,
			month INTEGER NOT NULL, day INTEGER NOT NULL, day_of_week INTEGER NOT NULL
		)`,
		[]string{"full_date", "year", "quarter", "month", "day", "day_of_week"},
		rows,
		`INSERT INTO dim_date (full_date, year, quarter, month, day, day_of_week)
		 SELECT full_date, year, quarter, month, day, day_of_week FROM staging_dim_date WHERE true
		 ON CONFLICT (full_date) DO NOTHING`,
	)
}

func upsertDimChannel(ctx context.Context, tx *sql.Tx, d Dialect, records []domain.ProcessedTransaction) (int64, error) {
	distinct := map[string]decimal.Decimal{}
	for _, r := range records {
		distinct[r.Channel] = r.FeePercent
	}

	keys := sortedKeys(distinct)
	rows := make([][]any, 0, len(keys))
	for _, k := range keys {
		rows = append(rows, []any{k, distinct[k]})
	}

	// fee_percent is a mutable attribute: a changed fee updates the row.
	return stageAndMerge(ctx, tx, d,
		"staging_dim_channel",
		`CREATE TEMPORARY TABLE staging_dim_channel (
			channel_name TEXT NOT NULL, fee_percent NUMERIC(6,3) NOT NULL
		)`,
		[]string{"channel_name", "fee_percent"},
		rows,
		`INSERT INTO dim_channel (channel_name, fee_percent)
		 SELECT channel_name, fee_percent FROM staging_dim_channel WHERE true
		 ON CONFLICT (channel_name) DO UPDATE SET fee_percent = excluded.fee_percent`,
	)
}

func upsertDimCustomer(ctx context.Context, tx *sql.Tx, d Dialect, records []domain.ProcessedTransaction) (int64, error) {
	distinct := map[string]struct{}{}
	for _, r := range records {
		distinct[r.CustomerID] = struct{}{}
	}

	keys := sortedKeys(distinct)
	rows := make([][]any, 0, len(keys))
	for _, k := range keys {
		segment, firstSeen := customerAttrs(k)
		rows = append(rows, []any{k, segment, firstSeen})
	}

	return stageAndMerge(ctx, tx, d,
		"staging_dim_customer",
		`CREATE TEMPORARY TABLE staging_dim_customer (
			customer_id TEXT NOT NULL, segment TEXT NOT NULL, first_seen_date DATE NOT NULL
		)`,
		[]string{"customer_id", "segment", "first_seen_date"},
		rows,
		`INSERT INTO dim_customer (customer_id, segment, first_seen_date)
		 SELECT customer_id, segment, first_seen_date FROM staging_dim_customer WHERE true
		 ON CONFLICT (customer_id) DO UPDATE SET
			segment = excluded.segment,
			first_seen_date = excluded.first_seen_date`,
	)
}

func upsertDimCity(ctx context.Context, tx *sql.Tx, d Dialect, records []domain.ProcessedTransaction) (int64, error) {
	distinct := map[string]struct{}{}
	for _, r := range records {
		distinct[r.City] = struct{}{}
	}

	keys := sortedKeys(distinct)
	rows := make([][]any, 0, len(keys))
	for _, k := range keys {
		rows = append(rows, []any{k})
	}

	return stageAndMerge(ctx, tx, d,
		"staging_dim_city",
		`CREATE TEMPORARY TABLE staging_dim_city (city_name TEXT NOT NULL)`,
		[]string{"city_name"},
		rows,
		`INSERT INTO dim_city (city_name)
		 SELECT city_name FROM staging_dim_city WHERE true
		 ON CONFLICT (city_name) DO NOTHING`,
	)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
