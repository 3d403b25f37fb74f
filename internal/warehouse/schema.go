package warehouse

import (
	"context"
	"database/sql"
	"fmt"
)

// EnsureSchema creates the star schema if it is absent: four dimension
// tables with surrogate keys and unique natural keys, the fact table keyed
// by transaction_id, and the load audit table. The shape of these tables is
// the contract downstream dashboards query against; changing it requires a
// versioned migration, which is out of scope here.
func EnsureSchema(ctx context.Context, db *sql.DB, d Dialect) error {
	statements := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS dim_date (
			date_key    %s PRIMARY KEY,
			full_date   DATE NOT NULL UNIQUE,
			year        INTEGER NOT NULL,
			quarter     INTEGER NOT NULL,
			month       INTEGER NOT NULL,
			day         INTEGER NOT NULL,
			day_of_week INTEGER NOT NULL
		)`, d.serial),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS dim_channel (
			channel_key  %s PRIMARY KEY,
			channel_name TEXT NOT NULL UNIQUE,
			fee_percent  NUMERIC(6,3) NOT NULL
		)`, d.serial),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS dim_customer (
			customer_key    %s PRIMARY KEY,
			customer_id     TEXT NOT NULL UNIQUE,
			segment         TEXT NOT NULL,
			first_seen_date DATE NOT NULL
		)`, d.serial),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS dim_city (
			city_key  %s PRIMARY KEY,
			city_name TEXT NOT NULL UNIQUE
		)`, d.serial),
		`CREATE TABLE IF NOT EXISTS fact_transactions (
			transaction_id          TEXT PRIMARY KEY,
			date_key                INTEGER NOT NULL REFERENCES dim_date (date_key),
			channel_key             INTEGER NOT NULL REFERENCES dim_channel (channel_key),
			customer_key            INTEGER NOT NULL REFERENCES dim_customer (customer_key),
			city_key                INTEGER NOT NULL REFERENCES dim_city (city_key),
			amount                  NUMERIC(12,2) NOT NULL,
			status                  TEXT NOT NULL,
			processing_time         DOUBLE PRECISION NOT NULL,
			processing_delay_bucket TEXT NOT NULL,
			revenue                 NUMERIC(12,2) NOT NULL,
			loaded_at               TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS etl_load_runs (
			partition_date DATE PRIMARY KEY,
			facts_written  INTEGER NOT NULL,
			dims_upserted  INTEGER NOT NULL,
			loaded_at      TIMESTAMP NOT NULL
		)`,
	}

	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("EnsureSchema: %w", err)
		}
	}
	return nil
}
