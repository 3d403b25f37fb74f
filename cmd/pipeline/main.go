package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/dvloznov/txn-warehouse/internal/config"
	"github.com/dvloznov/txn-warehouse/internal/generate"
	"github.com/dvloznov/txn-warehouse/internal/logger"
	"github.com/dvloznov/txn-warehouse/internal/partition"
	"github.com/dvloznov/txn-warehouse/internal/pipeline"
	"github.com/dvloznov/txn-warehouse/internal/transform"
	"github.com/dvloznov/txn-warehouse/internal/warehouse"
)

// Exit codes: 0 success, 1 stage failed after retries, 2 invalid input or
// configuration.
const (
	exitOK     = 0
	exitFailed = 1
	exitUsage  = 2
)

var allStages = []string{"generate", "transform", "load"}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	log := logger.New()

	if len(args) < 1 {
		printUsage()
		return exitUsage
	}

	switch args[0] {
	case "run":
		return runStages(log, args[1:], "")
	case "generate", "transform", "load":
		return runStages(log, args[1:], args[0])
	case "backfill":
		return runBackfill(log, args[1:])
	case "migrate":
		return runMigrate(log, args[1:])
	case "help", "-h", "--help":
		printUsage()
		return exitOK
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", args[0])
		printUsage()
		return exitUsage
	}
}

func printUsage() {
	fmt.Println("Transaction Warehouse Pipeline")
	fmt.Println("\nUsage:")
	fmt.Println("  pipeline <command> [options]")
	fmt.Println("\nCommands:")
	fmt.Println("  run        Run the pipeline for one date (-date, -stages, -force)")
	fmt.Println("  generate   Run only the raw-partition generator")
	fmt.Println("  transform  Run only the validator/cleaner")
	fmt.Println("  load       Run only the warehouse loader")
	fmt.Println("  backfill   Run the pipeline for a date range (-from, -to, -parallel)")
	fmt.Println("  migrate    Create warehouse tables if absent")
	fmt.Println("  help       Show this help message")
	fmt.Println("\nDates are YYYY-MM-DD and default to yesterday.")
}

// runStages handles `run` and the single-stage aliases.
func runStages(log zerolog.Logger, args []string, only string) int {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	dateFlag := fs.String("date", "", "target date YYYY-MM-DD (default: yesterday)")
	stagesFlag := fs.String("stages", strings.Join(allStages, ","), "comma-separated stage selection")
	force := fs.Bool("force", false, "re-run stages whose output is already complete")
	fs.Parse(args)

	if only != "" {
		*stagesFlag = only
	}

	cfg, err := config.Load()
	if err != nil {
		log.Error().Err(err).Msg("invalid configuration")
		return exitUsage
	}

	date, err := config.ParseDate(*dateFlag)
	if err != nil {
		log.Error().Err(err).Msg("invalid date")
		return exitUsage
	}

	selected, err := parseStageSelection(*stagesFlag)
	if err != nil {
		log.Error().Err(err).Msg("invalid stage selection")
		return exitUsage
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	runner, cleanup, err := buildRunner(ctx, log, cfg, selected, *force)
	if err != nil {
		log.Error().Err(err).Msg("pipeline setup failed")
		return exitUsage
	}
	defer cleanup()

	result := runner.Run(ctx, date)
	if result.Err != nil {
		log.Error().Err(result.Err).Str("failed_stage", result.FailedStage).Msg("pipeline failed")
		return exitFailed
	}

	log.Info().
		Str("date", date.Format("2006-01-02")).
		Strs("completed", result.Completed).
		Strs("skipped", result.Skipped).
		Msg("pipeline finished")
	return exitOK
}

func runBackfill(log zerolog.Logger, args []string) int {
	fs := flag.NewFlagSet("backfill", flag.ExitOnError)
	fromFlag := fs.String("from", "", "first date YYYY-MM-DD (required)")
	toFlag := fs.String("to", "", "last date YYYY-MM-DD (required)")
	parallel := fs.Int("parallel", 2, "dates processed concurrently")
	force := fs.Bool("force", false, "re-run stages whose output is already complete")
	fs.Parse(args)

	if *fromFlag == "" || *toFlag == "" {
		log.Error().Msg("backfill requires -from and -to")
		return exitUsage
	}
	from, err := config.ParseDate(*fromFlag)
	if err != nil {
		log.Error().Err(err).Msg("invalid -from date")
		return exitUsage
	}
	to, err := config.ParseDate(*toFlag)
	if err != nil {
		log.Error().Err(err).Msg("invalid -to date")
		return exitUsage
	}
	if to.Before(from) || *parallel < 1 {
		log.Error().Msg("backfill needs -from <= -to and -parallel >= 1")
		return exitUsage
	}

	cfg, err := config.Load()
	if err != nil {
		log.Error().Err(err).Msg("invalid configuration")
		return exitUsage
	}

	ctx, cancel := context.WithTimeout(context.Background(), 6*time.Hour)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	runner, cleanup, err := buildRunner(ctx, log, cfg, allStages, *force)
	if err != nil {
		log.Error().Err(err).Msg("pipeline setup failed")
		return exitUsage
	}
	defer cleanup()

	// Dates are independent partitions; the warehouse handles concurrent
	// dimension upserts with its own conflict resolution.
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(*parallel)
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		date := d
		g.Go(func() error {
			if result := runner.Run(gctx, date); result.Err != nil {
				return result.Err
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("backfill failed")
		return exitFailed
	}
	log.Info().Str("from", from.Format("2006-01-02")).Str("to", to.Format("2006-01-02")).Msg("backfill finished")
	return exitOK
}

func runMigrate(log zerolog.Logger, args []string) int {
	fs := flag.NewFlagSet("migrate", flag.ExitOnError)
	fs.Parse(args)

	cfg, err := config.Load()
	if err != nil {
		log.Error().Err(err).Msg("invalid configuration")
		return exitUsage
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	db, dialect, err := openWarehouse(cfg)
	if err != nil {
		log.Error().Err(err).Msg("warehouse connection failed")
		return exitUsage
	}
	defer db.Close()

	if err := warehouse.EnsureSchema(ctx, db, dialect); err != nil {
		log.Error().Err(err).Msg("migration failed")
		return exitFailed
	}
	log.Info().Msg("warehouse schema is up to date")
	return exitOK
}

func parseStageSelection(s string) ([]string, error) {
	known := map[string]bool{}
	for _, name := range allStages {
		known[name] = true
	}

	selected := map[string]bool{}
	for _, name := range strings.Split(s, ",") {
		name = strings.TrimSpace(name)
		if !known[name] {
			return nil, fmt.Errorf("unknown stage %q, want one of %s", name, strings.Join(allStages, ", "))
		}
		selected[name] = true
	}

	// Preserve pipeline order regardless of flag order.
	out := make([]string, 0, len(selected))
	for _, name := range allStages {
		if selected[name] {
			out = append(out, name)
		}
	}
	return out, nil
}

// buildRunner wires the selected stages. The warehouse pool is opened only
// when the load stage is selected and is closed by the returned cleanup.
func buildRunner(ctx context.Context, log zerolog.Logger, cfg *config.Config, selected []string, force bool) (*pipeline.Runner, func(), error) {
	store, closeStore, err := newStore(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	cleanup := closeStore

	var stages []pipeline.Stage
	for _, name := range selected {
		switch name {
		case "generate":
			gen := generate.New(store, generate.Config{
				Count:       cfg.RecordsPerDay,
				FailureRate: cfg.FailureRate,
				Seed:        cfg.GeneratorSeed,
				Channels:    cfg.Channels,
				Cities:      cfg.Cities,
			}, cfg.Retry, logger.ForStage(log, "generate"))
			stages = append(stages, &pipeline.GenerateStage{Generator: gen, Store: store})

		case "transform":
			tr := transform.New(store, transform.Config{
				Fees:          cfg.Channels,
				Thresholds:    cfg.Thresholds,
				FatalDropRate: cfg.FatalDropRate,
			}, cfg.Retry, logger.ForStage(log, "transform"))
			stages = append(stages, &pipeline.TransformStage{Transformer: tr, Store: store})

		case "load":
			db, dialect, err := openWarehouse(cfg)
			if err != nil {
				cleanup()
				return nil, nil, err
			}
			prev := cleanup
			cleanup = func() { db.Close(); prev() }

			loader := warehouse.NewLoader(db, dialect, cfg.Retry, logger.ForStage(log, "load"))
			stages = append(stages, &pipeline.LoadStage{Loader: loader, Store: store})
		}
	}

	return pipeline.NewRunner(log, force, stages...), cleanup, nil
}

func newStore(ctx context.Context, cfg *config.Config) (partition.Store, func(), error) {
	if cfg.GCSBucket != "" {
		s, err := partition.NewGCSStore(ctx, cfg.GCSBucket)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { s.Close() }, nil
	}
	return partition.NewFSStore(cfg.DataDir), func() {}, nil
}

func openWarehouse(cfg *config.Config) (*sql.DB, warehouse.Dialect, error) {
	if cfg.WarehouseDSN == "" {
		return nil, warehouse.Dialect{}, fmt.Errorf("openWarehouse: WAREHOUSE_DSN is required")
	}
	dialect, err := warehouse.ForDriver(cfg.WarehouseDriver)
	if err != nil {
		return nil, warehouse.Dialect{}, err
	}
	db, err := sql.Open(cfg.WarehouseDriver, cfg.WarehouseDSN)
	if err != nil {
		return nil, warehouse.Dialect{}, fmt.Errorf("openWarehouse: open %s: %w", cfg.WarehouseDriver, err)
	}
	return db, dialect, nil
}
