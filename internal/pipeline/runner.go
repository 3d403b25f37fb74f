// Package pipeline sequences the daily stages for one partition date:
// generate, transform, load. Each stage owns its retry policy; the runner
// owns ordering, skip-on-complete, and failure isolation. Running the same
// date any number of times converges to the same end state.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/txn-warehouse/internal/logger"
)

// Result reports how a run for one date went. Err is nil only if every
// selected stage completed or was skipped as already complete.
type Result struct {
	Date        time.Time
	Completed   []string
	Skipped     []string
	FailedStage string
	Err         error
}

// Runner executes stages in order for a date.
type Runner struct {
	stages []Stage
	force  bool
	log    zerolog.Logger
}

// NewRunner creates a runner. With force set, stages run even when their
// output partition is already complete (deterministic overwrite).
func NewRunner(log zerolog.Logger, force bool, stages ...Stage) *Runner {
	return &Runner{stages: stages, force: force, log: log}
}

// Run executes the stages sequentially. A stage whose output already exists
// and is marked complete is skipped. If a stage fails after exhausting its
// own retries, the runner stops there: later stages never see a failed
// predecessor's output.
func (r *Runner) Run(ctx context.Context, date time.Time) Result {
	result := Result{Date: date}
	day := date.Format("2006-01-02")

	for _, stage := range r.stages {
		// Abort between stage boundaries only; a stage in flight finishes
		// or fails atomically on its own.
		if err := ctx.Err(); err != nil {
			result.FailedStage = stage.Name()
			result.Err = fmt.Errorf("Run: aborted before stage %s: %w", stage.Name(), err)
			return result
		}

		log := logger.ForStage(r.log, stage.Name())

		if !r.force {
			done, err := stage.Complete(ctx, date)
			if err != nil {
				result.FailedStage = stage.Name()
				result.Err = fmt.Errorf("Run: check stage %s for %s: %w", stage.Name(), day, err)
				return result
			}
			if done {
				log.Info().Str("date", day).Msg("output already complete, skipping")
				result.Skipped = append(result.Skipped, stage.Name())
				continue
			}
		}

		started := time.Now()
		if err := stage.Run(ctx, date); err != nil {
			log.Error().Err(err).Str("date", day).Msg("stage failed")
			result.FailedStage = stage.Name()
			result.Err = fmt.Errorf("Run: stage %s for %s: %w", stage.Name(), day, err)
			return result
		}

		log.Info().Str("date", day).Dur("elapsed", time.Since(started)).Msg("stage completed")
		result.Completed = append(result.Completed, stage.Name())
	}

	return result
}
