// Package retry provides bounded, fixed-delay retry policies for pipeline
// stages. Policies are injected so tests can run with zero delay.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
)

// Policy bounds an operation to a total number of attempts with a fixed
// delay between them.
type Policy struct {
	Attempts int
	Delay    time.Duration
}

// Default mirrors the pipeline's historical behaviour: three attempts with
// two seconds between them.
var Default = Policy{Attempts: 3, Delay: 2 * time.Second}

// Do runs op under the policy. Transient failures are retried until the
// attempt budget is exhausted; errors wrapped with Permanent stop
// immediately. Each retry is logged with the attempt number.
func (p Policy) Do(ctx context.Context, log zerolog.Logger, name string, op func() error) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}

	b := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(p.Delay), uint64(attempts-1)),
		ctx,
	)

	attempt := 0
	return backoff.RetryNotify(op, b, func(err error, next time.Duration) {
		attempt++
		log.Warn().
			Err(err).
			Int("attempt", attempt).
			Int("max_attempts", attempts).
			Dur("backoff", next).
			Msgf("%s failed, retrying", name)
	})
}

// Permanent marks err as not retryable: integrity and configuration errors
// cannot be fixed by trying again.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return backoff.Permanent(err)
}
