package retry

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/dvloznov/txn-warehouse/internal/logger"
)

func TestDoSucceedsFirstAttempt(t *testing.T) {
	calls := 0
	err := Policy{Attempts: 3}.Do(context.Background(), logger.NewWithWriter(&strings.Builder{}), "op", func() error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestDoRetriesTransientFailure(t *testing.T) {
	calls := 0
	err := Policy{Attempts: 3}.Do(context.Background(), logger.NewWithWriter(&strings.Builder{}), "op", func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestDoExhaustsAttempts(t *testing.T) {
	transient := errors.New("transient")
	calls := 0
	err := Policy{Attempts: 3}.Do(context.Background(), logger.NewWithWriter(&strings.Builder{}), "op", func() error {
		calls++
		return transient
	})
	if !errors.Is(err, transient) {
		t.Fatalf("Do: err = %v, want %v", err, transient)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestDoStopsOnPermanent(t *testing.T) {
	fatal := errors.New("integrity violation")
	calls := 0
	err := Policy{Attempts: 5}.Do(context.Background(), logger.NewWithWriter(&strings.Builder{}), "op", func() error {
		calls++
		return Permanent(fatal)
	})
	if !errors.Is(err, fatal) {
		t.Fatalf("Do: err = %v, want %v", err, fatal)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestDoStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Policy{Attempts: 5}.Do(ctx, logger.NewWithWriter(&strings.Builder{}), "op", func() error {
		calls++
		cancel()
		return errors.New("transient")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestDoLogsRetries(t *testing.T) {
	var buf strings.Builder
	_ = Policy{Attempts: 2}.Do(context.Background(), logger.NewWithWriter(&buf), "partition publish", func() error {
		return errors.New("transient")
	})
	out := buf.String()
	if !strings.Contains(out, "partition publish failed, retrying") {
		t.Errorf("missing retry log line, got %q", out)
	}
	if !strings.Contains(out, `"attempt":1`) {
		t.Errorf("missing attempt field, got %q", out)
	}
}

func TestPermanentNil(t *testing.T) {
	if Permanent(nil) != nil {
		t.Error("Permanent(nil) should be nil")
	}
}

func TestDefaultPolicy(t *testing.T) {
	if Default.Attempts != 3 {
		t.Errorf("Default.Attempts = %d, want 3", Default.Attempts)
	}
}
