package generate

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dvloznov/txn-warehouse/internal/config"
	"github.com/dvloznov/txn-warehouse/internal/domain"
	"github.com/dvloznov/txn-warehouse/internal/logger"
	"github.com/dvloznov/txn-warehouse/internal/partition"
	"github.com/dvloznov/txn-warehouse/internal/retry"
)

// flakyStore fails the first failures Publish calls, then delegates to an
// in-memory map. It records every call so tests can count attempts.
type flakyStore struct {
	mu       sync.Mutex
	failures int
	calls    int
	objects  map[string][]byte
}

func newFlakyStore(failures int) *flakyStore {
	return &flakyStore{failures: failures, objects: map[string][]byte{}}
}

func (s *flakyStore) Publish(ctx context.Context, key string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.calls <= s.failures {
		return errors.New("store unavailable")
	}
	s.objects[key] = data
	return nil
}

func (s *flakyStore) Read(ctx context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if data, ok := s.objects[key]; ok {
		return data, nil
	}
	return nil, partition.ErrNotExist
}

func (s *flakyStore) Exists(ctx context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objects[key]
	return ok, nil
}

func testConfig(count int, failureRate float64) Config {
	return Config{
		Count:       count,
		FailureRate: failureRate,
		Channels:    config.DefaultChannels(),
		Cities:      config.DefaultCities(),
	}
}

func TestGenerateDeterministic(t *testing.T) {
	g := New(newFlakyStore(0), testConfig(200, 0.1), retry.Policy{Attempts: 1}, logger.NewWithWriter(&strings.Builder{}))
	date := time.Date(2026, 8, 25, 0, 0, 0, 0, time.UTC)

	first, err := g.Generate(date)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	second, err := g.Generate(date)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	if len(first) != 200 || len(second) != 200 {
		t.Fatalf("lengths = %d, %d, want 200", len(first), len(second))
	}
	for i := range first {
		if first[i].TransactionID != second[i].TransactionID ||
			!first[i].Amount.Equal(second[i].Amount) ||
			first[i].Status != second[i].Status ||
			!first[i].Timestamp.Equal(second[i].Timestamp) {
			t.Fatalf("record %d differs between runs: %+v vs %+v", i, first[i], second[i])
		}
	}
}

func TestGenerateUniqueIDsAcrossDates(t *testing.T) {
	g := New(newFlakyStore(0), testConfig(100, 0.1), retry.Policy{Attempts: 1}, logger.NewWithWriter(&strings.Builder{}))

	seen := map[string]bool{}
	for day := 1; day <= 3; day++ {
		records, err := g.Generate(time.Date(2026, 8, day, 0, 0, 0, 0, time.UTC))
		if err != nil {
			t.Fatalf("Generate: %v", err)
		}
		for _, r := range records {
			if seen[r.TransactionID] {
				t.Fatalf("transaction id %s repeated across partitions", r.TransactionID)
			}
			seen[r.TransactionID] = true
		}
	}
}

func TestGenerateStatuses(t *testing.T) {
	date := time.Date(2026, 8, 25, 0, 0, 0, 0, time.UTC)

	t.Run("no failures", func(t *testing.T) {
		g := New(newFlakyStore(0), testConfig(100, 0), retry.Policy{Attempts: 1}, logger.NewWithWriter(&strings.Builder{}))
		records, err := g.Generate(date)
		if err != nil {
			t.Fatalf("Generate: %v", err)
		}
		for _, r := range records {
			if r.Status != domain.StatusSuccess {
				t.Fatalf("status = %q with zero failure rate", r.Status)
			}
		}
	})

	t.Run("all failures", func(t *testing.T) {
		g := New(newFlakyStore(0), testConfig(100, 1), retry.Policy{Attempts: 1}, logger.NewWithWriter(&strings.Builder{}))
		records, err := g.Generate(date)
		if err != nil {
			t.Fatalf("Generate: %v", err)
		}
		for _, r := range records {
			if r.Status != domain.StatusFailed {
				t.Fatalf("status = %q with failure rate 1", r.Status)
			}
		}
	})

	t.Run("never pending", func(t *testing.T) {
		g := New(newFlakyStore(0), testConfig(500, 0.5), retry.Policy{Attempts: 1}, logger.NewWithWriter(&strings.Builder{}))
		records, err := g.Generate(date)
		if err != nil {
			t.Fatalf("Generate: %v", err)
		}
		for _, r := range records {
			if r.Status == domain.StatusPending {
				t.Fatal("generator emitted a pending transaction")
			}
			if !r.Amount.IsPositive() {
				t.Fatalf("amount %s is not positive", r.Amount)
			}
		}
	})
}

func TestRunPublishesCompletePartition(t *testing.T) {
	store := newFlakyStore(0)
	g := New(store, testConfig(50, 0.1), retry.Policy{Attempts: 1}, logger.NewWithWriter(&strings.Builder{}))
	date := time.Date(2026, 8, 25, 0, 0, 0, 0, time.UTC)

	report, err := g.Run(context.Background(), date)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Generated != 50 {
		t.Errorf("Generated = %d, want 50", report.Generated)
	}

	done, err := partition.IsComplete(context.Background(), store,
		partition.RawDataKey(date), partition.RawMarkerKey(date))
	if err != nil || !done {
		t.Fatalf("raw partition not complete: done=%v err=%v", done, err)
	}

	data, err := store.Read(context.Background(), partition.RawDataKey(date))
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	records, err := partition.DecodeRaw(data)
	if err != nil {
		t.Fatalf("DecodeRaw: %v", err)
	}
	if len(records) != 50 {
		t.Errorf("decoded %d records, want 50", len(records))
	}
}

func TestRunRetryExhaustion(t *testing.T) {
	// Every publish attempt fails: the stage must stop after exactly the
	// configured attempts and leave no partition behind.
	store := newFlakyStore(1 << 30)
	g := New(store, testConfig(10, 0.1), retry.Policy{Attempts: 3, Delay: 0}, logger.NewWithWriter(&strings.Builder{}))
	date := time.Date(2026, 8, 25, 0, 0, 0, 0, time.UTC)

	report, err := g.Run(context.Background(), date)
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if report.Attempts != 3 {
		t.Errorf("attempts = %d, want 3", report.Attempts)
	}

	ok, _ := store.Exists(context.Background(), partition.RawDataKey(date))
	if ok {
		t.Error("partition data left behind after failed run")
	}
	ok, _ = store.Exists(context.Background(), partition.RawMarkerKey(date))
	if ok {
		t.Error("partition marker left behind after failed run")
	}
}

func TestRunRecoversFromTransientFailure(t *testing.T) {
	store := newFlakyStore(1) // first publish fails, then the store recovers
	g := New(store, testConfig(10, 0.1), retry.Policy{Attempts: 3, Delay: 0}, logger.NewWithWriter(&strings.Builder{}))
	date := time.Date(2026, 8, 25, 0, 0, 0, 0, time.UTC)

	report, err := g.Run(context.Background(), date)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Attempts != 2 {
		t.Errorf("attempts = %d, want 2", report.Attempts)
	}
}
