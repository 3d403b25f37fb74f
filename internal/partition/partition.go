// Package partition stores the pipeline's date-keyed datasets. A partition
// is addressed by stage and calendar date (<stage>/YYYY/MM/DD/<file>), is
// published atomically, and is considered complete only once its _SUCCESS
// marker exists next to the data file.
package partition

import (
	"context"
	"errors"
	"fmt"
	"path"
	"time"
)

const (
	rawPrefix       = "raw"
	processedPrefix = "processed"

	RawFile       = "transactions.csv"
	ProcessedFile = "transactions.parquet"
	SuccessMarker = "_SUCCESS"
)

// ErrNotExist is returned when a partition object is absent from the store.
var ErrNotExist = errors.New("partition object does not exist")

// Store persists partition objects under hierarchical keys. Publish must be
// atomic: a reader never observes a partially written object.
type Store interface {
	Publish(ctx context.Context, key string, data []byte) error
	Read(ctx context.Context, key string) ([]byte, error)
	Exists(ctx context.Context, key string) (bool, error)
}

func datePath(date time.Time) string {
	return date.UTC().Format("2006/01/02")
}

// RawDataKey is the raw partition's data object for a date.
func RawDataKey(date time.Time) string {
	return path.Join(rawPrefix, datePath(date), RawFile)
}

// RawMarkerKey is the raw partition's completion marker for a date.
func RawMarkerKey(date time.Time) string {
	return path.Join(rawPrefix, datePath(date), SuccessMarker)
}

// ProcessedDataKey is the processed partition's data object for a date.
func ProcessedDataKey(date time.Time) string {
	return path.Join(processedPrefix, datePath(date), ProcessedFile)
}

// ProcessedMarkerKey is the processed partition's completion marker for a date.
func ProcessedMarkerKey(date time.Time) string {
	return path.Join(processedPrefix, datePath(date), SuccessMarker)
}

// PublishComplete writes a partition's data object and then its completion
// marker. The marker goes last: a crash in between leaves an incomplete,
// resumable partition rather than a half-readable one.
func PublishComplete(ctx context.Context, s Store, dataKey, markerKey string, data []byte) error {
	if err := s.Publish(ctx, dataKey, data); err != nil {
		return fmt.Errorf("PublishComplete: data %s: %w", dataKey, err)
	}
	marker := []byte(time.Now().UTC().Format(time.RFC3339) + "\n")
	if err := s.Publish(ctx, markerKey, marker); err != nil {
		return fmt.Errorf("PublishComplete: marker %s: %w", markerKey, err)
	}
	return nil
}

// IsComplete reports whether both the data object and its marker exist.
func IsComplete(ctx context.Context, s Store, dataKey, markerKey string) (bool, error) {
	for _, key := range []string{dataKey, markerKey} {
		ok, err := s.Exists(ctx, key)
		if err != nil {
			return false, fmt.Errorf("IsComplete: %s: %w", key, err)
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}
