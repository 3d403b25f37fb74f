package pipeline

import (
	"context"
	"time"

	"github.com/dvloznov/txn-warehouse/internal/generate"
	"github.com/dvloznov/txn-warehouse/internal/partition"
	"github.com/dvloznov/txn-warehouse/internal/transform"
	"github.com/dvloznov/txn-warehouse/internal/warehouse"
)

// Stage is one step of the daily pipeline. Complete lets the runner skip a
// stage whose output partition was already published, so a partially
// finished day can be resumed.
type Stage interface {
	Name() string
	Complete(ctx context.Context, date time.Time) (bool, error)
	Run(ctx context.Context, date time.Time) error
}

// GenerateStage wraps the raw-partition generator.
type GenerateStage struct {
	Generator *generate.Generator
	Store     partition.Store
}

func (s *GenerateStage) Name() string { return "generate" }

func (s *GenerateStage) Complete(ctx context.Context, date time.Time) (bool, error) {
	return partition.IsComplete(ctx, s.Store, partition.RawDataKey(date), partition.RawMarkerKey(date))
}

func (s *GenerateStage) Run(ctx context.Context, date time.Time) error {
	_, err := s.Generator.Run(ctx, date)
	return err
}

// TransformStage wraps the validator/cleaner.
type TransformStage struct {
	Transformer *transform.Transformer
	Store       partition.Store
}

func (s *TransformStage) Name() string { return "transform" }

func (s *TransformStage) Complete(ctx context.Context, date time.Time) (bool, error) {
	return partition.IsComplete(ctx, s.Store, partition.ProcessedDataKey(date), partition.ProcessedMarkerKey(date))
}

func (s *TransformStage) Run(ctx context.Context, date time.Time) error {
	_, err := s.Transformer.Run(ctx, date)
	return err
}

// LoadStage wraps the warehouse loader, reading the processed partition it
// consumes from the store.
type LoadStage struct {
	Loader *warehouse.Loader
	Store  partition.Store
}

func (s *LoadStage) Name() string { return "load" }

func (s *LoadStage) Complete(ctx context.Context, date time.Time) (bool, error) {
	return s.Loader.Complete(ctx, date)
}

func (s *LoadStage) Run(ctx context.Context, date time.Time) error {
	data, err := s.Store.Read(ctx, partition.ProcessedDataKey(date))
	if err != nil {
		return err
	}
	records, err := partition.DecodeProcessed(data)
	if err != nil {
		return err
	}
	_, err = s.Loader.Load(ctx, date, records)
	return err
}
