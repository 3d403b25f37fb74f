package partition

import (
	"bytes"
	"fmt"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/txn-warehouse/internal/domain"
)

// processedRow is the parquet schema of a processed partition. Decimal
// fields are carried as strings to stay lossless across the file boundary.
type processedRow struct {
	TransactionID  string    `parquet:"transaction_id"`
	Timestamp      time.Time `parquet:"timestamp"`
	CustomerID     string    `parquet:"customer_id"`
	Channel        string    `parquet:"channel"`
	City           string    `parquet:"city"`
	Amount         string    `parquet:"amount"`
	Status         string    `parquet:"status"`
	ProcessingTime float64   `parquet:"processing_time"`
	FeePercent     string    `parquet:"fee_percent"`
	Revenue        string    `parquet:"revenue"`
	DelayBucket    string    `parquet:"processing_delay_bucket"`
}

// EncodeProcessed serializes processed transactions as snappy-compressed
// parquet.
func EncodeProcessed(records []domain.ProcessedTransaction) ([]byte, error) {
	var buf bytes.Buffer
	w := parquet.NewGenericWriter[processedRow](&buf, parquet.Compression(&parquet.Snappy))

	rows := make([]processedRow, len(records))
	for i, r := range records {
		rows[i] = processedRow{
			TransactionID:  r.TransactionID,
			Timestamp:      r.Timestamp.UTC(),
			CustomerID:     r.CustomerID,
			Channel:        r.Channel,
			City:           r.City,
			Amount:         r.Amount.String(),
			Status:         string(r.Status),
			ProcessingTime: r.ProcessingTime,
			FeePercent:     r.FeePercent.String(),
			Revenue:        r.Revenue.String(),
			DelayBucket:    string(r.DelayBucket),
		}
	}

	if len(rows) > 0 {
		if _, err := w.Write(rows); err != nil {
			return nil, fmt.Errorf("EncodeProcessed: write rows: %w", err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("EncodeProcessed: close writer: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeProcessed parses a processed partition file.
func DecodeProcessed(data []byte) ([]domain.ProcessedTransaction, error) {
	rows, err := parquet.Read[processedRow](bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("DecodeProcessed: read parquet: %w", err)
	}

	records := make([]domain.ProcessedTransaction, 0, len(rows))
	for i, row := range rows {
		amount, err := decimal.NewFromString(row.Amount)
		if err != nil {
			return nil, fmt.Errorf("DecodeProcessed: row %d: amount %q: %w", i, row.Amount, err)
		}
		fee, err := decimal.NewFromString(row.FeePercent)
		if err != nil {
			return nil, fmt.Errorf("DecodeProcessed: row %d: fee_percent %q: %w", i, row.FeePercent, err)
		}
		revenue, err := decimal.NewFromString(row.Revenue)
		if err != nil {
			return nil, fmt.Errorf("DecodeProcessed: row %d: revenue %q: %w", i, row.Revenue, err)
		}

		records = append(records, domain.ProcessedTransaction{
			Transaction: domain.Transaction{
				TransactionID:  row.TransactionID,
				Timestamp:      row.Timestamp,
				CustomerID:     row.CustomerID,
				Channel:        row.Channel,
				City:           row.City,
				Amount:         amount,
				Status:         domain.Status(row.Status),
				ProcessingTime: row.ProcessingTime,
			},
			FeePercent:  fee,
			Revenue:     revenue,
			DelayBucket: domain.DelayBucket(row.DelayBucket),
		})
	}
	return records, nil
}
