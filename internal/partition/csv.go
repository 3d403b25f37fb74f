package partition

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dvloznov/txn-warehouse/internal/domain"
)

// rawColumns is the committed column order of the raw partition file.
var rawColumns = []string{
	"transaction_id", "timestamp", "customer_id", "channel",
	"city", "amount", "status", "processing_time",
}

// EncodeRaw serializes raw transactions as CSV in the stable column order.
func EncodeRaw(records []domain.Transaction) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(rawColumns); err != nil {
		return nil, fmt.Errorf("EncodeRaw: header: %w", err)
	}
	for i, r := range records {
		row := []string{
			r.TransactionID,
			r.Timestamp.UTC().Format(time.RFC3339),
			r.CustomerID,
			r.Channel,
			r.City,
			r.Amount.String(),
			string(r.Status),
			strconv.FormatFloat(r.ProcessingTime, 'f', -1, 64),
		}
		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("EncodeRaw: record %d: %w", i, err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("EncodeRaw: flush: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeRaw parses a raw partition file. Field values are not validated
// beyond their types; the transform stage owns that.
func DecodeRaw(data []byte) ([]domain.Transaction, error) {
	r := csv.NewReader(bytes.NewReader(data))

	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("DecodeRaw: read csv: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("DecodeRaw: empty file, missing header")
	}
	if got := rows[0]; len(got) != len(rawColumns) {
		return nil, fmt.Errorf("DecodeRaw: header has %d columns, want %d", len(got), len(rawColumns))
	}

	records := make([]domain.Transaction, 0, len(rows)-1)
	for i, row := range rows[1:] {
		ts, err := time.Parse(time.RFC3339, row[1])
		if err != nil {
			return nil, fmt.Errorf("DecodeRaw: row %d: timestamp %q: %w", i+1, row[1], err)
		}
		amount, err := decimal.NewFromString(row[5])
		if err != nil {
			return nil, fmt.Errorf("DecodeRaw: row %d: amount %q: %w", i+1, row[5], err)
		}
		procTime, err := strconv.ParseFloat(row[7], 64)
		if err != nil {
			return nil, fmt.Errorf("DecodeRaw: row %d: processing_time %q: %w", i+1, row[7], err)
		}

		records = append(records, domain.Transaction{
			TransactionID:  row[0],
			Timestamp:      ts,
			CustomerID:     row[2],
			Channel:        row[3],
			City:           row[4],
			Amount:         amount,
			Status:         domain.Status(row[6]),
			ProcessingTime: procTime,
		})
	}
	return records, nil
}
