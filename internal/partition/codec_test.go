package partition

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dvloznov/txn-warehouse/internal/domain"
)

func sampleTransactions() []domain.Transaction {
	ts := time.Date(2026, 8, 25, 14, 30, 5, 0, time.UTC)
	return []domain.Transaction{
		{
			TransactionID:  "a0000000-0000-5000-8000-000000000001",
			Timestamp:      ts,
			CustomerID:     "CUST-0042",
			Channel:        "UPI",
			City:           "Mumbai",
			Amount:         decimal.RequireFromString("499.99"),
			Status:         domain.StatusSuccess,
			ProcessingTime: 1.25,
		},
		{
			TransactionID:  "a0000000-0000-5000-8000-000000000002",
			Timestamp:      ts.Add(time.Hour),
			CustomerID:     "CUST-0007",
			Channel:        "Credit Card",
			City:           "Delhi",
			Amount:         decimal.RequireFromString("10.5"),
			Status:         domain.StatusFailed,
			ProcessingTime: 6.4,
		},
	}
}

func TestRawCSVRoundTrip(t *testing.T) {
	want := sampleTransactions()

	data, err := EncodeRaw(want)
	if err != nil {
		t.Fatalf("EncodeRaw: %v", err)
	}

	header := strings.SplitN(string(data), "\n", 2)[0]
	if header != "transaction_id,timestamp,customer_id,channel,city,amount,status,processing_time" {
		t.Fatalf("header = %q", header)
	}

	got, err := DecodeRaw(data)
	if err != nil {
		t.Fatalf("DecodeRaw: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("decoded %d records, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].TransactionID != want[i].TransactionID ||
			!got[i].Timestamp.Equal(want[i].Timestamp) ||
			got[i].CustomerID != want[i].CustomerID ||
			got[i].Channel != want[i].Channel ||
			got[i].City != want[i].City ||
			!got[i].Amount.Equal(want[i].Amount) ||
			got[i].Status != want[i].Status ||
			got[i].ProcessingTime != want[i].ProcessingTime {
			t.Errorf("record %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestDecodeRawRejectsMalformedInput(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"empty file", ""},
		{"wrong column count", "transaction_id,timestamp\n"},
		{"bad timestamp", "transaction_id,timestamp,customer_id,channel,city,amount,status,processing_time\nid,not-a-time,c,UPI,Mumbai,10,success,1.0\n"},
		{"bad amount", "transaction_id,timestamp,customer_id,channel,city,amount,status,processing_time\nid,2026-08-25T00:00:00Z,c,UPI,Mumbai,ten,success,1.0\n"},
		{"bad processing time", "transaction_id,timestamp,customer_id,channel,city,amount,status,processing_time\nid,2026-08-25T00:00:00Z,c,UPI,Mumbai,10,success,fast\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := DecodeRaw([]byte(tt.data)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestProcessedParquetRoundTrip(t *testing.T) {
	base := sampleTransactions()
	want := []domain.ProcessedTransaction{
		{
			Transaction: base[0],
			FeePercent:  decimal.RequireFromString("0.5"),
			Revenue:     decimal.RequireFromString("2.5"),
			DelayBucket: domain.BucketFast,
		},
		{
			Transaction: base[1],
			FeePercent:  decimal.RequireFromString("2.5"),
			Revenue:     decimal.Zero,
			DelayBucket: domain.BucketSlow,
		},
	}

	data, err := EncodeProcessed(want)
	if err != nil {
		t.Fatalf("EncodeProcessed: %v", err)
	}
	got, err := DecodeProcessed(data)
	if err != nil {
		t.Fatalf("DecodeProcessed: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("decoded %d records, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].TransactionID != want[i].TransactionID ||
			!got[i].Timestamp.Equal(want[i].Timestamp) ||
			!got[i].Amount.Equal(want[i].Amount) ||
			!got[i].FeePercent.Equal(want[i].FeePercent) ||
			!got[i].Revenue.Equal(want[i].Revenue) ||
			got[i].DelayBucket != want[i].DelayBucket {
			t.Errorf("record %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestProcessedParquetEmpty(t *testing.T) {
	data, err := EncodeProcessed(nil)
	if err != nil {
		t.Fatalf("EncodeProcessed: %v", err)
	}
	got, err := DecodeProcessed(data)
	if err != nil {
		t.Fatalf("DecodeProcessed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("decoded %d records from empty file", len(got))
	}
}
