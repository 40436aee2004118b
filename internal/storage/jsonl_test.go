package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"chainPulse/internal/model"
	"chainPulse/internal/store"
)

func TestJsonlStorageDispatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "journal.jsonl")
	sink := NewJsonlStorage(path)
	sink.now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }

	ctx := context.Background()
	if err := sink.Dispatch(ctx, store.SetLatestBlock{ChainID: 137, BlockNumber: 105}); err != nil {
		t.Fatalf("dispatch block: %v", err)
	}
	snap := model.PriceSnapshot{ChainID: 137, Asset: model.AssetNative, Price: decimal.RequireFromString("0.71")}
	if err := sink.Dispatch(ctx, store.SetPrice(snap)); err != nil {
		t.Fatalf("dispatch price: %v", err)
	}

	file, err := os.Open(path)
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	defer file.Close()

	var records []model.StoreRecord
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var rec model.StoreRecord
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			t.Fatalf("decode line: %v", err)
		}
		records = append(records, rec)
	}

	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0].Action != "set_latest_block" || records[0].BlockNumber != 105 || records[0].RecordedAt != "2024-01-01T00:00:00Z" {
		t.Fatalf("block record mismatch: %+v", records[0])
	}
	if records[1].Price == nil || !records[1].Price.Price.Equal(decimal.RequireFromString("0.71")) {
		t.Fatalf("price record mismatch: %+v", records[1])
	}
}

func TestJsonlStorageEmptyBatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.jsonl")
	if err := NewJsonlStorage(path).PutRecordBatch(nil); err != nil {
		t.Fatalf("empty batch: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("empty batch created the file")
	}
}
