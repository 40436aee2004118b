package storage

import (
	"time"

	"chainPulse/internal/model"
	"chainPulse/internal/store"
)

// Storage defines a sink for journal records.
type Storage interface {
	PutRecordBatch(records []model.StoreRecord) error
}

// RecordFor converts a store action into its journal record.
func RecordFor(action store.Action, at time.Time) (model.StoreRecord, bool) {
	rec := model.StoreRecord{
		Action:     action.Type(),
		RecordedAt: at.UTC().Format(time.RFC3339Nano),
	}
	switch a := action.(type) {
	case store.SetLatestBlock:
		rec.ChainID = a.ChainID
		rec.BlockNumber = a.BlockNumber
	case store.SetNativePrice:
		snap := a.Snapshot
		rec.ChainID = snap.ChainID
		rec.Price = &snap
	case store.SetSecondaryPrice:
		snap := a.Snapshot
		rec.ChainID = snap.ChainID
		rec.Price = &snap
	case store.SetSwapHelper:
		rec.ChainID = a.ChainID
		rec.Account = a.Account.Hex()
	default:
		return model.StoreRecord{}, false
	}
	return rec, true
}
