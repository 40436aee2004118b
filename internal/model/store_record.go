package model

import (
	"encoding/json"
)

// StoreRecord is the journal representation of a published store action.
type StoreRecord struct {
	Action      string         `json:"action"`
	ChainID     uint64         `json:"chain_id"`
	BlockNumber uint64         `json:"block_number,omitempty"`
	Price       *PriceSnapshot `json:"price,omitempty"`
	Account     string         `json:"account,omitempty"`
	RecordedAt  string         `json:"recorded_at"`
}

// MarshalJSON ensures StoreRecord is encoded with stable field names.
func (r StoreRecord) MarshalJSON() ([]byte, error) {
	type Alias StoreRecord
	return json.Marshal(Alias(r))
}

// UnmarshalJSON decodes a StoreRecord from JSON.
func (r *StoreRecord) UnmarshalJSON(data []byte) error {
	type Alias StoreRecord
	var a Alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*r = StoreRecord(a)
	return nil
}
