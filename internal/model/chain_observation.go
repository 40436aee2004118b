package model

// ChainObservation is the updater's local view of the active chain.
// BlockNumber is nil until the first block arrives for ChainID.
type ChainObservation struct {
	ChainID     uint64  `json:"chain_id"`
	BlockNumber *uint64 `json:"block_number"`
}

// NewChainObservation returns the reset state for a chain.
func NewChainObservation(chainID uint64) ChainObservation {
	return ChainObservation{ChainID: chainID}
}

// WithBlock returns a copy of the observation carrying blockNumber.
func (o ChainObservation) WithBlock(blockNumber uint64) ChainObservation {
	n := blockNumber
	o.BlockNumber = &n
	return o
}

// Publishable reports whether the observation has both a chain and a block.
func (o ChainObservation) Publishable() bool {
	return o.ChainID != 0 && o.BlockNumber != nil && *o.BlockNumber != 0
}
