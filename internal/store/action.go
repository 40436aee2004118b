package store

import (
	"github.com/ethereum/go-ethereum/common"

	"chainPulse/internal/model"
	"chainPulse/internal/swaphelper"
)

// Action is a state update published into a Store.
type Action interface {
	Type() string
}

// SetLatestBlock records the latest observed block of a chain.
type SetLatestBlock struct {
	ChainID     uint64
	BlockNumber uint64
}

// SetNativePrice replaces the native asset snapshot.
type SetNativePrice struct {
	Snapshot model.PriceSnapshot
}

// SetSecondaryPrice replaces the secondary asset snapshot.
type SetSecondaryPrice struct {
	Snapshot model.PriceSnapshot
}

// SetSwapHelper installs the swap helper bound to a chain and account.
type SetSwapHelper struct {
	ChainID uint64
	Account common.Address
	Helper  *swaphelper.Helper
}

func (SetLatestBlock) Type() string    { return "set_latest_block" }
func (SetNativePrice) Type() string    { return "set_native_price" }
func (SetSecondaryPrice) Type() string { return "set_secondary_price" }
func (SetSwapHelper) Type() string     { return "set_swap_helper" }

// SetPrice returns the action replacing the snapshot of snap.Asset.
func SetPrice(snap model.PriceSnapshot) Action {
	if snap.Asset == model.AssetSecondary {
		return SetSecondaryPrice{Snapshot: snap}
	}
	return SetNativePrice{Snapshot: snap}
}
