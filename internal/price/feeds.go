package price

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"chainPulse/internal/model"
)

// Feeds holds the USD aggregators tracked on one chain.
type Feeds struct {
	Native    common.Address
	Secondary common.Address
}

// Address returns the aggregator for asset, or false when none is set.
func (f Feeds) Address(asset model.Asset) (common.Address, bool) {
	var addr common.Address
	switch asset {
	case model.AssetNative:
		addr = f.Native
	case model.AssetSecondary:
		addr = f.Secondary
	}
	return addr, addr != (common.Address{})
}

// DefaultFeeds returns the built-in Chainlink USD aggregators.
func DefaultFeeds() map[uint64]Feeds {
	return map[uint64]Feeds{
		// ETH/USD, MATIC/USD
		1: {
			Native:    common.HexToAddress("0x5f4eC3Df9cbd43714FE2740f5E3616155c5b8419"),
			Secondary: common.HexToAddress("0x7bAC85A8a13A4BcD8abb3eB7d6b4d632c5a57676"),
		},
		// MATIC/USD, ETH/USD
		137: {
			Native:    common.HexToAddress("0xAB594600376Ec9fD91F8e885dADF0CE036862dE0"),
			Secondary: common.HexToAddress("0xF9680D99D6C9589e2a93a78A04A279e509205945"),
		},
	}
}

// ParseFeeds merges hex addresses keyed by chain id over the defaults.
func ParseFeeds(overrides map[uint64][2]string) (map[uint64]Feeds, error) {
	feeds := DefaultFeeds()
	for chainID, pair := range overrides {
		current := feeds[chainID]
		for i, input := range pair {
			if input == "" {
				continue
			}
			if !common.IsHexAddress(input) {
				return nil, fmt.Errorf("invalid feed address for chain %d: %s", chainID, input)
			}
			if i == 0 {
				current.Native = common.HexToAddress(input)
			} else {
				current.Secondary = common.HexToAddress(input)
			}
		}
		feeds[chainID] = current
	}
	return feeds, nil
}
