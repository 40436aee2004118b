package model

import (
	"github.com/shopspring/decimal"
)

// Asset identifies one of the tracked price feeds.
type Asset string

const (
	AssetNative    Asset = "native"
	AssetSecondary Asset = "secondary"
)

// PriceSnapshot is a single USD quote for an asset on a chain.
type PriceSnapshot struct {
	ChainID        uint64          `json:"chain_id"`
	Asset          Asset           `json:"asset"`
	Price          decimal.Decimal `json:"price"`
	OneDayAgoPrice decimal.Decimal `json:"one_day_ago_price"`
	PercentChange  decimal.Decimal `json:"percent_change"`
	UpdatedAt      uint64          `json:"updated_at"`
}

// PercentChange returns the change from oneDayAgo to now in percent.
// A zero reference price yields zero.
func PercentChange(now, oneDayAgo decimal.Decimal) decimal.Decimal {
	if oneDayAgo.IsZero() {
		return decimal.Zero
	}
	return now.Sub(oneDayAgo).Div(oneDayAgo).Mul(decimal.NewFromInt(100))
}
