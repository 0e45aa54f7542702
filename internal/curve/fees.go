// internal/curve/fees.go
package curve

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/rovshanmuradov/vcurve/internal/fixedpoint"
)

// FeePolicy splits trade amounts into net and fee parts. Both fees are taken
// on the asset side: from assetIn before a buy is quoted, and from the gross
// assetOut after a sell is quoted.
type FeePolicy struct {
	buy       fixedpoint.Bps
	sell      fixedpoint.Bps
	recipient common.Address
}

// FeeSplit is the result of FeePolicy.Apply.
type FeeSplit struct {
	Gross *uint256.Int
	Net   *uint256.Int
	Fee   *uint256.Int
}

// NewFeePolicy validates both rates once, at construction.
func NewFeePolicy(buyBps, sellBps uint64, recipient common.Address) (FeePolicy, error) {
	buy, err := fixedpoint.NewBps(buyBps)
	if err != nil {
		return FeePolicy{}, err
	}
	sell, err := fixedpoint.NewBps(sellBps)
	if err != nil {
		return FeePolicy{}, err
	}
	return FeePolicy{buy: buy, sell: sell, recipient: recipient}, nil
}

// Apply splits a gross asset amount for the given direction.
func (p FeePolicy) Apply(amount *uint256.Int, dir Direction) (FeeSplit, error) {
	bps := p.buy
	if dir == Sell {
		bps = p.sell
	}
	net, fee, err := fixedpoint.ApplyFeeBps(amount, bps)
	if err != nil {
		return FeeSplit{}, err
	}
	return FeeSplit{Gross: fixedpoint.Clone(amount), Net: net, Fee: fee}, nil
}

func (p FeePolicy) BuyBps() uint64            { return p.buy.Uint64() }
func (p FeePolicy) SellBps() uint64           { return p.sell.Uint64() }
func (p FeePolicy) Recipient() common.Address { return p.recipient }
