package convert

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// satsPerBTC is the number of smallest units in one BTC
const satsPerBTC = 100_000_000

var ErrOutOfBounds = fmt.Errorf("amount out of bounds")

// Config carries the variant constants the conversion depends on.
type Config struct {
	// FeePercent is the markup the payer covers, e.g. 5.37 or 3
	FeePercent float64
	// MinFiat and MaxFiat bound the accepted amount, inclusive
	MinFiat     int64
	MaxFiat     int64
	USDFiatRate float64
}

// Quote is the result of a fiat-to-sats conversion: the base amount credited to
// the recipient and the fee-adjusted amount the invoice requests.
type Quote struct {
	FiatAmount decimal.Decimal
	BaseSats   int64
	TotalSats  int64
}

// Convert turns a fiat amount into a sats quote. Rounding happens twice, in
// this order: once after dividing by the BTC price and once after applying
// the fee. The order is load-bearing: collapsing the two roundings into one
// changes the invoiced amount.
func Convert(fiat decimal.Decimal, btcUSD float64, cfg Config) (Quote, error) {
	if btcUSD <= 0 || cfg.USDFiatRate <= 0 {
		return Quote{}, fmt.Errorf("invalid rate")
	}
	if fiat.LessThan(decimal.NewFromInt(cfg.MinFiat)) || fiat.GreaterThan(decimal.NewFromInt(cfg.MaxFiat)) {
		return Quote{}, ErrOutOfBounds
	}
	f, _ := fiat.Float64()
	usd := f / cfg.USDFiatRate
	baseSats := int64(math.Round(usd * satsPerBTC / btcUSD))
	totalSats := int64(math.Round(float64(baseSats) * (1 + cfg.FeePercent/100)))
	return Quote{FiatAmount: fiat, BaseSats: baseSats, TotalSats: totalSats}, nil
}
