package convert

import (
	"math"
	"testing"

	"github.com/shopspring/decimal"
)

var airtimeConfig = Config{
	FeePercent:  5.37,
	MinFiat:     500,
	MaxFiat:     5000,
	USDFiatRate: 2390,
}

var payoutConfig = Config{
	FeePercent:  3,
	MinFiat:     2500,
	MaxFiat:     350000,
	USDFiatRate: 2403,
}

func TestConvert_AirtimeReferenceAmount(t *testing.T) {
	// 1000 TZS at 75000 USD/BTC: base 558 sats, invoiced 588 sats
	q, err := Convert(decimal.NewFromInt(1000), 75000, airtimeConfig)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if q.BaseSats != 558 {
		t.Errorf("base sats: got %d, want 558", q.BaseSats)
	}
	if q.TotalSats != 588 {
		t.Errorf("total sats: got %d, want 588", q.TotalSats)
	}
}

func TestConvert_OutOfBounds(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		fiat int64
		ok   bool
	}{
		{"below minimum", airtimeConfig, 100, false},
		{"at minimum", airtimeConfig, 500, true},
		{"at maximum", airtimeConfig, 5000, true},
		{"above maximum", airtimeConfig, 5001, false},
		{"payout below minimum", payoutConfig, 2499, false},
		{"payout inside", payoutConfig, 2500, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Convert(decimal.NewFromInt(tt.fiat), 75000, tt.cfg)
			if tt.ok && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if !tt.ok && err != ErrOutOfBounds {
				t.Errorf("expected ErrOutOfBounds, got %v", err)
			}
		})
	}
}

func TestConvert_FeeInvariant(t *testing.T) {
	// For every valid amount the invoiced total is exactly
	// round(base * (1+fee)) and never below the base.
	for fiat := airtimeConfig.MinFiat; fiat <= airtimeConfig.MaxFiat; fiat += 137 {
		q, err := Convert(decimal.NewFromInt(fiat), 68000, airtimeConfig)
		if err != nil {
			t.Fatalf("fiat=%d: %v", fiat, err)
		}
		want := int64(math.Round(float64(q.BaseSats) * (1 + airtimeConfig.FeePercent/100)))
		if q.TotalSats != want {
			t.Errorf("fiat=%d: total %d, want %d", fiat, q.TotalSats, want)
		}
		if q.TotalSats < q.BaseSats {
			t.Errorf("fiat=%d: total %d below base %d", fiat, q.TotalSats, q.BaseSats)
		}
	}
}

func TestConvert_InvalidRate(t *testing.T) {
	if _, err := Convert(decimal.NewFromInt(1000), 0, airtimeConfig); err == nil {
		t.Error("expected error for zero rate")
	}
}
