package config

import (
	"fmt"
	"log"
	"reflect"
	"strings"
	"time"

	"github.com/caarlos0/env/v6"
)

// Product selects which widget variant this instance serves. The two variants
// share the session lifecycle but differ in fee, bounds, phone rules and
// backend routes.
type Product string

const (
	ProductAirtime Product = "airtime"
	ProductPayout  Product = "payout"
)

type Config struct {
	API struct {
		Port int `env:"PORT" envDefault:"8081"`
	}
	App struct {
		LogLevel    string  `env:"LOG_LEVEL" envDefault:"INFO"`
		MetricsPort int     `env:"METRICS_PORT" envDefault:"9010"`
		Product     Product `env:"PRODUCT" envDefault:"airtime"`
	}
	Rates struct {
		PrimaryURL      string        `env:"RATES_PRIMARY_URL" envDefault:"https://api.binance.com/api/v3/ticker/price?symbol=BTCUSDT"`
		SecondaryURL    string        `env:"RATES_SECONDARY_URL" envDefault:"https://www.okx.com/api/v5/market/ticker?instId=BTC-USDT"`
		DefaultBTCUSD   float64       `env:"RATES_DEFAULT_BTC_USD" envDefault:"75000"`
		Retries         uint          `env:"RATES_RETRIES" envDefault:"3"`
		RetryDelay      time.Duration `env:"RATES_RETRY_DELAY" envDefault:"2s"`
		RefreshInterval time.Duration `env:"RATES_REFRESH_INTERVAL" envDefault:"15s"`
	}
	Backend struct {
		InvoiceURL     string        `env:"BACKEND_INVOICE_URL" envDefault:"http://localhost:9000/functions/alby"`
		StoreURL       string        `env:"BACKEND_STORE_URL" envDefault:"http://localhost:9000/functions/firebase"`
		FulfillmentURL string        `env:"BACKEND_FULFILLMENT_URL" envDefault:"http://localhost:9000/functions/beem"`
		Retries        uint          `env:"BACKEND_RETRIES" envDefault:"3"`
		RetryDelay     time.Duration `env:"BACKEND_RETRY_DELAY" envDefault:"2s"`
	}
	Session struct {
		InvoiceTTL   time.Duration `env:"SESSION_INVOICE_TTL" envDefault:"13m"`
		PollInterval time.Duration `env:"SESSION_POLL_INTERVAL" envDefault:"5s"`
	}
}

// VariantConfig carries the per-product constants observed in the two widget
// variants. Neither set is canonical; they are distinct products.
type VariantConfig struct {
	FeePercent  float64
	MinFiat     int64
	MaxFiat     int64
	USDFiatRate float64
	MemoPrefix  string
}

var variants = map[Product]VariantConfig{
	ProductAirtime: {
		FeePercent:  5.37,
		MinFiat:     500,
		MaxFiat:     5000,
		USDFiatRate: 2390,
		MemoPrefix:  "Airtime",
	},
	ProductPayout: {
		FeePercent:  3,
		MinFiat:     2500,
		MaxFiat:     350000,
		USDFiatRate: 2403,
		MemoPrefix:  "ChapSmart",
	},
}

func (c Config) Variant() VariantConfig {
	v, ok := variants[c.App.Product]
	if !ok {
		log.Panicf("unknown product %q", c.App.Product)
	}
	return v
}

func Load() Config {
	var c Config
	if err := env.ParseWithFuncs(&c, map[reflect.Type]env.ParserFunc{
		reflect.TypeOf(Product("")): func(v string) (interface{}, error) {
			p := Product(strings.ToLower(v))
			if p != ProductAirtime && p != ProductPayout {
				return nil, fmt.Errorf("unknown product %q", v)
			}
			return p, nil
		}}); err != nil {
		log.Panicf("[‼️  Config parsing failed] %+v\n", err)
	}
	return c
}
