package rates

import (
	"context"
	"sync"
	"time"

	"github.com/avast/retry-go"
	"go.uber.org/zap"

	"github.com/chapsmart/chappay/pkg/cache"
)

const lastGoodKey = "btc_usd"

// lastGoodTTL bounds how long an exhausted provider keeps serving a stale
// price before degrading to the configured default.
const lastGoodTTL = time.Hour

// ExchangeRate is the current BTC/USD price together with where and when it
// was obtained.
type ExchangeRate struct {
	BTCUSD    float64
	Source    string
	UpdatedAt time.Time
}

type Options struct {
	Primary    Source
	Secondary  Source
	Default    float64
	Retries    uint
	RetryDelay time.Duration
	Interval   time.Duration
	// WarnFn surfaces a non-fatal degradation message to the presentation
	// layer. May be nil.
	WarnFn func(msg string)
}

// Provider keeps a single BTC/USD rate fresh: primary source with bounded
// retries, then secondary, then the cached last-good value, then the default.
type Provider struct {
	logger  *zap.Logger
	opts    Options
	mu      sync.RWMutex
	current ExchangeRate
	// lastGood survives source outages across refresh cycles
	lastGood cache.Cache[string, float64]
}

func NewProvider(logger *zap.Logger, opts Options) *Provider {
	if opts.Interval == 0 {
		opts.Interval = 15 * time.Second
	}
	if opts.Retries == 0 {
		opts.Retries = 3
	}
	p := &Provider{
		logger: logger,
		opts:   opts,
		current: ExchangeRate{
			BTCUSD:    opts.Default,
			Source:    "default",
			UpdatedAt: time.Now(),
		},
		lastGood: cache.NewExpiringCache[string, float64]("rates_last_good"),
	}
	return p
}

// Start performs one synchronous refresh and then keeps refreshing in the
// background until ctx is cancelled.
func (p *Provider) Start(ctx context.Context) {
	p.Refresh()
	go func() {
		ticker := time.NewTicker(p.opts.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				p.Refresh()
			}
		}
	}()
}

// Current returns the latest known rate. Never blocks on the network.
func (p *Provider) Current() ExchangeRate {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.current
}

// Refresh fetches a fresh price, falling back through the secondary source
// and the last-good value. It never fails: on total exhaustion the previous
// value is retained and a warning is surfaced.
func (p *Provider) Refresh() ExchangeRate {
	for _, source := range []Source{p.opts.Primary, p.opts.Secondary} {
		price, err := p.fetch(source)
		if err != nil {
			p.logger.Warn("rate source exhausted",
				zap.String("source", source.Name), zap.Error(err))
			continue
		}
		rate := ExchangeRate{BTCUSD: price, Source: source.Name, UpdatedAt: time.Now()}
		p.mu.Lock()
		p.current = rate
		p.mu.Unlock()
		p.lastGood.Set(lastGoodKey, price, cache.WithExpiration(lastGoodTTL))
		return rate
	}

	fallbacksCounter.Inc()
	p.warn("Failed to fetch Bitcoin price. Using fallback price.")

	p.mu.Lock()
	defer p.mu.Unlock()
	if price, ok := p.lastGood.Get(lastGoodKey); ok {
		p.current.BTCUSD = price
		p.current.Source = "cache"
	}
	// otherwise p.current already holds the previous (or default) value
	return p.current
}

// fetch runs the bounded retry loop against a single source.
func (p *Provider) fetch(source Source) (float64, error) {
	var price float64
	err := retry.Do(func() error {
		respBody, err := sendRequest(source.URL)
		if err != nil {
			errorsCounter.WithLabelValues(source.Name).Inc()
			return err
		}
		price, err = source.PriceConverter(respBody)
		if err != nil {
			errorsCounter.WithLabelValues(source.Name).Inc()
			return err
		}
		return nil
	}, retry.Attempts(p.opts.Retries), retry.Delay(p.opts.RetryDelay), retry.DelayType(retry.FixedDelay), retry.LastErrorOnly(true))
	if err != nil {
		return 0, err
	}
	return price, nil
}

func (p *Provider) warn(msg string) {
	if p.opts.WarnFn != nil {
		p.opts.WarnFn(msg)
	}
}
