package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"trading-simv1/internal/breaker"
	"trading-simv1/internal/model"
)

// DefaultTimeout bounds one provider call.
const DefaultTimeout = 2500 * time.Millisecond

// Config configures the fallback feed.
type Config struct {
	BinanceURL   string
	CoinGeckoURL string
	Timeout      time.Duration
	// Breaker settings applied to every provider.
	MaxFailures  int
	ResetTimeout time.Duration
}

// ErrorObserver is notified of each provider failure (e.g. a metrics counter).
type ErrorObserver func(provider string, err error)

// BreakerObserver is notified of provider breaker transitions. It runs under
// the breaker lock and must not block.
type BreakerObserver func(provider string, from, to breaker.State)

type guarded struct {
	p  Provider
	cb *breaker.Breaker
}

// Feed tries providers in order and returns the first price.
type Feed struct {
	providers []guarded
	timeout   time.Duration
	onError   ErrorObserver
	onBreaker BreakerObserver
	log       *slog.Logger
}

// New builds the default Binance → CoinGecko chain.
func New(cfg Config) *Feed {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	client := &http.Client{Timeout: cfg.Timeout}
	return NewWithProviders(cfg,
		NewBinance(cfg.BinanceURL, client),
		NewCoinGecko(cfg.CoinGeckoURL, client),
	)
}

// NewWithProviders builds a feed over an explicit provider order.
func NewWithProviders(cfg Config, providers ...Provider) *Feed {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 3
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	f := &Feed{timeout: cfg.Timeout, log: slog.With("component", "feed")}
	for _, p := range providers {
		cb := breaker.New(p.Name(), cfg.MaxFailures, cfg.ResetTimeout)
		cb.OnStateChange = func(name string, from, to breaker.State) {
			f.log.Warn("provider breaker state change", "provider", name, "from", from.String(), "to", to.String())
			if f.onBreaker != nil {
				f.onBreaker(name, from, to)
			}
		}
		f.providers = append(f.providers, guarded{p: p, cb: cb})
	}
	return f
}

// OnError registers an observer for provider failures.
func (f *Feed) OnError(fn ErrorObserver) { f.onError = fn }

// OnBreakerChange registers an observer for provider breaker transitions.
func (f *Feed) OnBreakerChange(fn BreakerObserver) { f.onBreaker = fn }

// BreakerStates reports each provider's breaker state, for health output.
func (f *Feed) BreakerStates() map[string]string {
	out := make(map[string]string, len(f.providers))
	for _, g := range f.providers {
		out[g.p.Name()] = g.cb.State().String()
	}
	return out
}

// FetchPrice returns the first price any provider supplies.
// All failures are reported as model.ErrPriceUnavailable.
func (f *Feed) FetchPrice(ctx context.Context, symbol string) (float64, error) {
	var errs []error
	for _, g := range f.providers {
		var price float64
		err := g.cb.Execute(func() error {
			cctx, cancel := context.WithTimeout(ctx, f.timeout)
			defer cancel()
			p, err := g.p.Price(cctx, symbol)
			price = p
			return err
		})
		if err == nil {
			return price, nil
		}
		if f.onError != nil && !errors.Is(err, breaker.ErrOpen) {
			f.onError(g.p.Name(), err)
		}
		errs = append(errs, fmt.Errorf("%s: %w", g.p.Name(), err))
		if ctx.Err() != nil {
			break
		}
	}
	return 0, fmt.Errorf("%w for %s: %w", model.ErrPriceUnavailable, symbol, errors.Join(errs...))
}
