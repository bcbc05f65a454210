package feed

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// DefaultBinanceURL is the public Binance REST endpoint.
const DefaultBinanceURL = "https://api.binance.com"

// Binance reads /api/v3/ticker/price.
type Binance struct {
	baseURL string
	client  *http.Client
}

// NewBinance creates a Binance provider. An empty baseURL uses DefaultBinanceURL.
func NewBinance(baseURL string, client *http.Client) *Binance {
	if baseURL == "" {
		baseURL = DefaultBinanceURL
	}
	return &Binance{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

func (b *Binance) Name() string { return "binance" }

func (b *Binance) Price(ctx context.Context, symbol string) (float64, error) {
	var body struct {
		Symbol string `json:"symbol"`
		Price  string `json:"price"`
	}
	u := b.baseURL + "/api/v3/ticker/price?symbol=" + url.QueryEscape(symbol)
	if err := getJSON(ctx, b.client, u, &body); err != nil {
		return 0, fmt.Errorf("binance %s: %w", symbol, err)
	}
	p, err := parsePrice(body.Price)
	if err != nil {
		return 0, fmt.Errorf("binance %s: %w", symbol, err)
	}
	return p, nil
}
