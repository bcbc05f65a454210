package feed

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// DefaultCoinGeckoURL is the public CoinGecko REST endpoint.
const DefaultCoinGeckoURL = "https://api.coingecko.com"

// coinIDs maps exchange symbols to CoinGecko coin ids.
var coinIDs = map[string]string{
	"BTCUSDT":  "bitcoin",
	"ETHUSDT":  "ethereum",
	"DOGEUSDT": "dogecoin",
	"SOLUSDT":  "solana",
	"ADAUSDT":  "cardano",
	"XRPUSDT":  "ripple",
	"BNBUSDT":  "binancecoin",
}

// CoinID returns the CoinGecko id for a symbol.
func CoinID(symbol string) (string, bool) {
	id, ok := coinIDs[strings.ToUpper(symbol)]
	return id, ok
}

// SymbolForCoin is the reverse of CoinID.
func SymbolForCoin(id string) (string, bool) {
	for sym, cid := range coinIDs {
		if cid == id {
			return sym, true
		}
	}
	return "", false
}

// CoinGecko reads /api/v3/simple/price in USD.
type CoinGecko struct {
	baseURL string
	client  *http.Client
}

// NewCoinGecko creates a CoinGecko provider. An empty baseURL uses DefaultCoinGeckoURL.
func NewCoinGecko(baseURL string, client *http.Client) *CoinGecko {
	if baseURL == "" {
		baseURL = DefaultCoinGeckoURL
	}
	return &CoinGecko{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

func (c *CoinGecko) Name() string { return "coingecko" }

func (c *CoinGecko) Price(ctx context.Context, symbol string) (float64, error) {
	id, ok := CoinID(symbol)
	if !ok {
		return 0, fmt.Errorf("coingecko: no coin id for %s", symbol)
	}
	u := c.baseURL + "/api/v3/simple/price?ids=" + url.QueryEscape(id) + "&vs_currencies=usd"

	var body map[string]struct {
		USD float64 `json:"usd"`
	}
	if err := getJSON(ctx, c.client, u, &body); err != nil {
		return 0, fmt.Errorf("coingecko %s: %w", symbol, err)
	}
	q, ok := body[id]
	if !ok {
		return 0, fmt.Errorf("coingecko %s: %s missing from response", symbol, id)
	}
	if err := validPrice(q.USD); err != nil {
		return 0, fmt.Errorf("coingecko %s: %w", symbol, err)
	}
	return q.USD, nil
}
