package feed

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"trading-simv1/internal/breaker"
	"trading-simv1/internal/model"
)

func TestBinance_Price(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v3/ticker/price" || r.URL.Query().Get("symbol") != "DOGEUSDT" {
			t.Errorf("unexpected request %s", r.URL)
		}
		fmt.Fprint(w, `{"symbol":"DOGEUSDT","price":"0.07125000"}`)
	}))
	defer srv.Close()

	p, err := NewBinance(srv.URL, srv.Client()).Price(context.Background(), "DOGEUSDT")
	if err != nil {
		t.Fatal(err)
	}
	if p != 0.07125 {
		t.Errorf("price = %v, want 0.07125", p)
	}
}

func TestBinance_BadResponses(t *testing.T) {
	cases := map[string]http.HandlerFunc{
		"status":   func(w http.ResponseWriter, _ *http.Request) { http.Error(w, "banned", http.StatusTeapot) },
		"garbage":  func(w http.ResponseWriter, _ *http.Request) { fmt.Fprint(w, `not json`) },
		"zero":     func(w http.ResponseWriter, _ *http.Request) { fmt.Fprint(w, `{"price":"0"}`) },
		"nonsense": func(w http.ResponseWriter, _ *http.Request) { fmt.Fprint(w, `{"price":"abc"}`) },
	}
	for name, h := range cases {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(h)
			defer srv.Close()
			if _, err := NewBinance(srv.URL, srv.Client()).Price(context.Background(), "DOGEUSDT"); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestCoinGecko_Price(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("ids") != "solana" || r.URL.Query().Get("vs_currencies") != "usd" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		fmt.Fprint(w, `{"solana":{"usd":142.5}}`)
	}))
	defer srv.Close()

	cg := NewCoinGecko(srv.URL, srv.Client())
	p, err := cg.Price(context.Background(), "solusdt")
	if err != nil {
		t.Fatal(err)
	}
	if p != 142.5 {
		t.Errorf("price = %v, want 142.5", p)
	}
	if _, err := cg.Price(context.Background(), "FOOUSDT"); err == nil {
		t.Error("unmapped symbol should fail")
	}
}

type stubProvider struct {
	name  string
	price float64
	err   error
	calls int
}

func (s *stubProvider) Name() string { return s.name }
func (s *stubProvider) Price(context.Context, string) (float64, error) {
	s.calls++
	return s.price, s.err
}

func TestFeed_FallbackOrder(t *testing.T) {
	first := &stubProvider{name: "a", err: errors.New("down")}
	second := &stubProvider{name: "b", price: 42}
	f := NewWithProviders(Config{}, first, second)

	var failed []string
	f.OnError(func(p string, _ error) { failed = append(failed, p) })

	p, err := f.FetchPrice(context.Background(), "DOGEUSDT")
	if err != nil || p != 42 {
		t.Fatalf("price = %v, err = %v", p, err)
	}
	if first.calls != 1 || second.calls != 1 {
		t.Errorf("calls = %d/%d, want 1/1", first.calls, second.calls)
	}
	if len(failed) != 1 || failed[0] != "a" {
		t.Errorf("observed failures = %v", failed)
	}
}

func TestFeed_AllFailIsPriceUnavailable(t *testing.T) {
	f := NewWithProviders(Config{},
		&stubProvider{name: "a", err: errors.New("timeout")},
		&stubProvider{name: "b", err: errors.New("rate limited")},
	)
	_, err := f.FetchPrice(context.Background(), "DOGEUSDT")
	if !errors.Is(err, model.ErrPriceUnavailable) {
		t.Errorf("err = %v, want ErrPriceUnavailable", err)
	}
}

func TestFeed_BreakerSkipsDeadProvider(t *testing.T) {
	dead := &stubProvider{name: "dead", err: errors.New("down")}
	live := &stubProvider{name: "live", price: 1}
	f := NewWithProviders(Config{MaxFailures: 2, ResetTimeout: time.Hour}, dead, live)
	var opened []string
	f.OnBreakerChange(func(name string, _, to breaker.State) {
		if to == breaker.StateOpen {
			opened = append(opened, name)
		}
	})

	for i := 0; i < 5; i++ {
		if _, err := f.FetchPrice(context.Background(), "DOGEUSDT"); err != nil {
			t.Fatal(err)
		}
	}
	if dead.calls != 2 {
		t.Errorf("dead provider called %d times, want 2 before the breaker opened", dead.calls)
	}
	if got := f.BreakerStates()["dead"]; got != breaker.StateOpen.String() {
		t.Errorf("dead breaker = %s, want open", got)
	}
	if len(opened) != 1 || opened[0] != "dead" {
		t.Errorf("breaker observer saw %v, want [dead]", opened)
	}
}

func TestFeed_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	f := NewWithProviders(Config{Timeout: 50 * time.Millisecond}, NewBinance(srv.URL, srv.Client()))
	start := time.Now()
	_, err := f.FetchPrice(context.Background(), "DOGEUSDT")
	if !errors.Is(err, model.ErrPriceUnavailable) {
		t.Errorf("err = %v, want ErrPriceUnavailable", err)
	}
	if time.Since(start) > time.Second {
		t.Errorf("timeout not applied, took %v", time.Since(start))
	}
}
