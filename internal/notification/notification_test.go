package notification

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"trading-simv1/internal/breaker"
	"trading-simv1/internal/model"
)

type recordingNotifier struct {
	alerts []Alert
	err    error
}

func (r *recordingNotifier) Send(_ context.Context, a Alert) error {
	r.alerts = append(r.alerts, a)
	return r.err
}

func TestWebhookNotifier_PostsPayload(t *testing.T) {
	var got webhookPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL, "trader")
	n.now = func() time.Time { return time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC) }
	if err := n.Send(context.Background(), Alert{Level: AlertWarning, Title: "t", Message: "m"}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got.Source != "trader" || got.Level != "WARNING" || got.Title != "t" || got.Message != "m" {
		t.Errorf("payload = %+v", got)
	}
	if got.TS != "2024-01-15T10:00:00Z" {
		t.Errorf("ts = %s", got.TS)
	}
}

func TestWebhookNotifier_Non2xxIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewWebhookNotifier(srv.URL, "trader").Send(context.Background(), Alert{Title: "x"})
	if err == nil || !strings.Contains(err.Error(), "502") {
		t.Errorf("err = %v, want unexpected status 502", err)
	}
}

func TestTelegramNotifier_SendsToBotPath(t *testing.T) {
	var path string
	var body map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		json.NewDecoder(r.Body).Decode(&body)
	}))
	defer srv.Close()

	n := NewTelegramNotifier(srv.URL+"/", "TOKEN", "42")
	if err := n.Send(context.Background(), Alert{Level: AlertCritical, Title: "Drawdown", Message: "-5.0%"}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if path != "/botTOKEN/sendMessage" {
		t.Errorf("path = %s", path)
	}
	if body["chat_id"] != "42" || body["parse_mode"] != "MarkdownV2" {
		t.Errorf("body = %v", body)
	}
	if !strings.Contains(body["text"], `\-5\.0%`) {
		t.Errorf("text not escaped: %q", body["text"])
	}
}

func TestEscapeMarkdown(t *testing.T) {
	if got := escapeMarkdown("a_b.c!"); got != `a\_b\.c\!` {
		t.Errorf("escapeMarkdown = %q", got)
	}
}

func TestMulti_JoinsErrors(t *testing.T) {
	boom := errors.New("boom")
	a := &recordingNotifier{}
	b := &recordingNotifier{err: boom}
	err := Multi{a, b}.Send(context.Background(), Alert{Title: "x"})
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want boom", err)
	}
	if len(a.alerts) != 1 || len(b.alerts) != 1 {
		t.Errorf("both notifiers should receive the alert")
	}
}

func TestTradeAlerts_FormatsFill(t *testing.T) {
	rec := &recordingNotifier{}
	profit := 249.75
	tr := model.TradeRecord{
		Symbol: "DOGEUSDT", Action: model.ActionSell, Qty: 24.975, Price: 110,
		Fee: 2.74725, ResultingBalance: 10244.0, Profit: &profit,
	}
	if err := (TradeAlerts{N: rec}).RecordTrade(context.Background(), tr); err != nil {
		t.Fatalf("RecordTrade: %v", err)
	}
	a := rec.alerts[0]
	if a.Title != "Simulated SELL" {
		t.Errorf("title = %q", a.Title)
	}
	if !strings.Contains(a.Message, "realized 249.75") {
		t.Errorf("message = %q", a.Message)
	}
}

func TestBreakerAlert_Levels(t *testing.T) {
	if a := BreakerAlert("binance", breaker.StateClosed, breaker.StateOpen); a.Level != AlertWarning {
		t.Errorf("open level = %s, want WARNING", a.Level)
	}
	a := BreakerAlert("binance", breaker.StateHalfOpen, breaker.StateClosed)
	if a.Level != AlertInfo || a.Message != "binance: half-open -> closed" {
		t.Errorf("recovery alert = %+v", a)
	}
}

type blockingNotifier struct {
	release chan struct{}
	got     chan Alert
}

func (b *blockingNotifier) Send(ctx context.Context, a Alert) error {
	select {
	case <-b.release:
	case <-ctx.Done():
		return ctx.Err()
	}
	b.got <- a
	return nil
}

func TestAsync_DoesNotBlockCaller(t *testing.T) {
	b := &blockingNotifier{release: make(chan struct{}), got: make(chan Alert, 1)}
	n := NewAsync(b, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	if err := n.Send(ctx, Alert{Title: "fill"}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	// The caller's context ending must not abort delivery.
	cancel()
	close(b.release)

	select {
	case a := <-b.got:
		if a.Title != "fill" {
			t.Errorf("delivered %q, want fill", a.Title)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("alert was never delivered")
	}
}
