// Package notification delivers trader alerts (simulated fills, circuit
// breaker trips, retrain failures) to external channels.
package notification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"trading-simv1/internal/breaker"
	"trading-simv1/internal/model"
)

// AlertLevel represents the severity of an alert.
type AlertLevel string

const (
	AlertInfo     AlertLevel = "INFO"
	AlertWarning  AlertLevel = "WARNING"
	AlertCritical AlertLevel = "CRITICAL"
)

// Alert represents a notification to be sent.
type Alert struct {
	Level   AlertLevel `json:"level"`
	Title   string     `json:"title"`
	Message string     `json:"message"`
}

// Notifier is the interface for all notification backends.
type Notifier interface {
	// Send delivers an alert. Returns error if delivery fails.
	Send(ctx context.Context, alert Alert) error
}

// LogNotifier logs alerts through slog.
type LogNotifier struct {
	log *slog.Logger
}

// NewLogNotifier creates a log-based notifier.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{log: slog.With("component", "notify")}
}

func (n *LogNotifier) Send(ctx context.Context, alert Alert) error {
	n.log.InfoContext(ctx, alert.Title, "level", alert.Level, "message", alert.Message)
	return nil
}

// Multi fans an alert out to every notifier and joins their errors.
type Multi []Notifier

func (m Multi) Send(ctx context.Context, alert Alert) error {
	var errs []error
	for _, n := range m {
		if err := n.Send(ctx, alert); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Async hands alerts to N on a new goroutine and returns at once, so callers
// on the trading path or under a breaker lock never wait on a slow channel.
// Delivery failures are logged.
type Async struct {
	n       Notifier
	timeout time.Duration
	log     *slog.Logger
}

// NewAsync wraps n. Each delivery is bounded by timeout.
func NewAsync(n Notifier, timeout time.Duration) *Async {
	if timeout <= 0 {
		timeout = defaultSendTimeout
	}
	return &Async{n: n, timeout: timeout, log: slog.With("component", "notify")}
}

func (a *Async) Send(ctx context.Context, alert Alert) error {
	ctx = context.WithoutCancel(ctx)
	go func() {
		sctx, cancel := context.WithTimeout(ctx, a.timeout)
		defer cancel()
		if err := a.n.Send(sctx, alert); err != nil {
			a.log.Warn("alert not delivered", "title", alert.Title, "error", err)
		}
	}()
	return nil
}

// TradeAlerts adapts a Notifier to model.TradeSink.
type TradeAlerts struct {
	N Notifier
}

func (t TradeAlerts) RecordTrade(ctx context.Context, tr model.TradeRecord) error {
	return t.N.Send(ctx, TradeAlert(tr))
}

// TradeAlert formats a simulated fill.
func TradeAlert(tr model.TradeRecord) Alert {
	msg := fmt.Sprintf("%s %.6f %s @ %.6f (fee %.6f), balance %.2f",
		tr.Action, tr.Qty, tr.Symbol, tr.Price, tr.Fee, tr.ResultingBalance)
	if tr.Profit != nil {
		msg += fmt.Sprintf(", realized %.2f", *tr.Profit)
	}
	return Alert{Level: AlertInfo, Title: "Simulated " + string(tr.Action), Message: msg}
}

// BreakerAlert formats a circuit breaker transition. Opening is a warning,
// recovery is informational.
func BreakerAlert(name string, from, to breaker.State) Alert {
	level := AlertInfo
	if to == breaker.StateOpen {
		level = AlertWarning
	}
	return Alert{
		Level:   level,
		Title:   "Circuit breaker " + to.String(),
		Message: fmt.Sprintf("%s: %s -> %s", name, from, to),
	}
}

// RetrainFailedAlert formats a failed model retrain.
func RetrainFailedAlert(symbol string, err error) Alert {
	return Alert{
		Level:   AlertWarning,
		Title:   "Retrain failed",
		Message: fmt.Sprintf("%s: %v", symbol, err),
	}
}
