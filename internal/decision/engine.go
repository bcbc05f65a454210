// Package decision turns indicator snapshots into BUY/SELL/HOLD/SCAN actions.
//
// The Engine is the only component with trade-timing memory: it owns the
// cooldown counter, the last trade timestamp and the previous observed price.
// It never touches the wallet; the caller reports whether a position is open
// and the portfolio simulator decides whether an emitted action can execute.
package decision

import (
	"time"

	"trading-simv1/internal/model"
)

// Source selects which rule set produces the candidate action.
type Source string

const (
	// SourceRules uses the RSI, MACD and momentum rules.
	SourceRules Source = "rules"
	// SourceModel uses the trained classifier's prediction.
	SourceModel Source = "model"
)

// ParseSource validates a decision source name.
func ParseSource(name string) (Source, bool) {
	switch s := Source(name); s {
	case SourceRules, SourceModel:
		return s, true
	}
	return "", false
}

// Config holds the decision thresholds.
type Config struct {
	Source            Source
	CooldownTicks     int
	MinHold           time.Duration
	MomentumThreshold float64 // fraction, 0.001 = 0.1%
	MACDDeadband      float64 // |macd| below this is neutral
	RSIOversold       float64
	RSIOverbought     float64
}

// DefaultConfig returns the reference thresholds.
func DefaultConfig() Config {
	return Config{
		Source:            SourceRules,
		CooldownTicks:     5,
		MinHold:           30 * time.Second,
		MomentumThreshold: 0.001,
		MACDDeadband:      0.05,
		RSIOversold:       30,
		RSIOverbought:     70,
	}
}

// Input is everything the engine looks at for one tick.
type Input struct {
	Now          time.Time
	Price        float64
	Indicators   model.IndicatorSnapshot
	Mode         model.Mode
	PositionOpen bool
	// Prediction is only read when the source is SourceModel.
	Prediction model.Action
}

// Decision is the outcome of evaluating one tick.
type Decision struct {
	Action    model.Action `json:"action"`    // emitted action (SCAN outside run mode)
	Candidate model.Action `json:"candidate"` // action the rules settled on
	Reason    string       `json:"reason"`
	Cooldown  int          `json:"cooldown_remaining"`
}

// State is the engine's persistent memory between ticks.
type State struct {
	LastAction        model.Action
	CooldownRemaining int
	LastTradeTS       *time.Time
	PrevPrice         float64
}

// Engine evaluates ticks in arrival order. It is not safe for concurrent use;
// the ingestion task owns it.
type Engine struct {
	cfg   Config
	state State
}

// NewEngine creates an engine starting in SCAN with no cooldown.
func NewEngine(cfg Config) *Engine {
	if cfg.CooldownTicks < 0 {
		cfg.CooldownTicks = 0
	}
	if cfg.Source == "" {
		cfg.Source = SourceRules
	}
	return &Engine{cfg: cfg, state: State{LastAction: model.ActionScan}}
}

// Config returns the engine's thresholds.
func (e *Engine) Config() Config { return e.cfg }

// State returns a copy of the current state.
func (e *Engine) State() State {
	s := e.state
	if s.LastTradeTS != nil {
		ts := *s.LastTradeTS
		s.LastTradeTS = &ts
	}
	return s
}

// Reset returns the engine to its initial state, e.g. after a symbol change.
func (e *Engine) Reset() {
	e.state = State{LastAction: model.ActionScan}
}

// Evaluate applies the transition policy for one tick, in priority order:
// cooldown, candidate rules, min-hold lock, then cooldown arming.
func (e *Engine) Evaluate(in Input) Decision {
	prev := e.state.PrevPrice
	e.state.PrevPrice = in.Price

	if e.state.CooldownRemaining > 0 {
		e.state.CooldownRemaining--
		d := Decision{Candidate: model.ActionHold, Reason: "cooldown", Cooldown: e.state.CooldownRemaining}
		return e.emit(d, in.Mode)
	}

	var cand model.Action
	var reason string
	if e.cfg.Source == SourceModel {
		cand, reason = modelCandidate(in.Prediction)
	} else {
		cand, reason = e.ruleCandidate(in, prev)
	}

	if cand == model.ActionSell && in.PositionOpen && e.withinMinHold(in.Now) {
		cand, reason = model.ActionHold, "min-hold"
	}

	if cand.IsTrade() {
		now := in.Now
		e.state.CooldownRemaining = e.cfg.CooldownTicks
		e.state.LastTradeTS = &now
	}

	d := Decision{Candidate: cand, Reason: reason, Cooldown: e.state.CooldownRemaining}
	return e.emit(d, in.Mode)
}

func (e *Engine) emit(d Decision, mode model.Mode) Decision {
	d.Action = d.Candidate
	if mode != model.ModeRun {
		d.Action = model.ActionScan
	}
	e.state.LastAction = d.Action
	return d
}

func (e *Engine) withinMinHold(now time.Time) bool {
	if e.state.LastTradeTS == nil || e.cfg.MinHold <= 0 {
		return false
	}
	return now.Sub(*e.state.LastTradeTS) < e.cfg.MinHold
}
