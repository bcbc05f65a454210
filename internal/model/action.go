package model

import (
	"fmt"
	"strings"
)

// Action is the decision emitted for a tick.
type Action string

const (
	ActionScan Action = "SCAN"
	ActionHold Action = "HOLD"
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
)

// IsTrade reports whether the action opens or closes a position.
func (a Action) IsTrade() bool { return a == ActionBuy || a == ActionSell }

// Mode is the operating mode read from the status store each cycle.
type Mode string

const (
	// ModeScan fetches and evaluates but never trades.
	ModeScan Mode = "scan"
	// ModeRun evaluates and executes against the simulated wallet.
	ModeRun Mode = "run"
	// ModeOff pauses ingestion.
	ModeOff Mode = "off"
)

// ParseMode validates a mode name (case-insensitive).
func ParseMode(name string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(name))); m {
	case ModeScan, ModeRun, ModeOff:
		return m, nil
	default:
		return "", fmt.Errorf("%w: mode %q not in {scan,run,off}", ErrInvalidConfiguration, name)
	}
}
