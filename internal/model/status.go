package model

import (
	"fmt"
	"strings"
)

const (
	MinTradeFraction     = 0.05
	MaxTradeFraction     = 0.50
	DefaultTradeFraction = 0.25
	DefaultSymbol        = "DOGEUSDT"
)

// Status is the runtime configuration read at the start of every cycle.
type Status struct {
	Active        bool    `json:"active"`
	Training      bool    `json:"training"`
	Mode          Mode    `json:"mode"`
	Symbol        string  `json:"symbol"`
	TradeFraction float64 `json:"trade_fraction"`
}

// DefaultStatus is used whenever no persisted status exists.
func DefaultStatus() Status {
	return Status{
		Active:        true,
		Mode:          ModeScan,
		Symbol:        DefaultSymbol,
		TradeFraction: DefaultTradeFraction,
	}
}

// Normalize fills zero fields from the defaults and clamps the fraction.
// It is applied to anything loaded from a store so a partial file still works.
func (s Status) Normalize() Status {
	d := DefaultStatus()
	if _, err := ParseMode(string(s.Mode)); err != nil {
		s.Mode = d.Mode
	}
	if sym, err := NormalizeSymbol(s.Symbol); err != nil {
		s.Symbol = d.Symbol
	} else {
		s.Symbol = sym
	}
	if s.TradeFraction == 0 {
		s.TradeFraction = d.TradeFraction
	}
	s.TradeFraction = ClampFraction(s.TradeFraction)
	return s
}

// ClampFraction bounds a trade fraction to [MinTradeFraction, MaxTradeFraction].
func ClampFraction(f float64) float64 {
	if f != f { // NaN
		return DefaultTradeFraction
	}
	return max(MinTradeFraction, min(f, MaxTradeFraction))
}

// NormalizeSymbol upper-cases a symbol and rejects empty or non-alphanumeric input.
func NormalizeSymbol(symbol string) (string, error) {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	if s == "" {
		return "", fmt.Errorf("%w: symbol is empty", ErrInvalidConfiguration)
	}
	for _, r := range s {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return "", fmt.Errorf("%w: symbol %q must be alphanumeric", ErrInvalidConfiguration, symbol)
		}
	}
	return s, nil
}
