package model

import "time"

// PriceTick is one observed price for the traded symbol.
// In streaming-quote mode Open=High=Low=Close=last trade price and Volume=0.
// Ticks are immutable once appended.
type PriceTick struct {
	TS     time.Time `json:"timestamp"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// QuoteTick builds a tick from a single last-trade price.
func QuoteTick(ts time.Time, price float64) PriceTick {
	return PriceTick{TS: ts, Open: price, High: price, Low: price, Close: price}
}
