package decision

import "trading-simv1/internal/model"

// ruleCandidate runs the RSI rule, the MACD refinement and the momentum
// override. Later rules overwrite earlier ones.
func (e *Engine) ruleCandidate(in Input, prev float64) (model.Action, string) {
	cand, reason := model.ActionHold, "no signal"

	if rsi := in.Indicators.RSI; rsi != nil {
		switch {
		case *rsi < e.cfg.RSIOversold:
			cand, reason = model.ActionBuy, "rsi oversold"
		case *rsi > e.cfg.RSIOverbought:
			cand, reason = model.ActionSell, "rsi overbought"
		default:
			reason = "rsi neutral"
		}
	}

	// MACD only refines an existing trade candidate.
	if macd := in.Indicators.MACD; macd != nil && cand.IsTrade() {
		if *macd > -e.cfg.MACDDeadband && *macd < e.cfg.MACDDeadband {
			cand, reason = model.ActionHold, "macd deadband"
		}
	}

	if prev > 0 && in.Price > 0 {
		switch {
		case in.Price > prev*(1+e.cfg.MomentumThreshold):
			cand, reason = model.ActionBuy, "momentum up"
		case in.Price < prev*(1-e.cfg.MomentumThreshold):
			cand, reason = model.ActionSell, "momentum down"
		}
	}
	return cand, reason
}

// modelCandidate maps a predictor output to a candidate. Anything other than
// BUY/SELL (including an empty prediction) fails safe to HOLD.
func modelCandidate(pred model.Action) (model.Action, string) {
	switch pred {
	case model.ActionBuy, model.ActionSell:
		return pred, "model"
	}
	return model.ActionHold, "model unavailable"
}
