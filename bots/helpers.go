package bots

import "lobsim/engine"

// midPrice falls back to whichever side is quoted; zero means no reference.
func midPrice(view engine.BookView) float64 {
	switch {
	case view.HasMid:
		return view.Mid
	case view.BestBid != nil:
		return view.BestBid.Price
	case view.BestAsk != nil:
		return view.BestAsk.Price
	default:
		return 0
	}
}

func bps(v float64) float64 { return v / 10_000 }
