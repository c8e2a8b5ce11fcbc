package services

import (
	"math"

	"options-analytics/interfaces"
)

// Greeks are per-annum sensitivities; no day-count conversion is applied
type Greeks struct {
	Delta float64 `json:"delta"`
	Gamma float64 `json:"gamma"`
	Theta float64 `json:"theta"`
	Vega  float64 `json:"vega"`
}

// ComputeGreeks returns delta, gamma, theta and vega for a known sigma, or nil
// when any of time, sigma, spot or strike is non-positive
func ComputeGreeks(in PricingInput, sigma float64) *Greeks {
	if in.degenerate(sigma) {
		return nil
	}

	sqrtT := math.Sqrt(in.TimeToExpiry)
	d1, d2 := in.d1d2(sigma)
	spot, strike := in.discounted()
	pdf := normPDF(d1)

	g := &Greeks{
		Gamma: math.Exp(-in.DividendYield*in.TimeToExpiry) * pdf / (in.Spot * sigma * sqrtT),
		Vega:  spot * pdf * sqrtT,
	}

	decay := -spot * pdf * sigma / (2 * sqrtT)
	if in.Side == interfaces.Put {
		g.Delta = math.Exp(-in.DividendYield*in.TimeToExpiry) * (normCDF(d1) - 1)
		g.Theta = decay + in.RiskFreeRate*strike*normCDF(-d2) - in.DividendYield*spot*normCDF(-d1)
	} else {
		g.Delta = math.Exp(-in.DividendYield*in.TimeToExpiry) * normCDF(d1)
		g.Theta = decay - in.RiskFreeRate*strike*normCDF(d2) + in.DividendYield*spot*normCDF(d1)
	}

	return g
}

// Analytics solves implied volatility from an observed price and, when found,
// the Greeks at that volatility
func Analytics(price float64, in PricingInput, cfg SolverConfig) interfaces.AnalyticsResult {
	var result interfaces.AnalyticsResult

	iv := ImpliedVolatility(price, in, cfg)
	if iv == nil {
		return result
	}
	result.ImpliedVolatility = iv

	if g := ComputeGreeks(in, *iv); g != nil {
		result.Delta = &g.Delta
		result.Gamma = &g.Gamma
		result.Theta = &g.Theta
		result.Vega = &g.Vega
	}

	return result
}
