package services

import (
	"math"
)

// SolverConfig bounds the implied volatility bisection
type SolverConfig struct {
	MinVol        float64 `mapstructure:"min_vol" json:"min_vol"`
	MaxVol        float64 `mapstructure:"max_vol" json:"max_vol"`
	Tolerance     float64 `mapstructure:"tolerance" json:"tolerance"`
	MaxIterations int     `mapstructure:"max_iterations" json:"max_iterations"`
}

// DefaultSolverConfig searches sigma in [1e-4, 5.0] to a price tolerance of 1e-4
var DefaultSolverConfig = SolverConfig{
	MinVol:        1e-4,
	MaxVol:        5.0,
	Tolerance:     1e-4,
	MaxIterations: 100,
}

// ImpliedVolatility recovers sigma from an observed option price by bisection.
// It returns nil for non-positive price, spot, strike or time, and when the
// iteration ceiling is reached without the price matching within tolerance.
func ImpliedVolatility(price float64, in PricingInput, cfg SolverConfig) *float64 {
	if price <= 0 || in.TimeToExpiry <= 0 || in.Spot <= 0 || in.Strike <= 0 {
		return nil
	}

	lo, hi := cfg.MinVol, cfg.MaxVol
	for i := 0; i < cfg.MaxIterations; i++ {
		mid := 0.5 * (lo + hi)
		theoretical := BlackScholesPrice(in, mid)

		if math.Abs(theoretical-price) < cfg.Tolerance {
			return &mid
		}

		// Price is increasing in sigma for both sides
		if theoretical > price {
			hi = mid
		} else {
			lo = mid
		}
	}

	return nil
}
