package services

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"options-analytics/interfaces"
)

func atTheMoney(side interfaces.OptionSide) PricingInput {
	return PricingInput{
		Spot:         100,
		Strike:       100,
		TimeToExpiry: 1,
		RiskFreeRate: 0.05,
		Side:         side,
	}
}

func TestBlackScholesPrice(t *testing.T) {
	t.Run("reference values", func(t *testing.T) {
		assert.InDelta(t, 10.450583572185565, BlackScholesPrice(atTheMoney(interfaces.Call), 0.2), 1e-9)
		assert.InDelta(t, 5.573526022256971, BlackScholesPrice(atTheMoney(interfaces.Put), 0.2), 1e-9)
	})

	t.Run("put-call parity with dividends", func(t *testing.T) {
		call := PricingInput{Spot: 24050, Strike: 24000, TimeToExpiry: 30.0 / 365, RiskFreeRate: 0.07, DividendYield: 0.012, Side: interfaces.Call}
		put := call
		put.Side = interfaces.Put

		c := BlackScholesPrice(call, 0.14)
		p := BlackScholesPrice(put, 0.14)
		forward := call.Spot*math.Exp(-call.DividendYield*call.TimeToExpiry) - call.Strike*math.Exp(-call.RiskFreeRate*call.TimeToExpiry)

		assert.InDelta(t, forward, c-p, 1e-6)
	})

	t.Run("degenerate inputs price at discounted intrinsic", func(t *testing.T) {
		expired := PricingInput{Spot: 110, Strike: 100, TimeToExpiry: 0, RiskFreeRate: 0.05, Side: interfaces.Call}
		assert.Equal(t, 10.0, BlackScholesPrice(expired, 0.2))

		expired.Side = interfaces.Put
		assert.Equal(t, 0.0, BlackScholesPrice(expired, 0.2))

		zeroVol := PricingInput{Spot: 100, Strike: 110, TimeToExpiry: 1, RiskFreeRate: 0.05, Side: interfaces.Put}
		assert.InDelta(t, 110*math.Exp(-0.05)-100, BlackScholesPrice(zeroVol, 0), 1e-12)
	})

	t.Run("price increases with volatility", func(t *testing.T) {
		in := atTheMoney(interfaces.Call)
		prev := BlackScholesPrice(in, 0.05)
		for _, sigma := range []float64{0.1, 0.2, 0.5, 1, 2} {
			price := BlackScholesPrice(in, sigma)
			assert.Greater(t, price, prev)
			prev = price
		}
	})
}

func TestImpliedVolatility(t *testing.T) {
	t.Run("recovers the pricing volatility", func(t *testing.T) {
		for _, side := range []interfaces.OptionSide{interfaces.Call, interfaces.Put} {
			for _, sigma := range []float64{0.08, 0.2, 0.45, 1.2} {
				in := PricingInput{Spot: 24050, Strike: 24200, TimeToExpiry: 20.0 / 365, RiskFreeRate: 0.07, Side: side}
				price := BlackScholesPrice(in, sigma)

				iv := ImpliedVolatility(price, in, DefaultSolverConfig)
				require.NotNil(t, iv, "side %s sigma %v", side, sigma)
				assert.InDelta(t, sigma, *iv, 1e-3)
			}
		}
	})

	t.Run("rejects non-positive inputs", func(t *testing.T) {
		in := atTheMoney(interfaces.Call)
		assert.Nil(t, ImpliedVolatility(0, in, DefaultSolverConfig))
		assert.Nil(t, ImpliedVolatility(-1, in, DefaultSolverConfig))

		expired := in
		expired.TimeToExpiry = 0
		assert.Nil(t, ImpliedVolatility(10, expired, DefaultSolverConfig))

		noSpot := in
		noSpot.Spot = 0
		assert.Nil(t, ImpliedVolatility(10, noSpot, DefaultSolverConfig))
	})

	t.Run("price outside the searchable range does not converge", func(t *testing.T) {
		assert.Nil(t, ImpliedVolatility(150, atTheMoney(interfaces.Call), DefaultSolverConfig))

		deepITM := PricingInput{Spot: 120, Strike: 100, TimeToExpiry: 1, RiskFreeRate: 0.05, Side: interfaces.Call}
		assert.Nil(t, ImpliedVolatility(10, deepITM, DefaultSolverConfig))
	})

	t.Run("iteration ceiling", func(t *testing.T) {
		cfg := DefaultSolverConfig
		cfg.MaxIterations = 2
		assert.Nil(t, ImpliedVolatility(BlackScholesPrice(atTheMoney(interfaces.Call), 0.2), atTheMoney(interfaces.Call), cfg))
	})
}

func TestComputeGreeks(t *testing.T) {
	t.Run("call", func(t *testing.T) {
		g := ComputeGreeks(atTheMoney(interfaces.Call), 0.2)
		require.NotNil(t, g)

		assert.InDelta(t, 0.636831, g.Delta, 1e-5)
		assert.InDelta(t, 0.018762, g.Gamma, 1e-5)
		assert.InDelta(t, 37.5240, g.Vega, 1e-3)
		assert.InDelta(t, -6.4140, g.Theta, 1e-3)
	})

	t.Run("put", func(t *testing.T) {
		g := ComputeGreeks(atTheMoney(interfaces.Put), 0.2)
		require.NotNil(t, g)

		assert.InDelta(t, -0.363169, g.Delta, 1e-5)
		assert.InDelta(t, 0.018762, g.Gamma, 1e-5)
		assert.InDelta(t, 37.5240, g.Vega, 1e-3)
		assert.InDelta(t, -1.6579, g.Theta, 1e-3)
	})

	t.Run("call and put deltas differ by the dividend discount", func(t *testing.T) {
		in := PricingInput{Spot: 500, Strike: 480, TimeToExpiry: 0.25, RiskFreeRate: 0.04, DividendYield: 0.02, Side: interfaces.Call}
		call := ComputeGreeks(in, 0.3)
		in.Side = interfaces.Put
		put := ComputeGreeks(in, 0.3)

		require.NotNil(t, call)
		require.NotNil(t, put)
		assert.InDelta(t, math.Exp(-0.02*0.25), call.Delta-put.Delta, 1e-12)
		assert.InDelta(t, call.Gamma, put.Gamma, 1e-12)
		assert.InDelta(t, call.Vega, put.Vega, 1e-12)
	})

	t.Run("degenerate inputs", func(t *testing.T) {
		cases := map[string]func(*PricingInput) float64{
			"zero vol":        func(in *PricingInput) float64 { return 0 },
			"negative vol":    func(in *PricingInput) float64 { return -0.2 },
			"expired":         func(in *PricingInput) float64 { in.TimeToExpiry = 0; return 0.2 },
			"negative time":   func(in *PricingInput) float64 { in.TimeToExpiry = -0.1; return 0.2 },
			"zero spot":       func(in *PricingInput) float64 { in.Spot = 0; return 0.2 },
			"negative spot":   func(in *PricingInput) float64 { in.Spot = -100; return 0.2 },
			"zero strike":     func(in *PricingInput) float64 { in.Strike = 0; return 0.2 },
			"negative strike": func(in *PricingInput) float64 { in.Strike = -100; return 0.2 },
		}

		for name, mutate := range cases {
			for _, side := range []interfaces.OptionSide{interfaces.Call, interfaces.Put} {
				t.Run(name+"/"+string(side), func(t *testing.T) {
					in := atTheMoney(side)
					sigma := mutate(&in)
					assert.Nil(t, ComputeGreeks(in, sigma))
				})
			}
		}
	})
}

func TestAnalytics(t *testing.T) {
	t.Run("solved price fills every field", func(t *testing.T) {
		in := atTheMoney(interfaces.Put)
		result := Analytics(5.573526022256971, in, DefaultSolverConfig)

		require.NotNil(t, result.ImpliedVolatility)
		assert.InDelta(t, 0.2, *result.ImpliedVolatility, 1e-4)
		require.NotNil(t, result.Delta)
		require.NotNil(t, result.Gamma)
		require.NotNil(t, result.Theta)
		require.NotNil(t, result.Vega)
		assert.Less(t, *result.Delta, 0.0)
	})

	t.Run("unsolvable price leaves everything nil", func(t *testing.T) {
		result := Analytics(0, atTheMoney(interfaces.Call), DefaultSolverConfig)
		assert.Equal(t, interfaces.AnalyticsResult{}, result)
	})
}
