package services

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"

	"options-analytics/interfaces"
)

// PricingInput holds the market and contract parameters of a European option.
// TimeToExpiry is in years; rates are continuously compounded.
type PricingInput struct {
	Spot          float64
	Strike        float64
	TimeToExpiry  float64
	RiskFreeRate  float64
	DividendYield float64
	Side          interfaces.OptionSide
}

func (in PricingInput) degenerate(sigma float64) bool {
	return in.TimeToExpiry <= 0 || sigma <= 0 || in.Spot <= 0 || in.Strike <= 0
}

// discounted returns S*e^(-qT) and K*e^(-rT)
func (in PricingInput) discounted() (spot, strike float64) {
	return in.Spot * math.Exp(-in.DividendYield*in.TimeToExpiry),
		in.Strike * math.Exp(-in.RiskFreeRate*in.TimeToExpiry)
}

func (in PricingInput) d1d2(sigma float64) (float64, float64) {
	volSqrtT := sigma * math.Sqrt(in.TimeToExpiry)
	d1 := (math.Log(in.Spot/in.Strike) + (in.RiskFreeRate-in.DividendYield+0.5*sigma*sigma)*in.TimeToExpiry) / volSqrtT
	return d1, d1 - volSqrtT
}

// BlackScholesPrice is the closed-form European option price. With a
// non-positive time, volatility, spot or strike it returns the discounted
// intrinsic value.
func BlackScholesPrice(in PricingInput, sigma float64) float64 {
	spot, strike := in.discounted()

	if in.degenerate(sigma) {
		if in.Side == interfaces.Put {
			return math.Max(0, strike-spot)
		}
		return math.Max(0, spot-strike)
	}

	d1, d2 := in.d1d2(sigma)
	if in.Side == interfaces.Put {
		return strike*normCDF(-d2) - spot*normCDF(-d1)
	}
	return spot*normCDF(d1) - strike*normCDF(d2)
}

func normCDF(x float64) float64 {
	return distuv.UnitNormal.CDF(x)
}

func normPDF(x float64) float64 {
	return distuv.UnitNormal.Prob(x)
}
