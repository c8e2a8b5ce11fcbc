package services

import (
	"time"

	"options-analytics/interfaces"
)

// DefaultOptionExchanges are the exchange segments that list index and stock options
var DefaultOptionExchanges = []string{"NFO"}

// InstrumentMatcher filters a raw catalog down to the option contracts of a
// set of requested underlyings
type InstrumentMatcher struct {
	exchanges map[string]struct{}
	now       func() time.Time
}

// NewInstrumentMatcher creates a matcher accepting the given option exchanges.
// An empty list means DefaultOptionExchanges.
func NewInstrumentMatcher(exchanges []string) *InstrumentMatcher {
	if len(exchanges) == 0 {
		exchanges = DefaultOptionExchanges
	}

	set := make(map[string]struct{}, len(exchanges))
	for _, e := range exchanges {
		set[e] = struct{}{}
	}

	return &InstrumentMatcher{
		exchanges: set,
		now:       time.Now,
	}
}

// MatchInstruments matches a catalog against underlyings using the default exchanges
func MatchInstruments(catalog []interfaces.RawInstrument, underlyings []string) []interfaces.OptionContract {
	return NewInstrumentMatcher(nil).Match(catalog, underlyings)
}

// Match returns one OptionContract per catalog record that is a call or put on
// an options exchange and whose name or trading-symbol prefix normalizes to a
// requested underlying. It never matches everything: an empty requested set
// yields no contracts.
func (m *InstrumentMatcher) Match(catalog []interfaces.RawInstrument, underlyings []string) []interfaces.OptionContract {
	wanted := NormalizeUnderlyings(underlyings)
	if len(wanted) == 0 {
		return nil
	}

	fetchDate := dateOf(m.now())
	var contracts []interfaces.OptionContract

	for _, raw := range catalog {
		rec := ParseInstrument(raw)

		if _, ok := m.exchanges[rec.Exchange]; !ok {
			continue
		}

		side, ok := sideFromInstrumentType(rec.InstrumentType)
		if !ok {
			continue
		}

		underlying, ok := matchUnderlying(rec, wanted)
		if !ok {
			continue
		}

		expiry := fetchDate
		if rec.Expiry != nil {
			expiry = *rec.Expiry
		}

		contracts = append(contracts, interfaces.OptionContract{
			InstrumentToken: rec.InstrumentToken,
			Exchange:        rec.Exchange,
			TradingSymbol:   rec.TradingSymbol,
			Name:            rec.Name,
			Underlying:      underlying,
			Strike:          rec.Strike,
			Expiry:          expiry,
			Side:            side,
			LotSize:         intOr(rec.LotSize, 0),
			TickSize:        rec.TickSize,
			Segment:         rec.Segment,
			FetchDate:       fetchDate,
		})
	}

	return contracts
}

// matchUnderlying tries the declared name first, then the trading-symbol prefix
func matchUnderlying(rec interfaces.InstrumentRecord, wanted map[string]struct{}) (string, bool) {
	if rec.Name != nil {
		if candidate := NormalizeUnderlying(*rec.Name); candidate != "" {
			if _, ok := wanted[candidate]; ok {
				return candidate, true
			}
		}
	}

	if candidate := NormalizeUnderlying(symbolPrefix(rec.TradingSymbol)); candidate != "" {
		if _, ok := wanted[candidate]; ok {
			return candidate, true
		}
	}

	return "", false
}
