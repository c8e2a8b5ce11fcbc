package services

import (
	"strings"

	"options-analytics/interfaces"
)

// ParseInstrument converts a raw catalog record into a typed record. Numeric
// fields that cannot be read fall back to zero (required) or nil (optional).
func ParseInstrument(raw interfaces.RawInstrument) interfaces.InstrumentRecord {
	return interfaces.InstrumentRecord{
		InstrumentToken: intOr(coerceInt(raw["instrument_token"]), 0),
		Exchange:        stringField(raw, "exchange"),
		TradingSymbol:   stringField(raw, "tradingsymbol"),
		Name:            coerceString(raw["name"]),
		Strike:          floatOr(coerceFloat(raw["strike"]), 0),
		Expiry:          coerceDate(raw["expiry"]),
		InstrumentType:  stringField(raw, "instrument_type"),
		Segment:         coerceString(raw["segment"]),
		LotSize:         coerceInt(raw["lot_size"]),
		TickSize:        coerceFloat(raw["tick_size"]),
	}
}

func stringField(raw interfaces.RawInstrument, key string) string {
	if s := coerceString(raw[key]); s != nil {
		return *s
	}
	return ""
}

// sideFromInstrumentType maps the catalog's declared side. Anything other than
// a call or put notation is rejected.
func sideFromInstrumentType(t string) (interfaces.OptionSide, bool) {
	switch t {
	case "CE", "call":
		return interfaces.Call, true
	case "PE", "put":
		return interfaces.Put, true
	}
	return "", false
}

// symbolPrefix returns the part of a trading symbol before its first digit
func symbolPrefix(tradingSymbol string) string {
	if i := strings.IndexAny(tradingSymbol, "0123456789"); i >= 0 {
		return tradingSymbol[:i]
	}
	return tradingSymbol
}
