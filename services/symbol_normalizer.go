package services

import (
	"strings"
)

// underlyingAliases maps composite index names to their canonical token.
// Keys are uppercase with single spaces; values never appear as keys.
var underlyingAliases = map[string]string{
	"NIFTY 50":                 "NIFTY",
	"NIFTY50":                  "NIFTY",
	"NIFTY BANK":               "BANKNIFTY",
	"NIFTYBANK":                "BANKNIFTY",
	"BANK NIFTY":               "BANKNIFTY",
	"NIFTY FIN SERVICE":        "FINNIFTY",
	"NIFTYFINSERVICE":          "FINNIFTY",
	"NIFTY FINANCIAL SERVICES": "FINNIFTY",
	"NIFTY MID SELECT":         "MIDCPNIFTY",
	"NIFTYMIDSELECT":           "MIDCPNIFTY",
	"NIFTY MIDCAP SELECT":      "MIDCPNIFTY",
	"NIFTY NEXT 50":            "NIFTYNXT50",
	"NIFTYNEXT50":              "NIFTYNXT50",
	"SENSEX 50":                "SENSEX50",
	"S&P BSE SENSEX":           "SENSEX",
	"BSE SENSEX":               "SENSEX",
	"S&P BSE BANKEX":           "BANKEX",
}

// NormalizeUnderlying canonicalizes a free-form underlying name. Unknown names
// pass through uppercased with internal whitespace collapsed; blank input
// yields "".
func NormalizeUnderlying(raw string) string {
	collapsed := strings.ToUpper(strings.Join(strings.Fields(raw), " "))
	if collapsed == "" {
		return ""
	}

	if canonical, ok := underlyingAliases[collapsed]; ok {
		return canonical
	}

	if canonical, ok := underlyingAliases[strings.ReplaceAll(collapsed, " ", "")]; ok {
		return canonical
	}

	return collapsed
}

// NormalizeUnderlyings normalizes a list of names into a set, dropping blanks
func NormalizeUnderlyings(raw []string) map[string]struct{} {
	set := make(map[string]struct{}, len(raw))
	for _, r := range raw {
		if n := NormalizeUnderlying(r); n != "" {
			set[n] = struct{}{}
		}
	}
	return set
}
