package services

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// Provider payloads are not schema-guaranteed, so numeric fields arrive as
// float64, json.Number, strings, or not at all. These helpers return nil when
// a value is missing or cannot be read as a finite number.

func coerceFloat(v any) *float64 {
	var f float64
	switch x := v.(type) {
	case nil:
		return nil
	case float64:
		f = x
	case float32:
		f = float64(x)
	case int:
		f = float64(x)
	case int64:
		f = float64(x)
	case int32:
		f = float64(x)
	case uint32:
		f = float64(x)
	case json.Number:
		parsed, err := x.Float64()
		if err != nil {
			return nil
		}
		f = parsed
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return nil
		}
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil
		}
		f = parsed
	default:
		return nil
	}

	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

func coerceInt(v any) *int64 {
	switch x := v.(type) {
	case int64:
		return &x
	case int:
		n := int64(x)
		return &n
	case json.Number:
		if n, err := x.Int64(); err == nil {
			return &n
		}
	case string:
		if n, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64); err == nil {
			return &n
		}
	}

	// Integral floats ("75.0", 75.0) are accepted, fractional ones are not
	f := coerceFloat(v)
	if f == nil || *f != math.Trunc(*f) || math.Abs(*f) > math.MaxInt64/2 {
		return nil
	}
	n := int64(*f)
	return &n
}

func coerceString(v any) *string {
	switch x := v.(type) {
	case nil:
		return nil
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return nil
		}
		return &s
	case json.Number:
		s := x.String()
		return &s
	default:
		return nil
	}
}

func coerceDate(v any) *time.Time {
	switch x := v.(type) {
	case time.Time:
		if x.IsZero() {
			return nil
		}
		d := dateOf(x)
		return &d
	case string:
		s := strings.TrimSpace(x)
		for _, layout := range []string{"2006-01-02", time.RFC3339, "2006-01-02 15:04:05"} {
			if t, err := time.Parse(layout, s); err == nil {
				d := dateOf(t)
				return &d
			}
		}
	}
	return nil
}

// dateOf truncates t to its calendar date at UTC midnight
func dateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func floatOr(p *float64, def float64) float64 {
	if p == nil {
		return def
	}
	return *p
}

func intOr(p *int64, def int64) int64 {
	if p == nil {
		return def
	}
	return *p
}
