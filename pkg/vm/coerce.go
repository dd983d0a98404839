package vm

import (
	"math"
	"strconv"
	"strings"
)

// Coercion helpers. These attempt best-effort conversion and report success
// explicitly; they never raise. Callers (the arithmetic dispatch, the host)
// decide how to react to failure.

// CoerceNumber converts a value to a float: numbers widen, strings are
// parsed with the numeric lexical rules (decimal, hex, exponents).
func (v Value) CoerceNumber() (float64, bool) {
	switch v.typ {
	case TypeInt:
		return float64(v.i), true
	case TypeFloat:
		return v.n, true
	case TypeString:
		if i, f, isInt, ok := parseNumber(v.s); ok {
			if isInt {
				return float64(i), true
			}
			return f, true
		}
	}
	return 0, false
}

// CoerceInteger converts a value to an integer: integers pass through,
// floats only when they have an exact integer representation, strings
// through the numeric parse with the same integrality rule.
func (v Value) CoerceInteger() (int64, bool) {
	switch v.typ {
	case TypeInt:
		return v.i, true
	case TypeFloat:
		return floatToInteger(v.n)
	case TypeString:
		if i, f, isInt, ok := parseNumber(v.s); ok {
			if isInt {
				return i, true
			}
			return floatToInteger(f)
		}
	}
	return 0, false
}

// CoerceString converts a value to its string form. Only nil, booleans,
// numbers and strings convert; objects and userdata do not.
func (v Value) CoerceString() (string, bool) {
	switch v.typ {
	case TypeNil:
		return "nil", true
	case TypeBool:
		if v.b {
			return "true", true
		}
		return "false", true
	case TypeInt:
		return strconv.FormatInt(v.i, 10), true
	case TypeFloat:
		return formatFloat(v.n), true
	case TypeString:
		return v.s, true
	}
	return "", false
}

func floatToInteger(n float64) (int64, bool) {
	i := int64(n)
	if float64(i) == n {
		return i, true
	}
	return 0, false
}

// formatFloat matches the reference "%.14g" rendering, with a trailing
// ".0" so integral floats stay visibly floats.
func formatFloat(n float64) string {
	if math.IsInf(n, 1) {
		return "inf"
	}
	if math.IsInf(n, -1) {
		return "-inf"
	}
	if math.IsNaN(n) {
		return "nan"
	}
	s := strconv.FormatFloat(n, 'g', 14, 64)
	if !strings.ContainsAny(s, ".eEn") {
		s += ".0"
	}
	return s
}

// parseNumber applies the numeric lexical rules to a string: optional
// surrounding whitespace, optional sign, decimal or 0x/0X hex notation.
// It reports whether the result is integral and whether parsing succeeded.
func parseNumber(s string) (i int64, f float64, isInt bool, ok bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, 0, false, false
	}

	neg := false
	body := s
	if body[0] == '+' || body[0] == '-' {
		neg = body[0] == '-'
		body = body[1:]
	}

	if len(body) > 2 && body[0] == '0' && (body[1] == 'x' || body[1] == 'X') {
		u, err := strconv.ParseUint(body[2:], 16, 64)
		if err != nil {
			return 0, 0, false, false
		}
		v := int64(u)
		if neg {
			v = -v
		}
		return v, 0, true, true
	}

	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		return v, 0, true, true
	}
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		return 0, v, false, true
	}
	return 0, 0, false, false
}
