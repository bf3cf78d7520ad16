package database

import (
	"strings"

	"github.com/shopspring/decimal"
)

// adaptArgs rewrites bind arguments the engine cannot store losslessly.
// Decimals are bound as BLOBs so NUMERIC column affinity does not turn them
// into floating point.
func adaptArgs(args []any) []any {
	var out []any
	for i, arg := range args {
		var adapted any
		switch v := arg.(type) {
		case decimal.Decimal:
			adapted = []byte(v.String())
		case *decimal.Decimal:
			if v == nil {
				adapted = nil
			} else {
				adapted = []byte(v.String())
			}
		case decimal.NullDecimal:
			if v.Valid {
				adapted = []byte(v.Decimal.String())
			}
		default:
			if out != nil {
				out[i] = arg
			}
			continue
		}
		if out == nil {
			out = make([]any, len(args))
			copy(out, args[:i])
		}
		out[i] = adapted
	}
	if out == nil {
		return args
	}
	return out
}

// isDecimalType reports whether a declared column type holds decimals.
func isDecimalType(declType string) bool {
	t := strings.ToUpper(strings.TrimSpace(declType))
	return strings.HasPrefix(t, "DECIMAL") || strings.HasPrefix(t, "NUMERIC")
}

// convertValue converts a raw engine value according to its declared column
// type. Values that do not parse are returned unchanged.
func convertValue(declType string, value any) any {
	if value == nil || !isDecimalType(declType) {
		return value
	}

	var (
		d   decimal.Decimal
		err error
	)
	switch v := value.(type) {
	case []byte:
		d, err = decimal.NewFromString(string(v))
	case string:
		d, err = decimal.NewFromString(v)
	case int64:
		d = decimal.NewFromInt(v)
	case float64:
		d = decimal.NewFromFloat(v)
	default:
		return value
	}
	if err != nil {
		return value
	}
	return d
}
