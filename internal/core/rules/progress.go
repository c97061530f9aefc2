package rules

import (
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"
)

// Delta is the amount one event adds to the task: 1 for counting tasks, or
// the floored value of the ProgressField context key. Missing, non-numeric
// and non-positive values add nothing.
func (t TaskDefinition) Delta(evCtx map[string]interface{}) int {
	if t.ProgressField == "" {
		return 1
	}
	amount, ok := contextNumber(evCtx[t.ProgressField])
	if !ok || amount.Sign() <= 0 {
		return 0
	}
	return int(amount.Floor().IntPart())
}

// contextNumber reads a decoded context value as a decimal. Clients that
// quote their numbers are accepted.
func contextNumber(v interface{}) (decimal.Decimal, bool) {
	switch n := v.(type) {
	case float64:
		return decimal.NewFromFloat(n), true
	case int:
		return decimal.NewFromInt(int64(n)), true
	case int64:
		return decimal.NewFromInt(n), true
	case json.Number:
		d, err := decimal.NewFromString(n.String())
		return d, err == nil
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(n))
		return d, err == nil
	default:
		return decimal.Zero, false
	}
}
