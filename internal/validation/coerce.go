package validation

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// CoerceQuantity turns a loosely typed quantity into a positive count.
// Numbers truncate toward zero, strings contribute their leading integer,
// and anything unusable or below one becomes 1. Counts above maxQuantity are
// clamped, not reset, so the stock check still sees an oversized request.
func CoerceQuantity(v any) int {
	n := 0
	switch q := v.(type) {
	case float64:
		switch {
		case q >= float64(maxQuantity):
			n = maxQuantity
		case q >= 1:
			n = int(q)
		}
	case int:
		n = min(q, maxQuantity)
	case int64:
		n = int(min(q, int64(maxQuantity)))
	case json.Number:
		n = leadingInt(q.String())
	case string:
		n = leadingInt(q)
	}
	if n < 1 {
		return 1
	}
	return n
}

const maxQuantity = math.MaxInt32

func leadingInt(s string) int {
	s = strings.TrimSpace(s)
	end := 0
	if end < len(s) && (s[end] == '+' || s[end] == '-') {
		end++
	}
	digits := end
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == digits {
		return 0
	}
	n, err := strconv.ParseInt(s[:end], 10, 64)
	if err != nil {
		// only a range error is possible here
		if s[0] == '-' {
			return 0
		}
		return maxQuantity
	}
	return int(max(min(n, int64(maxQuantity)), 0))
}

// NormalizeProductID renders a product reference as the string key used by
// the catalog. JSON numbers are printed without a trailing ".0".
func NormalizeProductID(v any) string {
	switch id := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(id)
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64)
	case json.Number:
		return id.String()
	default:
		return fmt.Sprint(id)
	}
}
