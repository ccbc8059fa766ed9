// Package fields turns raw webhook fields into a keyed, string-valued view.
package fields

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/okian/tallyscore/internal/domain/model"
)

// listSeparator joins multi-value answers.
const listSeparator = ", "

// Resolve converts a field's raw value into a single string. Missing values
// resolve to nil; it never fails.
func Resolve(f model.Field) *string {
	if f.Value == nil {
		return nil
	}
	var s string
	if items, ok := f.Value.([]any); ok {
		parts := make([]string, len(items))
		for i, item := range items {
			parts[i] = optionText(f.Options, stringify(item))
		}
		s = strings.Join(parts, listSeparator)
	} else {
		s = stringify(f.Value)
	}
	return &s
}

// optionText maps an option id to its display text, or returns id unchanged.
func optionText(opts []model.Option, id string) string {
	for _, o := range opts {
		if o.ID == id {
			return o.Text
		}
	}
	return id
}

// Numbers at or beyond these magnitudes print in exponent form.
const (
	maxPlainNumber = 1e21
	minPlainNumber = 1e-6
)

// formatNumber prints n the way a JSON number reads back in a browser:
// shortest digits, plain notation between 1e-6 and 1e21, and an unpadded
// exponent outside that range ("1e+21", "1e-7").
func formatNumber(n float64) string {
	if n == 0 {
		return "0"
	}
	abs := math.Abs(n)
	if abs >= minPlainNumber && abs < maxPlainNumber {
		return strconv.FormatFloat(n, 'f', -1, 64)
	}
	s := strconv.FormatFloat(n, 'e', -1, 64)
	mant, exp, _ := strings.Cut(s, "e")
	sign, digits := exp[:1], strings.TrimLeft(exp[1:], "0")
	return mant + "e" + sign + digits
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return formatNumber(t)
	case bool:
		return strconv.FormatBool(t)
	case json.Number:
		return t.String()
	case []any:
		parts := make([]string, len(t))
		for i, item := range t {
			parts[i] = stringify(item)
		}
		return strings.Join(parts, ",")
	default:
		if b, err := json.Marshal(t); err == nil {
			return string(b)
		}
		return fmt.Sprint(t)
	}
}
