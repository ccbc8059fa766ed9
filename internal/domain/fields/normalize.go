package fields

import (
	"strings"
	"unicode"

	"github.com/okian/tallyscore/internal/domain/model"
)

// Normalized is the keyed view of one submission. Every value is reachable by
// its raw label and by its normalized key; colliding keys keep the last value.
type Normalized struct {
	All    map[string]*string
	Hidden map[string]*string
	// Order lists keys of All in first-seen order.
	Order []string
}

// NormalizeKey lowercases label and replaces each whitespace run with "_".
func NormalizeKey(label string) string {
	var b strings.Builder
	b.Grow(len(label))
	inSpace := false
	for _, r := range strings.ToLower(label) {
		if unicode.IsSpace(r) {
			if !inSpace {
				b.WriteByte('_')
			}
			inSpace = true
			continue
		}
		inSpace = false
		b.WriteRune(r)
	}
	return b.String()
}

// Normalize builds the keyed view of fs.
func Normalize(fs []model.Field) *Normalized {
	n := &Normalized{
		All:    make(map[string]*string, len(fs)*2),
		Hidden: make(map[string]*string),
	}
	for _, f := range fs {
		label := f.Label
		if label == "" {
			label = f.Key
		}
		val := Resolve(f)
		norm := NormalizeKey(label)
		n.put(label, val)
		n.put(norm, val)
		if f.Hidden() {
			n.Hidden[label] = val
			n.Hidden[norm] = val
		}
	}
	return n
}

func (n *Normalized) put(key string, val *string) {
	if _, ok := n.All[key]; !ok {
		n.Order = append(n.Order, key)
	}
	n.All[key] = val
}

// Lookup returns the first non-empty value among keys, or "".
func (n *Normalized) Lookup(keys ...string) string {
	return firstNonEmpty(n.All, keys)
}

// HiddenFirst returns the hidden value for key, falling back to any field.
func (n *Normalized) HiddenFirst(key string) string {
	if v := firstNonEmpty(n.Hidden, []string{key}); v != "" {
		return v
	}
	return n.Lookup(key)
}

// Snapshot returns a copy of every keyed value for persistence.
func (n *Normalized) Snapshot() model.RawFields {
	out := make(model.RawFields, len(n.All))
	for k, v := range n.All {
		out[k] = v
	}
	return out
}

func firstNonEmpty(m map[string]*string, keys []string) string {
	for _, k := range keys {
		if v := m[k]; v != nil && *v != "" {
			return *v
		}
	}
	return ""
}
