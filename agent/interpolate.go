package agent

import (
	"encoding/json"
	"regexp"
)

// Lookup resolves placeholder keys. *persistence.Session satisfies it.
type Lookup interface {
	Get(key string) (any, bool)
}

var placeholder = regexp.MustCompile(`\{([^}]+)\}`)

// Interpolate replaces every {key} in template with the value lookup holds
// for key. Strings are inserted verbatim, other values as JSON. Keys the
// lookup does not hold, and values that cannot be encoded, leave the
// placeholder untouched.
func Interpolate(template string, lookup Lookup) string {
	if lookup == nil {
		return template
	}
	return placeholder.ReplaceAllStringFunc(template, func(match string) string {
		key := match[1 : len(match)-1]
		v, ok := lookup.Get(key)
		if !ok {
			return match
		}
		if s, ok := v.(string); ok {
			return s
		}
		b, err := json.Marshal(v)
		if err != nil {
			return match
		}
		return string(b)
	})
}

// MapLookup adapts a plain map to Lookup.
type MapLookup map[string]any

func (m MapLookup) Get(key string) (any, bool) {
	v, ok := m[key]
	return v, ok
}
