package services

import (
	"strconv"

	"github.com/mnemoslabs/mnemos/memory"
)

// attrInt reads a numeric node attribute, tolerating the string coercion
// applied by graph snapshots.
func attrInt(n *memory.Node, key string, def int) int {
	if n == nil || n.Attrs == nil {
		return def
	}
	switch v := n.Attrs[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case string:
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

// attrString reads a string node attribute.
func attrString(n *memory.Node, key string) string {
	if n == nil || n.Attrs == nil {
		return ""
	}
	s, _ := n.Attrs[key].(string)
	return s
}
