// Package raw provides a minimal env reader used during bootstrap.
// It has NO dependency on the logger package: the logger reads LOG_* through it
package raw

import (
	"os"
	"strconv"
	"strings"
)

// lookupEnv is a seam for tests
var lookupEnv = os.LookupEnv

// Conf is a namespaced view over environment variables (e.g. "LOG_")
type Conf struct{ prefix string }

// New returns a root Conf (no prefix)
func New() Conf { return Conf{} }

// Prefix returns a child Conf with an additional prefix
func (c Conf) Prefix(p string) Conf { return Conf{prefix: c.prefix + p} }

func (c Conf) value(key string) string {
	v, _ := lookupEnv(c.prefix + key)
	return strings.TrimSpace(v)
}

// Get returns the trimmed env var or def if empty
func (c Conf) Get(key, def string) string {
	if v := c.value(key); v != "" {
		return v
	}
	return def
}

// GetLower is Get with the result lowercased (levels, formats)
func (c Conf) GetLower(key, def string) string {
	return strings.ToLower(c.Get(key, def))
}

// GetBool accepts 1|true|yes as true; any other non-empty value is false
func (c Conf) GetBool(key string, def bool) bool {
	v := strings.ToLower(c.value(key))
	if v == "" {
		return def
	}
	return v == "1" || v == "true" || v == "yes"
}

// GetInt parses a non-negative integer; anything else yields def
func (c Conf) GetInt(key string, def int) int {
	v := c.value(key)
	if v == "" {
		return def
	}
	n, err := strconv.ParseUint(v, 10, 31)
	if err != nil {
		return def
	}
	return int(n)
}
