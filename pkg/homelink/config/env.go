package config

import (
	"os"
	"strings"

	"github.com/zclconf/go-cty/cty"
)

// EnvObject returns the process environment as a cty object, exposed to
// configuration files as "env". Names are rewritten to valid HCL
// identifiers, e.g. "MY-HOME.URL" becomes "MY-HOME_URL".
func EnvObject() cty.Value {
	attrs := make(map[string]cty.Value)
	for _, kv := range os.Environ() {
		name, value, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		attrs[identifier(name)] = cty.StringVal(value)
	}
	return cty.ObjectVal(attrs)
}

func identifier(name string) string {
	if name == "" {
		return "_"
	}

	var b strings.Builder
	for i, r := range name {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
			b.WriteRune(r)
		case i > 0 && (r == '-' || r >= '0' && r <= '9'):
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}
