// Package endpoint splits capture endpoint strings into address and named service.
package endpoint

import (
	"strings"

	"github.com/telhawk-systems/pktwatch/internal/model"
)

// Split breaks "address.trailing" at the last dot. A numeric trailing segment
// is a port or address octet, never a named service. It is dropped only when
// what precedes it is a complete dotted-quad, as in "192.168.1.5.51000";
// otherwise the whole string is kept as the address.
func Split(raw string) model.Endpoint {
	i := strings.LastIndexByte(raw, '.')
	if i <= 0 {
		return model.Endpoint{Address: raw}
	}
	tail := raw[i+1:]
	if isDigits(tail) {
		if isIPv4(raw[:i]) {
			return model.Endpoint{Address: raw[:i]}
		}
		return model.Endpoint{Address: raw}
	}
	return model.Endpoint{Address: raw[:i], Service: tail}
}

// EffectiveService prefers the destination's service: the contacted side is
// the meaningful classification signal, the client port is ephemeral.
func EffectiveService(src, dst model.Endpoint) string {
	if dst.Service != "" {
		return dst.Service
	}
	return src.Service
}

func isIPv4(s string) bool {
	parts := strings.Split(s, ".")
	if len(parts) != 4 {
		return false
	}
	for _, p := range parts {
		if !isDigits(p) || len(p) > 3 {
			return false
		}
	}
	return true
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
