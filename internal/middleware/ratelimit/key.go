package ratelimit

import (
	"net"
	"net/http"
	"strings"
	"unicode/utf8"
)

const (
	KeyNamespace = "butce:rl"
	MaxKeyLength = 200
)

// KeyParts are the segments of a rate limit key. Empty optional parts are
// omitted.
type KeyParts struct {
	Scope  string
	UserID string
	IP     string
}

// BuildKey joins namespace, scope, u:<id> and ip:<ip> with "|" and truncates
// the result to MaxKeyLength bytes on a rune boundary.
func BuildKey(p KeyParts) string {
	segments := []string{KeyNamespace, p.Scope}
	if p.UserID != "" {
		segments = append(segments, "u:"+p.UserID)
	}
	if p.IP != "" {
		segments = append(segments, "ip:"+p.IP)
	}
	return truncate(strings.Join(segments, "|"), MaxKeyLength)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// ClientIP returns the first x-forwarded-for entry, else x-real-ip, else "".
// The value is an opaque bucketing key and is not validated.
func ClientIP(h http.Header) string {
	if xff := h.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	return strings.TrimSpace(h.Get("X-Real-Ip"))
}

// RequestIP is ClientIP with the connection's remote address as last resort.
func RequestIP(r *http.Request) string {
	if ip := ClientIP(r.Header); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
