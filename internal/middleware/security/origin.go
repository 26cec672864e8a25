package security

import (
	"net"
	"net/http"
	"net/url"
	"strings"

	"butce/internal/log"
)

// SourceOrigin returns the origin a request claims to come from: the Origin
// header unless it is absent, unparsable or the literal "null", else the
// origin of the Referer. Empty when neither yields one.
func SourceOrigin(h http.Header) string {
	if o := strings.TrimSpace(h.Get("Origin")); o != "" && o != "null" {
		if n, ok := NormalizeOrigin(o); ok {
			return n
		}
	}
	if ref := strings.TrimSpace(h.Get("Referer")); ref != "" {
		if n, ok := NormalizeOrigin(ref); ok {
			return n
		}
	}
	return ""
}

// ExpectedOrigin derives the origin this server is reached at. The host comes
// from X-Forwarded-Host, else Host; the scheme from X-Forwarded-Proto, else
// http for localhost and https otherwise. Empty when there is no host.
func ExpectedOrigin(h http.Header) string {
	host := firstValue(h.Get("X-Forwarded-Host"))
	if host == "" {
		host = strings.TrimSpace(h.Get("Host"))
	}
	if host == "" {
		return ""
	}

	proto := strings.ToLower(firstValue(h.Get("X-Forwarded-Proto")))
	if proto == "" {
		if isLocalHost(host) {
			proto = "http"
		} else {
			proto = "https"
		}
	}

	n, ok := NormalizeOrigin(proto + "://" + host)
	if !ok {
		return ""
	}
	return n
}

// OriginCheck is the input of IsSameOrigin. Header must carry Host for
// ExpectedOrigin to be derived from it.
type OriginCheck struct {
	Header         http.Header
	ExpectedOrigin string
	AllowedOrigins []string
	AllowSameSite  bool
}

// IsSameOrigin accepts a request whose source origin is the expected origin or
// one of the allowed origins. Without any source origin it falls back to
// Sec-Fetch-Site: same-origin passes, same-site passes only when
// AllowSameSite is set. Everything else is rejected.
func IsSameOrigin(c OriginCheck) bool {
	if src := SourceOrigin(c.Header); src != "" {
		if n, ok := NormalizeOrigin(c.ExpectedOrigin); ok && n == src {
			return true
		}
		for _, allowed := range c.AllowedOrigins {
			if n, ok := NormalizeOrigin(allowed); ok && n == src {
				return true
			}
		}
		return false
	}

	switch strings.ToLower(strings.TrimSpace(c.Header.Get("Sec-Fetch-Site"))) {
	case "same-origin":
		return true
	case "same-site":
		return c.AllowSameSite
	default:
		return false
	}
}

// NormalizeOrigin reduces a URL to scheme://host[:port] in lower case with
// default ports dropped.
func NormalizeOrigin(raw string) (string, bool) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", false
	}
	scheme := strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Hostname())
	port := u.Port()
	if (scheme == "http" && port == "80") || (scheme == "https" && port == "443") {
		port = ""
	}
	if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	if port != "" {
		host += ":" + port
	}
	return scheme + "://" + host, true
}

func firstValue(v string) string {
	first, _, _ := strings.Cut(v, ",")
	return strings.TrimSpace(first)
}

func isLocalHost(host string) bool {
	h := host
	if hostOnly, _, err := net.SplitHostPort(host); err == nil {
		h = hostOnly
	}
	h = strings.Trim(strings.ToLower(h), "[]")
	return h == "localhost" || h == "127.0.0.1" || h == "::1"
}

// OriginGuard rejects state-changing requests that are not same-origin.
type OriginGuard struct {
	allowedOrigins []string
	allowSameSite  bool
	logger         *log.Logger
	onReject       func(http.ResponseWriter, *http.Request)
}

func NewOriginGuard(allowedOrigins []string, allowSameSite bool, logger *log.Logger, onReject func(http.ResponseWriter, *http.Request)) *OriginGuard {
	if logger == nil {
		logger = log.Discard()
	}
	return &OriginGuard{
		allowedOrigins: allowedOrigins,
		allowSameSite:  allowSameSite,
		logger:         logger.WithComponent(log.ComponentOrigin),
		onReject:       onReject,
	}
}

// Check evaluates r against the guard's configuration.
func (g *OriginGuard) Check(r *http.Request) bool {
	header := withHost(r)
	return IsSameOrigin(OriginCheck{
		Header:         header,
		ExpectedOrigin: ExpectedOrigin(header),
		AllowedOrigins: g.allowedOrigins,
		AllowSameSite:  g.allowSameSite,
	})
}

// Middleware applies the check to every method except GET, HEAD and OPTIONS.
func (g *OriginGuard) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isSafeMethod(r.Method) || g.Check(r) {
			next.ServeHTTP(w, r)
			return
		}

		g.logger.WarnContext(r.Context(), "Cross-origin request rejected",
			log.FieldMethod, r.Method,
			log.FieldPath, r.URL.Path,
			log.FieldOrigin, SourceOrigin(r.Header),
			log.FieldExpected, ExpectedOrigin(withHost(r)),
			"sec_fetch_site", r.Header.Get("Sec-Fetch-Site"))

		if g.onReject != nil {
			g.onReject(w, r)
			return
		}
		http.Error(w, "Forbidden", http.StatusForbidden)
	})
}

// withHost copies the request headers and restores Host, which net/http
// moves out of the header map.
func withHost(r *http.Request) http.Header {
	header := r.Header.Clone()
	if header == nil {
		header = http.Header{}
	}
	header.Set("Host", r.Host)
	return header
}

func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}
