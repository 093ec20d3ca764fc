// Package security holds the request checks shared by the HTTP and
// websocket surfaces.
package security

import (
	"net"
	"net/http"
	"net/url"
	"strings"
)

// OriginChecker validates CORS and websocket origins. Loopback origins are
// always allowed; anything else must match the allow list.
type OriginChecker struct {
	allowedOrigins []string
}

// NewOriginChecker creates a checker. Entries are exact origins, "*" or a
// wildcard subdomain pattern such as "*.example.com".
func NewOriginChecker(allowedOrigins []string) *OriginChecker {
	cleaned := make([]string, 0, len(allowedOrigins))
	for _, o := range allowedOrigins {
		if o = strings.TrimRight(strings.TrimSpace(o), "/"); o != "" {
			cleaned = append(cleaned, o)
		}
	}
	return &OriginChecker{allowedOrigins: cleaned}
}

// Allowed reports whether origin may call the server. An empty origin is a
// same-origin or non-browser request.
func (oc *OriginChecker) Allowed(origin string) bool {
	if origin == "" {
		return true
	}

	parsed, err := url.Parse(origin)
	if err != nil || parsed.Host == "" {
		return false
	}
	if isLocalhost(parsed.Hostname()) {
		return true
	}

	for _, allowed := range oc.allowedOrigins {
		if matchOrigin(origin, parsed, allowed) {
			return true
		}
	}
	return false
}

// CheckOrigin validates the Origin header of r. It fits
// websocket.Upgrader.CheckOrigin.
func (oc *OriginChecker) CheckOrigin(r *http.Request) bool {
	return oc.Allowed(r.Header.Get("Origin"))
}

func isLocalhost(host string) bool {
	if host == "localhost" || strings.HasSuffix(host, ".localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func matchOrigin(origin string, parsed *url.URL, allowed string) bool {
	if allowed == "*" || strings.EqualFold(origin, allowed) {
		return true
	}

	// *.example.com matches sub.example.com but not example.com or evilexample.com.
	if strings.HasPrefix(allowed, "*.") {
		domain := strings.ToLower(allowed[1:])
		return strings.HasSuffix(strings.ToLower(parsed.Hostname()), domain)
	}
	return false
}
