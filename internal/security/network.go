package security

import (
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
)

// TrustedProxies are the peers whose forwarding headers are believed.
type TrustedProxies []*net.IPNet

// ParseTrustedProxies accepts bare IPs and CIDR ranges. Blank entries are
// skipped.
func ParseTrustedProxies(entries []string) (TrustedProxies, error) {
	out := make(TrustedProxies, 0, len(entries))
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if ip := net.ParseIP(entry); ip != nil {
			if v4 := ip.To4(); v4 != nil {
				ip = v4
			}
			bits := len(ip) * 8
			out = append(out, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
			continue
		}
		_, cidr, err := net.ParseCIDR(entry)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy %q: %w", entry, err)
		}
		out = append(out, cidr)
	}
	return out, nil
}

// Contains reports whether addr, an IP with or without a port, is trusted.
func (tp TrustedProxies) Contains(addr string) bool {
	ip := parseIP(addr)
	if ip == nil {
		return false
	}
	for _, n := range tp {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

// ClientIP resolves the address of the client behind r. X-Forwarded-For is
// walked from the right, skipping trusted hops, and only when the direct
// peer is itself trusted; otherwise the peer address is the answer.
func (tp TrustedProxies) ClientIP(r *http.Request) string {
	peer := parseIP(r.RemoteAddr)
	if peer == nil {
		return strings.Trim(r.RemoteAddr, "[]")
	}
	if len(tp) == 0 || !tp.Contains(r.RemoteAddr) {
		return peer.String()
	}

	hops := strings.Split(r.Header.Get("X-Forwarded-For"), ",")
	for i := len(hops) - 1; i >= 0; i-- {
		hop := strings.TrimSpace(hops[i])
		ip := parseIP(hop)
		if ip == nil {
			break
		}
		if !tp.Contains(hop) {
			return ip.String()
		}
	}
	if ip := parseIP(r.Header.Get("X-Real-IP")); ip != nil {
		return ip.String()
	}
	return peer.String()
}

// WebSocketURL derives the websocket endpoint from the HTTP base URL.
func WebSocketURL(httpURL string) string {
	base := strings.TrimRight(strings.TrimSpace(httpURL), "/")
	u, err := url.Parse(base)
	if err != nil || u.Host == "" {
		return base + "/ws"
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.RawQuery, u.Fragment = "", ""
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	return u.String()
}

func parseIP(addr string) net.IP {
	addr = strings.TrimSpace(addr)
	if host, _, err := net.SplitHostPort(addr); err == nil {
		addr = host
	}
	return net.ParseIP(strings.Trim(addr, "[]"))
}
