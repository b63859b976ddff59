package clientip

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// Proxy headers consulted by GetIP, in order.
var proxyHeaders = []string{
	"CF-Connecting-IP",
	"DO-Connecting-IP",
	"X-Forwarded-For",
	"X-Real-IP",
}

// GetIP returns the client address of r, preferring proxy headers over
// RemoteAddr. For X-Forwarded-For the first valid entry wins. IPv4-mapped
// IPv6 addresses are unmapped. It returns "" when nothing parses.
func GetIP(r *http.Request) string {
	for _, h := range proxyHeaders {
		v := r.Header.Get(h)
		if v == "" {
			continue
		}
		for candidate := range strings.SplitSeq(v, ",") {
			if ip := parseIP(candidate); ip != "" {
				return ip
			}
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return parseIP(host)
}

// KeyFunc keys rate limit buckets by client address.
func KeyFunc(r *http.Request) string {
	if ip := GetIPFromContext(r.Context()); ip != "" {
		return ip
	}
	return GetIP(r)
}

func parseIP(s string) string {
	addr, err := netip.ParseAddr(strings.Trim(strings.TrimSpace(s), "[]"))
	if err != nil {
		return ""
	}
	return addr.Unmap().WithZone("").String()
}
