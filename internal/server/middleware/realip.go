package middleware

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// RealIPMiddleware rewrites RemoteAddr from X-Forwarded-For or X-Real-IP,
// but only for requests whose TCP peer is a trusted proxy.
// Headers from any other peer are ignored.
func RealIPMiddleware(trusted []netip.Prefix) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if len(trusted) == 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			host, port, err := net.SplitHostPort(r.RemoteAddr)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}
			peer, err := netip.ParseAddr(host)
			if err != nil || !isTrusted(trusted, peer) {
				next.ServeHTTP(w, r)
				return
			}

			if client, ok := forwardedClient(r.Header, trusted); ok {
				r = r.WithContext(r.Context())
				r.RemoteAddr = net.JoinHostPort(client.String(), port)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// forwardedClient walks X-Forwarded-For right to left and returns the first
// hop that is not a trusted proxy
func forwardedClient(h http.Header, trusted []netip.Prefix) (netip.Addr, bool) {
	var hops []string
	for _, v := range h.Values("X-Forwarded-For") {
		hops = append(hops, strings.Split(v, ",")...)
	}

	var leftmost netip.Addr
	for i := len(hops) - 1; i >= 0; i-- {
		addr, err := netip.ParseAddr(strings.TrimSpace(hops[i]))
		if err != nil {
			// a garbled hop was written by someone we cannot vouch for
			break
		}
		addr = addr.Unmap()
		if !isTrusted(trusted, addr) {
			return addr, true
		}
		leftmost = addr
	}
	if leftmost.IsValid() {
		return leftmost, true
	}

	if xri := strings.TrimSpace(h.Get("X-Real-IP")); xri != "" {
		if addr, err := netip.ParseAddr(xri); err == nil {
			return addr.Unmap(), true
		}
	}
	return netip.Addr{}, false
}

func isTrusted(trusted []netip.Prefix, addr netip.Addr) bool {
	addr = addr.Unmap()
	for _, p := range trusted {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}
