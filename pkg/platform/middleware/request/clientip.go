package request

import (
	"net/http"
	"net/netip"
	"strings"

	"racepass/pkg/requestcontext"
)

// maxForwardedForLength caps the X-Forwarded-For header we parse.
const maxForwardedForLength = 500

const unknownIP = "unknown"

// ClientIP stores the caller address in the request context. The first
// X-Forwarded-For hop is used only when the direct peer is a trusted proxy.
func ClientIP(trusted []netip.Prefix) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := resolveClientIP(r, trusted)
			next.ServeHTTP(w, r.WithContext(requestcontext.WithClientIP(r.Context(), ip)))
		})
	}
}

func resolveClientIP(r *http.Request, trusted []netip.Prefix) string {
	peer, ok := peerAddr(r.RemoteAddr)
	if !ok {
		return unknownIP
	}
	if !trustedPeer(peer, trusted) {
		return peer.String()
	}
	if forwarded, ok := firstForwardedHop(r.Header.Get("X-Forwarded-For")); ok {
		return forwarded.String()
	}
	return peer.String()
}

func peerAddr(remote string) (netip.Addr, bool) {
	if ap, err := netip.ParseAddrPort(remote); err == nil {
		return ap.Addr().Unmap(), true
	}
	if a, err := netip.ParseAddr(remote); err == nil {
		return a.Unmap(), true
	}
	return netip.Addr{}, false
}

func firstForwardedHop(header string) (netip.Addr, bool) {
	if header == "" || len(header) > maxForwardedForLength {
		return netip.Addr{}, false
	}
	first, _, _ := strings.Cut(header, ",")
	a, err := netip.ParseAddr(strings.TrimSpace(first))
	if err != nil {
		return netip.Addr{}, false
	}
	return a.Unmap(), true
}

func trustedPeer(ip netip.Addr, trusted []netip.Prefix) bool {
	for _, p := range trusted {
		if p.Contains(ip) {
			return true
		}
	}
	return false
}

// maskIP reduces an address to its /24 (IPv4) or /48 (IPv6) network for logs.
func maskIP(ip string) string {
	a, err := netip.ParseAddr(ip)
	if err != nil {
		return unknownIP
	}
	bits := 48
	if a.Is4() {
		bits = 24
	}
	p, err := a.Prefix(bits)
	if err != nil {
		return unknownIP
	}
	return p.String()
}
