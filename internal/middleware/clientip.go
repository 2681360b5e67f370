package middleware

import (
	"net"
	"net/http"
	"strings"

	"github.com/vyrodovalexey/avsessgw/internal/observability"
)

// ClientKeyResolver resolves the per-client rate limit key from a
// request. The key is the real client IP; when it cannot be determined
// every such request shares the "unknown" bucket rather than escaping
// rate limiting entirely.
type ClientKeyResolver struct {
	trustedCIDRs []*net.IPNet
	logger       observability.Logger
}

// NewClientKeyResolver creates a resolver trusting the given proxy
// CIDRs for X-Forwarded-For handling. Entries may be CIDRs or single
// addresses; invalid entries are skipped. With no trusted proxies only
// RemoteAddr is used, so a caller cannot spoof its key with forwarding
// headers.
func NewClientKeyResolver(trustedProxies []string, logger observability.Logger) *ClientKeyResolver {
	if logger == nil {
		logger = observability.NopLogger()
	}
	cidrs := make([]*net.IPNet, 0, len(trustedProxies))
	for _, proxy := range trustedProxies {
		_, cidr, err := net.ParseCIDR(proxy)
		if err != nil {
			ip := net.ParseIP(proxy)
			if ip == nil {
				continue
			}
			cidr = singleIPToCIDR(ip)
		}
		cidrs = append(cidrs, cidr)
	}
	return &ClientKeyResolver{trustedCIDRs: cidrs, logger: logger}
}

// singleIPToCIDR converts a single IP address to a /32 or /128 CIDR.
func singleIPToCIDR(ip net.IP) *net.IPNet {
	bits := 32
	if ip.To4() == nil {
		bits = 128
	}
	return &net.IPNet{
		IP:   ip,
		Mask: net.CIDRMask(bits, bits),
	}
}

// Resolve returns the rate limit key for the request.
func (res *ClientKeyResolver) Resolve(r *http.Request) string {
	ip := res.clientIP(r)
	if ip == "" {
		ip = unknownClientKey
	}

	res.logger.Debug("resolved client address",
		observability.String("client_address", ip),
		observability.String("method", r.Method),
		observability.String("uri", r.URL.RequestURI()),
		observability.Any("headers", r.Header),
	)

	return ip
}

// clientIP returns the real client IP. When the direct peer is a
// trusted proxy, X-Forwarded-For is walked right-to-left and the first
// untrusted hop wins.
func (res *ClientKeyResolver) clientIP(r *http.Request) string {
	remoteIP := stripPort(r.RemoteAddr)

	if len(res.trustedCIDRs) == 0 || !res.isTrusted(remoteIP) {
		return remoteIP
	}

	xff := r.Header.Get(HeaderXForwardedFor)
	if xff == "" {
		return remoteIP
	}

	hops := strings.Split(xff, ",")
	for i := len(hops) - 1; i >= 0; i-- {
		hop := strings.TrimSpace(hops[i])
		if hop == "" {
			continue
		}
		if !res.isTrusted(hop) {
			return hop
		}
	}

	return remoteIP
}

func (res *ClientKeyResolver) isTrusted(ipStr string) bool {
	ip := net.ParseIP(ipStr)
	if ip == nil {
		return false
	}
	for _, cidr := range res.trustedCIDRs {
		if cidr.Contains(ip) {
			return true
		}
	}
	return false
}

// stripPort removes the port from a host:port address, tolerating bare
// hosts and IPv6 literals.
func stripPort(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return strings.Trim(addr, "[]")
	}
	return host
}
