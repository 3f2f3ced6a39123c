package middleware

import (
	"net"
	"net/netip"
	"strings"

	"github.com/gin-gonic/gin"
)

// ContextKeyClientIP is the Gin context key for the resolved client address.
const ContextKeyClientIP = "client_ip"

// clientIPHeaders are consulted in order. The first public address wins.
var clientIPHeaders = []string{
	"CF-Connecting-IP",
	"True-Client-IP",
	"X-Real-IP",
	"X-Forwarded-For",
	"X-Client-IP",
}

// IPResolver derives the real client address of a request. Forwarding
// headers are only believed when the direct peer is a trusted proxy; an
// empty trust list trusts every peer.
type IPResolver struct {
	trusted []netip.Prefix
}

// NewIPResolver parses CIDRs or bare addresses. Invalid entries are skipped.
func NewIPResolver(trusted []string) *IPResolver {
	r := &IPResolver{}
	for _, raw := range trusted {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if p, err := netip.ParsePrefix(raw); err == nil {
			r.trusted = append(r.trusted, p.Masked())
			continue
		}
		if a, err := netip.ParseAddr(raw); err == nil {
			a = a.Unmap()
			r.trusted = append(r.trusted, netip.PrefixFrom(a, a.BitLen()))
		}
	}
	return r
}

// Resolve returns the client address for a peer and its request headers.
func (r *IPResolver) Resolve(remoteAddr string, header func(string) string) string {
	peer := hostOf(remoteAddr)

	if r.trusts(peer) {
		for _, name := range clientIPHeaders {
			if ip, ok := firstPublic(header(name)); ok {
				return ip
			}
		}
	}
	return peer
}

func (r *IPResolver) trusts(peer string) bool {
	if len(r.trusted) == 0 {
		return true
	}
	addr, err := netip.ParseAddr(peer)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, p := range r.trusted {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// Middleware stores the resolved address under ContextKeyClientIP.
func (r *IPResolver) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(ContextKeyClientIP, r.Resolve(c.Request.RemoteAddr, c.GetHeader))
		c.Next()
	}
}

// GetClientIP returns the resolved address, or Gin's own guess when the
// resolver middleware did not run.
func GetClientIP(c *gin.Context) string {
	if v, ok := c.Get(ContextKeyClientIP); ok {
		if ip, ok := v.(string); ok && ip != "" {
			return ip
		}
	}
	return c.ClientIP()
}

// firstPublic scans a comma-separated header value for a routable address.
func firstPublic(value string) (string, bool) {
	if value == "" {
		return "", false
	}
	for _, part := range strings.Split(value, ",") {
		addr, err := netip.ParseAddr(strings.TrimSpace(part))
		if err != nil {
			continue
		}
		addr = addr.Unmap()
		if isPublic(addr) {
			return addr.String(), true
		}
	}
	return "", false
}

func isPublic(a netip.Addr) bool {
	return a.IsValid() &&
		!a.IsPrivate() &&
		!a.IsLoopback() &&
		!a.IsLinkLocalUnicast() &&
		!a.IsLinkLocalMulticast() &&
		!a.IsMulticast() &&
		!a.IsUnspecified()
}

func hostOf(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}
	if a, err := netip.ParseAddr(host); err == nil {
		return a.Unmap().String()
	}
	return host
}
