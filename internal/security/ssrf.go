package security

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"net/url"
	"strings"

	"wayfinder/internal/domain"
)

// reservedPrefixes are address blocks a navigation capability must never reach.
var reservedPrefixes = []netip.Prefix{
	netip.MustParsePrefix("10.0.0.0/8"),
	netip.MustParsePrefix("172.16.0.0/12"),
	netip.MustParsePrefix("192.168.0.0/16"),
	netip.MustParsePrefix("127.0.0.0/8"),
	netip.MustParsePrefix("169.254.0.0/16"),
	netip.MustParsePrefix("100.64.0.0/10"),
	netip.MustParsePrefix("0.0.0.0/8"),
	netip.MustParsePrefix("::1/128"),
	netip.MustParsePrefix("::/128"),
	netip.MustParsePrefix("fc00::/7"),
	netip.MustParsePrefix("fe80::/10"),
}

// IsPrivateIP reports whether ip falls in a private, loopback, link-local
// or otherwise reserved block. IPv4-mapped IPv6 addresses are unmapped first.
func IsPrivateIP(ip net.IP) bool {
	addr, ok := netip.AddrFromSlice(ip)
	if !ok {
		return false
	}
	return isReserved(addr)
}

func isReserved(addr netip.Addr) bool {
	addr = addr.Unmap()
	for _, p := range reservedPrefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// Resolver looks up host addresses. *net.Resolver satisfies it.
type Resolver interface {
	LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error)
}

// URLGuard vets URLs before a capability navigates to them: only http and
// https, and no host that resolves into a reserved block unless it is
// explicitly allowed (e.g. a local dev server).
type URLGuard struct {
	resolver Resolver
	allowed  map[string]bool
}

// NewURLGuard creates a guard. A nil resolver uses net.DefaultResolver.
func NewURLGuard(resolver Resolver, allowedHosts []string) *URLGuard {
	if resolver == nil {
		resolver = net.DefaultResolver
	}
	g := &URLGuard{resolver: resolver, allowed: make(map[string]bool, len(allowedHosts))}
	for _, h := range allowedHosts {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			g.allowed[h] = true
		}
	}
	return g
}

// Check parses raw and returns it when it is safe to visit.
func (g *URLGuard) Check(ctx context.Context, raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, blocked("invalid URL: %v", err)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	case "":
		return nil, blocked("missing URL scheme, only http/https allowed")
	default:
		return nil, blocked("scheme %q not allowed, only http/https", u.Scheme)
	}

	host := strings.ToLower(u.Hostname())
	if host == "" {
		return nil, blocked("empty hostname")
	}
	if g.allowed[host] {
		return u, nil
	}

	if addr, err := netip.ParseAddr(host); err == nil {
		if isReserved(addr) {
			return nil, blocked("address %s is private or reserved", addr)
		}
		return u, nil
	}

	addrs, err := g.resolver.LookupIPAddr(ctx, host)
	if err != nil {
		return nil, blocked("DNS lookup failed: %v", err)
	}
	for _, a := range addrs {
		if IsPrivateIP(a.IP) {
			return nil, blocked("host %s resolves to private address %s", host, a.IP)
		}
	}
	return u, nil
}

// ValidateURL checks raw with a default guard and no allowed hosts.
func ValidateURL(raw string) error {
	_, err := NewURLGuard(nil, nil).Check(context.Background(), raw)
	return err
}

func blocked(format string, args ...any) error {
	return domain.NewSubSystemError("security", "URLGuard.Check", domain.ErrSSRFBlocked, fmt.Sprintf(format, args...))
}
