package web

import (
	"fmt"
	"net"
	"strings"
)

// CheckSSRF resolves the host to IP addresses and blocks private/internal
// ranges. Applied to the initial host and again on every redirect target.
func CheckSSRF(host string) error {
	ips, err := net.LookupHost(host)
	if err != nil {
		return fmt.Errorf("DNS resolution failed for %q: %w", host, err)
	}

	for _, ipStr := range ips {
		ip := net.ParseIP(ipStr)
		if ip == nil {
			return fmt.Errorf("invalid IP %q for host %q", ipStr, host)
		}
		if IsPrivateIP(ip) {
			return fmt.Errorf("SSRF blocked: host %q resolves to private IP %s", host, ipStr)
		}
	}

	return nil
}

// IsPrivateIP checks if an IP is in a private, loopback, or link-local range.
func IsPrivateIP(ip net.IP) bool {
	if ip.IsLoopback() {
		return true
	}
	if ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() {
		return true
	}
	if ip.IsUnspecified() {
		return true
	}

	for _, network := range []string{
		"10.0.0.0/8",
		"172.16.0.0/12",
		"192.168.0.0/16",
		"169.254.0.0/16",
	} {
		_, cidr, _ := net.ParseCIDR(network)
		if cidr != nil && cidr.Contains(ip) {
			return true
		}
	}

	// Private IPv6 (fc00::/7).
	if ip6 := ip.To16(); ip6 != nil && ip.To4() == nil && ip6[0]&0xfe == 0xfc {
		return true
	}

	return false
}

// IsDomainAllowed checks the host against the allowlist. An empty allowlist
// means any public host: this is a general-purpose fetch gateway, and the
// private-IP checks still apply unconditionally.
func IsDomainAllowed(host string, allowedDomains []string) bool {
	if len(allowedDomains) == 0 {
		return true
	}
	host = strings.ToLower(host)
	for _, d := range allowedDomains {
		d = strings.ToLower(d)
		if d == host || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}
