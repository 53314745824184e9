package validation

import (
	"net"
	"strings"

	"wikimod/internal/models"
)

// IsPrivateIP checks if an IP address is in a private/reserved range.
// Used to tell reverse proxies apart from real clients.
func IsPrivateIP(ip net.IP) bool {
	if ip == nil {
		return false
	}

	// Check for loopback
	if ip.IsLoopback() {
		return true
	}

	// Check for link-local
	if ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() {
		return true
	}

	// Check for private ranges
	if ip.IsPrivate() {
		return true
	}

	// Check for unspecified (0.0.0.0 or ::)
	return ip.IsUnspecified()
}

// ClientIP returns the address of the real client. When the peer is a private
// proxy, the right-most public address in X-Forwarded-For is used instead.
func ClientIP(peer, xff string) string {
	peerIP := net.ParseIP(strings.TrimSpace(peer))
	if peerIP == nil || !IsPrivateIP(peerIP) || xff == "" {
		return strings.TrimSpace(peer)
	}

	hops := strings.Split(xff, ",")
	for i := len(hops) - 1; i >= 0; i-- {
		ip := net.ParseIP(strings.TrimSpace(hops[i]))
		if ip != nil && !IsPrivateIP(ip) {
			return ip.String()
		}
	}
	return peerIP.String()
}

// NewOrigin builds the origin recorded with a submitted change. The
// X-Forwarded-For and User-Agent headers are kept verbatim for audit tools.
func NewOrigin(peer, xff, userAgent string) models.Origin {
	return models.Origin{
		IP:        ClientIP(peer, xff),
		XFF:       xff,
		UserAgent: userAgent,
	}
}
