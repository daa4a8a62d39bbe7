package http

import (
	"net"
	"net/http"
	"strings"
)

const unknown = "unknown"

// IPConfig holds configuration for IP extraction and validation
type IPConfig struct {
	TrustedProxies []string // CIDR ranges of trusted proxies
}

// ExtractClientIP extracts the real client IP address from the request.
// Forwarding headers are honoured only when the connection comes from a
// trusted proxy, otherwise any client could pick its own address.
//
// Order for trusted proxies:
// 1. CF-Connecting-IP
// 2. first valid entry of X-Forwarded-For
// 3. X-Real-IP
// 4. RemoteAddr
func ExtractClientIP(r *http.Request, config *IPConfig) string {
	remoteIP := getRemoteAddr(r)

	if config != nil && isTrustedProxy(remoteIP, config.TrustedProxies) {
		if cf := strings.TrimSpace(r.Header.Get("CF-Connecting-IP")); isValidIP(cf) {
			return cf
		}

		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			for _, ip := range strings.Split(xff, ",") {
				ip = strings.TrimSpace(ip)
				if isValidIP(ip) {
					return ip
				}
			}
		}

		if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); isValidIP(xri) {
			return xri
		}
	}

	return remoteIP
}

// ExtractUserAgent returns the User-Agent header or "unknown"
func ExtractUserAgent(r *http.Request) string {
	if ua := strings.TrimSpace(r.UserAgent()); ua != "" {
		return ua
	}
	return unknown
}

// ExtractDeviceFingerprint returns the optional X-Device-Fingerprint header
func ExtractDeviceFingerprint(r *http.Request) *string {
	fp := strings.TrimSpace(r.Header.Get("X-Device-Fingerprint"))
	if fp == "" {
		return nil
	}
	return &fp
}

// getRemoteAddr extracts the IP address from RemoteAddr (removing port if present)
func getRemoteAddr(r *http.Request) string {
	if r.RemoteAddr != "" {
		if ip, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
			return ip
		}
		return r.RemoteAddr
	}
	return unknown
}

// isTrustedProxy checks if an IP address is within any of the trusted proxy CIDR ranges
func isTrustedProxy(ip string, trustedProxies []string) bool {
	if len(trustedProxies) == 0 {
		return false
	}

	clientIP := net.ParseIP(ip)
	if clientIP == nil {
		return false
	}

	for _, cidr := range trustedProxies {
		_, ipNet, err := net.ParseCIDR(cidr)
		if err != nil {
			continue
		}
		if ipNet.Contains(clientIP) {
			return true
		}
	}

	return false
}

func isValidIP(ip string) bool {
	return ip != "" && net.ParseIP(ip) != nil
}
