package utilities

import (
	"net"
	"net/http"
	"strings"
)

// ClientOrigin returns the caller address and user agent of an HTTP request.
// X-Forwarded-For wins over the peer address.
func ClientOrigin(r *http.Request) (ipAddress, userAgent string) {
	ipAddress = r.Header.Get("X-Real-IP")
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		ipAddress = firstForwarded(forwarded)
	}
	if ipAddress == "" {
		ipAddress = hostOnly(r.RemoteAddr)
	}

	return ipAddress, r.UserAgent()
}

func firstForwarded(header string) string {
	first, _, _ := strings.Cut(header, ",")
	return strings.TrimSpace(first)
}

func hostOnly(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}
