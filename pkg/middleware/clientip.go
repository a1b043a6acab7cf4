package middleware

import (
	"net"
	"net/http"
)

// ClientIP returns the host part of r.RemoteAddr. Mount chi's RealIP ahead
// of any middleware using it when running behind a trusted proxy.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
