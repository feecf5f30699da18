package middleware

import (
	"net"
	"net/http"
	"strings"
	"time"
)

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func newResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{w, http.StatusOK}
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Logger logs HTTP requests with the request ID attached
func (m *Middleware) Logger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := newResponseWriter(w)

		next.ServeHTTP(wrapped, r)

		log := m.log
		if id := GetRequestID(r.Context()); id != "" {
			log = log.WithRequestID(id)
		}
		log.HTTPRequest(r.Method, r.URL.Path, wrapped.statusCode, time.Since(start), m.ClientIP(r))
	})
}

// ClientIP returns the address the request came from. X-Forwarded-For is
// read only when the peer is a trusted proxy, and then the nearest hop that
// is not itself a trusted proxy wins.
func (m *Middleware) ClientIP(r *http.Request) string {
	peer := remoteHost(r.RemoteAddr)
	forwarded := r.Header.Get("X-Forwarded-For")
	if forwarded == "" || !m.isTrusted(peer) {
		return peer
	}

	hops := strings.Split(forwarded, ",")
	for i := len(hops) - 1; i >= 0; i-- {
		hop := strings.TrimSpace(hops[i])
		if net.ParseIP(hop) == nil {
			break
		}
		if !m.isTrusted(hop) {
			return hop
		}
		peer = hop
	}
	return peer
}

func (m *Middleware) isTrusted(addr string) bool {
	ip := net.ParseIP(addr)
	if ip == nil {
		return false
	}
	for _, network := range m.trusted {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}

func remoteHost(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}
