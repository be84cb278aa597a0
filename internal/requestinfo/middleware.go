// internal/requestinfo/middleware.go
//
// HTTP middleware that attaches *RequestInfo to each request.
//
/*
Context
--------
Mounted after chi's RealIP middleware, so r.RemoteAddr already holds the
left-most forwarded address when the service sits behind a proxy.  The
audit dispatcher reads the struct back when it stamps events.

Notes
-----
  • Look-ups are read-only, so the middleware is safe under concurrency.
  • GeoIP is skipped entirely when no database was configured.
*/
package requestinfo

import (
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/yanizio/metastore/internal/ua"
)

// Enrich wraps an http.Handler, attaches *RequestInfo, and forwards.
func Enrich(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		country, city := lookupGeo(ip)

		info := &RequestInfo{
			CountryISO: country,
			City:       city,
			UA:         ua.Parse(r.UserAgent()),
			Timestamp:  time.Now().UTC(),
		}
		if ip != nil {
			info.ClientIP = ip.String()
		}

		zap.S().Debugw("request info",
			"ip", info.ClientIP,
			"country", info.CountryISO,
			"browser", info.UA.Browser,
			"path", r.URL.Path,
		)

		next.ServeHTTP(w, r.WithContext(WithInfo(r.Context(), info)))
	})
}

// clientIP parses r.RemoteAddr ("ip:port" or a bare ip after RealIP).
func clientIP(r *http.Request) net.IP {
	addr := strings.TrimSpace(r.RemoteAddr)
	if host, _, err := net.SplitHostPort(addr); err == nil {
		addr = host
	}
	return net.ParseIP(addr)
}
