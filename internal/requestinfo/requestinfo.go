//
//  internal/requestinfo/requestinfo.go
//
//  Per-request caller facts recorded on audit events: client address,
//  best-effort geolocation, user-agent summary, and arrival time.  The
//  struct is inert and safe to log or JSON-encode.
//
//  Dependencies
//  • internal/ua                        (uasurfer wrapper)
//  • github.com/oschwald/geoip2-golang  (optional MaxMind lookup)
//

package requestinfo

import (
	"context"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/oschwald/geoip2-golang"

	"github.com/yanizio/metastore/internal/ua"
)

// RequestInfo is attached to the request context by Enrich.
type RequestInfo struct {
	ClientIP   string    `json:"client_ip,omitempty"`
	CountryISO string    `json:"country,omitempty"`
	City       string    `json:"city,omitempty"`
	UA         ua.Info   `json:"user_agent"`
	Timestamp  time.Time `json:"timestamp"`
}

// geoReader is swapped atomically so InitGeo may run after the server
// starts.  Nil disables lookups.
var geoReader atomic.Pointer[geoip2.Reader]

// InitGeo opens a GeoLite2-City database.  An empty path disables
// geolocation.
func InitGeo(dbPath string) error {
	if dbPath == "" {
		return nil
	}
	r, err := geoip2.Open(dbPath)
	if err != nil {
		return fmt.Errorf("requestinfo: open GeoLite2 DB: %w", err)
	}
	if old := geoReader.Swap(r); old != nil {
		_ = old.Close()
	}
	return nil
}

type ctxKey struct{} // unexported, collision-proof

// WithInfo stores info on ctx.
func WithInfo(ctx context.Context, info *RequestInfo) context.Context {
	return context.WithValue(ctx, ctxKey{}, info)
}

// FromContext returns the pointer previously stored by Enrich, or nil.
func FromContext(ctx context.Context) *RequestInfo {
	v, _ := ctx.Value(ctxKey{}).(*RequestInfo)
	return v
}

// lookupGeo returns best-effort country and city.
func lookupGeo(ip net.IP) (country, city string) {
	r := geoReader.Load()
	if r == nil || ip == nil {
		return "", ""
	}
	rec, err := r.City(ip)
	if err != nil {
		return "", ""
	}
	return rec.Country.IsoCode, rec.City.Names["en"]
}
