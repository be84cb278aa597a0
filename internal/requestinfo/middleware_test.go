package requestinfo

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnrich(t *testing.T) {
	cases := map[string]string{
		"203.0.113.7:51234": "203.0.113.7",
		"203.0.113.7":       "203.0.113.7",
		"[2001:db8::1]:443": "2001:db8::1",
		"not-an-ip":         "",
	}
	for remote, want := range cases {
		var got *RequestInfo
		h := Enrich(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
			got = FromContext(r.Context())
		}))

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = remote
		req.Header.Set("User-Agent", "python-openstackclient")
		h.ServeHTTP(httptest.NewRecorder(), req)

		require.NotNil(t, got, remote)
		assert.Equal(t, want, got.ClientIP, remote)
		assert.Empty(t, got.CountryISO, "no GeoIP database configured")
		assert.Equal(t, "python-openstackclient", got.UA.Raw)
		assert.False(t, got.Timestamp.IsZero())
	}
}

func TestInitGeo(t *testing.T) {
	assert.NoError(t, InitGeo(""))
	assert.Error(t, InitGeo("/nonexistent/GeoLite2-City.mmdb"))
}
