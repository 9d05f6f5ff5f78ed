package http

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func realIPOf(t *testing.T, trusted []string, remoteAddr string, headers map[string]string) string {
	t.Helper()

	var got string
	h := RealIP(ParseTrustedProxies(trusted))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.RemoteAddr
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = remoteAddr
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	h.ServeHTTP(httptest.NewRecorder(), req)
	return got
}

func TestRealIP(t *testing.T) {
	proxies := []string{"10.0.0.0/8"}

	tests := []struct {
		name       string
		trusted    []string
		remoteAddr string
		headers    map[string]string
		want       string
	}{
		{
			name:       "untrusted peer keeps its address",
			trusted:    proxies,
			remoteAddr: "203.0.113.5:4000",
			headers:    map[string]string{"X-Forwarded-For": "198.51.100.1", "X-Real-IP": "198.51.100.2"},
			want:       "203.0.113.5:4000",
		},
		{
			name:       "no proxies configured",
			remoteAddr: "10.0.0.2:4000",
			headers:    map[string]string{"X-Forwarded-For": "198.51.100.1"},
			want:       "10.0.0.2:4000",
		},
		{
			name:       "trusted proxy forwards the client",
			trusted:    proxies,
			remoteAddr: "10.0.0.2:4000",
			headers:    map[string]string{"X-Forwarded-For": "198.51.100.1"},
			want:       "198.51.100.1",
		},
		{
			name:       "client-supplied hops left of the real client are ignored",
			trusted:    proxies,
			remoteAddr: "10.0.0.2:4000",
			headers:    map[string]string{"X-Forwarded-For": "1.2.3.4, 198.51.100.1, 10.0.0.7"},
			want:       "198.51.100.1",
		},
		{
			name:       "X-Real-IP from a trusted proxy",
			trusted:    proxies,
			remoteAddr: "10.0.0.2:4000",
			headers:    map[string]string{"X-Real-IP": "198.51.100.3"},
			want:       "198.51.100.3",
		},
		{
			name:       "garbage headers are skipped",
			trusted:    proxies,
			remoteAddr: "10.0.0.2:4000",
			headers:    map[string]string{"X-Forwarded-For": "not-an-ip"},
			want:       "10.0.0.2:4000",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, realIPOf(t, tt.trusted, tt.remoteAddr, tt.headers))
		})
	}
}

func TestParseTrustedProxies_SkipsInvalid(t *testing.T) {
	prefixes := ParseTrustedProxies([]string{"10.0.0.0/8", "nope", "192.168.1.7/16"})
	if assert.Len(t, prefixes, 2) {
		assert.Equal(t, "10.0.0.0/8", prefixes[0].String())
		assert.Equal(t, "192.168.0.0/16", prefixes[1].String())
	}
}
