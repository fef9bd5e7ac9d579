package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExtractClientIP(t *testing.T) {
	tests := []struct {
		name       string
		xff        string
		realIP     string
		remoteAddr string
		expected   string
	}{
		{name: "single forwarded hop", xff: "192.168.1.1", remoteAddr: "10.0.0.1:1234", expected: "192.168.1.1"},
		{name: "first of many hops", xff: "203.0.113.1, 198.51.100.1", expected: "203.0.113.1"},
		{name: "hops with padding", xff: " 203.0.113.1  ,  198.51.100.1", expected: "203.0.113.1"},
		{name: "forwarded beats real ip", xff: "203.0.113.1", realIP: "192.168.1.100", expected: "203.0.113.1"},
		{name: "garbage forwarded falls through", xff: "unknown", realIP: "192.168.1.100", expected: "192.168.1.100"},
		{name: "real ip", realIP: "192.168.1.100", expected: "192.168.1.100"},
		{name: "IPv4 remote with port", remoteAddr: "192.168.1.1:54321", expected: "192.168.1.1"},
		{name: "IPv6 remote with port", remoteAddr: "[2001:db8::1]:54321", expected: "2001:db8::1"},
		{name: "mapped IPv4 remote", remoteAddr: "[::ffff:192.0.2.1]:80", expected: "192.0.2.1"},
		{name: "remote without port", remoteAddr: "192.168.1.1", expected: "192.168.1.1"},
		{name: "nothing usable", remoteAddr: "pipe", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remoteAddr
			if tt.xff != "" {
				r.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.realIP != "" {
				r.Header.Set("X-Real-IP", tt.realIP)
			}

			require.Equal(t, tt.expected, ExtractClientIP(r))
		})
	}
}

func TestClientIPMiddleware(t *testing.T) {
	var capturedIP string
	handler := ClientIPMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		capturedIP = ClientIPFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/sos.v1.SOSService/Raise", nil)
	r.Header.Set("X-Forwarded-For", "203.0.113.1")

	handler.ServeHTTP(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "203.0.113.1", capturedIP)
}

func TestClientIPFromContext_missing(t *testing.T) {
	require.Empty(t, ClientIPFromContext(context.Background()))
}
