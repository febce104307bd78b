package cmd

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientGet(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/health":
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"degraded"}`))
		case "/api/rooms":
			_, _ = w.Write([]byte(`{"rooms":[]}`))
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"message":"Not found"}`))
		}
	}))
	defer srv.Close()

	client := NewClient(srv.URL + "/")

	body, code, err := client.Get("/api/rooms")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"rooms":[]}`, string(body))

	body, code, err = client.Get("/health", http.StatusServiceUnavailable)
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Contains(t, string(body), "degraded")

	_, code, err = client.Get("/missing")
	require.Error(t, err)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Contains(t, err.Error(), "API error (404): Not found")
}

func TestSocketURL(t *testing.T) {
	tests := []struct {
		base string
		path string
		want string
	}{
		{"http://localhost:3000", "/socket", "ws://localhost:3000/socket"},
		{"https://example.com/", "/socket", "wss://example.com/socket"},
		{"http://example.com/prefix", "/ws", "ws://example.com/prefix/ws"},
	}

	oldURL, oldPath := serverURL, socketPath
	t.Cleanup(func() { serverURL, socketPath = oldURL, oldPath })

	for _, tt := range tests {
		t.Run(tt.base, func(t *testing.T) {
			serverURL, socketPath = tt.base, tt.path
			got, err := socketURL()
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
