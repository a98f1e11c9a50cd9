package jwksserver

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/klog/v2"
	"k8s.io/klog/v2/ktesting"

	"github.com/jetstack/jwks-resolver/pkg/testutil"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "jwks.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDocument(t *testing.T) {
	log := ktesting.NewLogger(t, ktesting.DefaultConfig)
	ctx := klog.NewContext(t.Context(), log)
	key := testutil.NewRSAKey(t)
	doc := testutil.JWKS{Keys: []testutil.JWK{
		testutil.RSAJWK("A", &key.PublicKey),
		{Kty: "RSA", Kid: "no-material"},
	}}.JSON(t)

	t.Run("valid", func(t *testing.T) {
		data, keys, err := LoadDocument(ctx, writeFile(t, doc))
		require.NoError(t, err)
		assert.Equal(t, doc, string(data))
		assert.Equal(t, 1, keys)
	})

	t.Run("not a JWKS document", func(t *testing.T) {
		_, _, err := LoadDocument(ctx, writeFile(t, `{"stuff": "other stuff"}`))
		require.Error(t, err)
		assert.Contains(t, err.Error(), `missing "keys" field`)
	})

	t.Run("missing file", func(t *testing.T) {
		_, _, err := LoadDocument(ctx, filepath.Join(t.TempDir(), "missing.json"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to read JWKS file")
	})
}

func get(t *testing.T, url, authorization string) (*http.Response, string) {
	t.Helper()
	req, err := http.NewRequestWithContext(t.Context(), http.MethodGet, url, nil)
	require.NoError(t, err)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func TestServer_Handler(t *testing.T) {
	doc := `{"keys": []}`

	t.Run("serves the document", func(t *testing.T) {
		server := httptest.NewServer(New(Options{Compact: true}, []byte(doc)).Handler())
		defer server.Close()

		resp, body := get(t, server.URL+JWKSPath, "")
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
		assert.Equal(t, doc, body)
	})

	t.Run("rejects other methods", func(t *testing.T) {
		server := httptest.NewServer(New(Options{Compact: true}, []byte(doc)).Handler())
		defer server.Close()

		resp, err := http.Post(server.URL+JWKSPath, "application/json", strings.NewReader("{}"))
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	})

	t.Run("token", func(t *testing.T) {
		server := httptest.NewServer(New(Options{AllowedToken: "secret", Compact: true}, []byte(doc)).Handler())
		defer server.Close()

		tests := []struct {
			authorization string
			status        int
		}{
			{authorization: "", status: http.StatusBadRequest},
			{authorization: "Basic secret", status: http.StatusUnauthorized},
			{authorization: "Bearer wrong", status: http.StatusUnauthorized},
			{authorization: "Bearer secret", status: http.StatusOK},
		}
		for _, test := range tests {
			resp, body := get(t, server.URL+JWKSPath, test.authorization)
			assert.Equal(t, test.status, resp.StatusCode, "authorization %q", test.authorization)
			if test.status != http.StatusOK {
				assert.Contains(t, body, `"error"`)
				assert.Equal(t, `Bearer realm="JWKS"`, resp.Header.Get("WWW-Authenticate"))
			}
		}
	})

	t.Run("metrics", func(t *testing.T) {
		server := httptest.NewServer(New(Options{Compact: true}, []byte(doc)).Handler())
		defer server.Close()

		get(t, server.URL+JWKSPath, "")
		get(t, server.URL+JWKSPath, "")

		resp, body := get(t, server.URL+MetricsPath, "")
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Contains(t, body, `jwks_resolver_server_requests_total{code="200"} 2`)
	})
}

func TestServer_ListenAndServe(t *testing.T) {
	log := ktesting.NewLogger(t, ktesting.DefaultConfig)
	ctx, cancel := context.WithCancel(klog.NewContext(t.Context(), log))

	s := New(Options{Listen: "127.0.0.1:0", Compact: true}, []byte(`{"keys": []}`))

	done := make(chan error, 1)
	go func() { done <- s.ListenAndServe(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("server did not shut down")
	}
}
