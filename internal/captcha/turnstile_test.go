package captcha

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestVerifier_Verify(t *testing.T) {
	logger := zap.NewNop()

	t.Run("success", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))
			require.NoError(t, r.ParseForm())
			assert.Equal(t, "site-secret", r.PostForm.Get("secret"))
			assert.Equal(t, "client-token", r.PostForm.Get("response"))
			w.Write([]byte(`{"success": true}`))
		}))
		defer server.Close()

		v := NewVerifier(server.URL, time.Second, nil, logger)
		ok, err := v.Verify(context.Background(), "client-token", "site-secret")
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("rejected", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"success": false, "error-codes": ["invalid-input-response"]}`))
		}))
		defer server.Close()

		v := NewVerifier(server.URL, time.Second, nil, logger)
		ok, err := v.Verify(context.Background(), "bad", "site-secret")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("undecodable body is an error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
			w.Write([]byte("<html>bad gateway</html>"))
		}))
		defer server.Close()

		v := NewVerifier(server.URL, time.Second, nil, logger)
		ok, err := v.Verify(context.Background(), "tok", "site-secret")
		require.Error(t, err)
		assert.False(t, ok)
		assert.Contains(t, err.Error(), "502")
	})

	t.Run("connection error", func(t *testing.T) {
		v := NewVerifier("http://127.0.0.1:1", time.Second, nil, logger)
		_, err := v.Verify(context.Background(), "tok", "site-secret")
		require.Error(t, err)
	})
}
