package challenge

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPVerifierSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "sek", r.Form.Get("secret"))
		assert.Equal(t, "tok", r.Form.Get("response"))
		assert.Equal(t, "203.0.113.5", r.Form.Get("remoteip"))
		w.Write([]byte(`{"success":true}`))
	}))
	defer srv.Close()

	v := NewHTTPVerifier(srv.URL, "sek")
	ok, err := v.Verify(context.Background(), "tok", "203.0.113.5")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestHTTPVerifierRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":false}`))
	}))
	defer srv.Close()

	v := NewHTTPVerifier(srv.URL, "sek")
	ok, err := v.Verify(context.Background(), "bad-token", "203.0.113.5")
	require.NoError(t, err)
	assert.False(t, ok, "a clean rejection is not an error")
}

func TestHTTPVerifierUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	v := NewHTTPVerifier(srv.URL, "sek")
	_, err := v.Verify(context.Background(), "tok", "203.0.113.5")
	assert.ErrorIs(t, err, ErrVerifierUnavailable)

	// Connection refused is unavailability too.
	srv.Close()
	_, err = v.Verify(context.Background(), "tok", "203.0.113.5")
	assert.ErrorIs(t, err, ErrVerifierUnavailable)
}
