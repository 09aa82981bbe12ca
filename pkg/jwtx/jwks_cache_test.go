package jwtx

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestJWKSCacheServesFromCacheWithinTTL(t *testing.T) {
	srv := newJWKSServer(t, rsaSigner(t, "k1"))

	now := time.Unix(1_700_000_000, 0)
	cache := NewJWKSCache(WithTTL(time.Hour), WithClock(func() time.Time { return now }))

	ks, err := cache.Keys(context.Background(), srv.URL)
	require.NoError(t, err)
	require.Equal(t, 1, ks.Len())

	_, err = cache.Keys(context.Background(), srv.URL)
	require.NoError(t, err)
	require.EqualValues(t, 1, srv.hits.Load())

	now = now.Add(2 * time.Hour)
	_, err = cache.Keys(context.Background(), srv.URL)
	require.NoError(t, err)
	require.EqualValues(t, 2, srv.hits.Load())
}

func TestJWKSCacheInvalidate(t *testing.T) {
	srv := newJWKSServer(t, edSigner(t, "k1"))
	cache := NewJWKSCache()

	_, err := cache.Keys(context.Background(), srv.URL)
	require.NoError(t, err)
	cache.Invalidate(srv.URL)
	_, err = cache.Keys(context.Background(), srv.URL)
	require.NoError(t, err)
	require.EqualValues(t, 2, srv.hits.Load())
}

func TestJWKSCacheFetchErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/down":
			w.WriteHeader(http.StatusServiceUnavailable)
		case "/garbage":
			_, _ = w.Write([]byte("not json"))
		default:
			_, _ = w.Write([]byte(`{"keys":[]}`))
		}
	}))
	defer srv.Close()

	cache := NewJWKSCache()
	for _, path := range []string{"/down", "/garbage", "/empty"} {
		_, err := cache.Keys(context.Background(), srv.URL+path)
		require.ErrorIs(t, err, ErrKeyFetch, path)
	}
}
