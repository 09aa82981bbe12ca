package httpx_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aussiebroadwan/printq/pkg/httpx"
	"github.com/aussiebroadwan/printq/pkg/jwtx"
	"github.com/stretchr/testify/require"
)

type stubVerifier struct {
	claims jwtx.Claims
	err    error
	gotReq jwtx.Requirement
}

func (s *stubVerifier) Verify(_ context.Context, token string, req jwtx.Requirement) (jwtx.Claims, error) {
	s.gotReq = req
	if token != "good" {
		return jwtx.Claims{}, jwtx.ErrUntrusted
	}
	return s.claims, s.err
}

func TestAuthenticateRejectsEmptySubject(t *testing.T) {
	called := false
	next := http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true })
	h := httpx.Authenticate(&stubVerifier{}, jwtx.Requirement{})(next)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer good")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.False(t, called)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Contains(t, rec.Header().Get("WWW-Authenticate"), "invalid_token")
}

func TestAuthenticate(t *testing.T) {
	echoSub := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(httpx.SubjectFromContext(r.Context())))
	})

	ok := jwtx.Claims{}
	ok.Subject = "client-1"

	cases := []struct {
		name       string
		header     string
		verifyErr  error
		wantStatus int
		wantAuth   string
	}{
		{"no header", "", nil, http.StatusUnauthorized, "invalid_token"},
		{"wrong scheme", "Basic Zm9vOmJhcg==", nil, http.StatusUnauthorized, "invalid_token"},
		{"rejected", "Bearer bad", nil, http.StatusUnauthorized, "invalid_token"},
		{"missing scope", "Bearer good", fmt.Errorf("%w %q", jwtx.ErrMissingScope, "generate:pdf"), http.StatusForbidden, "insufficient_scope"},
		{"missing role", "Bearer good", jwtx.ErrMissingRole, http.StatusForbidden, "insufficient_scope"},
		{"jwks down", "Bearer good", fmt.Errorf("%w: boom", jwtx.ErrKeyFetch), http.StatusServiceUnavailable, ""},
		{"accepted", "bearer good", nil, http.StatusOK, ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			v := &stubVerifier{claims: ok, err: tc.verifyErr}
			h := httpx.Authenticate(v, jwtx.Requirement{Scope: "generate:pdf"})(echoSub)

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			require.Equal(t, tc.wantStatus, rec.Code)
			if tc.wantAuth != "" {
				require.Contains(t, rec.Header().Get("WWW-Authenticate"), tc.wantAuth)
			}
			if tc.wantStatus == http.StatusOK {
				require.Equal(t, "client-1", rec.Body.String())
				require.Equal(t, "generate:pdf", v.gotReq.Scope)
			}
		})
	}
}
