package httpx

import (
	"errors"
	"net/http"
	"strings"

	"github.com/aussiebroadwan/printq/pkg/jwtx"
	"github.com/aussiebroadwan/printq/pkg/slogx"
)

// Authenticate verifies the bearer token on every request and stores the
// claims in the request context. Responses follow RFC 6750:
//
//   - missing or rejected token: 401 invalid_token
//   - accepted but lacking the requirement: 403 insufficient_scope
//   - issuer keys unavailable: 503
func Authenticate(v jwtx.Verifier, req jwtx.Requirement) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			log := slogx.FromContext(ctx)

			raw, ok := bearerToken(r)
			if !ok {
				writeBearerError(w, "missing bearer token")
				return
			}

			claims, err := v.Verify(ctx, raw, req)
			switch {
			case err == nil:
			case errors.Is(err, jwtx.ErrKeyFetch):
				log.Error("jwks fetch failed", "err", err)
				WriteError(w, http.StatusServiceUnavailable, "temporarily_unavailable", "issuer keys unavailable")
				return
			case errors.Is(err, jwtx.ErrMissingScope), errors.Is(err, jwtx.ErrMissingRole):
				log.Warn("token lacks requirement", "err", err)
				writeInsufficientScope(w, req)
				return
			default:
				log.Warn("jwt verify failed", "err", err)
				writeBearerError(w, "token verification failed")
				return
			}

			if claims.Subject == "" {
				log.Warn("token has no subject")
				writeBearerError(w, "token has no subject")
				return
			}

			ctx = slogx.WithAttrs(WithClaims(ctx, claims), "sub", claims.Subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	scheme, tok, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	tok = strings.TrimSpace(tok)
	return tok, tok != ""
}

func writeBearerError(w http.ResponseWriter, desc string) {
	w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token", error_description="`+desc+`"`)
	WriteError(w, http.StatusUnauthorized, "invalid_token", desc)
}

func writeInsufficientScope(w http.ResponseWriter, req jwtx.Requirement) {
	need := strings.TrimSpace(req.Scope + " " + req.Role)
	w.Header().Set("WWW-Authenticate", `Bearer error="insufficient_scope", scope="`+need+`"`)
	WriteError(w, http.StatusForbidden, "insufficient_scope", "token lacks "+need)
}
