package http

import (
	"errors"
	"net/http"

	"github.com/aussiebroadwan/printq/internal/report/domain"
	"github.com/aussiebroadwan/printq/pkg/cryptox"
	"github.com/aussiebroadwan/printq/pkg/reportsdk"
	"github.com/aussiebroadwan/printq/pkg/slogx"
)

// writeError maps err onto the edge's error responses. Validation and
// not-found descriptions are passed through to the caller; everything at
// 5xx is logged and answered with a generic description.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	log := slogx.FromContext(r.Context())

	switch {
	case errors.Is(err, domain.ErrValidation):
		reportsdk.ErrInvalidRequest.WithDescription(err.Error()).WriteError(w)
	case errors.Is(err, domain.ErrAuthentication):
		w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
		reportsdk.ErrInvalidToken.WriteError(w)
	case errors.Is(err, domain.ErrAuthorization):
		reportsdk.ErrInsufficientScope.WriteError(w)
	case errors.Is(err, domain.ErrLinkExpired), errors.Is(err, cryptox.ErrLinkExpired):
		reportsdk.ErrLinkExpired.WriteError(w)
	case errors.Is(err, domain.ErrLinkInvalid), errors.Is(err, cryptox.ErrLinkInvalid):
		reportsdk.ErrLinkInvalid.WriteError(w)
	case errors.Is(err, domain.ErrNotFound):
		reportsdk.ErrNotFound.WithDescription(err.Error()).WriteError(w)
	case errors.Is(err, domain.ErrTransientStore):
		log.Error("store unavailable", "err", err)
		reportsdk.ErrUnavailable.WriteError(w)
	case errors.Is(err, domain.ErrConfig):
		log.Error("template misconfigured", "err", err)
		reportsdk.ErrServerError.WithDescription("template misconfigured").WriteError(w)
	default:
		log.Error("request failed", "err", err)
		reportsdk.ErrServerError.WriteError(w)
	}
}
