package http

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/aussiebroadwan/printq/internal/report/domain"
	"github.com/aussiebroadwan/printq/internal/report/templates"
	"github.com/aussiebroadwan/printq/pkg/cryptox"
	"github.com/aussiebroadwan/printq/pkg/httpx"
	"github.com/aussiebroadwan/printq/pkg/reportsdk"
)

// Link lifetimes in seconds.
const (
	DefaultLinkTTL = 30
	MinLinkTTL     = 5
	MaxLinkTTL     = 300
)

// LinkHandler issues signed submission links bound to the template and the
// caller's subject.
type LinkHandler struct {
	Links *cryptox.LinkSigner
}

// ServeHTTP handles GET /link/{template}?ttl=N.
//
// The returned URL is relative to the edge. It must be posted to by a
// caller presenting a token with the same subject before it expires.
func (h *LinkHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("template")
	if err := templates.ValidateName(name); err != nil {
		writeError(w, r, err)
		return
	}

	ttl, err := parseTTL(r.URL.Query().Get("ttl"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	sub := httpx.SubjectFromContext(r.Context())
	sig, exp := h.Links.Issue(name, sub, time.Duration(ttl)*time.Second)

	httpx.WriteJSON(w, http.StatusOK, reportsdk.LinkResponse{
		URL:     "/generate-secure/" + name + "?t=" + sig + "&exp=" + strconv.FormatInt(exp, 10),
		Expires: exp,
	})
}

func parseTTL(raw string) (int, error) {
	if raw == "" {
		return DefaultLinkTTL, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < MinLinkTTL || n > MaxLinkTTL {
		return 0, fmt.Errorf("%w: ttl must be an integer between %d and %d", domain.ErrValidation, MinLinkTTL, MaxLinkTTL)
	}
	return n, nil
}
