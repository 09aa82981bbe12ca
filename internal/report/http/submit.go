package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/aussiebroadwan/printq/internal/report/domain"
	"github.com/aussiebroadwan/printq/internal/report/service"
	"github.com/aussiebroadwan/printq/pkg/cryptox"
	"github.com/aussiebroadwan/printq/pkg/httpx"
	"github.com/aussiebroadwan/printq/pkg/reportsdk"
)

// MaxBodyBytes bounds a submit body.
const MaxBodyBytes = 1 << 20

// Dispatcher is satisfied by *service.JobDispatcher.
type Dispatcher interface {
	Dispatch(ctx context.Context, template string, params map[string]any) (domain.DispatchResult, error)
}

// SubmitHandler accepts a JSON object of render parameters and dispatches
// it. With Links set, the request must carry a link issued by LinkHandler
// for the same template and subject; without it this is the legacy direct
// submit.
type SubmitHandler struct {
	Dispatcher Dispatcher
	Links      *cryptox.LinkSigner
}

// ServeHTTP handles POST /generate-secure/{template} and
// POST /generate-pdf/{template}.
func (h *SubmitHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	name := r.PathValue("template")

	if h.Links != nil {
		if err := h.verifyLink(r, name); err != nil {
			writeError(w, r, err)
			return
		}
	}

	params, err := readParams(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	res, err := h.Dispatcher.Dispatch(ctx, name, params)
	if err != nil {
		writeError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, reportsdk.DispatchResponse{
		Status:     res.Status,
		ID:         res.ID,
		AgeSeconds: res.AgeSeconds,
	})
}

func (h *SubmitHandler) verifyLink(r *http.Request, name string) error {
	q := r.URL.Query()
	sig := q.Get("t")
	exp, err := strconv.ParseInt(q.Get("exp"), 10, 64)
	if sig == "" || err != nil {
		return fmt.Errorf("%w: missing or malformed link parameters", domain.ErrLinkInvalid)
	}

	sub := httpx.SubjectFromContext(r.Context())
	if err := h.Links.Verify(name, sub, exp, sig); err != nil {
		if errors.Is(err, cryptox.ErrLinkExpired) {
			return fmt.Errorf("%w: %w", domain.ErrLinkExpired, err)
		}
		return fmt.Errorf("%w: %w", domain.ErrLinkInvalid, err)
	}
	return nil
}

func readParams(w http.ResponseWriter, r *http.Request) (map[string]any, error) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return nil, fmt.Errorf("%w: body exceeds %d bytes", domain.ErrValidation, tooBig.Limit)
		}
		return nil, fmt.Errorf("%w: read body: %w", domain.ErrValidation, err)
	}
	return service.DecodeParams(data)
}
