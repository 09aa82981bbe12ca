package http

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/aussiebroadwan/printq/internal/report/domain"
	"github.com/aussiebroadwan/printq/internal/report/service"
	"github.com/aussiebroadwan/printq/internal/report/store"
	"github.com/aussiebroadwan/printq/pkg/slogx"
)

// ArtifactHandler streams rendered PDFs from the output bucket.
type ArtifactHandler struct {
	Output store.Bucket
}

// ServeHTTP handles GET /pdf/{id}. A job that is still queued or rendering
// answers 404 just like an unknown id.
func (h *ArtifactHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")
	if !service.IsFingerprint(id) {
		writeError(w, r, fmt.Errorf("%w: id must be a 64 character hex fingerprint", domain.ErrValidation))
		return
	}

	key := domain.ArtifactKey(id)
	rc, info, err := h.Output.Open(ctx, key)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, r, fmt.Errorf("%w: %s", domain.ErrNotFound, key))
			return
		}
		writeError(w, r, fmt.Errorf("%w: open artifact: %w", domain.ErrTransientStore, err))
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `inline; filename="`+key+`"`)
	w.Header().Set("Cache-Control", "private")
	if info.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(info.Size, 10))
	}
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, rc); err != nil {
		slogx.FromContext(ctx).Warn("artifact stream aborted", "payload_id", id, "err", err)
	}
}
