package httpx

import (
	"net/http"

	"github.com/klauspost/compress/gzhttp"
)

// Compress gzips responses larger than minSize. PDFs are already
// compressed and are passed through untouched.
func Compress(minSize int) (Middleware, error) {
	wrap, err := gzhttp.NewWrapper(
		gzhttp.MinSize(minSize),
		gzhttp.ExceptContentTypes([]string{"application/pdf"}),
	)
	if err != nil {
		return nil, err
	}
	return func(next http.Handler) http.Handler {
		return wrap(next)
	}, nil
}
