package middleware

import (
	"net/http"

	"github.com/BradenHooton/posgate/internal/models"
	pkghttp "github.com/BradenHooton/posgate/pkg/http"
)

// BodyLimit rejects declared bodies over maxBytes with 413 and caps the
// reader for chunked bodies
func BodyLimit(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > maxBytes {
				pkghttp.WriteError(w, http.StatusRequestEntityTooLarge, models.CodePayloadTooLarge, "Request body is too large")
				return
			}
			if r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			}
			next.ServeHTTP(w, r)
		})
	}
}
