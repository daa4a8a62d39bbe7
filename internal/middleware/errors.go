package middleware

import (
	"net/http"

	"github.com/BradenHooton/posgate/internal/models"
	pkghttp "github.com/BradenHooton/posgate/pkg/http"
)

// NotFound answers unknown routes with the standard envelope
func NotFound(w http.ResponseWriter, r *http.Request) {
	pkghttp.WriteError(w, http.StatusNotFound, models.CodeNotFound, "The requested resource was not found")
}

// MethodNotAllowed answers known routes called with the wrong method
func MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	pkghttp.WriteError(w, http.StatusMethodNotAllowed, models.CodeMethodNotAllowed, "Method not allowed")
}
