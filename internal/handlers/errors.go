package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/BradenHooton/posgate/internal/models"
	"github.com/BradenHooton/posgate/internal/services"
	pkgauth "github.com/BradenHooton/posgate/pkg/auth"
	pkghttp "github.com/BradenHooton/posgate/pkg/http"
)

// writeServiceError maps a service error onto the response envelope.
// Anything undocumented becomes a 500 without detail.
func writeServiceError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	var authErr *models.AuthError
	if errors.As(err, &authErr) {
		if authErr.Data != nil {
			pkghttp.WriteErrorWithData(w, authErr.Status, authErr.Code, authErr.Message, authErr.Data)
			return
		}
		pkghttp.WriteError(w, authErr.Status, authErr.Code, authErr.Message)
		return
	}

	var pwErr *pkgauth.PasswordValidationError
	if errors.As(err, &pwErr) {
		fields := make([]pkghttp.FieldError, 0, len(pwErr.Errors))
		for _, msg := range pwErr.Errors {
			fields = append(fields, pkghttp.FieldError{Field: "new_password", Message: msg})
		}
		pkghttp.WriteValidationError(w, "Password does not meet requirements", fields)
		return
	}

	if errors.Is(err, services.ErrPasswordMismatch) {
		pkghttp.WriteValidationError(w, "Invalid request data", []pkghttp.FieldError{
			{Field: "confirm_password", Message: "Passwords don't match"},
		})
		return
	}

	if !errors.Is(err, models.ErrInternalServer) {
		logger.Error("unhandled service error",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Any("error", err))
	}
	pkghttp.WriteInternalError(w, "Internal server error")
}

// requestInfo collects the client attributes recorded with every auth event
func requestInfo(r *http.Request, ipConfig *pkghttp.IPConfig) models.RequestInfo {
	return models.RequestInfo{
		IPAddress:         pkghttp.ExtractClientIP(r, ipConfig),
		UserAgent:         pkghttp.ExtractUserAgent(r),
		DeviceFingerprint: pkghttp.ExtractDeviceFingerprint(r),
	}
}
