package http

import (
	"encoding/json"
	"net/http"
	"time"
)

// FieldError describes one rejected request field
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Envelope is the body of every response the gateway generates itself.
// Message carries the machine-readable code; Error the human-readable text.
type Envelope struct {
	Success          bool         `json:"success"`
	Message          string       `json:"message"`
	Data             any          `json:"data,omitempty"`
	Error            string       `json:"error,omitempty"`
	ValidationErrors []FieldError `json:"validation_errors,omitempty"`
	Timestamp        string       `json:"timestamp"`
}

// now is replaced in tests
var now = time.Now

func timestamp() string {
	return now().UTC().Format(time.RFC3339Nano)
}

// WriteJSON writes an envelope with the given status code
func WriteJSON(w http.ResponseWriter, statusCode int, env Envelope) {
	if env.Timestamp == "" {
		env.Timestamp = timestamp()
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	// Encoding errors are not exposed to the client
	_ = json.NewEncoder(w).Encode(env)
}

// WriteSuccess writes a success envelope carrying data
func WriteSuccess(w http.ResponseWriter, statusCode int, code string, data any) {
	WriteJSON(w, statusCode, Envelope{
		Success: true,
		Message: code,
		Data:    data,
	})
}

// WriteError writes an error envelope with the given status code
func WriteError(w http.ResponseWriter, statusCode int, code, message string) {
	WriteJSON(w, statusCode, Envelope{
		Message: code,
		Error:   message,
	})
}

// WriteErrorWithData writes an error envelope that still carries a payload,
// such as the lock expiry on ACCOUNT_LOCKED
func WriteErrorWithData(w http.ResponseWriter, statusCode int, code, message string, data any) {
	WriteJSON(w, statusCode, Envelope{
		Message: code,
		Error:   message,
		Data:    data,
	})
}

// WriteValidationError writes a 400 VALIDATION_ERROR with field-level detail
func WriteValidationError(w http.ResponseWriter, message string, fields []FieldError) {
	WriteJSON(w, http.StatusBadRequest, Envelope{
		Message:          "VALIDATION_ERROR",
		Error:            message,
		ValidationErrors: fields,
	})
}

func WriteBadRequest(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, "BAD_REQUEST", message)
}

func WriteUnauthorized(w http.ResponseWriter, code, message string) {
	WriteError(w, http.StatusUnauthorized, code, message)
}

func WriteForbidden(w http.ResponseWriter, code, message string) {
	WriteError(w, http.StatusForbidden, code, message)
}

func WriteNotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, "NOT_FOUND", message)
}

func WriteTooManyRequests(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusTooManyRequests, "RATE_LIMIT_EXCEEDED", message)
}

func WriteInternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", message)
}
