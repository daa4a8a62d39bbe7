package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"regexp"
	"strings"

	"github.com/BradenHooton/posgate/internal/models"
	pkghttp "github.com/BradenHooton/posgate/pkg/http"
	"github.com/go-playground/validator/v10"
)

var (
	totpCodePattern   = regexp.MustCompile(`^\d{6}$`)
	backupCodePattern = regexp.MustCompile(`^[A-Za-z0-9]{4}-?[A-Za-z0-9]{4}$`)
)

// Global validator instance (reused across all handlers)
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	// Report fields by their JSON names
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	_ = v.RegisterValidation("totp", func(fl validator.FieldLevel) bool {
		return totpCodePattern.MatchString(fl.Field().String())
	})
	v.RegisterStructValidation(validateVerifyCode, VerifyTwoFactorRequest{})
	return v
}

// validateVerifyCode checks the code shape against the declared type
func validateVerifyCode(sl validator.StructLevel) {
	req := sl.Current().Interface().(VerifyTwoFactorRequest)
	switch req.Type {
	case models.TwoFactorTypeTOTP:
		if req.Code != "" && !totpCodePattern.MatchString(req.Code) {
			sl.ReportError(req.Code, "code", "Code", "totp", "")
		}
	case models.TwoFactorTypeBackup:
		if req.Code != "" && !backupCodePattern.MatchString(req.Code) {
			sl.ReportError(req.Code, "code", "Code", "backup_code", "")
		}
	}
}

// ValidateRequest validates a request struct and returns field-level errors
func ValidateRequest(req any) []pkghttp.FieldError {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}

	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return []pkghttp.FieldError{{Field: "body", Message: err.Error()}}
	}

	fields := make([]pkghttp.FieldError, 0, len(ve))
	for _, fe := range ve {
		fields = append(fields, pkghttp.FieldError{
			Field:   fe.Field(),
			Message: formatValidationError(fe),
		})
	}
	return fields
}

// decodeAndValidate reads a JSON body into dst. It writes the 400 response
// and returns false when the body is malformed or invalid.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			pkghttp.WriteError(w, http.StatusRequestEntityTooLarge, models.CodePayloadTooLarge, "Request body is too large")
			return false
		}
		pkghttp.WriteValidationError(w, "Invalid request body", []pkghttp.FieldError{{Field: "body", Message: "must be valid JSON"}})
		return false
	}

	if fields := ValidateRequest(dst); len(fields) > 0 {
		pkghttp.WriteValidationError(w, "Invalid request data", fields)
		return false
	}
	return true
}

// formatValidationError converts a validator FieldError to a user-friendly message
func formatValidationError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "this field is required"
	case "email":
		return "must be a valid email address"
	case "min":
		return fmt.Sprintf("must have a minimum of %s characters", fe.Param())
	case "max":
		return fmt.Sprintf("must have a maximum of %s characters", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", fe.Param())
	case "uuid":
		return "must be a valid UUID"
	case "totp":
		return "TOTP code must be exactly 6 digits"
	case "backup_code":
		return "backup code must match XXXX-XXXX"
	default:
		return fmt.Sprintf("failed validation: %s", fe.Tag())
	}
}
