package services

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/BradenHooton/posgate/internal/models"
	pkgauth "github.com/BradenHooton/posgate/pkg/auth"
	pkglogger "github.com/BradenHooton/posgate/pkg/logger"
	"github.com/google/uuid"
)

// PasswordResetRepository stores single-use reset tokens
type PasswordResetRepository interface {
	Create(ctx context.Context, t *models.PasswordResetToken) error
	GetByToken(ctx context.Context, token string) (*models.PasswordResetToken, error)
	MarkUsed(ctx context.Context, tokenID int64) (bool, error)
}

// ResetPasswordRequest is the validated reset body
type ResetPasswordRequest struct {
	Token           string
	NewPassword     string
	ConfirmPassword string
}

// ErrPasswordMismatch is returned when the confirmation differs
var ErrPasswordMismatch = errors.New("passwords do not match")

// PasswordResetService runs forgot, validate and reset
type PasswordResetService struct {
	users       UserRepository
	tokens      PasswordResetRepository
	activity    ActivityLogRepository
	notifier    Notifier
	tokenExpiry time.Duration
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger
	now         func() time.Time
}

func NewPasswordResetService(users UserRepository, tokens PasswordResetRepository, activity ActivityLogRepository, notifier Notifier, tokenExpiry time.Duration, logger *slog.Logger, auditLogger *pkglogger.AuditLogger) *PasswordResetService {
	return &PasswordResetService{
		users:       users,
		tokens:      tokens,
		activity:    activity,
		notifier:    notifier,
		tokenExpiry: tokenExpiry,
		logger:      logger,
		auditLogger: auditLogger,
		now:         time.Now,
	}
}

// Forgot issues a reset token for an active user and queues the email. The
// caller always answers PASSWORD_RESET_SENT, so unknown emails return nil.
func (s *PasswordResetService) Forgot(ctx context.Context, email string, info models.RequestInfo) error {
	email = strings.ToLower(strings.TrimSpace(email))

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			s.logger.Info("password reset requested for unknown email")
			return nil
		}
		s.logger.Error("failed to look up user for password reset", slog.Any("error", err))
		return models.ErrInternalServer
	}

	if !user.IsActive {
		entry := models.NewActivityLog(user.ID, nil, models.ActivityForgotPassword, models.ActivityResultFailure, info)
		if err := s.activity.Create(ctx, entry); err != nil {
			s.logger.Warn("failed to log password reset attempt", slog.String("user_id", user.ID), slog.Any("error", err))
		}
		s.logger.Info("password reset requested for inactive user", slog.String("user_id", user.ID))
		return nil
	}

	token := &models.PasswordResetToken{
		UserID:    user.ID,
		Token:     uuid.New().String(),
		ExpiresAt: s.now().Add(s.tokenExpiry),
	}
	if err := s.tokens.Create(ctx, token); err != nil {
		s.logger.Error("failed to create reset token", slog.String("user_id", user.ID), slog.Any("error", err))
		return models.ErrInternalServer
	}

	entry := models.NewActivityLog(user.ID, nil, models.ActivityForgotPassword, models.ActivityResultSuccess, info)
	if err := s.activity.Create(ctx, entry); err != nil {
		s.logger.Error("failed to log password reset request", slog.String("user_id", user.ID), slog.Any("error", err))
		return models.ErrInternalServer
	}

	if err := s.notifier.PasswordResetRequested(ctx, user, token.Token, token.ExpiresAt); err != nil {
		s.logger.Warn("failed to queue password reset email", slog.String("user_id", user.ID), slog.Any("error", err))
	}

	s.logger.Info("password reset token issued", slog.String("user_id", user.ID))
	return nil
}

// lookup applies the token checks shared by validate and reset. Expiry is
// checked before use.
func (s *PasswordResetService) lookup(ctx context.Context, token string) (*models.PasswordResetToken, error) {
	if strings.TrimSpace(token) == "" {
		return nil, models.NewAuthError(http.StatusBadRequest, models.CodeTokenMissing, "Reset token is required")
	}

	t, err := s.tokens.GetByToken(ctx, token)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.NewAuthError(http.StatusNotFound, models.CodeTokenNotFound, "Reset token does not exist or is invalid")
		}
		s.logger.Error("failed to load reset token", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if t.IsExpired(s.now()) {
		return nil, models.NewAuthError(http.StatusGone, models.CodeTokenExpired, "Reset token has expired")
	}
	if t.IsUsed() {
		return nil, tokenAlreadyUsed()
	}
	return t, nil
}

func tokenAlreadyUsed() error {
	return models.NewAuthError(http.StatusGone, models.CodeTokenAlreadyUsed, "This reset token has already been used")
}

// Validate reports the token state without consuming it
func (s *PasswordResetService) Validate(ctx context.Context, token string) (*models.ResetTokenStatus, error) {
	t, err := s.lookup(ctx, token)
	if err != nil {
		return nil, err
	}
	return &models.ResetTokenStatus{
		TokenValid: true,
		UserID:     t.UserID,
		ExpiresAt:  t.ExpiresAt,
		CreatedAt:  t.CreatedAt,
	}, nil
}

// Reset consumes the token and stores the new password. The token is claimed
// with a conditional update first, so of two concurrent resets only one
// changes the password. The activity entry is written after the password and
// never rolls it back.
func (s *PasswordResetService) Reset(ctx context.Context, req ResetPasswordRequest, info models.RequestInfo) (*models.PasswordResetResult, error) {
	if req.NewPassword != req.ConfirmPassword {
		return nil, ErrPasswordMismatch
	}
	if err := pkgauth.ValidatePassword(req.NewPassword); err != nil {
		return nil, err
	}

	t, err := s.lookup(ctx, req.Token)
	if err != nil {
		return nil, err
	}

	hash, err := pkgauth.HashPassword(req.NewPassword)
	if err != nil {
		s.logger.Error("failed to hash password", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	claimed, err := s.tokens.MarkUsed(ctx, t.ID)
	if err != nil {
		s.logger.Error("failed to mark reset token used", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	if !claimed {
		return nil, tokenAlreadyUsed()
	}

	if err := s.users.UpdatePassword(ctx, t.UserID, hash); err != nil {
		s.logger.Error("password reset failed", slog.String("user_id", t.UserID), slog.Any("error", err))
		s.auditLogger.LogPasswordChange(ctx, t.UserID, info.IPAddress, false)
		return nil, models.ErrInternalServer
	}

	entry := models.NewActivityLog(t.UserID, nil, models.ActivityPasswordChange, models.ActivityResultSuccess, info)
	if err := s.activity.Create(ctx, entry); err != nil {
		s.logger.Warn("failed to log password change", slog.String("user_id", t.UserID), slog.Any("error", err))
	}

	resetAt := s.now().UTC()
	s.auditLogger.LogPasswordChange(ctx, t.UserID, info.IPAddress, true)

	user, err := s.users.GetByID(ctx, t.UserID)
	if err != nil {
		s.logger.Warn("failed to load user for reset confirmation", slog.String("user_id", t.UserID), slog.Any("error", err))
	} else if err := s.notifier.PasswordResetCompleted(ctx, user, resetAt, info.IPAddress); err != nil {
		s.logger.Warn("failed to queue reset confirmation", slog.String("user_id", t.UserID), slog.Any("error", err))
	}

	return &models.PasswordResetResult{UserID: t.UserID, ResetAt: resetAt}, nil
}
