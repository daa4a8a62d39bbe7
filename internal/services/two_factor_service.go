package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/BradenHooton/posgate/internal/auth"
	"github.com/BradenHooton/posgate/internal/models"
	pkglogger "github.com/BradenHooton/posgate/pkg/logger"
)

// TwoFactorRepository persists the per-user second factor
type TwoFactorRepository interface {
	GetActiveByUserID(ctx context.Context, userID string) (*models.TwoFactorRecord, error)
	Initialize(ctx context.Context, userID, secret string, backupCodeHashes []string, maxFailedAttempts int) error
	RecordFailure(ctx context.Context, userID string, lockUntil time.Time) (*models.TwoFactorFailure, error)
	ResetFailures(ctx context.Context, userID string) error
	ConsumeBackupCode(ctx context.Context, userID, codeHash string) (bool, error)
	Delete(ctx context.Context, userID string) error
}

// TOTPProvider generates and checks TOTP secrets and backup codes
type TOTPProvider interface {
	GenerateSecretWithQR(accountName string) (secret string, qrDataURL string, err error)
	ValidateTOTP(secret, code string, now time.Time) (bool, error)
	GenerateBackupCodes(count int) ([]string, error)
	HashBackupCodes(codes []string) ([]string, error)
	MatchBackupCode(hashes []string, code string) (hash string, ok bool)
}

// SessionIssuer completes a login once every factor has passed
type SessionIssuer interface {
	IssueSession(ctx context.Context, user *models.User, info models.RequestInfo, rememberMe bool, action string) (*models.LoginResult, error)
}

// TwoFactorPolicy is the verification lockout and backup code count
type TwoFactorPolicy struct {
	MaxFailedAttempts int
	LockoutDuration   time.Duration
	BackupCodeCount   int
}

// VerifyRequest is the validated 2FA challenge body
type VerifyRequest struct {
	UserID string
	Type   string
	Code   string
}

// TwoFactorService manages the TOTP lifecycle and the login challenge
type TwoFactorService struct {
	users       UserRepository
	repo        TwoFactorRepository
	totp        TOTPProvider
	sessions    SessionIssuer
	activity    ActivityLogRepository
	notifier    Notifier
	policy      TwoFactorPolicy
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger
	now         func() time.Time
}

func NewTwoFactorService(users UserRepository, repo TwoFactorRepository, totp TOTPProvider, sessions SessionIssuer, activity ActivityLogRepository, notifier Notifier, policy TwoFactorPolicy, logger *slog.Logger, auditLogger *pkglogger.AuditLogger) *TwoFactorService {
	return &TwoFactorService{
		users:       users,
		repo:        repo,
		totp:        totp,
		sessions:    sessions,
		activity:    activity,
		notifier:    notifier,
		policy:      policy,
		logger:      logger,
		auditLogger: auditLogger,
		now:         time.Now,
	}
}

func (s *TwoFactorService) activeUser(ctx context.Context, userID string) (*models.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) || errors.Is(err, models.ErrBadRequest) {
			return nil, models.NewAuthError(http.StatusNotFound, models.CodeUserNotFound, "User not found or inactive")
		}
		s.logger.Error("failed to load user", slog.String("user_id", userID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	if !user.IsActive {
		return nil, models.NewAuthError(http.StatusNotFound, models.CodeUserNotFound, "User not found or inactive")
	}
	return user, nil
}

// loadState fetches the user and the active record and resolves where the
// user is in the 2FA lifecycle. A missing record is not an error.
func (s *TwoFactorService) loadState(ctx context.Context, userID string) (*models.User, *models.TwoFactorRecord, models.TwoFactorState, error) {
	user, err := s.activeUser(ctx, userID)
	if err != nil {
		return nil, nil, models.TwoFactorNotConfigured, err
	}

	record, err := s.repo.GetActiveByUserID(ctx, userID)
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			s.logger.Error("failed to load 2FA record", slog.String("user_id", userID), slog.Any("error", err))
			return nil, nil, models.TwoFactorNotConfigured, models.ErrInternalServer
		}
		record = nil
	}

	return user, record, models.ResolveTwoFactorState(user, record), nil
}

func (s *TwoFactorService) logActivity(ctx context.Context, userID, action, result string, info models.RequestInfo) {
	entry := models.NewActivityLog(userID, nil, action, result, info)
	if err := s.activity.Create(ctx, entry); err != nil {
		s.logger.Warn("failed to log 2FA activity",
			slog.String("user_id", userID),
			slog.String("action", action),
			slog.Any("error", err),
		)
	}
}

// Generate creates a pending secret and fresh backup codes, replacing any
// earlier pending setup. The plaintext codes are only ever returned here.
func (s *TwoFactorService) Generate(ctx context.Context, userID string, info models.RequestInfo) (*models.TwoFactorSetupResponse, error) {
	user, _, state, err := s.loadState(ctx, userID)
	if err != nil {
		return nil, err
	}
	if state == models.TwoFactorEnabled {
		return nil, twoFactorAlreadyEnabled()
	}

	secret, qrURL, err := s.totp.GenerateSecretWithQR(user.Email)
	if err != nil {
		s.logger.Error("failed to generate TOTP secret", slog.String("user_id", userID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	codes, err := s.totp.GenerateBackupCodes(s.policy.BackupCodeCount)
	if err != nil {
		s.logger.Error("failed to generate backup codes", slog.String("user_id", userID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	hashes, err := s.totp.HashBackupCodes(codes)
	if err != nil {
		s.logger.Error("failed to hash backup codes", slog.String("user_id", userID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if err := s.repo.Initialize(ctx, userID, secret, hashes, s.policy.MaxFailedAttempts); err != nil {
		s.logger.Error("failed to store 2FA credentials", slog.String("user_id", userID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.logActivity(ctx, userID, models.ActivityTwoFactorGenerate, models.ActivityResultSuccess, info)
	s.logger.Info("2FA credentials generated", slog.String("user_id", userID))

	return &models.TwoFactorSetupResponse{
		Secret:      secret,
		QRCodeURL:   qrURL,
		BackupCodes: codes,
	}, nil
}

// Enable confirms the pending secret with a TOTP code and turns 2FA on
func (s *TwoFactorService) Enable(ctx context.Context, userID, code string, info models.RequestInfo) (*models.TwoFactorEnabledResponse, error) {
	user, record, state, err := s.loadState(ctx, userID)
	if err != nil {
		return nil, err
	}
	switch state {
	case models.TwoFactorEnabled:
		return nil, twoFactorAlreadyEnabled()
	case models.TwoFactorNotConfigured:
		return nil, models.NewAuthError(http.StatusNotFound, models.CodeTwoFactorNotInit, "2FA credentials not found. Please generate 2FA credentials first")
	}

	valid, err := s.totp.ValidateTOTP(record.Secret, code, s.now())
	if err != nil {
		s.logger.Error("failed to validate TOTP", slog.String("user_id", userID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	if !valid {
		s.logActivity(ctx, userID, models.ActivityTwoFactorEnable, models.ActivityResultFailure, info)
		return nil, models.NewAuthError(http.StatusUnauthorized, models.CodeInvalidTwoFactorToken, "Invalid TOTP code. Please check your authenticator app and try again")
	}

	if err := s.users.SetTwoFactorEnabled(ctx, userID, true); err != nil {
		s.logger.Error("failed to enable 2FA", slog.String("user_id", userID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.logActivity(ctx, userID, models.ActivityTwoFactorEnable, models.ActivityResultSuccess, info)
	s.auditLogger.Log(ctx, pkglogger.CategoryTwoFactor, pkglogger.AuditEvent{
		EventType: "2fa_enabled",
		UserID:    userID,
		IPAddress: info.IPAddress,
		Success:   true,
	})

	if err := s.notifier.TwoFactorEnabled(ctx, user); err != nil {
		s.logger.Warn("failed to queue 2FA enabled notification", slog.String("user_id", userID), slog.Any("error", err))
	}

	return &models.TwoFactorEnabledResponse{UserID: userID, EnabledAt: s.now().UTC()}, nil
}

// Disable turns 2FA off and removes the stored secret and codes
func (s *TwoFactorService) Disable(ctx context.Context, userID string, info models.RequestInfo) (*models.TwoFactorDisabledResponse, error) {
	user, _, state, err := s.loadState(ctx, userID)
	if err != nil {
		return nil, err
	}
	if state != models.TwoFactorEnabled {
		return nil, models.NewAuthError(http.StatusConflict, models.CodeTwoFactorAlreadyOff, "Two-factor authentication is already disabled for this account")
	}

	if err := s.repo.Delete(ctx, userID); err != nil {
		s.logger.Error("failed to disable 2FA", slog.String("user_id", userID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.logActivity(ctx, userID, models.ActivityTwoFactorDisable, models.ActivityResultSuccess, info)
	s.auditLogger.Log(ctx, pkglogger.CategoryTwoFactor, pkglogger.AuditEvent{
		EventType: "2fa_disabled",
		UserID:    userID,
		IPAddress: info.IPAddress,
		Success:   true,
	})

	if err := s.notifier.TwoFactorDisabled(ctx, user); err != nil {
		s.logger.Warn("failed to queue 2FA disabled notification", slog.String("user_id", userID), slog.Any("error", err))
	}

	return &models.TwoFactorDisabledResponse{Is2FAEnabled: false}, nil
}

// Verify completes a login challenge with a TOTP or backup code. A consumed
// backup code is persisted before the session is created.
func (s *TwoFactorService) Verify(ctx context.Context, req VerifyRequest, info models.RequestInfo) (*models.LoginResult, error) {
	user, record, state, err := s.loadState(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	if state != models.TwoFactorEnabled {
		return nil, models.NewAuthError(http.StatusBadRequest, models.CodeTwoFactorNotEnabled, "Two-factor authentication is not enabled for this user")
	}
	if record == nil {
		return nil, models.NewAuthError(http.StatusNotFound, models.CodeTwoFactorNotConfig, "Two-factor authentication is not properly configured")
	}

	if state := record.LockState(s.now()); state.Locked() {
		reason := "locked due to too many failed attempts"
		until, ok := state.Until()
		if ok {
			reason = "locked until " + until.UTC().Format(time.RFC3339)
		}
		err := &models.AuthError{
			Status:  http.StatusLocked,
			Code:    models.CodeTwoFactorLocked,
			Message: "Two-factor authentication is " + reason,
		}
		if ok {
			err.Data = models.LockedResponse{LockedUntil: &until}
		}
		return nil, err
	}

	var valid bool
	switch req.Type {
	case models.TwoFactorTypeTOTP:
		valid, err = s.totp.ValidateTOTP(record.Secret, req.Code, s.now())
		if err != nil {
			s.logger.Error("failed to validate TOTP", slog.String("user_id", user.ID), slog.Any("error", err))
			return nil, models.ErrInternalServer
		}
	case models.TwoFactorTypeBackup:
		if len(record.BackupCodes) == 0 {
			return nil, models.NewAuthError(http.StatusBadRequest, models.CodeNoBackupCodes, "No backup codes are available for this account")
		}
		valid, err = s.consumeBackupCode(ctx, user.ID, record.BackupCodes, req.Code)
		if err != nil {
			s.logger.Error("failed to consume backup code", slog.String("user_id", user.ID), slog.Any("error", err))
			return nil, models.ErrInternalServer
		}
	default:
		return nil, models.NewAuthError(http.StatusBadRequest, models.CodeValidationError, "type must be totp or backup")
	}

	if !valid {
		return nil, s.handleFailure(ctx, user.ID, info)
	}

	if err := s.repo.ResetFailures(ctx, user.ID); err != nil {
		s.logger.Error("failed to reset 2FA failures", slog.String("user_id", user.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	return s.sessions.IssueSession(ctx, user, info, false, models.ActivityTwoFactorVerify)
}

// consumeBackupCode finds the first matching hash and removes it. Losing the
// race to a concurrent request for the same code counts as a failure.
func (s *TwoFactorService) consumeBackupCode(ctx context.Context, userID string, hashes []string, code string) (bool, error) {
	hash, ok := s.totp.MatchBackupCode(hashes, code)
	if !ok {
		return false, nil
	}

	consumed, err := s.repo.ConsumeBackupCode(ctx, userID, hash)
	if err != nil {
		return false, err
	}
	if consumed {
		s.logger.Info("backup code used",
			slog.String("user_id", userID),
			slog.Int("remaining_backup_codes", len(hashes)-1),
		)
	}
	return consumed, nil
}

func (s *TwoFactorService) handleFailure(ctx context.Context, userID string, info models.RequestInfo) error {
	failure, err := s.repo.RecordFailure(ctx, userID, s.now().Add(s.policy.LockoutDuration))
	if err != nil {
		s.logger.Error("failed to record 2FA failure", slog.String("user_id", userID), slog.Any("error", err))
		return models.ErrInternalServer
	}

	if failure.IsLocked {
		s.logActivity(ctx, userID, models.ActivityTwoFactorLocked, models.ActivityResultSuccess, info)

		authErr := &models.AuthError{
			Status:  http.StatusLocked,
			Code:    models.CodeTwoFactorLocked,
			Message: "Two-factor authentication has been locked due to too many failed attempts",
		}
		if failure.LockedUntil != nil {
			until := *failure.LockedUntil
			authErr.Message = fmt.Sprintf("Two-factor authentication has been locked until %s due to too many failed attempts", until.UTC().Format(time.RFC3339))
			authErr.Data = models.LockedResponse{LockedUntil: &until}
			s.auditLogger.LogLockout(ctx, userID, info.IPAddress, until, "too_many_2fa_failures")
		}
		return authErr
	}

	s.logActivity(ctx, userID, models.ActivityTwoFactorVerify, models.ActivityResultFailure, info)
	s.auditLogger.Log(ctx, pkglogger.CategoryTwoFactor, pkglogger.AuditEvent{
		EventType:     "2fa_verification",
		UserID:        userID,
		IPAddress:     info.IPAddress,
		FailureReason: "invalid_code",
	})

	return models.NewAuthError(http.StatusUnauthorized, models.CodeInvalidTwoFactorToken,
		fmt.Sprintf("Invalid 2FA token. %d attempts remaining.", failure.RemainingAttempts()))
}

func twoFactorAlreadyEnabled() error {
	return models.NewAuthError(http.StatusConflict, models.CodeTwoFactorAlreadyOn, "Two-factor authentication is already enabled for this account")
}

var _ TOTPProvider = (*auth.TOTPManager)(nil)
