package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/BradenHooton/posgate/internal/auth"
	"github.com/BradenHooton/posgate/internal/models"
	pkgauth "github.com/BradenHooton/posgate/pkg/auth"
	pkglogger "github.com/BradenHooton/posgate/pkg/logger"
)

// UserRepository is the credential store
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetActiveByEmail(ctx context.Context, email string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	LockUntil(ctx context.Context, userID string, until time.Time) error
	SetTwoFactorEnabled(ctx context.Context, userID string, enabled bool) error
	UpdatePassword(ctx context.Context, userID, passwordHash string) error
}

// TokenIssuer mints token pairs for a session
type TokenIssuer interface {
	IssuePair(ctx context.Context, subject models.TokenSubject, rememberMe bool) (*models.TokenPair, error)
	IssueAccessToken(ctx context.Context, subject models.TokenSubject) (string, error)
}

// LoginRequest is the validated login body
type LoginRequest struct {
	Email      string
	Password   string
	RememberMe bool
}

const invalidCredentialsMessage = "Invalid email or password"

// AuthService runs the login state machine, refresh and logout
type AuthService struct {
	users       UserRepository
	lockout     *LockoutTracker
	sessions    *SessionService
	tokens      TokenIssuer
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger
}

func NewAuthService(users UserRepository, lockout *LockoutTracker, sessions *SessionService, tokens TokenIssuer, logger *slog.Logger, auditLogger *pkglogger.AuditLogger) *AuthService {
	return &AuthService{
		users:       users,
		lockout:     lockout,
		sessions:    sessions,
		tokens:      tokens,
		logger:      logger,
		auditLogger: auditLogger,
	}
}

// Login authenticates by password. The result has Requires2FA set when the
// user must complete a second factor; no session exists in that case.
func (s *AuthService) Login(ctx context.Context, req LoginRequest, info models.RequestInfo) (*models.LoginResult, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))

	user, err := s.users.GetActiveByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			pkgauth.EqualizeTiming(req.Password)
			s.logger.Info("login failed: invalid credentials")
			s.auditLogger.LogAuthAttempt(ctx, pkglogger.AuditEvent{
				EventType:     "login_failed",
				Email:         email,
				IPAddress:     info.IPAddress,
				FailureReason: "unknown_user",
			})
			return nil, models.NewAuthError(http.StatusUnauthorized, models.CodeInvalidCredentials, invalidCredentialsMessage)
		}
		s.logger.Error("failed to get user by email", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	ok, err := pkgauth.ComparePassword(user.PasswordHash, req.Password)
	if err != nil {
		s.logger.Error("stored password hash is unusable", slog.String("user_id", user.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if !ok {
		return nil, s.handleWrongPassword(ctx, user, info)
	}

	if state := s.lockout.State(user); state.Locked() {
		if err := s.lockout.RecordBlocked(ctx, user.ID, info); err != nil {
			s.logger.Error("failed to log blocked login", slog.String("user_id", user.ID), slog.Any("error", err))
			return nil, models.ErrInternalServer
		}
		until, _ := state.Until()
		s.auditLogger.LogAuthAttempt(ctx, pkglogger.AuditEvent{
			EventType:     "login_failed",
			UserID:        user.ID,
			IPAddress:     info.IPAddress,
			FailureReason: "account_locked",
		})
		return nil, &models.AuthError{
			Status:  http.StatusForbidden,
			Code:    models.CodeAccountLocked,
			Message: fmt.Sprintf("Account is locked until %s due to too many failed attempts", until.UTC().Format(time.RFC3339)),
			Data:    models.LockedResponse{LockedUntil: &until},
		}
	}

	if user.Is2FAEnabled {
		s.logger.Info("login requires second factor", slog.String("user_id", user.ID))
		return &models.LoginResult{
			Requires2FA:        true,
			Is2FAAuthenticated: false,
			User:               user.Summary(),
		}, nil
	}

	return s.IssueSession(ctx, user, info, req.RememberMe, models.ActivityUserLogin)
}

func (s *AuthService) handleWrongPassword(ctx context.Context, user *models.User, info models.RequestInfo) error {
	outcome, err := s.lockout.RecordFailure(ctx, user, info)
	if err != nil {
		s.logger.Error("failed to process login failure", slog.String("user_id", user.ID), slog.Any("error", err))
		return models.ErrInternalServer
	}

	s.auditLogger.LogAuthAttempt(ctx, pkglogger.AuditEvent{
		EventType:     "login_failed",
		UserID:        user.ID,
		IPAddress:     info.IPAddress,
		FailureReason: "invalid_credentials",
	})

	if until, locked := outcome.State.Until(); locked {
		return &models.AuthError{
			Status:  http.StatusLocked,
			Code:    models.CodeAccountLocked,
			Message: fmt.Sprintf("Account has been locked until %s due to multiple failed login attempts.", until.UTC().Format(time.RFC3339)),
			Data:    models.LockedResponse{LockedUntil: &until},
		}
	}

	return models.NewAuthError(http.StatusUnauthorized, models.CodeInvalidCredentials,
		fmt.Sprintf("%s. %d attempts remaining.", invalidCredentialsMessage, outcome.Remaining))
}

// IssueSession creates a session and token pair for an authenticated user and
// records the success under action
func (s *AuthService) IssueSession(ctx context.Context, user *models.User, info models.RequestInfo, rememberMe bool, action string) (*models.LoginResult, error) {
	session, err := s.sessions.Create(ctx, user.ID, info, rememberMe)
	if err != nil {
		s.logger.Error("failed to create session", slog.String("user_id", user.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	pair, err := s.tokens.IssuePair(ctx, models.SubjectFor(user, session.SessionID), rememberMe)
	if err != nil {
		s.logger.Error("failed to issue tokens", slog.String("user_id", user.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if err := s.lockout.RecordSuccess(ctx, user.ID, session.SessionID, action, info); err != nil {
		s.logger.Error("failed to record login success", slog.String("user_id", user.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.logger.Info("user logged in",
		slog.String("user_id", user.ID),
		slog.String("session_id", session.SessionID),
		slog.String("action", action),
	)
	s.auditLogger.LogAuthAttempt(ctx, pkglogger.AuditEvent{
		EventType: action,
		UserID:    user.ID,
		SessionID: session.SessionID,
		IPAddress: info.IPAddress,
		UserAgent: info.UserAgent,
		Success:   true,
	})

	return &models.LoginResult{
		AccessToken:        pair.AccessToken,
		RefreshToken:       pair.RefreshToken,
		SessionID:          session.SessionID,
		Requires2FA:        false,
		Is2FAAuthenticated: action == models.ActivityTwoFactorVerify,
		User:               user.Summary(),
	}, nil
}

// Refresh bumps the session's last activity and mints a new access token for
// the same session
func (s *AuthService) Refresh(ctx context.Context, user *models.AuthenticatedUser) (*models.RefreshResult, error) {
	if err := s.sessions.Touch(ctx, user.SessionID); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.NewAuthError(http.StatusUnauthorized, models.CodeSessionInactive, "Session is no longer active")
		}
		s.logger.Error("failed to touch session", slog.String("session_id", user.SessionID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	subject := models.TokenSubject{
		UserID:    user.ID,
		Email:     user.Email,
		Name:      user.Name,
		RoleID:    user.RoleID,
		RoleName:  user.RoleName,
		SessionID: user.SessionID,
	}

	token, err := s.tokens.IssueAccessToken(ctx, subject)
	if err != nil {
		s.logger.Error("failed to issue access token", slog.String("user_id", user.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.auditLogger.LogAuthAttempt(ctx, pkglogger.AuditEvent{
		EventType: "token_refresh",
		UserID:    user.ID,
		SessionID: user.SessionID,
		Success:   true,
	})

	return &models.RefreshResult{AccessToken: token}, nil
}

// Logout ends the caller's session
func (s *AuthService) Logout(ctx context.Context, user *models.AuthenticatedUser, info models.RequestInfo) (*models.LogoutResult, error) {
	return s.sessions.Logout(ctx, user, info)
}

var _ TokenIssuer = (*auth.TokenIssuer)(nil)
