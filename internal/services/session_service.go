package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/BradenHooton/posgate/internal/models"
	pkglogger "github.com/BradenHooton/posgate/pkg/logger"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// SessionRepository persists user sessions
type SessionRepository interface {
	Create(ctx context.Context, s *models.Session) error
	GetByID(ctx context.Context, sessionID string) (*models.Session, error)
	Deactivate(ctx context.Context, sessionID, userID string) (bool, error)
	Touch(ctx context.Context, sessionID string) error
}

// SessionPolicy holds the fixed session lifetimes
type SessionPolicy struct {
	SessionExpiry    time.Duration
	RememberMeExpiry time.Duration
}

// SessionService creates, validates and ends sessions
type SessionService struct {
	repo        SessionRepository
	stats       LoginStatisticsRepository
	activity    ActivityLogRepository
	policy      SessionPolicy
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger
	now         func() time.Time
}

func NewSessionService(repo SessionRepository, stats LoginStatisticsRepository, activity ActivityLogRepository, policy SessionPolicy, logger *slog.Logger, auditLogger *pkglogger.AuditLogger) *SessionService {
	return &SessionService{
		repo:        repo,
		stats:       stats,
		activity:    activity,
		policy:      policy,
		logger:      logger,
		auditLogger: auditLogger,
		now:         time.Now,
	}
}

// Expiry returns the session lifetime for the remember-me choice
func (s *SessionService) Expiry(rememberMe bool) time.Duration {
	if rememberMe {
		return s.policy.RememberMeExpiry
	}
	return s.policy.SessionExpiry
}

// Create opens a session for userID. The expiry is fixed at creation.
func (s *SessionService) Create(ctx context.Context, userID string, info models.RequestInfo, rememberMe bool) (*models.Session, error) {
	session := &models.Session{
		SessionID:         models.SessionIDPrefix + uuid.New().String(),
		UserID:            userID,
		IPAddress:         info.IPAddress,
		UserAgent:         info.UserAgent,
		DeviceFingerprint: info.DeviceFingerprint,
		ExpiresAt:         s.now().Add(s.Expiry(rememberMe)),
	}

	if err := s.repo.Create(ctx, session); err != nil {
		return nil, err
	}

	s.logger.Info("session created",
		slog.String("user_id", userID),
		slog.String("session_id", session.SessionID),
		slog.Bool("remember_me", rememberMe),
	)
	return session, nil
}

// Validate checks existence, active flag, expiry and ownership in that
// order. It returns the failing reason code, or "" for a usable session.
func (s *SessionService) Validate(ctx context.Context, sessionID, userID string) (string, error) {
	session, err := s.repo.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.CodeSessionNotFound, nil
		}
		return "", fmt.Errorf("failed to load session: %w", err)
	}

	switch {
	case !session.IsActive:
		return models.CodeSessionInactive, nil
	case session.IsExpired(s.now()):
		return models.CodeSessionExpired, nil
	case session.UserID != userID:
		return models.CodeSessionUserMismatch, nil
	}
	return "", nil
}

// Touch records activity on the session
func (s *SessionService) Touch(ctx context.Context, sessionID string) error {
	return s.repo.Touch(ctx, sessionID)
}

// Logout deactivates the session, then decrements the active session count
// and logs the logout concurrently. Logging out a session that is already
// inactive succeeds without touching the count.
func (s *SessionService) Logout(ctx context.Context, user *models.AuthenticatedUser, info models.RequestInfo) (*models.LogoutResult, error) {
	deactivated, err := s.repo.Deactivate(ctx, user.SessionID, user.ID)
	if err != nil {
		s.logger.Error("failed to deactivate session",
			slog.String("user_id", user.ID),
			slog.String("session_id", user.SessionID),
			slog.Any("error", err),
		)
		return nil, models.ErrInternalServer
	}

	sessionID := user.SessionID
	var g errgroup.Group
	if deactivated {
		g.Go(func() error {
			if err := s.stats.DecrementActiveSessions(ctx, user.ID); err != nil {
				return fmt.Errorf("failed to decrement active sessions: %w", err)
			}
			return nil
		})
	}
	g.Go(func() error {
		entry := models.NewActivityLog(user.ID, &sessionID, models.ActivityUserLogout, models.ActivityResultSuccess, info)
		if err := s.activity.Create(ctx, entry); err != nil {
			return fmt.Errorf("failed to log logout: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		s.logger.Error("logout bookkeeping failed",
			slog.String("user_id", user.ID),
			slog.String("session_id", sessionID),
			slog.Any("error", err),
		)
		return nil, models.ErrInternalServer
	}

	s.auditLogger.Log(ctx, pkglogger.CategorySession, pkglogger.AuditEvent{
		EventType: "logout",
		UserID:    user.ID,
		SessionID: sessionID,
		IPAddress: info.IPAddress,
		UserAgent: info.UserAgent,
		Success:   true,
	})

	return &models.LogoutResult{
		LoggedOutAt: s.now().UTC(),
		SessionID:   sessionID,
	}, nil
}
