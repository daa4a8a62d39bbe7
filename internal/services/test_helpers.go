package services

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/BradenHooton/posgate/internal/models"
	pkgauth "github.com/BradenHooton/posgate/pkg/auth"
	pkglogger "github.com/BradenHooton/posgate/pkg/logger"
)

// MockUserRepository implements UserRepository for testing
type MockUserRepository struct {
	GetByIDFunc             func(ctx context.Context, id string) (*models.User, error)
	GetActiveByEmailFunc    func(ctx context.Context, email string) (*models.User, error)
	GetByEmailFunc          func(ctx context.Context, email string) (*models.User, error)
	LockUntilFunc           func(ctx context.Context, userID string, until time.Time) error
	SetTwoFactorEnabledFunc func(ctx context.Context, userID string, enabled bool) error
	UpdatePasswordFunc      func(ctx context.Context, userID, passwordHash string) error
}

func (m *MockUserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserRepository) GetActiveByEmail(ctx context.Context, email string) (*models.User, error) {
	if m.GetActiveByEmailFunc != nil {
		return m.GetActiveByEmailFunc(ctx, email)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	if m.GetByEmailFunc != nil {
		return m.GetByEmailFunc(ctx, email)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserRepository) LockUntil(ctx context.Context, userID string, until time.Time) error {
	if m.LockUntilFunc != nil {
		return m.LockUntilFunc(ctx, userID, until)
	}
	return nil
}

func (m *MockUserRepository) SetTwoFactorEnabled(ctx context.Context, userID string, enabled bool) error {
	if m.SetTwoFactorEnabledFunc != nil {
		return m.SetTwoFactorEnabledFunc(ctx, userID, enabled)
	}
	return nil
}

func (m *MockUserRepository) UpdatePassword(ctx context.Context, userID, passwordHash string) error {
	if m.UpdatePasswordFunc != nil {
		return m.UpdatePasswordFunc(ctx, userID, passwordHash)
	}
	return nil
}

// MockLoginStatisticsRepository implements LoginStatisticsRepository for testing
type MockLoginStatisticsRepository struct {
	RecordFailureFunc           func(ctx context.Context, userID string, info models.RequestInfo) (int, error)
	RecordSuccessFunc           func(ctx context.Context, userID string, info models.RequestInfo) error
	DecrementActiveSessionsFunc func(ctx context.Context, userID string) error
}

func (m *MockLoginStatisticsRepository) RecordFailure(ctx context.Context, userID string, info models.RequestInfo) (int, error) {
	if m.RecordFailureFunc != nil {
		return m.RecordFailureFunc(ctx, userID, info)
	}
	return 1, nil
}

func (m *MockLoginStatisticsRepository) RecordSuccess(ctx context.Context, userID string, info models.RequestInfo) error {
	if m.RecordSuccessFunc != nil {
		return m.RecordSuccessFunc(ctx, userID, info)
	}
	return nil
}

func (m *MockLoginStatisticsRepository) DecrementActiveSessions(ctx context.Context, userID string) error {
	if m.DecrementActiveSessionsFunc != nil {
		return m.DecrementActiveSessionsFunc(ctx, userID)
	}
	return nil
}

// MockActivityLogRepository records every entry. Safe for concurrent use.
type MockActivityLogRepository struct {
	CreateFunc func(ctx context.Context, entry *models.ActivityLog) error

	mu      sync.Mutex
	entries []models.ActivityLog
}

func (m *MockActivityLogRepository) Create(ctx context.Context, entry *models.ActivityLog) error {
	m.mu.Lock()
	m.entries = append(m.entries, *entry)
	m.mu.Unlock()
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, entry)
	}
	return nil
}

// Entries returns a copy of the recorded entries
func (m *MockActivityLogRepository) Entries() []models.ActivityLog {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.ActivityLog(nil), m.entries...)
}

// Has reports whether an entry with action and result was recorded
func (m *MockActivityLogRepository) Has(action, result string) bool {
	for _, e := range m.Entries() {
		if e.ActionType == action && e.ActionResult == result {
			return true
		}
	}
	return false
}

// MockSessionRepository implements SessionRepository for testing
type MockSessionRepository struct {
	CreateFunc     func(ctx context.Context, s *models.Session) error
	GetByIDFunc    func(ctx context.Context, sessionID string) (*models.Session, error)
	DeactivateFunc func(ctx context.Context, sessionID, userID string) (bool, error)
	TouchFunc      func(ctx context.Context, sessionID string) error
}

func (m *MockSessionRepository) Create(ctx context.Context, s *models.Session) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, s)
	}
	s.IsActive = true
	s.CreatedAt = time.Now()
	s.LastActivity = s.CreatedAt
	return nil
}

func (m *MockSessionRepository) GetByID(ctx context.Context, sessionID string) (*models.Session, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, sessionID)
	}
	return nil, models.ErrNotFound
}

func (m *MockSessionRepository) Deactivate(ctx context.Context, sessionID, userID string) (bool, error) {
	if m.DeactivateFunc != nil {
		return m.DeactivateFunc(ctx, sessionID, userID)
	}
	return true, nil
}

func (m *MockSessionRepository) Touch(ctx context.Context, sessionID string) error {
	if m.TouchFunc != nil {
		return m.TouchFunc(ctx, sessionID)
	}
	return nil
}

// MockTokenIssuer implements TokenIssuer for testing
type MockTokenIssuer struct {
	IssuePairFunc        func(ctx context.Context, subject models.TokenSubject, rememberMe bool) (*models.TokenPair, error)
	IssueAccessTokenFunc func(ctx context.Context, subject models.TokenSubject) (string, error)
}

func (m *MockTokenIssuer) IssuePair(ctx context.Context, subject models.TokenSubject, rememberMe bool) (*models.TokenPair, error) {
	if m.IssuePairFunc != nil {
		return m.IssuePairFunc(ctx, subject, rememberMe)
	}
	return &models.TokenPair{AccessToken: "access-" + subject.SessionID, RefreshToken: "refresh-" + subject.SessionID}, nil
}

func (m *MockTokenIssuer) IssueAccessToken(ctx context.Context, subject models.TokenSubject) (string, error) {
	if m.IssueAccessTokenFunc != nil {
		return m.IssueAccessTokenFunc(ctx, subject)
	}
	return "access-" + subject.SessionID, nil
}

// MockTwoFactorRepository implements TwoFactorRepository for testing
type MockTwoFactorRepository struct {
	GetActiveByUserIDFunc func(ctx context.Context, userID string) (*models.TwoFactorRecord, error)
	InitializeFunc        func(ctx context.Context, userID, secret string, backupCodeHashes []string, maxFailedAttempts int) error
	RecordFailureFunc     func(ctx context.Context, userID string, lockUntil time.Time) (*models.TwoFactorFailure, error)
	ResetFailuresFunc     func(ctx context.Context, userID string) error
	ConsumeBackupCodeFunc func(ctx context.Context, userID, codeHash string) (bool, error)
	DeleteFunc            func(ctx context.Context, userID string) error
}

func (m *MockTwoFactorRepository) GetActiveByUserID(ctx context.Context, userID string) (*models.TwoFactorRecord, error) {
	if m.GetActiveByUserIDFunc != nil {
		return m.GetActiveByUserIDFunc(ctx, userID)
	}
	return nil, models.ErrNotFound
}

func (m *MockTwoFactorRepository) Initialize(ctx context.Context, userID, secret string, backupCodeHashes []string, maxFailedAttempts int) error {
	if m.InitializeFunc != nil {
		return m.InitializeFunc(ctx, userID, secret, backupCodeHashes, maxFailedAttempts)
	}
	return nil
}

func (m *MockTwoFactorRepository) RecordFailure(ctx context.Context, userID string, lockUntil time.Time) (*models.TwoFactorFailure, error) {
	if m.RecordFailureFunc != nil {
		return m.RecordFailureFunc(ctx, userID, lockUntil)
	}
	return &models.TwoFactorFailure{FailedAttempts: 1, MaxFailedAttempts: 5}, nil
}

func (m *MockTwoFactorRepository) ResetFailures(ctx context.Context, userID string) error {
	if m.ResetFailuresFunc != nil {
		return m.ResetFailuresFunc(ctx, userID)
	}
	return nil
}

func (m *MockTwoFactorRepository) ConsumeBackupCode(ctx context.Context, userID, codeHash string) (bool, error) {
	if m.ConsumeBackupCodeFunc != nil {
		return m.ConsumeBackupCodeFunc(ctx, userID, codeHash)
	}
	return true, nil
}

func (m *MockTwoFactorRepository) Delete(ctx context.Context, userID string) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, userID)
	}
	return nil
}

// MockTOTPProvider implements TOTPProvider with fixed codes. "123456" is the
// valid TOTP code and backup codes match their hash prefixed with "hash-".
type MockTOTPProvider struct {
	ValidateTOTPFunc func(secret, code string, now time.Time) (bool, error)
}

func (m *MockTOTPProvider) GenerateSecretWithQR(accountName string) (string, string, error) {
	return "JBSWY3DPEHPK3PXP", "data:image/png;base64,AAAA", nil
}

func (m *MockTOTPProvider) ValidateTOTP(secret, code string, now time.Time) (bool, error) {
	if m.ValidateTOTPFunc != nil {
		return m.ValidateTOTPFunc(secret, code, now)
	}
	return code == "123456", nil
}

func (m *MockTOTPProvider) GenerateBackupCodes(count int) ([]string, error) {
	codes := make([]string, count)
	for i := range codes {
		codes[i] = "CODE" + string(rune('A'+i))
	}
	return codes, nil
}

func (m *MockTOTPProvider) HashBackupCodes(codes []string) ([]string, error) {
	hashes := make([]string, len(codes))
	for i, c := range codes {
		hashes[i] = "hash-" + c
	}
	return hashes, nil
}

func (m *MockTOTPProvider) MatchBackupCode(hashes []string, code string) (string, bool) {
	for _, h := range hashes {
		if h == "hash-"+code {
			return h, true
		}
	}
	return "", false
}

// MockPasswordResetRepository implements PasswordResetRepository for testing
type MockPasswordResetRepository struct {
	CreateFunc     func(ctx context.Context, t *models.PasswordResetToken) error
	GetByTokenFunc func(ctx context.Context, token string) (*models.PasswordResetToken, error)
	MarkUsedFunc   func(ctx context.Context, tokenID int64) (bool, error)
}

func (m *MockPasswordResetRepository) Create(ctx context.Context, t *models.PasswordResetToken) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, t)
	}
	t.ID = 1
	t.CreatedAt = time.Now()
	return nil
}

func (m *MockPasswordResetRepository) GetByToken(ctx context.Context, token string) (*models.PasswordResetToken, error) {
	if m.GetByTokenFunc != nil {
		return m.GetByTokenFunc(ctx, token)
	}
	return nil, models.ErrNotFound
}

func (m *MockPasswordResetRepository) MarkUsed(ctx context.Context, tokenID int64) (bool, error) {
	if m.MarkUsedFunc != nil {
		return m.MarkUsedFunc(ctx, tokenID)
	}
	return true, nil
}

// MockNotifier records queued notifications by kind
type MockNotifier struct {
	Err error

	mu    sync.Mutex
	calls []string
}

func (m *MockNotifier) record(kind string) error {
	m.mu.Lock()
	m.calls = append(m.calls, kind)
	m.mu.Unlock()
	return m.Err
}

func (m *MockNotifier) PasswordResetRequested(_ context.Context, _ *models.User, _ string, _ time.Time) error {
	return m.record("password_reset_requested")
}

func (m *MockNotifier) PasswordResetCompleted(_ context.Context, _ *models.User, _ time.Time, _ string) error {
	return m.record("password_reset_completed")
}

func (m *MockNotifier) TwoFactorEnabled(_ context.Context, _ *models.User) error {
	return m.record("2fa_enabled")
}

func (m *MockNotifier) TwoFactorDisabled(_ context.Context, _ *models.User) error {
	return m.record("2fa_disabled")
}

func (m *MockNotifier) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

// MockQueue collects published messages
type MockQueue struct {
	Err error

	mu       sync.Mutex
	messages []*models.NotificationMessage
}

func (m *MockQueue) Publish(_ context.Context, msg *models.NotificationMessage) error {
	if m.Err != nil {
		return m.Err
	}
	m.mu.Lock()
	m.messages = append(m.messages, msg)
	m.mu.Unlock()
	return nil
}

func (m *MockQueue) Messages() []*models.NotificationMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*models.NotificationMessage(nil), m.messages...)
}

// Test fixtures

const testPassword = "SecurePassword123!"

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func testAuditLogger() *pkglogger.AuditLogger {
	return pkglogger.NewAuditLogger(testLogger())
}

func testRequestInfo() models.RequestInfo {
	return models.RequestInfo{IPAddress: "203.0.113.10", UserAgent: "test-agent"}
}

var testPasswordHash = sync.OnceValue(func() string {
	hash, err := pkgauth.HashPassword(testPassword)
	if err != nil {
		panic(err)
	}
	return hash
})

// NewTestUser creates an active user with testPassword as its password
func NewTestUser(id, email string) *models.User {
	hash := testPasswordHash()
	return &models.User{
		ID:           id,
		FirstName:    "Jane",
		LastName:     "Doe",
		Email:        email,
		PasswordHash: hash,
		RoleID:       3,
		RoleName:     "Cashier",
		IsActive:     true,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}
}
