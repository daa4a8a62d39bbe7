//go:build integration

package integration

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BradenHooton/posgate/internal/models"
	"github.com/BradenHooton/posgate/internal/repositories"
)

var testDB *TestDB

func TestMain(m *testing.M) {
	ctx := context.Background()

	db, err := SetupTestDatabase(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "integration setup failed: %v\n", err)
		os.Exit(1)
	}
	testDB = db

	code := m.Run()

	if err := db.Teardown(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "integration teardown failed: %v\n", err)
	}
	os.Exit(code)
}

func newServer(t *testing.T) *TestServer {
	t.Helper()
	require.NoError(t, testDB.CleanupTables(context.Background()))
	ts := NewTestServer(testDB.DB)
	t.Cleanup(ts.Close)
	return ts
}

func login(t *testing.T, ts *TestServer, email, password string) (*http.Response, *Envelope, *LoginData) {
	t.Helper()
	resp, err := ts.Request("POST", "/api/v1/auth/login", map[string]any{
		"email":    email,
		"password": password,
	}, nil)
	require.NoError(t, err)
	var data LoginData
	env, err := ParseEnvelope(resp, &data)
	require.NoError(t, err)
	return resp, env, &data
}

func TestLoginLogoutFlow(t *testing.T) {
	ts := newServer(t)
	ctx := context.Background()
	email, password := TestUser("logout")
	_, err := SeedUser(ctx, testDB.DB, email, password, CashierRoleID)
	require.NoError(t, err)

	resp, env, data := login(t, ts, email, password)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, models.CodeLoginSuccessful, env.Message)
	require.NotEmpty(t, data.AccessToken)
	require.NotEmpty(t, data.RefreshToken)

	// Refresh accepts the refresh token
	resp, err = ts.RequestWithAuth("POST", "/api/v1/auth/refresh", data.RefreshToken, nil)
	require.NoError(t, err)
	env, err = ParseEnvelope(resp, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, models.CodeTokenRefreshed, env.Message)

	resp, err = ts.RequestWithAuth("POST", "/api/v1/auth/logout", data.AccessToken, nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// The session is gone for every token minted on it
	resp, err = ts.RequestWithAuth("POST", "/api/v1/auth/refresh", data.RefreshToken, nil)
	require.NoError(t, err)
	env, err = ParseEnvelope(resp, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, models.CodeSessionInactive, env.Message)
}

func TestExpiredSessionsReleaseActiveCount(t *testing.T) {
	ts := newServer(t)
	ctx := context.Background()
	email, password := TestUser("expiry")
	user, err := SeedUser(ctx, testDB.DB, email, password, CashierRoleID)
	require.NoError(t, err)

	_, _, first := login(t, ts, email, password)
	_, _, second := login(t, ts, email, password)
	require.NotEmpty(t, first.SessionID)
	require.NotEmpty(t, second.SessionID)

	_, err = testDB.Pool.Exec(ctx,
		`UPDATE user_sessions SET expires_at = NOW() - INTERVAL '1 minute' WHERE session_id = $1`,
		first.SessionID,
	)
	require.NoError(t, err)

	closed, err := repositories.NewSessionRepository(testDB.DB).DeactivateExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), closed)

	var active int
	err = testDB.Pool.QueryRow(ctx,
		`SELECT active_sessions_count FROM user_login_statistics WHERE user_id = $1`, user.ID,
	).Scan(&active)
	require.NoError(t, err)
	assert.Equal(t, 1, active)
}

func TestAccountLocksAfterFiveFailures(t *testing.T) {
	ts := newServer(t)
	ctx := context.Background()
	email, password := TestUser("lockout")
	user, err := SeedUser(ctx, testDB.DB, email, password, CashierRoleID)
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		resp, env, _ := login(t, ts, email, "WrongPassword1!")
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Equal(t, models.CodeInvalidCredentials, env.Message)
		assert.Contains(t, env.Error, fmt.Sprintf("%d attempts remaining", 4-i))
	}

	resp, env, _ := login(t, ts, email, "WrongPassword1!")
	assert.Equal(t, http.StatusLocked, resp.StatusCode)
	assert.Equal(t, models.CodeAccountLocked, env.Message)

	// The right password does not open a locked account
	resp, env, _ = login(t, ts, email, password)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, models.CodeAccountLocked, env.Message)

	var locks int
	err = testDB.Pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM user_activity_logs WHERE user_id = $1 AND action_type = $2`,
		user.ID, models.ActivityAccountLocked,
	).Scan(&locks)
	require.NoError(t, err)
	assert.Equal(t, 1, locks)
}

func TestPasswordResetTokenIsSingleUse(t *testing.T) {
	ts := newServer(t)
	ctx := context.Background()
	email, password := TestUser("reset")
	user, err := SeedUser(ctx, testDB.DB, email, password, CashierRoleID)
	require.NoError(t, err)

	resp, err := ts.Request("POST", "/api/v1/auth/forgot-password", map[string]string{"email": email}, nil)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, ts.Notifications.Len())

	token, err := LatestResetToken(ctx, testDB.Pool, user.ID)
	require.NoError(t, err)

	resp, err = ts.Request("GET", "/api/v1/auth/validate-reset-token?token="+token, nil, nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body := map[string]string{
		"token":            token,
		"new_password":     "BrandNewPass789!",
		"confirm_password": "BrandNewPass789!",
	}
	resp, err = ts.Request("POST", "/api/v1/auth/reset-password", body, nil)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = ts.Request("POST", "/api/v1/auth/reset-password", body, nil)
	require.NoError(t, err)
	env, err := ParseEnvelope(resp, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusGone, resp.StatusCode)
	assert.Equal(t, models.CodeTokenAlreadyUsed, env.Message)

	resp, err = ts.Request("GET", "/api/v1/auth/validate-reset-token?token="+token, nil, nil)
	require.NoError(t, err)
	env, err = ParseEnvelope(resp, nil)
	require.NoError(t, err)
	assert.Equal(t, models.CodeTokenAlreadyUsed, env.Message)

	resp, _, _ = login(t, ts, email, password)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp, _, _ = login(t, ts, email, "BrandNewPass789!")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestForgotPasswordUnknownEmail(t *testing.T) {
	ts := newServer(t)

	resp, err := ts.Request("POST", "/api/v1/auth/forgot-password", map[string]string{"email": "nobody@example.com"}, nil)
	require.NoError(t, err)
	env, err := ParseEnvelope(resp, nil)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, models.CodePasswordResetSent, env.Message)
	assert.Zero(t, ts.Notifications.Len())
}

func TestTwoFactorBackupCodeIsSingleUse(t *testing.T) {
	ts := newServer(t)
	email, password := TestUser("2fa")
	_, err := SeedUser(context.Background(), testDB.DB, email, password, CashierRoleID)
	require.NoError(t, err)

	_, _, session := login(t, ts, email, password)
	require.NotEmpty(t, session.AccessToken)

	resp, err := ts.RequestWithAuth("POST", "/api/v1/auth/2fa/generate", session.AccessToken, nil)
	require.NoError(t, err)
	var setup models.TwoFactorSetupResponse
	_, err = ParseEnvelope(resp, &setup)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotEmpty(t, setup.BackupCodes)

	code, err := totp.GenerateCode(setup.Secret, time.Now())
	require.NoError(t, err)
	resp, err = ts.RequestWithAuth("POST", "/api/v1/auth/2fa/enable", session.AccessToken, map[string]string{"code": code})
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, env, challenge := login(t, ts, email, password)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, models.CodeTwoFactorRequired, env.Message)
	require.True(t, challenge.Requires2FA)
	assert.Empty(t, challenge.AccessToken)

	verify := map[string]string{
		"user_id": challenge.User.ID,
		"type":    models.TwoFactorTypeBackup,
		"code":    setup.BackupCodes[0],
	}
	resp, err = ts.Request("POST", "/api/v1/auth/2fa/verify", verify, nil)
	require.NoError(t, err)
	var verified LoginData
	env, err = ParseEnvelope(resp, &verified)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, models.CodeTwoFactorVerified, env.Message)
	assert.True(t, verified.Is2FAAuthenticated)
	assert.NotEmpty(t, verified.AccessToken)

	resp, err = ts.Request("POST", "/api/v1/auth/2fa/verify", verify, nil)
	require.NoError(t, err)
	env, err = ParseEnvelope(resp, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, models.CodeInvalidTwoFactorToken, env.Message)

	// Disabling removes the challenge from the next login
	resp, err = ts.RequestWithAuth("POST", "/api/v1/auth/2fa/disable", verified.AccessToken, nil)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, env, _ = login(t, ts, email, password)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, models.CodeLoginSuccessful, env.Message)
}

func TestForwarding(t *testing.T) {
	ts := newServer(t)
	ctx := context.Background()

	adminEmail, password := TestUser("admin")
	admin, err := SeedUser(ctx, testDB.DB, adminEmail, password, models.SuperAdminRoleID)
	require.NoError(t, err)
	cashierEmail, _ := TestUser("cashier")
	_, err = SeedUser(ctx, testDB.DB, cashierEmail, password, CashierRoleID)
	require.NoError(t, err)

	resp, err := ts.Request("GET", "/api/v1/public/menu", nil, nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	_, _, adminSession := login(t, ts, adminEmail, password)
	resp, err = ts.RequestWithAuth("GET", "/api/v1/orders", adminSession.AccessToken, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var echoed map[string]string
	require.NoError(t, decodeJSON(resp, &echoed))
	assert.Equal(t, admin.ID, echoed["user_id"])
	assert.Equal(t, "/api/v1/orders", echoed["path"])

	_, _, cashierSession := login(t, ts, cashierEmail, password)
	resp, err = ts.RequestWithAuth("GET", "/api/v1/orders", cashierSession.AccessToken, nil)
	require.NoError(t, err)
	env, err := ParseEnvelope(resp, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, models.CodeAccessDenied, env.Message)
}
