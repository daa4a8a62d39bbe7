package integration

import (
	"fmt"
	"time"

	"github.com/BradenHooton/posgate/internal/models"
)

const (
	// TestPassword satisfies the password policy
	TestPassword = "TestPassword123!"

	CashierRoleID = 3
)

// TestUser generates unique test user credentials using timestamp
func TestUser(suffix string) (email, password string) {
	ts := time.Now().UnixNano()
	email = fmt.Sprintf("test-%d-%s@example.com", ts, suffix)
	password = TestPassword
	return
}

// LoginData is the data field of a login or 2FA verify envelope
type LoginData struct {
	AccessToken        string             `json:"accessToken"`
	RefreshToken       string             `json:"refreshToken"`
	SessionID          string             `json:"session_id"`
	Requires2FA        bool               `json:"requires_2fa"`
	Is2FAAuthenticated bool               `json:"is_2fa_authenticated"`
	User               models.UserSummary `json:"user"`
}
