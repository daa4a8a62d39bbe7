package auth

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	qrcode "github.com/skip2/go-qrcode"
	"golang.org/x/crypto/bcrypt"
)

const (
	totpPeriod = 30
	totpSkew   = 1 // ±1 step

	backupCodeLength  = 8
	backupCodeCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

	// BackupCodeCost is lower than the password cost because verification
	// may compare against every remaining hash
	BackupCodeCost = 10

	qrCodeSize = 256
)

// TOTPManager handles TOTP secrets, QR rendering and backup codes
type TOTPManager struct {
	issuer string
}

func NewTOTPManager(issuer string) *TOTPManager {
	return &TOTPManager{issuer: issuer}
}

// GenerateSecretWithQR creates a base32 secret for accountName and renders
// its otpauth URL as a PNG data URL
func (tm *TOTPManager) GenerateSecretWithQR(accountName string) (secret string, qrDataURL string, err error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      tm.issuer,
		AccountName: accountName,
		Period:      totpPeriod,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return "", "", fmt.Errorf("failed to generate TOTP key: %w", err)
	}

	png, err := qrcode.Encode(key.URL(), qrcode.High, qrCodeSize)
	if err != nil {
		return "", "", fmt.Errorf("failed to encode QR code: %w", err)
	}

	return key.Secret(), "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}

// ValidateTOTP checks a 6 digit code against the secret at now, allowing one
// step of clock drift either way
func (tm *TOTPManager) ValidateTOTP(secret, code string, now time.Time) (bool, error) {
	valid, err := totp.ValidateCustom(code, secret, now, totp.ValidateOpts{
		Period:    totpPeriod,
		Skew:      totpSkew,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil {
		// Malformed codes are just wrong codes
		if errors.Is(err, otp.ErrValidateInputInvalidLength) {
			return false, nil
		}
		return false, fmt.Errorf("failed to validate TOTP: %w", err)
	}
	return valid, nil
}

// GenerateBackupCodes returns count codes formatted XXXX-XXXX for display
func (tm *TOTPManager) GenerateBackupCodes(count int) ([]string, error) {
	charsetLen := big.NewInt(int64(len(backupCodeCharset)))
	codes := make([]string, count)

	for i := range codes {
		var b strings.Builder
		for j := 0; j < backupCodeLength; j++ {
			if j == backupCodeLength/2 {
				b.WriteByte('-')
			}
			n, err := rand.Int(rand.Reader, charsetLen)
			if err != nil {
				return nil, fmt.Errorf("failed to generate backup code: %w", err)
			}
			b.WriteByte(backupCodeCharset[n.Int64()])
		}
		codes[i] = b.String()
	}

	return codes, nil
}

// NormalizeBackupCode strips the display hyphen. Codes are case-sensitive.
func NormalizeBackupCode(code string) string {
	return strings.ReplaceAll(strings.TrimSpace(code), "-", "")
}

// HashBackupCodes bcrypt-hashes normalized codes, preserving order
func (tm *TOTPManager) HashBackupCodes(codes []string) ([]string, error) {
	hashes := make([]string, len(codes))
	for i, code := range codes {
		h, err := bcrypt.GenerateFromPassword([]byte(NormalizeBackupCode(code)), BackupCodeCost)
		if err != nil {
			return nil, fmt.Errorf("failed to hash backup code: %w", err)
		}
		hashes[i] = string(h)
	}
	return hashes, nil
}

// MatchBackupCode scans the stored hashes in order and returns the first one
// matching code. ok is false when none match.
func (tm *TOTPManager) MatchBackupCode(hashes []string, code string) (hash string, ok bool) {
	candidate := []byte(NormalizeBackupCode(code))
	for _, h := range hashes {
		if bcrypt.CompareHashAndPassword([]byte(h), candidate) == nil {
			return h, true
		}
	}
	return "", false
}
