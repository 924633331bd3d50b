package auth

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	qrcode "github.com/skip2/go-qrcode"
)

const (
	totpPeriod = 30
	totpSkew   = 1

	// ReplayWindow is period * (1 + skew): a second successful verification
	// inside it could only be the same code presented twice.
	ReplayWindow = totpPeriod * (1 + totpSkew) * time.Second
)

// Enrollment is the material produced when TOTP setup starts. Secret and
// QRCode are shown to the user exactly once; only the encrypted form is
// persisted.
type Enrollment struct {
	Secret          string // Base32 secret for manual entry
	OTPAuthURL      string
	QRCode          string // PNG data URL of the provisioning URI
	SecretEncrypted []byte
	SecretNonce     []byte
}

// TOTPManager generates and verifies time-based one-time codes and holds
// the key encrypting secrets at rest.
type TOTPManager struct {
	encryptionKey []byte // 32-byte AES-256 key
	issuer        string

	now func() time.Time
}

func NewTOTPManager(encryptionKey []byte, issuer string) (*TOTPManager, error) {
	if len(encryptionKey) != 32 {
		return nil, fmt.Errorf("encryption key must be exactly 32 bytes, got %d", len(encryptionKey))
	}

	return &TOTPManager{
		encryptionKey: encryptionKey,
		issuer:        issuer,
		now:           time.Now,
	}, nil
}

// GenerateEnrollment creates a fresh secret, its provisioning QR code, and
// the encrypted form for storage.
func (tm *TOTPManager) GenerateEnrollment(accountName string) (*Enrollment, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      tm.issuer,
		AccountName: accountName,
		SecretSize:  32,
		Period:      totpPeriod,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate TOTP key: %w", err)
	}

	encrypted, nonce, err := tm.EncryptSecret(key.Secret())
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt secret: %w", err)
	}

	qr, err := qrcode.New(key.URL(), qrcode.Medium)
	if err != nil {
		return nil, fmt.Errorf("failed to create QR code: %w", err)
	}
	qrImage, err := qr.PNG(200)
	if err != nil {
		return nil, fmt.Errorf("failed to encode QR code: %w", err)
	}

	return &Enrollment{
		Secret:          key.Secret(),
		OTPAuthURL:      key.URL(),
		QRCode:          "data:image/png;base64," + base64.StdEncoding.EncodeToString(qrImage),
		SecretEncrypted: encrypted,
		SecretNonce:     nonce,
	}, nil
}

// EncryptSecret encrypts a TOTP secret with AES-256-GCM.
func (tm *TOTPManager) EncryptSecret(secret string) ([]byte, []byte, error) {
	block, err := aes.NewCipher(tm.encryptionKey)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	return gcm.Seal(nil, nonce, []byte(secret), nil), nonce, nil
}

// DecryptSecret recovers a TOTP secret encrypted by EncryptSecret.
func (tm *TOTPManager) DecryptSecret(encrypted, nonce []byte) (string, error) {
	block, err := aes.NewCipher(tm.encryptionKey)
	if err != nil {
		return "", fmt.Errorf("failed to create AES cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("failed to create GCM: %w", err)
	}

	plaintext, err := gcm.Open(nil, nonce, encrypted, nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt secret: %w", err)
	}

	return string(plaintext), nil
}

// VerifyCode reports whether code is valid for secret at the given time,
// allowing one period of clock skew either side. Pure function: no side
// effects, no logging.
func VerifyCode(secret, code string, at time.Time) bool {
	valid, err := totp.ValidateCustom(code, secret, at, totp.ValidateOpts{
		Period:    totpPeriod,
		Skew:      totpSkew,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	return err == nil && valid
}

// ValidateCode verifies a code against the secret and guards against replay:
// a success within ReplayWindow of the previous one is rejected, since the
// skew window would otherwise accept the same code twice.
func (tm *TOTPManager) ValidateCode(secret, code string, lastUsed *time.Time) bool {
	at := tm.now()

	if !VerifyCode(secret, code, at) {
		return false
	}

	if lastUsed != nil && at.Sub(*lastUsed) < ReplayWindow {
		return false
	}

	return true
}

// GenerateBackupCodes generates count random single-use recovery codes.
// Charset avoids ambiguous characters (0/O, 1/I/L).
func (tm *TOTPManager) GenerateBackupCodes(count int) ([]string, error) {
	const charset = "23456789ABCDEFGHJKMNPQRSTUVWXYZ"
	const codeLen = 8

	codes := make([]string, count)
	buf := make([]byte, codeLen)
	for i := 0; i < count; i++ {
		if _, err := rand.Read(buf); err != nil {
			return nil, fmt.Errorf("failed to generate backup code: %w", err)
		}
		code := make([]byte, codeLen)
		for j, b := range buf {
			code[j] = charset[int(b)%len(charset)]
		}
		codes[i] = string(code)
	}

	return codes, nil
}
