package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
)

// EmailService defines the interface for sending emails
type EmailService interface {
	SendPasswordResetEmail(ctx context.Context, email, token string, expiresAt time.Time) error
}

// AWSSESEmailService sends emails using AWS SES
type AWSSESEmailService struct {
	sesClient   *ses.Client
	fromAddress string
	resetURL    string
	logger      *slog.Logger
}

func NewAWSSESEmailService(region, fromAddress, resetURL string, logger *slog.Logger) (*AWSSESEmailService, error) {
	cfg, err := config.LoadDefaultConfig(context.Background(), config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &AWSSESEmailService{
		sesClient:   ses.NewFromConfig(cfg),
		fromAddress: fromAddress,
		resetURL:    resetURL,
		logger:      logger,
	}, nil
}

// SendPasswordResetEmail sends a single-use password reset link.
func (s *AWSSESEmailService) SendPasswordResetEmail(ctx context.Context, email, token string, expiresAt time.Time) error {
	resetLink := fmt.Sprintf("%s/reset-password?token=%s", s.resetURL, token)
	validFor := time.Until(expiresAt).Round(time.Minute)

	htmlBody := fmt.Sprintf(`
<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"></head>
<body style="font-family: Arial, sans-serif; color: #333;">
  <div style="max-width: 600px; margin: 0 auto; padding: 20px;">
    <h1>Reset Your Password</h1>
    <p>We received a request to reset the password for this account. Click the link below to choose a new password:</p>
    <p><a href="%s" style="display: inline-block; background-color: #0066cc; color: white; padding: 12px 24px; text-decoration: none; border-radius: 4px;">Reset Password</a></p>
    <p>Or copy and paste this link in your browser:<br><code>%s</code></p>
    <p>This link can be used once and expires in %s.</p>
    <p>If you didn't request a password reset, you can ignore this email. Your password will not change.</p>
  </div>
</body>
</html>
`, resetLink, resetLink, validFor)

	textBody := fmt.Sprintf(`Reset Your Password

We received a request to reset the password for this account. Open the link below to choose a new password:

%s

This link can be used once and expires in %s.

If you didn't request a password reset, you can ignore this email. Your password will not change.
`, resetLink, validFor)

	input := &ses.SendEmailInput{
		Source: aws.String(s.fromAddress),
		Destination: &types.Destination{
			ToAddresses: []string{email},
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data: aws.String("Reset your password"),
			},
			Body: &types.Body{
				Html: &types.Content{
					Data: aws.String(htmlBody),
				},
				Text: &types.Content{
					Data: aws.String(textBody),
				},
			},
		},
	}

	result, err := s.sesClient.SendEmail(ctx, input)
	if err != nil {
		s.logger.Error("failed to send password reset email via SES", slog.Any("error", err))
		return fmt.Errorf("failed to send email: %w", err)
	}

	s.logger.Info("password reset email sent", slog.String("message_id", *result.MessageId))
	return nil
}

// NoopEmailService is used when email delivery is disabled; it logs the
// reset link instead of sending it, which keeps local development usable.
type NoopEmailService struct {
	logger *slog.Logger
}

func NewNoopEmailService(logger *slog.Logger) *NoopEmailService {
	return &NoopEmailService{logger: logger}
}

func (s *NoopEmailService) SendPasswordResetEmail(ctx context.Context, email, token string, expiresAt time.Time) error {
	s.logger.Info("email delivery disabled, password reset token not sent",
		slog.String("token", token),
		slog.Time("expires_at", expiresAt))
	return nil
}
