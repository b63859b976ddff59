package email

import (
	"context"
	"fmt"

	"github.com/dmitrymomot/authkit/pkg/email/templates"
)

// Tags attached to authentication emails.
const (
	TagVerification  = "email-verification"
	TagPasswordReset = "password-reset"
)

// AuthMailer renders the authentication templates and hands them to an EmailSender.
type AuthMailer struct {
	sender  EmailSender
	product string
}

func NewAuthMailer(sender EmailSender, productName string) *AuthMailer {
	if productName == "" {
		productName = "Authkit"
	}
	return &AuthMailer{sender: sender, product: productName}
}

func (m *AuthMailer) SendVerificationEmail(ctx context.Context, to, link string) error {
	body, err := templates.Render(ctx, templates.VerificationEmail(m.product, link))
	if err != nil {
		return fmt.Errorf("failed to render verification email: %w", err)
	}
	return m.sender.SendEmail(ctx, SendEmailParams{
		SendTo:   to,
		Subject:  "Verify your email address",
		BodyHTML: body,
		Tag:      TagVerification,
	})
}

func (m *AuthMailer) SendPasswordResetEmail(ctx context.Context, to, link string) error {
	body, err := templates.Render(ctx, templates.PasswordResetEmail(m.product, link))
	if err != nil {
		return fmt.Errorf("failed to render password reset email: %w", err)
	}
	return m.sender.SendEmail(ctx, SendEmailParams{
		SendTo:   to,
		Subject:  "Reset your password",
		BodyHTML: body,
		Tag:      TagPasswordReset,
	})
}
