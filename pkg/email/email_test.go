package email_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/authkit/pkg/email"
	"github.com/dmitrymomot/authkit/pkg/email/templates"
)

type mockSender struct {
	mock.Mock
}

func (m *mockSender) SendEmail(ctx context.Context, params email.SendEmailParams) error {
	return m.Called(ctx, params).Error(0)
}

func TestSendEmailParams_Validate(t *testing.T) {
	t.Parallel()

	valid := email.SendEmailParams{SendTo: "a@example.com", Subject: "s", BodyHTML: "<p>x</p>"}
	assert.NoError(t, valid.Validate())

	invalid := valid
	invalid.SendTo = "nope"
	assert.ErrorIs(t, invalid.Validate(), email.ErrInvalidParams)

	invalid = valid
	invalid.BodyHTML = ""
	assert.ErrorIs(t, invalid.Validate(), email.ErrInvalidParams)
}

func TestNewPostmarkClient(t *testing.T) {
	t.Parallel()

	cfg := email.Config{
		PostmarkServerToken:  "server",
		PostmarkAccountToken: "account",
		SenderEmail:          "noreply@example.com",
		SupportEmail:         "support@example.com",
	}
	client, err := email.NewPostmarkClient(cfg)
	require.NoError(t, err)
	assert.NotNil(t, client)
	assert.True(t, cfg.UsePostmark())

	t.Run("missing token", func(t *testing.T) {
		bad := cfg
		bad.PostmarkServerToken = ""
		_, err := email.NewPostmarkClient(bad)
		assert.ErrorIs(t, err, email.ErrInvalidConfig)
		assert.False(t, bad.UsePostmark())
	})

	t.Run("bad sender", func(t *testing.T) {
		bad := cfg
		bad.SenderEmail = "not-an-email"
		_, err := email.NewPostmarkClient(bad)
		assert.ErrorIs(t, err, email.ErrInvalidConfig)
	})
}

func TestDevSender(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	sender := email.NewDevSender(dir)

	err := sender.SendEmail(t.Context(), email.SendEmailParams{
		SendTo:   "user@example.com",
		Subject:  "Hello there",
		BodyHTML: "<p>hi</p>",
		Tag:      "greeting",
	})
	require.NoError(t, err)

	htmlFiles, err := filepath.Glob(filepath.Join(dir, "*_greeting.html"))
	require.NoError(t, err)
	require.Len(t, htmlFiles, 1)
	body, err := os.ReadFile(htmlFiles[0])
	require.NoError(t, err)
	assert.Equal(t, "<p>hi</p>", string(body))

	meta, err := os.ReadFile(strings.TrimSuffix(htmlFiles[0], ".html") + ".json")
	require.NoError(t, err)
	var decoded map[string]string
	require.NoError(t, json.Unmarshal(meta, &decoded))
	assert.Equal(t, "user@example.com", decoded["send_to"])

	assert.Error(t, sender.SendEmail(t.Context(), email.SendEmailParams{}))
}

func TestAuthMailer(t *testing.T) {
	t.Parallel()

	sender := &mockSender{}
	sender.On("SendEmail", mock.Anything, mock.MatchedBy(func(p email.SendEmailParams) bool {
		return p.SendTo == "user@example.com" &&
			p.Tag == email.TagVerification &&
			strings.Contains(p.BodyHTML, "https://auth.example.com/hook/verify-email/abc") &&
			strings.Contains(p.BodyHTML, "Acme")
	})).Return(nil).Once()
	sender.On("SendEmail", mock.Anything, mock.MatchedBy(func(p email.SendEmailParams) bool {
		return p.Tag == email.TagPasswordReset &&
			strings.Contains(p.BodyHTML, "https://app.example.com/reset?token=xyz")
	})).Return(nil).Once()

	mailer := email.NewAuthMailer(sender, "Acme")
	require.NoError(t, mailer.SendVerificationEmail(t.Context(), "user@example.com", "https://auth.example.com/hook/verify-email/abc"))
	require.NoError(t, mailer.SendPasswordResetEmail(t.Context(), "user@example.com", "https://app.example.com/reset?token=xyz"))
	sender.AssertExpectations(t)
}

func TestTemplatesEscape(t *testing.T) {
	t.Parallel()

	html, err := templates.Render(t.Context(), templates.VerificationEmail("<b>Acme</b>", "javascript:alert(1)"))
	require.NoError(t, err)
	assert.NotContains(t, html, "<b>Acme</b>")
	assert.Contains(t, html, "&lt;b&gt;Acme&lt;/b&gt;")
	assert.NotContains(t, html, `href="javascript:`)
}
