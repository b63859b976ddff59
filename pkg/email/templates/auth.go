package templates

import (
	"context"
	"io"

	"github.com/a-h/templ"
)

// VerificationEmail asks the recipient to confirm their address.
func VerificationEmail(product, link string) templ.Component {
	return actionEmail(product,
		"Confirm your email address",
		"Thanks for signing up. Click the button below to verify your email address.",
		"Verify email",
		link,
		"If you did not create an account, you can ignore this message.",
	)
}

// PasswordResetEmail carries a single-use reset link.
func PasswordResetEmail(product, link string) templ.Component {
	return actionEmail(product,
		"Reset your password",
		"We received a request to reset your password. The link below can be used once and expires soon.",
		"Reset password",
		link,
		"If you did not request a password reset, no action is needed.",
	)
}

func actionEmail(product, title, intro, action, link, footer string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		href := string(templ.URL(link))
		parts := []string{
			`<!doctype html><html><head><meta charset="utf-8"><title>`,
			templ.EscapeString(title),
			`</title></head><body style="font-family:sans-serif;color:#222">`,
			`<h2>`, templ.EscapeString(product), `</h2>`,
			`<h3>`, templ.EscapeString(title), `</h3>`,
			`<p>`, templ.EscapeString(intro), `</p>`,
			`<p><a href="`, templ.EscapeString(href), `" style="display:inline-block;padding:10px 16px;background:#2d6cdf;color:#fff;text-decoration:none;border-radius:4px">`,
			templ.EscapeString(action), `</a></p>`,
			`<p style="font-size:12px;color:#666">`, templ.EscapeString(link), `</p>`,
			`<p style="font-size:12px;color:#666">`, templ.EscapeString(footer), `</p>`,
			`</body></html>`,
		}
		for _, p := range parts {
			if _, err := io.WriteString(w, p); err != nil {
				return err
			}
		}
		return nil
	})
}
