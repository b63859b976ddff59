// Package email sends transactional emails through a provider-agnostic
// EmailSender with Postmark for production and DevSender for local runs.
//
// AuthMailer renders the verification and password reset templates from the
// templates subpackage and delivers them:
//
//	var sender email.EmailSender
//	if cfg.UsePostmark() {
//		sender, err = email.NewPostmarkClient(cfg)
//	} else {
//		sender = email.NewDevSender(cfg.DevOutputDir)
//	}
//	mailer := email.NewAuthMailer(sender, cfg.ProductName)
//	err = mailer.SendVerificationEmail(ctx, "user@example.com", link)
package email
