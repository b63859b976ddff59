package authentication

import (
	"github.com/dmitrymomot/authkit/pkg/auth"
	"github.com/dmitrymomot/authkit/pkg/handler"
	"github.com/dmitrymomot/authkit/pkg/validator"
)

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (m *Module) register(ctx handler.Context, req credentialsRequest) handler.Response {
	if _, err := m.svc.Register(ctx, req.Email, req.Password); err != nil {
		return handler.Error(err)
	}
	return handler.Message("Registration was successful")
}

func (m *Module) login(ctx handler.Context, req credentialsRequest) handler.Response {
	sess, err := m.svc.Login(ctx, req.Email, req.Password, auth.ClientIDFromContext(ctx))
	if err != nil {
		return handler.Error(err)
	}
	return handler.JSON(sess)
}

type emailRequest struct {
	Email string `json:"email"`
}

// Unknown and inactive addresses get the same answer as real ones.
func (m *Module) forgotPassword(ctx handler.Context, req emailRequest) handler.Response {
	if err := m.svc.ForgotPassword(ctx, req.Email); err != nil {
		return handler.Error(err)
	}
	return handler.Message("Ok")
}

func (m *Module) resendVerification(ctx handler.Context, req emailRequest) handler.Response {
	if err := validator.Apply(validator.Required("email", req.Email)); err != nil {
		return handler.Error(err)
	}
	if err := m.svc.ResendVerification(ctx, req.Email); err != nil {
		return handler.Error(err)
	}
	return handler.Message("Ok")
}

type resetPasswordRequest struct {
	Token    string `json:"passwordResetToken"`
	Password string `json:"password"`
}

func (m *Module) resetPassword(ctx handler.Context, req resetPasswordRequest) handler.Response {
	if err := validator.Apply(
		validator.Required("passwordResetToken", req.Token),
		validator.Required("password", req.Password),
	); err != nil {
		return handler.Error(err)
	}
	if err := m.svc.ResetPassword(ctx, req.Token, req.Password); err != nil {
		return handler.Error(err)
	}
	return handler.Message("Password was reset")
}

type verifyEmailRequest struct {
	Token string `path:"verificationToken"`
}

func (m *Module) verifyEmail(ctx handler.Context, req verifyEmailRequest) handler.Response {
	if _, err := m.svc.ConsumeVerification(ctx, req.Token); err != nil {
		return handler.Error(err)
	}
	return handler.Message("Email verified")
}
