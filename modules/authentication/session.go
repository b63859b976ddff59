package authentication

import (
	"github.com/dmitrymomot/authkit/pkg/auth"
	"github.com/dmitrymomot/authkit/pkg/handler"
	"github.com/dmitrymomot/authkit/pkg/validator"
)

type renewRequest struct {
	RefreshToken string `json:"refreshToken"`
}

func (m *Module) renew(ctx handler.Context, req renewRequest) handler.Response {
	if err := validator.Apply(validator.Required("refreshToken", req.RefreshToken)); err != nil {
		return handler.Error(err)
	}
	sess, err := m.svc.Renew(ctx, req.RefreshToken, auth.ClientIDFromContext(ctx))
	if err != nil {
		return handler.Error(err)
	}
	return handler.JSON(sess)
}

// Protected routes run behind auth.Middleware, so the user is always present.
func currentUser(ctx handler.Context) (*auth.User, error) {
	user, ok := auth.UserFromContext(ctx)
	if !ok {
		return nil, auth.ErrUnauthorized
	}
	return user, nil
}

func (m *Module) logout(ctx handler.Context, _ struct{}) handler.Response {
	user, err := currentUser(ctx)
	if err != nil {
		return handler.Error(err)
	}
	if err := m.svc.Logout(ctx, user.ID, auth.ClientIDFromContext(ctx)); err != nil {
		return handler.Error(err)
	}
	return handler.Message("Logged out")
}

func (m *Module) currentUser(ctx handler.Context, _ struct{}) handler.Response {
	user, err := currentUser(ctx)
	if err != nil {
		return handler.Error(err)
	}
	return handler.JSON(user)
}

type changePasswordRequest struct {
	OldPassword string `json:"oldPassword"`
	NewPassword string `json:"newPassword"`
}

func (m *Module) changePassword(ctx handler.Context, req changePasswordRequest) handler.Response {
	user, err := currentUser(ctx)
	if err != nil {
		return handler.Error(err)
	}
	if err := validator.Apply(validator.Required("oldPassword", req.OldPassword)); err != nil {
		return handler.Error(err)
	}
	if err := m.svc.ChangePassword(ctx, user.ID, req.OldPassword, req.NewPassword); err != nil {
		return handler.Error(err)
	}
	return handler.Message("Password was changed")
}
