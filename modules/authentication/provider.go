package authentication

import (
	"github.com/dmitrymomot/authkit/pkg/auth"
	"github.com/dmitrymomot/authkit/pkg/handler"
)

// providerLoginRequest accepts a provider access token, an id_token or an
// authorization code. Any other body field is rejected by the binder.
type providerLoginRequest struct {
	Provider    string `path:"provider" json:"-"`
	AccessToken string `json:"access_token"`
	IDToken     string `json:"id_token"`
	Code        string `json:"code"`
}

func (m *Module) loginWithProvider(ctx handler.Context, req providerLoginRequest) handler.Response {
	sess, err := m.svc.LoginWithProvider(ctx, req.Provider, auth.ProviderCredential{
		AccessToken: req.AccessToken,
		IDToken:     req.IDToken,
		Code:        req.Code,
	}, auth.ClientIDFromContext(ctx))
	if err != nil {
		return handler.Error(err)
	}
	return handler.JSON(sess)
}

type providerRequest struct {
	Provider string `path:"provider"`
}

func (m *Module) initProvider(ctx handler.Context, req providerRequest) handler.Response {
	url, err := m.svc.AuthorizationURL(req.Provider, auth.ClientIDFromContext(ctx))
	if err != nil {
		return handler.Error(err)
	}
	return handler.Redirect(url)
}

type providerCallbackRequest struct {
	Provider string `path:"provider"`
	Code     string `query:"code"`
	State    string `query:"state"`
}

func (m *Module) providerCallback(ctx handler.Context, req providerCallbackRequest) handler.Response {
	sess, err := m.svc.CompleteAuthorization(ctx, req.Provider, req.Code, req.State)
	if err != nil {
		return handler.Error(err)
	}
	return handler.JSON(sess)
}
