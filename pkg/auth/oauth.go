package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/oauth2"

	"github.com/dmitrymomot/authkit/pkg/sanitizer"
)

// TokenPlacement says how the provider access token travels to the profile endpoint.
type TokenPlacement int

const (
	TokenInHeader TokenPlacement = iota
	TokenInQuery
)

// Provider is the per-provider record of the OAuth2 adapter framework.
// Adding a provider means supplying one of these; the flow itself never changes.
type Provider struct {
	Name          string
	Endpoint      oauth2.Endpoint
	ProfileURL    string
	DefaultScopes []string
	// TokenPlacement defaults to the Authorization header.
	TokenPlacement TokenPlacement
	// TokenQueryParam names the query parameter for TokenInQuery. Defaults to "access_token".
	TokenQueryParam string
	// Headers are sent with every profile request.
	Headers map[string]string
	// EmailsURL, when set, is queried for a primary verified address if the
	// profile carries none. The response must be a JSON array of
	// {email, primary, verified} objects.
	EmailsURL string
	// Normalize maps the raw profile payload to a NormalizedProfile. It must be pure.
	Normalize func(raw map[string]any) (NormalizedProfile, error)
	// AuthCodeOptions are appended to the authorization URL.
	AuthCodeOptions []oauth2.AuthCodeOption
	// IDTokenURL, when set, lets clients log in with an OpenID Connect id_token.
	// The token goes in the "id_token" query parameter and the response is fed
	// to Normalize. Its "aud" claim must equal the configured client id.
	IDTokenURL string
}

func (p Provider) validate() error {
	switch {
	case p.Name == "" || p.Name == MethodLocal:
		return fmt.Errorf("%w: provider name %q is not allowed", ErrInvalidSettings, p.Name)
	case p.ProfileURL == "":
		return fmt.Errorf("%w: provider %q requires a profile url", ErrInvalidSettings, p.Name)
	case p.Normalize == nil:
		return fmt.Errorf("%w: provider %q requires a normalizer", ErrInvalidSettings, p.Name)
	}
	return nil
}

// ProviderAdapter runs the generic exchange-code-for-profile flow for one provider.
type ProviderAdapter interface {
	Name() string
	AccountLinking() bool
	AuthCodeURL(state string) string
	// Exchange trades an authorization code for provider tokens.
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)
	// Profile fetches and normalizes the profile behind accessToken.
	Profile(ctx context.Context, accessToken string) (NormalizedProfile, error)
	// VerifyIDToken checks an id_token with the provider and normalizes its claims.
	VerifyIDToken(ctx context.Context, idToken string) (NormalizedProfile, error)
}

type adapter struct {
	provider Provider
	settings ProviderSettings
	conf     *oauth2.Config
	client   *http.Client
}

// Compile-time interface assertion
var _ ProviderAdapter = (*adapter)(nil)

// NewAdapter binds a provider record to its settings.
func NewAdapter(p Provider, settings ProviderSettings, client *http.Client) ProviderAdapter {
	if client == nil {
		client = http.DefaultClient
	}
	scopes := settings.Scopes
	if len(scopes) == 0 {
		scopes = p.DefaultScopes
	}
	return &adapter{
		provider: p,
		settings: settings,
		client:   client,
		conf: &oauth2.Config{
			ClientID:     settings.ClientID,
			ClientSecret: settings.ClientSecret,
			RedirectURL:  settings.RedirectURL,
			Scopes:       scopes,
			Endpoint:     p.Endpoint,
		},
	}
}

func (a *adapter) Name() string { return a.provider.Name }

func (a *adapter) AccountLinking() bool { return a.settings.AccountLinking }

func (a *adapter) AuthCodeURL(state string) string {
	return a.conf.AuthCodeURL(state, a.provider.AuthCodeOptions...)
}

func (a *adapter) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, a.client)
	tok, err := a.conf.Exchange(ctx, code)
	if err == nil {
		return tok, nil
	}

	// The token endpoint answers a bad or replayed code with a 4xx.
	var rErr *oauth2.RetrieveError
	if errors.As(err, &rErr) && rErr.Response != nil &&
		rErr.Response.StatusCode >= 400 && rErr.Response.StatusCode < 500 {
		return nil, errors.Join(ErrInvalidProviderToken, err)
	}
	return nil, errors.Join(ErrProviderUnavailable, err)
}

func (a *adapter) Profile(ctx context.Context, accessToken string) (NormalizedProfile, error) {
	if strings.TrimSpace(accessToken) == "" {
		return NormalizedProfile{}, ErrInvalidProviderToken
	}

	var raw map[string]any
	if err := a.fetchJSON(ctx, a.provider.ProfileURL, accessToken, &raw); err != nil {
		return NormalizedProfile{}, err
	}
	return a.normalize(ctx, raw, accessToken)
}

func (a *adapter) VerifyIDToken(ctx context.Context, idToken string) (NormalizedProfile, error) {
	if a.provider.IDTokenURL == "" {
		return NormalizedProfile{}, ErrIDTokenUnsupported
	}
	if strings.TrimSpace(idToken) == "" {
		return NormalizedProfile{}, ErrInvalidProviderToken
	}

	u, err := url.Parse(a.provider.IDTokenURL)
	if err != nil {
		return NormalizedProfile{}, fmt.Errorf("invalid provider url %q: %w", a.provider.IDTokenURL, err)
	}
	q := u.Query()
	q.Set("id_token", idToken)
	u.RawQuery = q.Encode()

	var raw map[string]any
	// Token info endpoints answer a malformed or expired token with 400.
	if err := a.getJSON(ctx, u, "", true, &raw); err != nil {
		return NormalizedProfile{}, err
	}
	if aud := stringField(raw, "aud"); aud == "" || aud != a.settings.ClientID {
		return NormalizedProfile{}, fmt.Errorf("%w: id_token issued for another client", ErrInvalidProviderToken)
	}
	return a.normalize(ctx, raw, "")
}

// normalize maps a raw payload to a complete profile. The emails lookup
// needs an access token and is skipped without one.
func (a *adapter) normalize(ctx context.Context, raw map[string]any, accessToken string) (NormalizedProfile, error) {
	profile, err := a.provider.Normalize(raw)
	if err != nil {
		if errors.Is(err, ErrInvalidProviderToken) || errors.Is(err, ErrProviderUnavailable) {
			return NormalizedProfile{}, err
		}
		return NormalizedProfile{}, errors.Join(ErrProfileIncomplete, err)
	}

	if profile.Email == "" && a.provider.EmailsURL != "" && accessToken != "" {
		var emails []map[string]any
		if err := a.fetchJSON(ctx, a.provider.EmailsURL, accessToken, &emails); err != nil {
			return NormalizedProfile{}, err
		}
		profile.Email = primaryEmail(emails)
	}

	profile.Email = sanitizer.NormalizeEmail(profile.Email)
	if profile.ID == "" || profile.Email == "" {
		return NormalizedProfile{}, ErrProfileIncomplete
	}
	if profile.Raw == nil {
		profile.Raw = raw
	}
	return profile, nil
}

// fetchJSON performs an authenticated GET. It does not retry.
func (a *adapter) fetchJSON(ctx context.Context, endpoint, accessToken string, out any) error {
	u, err := url.Parse(endpoint)
	if err != nil {
		return fmt.Errorf("invalid provider url %q: %w", endpoint, err)
	}
	bearer := accessToken
	if a.provider.TokenPlacement == TokenInQuery {
		param := a.provider.TokenQueryParam
		if param == "" {
			param = "access_token"
		}
		q := u.Query()
		q.Set(param, accessToken)
		u.RawQuery = q.Encode()
		bearer = ""
	}
	return a.getJSON(ctx, u, bearer, false, out)
}

// getJSON sends a GET with the provider headers and an optional bearer token.
func (a *adapter) getJSON(ctx context.Context, u *url.URL, bearer string, badRequestRejects bool, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to build provider request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range a.provider.Headers {
		req.Header.Set(k, v)
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return errors.Join(ErrProviderUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden,
		badRequestRejects && resp.StatusCode == http.StatusBadRequest:
		return ErrInvalidProviderToken
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return fmt.Errorf("%w: %s returned status %d", ErrProviderUnavailable, a.provider.Name, resp.StatusCode)
	}

	dec := json.NewDecoder(io.LimitReader(resp.Body, 1<<20))
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return errors.Join(ErrProviderUnavailable, fmt.Errorf("failed to decode %s response: %w", a.provider.Name, err))
	}
	return nil
}

// primaryEmail picks the primary verified address, then any verified one.
func primaryEmail(emails []map[string]any) string {
	var fallback string
	for _, e := range emails {
		if !boolField(e, "verified") {
			continue
		}
		addr := stringField(e, "email")
		if boolField(e, "primary") {
			return addr
		}
		if fallback == "" {
			fallback = addr
		}
	}
	return fallback
}

// stringField reads a string or number field from a decoded payload.
func stringField(m map[string]any, key string) string {
	switch v := m[key].(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	case float64:
		return fmt.Sprintf("%.0f", v)
	default:
		return ""
	}
}

func boolField(m map[string]any, key string) bool {
	switch v := m[key].(type) {
	case bool:
		return v
	case string:
		return v == "true"
	default:
		return false
	}
}

func objectField(m map[string]any, key string) map[string]any {
	v, _ := m[key].(map[string]any)
	return v
}
