package auth

import (
	"errors"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/facebook"
	"golang.org/x/oauth2/github"
	"golang.org/x/oauth2/gitlab"
	"golang.org/x/oauth2/google"
	"golang.org/x/oauth2/microsoft"
	"golang.org/x/oauth2/slack"
)

const (
	ProviderGoogle    = "google"
	ProviderFacebook  = "facebook"
	ProviderGitHub    = "github"
	ProviderGitLab    = "gitlab"
	ProviderMicrosoft = "microsoft"
	ProviderSlack     = "slack"
)

// BuiltinProviders returns a fresh catalog of the bundled providers.
func BuiltinProviders() map[string]Provider {
	providers := []Provider{
		GoogleProvider(),
		FacebookProvider(),
		GitHubProvider(),
		GitLabProvider(),
		MicrosoftProvider(),
		SlackProvider(),
	}
	catalog := make(map[string]Provider, len(providers))
	for _, p := range providers {
		catalog[p.Name] = p
	}
	return catalog
}

func GoogleProvider() Provider {
	return Provider{
		Name:            ProviderGoogle,
		Endpoint:        google.Endpoint,
		ProfileURL:      "https://www.googleapis.com/oauth2/v3/userinfo",
		DefaultScopes:   []string{"openid", "email", "profile"},
		Normalize:       normalizeGoogle,
		AuthCodeOptions: []oauth2.AuthCodeOption{oauth2.AccessTypeOffline},
		IDTokenURL:      "https://oauth2.googleapis.com/tokeninfo",
	}
}

// normalizeGoogle accepts both userinfo v3 ("sub") and v2 ("id") payloads.
// Unverified addresses are dropped.
func normalizeGoogle(raw map[string]any) (NormalizedProfile, error) {
	id := stringField(raw, "sub")
	if id == "" {
		id = stringField(raw, "id")
	}
	email := stringField(raw, "email")
	if _, ok := raw["email_verified"]; ok && !boolField(raw, "email_verified") {
		email = ""
	}
	if _, ok := raw["verified_email"]; ok && !boolField(raw, "verified_email") {
		email = ""
	}
	return NormalizedProfile{ID: id, Email: email, Raw: raw}, nil
}

func FacebookProvider() Provider {
	return Provider{
		Name:           ProviderFacebook,
		Endpoint:       facebook.Endpoint,
		ProfileURL:     "https://graph.facebook.com/me?fields=id,name,email",
		DefaultScopes:  []string{"email", "public_profile"},
		TokenPlacement: TokenInQuery,
		Normalize:      normalizeFacebook,
	}
}

func normalizeFacebook(raw map[string]any) (NormalizedProfile, error) {
	return NormalizedProfile{
		ID:    stringField(raw, "id"),
		Email: stringField(raw, "email"),
		Raw:   raw,
	}, nil
}

func GitHubProvider() Provider {
	return Provider{
		Name:          ProviderGitHub,
		Endpoint:      github.Endpoint,
		ProfileURL:    "https://api.github.com/user",
		EmailsURL:     "https://api.github.com/user/emails",
		DefaultScopes: []string{"read:user", "user:email"},
		Headers:       map[string]string{"Accept": "application/vnd.github+json"},
		Normalize:     normalizeGitHub,
	}
}

// normalizeGitHub returns an empty email for accounts with a private address;
// the adapter then consults the emails endpoint.
func normalizeGitHub(raw map[string]any) (NormalizedProfile, error) {
	return NormalizedProfile{
		ID:    stringField(raw, "id"),
		Email: stringField(raw, "email"),
		Raw:   raw,
	}, nil
}

func GitLabProvider() Provider {
	return Provider{
		Name:          ProviderGitLab,
		Endpoint:      gitlab.Endpoint,
		ProfileURL:    "https://gitlab.com/api/v4/user",
		DefaultScopes: []string{"read_user"},
		Normalize:     normalizeGitLab,
	}
}

func normalizeGitLab(raw map[string]any) (NormalizedProfile, error) {
	email := stringField(raw, "email")
	if email == "" {
		email = stringField(raw, "public_email")
	}
	return NormalizedProfile{
		ID:    stringField(raw, "id"),
		Email: email,
		Raw:   raw,
	}, nil
}

func MicrosoftProvider() Provider {
	return Provider{
		Name:          ProviderMicrosoft,
		Endpoint:      microsoft.AzureADEndpoint("common"),
		ProfileURL:    "https://graph.microsoft.com/v1.0/me",
		DefaultScopes: []string{"openid", "email", "User.Read"},
		Normalize:     normalizeMicrosoft,
	}
}

// normalizeMicrosoft prefers "mail" and falls back to the user principal name
// only when it looks like an address.
func normalizeMicrosoft(raw map[string]any) (NormalizedProfile, error) {
	email := stringField(raw, "mail")
	if email == "" {
		if upn := stringField(raw, "userPrincipalName"); strings.Contains(upn, "@") {
			email = upn
		}
	}
	return NormalizedProfile{
		ID:    stringField(raw, "id"),
		Email: email,
		Raw:   raw,
	}, nil
}

func SlackProvider() Provider {
	return Provider{
		Name:          ProviderSlack,
		Endpoint:      slack.Endpoint,
		ProfileURL:    "https://slack.com/api/users.identity",
		DefaultScopes: []string{"identity.basic", "identity.email"},
		Normalize:     normalizeSlack,
	}
}

var errSlackNotOK = errors.New("slack: identity call failed")

// normalizeSlack unwraps {"ok":true,"user":{...}}. Slack reports auth failures
// with HTTP 200 and ok=false.
func normalizeSlack(raw map[string]any) (NormalizedProfile, error) {
	if !boolField(raw, "ok") {
		switch stringField(raw, "error") {
		case "invalid_auth", "not_authed", "token_revoked", "token_expired", "account_inactive":
			return NormalizedProfile{}, ErrInvalidProviderToken
		}
		return NormalizedProfile{}, errors.Join(ErrProviderUnavailable, errSlackNotOK)
	}
	user := objectField(raw, "user")
	return NormalizedProfile{
		ID:    stringField(user, "id"),
		Email: stringField(user, "email"),
		Raw:   raw,
	}, nil
}
