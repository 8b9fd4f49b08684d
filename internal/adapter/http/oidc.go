package adapthttp

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"gigmarket/internal/config"
)

// OIDCConfig holds the single sign-on client. The zero value disables SSO.
type OIDCConfig struct {
	Enabled      bool
	OAuth2Config *oauth2.Config
	Provider     *oidc.Provider
}

// NewOIDC discovers the issuer and builds the OAuth2 client. A config
// without an issuer yields a disabled OIDCConfig.
func NewOIDC(ctx context.Context, cfg config.OIDCConfig) (OIDCConfig, error) {
	if !cfg.Enabled() {
		return OIDCConfig{}, nil
	}
	provider, err := oidc.NewProvider(ctx, cfg.Issuer)
	if err != nil {
		return OIDCConfig{}, errors.Wrapf(err, "discover oidc issuer %s", cfg.Issuer)
	}
	return OIDCConfig{
		Enabled:  true,
		Provider: provider,
		OAuth2Config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     provider.Endpoint(),
			Scopes:       []string{oidc.ScopeOpenID, "profile", "email"},
		},
	}, nil
}
