package vendorapi

import (
	"context"
	"net/url"
	"os"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/metal-toolbox/devicesync/internal/configuration"
	"github.com/metal-toolbox/devicesync/internal/model"
	"github.com/pkg/errors"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const clientAssertionType = "urn:ietf:params:oauth:client-assertion-type:jwt-bearer"

// TokenProvider supplies the bearer token for vendor API requests.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a pre-issued bearer token.
type StaticToken string

func (s StaticToken) Token(_ context.Context) (string, error) {
	if s == "" {
		return "", errors.Wrap(model.ErrAuth, "empty static token")
	}

	return string(s), nil
}

// AssertionTokenProvider exchanges a signed client assertion for access tokens,
// tokens are cached until shortly before they expire.
type AssertionTokenProvider struct {
	source oauth2.TokenSource
}

func (p *AssertionTokenProvider) Token(_ context.Context) (string, error) {
	tok, err := p.source.Token()
	if err != nil {
		return "", errors.Wrap(model.ErrAuth, err.Error())
	}

	if tok.AccessToken == "" {
		return "", errors.Wrap(model.ErrAuth, "token endpoint returned an empty access token")
	}

	return tok.AccessToken, nil
}

// NewTokenProvider returns the token provider for the configured auth mode.
func NewTokenProvider(ctx context.Context, opts *configuration.VendorAPIOptions) (TokenProvider, error) {
	if opts.DisableOAuth {
		return StaticToken(opts.AccessToken), nil
	}

	assertion, err := clientAssertion(opts)
	if err != nil {
		return nil, err
	}

	tokenURL := opts.TokenURL

	if opts.OidcIssuerEndpoint != "" {
		provider, err := oidc.NewProvider(ctx, opts.OidcIssuerEndpoint)
		if err != nil {
			return nil, errors.Wrap(model.ErrAuth, "oidc discovery: "+err.Error())
		}

		tokenURL = provider.Endpoint().TokenURL
	}

	if tokenURL == "" {
		return nil, errors.Wrap(ErrVendorAPIConfig, "no token url")
	}

	oauthConfig := clientcredentials.Config{
		ClientID: opts.ClientID,
		TokenURL: tokenURL,
		Scopes:   opts.ClientScopes,
		EndpointParams: url.Values{
			"client_assertion_type": {clientAssertionType},
			"client_assertion":      {assertion},
		},
		AuthStyle: oauth2.AuthStyleInParams,
	}

	return &AssertionTokenProvider{source: oauthConfig.TokenSource(ctx)}, nil
}

func clientAssertion(opts *configuration.VendorAPIOptions) (string, error) {
	if opts.ClientAssertion != "" {
		return strings.TrimSpace(opts.ClientAssertion), nil
	}

	if opts.ClientAssertionFile == "" {
		return "", errors.Wrap(ErrAssertion, "no client assertion configured")
	}

	b, err := os.ReadFile(opts.ClientAssertionFile)
	if err != nil {
		return "", errors.Wrap(ErrAssertion, err.Error())
	}

	assertion := strings.TrimSpace(string(b))
	if assertion == "" {
		return "", errors.Wrap(ErrAssertion, "empty client assertion file")
	}

	return assertion, nil
}
