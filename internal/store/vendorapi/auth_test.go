package vendorapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/metal-toolbox/devicesync/internal/configuration"
	"github.com/metal-toolbox/devicesync/internal/model"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tokenHandler(t *testing.T, calls *int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		*calls++

		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "client_credentials", r.PostForm.Get("grant_type"))
		assert.Equal(t, "BUSINESSAPI.test", r.PostForm.Get("client_id"))
		assert.Equal(t, clientAssertionType, r.PostForm.Get("client_assertion_type"))
		assert.Equal(t, "signed.jwt.value", r.PostForm.Get("client_assertion"))
		assert.Equal(t, "business.api", r.PostForm.Get("scope"))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "issued-token",
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	}
}

func TestAssertionTokenProvider(t *testing.T) {
	calls := 0
	server := httptest.NewServer(tokenHandler(t, &calls))
	t.Cleanup(server.Close)

	assertionFile := filepath.Join(t.TempDir(), "assertion.jwt")
	require.NoError(t, os.WriteFile(assertionFile, []byte("signed.jwt.value\n"), 0o600))

	provider, err := NewTokenProvider(context.Background(), &configuration.VendorAPIOptions{
		TokenURL:            server.URL,
		ClientID:            "BUSINESSAPI.test",
		ClientAssertionFile: assertionFile,
		ClientScopes:        []string{"business.api"},
	})
	require.NoError(t, err)

	tok, err := provider.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "issued-token", tok)

	// cached until expiry
	_, err = provider.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestAssertionTokenProviderOIDCDiscovery(t *testing.T) {
	calls := 0
	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	mux.HandleFunc("/.well-known/openid-configuration", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"issuer":                 server.URL,
			"token_endpoint":         server.URL + "/token",
			"authorization_endpoint": server.URL + "/authorize",
			"jwks_uri":               server.URL + "/keys",
		})
	})
	mux.HandleFunc("/token", tokenHandler(t, &calls))

	provider, err := NewTokenProvider(context.Background(), &configuration.VendorAPIOptions{
		OidcIssuerEndpoint: server.URL,
		ClientID:           "BUSINESSAPI.test",
		ClientAssertion:    "signed.jwt.value",
		ClientScopes:       []string{"business.api"},
	})
	require.NoError(t, err)

	tok, err := provider.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "issued-token", tok)
}

func TestAssertionTokenProviderRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_client"}`))
	}))
	t.Cleanup(server.Close)

	provider, err := NewTokenProvider(context.Background(), &configuration.VendorAPIOptions{
		TokenURL:        server.URL,
		ClientID:        "BUSINESSAPI.test",
		ClientAssertion: "signed.jwt.value",
	})
	require.NoError(t, err)

	_, err = provider.Token(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrAuth))
}

func TestNewTokenProviderMissingAssertion(t *testing.T) {
	_, err := NewTokenProvider(context.Background(), &configuration.VendorAPIOptions{
		TokenURL:            "https://auth.example.test/token",
		ClientID:            "id",
		ClientAssertionFile: filepath.Join(t.TempDir(), "absent"),
	})
	assert.True(t, errors.Is(err, ErrAssertion))
}

func TestStaticToken(t *testing.T) {
	provider, err := NewTokenProvider(context.Background(), &configuration.VendorAPIOptions{
		DisableOAuth: true,
		AccessToken:  "static",
	})
	require.NoError(t, err)

	tok, err := provider.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "static", tok)

	_, err = StaticToken("").Token(context.Background())
	assert.True(t, errors.Is(err, model.ErrAuth))
}
