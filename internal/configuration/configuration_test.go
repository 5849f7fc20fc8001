package configuration

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/metal-toolbox/devicesync/internal/model"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
vendor_api:
  client_id: BUSINESSAPI.1234
  client_assertion_file: /etc/devicesync/assertion.jwt
`)

	cfg, err := Load(&model.Args{ConfigFile: path})
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 1, cfg.Concurrency)
	assert.Equal(t, defaultEndpoint, cfg.VendorAPI.Endpoint)
	assert.Equal(t, defaultTokenURL, cfg.VendorAPI.TokenURL)
	assert.Equal(t, []string{"business.api"}, cfg.VendorAPI.ClientScopes)
	assert.Equal(t, 500*time.Millisecond, cfg.Sync.ItemDelay)
	assert.Equal(t, 200*time.Millisecond, cfg.Sync.PageDelay)
	assert.Equal(t, 5, cfg.Sync.MaxAttempts)
	assert.Equal(t, 2*time.Second, cfg.Sync.BackoffUnit)
	assert.Equal(t, 5*time.Second, cfg.Sync.PollInterval)
	assert.Equal(t, 60, cfg.Sync.MaxChecks)
	assert.Equal(t, "; ", cfg.Export.ListSeparator)
}

func TestLoadReadsFileValues(t *testing.T) {
	path := writeConfig(t, `
log_level: debug
concurrency: 4
vendor_api:
  endpoint: https://api.example.test/v1/
  disable_oauth: true
  access_token: static-token
sync:
  item_delay: 250ms
  backoff_unit: 3s
  max_checks: 10
export:
  list_separator: " | "
`)

	cfg, err := Load(&model.Args{ConfigFile: path})
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 4, cfg.Concurrency)
	assert.Equal(t, "https://api.example.test/v1", cfg.VendorAPI.Endpoint)
	assert.True(t, cfg.VendorAPI.DisableOAuth)
	assert.Equal(t, 250*time.Millisecond, cfg.Sync.ItemDelay)
	assert.Equal(t, 3*time.Second, cfg.Sync.BackoffUnit)
	assert.Equal(t, 10, cfg.Sync.MaxChecks)
	assert.Equal(t, " | ", cfg.Export.ListSeparator)
}

func TestLoadEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
vendor_api:
  client_id: from-file
  client_assertion: file-assertion
`)

	t.Setenv("DEVICESYNC_VENDOR_API_CLIENT_ID", "from-env")

	cfg, err := Load(&model.Args{ConfigFile: path, LogLevel: "warn"})
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.VendorAPI.ClientID)
	assert.Equal(t, "warn", cfg.LogLevel)
}

func TestLoadSyncEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
vendor_api:
  disable_oauth: true
  access_token: static-token
sync:
  item_delay: 250ms
`)

	t.Setenv("DEVICESYNC_SYNC_ITEM_DELAY", "1s")
	t.Setenv("DEVICESYNC_SYNC_MAX_CHECKS", "12")
	t.Setenv("DEVICESYNC_EXPORT_REPORT_DIR", "/var/lib/devicesync")

	cfg, err := Load(&model.Args{ConfigFile: path})
	require.NoError(t, err)

	assert.Equal(t, time.Second, cfg.Sync.ItemDelay)
	assert.Equal(t, 12, cfg.Sync.MaxChecks)
	assert.Equal(t, "/var/lib/devicesync", cfg.Export.ReportDir)
	assert.Equal(t, 5, cfg.Sync.MaxAttempts)
}

func TestLoadKeepsZeroItemDelay(t *testing.T) {
	path := writeConfig(t, `
concurrency: 8
vendor_api:
  disable_oauth: true
  access_token: static-token
sync:
  item_delay: 0s
`)

	cfg, err := Load(&model.Args{ConfigFile: path})
	require.NoError(t, err)

	assert.Equal(t, time.Duration(0), cfg.Sync.ItemDelay)
	assert.Equal(t, 8, cfg.Concurrency)
	assert.Equal(t, 200*time.Millisecond, cfg.Sync.PageDelay)
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{
			"missing client id",
			"vendor_api:\n  client_assertion: x\n",
		},
		{
			"missing assertion",
			"vendor_api:\n  client_id: x\n",
		},
		{
			"static token missing",
			"vendor_api:\n  disable_oauth: true\n",
		},
		{
			"relative endpoint",
			"vendor_api:\n  endpoint: /v1\n  disable_oauth: true\n  access_token: t\n",
		},
		{
			"negative item delay",
			"vendor_api:\n  disable_oauth: true\n  access_token: t\nsync:\n  item_delay: -1s\n",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(&model.Args{ConfigFile: writeConfig(t, tc.body)})
			require.Error(t, err)
			assert.True(t, errors.Is(err, model.ErrConfig))
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(&model.Args{ConfigFile: filepath.Join(t.TempDir(), "absent.yaml")})
	assert.True(t, errors.Is(err, model.ErrConfig))
}

func TestRedacted(t *testing.T) {
	cfg := New()
	cfg.VendorAPI.ClientAssertion = "secret-jwt"
	cfg.VendorAPI.AccessToken = "secret-token"
	cfg.VendorAPI.ClientID = "id"

	out, err := cfg.Redacted()
	require.NoError(t, err)

	assert.Equal(t, "<redacted>", out.VendorAPI.ClientAssertion)
	assert.Equal(t, "<redacted>", out.VendorAPI.AccessToken)
	assert.Equal(t, "id", out.VendorAPI.ClientID)
	// original untouched
	assert.Equal(t, "secret-jwt", cfg.VendorAPI.ClientAssertion)
}
