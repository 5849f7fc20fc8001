package configuration

import (
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/jeremywohl/flatten"
	"github.com/metal-toolbox/devicesync/internal/model"
	"github.com/mitchellh/copystructure"
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

const redacted = "<redacted>"

var (
	defaultEndpoint       = "https://api-business.apple.com/v1"
	defaultTokenURL       = "https://account.apple.com/auth/oauth2/token"
	defaultScopes         = []string{"business.api"}
	defaultRequestTimeout = 30 * time.Second

	// vendor pacing and budgets
	defaultPageDelay     = 200 * time.Millisecond
	defaultItemDelay     = 500 * time.Millisecond
	defaultMaxAttempts   = 5
	defaultBackoffUnit   = 2 * time.Second
	defaultPollInterval  = 5 * time.Second
	defaultMaxChecks     = 60
	defaultListSeparator = "; "
)

// Configuration holds application configuration read from a YAML or set by env variables.
// nolint:govet // prefer readability over field alignment optimization for this case.
type Configuration struct {
	// LogLevel is the app verbose logging level.
	// one of - info, debug, trace
	LogLevel string `mapstructure:"log_level"`

	// Concurrency is the number of enrichment workers, 1 keeps requests sequential.
	Concurrency int `mapstructure:"concurrency"`

	// VendorAPI defines the device management API client configuration parameters
	VendorAPI *VendorAPIOptions `mapstructure:"vendor_api"`

	// Sync defines pagination, pacing, retry and polling parameters.
	Sync *SyncOptions `mapstructure:"sync"`

	// Export defines the output parameters.
	Export *ExportOptions `mapstructure:"export"`

	EnableProfiling bool `mapstructure:"enable_profiling"`
	EnableMetrics   bool `mapstructure:"enable_metrics"`
}

// VendorAPIOptions defines configuration for the device management API client.
type VendorAPIOptions struct {
	Endpoint            string        `mapstructure:"endpoint"`
	TokenURL            string        `mapstructure:"token_url"`
	OidcIssuerEndpoint  string        `mapstructure:"oidc_issuer_endpoint"`
	ClientID            string        `mapstructure:"client_id"`
	ClientAssertion     string        `mapstructure:"client_assertion"`
	ClientAssertionFile string        `mapstructure:"client_assertion_file"`
	ClientScopes        []string      `mapstructure:"client_scopes"`
	AccessToken         string        `mapstructure:"access_token"`
	DisableOAuth        bool          `mapstructure:"disable_oauth"`
	RequestTimeout      time.Duration `mapstructure:"request_timeout"`
}

// SyncOptions holds the engine pacing and budget parameters.
type SyncOptions struct {
	PageDelay    time.Duration `mapstructure:"page_delay"`
	ItemDelay    time.Duration `mapstructure:"item_delay"`
	MaxAttempts  int           `mapstructure:"max_attempts"`
	BackoffUnit  time.Duration `mapstructure:"backoff_unit"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	MaxChecks    int           `mapstructure:"max_checks"`
}

// ExportOptions holds output parameters.
type ExportOptions struct {
	ListSeparator string `mapstructure:"list_separator"`
	ReportDir     string `mapstructure:"report_dir"`
}

// New creates an empty configuration struct.
func New() *Configuration {
	config := &Configuration{}

	// these are initialized here so viper can read in configuration from env vars
	// once https://github.com/spf13/viper/pull/1429 is merged, this can go.
	config.VendorAPI = &VendorAPIOptions{}
	// a zero item delay is valid for the pool mode, so its default is set
	// before the file and env values are read.
	config.Sync = &SyncOptions{ItemDelay: defaultItemDelay}
	config.Export = &ExportOptions{}

	return config
}

func (c *Configuration) AsLogFields() []any {
	return []any{
		"logLevel", c.LogLevel,
		"concurrency", c.Concurrency,
		"endpoint", c.VendorAPI.Endpoint,
		"disableOAuth", c.VendorAPI.DisableOAuth,
		"clientID", c.VendorAPI.ClientID,
		"pageDelay", c.Sync.PageDelay.String(),
		"itemDelay", c.Sync.ItemDelay.String(),
		"maxAttempts", c.Sync.MaxAttempts,
		"backoffUnit", c.Sync.BackoffUnit.String(),
		"pollInterval", c.Sync.PollInterval.String(),
		"maxChecks", c.Sync.MaxChecks,
		"enableProfiling", c.EnableProfiling,
		"enableMetrics", c.EnableMetrics,
	}
}

// Redacted returns a deep copy of the configuration with secrets masked.
func (c *Configuration) Redacted() (*Configuration, error) {
	cp, err := copystructure.Copy(c)
	if err != nil {
		return nil, errors.Wrap(model.ErrConfig, "copy error: "+err.Error())
	}

	out, ok := cp.(*Configuration)
	if !ok {
		return nil, errors.Wrap(model.ErrConfig, "unexpected copy type")
	}

	if out.VendorAPI != nil {
		if out.VendorAPI.ClientAssertion != "" {
			out.VendorAPI.ClientAssertion = redacted
		}

		if out.VendorAPI.AccessToken != "" {
			out.VendorAPI.AccessToken = redacted
		}
	}

	return out, nil
}

func (c *Configuration) LoadArgs(args *model.Args) {
	if args.LogLevel != "" {
		c.LogLevel = args.LogLevel
	}

	c.EnableProfiling = c.EnableProfiling || args.EnableProfiling
	c.EnableMetrics = c.EnableMetrics || args.EnableMetrics
}

// Load the application configuration
// Reads in the configFile when available and overrides from environment variables.
func Load(args *model.Args) (*Configuration, error) {
	viperConfig := viper.New()
	viperConfig.SetConfigType("yaml")
	viperConfig.SetEnvPrefix(model.AppName)
	viperConfig.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viperConfig.AutomaticEnv()

	if args.ConfigFile != "" {
		fh, err := os.Open(args.ConfigFile)
		if err != nil {
			return nil, errors.Wrap(model.ErrConfig, err.Error())
		}
		defer fh.Close()

		if err = viperConfig.ReadConfig(fh); err != nil {
			return nil, errors.Wrap(model.ErrConfig, "ReadConfig error: "+err.Error())
		}
	}

	config := New()

	if err := config.envBindVars(viperConfig); err != nil {
		return nil, errors.Wrap(model.ErrConfig, "env var bind error: "+err.Error())
	}

	if err := viperConfig.Unmarshal(config); err != nil {
		return nil, errors.Wrap(model.ErrConfig, "Unmarshal error: "+err.Error())
	}

	config.envVarAppOverrides(viperConfig)
	config.envVarVendorAPIOverrides(viperConfig)
	config.envVarSyncOverrides(viperConfig)

	config.LoadArgs(args)
	config.setDefaults()

	if err := config.validateVendorAPI(); err != nil {
		return nil, errors.Wrap(model.ErrConfig, "vendor api: "+err.Error())
	}

	if err := config.validateSync(); err != nil {
		return nil, errors.Wrap(model.ErrConfig, "sync: "+err.Error())
	}

	return config, nil
}

// envBindVars binds environment variables to the struct
// without a configuration file being unmarshalled,
// this is a workaround for a viper bug,
//
// This can be replaced by the solution in https://github.com/spf13/viper/pull/1429
// once that PR is merged.
func (c *Configuration) envBindVars(viperConfig *viper.Viper) error {
	envKeysMap := map[string]interface{}{}
	if err := mapstructure.Decode(c, &envKeysMap); err != nil {
		return err
	}

	// Flatten nested conf map
	flat, err := flatten.Flatten(envKeysMap, "", flatten.DotStyle)
	if err != nil {
		return errors.Wrap(err, "Unable to flatten configuration")
	}

	for k := range flat {
		if err := viperConfig.BindEnv(k); err != nil {
			return errors.Wrap(model.ErrConfig, "env var bind error: "+err.Error())
		}
	}

	return nil
}

func (c *Configuration) envVarAppOverrides(viperConfig *viper.Viper) {
	logLevel := viperConfig.GetString("log.level")
	if logLevel != "" {
		c.LogLevel = logLevel
	}
}

// nested keys are not always bound through envBindVars, read them explicitly.
func (c *Configuration) envVarVendorAPIOverrides(viperConfig *viper.Viper) {
	if c.VendorAPI == nil {
		c.VendorAPI = &VendorAPIOptions{}
	}

	overrides := map[string]*string{
		"vendor_api.endpoint":              &c.VendorAPI.Endpoint,
		"vendor_api.token_url":             &c.VendorAPI.TokenURL,
		"vendor_api.oidc_issuer_endpoint":  &c.VendorAPI.OidcIssuerEndpoint,
		"vendor_api.client_id":             &c.VendorAPI.ClientID,
		"vendor_api.client_assertion":      &c.VendorAPI.ClientAssertion,
		"vendor_api.client_assertion_file": &c.VendorAPI.ClientAssertionFile,
		"vendor_api.access_token":          &c.VendorAPI.AccessToken,
	}

	for key, field := range overrides {
		if value := viperConfig.GetString(key); value != "" {
			*field = value
		}
	}

	if viperConfig.GetString("vendor_api.disable_oauth") != "" {
		c.VendorAPI.DisableOAuth = viperConfig.GetBool("vendor_api.disable_oauth")
	}

	if viperConfig.GetString("vendor_api.client_scopes") != "" {
		c.VendorAPI.ClientScopes = viperConfig.GetStringSlice("vendor_api.client_scopes")
	}
}

func (c *Configuration) envVarSyncOverrides(viperConfig *viper.Viper) {
	if c.Sync == nil {
		c.Sync = &SyncOptions{ItemDelay: defaultItemDelay}
	}

	if c.Export == nil {
		c.Export = &ExportOptions{}
	}

	ints := map[string]*int{
		"concurrency":       &c.Concurrency,
		"sync.max_attempts": &c.Sync.MaxAttempts,
		"sync.max_checks":   &c.Sync.MaxChecks,
	}

	for key, field := range ints {
		if viperConfig.GetString(key) != "" {
			*field = viperConfig.GetInt(key)
		}
	}

	durations := map[string]*time.Duration{
		"sync.page_delay":    &c.Sync.PageDelay,
		"sync.item_delay":    &c.Sync.ItemDelay,
		"sync.backoff_unit":  &c.Sync.BackoffUnit,
		"sync.poll_interval": &c.Sync.PollInterval,
	}

	for key, field := range durations {
		if viperConfig.GetString(key) != "" {
			*field = viperConfig.GetDuration(key)
		}
	}

	if value := viperConfig.GetString("export.report_dir"); value != "" {
		c.Export.ReportDir = value
	}

	if value := viperConfig.GetString("export.list_separator"); value != "" {
		c.Export.ListSeparator = value
	}
}

// nolint:gocyclo // defaults are cyclomatic
func (c *Configuration) setDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}

	if c.Concurrency <= 0 {
		c.Concurrency = 1
	}

	if c.VendorAPI == nil {
		c.VendorAPI = &VendorAPIOptions{}
	}

	if c.VendorAPI.Endpoint == "" {
		c.VendorAPI.Endpoint = defaultEndpoint
	}

	c.VendorAPI.Endpoint = strings.TrimRight(c.VendorAPI.Endpoint, "/")

	if c.VendorAPI.TokenURL == "" && c.VendorAPI.OidcIssuerEndpoint == "" {
		c.VendorAPI.TokenURL = defaultTokenURL
	}

	if len(c.VendorAPI.ClientScopes) == 0 {
		c.VendorAPI.ClientScopes = defaultScopes
	}

	if c.VendorAPI.RequestTimeout == 0 {
		c.VendorAPI.RequestTimeout = defaultRequestTimeout
	}

	if c.Sync == nil {
		c.Sync = &SyncOptions{ItemDelay: defaultItemDelay}
	}

	if c.Sync.PageDelay == 0 {
		c.Sync.PageDelay = defaultPageDelay
	}

	if c.Sync.MaxAttempts == 0 {
		c.Sync.MaxAttempts = defaultMaxAttempts
	}

	if c.Sync.BackoffUnit == 0 {
		c.Sync.BackoffUnit = defaultBackoffUnit
	}

	if c.Sync.PollInterval == 0 {
		c.Sync.PollInterval = defaultPollInterval
	}

	if c.Sync.MaxChecks == 0 {
		c.Sync.MaxChecks = defaultMaxChecks
	}

	if c.Export == nil {
		c.Export = &ExportOptions{}
	}

	if c.Export.ListSeparator == "" {
		c.Export.ListSeparator = defaultListSeparator
	}
}

// nolint:gocyclo // parameter validation is cyclomatic
func (c *Configuration) validateVendorAPI() error {
	u, err := url.Parse(c.VendorAPI.Endpoint)
	if err != nil {
		return errors.New("endpoint URL error: " + err.Error())
	}

	if u.Scheme == "" || u.Host == "" {
		return errors.New("endpoint URL must be absolute: " + c.VendorAPI.Endpoint)
	}

	if c.VendorAPI.DisableOAuth {
		if c.VendorAPI.AccessToken == "" {
			return errors.New("access_token required when oauth is disabled")
		}

		return nil
	}

	if c.VendorAPI.ClientID == "" {
		return errors.New("client_id not defined")
	}

	if c.VendorAPI.ClientAssertion == "" && c.VendorAPI.ClientAssertionFile == "" {
		return errors.New("client_assertion or client_assertion_file not defined")
	}

	if c.VendorAPI.TokenURL != "" {
		if _, err := url.Parse(c.VendorAPI.TokenURL); err != nil {
			return errors.New("token URL error: " + err.Error())
		}
	}

	return nil
}

func (c *Configuration) validateSync() error {
	if c.Sync.MaxAttempts < 1 {
		return errors.New("max_attempts must be positive")
	}

	if c.Sync.MaxChecks < 1 {
		return errors.New("max_checks must be positive")
	}

	if c.Sync.PageDelay < 0 || c.Sync.ItemDelay < 0 || c.Sync.BackoffUnit < 0 || c.Sync.PollInterval < 0 {
		return errors.New("durations must not be negative")
	}

	return nil
}
