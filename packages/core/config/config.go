package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	yamlv3 "gopkg.in/yaml.v3"

	apihttp "github.com/abdul-hamid-achik/apicheck/packages/http"
)

// EnvPrefix marks environment variables that override config values.
// A double underscore descends into a section: APICHECK_NOTIFY__ON.
const EnvPrefix = "APICHECK_"

// ErrUnknownEnvironment is returned by Resolve for an undefined environment.
var ErrUnknownEnvironment = errors.New("unknown environment")

// Config represents the apicheck configuration
type Config struct {
	Environment  string                 `yaml:"environment,omitempty"`
	Environments map[string]Environment `yaml:"environments,omitempty"`
	BaseURL      string                 `yaml:"base_url,omitempty"`
	Timeout      time.Duration          `yaml:"timeout,omitempty"`
	FailFast     *bool                  `yaml:"fail_fast,omitempty"`
	Bail         *bool                  `yaml:"bail,omitempty"`
	Parallel     *bool                  `yaml:"parallel,omitempty"`
	Concurrency  int                    `yaml:"concurrency,omitempty"`
	Rate         float64                `yaml:"rate,omitempty"` // requests per second
	ValidateSSL  *bool                  `yaml:"validate_ssl,omitempty"`
	Headers      map[string]string      `yaml:"headers,omitempty"` // Default headers for all requests
	Variables    map[string]string      `yaml:"variables,omitempty"`
	Output       string                 `yaml:"output,omitempty"`
	OutputFile   string                 `yaml:"output_file,omitempty"`
	NoColor      *bool                  `yaml:"no_color,omitempty"`
	HistoryDB    string                 `yaml:"history_db,omitempty"`
	MetricsFile  string                 `yaml:"metrics_file,omitempty"`
	Notify       NotifyConfig           `yaml:"notify,omitempty"`

	// Source is the file the config was read from, if any.
	Source string `yaml:"-"`
}

// Environment is a named target API.
type Environment struct {
	BaseURL   string            `yaml:"base_url,omitempty"`
	Headers   map[string]string `yaml:"headers,omitempty"`
	Variables map[string]string `yaml:"variables,omitempty"`
}

type NotifyConfig struct {
	On           string `yaml:"on,omitempty"` // failure, success, always, recovery
	SlackWebhook string `yaml:"slack_webhook,omitempty"`
	SlackChannel string `yaml:"slack_channel,omitempty"`
}

// Target is the effective API a run talks to.
type Target struct {
	Environment string
	BaseURL     string
	Headers     map[string]string
	Variables   map[string]string
}

// BoolPtr is exported version of boolPtr for external use
func BoolPtr(b bool) *bool {
	return &b
}

// getBool returns the value of a bool pointer, or the default if nil
func getBool(b *bool, defaultVal bool) bool {
	if b == nil {
		return defaultVal
	}
	return *b
}

// GetFailFast reports whether a case stops at its first failed assertion.
func (c *Config) GetFailFast() bool {
	return getBool(c.FailFast, true)
}

// GetBail returns the bail setting, defaulting to false
func (c *Config) GetBail() bool {
	return getBool(c.Bail, false)
}

// GetParallel returns the parallel setting, defaulting to false
func (c *Config) GetParallel() bool {
	return getBool(c.Parallel, false)
}

// GetValidateSSL returns the validate SSL setting, defaulting to true
func (c *Config) GetValidateSSL() bool {
	return getBool(c.ValidateSSL, true)
}

// GetNoColor returns the no color setting, defaulting to false
func (c *Config) GetNoColor() bool {
	return getBool(c.NoColor, false)
}

func (c *Config) GetTimeout() time.Duration {
	if c.Timeout <= 0 {
		return DefaultTimeout
	}
	return c.Timeout
}

func (c *Config) GetConcurrency() int {
	if c.Concurrency <= 0 {
		return DefaultConcurrency
	}
	return c.Concurrency
}

func (c *Config) GetOutput() string {
	if c.Output == "" {
		return "console"
	}
	return c.Output
}

// ConfigFilenames contains the possible config file names
var ConfigFilenames = []string{
	"apicheck.yaml",
	"apicheck.yml",
	"apicheck.json",
	".apicheckrc",
}

// Find returns the first config file present in dir, or "".
func Find(dir string) string {
	for _, filename := range ConfigFilenames {
		configPath := filepath.Join(dir, filename)
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}
	}
	return ""
}

// Load builds the configuration from defaults, then the config file at
// path (or the first of ConfigFilenames in the working directory when path
// is empty), then APICHECK_* environment variables.
func Load(path string) (*Config, error) {
	if path == "" {
		path = Find(".")
	}

	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config from %q: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to read %s environment: %w", EnvPrefix, err)
	}

	cfg := DefaultConfig()
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "yaml"}); err != nil {
		return nil, fmt.Errorf("failed to parse config from %q: %w", path, err)
	}
	cfg.Source = path

	if err := cfg.Validate(); err != nil {
		if path == "" {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
		return nil, fmt.Errorf("config validation failed for %q: %w", path, err)
	}
	return cfg, nil
}

// envKey maps APICHECK_BASE_URL to base_url and APICHECK_NOTIFY__ON to
// notify.on.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

var (
	validOutputs  = []string{"console", "json", "junit", "tap", "xlsx"}
	validNotifyOn = []string{"", "failure", "success", "always", "recovery"}
)

// Validate checks value ranges and enumerations.
func (c *Config) Validate() error {
	var errs []error

	if c.Output != "" && !contains(validOutputs, c.Output) {
		errs = append(errs, fmt.Errorf("output %q is not one of %s", c.Output, strings.Join(validOutputs, ", ")))
	}
	if !contains(validNotifyOn, c.Notify.On) {
		errs = append(errs, fmt.Errorf("notify.on %q is not one of failure, success, always, recovery", c.Notify.On))
	}
	if c.Timeout < 0 {
		errs = append(errs, fmt.Errorf("timeout must not be negative"))
	}
	if c.Concurrency < 0 {
		errs = append(errs, fmt.Errorf("concurrency must not be negative"))
	}
	if c.Rate < 0 {
		errs = append(errs, fmt.Errorf("rate must not be negative"))
	}
	if c.Environment != "" && len(c.Environments) > 0 {
		if _, ok := c.Environments[c.Environment]; !ok {
			errs = append(errs, fmt.Errorf("environment %q: %w", c.Environment, ErrUnknownEnvironment))
		}
	}

	return errors.Join(errs...)
}

// EnvironmentNames lists the configured environments alphabetically.
func (c *Config) EnvironmentNames() []string {
	names := make([]string, 0, len(c.Environments))
	for name := range c.Environments {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Resolve picks the environment named envName, or the configured default
// when envName is empty, and layers it over the top-level settings. The
// top-level base_url is used when the environment has none.
func (c *Config) Resolve(envName string) (*Target, error) {
	if envName == "" {
		envName = c.Environment
	}

	t := &Target{
		Environment: envName,
		BaseURL:     c.BaseURL,
		Headers:     copyMap(c.Headers),
		Variables:   copyMap(c.Variables),
	}

	if envName != "" {
		e, ok := c.Environments[envName]
		if !ok {
			return nil, fmt.Errorf("environment %q (known: %s): %w",
				envName, strings.Join(c.EnvironmentNames(), ", "), ErrUnknownEnvironment)
		}
		if e.BaseURL != "" {
			t.BaseURL = e.BaseURL
		}
		for k, v := range e.Headers {
			t.Headers[k] = v
		}
		for k, v := range e.Variables {
			t.Variables[k] = v
		}
	}

	if t.BaseURL == "" {
		return nil, &apihttp.ConfigError{Field: "base URL", Err: errors.New("no base URL configured")}
	}
	if err := apihttp.ValidateURL(t.BaseURL); err != nil {
		return nil, &apihttp.ConfigError{Field: "base URL", Err: err}
	}
	return t, nil
}

// Merge merges another config into this one, with other taking precedence
func (c *Config) Merge(other *Config) *Config {
	if other == nil {
		return c
	}

	result := *c
	result.Headers = copyMap(c.Headers)
	result.Variables = copyMap(c.Variables)

	if other.Environment != "" {
		result.Environment = other.Environment
	}
	if other.BaseURL != "" {
		result.BaseURL = other.BaseURL
	}
	if other.Timeout > 0 {
		result.Timeout = other.Timeout
	}
	if other.Concurrency > 0 {
		result.Concurrency = other.Concurrency
	}
	if other.Rate > 0 {
		result.Rate = other.Rate
	}
	if other.Output != "" {
		result.Output = other.Output
	}
	if other.OutputFile != "" {
		result.OutputFile = other.OutputFile
	}
	if other.HistoryDB != "" {
		result.HistoryDB = other.HistoryDB
	}
	if other.MetricsFile != "" {
		result.MetricsFile = other.MetricsFile
	}
	if other.Notify.On != "" {
		result.Notify.On = other.Notify.On
	}
	if other.Notify.SlackWebhook != "" {
		result.Notify.SlackWebhook = other.Notify.SlackWebhook
	}
	if other.Notify.SlackChannel != "" {
		result.Notify.SlackChannel = other.Notify.SlackChannel
	}

	// Boolean flags - only override if explicitly set in other config
	if other.FailFast != nil {
		result.FailFast = other.FailFast
	}
	if other.Bail != nil {
		result.Bail = other.Bail
	}
	if other.Parallel != nil {
		result.Parallel = other.Parallel
	}
	if other.ValidateSSL != nil {
		result.ValidateSSL = other.ValidateSSL
	}
	if other.NoColor != nil {
		result.NoColor = other.NoColor
	}

	for k, v := range other.Headers {
		result.Headers[k] = v
	}
	for k, v := range other.Variables {
		result.Variables[k] = v
	}

	if len(other.Environments) > 0 {
		envs := make(map[string]Environment, len(c.Environments)+len(other.Environments))
		for k, v := range c.Environments {
			envs[k] = v
		}
		for k, v := range other.Environments {
			envs[k] = v
		}
		result.Environments = envs
	}

	return &result
}

// Save writes the configuration as YAML.
func (c *Config) Save(path string) error {
	data, err := yamlv3.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func copyMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
