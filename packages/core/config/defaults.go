package config

import "time"

const (
	DefaultTimeout     = 30 * time.Second
	DefaultConcurrency = 5
	// DefaultEnvironment targets the public reqres.in service.
	DefaultEnvironment = "reqres"
	DefaultBaseURL     = "https://reqres.in"
	// ReqresAPIKey is the free-tier key reqres.in asks every client to send.
	ReqresAPIKey = "reqres-free-v1"
)

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		Environment: DefaultEnvironment,
		Environments: map[string]Environment{
			DefaultEnvironment: {
				BaseURL: DefaultBaseURL,
				Headers: map[string]string{"x-api-key": ReqresAPIKey},
			},
			"local": {
				BaseURL: "http://localhost:8080",
			},
		},
		Timeout:     DefaultTimeout,
		FailFast:    BoolPtr(true),
		Bail:        BoolPtr(false),
		Parallel:    BoolPtr(false),
		Concurrency: DefaultConcurrency,
		ValidateSSL: BoolPtr(true),
		Output:      "console",
		NoColor:     BoolPtr(false),
		Notify:      NotifyConfig{On: "failure"},
	}
}

// IsDefault returns true if the config matches defaults
func (c *Config) IsDefault() bool {
	d := DefaultConfig()
	return c.Environment == d.Environment &&
		len(c.Environments) == len(d.Environments) &&
		c.BaseURL == d.BaseURL &&
		c.Timeout == d.Timeout &&
		c.GetFailFast() == d.GetFailFast() &&
		c.GetBail() == d.GetBail() &&
		c.GetParallel() == d.GetParallel() &&
		c.Concurrency == d.Concurrency &&
		c.Rate == d.Rate &&
		c.GetValidateSSL() == d.GetValidateSSL() &&
		len(c.Headers) == 0 &&
		len(c.Variables) == 0 &&
		c.Output == d.Output &&
		c.OutputFile == d.OutputFile &&
		c.GetNoColor() == d.GetNoColor() &&
		c.HistoryDB == d.HistoryDB &&
		c.MetricsFile == d.MetricsFile &&
		c.Notify == d.Notify
}
