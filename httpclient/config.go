/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package httpclient

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/acronis/go-reqflow/config"
)

// DefaultClientWaitTimeout is a default timeout for a client to wait for a request.
const DefaultClientWaitTimeout = 10 * time.Second

const (
	cfgKeyTimeout                    = "timeout"
	cfgKeyUserAgent                  = "userAgent"
	cfgKeyRateLimitsEnabled          = "rateLimits.enabled"
	cfgKeyRateLimitsLimit            = "rateLimits.limit"
	cfgKeyRateLimitsBurst            = "rateLimits.burst"
	cfgKeyRateLimitsWaitTimeout      = "rateLimits.waitTimeout"
	cfgKeyRateLimitsAdaptationHeader = "rateLimits.adaptation.responseHeaderName"
	cfgKeyRateLimitsAdaptationSlack  = "rateLimits.adaptation.slackPercent"
	cfgKeyLogEnabled                 = "log.enabled"
	cfgKeyLogMode                    = "log.mode"
	cfgKeyLogSlowRequestThreshold    = "log.slowRequestThreshold"
	cfgKeyMetricsEnabled             = "metrics.enabled"
	cfgKeyDNSResolverAddresses       = "dnsResolver.addresses"
	cfgKeyDNSResolverTimeout         = "dnsResolver.timeout"
)

var availableLoggingModes = []string{string(LoggingModeNone), string(LoggingModeAll), string(LoggingModeFailed)}

// RateLimitsConfig represents configuration options for HTTP client rate limits.
type RateLimitsConfig struct {
	Enabled     bool                               `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	Limit       int                                `mapstructure:"limit" yaml:"limit" json:"limit"`
	Burst       int                                `mapstructure:"burst" yaml:"burst" json:"burst"`
	WaitTimeout time.Duration                      `mapstructure:"waitTimeout" yaml:"waitTimeout" json:"waitTimeout"`
	Adaptation  RateLimitingRoundTripperAdaptation `mapstructure:"adaptation" yaml:"adaptation" json:"adaptation"`
}

// TransportOpts returns options for RateLimitingRoundTripper.
func (c *RateLimitsConfig) TransportOpts() RateLimitingRoundTripperOpts {
	return RateLimitingRoundTripperOpts{Burst: c.Burst, WaitTimeout: c.WaitTimeout, Adaptation: c.Adaptation}
}

// LogConfig represents configuration options for HTTP client logs.
type LogConfig struct {
	Enabled              bool          `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	Mode                 LoggingMode   `mapstructure:"mode" yaml:"mode" json:"mode"`
	SlowRequestThreshold time.Duration `mapstructure:"slowRequestThreshold" yaml:"slowRequestThreshold" json:"slowRequestThreshold"`
}

// TransportOpts returns options for LoggingRoundTripper.
func (c *LogConfig) TransportOpts() LoggingRoundTripperOpts {
	return LoggingRoundTripperOpts{Mode: c.Mode, SlowRequestThreshold: c.SlowRequestThreshold}
}

// MetricsConfig represents configuration options for HTTP client metrics.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
}

// DNSResolverConfig represents configuration options for resolving hosts with custom DNS servers.
type DNSResolverConfig struct {
	// Addresses of DNS servers ("host:port"). System resolver is used if it's empty.
	Addresses []string      `mapstructure:"addresses" yaml:"addresses" json:"addresses"`
	Timeout   time.Duration `mapstructure:"timeout" yaml:"timeout" json:"timeout"`
}

// Config represents options for HTTP client configuration.
type Config struct {
	// Timeout is the maximum time to wait for a request to be made (including reading the response body).
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout" json:"timeout"`

	// UserAgent is set to the User-Agent header of outgoing requests if it's not empty.
	UserAgent string `mapstructure:"userAgent" yaml:"userAgent" json:"userAgent"`

	RateLimits RateLimitsConfig `mapstructure:"rateLimits" yaml:"rateLimits" json:"rateLimits"`
	Log        LogConfig        `mapstructure:"log" yaml:"log" json:"log"`
	Metrics    MetricsConfig    `mapstructure:"metrics" yaml:"metrics" json:"metrics"`

	DNSResolver DNSResolverConfig `mapstructure:"dnsResolver" yaml:"dnsResolver" json:"dnsResolver"`

	keyPrefix string
}

var _ config.Config = (*Config)(nil)
var _ config.KeyPrefixProvider = (*Config)(nil)

// NewConfig creates a new instance of the Config.
func NewConfig() *Config {
	return NewConfigWithKeyPrefix("")
}

// NewConfigWithKeyPrefix creates a new instance of the Config.
// Allows specifying key prefix which will be used for parsing configuration parameters.
func NewConfigWithKeyPrefix(keyPrefix string) *Config {
	return &Config{keyPrefix: keyPrefix}
}

// NewDefaultConfig creates a new instance of the Config with default values.
func NewDefaultConfig() *Config {
	return &Config{
		Timeout: DefaultClientWaitTimeout,
		Log:     LogConfig{Mode: LoggingModeAll},
	}
}

// KeyPrefix returns a key prefix with which all configuration parameters should be presented.
func (c *Config) KeyPrefix() string {
	return c.keyPrefix
}

// SetProviderDefaults is part of config interface implementation.
func (c *Config) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(cfgKeyTimeout, DefaultClientWaitTimeout)
	dp.SetDefault(cfgKeyRateLimitsBurst, DefaultRateLimitingBurst)
	dp.SetDefault(cfgKeyRateLimitsWaitTimeout, DefaultRateLimitingWaitTimeout)
	dp.SetDefault(cfgKeyLogMode, string(LoggingModeAll))
}

// Set is part of config interface implementation.
func (c *Config) Set(dp config.DataProvider) error {
	var err error

	if c.Timeout, err = dp.GetDuration(cfgKeyTimeout); err != nil {
		return err
	}
	if c.Timeout < 0 {
		return dp.WrapKeyErr(cfgKeyTimeout, fmt.Errorf("cannot be negative"))
	}
	if c.UserAgent, err = dp.GetString(cfgKeyUserAgent); err != nil {
		return err
	}
	if err = c.setRateLimitsConfig(dp); err != nil {
		return err
	}
	if err = c.setLogConfig(dp); err != nil {
		return err
	}
	if c.Metrics.Enabled, err = dp.GetBool(cfgKeyMetricsEnabled); err != nil {
		return err
	}
	return c.setDNSResolverConfig(dp)
}

func (c *Config) setDNSResolverConfig(dp config.DataProvider) error {
	var err error
	if c.DNSResolver.Addresses, err = dp.GetStringSlice(cfgKeyDNSResolverAddresses); err != nil {
		return err
	}
	if len(c.DNSResolver.Addresses) == 0 {
		c.DNSResolver.Addresses = nil
	}
	for _, addr := range c.DNSResolver.Addresses {
		if _, _, err = net.SplitHostPort(addr); err != nil {
			return dp.WrapKeyErr(cfgKeyDNSResolverAddresses, fmt.Errorf("invalid address %q: %w", addr, err))
		}
	}
	if c.DNSResolver.Timeout, err = dp.GetDuration(cfgKeyDNSResolverTimeout); err != nil {
		return err
	}
	if c.DNSResolver.Timeout < 0 {
		return dp.WrapKeyErr(cfgKeyDNSResolverTimeout, fmt.Errorf("cannot be negative"))
	}
	return nil
}

func (c *Config) setRateLimitsConfig(dp config.DataProvider) error {
	var err error
	if c.RateLimits.Enabled, err = dp.GetBool(cfgKeyRateLimitsEnabled); err != nil {
		return err
	}
	if !c.RateLimits.Enabled {
		return nil
	}

	if c.RateLimits.Limit, err = dp.GetInt(cfgKeyRateLimitsLimit); err != nil {
		return err
	}
	if c.RateLimits.Limit <= 0 {
		return dp.WrapKeyErr(cfgKeyRateLimitsLimit, fmt.Errorf("must be positive"))
	}
	if c.RateLimits.Burst, err = dp.GetInt(cfgKeyRateLimitsBurst); err != nil {
		return err
	}
	if c.RateLimits.Burst < 0 {
		return dp.WrapKeyErr(cfgKeyRateLimitsBurst, fmt.Errorf("cannot be negative"))
	}
	if c.RateLimits.WaitTimeout, err = dp.GetDuration(cfgKeyRateLimitsWaitTimeout); err != nil {
		return err
	}
	if c.RateLimits.WaitTimeout < 0 {
		return dp.WrapKeyErr(cfgKeyRateLimitsWaitTimeout, fmt.Errorf("cannot be negative"))
	}
	if c.RateLimits.Adaptation.ResponseHeaderName, err = dp.GetString(cfgKeyRateLimitsAdaptationHeader); err != nil {
		return err
	}
	if c.RateLimits.Adaptation.SlackPercent, err = dp.GetInt(cfgKeyRateLimitsAdaptationSlack); err != nil {
		return err
	}
	if c.RateLimits.Adaptation.SlackPercent < 0 || c.RateLimits.Adaptation.SlackPercent > 100 {
		return dp.WrapKeyErr(cfgKeyRateLimitsAdaptationSlack, fmt.Errorf("must be in range [0..100]"))
	}
	return nil
}

func (c *Config) setLogConfig(dp config.DataProvider) error {
	var err error
	if c.Log.Enabled, err = dp.GetBool(cfgKeyLogEnabled); err != nil {
		return err
	}
	var mode string
	if mode, err = dp.GetStringFromSet(cfgKeyLogMode, availableLoggingModes, true); err != nil {
		return err
	}
	c.Log.Mode = LoggingMode(strings.ToLower(mode))
	if c.Log.SlowRequestThreshold, err = dp.GetDuration(cfgKeyLogSlowRequestThreshold); err != nil {
		return err
	}
	if c.Log.SlowRequestThreshold < 0 {
		return dp.WrapKeyErr(cfgKeyLogSlowRequestThreshold, fmt.Errorf("cannot be negative"))
	}
	return nil
}
