/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package reqflow

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/acronis/go-reqflow/config"
	"github.com/acronis/go-reqflow/httpclient"
	"github.com/acronis/go-reqflow/retry"
)

// DefaultMaxResponseBodySize is a default limit of the response body read by HTTPTransport.
const DefaultMaxResponseBodySize = 10 * 1024 * 1024

const (
	cfgKeyBaseURL              = "baseURL"
	cfgKeyDefaultHeader        = "defaultHeader"
	cfgKeyMaxReconnectionTimes = "maxReconnectionTimes"
	cfgKeyTimeStep             = "timeStep"
	cfgKeyBackoffStrategy      = "backoff.strategy"
	cfgKeyBackoffMultiplier    = "backoff.multiplier"
	cfgKeyBackoffMaxInterval   = "backoff.maxInterval"
	cfgKeyDelayTime            = "delayTime"
	cfgKeyRequestTimeout       = "requestTimeout"
	cfgKeyKeyStrictness        = "keyStrictness"
	cfgKeyMaxResponseBodySize  = "maxResponseBodySize"
	cfgKeyMetricsEnabled       = "metrics.enabled"
	cfgKeyTransport            = "transport"
)

var (
	availableBackoffStrategies = []string{string(retry.StrategyConstant), string(retry.StrategyExponential)}
	availableKeyStrictness     = []string{string(KeyByEndpoint), string(KeyByPayload)}
)

// BackoffConfig represents configuration options for intervals between reconnections.
type BackoffConfig struct {
	Strategy    retry.Strategy `mapstructure:"strategy" yaml:"strategy" json:"strategy"`
	Multiplier  float64        `mapstructure:"multiplier" yaml:"multiplier" json:"multiplier"`
	MaxInterval time.Duration  `mapstructure:"maxInterval" yaml:"maxInterval" json:"maxInterval"`
}

// MetricsConfig represents configuration options for dispatcher metrics.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
}

// Config represents configuration of Client.
type Config struct {
	// BaseURL is prepended to relative request URLs.
	BaseURL string `mapstructure:"baseURL" yaml:"baseURL" json:"baseURL"`

	// DefaultHeader is merged with headers of every request.
	DefaultHeader map[string]string `mapstructure:"defaultHeader" yaml:"defaultHeader" json:"defaultHeader"`

	// MaxReconnectionTimes is the maximum number of reconnections of the timed out request.
	MaxReconnectionTimes int `mapstructure:"maxReconnectionTimes" yaml:"maxReconnectionTimes" json:"maxReconnectionTimes"`

	// TimeStep is the interval between reconnections (the initial one for the exponential backoff).
	TimeStep time.Duration `mapstructure:"timeStep" yaml:"timeStep" json:"timeStep"`

	Backoff BackoffConfig `mapstructure:"backoff" yaml:"backoff" json:"backoff"`

	// DelayTime is the default delay of requests with Policy.Delay.
	DelayTime time.Duration `mapstructure:"delayTime" yaml:"delayTime" json:"delayTime"`

	// RequestTimeout limits a single attempt of the request. Negative value disables the limit.
	RequestTimeout time.Duration `mapstructure:"requestTimeout" yaml:"requestTimeout" json:"requestTimeout"`

	KeyStrictness KeyStrictness `mapstructure:"keyStrictness" yaml:"keyStrictness" json:"keyStrictness"`

	// MaxResponseBodySize limits the size of the response body read by HTTPTransport.
	MaxResponseBodySize config.BytesCount `mapstructure:"maxResponseBodySize" yaml:"maxResponseBodySize" json:"maxResponseBodySize"`

	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics" json:"metrics"`

	// Transport configures *http.Client used by HTTPTransport.
	Transport httpclient.Config `mapstructure:"transport" yaml:"transport" json:"transport"`

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
		MaxReconnectionTimes: DefaultMaxReconnectionTimes,
		TimeStep:             DefaultTimeStep,
		Backoff:              BackoffConfig{Strategy: retry.StrategyConstant},
		DelayTime:            DefaultDelayTime,
		RequestTimeout:       DefaultRequestTimeout,
		KeyStrictness:        KeyByEndpoint,
		MaxResponseBodySize:  DefaultMaxResponseBodySize,
		Transport:            *httpclient.NewDefaultConfig(),
	}
}

// KeyPrefix returns a key prefix with which all configuration parameters should be presented.
func (c *Config) KeyPrefix() string {
	return c.keyPrefix
}

// SetProviderDefaults is part of config interface implementation.
func (c *Config) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(cfgKeyMaxReconnectionTimes, DefaultMaxReconnectionTimes)
	dp.SetDefault(cfgKeyTimeStep, DefaultTimeStep)
	dp.SetDefault(cfgKeyBackoffStrategy, string(retry.StrategyConstant))
	dp.SetDefault(cfgKeyDelayTime, DefaultDelayTime)
	dp.SetDefault(cfgKeyRequestTimeout, DefaultRequestTimeout)
	dp.SetDefault(cfgKeyKeyStrictness, string(KeyByEndpoint))
	dp.SetDefault(cfgKeyMaxResponseBodySize, DefaultMaxResponseBodySize)
	c.Transport.SetProviderDefaults(config.NewKeyPrefixedDataProvider(dp, cfgKeyTransport))
}

// Set is part of config interface implementation.
func (c *Config) Set(dp config.DataProvider) error {
	var err error

	if c.BaseURL, err = dp.GetString(cfgKeyBaseURL); err != nil {
		return err
	}
	if c.DefaultHeader, err = dp.GetStringMapString(cfgKeyDefaultHeader); err != nil {
		return err
	}
	if len(c.DefaultHeader) == 0 {
		c.DefaultHeader = nil
	}
	if err = c.setReconnectionConfig(dp); err != nil {
		return err
	}
	if c.DelayTime, err = dp.GetDuration(cfgKeyDelayTime); err != nil {
		return err
	}
	if c.DelayTime < 0 {
		return dp.WrapKeyErr(cfgKeyDelayTime, fmt.Errorf("cannot be negative"))
	}
	if c.RequestTimeout, err = dp.GetDuration(cfgKeyRequestTimeout); err != nil {
		return err
	}
	var strictness string
	if strictness, err = dp.GetStringFromSet(cfgKeyKeyStrictness, availableKeyStrictness, true); err != nil {
		return err
	}
	c.KeyStrictness = KeyStrictness(strings.ToLower(strictness))
	if c.MaxResponseBodySize, err = dp.GetBytesCount(cfgKeyMaxResponseBodySize); err != nil {
		return err
	}
	if c.Metrics.Enabled, err = dp.GetBool(cfgKeyMetricsEnabled); err != nil {
		return err
	}
	return c.Transport.Set(config.NewKeyPrefixedDataProvider(dp, cfgKeyTransport))
}

func (c *Config) setReconnectionConfig(dp config.DataProvider) error {
	var err error
	if c.MaxReconnectionTimes, err = dp.GetInt(cfgKeyMaxReconnectionTimes); err != nil {
		return err
	}
	if c.MaxReconnectionTimes < 0 {
		return dp.WrapKeyErr(cfgKeyMaxReconnectionTimes, fmt.Errorf("cannot be negative"))
	}
	if c.TimeStep, err = dp.GetDuration(cfgKeyTimeStep); err != nil {
		return err
	}
	if c.TimeStep < 0 {
		return dp.WrapKeyErr(cfgKeyTimeStep, fmt.Errorf("cannot be negative"))
	}
	var strategy string
	if strategy, err = dp.GetStringFromSet(cfgKeyBackoffStrategy, availableBackoffStrategies, true); err != nil {
		return err
	}
	c.Backoff.Strategy = retry.Strategy(strings.ToLower(strategy))
	if c.Backoff.Multiplier, err = dp.GetFloat64(cfgKeyBackoffMultiplier); err != nil {
		return err
	}
	if c.Backoff.Strategy == retry.StrategyExponential && c.Backoff.Multiplier <= 1 {
		return dp.WrapKeyErr(cfgKeyBackoffMultiplier, fmt.Errorf("must be greater than 1"))
	}
	if c.Backoff.MaxInterval, err = dp.GetDuration(cfgKeyBackoffMaxInterval); err != nil {
		return err
	}
	if c.Backoff.MaxInterval < 0 {
		return dp.WrapKeyErr(cfgKeyBackoffMaxInterval, fmt.Errorf("cannot be negative"))
	}
	return nil
}

// BackoffPolicy returns the retry policy built from the config.
func (c *Config) BackoffPolicy() (retry.Policy, error) {
	return retry.NewPolicy(c.Backoff.Strategy, c.TimeStep, c.Backoff.Multiplier, c.Backoff.MaxInterval)
}

// Header returns the default header built from the config.
func (c *Config) Header() http.Header {
	if len(c.DefaultHeader) == 0 {
		return nil
	}
	h := make(http.Header, len(c.DefaultHeader))
	for k, v := range c.DefaultHeader {
		h.Set(k, v)
	}
	return h
}
