/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type testClientConfig struct {
	BaseURL string
	Timeout time.Duration
}

func (c *testClientConfig) SetProviderDefaults(dp DataProvider) {
	dp.SetDefault("timeout", "5s")
}

func (c *testClientConfig) Set(dp DataProvider) error {
	var err error
	if c.BaseURL, err = dp.GetString("baseURL"); err != nil {
		return err
	}
	c.Timeout, err = dp.GetDuration("timeout")
	return err
}

type testPrefixedClientConfig struct {
	testClientConfig
}

func (c *testPrefixedClientConfig) KeyPrefix() string {
	return "client"
}

func TestLoader_LoadFromReader(t *testing.T) {
	t.Run("load config, use defaults", func(t *testing.T) {
		cfg := &testClientConfig{}
		err := NewLoader(NewViperAdapter()).LoadFromReader(bytes.NewBufferString(`{}`), DataTypeJSON, cfg)
		require.NoError(t, err)
		require.Equal(t, 5*time.Second, cfg.Timeout)
		require.Equal(t, "", cfg.BaseURL)
	})

	t.Run("load config", func(t *testing.T) {
		cfg := &testClientConfig{}
		err := NewLoader(NewViperAdapter()).LoadFromReader(
			bytes.NewBufferString(`{"baseURL":"http://localhost:8080","timeout":"1m"}`), DataTypeJSON, cfg)
		require.NoError(t, err)
		require.Equal(t, "http://localhost:8080", cfg.BaseURL)
		require.Equal(t, time.Minute, cfg.Timeout)
	})

	t.Run("load config, use key prefix", func(t *testing.T) {
		cfg := &testPrefixedClientConfig{}
		yamlData := "client:\n  baseURL: http://example.com\n  timeout: 3s\n"
		err := NewLoader(NewViperAdapter()).LoadFromReader(bytes.NewBufferString(yamlData), DataTypeYAML, cfg)
		require.NoError(t, err)
		require.Equal(t, "http://example.com", cfg.BaseURL)
		require.Equal(t, 3*time.Second, cfg.Timeout)
	})

	t.Run("invalid value", func(t *testing.T) {
		cfg := &testClientConfig{}
		err := NewLoader(NewViperAdapter()).LoadFromReader(
			bytes.NewBufferString(`{"timeout":"forever"}`), DataTypeJSON, cfg)
		require.Error(t, err)
		require.Contains(t, err.Error(), "timeout: ")
	})
}

func TestLoader_LoadFromFile(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("client:\n  baseURL: http://file.local\n"), 0o600))

	cfg := &testPrefixedClientConfig{}
	require.NoError(t, NewLoader(NewViperAdapter()).LoadFromFile(cfgPath, DataTypeYAML, cfg))
	require.Equal(t, "http://file.local", cfg.BaseURL)
	require.Equal(t, 5*time.Second, cfg.Timeout)
}

func TestNewDefaultLoader_EnvVars(t *testing.T) {
	t.Setenv("REQFLOWTEST_CLIENT_BASEURL", "http://from-env")

	cfg := &testPrefixedClientConfig{}
	err := NewDefaultLoader("reqflowtest").LoadFromReader(bytes.NewBufferString(`{}`), DataTypeJSON, cfg)
	require.NoError(t, err)
	require.Equal(t, "http://from-env", cfg.BaseURL)
}
