/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package log

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/acronis/go-reqflow/config"
)

func TestNewLogger_FileOutput(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "reqflow.log")
	cfg := NewDefaultConfig()
	cfg.Level = LevelDebug
	cfg.Output = OutputFile
	cfg.File.Path = logPath

	logger, closeFn := NewLogger(cfg)
	logger.With(String("request_id", "c1")).Debug("dispatch", String("url", "/items"), Int("attempt", 1))
	logger.Infof("retry scheduled in %s", "1s")
	closeFn()

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)

	var first map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	require.Equal(t, "dispatch", first["msg"])
	require.Equal(t, "c1", first["request_id"])
	require.Equal(t, "/items", first["url"])
	require.EqualValues(t, 1, first["attempt"])
	require.EqualValues(t, os.Getpid(), first["pid"])

	var second map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &second))
	require.Equal(t, "retry scheduled in 1s", second["msg"])
}

func TestNewLogger_LevelFiltering(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "reqflow.log")
	cfg := NewDefaultConfig()
	cfg.Level = LevelWarn
	cfg.Output = OutputFile
	cfg.File.Path = logPath

	logger, closeFn := NewLogger(cfg)
	logger.Debug("hidden")
	logger.Info("hidden")
	logger.Warn("shown")
	logger.WithLevel(LevelError).Warn("hidden")
	closeFn()

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	require.Equal(t, 1, strings.Count(string(data), "\n"))
	require.Contains(t, string(data), `"shown"`)
}

func TestNewLogger_Masking(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "reqflow.log")
	cfg := NewDefaultConfig()
	cfg.Output = OutputFile
	cfg.File.Path = logPath
	cfg.Masking.Enabled = true

	logger, closeFn := NewLogger(cfg)
	logger.Info("request failed", String("url", "/items?api_key=secret42&page=1"))
	closeFn()

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	require.NotContains(t, string(data), "secret42")
	require.Contains(t, string(data), "api_key=***")
}

func TestConfig_Load(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg := NewConfig()
		err := config.NewLoader(config.NewViperAdapter()).LoadFromReader(bytes.NewBufferString(`{}`), config.DataTypeJSON, cfg)
		require.NoError(t, err)
		require.Equal(t, LevelInfo, cfg.Level)
		require.Equal(t, FormatJSON, cfg.Format)
		require.Equal(t, OutputStdout, cfg.Output)
		require.Equal(t, config.BytesCount(DefaultFileRotationMaxSizeBytes), cfg.File.Rotation.MaxSize)
		require.Equal(t, DefaultFileRotationMaxBackups, cfg.File.Rotation.MaxBackups)
		require.True(t, cfg.Masking.UseDefaultRules)
	})

	t.Run("custom values", func(t *testing.T) {
		cfgData := `
log:
  level: DEBUG
  format: text
  output: file
  file:
    path: /var/log/reqflow.log
    rotation:
      maxSize: 100M
      maxBackups: 3
  masking:
    enabled: true
    rules:
      - field: session
        formats: [urlencoded]
`
		cfg := NewConfig()
		err := config.NewLoader(config.NewViperAdapter()).LoadFromReader(bytes.NewBufferString(cfgData), config.DataTypeYAML, cfg)
		require.NoError(t, err)
		require.Equal(t, LevelDebug, cfg.Level)
		require.Equal(t, FormatText, cfg.Format)
		require.Equal(t, OutputFile, cfg.Output)
		require.Equal(t, "/var/log/reqflow.log", cfg.File.Path)
		require.Equal(t, config.BytesCount(100*1024*1024), cfg.File.Rotation.MaxSize)
		require.Equal(t, 3, cfg.File.Rotation.MaxBackups)
		require.True(t, cfg.Masking.Enabled)
		require.Equal(t, []MaskingRuleConfig{{Field: "session", Formats: []FieldMaskFormat{FieldMaskFormatURLEncoded}}},
			cfg.Masking.Rules)
	})

	t.Run("errors", func(t *testing.T) {
		tests := []struct {
			name    string
			cfgData string
			wantErr string
		}{
			{"unknown level", `{"log":{"level":"trace"}}`,
				`log.level: unknown value "trace", should be one of [error warn info debug]`},
			{"file output without path", `{"log":{"output":"file"}}`,
				`log.file.path: cannot be empty when "file" output is used`},
			{"too small rotation size", `{"log":{"file":{"rotation":{"maxSize":"1K"}}}}`,
				`log.file.rotation.maxSize: should be >= 1M`},
			{"negative max age", `{"log":{"file":{"rotation":{"maxAgeDays":-1}}}}`,
				`log.file.rotation.maxAgeDays: should be >= 0`},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				cfg := NewConfig()
				err := config.NewLoader(config.NewViperAdapter()).LoadFromReader(
					bytes.NewBufferString(tt.cfgData), config.DataTypeJSON, cfg)
				require.EqualError(t, err, tt.wantErr)
			})
		}
	})
}
