package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/gbforge/gbforge/internal/errs"
	"github.com/gbforge/gbforge/mod/dep"
	"github.com/qiniu/x/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{EnvRulesFile, EnvRulesRevision, EnvOptions, EnvClangTidy, EnvSanitizers, EnvLogLevel, EnvExecutable} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, "", cfg.RulesFile)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "emu", cfg.Executable)
	assert.False(t, cfg.ClangTidy)
	assert.False(t, cfg.Sanitizers)
	assert.Empty(t, cfg.Options)
}

func TestLoadEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvRulesRevision, "v1")
	t.Setenv(EnvOptions, "sdl:pulse=False, imgui:docking=true")
	t.Setenv(EnvClangTidy, "true")
	t.Setenv(EnvSanitizers, "1")
	t.Setenv(EnvLogLevel, "debug")
	t.Setenv(EnvExecutable, "gbemu")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, "v1", cfg.RulesRevision)
	assert.Equal(t, []string{"sdl:pulse=False", "imgui:docking=true"}, cfg.Options)
	assert.True(t, cfg.ClangTidy)
	assert.True(t, cfg.Sanitizers)
	assert.Equal(t, "gbemu", cfg.Executable)

	req, err := cfg.Request()
	require.NoError(t, err)
	assert.Equal(t, "v1", req.Revision)
	assert.Equal(t, map[string]dep.Options{
		"sdl":   {"pulse": "False"},
		"imgui": {"docking": "true"},
	}, req.Options)
}

func TestLoadDotenvFile(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvExecutable, "fromenv")
	file := filepath.Join(t.TempDir(), "gbforge.env")
	require.NoError(t, os.WriteFile(file, []byte("GBFORGE_RULES_REVISION=v2\nGBFORGE_EXECUTABLE=fromfile\n"), 0o644))
	t.Cleanup(func() { os.Unsetenv(EnvRulesRevision) })

	cfg, err := Load(file)
	require.NoError(t, err)
	assert.Equal(t, "v2", cfg.RulesRevision)
	// The environment wins over the file.
	assert.Equal(t, "fromenv", cfg.Executable)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		key, value string
	}{
		{EnvClangTidy, "maybe"},
		{EnvSanitizers, "yes please"},
		{EnvLogLevel, "loud"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.key, tt.value)
			_, err := Load(filepath.Join(t.TempDir(), "missing.env"))
			var cfgErr *errs.ConfigurationError
			require.ErrorAs(t, err, &cfgErr)
		})
	}
}

func TestRequestInvalidOption(t *testing.T) {
	cfg := &Config{Options: []string{"sdl-pulse"}}
	_, err := cfg.Request()
	var cfgErr *errs.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
}

func TestRules(t *testing.T) {
	table, err := (&Config{}).Rules()
	require.NoError(t, err)
	assert.NotEmpty(t, table.Names())

	_, err = (&Config{RulesFile: filepath.Join(t.TempDir(), "none.hcl")}).Rules()
	assert.Error(t, err)
}

func TestParseLevel(t *testing.T) {
	for name, want := range map[string]int{
		"debug": log.Ldebug, "INFO": log.Linfo, "": log.Linfo, "warn": log.Lwarn, "error": log.Lerror,
	} {
		got, err := ParseLevel(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, got, name)
	}
}
