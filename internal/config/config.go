// Package config reads the gbforge settings from the environment. The
// core packages never read the environment themselves; the CLI loads a
// Config and passes its values down explicitly.
package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/gbforge/gbforge/internal/errs"
	"github.com/gbforge/gbforge/internal/resolve"
	"github.com/gbforge/gbforge/internal/rules"
	"github.com/joho/godotenv"
	"github.com/qiniu/x/log"
)

const (
	EnvRulesFile      = "GBFORGE_RULES_FILE"
	EnvRulesRevision  = "GBFORGE_RULES_REVISION"
	EnvOptions        = "GBFORGE_OPTIONS"
	EnvClangTidy      = "GBFORGE_ENABLE_CLANG_TIDY"
	EnvSanitizers     = "GBFORGE_ENABLE_SANITIZERS"
	EnvLogLevel       = "GBFORGE_LOG_LEVEL"
	EnvExecutable     = "GBFORGE_EXECUTABLE"
	defaultExecutable = "emu"
)

type Config struct {
	// RulesFile replaces the built-in rule table when set.
	RulesFile     string
	RulesRevision string
	// Options are "name:key=value" entries applied after the rule table.
	Options    []string
	ClangTidy  bool
	Sanitizers bool
	LogLevel   string
	Executable string
}

// Load reads the given dotenv files, ".env" when none is given, then the
// environment. Variables already set in the environment win over the
// files. Missing files are ignored.
func Load(files ...string) (*Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, &errs.ConfigurationError{What: "dotenv file " + f, Err: err}
		}
	}

	cfg := &Config{
		RulesFile:     strings.TrimSpace(os.Getenv(EnvRulesFile)),
		RulesRevision: strings.TrimSpace(os.Getenv(EnvRulesRevision)),
		Options:       splitList(os.Getenv(EnvOptions)),
		LogLevel:      firstNonEmpty(strings.TrimSpace(os.Getenv(EnvLogLevel)), "info"),
		Executable:    firstNonEmpty(strings.TrimSpace(os.Getenv(EnvExecutable)), defaultExecutable),
	}
	var err error
	if cfg.ClangTidy, err = envBool(EnvClangTidy); err != nil {
		return nil, err
	}
	if cfg.Sanitizers, err = envBool(EnvSanitizers); err != nil {
		return nil, err
	}
	if _, err := ParseLevel(cfg.LogLevel); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Rules returns the rule table selected by c.
func (c *Config) Rules() (*rules.Table, error) {
	if c.RulesFile != "" {
		return rules.Load(c.RulesFile)
	}
	return rules.Default()
}

// Request returns the resolver request carried by c.
func (c *Config) Request() (resolve.Request, error) {
	opts, err := resolve.ParseOptions(c.Options)
	if err != nil {
		return resolve.Request{}, err
	}
	return resolve.Request{Revision: c.RulesRevision, Options: opts}, nil
}

// ParseLevel maps a level name to a qiniu/x/log level.
func ParseLevel(name string) (int, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return log.Ldebug, nil
	case "", "info":
		return log.Linfo, nil
	case "warn", "warning":
		return log.Lwarn, nil
	case "error":
		return log.Lerror, nil
	}
	return 0, errs.Configf("%s: unknown log level %q", EnvLogLevel, name)
}

// ApplyLogLevel sets the output level of the standard logger.
func (c *Config) ApplyLogLevel() {
	if lvl, err := ParseLevel(c.LogLevel); err == nil {
		log.SetOutputLevel(lvl)
	}
}

func envBool(key string) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, &errs.ConfigurationError{What: key, Err: err}
	}
	return v, nil
}

// splitList splits on commas and white space.
func splitList(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n'
	})
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
