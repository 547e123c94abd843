// Package config resolves engine settings from built-in defaults, an optional
// YAML file and the process environment, in that order of precedence.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variables read by FromEnv.
const (
	EnvSystemLanguage         = "SYSTEM_LANGUAGE"
	EnvSystemRegion           = "SYSTEM_REGION"
	EnvDefaultPageLoadTimeout = "DEFAULT_PAGE_LOAD_TIMEOUT" // milliseconds
	EnvMinPageLoadTimeout     = "MIN_PAGE_LOAD_TIMEOUT"     // milliseconds
	EnvProxy                  = "SCOUT_PROXY"
)

// Config holds everything the engine needs beyond the recipe itself.
type Config struct {
	SystemLanguage         string        `yaml:"system_language"`
	SystemRegion           string        `yaml:"system_region"`
	DefaultPageLoadTimeout time.Duration `yaml:"default_page_load_timeout"`
	MinPageLoadTimeout     time.Duration `yaml:"min_page_load_timeout"`
	Headless               bool          `yaml:"headless"`
	ProxyURL               string        `yaml:"proxy_url"`
	SchemaPath             string        `yaml:"schema_path"`

	// Defaults backs variable lookups the run itself never wrote, normally
	// the process environment.
	Defaults map[string]string `yaml:"-"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		SystemLanguage:         "en",
		SystemRegion:           "US",
		DefaultPageLoadTimeout: 30 * time.Second,
		MinPageLoadTimeout:     5 * time.Second,
		Headless:               true,
		Defaults:               map[string]string{},
	}
}

// Load builds a Config from the defaults, the YAML file at path (skipped when
// path is empty) and then environ, a list of "KEY=value" pairs as returned by
// os.Environ.
func Load(path string, environ []string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(environ); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// FromEnv is Load without a config file.
func FromEnv(environ []string) (Config, error) {
	return Load("", environ)
}

func (c *Config) applyEnv(environ []string) error {
	env := parseEnviron(environ)
	c.Defaults = env

	if v := env[EnvSystemLanguage]; v != "" {
		c.SystemLanguage = v
	}
	if v := env[EnvSystemRegion]; v != "" {
		c.SystemRegion = v
	}
	if v := env[EnvProxy]; v != "" {
		c.ProxyURL = v
	}
	if v := env[EnvDefaultPageLoadTimeout]; v != "" {
		d, err := parseMillis(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvDefaultPageLoadTimeout, err)
		}
		c.DefaultPageLoadTimeout = d
	}
	if v := env[EnvMinPageLoadTimeout]; v != "" {
		d, err := parseMillis(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvMinPageLoadTimeout, err)
		}
		c.MinPageLoadTimeout = d
	}
	return nil
}

// Validate rejects settings the engine cannot work with.
func (c Config) Validate() error {
	if c.DefaultPageLoadTimeout <= 0 {
		return fmt.Errorf("default page load timeout must be positive, got %s", c.DefaultPageLoadTimeout)
	}
	if c.MinPageLoadTimeout < 0 {
		return fmt.Errorf("min page load timeout must not be negative, got %s", c.MinPageLoadTimeout)
	}
	return nil
}

// PageLoadTimeout returns the navigation timeout for a step that asked for
// requested (zero means "use the default"), never below the configured minimum.
func (c Config) PageLoadTimeout(requested time.Duration) time.Duration {
	timeout := requested
	if timeout <= 0 {
		timeout = c.DefaultPageLoadTimeout
	}
	if timeout < c.MinPageLoadTimeout {
		timeout = c.MinPageLoadTimeout
	}
	return timeout
}

func parseMillis(s string) (time.Duration, error) {
	ms, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, err
	}
	return time.Duration(ms) * time.Millisecond, nil
}

func parseEnviron(environ []string) map[string]string {
	env := make(map[string]string, len(environ))
	for _, kv := range environ {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			continue
		}
		env[k] = v
	}
	return env
}
