// Package config builds the immutable agent configuration once at startup.
// Components receive it (or slices of it) through their constructors and never
// consult ambient globals afterwards.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultListenAddr       = ":8080"
	defaultProviderLocation = "us-central1"
	defaultProviderModel    = "gemini-2.5-flash"
	defaultProviderTimeout  = 60 * time.Second
	defaultMarkerPath       = ".maintenance"
	defaultSMTPPort         = "587"
)

// Duration is a time.Duration that unmarshals from YAML strings like "60s";
// yaml.v3 has no native duration support.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Provider holds everything needed to reach the model provider.
type Provider struct {
	// Secret is either a service-account JSON document or a raw API key.
	// Which one it is gets decided once, at client construction.
	Secret   string   `yaml:"secret"`
	Project  string   `yaml:"project"`
	Location string   `yaml:"location"`
	Model    string   `yaml:"model"`
	Timeout  Duration `yaml:"timeout"`
}

// SMTP carries the outbound-mail transport settings. They can also be
// rewritten at runtime through the configure_smtp tool, which stores them as
// host options; these values seed the option store.
type SMTP struct {
	Host string `yaml:"host"`
	Port string `yaml:"port"`
	User string `yaml:"user"`
	Pass string `yaml:"pass"`
}

// Config is the complete agent configuration.
type Config struct {
	ListenAddr     string   `yaml:"listen_addr"`
	PGDSN          string   `yaml:"pg_dsn"`
	SiteName       string   `yaml:"site_name"`
	OperatorSecret string   `yaml:"operator_secret"`
	MarkerPath     string   `yaml:"maintenance_marker"`
	Provider       Provider `yaml:"provider"`
	SMTP           SMTP     `yaml:"smtp"`
}

// Load reads the optional YAML file at path, overlays environment variables,
// applies defaults and validates the result. An empty path skips the file.
func Load(path string) (Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg.overlayEnv()
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) overlayEnv() {
	overlay(&c.ListenAddr, "STEWARD_LISTEN_ADDR")
	overlay(&c.PGDSN, "STEWARD_PG_DSN")
	overlay(&c.SiteName, "STEWARD_SITE_NAME")
	overlay(&c.OperatorSecret, "STEWARD_OPERATOR_SECRET")
	overlay(&c.MarkerPath, "STEWARD_MAINTENANCE_MARKER")
	overlay(&c.Provider.Secret, "STEWARD_PROVIDER_SECRET")
	overlay(&c.Provider.Project, "STEWARD_PROVIDER_PROJECT")
	overlay(&c.Provider.Location, "STEWARD_PROVIDER_LOCATION")
	overlay(&c.Provider.Model, "STEWARD_PROVIDER_MODEL")
	overlayDuration(&c.Provider.Timeout, "STEWARD_PROVIDER_TIMEOUT")
	overlay(&c.SMTP.Host, "STEWARD_SMTP_HOST")
	overlay(&c.SMTP.Port, "STEWARD_SMTP_PORT")
	overlay(&c.SMTP.User, "STEWARD_SMTP_USER")
	overlay(&c.SMTP.Pass, "STEWARD_SMTP_PASS")
}

func (c *Config) applyDefaults() {
	if c.ListenAddr == "" {
		c.ListenAddr = defaultListenAddr
	}
	if c.SiteName == "" {
		c.SiteName = "steward"
	}
	if c.MarkerPath == "" {
		c.MarkerPath = defaultMarkerPath
	}
	if c.Provider.Location == "" {
		c.Provider.Location = defaultProviderLocation
	}
	if c.Provider.Model == "" {
		c.Provider.Model = defaultProviderModel
	}
	if c.Provider.Timeout <= 0 {
		c.Provider.Timeout = Duration(defaultProviderTimeout)
	}
	if c.SMTP.Port == "" {
		c.SMTP.Port = defaultSMTPPort
	}
}

func (c *Config) validate() error {
	if strings.TrimSpace(c.OperatorSecret) == "" {
		return errors.New("config: operator_secret is required")
	}
	return nil
}

func overlay(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func overlayDuration(dst *Duration, key string) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return
	}
	if parsed, err := time.ParseDuration(v); err == nil {
		*dst = Duration(parsed)
	}
}
