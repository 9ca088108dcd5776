// Package config loads and validates shopstyle configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/shopstyle/internal/browser"
	"github.com/JakeFAU/shopstyle/internal/telemetry"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Browser   BrowserConfig   `mapstructure:"browser"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port                     int `mapstructure:"port"`
	ReadHeaderTimeoutSeconds int `mapstructure:"read_header_timeout_seconds"`
	ShutdownTimeoutSeconds   int `mapstructure:"shutdown_timeout_seconds"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// BrowserConfig configures browser launches and page loading.
type BrowserConfig struct {
	Engine        string `mapstructure:"engine"`
	ExecPath      string `mapstructure:"exec_path"`
	Headless      bool   `mapstructure:"headless"`
	NoSandbox     bool   `mapstructure:"no_sandbox"`
	UserAgent     string `mapstructure:"user_agent"`
	NavTimeoutSec int    `mapstructure:"nav_timeout_seconds"`
	MaxParallel   int    `mapstructure:"max_parallel"`
}

// TelemetryConfig controls OpenTelemetry tracing. Sampled spans are only
// exported when Exporter names one ("stdout" writes them to stderr).
type TelemetryConfig struct {
	ServiceName    string `mapstructure:"service_name"`
	TracingEnabled bool   `mapstructure:"tracing_enabled"`
	Exporter       string `mapstructure:"exporter"`
}

// Load builds a Config from disk/environment. The bare PORT variable is
// honoured for the listen port alongside SHOPSTYLE_SERVER_PORT.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SHOPSTYLE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("server.port", "SHOPSTYLE_SERVER_PORT", "PORT"); err != nil {
		return Config{}, fmt.Errorf("bind port env: %w", err)
	}

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.read_header_timeout_seconds", 10)
	v.SetDefault("server.shutdown_timeout_seconds", 15)
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "info")
	v.SetDefault("browser.engine", browser.EngineChromedp)
	v.SetDefault("browser.exec_path", "")
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.no_sandbox", true)
	v.SetDefault("browser.user_agent", "")
	v.SetDefault("browser.nav_timeout_seconds", 30)
	v.SetDefault("browser.max_parallel", 0)
	v.SetDefault("telemetry.service_name", "shopstyle")
	v.SetDefault("telemetry.tracing_enabled", false)
	v.SetDefault("telemetry.exporter", telemetry.ExporterNone)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}
	if c.Server.ShutdownTimeoutSeconds <= 0 {
		return fmt.Errorf("server.shutdown_timeout_seconds must be > 0")
	}
	switch strings.ToLower(c.Browser.Engine) {
	case browser.EngineChromedp, browser.EngineRod:
	default:
		return fmt.Errorf("browser.engine must be %q or %q, got %q", browser.EngineChromedp, browser.EngineRod, c.Browser.Engine)
	}
	if c.Browser.NavTimeoutSec <= 0 {
		return fmt.Errorf("browser.nav_timeout_seconds must be > 0")
	}
	if c.Browser.MaxParallel < 0 {
		return fmt.Errorf("browser.max_parallel must be >= 0")
	}
	switch strings.ToLower(c.Telemetry.Exporter) {
	case "", telemetry.ExporterNone, telemetry.ExporterStdout:
	default:
		return fmt.Errorf("telemetry.exporter must be %q or %q, got %q", telemetry.ExporterNone, telemetry.ExporterStdout, c.Telemetry.Exporter)
	}
	return nil
}

// BrowserOptions converts the browser section into loader options.
func (c Config) BrowserOptions() browser.Config {
	return browser.Config{
		Engine:            strings.ToLower(c.Browser.Engine),
		ExecPath:          c.Browser.ExecPath,
		Headless:          c.Browser.Headless,
		NoSandbox:         c.Browser.NoSandbox,
		UserAgent:         c.Browser.UserAgent,
		NavigationTimeout: time.Duration(c.Browser.NavTimeoutSec) * time.Second,
	}
}

// ReadHeaderTimeout returns the HTTP server's header read budget.
func (c Config) ReadHeaderTimeout() time.Duration {
	return time.Duration(c.Server.ReadHeaderTimeoutSeconds) * time.Second
}

// ShutdownTimeout returns how long graceful shutdown may take.
func (c Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.Server.ShutdownTimeoutSeconds) * time.Second
}
