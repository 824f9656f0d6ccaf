// Package config loads velto's configuration with Viper from a YAML file,
// VELTO_ environment variables and command-line flags.
//
// Defaults are registered with Viper so environment overrides work for every
// key even when no config file exists. Load validates the result before
// returning it.
package config

import (
	"fmt"
	"net"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/viper"

	"github.com/conneroisu/velto/internal/devmode"
	"github.com/conneroisu/velto/internal/errors"
	"github.com/conneroisu/velto/internal/logging"
	"github.com/conneroisu/velto/internal/web"
)

// EnvPrefix is prepended to environment variable overrides.
const EnvPrefix = "VELTO"

// FileName is the config file looked up in the working directory.
const FileName = ".velto"

// envKeyReplacer maps nested keys such as server.port to VELTO_SERVER_PORT.
var envKeyReplacer = strings.NewReplacer(".", "_")

// Bind configures v the way the CLI does: an explicit file when path is set,
// otherwise .velto.yml in the working directory, plus VELTO_ environment
// overrides.
func Bind(v *viper.Viper, path string) {
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.SetConfigType("yaml")
		v.SetConfigName(FileName)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(envKeyReplacer)
	v.AutomaticEnv()
}

type Config struct {
	Server      ServerConfig      `mapstructure:"server" yaml:"server" json:"server"`
	Static      StaticConfig      `mapstructure:"static" yaml:"static" json:"static"`
	Development DevelopmentConfig `mapstructure:"development" yaml:"development" json:"development"`
	Logging     LoggingConfig     `mapstructure:"logging" yaml:"logging" json:"logging"`
	Metrics     MetricsConfig     `mapstructure:"metrics" yaml:"metrics" json:"metrics"`
}

type ServerConfig struct {
	Host         string `mapstructure:"host" yaml:"host" json:"host"`
	Port         int    `mapstructure:"port" yaml:"port" json:"port"`
	MaxBodyBytes int64  `mapstructure:"max_body_bytes" yaml:"max_body_bytes" json:"max_body_bytes"`
	// UnknownMethod is "reject" or "get".
	UnknownMethod string `mapstructure:"unknown_method" yaml:"unknown_method" json:"unknown_method"`
}

type StaticConfig struct {
	Dirs []string `mapstructure:"dirs" yaml:"dirs" json:"dirs"`
}

type DevelopmentConfig struct {
	Enabled         bool     `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	WatchDirs       []string `mapstructure:"watch_dirs" yaml:"watch_dirs" json:"watch_dirs"`
	TemplatesDir    string   `mapstructure:"templates_dir" yaml:"templates_dir" json:"templates_dir"`
	ReloadHost      string   `mapstructure:"reload_host" yaml:"reload_host" json:"reload_host"`
	ReloadBasePort  int      `mapstructure:"reload_base_port" yaml:"reload_base_port" json:"reload_base_port"`
	ReloadPortRange int      `mapstructure:"reload_port_range" yaml:"reload_port_range" json:"reload_port_range"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level" json:"level"`
	Format string `mapstructure:"format" yaml:"format" json:"format"`
}

type MetricsConfig struct {
	// Addr enables the Prometheus endpoint when non-empty.
	Addr string `mapstructure:"addr" yaml:"addr" json:"addr"`
}

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.max_body_bytes", web.DefaultMaxBodyBytes)
	v.SetDefault("server.unknown_method", web.PolicyReject.String())
	v.SetDefault("static.dirs", []string{"static"})
	v.SetDefault("development.enabled", false)
	v.SetDefault("development.watch_dirs", []string{})
	v.SetDefault("development.templates_dir", "templates")
	v.SetDefault("development.reload_host", "127.0.0.1")
	v.SetDefault("development.reload_base_port", devmode.DefaultReloadPort)
	v.SetDefault("development.reload_port_range", devmode.DefaultPortRange)
	v.SetDefault("logging.level", logging.LevelInfo.String())
	v.SetDefault("logging.format", "text")
	v.SetDefault("metrics.addr", "")
}

// Load reads the configuration from the global Viper instance.
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom reads and validates the configuration held by v.
func LoadFrom(v *viper.Viper) (*Config, error) {
	SetDefaults(v)

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, errors.NewConfigError(errors.ErrCodeConfigInvalid, "decoding configuration").
			WithContext("cause", err.Error())
	}

	// Environment variables arrive as a single string.
	config.Static.Dirs = splitList(config.Static.Dirs)
	config.Development.WatchDirs = splitList(config.Development.WatchDirs)

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// Addr returns the HTTP listen address.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}

// UnknownMethodPolicy returns the parsed server.unknown_method.
func (c *Config) UnknownMethodPolicy() web.UnknownMethodPolicy {
	policy, _ := web.ParseUnknownMethodPolicy(c.Server.UnknownMethod)
	return policy
}

// LogLevel returns the parsed logging.level.
func (c *Config) LogLevel() logging.LogLevel {
	level, err := logging.ParseLevel(c.Logging.Level)
	if err != nil {
		return logging.LevelInfo
	}
	return level
}

// WatchSet returns the directories live reload watches: the static
// directories, the extra watch directories and the templates directory, in
// that order and without duplicates.
func (c *Config) WatchSet() []string {
	seen := make(map[string]bool)
	var out []string
	add := func(dirs ...string) {
		for _, dir := range dirs {
			clean := filepath.Clean(dir)
			if dir == "" || seen[clean] {
				continue
			}
			seen[clean] = true
			out = append(out, dir)
		}
	}
	add(c.Static.Dirs...)
	add(c.Development.WatchDirs...)
	add(c.Development.TemplatesDir)
	return out
}

func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// validateConfig validates configuration values for security and correctness
func validateConfig(config *Config) error {
	if err := validateServerConfig(&config.Server); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	for _, dir := range config.Static.Dirs {
		if err := validatePath(dir); err != nil {
			return fmt.Errorf("static config: invalid dir '%s': %w", dir, err)
		}
	}

	if err := validateDevelopmentConfig(&config.Development); err != nil {
		return fmt.Errorf("development config: %w", err)
	}

	if err := validateLoggingConfig(&config.Logging); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// validateServerConfig validates server configuration values
func validateServerConfig(config *ServerConfig) error {
	// Allow 0 for system-assigned ports in testing
	if config.Port < 0 || config.Port > 65535 {
		return invalid("port %d is not in valid range 0-65535", config.Port)
	}

	if err := validateHost(config.Host); err != nil {
		return err
	}

	if config.MaxBodyBytes < 0 {
		return invalid("max_body_bytes must not be negative")
	}

	if _, ok := web.ParseUnknownMethodPolicy(config.UnknownMethod); !ok {
		return invalid("unknown_method %q must be \"reject\" or \"get\"", config.UnknownMethod)
	}

	return nil
}

func validateDevelopmentConfig(config *DevelopmentConfig) error {
	for _, dir := range config.WatchDirs {
		if err := validatePath(dir); err != nil {
			return fmt.Errorf("invalid watch dir '%s': %w", dir, err)
		}
	}
	if err := validatePath(config.TemplatesDir); err != nil {
		return fmt.Errorf("invalid templates_dir '%s': %w", config.TemplatesDir, err)
	}
	if err := validateHost(config.ReloadHost); err != nil {
		return err
	}
	if config.ReloadBasePort < 1 || config.ReloadBasePort > 65535 {
		return invalid("reload_base_port %d is not in valid range 1-65535", config.ReloadBasePort)
	}
	if config.ReloadPortRange < 1 || config.ReloadPortRange > 1000 {
		return invalid("reload_port_range %d is not in valid range 1-1000", config.ReloadPortRange)
	}
	return nil
}

func validateLoggingConfig(config *LoggingConfig) error {
	if _, err := logging.ParseLevel(config.Level); err != nil {
		return invalid("%v", err)
	}
	switch config.Format {
	case "text", "json":
	default:
		return invalid("format %q must be \"text\" or \"json\"", config.Format)
	}
	return nil
}

// validateHost rejects shell metacharacters.
func validateHost(host string) error {
	dangerousChars := []string{";", "&", "|", "$", "`", "(", ")", "<", ">", "\"", "'", "\\", " "}
	for _, char := range dangerousChars {
		if strings.Contains(host, char) {
			return invalid("host contains dangerous character: %q", char)
		}
	}
	return nil
}

// validatePath validates a file path for security
func validatePath(path string) error {
	if path == "" {
		return invalid("empty path")
	}

	cleanPath := filepath.Clean(path)

	if strings.ContainsRune(cleanPath, 0) {
		return invalid("path contains NUL byte")
	}

	dangerousChars := []string{";", "&", "|", "$", "`", "(", ")", "<", ">", "\"", "'"}
	for _, char := range dangerousChars {
		if strings.Contains(cleanPath, char) {
			return invalid("path contains dangerous character: %s", char)
		}
	}

	return nil
}

func invalid(format string, args ...interface{}) error {
	return errors.NewConfigError(errors.ErrCodeConfigInvalid, fmt.Sprintf(format, args...))
}
