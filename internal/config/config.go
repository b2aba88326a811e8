package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/loykin/forgekeeper/internal/logger"
	"github.com/spf13/viper"
)

// Default prompts emitted by the Forge launch scripts that wait for a key press.
var DefaultPrompts = []string{"Presione una tecla para continuar", "Press any key to continue"}

// Config is the agent's full configuration.
type Config struct {
	APIHost  string        `toml:"api_host" mapstructure:"api_host"`
	BaseDir  string        `toml:"base_dir" mapstructure:"base_dir"`
	Server   ServerConfig  `toml:"server" mapstructure:"server"`
	NATS     NATSConfig    `toml:"nats" mapstructure:"nats"`
	MQTT     MQTTConfig    `toml:"mqtt" mapstructure:"mqtt"`
	Metrics  MetricsConfig `toml:"metrics" mapstructure:"metrics"`
	Log      logger.Config `toml:"log" mapstructure:"log"`
	Download HTTPConfig    `toml:"download" mapstructure:"download"`
	Report   HTTPConfig    `toml:"report" mapstructure:"report"`
	Process  ProcessConfig `toml:"process" mapstructure:"process"`
}

type ServerConfig struct {
	Listen   string `toml:"listen" mapstructure:"listen"`
	BasePath string `toml:"base_path" mapstructure:"base_path"`
}

// NATSConfig configures the inbound operation subjects and the optional console stream.
// An empty URL disables NATS entirely.
type NATSConfig struct {
	URL            string `toml:"url" mapstructure:"url"`
	SubjectPrefix  string `toml:"subject_prefix" mapstructure:"subject_prefix"`
	ConsoleSubject string `toml:"console_subject" mapstructure:"console_subject"`
}

type MQTTConfig struct {
	Broker   string `toml:"broker" mapstructure:"broker"`
	ClientID string `toml:"client_id" mapstructure:"client_id"`
	Topic    string `toml:"topic" mapstructure:"topic"`
	QoS      byte   `toml:"qos" mapstructure:"qos"`
}

type MetricsConfig struct {
	Enabled        bool          `toml:"enabled" mapstructure:"enabled"`
	Listen         string        `toml:"listen" mapstructure:"listen"`
	SampleInterval time.Duration `toml:"sample_interval" mapstructure:"sample_interval"`
}

// HTTPConfig is shared by the downloader and the status reporter.
type HTTPConfig struct {
	Timeout  time.Duration `toml:"timeout" mapstructure:"timeout"`
	RetryMax int           `toml:"retry_max" mapstructure:"retry_max"`
}

type ProcessConfig struct {
	JavaPath    string   `toml:"java_path" mapstructure:"java_path"`
	StopCommand string   `toml:"stop_command" mapstructure:"stop_command"`
	Prompts     []string `toml:"prompts" mapstructure:"prompts"`
	ConsoleLog  string   `toml:"console_log" mapstructure:"console_log"`
	Env         []string `toml:"env" mapstructure:"env"` // KEY=VALUE, ${NAME} expanded
}

var (
	ErrMissingAPIHost = errors.New("api_host is required")
	ErrMissingBaseDir = errors.New("base_dir is required")
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.listen", ":3000")
	v.SetDefault("server.base_path", "/api")
	v.SetDefault("nats.subject_prefix", "forgekeeper")
	v.SetDefault("mqtt.client_id", "forgekeeper")
	v.SetDefault("mqtt.topic", "forgekeeper/console")
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.sample_interval", "10s")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("download.timeout", "5m")
	v.SetDefault("download.retry_max", 4)
	v.SetDefault("report.timeout", "10s")
	v.SetDefault("report.retry_max", 2)
	v.SetDefault("process.java_path", "java")
	v.SetDefault("process.stop_command", "stop")
	v.SetDefault("process.prompts", DefaultPrompts)
}

func bindEnv(v *viper.Viper) error {
	pairs := map[string]string{
		"api_host":       "API_HOST",
		"base_dir":       "BASE_DIR",
		"port":           "PORT",
		"nats.url":       "NATS_URL",
		"mqtt.broker":    "MQTT_BROKER",
		"log.level":      "LOG_LEVEL",
		"metrics.listen": "METRICS_LISTEN",
	}
	for key, env := range pairs {
		if err := v.BindEnv(key, env); err != nil {
			return fmt.Errorf("bind %s: %w", env, err)
		}
	}
	return nil
}

// Load reads the optional TOML file at path and overlays environment variables.
// The result is normalized but not validated.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	if err := bindEnv(v); err != nil {
		return nil, err
	}
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if port := strings.TrimSpace(v.GetString("port")); port != "" {
		cfg.Server.Listen = ":" + port
	}
	cfg.APIHost = strings.TrimRight(strings.TrimSpace(cfg.APIHost), "/")
	base, err := ResolveBaseDir(cfg.BaseDir)
	if err != nil {
		return nil, err
	}
	cfg.BaseDir = base
	return &cfg, nil
}

// ResolveBaseDir anchors a relative base directory under the user's home
// directory. Absolute paths are only cleaned.
func ResolveBaseDir(dir string) (string, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" || filepath.IsAbs(dir) {
		if dir == "" {
			return "", nil
		}
		return filepath.Clean(dir), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve base_dir: %w", err)
	}
	return filepath.Join(home, dir), nil
}

// Validate checks the settings the agent cannot run without.
func (c *Config) Validate() error {
	if c.APIHost == "" {
		return ErrMissingAPIHost
	}
	if c.BaseDir == "" {
		return ErrMissingBaseDir
	}
	return nil
}
