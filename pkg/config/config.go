// Package config loads cascade's gateway and worker configuration
// with viper's layered env-var > file > default precedence.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// GatewayConfig holds the coordinator process's static configuration.
type GatewayConfig struct {
	ListenAddr       string        `mapstructure:"listen_addr"`
	DataDir          string        `mapstructure:"data_dir"`
	LogLevel         string        `mapstructure:"log_level"`
	ReclaimThreshold time.Duration `mapstructure:"reclaim_threshold"`
	ReclaimInterval  time.Duration `mapstructure:"reclaim_interval"`
	OperatorToken    string        `mapstructure:"operator_token"`
}

// WorkerConfig holds the worker agent process's static configuration.
type WorkerConfig struct {
	GatewayURL        string        `mapstructure:"gateway_url"`
	AccessKey         string        `mapstructure:"access_key"`
	SecretKey         string        `mapstructure:"secret_key"`
	NodeDisplayName   string        `mapstructure:"node_display_name"`
	PollInterval      time.Duration `mapstructure:"poll_interval"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	MaxCapacity       int           `mapstructure:"max_capacity"`
	LogLevel          string        `mapstructure:"log_level"`
}

// LoadGateway reads gateway configuration from config.yml and
// CASCADE_GATEWAY_* environment variables. Priority: env > file > default.
func LoadGateway(path string) (*GatewayConfig, error) {
	v := newViper(path, "GATEWAY")

	v.SetDefault("listen_addr", ":8080")
	v.SetDefault("data_dir", "./data")
	v.SetDefault("log_level", "info")
	v.SetDefault("reclaim_threshold", "30m")
	v.SetDefault("reclaim_interval", "1m")
	v.SetDefault("operator_token", "")

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg GatewayConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode gateway config: %w", err)
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("unable to create data_dir at %s: %w", cfg.DataDir, err)
	}
	if cfg.OperatorToken == "" {
		return nil, fmt.Errorf("configuration 'operator_token' is required")
	}

	return &cfg, nil
}

// LoadWorker reads worker configuration from config.yml and
// CASCADE_WORKER_* environment variables.
func LoadWorker(path string) (*WorkerConfig, error) {
	v := newViper(path, "WORKER")

	v.SetDefault("poll_interval", "30s")
	v.SetDefault("heartbeat_interval", "60s")
	v.SetDefault("max_capacity", 1)
	v.SetDefault("log_level", "info")
	v.SetDefault("gateway_url", "")
	v.SetDefault("access_key", "")
	v.SetDefault("secret_key", "")
	v.SetDefault("node_display_name", "")

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg WorkerConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode worker config: %w", err)
	}

	if cfg.GatewayURL == "" {
		return nil, fmt.Errorf("configuration 'gateway_url' is required")
	}
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("configuration 'access_key' and 'secret_key' are required")
	}
	if cfg.NodeDisplayName == "" {
		hostname, err := os.Hostname()
		if err != nil {
			return nil, fmt.Errorf("node_display_name not set and unable to retrieve hostname: %w", err)
		}
		cfg.NodeDisplayName = hostname
	}
	if cfg.MaxCapacity < 1 {
		cfg.MaxCapacity = 1
	}

	return &cfg, nil
}

func newViper(path, envPrefix string) *viper.Viper {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(path)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetEnvPrefix("CASCADE_" + envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}
	return nil
}
