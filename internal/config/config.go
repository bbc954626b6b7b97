// Package config holds runtime configuration loaded from defaults, an
// optional .env file, and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	Server     ServerConfig
	Storage    StorageConfig
	ServiceNow ServiceNowConfig
	Log        LogConfig
}

type ServerConfig struct {
	Host string
	Port int
}

type StorageConfig struct {
	DataDir string
}

// ServiceNowConfig carries instance credentials. When incomplete, the server
// runs with a local change-number allocator instead of the remote API.
type ServiceNowConfig struct {
	Instance string
	Username string
	Password string
}

// Enabled reports whether the remote instance is fully configured.
func (c ServiceNowConfig) Enabled() bool {
	return c.Instance != "" && c.Username != "" && c.Password != ""
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 8350,
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "data"
	}
	return filepath.Join(home, ".local", "share", "changebot")
}

// Load reads configuration from defaults, a .env file in the working
// directory (if present), and CHANGEBOT_* / SERVICENOW_* environment
// variables, in increasing precedence.
func Load() (Config, error) {
	_ = godotenv.Load(".env")
	return loadWith(os.Getenv)
}

// loadWith applies env overrides through the given lookup function so tests
// can substitute their own environment.
func loadWith(getenv func(string) string) (Config, error) {
	cfg := defaults()

	if v := getenv("CHANGEBOT_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := getenv("CHANGEBOT_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid CHANGEBOT_PORT %q: %w", v, err)
		}
		cfg.Server.Port = port
	}
	if v := getenv("CHANGEBOT_DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := getenv("CHANGEBOT_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}

	cfg.ServiceNow.Instance = getenv("SERVICENOW_INSTANCE")
	cfg.ServiceNow.Username = getenv("SERVICENOW_USERNAME")
	cfg.ServiceNow.Password = getenv("SERVICENOW_PASSWORD")

	return cfg, nil
}
