// Package conf loads configuration from an optional yaml file plus
// environment variables.
package conf

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Driver    DriverConfig    `mapstructure:"driver"`
	OpenAI    OpenAIConfig    `mapstructure:"openai"`
	Engine    EngineConfig    `mapstructure:"engine"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

type DriverConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	WSURL   string        `mapstructure:"ws_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type OpenAIConfig struct {
	APIKey  string        `mapstructure:"api_key"`
	BaseURL string        `mapstructure:"base_url"`
	Model   string        `mapstructure:"model"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type EngineConfig struct {
	Debounce            time.Duration `mapstructure:"debounce"`
	HistoryLimit        int           `mapstructure:"history_limit"`
	StarterHistoryLimit int           `mapstructure:"starter_history_limit"`
	ProfileHistoryLimit int           `mapstructure:"profile_history_limit"`
	SendPause           time.Duration `mapstructure:"send_pause"`
	FetchTimeout        time.Duration `mapstructure:"fetch_timeout"`
	StopGrace           time.Duration `mapstructure:"stop_grace"`
	EphemeralMarkers    []string      `mapstructure:"ephemeral_markers"`
}

type RateLimitConfig struct {
	Tier  string                `mapstructure:"tier"`
	Tiers map[string]TierConfig `mapstructure:"tiers"`
}

type TierConfig struct {
	Window      time.Duration `mapstructure:"window"`
	MaxRequests int           `mapstructure:"max_requests"`
	Cooldown    time.Duration `mapstructure:"cooldown"`
}

// LoadConfig reads the yaml file at path (skipped when it does not exist)
// and overlays environment variables.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("server.addr", ":8000")
	v.SetDefault("database.path", "data/bridge.db")
	v.SetDefault("driver.base_url", "http://localhost:8900")
	v.SetDefault("driver.ws_url", "ws://localhost:8900/changes")
	v.SetDefault("driver.timeout", 30*time.Second)
	v.SetDefault("openai.model", "gpt-4o-mini")
	v.SetDefault("openai.timeout", 30*time.Second)
	v.SetDefault("engine.debounce", 500*time.Millisecond)
	v.SetDefault("engine.history_limit", 15)
	v.SetDefault("engine.starter_history_limit", 50)
	v.SetDefault("engine.profile_history_limit", 200)
	v.SetDefault("engine.send_pause", 500*time.Millisecond)
	v.SetDefault("engine.fetch_timeout", 30*time.Second)
	v.SetDefault("engine.stop_grace", 10*time.Second)
	v.SetDefault("engine.ephemeral_markers", []string{"typing...", "active now"})
	v.SetDefault("rate_limit.tier", "free")

	v.AutomaticEnv()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if apiKey := v.GetString("OPENAI_API_KEY"); apiKey != "" {
		config.OpenAI.APIKey = apiKey
	}
	if baseURL := v.GetString("OPENAI_BASE_URL"); baseURL != "" {
		config.OpenAI.BaseURL = baseURL
	}
	if tier := v.GetString("RATE_LIMIT_TIER"); tier != "" {
		config.RateLimit.Tier = tier
	}
	if addr := v.GetString("SERVER_ADDR"); addr != "" {
		config.Server.Addr = addr
	}

	return &config, nil
}
