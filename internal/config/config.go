// Package config loads agent configuration from environment variables.
package config

import (
	"fmt"
	"time"

	"heartlink-client/pkg/constants"
	"heartlink-client/pkg/env"
)

// Config holds all configuration for the agent
type Config struct {
	Agent     AgentConfig
	Backend   BackendConfig
	Signaling SignalingConfig
	Chat      ChatConfig
	Log       LogConfig
}

// AgentConfig identifies this client instance
type AgentConfig struct {
	UserID      string
	Port        int
	Environment string // development, staging, production
	ServiceName string
}

// BackendConfig holds platform REST API configuration
type BackendConfig struct {
	BaseURL         string
	AuthToken       string
	Timeout         time.Duration
	RetryMaxElapsed time.Duration
}

// SignalingConfig holds call-signaling socket configuration
type SignalingConfig struct {
	URL            string
	ReconnectDelay time.Duration
}

// ChatConfig holds vendor chat connection configuration
type ChatConfig struct {
	GatewayURL           string
	MaxReconnectAttempts int
	ReconnectDelay       time.Duration
	PollInterval         time.Duration
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level    string // debug, info, warn, error
	Format   string // json, text
	Output   string // stdout, file
	FilePath string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Agent: AgentConfig{
			UserID:      env.GetString("HEARTLINK_USER_ID", ""),
			Port:        env.GetInt("PORT", 8090),
			Environment: env.GetString("ENV", "development"),
			ServiceName: env.GetString("SERVICE_NAME", "heartlink-agent"),
		},
		Backend: BackendConfig{
			BaseURL:         env.GetString("BACKEND_BASE_URL", "http://localhost:8080"),
			AuthToken:       env.GetStringFromFile("BACKEND_AUTH_TOKEN", ""),
			Timeout:         env.GetDuration("BACKEND_TIMEOUT", constants.DefaultTimeout),
			RetryMaxElapsed: env.GetDuration("BACKEND_RETRY_MAX_ELAPSED", 20*time.Second),
		},
		Signaling: SignalingConfig{
			URL:            env.GetString("SIGNALING_URL", "ws://localhost:8080/socket"),
			ReconnectDelay: env.GetDuration("SIGNALING_RECONNECT_DELAY", constants.SignalingReconnectDelay),
		},
		Chat: ChatConfig{
			GatewayURL:           env.GetString("CHAT_GATEWAY_URL", ""),
			MaxReconnectAttempts: env.GetInt("CHAT_MAX_RECONNECT_ATTEMPTS", constants.DefaultMaxReconnectAttempts),
			ReconnectDelay:       env.GetDuration("CHAT_RECONNECT_DELAY", constants.ChatReconnectDelay),
			PollInterval:         env.GetDuration("CHAT_POLL_INTERVAL", constants.ReconcilePollInterval),
		},
		Log: LogConfig{
			Level:    env.GetString("LOG_LEVEL", "info"),
			Format:   env.GetString("LOG_FORMAT", "json"),
			Output:   env.GetString("LOG_OUTPUT", "stdout"),
			FilePath: env.GetString("LOG_FILE_PATH", ""),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Agent.UserID == "" {
		return fmt.Errorf("HEARTLINK_USER_ID must be set")
	}
	if c.Backend.BaseURL == "" {
		return fmt.Errorf("BACKEND_BASE_URL must be set")
	}
	if c.Signaling.URL == "" {
		return fmt.Errorf("SIGNALING_URL must be set")
	}
	if c.Chat.MaxReconnectAttempts < 0 {
		return fmt.Errorf("CHAT_MAX_RECONNECT_ATTEMPTS must not be negative")
	}
	return nil
}
