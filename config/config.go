package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type WebSocketConfig struct {
	HeartbeatInterval   time.Duration
	IdleTimeout         time.Duration
	MaxOutstandingCalls int
}

type AppConfig struct {
	// Core configuration (always required)
	DatabaseURL    string
	DatabaseSchema string
	NATSURL        string

	// Optional with defaults
	Port               string
	CORSAllowedOrigins string
	Environment        string

	AuthTimeout    time.Duration
	CommandTimeout time.Duration

	WebSocket WebSocketConfig
}

func LoadConfig() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		fmt.Println("⚠️ Could not load .env file, continuing with system env vars")
	}

	databaseURL, err := getEnvRequired("DB_URL")
	if err != nil {
		return nil, err
	}

	databaseSchema, err := getEnvRequired("DB_SCHEMA")
	if err != nil {
		return nil, err
	}

	natsURL, err := getEnvRequired("NATS_URL")
	if err != nil {
		return nil, err
	}

	authTimeout, err := getEnvDuration("AUTH_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, err
	}

	commandTimeout, err := getEnvDuration("COMMAND_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, err
	}

	heartbeatInterval, err := getEnvDuration("WS_HEARTBEAT_INTERVAL", 30*time.Second)
	if err != nil {
		return nil, err
	}

	idleTimeout, err := getEnvDuration("WS_IDLE_TIMEOUT", 90*time.Second)
	if err != nil {
		return nil, err
	}

	maxOutstanding, err := getEnvInt("MAX_OUTSTANDING_CALLS", 64)
	if err != nil {
		return nil, err
	}

	config := &AppConfig{
		DatabaseURL:        databaseURL,
		DatabaseSchema:     databaseSchema,
		NATSURL:            natsURL,
		Port:               getEnvWithDefault("PORT", "8080"),
		CORSAllowedOrigins: getEnvWithDefault("CORS_ALLOWED_ORIGINS", "*"),
		Environment:        getEnvWithDefault("ENVIRONMENT", "dev"),
		AuthTimeout:        authTimeout,
		CommandTimeout:     commandTimeout,
		WebSocket: WebSocketConfig{
			HeartbeatInterval:   heartbeatInterval,
			IdleTimeout:         idleTimeout,
			MaxOutstandingCalls: maxOutstanding,
		},
	}

	if config.WebSocket.IdleTimeout <= config.WebSocket.HeartbeatInterval {
		return nil, fmt.Errorf("WS_IDLE_TIMEOUT must be greater than WS_HEARTBEAT_INTERVAL")
	}

	return config, nil
}

func getEnvRequired(key string) (string, error) {
	value := os.Getenv(key)
	if value == "" {
		return "", fmt.Errorf("%s is not set", key)
	}
	return value, nil
}

func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s is not a valid duration: %w", key, err)
	}
	return parsed, nil
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s is not a valid integer: %w", key, err)
	}
	return parsed, nil
}
