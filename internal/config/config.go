package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds runtime configuration values for the realtime service.
type Config struct {
	AppName      string
	AppEnv       string
	AppPort      string
	DatabaseURL  string
	RedisURL     string
	NATSURL      string
	JWTSecret    string
	ChannelBase  string
	SSEKeepAlive time.Duration
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("TRIPOTTER")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "TripOtter Realtime")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("channel.base", "tripotter")
	v.SetDefault("sse.keepalive", "30s")

	keepAliveString := v.GetString("sse.keepalive")
	if keepAliveString == "" {
		keepAliveString = "30s"
	}

	keepAlive, err := time.ParseDuration(keepAliveString)
	if err != nil {
		return Config{}, fmt.Errorf("invalid sse keepalive: %w", err)
	}

	cfg := Config{
		AppName:      v.GetString("app.name"),
		AppEnv:       v.GetString("app.env"),
		AppPort:      v.GetString("app.port"),
		DatabaseURL:  v.GetString("database.url"),
		RedisURL:     v.GetString("redis.url"),
		NATSURL:      v.GetString("nats.url"),
		JWTSecret:    v.GetString("jwt.secret"),
		ChannelBase:  v.GetString("channel.base"),
		SSEKeepAlive: keepAlive,
	}

	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("jwt secret must be provided")
	}

	return cfg, nil
}
