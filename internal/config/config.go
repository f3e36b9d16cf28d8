package config

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	LogLevel        string
	LogFormat       string
	HTTPAddr        string
	ShutdownTimeout time.Duration

	// Audio output.
	AudioBackend        string
	AudioStartSuspended bool

	// Soundscape defaults.
	SoundEnabled bool
	SoundVolume  float64
	SettleDelay  time.Duration
	FadeOut      time.Duration
	RecipesFile  string
	RandomSeed   uint64

	// Weather polling. Polling is off when the API key or city is empty.
	OpenWeatherAPIKey string
	WeatherCity       string
	PollInterval      time.Duration
}

// PollingEnabled reports whether the provider poller should run.
func (c *Config) PollingEnabled() bool {
	return c.OpenWeatherAPIKey != "" && c.WeatherCity != ""
}

// Load reads configuration from the environment (and a .env file when
// present), applying defaults where unset.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file loaded", "error", err)
	}

	cfg := &Config{
		LogLevel:          envOrDefault("LOG_LEVEL", "info"),
		LogFormat:         envOrDefault("LOG_FORMAT", "json"),
		HTTPAddr:          envOrDefault("HTTP_ADDR", ":8080"),
		AudioBackend:      envOrDefault("AUDIO_BACKEND", "oto"),
		RecipesFile:       os.Getenv("RECIPES_FILE"),
		OpenWeatherAPIKey: os.Getenv("OPENWEATHER_API_KEY"),
		WeatherCity:       os.Getenv("WEATHER_CITY"),
	}

	var err error
	if cfg.ShutdownTimeout, err = parseDuration("SHUTDOWN_TIMEOUT", "10s"); err != nil {
		return nil, err
	}
	if cfg.SettleDelay, err = parseDuration("SETTLE_DELAY", "300ms"); err != nil {
		return nil, err
	}
	if cfg.FadeOut, err = parseDuration("FADE_OUT", "500ms"); err != nil {
		return nil, err
	}
	if cfg.PollInterval, err = parseDuration("POLL_INTERVAL", "10m"); err != nil {
		return nil, err
	}
	if cfg.AudioStartSuspended, err = parseBool("AUDIO_START_SUSPENDED", false); err != nil {
		return nil, err
	}
	if cfg.SoundEnabled, err = parseBool("SOUND_ENABLED", true); err != nil {
		return nil, err
	}

	cfg.SoundVolume, err = strconv.ParseFloat(envOrDefault("SOUND_VOLUME", "0.5"), 64)
	if err != nil || math.IsNaN(cfg.SoundVolume) || cfg.SoundVolume < 0 || cfg.SoundVolume > 1 {
		return nil, errors.New("invalid SOUND_VOLUME: must be between 0 and 1")
	}

	if s := os.Getenv("RANDOM_SEED"); s != "" {
		if cfg.RandomSeed, err = strconv.ParseUint(s, 10, 64); err != nil {
			return nil, fmt.Errorf("invalid RANDOM_SEED: %w", err)
		}
	} else {
		cfg.RandomSeed = uint64(time.Now().UnixNano())
	}

	switch cfg.AudioBackend {
	case "oto", "null":
	default:
		return nil, fmt.Errorf("invalid AUDIO_BACKEND %q: want oto or null", cfg.AudioBackend)
	}
	if cfg.PollInterval < time.Minute {
		return nil, errors.New("invalid POLL_INTERVAL: must be at least 1m")
	}

	return cfg, nil
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(envOrDefault(key, def))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parseBool(key string, def bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}
