package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Load reads configuration from environment variables and an optional
// config file. Environment variables use the STORYFORGE_ prefix with
// underscores for nesting (e.g. STORYFORGE_SERVER_PORT) and take
// precedence over values from the config file.
// Returns a populated Config struct or an error if loading/validation fails.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("STORYFORGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Keys without defaults must be bound explicitly or AutomaticEnv
	// will not surface them during Unmarshal.
	for _, key := range []string{"database.url", "auth.jwt_secret", "llm.gemini_api_key"} {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("failed to bind env for %s: %w", key, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine; everything can come from the
		// environment. Any other read error is fatal.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	validate := validator.New()
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults registers default values for everything that can reasonably
// default. Secrets (database URL, JWT secret, API key) have no defaults
// and must be provided.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")

	v.SetDefault("auth.token_lifetime_minutes", 60)

	v.SetDefault("scheduler.worker_count", 1)
	v.SetDefault("scheduler.tick_interval_seconds", 5)
	v.SetDefault("scheduler.task_timeout_seconds", 600)

	v.SetDefault("llm.model_name", "gemini-2.0-flash")
	v.SetDefault("llm.use_stub", false)

	v.SetDefault("credits.book_cost", 100)
	v.SetDefault("credits.chapter_cost", 10)
	v.SetDefault("credits.style_training_cost", 50)
	v.SetDefault("credits.audiobook_cost", 80)
	v.SetDefault("credits.cover_art_cost", 20)
	v.SetDefault("credits.signup_bonus", 50)
}
