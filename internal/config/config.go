package config

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"    validate:"required"`
	Database  DatabaseConfig  `mapstructure:"database"  validate:"required"`
	Auth      AuthConfig      `mapstructure:"auth"      validate:"required"`
	Scheduler SchedulerConfig `mapstructure:"scheduler" validate:"required"`
	LLM       LLMConfig       `mapstructure:"llm"       validate:"required"`
	Credits   CreditsConfig   `mapstructure:"credits"   validate:"required"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port"      validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
}

// DatabaseConfig contains all database-related configuration settings.
type DatabaseConfig struct {
	URL string `mapstructure:"url" validate:"required"`
}

// AuthConfig contains all authentication and authorization settings.
type AuthConfig struct {
	JWTSecret            string `mapstructure:"jwt_secret"             validate:"required,min=32"`
	TokenLifetimeMinutes int    `mapstructure:"token_lifetime_minutes" validate:"required,gt=0"`
}

// SchedulerConfig controls the background task scheduler.
type SchedulerConfig struct {
	// WorkerCount is the number of workers claiming tasks concurrently.
	WorkerCount int `mapstructure:"worker_count" validate:"required,gt=0"`

	// TickIntervalSeconds is how long an idle worker waits before polling
	// for a claimable task again.
	TickIntervalSeconds int `mapstructure:"tick_interval_seconds" validate:"required,gt=0"`

	// TaskTimeoutSeconds bounds how long a single task may occupy a
	// worker before its execution is abandoned and settled as failed.
	TaskTimeoutSeconds int `mapstructure:"task_timeout_seconds" validate:"required,gt=0"`
}

// LLMConfig contains all LLM integration related settings.
type LLMConfig struct {
	GeminiAPIKey string `mapstructure:"gemini_api_key" validate:"required_if=UseStub false"`
	ModelName    string `mapstructure:"model_name"     validate:"required"`

	// UseStub swaps the Gemini executors for deterministic stubs. Meant
	// for local runs and CI where no API key is available.
	UseStub bool `mapstructure:"use_stub"`
}

// CostFor returns the configured credit cost for the given task type name.
// The second return value is false for unknown task types.
func (c CreditsConfig) CostFor(taskType string) (int64, bool) {
	switch taskType {
	case "book":
		return c.BookCost, true
	case "chapter":
		return c.ChapterCost, true
	case "style_training":
		return c.StyleTrainingCost, true
	case "audiobook":
		return c.AudiobookCost, true
	case "cover_art":
		return c.CoverArtCost, true
	default:
		return 0, false
	}
}

// CreditsConfig fixes the credit cost of each task type at admission time.
type CreditsConfig struct {
	BookCost          int64 `mapstructure:"book_cost"           validate:"gte=0"`
	ChapterCost       int64 `mapstructure:"chapter_cost"        validate:"gte=0"`
	StyleTrainingCost int64 `mapstructure:"style_training_cost" validate:"gte=0"`
	AudiobookCost     int64 `mapstructure:"audiobook_cost"      validate:"gte=0"`
	CoverArtCost      int64 `mapstructure:"cover_art_cost"      validate:"gte=0"`

	// SignupBonus is credited to newly registered accounts.
	SignupBonus int64 `mapstructure:"signup_bonus" validate:"gte=0"`
}
