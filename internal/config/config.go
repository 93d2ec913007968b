// Package config loads application settings from defaults, an optional
// config.yaml, .env files and the environment.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is the complete application configuration.
type Config struct {
	Log struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
	} `mapstructure:"log"`

	AI struct {
		Provider          string  `mapstructure:"provider"`
		Model             string  `mapstructure:"model"`
		APIKey            string  `mapstructure:"api_key"`
		AnthropicAPIKey   string  `mapstructure:"anthropic_api_key"`
		MaxAttempts       int     `mapstructure:"max_attempts"`
		RequestsPerMinute int     `mapstructure:"requests_per_minute"`
		Temperature       float32 `mapstructure:"temperature"`
		MaxOutputTokens   int32   `mapstructure:"max_output_tokens"`
		Transport         string  `mapstructure:"transport"`
		DateFormatHint    string  `mapstructure:"date_format_hint"`
	} `mapstructure:"ai"`

	Repair struct {
		MaxAttempts int `mapstructure:"max_attempts"`
	} `mapstructure:"repair"`

	Dedup struct {
		FuzzyThreshold float64 `mapstructure:"fuzzy_threshold"`
	} `mapstructure:"dedup"`

	Intake struct {
		MaxFileSize   int64    `mapstructure:"max_file_size"`
		AcceptedTypes []string `mapstructure:"accepted_types"`
	} `mapstructure:"intake"`

	Storage struct {
		Backend       string `mapstructure:"backend"`
		AccountMarker string `mapstructure:"account_marker"`
		Sheets        struct {
			SpreadsheetID   string `mapstructure:"spreadsheet_id"`
			CredentialsFile string `mapstructure:"credentials_file"`
			APIKey          string `mapstructure:"api_key"`
		} `mapstructure:"sheets"`
		Workbook struct {
			Path string `mapstructure:"path"`
		} `mapstructure:"workbook"`
		CSV struct {
			Directory string `mapstructure:"directory"`
		} `mapstructure:"csv"`
		BigQuery struct {
			ProjectID string `mapstructure:"project_id"`
			Dataset   string `mapstructure:"dataset"`
		} `mapstructure:"bigquery"`
		Notion struct {
			Token      string `mapstructure:"token"`
			DatabaseID string `mapstructure:"database_id"`
		} `mapstructure:"notion"`
	} `mapstructure:"storage"`

	Archive struct {
		Bucket string `mapstructure:"bucket"`
	} `mapstructure:"archive"`

	Server struct {
		Port            int      `mapstructure:"port"`
		QueueBufferSize int      `mapstructure:"queue_buffer_size"`
		AllowedOrigins  []string `mapstructure:"allowed_origins"`
	} `mapstructure:"server"`
}

// Storage backends.
const (
	BackendSheets   = "sheets"
	BackendWorkbook = "workbook"
	BackendCSV      = "csv"
	BackendBigQuery = "bigquery"
	BackendNotion   = "notion"
	BackendMemory   = "memory"
)

// AI providers.
const (
	ProviderGemini    = "gemini"
	ProviderAnthropic = "anthropic"
)

// Load reads configuration. configFile may be empty, in which case
// config.yaml is looked up in the working directory and in
// $HOME/.statement-consolidator. A missing config file is not an error.
func Load(configFile string) (*Config, error) {
	// .env is optional; real environment variables win over it.
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.statement-consolidator")
	}

	v.SetEnvPrefix("STMT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || configFile != "" {
			return nil, fmt.Errorf("Load: read config: %w", err)
		}
	}

	bindings := map[string]string{
		"ai.api_key":                      "GEMINI_API_KEY",
		"ai.anthropic_api_key":            "ANTHROPIC_API_KEY",
		"storage.notion.token":            "NOTION_TOKEN",
		"storage.sheets.credentials_file": "GOOGLE_APPLICATION_CREDENTIALS",
	}
	for key, env := range bindings {
		if err := v.BindEnv(key, "STMT_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")), env); err != nil {
			return nil, fmt.Errorf("Load: bind %s: %w", env, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("Load: unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("Load: invalid configuration: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	v.SetDefault("ai.provider", ProviderGemini)
	v.SetDefault("ai.model", "")
	v.SetDefault("ai.api_key", "")
	v.SetDefault("ai.anthropic_api_key", "")
	v.SetDefault("ai.max_attempts", 3)
	v.SetDefault("ai.requests_per_minute", 0)
	v.SetDefault("ai.temperature", 0.1)
	v.SetDefault("ai.max_output_tokens", 8192)
	v.SetDefault("ai.transport", "brace")
	v.SetDefault("ai.date_format_hint", "")

	v.SetDefault("repair.max_attempts", 20)
	v.SetDefault("dedup.fuzzy_threshold", 0.85)

	v.SetDefault("intake.max_file_size", 10*1024*1024)
	v.SetDefault("intake.accepted_types", []string{"application/pdf", "image/png", "image/jpeg", "image/jpg", "image/webp"})

	v.SetDefault("storage.backend", BackendWorkbook)
	v.SetDefault("storage.account_marker", "@")
	v.SetDefault("storage.sheets.spreadsheet_id", "")
	v.SetDefault("storage.sheets.credentials_file", "")
	v.SetDefault("storage.sheets.api_key", "")
	v.SetDefault("storage.workbook.path", "ledger.xlsx")
	v.SetDefault("storage.csv.directory", "ledger")
	v.SetDefault("storage.bigquery.project_id", "")
	v.SetDefault("storage.bigquery.dataset", "ledger")
	v.SetDefault("storage.notion.token", "")
	v.SetDefault("storage.notion.database_id", "")

	v.SetDefault("archive.bucket", "")

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.queue_buffer_size", 100)
	v.SetDefault("server.allowed_origins", []string{"*"})
}

// Validate checks value ranges and enumerations.
func (c *Config) Validate() error {
	if c.Log.Format != "console" && c.Log.Format != "json" {
		return fmt.Errorf("invalid log format: %s (must be 'console' or 'json')", c.Log.Format)
	}
	if c.AI.Provider != ProviderGemini && c.AI.Provider != ProviderAnthropic {
		return fmt.Errorf("invalid ai.provider: %s", c.AI.Provider)
	}
	if c.AI.MaxAttempts < 1 {
		return fmt.Errorf("ai.max_attempts must be at least 1, got: %d", c.AI.MaxAttempts)
	}
	if c.AI.RequestsPerMinute < 0 {
		return fmt.Errorf("ai.requests_per_minute must not be negative, got: %d", c.AI.RequestsPerMinute)
	}
	if t := c.AI.Transport; t != "brace" && t != "line" {
		return fmt.Errorf("invalid ai.transport: %s (must be 'brace' or 'line')", t)
	}
	if c.Repair.MaxAttempts < 1 {
		return fmt.Errorf("repair.max_attempts must be at least 1, got: %d", c.Repair.MaxAttempts)
	}
	if c.Dedup.FuzzyThreshold <= 0 || c.Dedup.FuzzyThreshold > 1 {
		return fmt.Errorf("dedup.fuzzy_threshold must be in (0, 1], got: %f", c.Dedup.FuzzyThreshold)
	}
	if c.Intake.MaxFileSize <= 0 {
		return fmt.Errorf("intake.max_file_size must be positive, got: %d", c.Intake.MaxFileSize)
	}
	if len([]rune(c.Storage.AccountMarker)) != 1 {
		return fmt.Errorf("storage.account_marker must be a single character, got: %q", c.Storage.AccountMarker)
	}
	switch c.Storage.Backend {
	case BackendSheets:
		if c.Storage.Sheets.SpreadsheetID == "" {
			return fmt.Errorf("storage.sheets.spreadsheet_id is required for the sheets backend")
		}
	case BackendBigQuery:
		if c.Storage.BigQuery.ProjectID == "" {
			return fmt.Errorf("storage.bigquery.project_id is required for the bigquery backend")
		}
	case BackendNotion:
		if c.Storage.Notion.Token == "" || c.Storage.Notion.DatabaseID == "" {
			return fmt.Errorf("storage.notion.token and storage.notion.database_id are required for the notion backend")
		}
	case BackendWorkbook, BackendCSV, BackendMemory:
	default:
		return fmt.Errorf("invalid storage.backend: %s", c.Storage.Backend)
	}
	return nil
}
