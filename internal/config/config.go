package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds application configuration
type Config struct {
	Port     string
	Env      string
	LogLevel string

	// CSV table paths
	UsersCSVPath    string
	TomorrowCSVPath string
	TwoHoursCSVPath string
	ReviewsCSVPath  string

	// Telegram transport
	TelegramBotToken    string
	TelegramAPIBaseURL  string
	TelegramWebhookMode bool
	TelegramPollTimeout int
	TelegramManagerID   string

	// Green API (WhatsApp) transport
	GreenAPIBaseURL    string
	GreenAPIInstanceID string
	GreenAPIToken      string
	GreenAPIManagerID  string

	// Scan and dialog pacing
	ScanInterval      time.Duration
	ScanConcurrency   int
	FollowupDelay     time.Duration
	ScoreThanksDelay  time.Duration
	DetailThanksDelay time.Duration
	ClinicTimezone    string

	// Online rebooking link
	RebookingBaseURL  string
	RebookingClientID string
	RebookingPhone    string
	ReviewSiteURL     string

	// Redis dialog state storage (optional; memory store when unset)
	RedisAddr     string
	RedisPassword string
	RedisTLS      bool
	DialogTTL     time.Duration

	// SendGrid escalations mirror (optional)
	SendGridAPIKey    string
	SendGridFromEmail string
	SendGridFromName  string
	SendGridToEmail   string
	SendGridToName    string
}

// Load reads configuration from environment variables, then overlays the
// optional YAML file named by CONFIG_FILE.
func Load() (*Config, error) {
	cfg := &Config{
		Port:     getEnv("PORT", "8080"),
		Env:      getEnv("ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		UsersCSVPath:    getEnv("USERS_CSV_PATH", "data/db.csv"),
		TomorrowCSVPath: getEnv("TOMORROW_CSV_PATH", "data/tomorrow.csv"),
		TwoHoursCSVPath: getEnv("TWO_HOURS_CSV_PATH", "data/2hours.csv"),
		ReviewsCSVPath:  getEnv("REVIEWS_CSV_PATH", "data/Reviews.csv"),

		TelegramBotToken:    getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramAPIBaseURL:  getEnv("TELEGRAM_API_BASE_URL", "https://api.telegram.org"),
		TelegramWebhookMode: getEnvAsBool("TELEGRAM_WEBHOOK_MODE", false),
		TelegramPollTimeout: getEnvAsInt("TELEGRAM_POLL_TIMEOUT", 30),
		TelegramManagerID:   getEnv("TELEGRAM_MANAGER_ID", ""),

		GreenAPIBaseURL:    getEnv("GREEN_API_BASE_URL", "https://api.green-api.com"),
		GreenAPIInstanceID: getEnv("GREEN_API_INSTANCE_ID", ""),
		GreenAPIToken:      getEnv("GREEN_API_TOKEN", ""),
		GreenAPIManagerID:  getEnv("GREEN_API_MANAGER_ID", ""),

		ScanInterval:      getEnvAsDuration("SCAN_INTERVAL", 5*time.Minute),
		ScanConcurrency:   getEnvAsInt("SCAN_CONCURRENCY", 8),
		FollowupDelay:     getEnvAsDuration("FOLLOWUP_DELAY", 15*time.Minute),
		ScoreThanksDelay:  getEnvAsDuration("SCORE_THANKS_DELAY", 2*time.Second),
		DetailThanksDelay: getEnvAsDuration("DETAIL_THANKS_DELAY", 1500*time.Millisecond),
		ClinicTimezone:    getEnv("CLINIC_TZ", "Europe/Moscow"),

		RebookingBaseURL:  getEnv("REBOOKING_BASE_URL", "https://medapi.1cbit.ru/online_record"),
		RebookingClientID: getEnv("REBOOKING_CLIENT_ID", ""),
		RebookingPhone:    getEnv("REBOOKING_PHONE", ""),
		ReviewSiteURL:     getEnv("REVIEW_SITE_URL", "https://yandex.ru"),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),
		DialogTTL:     getEnvAsDuration("DIALOG_TTL", 24*time.Hour),

		SendGridAPIKey:    getEnv("SENDGRID_API_KEY", ""),
		SendGridFromEmail: getEnv("SENDGRID_FROM_EMAIL", ""),
		SendGridFromName:  getEnv("SENDGRID_FROM_NAME", "Clinic Reminder Bot"),
		SendGridToEmail:   getEnv("SENDGRID_TO_EMAIL", ""),
		SendGridToName:    getEnv("SENDGRID_TO_NAME", ""),
	}

	if path := getEnv("CONFIG_FILE", ""); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
	}

	return cfg, nil
}

// fileConfig mirrors the YAML config file; only set fields override env values.
type fileConfig struct {
	Port     *string `yaml:"port"`
	LogLevel *string `yaml:"log_level"`

	Tables struct {
		Users    *string `yaml:"db"`
		Tomorrow *string `yaml:"tomorrow"`
		TwoHours *string `yaml:"2hours"`
		Reviews  *string `yaml:"reviews"`
	} `yaml:"tables"`

	Telegram struct {
		Token     *string `yaml:"token"`
		ManagerID *string `yaml:"manager_id"`
	} `yaml:"telegram"`

	GreenAPI struct {
		InstanceID *string `yaml:"instance_id"`
		Token      *string `yaml:"token"`
		ManagerID  *string `yaml:"manager_id"`
	} `yaml:"green_api"`

	ScanInterval  *string `yaml:"scan_interval"`
	FollowupDelay *string `yaml:"followup_delay"`
	Timezone      *string `yaml:"timezone"`
}

func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	setString(&c.Port, fc.Port)
	setString(&c.LogLevel, fc.LogLevel)
	setString(&c.UsersCSVPath, fc.Tables.Users)
	setString(&c.TomorrowCSVPath, fc.Tables.Tomorrow)
	setString(&c.TwoHoursCSVPath, fc.Tables.TwoHours)
	setString(&c.ReviewsCSVPath, fc.Tables.Reviews)
	setString(&c.TelegramBotToken, fc.Telegram.Token)
	setString(&c.TelegramManagerID, fc.Telegram.ManagerID)
	setString(&c.GreenAPIInstanceID, fc.GreenAPI.InstanceID)
	setString(&c.GreenAPIToken, fc.GreenAPI.Token)
	setString(&c.GreenAPIManagerID, fc.GreenAPI.ManagerID)
	setString(&c.ClinicTimezone, fc.Timezone)

	if err := setDuration(&c.ScanInterval, fc.ScanInterval); err != nil {
		return fmt.Errorf("scan_interval: %w", err)
	}
	if err := setDuration(&c.FollowupDelay, fc.FollowupDelay); err != nil {
		return fmt.Errorf("followup_delay: %w", err)
	}
	return nil
}

// TelegramEnabled reports whether the Telegram transport is configured.
func (c *Config) TelegramEnabled() bool {
	return c.TelegramBotToken != ""
}

// GreenAPIEnabled reports whether the Green API transport is configured.
func (c *Config) GreenAPIEnabled() bool {
	return c.GreenAPIInstanceID != "" && c.GreenAPIToken != ""
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}

func setDuration(dst *time.Duration, src *string) error {
	if src == nil {
		return nil
	}
	d, err := time.ParseDuration(*src)
	if err != nil {
		return err
	}
	*dst = d
	return nil
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
