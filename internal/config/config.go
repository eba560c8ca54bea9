package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix             = "FIELDOPS"
	defaultHTTPAddress    = "0.0.0.0:8080"
	defaultDatabasePath   = "fieldops.db"
	defaultLogLevel       = "info"
	defaultTokenTTL       = 8 * time.Hour
	defaultSyncSchedule   = "0 8,14,20 * * *"
	defaultSignupRange    = "Signups!A1:G"
	defaultFallbackRange  = "Sheet1!A1:G"
	defaultRetryBaseDelay = time.Second
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress      string
	DatabasePath     string
	LogLevel         string
	SigningSecret    string
	TokenTTL         time.Duration
	SpreadsheetID    string
	SheetRanges      []string
	SyncSchedule     string
	NotifyBackground bool
	RetryBaseDelay   time.Duration
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("auth.token_ttl_minutes", int(defaultTokenTTL.Minutes()))
	configViper.SetDefault("sheets.ranges", []string{defaultSignupRange, defaultFallbackRange})
	configViper.SetDefault("sheets.retry_base_delay_seconds", int(defaultRetryBaseDelay.Seconds()))
	configViper.SetDefault("sync.schedule", defaultSyncSchedule)
	configViper.SetDefault("sync.notify_background", false)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:      configViper.GetString("http.address"),
		DatabasePath:     configViper.GetString("database.path"),
		LogLevel:         configViper.GetString("log.level"),
		SigningSecret:    configViper.GetString("auth.signing_secret"),
		TokenTTL:         time.Duration(configViper.GetInt("auth.token_ttl_minutes")) * time.Minute,
		SpreadsheetID:    configViper.GetString("sheets.spreadsheet_id"),
		SheetRanges:      configViper.GetStringSlice("sheets.ranges"),
		SyncSchedule:     configViper.GetString("sync.schedule"),
		NotifyBackground: configViper.GetBool("sync.notify_background"),
		RetryBaseDelay:   time.Duration(configViper.GetInt("sheets.retry_base_delay_seconds")) * time.Second,
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.SigningSecret) == "" {
		return fmt.Errorf("auth.signing_secret is required")
	}
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if strings.TrimSpace(c.SyncSchedule) == "" {
		return fmt.Errorf("sync.schedule is required")
	}
	if len(c.SheetRanges) == 0 {
		return fmt.Errorf("sheets.ranges requires at least one candidate range")
	}
	return nil
}
