// Package config provides configuration management for clipstitch using Viper.
// It supports configuration from files, environment variables, and defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Default configuration values.
const (
	defaultServerPort       = 8080
	defaultServerTimeout    = 30 * time.Second
	defaultWriteTimeout     = 15 * time.Minute
	defaultShutdownTimeout  = 10 * time.Second
	defaultMaxOpenConns     = 25
	defaultMaxIdleConns     = 10
	defaultConnMaxIdleTime  = 30 * time.Minute
	defaultMaxPhraseLength  = 10
	defaultClipPadding      = 0.15
	defaultDownloadWorkers  = 3
	defaultProcessWorkers   = 4
	defaultDownloadTimeout  = 60 * time.Second
	defaultDownloadRetries  = 3
	defaultDownloadBackoff  = time.Second
	defaultEncodeTimeout    = 120 * time.Second
	defaultCardDuration     = time.Second
	defaultTitleDuration    = 2 * time.Second
	defaultIncrementalAbove = 50
	defaultEnhancePollEvery = 5 * time.Second
	defaultEnhanceBudget    = 600 * time.Second
	defaultMaxUploadSize    = 500 * 1024 * 1024
)

// Config holds all configuration for the application.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Catalog    CatalogConfig    `mapstructure:"catalog"`
	Downloader DownloaderConfig `mapstructure:"downloader"`
	Encoding   EncodingConfig   `mapstructure:"encoding"`
	Pipeline   PipelineConfig   `mapstructure:"pipeline"`
	Enhance    EnhanceConfig    `mapstructure:"enhance"`
	FFmpeg     FFmpegConfig     `mapstructure:"ffmpeg"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
}

// DatabaseConfig holds clip catalog connection configuration.
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // sqlite, postgres, mysql
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	LogLevel        string        `mapstructure:"log_level"` // silent, error, warn, info
}

// StorageConfig holds file storage configuration.
type StorageConfig struct {
	OutputDir string `mapstructure:"output_dir"`
	TempDir   string `mapstructure:"temp_dir"`
	// Retention prunes generated videos older than this age. Zero disables.
	// Supports human-readable values like "30d", "2w", "720h".
	Retention Duration `mapstructure:"retention"`
	// RetentionCron is the 6-field cron schedule for the retention sweep.
	RetentionCron string `mapstructure:"retention_cron"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`  // debug, info, warn, error
	Format     string `mapstructure:"format"` // json, text
	AddSource  bool   `mapstructure:"add_source"`
	TimeFormat string `mapstructure:"time_format"`
}

// CatalogConfig holds clip selection configuration.
type CatalogConfig struct {
	PreferredChannels []string `mapstructure:"preferred_channels"`
	MaxPhraseLength   int      `mapstructure:"max_phrase_length"`
	TranscriptCache   int      `mapstructure:"transcript_cache"`
}

// DownloaderConfig holds yt-dlp configuration.
type DownloaderConfig struct {
	BinaryPath string `mapstructure:"binary_path"` // Path to yt-dlp binary (empty = auto-detect)
	// CookiesFromBrowser extracts cookies from an installed browser profile.
	// One of: chrome, firefox, safari, edge, chromium, opera, brave.
	CookiesFromBrowser string        `mapstructure:"cookies_from_browser"`
	CookieFile         string        `mapstructure:"cookie_file"`
	PaddingStart       float64       `mapstructure:"padding_start"`
	PaddingEnd         float64       `mapstructure:"padding_end"`
	Timeout            time.Duration `mapstructure:"timeout"`
	RetryAttempts      int           `mapstructure:"retry_attempts"`
	RetryDelay         time.Duration `mapstructure:"retry_delay"`
	CacheDir           string        `mapstructure:"cache_dir"` // Segment cache (empty = {storage.temp_dir}/cache)
}

// EncodingConfig holds intermediate clip profile configuration.
type EncodingConfig struct {
	AspectRatio       string        `mapstructure:"aspect_ratio"` // 16:9, 9:16, 1:1
	NormalizeLoudness bool          `mapstructure:"normalize_loudness"`
	Timeout           time.Duration `mapstructure:"timeout"`
	CardDuration      time.Duration `mapstructure:"card_duration"`
	TitleDuration     time.Duration `mapstructure:"title_duration"`
}

// PipelineConfig holds job orchestration configuration.
type PipelineConfig struct {
	DownloadWorkers   int `mapstructure:"download_workers"`
	ProcessingWorkers int `mapstructure:"processing_workers"`
	// IncrementalAbove switches concatenation to pairwise folding when the
	// number of inputs exceeds this value.
	IncrementalAbove int  `mapstructure:"incremental_above"`
	KeepTemp         bool `mapstructure:"keep_temp"`
	FailOnMissing    bool `mapstructure:"fail_on_missing"`
}

// EnhanceConfig holds Auphonic audio enhancement configuration.
type EnhanceConfig struct {
	APIToken      string        `mapstructure:"api_token"`
	BaseURL       string        `mapstructure:"base_url"`
	PollInterval  time.Duration `mapstructure:"poll_interval"`
	PollBudget    time.Duration `mapstructure:"poll_budget"`
	KeepOriginal  bool          `mapstructure:"keep_original"`
	MaxUploadSize ByteSize      `mapstructure:"max_upload_size"`
}

// FFmpegConfig holds FFmpeg binary configuration.
type FFmpegConfig struct {
	BinaryPath   string `mapstructure:"binary_path"` // Path to ffmpeg binary (empty = auto-detect)
	ProbePath    string `mapstructure:"probe_path"`  // Path to ffprobe binary (empty = auto-detect)
	VerifyOnInit bool   `mapstructure:"verify_on_init"`
}

// Load reads configuration from file and environment variables.
// Environment variables take precedence over file configuration.
// Environment variables are prefixed with CLIPSTITCH_ and use underscores for
// nesting. Example: CLIPSTITCH_SERVER_PORT=8080.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	SetDefaults(v)

	// Config file settings
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/clipstitch")
		v.AddConfigPath("$HOME/.clipstitch")
	}

	// Environment variable settings
	v.SetEnvPrefix("CLIPSTITCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Config file not found is OK - we'll use defaults and env vars
	}

	BindLegacyEnv(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// BindLegacyEnv maps the unprefixed environment variables that predate the
// CLIPSTITCH_ scheme onto the config tree. Prefixed variables win.
func BindLegacyEnv(v *viper.Viper) {
	aliases := map[string]string{
		"database.dsn":                    "DB_PATH",
		"downloader.cookies_from_browser": "COOKIES_FROM_BROWSER",
		"enhance.api_token":               "AUPHONIC_API_TOKEN",
		"storage.output_dir":              "OUTPUT_DIR",
		"storage.temp_dir":                "TEMP_DIR",
	}
	for key, env := range aliases {
		prefixed := "CLIPSTITCH_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if os.Getenv(prefixed) != "" {
			continue
		}
		if val, ok := os.LookupEnv(env); ok && val != "" {
			v.Set(key, val)
		}
	}
}

// SetDefaults configures default values for all configuration options.
// This should be called before reading the config file to ensure defaults are in place.
func SetDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", defaultServerPort)
	v.SetDefault("server.read_timeout", defaultServerTimeout)
	// Generation is synchronous; the write timeout bounds a whole job.
	v.SetDefault("server.write_timeout", defaultWriteTimeout)
	v.SetDefault("server.shutdown_timeout", defaultShutdownTimeout)
	v.SetDefault("server.cors_origins", []string{"*"})

	// Database defaults
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "clips.db")
	v.SetDefault("database.max_open_conns", defaultMaxOpenConns)
	v.SetDefault("database.max_idle_conns", defaultMaxIdleConns)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.conn_max_idle_time", defaultConnMaxIdleTime)
	v.SetDefault("database.log_level", "warn")

	// Storage defaults
	v.SetDefault("storage.output_dir", "./output")
	v.SetDefault("storage.temp_dir", "./temp")
	v.SetDefault("storage.retention", Duration(0))
	v.SetDefault("storage.retention_cron", "0 0 3 * * *")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)

	// Catalog defaults
	v.SetDefault("catalog.preferred_channels", []string{})
	v.SetDefault("catalog.max_phrase_length", defaultMaxPhraseLength)
	v.SetDefault("catalog.transcript_cache", 256)

	// Downloader defaults
	v.SetDefault("downloader.binary_path", "")
	v.SetDefault("downloader.cookies_from_browser", "")
	v.SetDefault("downloader.cookie_file", "")
	v.SetDefault("downloader.padding_start", defaultClipPadding)
	v.SetDefault("downloader.padding_end", defaultClipPadding)
	v.SetDefault("downloader.timeout", defaultDownloadTimeout)
	v.SetDefault("downloader.retry_attempts", defaultDownloadRetries)
	v.SetDefault("downloader.retry_delay", defaultDownloadBackoff)
	v.SetDefault("downloader.cache_dir", "")

	// Encoding defaults
	v.SetDefault("encoding.aspect_ratio", "16:9")
	v.SetDefault("encoding.normalize_loudness", true)
	v.SetDefault("encoding.timeout", defaultEncodeTimeout)
	v.SetDefault("encoding.card_duration", defaultCardDuration)
	v.SetDefault("encoding.title_duration", defaultTitleDuration)

	// Pipeline defaults
	v.SetDefault("pipeline.download_workers", defaultDownloadWorkers)
	v.SetDefault("pipeline.processing_workers", defaultProcessWorkers)
	v.SetDefault("pipeline.incremental_above", defaultIncrementalAbove)
	v.SetDefault("pipeline.keep_temp", false)
	v.SetDefault("pipeline.fail_on_missing", false)

	// Enhance defaults
	v.SetDefault("enhance.api_token", "")
	v.SetDefault("enhance.base_url", "https://auphonic.com/api")
	v.SetDefault("enhance.poll_interval", defaultEnhancePollEvery)
	v.SetDefault("enhance.poll_budget", defaultEnhanceBudget)
	v.SetDefault("enhance.keep_original", true)
	v.SetDefault("enhance.max_upload_size", defaultMaxUploadSize)

	// FFmpeg defaults
	v.SetDefault("ffmpeg.binary_path", "")
	v.SetDefault("ffmpeg.probe_path", "")
	v.SetDefault("ffmpeg.verify_on_init", true)
}

// validBrowsers are the browsers yt-dlp can extract cookies from.
var validBrowsers = map[string]bool{
	"chrome": true, "firefox": true, "safari": true,
	"edge": true, "chromium": true, "opera": true, "brave": true,
}

// validAspectRatios are the supported output geometries.
var validAspectRatios = map[string]bool{"16:9": true, "9:16": true, "1:1": true}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	// Server validation
	const maxPort = 65535
	if c.Server.Port < 1 || c.Server.Port > maxPort {
		return fmt.Errorf("server.port must be between 1 and %d", maxPort)
	}

	// Database validation
	validDrivers := map[string]bool{"sqlite": true, "postgres": true, "mysql": true}
	if !validDrivers[c.Database.Driver] {
		return fmt.Errorf("database.driver must be one of: sqlite, postgres, mysql")
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}

	// Storage validation
	if c.Storage.OutputDir == "" {
		return fmt.Errorf("storage.output_dir is required")
	}
	if c.Storage.TempDir == "" {
		return fmt.Errorf("storage.temp_dir is required")
	}

	// Logging validation
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	// Catalog validation
	if c.Catalog.MaxPhraseLength < 1 || c.Catalog.MaxPhraseLength > 50 {
		return fmt.Errorf("catalog.max_phrase_length must be between 1 and 50")
	}
	if c.Catalog.TranscriptCache < 1 {
		return fmt.Errorf("catalog.transcript_cache must be at least 1")
	}

	// Downloader validation
	if b := c.Downloader.CookiesFromBrowser; b != "" && !validBrowsers[b] {
		return fmt.Errorf("downloader.cookies_from_browser must be one of: chrome, firefox, safari, edge, chromium, opera, brave")
	}
	if c.Downloader.PaddingStart < 0 || c.Downloader.PaddingEnd < 0 {
		return fmt.Errorf("downloader padding must not be negative")
	}
	if c.Downloader.RetryAttempts < 1 {
		return fmt.Errorf("downloader.retry_attempts must be at least 1")
	}

	// Encoding validation
	if !validAspectRatios[c.Encoding.AspectRatio] {
		return fmt.Errorf("encoding.aspect_ratio must be one of: 16:9, 9:16, 1:1")
	}

	// Pipeline validation
	if c.Pipeline.DownloadWorkers < 1 {
		return fmt.Errorf("pipeline.download_workers must be at least 1")
	}
	if c.Pipeline.ProcessingWorkers < 1 {
		return fmt.Errorf("pipeline.processing_workers must be at least 1")
	}
	if c.Pipeline.IncrementalAbove < 2 {
		return fmt.Errorf("pipeline.incremental_above must be at least 2")
	}

	return nil
}

// Address returns the server address in host:port format.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// CachePath returns the segment cache directory, defaulting under tempDir.
func (c *DownloaderConfig) CachePath(tempDir string) string {
	if c.CacheDir != "" {
		return c.CacheDir
	}
	return fmt.Sprintf("%s/cache", tempDir)
}

// Enabled reports whether audio enhancement is configured.
func (c *EnhanceConfig) Enabled() bool {
	return c.APIToken != ""
}
