package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	// Catalog (YTS)
	YTSBaseURL        string
	YTSPageSize       int
	CatalogMaxRetries int

	// Subtitle providers
	SubDivXBaseURL        string
	ArgenteamBaseURL      string
	OpenSubtitlesBaseURL  string
	OpenSubtitlesAPIKey   string
	OpenSubtitlesUsername string
	OpenSubtitlesPassword string
	SubtitleLanguage      string

	// Indexing
	IndexConcurrency int
	PageDelayMin     time.Duration
	PageDelayMax     time.Duration
	ProviderTimeout  time.Duration
	DownloadTimeout  time.Duration

	// Scheduling
	CrawlSchedule         string
	NotFoundSweepSchedule string

	// Server
	ServerPort    string
	PublicBaseURL string
	CacheTTL      time.Duration // 0 keeps lookups cached until restart

	// Paths
	DatabaseFile  string // $CONFIG_DIR/subtis.db
	BlacklistFile string // $CONFIG_DIR/blacklist.txt
	TokenFile     string // $CONFIG_DIR/opensubtitles_token.json
	ScratchDir    string // $CONFIG_DIR/scratch
	StorageDir    string // $CONFIG_DIR/storage

	// Logging
	LogLevel  string
	LogFormat string
}

// Load loads configuration from environment variables and .env file
func Load() (*Config, error) {
	initViper()

	configDir, err := resolveConfigDir(viper.GetString("CONFIG_DIR"))
	if err != nil {
		return nil, err
	}

	config := &Config{
		YTSBaseURL:        viper.GetString("YTS_BASE_URL"),
		YTSPageSize:       viper.GetInt("YTS_PAGE_SIZE"),
		CatalogMaxRetries: viper.GetInt("CATALOG_MAX_RETRIES"),

		SubDivXBaseURL:        viper.GetString("SUBDIVX_BASE_URL"),
		ArgenteamBaseURL:      viper.GetString("ARGENTEAM_BASE_URL"),
		OpenSubtitlesBaseURL:  viper.GetString("OPENSUBTITLES_BASE_URL"),
		OpenSubtitlesAPIKey:   viper.GetString("OPENSUBTITLES_API_KEY"),
		OpenSubtitlesUsername: viper.GetString("OPENSUBTITLES_USERNAME"),
		OpenSubtitlesPassword: viper.GetString("OPENSUBTITLES_PASSWORD"),
		SubtitleLanguage:      viper.GetString("SUBTITLE_LANGUAGE"),

		IndexConcurrency: viper.GetInt("INDEX_CONCURRENCY"),
		PageDelayMin:     time.Duration(viper.GetInt("PAGE_DELAY_MIN_SECONDS")) * time.Second,
		PageDelayMax:     time.Duration(viper.GetInt("PAGE_DELAY_MAX_SECONDS")) * time.Second,
		ProviderTimeout:  time.Duration(viper.GetInt("PROVIDER_TIMEOUT_SECONDS")) * time.Second,
		DownloadTimeout:  time.Duration(viper.GetInt("DOWNLOAD_TIMEOUT_SECONDS")) * time.Second,

		CrawlSchedule:         viper.GetString("CRAWL_SCHEDULE"),
		NotFoundSweepSchedule: viper.GetString("NOT_FOUND_SWEEP_SCHEDULE"),

		ServerPort:    viper.GetString("SERVER_PORT"),
		PublicBaseURL: viper.GetString("PUBLIC_BASE_URL"),
		CacheTTL:      time.Duration(viper.GetInt("LOOKUP_CACHE_TTL_SECONDS")) * time.Second,

		DatabaseFile:  filepath.Join(configDir, "subtis.db"),
		BlacklistFile: filepath.Join(configDir, "blacklist.txt"),
		TokenFile:     filepath.Join(configDir, "opensubtitles_token.json"),
		ScratchDir:    filepath.Join(configDir, "scratch"),
		StorageDir:    filepath.Join(configDir, "storage"),

		LogLevel:  viper.GetString("LOG_LEVEL"),
		LogFormat: viper.GetString("LOG_FORMAT"),
	}

	if config.PublicBaseURL == "" {
		config.PublicBaseURL = "http://localhost:" + config.ServerPort
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	for _, dir := range []string{config.ScratchDir, config.StorageDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return config, nil
}

func initViper() {
	// Setup viper FIRST to load .env file
	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")
	viper.AutomaticEnv()

	// Load .env file if it exists (ignore if not found)
	_ = viper.ReadInConfig()

	setDefaults()
}

// LocalServerURL returns the base URL of the server on this host, honouring
// SERVER_PORT from the environment or .env without creating any directories
func LocalServerURL() string {
	initViper()
	return "http://localhost:" + viper.GetString("SERVER_PORT")
}

func setDefaults() {
	viper.SetDefault("YTS_BASE_URL", "https://yts.mx/api/v2")
	viper.SetDefault("YTS_PAGE_SIZE", 50)
	viper.SetDefault("CATALOG_MAX_RETRIES", 3)
	viper.SetDefault("SUBDIVX_BASE_URL", "https://www.subdivx.com")
	viper.SetDefault("ARGENTEAM_BASE_URL", "https://argenteam.net/api/v1")
	viper.SetDefault("OPENSUBTITLES_BASE_URL", "https://api.opensubtitles.com/api/v1")
	viper.SetDefault("SUBTITLE_LANGUAGE", "es")
	viper.SetDefault("INDEX_CONCURRENCY", 5)
	viper.SetDefault("PAGE_DELAY_MIN_SECONDS", 2)
	viper.SetDefault("PAGE_DELAY_MAX_SECONDS", 5)
	viper.SetDefault("PROVIDER_TIMEOUT_SECONDS", 20)
	viper.SetDefault("DOWNLOAD_TIMEOUT_SECONDS", 60)
	viper.SetDefault("CRAWL_SCHEDULE", "30 19 * * *")
	viper.SetDefault("NOT_FOUND_SWEEP_SCHEDULE", "0 * * * *")
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("LOOKUP_CACHE_TTL_SECONDS", 0)
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("LOG_FORMAT", "text")
}

func resolveConfigDir(configDir string) (string, error) {
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		configDir = filepath.Join(homeDir, ".config", "subtis")
	} else {
		// Convert relative path to absolute path
		absPath, err := filepath.Abs(configDir)
		if err != nil {
			return "", fmt.Errorf("failed to get absolute path for CONFIG_DIR: %w", err)
		}
		configDir = absPath
	}

	if err := os.MkdirAll(configDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}
	return configDir, nil
}

// Validate checks that required fields and bounds are set
func (c *Config) Validate() error {
	if c.YTSBaseURL == "" {
		return fmt.Errorf("YTS_BASE_URL is required")
	}
	if c.YTSPageSize <= 0 || c.YTSPageSize > 50 {
		return fmt.Errorf("YTS_PAGE_SIZE must be between 1 and 50, got %d", c.YTSPageSize)
	}
	if c.IndexConcurrency <= 0 {
		return fmt.Errorf("INDEX_CONCURRENCY must be positive, got %d", c.IndexConcurrency)
	}
	if c.PageDelayMin < 0 || c.PageDelayMax < c.PageDelayMin {
		return fmt.Errorf("page delay bounds are invalid: min=%s max=%s", c.PageDelayMin, c.PageDelayMax)
	}
	if c.ProviderTimeout <= 0 {
		return fmt.Errorf("PROVIDER_TIMEOUT_SECONDS must be positive")
	}
	if c.DownloadTimeout <= 0 {
		return fmt.Errorf("DOWNLOAD_TIMEOUT_SECONDS must be positive")
	}
	if c.OpenSubtitlesUsername != "" && c.OpenSubtitlesAPIKey == "" {
		return fmt.Errorf("OPENSUBTITLES_API_KEY is required when OPENSUBTITLES_USERNAME is set")
	}
	return nil
}
