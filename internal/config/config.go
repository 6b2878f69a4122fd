package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Store backends.
const (
	BackendSQLite   = "sqlite"
	BackendBigQuery = "bigquery"
	BackendMemory   = "memory"
)

// Config holds process configuration read from the environment.
type Config struct {
	Port         int
	StoreBackend string
	SQLitePath   string

	GCPProject     string
	BQDataset      string
	ReceiptsBucket string

	GeminiAPIKey      string
	GeminiModel       string
	CategorizeTimeout time.Duration

	AppPassword  string
	CookieSecure bool

	WisePublicKey string
	WiseAPIToken  string
	WiseProfileID string
	WiseAPIBase   string

	NotionToken string
	NotionDBID  string

	LogLevel  string
	LogFormat string
}

// Load reads configuration from the environment, applying defaults.
func Load() (*Config, error) {
	cfg := &Config{
		StoreBackend:   getenv("STORE_BACKEND", BackendSQLite),
		SQLitePath:     getenv("SQLITE_PATH", "data/dapfinance.db"),
		GCPProject:     os.Getenv("GCP_PROJECT"),
		BQDataset:      getenv("BQ_DATASET", "finance"),
		ReceiptsBucket: os.Getenv("RECEIPTS_BUCKET"),
		GeminiAPIKey:   os.Getenv("GEMINI_API_KEY"),
		GeminiModel:    getenv("GEMINI_MODEL", "gemini-2.5-flash"),
		AppPassword:    os.Getenv("APP_PASSWORD"),
		CookieSecure:   os.Getenv("COOKIE_SECURE") == "true",
		WisePublicKey:  os.Getenv("WISE_PUBLIC_KEY"),
		WiseAPIToken:   os.Getenv("WISE_API_TOKEN"),
		WiseProfileID:  os.Getenv("WISE_PROFILE_ID"),
		WiseAPIBase:    getenv("WISE_API_BASE", "https://api.transferwise.com"),
		NotionToken:    os.Getenv("NOTION_TOKEN"),
		NotionDBID:     os.Getenv("NOTION_DB_ID"),
		LogLevel:       getenv("LOG_LEVEL", "info"),
		LogFormat:      getenv("LOG_FORMAT", "console"),
	}

	port, err := strconv.Atoi(getenv("PORT", "8080"))
	if err != nil {
		return nil, fmt.Errorf("config: PORT: %w", err)
	}
	cfg.Port = port

	timeout, err := time.ParseDuration(getenv("CATEGORIZE_TIMEOUT", "20s"))
	if err != nil {
		return nil, fmt.Errorf("config: CATEGORIZE_TIMEOUT: %w", err)
	}
	cfg.CategorizeTimeout = timeout

	// PEM keys pasted into a single-line env var keep literal \n.
	cfg.WisePublicKey = strings.ReplaceAll(cfg.WisePublicKey, `\n`, "\n")

	return cfg, nil
}

// Validate reports configuration that cannot work.
func (c *Config) Validate() error {
	switch c.StoreBackend {
	case BackendSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("config: SQLITE_PATH is required for the sqlite backend")
		}
	case BackendBigQuery:
		if c.GCPProject == "" {
			return fmt.Errorf("config: GCP_PROJECT is required for the bigquery backend")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("config: unknown STORE_BACKEND %q (want sqlite, bigquery or memory)", c.StoreBackend)
	}

	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("config: PORT %d out of range", c.Port)
	}
	if c.CategorizeTimeout <= 0 {
		return fmt.Errorf("config: CATEGORIZE_TIMEOUT must be positive")
	}
	return nil
}

// WiseSyncConfigured reports whether balance sync credentials are present.
func (c *Config) WiseSyncConfigured() bool {
	return c.WiseAPIToken != "" && c.WiseProfileID != ""
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
