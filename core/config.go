package core

import (
	"crypto/tls"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration values for the scan engine.
// Values come from an optional YAML file overridden by environment
// variables; environment always wins so kiosk operators can tweak a single
// deployment without editing the file.
type Config struct {
	// Remote backends (collaborators; all computation happens there)
	AnalyzeURL   string // PPG video analysis endpoint
	NutritionURL string // food photo analysis endpoint
	BarcodeURL   string // barcode lookup endpoint (product code appended as path segment)

	// Assistant configuration (OpenAI-compatible chat backend)
	AssistantBaseURL string
	AssistantAPIKey  string
	AssistantModel   string
	AssistantTimeout time.Duration

	// Capture configuration
	RecordDuration time.Duration // automatic stop after this long
	TempDir        string        // where capture temp files live

	// Upload configuration
	AnalyzeTimeout time.Duration // must stay >= 50s; video analysis is slow
	MaxUploadBytes int64

	// Nutrition photo preprocessing
	MaxImageDim int // photos are downscaled to fit this before upload

	// Scan history
	HistoryDBPath string
	HistoryLimit  int

	// Spool mode (kiosk deployments)
	SpoolDir    string
	SpoolSettle time.Duration // a spool file is ready once its size is stable this long

	AllowSelfSignedCerts bool
}

// fileConfig mirrors Config for the optional YAML config file.
// Durations are expressed in seconds to keep the file format simple.
type fileConfig struct {
	AnalyzeURL           string `yaml:"analyze_url"`
	NutritionURL         string `yaml:"nutrition_url"`
	BarcodeURL           string `yaml:"barcode_url"`
	AssistantBaseURL     string `yaml:"assistant_base_url"`
	AssistantModel       string `yaml:"assistant_model"`
	AssistantTimeoutSecs int    `yaml:"assistant_timeout_seconds"`
	RecordSeconds        int    `yaml:"record_seconds"`
	TempDir              string `yaml:"temp_dir"`
	AnalyzeTimeoutSecs   int    `yaml:"analyze_timeout_seconds"`
	MaxUploadSize        string `yaml:"max_upload_size"`
	MaxImageDim          int    `yaml:"max_image_dim"`
	HistoryDBPath        string `yaml:"history_db_path"`
	HistoryLimit         int    `yaml:"history_limit"`
	SpoolDir             string `yaml:"spool_dir"`
	SpoolSettleSecs      int    `yaml:"spool_settle_seconds"`
	AllowSelfSigned      bool   `yaml:"allow_self_signed_certs"`
}

// Helper function to get environment variable with default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// Helper function to parse integer environment variable with default value.
func parseIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// Helper function to parse boolean environment variable with default value.
func parseBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1"
	}
	return defaultValue
}

// DefaultConfigFile is the YAML config file consulted when VITALSCAN_CONFIG
// is unset. A missing file is not an error; env vars alone are enough.
const DefaultConfigFile = "vitalscan.yaml"

// LoadConfig loads configuration from the optional YAML file plus environment
// variables, applying engine defaults for anything unset.
//
// Only ANALYZE_URL is strictly required: every other flow degrades to
// "not configured" at the point of use.
func LoadConfig() (*Config, error) {
	file, err := loadConfigFile(getEnvOrDefault("VITALSCAN_CONFIG", DefaultConfigFile))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		AnalyzeURL:   getEnvOrDefault("ANALYZE_URL", file.AnalyzeURL),
		NutritionURL: getEnvOrDefault("NUTRITION_URL", file.NutritionURL),
		BarcodeURL:   getEnvOrDefault("BARCODE_URL", file.BarcodeURL),

		AssistantBaseURL: getEnvOrDefault("ASSISTANT_BASE_URL", file.AssistantBaseURL),
		AssistantAPIKey:  os.Getenv("ASSISTANT_API_KEY"), // never read from file
		AssistantModel:   getEnvOrDefault("ASSISTANT_MODEL", file.AssistantModel),
		AssistantTimeout: secondsOrDefault(parseIntEnv("ASSISTANT_TIMEOUT", file.AssistantTimeoutSecs), 60),

		// 15s of finger-over-lens video is enough for the backend to find a
		// stable pulse; longer recordings only grow the upload.
		RecordDuration: secondsOrDefault(parseIntEnv("RECORD_SECONDS", file.RecordSeconds), 15),
		TempDir:        getEnvOrDefault("CAPTURE_TEMP_DIR", firstNonEmpty(file.TempDir, os.TempDir())),

		// Observed backend latency for video analysis runs close to a minute,
		// so anything under 50s risks cutting off in-progress analyses.
		AnalyzeTimeout: secondsOrDefault(parseIntEnv("ANALYZE_TIMEOUT", file.AnalyzeTimeoutSecs), 60),

		MaxImageDim: intOrDefault(parseIntEnv("MAX_IMAGE_DIM", file.MaxImageDim), 1280),

		HistoryDBPath: getEnvOrDefault("HISTORY_DB_PATH", firstNonEmpty(file.HistoryDBPath, "./data/history.db")),
		HistoryLimit:  intOrDefault(parseIntEnv("HISTORY_LIMIT", file.HistoryLimit), 50),

		SpoolDir:    getEnvOrDefault("SPOOL_DIR", file.SpoolDir),
		SpoolSettle: secondsOrDefault(parseIntEnv("SPOOL_SETTLE_SECONDS", file.SpoolSettleSecs), 2),

		AllowSelfSignedCerts: parseBoolEnv("ALLOW_SELF_SIGNED_CERTS", file.AllowSelfSigned),
	}

	maxUpload := getEnvOrDefault("MAX_UPLOAD_SIZE", firstNonEmpty(file.MaxUploadSize, "50MB"))
	cfg.MaxUploadBytes, err = ParseBytes(maxUpload)
	if err != nil {
		return nil, fmt.Errorf("invalid MAX_UPLOAD_SIZE: %w", err)
	}

	if cfg.AnalyzeTimeout < 50*time.Second {
		return nil, fmt.Errorf("ANALYZE_TIMEOUT must be at least 50 seconds, got %v", cfg.AnalyzeTimeout)
	}

	if cfg.AnalyzeURL != "" {
		if err := validateEndpointURL("ANALYZE_URL", cfg.AnalyzeURL); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// loadConfigFile reads the YAML config file at path. A missing file yields an
// empty fileConfig; any other read or parse failure is an error.
func loadConfigFile(path string) (fileConfig, error) {
	var fc fileConfig

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fc, nil
		}
		return fc, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fc, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return fc, nil
}

// validateEndpointURL checks that an endpoint is an absolute http(s) URL.
func validateEndpointURL(name, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", name, raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid %s %q: scheme must be http or https", name, raw)
	}
	if u.Host == "" {
		return fmt.Errorf("invalid %s %q: missing host", name, raw)
	}
	return nil
}

func secondsOrDefault(secs, defaultSecs int) time.Duration {
	if secs <= 0 {
		secs = defaultSecs
	}
	return time.Duration(secs) * time.Second
}

func intOrDefault(v, defaultValue int) int {
	if v <= 0 {
		return defaultValue
	}
	return v
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// GetHTTPClient returns an HTTP client configured with TLS settings based on
// AllowSelfSignedCerts. All requests to the remote backends go through
// clients built here so the TLS toggle is respected everywhere.
func GetHTTPClient(cfg *Config, timeout time.Duration) *http.Client {
	client := &http.Client{
		Timeout: timeout,
	}

	if cfg.AllowSelfSignedCerts {
		client.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
	}

	return client
}
