package core

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// clearScanEnv unsets every config env var so tests see only what they set.
func clearScanEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"ANALYZE_URL", "NUTRITION_URL", "BARCODE_URL",
		"ASSISTANT_BASE_URL", "ASSISTANT_API_KEY", "ASSISTANT_MODEL", "ASSISTANT_TIMEOUT",
		"RECORD_SECONDS", "CAPTURE_TEMP_DIR", "ANALYZE_TIMEOUT",
		"MAX_UPLOAD_SIZE", "MAX_IMAGE_DIM",
		"HISTORY_DB_PATH", "HISTORY_LIMIT",
		"SPOOL_DIR", "SPOOL_SETTLE_SECONDS",
		"ALLOW_SELF_SIGNED_CERTS", "VITALSCAN_CONFIG",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
	// Point at a nonexistent config file so a stray vitalscan.yaml in the
	// working directory cannot leak into tests.
	t.Setenv("VITALSCAN_CONFIG", filepath.Join(t.TempDir(), "absent.yaml"))
}

func TestLoadConfigDefaults(t *testing.T) {
	clearScanEnv(t)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.RecordDuration != 15*time.Second {
		t.Errorf("RecordDuration = %v, want 15s", cfg.RecordDuration)
	}
	if cfg.AnalyzeTimeout != 60*time.Second {
		t.Errorf("AnalyzeTimeout = %v, want 60s", cfg.AnalyzeTimeout)
	}
	if cfg.HistoryLimit != 50 {
		t.Errorf("HistoryLimit = %d, want 50", cfg.HistoryLimit)
	}
	if cfg.MaxUploadBytes != 50*BytesPerMB {
		t.Errorf("MaxUploadBytes = %d, want 50MB", cfg.MaxUploadBytes)
	}
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	clearScanEnv(t)
	t.Setenv("ANALYZE_URL", "https://api.example.com/analyze_ppg_video")
	t.Setenv("RECORD_SECONDS", "10")
	t.Setenv("MAX_UPLOAD_SIZE", "10MB")
	t.Setenv("HISTORY_LIMIT", "25")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.AnalyzeURL != "https://api.example.com/analyze_ppg_video" {
		t.Errorf("AnalyzeURL = %q", cfg.AnalyzeURL)
	}
	if cfg.RecordDuration != 10*time.Second {
		t.Errorf("RecordDuration = %v, want 10s", cfg.RecordDuration)
	}
	if cfg.MaxUploadBytes != 10*BytesPerMB {
		t.Errorf("MaxUploadBytes = %d, want 10MB", cfg.MaxUploadBytes)
	}
	if cfg.HistoryLimit != 25 {
		t.Errorf("HistoryLimit = %d, want 25", cfg.HistoryLimit)
	}
}

func TestLoadConfigRejectsShortAnalyzeTimeout(t *testing.T) {
	clearScanEnv(t)
	t.Setenv("ANALYZE_TIMEOUT", "10")

	if _, err := LoadConfig(); err == nil {
		t.Fatal("LoadConfig() should reject timeouts under 50s")
	}
}

func TestLoadConfigRejectsBadAnalyzeURL(t *testing.T) {
	clearScanEnv(t)
	t.Setenv("ANALYZE_URL", "ftp://example.com/analyze")

	if _, err := LoadConfig(); err == nil {
		t.Fatal("LoadConfig() should reject non-http(s) endpoints")
	}
}

func TestLoadConfigYAMLFileWithEnvPrecedence(t *testing.T) {
	clearScanEnv(t)

	dir := t.TempDir()
	configPath := filepath.Join(dir, "vitalscan.yaml")
	yaml := "analyze_url: https://file.example.com/analyze\nrecord_seconds: 20\nhistory_limit: 10\n"
	if err := os.WriteFile(configPath, []byte(yaml), 0644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("VITALSCAN_CONFIG", configPath)
	t.Setenv("HISTORY_LIMIT", "30") // env must win over file

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.AnalyzeURL != "https://file.example.com/analyze" {
		t.Errorf("AnalyzeURL = %q, want value from file", cfg.AnalyzeURL)
	}
	if cfg.RecordDuration != 20*time.Second {
		t.Errorf("RecordDuration = %v, want 20s from file", cfg.RecordDuration)
	}
	if cfg.HistoryLimit != 30 {
		t.Errorf("HistoryLimit = %d, want env override 30", cfg.HistoryLimit)
	}
}

func TestLoadConfigMalformedYAML(t *testing.T) {
	clearScanEnv(t)

	dir := t.TempDir()
	configPath := filepath.Join(dir, "vitalscan.yaml")
	if err := os.WriteFile(configPath, []byte("analyze_url: [unclosed"), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("VITALSCAN_CONFIG", configPath)

	if _, err := LoadConfig(); err == nil {
		t.Fatal("LoadConfig() should fail on malformed YAML")
	}
}

func TestGetHTTPClient(t *testing.T) {
	cfg := &Config{AllowSelfSignedCerts: false}
	client := GetHTTPClient(cfg, 30*time.Second)
	if client.Timeout != 30*time.Second {
		t.Errorf("Timeout = %v, want 30s", client.Timeout)
	}
	if client.Transport != nil {
		t.Error("default client should use the default transport")
	}

	cfg.AllowSelfSignedCerts = true
	client = GetHTTPClient(cfg, 0)
	if client.Transport == nil {
		t.Error("self-signed mode should install a custom transport")
	}
}
