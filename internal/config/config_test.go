package config

import (
	"os"
	"path/filepath"
	"testing"
)

// clearEnv unsets every variable New reads and restores them after the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{
		EnvConfigFile, EnvPort, EnvLogLevel, EnvLogFile, EnvDataDir, EnvRedisURL,
		EnvServerURL, EnvHeadless, EnvYtDlp, EnvFFmpeg, EnvFormat,
		EnvS3Bucket, EnvS3Region, EnvS3Prefix, EnvS3Endpoint, EnvS3PathStyle,
	} {
		t.Setenv(name, "")
		os.Unsetenv(name)
	}
}

func TestNew_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := New()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port() != DefaultPort {
		t.Errorf("Port() = %d, want %d", cfg.Port(), DefaultPort)
	}
	if cfg.Format() != DefaultFormat {
		t.Errorf("Format() = %q, want %q", cfg.Format(), DefaultFormat)
	}
	if cfg.RedisURL() != "" || cfg.S3().Enabled() || cfg.Headless() {
		t.Errorf("optional features should be off by default: %+v", cfg)
	}
	if cfg.ServerURL() != "http://localhost:8788" {
		t.Errorf("ServerURL() = %q", cfg.ServerURL())
	}
	if filepath.Base(cfg.DBPath()) != DBFilename {
		t.Errorf("DBPath() = %q", cfg.DBPath())
	}
}

func TestNew_EnvOverrides(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	t.Setenv(EnvPort, "9000")
	t.Setenv(EnvDataDir, dir)
	t.Setenv(EnvRedisURL, "redis://localhost:6379/0")
	t.Setenv(EnvHeadless, "true")
	t.Setenv(EnvS3Bucket, "cuts")
	t.Setenv(EnvS3PathStyle, "1")

	cfg, err := New()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port() != 9000 || cfg.DataDir() != dir {
		t.Errorf("port/data dir = %d %q", cfg.Port(), cfg.DataDir())
	}
	if cfg.RedisURL() != "redis://localhost:6379/0" {
		t.Errorf("RedisURL() = %q", cfg.RedisURL())
	}
	if !cfg.Headless() {
		t.Error("Headless() = false, want true")
	}
	if s3 := cfg.S3(); !s3.Enabled() || !s3.PathStyle {
		t.Errorf("S3() = %+v", s3)
	}
	if cfg.LogFile() != filepath.Join(dir, "snipper.log") {
		t.Errorf("LogFile() = %q", cfg.LogFile())
	}
}

func TestNew_InvalidValues(t *testing.T) {
	tests := []struct {
		name, key, value string
	}{
		{"port not a number", EnvPort, "abc"},
		{"port out of range", EnvPort, "70000"},
		{"bad bool", EnvHeadless, "maybe"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.key, tt.value)
			if _, err := New(); err == nil {
				t.Errorf("New() with %s=%q should fail", tt.key, tt.value)
			}
		})
	}
}

func TestNew_TOMLFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "snipper.toml")
	content := `
port = 9100
log_level = "debug"
redis_url = "redis://cache:6379/1"

[tools]
yt_dlp = "/opt/yt-dlp"
format = "bv*+ba"

[s3]
bucket = "archive"
region = "eu-west-1"
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv(EnvConfigFile, path)
	t.Setenv(EnvLogLevel, "warn")

	cfg, err := New()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port() != 9100 || cfg.RedisURL() != "redis://cache:6379/1" {
		t.Errorf("file values not applied: port=%d redis=%q", cfg.Port(), cfg.RedisURL())
	}
	if cfg.LogLevel() != "warn" {
		t.Errorf("LogLevel() = %q, environment should win over the file", cfg.LogLevel())
	}
	if cfg.YtDlpPath() != "/opt/yt-dlp" || cfg.Format() != "bv*+ba" {
		t.Errorf("tools = %q %q", cfg.YtDlpPath(), cfg.Format())
	}
	if s3 := cfg.S3(); s3.Bucket != "archive" || s3.Region != "eu-west-1" {
		t.Errorf("S3() = %+v", s3)
	}
}

func TestNew_BadTOMLFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "bad.toml")
	os.WriteFile(path, []byte("port = = 1"), 0644)
	t.Setenv(EnvConfigFile, path)

	if _, err := New(); err == nil {
		t.Fatal("New() should fail on malformed TOML")
	}
}

func TestLoadDotEnv(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), ".env")
	os.WriteFile(path, []byte("SNIPPER_FORMAT=worst\nSNIPPER_PORT=9200\n"), 0644)
	t.Setenv(EnvPort, "9300")

	if err := LoadDotEnv(path, filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Fatalf("LoadDotEnv() error = %v", err)
	}

	cfg, err := New()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Format() != "worst" {
		t.Errorf("Format() = %q, want value from .env", cfg.Format())
	}
	if cfg.Port() != 9300 {
		t.Errorf("Port() = %d, existing environment should win over .env", cfg.Port())
	}
}
