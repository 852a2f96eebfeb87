package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestFromEnv_defaults(t *testing.T) {
	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("expected port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Live.SessionTimeout != 30*time.Second {
		t.Errorf("expected session timeout 30s, got %v", cfg.Live.SessionTimeout)
	}
	if cfg.Live.StreamTimeout != 60*time.Second {
		t.Errorf("expected stream timeout 60s, got %v", cfg.Live.StreamTimeout)
	}
	if cfg.Live.ReapInterval != 5*time.Second {
		t.Errorf("expected reap interval 5s, got %v", cfg.Live.ReapInterval)
	}
	if cfg.Ads.Enabled || cfg.Redis.Addr != "" || cfg.Redis.Prefix != "hls:ads:" {
		t.Errorf("unexpected ads/redis defaults %+v %+v", cfg.Ads, cfg.Redis)
	}
}

func TestFromEnv_overrides(t *testing.T) {
	t.Setenv("HLS_SERVER_PORT", "9090")
	t.Setenv("HLS_LIVE_SESSION_TIMEOUT", "45s")
	t.Setenv("HLS_ADS_ENABLED", "true")
	t.Setenv("HLS_REDIS_ADDR", "localhost:6379")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("expected port 9090, got %d", cfg.Server.Port)
	}
	if cfg.Live.SessionTimeout != 45*time.Second {
		t.Errorf("expected session timeout 45s, got %v", cfg.Live.SessionTimeout)
	}
	if !cfg.Ads.Enabled {
		t.Error("expected ads to be enabled")
	}
	if cfg.Redis.Addr != "localhost:6379" {
		t.Errorf("expected redis addr, got %q", cfg.Redis.Addr)
	}
}

func TestFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
live:
  stream_timeout: 2m
  target_duration: 2.5
logging:
  format: text
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("HLS_LIVE_TARGET_DURATION", "4")

	cfg, err := FromFile(path)
	if err != nil {
		t.Fatalf("FromFile: %v", err)
	}
	if cfg.Live.StreamTimeout != 2*time.Minute {
		t.Errorf("expected stream timeout 2m from file, got %v", cfg.Live.StreamTimeout)
	}
	if cfg.Live.TargetDuration != 4 {
		t.Errorf("env should override file, got target duration %v", cfg.Live.TargetDuration)
	}
	if cfg.Logging.Format != "text" {
		t.Errorf("expected text format, got %q", cfg.Logging.Format)
	}
}

func TestFromFile_missing(t *testing.T) {
	if _, err := FromFile(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestValidate(t *testing.T) {
	t.Setenv("HLS_SERVER_PORT", "0")
	t.Setenv("HLS_LIVE_REAP_INTERVAL", "0s")
	t.Setenv("HLS_LOGGING_FORMAT", "xml")

	_, err := FromEnv()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"server.port", "live.reap_interval", "logging.format"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("expected error to mention %s: %v", want, err)
		}
	}
}

func TestValidate_adsRequireRedis(t *testing.T) {
	t.Setenv("HLS_ADS_ENABLED", "true")

	_, err := FromEnv()
	if err == nil {
		t.Fatal("expected validation error for ads without redis")
	}
	if !strings.Contains(err.Error(), "redis.addr") {
		t.Errorf("expected error to mention redis.addr: %v", err)
	}
}

func TestLoad_dotenv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("HLS_TEST_DOTENV=loaded\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("HLS_TEST_DOTENV", "")
	os.Unsetenv("HLS_TEST_DOTENV")

	if err := Load(path); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := GetEnv("HLS_TEST_DOTENV", "fallback"); got != "loaded" {
		t.Errorf("expected loaded, got %q", got)
	}
	if got := GetEnv("HLS_TEST_UNSET", "fallback"); got != "fallback" {
		t.Errorf("expected fallback, got %q", got)
	}
}
