package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig_IsValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should be valid, got error: %v", err)
	}
}

func TestValidate_InvalidValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{
			name:   "room id must not be empty",
			mutate: func(c *Config) { c.Agent.RoomID = "" },
		},
		{
			name:   "server address must not be empty",
			mutate: func(c *Config) { c.Server.Address = "" },
		},
		{
			name:   "control base url must not be empty",
			mutate: func(c *Config) { c.Control.BaseURL = "" },
		},
		{
			name:   "whip base url must not be empty",
			mutate: func(c *Config) { c.WHIP.BaseURL = "" },
		},
		{
			name:   "ice gathering timeout must be > 0",
			mutate: func(c *Config) { c.WHIP.ICEGatheringTimeout = 0 },
		},
		{
			name:   "max video bitrate must be > 0",
			mutate: func(c *Config) { c.WHIP.MaxVideoBitrateKbps = 0 },
		},
		{
			name:   "heartbeat interval must be > 0",
			mutate: func(c *Config) { c.Heartbeat.Interval = 0 },
		},
		{
			name:   "resume lock ttl required when enabled",
			mutate: func(c *Config) { c.Resume.Enabled = true; c.Resume.LockTTL = 0 },
		},
		{
			name:   "redis address required when enabled",
			mutate: func(c *Config) { c.Redis.Enabled = true; c.Redis.Address = "" },
		},
		{
			name:   "jwt secret must not be empty",
			mutate: func(c *Config) { c.Auth.JWTSecret = "" },
		},
		{
			name: "rate limiting rps must be > 0 when enabled",
			mutate: func(c *Config) {
				c.RateLimiting.Enabled = true
				c.RateLimiting.RequestsPerSecond = 0
			},
		},
		{
			name: "tracing sample rate must be within range",
			mutate: func(c *Config) {
				c.Tracing.Enabled = true
				c.Tracing.SampleRate = 1.5
			},
		},
		{
			name: "backup interval must be > 0 when enabled",
			mutate: func(c *Config) {
				c.Backup.Enabled = true
				c.Backup.Interval = 0
			},
		},
		{
			name: "audio listen address required when audio enabled",
			mutate: func(c *Config) {
				c.Media.AudioEnabled = true
				c.Media.AudioListenAddress = ""
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Errorf("expected validation error for %q, got nil", tc.name)
			}
		})
	}
}

func TestValidate_ResumeDisabled_AllowsZeroValues(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Resume.Enabled = false
	cfg.Resume.LockTTL = 0
	cfg.Resume.SessionTTL = 0

	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected config to be valid when resume disabled, got error: %v", err)
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load with missing file should fall back to defaults, got: %v", err)
	}
	if cfg.Heartbeat.Interval != 5*time.Second {
		t.Errorf("expected default heartbeat interval 5s, got %v", cfg.Heartbeat.Interval)
	}
}

func TestLoad_FromFileWithEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte(`
agent:
  room_id: studio-1
whip:
  base_url: http://ingest.internal:9000
  max_video_bitrate_kbps: 900
`)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("WHIPCAST_ROOM_ID", "studio-override")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Agent.RoomID != "studio-override" {
		t.Errorf("env override should win, got room id %q", cfg.Agent.RoomID)
	}
	if cfg.WHIP.BaseURL != "http://ingest.internal:9000" {
		t.Errorf("yaml value not applied, got %q", cfg.WHIP.BaseURL)
	}
	if cfg.WHIP.MaxVideoBitrateKbps != 900 {
		t.Errorf("expected bitrate 900, got %d", cfg.WHIP.MaxVideoBitrateKbps)
	}
	if cfg.Heartbeat.Interval != 5*time.Second {
		t.Errorf("unset fields should keep defaults, got %v", cfg.Heartbeat.Interval)
	}
}
