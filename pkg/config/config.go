package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

type Config struct {
	Agent struct {
		RoomID          string        `yaml:"room_id"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"agent"`

	Server struct {
		Address         string        `yaml:"address"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`

	Control struct {
		BaseURL        string        `yaml:"base_url"`
		APIToken       string        `yaml:"api_token"`
		RequestTimeout time.Duration `yaml:"request_timeout"`
	} `yaml:"control"`

	WHIP struct {
		BaseURL    string `yaml:"base_url"`
		ICEServers []struct {
			URLs       []string `yaml:"urls"`
			Username   string   `yaml:"username,omitempty"`
			Credential string   `yaml:"credential,omitempty"`
		} `yaml:"ice_servers"`
		ICEGatheringTimeout time.Duration `yaml:"ice_gathering_timeout"`
		MaxVideoBitrateKbps int           `yaml:"max_video_bitrate_kbps"`
	} `yaml:"whip"`

	Media struct {
		VideoListenAddress string `yaml:"video_listen_address"`
		AudioListenAddress string `yaml:"audio_listen_address"`
		AudioEnabled       bool   `yaml:"audio_enabled"`
	} `yaml:"media"`

	Heartbeat struct {
		Interval time.Duration `yaml:"interval"`
	} `yaml:"heartbeat"`

	Resume struct {
		Enabled    bool          `yaml:"enabled"`
		LockTTL    time.Duration `yaml:"lock_ttl"`
		SessionTTL time.Duration `yaml:"session_ttl"`
	} `yaml:"resume"`

	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Address  string `yaml:"address"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		PoolSize int    `yaml:"pool_size"`
	} `yaml:"redis"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`

	Auth struct {
		JWTSecret string        `yaml:"jwt_secret"`
		TokenTTL  time.Duration `yaml:"token_ttl"`
	} `yaml:"auth"`

	RateLimiting struct {
		Enabled           bool    `yaml:"enabled"`
		RequestsPerSecond float64 `yaml:"requests_per_second"`
		Burst             int     `yaml:"burst"`
		MaxConcurrent     int     `yaml:"max_concurrent"`
	} `yaml:"rate_limiting"`

	Monitoring struct {
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
	} `yaml:"monitoring"`

	Backup struct {
		Enabled       bool          `yaml:"enabled"`
		Directory     string        `yaml:"directory"`
		Interval      time.Duration `yaml:"interval"`
		RetentionDays int           `yaml:"retention_days"`
	} `yaml:"backup"`

	Tracing struct {
		Enabled     bool    `yaml:"enabled"`
		JaegerURL   string  `yaml:"jaeger_url"`
		Environment string  `yaml:"environment"`
		SampleRate  float64 `yaml:"sample_rate"`
	} `yaml:"tracing"`
}

// Validate checks that configuration values are within acceptable ranges.
func (c *Config) Validate() error {
	// Agent
	if c.Agent.RoomID == "" {
		return fmt.Errorf("agent.room_id must not be empty")
	}
	if c.Agent.ShutdownTimeout <= 0 {
		return fmt.Errorf("agent.shutdown_timeout must be > 0")
	}

	// Server
	if c.Server.Address == "" {
		return fmt.Errorf("server.address must not be empty")
	}
	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server.read_timeout must be > 0")
	}
	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server.write_timeout must be > 0")
	}

	// Control API
	if c.Control.BaseURL == "" {
		return fmt.Errorf("control.base_url must not be empty")
	}
	if c.Control.RequestTimeout <= 0 {
		return fmt.Errorf("control.request_timeout must be > 0")
	}

	// WHIP
	if c.WHIP.BaseURL == "" {
		return fmt.Errorf("whip.base_url must not be empty")
	}
	if c.WHIP.ICEGatheringTimeout <= 0 {
		return fmt.Errorf("whip.ice_gathering_timeout must be > 0")
	}
	if c.WHIP.MaxVideoBitrateKbps <= 0 {
		return fmt.Errorf("whip.max_video_bitrate_kbps must be > 0")
	}

	// Media
	if c.Media.VideoListenAddress == "" {
		return fmt.Errorf("media.video_listen_address must not be empty")
	}
	if c.Media.AudioEnabled && c.Media.AudioListenAddress == "" {
		return fmt.Errorf("media.audio_listen_address must not be empty when media.audio_enabled=true")
	}

	// Heartbeat
	if c.Heartbeat.Interval <= 0 {
		return fmt.Errorf("heartbeat.interval must be > 0")
	}

	// Resume
	if c.Resume.Enabled {
		if c.Resume.LockTTL <= 0 {
			return fmt.Errorf("resume.lock_ttl must be > 0 when resume.enabled=true")
		}
		if c.Resume.SessionTTL <= 0 {
			return fmt.Errorf("resume.session_ttl must be > 0 when resume.enabled=true")
		}
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Address == "" {
			return fmt.Errorf("redis.address must not be empty when redis.enabled=true")
		}
		if c.Redis.PoolSize <= 0 {
			return fmt.Errorf("redis.pool_size must be > 0 when redis.enabled=true")
		}
	}

	// Logging
	if c.Logging.Level == "" {
		return fmt.Errorf("logging.level must not be empty")
	}

	// Auth
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret must not be empty")
	}
	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("auth.token_ttl must be > 0")
	}

	// Rate limiting
	if c.RateLimiting.Enabled {
		if c.RateLimiting.RequestsPerSecond <= 0 {
			return fmt.Errorf("rate_limiting.requests_per_second must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.Burst <= 0 {
			return fmt.Errorf("rate_limiting.burst must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.MaxConcurrent < 0 {
			return fmt.Errorf("rate_limiting.max_concurrent must be >= 0 when rate limiting is enabled")
		}
	}

	// Backup
	if c.Backup.Enabled {
		if c.Backup.Directory == "" {
			return fmt.Errorf("backup.directory must not be empty when backup.enabled=true")
		}
		if c.Backup.Interval <= 0 {
			return fmt.Errorf("backup.interval must be > 0 when backup.enabled=true")
		}
		if c.Backup.RetentionDays <= 0 {
			return fmt.Errorf("backup.retention_days must be > 0 when backup.enabled=true")
		}
	}

	// Tracing
	if c.Tracing.Enabled {
		if c.Tracing.JaegerURL == "" {
			return fmt.Errorf("tracing.jaeger_url must not be empty when tracing.enabled=true")
		}
		if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
			return fmt.Errorf("tracing.sample_rate must be within [0, 1]")
		}
	}

	return nil
}

// Load reads configuration from YAML file, applies defaults and env overrides.
func Load(configPath string) (*Config, error) {
	// If file does not exist, fall back to defaults
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg := DefaultConfig()
		cfg.applyEnvOverrides()
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config yaml: %w", err)
	}

	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// DefaultConfig returns configuration with sane defaults.
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Agent.RoomID = "default"
	cfg.Agent.ShutdownTimeout = 15 * time.Second

	cfg.Server.Address = ":8090"
	cfg.Server.ReadTimeout = 30 * time.Second
	cfg.Server.WriteTimeout = 30 * time.Second
	cfg.Server.ShutdownTimeout = 30 * time.Second

	cfg.Control.BaseURL = "http://localhost:8080"
	cfg.Control.RequestTimeout = 10 * time.Second

	cfg.WHIP.BaseURL = "http://localhost:9000"
	cfg.WHIP.ICEGatheringTimeout = 2 * time.Second
	cfg.WHIP.MaxVideoBitrateKbps = 1200

	cfg.Media.VideoListenAddress = "127.0.0.1:5004"
	cfg.Media.AudioListenAddress = "127.0.0.1:5006"
	cfg.Media.AudioEnabled = true

	cfg.Heartbeat.Interval = 5 * time.Second

	cfg.Resume.Enabled = true
	cfg.Resume.LockTTL = 30 * time.Second
	cfg.Resume.SessionTTL = 24 * time.Hour

	cfg.Redis.Enabled = false
	cfg.Redis.Address = "localhost:6379"
	cfg.Redis.DB = 0
	cfg.Redis.PoolSize = 10

	cfg.Logging.Level = "info"
	cfg.Logging.Format = "json"

	cfg.Auth.JWTSecret = "change-me-in-production"
	cfg.Auth.TokenTTL = 15 * time.Minute

	cfg.RateLimiting.Enabled = false
	cfg.RateLimiting.RequestsPerSecond = 50
	cfg.RateLimiting.Burst = 100
	cfg.RateLimiting.MaxConcurrent = 0

	cfg.Monitoring.PrometheusEnabled = true

	cfg.Backup.Enabled = false
	cfg.Backup.Directory = "backups"
	cfg.Backup.Interval = time.Hour
	cfg.Backup.RetentionDays = 7

	cfg.Tracing.Enabled = false
	cfg.Tracing.JaegerURL = "http://localhost:14268/api/traces"
	cfg.Tracing.Environment = "development"
	cfg.Tracing.SampleRate = 1.0

	return cfg
}

func (c *Config) applyEnvOverrides() {
	// Apply environment variable overrides
	if room := os.Getenv("WHIPCAST_ROOM_ID"); room != "" {
		c.Agent.RoomID = room
	}
	if addr := os.Getenv("WHIPCAST_SERVER_ADDRESS"); addr != "" {
		c.Server.Address = addr
	}
	if url := os.Getenv("WHIPCAST_CONTROL_BASE_URL"); url != "" {
		c.Control.BaseURL = url
	}
	if token := os.Getenv("WHIPCAST_CONTROL_TOKEN"); token != "" {
		c.Control.APIToken = token
	}
	if url := os.Getenv("WHIPCAST_WHIP_BASE_URL"); url != "" {
		c.WHIP.BaseURL = url
	}
	if addr := os.Getenv("WHIPCAST_REDIS_ADDRESS"); addr != "" {
		c.Redis.Address = addr
	}
	if level := os.Getenv("WHIPCAST_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if secret := os.Getenv("WHIPCAST_JWT_SECRET"); secret != "" {
		c.Auth.JWTSecret = secret
	}
}
