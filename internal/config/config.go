package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/technosupport/ts-console/internal/logger"
	"github.com/technosupport/ts-console/internal/middleware"
	"github.com/technosupport/ts-console/internal/platform/paths"
	"github.com/technosupport/ts-console/internal/ratelimit"
	"github.com/technosupport/ts-console/internal/transport"
)

type Config struct {
	Server    ServerConfig      `yaml:"server"`
	Analysis  AnalysisConfig    `yaml:"analysis"`
	Search    SearchConfig      `yaml:"search"`
	HTTP      HTTPConfig        `yaml:"http"`
	Upload    UploadConfig      `yaml:"upload"`
	Console   ConsoleConfig     `yaml:"console"`
	Alerts    AlertsConfig      `yaml:"alerts"`
	Redis     RedisConfig       `yaml:"redis"`
	RateLimit middleware.Config `yaml:"rate_limit"`
	Events    EventsConfig      `yaml:"events"`
	Log       logger.Config     `yaml:"log"`
}

type ServerConfig struct {
	Addr              string        `yaml:"addr"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`
	CORSOrigins       []string      `yaml:"cors_origins"`
}

type AnalysisConfig struct {
	BaseURL string `yaml:"base_url"`
}

type SearchConfig struct {
	BaseURL string `yaml:"base_url"`
	// MediaBaseURL defaults to BaseURL.
	MediaBaseURL string `yaml:"media_base_url"`
}

type HTTPConfig struct {
	// Timeout of zero leaves collaborator requests unbounded.
	Timeout time.Duration `yaml:"timeout"`
}

type UploadConfig struct {
	MaxBytes int64  `yaml:"max_bytes"`
	SpoolDir string `yaml:"spool_dir"`
}

type ConsoleConfig struct {
	MaxSessions int `yaml:"max_sessions"`
}

type AlertsConfig struct {
	File string `yaml:"file"`
}

type RedisConfig struct {
	// Addr empty disables rate limiting.
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Salt     string `yaml:"salt"`
}

type EventsConfig struct {
	// NatsURL empty disables anomaly publishing.
	NatsURL         string        `yaml:"nats_url"`
	Subject         string        `yaml:"subject"`
	PublishRetryMax int           `yaml:"publish_retry_max"`
	Backoff         time.Duration `yaml:"backoff"`
	DedupTTL        time.Duration `yaml:"dedup_ttl"`
	DedupMaxKeys    int           `yaml:"dedup_max_keys"`
}

func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:              ":8090",
			ReadHeaderTimeout: 10 * time.Second,
			ShutdownTimeout:   15 * time.Second,
		},
		Analysis: AnalysisConfig{BaseURL: "http://localhost:8000"},
		Search:   SearchConfig{BaseURL: "http://localhost:8000"},
		Upload: UploadConfig{
			MaxBytes: 512 << 20,
			SpoolDir: paths.UploadDir(),
		},
		Console: ConsoleConfig{MaxSessions: 256},
		RateLimit: middleware.Config{
			Upload: ratelimit.LimitConfig{Rate: 10, Window: time.Minute},
			Search: ratelimit.LimitConfig{Rate: 60, Window: time.Minute},
		},
		Events: EventsConfig{
			Subject:         "console.anomaly",
			PublishRetryMax: 3,
			Backoff:         100 * time.Millisecond,
			DedupTTL:        5 * time.Minute,
			DedupMaxKeys:    10000,
		},
		Log: logger.Config{Level: "info"},
	}
}

// Load reads .env, then the YAML file at path over the defaults, then
// environment overrides, and validates the result. A missing file is only
// an error when required is set.
func Load(path string, required bool) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !required:
	default:
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if cfg.Search.MediaBaseURL == "" {
		cfg.Search.MediaBaseURL = cfg.Search.BaseURL
	}
	if cfg.Upload.SpoolDir == "" {
		cfg.Upload.SpoolDir = paths.UploadDir()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() error {
	strs := map[string]*string{
		"CONSOLE_ADDR":      &c.Server.Addr,
		"ANALYSIS_BASE_URL": &c.Analysis.BaseURL,
		"SEARCH_BASE_URL":   &c.Search.BaseURL,
		"MEDIA_BASE_URL":    &c.Search.MediaBaseURL,
		"REDIS_ADDR":        &c.Redis.Addr,
		"REDIS_PASSWORD":    &c.Redis.Password,
		"RATE_LIMIT_SALT":   &c.Redis.Salt,
		"NATS_URL":          &c.Events.NatsURL,
		"LOG_LEVEL":         &c.Log.Level,
		"LOG_FILE":          &c.Log.File,
		"ALERTS_FILE":       &c.Alerts.File,
		"UPLOAD_SPOOL_DIR":  &c.Upload.SpoolDir,
	}
	for key, dst := range strs {
		if v, ok := os.LookupEnv(key); ok {
			*dst = strings.TrimSpace(v)
		}
	}

	if v, ok := os.LookupEnv("HTTP_TIMEOUT"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("HTTP_TIMEOUT: %w", err)
		}
		c.HTTP.Timeout = d
	}
	if v, ok := os.LookupEnv("UPLOAD_MAX_BYTES"); ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("UPLOAD_MAX_BYTES: %w", err)
		}
		c.Upload.MaxBytes = n
	}
	return nil
}

func (c *Config) Validate() error {
	var errs []error
	for name, u := range map[string]string{
		"analysis.base_url":     c.Analysis.BaseURL,
		"search.base_url":       c.Search.BaseURL,
		"search.media_base_url": c.Search.MediaBaseURL,
	} {
		if err := transport.ValidateBaseURL(u); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr is required"))
	}
	if c.HTTP.Timeout < 0 {
		errs = append(errs, errors.New("http.timeout must not be negative"))
	}
	if c.Upload.MaxBytes <= 0 {
		errs = append(errs, errors.New("upload.max_bytes must be positive"))
	}
	if c.Console.MaxSessions <= 0 {
		errs = append(errs, errors.New("console.max_sessions must be positive"))
	}
	for name, l := range map[string]ratelimit.LimitConfig{
		"rate_limit.global_ip": c.RateLimit.GlobalIP,
		"rate_limit.upload":    c.RateLimit.Upload,
		"rate_limit.search":    c.RateLimit.Search,
	} {
		if l.Rate < 0 || l.Window < 0 {
			errs = append(errs, fmt.Errorf("%s must not be negative", name))
		}
	}
	if c.Events.PublishRetryMax < 0 {
		errs = append(errs, errors.New("events.publish_retry_max must not be negative"))
	}
	if _, err := logger.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
