// Package config loads notegrab settings. Precedence, lowest to highest:
// built-in defaults, YAML file, NOTEGRAB_* environment variables, and finally
// whatever the CLI layer applies on top from flags.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/vicentereig/notegrab/internal/types"
)

const (
	DefaultUserAgent       = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/114.0.0.0 Safari/537.36"
	DefaultAccept          = "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,image/apng,*/*;q=0.8,application/signed-exchange;v=b3;q=0.9"
	DefaultImageHost       = "https://sns-img-qc.xhscdn.com/"
	DefaultExtractAttempts = 5
	DefaultExtractDelay    = 3 * time.Second
	DefaultDownloadRetries = 5
	DefaultImageTimeout    = 10 * time.Second
)

// ExtractConfig controls the fetch-and-parse retry loop.
type ExtractConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	Delay       time.Duration `yaml:"delay"`
}

// DownloadConfig controls asset transfers.
type DownloadConfig struct {
	MaxAttempts  int           `yaml:"max_attempts"`
	Backoff      time.Duration `yaml:"backoff"`
	ImageTimeout time.Duration `yaml:"image_timeout"`
	VideoTimeout time.Duration `yaml:"video_timeout"`
}

// LogConfig controls logging.
type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// Config is the resolved application configuration.
type Config struct {
	Root              string            `yaml:"root"`
	Cookie            string            `yaml:"cookie"`
	UserAgent         string            `yaml:"user_agent"`
	Headers           map[string]string `yaml:"headers"`
	CanonicalizeURLs  bool              `yaml:"canonicalize_urls"`
	ImageHost         string            `yaml:"image_host"`
	Mode              string            `yaml:"mode"`
	Concurrency       int               `yaml:"concurrency"`
	Overwrite         string            `yaml:"overwrite"`
	RequestsPerSecond float64           `yaml:"requests_per_second"`
	HistoryDB         string            `yaml:"history_db"`
	Extract           ExtractConfig     `yaml:"extract"`
	Download          DownloadConfig    `yaml:"download"`
	Log               LogConfig         `yaml:"log"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Root:             ".",
		UserAgent:        DefaultUserAgent,
		Headers:          map[string]string{"Accept": DefaultAccept},
		CanonicalizeURLs: false,
		ImageHost:        DefaultImageHost,
		Mode:             string(types.ModeConcurrent),
		Overwrite:        string(types.OverwriteAuto),
		Extract: ExtractConfig{
			MaxAttempts: DefaultExtractAttempts,
			Delay:       DefaultExtractDelay,
		},
		Download: DownloadConfig{
			MaxAttempts:  DefaultDownloadRetries,
			ImageTimeout: DefaultImageTimeout,
		},
		Log: LogConfig{Level: "info"},
	}
}

// Loader resolves a Config from a file path and an environment lookup.
type Loader struct {
	configPath string
	lookupEnv  func(string) (string, bool)
}

// NewLoader returns a Loader reading configPath (may be empty) and the
// process environment.
func NewLoader(configPath string) *Loader {
	return &Loader{configPath: configPath, lookupEnv: os.LookupEnv}
}

// Load resolves the configuration: defaults, then file, then environment.
func (l *Loader) Load() (Config, error) {
	cfg := Default()

	if l.configPath != "" {
		if err := l.mergeFile(&cfg, l.configPath); err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
	}

	if err := l.mergeEnv(&cfg); err != nil {
		return cfg, fmt.Errorf("load environment: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return cfg, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// mergeFile decodes a YAML file over cfg with strict field checking.
func (l *Loader) mergeFile(cfg *Config, path string) error {
	path = filepath.Clean(path)
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("unsupported config format: %s (only YAML supported)", ext)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("strict config parse error: %w", err)
	}
	return nil
}

func (l *Loader) mergeEnv(cfg *Config) error {
	if v, ok := l.env("NOTEGRAB_ROOT"); ok {
		cfg.Root = v
	}
	if v, ok := l.env("NOTEGRAB_COOKIE"); ok {
		cfg.Cookie = v
	}
	if v, ok := l.env("NOTEGRAB_USER_AGENT"); ok {
		cfg.UserAgent = v
	}
	if v, ok := l.env("NOTEGRAB_IMAGE_HOST"); ok {
		cfg.ImageHost = v
	}
	if v, ok := l.env("NOTEGRAB_MODE"); ok {
		cfg.Mode = v
	}
	if v, ok := l.env("NOTEGRAB_OVERWRITE"); ok {
		cfg.Overwrite = v
	}
	if v, ok := l.env("NOTEGRAB_HISTORY_DB"); ok {
		cfg.HistoryDB = v
	}
	if v, ok := l.env("NOTEGRAB_LOG_LEVEL"); ok {
		cfg.Log.Level = v
	}
	if v, ok := l.env("NOTEGRAB_LOG_FILE"); ok {
		cfg.Log.File = v
	}
	if v, ok := l.env("NOTEGRAB_CANONICALIZE_URLS"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("NOTEGRAB_CANONICALIZE_URLS: %w", err)
		}
		cfg.CanonicalizeURLs = b
	}
	if v, ok := l.env("NOTEGRAB_CONCURRENCY"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("NOTEGRAB_CONCURRENCY: %w", err)
		}
		cfg.Concurrency = n
	}
	if v, ok := l.env("NOTEGRAB_EXTRACT_DELAY"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("NOTEGRAB_EXTRACT_DELAY: %w", err)
		}
		cfg.Extract.Delay = d
	}
	return nil
}

func (l *Loader) env(key string) (string, bool) {
	v, ok := l.lookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return strings.TrimSpace(v), true
}

// Validate checks a resolved configuration.
func Validate(cfg Config) error {
	var errs []error
	if strings.TrimSpace(cfg.Root) == "" {
		errs = append(errs, errors.New("root must not be empty"))
	}
	if _, err := types.ParseMode(cfg.Mode); err != nil {
		errs = append(errs, err)
	}
	if _, err := types.ParseOverwritePolicy(cfg.Overwrite); err != nil {
		errs = append(errs, err)
	}
	if cfg.Concurrency < 0 {
		errs = append(errs, fmt.Errorf("concurrency %d must not be negative", cfg.Concurrency))
	}
	if cfg.Extract.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("extract.max_attempts %d must be at least 1", cfg.Extract.MaxAttempts))
	}
	if cfg.Download.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("download.max_attempts %d must be at least 1", cfg.Download.MaxAttempts))
	}
	if cfg.Extract.Delay < 0 || cfg.Download.Backoff < 0 {
		errs = append(errs, errors.New("delays must not be negative"))
	}
	if !strings.HasPrefix(cfg.ImageHost, "http://") && !strings.HasPrefix(cfg.ImageHost, "https://") {
		errs = append(errs, fmt.Errorf("image_host %q must be an http(s) URL", cfg.ImageHost))
	}
	return errors.Join(errs...)
}

// RequestHeaders returns the header set sent with page requests.
func (c Config) RequestHeaders() map[string]string {
	h := make(map[string]string, len(c.Headers)+2)
	for k, v := range c.Headers {
		h[k] = v
	}
	if c.UserAgent != "" {
		h["User-Agent"] = c.UserAgent
	}
	if c.Cookie != "" {
		h["Cookie"] = c.Cookie
	}
	return h
}
