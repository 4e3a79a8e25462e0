package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"gopkg.in/yaml.v3"

	"obrawatch/internal/model"
)

type Config struct {
	LogLevel string                   `json:"log_level" yaml:"log_level"`
	Sources  SourcesConfig            `json:"sources" yaml:"sources"`
	Unified  UnifiedConfig            `json:"unified" yaml:"unified"`
	Redis    RedisConfig              `json:"redis" yaml:"redis"`
	Severity model.SeverityThresholds `json:"severity" yaml:"severity"`
	History  HistoryConfig            `json:"history" yaml:"history"`
	API      APIConfig                `json:"api" yaml:"api"`
	Storage  StorageConfig            `json:"storage" yaml:"storage"`
	Publish  PublishConfig            `json:"publish" yaml:"publish"`
}

type SourcesConfig struct {
	AlertsURL   string        `json:"alerts_url" yaml:"alerts_url"`
	WorksURL    string        `json:"works_url" yaml:"works_url"`
	HistoryURL  string        `json:"history_url" yaml:"history_url"`
	APIKey      string        `json:"api_key" yaml:"api_key"`
	Timeout     time.Duration `json:"timeout" yaml:"timeout"`
	PageSize    int           `json:"page_size" yaml:"page_size"`
	UseFallback bool          `json:"use_fallback" yaml:"use_fallback"`
}

type UnifiedConfig struct {
	CacheTTL        time.Duration `json:"cache_ttl" yaml:"cache_ttl"`
	CacheBackend    string        `json:"cache_backend" yaml:"cache_backend"`
	RefreshInterval time.Duration `json:"refresh_interval" yaml:"refresh_interval"`
	RefreshCooldown time.Duration `json:"refresh_cooldown" yaml:"refresh_cooldown"`
}

type RedisConfig struct {
	Addr      string `json:"addr" yaml:"addr"`
	Password  string `json:"password" yaml:"password"`
	DB        int    `json:"db" yaml:"db"`
	KeyPrefix string `json:"key_prefix" yaml:"key_prefix"`
}

type HistoryConfig struct {
	Cutoff              string  `json:"cutoff" yaml:"cutoff"`
	BudgetThreshold     float64 `json:"budget_threshold" yaml:"budget_threshold"`
	DateThresholdMonths float64 `json:"date_threshold_months" yaml:"date_threshold_months"`
}

type APIConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Addr    string `json:"addr" yaml:"addr"`
}

type StorageConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Driver  string `json:"driver" yaml:"driver"`
	DSN     string `json:"dsn" yaml:"dsn"`
}

type PublishConfig struct {
	Enabled      bool          `json:"enabled" yaml:"enabled"`
	Brokers      []string      `json:"brokers" yaml:"brokers"`
	Topic        string        `json:"topic" yaml:"topic"`
	DedupeWindow time.Duration `json:"dedupe_window" yaml:"dedupe_window"`
}

const (
	DefaultCacheTTL        = 5 * time.Minute
	DefaultBudgetThreshold = 500_000_000
	DefaultDateThreshold   = 2
	DefaultHistoryCutoff   = "2025-09-01"
)

// DefaultThresholds mirrors the dashboard's out-of-the-box classification.
func DefaultThresholds() model.SeverityThresholds {
	return model.SeverityThresholds{
		Critical: model.ThresholdBucket{
			Gravedad:   []string{"crítica", "critica", "alta"},
			RiskImpact: []string{"tiempo", "costo", "alcance"},
		},
		Warning: model.ThresholdBucket{
			Gravedad:   []string{"media", "moderada"},
			RiskImpact: []string{"calidad", "social", "ambiental"},
		},
	}
}

func DefaultConfig() *Config {
	return &Config{
		LogLevel: "info",
		Sources: SourcesConfig{
			Timeout:     15 * time.Second,
			PageSize:    1000,
			UseFallback: true,
		},
		Unified: UnifiedConfig{
			CacheTTL:        DefaultCacheTTL,
			CacheBackend:    "memory",
			RefreshInterval: 5 * time.Minute,
			RefreshCooldown: 10 * time.Second,
		},
		Redis:    RedisConfig{Addr: "localhost:6379", KeyPrefix: "obrawatch:"},
		Severity: DefaultThresholds(),
		History: HistoryConfig{
			Cutoff:              DefaultHistoryCutoff,
			BudgetThreshold:     DefaultBudgetThreshold,
			DateThresholdMonths: DefaultDateThreshold,
		},
		API:     APIConfig{Enabled: true, Addr: ":8081"},
		Storage: StorageConfig{Enabled: false, Driver: "sqlite", DSN: "file:obrawatch.db?_pragma=busy_timeout(5000)"},
		Publish: PublishConfig{Enabled: false, Topic: "obrawatch.events", DedupeWindow: time.Hour},
	}
}

func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	content, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()

	trimmed := strings.TrimSpace(string(content))
	if len(trimmed) == 0 {
		return nil, errors.New("config file is empty")
	}
	var decodeErr error
	if looksLikeJSON(trimmed) {
		decodeErr = json.Unmarshal([]byte(trimmed), cfg)
	} else {
		decodeErr = yaml.Unmarshal([]byte(trimmed), cfg)
	}
	if decodeErr != nil {
		return nil, decodeErr
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	if path == "" || cfg == nil {
		return errors.New("config path or config is empty")
	}
	var data []byte
	var err error
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".json" {
		data, err = json.MarshalIndent(cfg, "", "  ")
	} else {
		data, err = yaml.Marshal(cfg)
	}
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func looksLikeJSON(s string) bool {
	for _, ch := range s {
		if ch == '{' || ch == '[' {
			return true
		}
		if ch > ' ' {
			return false
		}
	}
	return false
}

func applyDefaults(cfg *Config) {
	if cfg.Unified.CacheTTL <= 0 {
		cfg.Unified.CacheTTL = DefaultCacheTTL
	}
	if cfg.Unified.CacheBackend == "" {
		cfg.Unified.CacheBackend = "memory"
	}
	if cfg.Unified.RefreshInterval <= 0 {
		cfg.Unified.RefreshInterval = cfg.Unified.CacheTTL
	}
	if cfg.Sources.Timeout <= 0 {
		cfg.Sources.Timeout = 15 * time.Second
	}
	if cfg.Sources.PageSize <= 0 {
		cfg.Sources.PageSize = 1000
	}
	if cfg.History.Cutoff == "" {
		cfg.History.Cutoff = DefaultHistoryCutoff
	}
	if cfg.History.BudgetThreshold <= 0 {
		cfg.History.BudgetThreshold = DefaultBudgetThreshold
	}
	if cfg.History.DateThresholdMonths <= 0 {
		cfg.History.DateThresholdMonths = DefaultDateThreshold
	}
	if len(cfg.Severity.Critical.Gravedad) == 0 && len(cfg.Severity.Warning.Gravedad) == 0 {
		cfg.Severity = DefaultThresholds()
	}
	if cfg.Redis.KeyPrefix == "" {
		cfg.Redis.KeyPrefix = "obrawatch:"
	}
}

func Validate(cfg *Config) error {
	if cfg.API.Enabled && cfg.API.Addr == "" {
		return errors.New("api.addr required when api.enabled is true")
	}
	switch strings.ToLower(cfg.Unified.CacheBackend) {
	case "memory":
	case "redis":
		if cfg.Redis.Addr == "" {
			return errors.New("redis.addr required when unified.cache_backend is redis")
		}
	default:
		return fmt.Errorf("unsupported unified.cache_backend: %q", cfg.Unified.CacheBackend)
	}
	if cfg.Publish.Enabled {
		if len(cfg.Publish.Brokers) == 0 || cfg.Publish.Topic == "" {
			return errors.New("publish requires brokers and topic")
		}
	}
	if _, err := time.Parse("2006-01-02", cfg.History.Cutoff); err != nil {
		return fmt.Errorf("history.cutoff must be YYYY-MM-DD: %w", err)
	}
	return nil
}

// HistoryCutoff returns the parsed cutoff date. Validate guarantees it parses.
func (c *Config) HistoryCutoff() time.Time {
	t, err := time.Parse("2006-01-02", c.History.Cutoff)
	if err != nil {
		t, _ = time.Parse("2006-01-02", DefaultHistoryCutoff)
	}
	return t
}

type Manager struct {
	path    string
	cfg     atomic.Value
	modTime time.Time
}

func NewManager(path string) (*Manager, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	m := &Manager{path: path}
	m.cfg.Store(cfg)
	info, err := os.Stat(path)
	if err == nil {
		m.modTime = info.ModTime()
	}
	return m, nil
}

// NewStaticManager wraps an in-memory config. Update keeps it in memory only.
func NewStaticManager(cfg *Config) *Manager {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	m := &Manager{}
	m.cfg.Store(cfg)
	return m
}

func (m *Manager) Get() *Config {
	if v := m.cfg.Load(); v != nil {
		return v.(*Config)
	}
	return DefaultConfig()
}

func (m *Manager) Path() string {
	return m.path
}

func (m *Manager) Reload() (*Config, error) {
	if m.path == "" {
		return m.Get(), nil
	}
	cfg, err := Load(m.path)
	if err != nil {
		return nil, err
	}
	m.cfg.Store(cfg)
	if info, err := os.Stat(m.path); err == nil {
		m.modTime = info.ModTime()
	}
	return cfg, nil
}

func (m *Manager) Update(cfg *Config) error {
	if cfg == nil {
		return errors.New("nil config")
	}
	if m.path != "" {
		if err := Save(m.path, cfg); err != nil {
			return err
		}
	}
	m.cfg.Store(cfg)
	if m.path == "" {
		return nil
	}
	if info, err := os.Stat(m.path); err == nil {
		m.modTime = info.ModTime()
	}
	return nil
}

func (m *Manager) NeedsReload() (bool, error) {
	if m.path == "" {
		return false, nil
	}
	info, err := os.Stat(m.path)
	if err != nil {
		return false, err
	}
	return info.ModTime().After(m.modTime), nil
}

func (m *Manager) Watch(interval time.Duration, onReload func(*Config), onError func(error), stop <-chan struct{}) {
	if interval <= 0 {
		interval = 3 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			needs, err := m.NeedsReload()
			if err != nil {
				if onError != nil {
					onError(err)
				}
				continue
			}
			if !needs {
				continue
			}
			cfg, err := m.Reload()
			if err != nil {
				if onError != nil {
					onError(err)
				}
				continue
			}
			if onReload != nil {
				onReload(cfg)
			}
		case <-stop:
			return
		}
	}
}

func ResolvePath(path string) string {
	if path == "" {
		return path
	}
	if filepath.IsAbs(path) {
		return path
	}
	cwd, err := os.Getwd()
	if err != nil {
		return path
	}
	return filepath.Join(cwd, path)
}
