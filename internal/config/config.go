package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/miradorstack/mirador-sentinel/internal/models"
)

// Config captures the settings required to boot the sentinel service.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Clients    ClientsConfig    `yaml:"clients"`
	Logging    LoggingConfig    `yaml:"logging"`
	Cache      CacheConfig      `yaml:"cache"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
}

// ServerConfig controls HTTP listener behaviour.
type ServerConfig struct {
	Address         string        `yaml:"address"`
	GracefulTimeout time.Duration `yaml:"gracefulTimeout"`
	AllowedOrigins  []string      `yaml:"allowedOrigins"`
}

// ClientsConfig groups integrations with mirador-core.
type ClientsConfig struct {
	Core CoreClientConfig `yaml:"core"`
}

// CoreClientConfig configures access to the mirador-core aggregation and
// control APIs.
type CoreClientConfig struct {
	BaseURL     string        `yaml:"baseURL"`
	SamplesPath string        `yaml:"samplesPath"`
	ControlPath string        `yaml:"controlPath"`
	Timeout     time.Duration `yaml:"timeout"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// CacheConfig controls Valkey-backed caching of sample fetches.
type CacheConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Addr         string        `yaml:"addr"`
	Username     string        `yaml:"username"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	DialTimeout  time.Duration `yaml:"dialTimeout"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	TLS          bool          `yaml:"tls"`
	SamplesTTL   time.Duration `yaml:"samplesTTL"`
}

// MonitoringConfig seeds the runtime-mutable monitoring settings.
type MonitoringConfig struct {
	AutoStart               bool                `yaml:"autoStart"`
	PollIntervalSeconds     int                 `yaml:"pollIntervalSeconds"`
	AnomalyDetectionWindow  int                 `yaml:"anomalyDetectionWindow"`
	StatisticalThreshold    float64             `yaml:"statisticalThreshold"`
	CorrelationThreshold    float64             `yaml:"correlationThreshold"`
	ThresholdRatio          float64             `yaml:"thresholdRatio"`
	MaxAlertsPerMinute      int                 `yaml:"maxAlertsPerMinute"`
	EnableAutoResponse      bool                `yaml:"enableAutoResponse"`
	MonitoredMetrics        []string            `yaml:"monitoredMetrics"`
	MetricThresholds        map[string]float64  `yaml:"metricThresholds"`
	CorrelationPairs        []models.MetricPair `yaml:"correlationPairs"`
	ExecutionTimeoutSeconds int                 `yaml:"executionTimeoutSeconds"`
	AutoExecuteMaxSeverity  string              `yaml:"autoExecuteMaxSeverity"`
}

// Load initialises Config from a YAML file and optional environment overrides.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("MIRADOR_SENTINEL_CONFIG")
	}

	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found: %w", path, err)
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	return &cfg, nil
}

// ToMonitoring converts the file representation into the runtime settings
// object served and patched through the control API.
func (m MonitoringConfig) ToMonitoring() models.MonitoringConfig {
	severity := models.Severity(strings.ToLower(m.AutoExecuteMaxSeverity))
	if severity.Rank() < 0 {
		severity = models.SeverityHigh
	}
	return models.MonitoringConfig{
		PollIntervalSeconds:     m.PollIntervalSeconds,
		AnomalyDetectionWindow:  m.AnomalyDetectionWindow,
		StatisticalThreshold:    m.StatisticalThreshold,
		CorrelationThreshold:    m.CorrelationThreshold,
		ThresholdRatio:          m.ThresholdRatio,
		MaxAlertsPerMinute:      m.MaxAlertsPerMinute,
		EnableAutoResponse:      m.EnableAutoResponse,
		MonitoredMetrics:        append([]string(nil), m.MonitoredMetrics...),
		MetricThresholds:        m.MetricThresholds,
		CorrelationPairs:        append([]models.MetricPair(nil), m.CorrelationPairs...),
		ExecutionTimeoutSeconds: m.ExecutionTimeoutSeconds,
		AutoExecuteMaxSeverity:  severity,
	}
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Address:         ":8480",
			GracefulTimeout: 10 * time.Second,
		},
		Clients: ClientsConfig{
			Core: CoreClientConfig{
				SamplesPath: "/api/v1/sentinel/samples",
				ControlPath: "/api/v1/sentinel/control",
				Timeout:     5 * time.Second,
			},
		},
		Logging: LoggingConfig{Level: "info", JSON: false},
		Cache: CacheConfig{
			Enabled:      false,
			DialTimeout:  2 * time.Second,
			ReadTimeout:  500 * time.Millisecond,
			WriteTimeout: 500 * time.Millisecond,
			SamplesTTL:   15 * time.Second,
		},
		Monitoring: MonitoringConfig{
			AutoStart:              true,
			PollIntervalSeconds:    30,
			AnomalyDetectionWindow: 20,
			StatisticalThreshold:   2.0,
			CorrelationThreshold:   0.5,
			ThresholdRatio:         1.0,
			MaxAlertsPerMinute:     10,
			EnableAutoResponse:     false,
			MonitoredMetrics: []string{
				"avg_latency_ms",
				"error_rate",
				"total_cost",
			},
			ExecutionTimeoutSeconds: 30,
			AutoExecuteMaxSeverity:  string(models.SeverityHigh),
		},
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("MIRADOR_SENTINEL_SERVER_ADDRESS"); v != "" {
		cfg.Server.Address = v
	}
	if v := os.Getenv("MIRADOR_CORE_BASE_URL"); v != "" {
		cfg.Clients.Core.BaseURL = v
	}
	if v := os.Getenv("MIRADOR_CORE_SAMPLES_PATH"); v != "" {
		cfg.Clients.Core.SamplesPath = v
	}
	if v := os.Getenv("MIRADOR_CORE_CONTROL_PATH"); v != "" {
		cfg.Clients.Core.ControlPath = v
	}
	if v := os.Getenv("MIRADOR_SENTINEL_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("MIRADOR_SENTINEL_LOG_FORMAT"); v == "json" {
		cfg.Logging.JSON = true
	}
	if v := os.Getenv("MIRADOR_SENTINEL_CACHE_ADDR"); v != "" {
		cfg.Cache.Addr = v
	}
	if v := os.Getenv("MIRADOR_SENTINEL_CACHE_ENABLED"); v != "" {
		cfg.Cache.Enabled = isTruthy(v)
	}
	if v := os.Getenv("MIRADOR_SENTINEL_CACHE_USERNAME"); v != "" {
		cfg.Cache.Username = v
	}
	if v := os.Getenv("MIRADOR_SENTINEL_CACHE_PASSWORD"); v != "" {
		cfg.Cache.Password = v
	}
	if v := os.Getenv("MIRADOR_SENTINEL_CACHE_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			cfg.Cache.DB = db
		}
	}
	if v := os.Getenv("MIRADOR_SENTINEL_CACHE_TLS"); isTruthy(v) {
		cfg.Cache.TLS = true
	}
	if v := os.Getenv("MIRADOR_SENTINEL_POLL_INTERVAL_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Monitoring.PollIntervalSeconds = n
		}
	}
	if v := os.Getenv("MIRADOR_SENTINEL_AUTO_RESPONSE"); v != "" {
		cfg.Monitoring.EnableAutoResponse = isTruthy(v)
	}
	if v := os.Getenv("MIRADOR_SENTINEL_AUTO_START"); v != "" {
		cfg.Monitoring.AutoStart = isTruthy(v)
	}
	if v := os.Getenv("MIRADOR_SENTINEL_MONITORED_METRICS"); v != "" {
		parts := strings.Split(v, ",")
		metrics := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				metrics = append(metrics, trimmed)
			}
		}
		if len(metrics) > 0 {
			cfg.Monitoring.MonitoredMetrics = metrics
		}
	}
}

func isTruthy(v string) bool {
	return strings.EqualFold(v, "true") || v == "1"
}
