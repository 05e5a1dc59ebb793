// Package config holds the static, enumerated configuration for the
// supervisor: thresholds for the breaker, monitor, and frame size bounds.
// It follows the singleton-with-env-override pattern of the teacher's
// config package, trimmed to the values this module actually needs.
package config

import (
	"log/slog"
	"os"
	"strconv"
	"sync"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

// Config is the full set of tunables. Every field has a default applied by
// applyDefaults, so a zero-value Config is never used directly.
type Config struct {
	Breaker   BreakerConfig   `yaml:"breaker"`
	Monitor   MonitorConfig   `yaml:"monitor"`
	Frame     FrameConfig     `yaml:"frame"`
	Tripwire  TripwireConfig  `yaml:"tripwire"`
	AuditPath string          `yaml:"audit_path"`
}

type BreakerConfig struct {
	FailureThreshold int `yaml:"failure_threshold"`
	SuccessThreshold int `yaml:"success_threshold"`
	CoolDownMs       int `yaml:"cool_down_ms"`
}

type MonitorConfig struct {
	DriftThreshold          float64 `yaml:"drift_threshold"`
	SemanticDriftThreshold  float64 `yaml:"semantic_drift_threshold"`
	TripwireFailureThreshold float64 `yaml:"tripwire_failure_threshold"`
	BaselineTestIntervalMs  int     `yaml:"baseline_test_interval_ms"`
	EmbeddingWindowSize     int     `yaml:"embedding_window_size"`
}

type FrameConfig struct {
	MaxSymbols int `yaml:"max_symbols"`
	MinSymbols int `yaml:"min_symbols"`
}

type TripwireConfig struct {
	Rate float64 `yaml:"rate"`
}

var (
	instance *Config
	once     sync.Once
)

// Get returns the process-wide default configuration, loaded once from
// CONFIG_PATH (or "config.yaml") with environment overrides applied. It is
// the optional convenience path; the Engine can always be constructed with
// an explicit Config instead.
func Get() *Config {
	once.Do(func() {
		if err := godotenv.Load(); err != nil {
			slog.Debug("config: no .env file loaded", "error", err)
		}
		cfg, err := LoadConfig(getEnv("CONFIG_PATH", "config.yaml"))
		if err != nil {
			slog.Warn("config: failed to load config file, using defaults", "error", err)
			cfg = &Config{}
		}
		cfg.applyEnvOverrides()
		instance = cfg
	})
	return instance
}

// LoadConfig reads a YAML config file from path. A missing or unreadable
// file is not fatal to callers that want to fall back to defaults.
func LoadConfig(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v := getEnvInt("SENTINEL_FAILURE_THRESHOLD", 0); v > 0 {
		c.Breaker.FailureThreshold = v
	}
	if v := getEnvInt("SENTINEL_SUCCESS_THRESHOLD", 0); v > 0 {
		c.Breaker.SuccessThreshold = v
	}
	if v := getEnvInt("SENTINEL_COOLDOWN_MS", 0); v > 0 {
		c.Breaker.CoolDownMs = v
	}
	if v := getEnvFloat("SENTINEL_DRIFT_THRESHOLD", 0); v > 0 {
		c.Monitor.DriftThreshold = v
	}
	if v := getEnvFloat("SENTINEL_SEMANTIC_DRIFT_THRESHOLD", 0); v > 0 {
		c.Monitor.SemanticDriftThreshold = v
	}
	if v := getEnvFloat("SENTINEL_TRIPWIRE_FAILURE_THRESHOLD", 0); v > 0 {
		c.Monitor.TripwireFailureThreshold = v
	}
	if v := getEnvInt("SENTINEL_BASELINE_TEST_INTERVAL_MS", 0); v > 0 {
		c.Monitor.BaselineTestIntervalMs = v
	}
	if v := getEnvInt("SENTINEL_EMBEDDING_WINDOW_SIZE", 0); v > 0 {
		c.Monitor.EmbeddingWindowSize = v
	}
	if v := getEnvInt("SENTINEL_MAX_FRAME_SYMBOLS", 0); v > 0 {
		c.Frame.MaxSymbols = v
	}
	if v := getEnvInt("SENTINEL_MIN_FRAME_SYMBOLS", 0); v > 0 {
		c.Frame.MinSymbols = v
	}
	if v := getEnvFloat("SENTINEL_TRIPWIRE_RATE", 0); v > 0 {
		c.Tripwire.Rate = v
	}
	c.AuditPath = getEnv("SENTINEL_AUDIT_PATH", c.AuditPath)

	c.applyDefaults()
}

func (c *Config) applyDefaults() {
	if c.Breaker.FailureThreshold == 0 {
		c.Breaker.FailureThreshold = 5
	}
	if c.Breaker.SuccessThreshold == 0 {
		c.Breaker.SuccessThreshold = 3
	}
	if c.Breaker.CoolDownMs == 0 {
		c.Breaker.CoolDownMs = 60000
	}
	if c.Monitor.DriftThreshold == 0 {
		c.Monitor.DriftThreshold = 0.25
	}
	if c.Monitor.SemanticDriftThreshold == 0 {
		c.Monitor.SemanticDriftThreshold = 0.15
	}
	if c.Monitor.TripwireFailureThreshold == 0 {
		c.Monitor.TripwireFailureThreshold = 0.3
	}
	if c.Monitor.BaselineTestIntervalMs == 0 {
		c.Monitor.BaselineTestIntervalMs = 60000
	}
	if c.Monitor.EmbeddingWindowSize == 0 {
		c.Monitor.EmbeddingWindowSize = 100
	}
	if c.Frame.MaxSymbols == 0 {
		c.Frame.MaxSymbols = 12
	}
	if c.Frame.MinSymbols == 0 {
		c.Frame.MinSymbols = 2
	}
	if c.Tripwire.Rate == 0 {
		c.Tripwire.Rate = 0.05
	}
	if c.AuditPath == "" {
		c.AuditPath = "sentinel-audit.log"
	}
}

// Default returns a Config populated entirely by defaults, bypassing file
// and environment lookup. Tests and embedders that want deterministic
// values without touching the process environment use this.
func Default() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}
