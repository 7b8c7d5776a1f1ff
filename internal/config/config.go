package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

// Config represents the complete cache configuration.
type Config struct {
	DefaultTTL  time.Duration     `yaml:"default_ttl"`
	Memory      MemoryConfig      `yaml:"memory"`
	Durable     DurableConfig     `yaml:"durable"`
	Remote      RemoteConfig      `yaml:"remote"`
	Policy      PolicyConfig      `yaml:"policy"`
	Tracker     TrackerConfig     `yaml:"tracker"`
	Maintenance MaintenanceConfig `yaml:"maintenance"`
	Metrics     MetricsConfig     `yaml:"metrics"`
}

// MemoryConfig configures the fast in-process tier.
type MemoryConfig struct {
	MaxSize int64 `yaml:"max_size"`
}

// DurableConfig configures the persistent local tier.
type DurableConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Directory    string        `yaml:"directory"`
	MaxSize      int64         `yaml:"max_size"`
	SyncInterval time.Duration `yaml:"sync_interval"`
}

// RemoteConfig configures the network-response tier.
type RemoteConfig struct {
	Enabled     bool          `yaml:"enabled"`
	Address     string        `yaml:"address"`
	KeyPrefix   string        `yaml:"key_prefix"`
	DialTimeout time.Duration `yaml:"dial_timeout"`
	ReadTimeout time.Duration `yaml:"read_timeout"`
	MaxIdle     int           `yaml:"max_idle"`
}

// PolicyConfig configures the write-through persistence policy.
// AlwaysPersist wins over NeverPersist when a type appears in both.
type PolicyConfig struct {
	MaxPersistSize int64    `yaml:"max_persist_size"`
	AlwaysPersist  []string `yaml:"always_persist"`
	NeverPersist   []string `yaml:"never_persist"`
	NetworkTypes   []string `yaml:"network_types"`
}

// TrackerConfig configures access-pattern tracking and importance
// scoring. The weights and thresholds are heuristic defaults carried
// over from the original tuning, not derived values.
type TrackerConfig struct {
	MaxTracked          int           `yaml:"max_tracked"`
	RetainOnPrune       int           `yaml:"retain_on_prune"`
	RecencyWeight       float64       `yaml:"recency_weight"`
	FrequencyWeight     float64       `yaml:"frequency_weight"`
	CountWeight         float64       `yaml:"count_weight"`
	RecencyWindow       time.Duration `yaml:"recency_window"`
	FrequencySaturation float64       `yaml:"frequency_saturation"` // accesses/sec at which the frequency term reaches 1
	CountSaturation     int64         `yaml:"count_saturation"`     // access count at which the count term reaches 1
}

// MaintenanceConfig configures the background passes.
type MaintenanceConfig struct {
	CleanupInterval    time.Duration `yaml:"cleanup_interval"`
	PredictionInterval time.Duration `yaml:"prediction_interval"`
	PredictionWindow   time.Duration `yaml:"prediction_window"`
}

// MetricsConfig configures the Prometheus collector.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Namespace string `yaml:"namespace"`
}

// NewDefault returns a configuration with sensible defaults.
func NewDefault() *Config {
	return &Config{
		DefaultTTL: time.Hour,
		Memory: MemoryConfig{
			MaxSize: 64 * 1024 * 1024, // 64MB
		},
		Durable: DurableConfig{
			Enabled:      true,
			Directory:    filepath.Join(os.TempDir(), "tiercache"),
			MaxSize:      1024 * 1024 * 1024, // 1GB
			SyncInterval: time.Minute,
		},
		Remote: RemoteConfig{
			Enabled:     false,
			Address:     "127.0.0.1:6379",
			KeyPrefix:   "tiercache:resp:",
			DialTimeout: 5 * time.Second,
			ReadTimeout: 2 * time.Second,
			MaxIdle:     4,
		},
		Policy: PolicyConfig{
			MaxPersistSize: 10 * 1024 * 1024, // 10MB
			AlwaysPersist:  []string{"audio_buffer", "image", "preloaded", "json"},
			NeverPersist:   []string{"temp", "session"},
			NetworkTypes:   []string{"image", "binary", "json"},
		},
		Tracker: TrackerConfig{
			MaxTracked:          1000,
			RetainOnPrune:       500,
			RecencyWeight:       0.4,
			FrequencyWeight:     0.4,
			CountWeight:         0.2,
			RecencyWindow:       24 * time.Hour,
			FrequencySaturation: 0.1,
			CountSaturation:     100,
		},
		Maintenance: MaintenanceConfig{
			CleanupInterval:    5 * time.Minute,
			PredictionInterval: 30 * time.Second,
			PredictionWindow:   60 * time.Second,
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Namespace: "tiercache",
		},
	}
}

// LoadFromFile loads configuration from a YAML file over the receiver.
func (c *Config) LoadFromFile(filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// LoadFromEnv applies TIERCACHE_* environment overrides. Size values
// accept human-readable strings ("64MB").
func (c *Config) LoadFromEnv() error {
	if val := os.Getenv("TIERCACHE_DEFAULT_TTL"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			c.DefaultTTL = d
		}
	}
	if val := os.Getenv("TIERCACHE_MEMORY_MAX_SIZE"); val != "" {
		if size, err := ParseSize(val); err == nil {
			c.Memory.MaxSize = size
		}
	}
	if val := os.Getenv("TIERCACHE_DURABLE_ENABLED"); val != "" {
		c.Durable.Enabled = strings.ToLower(val) == "true"
	}
	if val := os.Getenv("TIERCACHE_DURABLE_DIRECTORY"); val != "" {
		c.Durable.Directory = val
	}
	if val := os.Getenv("TIERCACHE_DURABLE_MAX_SIZE"); val != "" {
		if size, err := ParseSize(val); err == nil {
			c.Durable.MaxSize = size
		}
	}
	if val := os.Getenv("TIERCACHE_REMOTE_ENABLED"); val != "" {
		c.Remote.Enabled = strings.ToLower(val) == "true"
	}
	if val := os.Getenv("TIERCACHE_REMOTE_ADDRESS"); val != "" {
		c.Remote.Address = val
	}
	if val := os.Getenv("TIERCACHE_CLEANUP_INTERVAL"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			c.Maintenance.CleanupInterval = d
		}
	}
	if val := os.Getenv("TIERCACHE_PREDICTION_INTERVAL"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			c.Maintenance.PredictionInterval = d
		}
	}
	if val := os.Getenv("TIERCACHE_METRICS_ENABLED"); val != "" {
		c.Metrics.Enabled = strings.ToLower(val) == "true"
	}
	return nil
}

// Validate checks the configuration for values the cache cannot run with.
func (c *Config) Validate() error {
	if c.DefaultTTL <= 0 {
		return fmt.Errorf("default_ttl must be positive, got %v", c.DefaultTTL)
	}
	if c.Memory.MaxSize <= 0 {
		return fmt.Errorf("memory.max_size must be positive, got %d", c.Memory.MaxSize)
	}
	if c.Durable.Enabled {
		if c.Durable.Directory == "" {
			return fmt.Errorf("durable.directory must be set when the durable tier is enabled")
		}
		if c.Durable.MaxSize <= 0 {
			return fmt.Errorf("durable.max_size must be positive, got %d", c.Durable.MaxSize)
		}
	}
	if c.Remote.Enabled && c.Remote.Address == "" {
		return fmt.Errorf("remote.address must be set when the remote tier is enabled")
	}
	if c.Policy.MaxPersistSize <= 0 {
		return fmt.Errorf("policy.max_persist_size must be positive, got %d", c.Policy.MaxPersistSize)
	}
	if c.Tracker.MaxTracked <= 0 || c.Tracker.RetainOnPrune <= 0 {
		return fmt.Errorf("tracker thresholds must be positive")
	}
	if c.Tracker.RetainOnPrune > c.Tracker.MaxTracked {
		return fmt.Errorf("tracker.retain_on_prune (%d) exceeds tracker.max_tracked (%d)",
			c.Tracker.RetainOnPrune, c.Tracker.MaxTracked)
	}
	weightSum := c.Tracker.RecencyWeight + c.Tracker.FrequencyWeight + c.Tracker.CountWeight
	if weightSum <= 0 {
		return fmt.Errorf("tracker importance weights must sum to a positive value")
	}
	if c.Maintenance.CleanupInterval <= 0 || c.Maintenance.PredictionInterval <= 0 {
		return fmt.Errorf("maintenance intervals must be positive")
	}
	if c.Maintenance.PredictionWindow <= 0 {
		return fmt.Errorf("maintenance.prediction_window must be positive, got %v",
			c.Maintenance.PredictionWindow)
	}
	return nil
}

// ParseSize parses a human-readable size string like "512KB" or "2GB"
// into bytes. A bare number is taken as bytes.
func ParseSize(s string) (int64, error) {
	s = strings.TrimSpace(strings.ToUpper(s))
	if s == "" {
		return 0, fmt.Errorf("empty size string")
	}

	multipliers := []struct {
		suffix string
		factor int64
	}{
		{"TB", 1024 * 1024 * 1024 * 1024},
		{"GB", 1024 * 1024 * 1024},
		{"MB", 1024 * 1024},
		{"KB", 1024},
		{"B", 1},
	}

	for _, m := range multipliers {
		if strings.HasSuffix(s, m.suffix) {
			num := strings.TrimSpace(strings.TrimSuffix(s, m.suffix))
			value, err := strconv.ParseFloat(num, 64)
			if err != nil {
				return 0, fmt.Errorf("invalid size %q: %w", s, err)
			}
			if value < 0 {
				return 0, fmt.Errorf("negative size %q", s)
			}
			return int64(value * float64(m.factor)), nil
		}
	}

	value, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", s, err)
	}
	if value < 0 {
		return 0, fmt.Errorf("negative size %q", s)
	}
	return value, nil
}
