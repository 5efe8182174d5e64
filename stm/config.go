package stm

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config holds the controller's tunables: backend request timeouts,
// rate limits, and the profiling cache's sizing. Loaded from YAML and
// validated with struct tags before use.
type Config struct {
	// RequestTimeout bounds every individual backend request.
	RequestTimeout time.Duration `yaml:"request_timeout" validate:"required,gt=0"`

	// InterruptRate caps how often the controller will forward
	// interrupt() calls to the backend, guarding against a runaway
	// editor sending interrupts faster than the backend can process
	// cancellation.
	InterruptRate float64 `yaml:"interrupt_rate" validate:"required,gt=0"`

	// PrefetchRate caps how eagerly the controller advances the
	// command-source iterator ahead of the sentence it is currently
	// submitting.
	PrefetchRate float64 `yaml:"prefetch_rate" validate:"required,gt=0"`

	// ProfilingCacheSize sets the Badger memtable size, in bytes, of the
	// in-memory ltac-prof result cache; it does not cap the cache's
	// total size. This is a process-lifetime cache only, never written
	// to disk.
	ProfilingCacheSize int64 `yaml:"profiling_cache_size" validate:"required,gt=0"`

	// Verbose is the default passed to add-command when the caller
	// doesn't specify one.
	Verbose bool `yaml:"verbose"`
}

// DefaultConfig returns the controller's out-of-the-box tunables.
func DefaultConfig() Config {
	return Config{
		RequestTimeout:     10 * time.Second,
		InterruptRate:      2,
		PrefetchRate:       5,
		ProfilingCacheSize: 16 << 20, // 16MiB
		Verbose:            false,
	}
}

// LoadConfig reads and validates a YAML config file. It does not fall
// back to DefaultConfig: any field absent from the file keeps its zero
// value, so callers should start from
// DefaultConfig and unmarshal on top of it when partial overrides are
// wanted (see LoadConfigOverlay).
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("stm: read config %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("stm: parse config %s: %w", path, err)
	}

	if err := ValidateConfig(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadConfigOverlay reads path and overlays its fields onto base,
// leaving any field not present in the file at base's value.
func LoadConfigOverlay(path string, base Config) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("stm: read config %s: %w", path, err)
	}
	cfg := base
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("stm: parse config %s: %w", path, err)
	}
	if err := ValidateConfig(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

var configValidator = validator.New()

// ValidateConfig checks cfg's struct tags and returns a descriptive
// error on the first violation.
func ValidateConfig(cfg Config) error {
	if err := configValidator.Struct(cfg); err != nil {
		return fmt.Errorf("stm: invalid config: %w", err)
	}
	return nil
}
