// Package config loads filament run configuration from YAML, an optional
// .env file and FILAMENT_* environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/chazu/filament/pkg/engine"
	"github.com/chazu/filament/pkg/pipeline"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "FILAMENT_"

var validate = validator.New()

// Config is the full run configuration.
type Config struct {
	LogLevel      string            `yaml:"log_level" validate:"oneof=debug info warn error"`
	MetricsAddr   string            `yaml:"metrics_addr"`
	ScriptTimeout time.Duration     `yaml:"script_timeout" validate:"gte=0"`
	Pipeline      pipeline.Settings `yaml:"pipeline"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		LogLevel:      "info",
		ScriptTimeout: engine.EvalTimeout,
		Pipeline:      pipeline.DefaultSettings(),
	}
}

// Load reads path on top of Default, loads the given env files (or .env
// when none are named, ignoring a missing one), applies environment
// overrides and validates the result. An empty path skips the YAML step.
func Load(path string, envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		_ = godotenv.Load()
	} else if err := godotenv.Load(envFiles...); err != nil {
		return nil, fmt.Errorf("config: load env: %w", err)
	}

	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyEnv overrides fields from FILAMENT_* variables resolved by lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	get := func(name string) (string, bool) {
		v, ok := lookup(EnvPrefix + name)
		return strings.TrimSpace(v), ok && strings.TrimSpace(v) != ""
	}

	if v, ok := get("LOG_LEVEL"); ok {
		c.LogLevel = strings.ToLower(v)
	}
	if v, ok := get("METRICS_ADDR"); ok {
		c.MetricsAddr = v
	}
	if v, ok := get("SCRIPT_TIMEOUT"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("config: %sSCRIPT_TIMEOUT: %w", EnvPrefix, err)
		}
		c.ScriptTimeout = d
	}

	p := &c.Pipeline
	ints := map[string]*int{
		"WORKERS":          &p.Workers,
		"MIN_CLUSTER_SIZE": &p.Builder.MinClusterSize,
		"MAX_CLUSTER_SIZE": &p.Builder.MaxClusterSize,
	}
	for name, dst := range ints {
		v, ok := get(name)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: %s%s: %w", EnvPrefix, name, err)
		}
		*dst = n
	}

	floats := map[string]*float64{
		"FUSE_TOLERANCE":       &p.Fuse.Tolerance,
		"POINT_EDGE_TOLERANCE": &p.PointEdge.Tolerance,
		"EDGE_EDGE_TOLERANCE":  &p.EdgeEdge.Tolerance,
	}
	for name, dst := range floats {
		v, ok := get(name)
		if !ok {
			continue
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("config: %s%s: %w", EnvPrefix, name, err)
		}
		*dst = f
	}

	bools := map[string]*bool{
		"REFINE":               &p.Refine,
		"CLOSED_LOOP":          &p.ClosedLoop,
		"CONCURRENT_INGESTION": &p.ConcurrentIngestion,
		"POINT_EDGE":           &p.PointEdge.Enabled,
		"EDGE_EDGE":            &p.EdgeEdge.Enabled,
		"REMOVE_SMALL":         &p.Builder.RemoveSmallClusters,
		"REMOVE_BIG":           &p.Builder.RemoveBigClusters,
	}
	for name, dst := range bools {
		v, ok := get(name)
		if !ok {
			continue
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("config: %s%s: %w", EnvPrefix, name, err)
		}
		*dst = b
	}
	return nil
}

// Validate checks struct tags and cross-field constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, len(verrs))
			for i, fe := range verrs {
				msgs[i] = fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag())
			}
			return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(msgs, "; "))
		}
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	b := c.Pipeline.Builder
	if b.RemoveSmallClusters && b.RemoveBigClusters && b.MinClusterSize > b.MaxClusterSize {
		return fmt.Errorf("%w: min_cluster_size %d exceeds max_cluster_size %d",
			ErrInvalid, b.MinClusterSize, b.MaxClusterSize)
	}
	f := c.Pipeline.Fuse
	if f.ComponentWise && (f.Tolerances.X < 0 || f.Tolerances.Y < 0 || f.Tolerances.Z < 0) {
		return fmt.Errorf("%w: fuse tolerances must be non-negative", ErrInvalid)
	}
	return nil
}

// SlogLevel maps LogLevel to a slog level.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
