// Package config loads the regulus service configuration from a YAML file,
// applies REGULUS_* environment overrides and hot-reloads it on change.
package config

import (
	"log/slog"
	"os"
	"runtime"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/madddiyarn/regulus/internal/conjunction"
	"github.com/madddiyarn/regulus/internal/errors"
)

// Config is the full service configuration.
type Config struct {
	Server    ServerConfig           `yaml:"server"`
	Catalog   CatalogConfig          `yaml:"catalog"`
	Store     StoreConfig            `yaml:"store"`
	Detection DetectionConfig        `yaml:"detection"`
	Risk      conjunction.Boundaries `yaml:"risk"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	// DetectTimeout bounds one detection request.
	DetectTimeout time.Duration `yaml:"detect_timeout"`
	// TrustProxy takes client addresses for request logs from proxy
	// headers. Enable only behind a trusted reverse proxy.
	TrustProxy bool `yaml:"trust_proxy"`
	// MaxDetections caps concurrent detection requests, in total and per
	// client address. 0 is unlimited.
	MaxDetections          int `yaml:"max_detections"`
	MaxDetectionsPerClient int `yaml:"max_detections_per_client"`
}

type CatalogConfig struct {
	// SpoolDir is where the ingestion pipeline drops tle_<unix>.txt files.
	SpoolDir       string        `yaml:"spool_dir"`
	ReloadInterval time.Duration `yaml:"reload_interval"`
}

type StoreConfig struct {
	Path string `yaml:"path"`
	// ExpireAfter is how long past its TCA an ACTIVE event is kept before
	// the sweep marks it EXPIRED. 0 disables the sweep.
	ExpireAfter   time.Duration `yaml:"expire_after"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

type DetectionConfig struct {
	Samples             int           `yaml:"samples"`
	RefineIterations    int           `yaml:"refine_iterations"`
	Workers             int           `yaml:"workers"`
	DefaultHorizonHours float64       `yaml:"default_horizon_hours"`
	MaxHorizonHours     float64       `yaml:"max_horizon_hours"`
	DefaultThresholdKm  float64       `yaml:"default_threshold_km"`
	StaleAfter          time.Duration `yaml:"stale_after"`
	MinWorkingSet       int           `yaml:"min_working_set"`
	RunKeyResolution    time.Duration `yaml:"run_key_resolution"`
	SourceTag           string        `yaml:"source_tag"`
}

// Default returns the configuration used when no file is given. A file is
// decoded over it, so keys the file omits keep these values and keys it sets,
// zero included, replace them.
func Default() *Config {
	def := conjunction.DefaultConfig()
	return &Config{
		Server: ServerConfig{
			Addr:                   ":8080",
			ShutdownTimeout:        5 * time.Second,
			DetectTimeout:          2 * time.Minute,
			MaxDetections:          8,
			MaxDetectionsPerClient: 2,
		},
		Catalog: CatalogConfig{
			SpoolDir:       "/var/lib/regulus/spool",
			ReloadInterval: time.Minute,
		},
		Store: StoreConfig{
			Path:          "/var/lib/regulus/regulus.db",
			SweepInterval: 10 * time.Minute,
		},
		Detection: DetectionConfig{
			Samples:             def.Samples,
			RefineIterations:    def.RefineIterations,
			Workers:             runtime.NumCPU(),
			DefaultHorizonHours: def.DefaultHorizonHours,
			MaxHorizonHours:     def.MaxHorizonHours,
			DefaultThresholdKm:  def.DefaultThresholdKm,
			StaleAfter:          def.StaleAfter,
			MinWorkingSet:       def.MinWorkingSet,
			RunKeyResolution:    def.RunKeyResolution,
			SourceTag:           def.SourceTag,
		},
		Risk: def.Risk,
	}
}

// Conjunction maps the detection and risk sections onto detector settings.
func (c *Config) Conjunction() conjunction.Config {
	d := c.Detection
	return conjunction.Config{
		Samples:             d.Samples,
		RefineIterations:    d.RefineIterations,
		Workers:             d.Workers,
		DefaultHorizonHours: d.DefaultHorizonHours,
		MaxHorizonHours:     d.MaxHorizonHours,
		DefaultThresholdKm:  d.DefaultThresholdKm,
		StaleAfter:          d.StaleAfter,
		MinWorkingSet:       d.MinWorkingSet,
		RunKeyResolution:    d.RunKeyResolution,
		SourceTag:           d.SourceTag,
		Risk:                c.Risk,
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch {
	case c.Server.Addr == "":
		return errors.InvalidArgumentf("server.addr is required")
	case c.Server.ShutdownTimeout < 0:
		return errors.InvalidArgumentf("server.shutdown_timeout must not be negative")
	case c.Server.DetectTimeout < 0:
		return errors.InvalidArgumentf("server.detect_timeout must not be negative")
	case c.Server.MaxDetections < 0 || c.Server.MaxDetectionsPerClient < 0:
		return errors.InvalidArgumentf("server detection limits must not be negative")
	case c.Catalog.SpoolDir == "":
		return errors.InvalidArgumentf("catalog.spool_dir is required")
	case c.Catalog.ReloadInterval < time.Second:
		return errors.InvalidArgumentf("catalog.reload_interval must be at least 1s, got %s", c.Catalog.ReloadInterval)
	case c.Store.Path == "":
		return errors.InvalidArgumentf("store.path is required")
	case c.Store.ExpireAfter < 0:
		return errors.InvalidArgumentf("store.expire_after must not be negative")
	case c.Store.SweepInterval < time.Second:
		return errors.InvalidArgumentf("store.sweep_interval must be at least 1s, got %s", c.Store.SweepInterval)
	}
	if err := c.Conjunction().Validate(); err != nil {
		return errors.Wrap(err, "detection")
	}
	return nil
}

// Load reads path, or starts from defaults when path is empty, then applies
// environment overrides and validates the result.
func Load(path string, logger *slog.Logger) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "read config %s", path)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.Mark(errors.Wrapf(err, "parse config %s", path), errors.ErrInvalidArgument)
		}
	}
	applyEnv(cfg, logger)
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrapf(err, "config %s", path)
	}
	return cfg, nil
}

// applyEnv overrides settings from REGULUS_* variables. Invalid values are
// logged and ignored.
func applyEnv(cfg *Config, logger *slog.Logger) {
	if v := os.Getenv("REGULUS_HTTP_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("REGULUS_SPOOL_DIR"); v != "" {
		cfg.Catalog.SpoolDir = v
	}
	if v := os.Getenv("REGULUS_DB_PATH"); v != "" {
		cfg.Store.Path = v
	}
	if v := os.Getenv("REGULUS_SOURCE_TAG"); v != "" {
		cfg.Detection.SourceTag = v
	}

	if v := os.Getenv("REGULUS_TRUST_PROXY"); v != "" {
		trust, err := strconv.ParseBool(v)
		if err != nil {
			logger.Warn("invalid REGULUS_TRUST_PROXY value, keeping configured value", "value", v, "current", cfg.Server.TrustProxy)
		} else {
			cfg.Server.TrustProxy = trust
		}
	}

	envInt(logger, "REGULUS_WORKERS", &cfg.Detection.Workers)
	envInt(logger, "REGULUS_SAMPLES", &cfg.Detection.Samples)
	envFloat(logger, "REGULUS_DEFAULT_HORIZON_HOURS", &cfg.Detection.DefaultHorizonHours)
	envFloat(logger, "REGULUS_DEFAULT_THRESHOLD_KM", &cfg.Detection.DefaultThresholdKm)
	envSeconds(logger, "REGULUS_STALE_AFTER", &cfg.Detection.StaleAfter)
	envSeconds(logger, "REGULUS_CATALOG_RELOAD_INTERVAL", &cfg.Catalog.ReloadInterval)
	envSeconds(logger, "REGULUS_DETECT_TIMEOUT", &cfg.Server.DetectTimeout)
}

func envInt(logger *slog.Logger, name string, dst *int) {
	v := os.Getenv(name)
	if v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		logger.Warn("invalid "+name+" value, keeping configured value", "value", v, "current", *dst)
		return
	}
	*dst = n
}

func envFloat(logger *slog.Logger, name string, dst *float64) {
	v := os.Getenv(name)
	if v == "" {
		return
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || !(f > 0) {
		logger.Warn("invalid "+name+" value, keeping configured value", "value", v, "current", *dst)
		return
	}
	*dst = f
}

// envSeconds reads a whole number of seconds.
func envSeconds(logger *slog.Logger, name string, dst *time.Duration) {
	v := os.Getenv(name)
	if v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		logger.Warn("invalid "+name+" value, keeping configured value", "value", v, "current_seconds", dst.Seconds())
		return
	}
	*dst = time.Duration(n) * time.Second
}
