// Package config loads sopguard settings from YAML or JSON, layered over
// documented defaults and SOPGUARD_* environment overrides.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"sopguard/internal/analysis"
	"sopguard/internal/clean"
	"sopguard/internal/logging"
	"sopguard/internal/ml"
	"sopguard/internal/narrative"
)

// ErrUnknownFormat is returned for config files that are neither YAML nor JSON.
var ErrUnknownFormat = errors.New("config: unknown format")

// Environment variables that override file values.
const (
	EnvLogLevel         = "SOPGUARD_LOG_LEVEL"
	EnvTargetSampleSize = "SOPGUARD_TARGET_SAMPLE_SIZE"
	EnvContamination    = "SOPGUARD_CONTAMINATION"
)

// Config is the complete set of tunables.
type Config struct {
	Logging   Logging          `json:"logging" yaml:"logging"`
	Cleaning  clean.Options    `json:"cleaning" yaml:"cleaning"`
	ML        ML               `json:"ml" yaml:"ml"`
	Narrative narrative.Config `json:"narrative" yaml:"narrative"`
}

type Logging struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"` // text or json
}

// ML holds the ML stage parameters.
type ML struct {
	Enabled                   bool    `json:"enabled" yaml:"enabled"`
	TargetSampleSize          int     `json:"target_sample_size" yaml:"target_sample_size"`
	Contamination             float64 `json:"contamination" yaml:"contamination"`
	MinClusters               int     `json:"min_clusters" yaml:"min_clusters"`
	MaxClusters               int     `json:"max_clusters" yaml:"max_clusters"`
	Eps                       float64 `json:"eps" yaml:"eps"`
	MinSamples                int     `json:"min_samples" yaml:"min_samples"`
	KMeansTarget              int     `json:"kmeans_target" yaml:"kmeans_target"`
	RepresentativesPerCluster int     `json:"representatives_per_cluster" yaml:"representatives_per_cluster"`
	MaxTopOfficers            int     `json:"max_top_officers" yaml:"max_top_officers"`
	MaxTopTypes               int     `json:"max_top_types" yaml:"max_top_types"`
	MaxTextFeatures           int     `json:"max_text_features" yaml:"max_text_features"`
	Trees                     int     `json:"trees" yaml:"trees"`
	Seed                      uint64  `json:"seed" yaml:"seed"`
	MinRows                   int     `json:"min_rows" yaml:"min_rows"`
}

// Default returns the documented defaults.
func Default() *Config {
	return &Config{
		Logging:  Logging{Level: "info", Format: "text"},
		Cleaning: clean.DefaultOptions(),
		ML: ML{
			Enabled:                   true,
			TargetSampleSize:          75,
			Contamination:             0.1,
			MinClusters:               3,
			MaxClusters:               15,
			Eps:                       0.5,
			MinSamples:                5,
			KMeansTarget:              10,
			RepresentativesPerCluster: 5,
			MaxTopOfficers:            20,
			MaxTopTypes:               20,
			MaxTextFeatures:           100,
			Trees:                     100,
			Seed:                      42,
			MinRows:                   10,
		},
		Narrative: narrative.DefaultConfig(),
	}
}

// LoadFromPath reads a config file (YAML or JSON) over the defaults, then
// applies environment overrides and validates. An empty path yields the
// defaults plus overrides.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if cfg, err = Load(data, filepath.Ext(path)); err != nil {
			return nil, err
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load parses config bytes over the defaults. ext is the file extension
// (".json", ".yaml", ".yml"); empty means detect from content.
func Load(data []byte, ext string) (*Config, error) {
	cfg := Default()
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		return cfg, decodeYAML(data, cfg)
	case ".json":
		return cfg, decodeJSON(data, cfg)
	case "":
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, ext)
	}
	if strings.HasPrefix(strings.TrimSpace(string(data)), "{") {
		return cfg, decodeJSON(data, cfg)
	}
	return cfg, decodeYAML(data, cfg)
}

func decodeYAML(data []byte, cfg *Config) error {
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config yaml: %w", err)
	}
	return nil
}

func decodeJSON(data []byte, cfg *Config) error {
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config json: %w", err)
	}
	return nil
}

// ApplyEnv overrides fields from the SOPGUARD_* variables found by lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		c.Logging.Level = v
	}
	if v, ok := lookup(EnvTargetSampleSize); ok && v != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s: %w", EnvTargetSampleSize, err)
		}
		c.ML.TargetSampleSize = n
	}
	if v, ok := lookup(EnvContamination); ok && v != "" {
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvContamination, err)
		}
		c.ML.Contamination = f
	}
	return nil
}

// Validate reports every out-of-range value.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}
	_, err := logging.ParseLevel(c.Logging.Level)
	check(err == nil, "logging.level: %q is not a level", c.Logging.Level)
	check(c.Logging.Format == "text" || c.Logging.Format == "json",
		"logging.format: %q must be text or json", c.Logging.Format)

	m := c.ML
	check(m.TargetSampleSize > 0, "ml.target_sample_size: must be positive, got %d", m.TargetSampleSize)
	check(m.Contamination > 0 && m.Contamination <= 0.5, "ml.contamination: must be in (0, 0.5], got %v", m.Contamination)
	check(m.MinClusters >= 1 && m.MinClusters <= m.MaxClusters,
		"ml.min_clusters/max_clusters: need 1 <= min <= max, got %d/%d", m.MinClusters, m.MaxClusters)
	check(m.Eps > 0, "ml.eps: must be positive, got %v", m.Eps)
	check(m.MinSamples >= 1, "ml.min_samples: must be at least 1, got %d", m.MinSamples)
	check(m.KMeansTarget >= 2, "ml.kmeans_target: must be at least 2, got %d", m.KMeansTarget)
	check(m.RepresentativesPerCluster >= 1, "ml.representatives_per_cluster: must be at least 1, got %d", m.RepresentativesPerCluster)
	check(m.Trees >= 1, "ml.trees: must be at least 1, got %d", m.Trees)
	check(m.MinRows >= 2, "ml.min_rows: must be at least 2, got %d", m.MinRows)
	check(m.MaxTopOfficers >= 0 && m.MaxTopTypes >= 0 && m.MaxTextFeatures >= 0,
		"ml: feature limits must not be negative")

	n := c.Narrative
	check(n.BatchSize >= 1, "narrative.batch_size: must be at least 1, got %d", n.BatchSize)
	check(n.Concurrency >= 1, "narrative.concurrency: must be at least 1, got %d", n.Concurrency)
	check(n.RatePerSecond >= 0, "narrative.rate_per_second: must not be negative, got %v", n.RatePerSecond)

	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// MLPipeline returns the ML stage configuration.
func (c *Config) MLPipeline() ml.Config {
	m := c.ML
	p := ml.DefaultConfig()
	p.MinRows = m.MinRows
	p.RepresentativesPerCluster = m.RepresentativesPerCluster
	p.TargetSampleSize = m.TargetSampleSize

	p.Features.MaxTextFeatures = m.MaxTextFeatures
	p.Features.MaxTopTypes = m.MaxTopTypes
	p.Features.MaxTopOfficers = m.MaxTopOfficers

	p.Cluster.MinRows = m.MinRows
	p.Cluster.MinClusters = m.MinClusters
	p.Cluster.MaxClusters = m.MaxClusters
	p.Cluster.Eps = m.Eps
	p.Cluster.MinSamples = m.MinSamples
	p.Cluster.KMeansTarget = m.KMeansTarget
	p.Cluster.Seed = m.Seed

	p.Anomaly.MinRows = m.MinRows
	p.Anomaly.Contamination = m.Contamination
	p.Anomaly.Trees = m.Trees
	p.Anomaly.Seed = m.Seed
	return p
}

// Analysis returns the end-to-end run configuration.
func (c *Config) Analysis() analysis.Config {
	return analysis.Config{
		Cleaning: c.Cleaning,
		EnableML: c.ML.Enabled,
		ML:       c.MLPipeline(),
	}
}
