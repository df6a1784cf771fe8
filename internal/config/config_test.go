package config

import (
	"errors"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

func testdataPath(name string) string {
	_, f, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(f), "testdata", name)
}

func TestDefault_Valid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("Default().Validate: %v", err)
	}
}

func TestLoadFromPath_YAML(t *testing.T) {
	cfg, err := LoadFromPath(testdataPath("sopguard.yaml"))
	if err != nil {
		t.Fatalf("LoadFromPath: %v", err)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Errorf("logging: got %+v", cfg.Logging)
	}
	if cfg.Cleaning.NormalizeText || !cfg.Cleaning.RemoveDuplicates {
		t.Errorf("cleaning: got %+v, want only normalize_text off", cfg.Cleaning)
	}
	if cfg.ML.TargetSampleSize != 40 || cfg.ML.Contamination != 0.05 || cfg.ML.MaxClusters != 8 {
		t.Errorf("ml overrides: got %+v", cfg.ML)
	}
	// keys absent from the file keep their defaults
	if cfg.ML.MinClusters != 3 || cfg.ML.Trees != 100 || !cfg.ML.Enabled {
		t.Errorf("ml defaults lost: got %+v", cfg.ML)
	}
	if cfg.Narrative.BatchSize != 50 || cfg.Narrative.Concurrency != 4 || cfg.Narrative.RatePerSecond != 2 {
		t.Errorf("narrative: got %+v", cfg.Narrative)
	}
}

func TestLoadFromPath_JSON(t *testing.T) {
	cfg, err := LoadFromPath(testdataPath("sopguard.json"))
	if err != nil {
		t.Fatalf("LoadFromPath: %v", err)
	}
	if cfg.ML.Enabled || cfg.ML.Seed != 7 || cfg.ML.Trees != 50 {
		t.Errorf("ml: got %+v", cfg.ML)
	}
	if cfg.Narrative.BatchSize != 25 || cfg.Narrative.Concurrency != 1 {
		t.Errorf("narrative: got %+v", cfg.Narrative)
	}
}

func TestLoadFromPath_Missing(t *testing.T) {
	if _, err := LoadFromPath(testdataPath("absent.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoad_Detect(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"json", `{"ml":{"target_sample_size":12}}`},
		{"yaml", "ml:\n  target_sample_size: 12\n"},
		{"json with leading space", "\n  {\"ml\":{\"target_sample_size\":12}}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load([]byte(tt.data), "")
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if cfg.ML.TargetSampleSize != 12 {
				t.Errorf("target = %d, want 12", cfg.ML.TargetSampleSize)
			}
		})
	}
}

func TestLoad_Errors(t *testing.T) {
	if _, err := Load([]byte("x = 1"), ".toml"); !errors.Is(err, ErrUnknownFormat) {
		t.Errorf("toml: err = %v, want ErrUnknownFormat", err)
	}
	if _, err := Load([]byte(`{"ml": [}`), ".json"); err == nil {
		t.Error("malformed json: expected error")
	}
	if _, err := Load([]byte("ml: [unclosed"), ".yml"); err == nil {
		t.Error("malformed yaml: expected error")
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		EnvLogLevel:         "warn",
		EnvTargetSampleSize: " 30 ",
		EnvContamination:    "0.2",
	}
	cfg := Default()
	err := cfg.ApplyEnv(func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	})
	if err != nil {
		t.Fatalf("ApplyEnv: %v", err)
	}
	if cfg.Logging.Level != "warn" || cfg.ML.TargetSampleSize != 30 || cfg.ML.Contamination != 0.2 {
		t.Errorf("got logging %+v, ml target %d contamination %v",
			cfg.Logging, cfg.ML.TargetSampleSize, cfg.ML.Contamination)
	}

	env[EnvTargetSampleSize] = "many"
	if err := Default().ApplyEnv(func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}); err == nil || !strings.Contains(err.Error(), EnvTargetSampleSize) {
		t.Errorf("bad int: err = %v", err)
	}
}

func TestLoadFromPath_EnvWins(t *testing.T) {
	t.Setenv(EnvTargetSampleSize, "9")
	cfg, err := LoadFromPath(testdataPath("sopguard.yaml"))
	if err != nil {
		t.Fatalf("LoadFromPath: %v", err)
	}
	if cfg.ML.TargetSampleSize != 9 {
		t.Errorf("target = %d, want env value 9", cfg.ML.TargetSampleSize)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"bad level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
		{"bad format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"zero target", func(c *Config) { c.ML.TargetSampleSize = 0 }, "ml.target_sample_size"},
		{"contamination too high", func(c *Config) { c.ML.Contamination = 0.9 }, "ml.contamination"},
		{"inverted cluster range", func(c *Config) { c.ML.MinClusters = 20 }, "ml.min_clusters"},
		{"zero batch", func(c *Config) { c.Narrative.BatchSize = 0 }, "narrative.batch_size"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Validate err = %v, want mention of %q", err, tt.want)
			}
		})
	}
}

func TestAnalysis_PropagatesML(t *testing.T) {
	cfg := Default()
	cfg.ML.Seed = 9
	cfg.ML.MinRows = 20
	cfg.ML.Contamination = 0.15
	cfg.ML.Enabled = false

	a := cfg.Analysis()
	if a.EnableML {
		t.Error("EnableML should follow ml.enabled")
	}
	if a.ML.Cluster.Seed != 9 || a.ML.Anomaly.Seed != 9 {
		t.Errorf("seed not propagated: cluster %d anomaly %d", a.ML.Cluster.Seed, a.ML.Anomaly.Seed)
	}
	if a.ML.MinRows != 20 || a.ML.Cluster.MinRows != 20 || a.ML.Anomaly.MinRows != 20 {
		t.Errorf("min rows not propagated: %+v", a.ML)
	}
	if a.ML.Anomaly.Contamination != 0.15 {
		t.Errorf("contamination = %v", a.ML.Anomaly.Contamination)
	}
	if a.ML.Features.MinDF != 2 {
		t.Errorf("unexposed feature defaults lost: %+v", a.ML.Features)
	}
}
