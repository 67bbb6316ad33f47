// Package config provides configuration loading and management for scanmesh.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Loading parameters
	Loading struct {
		// Workers bounds the number of slice files read concurrently
		Workers int `yaml:"workers"`

		// MaxSlices caps image series length; longer series are subsampled by stride
		MaxSlices int `yaml:"maxSlices"`

		// MaxDICOMSlices caps DICOM series length
		MaxDICOMSlices int `yaml:"maxDicomSlices"`

		// TargetSize is the maximum bounding dimension of a single image
		TargetSize int `yaml:"targetSize"`

		// PseudoSlices is the (odd) number of synthetic planes built from a single image
		PseudoSlices int `yaml:"pseudoSlices"`
	} `yaml:"loading"`

	// Segmentation parameters
	Segmentation struct {
		// Method is one of otsu, threshold or region_growing
		Method string `yaml:"method"`

		// Tolerance is the intensity window used by region growing
		Tolerance float64 `yaml:"tolerance"`

		// MinComponentSize drops connected components smaller than this many voxels
		MinComponentSize int `yaml:"minComponentSize"`
	} `yaml:"segmentation"`

	// Surface extraction parameters
	Surface struct {
		// Sigma is the Gaussian pre-smoothing strength applied to the mask
		Sigma float64 `yaml:"sigma"`

		// Step is the marching cubes grid step; larger is faster and coarser
		Step int `yaml:"step"`
	} `yaml:"surface"`

	// Mesh post-processing parameters
	Mesh struct {
		// Simplify is the decimation target reduction in [0,1)
		Simplify float64 `yaml:"simplify"`

		// SmoothIterations is the number of Laplacian passes
		SmoothIterations int `yaml:"smoothIterations"`

		// Relaxation is the Laplacian relaxation factor
		Relaxation float64 `yaml:"relaxation"`
	} `yaml:"mesh"`

	// Output parameters
	Output struct {
		// Format is stl, stl-ascii or obj
		Format string `yaml:"format"`

		// SaveIntermediaryResults determines whether to save intermediary processing results
		SaveIntermediaryResults bool `yaml:"saveIntermediaryResults"`

		// IntermediaryDir is where intermediary results are written
		IntermediaryDir string `yaml:"intermediaryDir"`

		// Verbose controls the level of logging output
		Verbose bool `yaml:"verbose"`
	} `yaml:"output"`

	// Server parameters
	Server struct {
		// Addr is the listen address of the REST API
		Addr string `yaml:"addr"`

		// Release runs gin in release mode
		Release bool `yaml:"release"`

		// UploadDir stores uploaded inputs
		UploadDir string `yaml:"uploadDir"`

		// OutputDir stores generated models
		OutputDir string `yaml:"outputDir"`

		// RedisAddress enables cross-instance output locks when set
		RedisAddress string `yaml:"redisAddress"`

		// RedisMaxConnections sizes the Redis pool
		RedisMaxConnections int `yaml:"redisMaxConnections"`

		// SentryDSN enables error reporting when set
		SentryDSN string `yaml:"sentryDsn"`
	} `yaml:"server"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Loading.Workers = 8
	cfg.Loading.MaxSlices = 150
	cfg.Loading.MaxDICOMSlices = 200
	cfg.Loading.TargetSize = 256
	cfg.Loading.PseudoSlices = 15

	cfg.Segmentation.Method = "otsu"
	cfg.Segmentation.Tolerance = 50
	cfg.Segmentation.MinComponentSize = 500

	cfg.Surface.Sigma = 0.5
	cfg.Surface.Step = 2

	cfg.Mesh.Simplify = 0.3
	cfg.Mesh.SmoothIterations = 20
	cfg.Mesh.Relaxation = 0.15

	cfg.Output.Format = "stl"
	cfg.Output.SaveIntermediaryResults = false
	cfg.Output.IntermediaryDir = "intermediary_results"
	cfg.Output.Verbose = true

	cfg.Server.Addr = ":5001"
	cfg.Server.UploadDir = "uploads"
	cfg.Server.OutputDir = "outputs"
	cfg.Server.RedisMaxConnections = 10

	return cfg
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if configPath == "" {
		return cfg, nil
	}

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks value ranges that would otherwise fail deep in the pipeline
func (c *Config) Validate() error {
	if c.Loading.Workers < 1 {
		return fmt.Errorf("loading.workers must be at least 1, got %d", c.Loading.Workers)
	}
	if c.Loading.PseudoSlices < 1 || c.Loading.PseudoSlices%2 == 0 {
		return fmt.Errorf("loading.pseudoSlices must be a positive odd number, got %d", c.Loading.PseudoSlices)
	}
	if c.Surface.Step < 1 {
		return fmt.Errorf("surface.step must be at least 1, got %d", c.Surface.Step)
	}
	if c.Mesh.Simplify < 0 || c.Mesh.Simplify >= 1 {
		return fmt.Errorf("mesh.simplify must be in [0,1), got %g", c.Mesh.Simplify)
	}
	if c.Mesh.SmoothIterations < 0 {
		return fmt.Errorf("mesh.smoothIterations must not be negative, got %d", c.Mesh.SmoothIterations)
	}
	switch c.Segmentation.Method {
	case "otsu", "threshold", "region_growing":
	default:
		return fmt.Errorf("unknown segmentation.method %q", c.Segmentation.Method)
	}
	return nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}
