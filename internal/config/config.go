// Package config provides YAML-based configuration for the pull plotter server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/datalog-plotter/backend/internal/logger"
	"github.com/datalog-plotter/backend/internal/models"
	"github.com/datalog-plotter/backend/internal/pulls"
	"gopkg.in/yaml.v3"
)

// DefaultConfigPath is used when no --config flag is given.
const DefaultConfigPath = "datalog-plotter.yaml"

// AppConfig represents the root configuration structure
type AppConfig struct {
	Server       ServerConfig       `yaml:"server"`
	Storage      StorageConfig      `yaml:"storage"`
	Processing   ProcessingConfig   `yaml:"processing"`
	Security     SecurityConfig     `yaml:"security"`
	Segmentation SegmentationConfig `yaml:"segmentation"`
	Logging      logger.Config      `yaml:"logging"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Port                 int    `yaml:"port"`
	BindAddress          string `yaml:"bind_address"`
	EnableCORS           bool   `yaml:"enable_cors"`
	AllowOrigins         string `yaml:"allow_origins"`
	ReadTimeout          int    `yaml:"read_timeout_seconds"`
	WriteTimeout         int    `yaml:"write_timeout_seconds"`
	IdleTimeout          int    `yaml:"idle_timeout_seconds"`
	BodyLimit            string `yaml:"body_limit"`
	EnableRequestLogging bool   `yaml:"enable_request_logging"`
}

// StorageConfig contains file storage settings
type StorageConfig struct {
	DataDirectory       string `yaml:"data_directory"`
	UploadsDirectory    string `yaml:"uploads_directory"`
	ParsedDataDirectory string `yaml:"parsed_data_directory"`
	EnablePersistence   bool   `yaml:"enable_persistence"`
}

// ProcessingConfig contains session and response settings
type ProcessingConfig struct {
	SessionTimeoutMinutes  int  `yaml:"session_timeout_minutes"`
	CleanupIntervalMinutes int  `yaml:"cleanup_interval_minutes"`
	EnableCompression      bool `yaml:"enable_compression"`
	CompressionLevel       int  `yaml:"compression_level"`
}

// SecurityConfig contains security settings
type SecurityConfig struct {
	AllowFileDeletion bool `yaml:"allow_file_deletion"`
}

// SegmentationConfig holds default thresholds and the ranges requests are
// clamped into.
type SegmentationConfig struct {
	Defaults models.Thresholds `yaml:"defaults"`
	Bounds   pulls.Bounds      `yaml:"bounds"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *AppConfig {
	return &AppConfig{
		Server: ServerConfig{
			Port:                 8089,
			BindAddress:          "0.0.0.0",
			EnableCORS:           true,
			AllowOrigins:         "*",
			ReadTimeout:          30,
			WriteTimeout:         30,
			IdleTimeout:          120,
			BodyLimit:            "256M",
			EnableRequestLogging: true,
		},
		Storage: StorageConfig{
			DataDirectory:       "./data",
			UploadsDirectory:    "./data/uploads",
			ParsedDataDirectory: "./data/parsed",
			EnablePersistence:   true,
		},
		Processing: ProcessingConfig{
			SessionTimeoutMinutes:  30,
			CleanupIntervalMinutes: 5,
			EnableCompression:      true,
			CompressionLevel:       5,
		},
		Security: SecurityConfig{
			AllowFileDeletion: true,
		},
		Segmentation: SegmentationConfig{
			Defaults: pulls.DefaultThresholds(),
			Bounds:   pulls.DefaultBounds(),
		},
		Logging: logger.Config{
			Level:      "info",
			MaxSize:    50,
			MaxBackups: 3,
			MaxAge:     14,
		},
	}
}

// LoadConfig loads configuration from a YAML file, creating it with
// defaults when it does not exist. Missing keys keep their defaults.
func LoadConfig(configPath string) (*AppConfig, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := cfg.Save(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
	} else {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.ApplyEnvironmentOverrides()
	cfg.resolvePaths(filepath.Dir(configPath))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save saves the configuration to a YAML file
func (c *AppConfig) Save(configPath string) error {
	output, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte("# Datalog Pull Plotter configuration\n# This file is auto-generated on first run\n\n")
	if err := os.WriteFile(configPath, append(header, output...), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate rejects inverted threshold ranges and out-of-range defaults.
func (c *AppConfig) Validate() error {
	b := c.Segmentation.Bounds
	if b.MinThrottle > b.MaxThrottle {
		return fmt.Errorf("segmentation.bounds: min_throttle %v > max_throttle %v", b.MinThrottle, b.MaxThrottle)
	}
	if b.MinTimeFilter > b.MaxTimeFilter {
		return fmt.Errorf("segmentation.bounds: min_time_filter %v > max_time_filter %v", b.MinTimeFilter, b.MaxTimeFilter)
	}
	if d := c.Segmentation.Defaults; pulls.Clamp(d, b) != d {
		return fmt.Errorf("segmentation.defaults %+v outside bounds", d)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	return nil
}

// ApplyEnvironmentOverrides lets PORT, DATA_DIR and LOG_LEVEL override config values.
func (c *AppConfig) ApplyEnvironmentOverrides() {
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Server.Port = p
		}
	}

	if dataDir := os.Getenv("DATA_DIR"); dataDir != "" {
		c.Storage.DataDirectory = dataDir
		c.Storage.UploadsDirectory = filepath.Join(dataDir, "uploads")
		c.Storage.ParsedDataDirectory = filepath.Join(dataDir, "parsed")
	}

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
}

// resolvePaths converts relative paths to absolute based on config file location
func (c *AppConfig) resolvePaths(configDir string) {
	for _, p := range []*string{
		&c.Storage.DataDirectory,
		&c.Storage.UploadsDirectory,
		&c.Storage.ParsedDataDirectory,
	} {
		if !filepath.IsAbs(*p) {
			*p = filepath.Join(configDir, *p)
		}
	}
	if c.Logging.Path != "" && !filepath.IsAbs(c.Logging.Path) {
		c.Logging.Path = filepath.Join(configDir, c.Logging.Path)
	}
}

// GetServerAddr returns the server bind address
func (c *AppConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.BindAddress, c.Server.Port)
}

// EnsureDirectories creates all necessary directories
func (c *AppConfig) EnsureDirectories() error {
	dirs := []string{
		c.Storage.DataDirectory,
		c.Storage.UploadsDirectory,
		c.Storage.ParsedDataDirectory,
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}
