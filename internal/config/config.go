// Package config handles configuration loading for the scattergl server.
package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

// Config represents the server configuration.
type Config struct {
	Server ServerConfig `yaml:"server"`
	Data   DataConfig   `yaml:"data"`
	Cache  CacheConfig  `yaml:"cache"`
	Render RenderConfig `yaml:"render"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port        int      `yaml:"port"`
	CORSOrigins []string `yaml:"cors_origins"`
}

// DataConfig contains tile source settings.
type DataConfig struct {
	BaseURL       string `yaml:"base_url"`
	DefaultColumn string `yaml:"default_column"`
	MaxConcurrent int    `yaml:"max_concurrent"`
}

// CacheConfig contains caching settings.
type CacheConfig struct {
	TileBytesMB    int `yaml:"tile_bytes_mb"`
	FrameCacheSize int `yaml:"frame_cache_size"`
}

// RenderConfig contains rendering settings.
type RenderConfig struct {
	Width           int     `yaml:"width"`
	Height          int     `yaml:"height"`
	PointSize       float64 `yaml:"point_size"`
	DefaultColormap string  `yaml:"default_colormap"`
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		// Return default config if file doesn't exist
		return DefaultConfig(), nil
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	// Apply defaults for missing values
	applyDefaults(&cfg)

	return &cfg, nil
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:        8080,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
		},
		Data: DataConfig{
			BaseURL:       "http://localhost:9000/tiles",
			MaxConcurrent: 8,
		},
		Cache: CacheConfig{
			TileBytesMB:    256,
			FrameCacheSize: 64,
		},
		Render: RenderConfig{
			Width:           800,
			Height:          600,
			PointSize:       1.5,
			DefaultColormap: "viridis",
		},
	}
}

func applyDefaults(cfg *Config) {
	defaults := DefaultConfig()

	if cfg.Server.Port == 0 {
		cfg.Server.Port = defaults.Server.Port
	}
	if len(cfg.Server.CORSOrigins) == 0 {
		cfg.Server.CORSOrigins = defaults.Server.CORSOrigins
	}
	if cfg.Data.BaseURL == "" {
		cfg.Data.BaseURL = defaults.Data.BaseURL
	}
	if cfg.Data.MaxConcurrent == 0 {
		cfg.Data.MaxConcurrent = defaults.Data.MaxConcurrent
	}
	if cfg.Cache.TileBytesMB == 0 {
		cfg.Cache.TileBytesMB = defaults.Cache.TileBytesMB
	}
	if cfg.Cache.FrameCacheSize == 0 {
		cfg.Cache.FrameCacheSize = defaults.Cache.FrameCacheSize
	}
	if cfg.Render.Width == 0 {
		cfg.Render.Width = defaults.Render.Width
	}
	if cfg.Render.Height == 0 {
		cfg.Render.Height = defaults.Render.Height
	}
	if cfg.Render.PointSize == 0 {
		cfg.Render.PointSize = defaults.Render.PointSize
	}
	if cfg.Render.DefaultColormap == "" {
		cfg.Render.DefaultColormap = defaults.Render.DefaultColormap
	}
}
