// Package config handles tool configuration loading and management.
package config

import (
	"fmt"
	"strings"
)

// Config holds all tool settings.
type Config struct {
	Data    DataConfig    `yaml:"data"`
	Loader  LoaderConfig  `yaml:"loader"`
	Export  ExportConfig  `yaml:"export"`
	Logging LoggingConfig `yaml:"logging"`
}

// DataConfig holds asset locations.
type DataConfig struct {
	AssetPaths []string `yaml:"asset_paths"` // Directories or zip archives, later entries win
}

// LoaderConfig holds model loading settings.
type LoaderConfig struct {
	StrictBlending       bool   `yaml:"strict_blending"`
	MissingTextures      string `yaml:"missing_textures"` // fail or fallback
	MaxConcurrentFetches int    `yaml:"max_concurrent_fetches"`
	SkinProfile          int    `yaml:"skin_profile"`
}

// ExportConfig holds texture export settings.
type ExportConfig struct {
	Format    string `yaml:"format"` // png, bmp, tga or webp
	OutputDir string `yaml:"output_dir"`
	MipLevel  int    `yaml:"mip_level"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level   string `yaml:"level"`
	LogFile string `yaml:"log_file"`
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Data: DataConfig{
			AssetPaths: []string{"."},
		},
		Loader: LoaderConfig{
			StrictBlending:       false,
			MissingTextures:      "fail",
			MaxConcurrentFetches: 8,
			SkinProfile:          0,
		},
		Export: ExportConfig{
			Format:    "png",
			OutputDir: "export",
			MipLevel:  0,
		},
		Logging: LoggingConfig{
			Level:   "info",
			LogFile: "",
		},
	}
}

// Validate reports settings that cannot be used.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Loader.MissingTextures) {
	case "", "fail", "fallback":
	default:
		return fmt.Errorf("loader.missing_textures: unknown policy %q", c.Loader.MissingTextures)
	}
	if c.Loader.MaxConcurrentFetches < 0 {
		return fmt.Errorf("loader.max_concurrent_fetches: must not be negative, got %d", c.Loader.MaxConcurrentFetches)
	}
	if c.Loader.SkinProfile < 0 {
		return fmt.Errorf("loader.skin_profile: must not be negative, got %d", c.Loader.SkinProfile)
	}
	switch strings.ToLower(c.Export.Format) {
	case "png", "bmp", "tga", "webp":
	default:
		return fmt.Errorf("export.format: unknown format %q", c.Export.Format)
	}
	if c.Export.MipLevel < 0 {
		return fmt.Errorf("export.mip_level: must not be negative, got %d", c.Export.MipLevel)
	}
	return nil
}
