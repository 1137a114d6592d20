// Package config provides configuration management for filament using Viper
// for flexible configuration loading from files, environment variables, and
// command-line flags.
//
// The configuration system supports YAML files and environment variable
// overrides with the FILAMENT_ prefix. It manages the project source layout,
// the transpile cache location, watch-mode behavior, and the optional
// type-check worker.
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Project   ProjectConfig   `yaml:"project"`
	Cache     CacheConfig     `yaml:"cache"`
	Watch     WatchConfig     `yaml:"watch"`
	TypeCheck TypeCheckConfig `yaml:"typecheck"`
	Log       LogConfig       `yaml:"log"`
}

type ProjectConfig struct {
	// Root is the source root all relative identifiers are computed against.
	Root string `yaml:"root"`
	// Entry is the project entry point, relative to Root.
	Entry string `yaml:"entry"`
	// Extensions lists the source extensions the engine tracks, in probe order.
	Extensions []string `yaml:"extensions"`
	// Aliases maps import-path prefixes to directories relative to Root
	// (e.g. "@app" -> "src").
	Aliases map[string]string `yaml:"aliases"`
	// RouteDirs and ControllerDirs classify files for reload strategy.
	RouteDirs      []string `yaml:"route_dirs"`
	ControllerDirs []string `yaml:"controller_dirs"`
	// ConfigPatterns are base-name globs treated as config files.
	ConfigPatterns []string `yaml:"config_patterns"`
}

type CacheConfig struct {
	Dir            string `yaml:"dir"`
	Manifest       string `yaml:"manifest"`
	Workers        int    `yaml:"workers"`
	ParseCacheSize int    `yaml:"parse_cache_size"`
}

type WatchConfig struct {
	Debounce time.Duration `yaml:"debounce"`
	Ignore   []string      `yaml:"ignore"`
}

type TypeCheckConfig struct {
	Enabled bool     `yaml:"enabled"`
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func Load() (*Config, error) {
	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	// Apply defaults for the project layout only if not explicitly set
	if config.Project.Root == "" {
		config.Project.Root = "src"
	}
	if config.Project.Entry == "" {
		config.Project.Entry = "index.ts"
	}
	if len(config.Project.Extensions) == 0 {
		config.Project.Extensions = []string{".ts", ".tsx", ".js", ".jsx"}
	}
	if len(config.Project.RouteDirs) == 0 {
		config.Project.RouteDirs = []string{"routes"}
	}
	if len(config.Project.ControllerDirs) == 0 {
		config.Project.ControllerDirs = []string{"controllers"}
	}
	if len(config.Project.ConfigPatterns) == 0 {
		config.Project.ConfigPatterns = []string{"*.config.*", "config.*"}
	}

	// Handle aliases set via viper (workaround for viper map handling)
	if viper.IsSet("project.aliases") && len(config.Project.Aliases) == 0 {
		config.Project.Aliases = viper.GetStringMapString("project.aliases")
	}

	// Apply default values for CacheConfig if not set
	if config.Cache.Dir == "" {
		config.Cache.Dir = ".filament/cache"
	}
	if config.Cache.Manifest == "" {
		config.Cache.Manifest = ".filament/manifest.json"
	}
	if config.Cache.Workers <= 0 {
		config.Cache.Workers = 8
	}
	if config.Cache.ParseCacheSize <= 0 {
		config.Cache.ParseCacheSize = 1024
	}

	// Apply default values for WatchConfig if not set
	if config.Watch.Debounce <= 0 {
		config.Watch.Debounce = 100 * time.Millisecond
	}
	if len(config.Watch.Ignore) == 0 {
		config.Watch.Ignore = []string{"node_modules", ".git", ".filament"}
	}

	// Apply default values for TypeCheckConfig if not set
	if config.TypeCheck.Command == "" {
		config.TypeCheck.Command = "tsc"
	}
	if len(config.TypeCheck.Args) == 0 {
		config.TypeCheck.Args = []string{"--noEmit"}
	}
	if viper.IsSet("typecheck.enabled") {
		config.TypeCheck.Enabled = viper.GetBool("typecheck.enabled")
	}

	if config.Log.Level == "" {
		config.Log.Level = viper.GetString("log-level")
	}
	if config.Log.Level == "" {
		config.Log.Level = "info"
	}
	if config.Log.Format == "" {
		config.Log.Format = "text"
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate checks the configuration for values the engine cannot work with.
func (c *Config) Validate() error {
	if filepath.IsAbs(c.Cache.Dir) && strings.HasPrefix(c.Project.Root, c.Cache.Dir) {
		return fmt.Errorf("cache dir %q must not contain the project root", c.Cache.Dir)
	}
	for _, ext := range c.Project.Extensions {
		if !strings.HasPrefix(ext, ".") {
			return fmt.Errorf("extension %q must start with a dot", ext)
		}
	}
	for alias, target := range c.Project.Aliases {
		if alias == "" || alias == "." || alias == ".." {
			return fmt.Errorf("invalid alias %q", alias)
		}
		if filepath.IsAbs(target) {
			return fmt.Errorf("alias %q must map to a directory relative to the project root", alias)
		}
	}
	return nil
}

// Default returns the configuration used when no config file is present,
// and is also what `filament init` writes out.
func Default() *Config {
	return &Config{
		Project: ProjectConfig{
			Root:           "src",
			Entry:          "index.ts",
			Extensions:     []string{".ts", ".tsx", ".js", ".jsx"},
			RouteDirs:      []string{"routes"},
			ControllerDirs: []string{"controllers"},
			ConfigPatterns: []string{"*.config.*", "config.*"},
		},
		Cache: CacheConfig{
			Dir:            ".filament/cache",
			Manifest:       ".filament/manifest.json",
			Workers:        8,
			ParseCacheSize: 1024,
		},
		Watch: WatchConfig{
			Debounce: 100 * time.Millisecond,
			Ignore:   []string{"node_modules", ".git", ".filament"},
		},
		TypeCheck: TypeCheckConfig{
			Command: "tsc",
			Args:    []string{"--noEmit"},
		},
		Log: LogConfig{Level: "info", Format: "text"},
	}
}
