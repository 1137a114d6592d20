// Package cmd provides the command-line interface for filament with
// configuration management supporting multiple configuration sources.
//
// Configuration System:
//
//	The CLI supports flexible configuration with clear precedence:
//	1. Command-line flags (--config, --log-level, etc.) - highest priority
//	2. FILAMENT_CONFIG_FILE environment variable - custom config file path
//	3. Individual environment variables (FILAMENT_PROJECT_ROOT, etc.)
//	4. Configuration files (.filament.yml) - lowest priority
//
// Environment Variables:
//
//	FILAMENT_CONFIG_FILE: Path to custom configuration file
//	FILAMENT_PROJECT_ROOT: Override the project source root
//	FILAMENT_CACHE_DIR: Override the compile cache directory
//	And more following the FILAMENT_<SECTION>_<OPTION> pattern
package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/filament-dev/filament/internal/config"
	"github.com/filament-dev/filament/internal/logging"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "filament",
	Short: "An incremental compile cache and dependency graph for dev servers",
	Long: `Filament keeps a development server's source tree compiled. It tracks
every file the project imports, transpiles changed files into a flat
on-disk cache, rewrites imports to versioned cache references, and tells
the server whether a change needs a hot swap or a restart.

Key Features:
  • Content-hash change detection with a persistent manifest
  • Two-phase batch compilation that tolerates import cycles
  • Versioned import rewriting for cache busting
  • Watch mode with debounced, deduplicated change batches
  • Optional out-of-process type checking

Quick Start:
  filament init                   Initialize a new project config
  filament build                  Compile the whole project
  filament serve                  Watch, recompile and serve the cache
  filament graph                  Inspect the dependency graph

Command Aliases (for faster typing):
  build (b), serve (s), graph (g), clean (c)`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)
	registerGlobalFlags(rootCmd.PersistentFlags())
}

// registerGlobalFlags declares the flags every subcommand inherits and
// binds them into viper so they participate in config precedence.
func registerGlobalFlags(flags *pflag.FlagSet) {
	flags.StringVar(&cfgFile, "config", "", "config file (default is .filament.yml, can also use FILAMENT_CONFIG_FILE env var)")
	flags.StringP("log-level", "l", "info", "log level (debug, info, warn, error)")
	flags.String("log-format", "text", "log format (text, json)")
	viper.BindPFlag("log-level", flags.Lookup("log-level"))
	viper.BindPFlag("log-format", flags.Lookup("log-format"))
}

// initConfig initializes the configuration system.
//
// Configuration Loading Priority (highest to lowest):
//  1. --config flag: Explicitly specified config file path
//  2. FILAMENT_CONFIG_FILE environment variable: Custom config file path
//  3. Default: .filament.yml in current directory
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if envConfigFile := os.Getenv("FILAMENT_CONFIG_FILE"); envConfigFile != "" {
		viper.SetConfigFile(envConfigFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".filament")
	}

	viper.SetEnvPrefix("FILAMENT")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// A missing or malformed config file degrades to defaults without
	// failing.
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// newLogger builds the logger every command shares, honoring the
// persistent log flags.
func newLogger(cfg *config.Config) *logging.FilamentLogger {
	format := cfg.Log.Format
	if f := viper.GetString("log-format"); f != "" {
		format = f
	}
	return logging.NewLogger(&logging.LoggerConfig{
		Level:  logging.ParseLevel(cfg.Log.Level),
		Format: format,
		Output: os.Stderr,
	})
}
