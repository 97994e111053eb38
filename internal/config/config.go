// Package config handles configuration loading and validation for trigrep.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/spf13/viper"
)

// Config represents the complete trigrep configuration.
type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	Indexing IndexingConfig `mapstructure:"indexing"`
	Ignore   []string       `mapstructure:"ignore"`
}

// DatabaseConfig configures the SQLite snapshot database.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// IndexingConfig configures the indexing process.
type IndexingConfig struct {
	ChunkSize          int  `mapstructure:"chunk_size"`
	MaxFileSize        int  `mapstructure:"max_file_size"`
	MaxFileCount       int  `mapstructure:"max_file_count"`
	ProgressIntervalMS int  `mapstructure:"progress_interval_ms"`
	IncludeHidden      bool `mapstructure:"include_hidden"`
	UseGitignore       bool `mapstructure:"use_gitignore"`
}

// Global configuration instance
var cfg *Config

// Get returns the current configuration.
func Get() *Config {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return cfg
}

// DefaultConfig returns a configuration with default values.
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path: DefaultDatabasePath(),
		},
		Indexing: IndexingConfig{
			ChunkSize:          DefaultChunkSize,
			MaxFileSize:        DefaultMaxFileSize,
			MaxFileCount:       DefaultMaxFileCount,
			ProgressIntervalMS: DefaultProgressIntervalMS,
			UseGitignore:       true,
		},
		Ignore: DefaultIgnorePatterns(),
	}
}

// Load reads configuration from file and environment variables.
func Load(configFile string) error {
	// Set defaults
	setDefaults()

	// Set config file if specified
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		// Search for config in standard locations
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(DefaultConfigDir())
		viper.AddConfigPath(".")

		// Also check for .trigreprc.yaml in current directory and parents
		if rcPath := findRCFile(); rcPath != "" {
			viper.SetConfigFile(rcPath)
		}
	}

	// Environment variables
	viper.SetEnvPrefix("TRIGREP")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Read config file
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
		log.Debug("No config file found, using defaults")
	} else {
		log.Debug("Loaded config from", "file", viper.ConfigFileUsed())
	}

	// Unmarshal into config struct
	cfg = &Config{}
	if err := viper.Unmarshal(cfg); err != nil {
		return fmt.Errorf("error parsing config: %w", err)
	}

	return nil
}

// setDefaults sets default values in viper.
func setDefaults() {
	// Database
	viper.SetDefault("database.path", DefaultDatabasePath())

	// Indexing
	viper.SetDefault("indexing.chunk_size", DefaultChunkSize)
	viper.SetDefault("indexing.max_file_size", DefaultMaxFileSize)
	viper.SetDefault("indexing.max_file_count", DefaultMaxFileCount)
	viper.SetDefault("indexing.progress_interval_ms", DefaultProgressIntervalMS)
	viper.SetDefault("indexing.include_hidden", false)
	viper.SetDefault("indexing.use_gitignore", true)

	// Ignore patterns
	viper.SetDefault("ignore", DefaultIgnorePatterns())
}

// findRCFile searches for .trigreprc.yaml starting from current directory.
func findRCFile() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	dir := cwd
	for {
		rcPath := filepath.Join(dir, ".trigreprc.yaml")
		if _, err := os.Stat(rcPath); err == nil {
			return rcPath
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}

// ConfigFilePath returns the path of the loaded config file, or empty string if none.
func ConfigFilePath() string {
	return viper.ConfigFileUsed()
}

// GlobalConfigPath returns the path to the global config file.
func GlobalConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}
