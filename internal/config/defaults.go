package config

import (
	"os"
	"path/filepath"
)

// Default configuration values
const (
	// Indexing defaults
	DefaultChunkSize          = 10 * 1024 // bytes read per file chunk
	DefaultMaxFileSize        = 1 << 20   // 1MB
	DefaultMaxFileCount       = 100000
	DefaultProgressIntervalMS = 200

	// Database
	DefaultDBFileName = "snapshots.db"
)

// DefaultIgnorePatterns returns the default list of file patterns to ignore.
// Binary content is detected byte-by-byte while reading, so this list only
// prunes trees and files that are never worth opening.
func DefaultIgnorePatterns() []string {
	return []string{
		// Lock files
		"*.lock",
		"package-lock.json",
		"yarn.lock",
		"pnpm-lock.yaml",
		"Cargo.lock",
		"go.sum",
		"poetry.lock",
		"Gemfile.lock",

		// Build outputs
		"dist/",
		"build/",
		"out/",
		"target/",
		"__pycache__/",
		".next/",
		".nuxt/",

		// Dependencies
		"node_modules/",
		"vendor/",
		".venv/",
		"venv/",

		// Version control
		".git/",
		".svn/",
		".hg/",

		// Minified
		"*.min.js",
		"*.min.css",
		"*.map",

		// Misc
		".DS_Store",
		"Thumbs.db",
		"*.log",
	}
}

// DefaultConfigDir returns the default configuration directory path.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/trigrep"
	}
	return filepath.Join(home, ".config", "trigrep")
}

// DefaultDataDir returns the default data directory path.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".local/share/trigrep"
	}
	return filepath.Join(home, ".local", "share", "trigrep")
}

// DefaultDatabasePath returns the default snapshot database file path.
func DefaultDatabasePath() string {
	return filepath.Join(DefaultDataDir(), DefaultDBFileName)
}
