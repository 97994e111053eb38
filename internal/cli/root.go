// Package cli implements the command-line interface for trigrep.
package cli

import (
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/trigrep/trigrep/internal/config"
	"github.com/trigrep/trigrep/internal/fs"
	"github.com/trigrep/trigrep/internal/indexer"
	"github.com/trigrep/trigrep/internal/ui"
)

var (
	// Version information set at build time
	version = "dev"
	commit  = "none"
	date    = "unknown"

	// Global flags
	cfgFile string
	debug   bool
)

// SetVersionInfo sets the version information from build flags.
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "trigrep [query] [path]",
	Short: "Trigram-indexed substring search for file trees",
	Long: `trigrep builds an in-memory trigram index over a directory tree and
answers substring queries against it.

Every file is reduced to the set of character trigrams it contains;
a query matches a file when the file holds every trigram of the query.
The index lives in memory and can be snapshotted to SQLite so later
runs only re-read files that changed.

Examples:
  # Index the current directory
  trigrep index

  # Find files containing a substring
  trigrep "NewFileWalker"

  # Search a specific directory
  trigrep "chunk_size" ./internal

  # Watch a tree and keep the index fresh
  trigrep watch ./src`,
	Args: cobra.MaximumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		// If no args, show help
		if len(args) == 0 {
			return cmd.Help()
		}

		// Otherwise, run search command
		return runSearchCmd(cmd, args)
	},
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if debug {
			log.SetLevel(log.DebugLevel)
			log.Debug("Debug logging enabled")
		}

		if err := config.Load(cfgFile); err != nil {
			log.Warn("Failed to load config", "error", err)
		}

		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	ui.InitLogger()

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/trigrep/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	_ = viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))

	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(watchCmd)

	// Search flags on the root command for the bare "trigrep <query>" form
	rootCmd.Flags().BoolVar(&searchJSON, "json", false, "output results as JSON")
	rootCmd.Flags().BoolVar(&searchNoSync, "no-sync", false, "skip re-indexing before the search")
	rootCmd.Flags().IntVarP(&searchLimit, "limit", "m", 0, "maximum number of results (0 = all)")
}

// versionCmd shows version information
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("trigrep %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built:  %s\n", date)
	},
}

// serviceOptions translates the loaded configuration (plus any per-command
// include/ignore flags) into indexer options.
func serviceOptions(cfg *config.Config, includes, extraIgnore []string) indexer.Options {
	opts := indexer.DefaultOptions()
	if cfg.Indexing.ChunkSize > 0 {
		opts.ChunkSize = cfg.Indexing.ChunkSize
	}
	if cfg.Indexing.ProgressIntervalMS > 0 {
		opts.ProgressInterval = time.Duration(cfg.Indexing.ProgressIntervalMS) * time.Millisecond
	}
	opts.Walk = fs.WalkOptions{
		MaxFileSize:     int64(cfg.Indexing.MaxFileSize),
		MaxFileCount:    cfg.Indexing.MaxFileCount,
		IgnorePatterns:  append(append([]string{}, cfg.Ignore...), extraIgnore...),
		IncludePatterns: includes,
		IncludeHidden:   cfg.Indexing.IncludeHidden,
		UseGitignore:    cfg.Indexing.UseGitignore,
	}
	return opts
}
