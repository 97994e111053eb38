package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/trigrep/trigrep/internal/config"
	"github.com/trigrep/trigrep/internal/ui"
)

var configShowPath bool

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or manage configuration",
	Long: `Display current configuration settings and config file locations.

Examples:
  # Show current configuration
  trigrep config

  # Show config file paths
  trigrep config --path`,
	RunE: runConfig,
}

func init() {
	configCmd.Flags().BoolVar(&configShowPath, "path", false, "show config file paths")
}

func runConfig(cmd *cobra.Command, args []string) error {
	if configShowPath {
		fmt.Println(ui.SectionTitle.Render("Configuration Paths"))
		fmt.Println()
		fmt.Printf("Global config: %s\n", config.GlobalConfigPath())
		fmt.Printf("Local config:  .trigreprc.yaml (searched from cwd upward)\n")
		fmt.Printf("Active config: %s\n", config.ConfigFilePath())
		fmt.Printf("Database:      %s\n", config.Get().Database.Path)
		return nil
	}

	cfg := config.Get()

	fmt.Println(ui.SectionTitle.Render("Current Configuration"))
	fmt.Println()

	fmt.Println(ui.Bold.Render("Indexing:"))
	fmt.Printf("  Chunk Size: %d bytes\n", cfg.Indexing.ChunkSize)
	fmt.Printf("  Max File Size: %d bytes\n", cfg.Indexing.MaxFileSize)
	fmt.Printf("  Max File Count: %d\n", cfg.Indexing.MaxFileCount)
	fmt.Printf("  Progress Interval: %d ms\n", cfg.Indexing.ProgressIntervalMS)
	fmt.Printf("  Include Hidden: %t\n", cfg.Indexing.IncludeHidden)
	fmt.Printf("  Use Gitignore: %t\n", cfg.Indexing.UseGitignore)
	fmt.Println()

	fmt.Println(ui.Bold.Render("Database:"))
	fmt.Printf("  Path: %s\n", cfg.Database.Path)
	fmt.Println()

	fmt.Println(ui.Bold.Render("Ignore Patterns:"))
	fmt.Printf("  %d patterns configured\n", len(cfg.Ignore))

	return nil
}
