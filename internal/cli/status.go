package cli

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/trigrep/trigrep/internal/config"
	"github.com/trigrep/trigrep/internal/store"
)

var statusPlain bool

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show saved snapshots and their statistics",
	Long: `Display the snapshots saved in the local database, including:
- The indexed root path
- Number of indexed files
- Number of distinct trigrams
- When the snapshot was taken

Examples:
  # Show all snapshots
  trigrep status

  # Plain output, no terminal formatting
  trigrep status --plain`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().BoolVar(&statusPlain, "plain", false, "plain markdown output without terminal rendering")
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg := config.Get()

	st, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to open snapshot store: %w", err)
	}
	defer st.Close()

	infos, err := st.List()
	if err != nil {
		return fmt.Errorf("failed to list snapshots: %w", err)
	}

	if len(infos) == 0 {
		fmt.Println("No snapshots found.")
		fmt.Println()
		fmt.Println("Run 'trigrep index [path]' to create one.")
		return nil
	}

	report := buildStatusReport(infos, cfg)

	if statusPlain {
		fmt.Print(report)
		return nil
	}

	rendered, err := renderMarkdown(report)
	if err != nil {
		log.Debug("Markdown rendering failed, falling back to plain output", "error", err)
		fmt.Print(report)
		return nil
	}
	fmt.Print(rendered)
	return nil
}

// buildStatusReport assembles the status output as markdown.
func buildStatusReport(infos []store.SnapshotInfo, cfg *config.Config) string {
	var b strings.Builder

	b.WriteString("# Index Status\n\n")
	b.WriteString("| Root | Files | Trigrams | Saved |\n")
	b.WriteString("|------|------:|---------:|-------|\n")
	for _, info := range infos {
		root := info.RootPath
		if _, err := os.Stat(root); os.IsNotExist(err) {
			root += " *(missing)*"
		}
		fmt.Fprintf(&b, "| %s | %d | %d | %s |\n",
			root, info.FileCount, info.PostingCount, formatTime(info.CreatedAt))
	}

	b.WriteString("\n## Configuration\n\n")
	fmt.Fprintf(&b, "- Database: `%s`\n", cfg.Database.Path)
	fmt.Fprintf(&b, "- Max file size: %d bytes\n", cfg.Indexing.MaxFileSize)
	fmt.Fprintf(&b, "- Ignore patterns: %d configured\n", len(cfg.Ignore))

	return b.String()
}

// renderMarkdown renders markdown content using glamour.
func renderMarkdown(content string) (string, error) {
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		return "", err
	}
	return renderer.Render(content)
}

// formatTime formats a time for display.
func formatTime(t time.Time) string {
	if t.IsZero() {
		return "unknown"
	}

	now := time.Now()
	if t.Year() == now.Year() && t.YearDay() == now.YearDay() {
		return "today at " + t.Local().Format("15:04")
	}
	if t.Year() == now.Year() {
		return t.Local().Format("Jan 2 at 15:04")
	}
	return t.Local().Format("Jan 2, 2006 at 15:04")
}
