package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/trigrep/trigrep/internal/config"
	"github.com/trigrep/trigrep/internal/store"
	"github.com/trigrep/trigrep/internal/ui"
)

var (
	searchJSON    bool
	searchNoSync  bool
	searchLimit   int
	searchInclude []string
	searchIgnore  []string
)

// searchCmd represents the search command
var searchCmd = &cobra.Command{
	Use:   "search <query> [path]",
	Short: "Find files whose content contains a substring",
	Long: `Search the trigram index for files containing the query string.

Matching is by trigram containment: a file matches when it holds every
three-character window of the query. Matching is case-insensitive and a
query shorter than three characters matches every indexed file.

Before searching, the saved snapshot for the path is loaded and files
changed since the snapshot are re-indexed, so results reflect the
current state of the tree.

Examples:
  # Basic search
  trigrep search "NewFileWalker"

  # Search a specific directory
  trigrep search "chunk_size" ./internal

  # Machine-readable output
  trigrep search "TODO" --json

  # Search exactly what was indexed, no refresh
  trigrep search "TODO" --no-sync`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runSearchCmd,
}

func init() {
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "output results as JSON")
	searchCmd.Flags().BoolVar(&searchNoSync, "no-sync", false, "skip re-indexing before the search")
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "m", 0, "maximum number of results (0 = all)")
	searchCmd.Flags().StringSliceVar(&searchInclude, "include", nil, "glob patterns to include when re-indexing")
	searchCmd.Flags().StringSliceVarP(&searchIgnore, "ignore", "i", nil, "additional patterns to ignore when re-indexing")
}

func runSearchCmd(cmd *cobra.Command, args []string) error {
	query := args[0]
	path := "."
	if len(args) > 1 {
		path = args[1]
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}

	log.Debug("Starting search",
		"query", query,
		"path", absPath,
		"limit", searchLimit,
		"no-sync", searchNoSync,
	)

	cfg := config.Get()

	st, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to open snapshot store: %w", err)
	}
	defer st.Close()

	svc, restored, err := newService(cfg, st, absPath, false, searchInclude, searchIgnore)
	if err != nil {
		return err
	}
	defer svc.Close()

	// Refresh the index first so results reflect the tree as it is now.
	// With a snapshot loaded this only re-reads changed files.
	if !searchNoSync {
		indexed, _, cancelled := runIndexJob(svc, absPath, false)
		if cancelled {
			return nil
		}
		if indexed > 0 || !restored {
			if err := saveSnapshot(svc, st, absPath); err != nil {
				log.Warn("Failed to save refreshed snapshot", "error", err)
			}
		}
	}

	resultCh := make(chan []string, 1)
	svc.SearchInPath(absPath, query, func(paths []string) {
		resultCh <- paths
	})
	results := <-resultCh

	if searchLimit > 0 && len(results) > searchLimit {
		results = results[:searchLimit]
	}

	if searchJSON {
		return outputJSON(query, absPath, results)
	}

	if len(results) == 0 {
		fmt.Println("No results found.")
		return nil
	}

	displayResults(results, absPath)
	return nil
}

// displayResults prints matching paths relative to the search root.
func displayResults(results []string, root string) {
	fmt.Printf("Found %s:\n\n", ui.FormatMatchCount(len(results)))

	for _, p := range results {
		rel, err := filepath.Rel(root, p)
		if err != nil {
			rel = p
		}
		fmt.Printf("  %s\n", ui.FilePath.Render(rel))
	}
}

// outputJSON writes results as a JSON document on stdout.
func outputJSON(query, root string, results []string) error {
	if results == nil {
		results = []string{}
	}
	doc := struct {
		Query   string   `json:"query"`
		Root    string   `json:"root"`
		Count   int      `json:"count"`
		Matches []string `json:"matches"`
	}{
		Query:   query,
		Root:    root,
		Count:   len(results),
		Matches: results,
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}
