package cli

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/trigrep/trigrep/internal/config"
	"github.com/trigrep/trigrep/internal/fs"
	"github.com/trigrep/trigrep/internal/index"
	"github.com/trigrep/trigrep/internal/indexer"
	"github.com/trigrep/trigrep/internal/store"
	"github.com/trigrep/trigrep/internal/ui"
)

var (
	indexDryRun  bool
	indexNoSave  bool
	indexFresh   bool
	indexInclude []string
	indexIgnore  []string
)

// indexCmd represents the index command
var indexCmd = &cobra.Command{
	Use:   "index [path]",
	Short: "Build or refresh the trigram index for a directory",
	Long: `Index files in the specified directory (or current directory).

This command will:
1. Discover text files under the directory
2. Extract the trigrams each file contains
3. Record them in the index, skipping files unchanged since the last run
4. Save a snapshot to the local SQLite database

Examples:
  # Index current directory
  trigrep index

  # Index a specific directory
  trigrep index ./src

  # Rebuild from scratch, ignoring the saved snapshot
  trigrep index --fresh

  # Index only matching files
  trigrep index --include "**/*.go"

  # Preview what would be indexed
  trigrep index --dry-run`,
	Args: cobra.MaximumNArgs(1),
	RunE: runIndex,
}

func init() {
	indexCmd.Flags().BoolVarP(&indexDryRun, "dry-run", "d", false, "preview without indexing")
	indexCmd.Flags().BoolVar(&indexNoSave, "no-save", false, "do not persist a snapshot")
	indexCmd.Flags().BoolVar(&indexFresh, "fresh", false, "ignore any saved snapshot and index from scratch")
	indexCmd.Flags().StringSliceVar(&indexInclude, "include", nil, "glob patterns to include (e.g. \"**/*.go\")")
	indexCmd.Flags().StringSliceVarP(&indexIgnore, "ignore", "i", nil, "additional patterns to ignore")
}

func runIndex(cmd *cobra.Command, args []string) error {
	path := "."
	if len(args) > 0 {
		path = args[0]
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return fmt.Errorf("path does not exist: %s", absPath)
	}
	if !info.IsDir() {
		return fmt.Errorf("path is not a directory: %s", absPath)
	}

	cfg := config.Get()

	log.Debug("Starting index",
		"path", absPath,
		"fresh", indexFresh,
		"dry-run", indexDryRun,
	)

	if indexDryRun {
		return runDryRun(absPath, cfg)
	}

	st, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to open snapshot store: %w", err)
	}
	defer st.Close()

	svc, restored, err := newService(cfg, st, absPath, indexFresh, indexInclude, indexIgnore)
	if err != nil {
		return err
	}
	defer svc.Close()

	fmt.Println(ui.Header.Render("Indexing " + filepath.Base(absPath)))
	fmt.Printf("Path: %s\n", absPath)
	if restored {
		fmt.Println(ui.Dim.Render("Resuming from saved snapshot"))
	}
	fmt.Println()

	startTime := time.Now()
	indexed, total, cancelled := runIndexJob(svc, absPath, true)

	fmt.Printf("\r\033[K")
	if cancelled {
		fmt.Println(ui.Warning.Render("Indexing cancelled"))
	}

	duration := time.Since(startTime).Round(time.Millisecond)

	statsCh := make(chan index.Stats, 1)
	svc.Stats(func(s index.Stats) { statsCh <- s })
	stats := <-statsCh

	if !cancelled {
		fmt.Println(ui.Success.Render("Indexing complete!"))
	}
	fmt.Println()
	fmt.Printf("  Changed:  %d of %d files\n", indexed, total)
	fmt.Printf("  Indexed:  %d files total\n", stats.FileCount)
	fmt.Printf("  Trigrams: %d distinct\n", stats.TrigramCount)
	fmt.Printf("  Duration: %s\n", duration)

	if indexNoSave {
		return nil
	}
	return saveSnapshot(svc, st, absPath)
}

// runIndexJob runs one indexing job to completion, printing progress when
// asked, and reports how many files were processed. A SIGINT or SIGTERM
// stops the job; cancelled tells the caller that happened.
func runIndexJob(svc *indexer.Service, root string, showProgress bool) (indexed, total int, cancelled bool) {
	done := make(chan struct{})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	// Callbacks run on the service worker; the mutex covers the window
	// where a signal makes us read the counters while a step is in flight.
	var mu sync.Mutex

	job := svc.IndexPath(root, indexer.Callbacks{
		OnTotal: func(n int) {
			mu.Lock()
			total = n
			mu.Unlock()
		},
		OnProgress: func(worked int) {
			mu.Lock()
			indexed += worked
			n, t := indexed, total
			mu.Unlock()
			if showProgress && t > 0 {
				pct := float64(n) / float64(t) * 100
				fmt.Printf("\r\033[K%s", ui.FormatProgress(n, t)+ui.Dim.Render(fmt.Sprintf(" (%.0f%%)", pct)))
			}
		},
		OnDone: func() {
			close(done)
		},
	})

	select {
	case <-done:
	case <-sigCh:
		job.Stop()
		cancelled = true
	}

	mu.Lock()
	defer mu.Unlock()
	return indexed, total, cancelled
}

// newService builds a Service for root, seeded from the saved snapshot
// unless fresh is set. restored reports whether a snapshot was loaded.
func newService(cfg *config.Config, st *store.SQLiteStore, root string, fresh bool, includes, extraIgnore []string) (svc *indexer.Service, restored bool, err error) {
	opts := serviceOptions(cfg, includes, extraIgnore)

	if !fresh {
		snap, err := st.Load(root)
		if err != nil {
			log.Warn("Ignoring unreadable snapshot", "root", root, "error", err)
		} else if snap != nil {
			idx, err := index.FromSnapshot(snap)
			if err != nil {
				log.Warn("Ignoring invalid snapshot", "root", root, "error", err)
			} else {
				return indexer.NewServiceWithIndex(idx, opts), true, nil
			}
		}
	}

	return indexer.NewService(opts), false, nil
}

// saveSnapshot persists the service's current index for root.
func saveSnapshot(svc *indexer.Service, st *store.SQLiteStore, root string) error {
	snapCh := make(chan *index.Snapshot, 1)
	svc.Snapshot(func(s *index.Snapshot) { snapCh <- s })
	if err := st.Save(root, <-snapCh); err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	log.Debug("Snapshot saved", "root", root)
	return nil
}

// runDryRun shows what would be indexed without actually indexing.
func runDryRun(path string, cfg *config.Config) error {
	fmt.Println(ui.Header.Render("Dry Run - Preview"))
	fmt.Printf("Path: %s\n\n", path)

	walkOpts := serviceOptions(cfg, indexInclude, indexIgnore).Walk
	walkOpts.Root = path
	walker, err := fs.NewFileWalker(walkOpts)
	if err != nil {
		return fmt.Errorf("failed to create file walker: %w", err)
	}

	var files []fs.FileInfo
	var totalSize int64
	err = walker.Walk(func(fi fs.FileInfo) error {
		files = append(files, fi)
		totalSize += fi.Size
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to walk directory: %w", err)
	}

	stats := walker.Stats()

	fmt.Printf("Total files:   %d\n", len(files))
	fmt.Printf("Total size:    %s\n", formatBytes(totalSize))
	fmt.Printf("Skipped:       %d files, %d directories\n", stats.FilesSkipped, stats.DirsSkipped)

	if len(files) > 0 {
		fmt.Println("\nFirst 10 files:")
		for i, f := range files {
			if i >= 10 {
				fmt.Printf("  ... and %d more\n", len(files)-10)
				break
			}
			fmt.Printf("  %s (%s)\n", f.RelPath, formatBytes(f.Size))
		}
	}

	return nil
}

// formatBytes formats bytes as human-readable string.
func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

// forgetCmd removes a saved snapshot.
var forgetCmd = &cobra.Command{
	Use:   "forget <path>",
	Short: "Delete the saved snapshot for a directory",
	Long:  `Delete the persisted snapshot for a directory. The next index run starts from scratch.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runForget,
}

func init() {
	rootCmd.AddCommand(forgetCmd)
}

func runForget(cmd *cobra.Command, args []string) error {
	absPath, err := filepath.Abs(args[0])
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}

	cfg := config.Get()
	st, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to open snapshot store: %w", err)
	}
	defer st.Close()

	fmt.Printf("Delete snapshot for '%s'? The next index run re-reads everything. [y/N]: ", absPath)
	var confirm string
	fmt.Scanln(&confirm)
	if strings.ToLower(confirm) != "y" {
		fmt.Println("Cancelled.")
		return nil
	}

	if err := st.Delete(absPath); err != nil {
		return fmt.Errorf("failed to delete snapshot: %w", err)
	}

	fmt.Println(ui.Success.Render(fmt.Sprintf("Snapshot for '%s' deleted.", absPath)))
	return nil
}
