package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/trigrep/trigrep/internal/config"
	"github.com/trigrep/trigrep/internal/store"
	"github.com/trigrep/trigrep/internal/ui"
	"github.com/trigrep/trigrep/internal/watcher"
)

var watchNoInitial bool

// watchCmd represents the watch command.
var watchCmd = &cobra.Command{
	Use:   "watch [path]",
	Short: "Watch for file changes and keep the index fresh",
	Long: `Watch a directory for file changes and automatically re-index modified files.

This command first performs an initial index of the directory (unless --no-initial
is specified), then watches for changes and updates the index as writes settle.
On shutdown the refreshed index is saved as a snapshot.

Examples:
  # Watch current directory
  trigrep watch

  # Watch a specific directory
  trigrep watch ./src

  # Skip initial sync (assumes already indexed)
  trigrep watch --no-initial`,
	Args: cobra.MaximumNArgs(1),
	RunE: runWatchCmd,
}

func init() {
	watchCmd.Flags().BoolVar(&watchNoInitial, "no-initial", false, "skip initial index sync")
}

func runWatchCmd(cmd *cobra.Command, args []string) error {
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
		return fmt.Errorf("path does not exist: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("path is not a directory: %s", absPath)
	}

	cfg := config.Get()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println("\nShutting down...")
		cancel()
	}()

	st, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to open snapshot store: %w", err)
	}
	defer st.Close()

	svc, restored, err := newService(cfg, st, absPath, false, nil, nil)
	if err != nil {
		return err
	}
	defer svc.Close()

	if !watchNoInitial {
		fmt.Println(ui.Header.Render("Initial Index"))
		fmt.Printf("Path: %s\n", absPath)
		if restored {
			fmt.Println(ui.Dim.Render("Resuming from saved snapshot"))
		}
		fmt.Println()

		indexed, total, cancelled := runIndexJob(svc, absPath, true)
		fmt.Printf("\r\033[K")
		if cancelled {
			return nil
		}
		fmt.Printf("Initial index complete: %d of %d files re-read\n\n", indexed, total)
	}

	w, err := watcher.New(
		absPath,
		svc,
		watcher.WithDebounceTime(500*time.Millisecond),
		watcher.WithEventCallback(func(event, path string) {
			log.Debug("File event", "event", event, "path", path)
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}

	fmt.Println(ui.Header.Render("Watching for Changes"))
	fmt.Printf("Directory: %s\n", absPath)
	fmt.Println("Press Ctrl+C to stop.")
	fmt.Println()

	err = w.Start(ctx)

	// Persist what the watcher built before exiting.
	if saveErr := saveSnapshot(svc, st, absPath); saveErr != nil {
		log.Warn("Failed to save snapshot on shutdown", "error", saveErr)
	}

	if err == context.Canceled {
		return nil
	}
	return err
}
