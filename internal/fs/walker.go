package fs

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/charmbracelet/log"
	gitignore "github.com/sabhiram/go-gitignore"
)

// SkipAll stops a walk early without reporting an error. Callers return
// it from the Walk callback, typically after a cancellation check.
var SkipAll = filepath.SkipAll

// Ignorer defines the interface for pattern matching.
type Ignorer interface {
	MatchesPath(path string) bool
}

// combinedIgnorer wraps two ignorers.
type combinedIgnorer struct {
	file     *gitignore.GitIgnore
	patterns *gitignore.GitIgnore
}

// MatchesPath returns true if the path matches any ignore pattern.
func (c *combinedIgnorer) MatchesPath(path string) bool {
	return c.file.MatchesPath(path) || c.patterns.MatchesPath(path)
}

// FileWalker implements Walker for traversing a file system.
type FileWalker struct {
	opts    WalkOptions
	ignorer Ignorer
	stats   WalkStats
}

// NewFileWalker creates a new file walker.
func NewFileWalker(opts WalkOptions) (*FileWalker, error) {
	// Ensure root is absolute
	root, err := filepath.Abs(opts.Root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root path: %w", err)
	}
	opts.Root = root

	// Check root exists
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("root path does not exist: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root path is not a directory: %s", root)
	}

	// Reject malformed include globs up front
	for _, pattern := range opts.IncludePatterns {
		if !doublestar.ValidatePattern(pattern) {
			return nil, fmt.Errorf("invalid include pattern: %s", pattern)
		}
	}

	w := &FileWalker{
		opts: opts,
	}

	// Initialize gitignore
	if err := w.initIgnorer(); err != nil {
		return nil, err
	}

	return w, nil
}

// initIgnorer initializes the gitignore matcher.
func (w *FileWalker) initIgnorer() error {
	var patterns []string

	// Add custom ignore patterns
	patterns = append(patterns, w.opts.IgnorePatterns...)

	// Add default patterns for binary and generated files
	patterns = append(patterns, defaultIgnorePatterns...)

	// Load .gitignore from root if it exists
	if w.opts.UseGitignore {
		gitignorePath := filepath.Join(w.opts.Root, ".gitignore")
		if _, err := os.Stat(gitignorePath); err == nil {
			gi, err := gitignore.CompileIgnoreFile(gitignorePath)
			if err != nil {
				log.Warn("Failed to parse .gitignore", "path", gitignorePath, "error", err)
			} else {
				// Combine with our patterns
				combined := gitignore.CompileIgnoreLines(patterns...)
				w.ignorer = &combinedIgnorer{
					file:     gi,
					patterns: combined,
				}
				return nil
			}
		}
	}

	// Use only our patterns
	w.ignorer = gitignore.CompileIgnoreLines(patterns...)
	return nil
}

// Walk traverses the directory tree. Enumeration order is whatever the
// operating system yields; callers must not assume sorted order.
func (w *FileWalker) Walk(fn func(FileInfo) error) error {
	w.stats = WalkStats{} // Reset stats

	err := filepath.WalkDir(w.opts.Root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			log.Debug("Error accessing path", "path", path, "error", err)
			return nil // Skip errors, continue walking
		}

		// Get relative path for pattern matching
		relPath, err := filepath.Rel(w.opts.Root, path)
		if err != nil {
			relPath = path
		}

		// Check if we should skip this entry
		if d.IsDir() {
			if path != w.opts.Root && w.shouldSkipDir(d.Name(), relPath) {
				w.stats.DirsSkipped++
				return filepath.SkipDir
			}
			return nil
		}

		// Check max file count
		if w.opts.MaxFileCount > 0 && w.stats.FilesFound >= w.opts.MaxFileCount {
			return filepath.SkipAll
		}

		// Skip if file should be ignored
		if w.shouldSkipFile(d.Name(), relPath) {
			w.stats.FilesSkipped++
			return nil
		}

		// Check include globs
		if !w.matchesInclude(relPath) {
			w.stats.FilesSkipped++
			return nil
		}

		// Get file info
		info, err := d.Info()
		if err != nil {
			log.Debug("Failed to get file info", "path", path, "error", err)
			return nil
		}

		// Check file size
		if w.opts.MaxFileSize > 0 && info.Size() > w.opts.MaxFileSize {
			w.stats.FilesSkipped++
			w.stats.SkippedBytes += info.Size()
			return nil
		}

		fileInfo := FileInfo{
			Path:    path,
			RelPath: relPath,
			Size:    info.Size(),
			ModTime: info.ModTime(),
		}

		w.stats.FilesFound++
		w.stats.TotalBytes += info.Size()

		return fn(fileInfo)
	})
	if errors.Is(err, filepath.SkipAll) {
		return nil
	}
	return err
}

// Stats returns the walk statistics.
func (w *FileWalker) Stats() WalkStats {
	return w.stats
}

// matchesInclude checks the path against the include globs, if any.
func (w *FileWalker) matchesInclude(relPath string) bool {
	if len(w.opts.IncludePatterns) == 0 {
		return true
	}
	// doublestar matches against slash-separated paths
	relPath = filepath.ToSlash(relPath)
	for _, pattern := range w.opts.IncludePatterns {
		if ok, _ := doublestar.Match(pattern, relPath); ok {
			return true
		}
	}
	return false
}

// shouldSkipDir checks if a directory should be skipped.
func (w *FileWalker) shouldSkipDir(name, relPath string) bool {
	// Always skip .git
	if name == ".git" {
		return true
	}

	// Skip hidden directories unless configured otherwise
	if !w.opts.IncludeHidden && strings.HasPrefix(name, ".") {
		return true
	}

	// Check gitignore patterns
	if w.ignorer != nil && w.ignorer.MatchesPath(relPath+"/") {
		return true
	}

	return false
}

// shouldSkipFile checks if a file should be skipped.
func (w *FileWalker) shouldSkipFile(name, relPath string) bool {
	// Skip hidden files unless configured otherwise
	if !w.opts.IncludeHidden && strings.HasPrefix(name, ".") {
		return true
	}

	// Check gitignore patterns
	if w.ignorer != nil && w.ignorer.MatchesPath(relPath) {
		return true
	}

	return false
}

// Default patterns to ignore. Binary content is rejected byte-by-byte at
// read time, so this list only prunes obviously uninteresting trees.
var defaultIgnorePatterns = []string{
	// Build outputs
	"node_modules/",
	"vendor/",
	"dist/",
	"build/",
	"out/",
	"target/",

	// Package locks (often huge)
	"package-lock.json",
	"yarn.lock",
	"pnpm-lock.yaml",
	"Cargo.lock",
	"poetry.lock",
	"go.sum",

	// IDE/editor
	".idea/",
	".vscode/",
	"*.swp",
	"*.swo",
	"*~",

	// OS files
	".DS_Store",
	"Thumbs.db",

	// Coverage and test artifacts
	"coverage/",
	".nyc_output/",
	"*.lcov",
}
