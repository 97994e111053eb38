// Package fs provides file enumeration and chunked reading for indexing.
package fs

import "time"

// FileInfo represents metadata about a file discovered during a walk.
type FileInfo struct {
	Path    string    // Absolute path to the file
	RelPath string    // Path relative to the root
	Size    int64     // File size in bytes
	ModTime time.Time // Last modification time
}

// WalkOptions configures the file walker.
type WalkOptions struct {
	// Root is the directory to start walking from.
	Root string

	// MaxFileSize is the maximum file size to yield (in bytes).
	MaxFileSize int64

	// MaxFileCount is the maximum number of files to yield.
	MaxFileCount int

	// IgnorePatterns are additional patterns to ignore (gitignore syntax).
	IgnorePatterns []string

	// IncludePatterns limits the walk to files matching at least one
	// doublestar glob (e.g. "src/**/*.go"). Empty means all files.
	IncludePatterns []string

	// IncludeHidden includes hidden files and directories.
	IncludeHidden bool

	// UseGitignore respects the root's .gitignore file.
	UseGitignore bool
}

// DefaultWalkOptions returns sensible defaults for walking.
func DefaultWalkOptions() WalkOptions {
	return WalkOptions{
		MaxFileSize:  1024 * 1024, // 1MB
		MaxFileCount: 100000,
		UseGitignore: true,
	}
}

// Walker walks a directory tree and yields files.
type Walker interface {
	// Walk walks the directory tree and calls fn for each file.
	// The walk stops if fn returns an error.
	Walk(fn func(FileInfo) error) error

	// Stats returns statistics about the walk.
	Stats() WalkStats
}

// WalkStats contains statistics from a directory walk.
type WalkStats struct {
	FilesFound   int   // Total files found
	FilesSkipped int   // Files skipped due to size/pattern/etc
	DirsSkipped  int   // Directories skipped
	TotalBytes   int64 // Total bytes of files found
	SkippedBytes int64 // Total bytes of skipped files
}
