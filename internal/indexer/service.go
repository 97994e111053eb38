// Package indexer builds and queries the trigram index. A single Service
// owns the index and a serial worker goroutine; indexing jobs and search
// queries all execute there, so the index never sees concurrent access.
package indexer

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/trigrep/trigrep/internal/fs"
	"github.com/trigrep/trigrep/internal/index"
)

// Options configures a Service.
type Options struct {
	// ChunkSize is the read size cap per file chunk, in bytes.
	ChunkSize int

	// ProgressInterval is the minimum time between progress callbacks.
	ProgressInterval time.Duration

	// Walk is the walker configuration template; Root is overridden for
	// each IndexPath call.
	Walk fs.WalkOptions
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() Options {
	return Options{
		ChunkSize:        10 * 1024,
		ProgressInterval: 200 * time.Millisecond,
		Walk:             fs.DefaultWalkOptions(),
	}
}

// Service is the indexing facade. It owns the index for its lifetime;
// create with NewService, release with Close.
type Service struct {
	idx              *index.Index
	worker           *worker
	chunkSize        int
	progressInterval time.Duration
	walkOpts         fs.WalkOptions
}

// NewService creates a Service with an empty index.
func NewService(opts Options) *Service {
	return NewServiceWithIndex(index.New(), opts)
}

// NewServiceWithIndex creates a Service around an existing index, e.g.
// one restored from a snapshot. The caller must not retain or touch the
// index afterwards.
func NewServiceWithIndex(idx *index.Index, opts Options) *Service {
	if opts.ChunkSize < readOverlap+1 {
		opts.ChunkSize = DefaultOptions().ChunkSize
	}
	if opts.ProgressInterval <= 0 {
		opts.ProgressInterval = DefaultOptions().ProgressInterval
	}
	return &Service{
		idx:              idx,
		worker:           newWorker(),
		chunkSize:        opts.ChunkSize,
		progressInterval: opts.ProgressInterval,
		walkOpts:         opts.Walk,
	}
}

// IndexPath starts an indexing job for the tree rooted at root and
// returns immediately. Callbacks fire from the worker goroutine as the
// job advances; the returned Job can be stopped at any time.
//
// Concurrent jobs over overlapping roots are not deduplicated; they
// interleave step by step on the shared worker.
func (s *Service) IndexPath(root string, cb Callbacks) *Job {
	job := &Job{
		svc:  s,
		root: absPath(root),
		cb:   cb,
	}
	s.worker.post(job.collect)
	return job
}

// SearchInPath queries the index and reports, via fn on the worker
// goroutine, the matching paths that live under root (or equal it).
//
// A search posted after a job's completion callback observes all of that
// job's commits. A search racing a running job may observe a partially
// built index; indexing is eventually queryable, not transactional.
func (s *Service) SearchInPath(root, query string, fn func(paths []string)) {
	root = absPath(root)
	s.worker.post(func() {
		var filtered []string
		for _, p := range s.idx.Search(query) {
			if underPath(root, p) {
				filtered = append(filtered, p)
			}
		}
		fn(filtered)
	})
}

// Stats reports index statistics via fn on the worker goroutine.
func (s *Service) Stats(fn func(index.Stats)) {
	s.worker.post(func() {
		fn(s.idx.Stats())
	})
}

// Snapshot normalizes the index and hands a serializable copy to fn on
// the worker goroutine.
func (s *Service) Snapshot(fn func(*index.Snapshot)) {
	s.worker.post(func() {
		fn(s.idx.Snapshot())
	})
}

// Close runs all queued work and shuts the worker down. Jobs that have
// not finished stop advancing; their queued steps observe the stop flag
// only if Stop was called, otherwise they run to completion of the
// already-queued step and go no further.
func (s *Service) Close() {
	s.worker.close()
}

func absPath(p string) string {
	abs, err := filepath.Abs(p)
	if err != nil {
		return filepath.Clean(p)
	}
	return abs
}

// underPath reports whether p equals root or lives beneath it.
func underPath(root, p string) bool {
	if p == root {
		return true
	}
	sep := string(filepath.Separator)
	if !strings.HasSuffix(root, sep) {
		root += sep
	}
	return strings.HasPrefix(p, root)
}
