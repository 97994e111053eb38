// Package index implements the in-memory trigram inverted index that
// backs substring search. Paths are interned to compact file IDs and each
// trigram maps to a posting list of the IDs containing it.
package index

import (
	"slices"
	"time"

	"github.com/trigrep/trigrep/internal/codec"
)

// FileID is a compact surrogate key for a file path. IDs are assigned
// monotonically starting at 1 and never reused; 0 is reserved.
type FileID uint32

// Index is the trigram inverted index. It is not safe for concurrent
// use; the indexer package serializes all access on a single worker
// goroutine.
type Index struct {
	fileIDs  map[string]FileID
	paths    []string // paths[id] is the path for id; slot 0 is unused
	mtimes   map[string]time.Time
	postings [][]FileID
	dirty    map[codec.Trigram]struct{}
}

// Stats summarizes index size.
type Stats struct {
	FileCount       int
	TrigramCount    int // distinct trigrams with a non-empty posting list
	PostingEntries  int
	PendingTrigrams int // dirty posting lists awaiting Normalize
}

// New creates an empty index.
func New() *Index {
	return &Index{
		fileIDs:  make(map[string]FileID),
		paths:    make([]string, 1),
		mtimes:   make(map[string]time.Time),
		postings: make([][]FileID, codec.TrigramCount),
		dirty:    make(map[codec.Trigram]struct{}),
	}
}

// GetOrCreateFileID interns path and returns its ID.
func (x *Index) GetOrCreateFileID(path string) FileID {
	if id, ok := x.fileIDs[path]; ok {
		return id
	}
	id := FileID(len(x.paths))
	x.paths = append(x.paths, path)
	x.fileIDs[path] = id
	return id
}

// LastModified returns the modification time recorded when path was last
// indexed. ok is false if the path has never been indexed.
func (x *Index) LastModified(path string) (mtime time.Time, ok bool) {
	mtime, ok = x.mtimes[path]
	return mtime, ok
}

// AddFile appends the file's ID to the posting list of every trigram in
// trigrams and records mtime for the path.
//
// AddFile is not idempotent: committing the same path twice leaves stale
// duplicate postings behind. Callers must consult LastModified first and
// only commit paths whose content has actually changed; the indexing job
// enforces this discipline.
func (x *Index) AddFile(path string, trigrams []codec.Trigram, mtime time.Time) {
	id := x.GetOrCreateFileID(path)
	for _, t := range trigrams {
		x.postings[t] = append(x.postings[t], id)
		x.dirty[t] = struct{}{}
	}
	x.mtimes[path] = mtime
}

// Normalize sorts and compacts every posting list touched since the last
// call. Search requires normalized postings for correct intersection.
func (x *Index) Normalize() {
	for t := range x.dirty {
		list := x.postings[t]
		slices.Sort(list)
		x.postings[t] = slices.Clip(list)
	}
	x.dirty = make(map[codec.Trigram]struct{})
}

// Search returns the paths of all files whose indexed content contains
// every trigram of query, in file ID order.
//
// A query shorter than three usable characters produces no trigrams and
// matches every indexed file. That is long-standing behavior callers
// depend on, not an accident; do not change it to "no matches".
func (x *Index) Search(query string) []string {
	trigrams := codec.Trigrams([]byte(query))
	if len(trigrams) == 0 {
		return x.AllFiles()
	}

	ids := slices.Clone(x.postings[trigrams[0]])
	for _, t := range trigrams[1:] {
		ids = intersect(ids, x.postings[t])
		if len(ids) == 0 {
			break
		}
	}

	paths := make([]string, 0, len(ids))
	for _, id := range ids {
		paths = append(paths, x.paths[id])
	}
	return paths
}

// AllFiles returns every indexed path in file ID order.
func (x *Index) AllFiles() []string {
	paths := make([]string, 0, len(x.fileIDs))
	for _, p := range x.paths[1:] {
		if p != "" {
			paths = append(paths, p)
		}
	}
	return paths
}

// FileCount returns the number of interned paths.
func (x *Index) FileCount() int {
	return len(x.fileIDs)
}

// Stats returns size statistics for the index.
func (x *Index) Stats() Stats {
	s := Stats{
		FileCount:       len(x.fileIDs),
		PendingTrigrams: len(x.dirty),
	}
	for _, list := range x.postings {
		if len(list) > 0 {
			s.TrigramCount++
			s.PostingEntries += len(list)
		}
	}
	return s
}

// intersect merges two ascending posting lists, keeping IDs present in
// both. Duplicate IDs within a list collapse to one occurrence.
func intersect(a, b []FileID) []FileID {
	out := a[:0]
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] < b[j]:
			i++
		case a[i] > b[j]:
			j++
		default:
			if len(out) == 0 || out[len(out)-1] != a[i] {
				out = append(out, a[i])
			}
			i++
			j++
		}
	}
	return out
}
