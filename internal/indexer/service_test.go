package indexer

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trigrep/trigrep/internal/index"
)

// writeTree writes the given files under a fresh temp directory.
func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for path, content := range files {
		fullPath := filepath.Join(root, path)
		require.NoError(t, os.MkdirAll(filepath.Dir(fullPath), 0755))
		require.NoError(t, os.WriteFile(fullPath, []byte(content), 0644))
	}
	return root
}

// indexAndWait runs an indexing job to completion and returns the
// reported total and the sum of progress counts.
func indexAndWait(t *testing.T, svc *Service, root string) (total, worked int) {
	t.Helper()
	done := make(chan struct{})
	svc.IndexPath(root, Callbacks{
		OnTotal:    func(n int) { total = n },
		OnProgress: func(n int) { worked += n },
		OnDone:     func() { close(done) },
	})
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("indexing job did not finish")
	}
	return total, worked
}

// searchAndWait runs SearchInPath synchronously.
func searchAndWait(t *testing.T, svc *Service, root, query string) []string {
	t.Helper()
	results := make(chan []string, 1)
	svc.SearchInPath(root, query, func(paths []string) {
		results <- paths
	})
	select {
	case paths := <-results:
		return paths
	case <-time.After(10 * time.Second):
		t.Fatal("search did not complete")
		return nil
	}
}

func statsAndWait(t *testing.T, svc *Service) index.Stats {
	t.Helper()
	out := make(chan index.Stats, 1)
	svc.Stats(func(s index.Stats) { out <- s })
	select {
	case s := <-out:
		return s
	case <-time.After(10 * time.Second):
		t.Fatal("stats did not complete")
		return index.Stats{}
	}
}

// TestIndexAndSearch covers the basic scenario: two files, queries that
// match both, one, or neither.
func TestIndexAndSearch(t *testing.T) {
	root := writeTree(t, map[string]string{
		"foo.txt": "the quick brown fox",
		"bar.txt": "the slow brown dog",
	})
	svc := NewService(DefaultOptions())
	defer svc.Close()

	total, worked := indexAndWait(t, svc, root)
	assert.Equal(t, 2, total)
	assert.Equal(t, 2, worked)

	both := searchAndWait(t, svc, root, "brown")
	assert.ElementsMatch(t, []string{
		filepath.Join(root, "foo.txt"),
		filepath.Join(root, "bar.txt"),
	}, both)

	assert.Equal(t, []string{filepath.Join(root, "foo.txt")},
		searchAndWait(t, svc, root, "quick"))

	assert.Empty(t, searchAndWait(t, svc, root, "xyz123notfound"))
}

func TestSearchIsCaseInsensitive(t *testing.T) {
	root := writeTree(t, map[string]string{
		"shout.txt":  "HELLO world",
		"normal.txt": "hello world",
	})
	svc := NewService(DefaultOptions())
	defer svc.Close()

	indexAndWait(t, svc, root)

	for _, query := range []string{"hello", "HELLO", "HeLLo"} {
		assert.Len(t, searchAndWait(t, svc, root, query), 2, "query %q", query)
	}
}

// TestBinaryFilesExcluded verifies a file containing a NUL byte never
// shows up in results, even for substrings it contains.
func TestBinaryFilesExcluded(t *testing.T) {
	root := writeTree(t, map[string]string{
		"text.txt": "findme in plain text",
		"blob.bin": "findme\x00in binary",
	})
	svc := NewService(DefaultOptions())
	defer svc.Close()

	indexAndWait(t, svc, root)

	assert.Equal(t, []string{filepath.Join(root, "text.txt")},
		searchAndWait(t, svc, root, "findme"))
}

// TestDegenerateQueryMatchesAll verifies the short-query quirk: fewer
// than three usable characters matches every indexed file.
func TestDegenerateQueryMatchesAll(t *testing.T) {
	root := writeTree(t, map[string]string{
		"a.txt": "alpha content",
		"b.txt": "beta content",
	})
	svc := NewService(DefaultOptions())
	defer svc.Close()

	indexAndWait(t, svc, root)

	assert.Len(t, searchAndWait(t, svc, root, "ab"), 2)
	assert.Len(t, searchAndWait(t, svc, root, ""), 2)
}

// TestPathPrefixFiltering verifies SearchInPath scopes results to the
// requested subtree.
func TestPathPrefixFiltering(t *testing.T) {
	root := writeTree(t, map[string]string{
		"b/file.txt":     "needle here",
		"b/sub/file.txt": "needle here too",
		"c/file.txt":     "needle elsewhere",
	})
	svc := NewService(DefaultOptions())
	defer svc.Close()

	indexAndWait(t, svc, root)

	scoped := searchAndWait(t, svc, filepath.Join(root, "b"), "needle")
	assert.ElementsMatch(t, []string{
		filepath.Join(root, "b/file.txt"),
		filepath.Join(root, "b/sub/file.txt"),
	}, scoped)

	// A sibling whose name shares the prefix must not leak in.
	assert.Empty(t, searchAndWait(t, svc, filepath.Join(root, "bx"), "needle"))
}

// TestIncrementalSkip verifies a second pass over an unchanged tree
// finds nothing to do and leaves posting lists untouched.
func TestIncrementalSkip(t *testing.T) {
	root := writeTree(t, map[string]string{
		"a.txt": "some stable content",
		"b.txt": "other stable content",
	})
	svc := NewService(DefaultOptions())
	defer svc.Close()

	total, _ := indexAndWait(t, svc, root)
	require.Equal(t, 2, total)
	before := statsAndWait(t, svc)

	total, worked := indexAndWait(t, svc, root)
	assert.Zero(t, total, "unchanged files must be skipped")
	assert.Zero(t, worked)
	assert.Equal(t, before.PostingEntries, statsAndWait(t, svc).PostingEntries)
}

// TestModifiedFileReindexed verifies a file with a newer mtime is picked
// up on the next pass.
func TestModifiedFileReindexed(t *testing.T) {
	root := writeTree(t, map[string]string{
		"a.txt": "original words",
	})
	svc := NewService(DefaultOptions())
	defer svc.Close()

	indexAndWait(t, svc, root)

	path := filepath.Join(root, "a.txt")
	require.NoError(t, os.WriteFile(path, []byte("revised words"), 0644))
	// Force a strictly newer mtime regardless of filesystem resolution.
	future := time.Now().Add(2 * time.Second)
	require.NoError(t, os.Chtimes(path, future, future))

	total, _ := indexAndWait(t, svc, root)
	assert.Equal(t, 1, total)

	assert.Equal(t, []string{path}, searchAndWait(t, svc, root, "revised"))
}

// TestTrigramsAcrossChunkBoundary uses a tiny chunk size so matches
// spanning a read boundary prove the two-byte overlap works.
func TestTrigramsAcrossChunkBoundary(t *testing.T) {
	content := "the quick brown fox jumps over the lazy dog"
	root := writeTree(t, map[string]string{"corpus.txt": content})

	opts := DefaultOptions()
	opts.ChunkSize = 5
	svc := NewService(opts)
	defer svc.Close()

	indexAndWait(t, svc, root)

	want := []string{filepath.Join(root, "corpus.txt")}
	for i := 0; i+3 <= len(content); i++ {
		sub := content[i : i+3]
		assert.Equal(t, want, searchAndWait(t, svc, root, sub), "substring %q", sub)
	}
	assert.Equal(t, want, searchAndWait(t, svc, root, "quick brown fox"))
}

// TestStopAfterFirstFile cancels a job from its first progress callback
// and verifies exactly the committed files are queryable afterwards.
func TestStopAfterFirstFile(t *testing.T) {
	root := writeTree(t, map[string]string{
		"one.txt": "shared needle content",
		"two.txt": "shared needle content",
	})

	opts := DefaultOptions()
	opts.ProgressInterval = time.Nanosecond // progress after every file
	svc := NewService(opts)
	defer svc.Close()

	done := make(chan struct{})
	finished := false
	handle := make(chan *Job, 1)
	job := svc.IndexPath(root, Callbacks{
		OnProgress: func(worked int) {
			j := <-handle
			j.Stop()
			close(done)
		},
		OnDone: func() { finished = true },
	})
	handle <- job

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("no progress callback")
	}

	// Normalize explicitly (OnDone will never run it) and inspect.
	snapDone := make(chan struct{})
	svc.Snapshot(func(*index.Snapshot) { close(snapDone) })
	<-snapDone

	assert.False(t, finished, "stopped job must not report completion")
	assert.Equal(t, 1, statsAndWait(t, svc).FileCount)
	assert.Len(t, searchAndWait(t, svc, root, "needle"), 1)
}

// TestStopDuringCollect stops a job before its first step executes.
func TestStopDuringCollect(t *testing.T) {
	root := writeTree(t, map[string]string{"a.txt": "content"})
	svc := NewService(DefaultOptions())
	defer svc.Close()

	// Occupy the worker so the job cannot start before Stop lands.
	gate := make(chan struct{})
	svc.Stats(func(index.Stats) { <-gate })

	var totalCalled bool
	job := svc.IndexPath(root, Callbacks{
		OnTotal: func(int) { totalCalled = true },
	})
	job.Stop()
	close(gate)

	// Drain the worker so any queued steps have run.
	assert.Zero(t, statsAndWait(t, svc).FileCount)
	assert.False(t, totalCalled, "stopped job must not report a total")
}

// TestUnreadableFileSkipped verifies a file that cannot be opened is
// skipped without aborting the job.
func TestUnreadableFileSkipped(t *testing.T) {
	if os.Getuid() == 0 {
		t.Skip("running as root, permission bits are not enforced")
	}
	root := writeTree(t, map[string]string{
		"ok.txt":     "readable needle",
		"locked.txt": "unreadable needle",
	})
	require.NoError(t, os.Chmod(filepath.Join(root, "locked.txt"), 0000))

	svc := NewService(DefaultOptions())
	defer svc.Close()

	total, worked := indexAndWait(t, svc, root)
	assert.Equal(t, 2, total)
	assert.Equal(t, 2, worked, "failed file still counts as processed")

	assert.Equal(t, []string{filepath.Join(root, "ok.txt")},
		searchAndWait(t, svc, root, "needle"))
}

// TestEmptyAndTinyFiles verifies files too small to hold a trigram are
// processed without being committed.
func TestEmptyAndTinyFiles(t *testing.T) {
	root := writeTree(t, map[string]string{
		"empty.txt": "",
		"tiny.txt":  "ab",
		"real.txt":  "actual content",
	})
	svc := NewService(DefaultOptions())
	defer svc.Close()

	total, worked := indexAndWait(t, svc, root)
	assert.Equal(t, 3, total)
	assert.Equal(t, 3, worked)

	// Only the real file is in the index, so a degenerate query
	// returns just it.
	assert.Equal(t, []string{filepath.Join(root, "real.txt")},
		searchAndWait(t, svc, root, "ab"))
}

// TestSearchOnEmptyIndex must not block or panic.
func TestSearchOnEmptyIndex(t *testing.T) {
	svc := NewService(DefaultOptions())
	defer svc.Close()

	assert.Empty(t, searchAndWait(t, svc, t.TempDir(), "anything"))
	assert.Empty(t, searchAndWait(t, svc, t.TempDir(), ""))
}

// TestMissingRootFinishesCleanly verifies a nonexistent root produces a
// zero-total job that still completes.
func TestMissingRootFinishesCleanly(t *testing.T) {
	svc := NewService(DefaultOptions())
	defer svc.Close()

	total, worked := indexAndWait(t, svc, "/nonexistent/path")
	assert.Zero(t, total)
	assert.Zero(t, worked)
}

// TestServiceWithRestoredIndex verifies snapshot restore feeds the
// mtime-skip logic: nothing is re-indexed after a restore.
func TestServiceWithRestoredIndex(t *testing.T) {
	root := writeTree(t, map[string]string{
		"a.txt": "persistent content",
	})

	svc := NewService(DefaultOptions())
	indexAndWait(t, svc, root)

	var snap *index.Snapshot
	snapDone := make(chan struct{})
	svc.Snapshot(func(s *index.Snapshot) {
		snap = s
		close(snapDone)
	})
	<-snapDone
	svc.Close()

	restored, err := index.FromSnapshot(snap)
	require.NoError(t, err)

	svc2 := NewServiceWithIndex(restored, DefaultOptions())
	defer svc2.Close()

	total, _ := indexAndWait(t, svc2, root)
	assert.Zero(t, total, "restored mtimes must suppress re-indexing")
	assert.Len(t, searchAndWait(t, svc2, root, "persistent"), 1)
}
