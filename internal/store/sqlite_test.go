package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trigrep/trigrep/internal/codec"
	"github.com/trigrep/trigrep/internal/index"
)

func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	return store
}

func testSnapshot() *index.Snapshot {
	return &index.Snapshot{
		Files: []index.FileEntry{
			{ID: 1, Path: "/src/main.go", ModTime: time.Unix(0, 1700000000000000000)},
			{ID: 2, Path: "/src/util.go", ModTime: time.Unix(0, 1700000001000000000)},
			{ID: 5, Path: "/src/api.go", ModTime: time.Unix(0, 1700000002000000000)},
		},
		Postings: []index.PostingEntry{
			{Trigram: 100, FileIDs: []index.FileID{1, 2, 5}},
			{Trigram: 9001, FileIDs: []index.FileID{2}},
			{Trigram: 328508, FileIDs: []index.FileID{1, 5}},
		},
	}
}

func TestNewSQLiteStore(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "nested", "test.db")

	store, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer store.Close()

	// Verify database file was created (directory included)
	_, err = os.Stat(dbPath)
	assert.NoError(t, err)
}

func TestSaveAndLoad(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	snap := testSnapshot()
	require.NoError(t, store.Save("/src", snap))

	loaded, err := store.Load("/src")
	require.NoError(t, err)
	require.NotNil(t, loaded)

	assert.Equal(t, snap.Files, loaded.Files)
	assert.Equal(t, snap.Postings, loaded.Postings)
}

func TestLoadMissingRoot(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	loaded, err := store.Load("/nowhere")
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestSaveReplacesPreviousSnapshot(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	require.NoError(t, store.Save("/src", testSnapshot()))

	smaller := &index.Snapshot{
		Files: []index.FileEntry{
			{ID: 1, Path: "/src/main.go", ModTime: time.Unix(0, 1700000003000000000)},
		},
		Postings: []index.PostingEntry{
			{Trigram: 42, FileIDs: []index.FileID{1}},
		},
	}
	require.NoError(t, store.Save("/src", smaller))

	loaded, err := store.Load("/src")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, smaller.Files, loaded.Files)
	assert.Equal(t, smaller.Postings, loaded.Postings)

	infos, err := store.List()
	require.NoError(t, err)
	assert.Len(t, infos, 1)
}

func TestSnapshotsAreIndependentPerRoot(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	require.NoError(t, store.Save("/a", testSnapshot()))
	require.NoError(t, store.Save("/b", &index.Snapshot{
		Files: []index.FileEntry{{ID: 1, Path: "/b/x.go", ModTime: time.Unix(0, 1)}},
	}))

	a, err := store.Load("/a")
	require.NoError(t, err)
	assert.Len(t, a.Files, 3)

	b, err := store.Load("/b")
	require.NoError(t, err)
	assert.Len(t, b.Files, 1)
	assert.Empty(t, b.Postings)
}

func TestList(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	infos, err := store.List()
	require.NoError(t, err)
	assert.Empty(t, infos)

	require.NoError(t, store.Save("/src", testSnapshot()))

	infos, err = store.List()
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, "/src", infos[0].RootPath)
	assert.Equal(t, 3, infos[0].FileCount)
	assert.Equal(t, 3, infos[0].PostingCount)
	assert.NotEmpty(t, infos[0].Checksum)
	assert.WithinDuration(t, time.Now(), infos[0].CreatedAt, time.Minute)
}

func TestDelete(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	require.NoError(t, store.Save("/src", testSnapshot()))
	require.NoError(t, store.Delete("/src"))

	loaded, err := store.Load("/src")
	require.NoError(t, err)
	assert.Nil(t, loaded)

	// Delete non-existent should not error
	require.NoError(t, store.Delete("/nowhere"))
}

func TestLoadDetectsCorruption(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	require.NoError(t, store.Save("/src", testSnapshot()))

	_, err := store.db.Exec("UPDATE snapshot_files SET path = '/src/tampered.go' WHERE file_id = 1")
	require.NoError(t, err)

	_, err = store.Load("/src")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "corrupt")
}

func TestLoadedSnapshotRebuildsIndex(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	src := index.New()
	src.AddFile("/src/main.go", []codec.Trigram{10, 20, 30}, time.Unix(0, 1700000000000000000))
	src.Normalize()

	require.NoError(t, store.Save("/src", src.Snapshot()))

	loaded, err := store.Load("/src")
	require.NoError(t, err)
	restored, err := index.FromSnapshot(loaded)
	require.NoError(t, err)

	assert.Equal(t, 1, restored.FileCount())
	assert.Equal(t, []string{"/src/main.go"}, restored.AllFiles())
}

func TestEncodeDecodeFileIDs(t *testing.T) {
	cases := [][]index.FileID{
		nil,
		{1},
		{1, 2, 3},
		{5, 5, 900, 1000000},
		{4294967295},
	}
	for _, ids := range cases {
		decoded, err := decodeFileIDs(encodeFileIDs(ids))
		require.NoError(t, err)
		if len(ids) == 0 {
			assert.Empty(t, decoded)
		} else {
			assert.Equal(t, ids, decoded)
		}
	}
}

func TestDecodeFileIDsMalformed(t *testing.T) {
	// A lone continuation byte is not a complete varint.
	_, err := decodeFileIDs([]byte{0x80})
	assert.Error(t, err)
}
