package store

import (
	"database/sql"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/charmbracelet/log"
	_ "github.com/mattn/go-sqlite3"

	"github.com/trigrep/trigrep/internal/codec"
	"github.com/trigrep/trigrep/internal/index"
)

// SQLiteStore persists index snapshots in a SQLite database, one snapshot
// per root path. Saving a root replaces its previous snapshot.
type SQLiteStore struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewSQLiteStore opens (creating if needed) the snapshot database at dbPath.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	log.Debug("Opened snapshot store", "path", dbPath)

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Save persists a snapshot for rootPath, replacing any previous one.
func (s *SQLiteStore) Save(rootPath string, snap *index.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM snapshots WHERE root_path = ?", rootPath); err != nil {
		return fmt.Errorf("failed to delete previous snapshot: %w", err)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	result, err := tx.Exec(`
		INSERT INTO snapshots (root_path, created_at, file_count, posting_count, checksum)
		VALUES (?, ?, ?, ?, ?)
	`, rootPath, now, len(snap.Files), len(snap.Postings), checksum(snap))
	if err != nil {
		return fmt.Errorf("failed to create snapshot: %w", err)
	}

	snapshotID, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get snapshot ID: %w", err)
	}

	fileStmt, err := tx.Prepare(`
		INSERT INTO snapshot_files (snapshot_id, file_id, path, mtime_unix_ns)
		VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare file insert: %w", err)
	}
	defer fileStmt.Close()

	for _, f := range snap.Files {
		if _, err := fileStmt.Exec(snapshotID, int64(f.ID), f.Path, f.ModTime.UnixNano()); err != nil {
			return fmt.Errorf("failed to insert file %q: %w", f.Path, err)
		}
	}

	postingStmt, err := tx.Prepare(`
		INSERT INTO snapshot_postings (snapshot_id, trigram, file_ids)
		VALUES (?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare posting insert: %w", err)
	}
	defer postingStmt.Close()

	for _, p := range snap.Postings {
		if _, err := postingStmt.Exec(snapshotID, int64(p.Trigram), encodeFileIDs(p.FileIDs)); err != nil {
			return fmt.Errorf("failed to insert posting for trigram %d: %w", p.Trigram, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit snapshot: %w", err)
	}

	log.Debug("Saved snapshot", "root", rootPath, "files", len(snap.Files), "postings", len(snap.Postings))

	return nil
}

// Load retrieves the snapshot for rootPath and verifies its checksum.
// Returns (nil, nil) when no snapshot exists for the root.
func (s *SQLiteStore) Load(rootPath string) (*index.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var snapshotID int64
	var storedChecksum string
	err := s.db.QueryRow(`
		SELECT id, checksum FROM snapshots WHERE root_path = ?
	`, rootPath).Scan(&snapshotID, &storedChecksum)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up snapshot: %w", err)
	}

	snap := &index.Snapshot{}

	rows, err := s.db.Query(`
		SELECT file_id, path, mtime_unix_ns
		FROM snapshot_files WHERE snapshot_id = ? ORDER BY file_id
	`, snapshotID)
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot files: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		var path string
		var mtime int64
		if err := rows.Scan(&id, &path, &mtime); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot file: %w", err)
		}
		snap.Files = append(snap.Files, index.FileEntry{
			ID:      index.FileID(id),
			Path:    path,
			ModTime: time.Unix(0, mtime),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate snapshot files: %w", err)
	}

	postingRows, err := s.db.Query(`
		SELECT trigram, file_ids
		FROM snapshot_postings WHERE snapshot_id = ? ORDER BY trigram
	`, snapshotID)
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot postings: %w", err)
	}
	defer postingRows.Close()

	for postingRows.Next() {
		var trigram int64
		var blob []byte
		if err := postingRows.Scan(&trigram, &blob); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot posting: %w", err)
		}
		ids, err := decodeFileIDs(blob)
		if err != nil {
			return nil, fmt.Errorf("failed to decode posting for trigram %d: %w", trigram, err)
		}
		snap.Postings = append(snap.Postings, index.PostingEntry{
			Trigram: codec.Trigram(trigram),
			FileIDs: ids,
		})
	}
	if err := postingRows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate snapshot postings: %w", err)
	}

	if got := checksum(snap); got != storedChecksum {
		return nil, fmt.Errorf("snapshot for %q is corrupt: checksum %s, expected %s", rootPath, got, storedChecksum)
	}

	log.Debug("Loaded snapshot", "root", rootPath, "files", len(snap.Files), "postings", len(snap.Postings))

	return snap, nil
}

// List returns metadata for all persisted snapshots, newest first.
func (s *SQLiteStore) List() ([]SnapshotInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT id, root_path, created_at, file_count, posting_count, checksum
		FROM snapshots ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	defer rows.Close()

	var infos []SnapshotInfo
	for rows.Next() {
		var info SnapshotInfo
		var createdAt string
		if err := rows.Scan(&info.ID, &info.RootPath, &createdAt, &info.FileCount, &info.PostingCount, &info.Checksum); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot info: %w", err)
		}
		info.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		infos = append(infos, info)
	}
	return infos, rows.Err()
}

// Delete removes the snapshot for rootPath. Deleting a root with no
// snapshot is not an error.
func (s *SQLiteStore) Delete(rootPath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec("DELETE FROM snapshots WHERE root_path = ?", rootPath); err != nil {
		return fmt.Errorf("failed to delete snapshot: %w", err)
	}
	return nil
}

// encodeFileIDs packs a sorted posting list as uvarint deltas. Delta
// encoding keeps blobs small because consecutive IDs in a posting list
// tend to be close together.
func encodeFileIDs(ids []index.FileID) []byte {
	buf := make([]byte, 0, len(ids))
	var tmp [binary.MaxVarintLen32]byte
	prev := uint64(0)
	for _, id := range ids {
		n := binary.PutUvarint(tmp[:], uint64(id)-prev)
		buf = append(buf, tmp[:n]...)
		prev = uint64(id)
	}
	return buf
}

// decodeFileIDs reverses encodeFileIDs.
func decodeFileIDs(data []byte) ([]index.FileID, error) {
	var ids []index.FileID
	prev := uint64(0)
	for len(data) > 0 {
		delta, n := binary.Uvarint(data)
		if n <= 0 {
			return nil, fmt.Errorf("malformed varint in posting blob")
		}
		prev += delta
		if prev > uint64(^uint32(0)) {
			return nil, fmt.Errorf("file id %d overflows uint32", prev)
		}
		ids = append(ids, index.FileID(prev))
		data = data[n:]
	}
	return ids, nil
}

// checksum hashes the snapshot payload so corruption (or a partial write
// under a crashed process) is detected on load instead of producing wrong
// search results.
func checksum(snap *index.Snapshot) string {
	h := xxhash.New()
	var tmp [8]byte
	writeUint := func(v uint64) {
		binary.LittleEndian.PutUint64(tmp[:], v)
		h.Write(tmp[:])
	}
	for _, f := range snap.Files {
		writeUint(uint64(f.ID))
		h.WriteString(f.Path)
		writeUint(uint64(f.ModTime.UnixNano()))
	}
	for _, p := range snap.Postings {
		writeUint(uint64(p.Trigram))
		for _, id := range p.FileIDs {
			writeUint(uint64(id))
		}
	}
	return fmt.Sprintf("%016x", h.Sum64())
}
