// Package store persists index snapshots in SQLite so a rebuilt process
// can resume from the previous run instead of re-reading every file. The
// in-memory index stays the source of truth; a snapshot is a cache that
// can be discarded and rebuilt at any time.
package store

import "time"

// SnapshotInfo describes one persisted snapshot.
type SnapshotInfo struct {
	ID           int64     `json:"id"`
	RootPath     string    `json:"root_path"`
	CreatedAt    time.Time `json:"created_at"`
	FileCount    int       `json:"file_count"`
	PostingCount int       `json:"posting_count"` // distinct trigrams persisted
	Checksum     string    `json:"checksum"`      // xxh64 over the snapshot payload
}
