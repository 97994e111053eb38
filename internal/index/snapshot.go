package index

import (
	"fmt"
	"time"

	"github.com/trigrep/trigrep/internal/codec"
)

// FileEntry is one indexed file in a snapshot.
type FileEntry struct {
	ID      FileID
	Path    string
	ModTime time.Time
}

// PostingEntry is one non-empty posting list in a snapshot.
type PostingEntry struct {
	Trigram codec.Trigram
	FileIDs []FileID
}

// Snapshot is a serializable copy of the index contents, used by the
// store package to persist and restore an index between runs.
type Snapshot struct {
	Files    []FileEntry
	Postings []PostingEntry
}

// Snapshot normalizes the index and returns a copy of its contents.
// Files appear in ID order; postings in trigram order.
func (x *Index) Snapshot() *Snapshot {
	x.Normalize()

	s := &Snapshot{
		Files: make([]FileEntry, 0, len(x.fileIDs)),
	}
	for id := 1; id < len(x.paths); id++ {
		path := x.paths[id]
		if path == "" {
			continue
		}
		s.Files = append(s.Files, FileEntry{
			ID:      FileID(id),
			Path:    path,
			ModTime: x.mtimes[path],
		})
	}
	for t, list := range x.postings {
		if len(list) == 0 {
			continue
		}
		ids := make([]FileID, len(list))
		copy(ids, list)
		s.Postings = append(s.Postings, PostingEntry{
			Trigram: codec.Trigram(t),
			FileIDs: ids,
		})
	}
	return s
}

// FromSnapshot rebuilds an index from a snapshot taken by Snapshot.
// File IDs are preserved so posting lists remain valid.
func FromSnapshot(s *Snapshot) (*Index, error) {
	x := New()
	for _, f := range s.Files {
		if f.ID == 0 {
			return nil, fmt.Errorf("snapshot contains reserved file id 0 for %q", f.Path)
		}
		for FileID(len(x.paths)) <= f.ID {
			x.paths = append(x.paths, "")
		}
		if x.paths[f.ID] != "" {
			return nil, fmt.Errorf("snapshot reuses file id %d", f.ID)
		}
		x.paths[f.ID] = f.Path
		x.fileIDs[f.Path] = f.ID
		x.mtimes[f.Path] = f.ModTime
	}
	for _, p := range s.Postings {
		if p.Trigram < 0 || p.Trigram >= codec.TrigramCount {
			return nil, fmt.Errorf("snapshot trigram %d out of range", p.Trigram)
		}
		for _, id := range p.FileIDs {
			if int(id) >= len(x.paths) || x.paths[id] == "" {
				return nil, fmt.Errorf("snapshot posting for trigram %d references unknown file id %d", p.Trigram, id)
			}
		}
		ids := make([]FileID, len(p.FileIDs))
		copy(ids, p.FileIDs)
		x.postings[p.Trigram] = ids
	}
	return x, nil
}
