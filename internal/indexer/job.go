package indexer

import (
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"

	"github.com/trigrep/trigrep/internal/codec"
	"github.com/trigrep/trigrep/internal/fs"
)

// readOverlap is how many bytes successive chunk reads share, so that a
// trigram straddling a chunk boundary is seen whole in one of them.
const readOverlap = 2

// Callbacks receives job lifecycle notifications. All callbacks are
// invoked from the service's worker goroutine; they must not block and
// must not call back into the service synchronously.
type Callbacks struct {
	// OnTotal reports how many files need indexing, once collection is
	// complete.
	OnTotal func(total int)

	// OnProgress reports the number of files processed since the last
	// notification. Notifications are throttled and batched.
	OnProgress func(worked int)

	// OnDone fires when the job has indexed every pending file.
	OnDone func()
}

// pendingFile is one file queued for indexing, with the modification
// time captured at collection. That captured time is what gets committed
// so a write racing the job forces a re-index on the next pass.
type pendingFile struct {
	path    string
	modTime time.Time
}

// Job walks a directory tree and feeds changed files into the index. It
// advances one small step at a time on the service worker, so concurrent
// jobs and searches interleave and Stop takes effect promptly.
type Job struct {
	svc     *Service
	root    string
	cb      Callbacks
	stopped atomic.Bool

	pending []pendingFile
	next    int

	reader      *fs.ChunkReader
	current     pendingFile
	trigramSeen []bool // one flag per trigram, reset between files
	trigrams    []codec.Trigram

	worked     int // files processed since the last progress callback
	lastNotify time.Time
}

// Stop cancels the job cooperatively. The step in flight finishes its
// unit of work; no callbacks fire afterwards. Commits already made stay
// in the index. Safe to call from any goroutine, more than once.
func (j *Job) Stop() {
	j.stopped.Store(true)
}

// collect enumerates files under the root and queues those whose on-disk
// modification time is newer than what the index has recorded.
func (j *Job) collect() {
	if j.stopped.Load() {
		return
	}

	walkOpts := j.svc.walkOpts
	walkOpts.Root = j.root
	walker, err := fs.NewFileWalker(walkOpts)
	if err != nil {
		log.Warn("Cannot enumerate index root", "root", j.root, "error", err)
		j.notifyTotal(0)
		j.finish()
		return
	}

	err = walker.Walk(func(fi fs.FileInfo) error {
		if j.stopped.Load() {
			return fs.SkipAll
		}
		last, ok := j.svc.idx.LastModified(fi.Path)
		if !ok || fi.ModTime.After(last) {
			j.pending = append(j.pending, pendingFile{path: fi.Path, modTime: fi.ModTime})
		}
		return nil
	})
	if err != nil {
		log.Warn("Enumeration failed", "root", j.root, "error", err)
	}
	if j.stopped.Load() {
		return
	}

	log.Debug("Collected files to index", "root", j.root, "pending", len(j.pending))
	j.notifyTotal(len(j.pending))
	j.lastNotify = time.Now()
	j.svc.worker.post(j.openNextFile)
}

// openNextFile starts indexing the next pending file, or finishes the
// job when the queue is exhausted.
func (j *Job) openNextFile() {
	if j.stopped.Load() {
		return
	}
	if j.next >= len(j.pending) {
		j.svc.idx.Normalize()
		j.finish()
		return
	}

	j.current = j.pending[j.next]
	j.next++

	reader, err := fs.OpenChunkReader(j.current.path, j.svc.chunkSize, readOverlap)
	if err != nil {
		// Single-file failure: skip it, keep the job going.
		log.Debug("Cannot open file for indexing", "path", j.current.path, "error", err)
		j.fileProcessed()
		j.svc.worker.post(j.openNextFile)
		return
	}

	j.reader = reader
	if j.trigramSeen == nil {
		j.trigramSeen = make([]bool, codec.TrigramCount)
	}
	j.trigrams = j.trigrams[:0]
	if !j.svc.worker.post(j.readChunk) {
		j.closeReader()
	}
}

// readChunk consumes one chunk of the open file.
func (j *Job) readChunk() {
	if j.stopped.Load() {
		j.closeReader()
		return
	}

	chunk, err := j.reader.Next()
	if err != nil {
		log.Debug("Read failed, skipping file", "path", j.current.path, "error", err)
		j.abandonFile()
		return
	}

	// A read shorter than a trigram means the file is exhausted.
	if len(chunk) < 3 {
		j.finishFile()
		return
	}

	for _, b := range chunk {
		if codec.IsBinaryChar(b) {
			// Binary content is excluded from the index outright.
			j.abandonFile()
			return
		}
	}

	chars := codec.TrigramChars(chunk)
	for i := 0; i+2 < len(chars); i++ {
		t := codec.TrigramAt(chars, i)
		if t != codec.UndefinedTrigram && !j.trigramSeen[t] {
			j.trigramSeen[t] = true
			j.trigrams = append(j.trigrams, t)
		}
	}

	if !j.svc.worker.post(j.readChunk) {
		j.closeReader()
	}
}

// finishFile commits the accumulated trigrams and moves on.
func (j *Job) finishFile() {
	j.closeReader()
	if len(j.trigrams) > 0 {
		j.svc.idx.AddFile(j.current.path, j.trigrams, j.current.modTime)
	}
	j.resetFileState()
	j.fileProcessed()
	j.svc.worker.post(j.openNextFile)
}

// abandonFile discards the file without committing anything. The file
// still counts as processed.
func (j *Job) abandonFile() {
	j.closeReader()
	j.resetFileState()
	j.fileProcessed()
	j.svc.worker.post(j.openNextFile)
}

func (j *Job) closeReader() {
	if j.reader != nil {
		if err := j.reader.Close(); err != nil {
			log.Debug("Close failed", "path", j.current.path, "error", err)
		}
		j.reader = nil
	}
}

func (j *Job) resetFileState() {
	for _, t := range j.trigrams {
		j.trigramSeen[t] = false
	}
	j.trigrams = j.trigrams[:0]
}

// fileProcessed advances the progress counter and notifies the caller at
// most once per progress interval, batching the count in between.
func (j *Job) fileProcessed() {
	j.worked++
	if time.Since(j.lastNotify) >= j.svc.progressInterval {
		j.notifyProgress()
	}
}

func (j *Job) notifyTotal(total int) {
	if j.cb.OnTotal != nil {
		j.cb.OnTotal(total)
	}
}

func (j *Job) notifyProgress() {
	if j.worked > 0 && j.cb.OnProgress != nil {
		j.cb.OnProgress(j.worked)
	}
	j.worked = 0
	j.lastNotify = time.Now()
}

func (j *Job) finish() {
	j.notifyProgress()
	if j.cb.OnDone != nil {
		j.cb.OnDone()
	}
}
