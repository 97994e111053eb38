package fs

import (
	"io"
	"os"
)

// ChunkReader reads a file in bounded chunks. Successive chunks overlap
// by a fixed number of bytes so that byte windows spanning a chunk
// boundary appear whole in one of the two chunks.
type ChunkReader struct {
	f       *os.File
	buf     []byte
	offset  int64
	overlap int64
}

// OpenChunkReader opens path for chunked reading. chunkSize must be
// greater than overlap.
func OpenChunkReader(path string, chunkSize, overlap int) (*ChunkReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return &ChunkReader{
		f:       f,
		buf:     make([]byte, chunkSize),
		overlap: int64(overlap),
	}, nil
}

// Next reads the next chunk. The returned slice is valid until the next
// call. A chunk shorter than overlap+1 bytes (including an empty one)
// means the file is exhausted; the caller should stop reading.
func (r *ChunkReader) Next() ([]byte, error) {
	n, err := r.f.ReadAt(r.buf, r.offset)
	if err != nil && err != io.EOF {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	r.offset += int64(n) - r.overlap
	return r.buf[:n], nil
}

// Close closes the underlying file.
func (r *ChunkReader) Close() error {
	return r.f.Close()
}
