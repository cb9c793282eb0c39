package chunk

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
)

// ErrChunkWrite marks any I/O failure while creating the chunk
// directory, reading the input, or writing a chunk file.
var ErrChunkWrite = errors.New("chunk write failure")

// Splitter partitions a line stream into files of at most size records
// under dir. It is a single-pass iterator: Next writes the next chunk
// and returns its path, or io.EOF once the input is drained. At most
// one chunk file is open at any moment, and the whole input is never
// held in memory.
type Splitter struct {
	r    *bufio.Reader
	size int
	dir  string

	idx     int
	line    string
	pending bool
	done    bool
}

// NewSplitter prepares a splitter writing into dir, creating the
// directory (and parents) if needed. size must be positive.
func NewSplitter(r io.Reader, size int, dir string) (*Splitter, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: chunk size must be > 0, got %d", ErrChunkWrite, size)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create dir %s: %v", ErrChunkWrite, dir, err)
	}
	return &Splitter{r: bufio.NewReader(r), size: size, dir: dir}, nil
}

// Next writes the next chunk file and returns its path. It returns
// io.EOF when no records remain. Records are copied verbatim, newline
// included, so concatenating all chunks reproduces the input exactly;
// in particular a final record with no terminating newline stays
// unterminated. The final chunk may hold fewer than size records.
// Partially written files from a failed call are left on disk.
func (s *Splitter) Next() (string, error) {
	ok, err := s.scan()
	if err != nil {
		return "", err
	}
	if !ok {
		return "", io.EOF
	}

	path := filepath.Join(s.dir, Ordinal(s.idx))
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("%w: create %s: %v", ErrChunkWrite, path, err)
	}
	w := bufio.NewWriter(f)

	records := 0
	for {
		if _, err := w.WriteString(s.line); err != nil {
			f.Close()
			return "", fmt.Errorf("%w: write %s: %v", ErrChunkWrite, path, err)
		}
		s.pending = false
		records++
		if records == s.size {
			break
		}
		ok, err := s.scan()
		if err != nil {
			f.Close()
			return "", err
		}
		if !ok {
			break
		}
	}

	if err := w.Flush(); err != nil {
		f.Close()
		return "", fmt.Errorf("%w: flush %s: %v", ErrChunkWrite, path, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("%w: close %s: %v", ErrChunkWrite, path, err)
	}

	log.Debug().Str("chunk", path).Int("records", records).Msg("chunk written")
	s.idx++
	return path, nil
}

// scan advances to the next input record, keeping it (terminator and
// all) in s.line until a chunk consumes it. Returns false once the
// input is exhausted.
func (s *Splitter) scan() (bool, error) {
	if s.pending {
		return true, nil
	}
	if s.done {
		return false, nil
	}
	line, err := s.r.ReadString('\n')
	if err == io.EOF {
		s.done = true
		if line == "" {
			return false, nil
		}
		// Final record without a trailing newline.
		s.line = line
		s.pending = true
		return true, nil
	}
	if err != nil {
		s.done = true
		return false, fmt.Errorf("%w: read input: %v", ErrChunkWrite, err)
	}
	s.line = line
	s.pending = true
	return true, nil
}

// Ordinal formats a zero-based chunk/job index with 3-digit zero
// padding. Past 999 the width grows; names stay unique.
func Ordinal(i int) string {
	return fmt.Sprintf("%03d", i)
}
