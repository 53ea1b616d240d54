package sink

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// spool buffers written bytes in memory until memoryLimit is exceeded, then
// spills everything to a staging file under dir. It mirrors the bounded
// staging behavior expected while hashing streams of unknown size.
type spool struct {
	dir         string
	memoryLimit int

	buf  bytes.Buffer
	file *os.File
	size int64
}

func newSpool(dir string, memoryLimit int) *spool {
	return &spool{dir: dir, memoryLimit: memoryLimit}
}

func (s *spool) Write(p []byte) (int, error) {
	if s.file == nil && s.buf.Len()+len(p) > s.memoryLimit {
		if err := s.spill(); err != nil {
			return 0, err
		}
	}
	s.size += int64(len(p))
	if s.file != nil {
		return s.file.Write(p)
	}
	return s.buf.Write(p)
}

func (s *spool) spill() error {
	name := filepath.Join(s.dir, "staging-"+uuid.NewString())
	file, err := os.OpenFile(name, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0o600)
	if err != nil {
		return fmt.Errorf("create staging file: %w", err)
	}
	if _, err := file.Write(s.buf.Bytes()); err != nil {
		file.Close()
		_ = os.Remove(name)
		return fmt.Errorf("spill staging buffer: %w", err)
	}
	s.buf.Reset()
	s.file = file
	return nil
}

// Reader returns a reader over the full spooled content.
func (s *spool) Reader() (io.Reader, error) {
	if s.file == nil {
		return bytes.NewReader(s.buf.Bytes()), nil
	}
	if _, err := s.file.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("rewind staging file: %w", err)
	}
	return s.file, nil
}

// Size reports the number of bytes written so far.
func (s *spool) Size() int64 {
	return s.size
}

// Close releases the staging file, if any.
func (s *spool) Close() error {
	if s.file == nil {
		return nil
	}
	name := s.file.Name()
	err := s.file.Close()
	if removeErr := os.Remove(name); err == nil {
		err = removeErr
	}
	s.file = nil
	return err
}
