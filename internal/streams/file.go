package streams

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// FileStream adapts an on-disk temporary file. Unlike network-backed streams
// it is restartable, which lets a destination retry an upload without
// re-fetching the source.
type FileStream struct {
	f      *os.File
	size   int64
	remove bool
}

// NewFile wraps an open file. The file's current length is the declared size.
func NewFile(f *os.File) (*FileStream, error) {
	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat stream file: %w", err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("rewind stream file: %w", err)
	}
	return &FileStream{f: f, size: info.Size()}, nil
}

// Spool drains src into a temporary file under dir and returns a restartable
// stream with a known size. It exists for destinations that demand a known
// length when the source cannot provide one; the temporary file is deleted on
// Close.
func Spool(src Stream, dir string) (*FileStream, error) {
	if dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create spool dir: %w", err)
		}
	}
	f, err := os.CreateTemp(dir, "spool-*")
	if err != nil {
		return nil, fmt.Errorf("create spool file: %w", err)
	}
	if _, err := io.Copy(f, src); err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, fmt.Errorf("spool stream: %w", err)
	}
	fs, err := NewFile(f)
	if err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, err
	}
	fs.remove = true
	return fs, nil
}

func (s *FileStream) Read(p []byte) (int, error) { return s.f.Read(p) }

func (s *FileStream) Close() error {
	err := s.f.Close()
	if s.remove {
		if rmErr := os.Remove(s.f.Name()); rmErr != nil && err == nil {
			err = rmErr
		}
	}
	return err
}

func (s *FileStream) Size() int64 { return s.size }

// Restart rewinds the stream to the beginning.
func (s *FileStream) Restart() error {
	_, err := s.f.Seek(0, io.SeekStart)
	return err
}

// Name returns the backing file path.
func (s *FileStream) Name() string { return filepath.Clean(s.f.Name()) }
