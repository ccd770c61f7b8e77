package audio

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

const segmentExt = ".wav"

// StorageError reports a failed operation on segment storage
type StorageError struct {
	Op   string // "open", "write", "close", "read", "remove", "list"
	Path string
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("segment storage %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// Store maps segment sequence numbers to files in a single directory.
// Files are named <prefix><seq>.wav.
type Store struct {
	dir    string
	prefix string
}

// NewStore creates the storage directory if needed
func NewStore(dir, prefix string) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("storage directory cannot be empty")
	}
	if prefix == "" {
		return nil, fmt.Errorf("file prefix cannot be empty")
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, &StorageError{Op: "open", Path: dir, Err: err}
	}

	return &Store{dir: dir, prefix: prefix}, nil
}

// Dir returns the storage directory
func (s *Store) Dir() string {
	return s.dir
}

// Path returns the file path for a sequence number
func (s *Store) Path(seq uint64) string {
	return filepath.Join(s.dir, s.prefix+strconv.FormatUint(seq, 10)+segmentExt)
}

// Create opens a new segment file for writing
func (s *Store) Create(seq uint64, channels, sampleRate int) (*WAVWriter, error) {
	path := s.Path(seq)
	w, err := CreateWAV(path, channels, sampleRate)
	if err != nil {
		return nil, &StorageError{Op: "open", Path: path, Err: err}
	}
	return w, nil
}

// Read returns the full contents of a finalized segment
func (s *Store) Read(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &StorageError{Op: "read", Path: path, Err: err}
	}
	return data, nil
}

// Remove deletes a segment file. A file that is already gone is not an error.
func (s *Store) Remove(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return &StorageError{Op: "remove", Path: path, Err: err}
	}
	return nil
}

// List returns the segment files currently in storage ordered by sequence number
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, &StorageError{Op: "list", Path: s.dir, Err: err}
	}

	type numbered struct {
		seq  uint64
		path string
	}
	found := make([]numbered, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		seq, ok := s.parseSeq(entry.Name())
		if !ok {
			continue
		}
		found = append(found, numbered{seq: seq, path: filepath.Join(s.dir, entry.Name())})
	}

	sort.Slice(found, func(i, j int) bool { return found[i].seq < found[j].seq })

	paths := make([]string, len(found))
	for i, f := range found {
		paths[i] = f.path
	}
	return paths, nil
}

// Purge removes every segment file in storage and returns how many were removed.
// Files that do not follow the segment naming scheme are left alone.
func (s *Store) Purge() (int, error) {
	paths, err := s.List()
	if err != nil {
		return 0, err
	}

	removed := 0
	var errs []error
	for _, path := range paths {
		if err := os.Remove(path); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				errs = append(errs, &StorageError{Op: "remove", Path: path, Err: err})
			}
			continue
		}
		removed++
	}

	return removed, errors.Join(errs...)
}

func (s *Store) parseSeq(name string) (uint64, bool) {
	if !strings.HasPrefix(name, s.prefix) || !strings.HasSuffix(name, segmentExt) {
		return 0, false
	}
	digits := strings.TrimSuffix(strings.TrimPrefix(name, s.prefix), segmentExt)
	seq, err := strconv.ParseUint(digits, 10, 64)
	if err != nil {
		return 0, false
	}
	return seq, true
}
