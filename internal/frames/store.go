// Package frames implements the Frame Store: a read-only catalog of
// per-frame image files indexed by 0-based frame index, grounded on
// relay/cv/storage.go's StorageManager (baseDir + mutex-guarded metadata)
// adapted from a UUID-keyed registry of live-extracted frames to a
// numbered, on-demand directory scan of pre-extracted frame files.
package frames

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"

	"videoredact/internal/apperr"
)

var frameFileRE = regexp.MustCompile(`^frame_(\d{6})\.jpg$`)

// Store is a read-only view over one video's extracted frame directory.
// The mapping between 0-based frame_index and 1-based on-disk file number
// is the invariant this type exists to enforce: file_number = frame_index+1.
type Store struct {
	dir string
}

// Open returns a Store for the frame directory dir. It does not itself
// validate that dir exists; List/Read surface that as apperr.ErrStorage.
func Open(dir string) *Store {
	return &Store{dir: dir}
}

// List returns the ordered, 0-based frame indices present on disk. The
// result is finite and restartable: calling it twice yields the same
// sequence unless the directory changed underneath it.
func (s *Store) List() ([]int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("%w: list frames in %s: %v", apperr.ErrStorage, s.dir, err)
	}

	var indices []int
	for _, ent := range entries {
		if ent.IsDir() {
			continue
		}
		m := frameFileRE.FindStringSubmatch(ent.Name())
		if m == nil {
			continue
		}
		fileNumber := 0
		fmt.Sscanf(m[1], "%d", &fileNumber)
		indices = append(indices, fileNumber-1)
	}

	sort.Ints(indices)
	return indices, nil
}

// Read returns the JPEG bytes for frameIndex, translating to the 1-based
// on-disk file number at this boundary only.
func (s *Store) Read(frameIndex int) ([]byte, error) {
	path := s.framePath(frameIndex)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: frame %d not found at %s", apperr.ErrStorage, frameIndex, path)
		}
		return nil, fmt.Errorf("%w: read frame %d: %v", apperr.ErrStorage, frameIndex, err)
	}
	return data, nil
}

// Path returns the on-disk path for frameIndex without reading it, for
// callers (the Frame Processing Engine) that only need a source path for a
// byte-copy fast path.
func (s *Store) Path(frameIndex int) string {
	return s.framePath(frameIndex)
}

func (s *Store) framePath(frameIndex int) string {
	fileNumber := frameIndex + 1
	return filepath.Join(s.dir, fmt.Sprintf("frame_%06d.jpg", fileNumber))
}

// TotalFrames returns the number of frame files present.
func (s *Store) TotalFrames() (int, error) {
	indices, err := s.List()
	if err != nil {
		return 0, err
	}
	return len(indices), nil
}

// MaxIndex returns the highest 0-based frame index present, or -1 if the
// directory is empty.
func (s *Store) MaxIndex() (int, error) {
	indices, err := s.List()
	if err != nil {
		return 0, err
	}
	if len(indices) == 0 {
		return -1, nil
	}
	return indices[len(indices)-1], nil
}
