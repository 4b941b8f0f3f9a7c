// Package filestore keeps uploaded documents in a local directory.
package filestore

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// sniffLen is how much of an upload is read for content detection.
const sniffLen = 3072

// ErrUnsupportedType is returned for uploads that are neither PDF nor text,
// or whose content does not match their extension.
var ErrUnsupportedType = errors.New("unsupported file type")

// LocalStore implements ports.FileStore on a directory.
type LocalStore struct {
	dir string
}

// NewLocalStore creates a store rooted at dir. The directory is created
// lazily on the first Save.
func NewLocalStore(dir string) *LocalStore {
	return &LocalStore{dir: dir}
}

// Dir returns the backing directory.
func (s *LocalStore) Dir() string {
	return s.dir
}

// Check validates an upload before anything is written: the name must be
// a visible file name and the content must match a supported extension.
// The returned reader replays the whole upload.
func (s *LocalStore) Check(name string, r io.Reader) (io.Reader, error) {
	base := filepath.Base(name)
	if base == "." || base == string(filepath.Separator) || strings.HasPrefix(base, ".") {
		return nil, fmt.Errorf("invalid file name %q", name)
	}

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(r, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, err
	}
	head = head[:n]
	if err := Sniff(base, head); err != nil {
		return nil, err
	}
	return io.MultiReader(bytes.NewReader(head), r), nil
}

// Save checks r, then writes it to dir/base(name), replacing an existing
// file.
func (s *LocalStore) Save(name string, r io.Reader) (string, error) {
	body, err := s.Check(name, r)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return "", err
	}

	path := filepath.Join(s.dir, filepath.Base(name))
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(f, body); err != nil {
		f.Close()
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	return path, nil
}

// List returns the paths of stored documents, sorted. A missing
// directory is an empty store.
func (s *LocalStore) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		paths = append(paths, filepath.Join(s.dir, e.Name()))
	}
	sort.Strings(paths)
	return paths, nil
}

// textExtensions are the names read as plain text.
var textExtensions = map[string]bool{".txt": true, ".md": true, ".markdown": true}

// Sniff accepts PDF content named .pdf and plain-text content named with
// one of the text extensions. Anything else is ErrUnsupportedType.
func Sniff(name string, head []byte) error {
	ext := strings.ToLower(filepath.Ext(name))
	mtype := mimetype.Detect(head)

	switch {
	case ext == ".pdf":
		if mtype.Is("application/pdf") {
			return nil
		}
	case textExtensions[ext]:
		for m := mtype; m != nil; m = m.Parent() {
			if m.Is("text/plain") {
				return nil
			}
		}
	default:
		return fmt.Errorf("%w: %s (only PDF and TXT files are accepted)", ErrUnsupportedType, name)
	}
	return fmt.Errorf("%w: %s has %s content", ErrUnsupportedType, name, mtype.String())
}
