// Package registry resolves the model artifact the backing server loads.
package registry

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"scoringd/internal/common/fsutil"
)

// ErrNoModel is returned when a directory tree holds no *.gguf file.
var ErrNoModel = errors.New("no .gguf model found")

// Artifact is a model file found on disk. ID is the file name, Path absolute.
type Artifact struct {
	ID   string
	Path string
}

// GGUFScanner walks a directory tree for *.gguf files. Each directory's own
// files are checked before its subdirectories, both in lexical order, so a
// model at the top of the tree wins over one in a nested version directory.
type GGUFScanner struct{}

func NewGGUFScanner() *GGUFScanner { return &GGUFScanner{} }

// Scan returns every *.gguf under dir in walk order.
func (s *GGUFScanner) Scan(dir string) ([]Artifact, error) {
	var out []Artifact
	err := s.walk(dir, func(a Artifact) bool {
		out = append(out, a)
		return true
	})
	return out, err
}

// First returns the first *.gguf under dir in walk order.
func (s *GGUFScanner) First(dir string) (Artifact, error) {
	var found *Artifact
	err := s.walk(dir, func(a Artifact) bool {
		found = &a
		return false
	})
	if err != nil {
		return Artifact{}, err
	}
	if found == nil {
		return Artifact{}, fmt.Errorf("%w under %s", ErrNoModel, dir)
	}
	return *found, nil
}

func (s *GGUFScanner) walk(dir string, visit func(Artifact) bool) error {
	base, err := fsutil.ExpandHome(dir)
	if err != nil {
		return err
	}
	abs, err := filepath.Abs(base)
	if err != nil {
		return fmt.Errorf("abs path: %w", err)
	}
	if !fsutil.PathExists(abs) {
		return fmt.Errorf("read dir: %s does not exist", abs)
	}
	if _, err := walkDir(abs, visit); err != nil {
		return fmt.Errorf("read dir: %w", err)
	}
	return nil
}

// walkDir reports whether the walk should continue.
func walkDir(dir string, visit func(Artifact) bool) (bool, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false, err
	}
	var subdirs []string
	for _, e := range entries {
		if e.IsDir() {
			subdirs = append(subdirs, filepath.Join(dir, e.Name()))
			continue
		}
		if !strings.HasSuffix(strings.ToLower(e.Name()), ".gguf") {
			continue
		}
		if !visit(Artifact{ID: e.Name(), Path: filepath.Join(dir, e.Name())}) {
			return false, nil
		}
	}
	for _, sub := range subdirs {
		more, err := walkDir(sub, visit)
		if err != nil || !more {
			return more, err
		}
	}
	return true, nil
}

// FindModel returns the path of the first *.gguf anywhere under dir.
func FindModel(dir string) (string, error) {
	a, err := NewGGUFScanner().First(dir)
	if err != nil {
		return "", err
	}
	return a.Path, nil
}
