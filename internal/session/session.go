// Package session manages the temporary directory owned by one request.
package session

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/wapuda/ytbatch/internal/ids"
)

const dirPrefix = "yt-"

type Dir struct {
	path string

	once sync.Once
	err  error
}

// Create makes a new uniquely named directory under root (os.TempDir when
// empty). Each call yields a directory no other request shares.
func Create(root string) (*Dir, error) {
	if root == "" {
		root = os.TempDir()
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create temp root %s: %w", root, err)
	}
	path := filepath.Join(root, dirPrefix+ids.NewULID())
	// Mkdir, not MkdirAll: an existing directory means a collision.
	if err := os.Mkdir(path, 0o755); err != nil {
		return nil, fmt.Errorf("create session dir %s: %w", path, err)
	}
	return &Dir{path: path}, nil
}

func (d *Dir) Path() string { return d.path }

// Remove deletes the directory tree. Only the first call does work; later
// calls return the first result.
func (d *Dir) Remove() error {
	if d == nil {
		return nil
	}
	d.once.Do(func() {
		if err := os.RemoveAll(d.path); err != nil {
			d.err = fmt.Errorf("remove session dir %s: %w", d.path, err)
		}
	})
	return d.err
}

// Exists reports whether the directory is still on disk.
func (d *Dir) Exists() bool {
	if d == nil {
		return false
	}
	_, err := os.Stat(d.path)
	return err == nil
}
