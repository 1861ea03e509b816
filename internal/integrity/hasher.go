// Package integrity computes content digests for files, skill directories
// and whole workspaces. Ordering is always explicit so results never depend
// on filesystem iteration order.
package integrity

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/openclaw/clawguard/internal/workspace"
	"github.com/openclaw/clawguard/pkg/logging"
	"github.com/openclaw/clawguard/pkg/model"
)

// SkippedFile is a file that could not be hashed during a walk.
type SkippedFile struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

// Tree is the hashed content of a directory.
type Tree struct {
	Composite model.HashValue
	Files     map[string]model.HashValue
	Sizes     map[string]int64
	Skipped   []SkippedFile
}

// FileCount returns the number of hashed files.
func (t *Tree) FileCount() int {
	return len(t.Files)
}

// Excluder decides which directories and files a walk skips.
// Paths are slash-separated and relative to the walk root.
type Excluder struct {
	// SkipDir matches directory base names.
	SkipDir func(name string) bool
	// SkipPaths lists relative directory paths skipped in full.
	SkipPaths map[string]bool
	// Globs are doublestar patterns matched against relative paths.
	Globs []string
}

// DefaultExcluder skips the control directories and the given globs.
func DefaultExcluder(globs []string) *Excluder {
	return &Excluder{SkipDir: workspace.IsControlDir, Globs: globs}
}

func (e *Excluder) dir(rel, name string) bool {
	if e == nil {
		return false
	}
	if e.SkipDir != nil && e.SkipDir(name) {
		return true
	}
	if e.SkipPaths[rel] {
		return true
	}
	return e.glob(rel)
}

func (e *Excluder) file(rel string) bool {
	return e != nil && e.glob(rel)
}

func (e *Excluder) glob(rel string) bool {
	for _, pattern := range e.Globs {
		if ok, _ := doublestar.Match(pattern, rel); ok {
			return true
		}
	}
	return false
}

// FileHash returns the streaming SHA-256 of a file. A symlink hashes its
// target string and is never followed.
func FileHash(path string) (model.HashValue, int64, error) {
	info, err := os.Lstat(path)
	if err != nil {
		return "", 0, err
	}
	h := sha256.New()
	if info.Mode()&os.ModeSymlink != 0 {
		target, err := os.Readlink(path)
		if err != nil {
			return "", 0, fmt.Errorf("read symlink: %w", err)
		}
		h.Write([]byte(target))
		return model.HashValue(hex.EncodeToString(h.Sum(nil))), int64(len(target)), nil
	}

	f, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()
	n, err := io.Copy(h, f)
	if err != nil {
		return "", 0, fmt.Errorf("read file: %w", err)
	}
	return model.HashValue(hex.EncodeToString(h.Sum(nil))), n, nil
}

// Composite hashes the concatenation of "<rel>:<hash>" in sorted path order.
// An empty table hashes to SHA-256 of the empty string.
func Composite(files map[string]model.HashValue) model.HashValue {
	paths := make([]string, 0, len(files))
	for p := range files {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	h := sha256.New()
	for _, p := range paths {
		io.WriteString(h, p)
		io.WriteString(h, ":")
		io.WriteString(h, string(files[p]))
	}
	return model.HashValue(hex.EncodeToString(h.Sum(nil)))
}

// DirectoryComposite walks root and hashes every included file. Files that
// cannot be read are recorded in Skipped and contribute no hash. Only a
// failure to walk root itself is returned as an error.
func DirectoryComposite(root string, ex *Excluder) (*Tree, error) {
	return walk(root, ex, nil)
}

func walk(root string, ex *Excluder, visit func(rel string)) (*Tree, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", root)
	}

	tree := &Tree{
		Files: make(map[string]model.HashValue),
		Sizes: make(map[string]int64),
	}
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if path == root {
			return err
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return relErr
		}
		rel = filepath.ToSlash(rel)
		if err != nil {
			tree.skip(rel, err)
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if ex.dir(rel, d.Name()) {
				return fs.SkipDir
			}
			return nil
		}
		if ex.file(rel) {
			return nil
		}
		if !d.Type().IsRegular() && d.Type()&fs.ModeSymlink == 0 {
			return nil
		}
		hash, size, err := FileHash(path)
		if err != nil {
			tree.skip(rel, err)
			return nil
		}
		tree.Files[rel] = hash
		tree.Sizes[rel] = size
		if visit != nil {
			visit(rel)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", root, err)
	}
	tree.Composite = Composite(tree.Files)
	return tree, nil
}

func (t *Tree) skip(rel string, err error) {
	t.Skipped = append(t.Skipped, SkippedFile{Path: rel, Reason: err.Error()})
	logging.Warn("skipping unreadable file", map[string]any{"path": rel, "error": err.Error()})
}
