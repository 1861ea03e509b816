package integrity_test

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"github.com/openclaw/clawguard/internal/integrity"
	"github.com/openclaw/clawguard/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFiles(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0644))
	}
}

func sha(s string) model.HashValue {
	sum := sha256.Sum256([]byte(s))
	return model.HashValue(hex.EncodeToString(sum[:]))
}

func TestFileHash(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"a.txt": "hello"})

	hash, size, err := integrity.FileHash(filepath.Join(dir, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, sha("hello"), hash)
	assert.Equal(t, int64(5), size)
}

func TestFileHash_SymlinkHashesTarget(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Symlink("/etc/passwd", filepath.Join(dir, "link")))

	hash, _, err := integrity.FileHash(filepath.Join(dir, "link"))
	require.NoError(t, err)
	assert.Equal(t, sha("/etc/passwd"), hash)
}

func TestFileHash_Missing(t *testing.T) {
	_, _, err := integrity.FileHash(filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}

func TestComposite_Format(t *testing.T) {
	files := map[string]model.HashValue{"b.py": "h2", "a.md": "h1"}
	assert.Equal(t, sha("a.md:h1b.py:h2"), integrity.Composite(files))
}

func TestComposite_EmptyIsHashOfEmptyString(t *testing.T) {
	assert.Equal(t, sha(""), integrity.Composite(nil))

	tree, err := integrity.DirectoryComposite(t.TempDir(), nil)
	require.NoError(t, err)
	assert.Equal(t, sha(""), tree.Composite)
	assert.Equal(t, 0, tree.FileCount())
}

func TestDirectoryComposite_Stable(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"SKILL.md":      "# alpha",
		"file2.py":      "print(2)",
		"lib/helper.py": "x = 1",
	})

	first, err := integrity.DirectoryComposite(dir, nil)
	require.NoError(t, err)
	second, err := integrity.DirectoryComposite(dir, nil)
	require.NoError(t, err)

	assert.Equal(t, first.Composite, second.Composite)
	assert.Equal(t, 3, first.FileCount())
	assert.Contains(t, first.Files, "lib/helper.py")
}

func TestDirectoryComposite_SensitiveToEachChange(t *testing.T) {
	base := map[string]string{"SKILL.md": "# a", "file2.py": "v1"}

	hashOf := func(mutate func(dir string)) model.HashValue {
		dir := t.TempDir()
		writeFiles(t, dir, base)
		if mutate != nil {
			mutate(dir)
		}
		tree, err := integrity.DirectoryComposite(dir, nil)
		require.NoError(t, err)
		return tree.Composite
	}

	original := hashOf(nil)
	modified := hashOf(func(dir string) { writeFiles(t, dir, map[string]string{"file2.py": "v2"}) })
	added := hashOf(func(dir string) { writeFiles(t, dir, map[string]string{"extra.sh": ""}) })
	removed := hashOf(func(dir string) { require.NoError(t, os.Remove(filepath.Join(dir, "file2.py"))) })

	assert.NotEqual(t, original, modified)
	assert.NotEqual(t, original, added)
	assert.NotEqual(t, original, removed)
}

func TestDirectoryComposite_RenameRootKeepsHash(t *testing.T) {
	parent := t.TempDir()
	dir := filepath.Join(parent, "alpha")
	writeFiles(t, dir, map[string]string{"SKILL.md": "# a", "x/y.txt": "y"})

	before, err := integrity.DirectoryComposite(dir, nil)
	require.NoError(t, err)

	renamed := filepath.Join(parent, "alpha-renamed")
	require.NoError(t, os.Rename(dir, renamed))
	after, err := integrity.DirectoryComposite(renamed, nil)
	require.NoError(t, err)

	assert.Equal(t, before.Composite, after.Composite)
}

func TestDirectoryComposite_Excludes(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"SKILL.md":                "# a",
		".git/HEAD":               "ref",
		"node_modules/x/index.js": "js",
		"debug.log":               "noise",
		"sub/trace.log":           "noise",
	})

	tree, err := integrity.DirectoryComposite(dir, integrity.DefaultExcluder([]string{"**/*.log"}))
	require.NoError(t, err)
	assert.Equal(t, []string{"SKILL.md"}, keys(tree.Files))
}

func TestDirectoryComposite_UnreadableFileSkipped(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root can read any file")
	}
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"SKILL.md": "# a", "secret.txt": "s"})
	require.NoError(t, os.Chmod(filepath.Join(dir, "secret.txt"), 0000))
	t.Cleanup(func() { os.Chmod(filepath.Join(dir, "secret.txt"), 0644) })

	tree, err := integrity.DirectoryComposite(dir, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"SKILL.md"}, keys(tree.Files))
	require.Len(t, tree.Skipped, 1)
	assert.Equal(t, "secret.txt", tree.Skipped[0].Path)
}

func TestDirectoryComposite_MissingRoot(t *testing.T) {
	_, err := integrity.DirectoryComposite(filepath.Join(t.TempDir(), "missing"), nil)
	assert.Error(t, err)
}

func keys(m map[string]model.HashValue) []string {
	var out []string
	for k := range m {
		out = append(out, k)
	}
	return sortStrings(out)
}
