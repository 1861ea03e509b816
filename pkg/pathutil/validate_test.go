package pathutil_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/openclaw/clawguard/pkg/errclass"
	"github.com/openclaw/clawguard/pkg/pathutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateSkillName_Valid(t *testing.T) {
	for _, name := range []string{"alpha", "web-search", "tool_v2", "a.b", "X9"} {
		assert.NoError(t, pathutil.ValidateSkillName(name), name)
	}
}

func TestValidateSkillName_Invalid(t *testing.T) {
	cases := []string{
		"",
		"..",
		"a..b",
		"a/b",
		`a\b`,
		".hidden",
		".quarantined-alpha",
		"tab\tname",
		"space name",
		"émoji🙂",
	}
	for _, name := range cases {
		err := pathutil.ValidateSkillName(name)
		require.Error(t, err, name)
		assert.True(t, errors.Is(err, errclass.ErrNameInvalid), name)
	}
}

func TestNormalizeSkillName(t *testing.T) {
	decomposed := "café"
	assert.Equal(t, "café", pathutil.NormalizeSkillName(decomposed))
}

func TestValidatePathSafety(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "skills", "alpha"), 0755))

	assert.NoError(t, pathutil.ValidatePathSafety(root, filepath.Join(root, "skills", "alpha")))
	assert.NoError(t, pathutil.ValidatePathSafety(root, filepath.Join(root, "skills", "not-yet", "deep")))

	err := pathutil.ValidatePathSafety(root, filepath.Join(root, "..", "outside"))
	assert.True(t, errors.Is(err, errclass.ErrPathEscape))
}

func TestValidatePathSafety_SymlinkEscape(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()
	link := filepath.Join(root, "skills")
	require.NoError(t, os.Symlink(outside, link))

	err := pathutil.ValidatePathSafety(root, filepath.Join(link, "alpha"))
	assert.True(t, errors.Is(err, errclass.ErrPathEscape))
}
