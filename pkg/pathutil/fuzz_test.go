package pathutil_test

import (
	"strings"
	"testing"

	"github.com/openclaw/clawguard/pkg/pathutil"
)

// FuzzValidateSkillName ensures validation never panics and that every
// accepted name is safe to join under the skills directory.
func FuzzValidateSkillName(f *testing.F) {
	f.Add("")
	f.Add("alpha")
	f.Add("..")
	f.Add("../escape")
	f.Add("name/with/slash")
	f.Add(`name\with\backslash`)
	f.Add("name\x00null")
	f.Add(".quarantined-alpha")
	f.Add("café")

	f.Fuzz(func(t *testing.T, name string) {
		err := pathutil.ValidateSkillName(name)
		if err != nil {
			return
		}
		n := pathutil.NormalizeSkillName(name)
		if strings.ContainsAny(n, `/\`) || strings.HasPrefix(n, ".") || strings.Contains(n, "..") {
			t.Errorf("accepted unsafe name %q", name)
		}
	})
}
