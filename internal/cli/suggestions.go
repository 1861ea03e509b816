package cli

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/openclaw/clawguard/pkg/color"
	"github.com/openclaw/clawguard/pkg/errclass"
)

// knownSkills collects every skill name the workspace knows about: active,
// signed and quarantined.
func knownSkills(s *session) []string {
	seen := map[string]bool{}
	if active, err := s.ws.ListSkillDirs(); err == nil {
		for _, n := range active {
			seen[n] = true
		}
	}
	if m, err := s.store.Load(); err == nil {
		for n := range m.Skills {
			seen[n] = true
		}
	}
	if q, err := s.ws.ListQuarantinedDirs(); err == nil {
		for _, n := range q {
			seen[n] = true
		}
	}
	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// suggestSkills provides a suggestion string for an unknown skill name.
func suggestSkills(query string, s *session) string {
	known := knownSkills(s)
	if len(known) == 0 {
		return fmt.Sprintf("No skills found in %s.", s.ws.SkillsDir)
	}

	q := strings.ToLower(query)
	var matches []string
	for _, n := range known {
		if strings.HasPrefix(strings.ToLower(n), q) {
			matches = append(matches, color.Highlight(n))
		}
	}
	// If no prefix matches, try substring both ways
	if len(matches) == 0 {
		for _, n := range known {
			ln := strings.ToLower(n)
			if strings.Contains(ln, q) || strings.Contains(q, ln) {
				matches = append(matches, color.Highlight(n))
			}
		}
	}
	if len(matches) > 0 {
		hint := "Did you mean"
		if len(matches) > 1 {
			hint += " one of"
		}
		return fmt.Sprintf("%s: %s?", hint, strings.Join(matches, ", "))
	}
	return fmt.Sprintf("Run %s to see known skills.", color.Code("clawguard list"))
}

// notFoundHint decorates a not-found error for a named skill with
// suggestions. Other errors pass through.
func notFoundHint(s *session, err error, args []string) error {
	if err == nil || len(args) == 0 || !errors.Is(err, errclass.ErrNotFound) {
		return err
	}
	return fmt.Errorf("%w\n  %s", err, color.Dim(suggestSkills(args[0], s)))
}
