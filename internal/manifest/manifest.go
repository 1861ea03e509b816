// Package manifest maintains the trust manifest: the signed composite hash
// and per-file hash table of every trusted skill.
package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/openclaw/clawguard/internal/diff"
	"github.com/openclaw/clawguard/internal/integrity"
	"github.com/openclaw/clawguard/internal/schema"
	"github.com/openclaw/clawguard/internal/workspace"
	"github.com/openclaw/clawguard/pkg/errclass"
	"github.com/openclaw/clawguard/pkg/fsutil"
	"github.com/openclaw/clawguard/pkg/jsonutil"
	"github.com/openclaw/clawguard/pkg/logging"
	"github.com/openclaw/clawguard/pkg/model"
	"github.com/openclaw/clawguard/pkg/pathutil"
)

// Recorder audits toolchain actions. The ledger implements it.
type Recorder interface {
	RecordAction(action *model.SkillAction) (model.HashValue, error)
}

// Store reads, signs and verifies against the workspace trust manifest.
type Store struct {
	ws  *workspace.Workspace
	rec Recorder
	log *logging.Logger
}

// New creates a Store. rec may be nil, in which case actions are not audited.
func New(ws *workspace.Workspace, rec Recorder) *Store {
	return &Store{
		ws:  ws,
		rec: rec,
		log: logging.WithFields(map[string]any{"component": "manifest"}),
	}
}

// Load reads and validates the manifest.
func (s *Store) Load() (*model.Manifest, error) {
	data, err := os.ReadFile(s.ws.ManifestPath)
	if os.IsNotExist(err) {
		return nil, errclass.ErrNotFound.WithMessage("no trust manifest found, run 'sign' first")
	}
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var m model.Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, errclass.ErrCorruptData.WithMessagef("manifest %s: %v", s.ws.ManifestPath, err)
	}
	if err := schema.Validate(schema.Manifest, data); err != nil {
		return nil, err
	}
	if m.Skills == nil {
		m.Skills = make(map[string]model.SkillSignature)
	}
	return &m, nil
}

// LoadOrNew returns the manifest, or a fresh one when none exists yet. A
// corrupt manifest is still an error.
func (s *Store) LoadOrNew() (*model.Manifest, error) {
	m, err := s.Load()
	if errors.Is(err, errclass.ErrNotFound) {
		return model.NewManifest(s.ws.Now()), nil
	}
	return m, err
}

// Save writes the manifest atomically with sorted keys.
func (s *Store) Save(m *model.Manifest) error {
	if err := s.ws.EnsureSignetDirs(); err != nil {
		return err
	}
	data, err := jsonutil.MarshalSortedIndent(m)
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	return fsutil.AtomicWrite(s.ws.ManifestPath, data, 0644)
}

// HashSkill computes the composite of an active skill directory.
func (s *Store) HashSkill(name string) (*integrity.Tree, error) {
	return s.HashDir(s.ws.SkillPath(name))
}

// HashDir hashes any skill-shaped tree, such as a snapshot copy.
func (s *Store) HashDir(dir string) (*integrity.Tree, error) {
	tree, err := integrity.DirectoryComposite(dir, integrity.SkillExcluder(s.ws))
	if err != nil {
		return nil, fmt.Errorf("hash %s: %w", dir, err)
	}
	return tree, nil
}

// Signed is one skill recorded by Sign.
type Signed struct {
	Skill         string          `json:"skill"`
	CompositeHash model.HashValue `json:"composite_hash"`
	FileCount     int             `json:"file_count"`
	Skipped       int             `json:"skipped,omitempty"`
}

// Sign records the current state of the named skills as trusted, or of
// every active skill when no names are given.
func (s *Store) Sign(names ...string) ([]Signed, error) {
	active, err := s.ws.ListSkillDirs()
	if err != nil {
		return nil, err
	}
	targets := active
	if len(names) > 0 {
		targets, err = s.resolveActive(active, names)
		if err != nil {
			return nil, err
		}
	}

	m, err := s.LoadOrNew()
	if err != nil {
		return nil, err
	}

	now := model.FormatTime(s.ws.Now())
	out := make([]Signed, 0, len(targets))
	for _, name := range targets {
		tree, err := s.HashSkill(name)
		if err != nil {
			return nil, err
		}
		m.Skills[name] = model.SkillSignature{
			CompositeHash: tree.Composite,
			Files:         tree.Files,
			SignedAt:      now,
			FileCount:     tree.FileCount(),
		}
		out = append(out, Signed{
			Skill:         name,
			CompositeHash: tree.Composite,
			FileCount:     tree.FileCount(),
			Skipped:       len(tree.Skipped),
		})
	}
	m.Updated = now
	if err := s.Save(m); err != nil {
		return nil, err
	}

	for _, sg := range out {
		s.record(&model.SkillAction{Action: model.ActionSign, Skill: sg.Skill, CompositeHash: sg.CompositeHash})
	}
	return out, nil
}

func (s *Store) resolveActive(active, names []string) ([]string, error) {
	set := make(map[string]bool, len(active))
	for _, n := range active {
		set[n] = true
	}
	out := make([]string, 0, len(names))
	for _, n := range names {
		if err := pathutil.ValidateSkillName(n); err != nil {
			return nil, err
		}
		n = pathutil.NormalizeSkillName(n)
		if !set[n] {
			return nil, errclass.ErrNotFound.WithMessagef("skill not found: %s", n)
		}
		out = append(out, n)
	}
	return out, nil
}

// Update replaces one manifest entry, used when a trusted snapshot is
// reinstated.
func (s *Store) Update(name string, sig model.SkillSignature) error {
	m, err := s.LoadOrNew()
	if err != nil {
		return err
	}
	m.Skills[name] = sig
	m.Updated = model.FormatTime(s.ws.Now())
	return s.Save(m)
}

func (s *Store) record(action *model.SkillAction) {
	if s.rec == nil {
		return
	}
	if _, err := s.rec.RecordAction(action); err != nil {
		s.log.Warn("could not audit action", map[string]any{
			"action": string(action.Action),
			"skill":  action.Skill,
			"error":  err.Error(),
		})
	}
}

// Verdict classifies one skill against the manifest.
type Verdict struct {
	Skill    string                  `json:"skill"`
	Status   model.VerifyStatus      `json:"status"`
	Expected model.HashValue         `json:"expected,omitempty"`
	Actual   model.HashValue         `json:"actual,omitempty"`
	Diff     *diff.FileDiff          `json:"diff,omitempty"`
	Skipped  []integrity.SkippedFile `json:"skipped,omitempty"`
}

// Verify classifies the named skill. It never modifies the manifest.
func (s *Store) Verify(m *model.Manifest, name string) (*Verdict, error) {
	v := &Verdict{Skill: name}
	trusted, signed := m.Skills[name]

	if !fsutil.IsDir(s.ws.SkillPath(name)) {
		switch {
		case fsutil.IsDir(s.ws.QuarantinedPath(name)):
			v.Status = model.StatusQuarantined
		case signed:
			v.Status = model.StatusMissing
		default:
			return nil, errclass.ErrNotFound.WithMessagef("skill not found: %s", name)
		}
		if signed {
			v.Expected = trusted.CompositeHash
		}
		return v, nil
	}

	if !signed {
		v.Status = model.StatusUnsigned
		return v, nil
	}

	tree, err := s.HashSkill(name)
	if err != nil {
		return nil, err
	}
	v.Expected = trusted.CompositeHash
	v.Actual = tree.Composite
	v.Skipped = tree.Skipped
	if tree.Composite == trusted.CompositeHash {
		v.Status = model.StatusVerified
		return v, nil
	}
	v.Status = model.StatusTampered
	v.Diff = diff.Files(trusted.Files, tree.Files)
	return v, nil
}
