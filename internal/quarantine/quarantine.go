// Package quarantine isolates tampered and unsigned skills.
//
// The state record in .signet/quarantine.json is authoritative. The
// ".quarantined-" directory prefix and the rejected directory are its
// rendering on disk.
package quarantine

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/google/uuid"

	"github.com/openclaw/clawguard/internal/diff"
	"github.com/openclaw/clawguard/internal/manifest"
	"github.com/openclaw/clawguard/internal/schema"
	"github.com/openclaw/clawguard/internal/workspace"
	"github.com/openclaw/clawguard/pkg/errclass"
	"github.com/openclaw/clawguard/pkg/fsutil"
	"github.com/openclaw/clawguard/pkg/jsonutil"
	"github.com/openclaw/clawguard/pkg/logging"
	"github.com/openclaw/clawguard/pkg/model"
	"github.com/openclaw/clawguard/pkg/pathutil"
)

// ResignAdvice is returned by Unquarantine. Trust is never restored
// implicitly.
const ResignAdvice = "skill is active again but not trusted; review it and run 'clawguard sign %s'"

const archiveTimeLayout = "20060102T150405Z"

// renameSkill moves an active skill into quarantine. Replaced in tests.
var renameSkill = fsutil.RenameAndSync

// Controller moves skills between the active, quarantined and rejected
// states.
type Controller struct {
	ws    *workspace.Workspace
	store *manifest.Store
	rec   manifest.Recorder
	log   *logging.Logger
}

// New creates a Controller. rec may be nil.
func New(ws *workspace.Workspace, store *manifest.Store, rec manifest.Recorder) *Controller {
	return &Controller{
		ws:    ws,
		store: store,
		rec:   rec,
		log:   logging.WithFields(map[string]any{"component": "quarantine"}),
	}
}

// LoadState reads the quarantine state record. A missing record is empty.
func (c *Controller) LoadState() (*model.QuarantineState, error) {
	st := &model.QuarantineState{Skills: map[string]model.QuarantineEntry{}}
	data, err := os.ReadFile(c.ws.QuarantineStatePath)
	if os.IsNotExist(err) {
		return st, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read quarantine state: %w", err)
	}
	if err := json.Unmarshal(data, st); err != nil {
		return nil, errclass.ErrCorruptData.WithMessagef("quarantine state %s: %v", c.ws.QuarantineStatePath, err)
	}
	if err := schema.Validate(schema.QuarantineState, data); err != nil {
		return nil, err
	}
	if st.Skills == nil {
		st.Skills = map[string]model.QuarantineEntry{}
	}
	return st, nil
}

func (c *Controller) saveState(st *model.QuarantineState) error {
	if err := c.ws.EnsureSignetDirs(); err != nil {
		return err
	}
	data, err := jsonutil.MarshalSortedIndent(st)
	if err != nil {
		return fmt.Errorf("marshal quarantine state: %w", err)
	}
	return fsutil.AtomicWrite(c.ws.QuarantineStatePath, data, 0644)
}

func (c *Controller) updateState(fn func(st *model.QuarantineState)) error {
	st, err := c.LoadState()
	if err != nil {
		return err
	}
	fn(st)
	return c.saveState(st)
}

// QuarantineResult describes a completed quarantine.
type QuarantineResult struct {
	Skill              string                  `json:"skill"`
	AlreadyQuarantined bool                    `json:"already_quarantined"`
	Location           string                  `json:"location"`
	EvidencePath       string                  `json:"evidence_path,omitempty"`
	Evidence           *model.QuarantineRecord `json:"evidence,omitempty"`
	Archived           []string                `json:"archived,omitempty"`
}

// Quarantine isolates an active skill. It is idempotent for a skill that is
// already quarantined and writes no second evidence file in that case.
func (c *Controller) Quarantine(name, reason string) (*QuarantineResult, error) {
	name, err := normalize(name)
	if err != nil {
		return nil, err
	}
	active := c.ws.SkillPath(name)
	target := c.ws.QuarantinedPath(name)
	res := &QuarantineResult{Skill: name, Location: c.rel(target)}

	if !fsutil.IsDir(active) {
		if !fsutil.IsDir(target) {
			return nil, errclass.ErrNotFound.WithMessagef("skill not found: %s", name)
		}
		res.AlreadyQuarantined = true
		err := c.updateState(func(st *model.QuarantineState) {
			if _, ok := st.Skills[name]; !ok {
				st.Skills[name] = model.QuarantineEntry{
					State:    model.IsolationQuarantined,
					Location: res.Location,
					Since:    c.ws.Timestamp(),
					Reason:   "adopted existing quarantine directory",
				}
			}
		})
		return res, err
	}

	if reason == "" {
		reason = "manual quarantine"
	}
	ev, err := c.evidence(name, reason)
	if err != nil {
		return nil, err
	}
	if err := c.ws.EnsureSignetDirs(); err != nil {
		return nil, err
	}

	data, err := jsonutil.MarshalIndent(ev)
	if err != nil {
		return nil, fmt.Errorf("marshal evidence: %w", err)
	}
	if err := schema.Validate(schema.Evidence, data); err != nil {
		return nil, err
	}

	// Superseded copies are archived, never deleted.
	if fsutil.Exists(target) {
		dst, err := c.archive(target, name)
		if err != nil {
			return nil, err
		}
		res.Archived = append(res.Archived, c.rel(dst))
	}
	// Evidence is only touched once the skill is contained.
	if err := renameSkill(active, target); err != nil {
		return nil, fmt.Errorf("quarantine %s: %w", name, err)
	}
	evPath := c.ws.EvidencePath(name)
	if fsutil.Exists(evPath) {
		dst, err := c.archive(evPath, name+"-evidence")
		if err != nil {
			return nil, err
		}
		res.Archived = append(res.Archived, c.rel(dst))
	}
	if err := fsutil.AtomicWrite(evPath, data, 0644); err != nil {
		return nil, err
	}
	res.EvidencePath = c.rel(evPath)
	res.Evidence = ev

	err = c.updateState(func(st *model.QuarantineState) {
		st.Skills[name] = model.QuarantineEntry{
			State:    model.IsolationQuarantined,
			Location: res.Location,
			Since:    ev.QuarantinedAt,
			Reason:   reason,
			Evidence: res.EvidencePath,
		}
	})
	if err != nil {
		return nil, err
	}

	c.log.Warn("skill quarantined", map[string]any{"skill": name, "reason": reason})
	c.record(&model.SkillAction{
		Action:       model.ActionQuarantine,
		Skill:        name,
		Reason:       reason,
		ExpectedHash: ev.ExpectedHash,
		ActualHash:   ev.ActualHash,
		Modified:     ev.ModifiedFiles,
		Added:        ev.AddedFiles,
		Removed:      ev.RemovedFiles,
		Evidence:     res.EvidencePath,
	})
	return res, nil
}

// evidence diffs the active skill against its manifest entry.
func (c *Controller) evidence(name, reason string) (*model.QuarantineRecord, error) {
	ev := &model.QuarantineRecord{
		ID:            uuid.New().String(),
		Skill:         name,
		QuarantinedAt: c.ws.Timestamp(),
		Reason:        reason,
		ModifiedFiles: []string{},
		AddedFiles:    []string{},
		RemovedFiles:  []string{},
	}
	tree, err := c.store.HashSkill(name)
	if err != nil {
		return nil, err
	}
	ev.ActualHash = tree.Composite

	m, err := c.store.Load()
	switch {
	case errors.Is(err, errclass.ErrNotFound):
		ev.Note = "no trust manifest, skill was never signed"
		return ev, nil
	case errors.Is(err, errclass.ErrCorruptData):
		// Containment must not depend on a readable manifest.
		c.log.Warn("manifest unreadable, evidence has no diff", map[string]any{"skill": name, "error": err.Error()})
		ev.Note = "trust manifest unreadable, no diff recorded"
		return ev, nil
	case err != nil:
		return nil, err
	}

	trusted, ok := m.Skills[name]
	if !ok {
		ev.Note = "skill was not signed"
		return ev, nil
	}
	ev.ExpectedHash = trusted.CompositeHash
	ev.HashMatch = trusted.CompositeHash == tree.Composite
	d := diff.Files(trusted.Files, tree.Files)
	ev.ModifiedFiles, ev.AddedFiles, ev.RemovedFiles = d.Modified, d.Added, d.Removed
	ev.FileLevelChanges = d.Details
	return ev, nil
}

// UnquarantineResult describes a skill returned to the active set.
type UnquarantineResult struct {
	Skill    string `json:"skill"`
	Location string `json:"location"`
	Advisory string `json:"advisory"`
}

// Unquarantine renames a quarantined skill back. The manifest is left
// untouched: the skill stays evaluable against its old entry until re-signed.
func (c *Controller) Unquarantine(name string) (*UnquarantineResult, error) {
	name, err := normalize(name)
	if err != nil {
		return nil, err
	}
	src := c.ws.QuarantinedPath(name)
	dst := c.ws.SkillPath(name)
	if !fsutil.IsDir(src) {
		return nil, errclass.ErrNotFound.WithMessagef("skill is not quarantined: %s", name)
	}
	if fsutil.Exists(dst) {
		return nil, errclass.ErrConflict.WithMessagef("active skill already exists: %s", name)
	}
	if err := fsutil.RenameAndSync(src, dst); err != nil {
		return nil, fmt.Errorf("unquarantine %s: %w", name, err)
	}
	err = c.updateState(func(st *model.QuarantineState) {
		delete(st.Skills, name)
	})
	if err != nil {
		return nil, err
	}

	c.log.Info("skill released from quarantine", map[string]any{"skill": name})
	c.record(&model.SkillAction{Action: model.ActionUnquarantine, Skill: name})
	return &UnquarantineResult{
		Skill:    name,
		Location: c.rel(dst),
		Advisory: fmt.Sprintf(ResignAdvice, name),
	}, nil
}

// Rejected is one skill moved out by Reject.
type Rejected struct {
	Skill    string `json:"skill"`
	Location string `json:"location"`
	Record   string `json:"record"`
	Archived string `json:"archived,omitempty"`
}

// RejectResult lists rejected and skipped skills.
type RejectResult struct {
	Rejected []Rejected `json:"rejected"`
	Skipped  []string   `json:"skipped"`
}

// RejectUnsigned rejects every active unsigned skill.
func (c *Controller) RejectUnsigned() (*RejectResult, error) {
	return c.Reject()
}

// Reject moves the named unsigned skills, or every active unsigned skill
// when no names are given, out of the skills directory. Signed skills are
// skipped.
func (c *Controller) Reject(names ...string) (*RejectResult, error) {
	m, err := c.store.LoadOrNew()
	if err != nil {
		return nil, err
	}
	targets := names
	if len(targets) == 0 {
		if targets, err = c.ws.ListSkillDirs(); err != nil {
			return nil, err
		}
	}

	res := &RejectResult{Rejected: []Rejected{}, Skipped: []string{}}
	for _, n := range targets {
		name, err := normalize(n)
		if err != nil {
			return res, err
		}
		if !fsutil.IsDir(c.ws.SkillPath(name)) {
			return res, errclass.ErrNotFound.WithMessagef("skill not found: %s", name)
		}
		if _, signed := m.Skills[name]; signed || c.ws.IsSelfSkill(name) {
			res.Skipped = append(res.Skipped, name)
			continue
		}
		r, err := c.reject(name)
		if err != nil {
			return res, err
		}
		res.Rejected = append(res.Rejected, *r)
	}
	return res, nil
}

func (c *Controller) reject(name string) (*Rejected, error) {
	if err := c.ws.EnsureSignetDirs(); err != nil {
		return nil, err
	}
	src := c.ws.SkillPath(name)
	dst := c.ws.RejectedPath(name)
	out := &Rejected{Skill: name, Location: c.rel(dst), Record: c.rel(c.ws.RejectionPath(name))}

	if fsutil.Exists(dst) {
		archived, err := c.archive(dst, name)
		if err != nil {
			return nil, err
		}
		out.Archived = c.rel(archived)
	}
	if err := fsutil.RenameAndSync(src, dst); err != nil {
		return nil, fmt.Errorf("reject %s: %w", name, err)
	}

	reason := "unsigned skill"
	rec := &model.RejectionRecord{
		ID:           uuid.New().String(),
		Skill:        name,
		Reason:       reason,
		RejectedAt:   c.ws.Timestamp(),
		OriginalPath: c.rel(src),
		Action:       string(model.ActionReject),
	}
	data, err := jsonutil.MarshalIndent(rec)
	if err != nil {
		return nil, fmt.Errorf("marshal rejection record: %w", err)
	}
	if err := fsutil.AtomicWrite(c.ws.RejectionPath(name), data, 0644); err != nil {
		return nil, err
	}
	err = c.updateState(func(st *model.QuarantineState) {
		st.Skills[name] = model.QuarantineEntry{
			State:    model.IsolationRejected,
			Location: out.Location,
			Since:    rec.RejectedAt,
			Reason:   reason,
			Evidence: out.Record,
		}
	})
	if err != nil {
		return nil, err
	}

	c.log.Warn("unsigned skill rejected", map[string]any{"skill": name})
	c.record(&model.SkillAction{Action: model.ActionReject, Skill: name, Reason: reason, Evidence: out.Record})
	return out, nil
}

// Listing is one isolated skill as seen by List.
type Listing struct {
	Skill    string               `json:"skill"`
	State    model.IsolationState `json:"state"`
	Location string               `json:"location"`
	Since    string               `json:"since,omitempty"`
	Reason   string               `json:"reason,omitempty"`
	Evidence string               `json:"evidence,omitempty"`
	// Stray marks a prefixed directory that has no state record.
	Stray bool `json:"stray,omitempty"`
	// Missing marks a state record whose directory is gone.
	Missing bool `json:"missing,omitempty"`
}

// List returns every quarantined or rejected skill sorted by name.
func (c *Controller) List() ([]Listing, error) {
	st, err := c.LoadState()
	if err != nil {
		return nil, err
	}
	out := []Listing{}
	for name, e := range st.Skills {
		l := Listing{
			Skill:    name,
			State:    e.State,
			Location: e.Location,
			Since:    e.Since,
			Reason:   e.Reason,
			Evidence: e.Evidence,
		}
		l.Missing = !fsutil.IsDir(c.locate(name, e.State))
		out = append(out, l)
	}

	dirs, err := c.ws.ListQuarantinedDirs()
	if err != nil {
		return nil, err
	}
	for _, name := range dirs {
		if _, ok := st.Skills[name]; ok {
			continue
		}
		out = append(out, Listing{
			Skill:    name,
			State:    model.IsolationQuarantined,
			Location: c.rel(c.ws.QuarantinedPath(name)),
			Stray:    true,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Skill < out[j].Skill })
	return out, nil
}

func (c *Controller) locate(name string, state model.IsolationState) string {
	if state == model.IsolationRejected {
		return c.ws.RejectedPath(name)
	}
	return c.ws.QuarantinedPath(name)
}

// archive moves path into the archive directory under a timestamped name.
func (c *Controller) archive(path, base string) (string, error) {
	if err := os.MkdirAll(c.ws.ArchiveDir, 0755); err != nil {
		return "", fmt.Errorf("create archive dir: %w", err)
	}
	ext := filepath.Ext(path)
	if fsutil.IsDir(path) {
		ext = ""
	}
	stamp := c.ws.Now().UTC().Format(archiveTimeLayout)
	dst := filepath.Join(c.ws.ArchiveDir, base+"-"+stamp+ext)
	for i := 1; fsutil.Exists(dst); i++ {
		dst = filepath.Join(c.ws.ArchiveDir, fmt.Sprintf("%s-%s.%d%s", base, stamp, i, ext))
	}
	if err := fsutil.RenameAndSync(path, dst); err != nil {
		return "", fmt.Errorf("archive %s: %w", path, err)
	}
	return dst, nil
}

func (c *Controller) rel(path string) string {
	r, err := filepath.Rel(c.ws.Root, path)
	if err != nil {
		return path
	}
	return filepath.ToSlash(r)
}

func (c *Controller) record(action *model.SkillAction) {
	if c.rec == nil {
		return
	}
	if _, err := c.rec.RecordAction(action); err != nil {
		c.log.Warn("could not audit action", map[string]any{
			"action": string(action.Action),
			"skill":  action.Skill,
			"error":  err.Error(),
		})
	}
}

func normalize(name string) (string, error) {
	if err := pathutil.ValidateSkillName(name); err != nil {
		return "", err
	}
	return pathutil.NormalizeSkillName(name), nil
}
