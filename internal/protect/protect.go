// Package protect runs the combined verify, contain and snapshot sweep.
package protect

import (
	"errors"
	"fmt"

	"github.com/hashicorp/go-multierror"

	"github.com/openclaw/clawguard/internal/manifest"
	"github.com/openclaw/clawguard/internal/quarantine"
	"github.com/openclaw/clawguard/internal/snapshot"
	"github.com/openclaw/clawguard/internal/verify"
	"github.com/openclaw/clawguard/internal/workspace"
	"github.com/openclaw/clawguard/pkg/errclass"
	"github.com/openclaw/clawguard/pkg/fsutil"
	"github.com/openclaw/clawguard/pkg/logging"
	"github.com/openclaw/clawguard/pkg/progress"
)

// Options tunes a sweep.
type Options struct {
	// RejectUnsigned moves unsigned skills out instead of only reporting them.
	RejectUnsigned bool
	Progress       progress.Callback
}

// Result summarizes what the sweep found and did. Uncontained lists tampered
// skills whose quarantine failed.
type Result struct {
	Report      *verify.Report                 `json:"report"`
	Quarantined []*quarantine.QuarantineResult `json:"quarantined"`
	Uncontained []string                       `json:"uncontained"`
	Rejected    []quarantine.Rejected          `json:"rejected"`
	// Snapshotted lists verified skills whose snapshot was (re)taken.
	Snapshotted []string `json:"snapshotted"`
	// Unsigned lists unsigned skills left in place.
	Unsigned []string `json:"unsigned"`
	Missing  []string `json:"missing"`
	ExitCode int      `json:"exit_code"`
}

// Sweeper wires the verifier to the quarantine controller and snapshot
// creator.
type Sweeper struct {
	ws       *workspace.Workspace
	verifier *verify.Verifier
	ctl      *quarantine.Controller
	creator  *snapshot.Creator
	log      *logging.Logger
}

// New creates a Sweeper. Every action it takes is audited through rec.
func New(ws *workspace.Workspace, store *manifest.Store, rec manifest.Recorder) *Sweeper {
	return &Sweeper{
		ws:       ws,
		verifier: verify.NewVerifier(ws, store),
		ctl:      quarantine.New(ws, store, rec),
		creator:  snapshot.NewCreator(ws, store, rec),
		log:      logging.WithFields(map[string]any{"component": "protect"}),
	}
}

// Run verifies every skill, quarantines the tampered ones, optionally
// rejects unsigned ones and snapshots the verified ones. Per-skill failures
// are aggregated; the result is returned alongside them.
func (s *Sweeper) Run(opts Options) (*Result, error) {
	report, err := s.verifier.Sweep(verify.Options{Progress: opts.Progress})
	if report == nil {
		return nil, err
	}
	var errs *multierror.Error
	if err != nil {
		errs = multierror.Append(errs, err)
	}

	res := &Result{
		Report:      report,
		Quarantined: []*quarantine.QuarantineResult{},
		Uncontained: []string{},
		Rejected:    []quarantine.Rejected{},
		Snapshotted: []string{},
		Unsigned:    []string{},
		Missing:     []string{},
	}

	for _, v := range report.Tampered {
		q, err := s.ctl.Quarantine(v.Skill, "tampered: composite hash mismatch")
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("quarantine %s: %w", v.Skill, err))
			res.Uncontained = append(res.Uncontained, v.Skill)
			continue
		}
		res.Quarantined = append(res.Quarantined, q)
	}

	for _, v := range report.Unsigned {
		if !opts.RejectUnsigned {
			res.Unsigned = append(res.Unsigned, v.Skill)
			continue
		}
		r, err := s.ctl.Reject(v.Skill)
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("reject %s: %w", v.Skill, err))
			res.Unsigned = append(res.Unsigned, v.Skill)
			continue
		}
		res.Rejected = append(res.Rejected, r.Rejected...)
	}

	for _, v := range report.Verified {
		if s.snapshotCurrent(v.Skill, v) {
			continue
		}
		if _, err := s.creator.Create(v.Skill); err != nil {
			// A skill edited between verify and snapshot is caught next run.
			if errors.Is(err, errclass.ErrIntegrityViolation) {
				s.log.Warn("skill changed during sweep, snapshot skipped", map[string]any{"skill": v.Skill})
				continue
			}
			errs = multierror.Append(errs, fmt.Errorf("snapshot %s: %w", v.Skill, err))
			continue
		}
		res.Snapshotted = append(res.Snapshotted, v.Skill)
	}

	for _, v := range report.Missing {
		res.Missing = append(res.Missing, v.Skill)
	}

	// Detection decides severity, whether or not containment succeeded.
	switch {
	case len(report.Tampered) > 0 || len(res.Missing) > 0:
		res.ExitCode = 2
	case len(res.Unsigned) > 0:
		res.ExitCode = 1
	}
	s.log.Info("protect sweep finished", map[string]any{
		"verified":    len(report.Verified),
		"quarantined": len(res.Quarantined),
		"rejected":    len(res.Rejected),
		"snapshotted": len(res.Snapshotted),
		"exit_code":   res.ExitCode,
	})
	return res, errs.ErrorOrNil()
}

// snapshotCurrent reports whether the existing snapshot already matches the
// verified skill.
func (s *Sweeper) snapshotCurrent(name string, v *manifest.Verdict) bool {
	if !fsutil.IsDir(s.ws.SnapshotPath(name)) {
		return false
	}
	meta, err := snapshot.LoadMeta(s.ws, name)
	return err == nil && meta.CompositeHash == v.Actual
}
