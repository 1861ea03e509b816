// Package verify sweeps the workspace skills against the trust manifest.
package verify

import (
	"errors"
	"fmt"
	"sort"

	"github.com/hashicorp/go-multierror"

	"github.com/openclaw/clawguard/internal/manifest"
	"github.com/openclaw/clawguard/internal/workspace"
	"github.com/openclaw/clawguard/pkg/errclass"
	"github.com/openclaw/clawguard/pkg/model"
	"github.com/openclaw/clawguard/pkg/pathutil"
	"github.com/openclaw/clawguard/pkg/progress"
)

// Options tunes a sweep.
type Options struct {
	// Skill limits the sweep to one skill when set.
	Skill    string
	Progress progress.Callback
}

// Report partitions the swept skills by classification. Each slice is
// ordered by skill name.
type Report struct {
	Verified    []*manifest.Verdict `json:"verified"`
	Tampered    []*manifest.Verdict `json:"tampered"`
	Unsigned    []*manifest.Verdict `json:"unsigned"`
	Missing     []*manifest.Verdict `json:"missing"`
	Quarantined []*manifest.Verdict `json:"quarantined"`
	// Failed lists skills that could not be classified.
	Failed []string `json:"failed,omitempty"`
}

func newReport() *Report {
	return &Report{
		Verified:    []*manifest.Verdict{},
		Tampered:    []*manifest.Verdict{},
		Unsigned:    []*manifest.Verdict{},
		Missing:     []*manifest.Verdict{},
		Quarantined: []*manifest.Verdict{},
	}
}

func (r *Report) add(v *manifest.Verdict) {
	switch v.Status {
	case model.StatusVerified:
		r.Verified = append(r.Verified, v)
	case model.StatusTampered:
		r.Tampered = append(r.Tampered, v)
	case model.StatusUnsigned:
		r.Unsigned = append(r.Unsigned, v)
	case model.StatusMissing:
		r.Missing = append(r.Missing, v)
	case model.StatusQuarantined:
		r.Quarantined = append(r.Quarantined, v)
	}
}

// All returns every verdict ordered by skill name.
func (r *Report) All() []*manifest.Verdict {
	var out []*manifest.Verdict
	for _, group := range [][]*manifest.Verdict{r.Verified, r.Tampered, r.Unsigned, r.Missing, r.Quarantined} {
		out = append(out, group...)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Skill < out[j].Skill })
	return out
}

// Active is the number of active skills classified.
func (r *Report) Active() int {
	return len(r.Verified) + len(r.Tampered) + len(r.Unsigned)
}

// ExitCode follows verify semantics: 2 when tampered or missing skills
// exist, 1 when unsigned skills exist, else 0.
func (r *Report) ExitCode() int {
	switch {
	case len(r.Tampered) > 0 || len(r.Missing) > 0:
		return 2
	case len(r.Unsigned) > 0:
		return 1
	}
	return 0
}

// StatusExitCode also treats quarantined skills as requiring action.
func (r *Report) StatusExitCode() int {
	if len(r.Quarantined) > 0 {
		return 2
	}
	return r.ExitCode()
}

// Verifier classifies workspace skills.
type Verifier struct {
	ws    *workspace.Workspace
	store *manifest.Store
}

// NewVerifier creates a verifier over store.
func NewVerifier(ws *workspace.Workspace, store *manifest.Store) *Verifier {
	return &Verifier{ws: ws, store: store}
}

// Sweep loads the manifest and classifies every active skill, then adds
// signed skills that are no longer active. Classification depends only on
// the disk state and the manifest. A skill that cannot be classified does
// not stop the sweep; its error is aggregated into the returned error next
// to a usable report.
func (v *Verifier) Sweep(opts Options) (*Report, error) {
	m, err := v.store.Load()
	if err != nil {
		return nil, err
	}

	active, err := v.ws.ListSkillDirs()
	if err != nil {
		return nil, err
	}

	var names []string
	if opts.Skill != "" {
		if err := pathutil.ValidateSkillName(opts.Skill); err != nil {
			return nil, err
		}
		names = []string{pathutil.NormalizeSkillName(opts.Skill)}
	} else {
		names = append(names, active...)
		isActive := make(map[string]bool, len(active))
		for _, n := range active {
			isActive[n] = true
		}
		var gone []string
		for name := range m.Skills {
			if !isActive[name] && !v.ws.IsSelfSkill(name) {
				gone = append(gone, name)
			}
		}
		names = append(names, gone...)
		sort.Strings(names)
	}

	report := newReport()
	p := progress.New("verify", len(names), opts.Progress)
	var errs *multierror.Error
	for _, name := range names {
		verdict, err := v.store.Verify(m, name)
		p.Increment(name)
		if err != nil {
			if opts.Skill != "" && errors.Is(err, errclass.ErrNotFound) {
				return nil, err
			}
			report.Failed = append(report.Failed, name)
			errs = multierror.Append(errs, fmt.Errorf("verify %s: %w", name, err))
			continue
		}
		report.add(verdict)
	}
	p.Done("")
	return report, errs.ErrorOrNil()
}
