package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/openclaw/clawguard/pkg/errclass"
	"github.com/openclaw/clawguard/pkg/model"
)

// Anomaly kinds reported by Forensics.
const (
	AnomalyTimeGap        = "time_gap"
	AnomalyBulkChange     = "bulk_change"
	AnomalyDuplicateTime  = "duplicate_timestamp"
	AnomalyTimeRegression = "timestamp_regression"
)

// Anomaly is one suspicious pattern in the timeline. Entry is one-based and
// zero when the anomaly is not tied to a single entry.
type Anomaly struct {
	Type   string `json:"type"`
	Entry  int    `json:"entry,omitempty"`
	Detail string `json:"detail"`
}

// TimelineItem is one analyzed entry.
type TimelineItem struct {
	LogItem
	SessionStart bool               `json:"session_start,omitempty"`
	Snapshot     int                `json:"snapshot_files,omitempty"`
	FrozenCount  int                `json:"frozen_entries,omitempty"`
	FrozenIntact *bool              `json:"frozen_intact,omitempty"`
	Action       *model.SkillAction `json:"action,omitempty"`
}

// ForensicsReport is the outcome of `ledger forensics`.
type ForensicsReport struct {
	AnalyzedAt     string          `json:"analyzed_at"`
	From           string          `json:"from,omitempty"`
	To             string          `json:"to,omitempty"`
	TotalEntries   int             `json:"total_entries"`
	CorruptEntries int             `json:"corrupt_entries"`
	Chain          ChainStatus     `json:"chain"`
	Timeline       []TimelineItem  `json:"timeline"`
	Anomalies      []Anomaly       `json:"anomalies"`
	Sessions       int             `json:"sessions"`
	Events         map[string]int  `json:"events"`
	ChangeTotals   ChangeTotals    `json:"change_totals"`
	Hash           model.HashValue `json:"hash,omitempty"`
}

// ChangeTotals counts file changes across the analyzed entries.
type ChangeTotals struct {
	Modified int `json:"modified"`
	Added    int `json:"added"`
	Deleted  int `json:"deleted"`
}

// ExitCode is 2 for a broken chain, 1 when anomalies were found, else 0.
func (r *ForensicsReport) ExitCode() int {
	if !r.Chain.Intact {
		return 2
	}
	if len(r.Anomalies) > 0 {
		return 1
	}
	return 0
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// ParseTime accepts RFC 3339 timestamps and their date-only or zone-less
// prefixes, interpreted as UTC.
func ParseTime(s string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q", s)
}

// ParseEndTime is ParseTime for an inclusive upper bound: a date-only value
// covers the whole day.
func ParseEndTime(s string) (time.Time, error) {
	t, err := ParseTime(s)
	if err != nil {
		return t, err
	}
	if _, dateOnly := time.Parse(time.DateOnly, s); dateOnly == nil {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t, nil
}

type parsedEntry struct {
	index int
	line  []byte
	entry model.LedgerEntry
	ts    time.Time
	tsOK  bool
}

// Forensics analyzes the chain between from and to (either may be empty,
// both inclusive) and appends a forensics entry summarising the run.
func (l *Ledger) Forensics(from, to string) (*ForensicsReport, error) {
	if !l.Initialized() {
		return nil, errclass.ErrNotInitialized.WithMessage("no ledger found, run 'ledger init' first")
	}
	var fromT, toT time.Time
	var err error
	if from != "" {
		if fromT, err = ParseTime(from); err != nil {
			return nil, errclass.ErrUsage.WithMessagef("--from: %v", err)
		}
	}
	if to != "" {
		if toT, err = ParseEndTime(to); err != nil {
			return nil, errclass.ErrUsage.WithMessagef("--to: %v", err)
		}
	}

	lines, err := l.chain.ReadChain()
	if err != nil {
		return nil, fmt.Errorf("read chain: %w", err)
	}
	st, err := l.chain.Verify()
	if err != nil {
		return nil, err
	}

	report := &ForensicsReport{
		AnalyzedAt:   l.ws.Timestamp(),
		From:         from,
		To:           to,
		TotalEntries: len(lines),
		Chain:        st,
		Timeline:     []TimelineItem{},
		Anomalies:    []Anomaly{},
		Events:       map[string]int{},
	}

	var selected []parsedEntry
	for i, line := range lines {
		p := parsedEntry{index: i, line: line}
		if json.Unmarshal(line, &p.entry) != nil {
			report.CorruptEntries++
			continue
		}
		if t, err := time.Parse(time.RFC3339Nano, p.entry.Timestamp); err == nil {
			p.ts, p.tsOK = t.UTC(), true
		}
		if from != "" && (!p.tsOK || p.ts.Before(fromT)) {
			continue
		}
		if to != "" && (!p.tsOK || p.ts.After(toT)) {
			continue
		}
		selected = append(selected, p)
	}

	l.analyze(report, selected)

	hash, err := l.Append(&model.ForensicsData{
		Message:         fmt.Sprintf("Forensic analysis of %d entries, %d anomalies", len(selected), len(report.Anomalies)),
		From:            from,
		To:              to,
		EntriesAnalyzed: len(selected),
		Anomalies:       len(report.Anomalies),
		ChainIntact:     st.Intact,
	})
	switch {
	case errors.Is(err, errclass.ErrChainBroken):
		// A truncated chain is still worth analyzing; it just cannot grow.
		l.log.Warn("forensics run not recorded", map[string]any{"error": err.Error()})
	case err != nil:
		return nil, err
	default:
		report.Hash = hash
	}
	return report, nil
}

func (l *Ledger) analyze(r *ForensicsReport, entries []parsedEntry) {
	gap := time.Duration(l.ws.Config.Forensics.GapSeconds) * time.Second
	bulk := l.ws.Config.Forensics.BulkThreshold

	boundaries := 0
	var prev *parsedEntry
	for i := range entries {
		p := &entries[i]
		item := TimelineItem{LogItem: describe(p.index, p.line)}
		r.Events[string(p.entry.Event)]++

		if prev != nil && prev.tsOK && p.tsOK {
			if d := p.ts.Sub(prev.ts); d > gap {
				r.Anomalies = append(r.Anomalies, Anomaly{
					Type:   AnomalyTimeGap,
					Entry:  p.index + 1,
					Detail: fmt.Sprintf("%.1fh gap before entry %d", d.Hours(), p.index+1),
				})
				item.SessionStart = true
			}
		}
		if p.entry.Event == model.EventInit && p.index > 0 {
			item.SessionStart = true
		}
		if item.SessionStart {
			boundaries++
		}

		if data, err := p.entry.DecodeData(); err == nil {
			if ch := model.ChangesOf(data); ch != nil {
				r.ChangeTotals.Modified += len(ch.Modified)
				r.ChangeTotals.Added += len(ch.Added)
				r.ChangeTotals.Deleted += len(ch.Deleted)
				if n := ch.Total(); n > bulk {
					r.Anomalies = append(r.Anomalies, Anomaly{
						Type:   AnomalyBulkChange,
						Entry:  p.index + 1,
						Detail: fmt.Sprintf("%d files changed in single entry", n),
					})
				}
			}
			switch v := data.(type) {
			case *model.InitData:
				item.Snapshot = len(v.Snapshot)
			case *model.FreezeData:
				item.FrozenCount = v.EntryCount
				intact := v.ChainIntact
				item.FrozenIntact = &intact
			case *model.RecordData:
				item.Action = v.Action
			}
		}
		r.Timeline = append(r.Timeline, item)
		prev = p
	}

	seen := map[string]int{}
	for _, p := range entries {
		if p.entry.Timestamp != "" {
			seen[p.entry.Timestamp]++
		}
	}
	dups := make([]string, 0, len(seen))
	for ts, n := range seen {
		if n > 1 {
			dups = append(dups, ts)
		}
	}
	sort.Strings(dups)
	for _, ts := range dups {
		r.Anomalies = append(r.Anomalies, Anomaly{
			Type:   AnomalyDuplicateTime,
			Detail: fmt.Sprintf("Timestamp %s appears %d times", ts, seen[ts]),
		})
	}

	for i := 1; i < len(entries); i++ {
		a, b := entries[i-1], entries[i]
		if a.tsOK && b.tsOK && b.ts.Before(a.ts) {
			r.Anomalies = append(r.Anomalies, Anomaly{
				Type:   AnomalyTimeRegression,
				Entry:  b.index + 1,
				Detail: fmt.Sprintf("Timestamp went backwards at entry %d", b.index+1),
			})
		}
	}

	r.Sessions = boundaries + 1
	if len(entries) == 0 {
		r.Sessions = 0
	}
}
