package ledger

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/openclaw/clawguard/pkg/errclass"
	"github.com/openclaw/clawguard/pkg/model"
)

// ExportFormat identifies the JSON export document version.
const ExportFormat = "clawguard/chain-export/v1"

// ExportEntry is one chain line in an export. Unparseable lines keep their
// raw text.
type ExportEntry struct {
	Number     int             `json:"entry_number"`
	Hash       model.HashValue `json:"entry_hash"`
	Timestamp  string          `json:"timestamp,omitempty"`
	PrevHash   model.HashValue `json:"prev_hash,omitempty"`
	Event      model.EventType `json:"event,omitempty"`
	Data       json.RawMessage `json:"data,omitempty"`
	ParseError bool            `json:"parse_error,omitempty"`
	Raw        string          `json:"raw,omitempty"`
}

// Export is a self-contained copy of the chain with its verification result.
type Export struct {
	ExportedAt     string        `json:"export_timestamp"`
	Format         string        `json:"export_format"`
	Workspace      string        `json:"workspace"`
	ChainFile      string        `json:"chain_file"`
	ChainIntegrity string        `json:"chain_integrity"`
	Status         ChainStatus   `json:"status"`
	TotalEntries   int           `json:"total_entries"`
	ParseErrors    int           `json:"parse_errors"`
	Entries        []ExportEntry `json:"entries"`
}

// Export reads the whole chain for archival or external review.
func (l *Ledger) Export() (*Export, error) {
	if !l.Initialized() {
		return nil, errclass.ErrNotInitialized.WithMessage("no ledger found, run 'ledger init' first")
	}
	lines, err := l.chain.ReadChain()
	if err != nil {
		return nil, fmt.Errorf("read chain: %w", err)
	}
	st, err := l.chain.Verify()
	if err != nil {
		return nil, err
	}

	out := &Export{
		ExportedAt:     l.ws.Timestamp(),
		Format:         ExportFormat,
		Workspace:      l.ws.Root,
		ChainFile:      l.ws.ChainPath,
		ChainIntegrity: integrityLabel(st),
		Status:         st,
		TotalEntries:   len(lines),
		Entries:        make([]ExportEntry, 0, len(lines)),
	}
	for i, line := range lines {
		item := ExportEntry{Number: i + 1, Hash: HashLine(line)}
		var e model.LedgerEntry
		if err := json.Unmarshal(line, &e); err != nil {
			out.ParseErrors++
			item.ParseError = true
			item.Raw = string(line)
		} else {
			item.Timestamp = e.Timestamp
			item.PrevHash = e.PrevHash
			item.Event = e.Event
			item.Data = e.Data
		}
		out.Entries = append(out.Entries, item)
	}
	return out, nil
}

func integrityLabel(st ChainStatus) string {
	if st.Intact {
		return "intact"
	}
	return fmt.Sprintf("broken at entry %d", st.BrokenEntry())
}

// WriteText renders the export as a plain-text report.
func (x *Export) WriteText(w io.Writer) error {
	rule := strings.Repeat("=", 70)
	thin := strings.Repeat("-", 70)
	var b strings.Builder

	fmt.Fprintf(&b, "%s\nCHAIN EXPORT REPORT\n%s\n", rule, rule)
	fmt.Fprintf(&b, "  Export time:   %s\n", x.ExportedAt)
	fmt.Fprintf(&b, "  Workspace:     %s\n", x.Workspace)
	fmt.Fprintf(&b, "  Chain file:    %s\n", x.ChainFile)
	fmt.Fprintf(&b, "  Total entries: %d\n", x.TotalEntries)
	fmt.Fprintf(&b, "  Chain status:  %s\n", strings.ToUpper(x.ChainIntegrity))
	if x.ParseErrors > 0 {
		fmt.Fprintf(&b, "  Parse errors:  %d\n", x.ParseErrors)
	}
	fmt.Fprintf(&b, "\n%s\nENTRIES\n%s\n\n", thin, thin)

	for _, e := range x.Entries {
		if e.ParseError {
			fmt.Fprintf(&b, "  Entry %d: [CORRUPT]\n\n", e.Number)
			continue
		}
		fmt.Fprintf(&b, "  Entry %d [%s]\n", e.Number, e.Hash.Short())
		fmt.Fprintf(&b, "    Time:    %s\n", e.Timestamp)
		fmt.Fprintf(&b, "    Event:   %s\n", e.Event)

		entry := model.LedgerEntry{Event: e.Event, Data: e.Data}
		data, err := entry.DecodeData()
		if err != nil {
			b.WriteString("    [UNDECODABLE PAYLOAD]\n\n")
			continue
		}
		if msg := model.Message(data); msg != "" {
			fmt.Fprintf(&b, "    Message: %s\n", msg)
		}
		if ch := model.ChangesOf(data); ch != nil && !ch.Empty() {
			fmt.Fprintf(&b, "    Changes: %d modified, %d added, %d deleted\n",
				len(ch.Modified), len(ch.Added), len(ch.Deleted))
			writePaths(&b, "M", ch.Modified)
			writePaths(&b, "A", ch.Added)
			writePaths(&b, "D", ch.Deleted)
		}
		if snap, ok := data.(*model.InitData); ok && len(snap.Snapshot) > 0 {
			fmt.Fprintf(&b, "    Snapshot: %d files\n", len(snap.Snapshot))
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "%s\nEND OF REPORT\n%s\n", rule, rule)

	_, err := io.WriteString(w, b.String())
	return err
}

func writePaths(b *strings.Builder, tag string, paths []string) {
	for _, p := range paths {
		fmt.Fprintf(b, "      [%s] %s\n", tag, p)
	}
}
