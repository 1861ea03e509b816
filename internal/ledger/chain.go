// Package ledger implements the hash-chained, append-only audit ledger.
//
// Each line of the chain file is one RFC 8785 canonical LedgerEntry. An
// entry's prev_hash is the SHA-256 of the previous line's exact bytes, so
// editing, reordering or dropping any line is detected on verification. A
// head anchor next to the chain records the hash of the last line, which no
// later prev_hash covers.
package ledger

import (
	"bufio"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/openclaw/clawguard/internal/lock"
	"github.com/openclaw/clawguard/internal/schema"
	"github.com/openclaw/clawguard/pkg/errclass"
	"github.com/openclaw/clawguard/pkg/fsutil"
	"github.com/openclaw/clawguard/pkg/jsonutil"
	"github.com/openclaw/clawguard/pkg/model"
)

const maxLineSize = 64 << 20

// Why a chain is considered broken.
const (
	ReasonInvalidJSON  = "invalid json"
	ReasonSchema       = "schema violation"
	ReasonNonCanonical = "non-canonical serialization"
	ReasonPrevHash     = "prev_hash mismatch"
	ReasonAnchor       = "head anchor mismatch"
)

// AnchorState describes the head anchor relative to the chain.
type AnchorState string

const (
	AnchorOK       AnchorState = "ok"
	AnchorMissing  AnchorState = "missing"
	AnchorMismatch AnchorState = "mismatch"
)

// ChainStatus is the result of verifying a chain.
type ChainStatus struct {
	Intact bool `json:"intact"`
	// BrokenAt is the zero-based index of the first bad entry.
	BrokenAt *int            `json:"broken_at,omitempty"`
	Reason   string          `json:"reason,omitempty"`
	Count    int             `json:"count"`
	Head     model.HashValue `json:"head"`
	Anchor   AnchorState     `json:"anchor,omitempty"`
}

// BrokenEntry returns the one-based number of the first bad entry, or 0.
func (s ChainStatus) BrokenEntry() int {
	if s.BrokenAt == nil {
		return 0
	}
	return *s.BrokenAt + 1
}

type headAnchor struct {
	Head  model.HashValue `json:"head"`
	Count int             `json:"count"`
}

// Chain appends to and reads one chain file.
type Chain struct {
	path     string
	headPath string
	now      func() time.Time
	mu       sync.Mutex
}

// NewChain creates a Chain for path with its head anchor at headPath.
func NewChain(path, headPath string, now func() time.Time) *Chain {
	if now == nil {
		now = time.Now
	}
	return &Chain{path: path, headPath: headPath, now: now}
}

// Path returns the chain file location.
func (c *Chain) Path() string {
	return c.path
}

// HashLine is the entry hash: SHA-256 over the exact line bytes.
func HashLine(line []byte) model.HashValue {
	sum := sha256.Sum256(line)
	return model.HashValue(hex.EncodeToString(sum[:]))
}

// Append adds an entry for data and returns the new entry's hash, which the
// next append uses as prev_hash.
func (c *Chain) Append(data model.EventData) (model.HashValue, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(c.path), 0755); err != nil {
		return "", fmt.Errorf("create ledger dir: %w", err)
	}

	file, err := os.OpenFile(c.path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return "", fmt.Errorf("open chain: %w", err)
	}
	defer file.Close()

	if err := lock.LockFile(file); err != nil {
		return "", fmt.Errorf("flock chain: %w", err)
	}
	defer lock.UnlockFile(file)

	lines, err := scanLines(file)
	if err != nil {
		return "", fmt.Errorf("read chain: %w", err)
	}
	// Appending to a tail-truncated chain would re-anchor over the loss.
	if a, err := c.readAnchor(); err == nil && a != nil && a.Count > len(lines) {
		return "", errclass.ErrChainBroken.WithMessagef(
			"chain holds %d entries but its head anchor records %d, run 'ledger protect' or 'ledger restore'", len(lines), a.Count)
	}
	prev := model.GenesisHash
	if n := len(lines); n > 0 {
		prev = HashLine(lines[n-1])
	}

	payload, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("marshal %s payload: %w", data.Event(), err)
	}
	entry := model.LedgerEntry{
		Timestamp: model.FormatTime(c.now()),
		PrevHash:  prev,
		Event:     data.Event(),
		Data:      payload,
	}
	line, err := jsonutil.CanonicalMarshal(entry)
	if err != nil {
		return "", fmt.Errorf("serialize entry: %w", err)
	}

	end, err := file.Seek(0, io.SeekEnd)
	if err != nil {
		return "", fmt.Errorf("seek to end: %w", err)
	}
	var buf bytes.Buffer
	if end > 0 && !endsWithNewline(file, end) {
		buf.WriteByte('\n')
	}
	buf.Write(line)
	buf.WriteByte('\n')
	if _, err := file.Write(buf.Bytes()); err != nil {
		return "", fmt.Errorf("write entry: %w", err)
	}
	if err := file.Sync(); err != nil {
		return "", fmt.Errorf("sync chain: %w", err)
	}

	hash := HashLine(line)
	if err := c.writeAnchor(hash, len(lines)+1); err != nil {
		return "", err
	}
	return hash, nil
}

func endsWithNewline(f *os.File, size int64) bool {
	b := make([]byte, 1)
	if _, err := f.ReadAt(b, size-1); err != nil {
		return false
	}
	return b[0] == '\n'
}

// LastHash returns the hash of the last entry. An absent, empty or
// unreadable chain yields the genesis value.
func (c *Chain) LastHash() model.HashValue {
	lines, err := c.ReadChain()
	if err != nil || len(lines) == 0 {
		return model.GenesisHash
	}
	return HashLine(lines[len(lines)-1])
}

// Exists reports whether a chain was ever started: the file holds at least
// one byte, or the head anchor records entries the file no longer has. An
// unreadable anchor counts as started.
func (c *Chain) Exists() bool {
	if info, err := os.Stat(c.path); err == nil && info.Size() > 0 {
		return true
	}
	a, err := c.readAnchor()
	return err != nil || (a != nil && a.Count > 0)
}

// ReadChain returns the non-empty lines of the chain, whitespace-trimmed.
// An absent chain has no lines.
func (c *Chain) ReadChain() ([][]byte, error) {
	return ReadLines(c.path)
}

// ReadLines reads a chain-format file.
func ReadLines(path string) ([][]byte, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return scanLines(f)
}

func scanLines(r io.ReadSeeker) ([][]byte, error) {
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	var lines [][]byte
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		lines = append(lines, append([]byte(nil), line...))
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return lines, nil
}

// VerifyIntegrity walks lines from the genesis value and reports the first
// entry that does not parse, is not canonical, or does not link to its
// predecessor. An empty chain is intact.
func VerifyIntegrity(lines [][]byte) ChainStatus {
	st := ChainStatus{Intact: true, Count: len(lines), Head: model.GenesisHash}
	expected := model.GenesisHash
	for i, line := range lines {
		var entry model.LedgerEntry
		reason := ""
		switch {
		case json.Unmarshal(line, &entry) != nil:
			reason = ReasonInvalidJSON
		case schema.Validate(schema.LedgerEntry, line) != nil:
			reason = ReasonSchema
		case !jsonutil.IsCanonical(line):
			reason = ReasonNonCanonical
		case entry.PrevHash != expected:
			reason = ReasonPrevHash
		}
		if reason != "" {
			idx := i
			st.Intact = false
			st.BrokenAt = &idx
			st.Reason = reason
			st.Head = ""
			return st
		}
		expected = HashLine(line)
	}
	st.Head = expected
	return st
}

// Verify checks the chain file and its head anchor. An anchor that does not
// match the recomputed head marks the last entry as broken.
func (c *Chain) Verify() (ChainStatus, error) {
	lines, err := c.ReadChain()
	if err != nil {
		return ChainStatus{}, fmt.Errorf("read chain: %w", err)
	}
	st := VerifyIntegrity(lines)
	if !st.Intact {
		return st, nil
	}

	anchor, err := c.readAnchor()
	switch {
	case err != nil:
		st.Anchor = AnchorMismatch
	case anchor == nil:
		st.Anchor = AnchorMissing
		return st, nil
	case anchor.Head == st.Head && anchor.Count == st.Count:
		st.Anchor = AnchorOK
		return st, nil
	default:
		st.Anchor = AnchorMismatch
	}

	idx := st.Count - 1
	if idx < 0 {
		idx = 0
	}
	st.Intact = false
	st.BrokenAt = &idx
	st.Reason = ReasonAnchor
	return st, nil
}

// Replace atomically swaps the chain content for data and re-anchors the head.
func (c *Chain) Replace(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := fsutil.AtomicWrite(c.path, data, 0644); err != nil {
		return fmt.Errorf("replace chain: %w", err)
	}
	lines, err := scanLines(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("read replaced chain: %w", err)
	}
	head := model.GenesisHash
	if n := len(lines); n > 0 {
		head = HashLine(lines[n-1])
	}
	return c.writeAnchor(head, len(lines))
}

func (c *Chain) writeAnchor(head model.HashValue, count int) error {
	if c.headPath == "" {
		return nil
	}
	data, err := jsonutil.CanonicalMarshal(headAnchor{Head: head, Count: count})
	if err != nil {
		return err
	}
	if err := fsutil.AtomicWrite(c.headPath, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("write head anchor: %w", err)
	}
	return nil
}

func (c *Chain) readAnchor() (*headAnchor, error) {
	if c.headPath == "" {
		return nil, nil
	}
	data, err := os.ReadFile(c.headPath)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var a headAnchor
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("parse head anchor: %w", err)
	}
	return &a, nil
}
