// Package jsonutil produces RFC 8785 canonical JSON for ledger lines and digests.
package jsonutil

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"
)

// CanonicalMarshal marshals v and rewrites the result into RFC 8785 form:
// sorted keys, no insignificant whitespace, normalized numbers and strings.
func CanonicalMarshal(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canonical marshal: %w", err)
	}
	out, err := jcs.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("canonical transform: %w", err)
	}
	return out, nil
}

// Canonicalize rewrites arbitrary JSON input into canonical form.
func Canonicalize(raw []byte) ([]byte, error) {
	return jcs.Transform(raw)
}

// IsCanonical reports whether raw is already byte-identical to its canonical form.
func IsCanonical(raw []byte) bool {
	out, err := jcs.Transform(raw)
	if err != nil {
		return false
	}
	return bytes.Equal(out, raw)
}

// Digest returns the lowercase hex SHA-256 of the canonical form of v.
func Digest(v any) (string, error) {
	data, err := CanonicalMarshal(v)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// MarshalIndent renders v for humans and for on-disk state files.
// encoding/json sorts map keys, so the output is stable.
func MarshalIndent(v any) ([]byte, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// MarshalSortedIndent renders v with every object's keys sorted, including
// struct fields, indented for humans.
func MarshalSortedIndent(v any) ([]byte, error) {
	data, err := CanonicalMarshal(v)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, data, "", "  "); err != nil {
		return nil, err
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}
