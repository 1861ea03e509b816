// Package schema validates clawguard's on-disk JSON documents against
// embedded JSON schemas.
package schema

import (
	"embed"
	"fmt"
	"sync"

	"github.com/kaptinlin/jsonschema"

	"github.com/openclaw/clawguard/pkg/errclass"
)

//go:embed schemas/*.json
var files embed.FS

// Name identifies an embedded schema.
type Name string

const (
	Manifest        Name = "manifest"
	LedgerEntry     Name = "ledger-entry"
	Evidence        Name = "quarantine-evidence"
	QuarantineState Name = "quarantine-state"
)

var (
	mu       sync.Mutex
	compiled = map[Name]*jsonschema.Schema{}
)

func load(name Name) (*jsonschema.Schema, error) {
	mu.Lock()
	defer mu.Unlock()
	if s, ok := compiled[name]; ok {
		return s, nil
	}
	data, err := files.ReadFile("schemas/" + string(name) + ".schema.json")
	if err != nil {
		return nil, fmt.Errorf("read schema %s: %w", name, err)
	}
	compiler := jsonschema.NewCompiler()
	compiler.AssertFormat = true
	s, err := compiler.Compile(data)
	if err != nil {
		return nil, fmt.Errorf("compile schema %s: %w", name, err)
	}
	compiled[name] = s
	return s, nil
}

// Validate checks data against the named schema. Invalid documents fail
// with E_CORRUPT_DATA.
func Validate(name Name, data []byte) error {
	s, err := load(name)
	if err != nil {
		return err
	}
	result := s.ValidateJSON(data)
	if result.IsValid() {
		return nil
	}
	return errclass.ErrCorruptData.WithMessagef("%s schema validation failed: %v", name, result.Errors)
}
