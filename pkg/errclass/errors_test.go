package errclass_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/openclaw/clawguard/pkg/errclass"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGuardError_Error(t *testing.T) {
	err := errclass.ErrNotFound.WithMessage("skill alpha")
	assert.Equal(t, "E_NOT_FOUND: skill alpha", err.Error())
}

func TestGuardError_Error_WithoutMessage(t *testing.T) {
	assert.Equal(t, "E_CONFLICT", errclass.ErrConflict.Error())
}

func TestGuardError_Is(t *testing.T) {
	err := errclass.ErrChainBroken.WithMessage("broken at entry 3")
	require.True(t, errors.Is(err, errclass.ErrChainBroken))
	require.False(t, errors.Is(err, errclass.ErrCorruptData))
}

func TestGuardError_IsThroughWrap(t *testing.T) {
	err := fmt.Errorf("restore: %w", errclass.ErrChainBroken.WithMessage("backup broken"))
	assert.True(t, errors.Is(err, errclass.ErrChainBroken))
}

func TestGuardError_WithMessagef(t *testing.T) {
	base := errclass.ErrIntegrityViolation
	err := base.WithMessagef("skill %s: expected %s", "alpha", "abc")
	assert.Equal(t, "E_INTEGRITY_VIOLATION", err.Code)
	assert.Equal(t, "skill alpha: expected abc", err.Message)
	assert.Empty(t, base.Message, "base class must not be mutated")
}

func TestGuardError_CodesUnique(t *testing.T) {
	all := []*errclass.GuardError{
		errclass.ErrNotFound,
		errclass.ErrNotInitialized,
		errclass.ErrIntegrityViolation,
		errclass.ErrChainBroken,
		errclass.ErrCorruptData,
		errclass.ErrConflict,
		errclass.ErrNameInvalid,
		errclass.ErrPathEscape,
		errclass.ErrLockConflict,
	}
	seen := make(map[string]bool)
	for _, e := range all {
		assert.False(t, seen[e.Code], "duplicate code %s", e.Code)
		seen[e.Code] = true
	}
}
