//go:build windows

package lock

import "os"

// Windows has no flock; a single-user CLI relies on not overlapping runs.
func tryLock(_ *os.File) error { return nil }

// LockFile is a no-op on Windows.
func LockFile(_ *os.File) error { return nil }

// UnlockFile is a no-op on Windows.
func UnlockFile(_ *os.File) error { return nil }
