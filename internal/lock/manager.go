// Package lock provides the advisory workspace lock taken by mutating commands.
package lock

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/openclaw/clawguard/pkg/errclass"
)

// Holder is the information a lock holder writes into the lock file.
type Holder struct {
	PID        int       `json:"pid"`
	Purpose    string    `json:"purpose"`
	AcquiredAt time.Time `json:"acquired_at"`
}

// Lock is a held workspace lock.
type Lock struct {
	file *os.File
	path string
}

// Acquire takes an exclusive, non-blocking advisory lock on path.
// A lock already held by another process fails with E_LOCK_CONFLICT.
func Acquire(path, purpose string) (*Lock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create lock dir: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}
	if err := tryLock(file); err != nil {
		file.Close()
		if holder, readErr := ReadHolder(path); readErr == nil && holder != nil {
			return nil, errclass.ErrLockConflict.WithMessagef(
				"workspace is locked by pid %d (%s) since %s",
				holder.PID, holder.Purpose, holder.AcquiredAt.Format(time.RFC3339))
		}
		return nil, errclass.ErrLockConflict.WithMessage("workspace is locked by another invocation")
	}

	holder := Holder{PID: os.Getpid(), Purpose: purpose, AcquiredAt: time.Now().UTC()}
	data, _ := json.Marshal(holder)
	if err := file.Truncate(0); err == nil {
		file.WriteAt(append(data, '\n'), 0)
	}
	return &Lock{file: file, path: path}, nil
}

// Release clears the holder record and drops the lock.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	l.file.Truncate(0)
	err := UnlockFile(l.file)
	if cerr := l.file.Close(); err == nil {
		err = cerr
	}
	l.file = nil
	return err
}

// ReadHolder returns the recorded holder, or nil when the lock file is
// absent or empty.
func ReadHolder(path string) (*Holder, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) || (err == nil && len(data) == 0) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var h Holder
	if err := json.Unmarshal(data, &h); err != nil {
		return nil, fmt.Errorf("parse lock holder: %w", err)
	}
	return &h, nil
}

// Probe reports whether the lock is currently held by some process.
func Probe(path string) (bool, error) {
	file, err := os.OpenFile(path, os.O_RDWR, 0)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	defer file.Close()
	if err := tryLock(file); err != nil {
		return true, nil
	}
	UnlockFile(file)
	return false, nil
}
