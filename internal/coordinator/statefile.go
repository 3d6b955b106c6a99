package coordinator

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/gofrs/flock"
)

// ErrAlreadyRunning is returned when another coordinator holds the state
// file lock.
var ErrAlreadyRunning = errors.New("coordinator already running")

// StateFile records a running coordinator's address and pid, guarded by a
// file lock so a second coordinator aimed at the same state path refuses to
// start instead of fighting over the port.
type StateFile struct {
	path string
	lock *flock.Flock
}

type stateInfo struct {
	PID     int       `json:"pid"`
	Addr    string    `json:"addr"`
	Started time.Time `json:"started"`
}

// NewStateFile creates a state file handle at path.
func NewStateFile(path string) *StateFile {
	return &StateFile{
		path: path,
		lock: flock.New(path + ".lock"),
	}
}

// Acquire takes the lock, failing fast if another coordinator holds it.
func (s *StateFile) Acquire() error {
	ok, err := s.lock.TryLock()
	if err != nil {
		return fmt.Errorf("state file lock: %w", err)
	}
	if !ok {
		return ErrAlreadyRunning
	}
	return nil
}

// Write records the coordinator's bound address. Call after Acquire.
func (s *StateFile) Write(addr string) error {
	info := stateInfo{
		PID:     os.Getpid(),
		Addr:    addr,
		Started: time.Now(),
	}
	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return fmt.Errorf("state file encode: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("state file write: %w", err)
	}
	return nil
}

// Read returns the recorded state, for status inspection.
func (s *StateFile) Read() (addr string, pid int, err error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return "", 0, err
	}
	var info stateInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return "", 0, fmt.Errorf("state file decode: %w", err)
	}
	return info.Addr, info.PID, nil
}

// Release removes the state file and drops the lock.
func (s *StateFile) Release() {
	os.Remove(s.path)
	s.lock.Unlock()
	os.Remove(s.lock.Path())
}
