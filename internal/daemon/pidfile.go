// Package daemon tracks a background server process through a state file.
package daemon

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ErrAlreadyRunning is returned by Acquire when a live process holds the file.
var ErrAlreadyRunning = errors.New("already running")

// State is what a running server records about itself.
type State struct {
	PID       int       `json:"pid"`
	Port      int       `json:"port"`
	LogPath   string    `json:"log_path,omitempty"`
	StartedAt time.Time `json:"started_at"`
}

// Uptime returns how long the process has been up.
func (s *State) Uptime() time.Duration {
	return time.Since(s.StartedAt).Truncate(time.Second)
}

// PIDFile manages the state file for daemon process tracking.
type PIDFile struct {
	Path string
}

// NewPIDFile creates a PIDFile manager for the given path.
func NewPIDFile(path string) *PIDFile {
	return &PIDFile{Path: path}
}

// Write replaces the file with st. The write is atomic.
func (p *PIDFile) Write(st State) error {
	if st.StartedAt.IsZero() {
		st.StartedAt = time.Now().UTC()
	}
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(p.Path), 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	tmp := p.Path + ".tmp"
	if err := os.WriteFile(tmp, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write state: %w", err)
	}
	if err := os.Rename(tmp, p.Path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("write state: %w", err)
	}
	return nil
}

// Read loads the recorded state.
func (p *PIDFile) Read() (*State, error) {
	data, err := os.ReadFile(p.Path)
	if err != nil {
		return nil, err
	}
	var st State
	if err := json.Unmarshal(data, &st); err != nil || st.PID <= 0 {
		if err == nil {
			err = fmt.Errorf("pid %d", st.PID)
		}
		return nil, fmt.Errorf("invalid PID file content: %w", err)
	}
	return &st, nil
}

// Remove deletes the file. A missing file is not an error.
func (p *PIDFile) Remove() error {
	if err := os.Remove(p.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// IsRunning reports the recorded state and whether its process is alive.
func (p *PIDFile) IsRunning() (*State, bool) {
	st, err := p.Read()
	if err != nil {
		return nil, false
	}
	return st, alive(st.PID)
}

// Acquire records st unless a live process already holds the file.
// Stale files left by a dead process are replaced.
func (p *PIDFile) Acquire(st State) error {
	if cur, running := p.IsRunning(); running {
		return fmt.Errorf("%w (PID %d)", ErrAlreadyRunning, cur.PID)
	}
	if err := p.Remove(); err != nil {
		return fmt.Errorf("remove stale PID file: %w", err)
	}
	return p.Write(st)
}
