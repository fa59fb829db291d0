//go:build windows

package daemon

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"
)

// FindProcess always succeeds on Windows, so probe with a zero signal.
func alive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}

// Detach is a no-op; Windows has no Setsid.
func Detach(_ *exec.Cmd) {}

// ShutdownSignals are the signals a foreground server treats as a stop request.
func ShutdownSignals() []os.Signal {
	return []os.Signal{os.Interrupt}
}

func (p *PIDFile) process() (*os.Process, error) {
	st, err := p.Read()
	if err != nil {
		return nil, fmt.Errorf("read PID file: %w", err)
	}
	proc, err := os.FindProcess(st.PID)
	if err != nil {
		return nil, fmt.Errorf("find process %d: %w", st.PID, err)
	}
	return proc, nil
}

// Signal sends sig to the process recorded in the file.
// Only os.Kill is reliably delivered on Windows.
func (p *PIDFile) Signal(sig syscall.Signal) error {
	proc, err := p.process()
	if err != nil {
		return err
	}
	return proc.Signal(sig)
}

// Terminate stops the recorded process. Windows cannot deliver SIGTERM to
// another process, so this is the same as Kill.
func (p *PIDFile) Terminate() error { return p.Kill() }

// Kill stops the recorded process immediately.
func (p *PIDFile) Kill() error {
	proc, err := p.process()
	if err != nil {
		return err
	}
	return proc.Kill()
}
