//go:build !windows

package daemon

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"
)

// Signal 0 tests if the process exists without sending a signal.
func alive(pid int) bool {
	return syscall.Kill(pid, 0) == nil
}

// Detach starts cmd in its own session so it outlives the parent terminal.
func Detach(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
}

// ShutdownSignals are the signals a foreground server treats as a stop request.
func ShutdownSignals() []os.Signal {
	return []os.Signal{syscall.SIGINT, syscall.SIGTERM}
}

// Signal sends sig to the process recorded in the file.
func (p *PIDFile) Signal(sig syscall.Signal) error {
	st, err := p.Read()
	if err != nil {
		return fmt.Errorf("read PID file: %w", err)
	}
	return syscall.Kill(st.PID, sig)
}

// Terminate asks the recorded process to shut down gracefully.
func (p *PIDFile) Terminate() error { return p.Signal(syscall.SIGTERM) }

// Kill stops the recorded process immediately.
func (p *PIDFile) Kill() error { return p.Signal(syscall.SIGKILL) }
