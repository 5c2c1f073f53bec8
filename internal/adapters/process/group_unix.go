//go:build unix

package process

import (
	"errors"
	"os/exec"
	"syscall"
)

// newGroup puts the child in a process group of its own so that Kill reaches
// the processes it forks.
func newGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// killGroup sends SIGKILL to every process in the group led by pid. An empty
// group is not an error.
func killGroup(pid int) error {
	err := syscall.Kill(-pid, syscall.SIGKILL)
	if errors.Is(err, syscall.ESRCH) {
		return nil
	}
	return err
}
