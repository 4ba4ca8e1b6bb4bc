//go:build unix

package proc

import (
	"errors"
	"os"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

func setProcessGroup(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Setpgid = true
}

// yt-dlp forks ffmpeg; signalling the negative pid reaches the whole group.
func signalGroup(p *os.Process, sig unix.Signal) error {
	err := unix.Kill(-p.Pid, sig)
	if errors.Is(err, unix.ESRCH) {
		return p.Signal(sig)
	}
	return err
}

func signalTerm(p *os.Process) error { return signalGroup(p, unix.SIGTERM) }

func signalKill(p *os.Process) error { return signalGroup(p, unix.SIGKILL) }
