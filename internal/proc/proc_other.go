//go:build !unix

package proc

import (
	"os"
	"os/exec"
)

func setProcessGroup(*exec.Cmd) {}

func signalTerm(p *os.Process) error {
	if err := p.Signal(os.Interrupt); err != nil {
		return p.Kill()
	}
	return nil
}

func signalKill(p *os.Process) error { return p.Kill() }
