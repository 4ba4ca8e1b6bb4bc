// Package proc runs external commands in their own process group and stops
// them with a graceful-then-forced signal escalation.
package proc

import (
	"fmt"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultGrace is the delay between the graceful and the forced signal.
const DefaultGrace = 2 * time.Second

// Process is a started command. Its exit is observed by a single reaper
// goroutine, so Wait, Done and Exited may be used from any goroutine.
type Process struct {
	cmd  *exec.Cmd
	pid  int
	done chan struct{}
	err  error

	termOnce   sync.Once
	terminated atomic.Bool
}

// Start launches cmd. The command must not have been started yet.
func Start(cmd *exec.Cmd) (*Process, error) {
	if cmd == nil {
		return nil, fmt.Errorf("start process: nil command")
	}
	setProcessGroup(cmd)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", cmd.Path, err)
	}
	p := &Process{
		cmd:  cmd,
		pid:  cmd.Process.Pid,
		done: make(chan struct{}),
	}
	go func() {
		p.err = cmd.Wait()
		close(p.done)
	}()
	return p, nil
}

func (p *Process) Pid() int { return p.pid }

// Done is closed once the process has exited and its output is drained.
func (p *Process) Done() <-chan struct{} { return p.done }

func (p *Process) Exited() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// Wait blocks until exit and returns the error from exec.Cmd.Wait.
func (p *Process) Wait() error {
	<-p.done
	return p.err
}

// ExitCode is -1 while running or when killed by a signal.
func (p *Process) ExitCode() int {
	if !p.Exited() || p.cmd.ProcessState == nil {
		return -1
	}
	return p.cmd.ProcessState.ExitCode()
}

// Terminated reports whether Terminate sent a signal to this process.
func (p *Process) Terminated() bool { return p.terminated.Load() }

// Terminate sends the graceful signal to the process group now and the
// forced one after grace if the process is still alive. It never blocks and
// is a no-op for nil or exited processes and for repeated calls.
func (p *Process) Terminate(grace time.Duration) {
	if p == nil || p.Exited() {
		return
	}
	if grace <= 0 {
		grace = DefaultGrace
	}
	p.termOnce.Do(func() {
		p.terminated.Store(true)
		_ = signalTerm(p.cmd.Process)
		go func() {
			t := time.NewTimer(grace)
			defer t.Stop()
			select {
			case <-p.done:
			case <-t.C:
				_ = signalKill(p.cmd.Process)
			}
		}()
	})
}
