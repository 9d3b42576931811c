// Package process runs and supervises a single OS subprocess.
//
// agentfacade uses it to run the agent binary; worktree and snapshot use it
// to shell out to git. A Process always runs in its own process group so
// that on timeout or shutdown the whole tree it spawns can be reaped, not
// just the immediate child.
package process

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/h4mn/skybridge/logger"
)

type Signal int

const (
	SIGINT  Signal = 2
	SIGTERM Signal = 15
	SIGKILL Signal = 9
)

func (s Signal) os() syscall.Signal {
	return syscall.Signal(s)
}

// Config describes how to start a Process.
type Config struct {
	Path   string
	Args   []string
	Env    []string
	Dir    string
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	// InterruptSignal is sent to the process group when the context passed
	// to Run is cancelled. SIGKILL follows after GracePeriod if the process
	// hasn't exited by then.
	InterruptSignal   Signal
	SignalGracePeriod time.Duration
}

// Process is a running (or exited) OS process and its process group.
type Process struct {
	conf   Config
	logger logger.Logger

	mu      sync.Mutex
	command *exec.Cmd
	pid     int
	started chan struct{}
	done    chan struct{}

	waitResult error
}

// New returns a Process ready to be Run.
func New(l logger.Logger, c Config) *Process {
	if c.InterruptSignal == 0 {
		c.InterruptSignal = SIGTERM
	}
	if c.SignalGracePeriod == 0 {
		c.SignalGracePeriod = 10 * time.Second
	}
	return &Process{
		conf:    c,
		logger:  l,
		started: make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Pid is the pid of the running process, valid once Started() is closed.
func (p *Process) Pid() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pid
}

// Started returns a channel that is closed once the subprocess has forked
// and its pid is known.
func (p *Process) Started() <-chan struct{} { return p.started }

// Done returns a channel that is closed once the subprocess has exited.
func (p *Process) Done() <-chan struct{} { return p.done }

// WaitResult is the raw error returned by the underlying Wait call.
func (p *Process) WaitResult() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.waitResult
}

// ExitCode extracts the process exit code, or -1 if it never started or was
// killed by a signal before exiting normally.
func (p *Process) ExitCode() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.command == nil || p.command.ProcessState == nil {
		return -1
	}
	return p.command.ProcessState.ExitCode()
}

// Run starts the subprocess and blocks until it exits. If ctx is cancelled
// before that, the process group is sent InterruptSignal, then SIGKILL after
// SignalGracePeriod if it still hasn't exited.
func (p *Process) Run(ctx context.Context) error {
	p.mu.Lock()
	if p.command != nil {
		p.mu.Unlock()
		return errors.New("process: already started")
	}

	cmd := exec.Command(p.conf.Path, p.conf.Args...)
	cmd.Dir = p.conf.Dir
	cmd.Stdin = p.conf.Stdin
	cmd.Stdout = p.conf.Stdout
	cmd.Stderr = p.conf.Stderr
	cmd.Env = append(os.Environ(), p.conf.Env...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	p.command = cmd
	p.mu.Unlock()

	if p.conf.Dir != "" {
		if _, err := os.Stat(p.conf.Dir); err != nil {
			return fmt.Errorf("process: working directory %q: %w", p.conf.Dir, err)
		}
	}

	if err := cmd.Start(); err != nil {
		close(p.started)
		return fmt.Errorf("process: starting %s: %w", p.conf.Path, err)
	}

	p.mu.Lock()
	p.pid = cmd.Process.Pid
	p.mu.Unlock()
	close(p.started)

	p.logger.Debug("process: started pid=%d path=%s", p.pid, p.conf.Path)

	stopWatcher := make(chan struct{})
	go p.watchContext(ctx, stopWatcher)

	waitResult := cmd.Wait()
	close(stopWatcher)

	p.mu.Lock()
	p.waitResult = waitResult
	p.mu.Unlock()
	close(p.done)

	p.logger.Debug("process: pid=%d exited code=%d", p.pid, p.ExitCode())

	return waitResult
}

// watchContext sends InterruptSignal then, after SignalGracePeriod, SIGKILL
// to the process group if ctx is cancelled before the process exits on its
// own.
func (p *Process) watchContext(ctx context.Context, stop <-chan struct{}) {
	if ctx == nil {
		return
	}
	select {
	case <-stop:
		return
	case <-ctx.Done():
	}

	p.logger.Debug("process: context cancelled, interrupting pid=%d", p.pid)
	if err := p.Interrupt(); err != nil {
		p.logger.Warn("process: interrupt failed pid=%d: %v", p.pid, err)
	}

	t := time.NewTimer(p.conf.SignalGracePeriod)
	defer t.Stop()
	select {
	case <-stop:
		return
	case <-t.C:
		p.logger.Warn("process: grace period elapsed, killing pid=%d", p.pid)
		if err := p.Kill(); err != nil {
			p.logger.Error("process: kill failed pid=%d: %v", p.pid, err)
		}
	}
}

// Interrupt sends InterruptSignal to the process group.
func (p *Process) Interrupt() error {
	return p.signalGroup(p.conf.InterruptSignal)
}

// Kill sends SIGKILL to the process group.
func (p *Process) Kill() error {
	return p.signalGroup(SIGKILL)
}

func (p *Process) signalGroup(sig Signal) error {
	p.mu.Lock()
	pid := p.pid
	p.mu.Unlock()
	if pid == 0 {
		return errors.New("process: not started")
	}
	// A negative pid targets the whole process group created via Setpgid.
	err := syscall.Kill(-pid, sig.os())
	if errors.Is(err, syscall.ESRCH) {
		// Already exited; not an error from the caller's perspective.
		return nil
	}
	return err
}
