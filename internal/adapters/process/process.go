// Package process spawns child processes and exposes them as handles with an
// awaitable exit and two output streams.
package process

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"
)

const (
	// stderrTail is how much trailing stderr an ExitError carries.
	stderrTail = 4096

	// pipeDrain bounds how long Wait keeps reading output after the child
	// exited while a descendant still holds its stdout or stderr.
	pipeDrain = time.Second
)

// Command describes a process to spawn. Env entries are KEY=VALUE and are
// appended to the current environment.
type Command struct {
	Path   string
	Args   []string
	Env    []string
	Dir    string
	Stdout io.Writer
	Stderr io.Writer
}

func (c Command) String() string {
	return strings.Join(append([]string{c.Path}, c.Args...), " ")
}

// ExitError reports a non-zero exit.
type ExitError struct {
	Command string
	Code    int
	Stderr  string
}

func (e *ExitError) Error() string {
	msg := fmt.Sprintf("%s exited with code %d", e.Command, e.Code)
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg += ": " + s
	}
	return msg
}

// Handle is a running (or finished) child process.
type Handle struct {
	cmd    *exec.Cmd
	name   string
	stderr *tail
	done   chan struct{}

	mu   sync.Mutex
	err  error
	code int
}

// Spawn starts c and returns immediately. The process is not bound to ctx;
// use Kill to stop it. On unix the child leads a new process group.
func Spawn(ctx context.Context, c Command) (*Handle, error) {
	if c.Path == "" {
		return nil, errors.New("process: empty command")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	h := &Handle{
		name:   c.String(),
		stderr: &tail{max: stderrTail},
		done:   make(chan struct{}),
		code:   -1,
	}

	cmd := exec.Command(c.Path, c.Args...)
	cmd.Dir = c.Dir
	cmd.WaitDelay = pipeDrain
	newGroup(cmd)
	if len(c.Env) > 0 {
		cmd.Env = append(os.Environ(), c.Env...)
	}
	if c.Stdout != nil {
		cmd.Stdout = c.Stdout
	}
	if c.Stderr != nil {
		cmd.Stderr = io.MultiWriter(c.Stderr, h.stderr)
	} else {
		cmd.Stderr = h.stderr
	}
	h.cmd = cmd

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", h.name, err)
	}

	go h.wait()
	return h, nil
}

func (h *Handle) wait() {
	err := h.cmd.Wait()
	if errors.Is(err, exec.ErrWaitDelay) {
		// The child exited cleanly; a descendant kept the pipes open.
		err = nil
	}

	h.mu.Lock()
	h.code = h.cmd.ProcessState.ExitCode()
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		err = &ExitError{Command: h.name, Code: h.code, Stderr: h.stderr.String()}
	}
	h.err = err
	h.mu.Unlock()

	close(h.done)
}

// Pid returns the operating system process id.
func (h *Handle) Pid() int { return h.cmd.Process.Pid }

// Done is closed once the process has exited.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Wait blocks until the process exits. A non-zero exit is an *ExitError.
func (h *Handle) Wait() error {
	<-h.done
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

// ExitCode returns the exit code, or -1 while running or when killed by a signal.
func (h *Handle) ExitCode() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.code
}

// Kill sends SIGKILL to the process and, on unix, to its whole process
// group, so forked descendants die with it. Once the process has exited only
// the leftover group members are signaled.
func (h *Handle) Kill() error {
	if err := killGroup(h.cmd.Process.Pid); err != nil {
		return fmt.Errorf("kill process group of %s: %w", h.name, err)
	}
	select {
	case <-h.done:
		return nil
	default:
	}
	if err := h.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("kill %s: %w", h.name, err)
	}
	return nil
}

// Run spawns c and waits for it. When ctx ends first the process is killed
// and ctx's error is returned.
func Run(ctx context.Context, c Command) error {
	h, err := Spawn(ctx, c)
	if err != nil {
		return err
	}
	select {
	case <-h.Done():
		return h.Wait()
	case <-ctx.Done():
		_ = h.Kill()
		<-h.Done()
		return ctx.Err()
	}
}

// tail keeps the last max bytes written to it.
type tail struct {
	mu  sync.Mutex
	buf []byte
	max int
}

func (t *tail) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.max; over > 0 {
		t.buf = append(t.buf[:0:0], t.buf[over:]...)
	}
	return len(p), nil
}

func (t *tail) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(t.buf)
}
