// Package docker implements lifecycle.Engine on top of the docker CLI.
package docker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/bft-labs/flowrig/internal/adapters/process"
	"github.com/bft-labs/flowrig/pkg/lifecycle"
	"github.com/bft-labs/flowrig/pkg/log"
)

// DefaultBinary is the docker executable looked up on PATH.
const DefaultBinary = "docker"

// Exec runs one command to completion.
type Exec func(ctx context.Context, c process.Command) error

// Engine drives containers through the docker CLI.
type Engine struct {
	binary string
	exec   Exec
	logger log.Logger
}

var _ lifecycle.Engine = (*Engine)(nil)

// Option configures an Engine.
type Option func(*Engine)

// WithBinary overrides the docker executable.
func WithBinary(path string) Option {
	return func(e *Engine) {
		if path != "" {
			e.binary = path
		}
	}
}

// WithExec replaces process execution, for tests.
func WithExec(x Exec) Option {
	return func(e *Engine) {
		if x != nil {
			e.exec = x
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l log.Logger) Option {
	return func(e *Engine) { e.logger = log.OrNoop(l) }
}

// New creates an Engine.
func New(opts ...Option) *Engine {
	e := &Engine{
		binary: DefaultBinary,
		exec:   process.Run,
		logger: log.NoopLogger{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// RunArgs returns the docker arguments for req.
func RunArgs(req lifecycle.RunRequest) []string {
	args := []string{"run", "-d", "--name", req.Name}
	for _, p := range req.Ports {
		args = append(args, "-p", fmt.Sprintf("%d:%d", p.Host, p.Container))
	}
	keys := make([]string, 0, len(req.Env))
	for k := range req.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		args = append(args, "-e", k+"="+req.Env[k])
	}
	return append(args, req.Image)
}

// Run starts a detached container.
func (e *Engine) Run(ctx context.Context, req lifecycle.RunRequest) error {
	args := RunArgs(req)
	e.logger.Debug("docker run", log.Strings("args", args))
	return e.exec(ctx, process.Command{
		Path:   e.binary,
		Args:   args,
		Stdout: orDiscard(req.Stdout),
		Stderr: req.Stderr,
	})
}

// FindID returns the id of the running container named name, or "".
func (e *Engine) FindID(ctx context.Context, name string) (string, error) {
	out, err := e.query(ctx, "ps", "-f", "name=^/"+name+"$", "-q")
	if err != nil {
		return "", fmt.Errorf("docker ps %s: %w", name, err)
	}
	if i := strings.IndexByte(out, '\n'); i >= 0 {
		out = out[:i]
	}
	return out, nil
}

// Remove force-removes the container with id or name.
func (e *Engine) Remove(ctx context.Context, id string) error {
	if _, err := e.query(ctx, "rm", id, "-f"); err != nil {
		return fmt.Errorf("docker rm %s: %w", id, err)
	}
	return nil
}

// query runs a short docker command; any stderr output counts as failure.
func (e *Engine) query(ctx context.Context, args ...string) (string, error) {
	var stdout, stderr bytes.Buffer
	err := e.exec(ctx, process.Command{
		Path:   e.binary,
		Args:   args,
		Stdout: &stdout,
		Stderr: &stderr,
	})
	if err != nil {
		return "", err
	}
	if s := strings.TrimSpace(stderr.String()); s != "" {
		return "", errors.New(s)
	}
	return strings.TrimSpace(stdout.String()), nil
}

func orDiscard(w io.Writer) io.Writer {
	if w == nil {
		return io.Discard
	}
	return w
}
