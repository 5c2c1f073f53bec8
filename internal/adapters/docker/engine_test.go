package docker

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bft-labs/flowrig/internal/adapters/process"
	"github.com/bft-labs/flowrig/pkg/lifecycle"
)

type call struct {
	path string
	args []string
}

// recorder answers every command with canned stdout/stderr/err.
type recorder struct {
	calls  []call
	stdout string
	stderr string
	err    error
}

func (r *recorder) exec(_ context.Context, c process.Command) error {
	r.calls = append(r.calls, call{c.Path, c.Args})
	if c.Stdout != nil {
		fmt.Fprint(c.Stdout, r.stdout)
	}
	if c.Stderr != nil {
		fmt.Fprint(c.Stderr, r.stderr)
	}
	return r.err
}

func TestRunArgs(t *testing.T) {
	args := RunArgs(lifecycle.RunRequest{
		Name:  "broker",
		Image: "rabbitmq:3-management",
		Ports: []lifecycle.PortBinding{{Host: 5673, Container: 5672}, {Host: 15673, Container: 15672}},
		Env:   map[string]string{"RABBITMQ_DEFAULT_USER": "guest", "A": "1"},
	})

	assert.Equal(t, []string{
		"run", "-d", "--name", "broker",
		"-p", "5673:5672", "-p", "15673:15672",
		"-e", "A=1", "-e", "RABBITMQ_DEFAULT_USER=guest",
		"rabbitmq:3-management",
	}, args)
}

func TestEngine_Run(t *testing.T) {
	rec := &recorder{stdout: "f00d\n"}
	e := New(WithExec(rec.exec), WithBinary("/usr/local/bin/docker"))

	err := e.Run(context.Background(), lifecycle.RunRequest{
		Name:  "cache",
		Image: "redis:7",
		Ports: []lifecycle.PortBinding{{Host: 6380, Container: 6379}},
	})
	require.NoError(t, err)
	require.Len(t, rec.calls, 1)
	assert.Equal(t, "/usr/local/bin/docker", rec.calls[0].path)
	assert.Equal(t, "run", rec.calls[0].args[0])
}

func TestEngine_RunFailure(t *testing.T) {
	exit := &process.ExitError{Command: "docker run", Code: 125, Stderr: "port is already allocated"}
	e := New(WithExec((&recorder{err: exit}).exec))

	err := e.Run(context.Background(), lifecycle.RunRequest{Name: "x", Image: "y"})
	var ee *process.ExitError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, 125, ee.Code)
}

func TestEngine_FindID(t *testing.T) {
	rec := &recorder{stdout: "3f2a9c\n"}
	e := New(WithExec(rec.exec))

	id, err := e.FindID(context.Background(), "broker")
	require.NoError(t, err)
	assert.Equal(t, "3f2a9c", id)
	assert.Equal(t, []string{"ps", "-f", "name=^/broker$", "-q"}, rec.calls[0].args)

	rec.stdout = ""
	id, err = e.FindID(context.Background(), "broker")
	require.NoError(t, err)
	assert.Empty(t, id)

	rec.stdout = "aaa\nbbb\n"
	id, err = e.FindID(context.Background(), "broker")
	require.NoError(t, err)
	assert.Equal(t, "aaa", id)
}

func TestEngine_QueryStderrIsFailure(t *testing.T) {
	rec := &recorder{stderr: "Cannot connect to the Docker daemon"}
	e := New(WithExec(rec.exec))

	_, err := e.FindID(context.Background(), "broker")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Cannot connect to the Docker daemon")

	err = e.Remove(context.Background(), "3f2a9c")
	require.Error(t, err)
	assert.Equal(t, []string{"rm", "3f2a9c", "-f"}, rec.calls[1].args)
}

func TestEngine_Remove(t *testing.T) {
	rec := &recorder{stdout: "3f2a9c\n"}
	e := New(WithExec(rec.exec))
	require.NoError(t, e.Remove(context.Background(), "3f2a9c"))

	boom := errors.New("exec: docker: not found")
	rec.err = boom
	assert.ErrorIs(t, e.Remove(context.Background(), "3f2a9c"), boom)
}
