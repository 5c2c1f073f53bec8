package process

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sh(script string) Command {
	return Command{Path: "sh", Args: []string{"-c", script}}
}

func TestRun_CopiesOutput(t *testing.T) {
	var stdout, stderr bytes.Buffer
	c := sh("echo out; echo err 1>&2")
	c.Stdout = &stdout
	c.Stderr = &stderr

	require.NoError(t, Run(context.Background(), c))
	assert.Equal(t, "out\n", stdout.String())
	assert.Equal(t, "err\n", stderr.String())
}

func TestRun_NonZeroExit(t *testing.T) {
	err := Run(context.Background(), sh("echo boom 1>&2; exit 3"))

	var ee *ExitError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, 3, ee.Code)
	assert.Equal(t, "boom\n", ee.Stderr)
	assert.Contains(t, err.Error(), "exited with code 3: boom")
}

func TestRun_Env(t *testing.T) {
	var stdout bytes.Buffer
	c := sh(`printf %s "$FLOWRIG_TEST_VALUE"`)
	c.Env = []string{"FLOWRIG_TEST_VALUE=hello"}
	c.Stdout = &stdout

	require.NoError(t, Run(context.Background(), c))
	assert.Equal(t, "hello", stdout.String())
}

func TestRun_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := Run(ctx, sh("sleep 30"))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSpawn_Errors(t *testing.T) {
	_, err := Spawn(context.Background(), Command{})
	assert.Error(t, err)

	_, err = Spawn(context.Background(), Command{Path: "/nonexistent/flowrig-binary"})
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Spawn(ctx, sh("true"))
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestHandle_KillAndDone(t *testing.T) {
	h, err := Spawn(context.Background(), sh("sleep 30"))
	require.NoError(t, err)
	assert.Equal(t, -1, h.ExitCode())
	assert.Positive(t, h.Pid())

	require.NoError(t, h.Kill())
	select {
	case <-h.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("process did not exit after Kill")
	}
	assert.Error(t, h.Wait())
	assert.NoError(t, h.Kill(), "killing an exited process is a no-op")
}

func TestHandle_KillReachesForkedChildren(t *testing.T) {
	// The trailing command keeps sh from exec'ing sleep, so sleep is a
	// grandchild holding the output pipes.
	h, err := Spawn(context.Background(), sh("sleep 20; true"))
	require.NoError(t, err)
	time.Sleep(300 * time.Millisecond)

	require.NoError(t, h.Kill())
	select {
	case <-h.Done():
	case <-time.After(3 * time.Second):
		t.Fatal("Done did not close after Kill with a forked child alive")
	}
}

func TestHandle_WaitWithBackgroundChild(t *testing.T) {
	h, err := Spawn(context.Background(), sh("sleep 20 & exit 0"))
	require.NoError(t, err)

	select {
	case <-h.Done():
	case <-time.After(3 * time.Second):
		t.Fatal("Wait blocked on a background child holding the pipes")
	}
	assert.NoError(t, h.Wait())
	assert.Equal(t, 0, h.ExitCode())
	assert.NoError(t, h.Kill(), "the leftover group is reaped")
}

func TestHandle_ExitCode(t *testing.T) {
	h, err := Spawn(context.Background(), sh("exit 0"))
	require.NoError(t, err)
	require.NoError(t, h.Wait())
	assert.Equal(t, 0, h.ExitCode())
}

func TestTail_KeepsLastBytes(t *testing.T) {
	tl := &tail{max: 4}
	_, _ = tl.Write([]byte("abc"))
	_, _ = tl.Write([]byte("defg"))
	assert.Equal(t, "defg", tl.String())

	_, _ = tl.Write([]byte(strings.Repeat("x", 10)))
	assert.Equal(t, "xxxx", tl.String())
}
