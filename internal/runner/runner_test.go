package runner

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codex-k8s/stackctl/internal/env"
)

func sh(script string) Command {
	return Command{Name: "sh", Args: []string{"-c", script}}
}

func TestRunCapturesOutput(t *testing.T) {
	t.Parallel()

	res := New(nil).Run(context.Background(), sh(`echo out; echo err >&2`))

	require.True(t, res.Succeeded())
	assert.NoError(t, res.Err())
	assert.Equal(t, "out\n", res.Stdout)
	assert.Equal(t, "err\n", res.Stderr)
	assert.Equal(t, 0, res.ExitCode)
	assert.Positive(t, res.Duration)
}

func TestRunNonZeroExitIsAValue(t *testing.T) {
	t.Parallel()

	res := New(nil).Run(context.Background(), sh(`echo boom >&2; exit 3`))

	assert.False(t, res.Succeeded())
	assert.False(t, res.TimedOut)
	assert.Equal(t, 3, res.ExitCode)

	var exitErr *ExitError
	require.ErrorAs(t, res.Err(), &exitErr)
	assert.Equal(t, 3, exitErr.ExitCode)
	assert.Contains(t, exitErr.Error(), "boom")
}

func TestRunTimeoutKillsProcessGroup(t *testing.T) {
	t.Parallel()

	cmd := sh(`sleep 30 & wait`)
	cmd.Timeout = 200 * time.Millisecond

	start := time.Now()
	res := New(nil).Run(context.Background(), cmd)

	assert.Less(t, time.Since(start), 10*time.Second)
	assert.True(t, res.TimedOut)
	assert.False(t, res.Canceled)
	assert.ErrorIs(t, res.Err(), ErrTimeout)
}

func TestRunCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	res := New(nil).Run(ctx, sh(`sleep 30`))

	assert.True(t, res.Canceled)
	assert.False(t, res.TimedOut)
	assert.True(t, errors.Is(res.Err(), ErrCanceled))
}

func TestRunMissingBinary(t *testing.T) {
	t.Parallel()

	res := New(nil).Run(context.Background(), Command{Name: "stackctl-definitely-missing"})

	require.Error(t, res.StartErr)
	assert.Equal(t, -1, res.ExitCode)
	assert.Contains(t, res.Err().Error(), "start stackctl-definitely-missing")
}

func TestRunEnvDirAndStdin(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cmd := sh(`printf '%s|%s|' "$STACKCTL_TEST_VAR" "$(pwd)"; cat`)
	cmd.Env = env.Vars{"STACKCTL_TEST_VAR": "hello"}
	cmd.Dir = dir
	cmd.Stdin = strings.NewReader("piped")
	cmd.Quiet = true

	res := New(nil).Run(context.Background(), cmd)

	require.NoError(t, res.Err())
	parts := strings.Split(res.Stdout, "|")
	require.Len(t, parts, 3)
	assert.Equal(t, "hello", parts[0])
	assert.True(t, strings.HasSuffix(parts[1], dir[strings.LastIndex(dir, "/"):]))
	assert.Equal(t, "piped", parts[2])
}

func TestCommandString(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		cmd  Command
		want string
	}{
		{"plain", Command{Name: "terraform", Args: []string{"-chdir=infra", "apply"}}, "terraform -chdir=infra apply"},
		{"spaces", Command{Name: "sh", Args: []string{"-c", "echo hi"}}, "sh -c 'echo hi'"},
		{"quote", Command{Name: "echo", Args: []string{"it's"}}, `echo 'it'\''s'`},
		{"empty", Command{Name: "echo", Args: []string{""}}, "echo ''"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, tc.cmd.String())
		})
	}
}
