package common

import (
	"context"
	"errors"
	"os/exec"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCmdError_Error(t *testing.T) {
	err := &CmdError{
		Name:     "yt-dlp",
		ExitCode: 1,
		Stderr:   "WARNING: something\nERROR: [youtube] abc: Private video\n\n",
		Err:      errors.New("exit status 1"),
	}

	assert.Equal(t, "yt-dlp failed: exit status 1: ERROR: [youtube] abc: Private video", err.Error())
	assert.False(t, err.NotFound())
}

func TestCmdError_NotFound(t *testing.T) {
	err := &CmdError{Name: "missing", Err: &exec.Error{Name: "missing", Err: exec.ErrNotFound}}
	assert.True(t, err.NotFound())
	assert.True(t, errors.Is(err, exec.ErrNotFound))
}

func TestTailBuffer_KeepsTail(t *testing.T) {
	buf := &tailBuffer{limit: 8}

	n, err := buf.Write([]byte("0123456789"))
	require.NoError(t, err)
	assert.Equal(t, 10, n)
	assert.Equal(t, "23456789", buf.String())

	_, _ = buf.Write([]byte("ab"))
	assert.Equal(t, "456789ab", buf.String())
}

func TestRealCmdRunner_MissingBinary(t *testing.T) {
	runner := NewCmdRunner()

	_, err := runner.Run(context.Background(), "co-streamer-definitely-missing-binary")
	require.Error(t, err)

	var cmdErr *CmdError
	require.ErrorAs(t, err, &cmdErr)
	assert.True(t, cmdErr.NotFound())

	_, err = runner.LookPath("co-streamer-definitely-missing-binary")
	assert.Error(t, err)
}

func TestRealCmdRunner_CapturesStderr(t *testing.T) {
	runner := NewCmdRunner()
	if _, err := runner.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}

	out, err := runner.Run(context.Background(), "sh", "-c", "echo out; echo boom >&2; exit 3")
	require.Error(t, err)
	assert.Equal(t, "out", strings.TrimSpace(string(out)))

	var cmdErr *CmdError
	require.ErrorAs(t, err, &cmdErr)
	assert.Equal(t, 3, cmdErr.ExitCode)
	assert.Equal(t, "boom", strings.TrimSpace(cmdErr.Stderr))
}
