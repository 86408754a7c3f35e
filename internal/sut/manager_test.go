package sut

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Simonization/webservTester/internal/model"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// writeScript materializes a fake SUT. The script receives the fixture path
// as its single argument, like the real binary.
func writeScript(t *testing.T, body string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "webserv.sh")

	err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755)
	require.NoError(t, err)

	return path
}

func writeFixture(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.conf")

	err := os.WriteFile(path, []byte(content), 0o644)
	require.NoError(t, err)

	return path
}

func TestStartReportsStartupFailure(t *testing.T) {
	bin := writeScript(t, `grep -q invalid "$1" && { echo "bad config" >&2; exit 3; }
sleep 10
`)
	m := NewManager(bin, 200*time.Millisecond, time.Second, testLogger())

	_, err := m.Start(context.Background(), writeFixture(t, "invalid directive"))
	require.Error(t, err)

	var startup model.StartupFailureError
	require.ErrorAs(t, err, &startup)
	assert.Equal(t, 3, startup.ExitCode)
	assert.Contains(t, startup.Output, "bad config")
}

func TestStartAndGracefulStop(t *testing.T) {
	bin := writeScript(t, `trap 'exit 0' TERM
while true; do sleep 0.05; done
`)
	m := NewManager(bin, 200*time.Millisecond, time.Second, testLogger())

	inst, err := m.Start(context.Background(), writeFixture(t, "server {}"))
	require.NoError(t, err)

	assert.Equal(t, StateReady, inst.State())
	assert.True(t, inst.Alive())
	assert.Equal(t, -1, inst.ExitCode())

	require.NoError(t, m.Stop(inst))
	assert.False(t, inst.Alive())
	assert.Equal(t, StateExited, inst.State())

	// stop is idempotent
	require.NoError(t, m.Stop(inst))
}

func TestStopForcesKillOnIgnoredSignal(t *testing.T) {
	bin := writeScript(t, `trap '' TERM
while true; do sleep 0.05; done
`)
	m := NewManager(bin, 200*time.Millisecond, 300*time.Millisecond, testLogger())

	inst, err := m.Start(context.Background(), writeFixture(t, "server {}"))
	require.NoError(t, err)

	err = m.Stop(inst)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrForcedKill))
	assert.False(t, inst.Alive())

	// the sticky result is returned again
	assert.True(t, errors.Is(m.Stop(inst), ErrForcedKill))
}

func TestStopOnNilInstance(t *testing.T) {
	m := NewManager("unused", time.Millisecond, time.Millisecond, testLogger())

	require.NoError(t, m.Stop(nil))
}

func TestAwaitExit(t *testing.T) {
	bin := writeScript(t, `sleep 0.4
`)
	m := NewManager(bin, 100*time.Millisecond, time.Second, testLogger())

	inst, err := m.Start(context.Background(), writeFixture(t, "server {}"))
	require.NoError(t, err)

	assert.False(t, m.AwaitExit(inst, 50*time.Millisecond))
	assert.True(t, m.AwaitExit(inst, time.Second))
}

func TestAwaitPortRelease(t *testing.T) {
	m := NewManager("unused", time.Millisecond, time.Millisecond, testLogger())

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	port := l.Addr().(*net.TCPAddr).Port

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	err = m.AwaitPortRelease(ctx, "127.0.0.1", port)
	require.Error(t, err)

	l.Close()

	ctx2, cancel2 := context.WithTimeout(context.Background(), time.Second)
	defer cancel2()

	require.NoError(t, m.AwaitPortRelease(ctx2, "127.0.0.1", port))
}
