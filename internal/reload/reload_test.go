package reload

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/velto/internal/devmode"
	"github.com/conneroisu/velto/internal/errors"
	"github.com/conneroisu/velto/internal/hub"
	"github.com/conneroisu/velto/internal/testutils"
)

func TestStateString(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "port_negotiation", StatePortNegotiation.String())
	assert.Equal(t, "running", StateRunning.String())
	assert.Equal(t, "unknown", State(9).String())
}

func TestNegotiatePortSkipsBusyBase(t *testing.T) {
	base := testutils.OccupiedPort(t)
	if base > 65535-100 {
		t.Skip("ephemeral port too close to the top of the range")
	}

	first, p1, err := NegotiatePort("127.0.0.1", base, devmode.DefaultPortRange)
	require.NoError(t, err)
	defer first.Close()

	second, p2, err := NegotiatePort("127.0.0.1", base, devmode.DefaultPortRange)
	require.NoError(t, err)
	defer second.Close()

	assert.Greater(t, p1, base)
	assert.Greater(t, p2, p1)
	assert.Less(t, p2, base+devmode.DefaultPortRange)
	assert.Equal(t, p1, first.Addr().(*net.TCPAddr).Port)
	assert.Equal(t, p2, second.Addr().(*net.TCPAddr).Port)
}

func TestNegotiatePortExhausted(t *testing.T) {
	base := testutils.OccupiedPort(t)

	ln, port, err := NegotiatePort("127.0.0.1", base, 1)
	assert.Nil(t, ln)
	assert.Equal(t, base, port)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPortRangeExhausted)
	assert.True(t, errors.HasCode(err, errors.ErrCodePortRangeExhausted))

	ln, port, err = NegotiatePort("127.0.0.1", base, 0)
	assert.Nil(t, ln)
	assert.Equal(t, base, port)
	assert.ErrorIs(t, err, ErrPortRangeExhausted)
}

func TestCoordinatorEndToEnd(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "css")
	require.NoError(t, os.MkdirAll(sub, 0o755))

	dev := devmode.New(testutils.OccupiedPort(t))
	dev.Enable()
	c := New(Config{
		WatchDirs: []string{dir, filepath.Join(dir, "templates")},
	}, dev)
	assert.Equal(t, StateIdle, c.State())
	assert.Equal(t, 0, c.Port())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	require.Eventually(t, func() bool { return c.State() == StateRunning }, 2*time.Second, 10*time.Millisecond)
	assert.True(t, c.Serving())
	assert.True(t, c.Watching())
	assert.Equal(t, c.Port(), dev.ReloadPort())
	assert.NotEqual(t, dev.BasePort(), c.Port())

	conn := testutils.DialReload(t, c.Port())
	require.Eventually(t, func() bool { return c.Sessions() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(sub, "site.css"), []byte("a{}"), 0o644))

	assert.Equal(t, hub.ReloadMessage, testutils.ReadFrame(t, conn, 2*time.Second))

	cancel()
	// Read the close frame so the server's close handshake completes.
	_, _, _ = conn.Read(context.Background())

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("coordinator did not stop")
	}
	assert.False(t, c.Watching())
	assert.False(t, c.Serving())
}

func TestCoordinatorStartIsIdempotent(t *testing.T) {
	dev := devmode.New(testutils.OccupiedPort(t))
	c := New(Config{}, dev)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, c.Start(ctx))
	port := c.Port()
	require.NoError(t, c.Start(ctx))
	assert.Equal(t, port, c.Port())
	assert.Equal(t, StateRunning, c.State())
}

func TestCoordinatorFallsBackWhenRangeExhausted(t *testing.T) {
	base := testutils.OccupiedPort(t)
	dev := devmode.New(base)
	c := New(Config{PortRange: 1}, dev)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Startup still succeeds; only the hub is missing.
	require.NoError(t, c.Start(ctx))
	assert.Equal(t, StateRunning, c.State())
	assert.Equal(t, base, c.Port())
	assert.Equal(t, base, dev.ReloadPort())
	assert.False(t, c.Serving())
}

func TestCoordinatorUsesPublishedPort(t *testing.T) {
	dev := devmode.New(testutils.OccupiedPort(t))
	published := testutils.FreePort(t)
	require.True(t, dev.SetReloadPort(published))

	c := New(Config{}, dev)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	require.NoError(t, c.Start(ctx))
	assert.Equal(t, published, c.Port())
	assert.Equal(t, published, dev.ReloadPort())
	assert.True(t, c.Serving())

	testutils.DialReload(t, published)
	require.Eventually(t, func() bool { return c.Sessions() == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestCoordinatorKeepsNegotiatedPortWhenPublishedIsBusy(t *testing.T) {
	dev := devmode.New(testutils.OccupiedPort(t))
	published := testutils.OccupiedPort(t)
	require.True(t, dev.SetReloadPort(published))

	c := New(Config{}, dev)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, c.Start(ctx))
	assert.NotEqual(t, published, c.Port())
	assert.Equal(t, published, dev.ReloadPort())
	assert.True(t, c.Serving())
}

func TestTriggerReachesSubscribers(t *testing.T) {
	c := New(Config{}, devmode.New(0))
	sub := c.Channel().Subscribe()
	defer sub.Close()

	c.Trigger()

	select {
	case <-sub.C():
	case <-time.After(time.Second):
		t.Fatal("no signal received")
	}
}

func TestNewRequiresDevState(t *testing.T) {
	assert.Panics(t, func() { New(Config{}, nil) })
}
