package browser

import (
	"context"
	"testing"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/page"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewSelectsEngine(t *testing.T) {
	t.Parallel()

	loader, err := New(Config{}, nil)
	require.NoError(t, err)
	require.IsType(t, &ChromedpLoader{}, loader)

	loader, err = New(Config{Engine: "ChromeDP"}, zap.NewNop())
	require.NoError(t, err)
	require.IsType(t, &ChromedpLoader{}, loader)

	loader, err = New(Config{Engine: EngineRod}, zap.NewNop())
	require.NoError(t, err)
	require.IsType(t, &RodLoader{}, loader)

	_, err = New(Config{Engine: "firefox"}, zap.NewNop())
	require.ErrorIs(t, err, ErrUnknownEngine)
}

func TestConfigNavTimeoutDefault(t *testing.T) {
	t.Parallel()

	require.Equal(t, defaultNavTimeout, Config{}.navTimeout())
	require.Equal(t, time.Second, Config{NavigationTimeout: time.Second}.navTimeout())
	require.Equal(t, defaultNavTimeout, Config{NavigationTimeout: -time.Second}.navTimeout())
}

func TestCallExpression(t *testing.T) {
	t.Parallel()

	expr, err := callExpression("() => 1", nil)
	require.NoError(t, err)
	require.Equal(t, "(() => 1)()", expr)

	expr, err = callExpression("(a, b) => a", []any{[]string{`x"y`}, 2})
	require.NoError(t, err)
	require.Equal(t, `((a, b) => a)(["x\"y"], 2)`, expr)

	_, err = callExpression("(f) => f", []any{func() {}})
	require.Error(t, err)
}

func TestDecodeResult(t *testing.T) {
	t.Parallel()

	var out struct {
		Name string `json:"name"`
	}
	require.NoError(t, decodeResult([]byte(`{"name":"Lato"}`), &out))
	require.Equal(t, "Lato", out.Name)
	require.NoError(t, decodeResult([]byte(`garbage`), nil))
	require.Error(t, decodeResult([]byte(`garbage`), &out))
}

func TestSessionsLive(t *testing.T) {
	t.Parallel()

	var s sessions
	s.open()
	s.open()
	require.EqualValues(t, 2, s.Live())
	s.done()
	s.done()
	require.Zero(t, s.Live())
}

func TestForwardCancel(t *testing.T) {
	t.Parallel()

	parent, cancelParent := context.WithCancel(context.Background())
	child, cancelChild := context.WithCancel(context.Background())
	defer cancelChild()

	stop := forwardCancel(parent, cancelChild)
	defer stop()
	cancelParent()

	select {
	case <-child.Done():
	case <-time.After(time.Second):
		t.Fatal("child context was not cancelled")
	}
}

func TestForwardCancelStop(t *testing.T) {
	t.Parallel()

	parent, cancelParent := context.WithCancel(context.Background())
	child, cancelChild := context.WithCancel(context.Background())
	defer cancelChild()

	stop := forwardCancel(parent, cancelChild)
	stop()
	cancelParent()
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, child.Err())
}

func lifecycle(frame cdp.FrameID, loader cdp.LoaderID, name string) *page.EventLifecycleEvent {
	return &page.EventLifecycleEvent{FrameID: frame, LoaderID: loader, Name: name}
}

func TestIdleWatcherIgnoresOtherFrames(t *testing.T) {
	t.Parallel()

	w := newIdleWatcher()
	w.handle(lifecycle("main", "l1", "init"))
	require.False(t, w.isIdle(), "events before watchFrame are ignored")

	w.watchFrame("main")
	w.handle(lifecycle("iframe", "l9", "init"))
	w.handle(lifecycle("iframe", "l9", lifecycleNetworkAlmostIdle))
	require.False(t, w.isIdle())

	w.handle("not an event")
	require.False(t, w.isIdle())
}

func TestIdleWatcherTracksLatestLoader(t *testing.T) {
	t.Parallel()

	w := newIdleWatcher()
	w.watchFrame("main")

	w.handle(lifecycle("main", "blank", "init"))
	w.handle(lifecycle("main", "blank", lifecycleNetworkAlmostIdle))
	require.True(t, w.isIdle())

	w.handle(lifecycle("main", "product", "init"))
	require.False(t, w.isIdle())
	w.handle(lifecycle("main", "blank", lifecycleNetworkAlmostIdle))
	require.False(t, w.isIdle(), "stale loader must not mark the new document idle")
	w.handle(lifecycle("main", "product", "load"))
	require.False(t, w.isIdle())
	w.handle(lifecycle("main", "product", lifecycleNetworkAlmostIdle))
	require.True(t, w.isIdle())
}

func TestIdleWatcherWait(t *testing.T) {
	t.Parallel()

	w := newIdleWatcher()
	w.watchFrame("main")

	done := make(chan error, 1)
	go func() { done <- w.wait(context.Background()) }()

	w.handle(lifecycle("main", "l1", "init"))
	w.handle(lifecycle("main", "l1", lifecycleNetworkAlmostIdle))

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("wait did not return after idle event")
	}
}

func TestIdleWatcherWaitHonoursContext(t *testing.T) {
	t.Parallel()

	w := newIdleWatcher()
	w.watchFrame("main")
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := w.wait(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
