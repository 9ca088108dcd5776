package browser

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/go-rod/rod/lib/launcher"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const lateTitlePage = `<!doctype html>
<html><head><title>initial</title></head>
<body>
<h1 id="heading">Product</h1>
<script>
fetch('/late').then(r => r.text()).then(t => { document.title = t; });
</script>
</body></html>`

func requireBrowser(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping browser test in short mode")
	}
	path, ok := launcher.LookPath()
	if !ok {
		t.Skip("no Chrome or Chromium installation found")
	}
	return path
}

func newPageServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/product", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, lateTitlePage)
	})
	mux.HandleFunc("/late", func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(100 * time.Millisecond)
		fmt.Fprint(w, "settled")
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

type liveLoader interface {
	Loader
	Live() int64
}

func engines(cfg Config) map[string]liveLoader {
	return map[string]liveLoader{
		EngineChromedp: NewChromedp(cfg, zap.NewNop()),
		EngineRod:      NewRod(cfg, zap.NewNop()),
	}
}

// openWithin fails the test instead of hanging when Open never returns.
func openWithin(t *testing.T, loader Loader, ctx context.Context, rawURL string) (Page, error) {
	t.Helper()
	type opened struct {
		page Page
		err  error
	}
	done := make(chan opened, 1)
	go func() {
		page, err := loader.Open(ctx, rawURL)
		done <- opened{page: page, err: err}
	}()
	select {
	case res := <-done:
		return res.page, res.err
	case <-time.After(30 * time.Second):
		t.Fatal("Open did not return after a failed launch")
		return nil, nil
	}
}

func TestEnginesLaunchFailureReleasesSession(t *testing.T) {
	t.Parallel()

	for name, loader := range engines(Config{ExecPath: "/nonexistent/chrome", Headless: true}) {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			page, err := openWithin(t, loader, context.Background(), "http://127.0.0.1:1/")

			require.ErrorIs(t, err, ErrLaunch)
			require.Nil(t, page)
			require.Zero(t, loader.Live())
		})
	}
}

func TestEnginesCanceledBeforeLaunchReleasesSession(t *testing.T) {
	t.Parallel()
	if _, err := os.Stat("/bin/true"); err != nil {
		t.Skip("/bin/true not available")
	}

	for name, loader := range engines(Config{ExecPath: "/bin/true", Headless: true}) {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			ctx, cancel := context.WithCancel(context.Background())
			cancel()

			page, err := openWithin(t, loader, ctx, "http://127.0.0.1:1/")

			require.ErrorIs(t, err, ErrLaunch)
			require.Nil(t, page)
			require.Zero(t, loader.Live())
		})
	}
}

func TestRodOpenWithoutBinaryFailsFast(t *testing.T) {
	t.Parallel()

	loader := NewRod(Config{Headless: true}, zap.NewNop())
	loader.lookPath = func() (string, bool) { return "", false }

	start := time.Now()
	page, err := loader.Open(context.Background(), "http://127.0.0.1:1/")

	require.ErrorIs(t, err, ErrLaunch)
	require.ErrorContains(t, err, "no Chrome or Chromium binary found")
	require.Nil(t, page)
	require.Zero(t, loader.Live())
	require.Less(t, time.Since(start), time.Second)
}

// crashingBrowser records the user-data-dir it was handed, creates it the way
// Chrome would and exits before printing a DevTools URL.
const crashingBrowser = `#!/bin/sh
for arg in "$@"; do
  case "$arg" in
    --user-data-dir=*)
      dir="${arg#--user-data-dir=}"
      mkdir -p "$dir"
      printf '%s' "$dir" > "%s"
      ;;
  esac
done
echo "browser crashed" >&2
exit 1
`

func TestRodLaunchFailureRemovesUserDataDir(t *testing.T) {
	t.Parallel()
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("/bin/sh not available")
	}

	tmp := t.TempDir()
	record := filepath.Join(tmp, "user-data-dir")
	bin := filepath.Join(tmp, "chrome")
	script := strings.Replace(crashingBrowser, `"%s"`, strconv.Quote(record), 1)
	require.NoError(t, os.WriteFile(bin, []byte(script), 0o755))

	loader := NewRod(Config{ExecPath: bin, Headless: true}, zap.NewNop())
	page, err := openWithin(t, loader, context.Background(), "http://127.0.0.1:1/")

	require.ErrorIs(t, err, ErrLaunch)
	require.Nil(t, page)
	require.Zero(t, loader.Live())

	dir, err := os.ReadFile(record)
	require.NoError(t, err, "browser was never started")
	require.NotEmpty(t, dir)
	require.NoDirExists(t, string(dir))
}

func TestEnginesOpenWaitsForNetworkIdle(t *testing.T) {
	t.Parallel()
	execPath := requireBrowser(t)
	srv := newPageServer(t)

	for name, loader := range engines(Config{ExecPath: execPath, Headless: true, NoSandbox: true}) {
		t.Run(name, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()

			page, err := loader.Open(ctx, srv.URL+"/product")
			require.NoError(t, err)
			require.EqualValues(t, 1, loader.Live())

			var title string
			require.NoError(t, page.Evaluate(ctx, `() => document.title`, &title))
			require.Equal(t, "settled", title)

			var text string
			require.NoError(t, page.Evaluate(ctx, `(sel) => document.querySelector(sel).textContent`, &text, "#heading"))
			require.Equal(t, "Product", text)

			require.NoError(t, page.Close())
			require.NoError(t, page.Close())
			require.Zero(t, loader.Live())
		})
	}
}

func TestEnginesNavigationFailureReleasesSession(t *testing.T) {
	t.Parallel()
	execPath := requireBrowser(t)

	for name, loader := range engines(Config{
		ExecPath:          execPath,
		Headless:          true,
		NoSandbox:         true,
		NavigationTimeout: 10 * time.Second,
	}) {
		t.Run(name, func(t *testing.T) {
			page, err := loader.Open(context.Background(), "http://127.0.0.1:1/")

			require.ErrorIs(t, err, ErrNavigation)
			require.Nil(t, page)
			require.Zero(t, loader.Live())
		})
	}
}
