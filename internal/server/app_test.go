package server

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/shopstyle/internal/browser"
	"github.com/JakeFAU/shopstyle/internal/config"
	"github.com/JakeFAU/shopstyle/internal/telemetry"
)

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Port:                     3000,
			ReadHeaderTimeoutSeconds: 5,
			ShutdownTimeoutSeconds:   5,
		},
		Logging: config.LoggingConfig{Level: "error"},
		Browser: config.BrowserConfig{
			Engine:        browser.EngineChromedp,
			Headless:      true,
			NoSandbox:     true,
			NavTimeoutSec: 30,
			MaxParallel:   2,
		},
		Telemetry: config.TelemetryConfig{ServiceName: "shopstyle-test"},
	}
}

func TestNewAppRequiresConfig(t *testing.T) {
	t.Parallel()

	_, err := NewApp(nil, zap.NewNop())
	require.Error(t, err)
}

func TestNewScraperRejectsUnknownEngine(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Browser.Engine = "webkit"

	_, err := NewScraper(cfg, zap.NewNop())
	require.ErrorIs(t, err, browser.ErrUnknownEngine)
}

func TestBuildServesProbesAndShutsDown(t *testing.T) {
	app, err := Build(context.Background(), testConfig())
	require.NoError(t, err)
	require.NotNil(t, app.Scraper())

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Serve(ctx, ln) }()

	base := fmt.Sprintf("http://%s", ln.Addr().String())
	require.Eventually(t, func() bool {
		resp, err := http.Get(base + "/healthz")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		_, _ = io.Copy(io.Discard, resp.Body)
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	resp, err := http.Get(base + "/scrape")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, resp.Body.Close())
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.JSONEq(t, `{"error":"Missing or invalid URL parameter"}`, string(body))

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestInitTracingExportsToStdout(t *testing.T) {
	ctx := context.Background()
	var buf bytes.Buffer

	tp, err := initTracing(ctx, config.TelemetryConfig{
		ServiceName:    "shopstyle-test",
		TracingEnabled: true,
		Exporter:       "stdout",
	}, &buf)
	require.NoError(t, err)

	_, span := telemetry.Tracer().Start(ctx, "scraper.Scrape")
	span.End()
	require.NoError(t, tp.Shutdown(ctx))

	require.Contains(t, buf.String(), `"Name":"scraper.Scrape"`)
}

func TestInitTracingWithoutExporterWritesNothing(t *testing.T) {
	ctx := context.Background()
	var buf bytes.Buffer

	tp, err := initTracing(ctx, config.TelemetryConfig{ServiceName: "shopstyle-test", TracingEnabled: true}, &buf)
	require.NoError(t, err)

	_, span := telemetry.Tracer().Start(ctx, "scraper.Scrape")
	span.End()
	require.NoError(t, tp.Shutdown(ctx))

	require.Empty(t, buf.String())

	_, err = initTracing(ctx, config.TelemetryConfig{Exporter: "zipkin"}, &buf)
	require.Error(t, err)
}
