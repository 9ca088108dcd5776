// Package main hosts the shopstyle service entrypoint.
//
// Architecture overview:
//   - HTTP API: internal/api.Server exposes GET /scrape?url=..., health probes, and /metrics. The url parameter
//     must appear exactly once and be non-empty; failures are reported with fixed messages and the cause is logged.
//   - Scrape pipeline: internal/scraper acquires an optional slot (browser.max_parallel), launches a dedicated
//     browser through internal/browser (chromedp by default, go-rod when browser.engine=rod), waits for network
//     quiescence, and runs the internal/extract scripts for fonts and the add-to-cart button.
//   - Teardown: every browser is closed on every path, including client disconnects, which cancel the request
//     context and kill the browser process.
//   - Configuration & plumbing: Viper populates config from env/files; zap provides structured logging; Prometheus
//     metrics are exported via the metrics middleware and /metrics handler; OpenTelemetry spans wrap launch and
//     extraction.
//
// Quick checklist:
//   - Configure env vars: PORT or SHOPSTYLE_SERVER_PORT, SHOPSTYLE_BROWSER_ENGINE, SHOPSTYLE_BROWSER_EXEC_PATH,
//     SHOPSTYLE_BROWSER_NO_SANDBOX, SHOPSTYLE_BROWSER_MAX_PARALLEL, SHOPSTYLE_LOGGING_DEVELOPMENT.
//   - Run locally: go run ./cmd/shopstyle serve --config config.yaml
//   - One-off: go run ./cmd/shopstyle scrape https://shop.example/products/tee
package main
