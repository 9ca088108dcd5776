// Package api hosts the HTTP server, middleware, and handlers. Notable routes:
//   - GET /scrape?url=... renders a product page and returns its fonts and
//     add-to-cart button style.
//   - GET /healthz / readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
package api
