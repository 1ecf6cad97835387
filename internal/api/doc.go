// Package api hosts the ops HTTP server exposed while a harvest run is in
// progress. Routes:
//   - GET /healthz and /readyz for liveness and readiness probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /progress for the per-status item counts recorded so far.
package api
