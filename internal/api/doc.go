// Package api hosts the HTTP server, middleware, and REST handlers for operator
// access. Notable routes:
//   - GET /healthz / readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/acquisitions runs one acquisition synchronously and returns the
//     scored result.
//   - GET /v1/acquisitions and /v1/acquisitions/{acquisition_id} for audit
//     lookups via the AcquisitionStore interface.
package api
