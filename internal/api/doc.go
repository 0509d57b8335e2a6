// Package api hosts the HTTP server, middleware, and REST handlers for the
// lookup service. Notable routes:
//   - GET /health for liveness probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /api/v1/lookups for submitting a hackathon lookup.
//   - GET /api/v1/lookups/{lookup_id} for polling job state and results.
//   - GET /api/v1/lookups/{lookup_id}/events for the SSE progress stream.
//   - GET /api/v1/hackathons/search for hackathon autocomplete.
package api
