// Package http implements the HTTP handlers of the valuation server.
//
// Handlers stay thin: they decode and validate the request, call a service
// and render the result with chi/render. Every error is written as an RFC
// 7807 problem by the shared errors.ErrorHandler; service sentinel errors are
// mapped to their HTTP status in one place.
//
// Routes mounted under /api:
//
//	POST   /analysis/runs                    start a run
//	GET    /analysis/runs                    list runs, newest first
//	GET    /analysis/runs/{id}               run state and step progress
//	GET    /analysis/runs/{id}/results       full results of a finished run
//	GET    /analysis/runs/{id}/summary       headline values and interpretation
//	GET    /analysis/runs/{id}/files/{name}  download an exported file
//	DELETE /analysis/runs/{id}               cancel a run
//	GET    /inputs                           CSV files available as inputs
//	GET    /health, /health/ready, /health/live, /version
package http
