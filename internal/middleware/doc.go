// Package middleware holds the HTTP middleware of the valuation server:
// request IDs, structured request logs, panic recovery, rate limiting, CORS,
// security headers, OpenTelemetry instrumentation and JSON body validation.
package middleware
