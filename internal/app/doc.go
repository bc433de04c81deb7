// Package app wires the valuation server together.
//
// New loads the configuration (defaults, then ETHVAL_* environment
// variables, then YAML) and builds the logger, telemetry, websocket hub,
// analysis and health services and the chi router. Run serves until its
// context is cancelled and then shuts down in order: the HTTP server, the
// running analyses, the websocket clients and finally telemetry.
//
// The package never calls os.Exit; main decides the exit code.
package app
