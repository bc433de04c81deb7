// Package shared holds helpers used by more than one layer of the module.
//
// The testutil subpackage builds synthetic monthly and daily network data,
// writes it to CSV fixtures, and captures slog output so tests can assert on
// log records. Nothing here depends on a specific analysis package.
package shared
