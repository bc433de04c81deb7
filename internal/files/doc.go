// Package files locates, validates and reads the CSV inputs of an analysis.
//
// Relative input paths are resolved inside the configured data directory.
// When no monthly file is named, the newest CSV matching MonthlyPattern there
// is used.
package files
