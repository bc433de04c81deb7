// Package ols fits the static log market-cap regressions of the valuation
// study.
//
// FitHAC is the single fitting entry point. It drops incomplete rows, fits
// ordinary least squares and replaces the classic covariance with a
// Newey-West estimate. Failures never panic or return an error value: they
// are reported in ModelFitResult.Error and leave every numeric field at its
// null default, so callers branch on OK before reading anything else.
//
// RunBenchmarks fits the base, extended and constrained (exponent 2)
// specifications and writes the implied fair-value price columns into the
// monthly table it receives.
package ols
