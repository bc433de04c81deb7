// Package tsmodels implements the multivariate cointegration analyses run on
// the monthly table: VAR lag selection, the Johansen rank test, reduced-rank
// VECM estimation, ARDL estimation and the Pesaran-Shin-Smith bounds test on
// the unrestricted error-correction form.
//
// The Analyzer methods never return errors. Stage failures are logged and
// reported through sentinel values in the result records.
package tsmodels
