// Package preprocess holds the look-ahead-safe transformations and unit root
// checks applied to the valuation dataset before any model is fitted.
//
// Winsorize learns its upper cap from the rows selected by a mask and only
// rewrites those rows, so a training window never sees thresholds derived
// from later data. StationarityTest runs ADF (null: unit root) and KPSS
// (null: stationary) on the masked rows of each requested column.
package preprocess
