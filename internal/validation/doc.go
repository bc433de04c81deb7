// Package validation runs walk-forward out-of-sample validation of the
// valuation regression.
//
// Every window is preprocessed on its own rows only: the training slice is
// winsorized with its own quantile and the held-out row keeps its original
// values. Windows may run concurrently but results are always assembled in
// ascending time order, one entry per test point.
package validation
