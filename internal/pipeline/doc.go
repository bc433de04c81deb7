// Package pipeline runs a complete network-value analysis over a monthly
// table and collects every result of the run.
//
// A run winsorizes the monthly data over the whole sample, tests the
// configured series for unit roots and builds the model frame. It then runs
// the OLS benchmarks (followed by residual and break diagnostics on the
// extended fit), the VECM, the ARDL bounds analysis and walk-forward
// validation concurrently, merges the out-of-sample predictions onto the
// model frame, and produces the headline Summary.
//
// Each analysis records its own failure in its result; only an unusable
// input or cancellation fails the whole run. Progress is reported to an
// Observer as step and run events, and step timings to Metrics.
package pipeline
