// Package services implements the layer between the HTTP handlers and the
// analysis pipeline.
//
// AnalysisService accepts run requests, loads their inputs synchronously so
// that bad paths fail the request, and executes the pipeline in the
// background under the configured run timeout. Finished runs are exported to
// <output_dir>/<run_id>/ and kept in a bounded in-memory RunStore.
//
// HealthService reports liveness, readiness and run statistics.
package services
