// Package exporter writes the results of an analysis run to disk.
//
// Export supports three formats:
//
//   - json: final_results.json with the headline values, summary.txt with the
//     interpretation, and analysis_results.json with the run state and every
//     section.
//   - csv: the model frame, the monthly frame with its fair value columns, and
//     the out-of-sample predictions, streamed row by row.
//   - xlsx: valuation_report.xlsx with one sheet per analysis.
//
// Missing values are empty CSV cells, null in JSON and blank spreadsheet cells.
//
//	exp := exporter.New(outDir, false, logger)
//	paths, err := exp.Export(ctx, run, []exporter.Format{exporter.FormatJSON, exporter.FormatXLSX})
package exporter
