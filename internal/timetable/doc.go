// Package timetable provides the time-indexed numeric table every analysis in
// this module consumes.
//
// A Table owns a strictly increasing index of timestamps (daily or month-end)
// and an ordered set of float64 columns. NaN marks a missing observation.
// Routines that consume a table drop missing values only for the columns they
// use; nothing here re-sorts or imputes.
//
// Row subsets are expressed with a Mask: a BoolMask selects rows by position and
// must match the table length, a LabelMask selects rows by timestamp, and a nil
// Mask selects every row.
//
// Tables are loaded from CSV with ReadCSV, rendered back with Records, and
// fingerprinted with Digest.
package timetable
