// Package core provides the merge and incremental-publish logic for the
// county housing and deprivation dataset.
//
// This package contains all domain logic independent of any source, warehouse
// or transport. It can be used by the CLI, the admin HTTP server, or tests
// without modification.
//
// # Architecture
//
// The pipeline is a chain of pure functions over immutable [Table] values:
//
//  1. [AggregatePrices] filters the wide monthly price table to a region,
//     derives the county key with [CountyKey], and averages the target
//     year's months into one column.
//  2. [MergeSources] outer-joins geo, deprivation and aggregated prices on
//     [KeyColumn] and drops columns whose names start with a digit.
//  3. [MissingYears] differences the years both sources cover against the
//     years already published.
//
// [Service] wires these to a [DatasetReader] and a [Publisher]:
//
//   - [Service.FullLoad] replaces the target with one year, then runs the
//     incremental update.
//   - [Service.IncrementalUpdate] appends each missing year, continuing past
//     failures and reporting them as a [PartialError].
//   - [Service.Coverage] reports source and published years.
//
// Only one load or update runs at a time; a concurrent request gets
// [ErrUpdateInProgress].
//
// # Error Handling
//
// Technical errors are mapped to user-friendly messages using [MapError].
// Each error category has a unique code for support reference:
//
//   - IN001-IN003: Invalid year, region or target arguments
//   - KEY001: A source lacks the county key column
//   - SRC001-SRC003: Source download and parse failures
//   - WH001-WH003: Warehouse failures
//   - UPD001-UPD004: Concurrent runs, partial updates, cancellation
package core
