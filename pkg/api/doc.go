// Package api defines the public types of the flowgate engine: the workflow
// graph model, compiled flow paths, execution records, the error taxonomy,
// and the Observer interface used for logging and metrics.
//
// Most applications import the root flowgate package, which re-exports
// everything here; api exists so internal packages can share these types
// without import cycles.
package api
