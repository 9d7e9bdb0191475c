// Package connectivity reduces connection-report records into population
// matrices.
//
// The pipeline runs leaves first:
//
//	raw labels   -> ParseLabel        (canonical Label or skip)
//	raw values   -> DecodeStatistic   (Symmetric, Directed or Bidirectional)
//	observations -> Build / BuildRect (dense row-major Matrix)
//	Grid         -> FilterRows / FilterRowsAndColumns
//	counts       -> Ratio over histogram bins
//
// Everything here is synchronous and allocation-fresh per call. Callers may
// run reductions from many goroutines without coordination.
package connectivity
