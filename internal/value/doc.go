// Package value provides the recordable value model for casestore.
//
// A Value is a tagged variant: a scalar (integer, real, text, boolean) or a
// sequence of values nested at most MaxDepth levels. The zero Value is the
// undefined marker used by queries for variables a case does not define.
//
// This package imports nothing internal. Every other package that touches
// variable data goes through Value, so both wire formats and the query engine
// agree on one set of kinds.
//
// Key constraints:
//   - Integers and reals stay distinct across both wire formats
//   - Reals may be non-finite; the text format writes them as
//     {"$numberDouble": "NaN"} (MongoDB extended JSON)
//   - Producer values that do not fit the model fail with ErrUnsupported
package value
