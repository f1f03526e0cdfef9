// Package filter translates engine predicates into MongoDB queries.
//
// Two translation paths exist, mirroring how the engine hands predicates to
// a scan:
//
//   - Table filters (per-column predicates: comparisons, IN sets, null
//     tests, conjunctions) become a native find filter document via
//     EncodeFind. Native filters can use indexes, so they are always
//     preferred.
//   - Complex expressions (column-to-column comparisons, whitelisted
//     function calls, cast-wrapped operands) become a $expr fragment via
//     PushdownComplex. Expressions that are volatile, can throw, or
//     reference foreign tables are rejected and stay with the engine.
//
// The expression model is parsed from the engine's bound-expression JSON
// with Parse. Unknown expression classes parse into UnsupportedExpression
// so a single unsupported node never fails the whole filter set.
//
// # Object-id coercion
//
// String constants compared against `_id`, `*._id`, or `*_id` paths that
// are exactly 24 hex characters are emitted as native object-id values, not
// strings. Without this, equality on `_id` would never match documents
// keyed by real object ids.
package filter
