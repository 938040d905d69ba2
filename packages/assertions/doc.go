// Package assertions evaluates expectations against a received response.
//
// Supported assertions:
//   - Status code checks (exact match)
//   - Field equality with strict JSON typing (data.year == 2004)
//   - Field presence (token != null)
//   - Regular expression matches on string fields
//   - Header substring checks
//   - JSON Schema validation of the body or a field
//
// Assertions are evaluated in order and, by default, evaluation stops at
// the first failure.
package assertions
