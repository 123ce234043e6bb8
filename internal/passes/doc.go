// Package passes implements the IR-level transformation pipeline
// stages: validation, legalisation, the optimisation passes and the
// calling-convention lowering that together take high-level IR down to
// something the ARM backend can pattern match.
package passes
