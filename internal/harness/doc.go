// Package harness records synthetic optimization runs described in YAML.
//
// A scenario describes a driver tree: each driver runs a number of
// iterations, and every iteration of a driver runs its sub-drivers to
// completion before its own case is recorded, the same order a real nested
// optimization produces. Values are generated deterministically from the
// scenario, so the same scenario always yields byte-identical output.
//
// # Scenario Format
//
//	name: nested
//	description: "Top driver running a local optimizer per iteration"
//	model: paraboloid
//	constants:
//	  - {name: p.c, kind: int, start: 3}
//	driver:
//	  name: driver
//	  iterations: 2
//	  parameters:
//	    - {name: p.x, kind: real, start: 1.5, step: 0.5}
//	  objectives:
//	    - {expr: "p.f_xy", start: 10, step: -2}
//	  fail_at: [2]
//	  drivers:
//	    - name: localopt
//	      iterations: 3
//	expect:
//	  cases: 8
//	  failed: 1
//
// Objectives and constraints become pseudo variables named _pseudo_0,
// _pseudo_1, ... in depth-first driver order. Every driver also records its
// iteration coordinate as the text variable "<name>.workflow.itername".
//
// # Deterministic Output
//
// Record uses testutil.DeterministicClock for timestamps and sequential
// identifiers for the run and its cases, so golden files can be compared
// byte for byte.
package harness
