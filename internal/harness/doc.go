// Package harness runs YAML scenarios against a fresh header registry.
//
// # Scenario Format
//
//	name: shared_scores
//	description: "Two record stores share one header"
//	registry:
//	  max_bytes: 4096
//	steps:
//	  - op: create
//	    as: a
//	    suite: 7
//	    name: Scores
//	    size: 4
//	    expect: { outcome: ok, version: 0, ref_count: 1 }
//	  - op: set_data
//	    node: a
//	    data: "AB"
//	    offset: 1
//	    as: v1
//	  - op: get_data
//	    node: a
//	    since: v1
//	    expect: { outcome: unchanged }
//	stress:
//	  isolates: 8
//	  iterations: 50
//	  suite: 7
//	  name: Hot
//	assertions:
//	  - type: op_count
//	    op: create
//	    count: 1
//	  - type: final_state
//	    headers: 1
//
// Steps name nodes with "as" and refer to them with "node". A set_data or
// get_data step's "as" remembers the version it produced, which a later
// get_data can pass as "since". Nodes produced by acquire hold a handle, so
// set_data and get_data on them go through the handle and release is
// allowed.
//
// # Record Stores
//
// open, reopen, refresh, update and close drive a recordstore.Manager over
// the same registry. open seeds a new header with "data" and names the
// store with "as"; the other ops take the store in "node". An open may list
// "reclaim" targets (stores or acquired nodes). When the registry runs out
// of memory the manager reclaims them one per retry, each producing a
// "reclaim" trace event ahead of the open's own event.
//
// # Configuration
//
// Run builds the registry and the manager from Options.Config. A scenario's
// registry block overrides max_bytes and initial_version, and either source
// can enable debug. In debug mode a step that breaks the registry contract
// is recorded with outcome "violation" instead of aborting the run.
//
// # Assertion Types
//
//   - op_count: an op appears exactly N times in the trace
//   - op_order: the first occurrences of ops appear in the given order
//   - final_state: live header count and optionally bytes in use
//
// # Deterministic Testing
//
// Trace seqs are a per-run counter starting at 1 and payloads are
// recorded as digests, so a scenario's trace is identical across runs and
// can be compared against a golden file. The stress phase runs
// concurrently but contributes a single summary event whose fields do not
// depend on scheduling.
package harness
