// Package harness runs conformance scenarios for entity definitions.
//
// Each scenario gets a fresh in-memory SQLite database. Setup SQL runs
// first, outside any transaction. Every step is then bound against its
// entity definition and executed through one transaction. A failing step
// rolls that transaction back and the next step starts a new one.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: users_crud
//	description: "What this scenario validates"
//	specs:
//	  - ../specs/users.cue
//	setup:
//	  - "CREATE TABLE users (id INTEGER PRIMARY KEY, name TEXT NOT NULL)"
//	steps:
//	  - entity: users
//	    op: create
//	    values: {name: Ann}
//	    expect:
//	      sql: "INSERT INTO users (name) VALUES (?)"
//	      params: [Ann]
//	      affected: 1
//	  - op: last_insert_id
//	    expect: {value: 1}
//	  - entity: users
//	    op: create
//	    values: {}
//	    expect:
//	      error: MISSING_REQUIRED_ATTRIBUTE
//	assertions:
//	  - type: row_count
//	    table: users
//	    count: 0
//	commit: true
//
// # Assertion Types
//
// The following assertion types are supported:
//
//   - trace_contains: some step rendered exactly the given SQL
//   - trace_count: an operation on an entity succeeded exactly N times
//   - final_state: one row matches where and holds the expected values
//   - row_count: exactly N rows match where
//
// # Golden Files
//
// Runs are deterministic: the transaction id is fixed (tx_id, default
// "test-tx-default") and every run uses a new database. The trace is
// serialized as canonical JSON and compared with testdata/golden/<name>.golden
// by RunWithGolden.
//
// # Usage
//
//	scenario, err := harness.LoadScenario("testdata/scenarios/users_crud.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	result, err := harness.Run(scenario)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, msg := range result.Errors {
//	    log.Println(msg)
//	}
package harness
