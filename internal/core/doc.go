// Package core is the generic asynchronous import/export job engine.
//
// It contains all job logic independent of any transport layer. It can be
// used by web handlers, CLI tools, or tests without modification.
//
// # Architecture
//
//   - Orchestrator: owns job identity, lifecycle and progress. Every job has a
//     single writer, the [Tracker] handed to its worker; readers get
//     consistent snapshots through [Orchestrator.Status].
//   - Import pipeline: parses an upload, hands each row to the entity's
//     row processor, counts outcomes and stores an error report when any row
//     failed.
//   - Export pipeline: pages through the entity's data fetcher, maps each
//     item to ordered columns, renders the artifact and stores it with an
//     expiry.
//   - Registry: an owned set of entity definitions. Entities are generic
//     ([Entity]) and type-erased behind [Definition].
//   - Service: the facade the HTTP layer and CLI talk to.
//
// # Entities
//
// An entity plugs its identity rules into the engine through callbacks:
//
//	reg.MustRegister(&core.Entity[Currency]{
//	    Name:      "currencies",
//	    Columns:   []core.Column{{Name: "code", Required: true}, {Name: "name", Required: true}},
//	    KeyFields: []string{"code"},
//	    Decode:    decodeCurrency,
//	    Process:   store.processCurrency,
//	    Fetch:     store.fetchCurrencies,
//	    Map:       mapCurrency,
//	})
//
// # Job Lifecycle
//
//	Pending -> Processing -> Completed | Failed
//
// A job waits in Pending for a worker slot. Terminal states are final; any
// attempt to leave one panics. Cancelled is reserved and never reached.
// Terminal jobs are written to the history ledger and evicted from memory
// after the retention window.
//
// # Error Handling
//
// Row-level failures are [RowError] values in one of three categories
// (validation, duplicate, system) and never fail the job. Parse failures and
// pipeline faults fail the job with a message. Technical errors are mapped to
// user-facing messages with support codes by [MapError].
package core
