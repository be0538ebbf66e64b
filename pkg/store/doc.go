// Package store abstracts record, edge, and result persistence behind
// focused interfaces. Backends exist for Neo4j, Badger, and an in-memory
// store used by tests.
//
// Every multi-record read is a bulk operation: callers hand over the full id
// set and get one round trip. Nothing in the pipeline is allowed to loop over
// ids issuing per-record fetches, and the in-memory store counts round trips
// so tests can enforce that.
package store
