// Package server implements the HTTP API of the intake service: form
// submission, the newest-first listing, the live submission stream and
// the operational probes. It wires the routes to the ingestion pipeline,
// the submission store and its write hooks, and provides lifecycle
// helpers used by tests and the production binary.
package server
