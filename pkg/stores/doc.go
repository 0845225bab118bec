// Package stores persists an append-only history of provisioning runs and
// their per-step outcomes in SQLite. The history backs `rig history`; a run
// never reads it back as input, the package state itself is the only durable
// truth a run depends on.
package stores
