// Package engine implements the core provisioning engine: an ordered graph
// of named steps executed strictly sequentially by an Orchestrator against a
// distribution-specific package backend and a repository source registry.
//
// The engine is deliberately single-threaded. Later steps assume the side
// effects of earlier ones (a refreshed index after a repository was added),
// and the OS package manager serializes mutations behind its own lock, so
// parallel steps would only contend on it.
//
// A run walks the state machine
//
//	not_started -> running -> completed | aborted
//
// Preconditions (supported platform, required privilege) are checked once
// before the first step; a failed precondition aborts the run with an empty
// report. Individual step failures are classified: non-fatal steps degrade
// to warnings and the run continues, fatal steps abort, and configuration
// write failures fail their step without stopping the run. Every outcome is
// collected into a RunReport that is rebuilt from scratch each run.
package engine
