// Package backend implements the distribution-specific package manager
// surface behind engine.PackageBackend: apt for the Debian family, zypper
// for OpenSUSE. Every command goes through an engine.CommandRunner so tests
// can fake the process surface, and every failure comes back classified as
// an engine error so the orchestrator's step policy can act on it.
package backend
