// Package config loads YAML step manifests and turns them into an
// engine.StepGraph. A manifest replaces the built-in default graph when the
// operator needs a different step set without rebuilding the binary.
package config
