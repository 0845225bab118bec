package sources

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/openrig/openrig/pkg/engine"
)

// ApplyPin writes the pin-definition file for the rule, overwriting any
// previous content. Re-applying an identical rule produces a byte-identical
// file, so it is safe to call unconditionally as a preventive measure.
func (r *Registry) ApplyPin(rule engine.PinRule) error {
	if rule.ID == "" {
		return engine.NewInternalError("pin rule has no id", nil)
	}
	if len(rule.Packages) == 0 {
		return engine.NewInternalError(fmt.Sprintf("pin rule %s names no packages", rule.ID), nil)
	}
	if rule.Release == "" {
		return engine.NewInternalError(fmt.Sprintf("pin rule %s has no release expression", rule.ID), nil)
	}

	content := renderPin(rule)
	path := filepath.Join(r.layout.PinDir, rule.ID+r.layout.PinExt)

	existing, err := os.ReadFile(path)
	if err == nil && bytes.Equal(existing, content) {
		return nil
	}

	if err := os.MkdirAll(r.layout.PinDir, 0o755); err != nil {
		return engine.NewConfigWriteError(fmt.Sprintf("failed to create %s", r.layout.PinDir), err).WithOperation("apply_pin")
	}
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return engine.NewConfigWriteError(fmt.Sprintf("failed to write %s", path), err).WithOperation("apply_pin")
	}

	r.logger.WithField("pin", rule.ID).WithField("file", path).Info("pin rule applied")
	return nil
}

// renderPin produces the stanza format: Package, Pin, Pin-Priority fields.
func renderPin(rule engine.PinRule) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "Package: %s\n", strings.Join(rule.Packages, " "))
	fmt.Fprintf(&b, "Pin: release %s\n", rule.Release)
	fmt.Fprintf(&b, "Pin-Priority: %d\n", rule.Priority)
	return []byte(b.String())
}
