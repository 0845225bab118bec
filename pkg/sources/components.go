package sources

import (
	"fmt"
	"strings"

	"github.com/openrig/openrig/pkg/engine"
)

// EnableComponents appends each missing component tag to every active entry
// line of the primary file, rewriting lines in place instead of declaring
// the component in a new file. Lines already carrying every tag are left
// alone, so a second application changes nothing. Returns the number of
// lines rewritten.
//
// Only the primary file is touched: per-source fragment files describe
// third-party archives that do not carry distribution components.
func (r *Registry) EnableComponents(tags ...string) (int, error) {
	if len(tags) == 0 {
		return 0, nil
	}

	path := r.layout.PrimaryFile
	lines, trailingNewline, err := readLines(path)
	if err != nil {
		return 0, engine.NewInternalError(fmt.Sprintf("failed to read %s", path), err).WithOperation("enable_components")
	}

	rewritten := 0
	for i, line := range lines {
		if !isActive(line, r.layout.Keyword) {
			continue
		}
		updated := line
		for _, tag := range tags {
			if !hasField(updated, tag) {
				updated += " " + tag
			}
		}
		if updated != line {
			lines[i] = updated
			rewritten++
		}
	}

	if rewritten == 0 {
		return 0, nil
	}
	if err := writeLines(path, lines, trailingNewline); err != nil {
		return 0, engine.NewConfigWriteError(fmt.Sprintf("failed to rewrite %s", path), err).WithOperation("enable_components")
	}

	r.logger.WithField("file", path).WithField("rewritten", rewritten).
		Infof("enabled components %s", strings.Join(tags, " "))
	return rewritten, nil
}

// hasField reports whether the line contains value as a whitespace-separated
// field.
func hasField(line, value string) bool {
	for _, f := range strings.Fields(line) {
		if f == value {
			return true
		}
	}
	return false
}
