package sources

import (
	"fmt"
	"os"

	"github.com/openrig/openrig/pkg/engine"
)

// DeduplicateAll removes duplicate active entry lines across every known
// definition file, returning the number of lines removed. The first
// occurrence in processing order survives; comments, blanks, and malformed
// lines pass through untouched. A fragment file left with no lines at all
// after a removal is deleted; a fragment still holding comments is rewritten,
// and the primary file is rewritten, never deleted.
//
// Running twice in a row removes nothing the second time.
func (r *Registry) DeduplicateAll() (int, error) {
	files, err := r.repoFiles()
	if err != nil {
		return 0, err
	}

	seen := make(map[string]struct{})
	removed := 0

	for _, path := range files {
		lines, trailingNewline, err := readLines(path)
		if err != nil {
			return removed, engine.NewInternalError(fmt.Sprintf("failed to read %s", path), err).WithOperation("deduplicate_all")
		}

		kept := make([]string, 0, len(lines))
		removedHere := 0

		for _, line := range lines {
			if !isActive(line, r.layout.Keyword) {
				kept = append(kept, line)
				continue
			}
			norm := normalizeLine(line)
			if _, dup := seen[norm]; dup {
				removedHere++
				continue
			}
			seen[norm] = struct{}{}
			kept = append(kept, line)
		}

		if removedHere == 0 {
			continue
		}
		removed += removedHere

		if len(kept) == 0 && path != r.layout.PrimaryFile {
			if err := os.Remove(path); err != nil {
				return removed, engine.NewConfigWriteError(fmt.Sprintf("failed to remove %s", path), err).WithOperation("deduplicate_all")
			}
			r.logger.WithField("file", path).Info("removed definition file emptied by deduplication")
			continue
		}

		if err := writeLines(path, kept, trailingNewline); err != nil {
			return removed, engine.NewConfigWriteError(fmt.Sprintf("failed to rewrite %s", path), err).WithOperation("deduplicate_all")
		}
		r.logger.WithField("file", path).WithField("removed", removedHere).Info("removed duplicate repository entries")
	}

	return removed, nil
}
