package engine

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ActionKind identifies a backend operation type within a step.
type ActionKind string

const (
	// ActionKindInstall installs a set of packages.
	ActionKindInstall ActionKind = "install"

	// ActionKindRepoAdd registers a third-party repository.
	ActionKindRepoAdd ActionKind = "repo-add"

	// ActionKindRefresh re-synchronizes the package index.
	ActionKindRefresh ActionKind = "refresh"

	// ActionKindDeduplicate removes duplicate repository entry lines.
	ActionKindDeduplicate ActionKind = "dedup-sources"

	// ActionKindApplyPin writes a pin-definition file.
	ActionKindApplyPin ActionKind = "apply-pin"

	// ActionKindEnableComponents appends component tags to active entry
	// lines.
	ActionKindEnableComponents ActionKind = "enable-components"

	// ActionKindServiceEnable enables and starts a system service.
	ActionKindServiceEnable ActionKind = "service-enable"

	// ActionKindFileWrite writes a file artifact (e.g., generated manual
	// instructions).
	ActionKindFileWrite ActionKind = "file-write"

	// ActionKindRepair re-runs the backend's interrupted-state recovery.
	ActionKindRepair ActionKind = "repair"
)

// Action is a single backend operation within a step.
type Action interface {
	// Kind identifies the operation type.
	Kind() ActionKind

	// Describe returns a one-line human-readable description, used for
	// logging and dry runs.
	Describe() string

	// Execute performs the operation against the run environment.
	Execute(ctx context.Context, env *Env) error
}

// InstallAction installs a set of packages through the backend.
type InstallAction struct {
	// Packages are the package names to install.
	Packages []string

	// Options tune the install invocation.
	Options InstallOptions
}

// Kind identifies the operation type.
func (a *InstallAction) Kind() ActionKind { return ActionKindInstall }

// Describe returns a one-line description of the action.
func (a *InstallAction) Describe() string {
	return fmt.Sprintf("install %s", strings.Join(a.Packages, " "))
}

// Execute installs the package set.
func (a *InstallAction) Execute(ctx context.Context, env *Env) error {
	if len(a.Packages) == 0 {
		return NewInternalError("install action has no packages", nil)
	}
	return env.Backend.Install(ctx, a.Packages, a.Options)
}

// RepoAddAction registers a third-party repository: signing key first, then
// the entry line, then an index refresh when anything new was written. The
// attached pin, if any, is applied unconditionally as a preventive measure.
type RepoAddAction struct {
	// Source is the repository definition.
	Source RepoSource
}

// Kind identifies the operation type.
func (a *RepoAddAction) Kind() ActionKind { return ActionKindRepoAdd }

// Describe returns a one-line description of the action.
func (a *RepoAddAction) Describe() string {
	return fmt.Sprintf("add repository %q", a.Source.ID)
}

// Execute registers the repository.
func (a *RepoAddAction) Execute(ctx context.Context, env *Env) error {
	src := a.Source

	if src.SigningKeyURL != "" && src.SigningKeyPath != "" {
		if _, err := os.Stat(src.SigningKeyPath); os.IsNotExist(err) {
			data, err := env.Keys.Fetch(ctx, src.SigningKeyURL)
			if err != nil {
				return NewTransientError("signing key download failed", err).
					WithOperation("key-fetch")
			}
			if err := env.Sources.InstallKey(src.SigningKeyPath, data); err != nil {
				return NewConfigWriteError("signing key install failed", err).
					WithOperation("key-install")
			}
		}
	}

	result, err := env.Sources.AddRepo(src)
	if err != nil {
		return NewConfigWriteError("repository entry write failed", err).
			WithOperation("repo-add")
	}

	switch result {
	case AddResultAlreadyPresent:
		env.Logger.WithField("repo", src.ID).Debug("repository already configured")
	case AddResultAdded:
		env.Logger.WithField("repo", src.ID).Info("repository added")
		if err := env.Backend.Refresh(ctx); err != nil {
			return err
		}
	}

	if src.Pin != nil {
		if err := env.Sources.ApplyPin(*src.Pin); err != nil {
			return NewConfigWriteError("pin write failed", err).
				WithOperation("apply-pin")
		}
	}

	return nil
}

// RefreshAction re-synchronizes the package index.
type RefreshAction struct{}

// Kind identifies the operation type.
func (a *RefreshAction) Kind() ActionKind { return ActionKindRefresh }

// Describe returns a one-line description of the action.
func (a *RefreshAction) Describe() string { return "refresh package index" }

// Execute refreshes the index.
func (a *RefreshAction) Execute(ctx context.Context, env *Env) error {
	return env.Backend.Refresh(ctx)
}

// DeduplicateAction removes duplicate active entry lines from all known
// repo-definition files.
type DeduplicateAction struct{}

// Kind identifies the operation type.
func (a *DeduplicateAction) Kind() ActionKind { return ActionKindDeduplicate }

// Describe returns a one-line description of the action.
func (a *DeduplicateAction) Describe() string { return "deduplicate repository sources" }

// Execute runs the deduplication.
func (a *DeduplicateAction) Execute(_ context.Context, env *Env) error {
	removed, err := env.Sources.DeduplicateAll()
	if err != nil {
		return NewConfigWriteError("source deduplication failed", err).
			WithOperation("dedup-sources")
	}
	if removed > 0 {
		env.Logger.WithField("removed", removed).Info("duplicate source entries removed")
		env.Metrics.RecordDuplicatesRemoved(removed)
	}
	return nil
}

// PinAction writes a pin-definition file.
type PinAction struct {
	// Rule is the pin to apply.
	Rule PinRule
}

// Kind identifies the operation type.
func (a *PinAction) Kind() ActionKind { return ActionKindApplyPin }

// Describe returns a one-line description of the action.
func (a *PinAction) Describe() string {
	return fmt.Sprintf("pin %s to %s (priority %d)",
		strings.Join(a.Rule.Packages, " "), a.Rule.Release, a.Rule.Priority)
}

// Execute writes the pin file.
func (a *PinAction) Execute(_ context.Context, env *Env) error {
	if err := env.Sources.ApplyPin(a.Rule); err != nil {
		return NewConfigWriteError("pin write failed", err).WithOperation("apply-pin")
	}
	return nil
}

// EnableComponentsAction appends missing component tags to every active
// repository entry line, in place. Rewriting existing lines avoids the
// duplicate-source failure mode of declaring the same component in a second
// file.
type EnableComponentsAction struct {
	// Tags are the component tags to enable.
	Tags []string
}

// Kind identifies the operation type.
func (a *EnableComponentsAction) Kind() ActionKind { return ActionKindEnableComponents }

// Describe returns a one-line description of the action.
func (a *EnableComponentsAction) Describe() string {
	return fmt.Sprintf("enable components %s", strings.Join(a.Tags, " "))
}

// Execute rewrites the entry lines and refreshes the index when anything
// changed.
func (a *EnableComponentsAction) Execute(ctx context.Context, env *Env) error {
	rewritten, err := env.Sources.EnableComponents(a.Tags...)
	if err != nil {
		return NewConfigWriteError("component enable failed", err).
			WithOperation("enable-components")
	}
	if rewritten == 0 {
		return nil
	}
	env.Logger.WithField("lines", rewritten).Info("components enabled on existing sources")
	return env.Backend.Refresh(ctx)
}

// ServiceEnableAction enables and starts a system service unit.
type ServiceEnableAction struct {
	// Unit is the service unit name (e.g., "docker").
	Unit string
}

// Kind identifies the operation type.
func (a *ServiceEnableAction) Kind() ActionKind { return ActionKindServiceEnable }

// Describe returns a one-line description of the action.
func (a *ServiceEnableAction) Describe() string {
	return fmt.Sprintf("enable service %s", a.Unit)
}

// Execute enables the unit.
func (a *ServiceEnableAction) Execute(ctx context.Context, env *Env) error {
	if _, err := env.System.Run(ctx, "systemctl", "enable", "--now", a.Unit); err != nil {
		if IsTimeout(err) {
			return err
		}
		return NewInternalError(fmt.Sprintf("enabling service %s failed", a.Unit), err).
			WithOperation("service-enable")
	}
	return nil
}

// FileWriteAction writes a file artifact, such as the generated markdown
// instructions for a deliberately manual install step. The write is
// idempotent: identical existing content is left untouched.
type FileWriteAction struct {
	// Path is the destination file.
	Path string

	// Content is the exact file content.
	Content []byte

	// Mode is the file mode for new files; 0644 when zero.
	Mode os.FileMode
}

// Kind identifies the operation type.
func (a *FileWriteAction) Kind() ActionKind { return ActionKindFileWrite }

// Describe returns a one-line description of the action.
func (a *FileWriteAction) Describe() string {
	return fmt.Sprintf("write %s", a.Path)
}

// Execute writes the file.
func (a *FileWriteAction) Execute(_ context.Context, env *Env) error {
	existing, err := os.ReadFile(a.Path)
	if err == nil && bytes.Equal(existing, a.Content) {
		return nil
	}
	mode := a.Mode
	if mode == 0 {
		mode = 0o644
	}
	if err := os.MkdirAll(filepath.Dir(a.Path), 0o755); err != nil {
		return NewConfigWriteError(fmt.Sprintf("creating directory for %s failed", a.Path), err).
			WithOperation("file-write")
	}
	if err := os.WriteFile(a.Path, a.Content, mode); err != nil {
		return NewConfigWriteError(fmt.Sprintf("writing %s failed", a.Path), err).
			WithOperation("file-write")
	}
	return nil
}

// RepairAction re-runs the backend's interrupted-state recovery so that a
// partially failed earlier run can complete. This backs the first step of
// the default graph and must stay safe to re-run.
type RepairAction struct{}

// Kind identifies the operation type.
func (a *RepairAction) Kind() ActionKind { return ActionKindRepair }

// Describe returns a one-line description of the action.
func (a *RepairAction) Describe() string { return "repair interrupted package state" }

// Execute runs the repair.
func (a *RepairAction) Execute(ctx context.Context, env *Env) error {
	return env.Backend.Repair(ctx)
}
