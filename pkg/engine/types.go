package engine

import (
	"context"

	"github.com/openrig/openrig/pkg/telemetry"
)

// Platform identifies the detected distribution a run targets.
type Platform struct {
	// ID is the os-release ID field (e.g., "debian", "opensuse-tumbleweed").
	ID string `json:"id"`

	// VersionID is the os-release VERSION_ID field, empty on rolling
	// releases.
	VersionID string `json:"version_id,omitempty"`

	// Codename is the release codename (e.g., "bookworm").
	Codename string `json:"codename,omitempty"`

	// ReleaseTag is the marker used to recognize packages from the local
	// release in version strings (e.g., "deb12").
	ReleaseTag string `json:"release_tag,omitempty"`

	// PrettyName is the human-readable platform description.
	PrettyName string `json:"pretty_name,omitempty"`
}

// RepoSource describes a third-party repository to be registered.
type RepoSource struct {
	// ID is the logical name (e.g., "docker", "nodesource").
	ID string `json:"id"`

	// EntryLine is the one-line repository definition, deduplicated against
	// every existing active line before being appended.
	EntryLine string `json:"entry_line"`

	// SigningKeyURL is where the trust key is fetched from when it is not
	// yet installed. Optional.
	SigningKeyURL string `json:"signing_key_url,omitempty"`

	// SigningKeyPath is the keyring location the key is installed to.
	// Required when SigningKeyURL is set.
	SigningKeyPath string `json:"signing_key_path,omitempty"`

	// Pin optionally forces version selection for packages from this source.
	Pin *PinRule `json:"pin,omitempty"`
}

// PinRule forces a specific release's package versions to win over a
// competing version from another configured source.
type PinRule struct {
	// ID scopes the pin to exactly one preference file; re-applying
	// overwrites rather than appends.
	ID string `json:"id"`

	// Packages are the package names or glob patterns affected.
	Packages []string `json:"packages"`

	// Release is the pin target expression (e.g., "n=bookworm",
	// "o=Docker").
	Release string `json:"release"`

	// Priority is the pin priority; higher wins.
	Priority int `json:"priority"`
}

// InstallOptions tune a backend install invocation.
type InstallOptions struct {
	// AllowDowngrade permits installing a lower version than the one
	// currently installed, needed when a pin points back to the distro
	// version.
	AllowDowngrade bool `json:"allow_downgrade,omitempty"`

	// NoRecommends skips optional recommended packages.
	NoRecommends bool `json:"no_recommends,omitempty"`

	// Extra passes additional backend-specific flags through verbatim.
	Extra []string `json:"extra,omitempty"`
}

// PackageBackend abstracts the command surface of one OS package manager.
// Implementations live in pkg/backend; all mutating operations apply
// directly to system package state with no transaction or rollback.
type PackageBackend interface {
	// Name returns the backend identifier ("apt", "zypper").
	Name() string

	// Refresh re-synchronizes the local package index. Returns a transient
	// error when the remote index is unreachable.
	Refresh(ctx context.Context) error

	// Install installs or upgrades the named packages to the latest version
	// allowed by active pins. Returns a not-found error naming unknown
	// packages, or a conflict error when a held or pinned constraint would
	// be violated.
	Install(ctx context.Context, names []string, opts InstallOptions) error

	// IsInstalled reports whether a package is currently installed.
	IsInstalled(ctx context.Context, name string) (bool, error)

	// HeldPackages returns the set of packages excluded from upgrades.
	HeldPackages(ctx context.Context) ([]string, error)

	// ForeignReleasePackages returns packages whose version string carries a
	// release marker from a different release than localReleaseTag.
	ForeignReleasePackages(ctx context.Context, localReleaseTag string) ([]string, error)

	// Repair re-runs the backend's interrupted-state recovery so a partially
	// failed earlier run can be completed. Safe to call unconditionally.
	Repair(ctx context.Context) error
}

// SourceRegistry owns every mutation of repository and pin configuration
// files. Implementations live in pkg/sources.
type SourceRegistry interface {
	// AddRepo idempotently registers a repository entry line, reporting
	// whether anything was written.
	AddRepo(src RepoSource) (AddResult, error)

	// InstallKey writes signing key material to path unless identical
	// content is already present.
	InstallKey(path string, data []byte) error

	// DeduplicateAll removes duplicate active entry lines across all known
	// repo-definition files, returning the number of lines removed.
	DeduplicateAll() (int, error)

	// ApplyPin writes the pin-definition file for the rule, overwriting any
	// previous content.
	ApplyPin(rule PinRule) error

	// EnableComponents appends each missing component tag to every active
	// entry line, returning the number of lines rewritten.
	EnableComponents(tags ...string) (int, error)
}

// CommandRunner executes an external command and returns its combined
// output. The production implementation wraps os/exec with a bounded-wait
// deadline; tests substitute fakes.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// KeyFetcher retrieves signing key material from a remote location.
type KeyFetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Env bundles the capabilities a step's actions execute against. The
// orchestrator owns exactly one Env per run.
type Env struct {
	// Backend is the package manager selected at startup.
	Backend PackageBackend

	// Sources is the repository source registry.
	Sources SourceRegistry

	// Keys fetches signing keys for repository registration.
	Keys KeyFetcher

	// System runs commands outside the package manager (service enablement).
	System CommandRunner

	// Platform is the detected distribution.
	Platform Platform

	// Logger receives per-action log lines.
	Logger *telemetry.Logger

	// Metrics receives per-action measurements. Optional.
	Metrics *telemetry.Metrics

	// DryRun describes actions instead of executing them.
	DryRun bool
}

// Step is one named provisioning unit: an ordered list of actions plus the
// fatality policy applied when one of them fails.
type Step struct {
	// Name is the unique human-readable identifier.
	Name string `json:"name"`

	// Description explains what the step provides.
	Description string `json:"description,omitempty"`

	// Fatal aborts the whole run on failure. Almost every step is
	// intentionally non-fatal: one broken optional package must not block
	// the rest of the run.
	Fatal bool `json:"fatal,omitempty"`

	// Actions are executed in order; the first failure ends the step.
	Actions []Action `json:"-"`
}

// Precondition is checked once before the first step. Returning an error
// aborts the run before anything executes.
type Precondition func(env *Env) error
