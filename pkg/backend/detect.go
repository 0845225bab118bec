package backend

import (
	"fmt"
	"os"
	"strings"

	"github.com/openrig/openrig/pkg/engine"
	"github.com/openrig/openrig/pkg/telemetry"
)

// OSReleasePath is the standard location of the os-release file.
const OSReleasePath = "/etc/os-release"

// DetectPlatform reads an os-release file and returns the platform a run
// targets. A missing or unreadable file is a precondition failure: without
// it no backend can be chosen.
func DetectPlatform(path string) (engine.Platform, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return engine.Platform{}, engine.NewPreconditionError(fmt.Sprintf("cannot read %s", path), err)
	}
	return ParseOSRelease(string(data))
}

// ParseOSRelease parses os-release content into a platform description.
func ParseOSRelease(content string) (engine.Platform, error) {
	fields := make(map[string]string)
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		fields[key] = strings.Trim(value, `"'`)
	}

	p := engine.Platform{
		ID:         fields["ID"],
		VersionID:  fields["VERSION_ID"],
		Codename:   fields["VERSION_CODENAME"],
		PrettyName: fields["PRETTY_NAME"],
	}
	if p.ID == "" {
		return engine.Platform{}, engine.NewPreconditionError("os-release carries no ID field", nil)
	}
	p.ReleaseTag = releaseTag(p)
	return p, nil
}

// releaseTag derives the version-string marker identifying packages built
// for the local release. Only the Debian family stamps its release number
// into package versions this way.
func releaseTag(p engine.Platform) string {
	if p.ID != "debian" || p.VersionID == "" {
		return ""
	}
	major, _, _ := strings.Cut(p.VersionID, ".")
	return "deb" + major
}

// NewBackend selects the package backend for the platform. Unsupported
// platforms are a precondition failure.
func NewBackend(p engine.Platform, runner engine.CommandRunner, logger *telemetry.Logger, metrics *telemetry.Metrics) (engine.PackageBackend, error) {
	switch p.ID {
	case "debian", "ubuntu":
		return NewAptBackend(runner, logger, metrics), nil
	case "opensuse-tumbleweed", "opensuse-leap":
		return NewZypperBackend(runner, logger, metrics), nil
	default:
		return nil, engine.NewPreconditionError(fmt.Sprintf("unsupported platform: %s", p.ID), nil)
	}
}
