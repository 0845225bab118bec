package engine

import "fmt"

// Keyring and artifact locations used by the default graph.
const (
	dockerKeyringPath     = "/etc/apt/keyrings/docker.asc"
	nodesourceKeyringPath = "/etc/apt/keyrings/nodesource.asc"
	suryKeyringPath       = "/etc/apt/keyrings/sury-php.asc"
	manualStepsPath       = "/root/MANUAL_STEPS.md"
)

// DefaultGraph returns the built-in workstation step graph for the detected
// platform. Every step is non-fatal: a broken optional toolchain must not
// block the remaining ones. The only fatal checks are the preconditions run
// before the graph starts.
func DefaultGraph(p Platform) (*StepGraph, error) {
	switch {
	case p.ID == "debian" || p.ID == "ubuntu":
		return debianGraph(p)
	case p.ID == "opensuse-tumbleweed" || p.ID == "opensuse-leap":
		return zypperGraph(p)
	default:
		return nil, NewPreconditionError(fmt.Sprintf("unsupported platform: %s", p.ID), nil)
	}
}

func debianGraph(p Platform) (*StepGraph, error) {
	docker := RepoSource{
		ID:             "docker",
		EntryLine:      fmt.Sprintf("deb [arch=amd64 signed-by=%s] https://download.docker.com/linux/%s %s stable", dockerKeyringPath, p.ID, p.Codename),
		SigningKeyURL:  fmt.Sprintf("https://download.docker.com/linux/%s/gpg", p.ID),
		SigningKeyPath: dockerKeyringPath,
	}
	nodesource := RepoSource{
		ID:             "nodesource",
		EntryLine:      fmt.Sprintf("deb [signed-by=%s] https://deb.nodesource.com/node_22.x nodistro main", nodesourceKeyringPath),
		SigningKeyURL:  "https://deb.nodesource.com/gpgkey/nodesource-repo.gpg.key",
		SigningKeyPath: nodesourceKeyringPath,
		Pin: &PinRule{
			ID:       "nodesource",
			Packages: []string{"nodejs"},
			Release:  "o=deb.nodesource.com",
			Priority: 600,
		},
	}
	sury := RepoSource{
		ID:             "php-sury",
		EntryLine:      fmt.Sprintf("deb [signed-by=%s] https://packages.sury.org/php/ %s main", suryKeyringPath, p.Codename),
		SigningKeyURL:  "https://packages.sury.org/php/apt.gpg",
		SigningKeyPath: suryKeyringPath,
		// Keep the distro's own PHP winning unless a package only exists
		// upstream; without this the sury archive shadows every php-*.
		Pin: &PinRule{
			ID:       "php-sury",
			Packages: []string{"php-common"},
			Release:  "n=" + p.Codename,
			Priority: 1001,
		},
	}

	steps := []Step{
		{
			Name:        "repair",
			Description: "recover from an interrupted earlier run",
			Actions:     []Action{&RepairAction{}},
		},
		{
			Name:        "sources-dedup",
			Description: "remove duplicate repository entries accumulated over time",
			Actions:     []Action{&DeduplicateAction{}},
		},
		{
			Name:        "refresh",
			Description: "synchronize the package index",
			Actions:     []Action{&RefreshAction{}},
		},
		{
			Name:        "base-tools",
			Description: "compilers and everyday command line tools",
			Actions: []Action{
				&InstallAction{Packages: []string{
					"git", "curl", "ca-certificates", "build-essential",
					"htop", "jq", "tmux", "ripgrep",
				}},
			},
		},
		{
			Name:        "docker",
			Description: "container engine from the upstream repository",
			Actions: []Action{
				&RepoAddAction{Source: docker},
				&InstallAction{Packages: []string{"docker-ce", "docker-ce-cli", "containerd.io"}},
				&ServiceEnableAction{Unit: "docker"},
			},
		},
		{
			Name:        "nodejs",
			Description: "Node.js runtime from nodesource",
			Actions: []Action{
				&RepoAddAction{Source: nodesource},
				&InstallAction{Packages: []string{"nodejs"}},
			},
		},
		{
			Name:        "php",
			Description: "PHP toolchain with the sury archive available",
			Actions: []Action{
				&RepoAddAction{Source: sury},
				&InstallAction{Packages: []string{"php-cli", "php-curl", "php-xml"}},
			},
		},
	}

	if p.ID == "debian" {
		// Firmware lives in components Debian disables by default. Rewriting
		// the existing lines avoids declaring the same component twice.
		steps = append(steps, Step{
			Name:        "nonfree-firmware",
			Description: "enable the non-free archive components",
			Actions: []Action{
				&EnableComponentsAction{Tags: []string{"non-free", "non-free-firmware"}},
			},
		})
	}

	steps = append(steps, Step{
		Name:        "manual-instructions",
		Description: "write instructions for installs that stay manual",
		Actions: []Action{
			&FileWriteAction{Path: manualStepsPath, Content: []byte(manualStepsMarkdown)},
		},
	})

	return NewStepGraph(steps...)
}

func zypperGraph(_ Platform) (*StepGraph, error) {
	return NewStepGraph(
		Step{
			Name:        "repair",
			Description: "recover from an interrupted earlier run",
			Actions:     []Action{&RepairAction{}},
		},
		Step{
			Name:        "refresh",
			Description: "synchronize the package index",
			Actions:     []Action{&RefreshAction{}},
		},
		Step{
			Name:        "base-tools",
			Description: "compilers and everyday command line tools",
			Actions: []Action{
				&InstallAction{Packages: []string{
					"git", "curl", "gcc", "make", "htop", "jq", "tmux", "ripgrep",
				}},
			},
		},
		Step{
			Name:        "docker",
			Description: "container engine from the distribution",
			Actions: []Action{
				&InstallAction{Packages: []string{"docker", "docker-compose"}},
				&ServiceEnableAction{Unit: "docker"},
			},
		},
		Step{
			Name:        "manual-instructions",
			Description: "write instructions for installs that stay manual",
			Actions: []Action{
				&FileWriteAction{Path: manualStepsPath, Content: []byte(manualStepsMarkdown)},
			},
		},
	)
}

// manualStepsMarkdown is written as a side artifact for the one install that
// stays manual: it requires an interactive license prompt and a checksum
// verification a hands-off run must not rubber-stamp.
const manualStepsMarkdown = `# Manual follow-up steps

These installs are intentionally not automated.

## VirtualBox extension pack

1. Download the extension pack matching your VirtualBox version from
   https://www.virtualbox.org/wiki/Downloads
2. Verify the SHA256 checksum against the one published on the download
   page before installing.
3. Install it with:

       VBoxManage extpack install --replace <file>

   and accept the license prompt after reading it.
`
