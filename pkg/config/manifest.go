package config

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/openrig/openrig/pkg/engine"
)

// Manifest is the top-level document of a step manifest file.
type Manifest struct {
	// Version is the manifest schema version; currently always 1.
	Version int `yaml:"version" validate:"eq=1"`

	// Steps are executed in declaration order.
	Steps []StepConfig `yaml:"steps" validate:"required,min=1,dive"`
}

// StepConfig declares one provisioning step.
type StepConfig struct {
	Name        string         `yaml:"name" validate:"required"`
	Description string         `yaml:"description,omitempty"`
	Fatal       bool           `yaml:"fatal,omitempty"`
	Actions     []ActionConfig `yaml:"actions" validate:"required,min=1,dive"`
}

// ActionConfig declares one action. Exactly one of the operation fields
// must be set.
type ActionConfig struct {
	Install          *InstallConfig   `yaml:"install,omitempty"`
	Repo             *RepoConfig      `yaml:"repo,omitempty"`
	Refresh          *struct{}        `yaml:"refresh,omitempty"`
	Dedup            *struct{}        `yaml:"dedup,omitempty"`
	Pin              *PinConfig       `yaml:"pin,omitempty"`
	EnableComponents *ComponentConfig `yaml:"enable_components,omitempty"`
	Service          *ServiceConfig   `yaml:"service,omitempty"`
	File             *FileConfig      `yaml:"file,omitempty"`
	Repair           *struct{}        `yaml:"repair,omitempty"`
}

// InstallConfig declares a package install action.
type InstallConfig struct {
	Packages       []string `yaml:"packages" validate:"required,min=1"`
	AllowDowngrade bool     `yaml:"allow_downgrade,omitempty"`
	NoRecommends   bool     `yaml:"no_recommends,omitempty"`
	Extra          []string `yaml:"extra,omitempty"`
}

// RepoConfig declares a repository registration action.
type RepoConfig struct {
	ID             string     `yaml:"id" validate:"required"`
	EntryLine      string     `yaml:"entry_line" validate:"required"`
	SigningKeyURL  string     `yaml:"signing_key_url,omitempty" validate:"omitempty,url"`
	SigningKeyPath string     `yaml:"signing_key_path,omitempty" validate:"required_with=SigningKeyURL"`
	Pin            *PinConfig `yaml:"pin,omitempty"`
}

// PinConfig declares a version pin.
type PinConfig struct {
	ID       string   `yaml:"id" validate:"required"`
	Packages []string `yaml:"packages" validate:"required,min=1"`
	Release  string   `yaml:"release" validate:"required"`
	Priority int      `yaml:"priority" validate:"required"`
}

// ComponentConfig declares a component-enable action.
type ComponentConfig struct {
	Tags []string `yaml:"tags" validate:"required,min=1"`
}

// ServiceConfig declares a service-enable action.
type ServiceConfig struct {
	Unit string `yaml:"unit" validate:"required"`
}

// FileConfig declares a file-write action.
type FileConfig struct {
	Path    string `yaml:"path" validate:"required"`
	Content string `yaml:"content" validate:"required"`
	Mode    uint32 `yaml:"mode,omitempty"`
}

// Load reads and validates a manifest file.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest %s: %w", path, err)
	}
	return Parse(data)
}

// Parse validates manifest content.
func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate checks the manifest against its schema.
func (m *Manifest) Validate() error {
	v := validator.New()
	if err := v.Struct(m); err != nil {
		return fmt.Errorf("invalid manifest: %w", err)
	}
	for _, step := range m.Steps {
		for i, action := range step.Actions {
			if err := action.validate(); err != nil {
				return fmt.Errorf("invalid manifest: step %s action %d: %w", step.Name, i, err)
			}
		}
	}
	return nil
}

// validate ensures exactly one operation is declared.
func (a *ActionConfig) validate() error {
	count := 0
	for _, set := range []bool{
		a.Install != nil,
		a.Repo != nil,
		a.Refresh != nil,
		a.Dedup != nil,
		a.Pin != nil,
		a.EnableComponents != nil,
		a.Service != nil,
		a.File != nil,
		a.Repair != nil,
	} {
		if set {
			count++
		}
	}
	if count != 1 {
		return fmt.Errorf("exactly one operation must be set, got %d", count)
	}
	return nil
}

// Build turns the manifest into a step graph.
func (m *Manifest) Build() (*engine.StepGraph, error) {
	steps := make([]engine.Step, 0, len(m.Steps))
	for _, sc := range m.Steps {
		actions := make([]engine.Action, 0, len(sc.Actions))
		for _, ac := range sc.Actions {
			actions = append(actions, ac.build())
		}
		steps = append(steps, engine.Step{
			Name:        sc.Name,
			Description: sc.Description,
			Fatal:       sc.Fatal,
			Actions:     actions,
		})
	}
	return engine.NewStepGraph(steps...)
}

func (a *ActionConfig) build() engine.Action {
	switch {
	case a.Install != nil:
		return &engine.InstallAction{
			Packages: a.Install.Packages,
			Options: engine.InstallOptions{
				AllowDowngrade: a.Install.AllowDowngrade,
				NoRecommends:   a.Install.NoRecommends,
				Extra:          a.Install.Extra,
			},
		}
	case a.Repo != nil:
		src := engine.RepoSource{
			ID:             a.Repo.ID,
			EntryLine:      a.Repo.EntryLine,
			SigningKeyURL:  a.Repo.SigningKeyURL,
			SigningKeyPath: a.Repo.SigningKeyPath,
		}
		if a.Repo.Pin != nil {
			src.Pin = a.Repo.Pin.rule()
		}
		return &engine.RepoAddAction{Source: src}
	case a.Refresh != nil:
		return &engine.RefreshAction{}
	case a.Dedup != nil:
		return &engine.DeduplicateAction{}
	case a.Pin != nil:
		return &engine.PinAction{Rule: *a.Pin.rule()}
	case a.EnableComponents != nil:
		return &engine.EnableComponentsAction{Tags: a.EnableComponents.Tags}
	case a.Service != nil:
		return &engine.ServiceEnableAction{Unit: a.Service.Unit}
	case a.File != nil:
		return &engine.FileWriteAction{
			Path:    a.File.Path,
			Content: []byte(a.File.Content),
			Mode:    os.FileMode(a.File.Mode),
		}
	default:
		return &engine.RepairAction{}
	}
}

func (p *PinConfig) rule() *engine.PinRule {
	return &engine.PinRule{
		ID:       p.ID,
		Packages: p.Packages,
		Release:  p.Release,
		Priority: p.Priority,
	}
}
