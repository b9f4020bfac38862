// Package prompts holds the per-stage prompt templates used by the course
// generation pipeline. The registry is built once at boot and never mutated
// afterwards; stage handlers only read from it.
package prompts

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

var ErrTemplateNotFound = errors.New("prompt template not found")

const (
	StageOutline       = "outline"
	StageSessionDetail = "session-detail"
	StageAssessments   = "assessments"
	StageActivities    = "activities"
)

// Template is one stage's prompt pair. Placeholders use {{name}} syntax.
type Template struct {
	System string `yaml:"system"`
	User   string `yaml:"user"`
}

type Registry struct {
	templates map[string]Template
}

// NewRegistry returns a registry seeded with the built-in templates. If
// overridePath is non-empty, the YAML file there replaces the bodies of any
// stages it names; unknown stage names in the file are rejected so typos
// don't silently fall back to defaults.
func NewRegistry(overridePath string) (*Registry, error) {
	templates := make(map[string]Template, len(defaults))
	for stage, tpl := range defaults {
		templates[stage] = tpl
	}
	if overridePath != "" {
		raw, err := os.ReadFile(overridePath)
		if err != nil {
			return nil, fmt.Errorf("read prompt overrides: %w", err)
		}
		var overrides map[string]Template
		if err := yaml.Unmarshal(raw, &overrides); err != nil {
			return nil, fmt.Errorf("parse prompt overrides: %w", err)
		}
		for stage, tpl := range overrides {
			if _, ok := templates[stage]; !ok {
				return nil, fmt.Errorf("prompt override for unknown stage %q", stage)
			}
			templates[stage] = tpl
		}
	}
	return &Registry{templates: templates}, nil
}

// Render substitutes vars into the stage's templates. Placeholders with no
// matching var are left verbatim so a missing value is visible in the sent
// prompt rather than silently blanked.
func (r *Registry) Render(stage string, vars map[string]string) (system, user string, err error) {
	tpl, ok := r.templates[stage]
	if !ok {
		return "", "", fmt.Errorf("%w: %q", ErrTemplateNotFound, stage)
	}
	return substitute(tpl.System, vars), substitute(tpl.User, vars), nil
}

// Stages lists the registered stage names.
func (r *Registry) Stages() []string {
	out := make([]string, 0, len(r.templates))
	for stage := range r.templates {
		out = append(out, stage)
	}
	return out
}

func substitute(s string, vars map[string]string) string {
	if len(vars) == 0 {
		return s
	}
	pairs := make([]string, 0, len(vars)*2)
	for name, value := range vars {
		pairs = append(pairs, "{{"+name+"}}", value)
	}
	return strings.NewReplacer(pairs...).Replace(s)
}
