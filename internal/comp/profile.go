package comp

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Profile describes one kind of computation to extract: how to recognize
// its main outputs and inputs, and which step parameters are noise.
type Profile struct {
	// Name labels the profile in reports.
	Name string `yaml:"name"`

	// OutputPattern is a glob matched against file realpaths; each match
	// is the main output of one candidate computation. '*' crosses
	// directory separators.
	OutputPattern string `yaml:"output_pattern"`

	// InputPattern is a glob recognizing main input files among the
	// output's ancestors.
	InputPattern string `yaml:"input_pattern"`

	// MetricsStep, when set, names a step whose latest run consuming the
	// main output is pulled into the computation (metrics are computed
	// after the output itself).
	MetricsStep string `yaml:"metrics_step"`

	// ExcludeArgs lists step argument names left out of attribute
	// comparisons (temp dirs, log levels and other non-semantic knobs).
	ExcludeArgs []string `yaml:"exclude_args"`
}

// ParseProfile decodes and validates a YAML profile.
func ParseProfile(data []byte) (*Profile, error) {
	var p Profile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("parse profile: %w", err)
	}
	if p.OutputPattern == "" {
		return nil, fmt.Errorf("profile %q: output_pattern is required", p.Name)
	}
	if p.InputPattern == "" {
		return nil, fmt.Errorf("profile %q: input_pattern is required", p.Name)
	}
	return &p, nil
}

// LoadProfile reads a profile from a YAML file.
func LoadProfile(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profile: %w", err)
	}
	return ParseProfile(data)
}

func (p *Profile) excluded(arg string) bool {
	for _, e := range p.ExcludeArgs {
		if e == arg {
			return true
		}
	}
	return false
}
