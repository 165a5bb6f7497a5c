// Package config loads the YAML rule file a zwintd instance watches
// (component #8 of the expanded design): device number, key, direction,
// patterns, and optional response template per rule. The file holds
// only the rule list; there are no file-level defaults.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/gengen/zwint"
)

// RuleEntry is one YAML rule record. Direction is a string ("monitor"
// or "intercept") rather than the engine's bool-backed Direction type
// so the file format stays self-describing.
type RuleEntry struct {
	DeviceNum  int    `yaml:"device_num"`
	Key        string `yaml:"key"`
	Direction  string `yaml:"direction"`
	ArmPattern string `yaml:"arm_pattern,omitempty"`
	Pattern    string `yaml:"pattern"`
	Response   string `yaml:"response,omitempty"`
	Forward    bool   `yaml:"forward,omitempty"`
	Oneshot    bool   `yaml:"oneshot,omitempty"`
	TimeoutMS  int64  `yaml:"timeout_ms,omitempty"`
}

// File is the top-level YAML document shape.
type File struct {
	Rules []RuleEntry `yaml:"rules"`
}

// Load reads and parses path into a validated []zwint.RuleSpec. Regex
// validity is checked later by zwint.Engine.Monitor / Intercept (they
// compile eagerly); a malformed response template is not rejected there
// either, and instead turns each fire of the rule into an Error
// notification. Load only validates the direction
// string and required fields so a typo is reported with the offending
// rule's key rather than a generic YAML error.
func Load(path string) ([]zwint.RuleSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rule file: %w", err)
	}
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse rule file: %w", err)
	}

	specs := make([]zwint.RuleSpec, 0, len(f.Rules))
	for _, e := range f.Rules {
		spec, err := e.toSpec()
		if err != nil {
			return nil, fmt.Errorf("rule %q: %w", e.Key, err)
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

func (e RuleEntry) toSpec() (zwint.RuleSpec, error) {
	var dir zwint.Direction
	switch e.Direction {
	case "monitor", "":
		dir = zwint.DirectionMonitor
	case "intercept":
		dir = zwint.DirectionIntercept
	default:
		return zwint.RuleSpec{}, fmt.Errorf("direction must be %q or %q, got %q", "monitor", "intercept", e.Direction)
	}
	if e.Key == "" {
		return zwint.RuleSpec{}, fmt.Errorf("key is required")
	}
	if e.Pattern == "" {
		return zwint.RuleSpec{}, fmt.Errorf("pattern is required")
	}
	return zwint.RuleSpec{
		DeviceNum:  e.DeviceNum,
		Key:        e.Key,
		Direction:  dir,
		ArmPattern: e.ArmPattern,
		Pattern:    e.Pattern,
		Response:   e.Response,
		Forward:    e.Forward,
		Oneshot:    e.Oneshot,
		TimeoutMS:  e.TimeoutMS,
	}, nil
}
