package risk

import (
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// OverrideSpec is an uncompiled absolute-block pattern read from a rule file.
type OverrideSpec struct {
	Name    string `yaml:"name"`
	Pattern string `yaml:"pattern"`
}

// File is the on-disk rule extension format:
//
//	rules:
//	  - family: privileged
//	    pattern: "sudo|chmod 777"
//	    weight: 2
//	    factor: "Privileged command detected"
//	overrides:
//	  - name: drop_database
//	    pattern: "drop\\s+database"
type File struct {
	Rules     []Rule         `yaml:"rules"`
	Overrides []OverrideSpec `yaml:"overrides"`
}

// LoadRules decodes and validates a rule file.
func LoadRules(r io.Reader) (File, error) {
	var f File
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		if err == io.EOF {
			return File{}, nil
		}
		return File{}, fmt.Errorf("decode rules: %w", err)
	}
	for i, rule := range f.Rules {
		if _, err := rule.compile(); err != nil {
			return File{}, fmt.Errorf("rules[%d]: %w", i, err)
		}
	}
	for i, o := range f.Overrides {
		if strings.TrimSpace(o.Pattern) == "" {
			return File{}, fmt.Errorf("overrides[%d]: pattern is required", i)
		}
	}
	return f, nil
}

func LoadRulesFile(path string) (File, error) {
	fh, err := os.Open(path)
	if err != nil {
		return File{}, err
	}
	defer fh.Close()
	return LoadRules(fh)
}
