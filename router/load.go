package router

import (
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"github.com/ibrb-io/aorta/errors"
	"gopkg.in/yaml.v3"
)

var validate = validator.New()

// ruleDocument is the on-disk shape of a single rule file: a plain YAML
// list of rules.
type ruleDocument = []Rule

// LoadFile parses and validates a single YAML rule file. Schema violations
// fail loudly, reporting the file path and rule index, rather than
// silently producing an empty ruleset.
func LoadFile(path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read rule file %s", path)
	}

	var doc ruleDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrapf(err, "parse rule file %s", path)
	}

	for i, r := range doc {
		if err := validate.Struct(r); err != nil {
			return nil, errors.Wrap(errors.Validation, errors.Wrapf(err, "rule file %s, rule %d: schema validation", path, i).Error())
		}
		if err := r.validate(); err != nil {
			return nil, errors.Wrap(errors.Validation, errors.Wrapf(err, "rule file %s, rule %d", path, i).Error())
		}
	}
	return doc, nil
}

// LoadGlob loads every rule file matching pattern (a single path or a
// glob), preserving filename order, and concatenates their rules. An
// invalid file anywhere in the set fails the whole load.
func LoadGlob(pattern string) ([]Rule, error) {
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, errors.Wrapf(err, "expand rule glob %s", pattern)
	}
	if len(matches) == 0 {
		// treat as a literal path, so a single non-glob file that doesn't
		// exist still produces a clear read error instead of silently
		// loading zero rules.
		matches = []string{pattern}
	}

	var rules []Rule
	for _, path := range matches {
		r, err := LoadFile(path)
		if err != nil {
			return nil, err
		}
		rules = append(rules, r...)
	}
	return rules, nil
}

// LoadAll loads and concatenates every pattern in order, the form taken
// directly by -R/--routes CLI flags that may be repeated.
func LoadAll(patterns []string) ([]Rule, error) {
	var rules []Rule
	for _, p := range patterns {
		r, err := LoadGlob(p)
		if err != nil {
			return nil, err
		}
		rules = append(rules, r...)
	}
	return rules, nil
}
