package classify

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Rules configure how filenames are parsed. KeyPatterns are tried in
// order; the first one matching wins. A pattern must contain a `key`
// capture group and may contain a `view` group resolved through Views.
type Rules struct {
	KeyPatterns []string          `yaml:"key_patterns"`
	Views       map[string]string `yaml:"views"`
}

// DefaultRules recognizes names like SKU123-front.jpg: an article code
// followed by a separator and a view token.
func DefaultRules() Rules {
	return Rules{
		KeyPatterns: []string{
			`^(?P<key>[A-Za-z]{2,8}[-_]?\d{2,})[-_ ](?P<view>[A-Za-z]+)$`,
			`^(?P<key>[A-Za-z]{2,8}[-_]?\d{2,})$`,
		},
		Views: map[string]string{
			"front":   "front",
			"f":       "front",
			"back":    "back",
			"rear":    "back",
			"b":       "back",
			"left":    "left",
			"l":       "left",
			"right":   "right",
			"r":       "right",
			"top":     "top",
			"detail":  "detail",
			"closeup": "detail",
			"macro":   "detail",
		},
	}
}

// LoadRules reads a rule file, falling back to the defaults when path is
// empty. Missing sections are filled from the defaults so a partial file
// only overrides what it names.
func LoadRules(path string) (Rules, error) {
	rules := DefaultRules()
	if path == "" {
		return rules, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return Rules{}, fmt.Errorf("read classifier rules: %w", err)
	}
	var loaded Rules
	if err := yaml.Unmarshal(raw, &loaded); err != nil {
		return Rules{}, fmt.Errorf("parse classifier rules: %w", err)
	}
	if len(loaded.KeyPatterns) > 0 {
		rules.KeyPatterns = loaded.KeyPatterns
	}
	if len(loaded.Views) > 0 {
		rules.Views = loaded.Views
	}
	return rules, nil
}
