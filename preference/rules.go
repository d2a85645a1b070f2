// Package preference extracts travel preferences from conversation text and
// keeps them per user.
//
// Extraction is driven by a rule table (category -> trigger terms). A term
// matches case-insensitively on word boundaries and contributes itself, as
// written in the table, to the delta. The table can be replaced from YAML
// without touching code.
package preference

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/becomeliminal/travel-memory/core"
)

// Rule lists the terms that signal a preference in one category.
type Rule struct {
	Category core.Category `yaml:"category"`
	Terms    []string      `yaml:"terms"`
}

// DefaultRules is the built-in vocabulary.
var DefaultRules = []Rule{
	{
		Category: core.CategoryDestinations,
		Terms: []string{
			"Paris", "London", "Tokyo", "New York", "Rome", "Barcelona", "Amsterdam",
			"Thailand", "Japan", "Italy", "Spain", "France", "Germany", "Australia",
			"India", "China", "Brazil", "Mexico", "Canada", "Dubai", "Singapore",
		},
	},
	{
		Category: core.CategoryBudget,
		Terms: []string{
			"budget", "cheap", "affordable",
			"luxury", "premium", "expensive",
			"mid-range", "moderate",
		},
	},
	{
		Category: core.CategoryTravelStyle,
		Terms: []string{
			"solo", "alone",
			"family", "kids", "children",
			"couple", "romantic", "honeymoon",
			"adventure", "hiking", "trekking", "backpacking",
		},
	},
}

type ruleFile struct {
	Rules []Rule `yaml:"rules"`
}

// LoadRules reads a rule table from a YAML file of the form:
//
//	rules:
//	  - category: destinations
//	    terms: [Lisbon, Porto]
func LoadRules(path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules: %w", err)
	}
	return ParseRules(data)
}

// ParseRules decodes a YAML rule table. Category names are normalized;
// unknown names map to "other".
func ParseRules(data []byte) ([]Rule, error) {
	var file ruleFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse rules: %w", err)
	}
	if len(file.Rules) == 0 {
		return nil, fmt.Errorf("parse rules: no rules defined")
	}

	rules := make([]Rule, 0, len(file.Rules))
	for i, r := range file.Rules {
		var terms []string
		for _, term := range r.Terms {
			if term = strings.TrimSpace(term); term != "" {
				terms = append(terms, term)
			}
		}
		if len(terms) == 0 {
			return nil, fmt.Errorf("parse rules: rule %d (%s) has no terms", i+1, r.Category)
		}
		rules = append(rules, Rule{
			Category: core.ParseCategory(string(r.Category)),
			Terms:    terms,
		})
	}
	return rules, nil
}
