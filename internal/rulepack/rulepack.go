// Package rulepack implements the legacy pattern-matching mode: instead of
// extracting claims from a card, a fixed, externally authored set of
// patterns is matched against the implementation snapshot. Kept as an
// alternative path for callers that predate claim-driven verification.
package rulepack

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"cardcheck/internal/logging"
	"cardcheck/internal/search"
)

// Pack is one externally authored set of rules.
type Pack struct {
	Name  string `yaml:"name"`
	Rules []Rule `yaml:"rules"`
}

// Rule is a single pattern. Type selects the capability; Kind and Query
// parameterize it.
type Rule struct {
	ID          string `yaml:"id"`
	Description string `yaml:"description"`
	Severity    string `yaml:"severity"` // low, medium, high
	Type        string `yaml:"type"`     // text, regex, structural, notebook, outputs, artifact
	Kind        string `yaml:"kind"`     // structural kind, for type: structural
	Query       string `yaml:"query"`
}

// Finding is one rule's matches against the snapshot.
type Finding struct {
	RuleID      string         `json:"rule_id"`
	Description string         `json:"description"`
	Severity    string         `json:"severity"`
	Matched     bool           `json:"matched"`
	Result      *search.Result `json:"result"`
}

// Load reads a YAML rulepack from disk.
func Load(path string) (*Pack, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rulepack: %w", err)
	}
	var pack Pack
	if err := yaml.Unmarshal(data, &pack); err != nil {
		return nil, fmt.Errorf("parse rulepack: %w", err)
	}
	if len(pack.Rules) == 0 {
		return nil, fmt.Errorf("rulepack %s has no rules", path)
	}
	return &pack, nil
}

// Scan matches every rule against the snapshot. A rule with a bad pattern
// is reported as an unmatched finding rather than aborting the scan.
func Scan(toolkit *search.Toolkit, pack *Pack) []Finding {
	log := logging.Get(logging.CategoryRulepack)
	findings := make([]Finding, 0, len(pack.Rules))

	for _, rule := range pack.Rules {
		result, err := runRule(toolkit, rule)
		if err != nil {
			log.Warnf("rule %s skipped: %v", rule.ID, err)
			result = &search.Result{}
		}
		findings = append(findings, Finding{
			RuleID:      rule.ID,
			Description: rule.Description,
			Severity:    rule.Severity,
			Matched:     result.Found,
			Result:      result,
		})
	}

	log.Infof("rulepack %s: %d rules scanned", pack.Name, len(pack.Rules))
	return findings
}

func runRule(toolkit *search.Toolkit, rule Rule) (*search.Result, error) {
	switch rule.Type {
	case "text":
		return toolkit.Text(rule.Query)
	case "regex":
		return toolkit.TextRegex(rule.Query)
	case "structural":
		return toolkit.Structural(rule.Kind, rule.Query)
	case "notebook":
		return toolkit.Notebook(rule.Query)
	case "outputs":
		return toolkit.NotebookOutputs(rule.Query)
	case "artifact":
		return toolkit.Artifact(rule.Query)
	default:
		return nil, fmt.Errorf("unknown rule type %q", rule.Type)
	}
}
