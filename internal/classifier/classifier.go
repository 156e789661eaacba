// Package classifier maps raw log lines to the address and rule that produced
// a failure.
package classifier

import (
	"regexp"

	"github.com/charmbracelet/log"

	"failguard/internal/domain"
	"failguard/internal/support"
)

// Match is a classified failure.
type Match struct {
	Address string
	Rule    string
}

type compiledRule struct {
	name       string
	re         *regexp.Regexp
	groupIndex int
}

// Classifier evaluates enabled rules in configuration order. It is immutable
// once built and safe for concurrent use.
type Classifier struct {
	rules []compiledRule
}

// New compiles the enabled rules case-insensitively. Rules whose pattern does
// not compile, or which lack their address group, are logged and skipped.
func New(rules []domain.FilterRule) *Classifier {
	c := &Classifier{rules: make([]compiledRule, 0, len(rules))}

	for _, rule := range rules {
		if !rule.Enabled {
			continue
		}

		re, err := regexp.Compile("(?i)" + rule.Pattern)
		if err != nil {
			log.Error("skipping rule with invalid pattern", "rule", rule.Name, "error", err)
			continue
		}

		idx := re.SubexpIndex(rule.Group())
		if idx < 0 {
			log.Error("skipping rule without address group", "rule", rule.Name, "group", rule.Group())
			continue
		}

		c.rules = append(c.rules, compiledRule{name: rule.Name, re: re, groupIndex: idx})
	}

	return c
}

// Classify returns the first rule whose pattern matches text and whose
// captured address is a valid IPv4 address.
func (c *Classifier) Classify(text string) (Match, bool) {
	if c == nil || text == "" {
		return Match{}, false
	}

	for _, rule := range c.rules {
		groups := rule.re.FindStringSubmatch(text)
		if groups == nil {
			continue
		}
		address := groups[rule.groupIndex]
		if !support.IsStrictIPv4(address) {
			continue
		}
		return Match{Address: address, Rule: rule.name}, true
	}

	return Match{}, false
}

// Rules lists the names of the compiled rules in evaluation order.
func (c *Classifier) Rules() []string {
	if c == nil {
		return nil
	}
	names := make([]string, len(c.rules))
	for i, rule := range c.rules {
		names[i] = rule.name
	}
	return names
}

func (c *Classifier) Len() int {
	if c == nil {
		return 0
	}
	return len(c.rules)
}
