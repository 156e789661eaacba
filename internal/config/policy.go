package config

import (
	"time"

	"failguard/internal/domain"
)

// Policy resolves per-rule thresholds and ban durations, falling back to the
// global values for rules without overrides or unknown rule names.
type Policy struct {
	MaxFailures int
	BanDuration time.Duration

	rules map[string]domain.FilterRule
}

func NewPolicy(maxFailures int, banDuration time.Duration, rules ...domain.FilterRule) Policy {
	p := Policy{
		MaxFailures: maxFailures,
		BanDuration: banDuration,
		rules:       make(map[string]domain.FilterRule, len(rules)),
	}
	for _, rule := range rules {
		p.rules[rule.Name] = rule
	}
	return p
}

// EffectivePolicy builds the effective policy over log rules and event-log filters.
func (c Config) EffectivePolicy() Policy {
	rules := make([]domain.FilterRule, 0, len(c.Rules)+len(c.EventLog.Filters))
	rules = append(rules, c.Rules...)
	rules = append(rules, c.EventLog.Filters...)
	return NewPolicy(c.Policy.MaxFailures, c.Policy.BanDuration, rules...)
}

func (p Policy) MaxFailuresFor(rule string) int {
	if r, ok := p.rules[rule]; ok && r.MaxFailures != nil {
		return *r.MaxFailures
	}
	return p.MaxFailures
}

// BanDurationFor returns the ban length for rule; zero means indefinite.
func (p Policy) BanDurationFor(rule string) time.Duration {
	if r, ok := p.rules[rule]; ok && r.BanDuration != nil {
		return *r.BanDuration
	}
	return p.BanDuration
}

// EventFilterEnabled reports whether events mapped to rule should be acted
// upon. Filters missing from the settings are enabled.
func (c Config) EventFilterEnabled(rule string) bool {
	for _, f := range c.EventLog.Filters {
		if f.Name == rule {
			return f.Enabled
		}
	}
	return true
}
