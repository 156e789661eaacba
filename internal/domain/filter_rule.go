package domain

import "time"

const (
	DefaultAddressGroup = "ip"
	ManualRuleName      = "Manual"
)

// FilterRule is a named detection rule. MaxFailures and BanDuration override
// the global policy when set.
type FilterRule struct {
	Name         string         `yaml:"name" json:"name"`
	Pattern      string         `yaml:"pattern" json:"pattern"`
	AddressGroup string         `yaml:"address_group,omitempty" json:"address_group,omitempty"`
	Enabled      bool           `yaml:"enabled" json:"enabled"`
	MaxFailures  *int           `yaml:"max_failures,omitempty" json:"max_failures,omitempty"`
	BanDuration  *time.Duration `yaml:"ban_duration,omitempty" json:"ban_duration,omitempty"`
}

func (r FilterRule) Group() string {
	if r.AddressGroup == "" {
		return DefaultAddressGroup
	}
	return r.AddressGroup
}
