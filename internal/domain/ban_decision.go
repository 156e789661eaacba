package domain

// BanDecision is the outcome of an attempt to ban an address.
type BanDecision struct {
	Address string `json:"address"`
	Banned  bool   `json:"banned"`
	Reason  string `json:"reason"`
}

const (
	ReasonBanned          = "banned"
	ReasonBelowThreshold  = "below threshold"
	ReasonAlreadyBanned   = "already banned"
	ReasonEmptyAddress    = "empty address"
	ReasonIgnored         = "address is on the ignore list"
	ReasonEnforcementFail = "enforcement failed"
	ReasonInvalidAddress  = "invalid address"
)

func Denied(address, reason string) BanDecision {
	return BanDecision{Address: address, Reason: reason}
}
