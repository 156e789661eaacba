package config

import "time"

// Timer is the settings-file form of a loop interval, e.g.
//
//	poll_timer:
//	  minutes: 1
//	  seconds: 30
type Timer struct {
	Days    uint32 `yaml:"days" json:"days"`
	Hours   uint32 `yaml:"hours" json:"hours"`
	Minutes uint32 `yaml:"minutes" json:"minutes"`
	Seconds uint32 `yaml:"seconds" json:"seconds"`
}

const minimumInterval = time.Second

func (t Timer) IsZero() bool {
	return t == Timer{}
}

// Duration sums the timer fields.
func (t Timer) Duration() time.Duration {
	return time.Duration(t.Days)*24*time.Hour +
		time.Duration(t.Hours)*time.Hour +
		time.Duration(t.Minutes)*time.Minute +
		time.Duration(t.Seconds)*time.Second
}

// CalculateBetweenTime converts a timer to a loop interval of at least one
// second.
func CalculateBetweenTime(timer Timer) time.Duration {
	return max(timer.Duration(), minimumInterval)
}
