package config

import (
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

func TestCalculateBetweenTime(t *testing.T) {
	cases := []struct {
		name  string
		timer Timer
		want  time.Duration
	}{
		{"zero uses floor", Timer{}, time.Second},
		{"seconds and minutes", Timer{Minutes: 1, Seconds: 30}, 90 * time.Second},
		{"all fields", Timer{Days: 1, Hours: 2, Minutes: 3, Seconds: 4}, 26*time.Hour + 3*time.Minute + 4*time.Second},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := CalculateBetweenTime(tc.timer); got != tc.want {
				t.Fatalf("CalculateBetweenTime(%+v) = %s, want %s", tc.timer, got, tc.want)
			}
		})
	}
}

func TestTimerFromYAML(t *testing.T) {
	var timer Timer
	if err := yaml.Unmarshal([]byte("hours: 1\nseconds: 5\n"), &timer); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if timer.IsZero() {
		t.Fatal("decoded timer should not be zero")
	}
	if got := timer.Duration(); got != time.Hour+5*time.Second {
		t.Fatalf("Duration = %s, want 1h0m5s", got)
	}
}
