package report

import (
	"strconv"
	"strings"
	"time"

	"failguard/internal/domain"
)

const (
	DefaultTemplateKey = "Default"
	startTimeLayout    = "Monday, 02 January 2006 15:04"

	builtinTemplate = "Brute-force attempt from {0}: {3} failed logins, banned for {1} minutes at {2}."
)

// Templates maps rule names to report bodies. Placeholders are positional:
// {0} address, {1} ban minutes, {2} ban start, {3} failure count.
type Templates map[string]string

func (t Templates) lookup(rule string) string {
	if body, ok := t[rule]; ok && body != "" {
		return body
	}
	if body, ok := t[DefaultTemplateKey]; ok && body != "" {
		return body
	}
	return builtinTemplate
}

// Render fills the template for record's rule.
func (t Templates) Render(record domain.BanRecord) string {
	replacer := strings.NewReplacer(
		"{0}", record.Address,
		"{1}", banMinutes(record),
		"{2}", record.StartTime.Local().Format(startTimeLayout),
		"{3}", strconv.Itoa(record.FailureCount),
	)
	return replacer.Replace(t.lookup(record.RuleName))
}

func banMinutes(record domain.BanRecord) string {
	if record.BanSeconds <= 0 {
		return "indefinite"
	}
	minutes := (time.Duration(record.BanSeconds)*time.Second + time.Minute - 1) / time.Minute
	return strconv.FormatInt(int64(minutes), 10)
}
