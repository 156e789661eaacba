package eventlog

import (
	"regexp"
	"strings"

	"failguard/internal/support"
)

const (
	EventFailedLogon     = 4625
	EventKerberosFailure = 4771
	EventSQLLoginFailure = 18456

	RuleRDP       = "EventLog-RDP"
	RuleNetwork   = "EventLog-Network"
	RuleOther     = "EventLog-Other"
	RuleKerberos  = "EventLog-Kerberos"
	RuleSQLServer = "EventLog-SQLServer"

	sqlServerProvider = "MSSQLSERVER"
	unknownUser       = "unknown"
)

// Failure is an authentication failure extracted from an event. The concrete
// type is one of FailedLogon, KerberosFailure or SQLLoginFailure.
type Failure interface {
	Address() string
	User() string
	Rule() string
}

type FailedLogon struct {
	SourceAddress string
	Username      string
	LogonType     string
}

func (f FailedLogon) Address() string { return f.SourceAddress }
func (f FailedLogon) User() string    { return f.Username }

// Rule maps the logon type: 10 is remote interactive, 3 is network.
func (f FailedLogon) Rule() string {
	switch f.LogonType {
	case "10":
		return RuleRDP
	case "3":
		return RuleNetwork
	default:
		return RuleOther
	}
}

type KerberosFailure struct {
	SourceAddress string
	Username      string
}

func (f KerberosFailure) Address() string { return f.SourceAddress }
func (f KerberosFailure) User() string    { return f.Username }
func (f KerberosFailure) Rule() string    { return RuleKerberos }

type SQLLoginFailure struct {
	SourceAddress string
	Username      string
}

func (f SQLLoginFailure) Address() string { return f.SourceAddress }
func (f SQLLoginFailure) User() string    { return f.Username }
func (f SQLLoginFailure) Rule() string    { return RuleSQLServer }

const ipv4Pattern = `([0-9]{1,3}\.[0-9]{1,3}\.[0-9]{1,3}\.[0-9]{1,3})`

var (
	securityAddressPatterns = compileAll(
		`Source Network Address:\s*`+ipv4Pattern,
		`Client Address:\s*(?:::ffff:)?`+ipv4Pattern,
		`IP Address:\s*(?:::ffff:)?`+ipv4Pattern,
		`\b`+ipv4Pattern+`\b`,
	)
	securityUserPatterns = compileAll(
		`Account Name:\s*([^\r\n\t]+)`,
		`User Name:\s*([^\r\n\t]+)`,
		`Target User Name:\s*([^\r\n\t]+)`,
	)
	sqlAddressPatterns = compileAll(
		`\[CLIENT:\s*`+ipv4Pattern+`\]`,
		`CLIENT:\s*`+ipv4Pattern,
		`from\s+`+ipv4Pattern,
	)
	sqlUserPatterns = compileAll(
		`Login failed for user '([^']+)'`,
		`Login failed for user\s+([^\s\.]+)`,
		`user\s+'([^']+)'`,
		`user\s+([^\s\.]+)`,
	)
	logonTypePattern = regexp.MustCompile(`(?i)Logon Type:\s*([0-9]+)`)
)

func compileAll(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		out[i] = regexp.MustCompile("(?i)" + p)
	}
	return out
}

// Extract turns a raw event into a Failure. Events without a public source
// address, with an unhandled id, or SQL events from another provider yield
// false.
func Extract(event RawEvent) (Failure, bool) {
	switch event.EventID {
	case EventFailedLogon:
		address := firstAddress(securityAddressPatterns, event.Message)
		if address == "" {
			return nil, false
		}
		return FailedLogon{
			SourceAddress: address,
			Username:      firstGroup(securityUserPatterns, event.Message),
			LogonType:     logonType(event.Message),
		}, true

	case EventKerberosFailure:
		address := firstAddress(securityAddressPatterns, event.Message)
		if address == "" {
			return nil, false
		}
		return KerberosFailure{
			SourceAddress: address,
			Username:      firstGroup(securityUserPatterns, event.Message),
		}, true

	case EventSQLLoginFailure:
		if !strings.EqualFold(event.Provider, sqlServerProvider) {
			return nil, false
		}
		address := firstAddress(sqlAddressPatterns, event.Message)
		if address == "" {
			return nil, false
		}
		return SQLLoginFailure{
			SourceAddress: address,
			Username:      firstGroup(sqlUserPatterns, event.Message),
		}, true
	}
	return nil, false
}

// firstAddress tries each pattern in turn and skips candidates that are not
// routable public IPv4 addresses.
func firstAddress(patterns []*regexp.Regexp, message string) string {
	for _, re := range patterns {
		for _, groups := range re.FindAllStringSubmatch(message, -1) {
			candidate := groups[1]
			if support.IsStrictIPv4(candidate) && !support.IsLocalAddress(candidate) {
				return candidate
			}
		}
	}
	return ""
}

func firstGroup(patterns []*regexp.Regexp, message string) string {
	for _, re := range patterns {
		if groups := re.FindStringSubmatch(message); groups != nil {
			if v := strings.TrimSpace(groups[1]); v != "" {
				return v
			}
		}
	}
	return unknownUser
}

func logonType(message string) string {
	if groups := logonTypePattern.FindStringSubmatch(message); groups != nil {
		return groups[1]
	}
	return "0"
}
