package eventlog

import "testing"

const rdpMessage = "An account failed to log on.\r\n\r\nLogon Type:\t\t\t10\r\n\r\n" +
	"Account For Which Logon Failed:\r\n\tAccount Name:\t\tadministrator\r\n\r\n" +
	"Network Information:\r\n\tWorkstation Name:\t-\r\n\tSource Network Address:\t198.51.100.23\r\n\tSource Port:\t\t0"

func TestExtractFailedLogon(t *testing.T) {
	failure, ok := Extract(RawEvent{EventID: EventFailedLogon, Message: rdpMessage})
	if !ok {
		t.Fatal("Extract found no failure")
	}
	logon, isLogon := failure.(FailedLogon)
	if !isLogon {
		t.Fatalf("failure type = %T, want FailedLogon", failure)
	}
	if logon.SourceAddress != "198.51.100.23" || logon.Username != "administrator" || logon.LogonType != "10" {
		t.Fatalf("failure = %+v", logon)
	}
	if failure.Rule() != RuleRDP {
		t.Fatalf("Rule = %s, want %s", failure.Rule(), RuleRDP)
	}
}

func TestFailedLogonRules(t *testing.T) {
	cases := map[string]string{"10": RuleRDP, "3": RuleNetwork, "2": RuleOther, "0": RuleOther}
	for logonType, want := range cases {
		if got := (FailedLogon{LogonType: logonType}).Rule(); got != want {
			t.Errorf("logon type %s = %s, want %s", logonType, got, want)
		}
	}
}

func TestExtractSkipsLocalAddresses(t *testing.T) {
	message := "Logon Type: 3\nSource Network Address: 192.168.1.20\n"
	if _, ok := Extract(RawEvent{EventID: EventFailedLogon, Message: message}); ok {
		t.Fatal("private source address was accepted")
	}
}

func TestExtractFallsThroughToPublicAddress(t *testing.T) {
	message := "Source Network Address: 10.0.0.4\nrelayed for 203.0.113.50"
	failure, ok := Extract(RawEvent{EventID: EventFailedLogon, Message: message})
	if !ok || failure.Address() != "203.0.113.50" {
		t.Fatalf("Extract = %+v, %v; want 203.0.113.50", failure, ok)
	}
}

func TestExtractKerberos(t *testing.T) {
	message := "Kerberos pre-authentication failed.\nAccount Name: svc-backup\nClient Address: ::ffff:203.0.113.77\n"
	failure, ok := Extract(RawEvent{EventID: EventKerberosFailure, Message: message})
	if !ok {
		t.Fatal("Extract found no failure")
	}
	if _, isKerberos := failure.(KerberosFailure); !isKerberos || failure.Address() != "203.0.113.77" || failure.User() != "svc-backup" {
		t.Fatalf("failure = %#v", failure)
	}
}

func TestExtractSQLServer(t *testing.T) {
	message := "Login failed for user 'sa'. Reason: Password did not match that for the login provided. [CLIENT: 203.0.113.90]"

	failure, ok := Extract(RawEvent{EventID: EventSQLLoginFailure, Provider: "MSSQLSERVER", Message: message})
	if !ok {
		t.Fatal("Extract found no failure")
	}
	if failure.Rule() != RuleSQLServer || failure.Address() != "203.0.113.90" || failure.User() != "sa" {
		t.Fatalf("failure = %#v", failure)
	}

	if _, ok := Extract(RawEvent{EventID: EventSQLLoginFailure, Provider: "MSSQL$EXPRESS", Message: message}); ok {
		t.Fatal("SQL event from another provider was accepted")
	}
}

func TestExtractUnknownUser(t *testing.T) {
	failure, ok := Extract(RawEvent{EventID: EventKerberosFailure, Message: "Client Address: 203.0.113.91"})
	if !ok || failure.User() != unknownUser {
		t.Fatalf("Extract = %#v, %v", failure, ok)
	}
}

func TestExtractUnhandledEvent(t *testing.T) {
	if _, ok := Extract(RawEvent{EventID: 4624, Message: rdpMessage}); ok {
		t.Fatal("successful logon produced a failure")
	}
}
