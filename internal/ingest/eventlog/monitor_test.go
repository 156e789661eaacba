package eventlog

import (
	"context"
	"testing"
	"time"

	"failguard/internal/config"
	"failguard/internal/domain"
)

type fakeRecorder struct {
	calls []string
}

func (r *fakeRecorder) RecordFailure(_ context.Context, address, rule string) domain.BanDecision {
	r.calls = append(r.calls, address+"|"+rule)
	return domain.Denied(address, domain.ReasonBelowThreshold)
}

func newTestMonitor(t *testing.T, mutate func(*config.Config)) (*Monitor, *fakeRecorder) {
	t.Helper()
	cfg := config.Default()
	if mutate != nil {
		mutate(&cfg)
	}
	rec := &fakeRecorder{}
	return NewMonitor(cfg, rec), rec
}

func TestHandleRecordsFailure(t *testing.T) {
	m, rec := newTestMonitor(t, nil)
	event := RawEvent{EventID: EventFailedLogon, TimeCreated: time.Now(), Provider: "Microsoft-Windows-Security-Auditing", Message: rdpMessage}

	if !m.Handle(context.Background(), event) {
		t.Fatal("Handle did not record the failure")
	}
	if len(rec.calls) != 1 || rec.calls[0] != "198.51.100.23|"+RuleRDP {
		t.Fatalf("calls = %v", rec.calls)
	}
}

func TestHandleSuppressesDuplicates(t *testing.T) {
	m, rec := newTestMonitor(t, nil)
	now := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	m.duplicates.now = func() time.Time { return now }

	event := RawEvent{EventID: EventFailedLogon, TimeCreated: now, Provider: "Security", Message: rdpMessage}
	ctx := context.Background()

	m.Handle(ctx, event)
	now = now.Add(2 * time.Second)
	if m.Handle(ctx, event) {
		t.Fatal("duplicate within window was recorded")
	}

	now = now.Add(6 * time.Second)
	if !m.Handle(ctx, event) {
		t.Fatal("repeat after window was not recorded")
	}
	if len(rec.calls) != 2 {
		t.Fatalf("calls = %v, want 2", rec.calls)
	}
}

func TestDuplicateCachePrunes(t *testing.T) {
	cache := newDuplicateCache(5*time.Second, 10*time.Minute)
	now := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return now }

	cache.Seen(RawEvent{EventID: 1, Message: "a"})
	now = now.Add(11 * time.Minute)
	cache.Seen(RawEvent{EventID: 2, Message: "b"})

	if cache.Len() != 1 {
		t.Fatalf("cache holds %d entries, want 1", cache.Len())
	}
}

func TestHandleIgnoresUnconfiguredIDs(t *testing.T) {
	m, rec := newTestMonitor(t, func(c *config.Config) { c.EventLog.EventIDs = []int{EventSQLLoginFailure} })

	if m.Handle(context.Background(), RawEvent{EventID: EventFailedLogon, Message: rdpMessage}) {
		t.Fatal("event id outside the filter was handled")
	}
	if len(rec.calls) != 0 {
		t.Fatalf("calls = %v", rec.calls)
	}
}

func TestHandleHonoursDisabledFilter(t *testing.T) {
	m, rec := newTestMonitor(t, func(c *config.Config) {
		for i := range c.EventLog.Filters {
			if c.EventLog.Filters[i].Name == RuleRDP {
				c.EventLog.Filters[i].Enabled = false
			}
		}
	})

	if m.Handle(context.Background(), RawEvent{EventID: EventFailedLogon, Message: rdpMessage}) {
		t.Fatal("disabled filter still recorded")
	}
	if len(rec.calls) != 0 {
		t.Fatalf("calls = %v", rec.calls)
	}
}

func TestHandlePayload(t *testing.T) {
	m, rec := newTestMonitor(t, nil)
	payload := []byte(`{"event_id":18456,"time_created":"2024-06-01T10:00:00Z","provider":"MSSQLSERVER","log_name":"Application",` +
		`"message":"Login failed for user 'sa'. [CLIENT: 203.0.113.90]"}`)

	recorded, err := m.HandlePayload(context.Background(), payload)
	if err != nil || !recorded {
		t.Fatalf("HandlePayload = %v, %v", recorded, err)
	}
	if rec.calls[0] != "203.0.113.90|"+RuleSQLServer {
		t.Fatalf("calls = %v", rec.calls)
	}

	if _, err := m.HandlePayload(context.Background(), []byte("{")); err == nil {
		t.Fatal("malformed payload accepted")
	}
}
