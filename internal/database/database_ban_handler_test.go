package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"failguard/internal/domain"
)

func TestInsertBanCreatesTimedRecord(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	store := newTestStore(t, &now)
	ctx := context.Background()

	record, err := store.InsertBan(ctx, domain.NewBan{
		Address:      "203.0.113.7",
		RuleName:     "sshd",
		Duration:     600 * time.Second,
		FailureCount: 3,
		StartTime:    now,
	})
	if err != nil {
		t.Fatalf("InsertBan returned error: %v", err)
	}
	if record.ID == 0 {
		t.Fatal("InsertBan did not assign an id")
	}
	if record.EndTime == nil || !record.EndTime.Equal(now.Add(600*time.Second)) {
		t.Fatalf("EndTime = %v, want %v", record.EndTime, now.Add(600*time.Second))
	}
	if record.BanSeconds != 600 {
		t.Fatalf("BanSeconds = %d, want 600", record.BanSeconds)
	}

	banned, err := store.IsBanned(ctx, "203.0.113.7")
	if err != nil || !banned {
		t.Fatalf("IsBanned = %v, %v; want true", banned, err)
	}
}

func TestInsertBanReturnsExistingActiveRecord(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	store := newTestStore(t, &now)
	ctx := context.Background()

	first, err := store.InsertBan(ctx, domain.NewBan{Address: "203.0.113.8", RuleName: "sshd", Duration: time.Hour})
	if err != nil {
		t.Fatalf("InsertBan returned error: %v", err)
	}
	second, err := store.InsertBan(ctx, domain.NewBan{Address: "203.0.113.8", RuleName: "other", Duration: time.Hour})
	if err != nil {
		t.Fatalf("second InsertBan returned error: %v", err)
	}
	if second.ID != first.ID || second.RuleName != "sshd" {
		t.Fatalf("second InsertBan = %+v, want existing record %d", second, first.ID)
	}

	active, err := store.ListActive(ctx)
	if err != nil {
		t.Fatalf("ListActive returned error: %v", err)
	}
	if len(active) != 1 {
		t.Fatalf("ListActive returned %d records, want 1", len(active))
	}
}

func TestInsertBanIndefinite(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	store := newTestStore(t, &now)
	ctx := context.Background()

	record, err := store.InsertBan(ctx, domain.NewBan{Address: "198.51.100.1", RuleName: "Manual"})
	if err != nil {
		t.Fatalf("InsertBan returned error: %v", err)
	}
	if record.EndTime != nil {
		t.Fatalf("EndTime = %v, want nil for zero duration", record.EndTime)
	}

	now = now.Add(365 * 24 * time.Hour)
	if n, err := store.DeactivateExpired(ctx); err != nil || n != 0 {
		t.Fatalf("DeactivateExpired = %d, %v; want 0 for indefinite ban", n, err)
	}
	if banned, _ := store.IsBanned(ctx, "198.51.100.1"); !banned {
		t.Fatal("indefinite ban no longer active")
	}
}

func TestDeactivateEndsBanNow(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	store := newTestStore(t, &now)
	ctx := context.Background()

	if _, err := store.InsertBan(ctx, domain.NewBan{Address: "203.0.113.9", RuleName: "sshd", Duration: time.Hour}); err != nil {
		t.Fatalf("InsertBan returned error: %v", err)
	}

	now = now.Add(10 * time.Minute)
	n, err := store.Deactivate(ctx, "203.0.113.9")
	if err != nil || n != 1 {
		t.Fatalf("Deactivate = %d, %v; want 1", n, err)
	}

	latest, err := store.GetLatestFor(ctx, "203.0.113.9")
	if err != nil || latest == nil {
		t.Fatalf("GetLatestFor = %v, %v", latest, err)
	}
	if latest.Active {
		t.Fatal("record still active after Deactivate")
	}
	if latest.EndTime == nil || !latest.EndTime.Equal(now) {
		t.Fatalf("EndTime = %v, want %v", latest.EndTime, now)
	}

	if active, _ := store.GetActiveBan(ctx, "203.0.113.9"); active != nil {
		t.Fatalf("GetActiveBan = %+v, want nil", active)
	}
}

func TestDeactivateKeepsEndOfElapsedBan(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	store := newTestStore(t, &now)
	ctx := context.Background()
	start := now

	if _, err := store.InsertBan(ctx, domain.NewBan{Address: "203.0.113.19", RuleName: "sshd", Duration: time.Hour}); err != nil {
		t.Fatalf("InsertBan returned error: %v", err)
	}
	if _, err := store.InsertBan(ctx, domain.NewBan{Address: "203.0.113.20", RuleName: "manual"}); err != nil {
		t.Fatalf("InsertBan returned error: %v", err)
	}

	now = now.Add(2 * time.Hour)
	for _, addr := range []string{"203.0.113.19", "203.0.113.20"} {
		if n, err := store.Deactivate(ctx, addr); err != nil || n != 1 {
			t.Fatalf("Deactivate(%s) = %d, %v; want 1", addr, n, err)
		}
	}

	elapsed, _ := store.GetLatestFor(ctx, "203.0.113.19")
	if elapsed == nil || elapsed.Active {
		t.Fatalf("elapsed ban = %+v, want inactive", elapsed)
	}
	if want := start.Add(time.Hour); elapsed.EndTime == nil || !elapsed.EndTime.Equal(want) {
		t.Fatalf("elapsed EndTime = %v, want original %v", elapsed.EndTime, want)
	}

	indefinite, _ := store.GetLatestFor(ctx, "203.0.113.20")
	if indefinite == nil || indefinite.Active {
		t.Fatalf("indefinite ban = %+v, want inactive", indefinite)
	}
	if indefinite.EndTime == nil || !indefinite.EndTime.Equal(now) {
		t.Fatalf("indefinite EndTime = %v, want %v", indefinite.EndTime, now)
	}
}

func TestDeactivateExpired(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	store := newTestStore(t, &now)
	ctx := context.Background()

	for _, ban := range []domain.NewBan{
		{Address: "203.0.113.10", Duration: time.Minute},
		{Address: "203.0.113.11", Duration: time.Hour},
		{Address: "203.0.113.12"},
	} {
		if _, err := store.InsertBan(ctx, ban); err != nil {
			t.Fatalf("InsertBan(%s) returned error: %v", ban.Address, err)
		}
	}

	now = now.Add(time.Minute)
	n, err := store.DeactivateExpired(ctx)
	if err != nil {
		t.Fatalf("DeactivateExpired returned error: %v", err)
	}
	if n != 1 {
		t.Fatalf("DeactivateExpired = %d, want 1", n)
	}

	active, err := store.ListActive(ctx)
	if err != nil {
		t.Fatalf("ListActive returned error: %v", err)
	}
	if len(active) != 2 {
		t.Fatalf("ListActive returned %d records, want 2", len(active))
	}
}

func TestListActiveNewestFirst(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	store := newTestStore(t, &now)
	ctx := context.Background()

	for i, addr := range []string{"192.0.2.1", "192.0.2.2", "192.0.2.3"} {
		start := now.Add(time.Duration(i) * time.Minute)
		if _, err := store.InsertBan(ctx, domain.NewBan{Address: addr, Duration: time.Hour, StartTime: start}); err != nil {
			t.Fatalf("InsertBan returned error: %v", err)
		}
	}

	active, err := store.ListActive(ctx)
	if err != nil {
		t.Fatalf("ListActive returned error: %v", err)
	}
	if len(active) != 3 || active[0].Address != "192.0.2.3" || active[2].Address != "192.0.2.1" {
		t.Fatalf("ListActive order = %+v, want newest first", active)
	}

	between, err := store.ListBetween(ctx, now.Add(30*time.Second), now.Add(2*time.Minute))
	if err != nil {
		t.Fatalf("ListBetween returned error: %v", err)
	}
	if len(between) != 2 {
		t.Fatalf("ListBetween returned %d records, want 2", len(between))
	}
}

func TestWasReportedWithin(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	store := newTestStore(t, &now)
	ctx := context.Background()

	record, err := store.InsertBan(ctx, domain.NewBan{Address: "203.0.113.20", Duration: time.Minute})
	if err != nil {
		t.Fatalf("InsertBan returned error: %v", err)
	}

	if reported, err := store.WasReportedWithin(ctx, "203.0.113.20", 24*time.Hour); err != nil || reported {
		t.Fatalf("WasReportedWithin = %v, %v; want false before reporting", reported, err)
	}

	if err := store.MarkReported(ctx, record.ID); err != nil {
		t.Fatalf("MarkReported returned error: %v", err)
	}

	now = now.Add(23 * time.Hour)
	if reported, _ := store.WasReportedWithin(ctx, "203.0.113.20", 24*time.Hour); !reported {
		t.Fatal("WasReportedWithin = false, want true within window")
	}

	now = now.Add(2 * time.Hour)
	if reported, _ := store.WasReportedWithin(ctx, "203.0.113.20", 24*time.Hour); reported {
		t.Fatal("WasReportedWithin = true, want false after window")
	}

	if err := store.MarkReported(ctx, 9999); err == nil {
		t.Fatal("MarkReported succeeded for unknown id")
	}
}

func TestGetStatistics(t *testing.T) {
	now := time.Now().UTC()
	store := newTestStore(t, &now)
	ctx := context.Background()

	bans := []domain.NewBan{
		{Address: "203.0.113.30", RuleName: "sshd", Duration: time.Hour, StartTime: now.Add(-30 * 24 * time.Hour)},
		{Address: "203.0.113.30", RuleName: "sshd", Duration: time.Hour},
		{Address: "203.0.113.31", RuleName: "sshd", Duration: time.Hour},
		{Address: "203.0.113.32", RuleName: "postfix", Duration: time.Hour},
	}
	for _, ban := range bans {
		if _, err := store.InsertBan(ctx, ban); err != nil {
			t.Fatalf("InsertBan returned error: %v", err)
		}
	}

	stats, err := store.GetStatistics(ctx)
	if err != nil {
		t.Fatalf("GetStatistics returned error: %v", err)
	}
	if stats.Total != 4 {
		t.Fatalf("Total = %d, want 4", stats.Total)
	}
	if stats.Active != 3 {
		t.Fatalf("Active = %d, want 3", stats.Active)
	}
	if stats.Today != 3 {
		t.Fatalf("Today = %d, want 3", stats.Today)
	}
	if len(stats.TopAddresses) == 0 || stats.TopAddresses[0].Key != "203.0.113.30" || stats.TopAddresses[0].Count != 2 {
		t.Fatalf("TopAddresses = %+v, want 203.0.113.30 first with 2", stats.TopAddresses)
	}
	if len(stats.TopRules) != 2 || stats.TopRules[0].Key != "sshd" || stats.TopRules[0].Count != 3 {
		t.Fatalf("TopRules = %+v, want sshd first with 3", stats.TopRules)
	}
}

func TestStoreWithoutConnection(t *testing.T) {
	var store *BanStore
	if _, err := store.IsBanned(context.Background(), "203.0.113.1"); !errors.Is(err, ErrNotInitialised) {
		t.Fatalf("IsBanned error = %v, want ErrNotInitialised", err)
	}
}
