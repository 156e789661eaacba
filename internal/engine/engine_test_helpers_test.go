package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"failguard/internal/domain"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fakeEnforcer struct {
	mu           sync.Mutex
	blocked      map[string]bool
	blockCalls   map[string]int
	unblockCalls map[string]int
	failBlock    bool
	failUnblock  bool
	delay        time.Duration

	unblockStarted chan struct{}
	unblockGate    chan struct{}
}

func newFakeEnforcer() *fakeEnforcer {
	return &fakeEnforcer{
		blocked:      make(map[string]bool),
		blockCalls:   make(map[string]int),
		unblockCalls: make(map[string]int),
	}
}

func (f *fakeEnforcer) Block(_ context.Context, address string) error {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.blockCalls[address]++
	if f.failBlock {
		return errors.New("firewall unavailable")
	}
	f.blocked[address] = true
	return nil
}

// holdUnblocks makes the next Unblock signal started and then wait until
// release is called.
func (f *fakeEnforcer) holdUnblocks() (started <-chan struct{}, release func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unblockStarted = make(chan struct{}, 1)
	f.unblockGate = make(chan struct{})
	gate := f.unblockGate
	return f.unblockStarted, func() { close(gate) }
}

func (f *fakeEnforcer) Unblock(_ context.Context, address string) error {
	f.mu.Lock()
	started, gate := f.unblockStarted, f.unblockGate
	f.unblockStarted, f.unblockGate = nil, nil
	f.mu.Unlock()
	if gate != nil {
		started <- struct{}{}
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.unblockCalls[address]++
	if f.failUnblock {
		return errors.New("firewall unavailable")
	}
	delete(f.blocked, address)
	return nil
}

func (f *fakeEnforcer) setFailures(block, unblock bool) {
	f.mu.Lock()
	f.failBlock = block
	f.failUnblock = unblock
	f.mu.Unlock()
}

func (f *fakeEnforcer) blocks(address string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.blockCalls[address]
}

func (f *fakeEnforcer) unblocks(address string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.unblockCalls[address]
}

func (f *fakeEnforcer) isBlocked(address string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.blocked[address]
}

type fakeStore struct {
	mu          sync.Mutex
	clock       *fakeClock
	records     []domain.BanRecord
	nextID      uint64
	inserts     int
	deactivated []string
	insertErr   error
	listErr     error
	isBannedErr error
}

func newFakeStore(clock *fakeClock) *fakeStore {
	return &fakeStore{clock: clock}
}

func (s *fakeStore) IsBanned(_ context.Context, address string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isBannedErr != nil {
		return false, s.isBannedErr
	}
	now := s.clock.Now()
	for _, r := range s.records {
		if r.Address == address && r.ActiveAt(now) {
			return true, nil
		}
	}
	return false, nil
}

func (s *fakeStore) InsertBan(_ context.Context, ban domain.NewBan) (domain.BanRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inserts++
	if s.insertErr != nil {
		return domain.BanRecord{}, s.insertErr
	}
	s.nextID++
	record := domain.BanRecord{
		ID:           s.nextID,
		Address:      ban.Address,
		RuleName:     ban.RuleName,
		StartTime:    ban.StartTime,
		EndTime:      domain.EndFor(ban.StartTime, ban.Duration),
		BanSeconds:   int64(ban.Duration / time.Second),
		Active:       true,
		FailureCount: ban.FailureCount,
		Notes:        ban.Notes,
	}
	s.records = append(s.records, record)
	return record, nil
}

func (s *fakeStore) Deactivate(_ context.Context, address string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deactivated = append(s.deactivated, address)
	var n int64
	now := s.clock.Now()
	for i := range s.records {
		if s.records[i].Address == address && s.records[i].Active {
			s.records[i].Active = false
			if s.records[i].EndTime == nil || s.records[i].EndTime.After(now) {
				s.records[i].EndTime = &now
			}
			n++
		}
	}
	return n, nil
}

func (s *fakeStore) DeactivateExpired(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	now := s.clock.Now()
	for i := range s.records {
		if s.records[i].Active && s.records[i].ExpiredAt(now) {
			s.records[i].Active = false
			n++
		}
	}
	return n, nil
}

func (s *fakeStore) ListActive(_ context.Context) ([]domain.BanRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	now := s.clock.Now()
	var out []domain.BanRecord
	for _, r := range s.records {
		if r.ActiveAt(now) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *fakeStore) insertCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inserts
}

type fakeReporter struct {
	mu      sync.Mutex
	records []domain.BanRecord
}

func (r *fakeReporter) Dispatch(record domain.BanRecord) {
	r.mu.Lock()
	r.records = append(r.records, record)
	r.mu.Unlock()
}

func (r *fakeReporter) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}

type staticAnnotator string

func (a staticAnnotator) Annotate(string) string { return string(a) }
