package report

import (
	"context"
	"errors"
	"sync"
	"time"
)

type fakeReportStore struct {
	mu        sync.Mutex
	now       time.Time
	reported  map[string]time.Time
	addresses map[uint64]string
	lookupErr error
	marked    []uint64
}

func newFakeReportStore(now time.Time) *fakeReportStore {
	return &fakeReportStore{
		now:       now,
		reported:  make(map[string]time.Time),
		addresses: make(map[uint64]string),
	}
}

func (s *fakeReportStore) remember(id uint64, address string) {
	s.mu.Lock()
	s.addresses[id] = address
	s.mu.Unlock()
}

func (s *fakeReportStore) advance(d time.Duration) {
	s.mu.Lock()
	s.now = s.now.Add(d)
	s.mu.Unlock()
}

func (s *fakeReportStore) WasReportedWithin(_ context.Context, address string, window time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lookupErr != nil {
		return false, s.lookupErr
	}
	at, ok := s.reported[address]
	return ok && !at.Before(s.now.Add(-window)), nil
}

func (s *fakeReportStore) MarkReported(_ context.Context, id uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	address, ok := s.addresses[id]
	if !ok {
		return errors.New("record not found")
	}
	s.reported[address] = s.now
	s.marked = append(s.marked, id)
	return nil
}

type sentReport struct {
	address  string
	category int
	comment  string
}

type fakeTransport struct {
	mu   sync.Mutex
	sent []sentReport
	err  error
}

func (f *fakeTransport) Send(_ context.Context, address string, category int, comment string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentReport{address: address, category: category, comment: comment})
	return nil
}

func (f *fakeTransport) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}
