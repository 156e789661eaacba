// Package engine owns failure tracking and ban promotion. It is the only
// writer of in-memory ban state and serialises work per address, never
// globally.
package engine

import (
	"context"
	"errors"
	"time"

	"failguard/internal/domain"
	"failguard/internal/support"
)

const (
	defaultEnforceTimeout = 15 * time.Second
	defaultStoreTimeout   = 10 * time.Second
)

var ErrPromotionPending = errors.New("engine: ban promotion in progress")

var ErrReleasePending = errors.New("engine: ban release in progress")

// Enforcer applies and lifts blocks. Both calls must be idempotent.
type Enforcer interface {
	Block(ctx context.Context, address string) error
	Unblock(ctx context.Context, address string) error
}

// Store is the subset of the durable ban history the engine writes to.
type Store interface {
	IsBanned(ctx context.Context, address string) (bool, error)
	InsertBan(ctx context.Context, ban domain.NewBan) (domain.BanRecord, error)
	Deactivate(ctx context.Context, address string) (int64, error)
	DeactivateExpired(ctx context.Context) (int64, error)
	ListActive(ctx context.Context) ([]domain.BanRecord, error)
}

type Policy interface {
	MaxFailuresFor(rule string) int
	BanDurationFor(rule string) time.Duration
}

// ReportDispatcher receives freshly created bans. Dispatch must not block.
type ReportDispatcher interface {
	Dispatch(record domain.BanRecord)
}

// Annotator adds context such as a country code to ban notes.
type Annotator interface {
	Annotate(address string) string
}

// banEntry is a ban held in memory. A pending entry is being enforced and a
// releasing one is being lifted; both still count as banned so no second
// promotion can interleave with the backend call.
type banEntry struct {
	record    domain.BanRecord
	pending   bool
	releasing bool
}

func (b banEntry) settled() bool {
	return !b.pending && !b.releasing
}

type Engine struct {
	policy   Policy
	enforcer Enforcer
	store    Store

	reports   ReportDispatcher
	annotator Annotator
	ignore    *support.IgnoreList
	now       func() time.Time

	enforceTimeout time.Duration
	storeTimeout   time.Duration

	tracked *shardedMap[domain.FailureRecord]
	bans    *shardedMap[banEntry]
	locks   *keyedMutex
}

type Option func(*Engine)

func WithReportDispatcher(d ReportDispatcher) Option {
	return func(e *Engine) { e.reports = d }
}

func WithAnnotator(a Annotator) Option {
	return func(e *Engine) { e.annotator = a }
}

func WithIgnoreList(list *support.IgnoreList) Option {
	return func(e *Engine) { e.ignore = list }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

func WithEnforcementTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.enforceTimeout = d
		}
	}
}

func New(policy Policy, enforcer Enforcer, store Store, opts ...Option) *Engine {
	e := &Engine{
		policy:         policy,
		enforcer:       enforcer,
		store:          store,
		now:            time.Now,
		enforceTimeout: defaultEnforceTimeout,
		storeTimeout:   defaultStoreTimeout,
		tracked:        newShardedMap[domain.FailureRecord](),
		bans:           newShardedMap[banEntry](),
		locks:          newKeyedMutex(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// persistCtx detaches store writes from the caller's cancellation so an
// enforced ban is still recorded when the triggering request goes away.
func (e *Engine) persistCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(context.WithoutCancel(ctx), e.storeTimeout)
}

func (e *Engine) enforceCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, e.enforceTimeout)
}
