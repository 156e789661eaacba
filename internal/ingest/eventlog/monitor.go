// Package eventlog consumes Windows security and application events relayed
// over a redis channel and records the authentication failures they describe.
package eventlog

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"failguard/internal/config"
	"failguard/internal/domain"
)

// RawEvent is the JSON shape published by the event forwarder.
type RawEvent struct {
	EventID     int       `json:"event_id"`
	TimeCreated time.Time `json:"time_created"`
	Provider    string    `json:"provider"`
	LogName     string    `json:"log_name"`
	Message     string    `json:"message"`
}

type Recorder interface {
	RecordFailure(ctx context.Context, address, rule string) domain.BanDecision
}

type Monitor struct {
	recorder      Recorder
	eventIDs      map[int]struct{}
	duplicates    *duplicateCache
	filterEnabled func(rule string) bool
}

func NewMonitor(cfg config.Config, recorder Recorder) *Monitor {
	ids := cfg.EventLog.EventIDs
	if len(ids) == 0 {
		ids = config.DefaultEventIDs
	}
	set := make(map[int]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}

	window := cfg.EventLog.DuplicateWindow
	if window <= 0 {
		window = config.DefaultDuplicateWindow
	}
	horizon := cfg.EventLog.DuplicateHorizon
	if horizon <= 0 {
		horizon = config.DefaultDuplicateHorizon
	}

	return &Monitor{
		recorder:      recorder,
		eventIDs:      set,
		duplicates:    newDuplicateCache(window, horizon),
		filterEnabled: cfg.EventFilterEnabled,
	}
}

// Handle processes one event and reports whether it was recorded as a
// failure.
func (m *Monitor) Handle(ctx context.Context, event RawEvent) bool {
	if _, ok := m.eventIDs[event.EventID]; !ok {
		return false
	}
	if m.duplicates.Seen(event) {
		log.Debug("Duplicate event skipped", "event_id", event.EventID, "provider", event.Provider)
		return false
	}

	failure, ok := Extract(event)
	if !ok {
		log.Debug("Event carried no usable failure", "event_id", event.EventID, "provider", event.Provider, "log", event.LogName)
		return false
	}

	rule := failure.Rule()
	if !m.filterEnabled(rule) {
		log.Debug("Event filter disabled", "rule", rule, "address", failure.Address())
		return false
	}

	log.Debug("Authentication failure event", "address", failure.Address(), "user", failure.User(), "rule", rule)

	decision := m.recorder.RecordFailure(ctx, failure.Address(), rule)
	if decision.Banned {
		log.Warn("Address banned", "address", failure.Address(), "rule", rule, "user", failure.User())
	}
	return true
}

// HandlePayload decodes a published JSON event and handles it.
func (m *Monitor) HandlePayload(ctx context.Context, payload []byte) (bool, error) {
	var event RawEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return false, fmt.Errorf("eventlog: decode event: %w", err)
	}
	return m.Handle(ctx, event), nil
}
