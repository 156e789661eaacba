package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/charmbracelet/log"
	"github.com/redis/go-redis/v9"
)

const (
	AgentKeyPrefix           = "failguard:agent:"
	DefaultHeartbeatInterval = 15 * time.Second
	DefaultHeartbeatTTL      = 45 * time.Second

	scanBatch = 100
)

// AgentStatus is what each agent publishes under its heartbeat key.
type AgentStatus struct {
	ID         string    `json:"id"`
	Host       string    `json:"host"`
	Version    string    `json:"version"`
	ActiveBans int       `json:"active_bans"`
	Tracked    int       `json:"tracked"`
	StartedAt  time.Time `json:"started_at"`
	SeenAt     time.Time `json:"seen_at"`
}

// StatusFunc reports the live ban and tracking counts.
type StatusFunc func() (activeBans, tracked int)

type Heartbeat struct {
	client   *redis.Client
	status   StatusFunc
	interval time.Duration
	ttl      time.Duration
	base     AgentStatus
	now      func() time.Time
}

func NewHeartbeat(client *redis.Client, version string, status StatusFunc) *Heartbeat {
	host, _ := os.Hostname()
	now := time.Now()
	return &Heartbeat{
		client:   client,
		status:   status,
		interval: DefaultHeartbeatInterval,
		ttl:      DefaultHeartbeatTTL,
		base: AgentStatus{
			ID:        fmt.Sprintf("%s-%d-%d", host, os.Getpid(), now.UnixNano()),
			Host:      host,
			Version:   version,
			StartedAt: now.UTC(),
		},
		now: time.Now,
	}
}

func (h *Heartbeat) Key() string {
	return AgentKeyPrefix + h.base.ID
}

func (h *Heartbeat) payload() ([]byte, error) {
	s := h.base
	if h.status != nil {
		s.ActiveBans, s.Tracked = h.status()
	}
	s.SeenAt = h.now().UTC()
	return json.Marshal(s)
}

// Run refreshes the heartbeat key until ctx is done, then removes it.
func (h *Heartbeat) Run(ctx context.Context) {
	send := func() {
		data, err := h.payload()
		if err != nil {
			log.Error("Failed to encode agent heartbeat", "error", err)
			return
		}
		if err := h.client.SetEx(ctx, h.Key(), data, h.ttl).Err(); err != nil {
			log.Error("Failed to update agent heartbeat", "key", h.Key(), "error", err)
		}
	}

	send()

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
			_ = h.client.Del(cleanupCtx, h.Key()).Err()
			cancel()
			return
		case <-ticker.C:
			send()
		}
	}
}

// ListAgents returns the status of every agent with a live heartbeat,
// sorted by host.
func ListAgents(ctx context.Context, client *redis.Client) ([]AgentStatus, error) {
	var (
		cursor uint64
		agents []AgentStatus
	)
	for {
		keys, next, err := client.Scan(ctx, cursor, AgentKeyPrefix+"*", scanBatch).Result()
		if err != nil {
			return nil, err
		}
		for _, key := range keys {
			data, err := client.Get(ctx, key).Bytes()
			if err == redis.Nil {
				continue
			}
			if err != nil {
				return nil, err
			}
			status, err := decodeStatus(data)
			if err != nil {
				log.Warn("Skipping malformed agent heartbeat", "key", key, "error", err)
				continue
			}
			agents = append(agents, status)
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}

	sort.Slice(agents, func(i, j int) bool {
		if agents[i].Host == agents[j].Host {
			return agents[i].ID < agents[j].ID
		}
		return agents[i].Host < agents[j].Host
	})
	return agents, nil
}

func decodeStatus(data []byte) (AgentStatus, error) {
	var s AgentStatus
	if err := json.Unmarshal(data, &s); err != nil {
		return AgentStatus{}, err
	}
	if s.ID == "" {
		return AgentStatus{}, fmt.Errorf("heartbeat without id")
	}
	return s, nil
}
