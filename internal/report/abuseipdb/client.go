// Package abuseipdb submits reports to the AbuseIPDB v2 report endpoint.
package abuseipdb

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	DefaultEndpoint = "https://api.abuseipdb.com/api/v2/report"

	maxCommentLength = 1024
	defaultTimeout   = 30 * time.Second
)

type Config struct {
	Endpoint          string
	APIKey            string
	RequestsPerSecond float64
	Burst             int
	Timeout           time.Duration
}

type Client struct {
	endpoint string
	apiKey   string
	http     *http.Client
	limiter  *rate.Limiter
}

type reportResponse struct {
	Data struct {
		IPAddress            string `json:"ipAddress"`
		AbuseConfidenceScore int    `json:"abuseConfidenceScore"`
	} `json:"data"`
	Errors []struct {
		Detail string `json:"detail"`
		Status int    `json:"status"`
	} `json:"errors"`
}

func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("abuseipdb: api key is required")
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if _, err := url.ParseRequestURI(cfg.Endpoint); err != nil {
		return nil, fmt.Errorf("abuseipdb: endpoint: %w", err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}

	return &Client{
		endpoint: cfg.Endpoint,
		apiKey:   cfg.APIKey,
		http:     &http.Client{Timeout: cfg.Timeout},
		limiter:  rate.NewLimiter(limit, cfg.Burst),
	}, nil
}

// Send reports address under category. Requests wait on the client's rate
// limit; a non-2xx status is returned as an error.
func (c *Client) Send(ctx context.Context, address string, category int, comment string) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("abuseipdb: rate limit: %w", err)
	}

	form := url.Values{}
	form.Set("ip", address)
	form.Set("categories", strconv.Itoa(category))
	form.Set("comment", truncate(comment, maxCommentLength))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("abuseipdb: build request: %w", err)
	}
	req.Header.Set("Key", c.apiKey)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", "failguard")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("abuseipdb: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("abuseipdb: %s: %s", resp.Status, describeFailure(body))
	}
	return nil
}

func describeFailure(body []byte) string {
	var payload reportResponse
	if err := json.Unmarshal(body, &payload); err == nil && len(payload.Errors) > 0 {
		details := make([]string, 0, len(payload.Errors))
		for _, e := range payload.Errors {
			details = append(details, e.Detail)
		}
		return strings.Join(details, "; ")
	}
	return truncate(strings.TrimSpace(string(body)), 512)
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
