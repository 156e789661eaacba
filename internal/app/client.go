package app

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"failguard/internal/api/dto"
	"failguard/internal/domain"
)

const apiClientTimeout = 30 * time.Second

// apiClient talks to a running agent's admin API so the daemon stays the
// only writer of ban state.
type apiClient struct {
	base  string
	token string
	http  *http.Client
}

func newAPIClient(base, token string) *apiClient {
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	return &apiClient{
		base:  strings.TrimRight(base, "/"),
		token: token,
		http:  &http.Client{Timeout: apiClientTimeout},
	}
}

type apiError struct {
	Status  int
	Message string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("api: %d %s", e.Status, e.Message)
}

func (c *apiClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("api request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 300 {
		var payload struct {
			Error  string `json:"error"`
			Reason string `json:"reason"`
		}
		msg := strings.TrimSpace(string(data))
		if json.Unmarshal(data, &payload) == nil {
			if payload.Error != "" {
				msg = payload.Error
			} else if payload.Reason != "" {
				msg = payload.Reason
			}
		}
		return &apiError{Status: resp.StatusCode, Message: msg}
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *apiClient) Login(ctx context.Context, password string) (dto.Token, error) {
	var token dto.Token
	err := c.do(ctx, http.MethodPost, "/login", dto.Credentials{Password: password}, &token)
	return token, err
}

func (c *apiClient) ListBans(ctx context.Context) ([]dto.BanInfo, error) {
	var bans []dto.BanInfo
	err := c.do(ctx, http.MethodGet, "/bans", nil, &bans)
	return bans, err
}

func (c *apiClient) ListTracked(ctx context.Context) ([]domain.FailureRecord, error) {
	var tracked []domain.FailureRecord
	err := c.do(ctx, http.MethodGet, "/tracked", nil, &tracked)
	return tracked, err
}

func (c *apiClient) Block(ctx context.Context, req dto.BlockRequest) (domain.BanDecision, error) {
	var decision domain.BanDecision
	err := c.do(ctx, http.MethodPost, "/bans", req, &decision)
	return decision, err
}

func (c *apiClient) Unblock(ctx context.Context, address string) error {
	return c.do(ctx, http.MethodDelete, "/bans/"+url.PathEscape(address), nil, nil)
}
