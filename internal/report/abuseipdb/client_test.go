package abuseipdb

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestSendPostsForm(t *testing.T) {
	var gotKey, gotAccept, gotIP, gotCategories, gotComment string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if err := r.ParseForm(); err != nil {
			t.Errorf("ParseForm: %v", err)
		}
		gotKey = r.Header.Get("Key")
		gotAccept = r.Header.Get("Accept")
		gotIP = r.PostForm.Get("ip")
		gotCategories = r.PostForm.Get("categories")
		gotComment = r.PostForm.Get("comment")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":{"ipAddress":"203.0.113.5","abuseConfidenceScore":52}}`))
	}))
	defer server.Close()

	client, err := New(Config{Endpoint: server.URL, APIKey: "secret"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := client.Send(context.Background(), "203.0.113.5", 18, "ssh brute force"); err != nil {
		t.Fatalf("Send: %v", err)
	}

	if gotKey != "secret" || gotAccept != "application/json" {
		t.Fatalf("headers Key=%q Accept=%q", gotKey, gotAccept)
	}
	if gotIP != "203.0.113.5" || gotCategories != "18" || gotComment != "ssh brute force" {
		t.Fatalf("form ip=%q categories=%q comment=%q", gotIP, gotCategories, gotComment)
	}
}

func TestSendTruncatesComment(t *testing.T) {
	var gotComment string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		gotComment = r.PostForm.Get("comment")
	}))
	defer server.Close()

	client, err := New(Config{Endpoint: server.URL, APIKey: "secret"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := client.Send(context.Background(), "203.0.113.6", 18, strings.Repeat("x", 2000)); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(gotComment) != maxCommentLength {
		t.Fatalf("comment length = %d, want %d", len(gotComment), maxCommentLength)
	}
}

func TestSendReportsErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"errors":[{"detail":"Daily rate limit of 1000 requests exceeded","status":429}]}`))
	}))
	defer server.Close()

	client, err := New(Config{Endpoint: server.URL, APIKey: "secret"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	err = client.Send(context.Background(), "203.0.113.7", 18, "x")
	if err == nil || !strings.Contains(err.Error(), "Daily rate limit") {
		t.Fatalf("Send error = %v, want rate limit detail", err)
	}
}

func TestNewRequiresKey(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatal("New without key succeeded")
	}
}

func TestSendHonoursCancelledContext(t *testing.T) {
	client, err := New(Config{Endpoint: "http://127.0.0.1:1", APIKey: "secret", RequestsPerSecond: 0.001, Burst: 1})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	// Consume the single token so the next call has to wait.
	client.limiter.Allow()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := client.Send(ctx, "203.0.113.8", 18, "x"); err == nil {
		t.Fatal("Send with cancelled context succeeded")
	}
}
