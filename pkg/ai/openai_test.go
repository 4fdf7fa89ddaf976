package ai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/klimkalender/klimkalender-cms/pkg/event"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := NewClient(Config{APIKey: "test-key", Endpoint: srv.URL})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

func answer(w http.ResponseWriter, content string) {
	json.NewEncoder(w).Encode(map[string]any{
		"choices": []any{map[string]any{"message": map[string]any{"role": "assistant", "content": content}}},
	})
}

func TestNewClientRequiresKey(t *testing.T) {
	if _, err := NewClient(Config{}); err != ErrMissingAPIKey {
		t.Fatalf("expected ErrMissingAPIKey, got %v", err)
	}
	if _, err := NewClient(Config{APIKey: "k", Provider: "other"}); err == nil {
		t.Fatalf("expected unsupported provider error")
	}
}

func TestIsYes(t *testing.T) {
	tests := map[string]bool{
		"Yes.":                    true,
		"  YES, it is":            true,
		"yessir":                  true,
		"No":                      false,
		"Probably yes":            false,
		"":                        false,
		"ye":                      false,
		"Yes\nbecause of the cup": true,
	}
	for in, want := range tests {
		if got := IsYes(in); got != want {
			t.Errorf("IsYes(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestIsCompetitionSendsPromptAndMemoizes(t *testing.T) {
	var (
		mu      sync.Mutex
		prompts []string
	)
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("authorization header = %q", got)
		}
		body, _ := io.ReadAll(r.Body)
		var req chatRequest
		if err := json.Unmarshal(body, &req); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		if req.Model != defaultModel || req.MaxTokens != defaultMaxTokens || req.Temperature != 0 {
			t.Errorf("unexpected request settings: %+v", req)
		}
		mu.Lock()
		prompts = append(prompts, req.Messages[1].Content)
		mu.Unlock()
		answer(w, "Yes, this is a competition.")
	})

	ev := event.CandidateEvent{ExternalID: "x:1", Name: "Boulder Bash", ShortDescription: "short", FullDescriptionHTML: "<p>full</p>"}
	for i := 0; i < 3; i++ {
		ok, err := c.IsCompetition(context.Background(), ev)
		if err != nil {
			t.Fatalf("IsCompetition: %v", err)
		}
		if !ok {
			t.Fatalf("expected competition")
		}
	}
	if len(prompts) != 1 || c.Calls() != 1 {
		t.Fatalf("expected one remote call, got %d", len(prompts))
	}
	want := "Do you think the following text describes a competition?The name of the event is: Boulder BashThe description of the event is: short\n<p>full</p>\n\nPlease answer with Yes or No."
	if prompts[0] != want {
		t.Fatalf("prompt = %q", prompts[0])
	}
}

func TestQueryErrors(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"message":"Rate limit reached"}}`))
	})
	_, err := c.Query(context.Background(), "hello")
	if err == nil || !strings.Contains(err.Error(), "Rate limit reached") {
		t.Fatalf("expected api error message, got %v", err)
	}

	empty := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[]}`))
	})
	if _, err := empty.Query(context.Background(), "hello"); err == nil {
		t.Fatalf("expected error for empty choices")
	}
}

func TestFindDate(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if !strings.Contains(string(body), "The current year is 2025") {
			t.Errorf("prompt does not carry the current year: %s", body)
		}
		if strings.Contains(string(body), "no date here") {
			answer(w, "I cannot tell.")
			return
		}
		answer(w, "The most likely date is 14-03-2025.")
	})

	now := time.Date(2025, 1, 10, 12, 0, 0, 0, event.Amsterdam)
	got, ok, err := c.FindDate(context.Background(), "Grip Games op 14 maart", now)
	if err != nil || !ok {
		t.Fatalf("FindDate: %v %v", ok, err)
	}
	if want := time.Date(2025, 3, 14, 0, 0, 0, 0, event.Amsterdam); !got.Equal(want) {
		t.Fatalf("got %s, want %s", got, want)
	}

	_, ok, err = c.FindDate(context.Background(), "no date here", now)
	if err != nil || ok {
		t.Fatalf("expected no date, got ok=%v err=%v", ok, err)
	}
}

func TestQuerySharesConcurrentRequests(t *testing.T) {
	var (
		mu   sync.Mutex
		hits int
	)
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		hits++
		mu.Unlock()
		time.Sleep(50 * time.Millisecond)
		answer(w, "No")
	})

	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if got, err := c.Query(context.Background(), "same prompt"); err != nil || got != "No" {
				t.Errorf("Query: %q %v", got, err)
			}
		}()
	}
	close(start)
	wg.Wait()

	if hits != 1 || c.Calls() != 1 {
		t.Fatalf("expected one request, got %d (calls %d)", hits, c.Calls())
	}
}
