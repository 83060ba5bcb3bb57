package cohere

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kailas-cloud/evergreen/internal/domain"
)

func TestReranker_Rerank(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/rerank" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("unexpected auth header: %s", r.Header.Get("Authorization"))
		}

		var req struct {
			Model     string   `json:"model"`
			Query     string   `json:"query"`
			Documents []string `json:"documents"`
			TopN      int      `json:"top_n"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Query != "who owns billing?" || len(req.Documents) != 3 || req.TopN != 2 {
			t.Errorf("unexpected request: %+v", req)
		}
		if req.Model != DefaultModel {
			t.Errorf("expected default model, got %s", req.Model)
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"results":[{"index":2,"relevance_score":0.91},{"index":0,"relevance_score":0.4}]}`))
	}))
	defer server.Close()

	rr, err := New(Config{APIKey: "test-key", BaseURL: server.URL})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	got, err := rr.Rerank(context.Background(), "who owns billing?", []string{"a", "b", "c"}, 2)
	if err != nil {
		t.Fatalf("Rerank: %v", err)
	}
	if len(got) != 2 || got[0].Index != 2 || got[0].Score != 0.91 || got[1].Index != 0 {
		t.Errorf("unexpected results: %+v", got)
	}
}

func TestReranker_Errors(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		body        string
		rateLimited bool
	}{
		{"server error", http.StatusInternalServerError, `{"message":"boom"}`, false},
		{"rate limited", http.StatusTooManyRequests, `{"message":"slow down"}`, true},
		{"bad json", http.StatusOK, `{"results":`, false},
		{"index out of range", http.StatusOK, `{"results":[{"index":7,"relevance_score":0.1}]}`, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer server.Close()

			rr, _ := New(Config{APIKey: "k", BaseURL: server.URL})
			_, err := rr.Rerank(context.Background(), "q", []string{"a"}, 1)
			if !errors.Is(err, domain.ErrRerankError) {
				t.Fatalf("expected ErrRerankError, got %v", err)
			}
			if errors.Is(err, domain.ErrRateLimited) != tc.rateLimited {
				t.Errorf("rate limited = %v, want %v", errors.Is(err, domain.ErrRateLimited), tc.rateLimited)
			}
		})
	}
}

func TestReranker_ZeroTopNOmitted(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if _, ok := req["top_n"]; ok {
			t.Errorf("top_n sent for zero limit: %v", req["top_n"])
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"results":[{"index":0,"relevance_score":0.5}]}`))
	}))
	defer server.Close()

	rr, _ := New(Config{APIKey: "k", BaseURL: server.URL})
	got, err := rr.Rerank(context.Background(), "q", []string{"a"}, 0)
	if err != nil || len(got) != 1 {
		t.Fatalf("Rerank = %+v, %v", got, err)
	}
}

// A rate-limited call is made once; the caller falls back to vector order.
func TestReranker_NoRetry(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"message":"slow down"}`))
	}))
	defer server.Close()

	rr, _ := New(Config{APIKey: "k", BaseURL: server.URL})
	if _, err := rr.Rerank(context.Background(), "q", []string{"a"}, 1); err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestReranker_NoDocuments(t *testing.T) {
	rr, _ := New(Config{APIKey: "k", BaseURL: "http://unused"})
	got, err := rr.Rerank(context.Background(), "q", nil, 3)
	if err != nil || got != nil {
		t.Errorf("expected no call for empty input, got %v %v", got, err)
	}
}

func TestNew_RequiresKey(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatal("expected error without API key")
	}
}
