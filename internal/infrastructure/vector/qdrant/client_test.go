package qdrant

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/opencouncil/meeting-search/internal/core/domain"
)

func TestSearchVectorFiltersByContentType(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/collections/meeting_content/points/search" {
			http.NotFound(w, r)
			return
		}
		var req map[string]any
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		filter, _ := json.Marshal(req["filter"])
		if !strings.Contains(string(filter), `"value":"motion"`) {
			t.Fatalf("content_type filter missing: %s", filter)
		}

		_, _ = w.Write([]byte(`{"result":[
			{"score":0.92,"payload":{"content_type":"motion","source_id":"m-1","text":"Approve levy","occurred_at":"2024-05-07","meeting_title":"Regular Meeting"}},
			{"score":0.81,"payload":{"content_type":"motion","text":"missing source id"}}
		]}`))
	}))
	defer server.Close()

	client := New(server.URL, "meeting_content")
	results, err := client.SearchVector(context.Background(), domain.ContentTypeMotion, []float32{0.1, 0.2}, 10)
	if err != nil {
		t.Fatalf("SearchVector() error = %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected the payload without source_id dropped, got %d results", len(results))
	}

	got := results[0]
	if got.Key() != "motion:m-1" {
		t.Fatalf("key = %q", got.Key())
	}
	if got.RankScore != 0.92 {
		t.Fatalf("score = %v", got.RankScore)
	}
	if got.OccurredAt == nil || got.OccurredAt.Format("2006-01-02") != "2024-05-07" {
		t.Fatalf("occurred_at = %v", got.OccurredAt)
	}
	if got.Metadata["meeting_title"] != "Regular Meeting" {
		t.Fatalf("metadata = %v", got.Metadata)
	}
}

func TestSearchVectorErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	client := New(server.URL, "meeting_content")
	if _, err := client.SearchVector(context.Background(), domain.ContentTypeMotion, []float32{0.1}, 10); err == nil {
		t.Fatal("expected error")
	}
}

func TestEnsureCollectionOnce(t *testing.T) {
	var ensureCalls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPut && r.URL.Path == "/collections/meeting_content" {
			atomic.AddInt32(&ensureCalls, 1)
			w.WriteHeader(http.StatusCreated)
			return
		}
		http.NotFound(w, r)
	}))
	defer server.Close()

	client := New(server.URL, "meeting_content")
	if err := client.EnsureCollection(context.Background(), 768); err != nil {
		t.Fatalf("first EnsureCollection() error = %v", err)
	}
	if err := client.EnsureCollection(context.Background(), 768); err != nil {
		t.Fatalf("second EnsureCollection() error = %v", err)
	}
	if got := atomic.LoadInt32(&ensureCalls); got != 1 {
		t.Fatalf("expected one ensure call, got %d", got)
	}
}

func TestEnsureCollectionConflictTreatedAsExisting(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	}))
	defer server.Close()

	client := New(server.URL, "meeting_content")
	if err := client.EnsureCollection(context.Background(), 768); err != nil {
		t.Fatalf("conflict must not be an error: %v", err)
	}
}
