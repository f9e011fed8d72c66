package assemblyai

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/angelmondragon/reelforge-backend/pkg/config"
)

func newClient(t *testing.T, base string) *Client {
	t.Helper()
	client, err := NewClient(config.AssemblyAIConfig{APIKey: "k", BaseURL: base, PollInterval: time.Millisecond})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return client
}

func TestTranscribeReturnsWords(t *testing.T) {
	var polls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/v2/transcript", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.Header.Get("authorization") != "k" {
			t.Errorf("unexpected submit %s", r.Method)
		}
		_, _ = w.Write([]byte(`{"id":"t1","status":"queued"}`))
	})
	mux.HandleFunc("/v2/transcript/t1", func(w http.ResponseWriter, _ *http.Request) {
		if polls.Add(1) < 2 {
			_, _ = w.Write([]byte(`{"id":"t1","status":"processing"}`))
			return
		}
		_, _ = w.Write([]byte(`{"id":"t1","status":"completed","words":[{"text":"Hello","start":0,"end":420},{"text":"world","start":430,"end":900}]}`))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	words, err := newClient(t, server.URL).Transcribe(context.Background(), "https://cdn/a.mp3")
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if len(words) != 2 || words[1].Text != "world" || words[1].StartMs != 430 || words[1].EndMs != 900 {
		t.Fatalf("unexpected words %#v", words)
	}
}

func TestTranscribeErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"id":"t2","status":"error","error":"audio too short"}`))
	}))
	defer server.Close()

	_, err := newClient(t, server.URL).Transcribe(context.Background(), "https://cdn/a.mp3")
	if !errors.Is(err, ErrTranscriptFailed) {
		t.Fatalf("expected ErrTranscriptFailed, got %v", err)
	}
}

func TestTranscribeHonoursContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"id":"t3","status":"processing"}`))
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := newClient(t, server.URL).Transcribe(ctx, "https://cdn/a.mp3"); err == nil {
		t.Fatal("expected context error")
	}
}
