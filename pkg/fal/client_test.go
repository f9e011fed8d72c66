package fal

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/angelmondragon/reelforge-backend/pkg/config"
)

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	client, err := NewClient(config.FalConfig{
		APIKey:            "key",
		BaseURL:           baseURL,
		StandardModel:     "std",
		PremiumModel:      "pro",
		PollInterval:      time.Millisecond,
		RequestsPerSecond: 1000,
	}, nil)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return client
}

func TestGenerateVideoPollsUntilCompleted(t *testing.T) {
	var polls atomic.Int32
	var mu sync.Mutex
	var submittedModel string
	var submitted map[string]any
	mux := http.NewServeMux()
	var server *httptest.Server
	mux.HandleFunc("/pro", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Key key" {
			t.Errorf("missing auth header")
		}
		mu.Lock()
		submittedModel = "pro"
		_ = json.NewDecoder(r.Body).Decode(&submitted)
		mu.Unlock()
		_ = json.NewEncoder(w).Encode(map[string]string{
			"request_id":   "req-1",
			"status_url":   server.URL + "/status",
			"response_url": server.URL + "/result",
		})
	})
	mux.HandleFunc("/status", func(w http.ResponseWriter, _ *http.Request) {
		status := "IN_PROGRESS"
		if polls.Add(1) >= 3 {
			status = "COMPLETED"
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"status": status})
	})
	mux.HandleFunc("/result", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"video":{"url":"` + server.URL + `/clip.mp4","content_type":"video/mp4"}}`))
	})
	mux.HandleFunc("/clip.mp4", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "video/mp4")
		_, _ = w.Write([]byte("mp4data"))
	})
	server = httptest.NewServer(mux)
	defer server.Close()

	client := newTestClient(t, server.URL)
	video, err := client.GenerateVideo(context.Background(), VideoRequest{
		ImageURL:        "https://cdn/scene.png",
		Prompt:          "slow pan",
		Premium:         true,
		AspectRatio:     "9:16",
		DurationSeconds: 5,
	})
	if err != nil {
		t.Fatalf("GenerateVideo: %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if submittedModel != "pro" {
		t.Fatalf("expected premium model, got %q", submittedModel)
	}
	if submitted["image_url"] != "https://cdn/scene.png" || submitted["duration"] != "5" {
		t.Fatalf("unexpected submit body %#v", submitted)
	}
	if string(video.Data) != "mp4data" || video.ContentType != "video/mp4" || video.RequestID != "req-1" {
		t.Fatalf("unexpected video %#v", video)
	}
	if polls.Load() != 3 {
		t.Fatalf("expected 3 polls, got %d", polls.Load())
	}
}

func TestGenerateVideoFailedStatus(t *testing.T) {
	mux := http.NewServeMux()
	var server *httptest.Server
	mux.HandleFunc("/std", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{
			"request_id":   "req-2",
			"status_url":   server.URL + "/status",
			"response_url": server.URL + "/result",
		})
	})
	mux.HandleFunc("/status", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "FAILED", "error": "nsfw"})
	})
	server = httptest.NewServer(mux)
	defer server.Close()

	client := newTestClient(t, server.URL)
	_, err := client.GenerateVideo(context.Background(), VideoRequest{ImageURL: "https://cdn/a.png"})
	if !errors.Is(err, ErrRequestFailed) {
		t.Fatalf("expected ErrRequestFailed, got %v", err)
	}
}

func TestGenerateVideoSubmitError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "bad key", http.StatusUnauthorized)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	if _, err := client.GenerateVideo(context.Background(), VideoRequest{ImageURL: "x"}); err == nil {
		t.Fatal("expected submit error")
	}
}

func TestGenerateVideoRequiresImage(t *testing.T) {
	client := newTestClient(t, "http://unused")
	if _, err := client.GenerateVideo(context.Background(), VideoRequest{}); err == nil {
		t.Fatal("expected image url error")
	}
}
