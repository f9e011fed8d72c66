package render

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/angelmondragon/reelforge-backend/pkg/config"
)

func TestSubmitPostsDocumentAndWebhook(t *testing.T) {
	var got struct {
		InputProps Document          `json:"inputProps"`
		Webhook    map[string]string `json:"webhook"`
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/renders" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer api" {
			t.Errorf("missing bearer header")
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		_, _ = w.Write([]byte(`{"renderId":"r-1","bucketName":"renders"}`))
	}))
	defer server.Close()

	client, err := NewClient(config.RenderConfig{BaseURL: server.URL, APIKey: "api", WebhookSecret: "s"})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	sub, err := client.Submit(context.Background(), Document{
		VideoID: "v1",
		Title:   "Fox",
		Scenes:  []Scene{{ClipURL: "https://cdn/1.mp4"}},
	}, "https://api/hook")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if sub.RenderID != "r-1" || sub.BucketName != "renders" {
		t.Fatalf("unexpected submission %#v", sub)
	}
	if got.InputProps.Title != "Fox" || len(got.InputProps.Scenes) != 1 {
		t.Fatalf("unexpected document %#v", got.InputProps)
	}
	if got.Webhook["url"] != "https://api/hook" || got.Webhook["secret"] != "s" {
		t.Fatalf("unexpected webhook %#v", got.Webhook)
	}
}

func TestSubmitRejectsMissingRenderID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client, _ := NewClient(config.RenderConfig{BaseURL: server.URL, WebhookSecret: "s"})
	if _, err := client.Submit(context.Background(), Document{}, "u"); err == nil {
		t.Fatal("expected missing render id error")
	}
}

func TestVerifySignature(t *testing.T) {
	body := []byte(`{"type":"success"}`)
	sig := Sign("secret", body)

	if err := VerifySignature("secret", body, sig); err != nil {
		t.Fatalf("expected valid signature: %v", err)
	}
	if err := VerifySignature("secret", body, "sha512="+sig); err != nil {
		t.Fatalf("expected prefixed signature to verify: %v", err)
	}
	if err := VerifySignature("other", body, sig); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected mismatch, got %v", err)
	}
	if err := VerifySignature("secret", body, "zz"); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected invalid hex to fail, got %v", err)
	}
	if err := VerifySignature("", body, sig); err == nil {
		t.Fatal("expected missing secret error")
	}
}

func TestWebhookPayloadHelpers(t *testing.T) {
	ok := WebhookPayload{Type: "success", OutputURL: "https://cdn/out.mp4"}
	if !ok.Succeeded() {
		t.Fatal("expected success")
	}
	failed := WebhookPayload{Type: "error", Errors: []WebhookError{{Message: "lambda timeout"}}}
	if failed.Succeeded() || failed.ErrorMessage() != "lambda timeout" {
		t.Fatalf("unexpected failure helpers %q", failed.ErrorMessage())
	}
	if (WebhookPayload{Type: "timeout"}).ErrorMessage() != "render timeout" {
		t.Fatal("expected type fallback message")
	}
}
