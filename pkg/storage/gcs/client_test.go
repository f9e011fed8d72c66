package gcs

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/angelmondragon/reelforge-backend/pkg/config"
	"github.com/angelmondragon/reelforge-backend/pkg/storage"
)

// bearer stands in for the oauth2 transport htransport builds in production.
type bearer struct{ base http.RoundTripper }

func (b bearer) RoundTrip(r *http.Request) (*http.Response, error) {
	r = r.Clone(r.Context())
	r.Header.Set("Authorization", "Bearer test-token")
	return b.base.RoundTrip(r)
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return &Client{
		http:    &http.Client{Transport: bearer{base: srv.Client().Transport}},
		bucket:  "reels",
		public:  publicBase("https://cdn.example.com/", "reels"),
		apiBase: srv.URL,
	}
}

func TestPutUploadsMedia(t *testing.T) {
	t.Parallel()

	var gotName, gotType, gotAuth, gotBody string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/upload/storage/v1/b/reels/o" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		if r.URL.Query().Get("uploadType") != "media" {
			t.Errorf("expected a media upload")
		}
		gotName = r.URL.Query().Get("name")
		gotType = r.Header.Get("Content-Type")
		gotAuth = r.Header.Get("Authorization")
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		_, _ = w.Write([]byte(`{}`))
	})

	obj, err := client.Put(context.Background(), "/generated/v/scene_image/a.png", []byte("png-bytes"), "image/png")
	if err != nil {
		t.Fatalf("Put returned error: %v", err)
	}
	if gotName != "generated/v/scene_image/a.png" {
		t.Fatalf("unexpected object name %q", gotName)
	}
	if gotType != "image/png" || gotAuth != "Bearer test-token" || gotBody != "png-bytes" {
		t.Fatalf("unexpected request type=%q auth=%q body=%q", gotType, gotAuth, gotBody)
	}
	if obj.Bucket != "reels" || obj.Size != int64(len("png-bytes")) {
		t.Fatalf("unexpected object %+v", obj)
	}
	if got := client.PublicURL(obj.Key); got != "https://cdn.example.com/reels/generated/v/scene_image/a.png" {
		t.Fatalf("unexpected public url %q", got)
	}
}

func TestPutDefaultsContentTypeAndRejectsEmptyKey(t *testing.T) {
	t.Parallel()

	var gotType string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotType = r.Header.Get("Content-Type")
	})
	if _, err := client.Put(context.Background(), "clip.bin", []byte{1}, ""); err != nil {
		t.Fatalf("Put returned error: %v", err)
	}
	if gotType != "application/octet-stream" {
		t.Fatalf("expected octet-stream, got %q", gotType)
	}
	if _, err := client.Put(context.Background(), "///", []byte{1}, ""); err == nil {
		t.Fatal("expected empty key error")
	}
}

func TestPutSurfacesErrors(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	})
	_, err := client.Put(context.Background(), "k", []byte("x"), "")
	if err == nil || !strings.Contains(err.Error(), "quota exceeded") || !strings.Contains(err.Error(), "429") {
		t.Fatalf("expected upstream status and message in error, got %v", err)
	}
}

func TestGetDownloadsAndMapsNotFound(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("alt") != "media" {
			t.Errorf("expected alt=media")
		}
		switch r.URL.EscapedPath() {
		case "/storage/v1/b/reels/o/chars%2Fa.png":
			_, _ = w.Write([]byte("ref-image"))
		case "/storage/v1/b/reels/o/chars%2Fbroken.png":
			http.Error(w, "backend error", http.StatusInternalServerError)
		default:
			http.NotFound(w, r)
		}
	})

	data, err := client.Get(context.Background(), "chars/a.png")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if string(data) != "ref-image" {
		t.Fatalf("unexpected body %q", data)
	}
	if _, err := client.Get(context.Background(), "chars/missing.png"); !errors.Is(err, storage.ErrObjectNotFound) {
		t.Fatalf("expected ErrObjectNotFound, got %v", err)
	}
	if _, err := client.Get(context.Background(), "chars/broken.png"); err == nil || errors.Is(err, storage.ErrObjectNotFound) {
		t.Fatalf("expected a server error, got %v", err)
	}
}

func TestPingListsOneObject(t *testing.T) {
	t.Parallel()

	var status atomic.Int32
	status.Store(http.StatusOK)
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/storage/v1/b/reels/o" || r.URL.Query().Get("maxResults") != "1" {
			t.Errorf("unexpected ping request %s", r.URL)
		}
		w.WriteHeader(int(status.Load()))
	})
	if err := client.Ping(context.Background()); err != nil {
		t.Fatalf("Ping returned error: %v", err)
	}
	status.Store(http.StatusForbidden)
	if err := client.Ping(context.Background()); err == nil || !strings.Contains(err.Error(), "403") {
		t.Fatalf("expected forbidden error, got %v", err)
	}

	var nilClient *Client
	if err := nilClient.Ping(context.Background()); err == nil {
		t.Fatal("expected error for nil client")
	}
	if nilClient.Bucket() != "" {
		t.Fatal("nil client has no bucket")
	}
}

func TestNewClientRequiresBucket(t *testing.T) {
	if _, err := NewClient(context.Background(), config.GCSConfig{BucketName: " "}, config.GCPConfig{}, nil); err == nil {
		t.Fatal("expected missing bucket error")
	}
}

func TestPublicBaseFallsBackToStorageHost(t *testing.T) {
	if got := publicBase("", "reels"); got != "https://storage.googleapis.com/reels" {
		t.Fatalf("unexpected base %q", got)
	}
}
