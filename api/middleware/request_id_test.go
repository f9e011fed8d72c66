package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestRequestIDEchoesCallerID(t *testing.T) {
	var seen string
	handler := RequestID(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(requestIDHeader, "trace-123")
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if seen != "trace-123" || resp.Header().Get(requestIDHeader) != "trace-123" {
		t.Fatalf("expected caller id, got ctx=%q header=%q", seen, resp.Header().Get(requestIDHeader))
	}
}

func TestRequestIDReplacesUnsafeIDs(t *testing.T) {
	cases := map[string]string{
		"empty":    "",
		"newline":  "abc\ninjected",
		"too long": strings.Repeat("a", maxRequestIDLen+1),
	}
	for name, incoming := range cases {
		t.Run(name, func(t *testing.T) {
			handler := RequestID(nil)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if incoming != "" {
				req.Header[requestIDHeader] = []string{incoming}
			}
			resp := httptest.NewRecorder()
			handler.ServeHTTP(resp, req)
			if _, err := uuid.Parse(resp.Header().Get(requestIDHeader)); err != nil {
				t.Fatalf("expected minted uuid, got %q", resp.Header().Get(requestIDHeader))
			}
		})
	}
}
