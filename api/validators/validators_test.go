package validators

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	pkgerrors "github.com/angelmondragon/reelforge-backend/pkg/errors"
	"github.com/angelmondragon/reelforge-backend/pkg/pagination"
)

func TestSanitizeTextCutsOnRuneBoundary(t *testing.T) {
	in := strings.Repeat("漢", 10)
	out := SanitizeText(in, 4)
	if !utf8.ValidString(out) || out != strings.Repeat("漢", 4) {
		t.Fatalf("unexpected %q", out)
	}
}

func TestSanitizeTextStripsControls(t *testing.T) {
	out := SanitizeText("  a lighthouse\x07 at\tnight\n\x00 ", 0)
	if out != "a lighthouse at\tnight" {
		t.Fatalf("unexpected %q", out)
	}
	if got := SanitizeText("ok\xffok", 0); got != "okok" {
		t.Fatalf("invalid bytes should be dropped, got %q", got)
	}
}

type sample struct {
	Style  string `json:"style" validate:"required,video_style"`
	Ratio  string `json:"aspect_ratio" validate:"required,aspect_ratio"`
	Tier   string `json:"video_model_tier" validate:"omitempty,video_model_tier"`
	Prompt string `json:"prompt" validate:"max=3"`
}

func decodeSample(t *testing.T, body string) (sample, error) {
	t.Helper()
	var dest sample
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	return dest, DecodeJSONBody(req, &dest)
}

func TestDecodeJSONBodyEnumTags(t *testing.T) {
	if _, err := decodeSample(t, `{"style":"anime","aspect_ratio":"16:9","prompt":"漢漢漢"}`); err != nil {
		t.Fatalf("expected valid body, got %v", err)
	}
	_, err := decodeSample(t, `{"style":"oil","aspect_ratio":"4:3","video_model_tier":"ultra"}`)
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	details, ok := typed.Details().(map[string]string)
	if !ok {
		t.Fatalf("unexpected details %#v", typed.Details())
	}
	for _, field := range []string{"style", "aspect_ratio", "video_model_tier"} {
		if details[field] == "" {
			t.Fatalf("missing detail for %s: %v", field, details)
		}
	}
	if !strings.Contains(details["style"], "anime") {
		t.Fatalf("style message should list options: %q", details["style"])
	}
}

func TestDecodeJSONBodyRejectsOversizedBody(t *testing.T) {
	body := `{"style":"anime","aspect_ratio":"16:9","prompt":"` + strings.Repeat("a", MaxBodyBytes) + `"}`
	_, err := decodeSample(t, body)
	if typed := pkgerrors.As(err); typed == nil || typed.Message() != "request body too large" {
		t.Fatalf("expected size error, got %v", err)
	}
}

func TestDecodeJSONBodyRejectsEmptyBody(t *testing.T) {
	_, err := decodeSample(t, "")
	if typed := pkgerrors.As(err); typed == nil || typed.Message() != "request body is empty" {
		t.Fatalf("expected empty body error, got %v", err)
	}
}

func TestParsePageParams(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/videos", nil)
	params, err := ParsePageParams(req)
	if err != nil || params.Limit != pagination.DefaultLimit || params.Cursor != "" {
		t.Fatalf("unexpected defaults %+v %v", params, err)
	}

	cursor := pagination.EncodeCursor(pagination.Cursor{CreatedAt: time.Now(), ID: uuid.New()})
	req = httptest.NewRequest(http.MethodGet, "/api/v1/videos?limit=10", nil)
	q := req.URL.Query()
	q.Set("cursor", cursor)
	req.URL.RawQuery = q.Encode()
	params, err = ParsePageParams(req)
	if err != nil || params.Limit != 10 || params.Cursor != cursor {
		t.Fatalf("unexpected params %+v %v", params, err)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/videos?limit=abc", nil)
	if _, err := ParsePageParams(req); err == nil {
		t.Fatal("expected numeric error")
	}
}
