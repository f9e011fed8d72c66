package analytics

import (
	"net/url"
	"strings"
	"time"

	pkgerrors "github.com/angelmondragon/reelforge-backend/pkg/errors"
)

const (
	defaultPreset = "30d"
	maxWindow     = 366 * 24 * time.Hour
)

var presets = map[string]time.Duration{
	"7d":  7 * 24 * time.Hour,
	"30d": 30 * 24 * time.Hour,
	"90d": 90 * 24 * time.Hour,
}

var clock = func() time.Time { return time.Now().UTC() }

// usageWindow is the half-open [start, end) range a usage query covers.
type usageWindow struct {
	start time.Time
	end   time.Time
}

// parseUsageWindow reads either an explicit from/to pair (RFC 3339) or a
// preset ending at now. An explicit pair wins over a preset.
func parseUsageWindow(q url.Values, now time.Time) (usageWindow, error) {
	from, to := strings.TrimSpace(q.Get("from")), strings.TrimSpace(q.Get("to"))
	if from == "" && to == "" {
		name := strings.ToLower(strings.TrimSpace(q.Get("preset")))
		if name == "" {
			name = defaultPreset
		}
		d, ok := presets[name]
		if !ok {
			return usageWindow{}, fieldError("preset", "preset must be one of 7d, 30d, 90d")
		}
		return usageWindow{start: now.Add(-d), end: now}, nil
	}

	if from == "" || to == "" {
		return usageWindow{}, fieldError("from", "from and to must be provided together")
	}
	start, err := time.Parse(time.RFC3339, from)
	if err != nil {
		return usageWindow{}, fieldError("from", "from must be an RFC 3339 timestamp")
	}
	end, err := time.Parse(time.RFC3339, to)
	if err != nil {
		return usageWindow{}, fieldError("to", "to must be an RFC 3339 timestamp")
	}
	w := usageWindow{start: start.UTC(), end: end.UTC()}
	switch {
	case !w.end.After(w.start):
		return usageWindow{}, fieldError("to", "to must be after from")
	case w.end.Sub(w.start) > maxWindow:
		return usageWindow{}, fieldError("from", "range may not exceed 366 days")
	}
	return w, nil
}

func fieldError(field, msg string) error {
	return pkgerrors.New(pkgerrors.CodeValidation, msg).WithDetails(map[string]string{"field": field})
}
