package registry

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/angelmondragon/reelforge-backend/pkg/enums"
	"github.com/angelmondragon/reelforge-backend/pkg/outbox"
	"github.com/angelmondragon/reelforge-backend/pkg/outbox/payloads"
)

func renderDecoders() *Decoders {
	d := NewDecoders()
	Accept(d, enums.EventRenderCompleted, 1, func(e *payloads.RenderCompletedEvent) error {
		if e.VideoID == uuid.Nil {
			return errors.New("video_id missing")
		}
		return nil
	})
	return d
}

func TestDecodersReturnTypedPayload(t *testing.T) {
	videoID := uuid.New()
	env := outbox.PayloadEnvelope{Data: json.RawMessage(`{"video_id":"` + videoID.String() + `","status":"succeeded"}`)}

	out, err := renderDecoders().Decode(enums.EventRenderCompleted, env)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	event, ok := out.(*payloads.RenderCompletedEvent)
	if !ok {
		t.Fatalf("unexpected payload type %T", out)
	}
	if event.VideoID != videoID || event.Status != "succeeded" {
		t.Fatalf("unexpected payload %+v", event)
	}
}

func TestDecodersRejectUnknownAndInvalid(t *testing.T) {
	d := renderDecoders()
	if !d.Accepts(enums.EventRenderCompleted) || d.Accepts(enums.EventGenerationFinished) {
		t.Fatal("Accepts should only report registered types")
	}

	_, err := d.Decode(enums.EventRenderCompleted, outbox.PayloadEnvelope{Version: 2, Data: json.RawMessage(`{}`)})
	if !errors.Is(err, ErrNotAccepted) {
		t.Fatalf("expected ErrNotAccepted for an unknown version, got %v", err)
	}
	_, err = d.Decode(enums.EventGenerationFinished, outbox.PayloadEnvelope{Data: json.RawMessage(`{}`)})
	if !errors.Is(err, ErrNotAccepted) {
		t.Fatalf("expected ErrNotAccepted for an unknown type, got %v", err)
	}
	_, err = d.Decode(enums.EventRenderCompleted, outbox.PayloadEnvelope{Version: 1, Data: json.RawMessage(`{"status":"failed"}`)})
	if err == nil || errors.Is(err, ErrNotAccepted) {
		t.Fatalf("expected the check to reject a payload without video_id, got %v", err)
	}
	_, err = d.Decode(enums.EventRenderCompleted, outbox.PayloadEnvelope{Data: json.RawMessage(`[1,2]`)})
	if err == nil {
		t.Fatal("expected malformed payload to fail")
	}
}
