package events

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/decidr/decidr-backend/internal/domain"
)

func TestMarshalEnvelope(t *testing.T) {
	frame, err := Marshal(OutUserTyping, TypingOut{UserID: "u1", UserName: "alice", GroupID: "g1"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if env.Event != OutUserTyping {
		t.Fatalf("event = %q", env.Event)
	}
	var out TypingOut
	if err := json.Unmarshal(env.Data, &out); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if out.UserID != "u1" || out.GroupID != "g1" {
		t.Fatalf("payload = %+v", out)
	}
}

func TestFromMessageHydration(t *testing.T) {
	img := "https://cdn.example/a.png"
	m := &domain.Message{
		ID:       "m1",
		GroupID:  "g1",
		SenderID: "u1",
		Type:     domain.MessageTypeText,
		Content:  "hi",
		Sender:   domain.User{ID: "u1", Name: "alice", Email: "a@b.co", Image: &img},
		ReplyTo: &domain.Message{
			ID:      "m0",
			Content: "parent",
			Sender:  domain.User{ID: "u2", Name: "bob"},
		},
		CreatedAt: time.Now().UTC(),
	}

	out := FromMessage(m)
	if out.User.Name != "alice" || out.User.Image == nil {
		t.Fatalf("sender = %+v", out.User)
	}
	if out.ReplyTo == nil || out.ReplyTo.ID != "m0" || out.ReplyTo.User.Name != "bob" {
		t.Fatalf("reply = %+v", out.ReplyTo)
	}

	// Wire field names are stable camelCase.
	raw, _ := json.Marshal(out)
	for _, field := range []string{`"groupId"`, `"senderId"`, `"createdAt"`, `"replyTo"`} {
		if !strings.Contains(string(raw), field) {
			t.Errorf("field %s missing: %s", field, raw)
		}
	}
}

func TestSystemMessageShape(t *testing.T) {
	out := SystemMessage("g1", "alice joined")

	if out.Type != domain.MessageTypeSystem {
		t.Fatalf("type = %q", out.Type)
	}
	if !strings.HasPrefix(out.ID, "system-") || out.SenderID != "system" {
		t.Fatalf("identity = %q/%q", out.ID, out.SenderID)
	}
	if out.GroupID != "g1" || out.Content != "alice joined" {
		t.Fatalf("payload = %+v", out)
	}
}
