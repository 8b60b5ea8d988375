package repo

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"gorm.io/gorm"
)

func TestCreateMessageHydrates(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	alice := seedUser(t, db, "alice")
	bob := seedUser(t, db, "bob")
	g := seedGroup(t, db, alice.ID, "general")

	parent, err := CreateMessage(ctx, db, MessageInput{
		GroupID: g.ID, SenderID: alice.ID, Type: "TEXT", Content: "hello",
	})
	if err != nil {
		t.Fatalf("create parent: %v", err)
	}
	if parent.Sender.Name != "alice" {
		t.Fatalf("sender not hydrated: %+v", parent.Sender)
	}

	reply, err := CreateMessage(ctx, db, MessageInput{
		GroupID: g.ID, SenderID: bob.ID, Type: "TEXT", Content: "hi back",
		ReplyToID: &parent.ID,
	})
	if err != nil {
		t.Fatalf("create reply: %v", err)
	}
	if reply.ReplyTo == nil || reply.ReplyTo.ID != parent.ID {
		t.Fatalf("reply parent not hydrated: %+v", reply.ReplyTo)
	}
	if reply.ReplyTo.Sender.Name != "alice" {
		t.Fatalf("reply parent sender not hydrated: %+v", reply.ReplyTo.Sender)
	}
}

func TestMessageIDsAreTimeOrdered(t *testing.T) {
	prev := ""
	for i := 0; i < 100; i++ {
		id := NewMessageID()
		if prev != "" && id <= prev {
			t.Fatalf("id %q not greater than previous %q", id, prev)
		}
		prev = id
	}
}

func TestListMessagesCursorWalk(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	alice := seedUser(t, db, "alice")
	g := seedGroup(t, db, alice.ID, "general")

	const total = 120
	ids := make([]string, 0, total)
	for i := 0; i < total; i++ {
		m, err := CreateMessage(ctx, db, MessageInput{
			GroupID: g.ID, SenderID: alice.ID, Type: "TEXT",
			Content: fmt.Sprintf("msg %03d", i),
		})
		if err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
		ids = append(ids, m.ID)
	}

	// Walk backward in pages of 50 (fetching 51 to detect the next page).
	seen := make(map[string]bool)
	cursor := ""
	pages := 0
	for {
		rows, err := ListMessagesForGroup(ctx, db, g.ID, cursor, 51)
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		hasNext := len(rows) > 50
		if hasNext {
			rows = rows[:50]
		}
		for i, m := range rows {
			if seen[m.ID] {
				t.Fatalf("message %s returned twice", m.ID)
			}
			seen[m.ID] = true
			if i > 0 && rows[i-1].ID < m.ID {
				t.Fatalf("page not newest-first at index %d", i)
			}
		}
		pages++
		if !hasNext {
			break
		}
		cursor = rows[len(rows)-1].ID
	}

	if pages != 3 {
		t.Fatalf("expected 3 pages, got %d", pages)
	}
	if len(seen) != total {
		t.Fatalf("expected %d distinct messages, got %d", total, len(seen))
	}
	for _, id := range ids {
		if !seen[id] {
			t.Fatalf("message %s never returned", id)
		}
	}
}

func TestListMessagesScopedToGroup(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	alice := seedUser(t, db, "alice")
	g1 := seedGroup(t, db, alice.ID, "one")
	g2 := seedGroup(t, db, alice.ID, "two")

	if _, err := CreateMessage(ctx, db, MessageInput{GroupID: g1.ID, SenderID: alice.ID, Type: "TEXT", Content: "in one"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	rows, err := ListMessagesForGroup(ctx, db, g2.ID, "", 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("expected no messages in g2, got %d", len(rows))
	}
}

func TestUpdateMessageContent(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	alice := seedUser(t, db, "alice")
	g := seedGroup(t, db, alice.ID, "general")

	m, err := CreateMessage(ctx, db, MessageInput{GroupID: g.ID, SenderID: alice.ID, Type: "TEXT", Content: "before"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := UpdateMessageContent(ctx, db, m.ID, "after"); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, err := GetMessageByID(ctx, db, m.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Content != "after" {
		t.Fatalf("content = %q, want %q", got.Content, "after")
	}

	if err := UpdateMessageContent(ctx, db, "missing", "x"); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("update missing: err = %v, want ErrRecordNotFound", err)
	}
}

func TestDeleteMessageCascadesAttachments(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	alice := seedUser(t, db, "alice")
	g := seedGroup(t, db, alice.ID, "general")

	m, err := CreateMessage(ctx, db, MessageInput{GroupID: g.ID, SenderID: alice.ID, Type: "IMAGE", Content: "http://x/img"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	mime := "image/png"
	if _, err := AddAttachment(ctx, db, m.ID, "http://x/img.png", &mime, nil); err != nil {
		t.Fatalf("attach: %v", err)
	}

	if err := DeleteMessageCascade(ctx, db, m.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := GetMessageByID(ctx, db, m.ID); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("message survived delete: %v", err)
	}

	var n int64
	if err := db.Table("attachments").Where("message_id = ?", m.ID).Count(&n).Error; err != nil {
		t.Fatalf("count attachments: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected attachments gone, got %d", n)
	}
}
