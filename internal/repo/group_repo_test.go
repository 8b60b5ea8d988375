package repo

import (
	"context"
	"errors"
	"testing"

	"gorm.io/gorm"

	"github.com/decidr/decidr-backend/internal/domain"
)

func TestCreateGroupMakesCreatorOwner(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	alice := seedUser(t, db, "alice")
	g := seedGroup(t, db, alice.ID, "general")

	m, err := GetMembership(ctx, db, alice.ID, g.ID)
	if err != nil {
		t.Fatalf("get membership: %v", err)
	}
	if m.Role != domain.RoleOwner {
		t.Fatalf("creator role = %q, want OWNER", m.Role)
	}
	if m.User.Name != "alice" {
		t.Fatalf("membership user not preloaded: %+v", m.User)
	}
}

func TestAddMemberDuplicate(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	alice := seedUser(t, db, "alice")
	bob := seedUser(t, db, "bob")
	g := seedGroup(t, db, alice.ID, "general")

	if _, err := AddMember(ctx, db, bob.ID, g.ID, domain.RoleMember); err != nil {
		t.Fatalf("add member: %v", err)
	}
	if _, err := AddMember(ctx, db, bob.ID, g.ID, domain.RoleMember); !errors.Is(err, ErrDuplicateMember) {
		t.Fatalf("duplicate add: err = %v, want ErrDuplicateMember", err)
	}
}

func TestListGroupsForUser(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	alice := seedUser(t, db, "alice")
	bob := seedUser(t, db, "bob")
	g1 := seedGroup(t, db, alice.ID, "one")
	seedGroup(t, db, bob.ID, "two")

	groups, err := ListGroupsForUser(ctx, db, alice.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(groups) != 1 || groups[0].ID != g1.ID {
		t.Fatalf("expected only %s, got %+v", g1.ID, groups)
	}
}

func TestRemoveMember(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	alice := seedUser(t, db, "alice")
	bob := seedUser(t, db, "bob")
	g := seedGroup(t, db, alice.ID, "general")

	if _, err := AddMember(ctx, db, bob.ID, g.ID, domain.RoleMember); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := RemoveMember(ctx, db, bob.ID, g.ID); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := RemoveMember(ctx, db, bob.ID, g.ID); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("second remove: err = %v, want ErrRecordNotFound", err)
	}
}

func TestUpdateMemberRoleAndCountOwners(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	alice := seedUser(t, db, "alice")
	bob := seedUser(t, db, "bob")
	g := seedGroup(t, db, alice.ID, "general")

	if _, err := AddMember(ctx, db, bob.ID, g.ID, domain.RoleMember); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := UpdateMemberRole(ctx, db, bob.ID, g.ID, domain.RoleAdmin); err != nil {
		t.Fatalf("update role: %v", err)
	}
	m, err := GetMembership(ctx, db, bob.ID, g.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if m.Role != domain.RoleAdmin {
		t.Fatalf("role = %q, want ADMIN", m.Role)
	}

	n, err := CountOwners(ctx, db, g.ID)
	if err != nil {
		t.Fatalf("count owners: %v", err)
	}
	if n != 1 {
		t.Fatalf("owners = %d, want 1", n)
	}
}

func TestDeleteGroupCascade(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	alice := seedUser(t, db, "alice")
	g := seedGroup(t, db, alice.ID, "general")

	m, err := CreateMessage(ctx, db, MessageInput{GroupID: g.ID, SenderID: alice.ID, Type: "TEXT", Content: "bye"})
	if err != nil {
		t.Fatalf("create message: %v", err)
	}
	if _, err := AddAttachment(ctx, db, m.ID, "http://x/a", nil, nil); err != nil {
		t.Fatalf("attach: %v", err)
	}

	if err := DeleteGroupCascade(ctx, db, g.ID); err != nil {
		t.Fatalf("delete group: %v", err)
	}

	for _, table := range []string{"groups", "group_members", "messages", "attachments"} {
		var n int64
		col := "group_id"
		if table == "groups" {
			col = "id"
		}
		if table == "attachments" {
			col = "message_id"
			if err := db.Table(table).Where(col+" = ?", m.ID).Count(&n).Error; err != nil {
				t.Fatalf("count %s: %v", table, err)
			}
		} else {
			if err := db.Table(table).Where(col+" = ?", g.ID).Count(&n).Error; err != nil {
				t.Fatalf("count %s: %v", table, err)
			}
		}
		if n != 0 {
			t.Fatalf("table %s not emptied, %d rows remain", table, n)
		}
	}
}

func TestGetActiveSessionLifecycle(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	alice := seedUser(t, db, "alice")

	exp := timeNowPlusHour()
	if _, err := CreateUserSession(ctx, db, alice.ID, "tok-1", exp); err != nil {
		t.Fatalf("create session: %v", err)
	}
	if _, err := GetActiveSession(ctx, db, "tok-1"); err != nil {
		t.Fatalf("active session: %v", err)
	}
	if err := RevokeSession(ctx, db, "tok-1"); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if _, err := GetActiveSession(ctx, db, "tok-1"); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("revoked session still active: %v", err)
	}
}
