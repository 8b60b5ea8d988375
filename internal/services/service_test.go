package services

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"gorm.io/gorm"

	"github.com/decidr/decidr-backend/internal/authz"
	"github.com/decidr/decidr-backend/internal/domain"
	"github.com/decidr/decidr-backend/internal/repo"
)

// recorder captures fan-out calls and answers joined-room queries from a
// fixed set.
type recorder struct {
	mu     sync.Mutex
	events []recordedEvent
	joined map[string]bool // "groupID/sessionID"
}

type recordedEvent struct {
	groupID string
	event   string
	payload any
	exclude string
}

func newRecorder() *recorder {
	return &recorder{joined: make(map[string]bool)}
}

func (r *recorder) Broadcast(groupID, event string, payload any, excludeSessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedEvent{groupID, event, payload, excludeSessionID})
}

func (r *recorder) IsJoined(groupID, sessionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.joined[groupID+"/"+sessionID]
}

func (r *recorder) join(groupID, sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.joined[groupID+"/"+sessionID] = true
}

func (r *recorder) byEvent(event string) []recordedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []recordedEvent
	for _, e := range r.events {
		if e.event == event {
			out = append(out, e)
		}
	}
	return out
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := repo.OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func seedUser(t *testing.T, db *gorm.DB, name string) *domain.User {
	t.Helper()
	u, err := repo.CreateUser(context.Background(), db, name, name+"@example.com", true)
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return u
}

func seedGroup(t *testing.T, db *gorm.DB, creatorID string) *domain.Group {
	t.Helper()
	g, err := repo.CreateGroup(context.Background(), db, creatorID, "general", nil, false)
	if err != nil {
		t.Fatalf("seed group: %v", err)
	}
	return g
}

func addMember(t *testing.T, db *gorm.DB, userID, groupID, role string) {
	t.Helper()
	if _, err := repo.AddMember(context.Background(), db, userID, groupID, role); err != nil {
		t.Fatalf("seed membership: %v", err)
	}
}

func newMessageService(t *testing.T) (*MessageService, *recorder, *gorm.DB) {
	t.Helper()
	db := newTestDB(t)
	rec := newRecorder()
	svc := &MessageService{DB: db, Oracle: authz.NewOracle(db), Rooms: rec}
	return svc, rec, db
}
