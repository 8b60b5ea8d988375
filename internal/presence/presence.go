// Package presence wraps the shared Redis cache holding ephemeral chat state:
// which sockets a user has open, who is present in which room, and who is
// typing. Key shapes and TTLs are a contract shared with the room manager and
// the disconnect sweep:
//
//	user:{userId}:sockets            set of session ids        1h sliding
//	room:{groupId}:users             set of userIds in room    24h sliding
//	user:{userId}:rooms              set of groupIds           24h sliding
//	user:{userId}:sockets:{groupId}  session ids in that room  1h sliding
//	typing:{groupId}:{userId}        sentinel "1"              10s absolute
//
// The cache degrades gracefully: when Redis is unreachable, reads return
// empty results (nobody online) and writes are skipped. The in-process room
// registry stays authoritative for fan-out, so chat keeps working without the
// cache; only cross-instance presence visibility is lost.
package presence

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// TTLs for the ephemeral keys. These are contract, not tuning knobs.
const (
	SocketsTTL = time.Hour
	RoomsTTL   = 24 * time.Hour
	TypingTTL  = 10 * time.Second
)

// Cache is a typed facade over the Redis presence keys.
type Cache struct {
	rdb redis.UniversalClient
}

// New wraps an existing Redis client.
func New(rdb redis.UniversalClient) *Cache { return &Cache{rdb: rdb} }

// Connect dials Redis at addr and returns a Cache over it. The connection is
// verified with a short ping; failure is logged but not fatal, because the
// cache is allowed to be down.
func Connect(addr string, db int) *Cache {
	rdb := redis.NewClient(&redis.Options{Addr: addr, DB: db})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Warn().Err(err).Str("addr", addr).Msg("presence cache unreachable, running degraded")
	}
	return &Cache{rdb: rdb}
}

func userSocketsKey(userID string) string { return "user:" + userID + ":sockets" }
func roomUsersKey(groupID string) string  { return "room:" + groupID + ":users" }
func userRoomsKey(userID string) string   { return "user:" + userID + ":rooms" }
func userRoomSocketsKey(userID, groupID string) string {
	return "user:" + userID + ":sockets:" + groupID
}
func typingKey(groupID, userID string) string { return "typing:" + groupID + ":" + userID }

// degrade logs a failed cache round-trip. Callers treat the operation as a
// no-op afterwards.
func degrade(op string, err error) {
	if err != nil && err != redis.Nil {
		log.Warn().Err(err).Str("op", op).Msg("presence cache degraded")
	}
}

// AddUserSocket records a live session id for the user and refreshes the TTL.
func (c *Cache) AddUserSocket(ctx context.Context, userID, socketID string) {
	pipe := c.rdb.Pipeline()
	pipe.SAdd(ctx, userSocketsKey(userID), socketID)
	pipe.Expire(ctx, userSocketsKey(userID), SocketsTTL)
	_, err := pipe.Exec(ctx)
	degrade("AddUserSocket", err)
}

// RemoveUserSocket drops a session id from the user's socket set.
func (c *Cache) RemoveUserSocket(ctx context.Context, userID, socketID string) {
	degrade("RemoveUserSocket", c.rdb.SRem(ctx, userSocketsKey(userID), socketID).Err())
}

// UserSockets returns the user's live session ids across all rooms.
func (c *Cache) UserSockets(ctx context.Context, userID string) []string {
	out, err := c.rdb.SMembers(ctx, userSocketsKey(userID)).Result()
	if err != nil {
		degrade("UserSockets", err)
		return nil
	}
	return out
}

// JoinRoom mirrors a join into the cache: the user is present in the room,
// the room is among the user's rooms, and the session id is in the
// per-(user,room) socket set. All three TTLs are refreshed.
func (c *Cache) JoinRoom(ctx context.Context, userID, groupID, socketID string) {
	pipe := c.rdb.Pipeline()
	pipe.SAdd(ctx, roomUsersKey(groupID), userID)
	pipe.Expire(ctx, roomUsersKey(groupID), RoomsTTL)
	pipe.SAdd(ctx, userRoomsKey(userID), groupID)
	pipe.Expire(ctx, userRoomsKey(userID), RoomsTTL)
	pipe.SAdd(ctx, userRoomSocketsKey(userID, groupID), socketID)
	pipe.Expire(ctx, userRoomSocketsKey(userID, groupID), SocketsTTL)
	_, err := pipe.Exec(ctx)
	degrade("JoinRoom", err)
}

// LeaveRoom removes the session id from the per-(user,room) set. When
// lastLeave is true (no sessions of this user remain in the room) the user is
// also removed from the room's user set and the room from the user's rooms.
func (c *Cache) LeaveRoom(ctx context.Context, userID, groupID, socketID string, lastLeave bool) {
	pipe := c.rdb.Pipeline()
	pipe.SRem(ctx, userRoomSocketsKey(userID, groupID), socketID)
	if lastLeave {
		pipe.Del(ctx, userRoomSocketsKey(userID, groupID))
		pipe.SRem(ctx, roomUsersKey(groupID), userID)
		pipe.SRem(ctx, userRoomsKey(userID), groupID)
	}
	_, err := pipe.Exec(ctx)
	degrade("LeaveRoom", err)
}

// RoomUsers returns the ids of users currently present in the room.
func (c *Cache) RoomUsers(ctx context.Context, groupID string) []string {
	out, err := c.rdb.SMembers(ctx, roomUsersKey(groupID)).Result()
	if err != nil {
		degrade("RoomUsers", err)
		return nil
	}
	return out
}

// UserRooms returns the group ids the user is present in. The disconnect
// sweep walks this set.
func (c *Cache) UserRooms(ctx context.Context, userID string) []string {
	out, err := c.rdb.SMembers(ctx, userRoomsKey(userID)).Result()
	if err != nil {
		degrade("UserRooms", err)
		return nil
	}
	return out
}

// RoomSocketCount returns how many sessions the user has in the room
// according to the cache.
func (c *Cache) RoomSocketCount(ctx context.Context, userID, groupID string) int64 {
	n, err := c.rdb.SCard(ctx, userRoomSocketsKey(userID, groupID)).Result()
	if err != nil {
		degrade("RoomSocketCount", err)
		return 0
	}
	return n
}

// SetTyping marks the user as typing in the group for TypingTTL. Repeated
// calls refresh the TTL.
func (c *Cache) SetTyping(ctx context.Context, groupID, userID string) {
	degrade("SetTyping", c.rdb.Set(ctx, typingKey(groupID, userID), "1", TypingTTL).Err())
}

// ClearTyping removes the typing sentinel.
func (c *Cache) ClearTyping(ctx context.Context, groupID, userID string) {
	degrade("ClearTyping", c.rdb.Del(ctx, typingKey(groupID, userID)).Err())
}

// IsTyping reports whether the typing sentinel exists.
func (c *Cache) IsTyping(ctx context.Context, groupID, userID string) bool {
	n, err := c.rdb.Exists(ctx, typingKey(groupID, userID)).Result()
	if err != nil {
		degrade("IsTyping", err)
		return false
	}
	return n > 0
}

// TypingUsers returns the ids of users currently typing in the group.
func (c *Cache) TypingUsers(ctx context.Context, groupID string) []string {
	keys, err := c.rdb.Keys(ctx, "typing:"+groupID+":*").Result()
	if err != nil {
		degrade("TypingUsers", err)
		return nil
	}
	out := make([]string, 0, len(keys))
	prefix := "typing:" + groupID + ":"
	for _, k := range keys {
		out = append(out, strings.TrimPrefix(k, prefix))
	}
	return out
}

// TypingRooms returns the group ids in which the user has a live typing
// sentinel. The disconnect sweep uses this to clear ghost indicators.
func (c *Cache) TypingRooms(ctx context.Context, userID string) []string {
	keys, err := c.rdb.Keys(ctx, fmt.Sprintf("typing:*:%s", userID)).Result()
	if err != nil {
		degrade("TypingRooms", err)
		return nil
	}
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		parts := strings.SplitN(k, ":", 3)
		if len(parts) == 3 && parts[2] == userID {
			out = append(out, parts[1])
		}
	}
	return out
}

// ClearTypingEverywhere deletes every typing sentinel the user holds and
// returns the affected group ids.
func (c *Cache) ClearTypingEverywhere(ctx context.Context, userID string) []string {
	rooms := c.TypingRooms(ctx, userID)
	for _, groupID := range rooms {
		c.ClearTyping(ctx, groupID, userID)
	}
	return rooms
}
