// Package domain defines the persistence models for users, groups, group
// memberships, messages, and attachments. These types are mapped with GORM
// and form the durable data layer of the chat backend.
package domain

import (
	"time"

	"gorm.io/gorm"
)

// Member roles within a group. At most one OWNER exists per group; the
// creator's first membership is OWNER.
const (
	RoleOwner  = "OWNER"
	RoleAdmin  = "ADMIN"
	RoleMember = "MEMBER"
)

// Message types carried on the wire. SYSTEM messages are synthesized for
// fan-out only and are never persisted (their sender is not a real user row).
const (
	MessageTypeText   = "TEXT"
	MessageTypeImage  = "IMAGE"
	MessageTypeFile   = "FILE"
	MessageTypeSystem = "SYSTEM"
)

// MaxTextContentLen is the maximum rune length accepted for TEXT messages.
const MaxTextContentLen = 5000

// User represents an account. The ID is immutable; email is unique.
type User struct {
	ID            string         `json:"id"             gorm:"type:char(36);primaryKey"`
	Name          string         `json:"name"           gorm:"type:varchar(128);not null"`
	Email         string         `json:"email"          gorm:"type:varchar(255);not null;uniqueIndex"`
	EmailVerified bool           `json:"email_verified" gorm:"not null;default:false"`
	Image         *string        `json:"image,omitempty" gorm:"type:varchar(512)"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	DeletedAt     gorm.DeletedAt `json:"-"              gorm:"index"`
}

// TableName returns the database table name for User.
func (User) TableName() string { return "users" }

// Group represents a broadcast group. Deleting a group cascades its messages
// and memberships.
type Group struct {
	ID          string         `json:"id"          gorm:"type:char(36);primaryKey"`
	Name        string         `json:"name"        gorm:"type:varchar(128);not null"`
	Description *string        `json:"description,omitempty" gorm:"type:text"`
	IsPrivate   bool           `json:"is_private"  gorm:"not null;default:false"`
	CreatorID   string         `json:"creator_id"  gorm:"type:char(36);not null;index"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `json:"-"           gorm:"index"`

	Creator User `json:"-" gorm:"foreignKey:CreatorID;references:ID"`
}

// TableName returns the database table name for Group.
func (Group) TableName() string { return "groups" }

// GroupMember links a user to a group with a role. The (user, group) pair is
// unique; membership rows are cascade-deleted with their group.
type GroupMember struct {
	ID       string    `json:"id"        gorm:"type:char(36);primaryKey"`
	UserID   string    `json:"user_id"   gorm:"type:char(36);not null;uniqueIndex:ux_member_user_group,priority:1"`
	GroupID  string    `json:"group_id"  gorm:"type:char(36);not null;uniqueIndex:ux_member_user_group,priority:2;index"`
	Role     string    `json:"role"      gorm:"type:varchar(16);not null;default:'MEMBER';check:role IN ('OWNER','ADMIN','MEMBER')"`
	JoinedAt time.Time `json:"joined_at" gorm:"not null"`

	User  User  `json:"user,omitempty" gorm:"foreignKey:UserID;references:ID;constraint:OnDelete:CASCADE"`
	Group Group `json:"-"              gorm:"foreignKey:GroupID;references:ID;constraint:OnDelete:CASCADE"`
}

// TableName returns the database table name for GroupMember.
func (GroupMember) TableName() string { return "group_members" }

// Message is a persisted chat message. IDs are UUIDv7 so the primary key
// sorts consistently with CreatedAt and can serve as a pagination cursor.
// ReplyToID, when set, references a message in the same group.
type Message struct {
	ID        string         `json:"id"         gorm:"type:char(36);primaryKey"`
	GroupID   string         `json:"group_id"   gorm:"type:char(36);not null;index:idx_group_msgs,priority:1"`
	SenderID  string         `json:"sender_id"  gorm:"type:char(36);not null;index"`
	Type      string         `json:"type"       gorm:"type:varchar(16);not null;default:'TEXT';check:type IN ('TEXT','IMAGE','FILE')"`
	Content   string         `json:"content"    gorm:"type:text;not null"`
	ReplyToID *string        `json:"reply_to_id,omitempty" gorm:"type:char(36);index"`
	CreatedAt time.Time      `json:"created_at" gorm:"index:idx_group_msgs,priority:2"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-"          gorm:"index"`

	Sender  User     `json:"user"               gorm:"foreignKey:SenderID;references:ID"`
	ReplyTo *Message `json:"reply_to,omitempty" gorm:"foreignKey:ReplyToID;references:ID"`
	// Group is the owning group. Messages are cascade-deleted if the group
	// is removed.
	Group       Group        `json:"-" gorm:"foreignKey:GroupID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	Attachments []Attachment `json:"attachments,omitempty" gorm:"foreignKey:MessageID"`
}

// TableName returns the database table name for Message.
func (Message) TableName() string { return "messages" }

// Attachment is a file or image reference carried by a message. Attachments
// are cascade-deleted with their message.
type Attachment struct {
	ID        string    `json:"id"         gorm:"type:char(36);primaryKey"`
	MessageID string    `json:"message_id" gorm:"type:char(36);not null;index"`
	URL       string    `json:"url"        gorm:"type:varchar(1024);not null"`
	MimeType  *string   `json:"mime_type,omitempty" gorm:"type:varchar(128)"`
	Size      *int64    `json:"size,omitempty"`
	CreatedAt time.Time `json:"created_at"`

	Message Message `json:"-" gorm:"foreignKey:MessageID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Attachment.
func (Attachment) TableName() string { return "attachments" }

// UserSession records an issued refresh token. Only the refresh token is
// stored; access tokens are verified statelessly.
type UserSession struct {
	ID           string     `json:"id"         gorm:"type:char(36);primaryKey"`
	UserID       string     `json:"user_id"    gorm:"type:char(36);not null;index"`
	RefreshToken string     `json:"-"          gorm:"type:varchar(512);not null;uniqueIndex"`
	ExpiresAt    time.Time  `json:"expires_at" gorm:"not null;index"`
	RevokedAt    *time.Time `json:"-"`
	CreatedAt    time.Time  `json:"created_at"`

	User User `json:"-" gorm:"foreignKey:UserID;references:ID;constraint:OnDelete:CASCADE"`
}

// TableName returns the database table name for UserSession.
func (UserSession) TableName() string { return "user_sessions" }
