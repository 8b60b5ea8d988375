// Package services defines the business logic for groups, memberships, and
// messages. This file centralizes common service-level error values so they
// can be consistently returned by service methods and checked by callers.
//
// These errors are intended for internal use by the service layer; translation
// into wire error codes or HTTP statuses is performed at the handler/gateway
// layer.
package services

import "errors"

// Validation errors.
var (
	// ErrEmptyContent is returned when a message body is empty after trimming.
	ErrEmptyContent = errors.New("message content is empty")

	// ErrContentTooLong is returned when a TEXT message exceeds the maximum
	// content length.
	ErrContentTooLong = errors.New("message content too long")

	// ErrInvalidType is returned when the message type is not one of
	// TEXT, IMAGE, FILE.
	ErrInvalidType = errors.New("invalid message type")

	// ErrBadReplyTarget is returned when replyToId does not reference an
	// existing message in the same group.
	ErrBadReplyTarget = errors.New("reply target not found in this group")
)

// Authorization errors.
var (
	// ErrNotMember is returned when the user is not a member of the group.
	ErrNotMember = errors.New("not a member of this group")

	// ErrNotJoined is returned when a socket sends to a room it has not
	// joined. Membership alone is not enough for the socket path.
	ErrNotJoined = errors.New("not joined to this room")

	// ErrForbidden is returned when the user lacks the role required for a
	// management operation.
	ErrForbidden = errors.New("forbidden")
)

// Lookup and conflict errors.
var (
	// ErrMessageNotFound indicates the requested message does not exist.
	ErrMessageNotFound = errors.New("message not found")

	// ErrGroupNotFound indicates the requested group does not exist.
	ErrGroupNotFound = errors.New("group not found")

	// ErrUserNotFound indicates the referenced user does not exist.
	ErrUserNotFound = errors.New("user not found")

	// ErrMemberExists is returned when adding a user who is already a member.
	ErrMemberExists = errors.New("already a member")

	// ErrSoleOwner is returned when an operation would leave the group
	// without an owner.
	ErrSoleOwner = errors.New("cannot remove the sole owner")
)

// IsValidation reports whether err belongs to the validation class.
func IsValidation(err error) bool {
	return errors.Is(err, ErrEmptyContent) ||
		errors.Is(err, ErrContentTooLong) ||
		errors.Is(err, ErrInvalidType) ||
		errors.Is(err, ErrBadReplyTarget)
}

// IsForbidden reports whether err belongs to the authorization class.
func IsForbidden(err error) bool {
	return errors.Is(err, ErrNotMember) ||
		errors.Is(err, ErrNotJoined) ||
		errors.Is(err, ErrForbidden)
}

// IsNotFound reports whether err belongs to the missing-resource class.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrMessageNotFound) ||
		errors.Is(err, ErrGroupNotFound) ||
		errors.Is(err, ErrUserNotFound)
}

// IsConflict reports whether err belongs to the conflict class.
func IsConflict(err error) bool {
	return errors.Is(err, ErrMemberExists) || errors.Is(err, ErrSoleOwner)
}
