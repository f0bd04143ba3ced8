package store

import (
	"context"
	"time"
)

// Role classifies platform users.
type Role string

const (
	RolePatient Role = "patient"
	RoleDoctor  Role = "doctor"
	RoleAdmin   Role = "admin"
)

// User represents a user in the system.
type User struct {
	ID           int64
	Username     string
	Email        string
	PasswordHash string
	Role         Role
	CreatedAt    time.Time
}

// Message represents a persisted chat message between two users.
// Messages are append-only: after creation only the Read flag may change.
type Message struct {
	ID         int64
	SenderID   int64
	ReceiverID int64
	Content    string
	Read       bool
	CreatedAt  time.Time
}

// UserStore handles user persistence.
type UserStore interface {
	// CreateUser creates a new user with hashed password.
	CreateUser(ctx context.Context, username, email, passwordHash string, role Role) (*User, error)

	// GetUserByID retrieves a user by ID.
	GetUserByID(ctx context.Context, id int64) (*User, error)

	// GetUserByEmail retrieves a user by email.
	GetUserByEmail(ctx context.Context, email string) (*User, error)

	// GetUsersByIDs retrieves users for a set of IDs. Missing IDs are skipped.
	GetUsersByIDs(ctx context.Context, ids []int64) ([]*User, error)

	// SearchUsers searches for users by username.
	SearchUsers(ctx context.Context, query string) ([]*User, error)
}

// MessageStore handles message persistence.
type MessageStore interface {
	// SaveMessage persists a new message and returns the stored record with
	// its assigned ID and server-side timestamp.
	SaveMessage(ctx context.Context, senderID, receiverID int64, content string) (*Message, error)

	// ListBetween retrieves all messages exchanged between two users in
	// either direction, oldest first (ID as secondary key).
	ListBetween(ctx context.Context, userA, userB int64) ([]*Message, error)

	// ListInvolving retrieves all messages where the user is sender or
	// receiver, newest first (ID as secondary key).
	ListInvolving(ctx context.Context, userID int64) ([]*Message, error)

	// MarkRead flags every message sent by peerID to userID as read.
	MarkRead(ctx context.Context, userID, peerID int64) error

	// CountMessages returns the total number of stored messages.
	CountMessages(ctx context.Context) (int64, error)
}

// Store aggregates all storage interfaces.
type Store interface {
	UserStore
	MessageStore

	// Close closes the underlying database connection.
	Close() error
}
