// Package store defines the persistence interfaces for the three record
// kinds and provides Postgres and in-memory implementations. All methods
// return apperr-kinded errors so callers can branch without knowing the
// backend.
package store

import (
	"context"

	"github.com/campushub/campus-events/internal/model"
)

// UserStore persists user accounts.
type UserStore interface {
	// CreateUser inserts a new user; a duplicate email is a Conflict.
	CreateUser(ctx context.Context, u *model.User) error
	GetUser(ctx context.Context, id string) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	CountUsers(ctx context.Context) (int, error)
}

// EventStore persists events and owns the cascading delete.
type EventStore interface {
	CreateEvent(ctx context.Context, e *model.Event) error
	GetEvent(ctx context.Context, id string) (*model.Event, error)
	// ListEvents returns all events, newest first.
	ListEvents(ctx context.Context) ([]model.Event, error)
	// UpdateEvent writes the non-roster fields of e. The roster itself is
	// mutated only through the registration protocol. Shrinking
	// MaxParticipants below the live roster size is rejected under the same
	// per-event serialization as registration, with a Validation error.
	UpdateEvent(ctx context.Context, e *model.Event) error
	// DeleteEventCascade removes the event and every registration
	// referencing it, returning how many registrations were removed.
	// Re-running it against an already-deleted event is idempotent: any
	// remaining registrations for that event id are still removed.
	DeleteEventCascade(ctx context.Context, id string) (int, error)
	CountEvents(ctx context.Context) (int, error)
	CountEventsByStatus(ctx context.Context, status model.EventStatus) (int, error)
}

// RegistrationStore persists registrations and owns the capacity-checked
// registration protocol.
type RegistrationStore interface {
	// RegisterParticipant registers userID for eventID. Preconditions are
	// checked in order, each a distinct failure: event exists (NotFound),
	// not already registered (Conflict), capacity remains (Conflict). The
	// registration insert and the roster append are one logical
	// transaction, serialized per event; serialization failures are
	// Unavailable, never a hang.
	RegisterParticipant(ctx context.Context, eventID, userID string) (*model.Registration, error)
	// UnregisterParticipant removes the live registration for
	// (eventID, userID), or NotFound. Record delete and roster removal are
	// atomic as above.
	UnregisterParticipant(ctx context.Context, eventID, userID string) error
	GetRegistration(ctx context.Context, eventID, userID string) (*model.Registration, error)
	// ListRegistrationsByUser returns a user's live registrations, newest
	// first.
	ListRegistrationsByUser(ctx context.Context, userID string) ([]model.Registration, error)
	ListRegistrationsByEvent(ctx context.Context, eventID string) ([]model.Registration, error)
	CountRegistrations(ctx context.Context) (int, error)
	// DeleteOrphanedRegistrations removes registrations whose event no
	// longer exists (the repair path for an interrupted cascade) and
	// returns how many were removed.
	DeleteOrphanedRegistrations(ctx context.Context) (int, error)
}

// Store is the full persistence surface.
type Store interface {
	UserStore
	EventStore
	RegistrationStore
}
