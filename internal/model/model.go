// Package model defines the core domain types for the campus events backend.
package model

import (
	"slices"
	"time"
)

// Role classifies what a user is allowed to do.
type Role string

const (
	RoleAdmin       Role = "admin"
	RoleParticipant Role = "participant"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleParticipant
}

// EventStatus is the lifecycle state of an event.
type EventStatus string

const (
	StatusUpcoming  EventStatus = "upcoming"
	StatusCompleted EventStatus = "completed"
	StatusCancelled EventStatus = "cancelled"
)

// Valid reports whether s is a known event status.
func (s EventStatus) Valid() bool {
	return s == StatusUpcoming || s == StatusCompleted || s == StatusCancelled
}

// User is an authenticated account. PasswordHash is a bcrypt hash and is
// never serialized.
type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role"`
	CreatedAt    time.Time `json:"createdAt"`
}

// DefaultMaxParticipants is used when an event is created without an
// explicit capacity.
const DefaultMaxParticipants = 100

// Event is an admin-published event. Participants is the ordered roster of
// registered user IDs; it must always agree with the registration records
// for the event and never exceed MaxParticipants.
type Event struct {
	ID              string      `json:"id"`
	Title           string      `json:"title"`
	Description     string      `json:"description"`
	Date            string      `json:"date"`
	Time            string      `json:"time"`
	Venue           string      `json:"venue"`
	Organizer       string      `json:"organizer"`
	MaxParticipants int         `json:"maxParticipants"`
	Participants    []string    `json:"participants"`
	Status          EventStatus `json:"status"`
	CreatedBy       string      `json:"createdBy"`
	CreatedAt       time.Time   `json:"createdAt"`
}

// ParticipantCount returns the current roster size.
func (e *Event) ParticipantCount() int {
	return len(e.Participants)
}

// IsFull reports whether the event has no remaining capacity.
func (e *Event) IsFull() bool {
	return len(e.Participants) >= e.MaxParticipants
}

// HasParticipant reports whether userID is on the roster.
func (e *Event) HasParticipant(userID string) bool {
	return slices.Contains(e.Participants, userID)
}

// Registration links one user to one event.
type Registration struct {
	ID           string    `json:"id"`
	EventID      string    `json:"eventId"`
	UserID       string    `json:"userId"`
	RegisteredAt time.Time `json:"registeredAt"`
}

// SignupRequest is the payload for creating an account.
type SignupRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     Role   `json:"role"`
}

// LoginRequest is the payload for logging in.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// UserView is the public projection of a user returned by auth endpoints.
type UserView struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  Role   `json:"role"`
}

// View returns the public projection of u.
func (u *User) View() UserView {
	return UserView{ID: u.ID, Name: u.Name, Email: u.Email, Role: u.Role}
}

// AuthResponse is returned by signup and login.
type AuthResponse struct {
	Message string   `json:"message"`
	Token   string   `json:"token"`
	User    UserView `json:"user"`
}

// CreateEventRequest is the payload for creating a new event.
// MaxParticipants is a pointer so an omitted capacity (default 100) can be
// told apart from an explicit invalid one.
type CreateEventRequest struct {
	Title           string `json:"title"`
	Description     string `json:"description"`
	Date            string `json:"date"`
	Time            string `json:"time"`
	Venue           string `json:"venue"`
	Organizer       string `json:"organizer"`
	MaxParticipants *int   `json:"maxParticipants"`
}

// UpdateEventRequest is a partial update; nil fields are left unchanged.
type UpdateEventRequest struct {
	Title           *string      `json:"title"`
	Description     *string      `json:"description"`
	Date            *string      `json:"date"`
	Time            *string      `json:"time"`
	Venue           *string      `json:"venue"`
	Organizer       *string      `json:"organizer"`
	MaxParticipants *int         `json:"maxParticipants"`
	Status          *EventStatus `json:"status"`
}

// EventView is an event annotated with registration state for a participant
// caller. Derived on read, never persisted.
type EventView struct {
	Event
	IsRegistered     bool `json:"isRegistered"`
	ParticipantCount int  `json:"participantCount"`
}

// UserRegistration pairs a registration with its event for list views.
type UserRegistration struct {
	Registration
	Event Event `json:"event"`
}

// AnalyticsSummary holds the admin dashboard counters.
type AnalyticsSummary struct {
	TotalEvents        int `json:"totalEvents"`
	UpcomingEvents     int `json:"upcomingEvents"`
	CompletedEvents    int `json:"completedEvents"`
	TotalUsers         int `json:"totalUsers"`
	TotalRegistrations int `json:"totalRegistrations"`
}

// ErrorResponse is the standard JSON error envelope.
type ErrorResponse struct {
	Message string `json:"message"`
}
