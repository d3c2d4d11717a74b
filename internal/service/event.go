package service

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/campushub/campus-events/internal/apperr"
	"github.com/campushub/campus-events/internal/model"
	"github.com/campushub/campus-events/internal/store"
)

// EventService owns the event lifecycle: creation, updates, and the
// cascading delete that keeps registrations consistent with events.
type EventService struct {
	events store.EventStore
	regs   store.RegistrationStore
	now    func() time.Time
	newID  func() string
}

// NewEventService constructs an EventService.
func NewEventService(events store.EventStore, regs store.RegistrationStore) *EventService {
	return &EventService{
		events: events,
		regs:   regs,
		now:    time.Now,
		newID:  func() string { return uuid.New().String() },
	}
}

// Create publishes a new event with an empty roster and status upcoming.
// An omitted capacity defaults to 100; an explicit non-positive one is
// rejected.
func (s *EventService) Create(ctx context.Context, req model.CreateEventRequest, createdBy string) (*model.Event, error) {
	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		return nil, apperr.New(apperr.Validation, "title is required")
	}
	capacity := model.DefaultMaxParticipants
	if req.MaxParticipants != nil {
		if *req.MaxParticipants <= 0 {
			return nil, apperr.New(apperr.Validation, "maxParticipants must be a positive integer")
		}
		capacity = *req.MaxParticipants
	}

	event := &model.Event{
		ID:              s.newID(),
		Title:           req.Title,
		Description:     req.Description,
		Date:            req.Date,
		Time:            req.Time,
		Venue:           req.Venue,
		Organizer:       req.Organizer,
		MaxParticipants: capacity,
		Participants:    []string{},
		Status:          model.StatusUpcoming,
		CreatedBy:       createdBy,
		CreatedAt:       s.now().UTC(),
	}
	if err := s.events.CreateEvent(ctx, event); err != nil {
		return nil, err
	}
	return event, nil
}

// Get returns a single event by ID.
func (s *EventService) Get(ctx context.Context, id string) (*model.Event, error) {
	if id == "" {
		return nil, apperr.New(apperr.Validation, "event id is required")
	}
	return s.events.GetEvent(ctx, id)
}

// List returns all events, newest first.
func (s *EventService) List(ctx context.Context) ([]model.Event, error) {
	return s.events.ListEvents(ctx)
}

// Update applies a partial update. Shrinking maxParticipants below the live
// roster size is rejected: it would silently break the capacity invariant
// for every registration already made. The store re-checks the bound under
// the event's serialization region, so a racing register cannot slip past
// this.
func (s *EventService) Update(ctx context.Context, id string, patch model.UpdateEventRequest) (*model.Event, error) {
	event, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if patch.Title != nil {
		title := strings.TrimSpace(*patch.Title)
		if title == "" {
			return nil, apperr.New(apperr.Validation, "title cannot be empty")
		}
		event.Title = title
	}
	if patch.Description != nil {
		event.Description = *patch.Description
	}
	if patch.Date != nil {
		event.Date = *patch.Date
	}
	if patch.Time != nil {
		event.Time = *patch.Time
	}
	if patch.Venue != nil {
		event.Venue = *patch.Venue
	}
	if patch.Organizer != nil {
		event.Organizer = *patch.Organizer
	}
	if patch.MaxParticipants != nil {
		if *patch.MaxParticipants <= 0 {
			return nil, apperr.New(apperr.Validation, "maxParticipants must be a positive integer")
		}
		if *patch.MaxParticipants < event.ParticipantCount() {
			return nil, apperr.Newf(apperr.Validation,
				"maxParticipants cannot be reduced below the current participant count (%d)",
				event.ParticipantCount())
		}
		event.MaxParticipants = *patch.MaxParticipants
	}
	if patch.Status != nil {
		if !patch.Status.Valid() {
			return nil, apperr.Newf(apperr.Validation, "unknown status %q", *patch.Status)
		}
		event.Status = *patch.Status
	}

	if err := s.events.UpdateEvent(ctx, event); err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

// Delete removes an event and cascades to its registrations. The cascade is
// retryable: an Unavailable failure mid-way leaves dangling registrations
// that a retry or the orphan sweep removes.
func (s *EventService) Delete(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	n, err := s.events.DeleteEventCascade(ctx, id)
	if err != nil {
		return err
	}
	slog.Info("event deleted", "event_id", id, "registrations_removed", n)
	return nil
}

// SweepOrphanedRegistrations deletes registrations whose event no longer
// exists. Idempotent; safe to run at startup or on demand.
func (s *EventService) SweepOrphanedRegistrations(ctx context.Context) (int, error) {
	n, err := s.regs.DeleteOrphanedRegistrations(ctx)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		slog.Warn("removed orphaned registrations", "count", n)
	}
	return n, nil
}
