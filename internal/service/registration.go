package service

import (
	"context"

	"github.com/campushub/campus-events/internal/apperr"
	"github.com/campushub/campus-events/internal/model"
	"github.com/campushub/campus-events/internal/store"
)

// RegistrationService owns the participant-facing registration protocol.
// The capacity and duplicate checks themselves run inside the store's
// per-event serialization region; this layer validates input and shapes
// read views.
type RegistrationService struct {
	events store.EventStore
	regs   store.RegistrationStore
}

// NewRegistrationService constructs a RegistrationService.
func NewRegistrationService(events store.EventStore, regs store.RegistrationStore) *RegistrationService {
	return &RegistrationService{events: events, regs: regs}
}

// Register registers userID for eventID. Fails NotFound when the event does
// not exist, Conflict on a duplicate registration or a full event.
func (s *RegistrationService) Register(ctx context.Context, eventID, userID string) (*model.Registration, error) {
	if eventID == "" {
		return nil, apperr.New(apperr.Validation, "event id is required")
	}
	if userID == "" {
		return nil, apperr.New(apperr.Validation, "user id is required")
	}
	return s.regs.RegisterParticipant(ctx, eventID, userID)
}

// Unregister removes the caller's registration for eventID. Fails NotFound
// when no live registration exists; nothing changes in that case.
func (s *RegistrationService) Unregister(ctx context.Context, eventID, userID string) error {
	if eventID == "" {
		return apperr.New(apperr.Validation, "event id is required")
	}
	if userID == "" {
		return apperr.New(apperr.Validation, "user id is required")
	}
	return s.regs.UnregisterParticipant(ctx, eventID, userID)
}

// ListForUser returns the user's live registrations, newest first, each
// paired with its event. Registrations whose event has vanished (an
// interrupted cascade awaiting the sweep) are filtered out so a reader
// never observes them.
func (s *RegistrationService) ListForUser(ctx context.Context, userID string) ([]model.UserRegistration, error) {
	regs, err := s.regs.ListRegistrationsByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	out := make([]model.UserRegistration, 0, len(regs))
	for _, reg := range regs {
		event, err := s.events.GetEvent(ctx, reg.EventID)
		if err != nil {
			if apperr.IsKind(err, apperr.NotFound) {
				continue
			}
			return nil, err
		}
		out = append(out, model.UserRegistration{Registration: reg, Event: *event})
	}
	return out, nil
}

// AnnotateForParticipant decorates events with the caller's registration
// state and the current roster size. Derived on read, never persisted; a
// brief staleness window against concurrent registrations is acceptable
// here.
func (s *RegistrationService) AnnotateForParticipant(ctx context.Context, events []model.Event, userID string) ([]model.EventView, error) {
	regs, err := s.regs.ListRegistrationsByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	registered := make(map[string]bool, len(regs))
	for _, reg := range regs {
		registered[reg.EventID] = true
	}

	views := make([]model.EventView, len(events))
	for i, e := range events {
		views[i] = model.EventView{
			Event:            e,
			IsRegistered:     registered[e.ID],
			ParticipantCount: e.ParticipantCount(),
		}
	}
	return views, nil
}
