package service

import (
	"context"

	"github.com/campushub/campus-events/internal/apperr"
	"github.com/campushub/campus-events/internal/model"
)

// fakeEventStore implements store.EventStore with overridable funcs.
type fakeEventStore struct {
	getFunc     func(ctx context.Context, id string) (*model.Event, error)
	cascadeFunc func(ctx context.Context, id string) (int, error)
}

func (f *fakeEventStore) CreateEvent(ctx context.Context, e *model.Event) error { return nil }

func (f *fakeEventStore) GetEvent(ctx context.Context, id string) (*model.Event, error) {
	if f.getFunc != nil {
		return f.getFunc(ctx, id)
	}
	return nil, apperr.New(apperr.NotFound, "event not found")
}

func (f *fakeEventStore) ListEvents(ctx context.Context) ([]model.Event, error) { return nil, nil }

func (f *fakeEventStore) UpdateEvent(ctx context.Context, e *model.Event) error { return nil }

func (f *fakeEventStore) DeleteEventCascade(ctx context.Context, id string) (int, error) {
	if f.cascadeFunc != nil {
		return f.cascadeFunc(ctx, id)
	}
	return 0, nil
}

func (f *fakeEventStore) CountEvents(ctx context.Context) (int, error) { return 0, nil }

func (f *fakeEventStore) CountEventsByStatus(ctx context.Context, status model.EventStatus) (int, error) {
	return 0, nil
}

// fakeRegistrationStore implements store.RegistrationStore with overridable
// funcs.
type fakeRegistrationStore struct {
	listByUserFunc func(ctx context.Context, userID string) ([]model.Registration, error)
	sweepFunc      func(ctx context.Context) (int, error)
}

func (f *fakeRegistrationStore) RegisterParticipant(ctx context.Context, eventID, userID string) (*model.Registration, error) {
	return nil, apperr.New(apperr.NotFound, "event not found")
}

func (f *fakeRegistrationStore) UnregisterParticipant(ctx context.Context, eventID, userID string) error {
	return apperr.New(apperr.NotFound, "registration not found")
}

func (f *fakeRegistrationStore) GetRegistration(ctx context.Context, eventID, userID string) (*model.Registration, error) {
	return nil, apperr.New(apperr.NotFound, "registration not found")
}

func (f *fakeRegistrationStore) ListRegistrationsByUser(ctx context.Context, userID string) ([]model.Registration, error) {
	if f.listByUserFunc != nil {
		return f.listByUserFunc(ctx, userID)
	}
	return nil, nil
}

func (f *fakeRegistrationStore) ListRegistrationsByEvent(ctx context.Context, eventID string) ([]model.Registration, error) {
	return nil, nil
}

func (f *fakeRegistrationStore) CountRegistrations(ctx context.Context) (int, error) { return 0, nil }

func (f *fakeRegistrationStore) DeleteOrphanedRegistrations(ctx context.Context) (int, error) {
	if f.sweepFunc != nil {
		return f.sweepFunc(ctx)
	}
	return 0, nil
}
