package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/campushub/campus-events/internal/apperr"
	"github.com/campushub/campus-events/internal/model"
)

func newTestMemory(t *testing.T) *Memory {
	t.Helper()
	return NewMemory(2 * time.Second)
}

func seedEvent(t *testing.T, m *Memory, id string, capacity int) {
	t.Helper()
	err := m.CreateEvent(context.Background(), &model.Event{
		ID:              id,
		Title:           "Tech Talk",
		MaxParticipants: capacity,
		Participants:    []string{},
		Status:          model.StatusUpcoming,
		CreatedBy:       "admin-1",
		CreatedAt:       time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("seed event: %v", err)
	}
}

func TestRegisterParticipantCapacityUnderConcurrency(t *testing.T) {
	m := newTestMemory(t)
	seedEvent(t, m, "evt-1", 2)

	results := make(chan error, 5)
	var g errgroup.Group
	for i := 0; i < 5; i++ {
		userID := fmt.Sprintf("user-%d", i)
		g.Go(func() error {
			_, err := m.RegisterParticipant(context.Background(), "evt-1", userID)
			results <- err
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("wait: %v", err)
	}
	close(results)

	var succeeded, conflicted int
	for err := range results {
		switch {
		case err == nil:
			succeeded++
		case apperr.IsKind(err, apperr.Conflict):
			conflicted++
		default:
			t.Fatalf("unexpected error kind: %v", err)
		}
	}
	if succeeded != 2 || conflicted != 3 {
		t.Fatalf("expected 2 successes and 3 conflicts, got %d and %d", succeeded, conflicted)
	}

	event, err := m.GetEvent(context.Background(), "evt-1")
	if err != nil {
		t.Fatalf("get event: %v", err)
	}
	if got := event.ParticipantCount(); got != 2 {
		t.Fatalf("roster size = %d, want 2", got)
	}
	n, err := m.CountRegistrations(context.Background())
	if err != nil {
		t.Fatalf("count registrations: %v", err)
	}
	if n != 2 {
		t.Fatalf("registration count = %d, want 2", n)
	}
}

func TestRegisterParticipantDuplicate(t *testing.T) {
	m := newTestMemory(t)
	seedEvent(t, m, "evt-1", 10)
	ctx := context.Background()

	if _, err := m.RegisterParticipant(ctx, "evt-1", "user-1"); err != nil {
		t.Fatalf("first register: %v", err)
	}
	_, err := m.RegisterParticipant(ctx, "evt-1", "user-1")
	if !apperr.IsKind(err, apperr.Conflict) {
		t.Fatalf("expected conflict, got %v", err)
	}

	event, _ := m.GetEvent(ctx, "evt-1")
	if got := event.ParticipantCount(); got != 1 {
		t.Fatalf("roster size = %d, want 1", got)
	}
}

func TestRegisterParticipantEventMissing(t *testing.T) {
	m := newTestMemory(t)
	_, err := m.RegisterParticipant(context.Background(), "no-such-event", "user-1")
	if !apperr.IsKind(err, apperr.NotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

// The roster and the registration records are two representations of the
// same membership; they must agree after every operation.
func TestRosterRegistrationConsistency(t *testing.T) {
	m := newTestMemory(t)
	seedEvent(t, m, "evt-1", 5)
	ctx := context.Background()

	assertConsistent := func(userID string, wantMember bool) {
		t.Helper()
		event, err := m.GetEvent(ctx, "evt-1")
		if err != nil {
			t.Fatalf("get event: %v", err)
		}
		onRoster := event.HasParticipant(userID)
		_, regErr := m.GetRegistration(ctx, "evt-1", userID)
		hasRecord := regErr == nil
		if onRoster != hasRecord {
			t.Fatalf("representations diverged: roster=%v record=%v", onRoster, hasRecord)
		}
		if onRoster != wantMember {
			t.Fatalf("membership = %v, want %v", onRoster, wantMember)
		}
	}

	assertConsistent("user-1", false)
	if _, err := m.RegisterParticipant(ctx, "evt-1", "user-1"); err != nil {
		t.Fatalf("register: %v", err)
	}
	assertConsistent("user-1", true)
	if err := m.UnregisterParticipant(ctx, "evt-1", "user-1"); err != nil {
		t.Fatalf("unregister: %v", err)
	}
	assertConsistent("user-1", false)
}

func TestUnregisterRoundTrip(t *testing.T) {
	m := newTestMemory(t)
	seedEvent(t, m, "evt-1", 3)
	ctx := context.Background()

	before, _ := m.GetEvent(ctx, "evt-1")
	if _, err := m.RegisterParticipant(ctx, "evt-1", "user-1"); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := m.UnregisterParticipant(ctx, "evt-1", "user-1"); err != nil {
		t.Fatalf("unregister: %v", err)
	}
	after, _ := m.GetEvent(ctx, "evt-1")

	if len(after.Participants) != len(before.Participants) {
		t.Fatalf("roster size changed: before=%d after=%d",
			len(before.Participants), len(after.Participants))
	}
	n, _ := m.CountRegistrations(ctx)
	if n != 0 {
		t.Fatalf("registration count = %d, want 0", n)
	}
}

func TestUnregisterAbsent(t *testing.T) {
	m := newTestMemory(t)
	seedEvent(t, m, "evt-1", 3)
	ctx := context.Background()

	if _, err := m.RegisterParticipant(ctx, "evt-1", "user-1"); err != nil {
		t.Fatalf("register: %v", err)
	}
	err := m.UnregisterParticipant(ctx, "evt-1", "never-registered")
	if !apperr.IsKind(err, apperr.NotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	// No state change.
	event, _ := m.GetEvent(ctx, "evt-1")
	if got := event.ParticipantCount(); got != 1 {
		t.Fatalf("roster size = %d, want 1", got)
	}
}

func TestListRegistrationsByUserNewestFirst(t *testing.T) {
	m := newTestMemory(t)
	seedEvent(t, m, "evt-1", 5)
	seedEvent(t, m, "evt-2", 5)
	seedEvent(t, m, "evt-3", 5)
	ctx := context.Background()

	for _, eventID := range []string{"evt-1", "evt-2", "evt-3"} {
		if _, err := m.RegisterParticipant(ctx, eventID, "user-1"); err != nil {
			t.Fatalf("register %s: %v", eventID, err)
		}
	}

	regs, err := m.ListRegistrationsByUser(ctx, "user-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(regs) != 3 {
		t.Fatalf("got %d registrations, want 3", len(regs))
	}
	want := []string{"evt-3", "evt-2", "evt-1"}
	for i, reg := range regs {
		if reg.EventID != want[i] {
			t.Fatalf("position %d: got %s, want %s", i, reg.EventID, want[i])
		}
	}
}

func TestDeleteEventCascade(t *testing.T) {
	m := newTestMemory(t)
	seedEvent(t, m, "evt-1", 5)
	seedEvent(t, m, "evt-2", 5)
	ctx := context.Background()

	for _, userID := range []string{"user-1", "user-2", "user-3"} {
		if _, err := m.RegisterParticipant(ctx, "evt-1", userID); err != nil {
			t.Fatalf("register: %v", err)
		}
	}
	if _, err := m.RegisterParticipant(ctx, "evt-2", "user-1"); err != nil {
		t.Fatalf("register: %v", err)
	}

	n, err := m.DeleteEventCascade(ctx, "evt-1")
	if err != nil {
		t.Fatalf("cascade: %v", err)
	}
	if n != 3 {
		t.Fatalf("cascade removed %d registrations, want 3", n)
	}

	regs, _ := m.ListRegistrationsByEvent(ctx, "evt-1")
	if len(regs) != 0 {
		t.Fatalf("found %d registrations for deleted event, want 0", len(regs))
	}
	// The other event is untouched.
	if remaining, _ := m.ListRegistrationsByEvent(ctx, "evt-2"); len(remaining) != 1 {
		t.Fatalf("unrelated event lost registrations")
	}

	// Retrying the cascade against the already-deleted event is a no-op.
	n, err = m.DeleteEventCascade(ctx, "evt-1")
	if err != nil {
		t.Fatalf("cascade retry: %v", err)
	}
	if n != 0 {
		t.Fatalf("cascade retry removed %d registrations, want 0", n)
	}
}

// A crash between the two cascade phases leaves dangling registrations; the
// sweep must find and remove them, and only them.
func TestOrphanSweepAfterInterruptedCascade(t *testing.T) {
	m := newTestMemory(t)
	seedEvent(t, m, "evt-1", 5)
	seedEvent(t, m, "evt-2", 5)
	ctx := context.Background()

	for _, userID := range []string{"user-1", "user-2"} {
		if _, err := m.RegisterParticipant(ctx, "evt-1", userID); err != nil {
			t.Fatalf("register: %v", err)
		}
	}
	if _, err := m.RegisterParticipant(ctx, "evt-2", "user-1"); err != nil {
		t.Fatalf("register: %v", err)
	}

	m.deleteEventOnly("evt-1")

	// Dangling state is detectable.
	if regs, _ := m.ListRegistrationsByEvent(ctx, "evt-1"); len(regs) != 2 {
		t.Fatalf("expected 2 dangling registrations, got %d", len(regs))
	}

	n, err := m.DeleteOrphanedRegistrations(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if n != 2 {
		t.Fatalf("sweep removed %d, want 2", n)
	}
	if regs, _ := m.ListRegistrationsByEvent(ctx, "evt-2"); len(regs) != 1 {
		t.Fatalf("sweep removed live registrations")
	}

	// Sweep is idempotent.
	if n, _ := m.DeleteOrphanedRegistrations(ctx); n != 0 {
		t.Fatalf("second sweep removed %d, want 0", n)
	}
}

func TestUpdateEventRejectsCapacityBelowRoster(t *testing.T) {
	m := newTestMemory(t)
	seedEvent(t, m, "evt-1", 5)
	ctx := context.Background()

	for _, userID := range []string{"user-1", "user-2", "user-3"} {
		if _, err := m.RegisterParticipant(ctx, "evt-1", userID); err != nil {
			t.Fatalf("register: %v", err)
		}
	}

	event, _ := m.GetEvent(ctx, "evt-1")
	event.MaxParticipants = 2
	err := m.UpdateEvent(ctx, event)
	if !apperr.IsKind(err, apperr.Validation) {
		t.Fatalf("expected validation error, got %v", err)
	}

	// Growing is fine.
	event.MaxParticipants = 10
	if err := m.UpdateEvent(ctx, event); err != nil {
		t.Fatalf("grow capacity: %v", err)
	}
}

func TestLockAcquisitionTimesOutInsteadOfHanging(t *testing.T) {
	m := NewMemory(50 * time.Millisecond)
	seedEvent(t, m, "evt-1", 5)
	ctx := context.Background()

	// Hold the event's exclusive region so the register call contends.
	release, err := m.lockEvent(ctx, "evt-1")
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	defer release()

	start := time.Now()
	_, err = m.RegisterParticipant(ctx, "evt-1", "user-1")
	if !apperr.IsKind(err, apperr.Unavailable) {
		t.Fatalf("expected unavailable, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Fatalf("lock wait took too long: %s", time.Since(start))
	}
}

func TestOperationsOnDifferentEventsDoNotContend(t *testing.T) {
	m := NewMemory(100 * time.Millisecond)
	seedEvent(t, m, "evt-1", 5)
	seedEvent(t, m, "evt-2", 5)
	ctx := context.Background()

	// Holding evt-1's region must not block evt-2 operations.
	release, err := m.lockEvent(ctx, "evt-1")
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	defer release()

	if _, err := m.RegisterParticipant(ctx, "evt-2", "user-1"); err != nil {
		t.Fatalf("register on unrelated event: %v", err)
	}
}
