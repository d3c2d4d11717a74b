package store

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/campushub/campus-events/internal/apperr"
	"github.com/campushub/campus-events/internal/model"
)

// Memory implements Store on in-process maps. It backs STORAGE=memory dev
// mode and the test suite.
//
// Per-event serialization uses a keyed lock table: each event id owns a
// single-slot channel acquired with a timeout, so registration protocol
// operations on the same event are mutually exclusive while different
// events proceed in parallel. The cascade delete is deliberately two-phase
// (event first, then its registrations) to model a backend without
// multi-record transactions; DeleteOrphanedRegistrations is the repair path.
type Memory struct {
	lockTimeout time.Duration

	mu           sync.RWMutex
	users        map[string]*model.User
	usersByEmail map[string]string
	events       map[string]*model.Event
	regs         map[string]*memRegistration
	regIndex     map[regKey]string // (event, user) -> registration id

	locks  sync.Map // event id -> chan struct{} with capacity 1
	regSeq uint64
}

type regKey struct {
	eventID string
	userID  string
}

// memRegistration orders registrations deterministically even when two
// share a timestamp.
type memRegistration struct {
	model.Registration
	seq uint64
}

// NewMemory constructs an empty in-memory store.
func NewMemory(lockTimeout time.Duration) *Memory {
	if lockTimeout <= 0 {
		lockTimeout = 3 * time.Second
	}
	return &Memory{
		lockTimeout:  lockTimeout,
		users:        make(map[string]*model.User),
		usersByEmail: make(map[string]string),
		events:       make(map[string]*model.Event),
		regs:         make(map[string]*memRegistration),
		regIndex:     make(map[regKey]string),
	}
}

// lockEvent acquires the exclusive region for one event. The returned
// release func must be called exactly once. Acquisition is bounded by the
// configured timeout and the request context; exceeding either fails with
// Unavailable rather than hanging.
func (m *Memory) lockEvent(ctx context.Context, eventID string) (func(), error) {
	v, _ := m.locks.LoadOrStore(eventID, make(chan struct{}, 1))
	ch := v.(chan struct{})

	timer := time.NewTimer(m.lockTimeout)
	defer timer.Stop()

	select {
	case ch <- struct{}{}:
		return func() { <-ch }, nil
	case <-ctx.Done():
		return nil, apperr.Wrap(apperr.Unavailable, "event lock: request cancelled", ctx.Err())
	case <-timer.C:
		return nil, apperr.New(apperr.Unavailable, "event lock: timed out")
	}
}

// ─── Users ────────────────────────────────────────────────────────────────────

func (m *Memory) CreateUser(ctx context.Context, u *model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.usersByEmail[u.Email]; exists {
		return apperr.New(apperr.Conflict, "user already exists")
	}
	cp := *u
	m.users[u.ID] = &cp
	m.usersByEmail[u.Email] = u.ID
	return nil
}

func (m *Memory) GetUser(ctx context.Context, id string) (*model.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.users[id]
	if !ok {
		return nil, apperr.New(apperr.NotFound, "user not found")
	}
	cp := *u
	return &cp, nil
}

func (m *Memory) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	m.mu.RLock()
	id, ok := m.usersByEmail[email]
	m.mu.RUnlock()
	if !ok {
		return nil, apperr.New(apperr.NotFound, "user not found")
	}
	return m.GetUser(ctx, id)
}

func (m *Memory) CountUsers(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.users), nil
}

// ─── Events ───────────────────────────────────────────────────────────────────

func (m *Memory) CreateEvent(ctx context.Context, e *model.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events[e.ID] = cloneEvent(e)
	return nil
}

func (m *Memory) GetEvent(ctx context.Context, id string) (*model.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.events[id]
	if !ok {
		return nil, apperr.New(apperr.NotFound, "event not found")
	}
	return cloneEvent(e), nil
}

func (m *Memory) ListEvents(ctx context.Context) ([]model.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	events := make([]model.Event, 0, len(m.events))
	for _, e := range m.events {
		events = append(events, *cloneEvent(e))
	}
	sort.Slice(events, func(i, j int) bool {
		if !events[i].CreatedAt.Equal(events[j].CreatedAt) {
			return events[i].CreatedAt.After(events[j].CreatedAt)
		}
		return events[i].ID < events[j].ID
	})
	return events, nil
}

func (m *Memory) UpdateEvent(ctx context.Context, e *model.Event) error {
	release, err := m.lockEvent(ctx, e.ID)
	if err != nil {
		return err
	}
	defer release()

	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.events[e.ID]
	if !ok {
		return apperr.New(apperr.NotFound, "event not found")
	}
	if e.MaxParticipants < len(cur.Participants) {
		return apperr.Newf(apperr.Validation,
			"maxParticipants cannot be reduced below the current participant count (%d)", len(cur.Participants))
	}

	// Non-roster fields only; the roster belongs to the registration
	// protocol.
	cur.Title = e.Title
	cur.Description = e.Description
	cur.Date = e.Date
	cur.Time = e.Time
	cur.Venue = e.Venue
	cur.Organizer = e.Organizer
	cur.MaxParticipants = e.MaxParticipants
	cur.Status = e.Status
	return nil
}

func (m *Memory) DeleteEventCascade(ctx context.Context, id string) (int, error) {
	release, err := m.lockEvent(ctx, id)
	if err != nil {
		return 0, err
	}
	defer release()

	// Phase 1: drop the event.
	m.mu.Lock()
	delete(m.events, id)
	m.mu.Unlock()

	// Phase 2: drop its registrations. Running this against an already
	// deleted event is a no-op beyond removing leftovers, which is exactly
	// what a cascade retry needs.
	return m.deleteRegistrationsForEvent(id), nil
}

// deleteEventOnly drops the event record without its registrations,
// simulating a crash between the two cascade phases. Test hook.
func (m *Memory) deleteEventOnly(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.events, id)
}

func (m *Memory) deleteRegistrationsForEvent(eventID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for id, r := range m.regs {
		if r.EventID == eventID {
			delete(m.regs, id)
			delete(m.regIndex, regKey{r.EventID, r.UserID})
			n++
		}
	}
	return n
}

func (m *Memory) CountEvents(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.events), nil
}

func (m *Memory) CountEventsByStatus(ctx context.Context, status model.EventStatus) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := 0
	for _, e := range m.events {
		if e.Status == status {
			n++
		}
	}
	return n, nil
}

// ─── Registrations ────────────────────────────────────────────────────────────

func (m *Memory) RegisterParticipant(ctx context.Context, eventID, userID string) (*model.Registration, error) {
	release, err := m.lockEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	defer release()

	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.events[eventID]
	if !ok {
		return nil, apperr.New(apperr.NotFound, "event not found")
	}
	if _, dup := m.regIndex[regKey{eventID, userID}]; dup {
		return nil, apperr.New(apperr.Conflict, "already registered for this event")
	}
	if e.IsFull() {
		return nil, apperr.New(apperr.Conflict, "event is full")
	}

	m.regSeq++
	reg := &memRegistration{
		Registration: model.Registration{
			ID:           uuid.New().String(),
			EventID:      eventID,
			UserID:       userID,
			RegisteredAt: time.Now().UTC(),
		},
		seq: m.regSeq,
	}
	m.regs[reg.ID] = reg
	m.regIndex[regKey{eventID, userID}] = reg.ID
	e.Participants = append(e.Participants, userID)

	cp := reg.Registration
	return &cp, nil
}

func (m *Memory) UnregisterParticipant(ctx context.Context, eventID, userID string) error {
	release, err := m.lockEvent(ctx, eventID)
	if err != nil {
		return err
	}
	defer release()

	m.mu.Lock()
	defer m.mu.Unlock()

	key := regKey{eventID, userID}
	regID, ok := m.regIndex[key]
	if !ok {
		return apperr.New(apperr.NotFound, "registration not found")
	}
	delete(m.regs, regID)
	delete(m.regIndex, key)

	// The event may be gone if a cascade was interrupted; the registration
	// delete alone is then the whole repair.
	if e, exists := m.events[eventID]; exists {
		e.Participants = slices.DeleteFunc(e.Participants, func(id string) bool {
			return id == userID
		})
	}
	return nil
}

func (m *Memory) GetRegistration(ctx context.Context, eventID, userID string) (*model.Registration, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	regID, ok := m.regIndex[regKey{eventID, userID}]
	if !ok {
		return nil, apperr.New(apperr.NotFound, "registration not found")
	}
	cp := m.regs[regID].Registration
	return &cp, nil
}

func (m *Memory) ListRegistrationsByUser(ctx context.Context, userID string) ([]model.Registration, error) {
	return m.listRegistrations(func(r *memRegistration) bool { return r.UserID == userID }, true), nil
}

func (m *Memory) ListRegistrationsByEvent(ctx context.Context, eventID string) ([]model.Registration, error) {
	return m.listRegistrations(func(r *memRegistration) bool { return r.EventID == eventID }, false), nil
}

// listRegistrations filters registrations; newest first when desc is set,
// oldest first otherwise.
func (m *Memory) listRegistrations(match func(*memRegistration) bool, desc bool) []model.Registration {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var matched []*memRegistration
	for _, r := range m.regs {
		if match(r) {
			matched = append(matched, r)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if desc {
			return matched[i].seq > matched[j].seq
		}
		return matched[i].seq < matched[j].seq
	})

	out := make([]model.Registration, len(matched))
	for i, r := range matched {
		out[i] = r.Registration
	}
	return out
}

func (m *Memory) CountRegistrations(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.regs), nil
}

func (m *Memory) DeleteOrphanedRegistrations(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for id, r := range m.regs {
		if _, exists := m.events[r.EventID]; !exists {
			delete(m.regs, id)
			delete(m.regIndex, regKey{r.EventID, r.UserID})
			n++
		}
	}
	return n, nil
}

func cloneEvent(e *model.Event) *model.Event {
	cp := *e
	cp.Participants = slices.Clone(e.Participants)
	return &cp
}
