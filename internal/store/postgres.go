package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/campushub/campus-events/internal/apperr"
	"github.com/campushub/campus-events/internal/model"
)

// Postgres error codes we branch on.
const (
	pgUniqueViolation  = "23505"
	pgLockNotAvailable = "55P03"
)

// Postgres implements Store on a pgxpool.Pool.
//
// Per-event serialization uses SELECT … FOR UPDATE on the event row: any
// concurrent registration transaction for the same event blocks on the row
// lock until commit or rollback, so the capacity check and the roster write
// form one serialized read-check-then-write sequence. Different events lock
// different rows and proceed in parallel. lock_timeout bounds the wait so
// contention beyond it fails with Unavailable instead of hanging.
type Postgres struct {
	db          *pgxpool.Pool
	lockTimeout time.Duration
}

// NewPostgres constructs a Postgres store. lockTimeout bounds row-lock
// acquisition inside the registration protocol.
func NewPostgres(db *pgxpool.Pool, lockTimeout time.Duration) *Postgres {
	if lockTimeout <= 0 {
		lockTimeout = 3 * time.Second
	}
	return &Postgres{db: db, lockTimeout: lockTimeout}
}

// ─── Users ────────────────────────────────────────────────────────────────────

func (p *Postgres) CreateUser(ctx context.Context, u *model.User) error {
	_, err := p.db.Exec(ctx,
		`INSERT INTO users (id, name, email, password_hash, role, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		u.ID, u.Name, u.Email, u.PasswordHash, u.Role, u.CreatedAt,
	)
	if err != nil {
		if isPgCode(err, pgUniqueViolation) {
			return apperr.New(apperr.Conflict, "user already exists")
		}
		return apperr.Wrap(apperr.Unavailable, "insert user", err)
	}
	return nil
}

func (p *Postgres) GetUser(ctx context.Context, id string) (*model.User, error) {
	return p.scanUser(p.db.QueryRow(ctx,
		`SELECT id, name, email, password_hash, role, created_at
		 FROM users WHERE id = $1`, id))
}

func (p *Postgres) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	return p.scanUser(p.db.QueryRow(ctx,
		`SELECT id, name, email, password_hash, role, created_at
		 FROM users WHERE email = $1`, email))
}

func (p *Postgres) scanUser(row pgx.Row) (*model.User, error) {
	var u model.User
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.Role, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.New(apperr.NotFound, "user not found")
		}
		return nil, apperr.Wrap(apperr.Unavailable, "get user", err)
	}
	return &u, nil
}

func (p *Postgres) CountUsers(ctx context.Context) (int, error) {
	return p.count(ctx, `SELECT COUNT(*) FROM users`)
}

// ─── Events ───────────────────────────────────────────────────────────────────

const eventColumns = `id, title, description, event_date, event_time, venue,
	organizer, max_participants, participants, status, created_by, created_at`

func (p *Postgres) CreateEvent(ctx context.Context, e *model.Event) error {
	_, err := p.db.Exec(ctx,
		`INSERT INTO events (`+eventColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		e.ID, e.Title, e.Description, e.Date, e.Time, e.Venue,
		e.Organizer, e.MaxParticipants, e.Participants, e.Status, e.CreatedBy, e.CreatedAt,
	)
	if err != nil {
		return apperr.Wrap(apperr.Unavailable, "insert event", err)
	}
	return nil
}

func (p *Postgres) GetEvent(ctx context.Context, id string) (*model.Event, error) {
	return scanEvent(p.db.QueryRow(ctx,
		`SELECT `+eventColumns+` FROM events WHERE id = $1`, id))
}

func scanEvent(row pgx.Row) (*model.Event, error) {
	var e model.Event
	err := row.Scan(&e.ID, &e.Title, &e.Description, &e.Date, &e.Time, &e.Venue,
		&e.Organizer, &e.MaxParticipants, &e.Participants, &e.Status, &e.CreatedBy, &e.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.New(apperr.NotFound, "event not found")
		}
		return nil, apperr.Wrap(apperr.Unavailable, "get event", err)
	}
	return &e, nil
}

func (p *Postgres) ListEvents(ctx context.Context) ([]model.Event, error) {
	rows, err := p.db.Query(ctx,
		`SELECT `+eventColumns+` FROM events ORDER BY created_at DESC`)
	if err != nil {
		return nil, apperr.Wrap(apperr.Unavailable, "list events", err)
	}
	defer rows.Close()

	var events []model.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Wrap(apperr.Unavailable, "list events", err)
	}
	return events, nil
}

// UpdateEvent writes the non-roster fields of e inside a transaction holding
// the event's row lock, so a capacity shrink races neither a concurrent
// register nor another update.
func (p *Postgres) UpdateEvent(ctx context.Context, e *model.Event) (err error) {
	tx, err := p.beginLocked(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	var rosterSize int
	err = tx.QueryRow(ctx,
		`SELECT cardinality(participants) FROM events WHERE id = $1 FOR UPDATE`,
		e.ID,
	).Scan(&rosterSize)
	if err != nil {
		return mapRowLockErr(err, "event not found")
	}

	if e.MaxParticipants < rosterSize {
		return apperr.Newf(apperr.Validation,
			"maxParticipants cannot be reduced below the current participant count (%d)", rosterSize)
	}

	_, err = tx.Exec(ctx,
		`UPDATE events
		 SET title = $2, description = $3, event_date = $4, event_time = $5,
		     venue = $6, organizer = $7, max_participants = $8, status = $9
		 WHERE id = $1`,
		e.ID, e.Title, e.Description, e.Date, e.Time,
		e.Venue, e.Organizer, e.MaxParticipants, e.Status,
	)
	if err != nil {
		return apperr.Wrap(apperr.Unavailable, "update event", err)
	}
	if err = tx.Commit(ctx); err != nil {
		return apperr.Wrap(apperr.Unavailable, "commit event update", err)
	}
	return nil
}

// DeleteEventCascade removes the event row and every registration
// referencing it in one transaction. Postgres makes the two phases atomic;
// if a cascade was ever interrupted by other means, re-running this (or the
// orphan sweep) removes the leftover registrations.
func (p *Postgres) DeleteEventCascade(ctx context.Context, id string) (n int, err error) {
	tx, err := p.db.Begin(ctx)
	if err != nil {
		return 0, apperr.Wrap(apperr.Unavailable, "begin transaction", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if _, err = tx.Exec(ctx, `DELETE FROM events WHERE id = $1`, id); err != nil {
		return 0, apperr.Wrap(apperr.Unavailable, "delete event", err)
	}
	tag, err := tx.Exec(ctx, `DELETE FROM registrations WHERE event_id = $1`, id)
	if err != nil {
		return 0, apperr.Wrap(apperr.Unavailable, "delete registrations", err)
	}
	if err = tx.Commit(ctx); err != nil {
		return 0, apperr.Wrap(apperr.Unavailable, "commit cascade", err)
	}
	return int(tag.RowsAffected()), nil
}

func (p *Postgres) CountEvents(ctx context.Context) (int, error) {
	return p.count(ctx, `SELECT COUNT(*) FROM events`)
}

func (p *Postgres) CountEventsByStatus(ctx context.Context, status model.EventStatus) (int, error) {
	return p.count(ctx, `SELECT COUNT(*) FROM events WHERE status = $1`, status)
}

// ─── Registrations ────────────────────────────────────────────────────────────

// RegisterParticipant performs the capacity-checked registration inside a
// serialized transaction.
//
// The naive read-then-write is broken: two transactions can read the same
// roster snapshot before either writes, and both pass the capacity check.
// SELECT … FOR UPDATE acquires an exclusive row-level lock on the event the
// moment the SELECT executes, so only one transaction at a time can run the
// check-then-write sequence for a given event.
func (p *Postgres) RegisterParticipant(ctx context.Context, eventID, userID string) (reg *model.Registration, err error) {
	tx, err := p.beginLocked(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	// Step 1: lock the event row and read capacity + roster.
	var maxParticipants int
	var participants []string
	err = tx.QueryRow(ctx,
		`SELECT max_participants, participants FROM events WHERE id = $1 FOR UPDATE`,
		eventID,
	).Scan(&maxParticipants, &participants)
	if err != nil {
		return nil, mapRowLockErr(err, "event not found")
	}

	// Step 2: duplicate check. The roster is authoritative here; it only
	// changes under the row lock we now hold.
	for _, id := range participants {
		if id == userID {
			return nil, apperr.New(apperr.Conflict, "already registered for this event")
		}
	}

	// Step 3: capacity check.
	if len(participants) >= maxParticipants {
		return nil, apperr.New(apperr.Conflict, "event is full")
	}

	// Step 4: create the registration record and append to the roster in
	// the same transaction; neither write is visible unless both commit.
	reg = &model.Registration{
		ID:           uuid.New().String(),
		EventID:      eventID,
		UserID:       userID,
		RegisteredAt: time.Now().UTC(),
	}
	_, err = tx.Exec(ctx,
		`INSERT INTO registrations (id, event_id, user_id, registered_at)
		 VALUES ($1, $2, $3, $4)`,
		reg.ID, reg.EventID, reg.UserID, reg.RegisteredAt,
	)
	if err != nil {
		if isPgCode(err, pgUniqueViolation) {
			return nil, apperr.New(apperr.Conflict, "already registered for this event")
		}
		return nil, apperr.Wrap(apperr.Unavailable, "insert registration", err)
	}
	_, err = tx.Exec(ctx,
		`UPDATE events SET participants = array_append(participants, $2) WHERE id = $1`,
		eventID, userID,
	)
	if err != nil {
		return nil, apperr.Wrap(apperr.Unavailable, "append participant", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, apperr.Wrap(apperr.Unavailable, "commit registration", err)
	}
	return reg, nil
}

// UnregisterParticipant removes the registration record and the roster entry
// atomically. A registration left dangling by an interrupted cascade (event
// row gone) is still removable.
func (p *Postgres) UnregisterParticipant(ctx context.Context, eventID, userID string) (err error) {
	tx, err := p.beginLocked(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	// Lock the event row when it exists so this serializes with registers.
	var eventExists bool
	err = tx.QueryRow(ctx,
		`SELECT true FROM events WHERE id = $1 FOR UPDATE`, eventID,
	).Scan(&eventExists)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return mapRowLockErr(err, "event not found")
	}

	tag, err := tx.Exec(ctx,
		`DELETE FROM registrations WHERE event_id = $1 AND user_id = $2`,
		eventID, userID,
	)
	if err != nil {
		return apperr.Wrap(apperr.Unavailable, "delete registration", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.New(apperr.NotFound, "registration not found")
	}

	if eventExists {
		_, err = tx.Exec(ctx,
			`UPDATE events SET participants = array_remove(participants, $2) WHERE id = $1`,
			eventID, userID,
		)
		if err != nil {
			return apperr.Wrap(apperr.Unavailable, "remove participant", err)
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return apperr.Wrap(apperr.Unavailable, "commit unregistration", err)
	}
	return nil
}

func (p *Postgres) GetRegistration(ctx context.Context, eventID, userID string) (*model.Registration, error) {
	var r model.Registration
	err := p.db.QueryRow(ctx,
		`SELECT id, event_id, user_id, registered_at
		 FROM registrations WHERE event_id = $1 AND user_id = $2`,
		eventID, userID,
	).Scan(&r.ID, &r.EventID, &r.UserID, &r.RegisteredAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.New(apperr.NotFound, "registration not found")
		}
		return nil, apperr.Wrap(apperr.Unavailable, "get registration", err)
	}
	return &r, nil
}

func (p *Postgres) ListRegistrationsByUser(ctx context.Context, userID string) ([]model.Registration, error) {
	return p.listRegistrations(ctx,
		`SELECT id, event_id, user_id, registered_at
		 FROM registrations WHERE user_id = $1
		 ORDER BY registered_at DESC`, userID)
}

func (p *Postgres) ListRegistrationsByEvent(ctx context.Context, eventID string) ([]model.Registration, error) {
	return p.listRegistrations(ctx,
		`SELECT id, event_id, user_id, registered_at
		 FROM registrations WHERE event_id = $1
		 ORDER BY registered_at ASC`, eventID)
}

func (p *Postgres) listRegistrations(ctx context.Context, query string, args ...any) ([]model.Registration, error) {
	rows, err := p.db.Query(ctx, query, args...)
	if err != nil {
		return nil, apperr.Wrap(apperr.Unavailable, "list registrations", err)
	}
	defer rows.Close()

	var regs []model.Registration
	for rows.Next() {
		var r model.Registration
		if err := rows.Scan(&r.ID, &r.EventID, &r.UserID, &r.RegisteredAt); err != nil {
			return nil, apperr.Wrap(apperr.Unavailable, "scan registration", err)
		}
		regs = append(regs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Wrap(apperr.Unavailable, "list registrations", err)
	}
	return regs, nil
}

func (p *Postgres) CountRegistrations(ctx context.Context) (int, error) {
	return p.count(ctx, `SELECT COUNT(*) FROM registrations`)
}

func (p *Postgres) DeleteOrphanedRegistrations(ctx context.Context) (int, error) {
	tag, err := p.db.Exec(ctx,
		`DELETE FROM registrations r
		 WHERE NOT EXISTS (SELECT 1 FROM events e WHERE e.id = r.event_id)`)
	if err != nil {
		return 0, apperr.Wrap(apperr.Unavailable, "sweep orphaned registrations", err)
	}
	return int(tag.RowsAffected()), nil
}

// ─── Helpers ──────────────────────────────────────────────────────────────────

// beginLocked opens a transaction with lock_timeout set, so FOR UPDATE waits
// are bounded and surface as Unavailable instead of hanging.
func (p *Postgres) beginLocked(ctx context.Context) (pgx.Tx, error) {
	tx, err := p.db.Begin(ctx)
	if err != nil {
		return nil, apperr.Wrap(apperr.Unavailable, "begin transaction", err)
	}
	_, err = tx.Exec(ctx, fmt.Sprintf(`SET LOCAL lock_timeout = '%dms'`, p.lockTimeout.Milliseconds()))
	if err != nil {
		_ = tx.Rollback(ctx)
		return nil, apperr.Wrap(apperr.Unavailable, "set lock timeout", err)
	}
	return tx, nil
}

func (p *Postgres) count(ctx context.Context, query string, args ...any) (int, error) {
	var n int
	if err := p.db.QueryRow(ctx, query, args...).Scan(&n); err != nil {
		return 0, apperr.Wrap(apperr.Unavailable, "count", err)
	}
	return n, nil
}

// mapRowLockErr classifies the error from a SELECT … FOR UPDATE scan.
func mapRowLockErr(err error, notFoundMsg string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.New(apperr.NotFound, notFoundMsg)
	}
	if isPgCode(err, pgLockNotAvailable) {
		return apperr.Wrap(apperr.Unavailable, "event is busy, try again", err)
	}
	return apperr.Wrap(apperr.Unavailable, "lock event row", err)
}

func isPgCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}
