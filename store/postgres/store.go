// Package postgres persists inquiries in PostgreSQL through pgx. Each
// status write is a version-guarded UPDATE and appends a timeline row in
// the same transaction.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"inquiryflow/inquiry"
)

type Store struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

var _ inquiry.Store = (*Store)(nil)

const inquiryColumns = `id, name, description, created_at, deadline, service, contact_number,
	delivery_area, reference, status, version`

func (s *Store) Get(ctx context.Context, id int64) (inquiry.Inquiry, error) {
	const query = `SELECT ` + inquiryColumns + ` FROM inquiries WHERE id = $1`

	inq, err := scanInquiry(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return inquiry.Inquiry{}, inquiry.NotFound(id)
		}
		return inquiry.Inquiry{}, fmt.Errorf("postgres: get inquiry %d: %w", id, err)
	}
	return inq, nil
}

func (s *Store) ListByStatus(ctx context.Context, label inquiry.Label) ([]inquiry.Inquiry, error) {
	const query = `SELECT ` + inquiryColumns + ` FROM inquiries WHERE status_label = $1 ORDER BY id`

	rows, err := s.pool.Query(ctx, query, string(label))
	if err != nil {
		return nil, fmt.Errorf("postgres: list inquiries: %w", err)
	}
	defer rows.Close()

	var out []inquiry.Inquiry
	for rows.Next() {
		inq, err := scanInquiry(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan inquiry: %w", err)
		}
		out = append(out, inq)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list inquiries: %w", err)
	}
	return out, nil
}

func (s *Store) Create(ctx context.Context, details inquiry.Details, status inquiry.Status) (inquiry.Inquiry, error) {
	payload, err := inquiry.MarshalStatus(status)
	if err != nil {
		return inquiry.Inquiry{}, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return inquiry.Inquiry{}, fmt.Errorf("postgres: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	const insertSQL = `
		INSERT INTO inquiries (name, description, created_at, deadline, service, contact_number,
			delivery_area, reference, status_label, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING ` + inquiryColumns

	inq, err := scanInquiry(tx.QueryRow(ctx, insertSQL,
		details.Name,
		details.Description,
		details.CreatedAt,
		nullableTime(details.Deadline),
		details.Service,
		details.ContactNumber,
		details.DeliveryArea,
		details.Reference,
		string(status.Label()),
		payload,
	))
	if err != nil {
		return inquiry.Inquiry{}, fmt.Errorf("postgres: insert inquiry: %w", err)
	}

	if err := recordEvent(ctx, tx, inq.ID, nil, labelPtr(status.Label()), inq.Version); err != nil {
		return inquiry.Inquiry{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return inquiry.Inquiry{}, fmt.Errorf("postgres: commit: %w", err)
	}
	return inq, nil
}

// CompareAndSwap replaces the status only while the row still carries
// expectedVersion. The row lock taken by the subquery makes a concurrent
// writer re-evaluate the version predicate and miss.
func (s *Store) CompareAndSwap(ctx context.Context, id, expectedVersion int64, next inquiry.Status) (int64, error) {
	payload, err := inquiry.MarshalStatus(next)
	if err != nil {
		return 0, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("postgres: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	const updateSQL = `
		UPDATE inquiries AS i
		SET status_label = $3, status = $4, version = i.version + 1, updated_at = now()
		FROM (
			SELECT id, status_label AS from_label
			FROM inquiries
			WHERE id = $1 AND version = $2
			FOR UPDATE
		) AS prev
		WHERE i.id = prev.id
		RETURNING prev.from_label, i.version`

	var (
		from    string
		version int64
	)
	err = tx.QueryRow(ctx, updateSQL, id, expectedVersion, string(next.Label()), payload).Scan(&from, &version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, s.missReason(ctx, tx, id, expectedVersion)
		}
		return 0, fmt.Errorf("postgres: update inquiry %d: %w", id, err)
	}

	fromLabel := inquiry.Label(from)
	if err := recordEvent(ctx, tx, id, &fromLabel, labelPtr(next.Label()), version); err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("postgres: commit: %w", err)
	}
	return version, nil
}

func (s *Store) Delete(ctx context.Context, id, expectedVersion int64) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	var from string
	err = tx.QueryRow(ctx,
		`DELETE FROM inquiries WHERE id = $1 AND version = $2 RETURNING status_label`,
		id, expectedVersion,
	).Scan(&from)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return s.missReason(ctx, tx, id, expectedVersion)
		}
		return fmt.Errorf("postgres: delete inquiry %d: %w", id, err)
	}

	fromLabel := inquiry.Label(from)
	if err := recordEvent(ctx, tx, id, &fromLabel, nil, expectedVersion+1); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit: %w", err)
	}
	return nil
}

// Event is one row of an inquiry's transition timeline.
type Event struct {
	ID         uuid.UUID
	InquiryID  int64
	FromLabel  *inquiry.Label
	ToLabel    *inquiry.Label
	Version    int64
	OccurredAt time.Time
}

// Timeline returns the recorded transitions of an inquiry in version order.
func (s *Store) Timeline(ctx context.Context, id int64) ([]Event, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, inquiry_id, from_label, to_label, version, occurred_at
		FROM inquiry_events
		WHERE inquiry_id = $1
		ORDER BY version`, id)
	if err != nil {
		return nil, fmt.Errorf("postgres: timeline: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var (
			ev       Event
			from, to *string
		)
		if err := rows.Scan(&ev.ID, &ev.InquiryID, &from, &to, &ev.Version, &ev.OccurredAt); err != nil {
			return nil, fmt.Errorf("postgres: scan event: %w", err)
		}
		if from != nil {
			ev.FromLabel = labelPtr(inquiry.Label(*from))
		}
		if to != nil {
			ev.ToLabel = labelPtr(inquiry.Label(*to))
		}
		ev.OccurredAt = ev.OccurredAt.UTC()
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (s *Store) missReason(ctx context.Context, tx pgx.Tx, id, expectedVersion int64) error {
	var exists bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM inquiries WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("postgres: check inquiry %d: %w", id, err)
	}
	if !exists {
		return inquiry.NotFound(id)
	}
	return inquiry.VersionConflict(id, expectedVersion)
}

func recordEvent(ctx context.Context, tx pgx.Tx, inquiryID int64, from, to *inquiry.Label, version int64) error {
	const insertSQL = `
		INSERT INTO inquiry_events (id, inquiry_id, from_label, to_label, version)
		VALUES ($1, $2, $3, $4, $5)`

	if _, err := tx.Exec(ctx, insertSQL, uuid.New(), inquiryID, labelArg(from), labelArg(to), version); err != nil {
		return fmt.Errorf("postgres: record event: %w", err)
	}
	return nil
}

func scanInquiry(row pgx.Row) (inquiry.Inquiry, error) {
	var (
		inq      inquiry.Inquiry
		deadline *time.Time
		payload  []byte
	)
	err := row.Scan(
		&inq.ID,
		&inq.Details.Name,
		&inq.Details.Description,
		&inq.Details.CreatedAt,
		&deadline,
		&inq.Details.Service,
		&inq.Details.ContactNumber,
		&inq.Details.DeliveryArea,
		&inq.Details.Reference,
		&payload,
		&inq.Version,
	)
	if err != nil {
		return inquiry.Inquiry{}, err
	}

	inq.Details.CreatedAt = inq.Details.CreatedAt.UTC()
	if deadline != nil {
		inq.Details.Deadline = deadline.UTC()
	}
	inq.Status, err = inquiry.UnmarshalStatus(payload)
	if err != nil {
		return inquiry.Inquiry{}, err
	}
	return inq, nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func labelPtr(l inquiry.Label) *inquiry.Label { return &l }

func labelArg(l *inquiry.Label) *string {
	if l == nil {
		return nil
	}
	s := string(*l)
	return &s
}
