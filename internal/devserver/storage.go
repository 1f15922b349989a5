package devserver

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/example/slotsync/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("devserver: not found")

// ErrSlotConflict is returned when an insert would give an employee two
// slots starting at the same instant.
var ErrSlotConflict = errors.New("devserver: slot start already taken")

const schema = `
CREATE TABLE IF NOT EXISTS slots (
	id TEXT PRIMARY KEY,
	employee_id TEXT NOT NULL,
	type TEXT NOT NULL,
	start_time TEXT NOT NULL,
	duration INTEGER NOT NULL,
	recurring INTEGER NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	UNIQUE (employee_id, start_time)
);
CREATE TABLE IF NOT EXISTS sessions (
	id TEXT PRIMARY KEY,
	slot_id TEXT NOT NULL,
	employee_id TEXT NOT NULL,
	customer_id TEXT NOT NULL,
	start_time TEXT NOT NULL,
	first_name TEXT NOT NULL DEFAULT '',
	last_name TEXT NOT NULL DEFAULT '',
	email TEXT NOT NULL DEFAULT '',
	phone TEXT NOT NULL DEFAULT '',
	message TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS recurring_dates (
	id TEXT PRIMARY KEY,
	employee_id TEXT NOT NULL,
	date TEXT NOT NULL,
	UNIQUE (employee_id, date)
);
`

// Storage persists the scheduling state the development server serves.
type Storage struct {
	db *sql.DB
}

// OpenStorage opens the SQLite database at dsn and applies the schema.
func OpenStorage(dsn string) (*Storage, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("devserver: open storage: %w", err)
	}
	s := &Storage{db: db}
	if err := s.migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the underlying database handle.
func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("devserver: migrate: %w", err)
	}
	return nil
}

// InsertSlot stores a new slot, enforcing one slot per (employee, start).
func (s *Storage) InsertSlot(ctx context.Context, slot domain.Slot) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO slots (id, employee_id, type, start_time, duration, recurring, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		slot.ID, slot.EmployeeID, string(slot.Type), formatTime(slot.StartTime),
		slot.Duration, boolToInt(slot.Recurring), formatTime(slot.CreatedAt), formatTime(slot.UpdatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return ErrSlotConflict
		}
		return fmt.Errorf("devserver: insert slot: %w", err)
	}
	return nil
}

// UpdateSlot overwrites an existing slot's mutable fields.
func (s *Storage) UpdateSlot(ctx context.Context, slot domain.Slot) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE slots SET type = ?, start_time = ?, duration = ?, recurring = ?, updated_at = ? WHERE id = ?`,
		string(slot.Type), formatTime(slot.StartTime), slot.Duration,
		boolToInt(slot.Recurring), formatTime(slot.UpdatedAt), slot.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrSlotConflict
		}
		return fmt.Errorf("devserver: update slot: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("devserver: update slot: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// GetSlot retrieves one slot by id.
func (s *Storage) GetSlot(ctx context.Context, id string) (domain.Slot, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, employee_id, type, start_time, duration, recurring, created_at, updated_at
		 FROM slots WHERE id = ?`, id)
	return scanSlot(row)
}

// SlotsByIDs retrieves the slots with the given ids, in id order.
func (s *Storage) SlotsByIDs(ctx context.Context, ids []string) ([]domain.Slot, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimRight(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, employee_id, type, start_time, duration, recurring, created_at, updated_at
		 FROM slots WHERE id IN (`+placeholders+`) ORDER BY id`, args...)
	if err != nil {
		return nil, fmt.Errorf("devserver: slots by ids: %w", err)
	}
	defer rows.Close()
	return collectSlots(rows)
}

// SlotsInRange lists an employee's slots with start dates inside the
// inclusive range, ordered by start time.
func (s *Storage) SlotsInRange(ctx context.Context, employeeID, startDate, endDate string) ([]domain.Slot, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, employee_id, type, start_time, duration, recurring, created_at, updated_at
		 FROM slots
		 WHERE employee_id = ? AND date(start_time) >= ? AND date(start_time) <= ?
		 ORDER BY start_time`, employeeID, startDate, endDate)
	if err != nil {
		return nil, fmt.Errorf("devserver: slots in range: %w", err)
	}
	defer rows.Close()
	return collectSlots(rows)
}

// SlotsOnDate lists an employee's slots on one calendar date.
func (s *Storage) SlotsOnDate(ctx context.Context, employeeID, date string) ([]domain.Slot, error) {
	return s.SlotsInRange(ctx, employeeID, date, date)
}

// DeleteSlots removes the given slots and returns the deleted records.
func (s *Storage) DeleteSlots(ctx context.Context, ids []string) ([]domain.Slot, error) {
	deleted, err := s.SlotsByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	if len(deleted) == 0 {
		return nil, ErrNotFound
	}
	placeholders := strings.TrimRight(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM slots WHERE id IN (`+placeholders+`)`, args...); err != nil {
		return nil, fmt.Errorf("devserver: delete slots: %w", err)
	}
	return deleted, nil
}

// GetSession retrieves one session by id.
func (s *Storage) GetSession(ctx context.Context, id string) (domain.Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, slot_id, employee_id, customer_id, start_time, first_name, last_name, email, phone, message, created_at, updated_at
		 FROM sessions WHERE id = ?`, id)
	return scanSession(row)
}

// InsertSession stores a new session.
func (s *Storage) InsertSession(ctx context.Context, session domain.Session) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, slot_id, employee_id, customer_id, start_time, first_name, last_name, email, phone, message, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		session.ID, session.SlotID, session.EmployeeID, session.CustomerID,
		formatTime(session.StartTime), session.FirstName, session.LastName,
		session.Email, session.Phone, session.Message,
		formatTime(session.CreatedAt), formatTime(session.UpdatedAt))
	if err != nil {
		return fmt.Errorf("devserver: insert session: %w", err)
	}
	return nil
}

// UpdateSession overwrites a session's slot binding and timestamps.
func (s *Storage) UpdateSession(ctx context.Context, session domain.Session) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET slot_id = ?, start_time = ?, updated_at = ? WHERE id = ?`,
		session.SlotID, formatTime(session.StartTime), formatTime(session.UpdatedAt), session.ID)
	if err != nil {
		return fmt.Errorf("devserver: update session: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("devserver: update session: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// SessionsInRange lists an employee's sessions inside the inclusive date
// range, ordered by start time.
func (s *Storage) SessionsInRange(ctx context.Context, employeeID, startDate, endDate string) ([]domain.Session, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, slot_id, employee_id, customer_id, start_time, first_name, last_name, email, phone, message, created_at, updated_at
		 FROM sessions
		 WHERE employee_id = ? AND date(start_time) >= ? AND date(start_time) <= ?
		 ORDER BY start_time`, employeeID, startDate, endDate)
	if err != nil {
		return nil, fmt.Errorf("devserver: sessions in range: %w", err)
	}
	defer rows.Close()

	var out []domain.Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, session)
	}
	return out, rows.Err()
}

// InsertRecurringDate marks a date as recurring for an employee.
func (s *Storage) InsertRecurringDate(ctx context.Context, day domain.RecurringDate) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO recurring_dates (id, employee_id, date) VALUES (?, ?, ?)`,
		day.ID, day.EmployeeID, day.Date)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrSlotConflict
		}
		return fmt.Errorf("devserver: insert recurring date: %w", err)
	}
	return nil
}

// DeleteRecurringDate removes the marker for (employee, date) and returns
// the removed record.
func (s *Storage) DeleteRecurringDate(ctx context.Context, employeeID, date string) (domain.RecurringDate, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, employee_id, date FROM recurring_dates WHERE employee_id = ? AND date = ?`,
		employeeID, date)
	var day domain.RecurringDate
	if err := row.Scan(&day.ID, &day.EmployeeID, &day.Date); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.RecurringDate{}, ErrNotFound
		}
		return domain.RecurringDate{}, fmt.Errorf("devserver: delete recurring date: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM recurring_dates WHERE id = ?`, day.ID); err != nil {
		return domain.RecurringDate{}, fmt.Errorf("devserver: delete recurring date: %w", err)
	}
	return day, nil
}

// RecurringDatesInRange lists an employee's recurring-day markers inside
// the inclusive date range.
func (s *Storage) RecurringDatesInRange(ctx context.Context, employeeID, startDate, endDate string) ([]domain.RecurringDate, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, employee_id, date FROM recurring_dates
		 WHERE employee_id = ? AND date >= ? AND date <= ? ORDER BY date`,
		employeeID, startDate, endDate)
	if err != nil {
		return nil, fmt.Errorf("devserver: recurring dates in range: %w", err)
	}
	defer rows.Close()

	var out []domain.RecurringDate
	for rows.Next() {
		var day domain.RecurringDate
		if err := rows.Scan(&day.ID, &day.EmployeeID, &day.Date); err != nil {
			return nil, fmt.Errorf("devserver: recurring dates in range: %w", err)
		}
		out = append(out, day)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSlot(row rowScanner) (domain.Slot, error) {
	var (
		slot      domain.Slot
		slotType  string
		start     string
		recurring int
		created   string
		updated   string
	)
	if err := row.Scan(&slot.ID, &slot.EmployeeID, &slotType, &start, &slot.Duration, &recurring, &created, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Slot{}, ErrNotFound
		}
		return domain.Slot{}, fmt.Errorf("devserver: scan slot: %w", err)
	}
	slot.Type = domain.SlotType(slotType)
	slot.Recurring = recurring != 0
	var err error
	if slot.StartTime, err = parseTime(start); err != nil {
		return domain.Slot{}, err
	}
	if slot.CreatedAt, err = parseTime(created); err != nil {
		return domain.Slot{}, err
	}
	if slot.UpdatedAt, err = parseTime(updated); err != nil {
		return domain.Slot{}, err
	}
	return slot, nil
}

func collectSlots(rows *sql.Rows) ([]domain.Slot, error) {
	var out []domain.Slot
	for rows.Next() {
		slot, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, slot)
	}
	return out, rows.Err()
}

func scanSession(row rowScanner) (domain.Session, error) {
	var (
		session domain.Session
		start   string
		created string
		updated string
	)
	err := row.Scan(&session.ID, &session.SlotID, &session.EmployeeID, &session.CustomerID,
		&start, &session.FirstName, &session.LastName, &session.Email, &session.Phone,
		&session.Message, &created, &updated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Session{}, ErrNotFound
		}
		return domain.Session{}, fmt.Errorf("devserver: scan session: %w", err)
	}
	if session.StartTime, err = parseTime(start); err != nil {
		return domain.Session{}, err
	}
	if session.CreatedAt, err = parseTime(created); err != nil {
		return domain.Session{}, err
	}
	if session.UpdatedAt, err = parseTime(updated); err != nil {
		return domain.Session{}, err
	}
	return session, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("devserver: malformed timestamp %q: %w", s, err)
	}
	return t, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "unique")
}
