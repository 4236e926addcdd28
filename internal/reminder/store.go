// Package reminder periodically scans due reminders and hands them to
// the mail sink. store.go is the database/sql + lib/pq repository;
// scheduler.go is the ticking worker loop.
package reminder

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// DueReminder is one reminder row joined with its event, exactly the
// fields the scheduler needs to compose a notification.
type DueReminder struct {
	ID               int64
	UserEmail        string
	ReminderTime     time.Time
	EventID          int64
	EventTitle       string
	EventDate        time.Time
	EventDescription string
	EventLocation    string
}

// Store is the Postgres-backed reminder/event repository.
type Store struct {
	db *sql.DB
}

// NewStore opens a connection pool against databaseURL and verifies
// connectivity before returning.
func NewStore(databaseURL string) (*Store, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("reminder: failed to open database: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("reminder: failed to connect to database: %w", err)
	}

	return &Store{db: db}, nil
}

// SelectDue returns every reminder whose reminder_time falls in
// [now, now+window], joined with its event, ordered by reminder_time so
// the most urgent rows are processed first within a tick.
func (s *Store) SelectDue(ctx context.Context, now time.Time, window time.Duration) ([]DueReminder, error) {
	const q = `
		SELECT r.id, r.user_email, r.reminder_time,
		       e.id, e.title, e.date, COALESCE(e.description, ''), COALESCE(e.location, '')
		FROM reminders r
		JOIN events e ON e.id = r.event_id
		WHERE r.reminder_time >= $1 AND r.reminder_time <= $2
		ORDER BY r.reminder_time ASC`

	rows, err := s.db.QueryContext(ctx, q, now, now.Add(window))
	if err != nil {
		return nil, fmt.Errorf("reminder: select due failed: %w", err)
	}
	defer rows.Close()

	var due []DueReminder
	for rows.Next() {
		var r DueReminder
		if err := rows.Scan(&r.ID, &r.UserEmail, &r.ReminderTime, &r.EventID, &r.EventTitle, &r.EventDate, &r.EventDescription, &r.EventLocation); err != nil {
			return nil, fmt.Errorf("reminder: scan due row failed: %w", err)
		}
		due = append(due, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reminder: iterating due rows failed: %w", err)
	}

	return due, nil
}

// Delete removes the reminder row with id. Called only after the mail
// sink has confirmed delivery.
func (s *Store) Delete(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM reminders WHERE id = $1`, id); err != nil {
		return fmt.Errorf("reminder: delete failed: %w", err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
