package database

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/lysyi3m/feed-sync/app/feed"
)

// EventStore holds the cached events of every calendar feed.
// Events without a start time are only removed by ReplaceAll or DeleteAll.
type EventStore struct {
	db *DB
}

func NewEventStore(db *DB) *EventStore {
	return &EventStore{db: db}
}

func (r *EventStore) ReplaceAll(feedName string, events []feed.Event) error {
	return r.db.inTx(func(tx *sql.Tx) error {
		if _, err := tx.Exec(`DELETE FROM events WHERE feed = ?`, feedName); err != nil {
			return fmt.Errorf("failed to delete events: %w", err)
		}
		return insertEvents(tx, feedName, events)
	})
}

// ReplaceFrom deletes events starting at or after from and inserts events,
// in one transaction. It returns the number of deleted events.
func (r *EventStore) ReplaceFrom(feedName string, from time.Time, events []feed.Event) (int, error) {
	var deleted int
	err := r.db.inTx(func(tx *sql.Tx) error {
		var err error
		deleted, err = deleteEventsFrom(tx, feedName, from)
		if err != nil {
			return err
		}
		return insertEvents(tx, feedName, events)
	})
	if err != nil {
		return 0, err
	}
	return deleted, nil
}

func (r *EventStore) DeleteFrom(feedName string, from time.Time) (int, error) {
	var deleted int
	err := r.db.inTx(func(tx *sql.Tx) error {
		var err error
		deleted, err = deleteEventsFrom(tx, feedName, from)
		return err
	})
	return deleted, err
}

func (r *EventStore) InsertMany(feedName string, events []feed.Event) error {
	return r.db.inTx(func(tx *sql.Tx) error {
		return insertEvents(tx, feedName, events)
	})
}

func (r *EventStore) DeleteAll(feedName string) error {
	if _, err := r.db.Exec(`DELETE FROM events WHERE feed = ?`, feedName); err != nil {
		return fmt.Errorf("failed to delete events: %w", err)
	}
	return nil
}

func (r *EventStore) Count(feedName string) (int, error) {
	var count int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM events WHERE feed = ?`, feedName).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count events: %w", err)
	}
	return count, nil
}

// List returns events by ascending start, undated events last. With from
// set only events starting at or after it are returned.
func (r *EventStore) List(feedName string, from *time.Time, limit int) ([]feed.Event, error) {
	query := `SELECT title, description, location, start_at, end_at FROM events WHERE feed = ?`
	args := []any{feedName}
	if from != nil {
		query += ` AND start_at >= ?`
		args = append(args, toMillis(*from))
	}
	query += ` ORDER BY start_at IS NULL, start_at ASC, id ASC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	events := []feed.Event{}
	for rows.Next() {
		var title, description, location sql.NullString
		var startAt, endAt sql.NullInt64

		if err := rows.Scan(&title, &description, &location, &startAt, &endAt); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}

		events = append(events, feed.Event{
			Title:       nullableString(title),
			Description: nullableString(description),
			Location:    nullableString(location),
			StartAt:     nullableTime(startAt),
			EndAt:       nullableTime(endAt),
		})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate events: %w", err)
	}

	return events, nil
}

func deleteEventsFrom(tx *sql.Tx, feedName string, from time.Time) (int, error) {
	result, err := tx.Exec(`DELETE FROM events WHERE feed = ? AND start_at IS NOT NULL AND start_at >= ?`,
		feedName, toMillis(from))
	if err != nil {
		return 0, fmt.Errorf("failed to delete events: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted events: %w", err)
	}
	return int(affected), nil
}

func insertEvents(tx *sql.Tx, feedName string, events []feed.Event) error {
	if len(events) == 0 {
		return nil
	}

	stmt, err := tx.Prepare(`INSERT INTO events (feed, title, description, location, start_at, end_at)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare event insert: %w", err)
	}
	defer stmt.Close()

	for _, event := range events {
		_, err := stmt.Exec(feedName, event.Title, event.Description, event.Location,
			nullableMillis(event.StartAt), nullableMillis(event.EndAt))
		if err != nil {
			return fmt.Errorf("failed to insert event: %w", err)
		}
	}

	return nil
}

func nullableString(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	return &s.String
}

func nullableTime(ms sql.NullInt64) *time.Time {
	if !ms.Valid {
		return nil
	}
	t := fromMillis(ms.Int64)
	return &t
}

func nullableMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toMillis(*t), Valid: true}
}
