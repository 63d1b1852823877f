package database

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// MetadataStore is the key/value store for sync version state
type MetadataStore struct {
	db  *DB
	now func() time.Time
}

func NewMetadataStore(db *DB) *MetadataStore {
	return &MetadataStore{db: db, now: time.Now}
}

func (r *MetadataStore) Get(key, defaultValue string) (string, error) {
	var value string
	err := r.db.QueryRow(`SELECT value FROM metadata WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return defaultValue, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get metadata %s: %w", key, err)
	}
	return value, nil
}

func (r *MetadataStore) Put(key, value string) error {
	return r.PutMany(map[string]string{key: value})
}

// PutMany writes every pair or none.
func (r *MetadataStore) PutMany(values map[string]string) error {
	if len(values) == 0 {
		return nil
	}

	return r.db.inTx(func(tx *sql.Tx) error {
		return r.putAll(tx, values)
	})
}

// PutManyIf writes values only while key still holds expected, a missing
// key matching "". It reports whether the write happened.
func (r *MetadataStore) PutManyIf(key, expected string, values map[string]string) (bool, error) {
	written := false
	err := r.db.inTx(func(tx *sql.Tx) error {
		var current string
		err := tx.QueryRow(`SELECT value FROM metadata WHERE key = ?`, key).Scan(&current)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("failed to get metadata %s: %w", key, err)
		}
		if current != expected {
			return nil
		}

		if err := r.putAll(tx, values); err != nil {
			return err
		}
		written = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return written, nil
}

func (r *MetadataStore) putAll(tx *sql.Tx, values map[string]string) error {
	updatedAt := r.now().UnixMilli()
	for key, value := range values {
		_, err := tx.Exec(`INSERT INTO metadata (key, value, updated_at) VALUES (?, ?, ?)
			ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
			key, value, updatedAt)
		if err != nil {
			return fmt.Errorf("failed to put metadata %s: %w", key, err)
		}
	}
	return nil
}
