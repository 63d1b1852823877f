package database

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lysyi3m/feed-sync/app/feed"
)

// PostStore holds the cached posts of every post feed, partitioned by feed name
type PostStore struct {
	db *DB
}

func NewPostStore(db *DB) *PostStore {
	return &PostStore{db: db}
}

// ReplaceAll swaps the cached posts of a feed for posts in one transaction
func (r *PostStore) ReplaceAll(feedName string, posts []feed.Post) error {
	return r.db.inTx(func(tx *sql.Tx) error {
		if _, err := tx.Exec(`DELETE FROM posts WHERE feed = ?`, feedName); err != nil {
			return fmt.Errorf("failed to delete posts: %w", err)
		}
		return insertPosts(tx, feedName, posts)
	})
}

func (r *PostStore) InsertMany(feedName string, posts []feed.Post) error {
	return r.db.inTx(func(tx *sql.Tx) error {
		return insertPosts(tx, feedName, posts)
	})
}

func (r *PostStore) DeleteAll(feedName string) error {
	if _, err := r.db.Exec(`DELETE FROM posts WHERE feed = ?`, feedName); err != nil {
		return fmt.Errorf("failed to delete posts: %w", err)
	}
	return nil
}

func (r *PostStore) Count(feedName string) (int, error) {
	var count int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM posts WHERE feed = ?`, feedName).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count posts: %w", err)
	}
	return count, nil
}

// OldestPublishedAt returns the earliest cached publish time, optionally
// restricted to posts carrying tag. It returns nil for an empty cache.
func (r *PostStore) OldestPublishedAt(feedName, tag string) (*time.Time, error) {
	query := `SELECT MIN(published_at) FROM posts WHERE feed = ?`
	args := []any{feedName}
	if tag != "" {
		query += ` AND ` + tagFilter
		args = append(args, tag)
	}

	var oldest sql.NullInt64
	if err := r.db.QueryRow(query, args...).Scan(&oldest); err != nil {
		return nil, fmt.Errorf("failed to get oldest post: %w", err)
	}
	if !oldest.Valid {
		return nil, nil
	}

	t := fromMillis(oldest.Int64)
	return &t, nil
}

// List returns cached posts newest first, optionally filtered by tag.
// A non-positive limit returns every post.
func (r *PostStore) List(feedName, tag string, limit int) ([]feed.Post, error) {
	query := `SELECT published_at, title, body_html, excerpt, tags, lead_icon, url
		FROM posts WHERE feed = ?`
	args := []any{feedName}
	if tag != "" {
		query += ` AND ` + tagFilter
		args = append(args, tag)
	}
	query += ` ORDER BY published_at DESC, id ASC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query posts: %w", err)
	}
	defer rows.Close()

	posts := []feed.Post{}
	for rows.Next() {
		var post feed.Post
		var publishedAt int64
		var tagsJSON string

		err := rows.Scan(&publishedAt, &post.Title, &post.BodyHTML, &post.Excerpt, &tagsJSON, &post.LeadIcon, &post.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to scan post: %w", err)
		}

		post.PublishedAt = fromMillis(publishedAt)
		if err := json.Unmarshal([]byte(tagsJSON), &post.Tags); err != nil {
			return nil, fmt.Errorf("failed to decode post tags: %w", err)
		}
		posts = append(posts, post)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate posts: %w", err)
	}

	return posts, nil
}

const tagFilter = `EXISTS (SELECT 1 FROM json_each(posts.tags) WHERE json_each.value = ?)`

func insertPosts(tx *sql.Tx, feedName string, posts []feed.Post) error {
	if len(posts) == 0 {
		return nil
	}

	stmt, err := tx.Prepare(`INSERT INTO posts (feed, published_at, title, body_html, excerpt, tags, lead_icon, url)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare post insert: %w", err)
	}
	defer stmt.Close()

	for _, post := range posts {
		tags := post.Tags
		if tags == nil {
			tags = []string{}
		}
		tagsJSON, err := json.Marshal(tags)
		if err != nil {
			return fmt.Errorf("failed to encode post tags: %w", err)
		}

		_, err = stmt.Exec(feedName, toMillis(post.PublishedAt), post.Title, post.BodyHTML, post.Excerpt,
			string(tagsJSON), post.LeadIcon, post.URL)
		if err != nil {
			return fmt.Errorf("failed to insert post: %w", err)
		}
	}

	return nil
}

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
