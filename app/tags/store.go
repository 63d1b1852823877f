package tags

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/natefinch/atomic"
)

const (
	// FileName is the local tag list file inside the data directory.
	FileName = "taglist.json"

	// VersionKey holds the version token of the last applied tag list.
	VersionKey = "tagcriteria-version"
)

//go:embed taglist.json
var defaultList []byte

type Downloader interface {
	Download(ctx context.Context, url string) ([]byte, error)
}

type VersionStore interface {
	Get(key, defaultValue string) (string, error)
}

// Store keeps the tag criteria loaded from the local tag list file, which
// is seeded from the packaged default and replaced by remote refreshes.
type Store struct {
	path       string
	url        string
	downloader Downloader
	versions   VersionStore

	mu   sync.RWMutex
	list *List
}

func NewStore(dataDir, url string, downloader Downloader, versions VersionStore) *Store {
	return &Store{
		path:       filepath.Join(dataDir, FileName),
		url:        url,
		downloader: downloader,
		versions:   versions,
	}
}

func (s *Store) Path() string {
	return s.path
}

// Load reads the local tag list, seeding it from the packaged default
// when it does not exist yet.
func (s *Store) Load() error {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		if err := s.seed(); err != nil {
			return err
		}
		data = defaultList
	} else if err != nil {
		return fmt.Errorf("failed to read tag list: %w", err)
	}

	list, err := ParseList(data)
	if err != nil {
		return fmt.Errorf("failed to parse tag list %s: %w", s.path, err)
	}

	s.mu.Lock()
	s.list = list
	s.mu.Unlock()

	slog.Debug("Tag list loaded", "path", s.path, "version", list.Version, "criteria", len(list.Criteria))

	return nil
}

// Refresh downloads the remote tag list, validates it and replaces the
// local file. It returns the downloaded version and whether it differs
// from the one stored under VersionKey. The caller stores the new version
// once the change has been applied.
func (s *Store) Refresh(ctx context.Context) (string, bool, error) {
	data, err := s.downloader.Download(ctx, s.url)
	if err != nil {
		return "", false, fmt.Errorf("failed to download tag list: %w", err)
	}

	list, err := ParseList(data)
	if err != nil {
		return "", false, fmt.Errorf("failed to parse downloaded tag list: %w", err)
	}

	if err := s.write(data); err != nil {
		return "", false, err
	}

	s.mu.Lock()
	s.list = list
	s.mu.Unlock()

	previous, err := s.versions.Get(VersionKey, "")
	if err != nil {
		return "", false, fmt.Errorf("failed to read tag list version: %w", err)
	}

	if previous == list.Version {
		return list.Version, false, nil
	}

	slog.Info("Tag list updated", "previous_version", previous, "version", list.Version, "criteria", len(list.Criteria))

	return list.Version, true, nil
}

// Criteria returns a copy of the criteria in priority order.
func (s *Store) Criteria() []Criterion {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.list == nil {
		return nil
	}
	criteria := make([]Criterion, len(s.list.Criteria))
	copy(criteria, s.list.Criteria)
	return criteria
}

func (s *Store) Version() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.list == nil {
		return ""
	}
	return s.list.Version
}

func (s *Store) KnownTagNames() []string {
	return KnownTagNames(s.Criteria())
}

func (s *Store) SubscribedTags(selected []string) []string {
	return SubscribedTagNames(s.Criteria(), selected)
}

// Classify tags a post's raw labels with the current criteria.
func (s *Store) Classify(categories, authors []string) Classification {
	return Classify(categories, authors, s.Criteria())
}

func (s *Store) seed() error {
	if err := s.write(defaultList); err != nil {
		return fmt.Errorf("failed to seed tag list: %w", err)
	}
	slog.Info("Tag list seeded from packaged default", "path", s.path)
	return nil
}

func (s *Store) write(data []byte) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create tag list directory: %w", err)
	}
	if err := atomic.WriteFile(s.path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write tag list: %w", err)
	}
	return nil
}
