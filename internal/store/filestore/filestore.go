package filestore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/weararcstarz/arcstar/internal/domain"
)

// Store keeps every subscriber in one JSON array on disk. Each call reads the
// file; each mutation rewrites it atomically. Writers are serialized within
// the process only.
type Store struct {
	path string

	mu  sync.Mutex
	now func() time.Time
}

func New(path string) *Store {
	return &Store{path: path, now: time.Now}
}

// SetClock replaces the time source. Tests only.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
}

func (s *Store) Path() string { return s.path }

func (s *Store) ListSubscribers(ctx context.Context) ([]domain.Subscriber, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read()
}

func (s *Store) FindByEmail(ctx context.Context, email string) (domain.Subscriber, error) {
	email = domain.NormalizeEmail(email)
	if email == "" {
		return domain.Subscriber{}, domain.ErrNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	list, err := s.read()
	if err != nil {
		return domain.Subscriber{}, err
	}
	if i := indexOf(list, email); i >= 0 {
		return list[i], nil
	}
	return domain.Subscriber{}, domain.ErrNotFound
}

func (s *Store) AddOrResubscribe(ctx context.Context, name, email string) (domain.AddStatus, error) {
	email = domain.NormalizeEmail(email)
	if !domain.IsValidEmail(email) {
		return domain.AddStatusInvalid, nil
	}
	name = domain.NormalizeName(name)

	s.mu.Lock()
	defer s.mu.Unlock()

	list, err := s.read()
	if err != nil {
		return "", err
	}

	now := s.now().UTC()
	if i := indexOf(list, email); i >= 0 {
		if list[i].Active() {
			return domain.AddStatusDuplicate, nil
		}
		list[i].Name = name
		list[i].Unsubscribed = false
		list[i].CreatedAt = now
		if err := s.write(list); err != nil {
			return "", err
		}
		return domain.AddStatusResubscribed, nil
	}

	list = append(list, domain.Subscriber{
		ID:        uuid.NewString(),
		Name:      name,
		Email:     email,
		CreatedAt: now,
	})
	if err := s.write(list); err != nil {
		return "", err
	}
	return domain.AddStatusCreated, nil
}

// MergeSubscribers inserts unknown emails and renames known ones. The
// unsubscribed flag of existing records is left alone.
func (s *Store) MergeSubscribers(ctx context.Context, rows []domain.MergeRow) (int, error) {
	rows = domain.NormalizeMergeRows(rows)

	s.mu.Lock()
	defer s.mu.Unlock()

	list, err := s.read()
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return len(list), nil
	}

	index := make(map[string]int, len(list))
	for i, sub := range list {
		index[sub.Email] = i
	}

	now := s.now().UTC()
	for _, row := range rows {
		if i, ok := index[row.Email]; ok {
			list[i].Name = row.Name
			continue
		}
		index[row.Email] = len(list)
		list = append(list, domain.Subscriber{
			ID:        uuid.NewString(),
			Name:      row.Name,
			Email:     row.Email,
			CreatedAt: now,
		})
	}

	if err := s.write(list); err != nil {
		return 0, err
	}
	return len(list), nil
}

func (s *Store) UnsubscribeEmail(ctx context.Context, email string) error {
	email = domain.NormalizeEmail(email)
	if email == "" {
		return domain.NewValidationError(map[string]string{"email": "Invalid email"})
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	list, err := s.read()
	if err != nil {
		return err
	}
	i := indexOf(list, email)
	if i < 0 {
		return domain.ErrNotFound
	}
	list[i].Unsubscribed = true
	return s.write(list)
}

// Ping checks that the directory holding the waitlist file exists.
func (s *Store) Ping(ctx context.Context) error {
	dir := filepath.Dir(s.path)
	fi, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("stat %s: %w", dir, err)
	}
	if !fi.IsDir() {
		return fmt.Errorf("%s is not a directory", dir)
	}
	return nil
}

func (s *Store) Close() error { return nil }

func (s *Store) read() ([]domain.Subscriber, error) {
	b, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []domain.Subscriber{}, nil
		}
		return nil, fmt.Errorf("read %s: %w", s.path, err)
	}
	if len(bytes.TrimSpace(b)) == 0 {
		return []domain.Subscriber{}, nil
	}

	var raw []domain.Subscriber
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, fmt.Errorf("decode %s: %w", s.path, err)
	}
	return normalizeRows(raw, s.now().UTC()), nil
}

func (s *Store) write(list []domain.Subscriber) error {
	list = normalizeRows(list, s.now().UTC())

	b, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return fmt.Errorf("encode waitlist: %w", err)
	}
	b = append(b, '\n')

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("replace %s: %w", s.path, err)
	}
	return nil
}

// normalizeRows lowercases emails, fills missing fields, keeps the newest
// record per email and sorts newest-first. Rows without an "@" are dropped.
func normalizeRows(rows []domain.Subscriber, now time.Time) []domain.Subscriber {
	byEmail := make(map[string]int, len(rows))
	out := make([]domain.Subscriber, 0, len(rows))
	for _, r := range rows {
		r.Email = domain.NormalizeEmail(r.Email)
		if !strings.Contains(r.Email, "@") {
			continue
		}
		r.Name = domain.NormalizeName(r.Name)
		if r.ID == "" {
			r.ID = uuid.NewString()
		}
		if r.CreatedAt.IsZero() {
			r.CreatedAt = now
		}

		if i, ok := byEmail[r.Email]; ok {
			if r.CreatedAt.After(out[i].CreatedAt) {
				out[i] = r
			}
			continue
		}
		byEmail[r.Email] = len(out)
		out = append(out, r)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func indexOf(list []domain.Subscriber, email string) int {
	for i, sub := range list {
		if sub.Email == email {
			return i
		}
	}
	return -1
}
