package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weararcstarz/arcstar/internal/domain"
)

// backends returns every Store implementation the contract runs against. The
// PostgreSQL backend joins when APP_TEST_DB_DSN points at a scratch database.
func backends(t *testing.T) map[string]func(t *testing.T) Store {
	out := map[string]func(t *testing.T) Store{
		"file": func(t *testing.T) Store {
			s, err := Open(context.Background(), Options{FilePath: filepath.Join(t.TempDir(), "waitlist.json")})
			require.NoError(t, err)
			return s
		},
	}
	if dsn := os.Getenv("APP_TEST_DB_DSN"); dsn != "" {
		out["postgres"] = func(t *testing.T) Store {
			s, err := Open(context.Background(), Options{DSN: dsn})
			require.NoError(t, err)
			truncate(t, dsn)
			t.Cleanup(func() { _ = s.Close() })
			return s
		}
	}
	return out
}

func forEachBackend(t *testing.T, fn func(t *testing.T, s Store)) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			fn(t, open(t))
		})
	}
}

func TestContract_CaseAndWhitespaceDedup(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		status, err := s.AddOrResubscribe(ctx, "Ada", "ada@example.com")
		require.NoError(t, err)
		assert.Equal(t, domain.AddStatusCreated, status)

		status, err = s.AddOrResubscribe(ctx, "Ada again", "  ADA@Example.COM ")
		require.NoError(t, err)
		assert.Equal(t, domain.AddStatusDuplicate, status)

		subs, err := s.ListSubscribers(ctx)
		require.NoError(t, err)
		require.Len(t, subs, 1)
		assert.Equal(t, "ada@example.com", subs[0].Email)
		assert.Equal(t, "Ada", subs[0].Name)
	})
}

func TestContract_InvalidEmail(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		status, err := s.AddOrResubscribe(context.Background(), "Ada", "ada@localhost")
		require.NoError(t, err)
		assert.Equal(t, domain.AddStatusInvalid, status)

		subs, err := s.ListSubscribers(context.Background())
		require.NoError(t, err)
		assert.Empty(t, subs)
	})
}

func TestContract_UnsubscribeThenResubscribe(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		_, err := s.AddOrResubscribe(ctx, "Ada", "ada@example.com")
		require.NoError(t, err)
		before, err := s.FindByEmail(ctx, "ada@example.com")
		require.NoError(t, err)

		require.NoError(t, s.UnsubscribeEmail(ctx, "ADA@example.com"))
		sub, err := s.FindByEmail(ctx, "ada@example.com")
		require.NoError(t, err)
		assert.True(t, sub.Unsubscribed)

		status, err := s.AddOrResubscribe(ctx, "Ada Lovelace", "ada@example.com")
		require.NoError(t, err)
		assert.Equal(t, domain.AddStatusResubscribed, status)

		subs, err := s.ListSubscribers(ctx)
		require.NoError(t, err)
		require.Len(t, subs, 1)
		assert.Equal(t, before.ID, subs[0].ID)
		assert.False(t, subs[0].Unsubscribed)
		assert.Equal(t, "Ada Lovelace", subs[0].Name)
	})
}

func TestContract_UnsubscribeErrors(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		assert.True(t, errors.Is(s.UnsubscribeEmail(ctx, "ghost@example.com"), domain.ErrNotFound))
		assert.True(t, errors.Is(s.UnsubscribeEmail(ctx, "   "), domain.ErrValidation))

		_, err := s.FindByEmail(ctx, "ghost@example.com")
		assert.True(t, errors.Is(err, domain.ErrNotFound))
	})
}

func TestContract_MergeIsIdempotent(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		rows := []domain.MergeRow{
			{Name: "Ada", Email: "ada@example.com"},
			{Email: "bob@example.com"},
			{Name: "Nope", Email: "not-an-email"},
		}

		first, err := s.MergeSubscribers(ctx, rows)
		require.NoError(t, err)
		assert.Equal(t, 2, first)
		snapshot, err := s.ListSubscribers(ctx)
		require.NoError(t, err)

		second, err := s.MergeSubscribers(ctx, rows)
		require.NoError(t, err)
		assert.Equal(t, first, second)
		after, err := s.ListSubscribers(ctx)
		require.NoError(t, err)
		assert.Equal(t, snapshot, after)
	})
}

func TestContract_MergeKeepsUnsubscribedFlag(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		_, err := s.AddOrResubscribe(ctx, "Ada", "ada@example.com")
		require.NoError(t, err)
		require.NoError(t, s.UnsubscribeEmail(ctx, "ada@example.com"))

		count, err := s.MergeSubscribers(ctx, []domain.MergeRow{
			{Name: "Ada Renamed", Email: "ADA@example.com"},
			{Name: "Cy", Email: "cy@example.com"},
			{Name: "Cy Final", Email: "cy@example.com"},
		})
		require.NoError(t, err)
		assert.Equal(t, 2, count, "count includes unsubscribed records")

		ada, err := s.FindByEmail(ctx, "ada@example.com")
		require.NoError(t, err)
		assert.True(t, ada.Unsubscribed)
		assert.Equal(t, "Ada Renamed", ada.Name)

		cy, err := s.FindByEmail(ctx, "cy@example.com")
		require.NoError(t, err)
		assert.Equal(t, "Cy Final", cy.Name)
	})
}

func TestContract_ListNewestFirst(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		for _, e := range []string{"a@example.com", "b@example.com", "c@example.com"} {
			_, err := s.AddOrResubscribe(ctx, "", e)
			require.NoError(t, err)
		}
		subs, err := s.ListSubscribers(ctx)
		require.NoError(t, err)
		require.Len(t, subs, 3)
		for i := 1; i < len(subs); i++ {
			assert.False(t, subs[i].CreatedAt.After(subs[i-1].CreatedAt))
		}
		for _, sub := range subs {
			assert.Equal(t, domain.DefaultSubscriberName, sub.Name)
		}
	})
}

func TestContract_ConcurrentSignupsSameEmail(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		var wg sync.WaitGroup
		statuses := make([]domain.AddStatus, 8)
		for i := range statuses {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				st, err := s.AddOrResubscribe(ctx, "Ada", "ada@example.com")
				if err == nil {
					statuses[i] = st
				}
			}(i)
		}
		wg.Wait()

		created := 0
		for _, st := range statuses {
			if st == domain.AddStatusCreated {
				created++
			}
		}
		assert.Equal(t, 1, created)

		subs, err := s.ListSubscribers(ctx)
		require.NoError(t, err)
		assert.Len(t, subs, 1)
	})
}

func TestOptionsBackend(t *testing.T) {
	assert.Equal(t, BackendFile, Options{}.Backend())
	assert.Equal(t, BackendFile, Options{DSN: "   "}.Backend())
	assert.Equal(t, BackendPostgres, Options{DSN: "postgres://localhost/db"}.Backend())
}

func TestOpen_FileBackendMissingDirectory(t *testing.T) {
	_, err := Open(context.Background(), Options{FilePath: filepath.Join(t.TempDir(), "missing", "w.json")})
	require.Error(t, err)
}
