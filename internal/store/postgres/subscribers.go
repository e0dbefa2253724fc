package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/weararcstarz/arcstar/internal/domain"
)

const subscribersTable = "arcstarz_subscribers"

var subscriberColumns = []string{"id", "name", "email", "unsubscribed", "created_at"}

type SubscribersStore struct {
	db *sql.DB
	sb squirrel.StatementBuilderType
}

func NewSubscribersStore(db *sql.DB) *SubscribersStore {
	return &SubscribersStore{
		db: db,
		sb: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

func (s *SubscribersStore) ListSubscribers(ctx context.Context) ([]domain.Subscriber, error) {
	q, args, err := s.sb.Select(subscriberColumns...).
		From(subscribersTable).
		OrderBy("created_at DESC", "id DESC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list subscribers: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Subscriber, 0)
	for rows.Next() {
		sub, err := scanSubscriber(rows)
		if err != nil {
			return nil, fmt.Errorf("scan subscriber: %w", err)
		}
		out = append(out, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list subscribers: %w", err)
	}
	return out, nil
}

func (s *SubscribersStore) FindByEmail(ctx context.Context, email string) (domain.Subscriber, error) {
	email = domain.NormalizeEmail(email)
	if email == "" {
		return domain.Subscriber{}, domain.ErrNotFound
	}

	q, args, err := s.sb.Select(subscriberColumns...).
		From(subscribersTable).
		Where(squirrel.Eq{"email": email}).
		Limit(1).
		ToSql()
	if err != nil {
		return domain.Subscriber{}, fmt.Errorf("build find query: %w", err)
	}

	sub, err := scanSubscriber(s.db.QueryRowContext(ctx, q, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Subscriber{}, domain.ErrNotFound
		}
		return domain.Subscriber{}, fmt.Errorf("find subscriber: %w", err)
	}
	return sub, nil
}

// AddOrResubscribe inserts a new row or reactivates an unsubscribed one in a
// single statement. The conditional DO UPDATE returns no row when the existing
// subscriber is still active.
func (s *SubscribersStore) AddOrResubscribe(ctx context.Context, name, email string) (domain.AddStatus, error) {
	email = domain.NormalizeEmail(email)
	if !domain.IsValidEmail(email) {
		return domain.AddStatusInvalid, nil
	}
	name = domain.NormalizeName(name)

	q, args, err := s.sb.Insert(subscribersTable).
		Columns("name", "email", "unsubscribed").
		Values(name, email, false).
		Suffix("ON CONFLICT (email) DO UPDATE SET name = EXCLUDED.name, unsubscribed = FALSE, updated_at = NOW() " +
			"WHERE " + subscribersTable + ".unsubscribed RETURNING (xmax = 0) AS inserted").
		ToSql()
	if err != nil {
		return "", fmt.Errorf("build upsert: %w", err)
	}

	var inserted bool
	if err := s.db.QueryRowContext(ctx, q, args...).Scan(&inserted); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.AddStatusDuplicate, nil
		}
		return "", mapWriteError("add subscriber", err)
	}
	if inserted {
		return domain.AddStatusCreated, nil
	}
	return domain.AddStatusResubscribed, nil
}

func (s *SubscribersStore) MergeSubscribers(ctx context.Context, rows []domain.MergeRow) (int, error) {
	rows = domain.NormalizeMergeRows(rows)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin merge: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, row := range rows {
		q, args, err := s.sb.Insert(subscribersTable).
			Columns("name", "email", "unsubscribed").
			Values(row.Name, row.Email, false).
			Suffix("ON CONFLICT (email) DO UPDATE SET name = EXCLUDED.name, updated_at = NOW()").
			ToSql()
		if err != nil {
			return 0, fmt.Errorf("build merge upsert: %w", err)
		}
		if _, err := tx.ExecContext(ctx, q, args...); err != nil {
			return 0, mapWriteError("merge subscriber", err)
		}
	}

	q, args, err := s.sb.Select("COUNT(*)").From(subscribersTable).ToSql()
	if err != nil {
		return 0, fmt.Errorf("build count query: %w", err)
	}
	var count int
	if err := tx.QueryRowContext(ctx, q, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count subscribers: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit merge: %w", err)
	}
	return count, nil
}

func (s *SubscribersStore) UnsubscribeEmail(ctx context.Context, email string) error {
	email = domain.NormalizeEmail(email)
	if email == "" {
		return domain.NewValidationError(map[string]string{"email": "Invalid email"})
	}

	q, args, err := s.sb.Update(subscribersTable).
		Set("unsubscribed", true).
		Set("updated_at", squirrel.Expr("NOW()")).
		Where(squirrel.Eq{"email": email}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build unsubscribe: %w", err)
	}

	res, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return mapWriteError("unsubscribe", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("unsubscribe rows affected: %w", err)
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *SubscribersStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SubscribersStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSubscriber(row rowScanner) (domain.Subscriber, error) {
	var (
		id        int64
		sub       domain.Subscriber
		createdAt time.Time
	)
	if err := row.Scan(&id, &sub.Name, &sub.Email, &sub.Unsubscribed, &createdAt); err != nil {
		return domain.Subscriber{}, err
	}
	sub.ID = strconv.FormatInt(id, 10)
	sub.CreatedAt = createdAt.UTC()
	return sub, nil
}

func mapWriteError(op string, err error) error {
	var pgerr *pgconn.PgError
	if errors.As(err, &pgerr) {
		switch pgerr.Code {
		case "23505":
			return domain.ErrAlreadySubscribed
		case "23514":
			return fmt.Errorf("%s: check violation (%s): %w", op, pgerr.ConstraintName, domain.ErrValidation)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}
