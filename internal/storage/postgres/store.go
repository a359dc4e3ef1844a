// Package postgres implements the storage contract on PostgreSQL via
// database/sql and lib/pq.
//
// Numbering strategy: the insert computes COALESCE(MAX(giveaway_number),0)+1
// in the same statement. Two racing registrations can still read the same
// max under read committed, so a UNIQUE index on giveaway_number turns the
// losing write into a 23505 unique violation, and the whole
// read-max/write-number step is retried.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"

	"github.com/arthall/onboard-bot/internal/domain"
	"github.com/arthall/onboard-bot/internal/storage"
)

const (
	uniqueViolation = "23505"
	maxNumberRetry  = 5
	retryBackoff    = 25 * time.Millisecond
)

// Store is a PostgreSQL-backed storage adapter.
type Store struct {
	db  *sql.DB
	log *slog.Logger
}

var _ storage.Store = (*Store)(nil)

// New wraps an open database handle. The caller owns connection settings;
// the store owns schema and queries.
func New(db *sql.DB, log *slog.Logger) *Store {
	if log == nil {
		log = slog.Default()
	}

	return &Store{db: db, log: log}
}

// Init creates the schema if it does not exist yet.
func (s *Store) Init(ctx context.Context) error {
	const usersTable = `
		CREATE TABLE IF NOT EXISTS users (
			id               BIGSERIAL PRIMARY KEY,
			telegram_id      BIGINT UNIQUE NOT NULL,
			username         TEXT NOT NULL DEFAULT '',
			first_name       TEXT NOT NULL DEFAULT '',
			last_name        TEXT NOT NULL DEFAULT '',
			phone            TEXT NOT NULL DEFAULT '',
			joined_at        TIMESTAMPTZ NOT NULL,
			giveaway_number  INTEGER UNIQUE
		)
	`
	const settingsTable = `
		CREATE TABLE IF NOT EXISTS settings (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)
	`

	if _, err := s.db.ExecContext(ctx, usersTable); err != nil {
		return fmt.Errorf("create users table: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, settingsTable); err != nil {
		return fmt.Errorf("create settings table: %w", err)
	}

	return nil
}

// UserExists reports whether a record with the identity is present.
func (s *Store) UserExists(ctx context.Context, telegramID int64) (bool, error) {
	const query = `SELECT 1 FROM users WHERE telegram_id = $1`

	var one int
	err := s.db.QueryRowContext(ctx, query, telegramID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("select user existence: %w", err)
	}

	return true, nil
}

// AddUser inserts the record with the next giveaway number. Duplicate
// identities are absorbed by ON CONFLICT DO NOTHING; lost numbering races
// surface as unique violations and are retried.
func (s *Store) AddUser(ctx context.Context, user *domain.User) error {
	const query = `
		INSERT INTO users (telegram_id, username, first_name, last_name, joined_at, giveaway_number)
		SELECT $1, $2, $3, $4, $5, COALESCE(MAX(giveaway_number), 0) + 1
		FROM users
		ON CONFLICT (telegram_id) DO NOTHING
	`

	joined := user.JoinedAt
	if joined.IsZero() {
		joined = time.Now().UTC()
	}

	var err error
	for attempt := 0; attempt < maxNumberRetry; attempt++ {
		_, err = s.db.ExecContext(ctx, query,
			user.TelegramID,
			user.Username,
			user.FirstName,
			user.LastName,
			joined,
		)
		if err == nil {
			return nil
		}

		if !isNumberConflict(err) {
			s.log.Error("failed to insert user",
				slog.Int64("telegram_id", user.TelegramID), slog.Any("error", err))
			return fmt.Errorf("insert user: %w", err)
		}

		s.log.Warn("giveaway number race lost, retrying",
			slog.Int64("telegram_id", user.TelegramID), slog.Int("attempt", attempt+1))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryBackoff):
		}
	}

	return fmt.Errorf("insert user %d: %w", user.TelegramID, storage.ErrNumberConflict)
}

// SavePhone sets the phone field on an existing record.
func (s *Store) SavePhone(ctx context.Context, telegramID int64, phone string) error {
	const query = `UPDATE users SET phone = $1 WHERE telegram_id = $2`

	result, err := s.db.ExecContext(ctx, query, phone, telegramID)
	if err != nil {
		return fmt.Errorf("update phone: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update phone rows affected: %w", err)
	}
	if affected == 0 {
		return storage.ErrUserNotFound
	}

	return nil
}

// AllUserIDs returns every known identity.
func (s *Store) AllUserIDs(ctx context.Context) ([]int64, error) {
	const query = `SELECT telegram_id FROM users`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("select user ids: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan user id: %w", err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate user ids: %w", err)
	}

	return ids, nil
}

// GiveawayNumber returns the assigned number for the identity.
func (s *Store) GiveawayNumber(ctx context.Context, telegramID int64) (int, error) {
	const query = `SELECT giveaway_number FROM users WHERE telegram_id = $1`

	var number sql.NullInt64
	err := s.db.QueryRowContext(ctx, query, telegramID).Scan(&number)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, storage.ErrUserNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("select giveaway number: %w", err)
	}

	return int(number.Int64), nil
}

// Stats returns the total count and the five newest records.
func (s *Store) Stats(ctx context.Context) (*domain.Stats, error) {
	const countQuery = `SELECT COUNT(*) FROM users`
	const recentQuery = `
		SELECT telegram_id, username, first_name, last_name, phone, joined_at, COALESCE(giveaway_number, 0)
		FROM users
		ORDER BY id DESC
		LIMIT 5
	`

	stats := &domain.Stats{}
	if err := s.db.QueryRowContext(ctx, countQuery).Scan(&stats.Total); err != nil {
		return nil, fmt.Errorf("count users: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, recentQuery)
	if err != nil {
		return nil, fmt.Errorf("select recent users: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		stats.Recent = append(stats.Recent, user)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate recent users: %w", err)
	}

	return stats, nil
}

// ExportUsers returns every record in creation order.
func (s *Store) ExportUsers(ctx context.Context) ([]domain.User, error) {
	const query = `
		SELECT telegram_id, username, first_name, last_name, phone, joined_at, COALESCE(giveaway_number, 0)
		FROM users
		ORDER BY id ASC
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("select users for export: %w", err)
	}
	defer rows.Close()

	var users []domain.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users for export: %w", err)
	}

	return users, nil
}

// Setting returns the stored value for key.
func (s *Store) Setting(ctx context.Context, key string) (string, error) {
	const query = `SELECT value FROM settings WHERE key = $1`

	var value string
	err := s.db.QueryRowContext(ctx, query, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", storage.ErrSettingNotFound
	}
	if err != nil {
		return "", fmt.Errorf("select setting %q: %w", key, err)
	}

	return value, nil
}

// SetSetting upserts the value for key.
func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	const query = `
		INSERT INTO settings (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value
	`

	if _, err := s.db.ExecContext(ctx, query, key, value); err != nil {
		return fmt.Errorf("upsert setting %q: %w", key, err)
	}

	return nil
}

// AssignMissingNumbers numbers unnumbered records in creation order.
// Each row recomputes the current max inside a single UPDATE, so the
// unique index serializes it against concurrent registrations.
func (s *Store) AssignMissingNumbers(ctx context.Context) (int, error) {
	const selectQuery = `SELECT id FROM users WHERE giveaway_number IS NULL ORDER BY id ASC`
	const updateQuery = `
		UPDATE users
		SET giveaway_number = (SELECT COALESCE(MAX(giveaway_number), 0) + 1 FROM users)
		WHERE id = $1 AND giveaway_number IS NULL
	`

	rows, err := s.db.QueryContext(ctx, selectQuery)
	if err != nil {
		return 0, fmt.Errorf("select unnumbered users: %w", err)
	}

	var rowIDs []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scan unnumbered user: %w", err)
		}
		rowIDs = append(rowIDs, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, fmt.Errorf("iterate unnumbered users: %w", err)
	}
	rows.Close()

	healed := 0
	for _, rowID := range rowIDs {
		if err := s.assignOne(ctx, updateQuery, rowID); err != nil {
			return healed, err
		}
		healed++
	}

	return healed, nil
}

func (s *Store) assignOne(ctx context.Context, updateQuery string, rowID int64) error {
	var err error
	for attempt := 0; attempt < maxNumberRetry; attempt++ {
		_, err = s.db.ExecContext(ctx, updateQuery, rowID)
		if err == nil {
			return nil
		}
		if !isNumberConflict(err) {
			return fmt.Errorf("backfill row %d: %w", rowID, err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryBackoff):
		}
	}

	return fmt.Errorf("backfill row %d: %w", rowID, storage.ErrNumberConflict)
}

// HealthCheck pings the database.
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (domain.User, error) {
	var user domain.User
	if err := row.Scan(
		&user.TelegramID,
		&user.Username,
		&user.FirstName,
		&user.LastName,
		&user.Phone,
		&user.JoinedAt,
		&user.GiveawayNumber,
	); err != nil {
		return domain.User{}, fmt.Errorf("scan user row: %w", err)
	}

	return user, nil
}

func isNumberConflict(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}

	return pqErr.Code == uniqueViolation && pqErr.Constraint != "users_telegram_id_key"
}
