package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/i3visio/simplectf/model"
	"github.com/i3visio/simplectf/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS simplectf_solves (
    title         TEXT        NOT NULL,
    username      TEXT        NOT NULL,
    challenge_url TEXT        NOT NULL,
    points        BIGINT      NOT NULL CHECK (points >= 0),
    solved_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
    PRIMARY KEY (title, username, challenge_url)
)`

// pgStore stores one row per award. A user's total is the sum of their
// rows, so the points invariant can't drift. The primary key makes a second
// award of the same challenge a no-op, and a transaction-scoped advisory
// lock on (title, username) serializes awards per user.
type pgStore struct {
	db    *pgxpool.Pool
	title string
}

// NewStore wraps an existing pool and takes ownership of it: Close closes
// the pool. Migrate must have run on the database.
func NewStore(db *pgxpool.Pool, title string) store.Store {
	return &pgStore{db: db, title: title}
}

// Migrate creates the solves table if it does not exist.
func Migrate(ctx context.Context, db *pgxpool.Pool) error {
	_, err := db.Exec(ctx, schema)
	return err
}

// -------- reads ------------------------------------------------------------

func (p *pgStore) Get(ctx context.Context, username string) (model.UserProgress, error) {
	rows, err := p.db.Query(ctx,
		`SELECT username, challenge_url, points
         FROM simplectf_solves
         WHERE title=$1 AND username=$2`, p.title, username)
	if err != nil {
		return model.UserProgress{}, persistErr("query", err)
	}

	users, err := collect(rows)
	if err != nil {
		return model.UserProgress{}, err
	}

	result, ok := users[username]
	if !ok {
		return model.UserProgress{}, fmt.Errorf("%w: %q", store.ErrNotFound, username)
	}

	return result, nil
}

func (p *pgStore) Snapshot(ctx context.Context) (map[string]model.UserProgress, error) {
	rows, err := p.db.Query(ctx,
		`SELECT username, challenge_url, points
         FROM simplectf_solves
         WHERE title=$1`, p.title)
	if err != nil {
		return nil, persistErr("query", err)
	}

	return collect(rows)
}

func collect(rows pgx.Rows) (map[string]model.UserProgress, error) {
	defer rows.Close()

	result := map[string]model.UserProgress{}
	for rows.Next() {
		var (
			username, url string
			points        int
		)
		if err := rows.Scan(&username, &url, &points); err != nil {
			return nil, fmt.Errorf("%w: %w: %w", store.ErrPersistence, store.ErrCantDecode, err)
		}

		u, ok := result[username]
		if !ok {
			u = store.NewProgress(username)
		}
		u.Solved[url] = points
		u.Points += points
		result[username] = u
	}

	if err := rows.Err(); err != nil {
		return nil, persistErr("rows", err)
	}

	return result, nil
}

// -------- awards -----------------------------------------------------------

func (p *pgStore) ApplyAward(ctx context.Context, username, challengeURL string, points int) (store.AwardOutcome, model.UserProgress, error) {
	tx, err := p.db.Begin(ctx)
	if err != nil {
		return 0, model.UserProgress{}, persistErr("begin", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`SELECT pg_advisory_xact_lock(hashtext($1), hashtext($2))`,
		p.title, username); err != nil {
		return 0, model.UserProgress{}, persistErr("lock", err)
	}

	tag, err := tx.Exec(ctx,
		`INSERT INTO simplectf_solves (title, username, challenge_url, points)
         VALUES ($1,$2,$3,$4)
         ON CONFLICT (title, username, challenge_url) DO NOTHING`,
		p.title, username, challengeURL, points)
	if err != nil {
		return 0, model.UserProgress{}, persistErr("insert", err)
	}

	outcome := store.AlreadyAwarded
	if tag.RowsAffected() == 1 {
		outcome = store.FirstAward
	}

	rows, err := tx.Query(ctx,
		`SELECT username, challenge_url, points
         FROM simplectf_solves
         WHERE title=$1 AND username=$2`, p.title, username)
	if err != nil {
		return 0, model.UserProgress{}, persistErr("query", err)
	}

	users, err := collect(rows)
	if err != nil {
		return 0, model.UserProgress{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, model.UserProgress{}, persistErr("commit", err)
	}

	return outcome, users[username], nil
}

// Close closes the pool, including one handed to NewStore.
func (p *pgStore) Close() error {
	p.db.Close()
	return nil
}

// persistErr wraps err in store.ErrPersistence. Cancellation is passed
// through as is: the transaction was rolled back and nothing changed.
func persistErr(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	return fmt.Errorf("%w: %s: %w", store.ErrPersistence, op, err)
}
