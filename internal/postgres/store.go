// Package postgres is the durable ledger.Store. Tables are append-only;
// nothing here issues UPDATE or DELETE.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"hourglass/internal/ledger"
	"hourglass/internal/model"
)

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Store struct {
	pool *pgxpool.Pool
	db   querier
}

var _ ledger.Store = (*Store)(nil)

func NewStore(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("pgx pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pgx ping: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("schema: %w", err)
	}
	return &Store{pool: pool, db: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// serializationRetries bounds how often a transaction is restarted after a
// SQLSTATE 40001 conflict before giving up.
const serializationRetries = 3

// InTx runs fn in a serializable transaction, so the engines' guarded
// appends cannot interleave. Nested calls reuse the open transaction;
// serialization conflicts restart fn from scratch.
func (s *Store) InTx(ctx context.Context, fn func(ledger.Store) error) error {
	if s.pool == nil {
		return fn(s)
	}
	var err error
	for attempt := 0; attempt < serializationRetries; attempt++ {
		err = s.runTx(ctx, fn)
		if !isSerializationFailure(err) {
			return err
		}
	}
	return err
}

func (s *Store) runTx(ctx context.Context, fn func(ledger.Store) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return err
	}
	if err := fn(&Store{db: tx}); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "40001"
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return model.ErrNotFound
	}
	return err
}

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id bigserial PRIMARY KEY,
	creation_time bigint NOT NULL,
	name text NOT NULL,
	email text NOT NULL,
	challenge_digest text NOT NULL
);
CREATE INDEX IF NOT EXISTS users_email_idx ON users (lower(email));
CREATE INDEX IF NOT EXISTS users_challenge_idx ON users (challenge_digest);

CREATE TABLE IF NOT EXISTS api_keys (
	id bigserial PRIMARY KEY,
	creation_time bigint NOT NULL,
	creator_user_id bigint NOT NULL,
	secret_digest text NOT NULL,
	kind text NOT NULL,
	duration bigint NOT NULL
);
CREATE INDEX IF NOT EXISTS api_keys_digest_idx ON api_keys (secret_digest);

CREATE TABLE IF NOT EXISTS passwords (
	id bigserial PRIMARY KEY,
	creation_time bigint NOT NULL,
	creator_user_id bigint NOT NULL,
	user_id bigint NOT NULL,
	kind text NOT NULL,
	password_hash text NOT NULL,
	reset_digest text NOT NULL
);
CREATE INDEX IF NOT EXISTS passwords_user_idx ON passwords (user_id);

CREATE TABLE IF NOT EXISTS verification_challenges (
	id bigserial PRIMARY KEY,
	creation_time bigint NOT NULL,
	secret_digest text NOT NULL,
	name text NOT NULL,
	email text NOT NULL,
	password_hash text NOT NULL
);
CREATE INDEX IF NOT EXISTS verification_challenges_email_idx ON verification_challenges (lower(email));
CREATE INDEX IF NOT EXISTS verification_challenges_digest_idx ON verification_challenges (secret_digest);

CREATE TABLE IF NOT EXISTS password_resets (
	id bigserial PRIMARY KEY,
	creation_time bigint NOT NULL,
	secret_digest text NOT NULL,
	user_id bigint NOT NULL
);
CREATE INDEX IF NOT EXISTS password_resets_digest_idx ON password_resets (secret_digest);

CREATE TABLE IF NOT EXISTS schools (
	id bigserial PRIMARY KEY,
	creation_time bigint NOT NULL,
	creator_user_id bigint NOT NULL,
	name text NOT NULL,
	description text NOT NULL
);

CREATE TABLE IF NOT EXISTS adminships (
	id bigserial PRIMARY KEY,
	creation_time bigint NOT NULL,
	creator_user_id bigint NOT NULL,
	user_id bigint NOT NULL,
	school_id bigint NOT NULL,
	kind text NOT NULL,
	school_key_id bigint NOT NULL
);
CREATE INDEX IF NOT EXISTS adminships_pair_idx ON adminships (user_id, school_id);

CREATE TABLE IF NOT EXISTS school_keys (
	id bigserial PRIMARY KEY,
	creation_time bigint NOT NULL,
	creator_user_id bigint NOT NULL,
	school_id bigint NOT NULL,
	secret_digest text NOT NULL,
	kind text NOT NULL,
	max_uses bigint NOT NULL,
	duration bigint NOT NULL
);
CREATE INDEX IF NOT EXISTS school_keys_digest_idx ON school_keys (secret_digest);

CREATE TABLE IF NOT EXISTS locations (
	id bigserial PRIMARY KEY,
	creation_time bigint NOT NULL,
	creator_user_id bigint NOT NULL,
	school_id bigint NOT NULL,
	name text NOT NULL,
	address text NOT NULL,
	phone text NOT NULL
);

CREATE TABLE IF NOT EXISTS courses (
	id bigserial PRIMARY KEY,
	creation_time bigint NOT NULL,
	creator_user_id bigint NOT NULL,
	school_id bigint NOT NULL,
	location_id bigint NOT NULL,
	name text NOT NULL,
	description text NOT NULL
);

CREATE TABLE IF NOT EXISTS course_keys (
	id bigserial PRIMARY KEY,
	creation_time bigint NOT NULL,
	creator_user_id bigint NOT NULL,
	course_id bigint NOT NULL,
	secret_digest text NOT NULL,
	kind text NOT NULL,
	membership_kind text NOT NULL,
	max_uses bigint NOT NULL,
	duration bigint NOT NULL
);
CREATE INDEX IF NOT EXISTS course_keys_digest_idx ON course_keys (secret_digest);

CREATE TABLE IF NOT EXISTS course_memberships (
	id bigserial PRIMARY KEY,
	creation_time bigint NOT NULL,
	creator_user_id bigint NOT NULL,
	user_id bigint NOT NULL,
	course_id bigint NOT NULL,
	kind text NOT NULL,
	source text NOT NULL,
	course_key_id bigint NOT NULL
);
CREATE INDEX IF NOT EXISTS course_memberships_pair_idx ON course_memberships (user_id, course_id);

CREATE TABLE IF NOT EXISTS sessions (
	id bigserial PRIMARY KEY,
	creation_time bigint NOT NULL,
	creator_user_id bigint NOT NULL,
	course_id bigint NOT NULL,
	location_id bigint NOT NULL,
	name text NOT NULL,
	start_time bigint NOT NULL,
	duration bigint NOT NULL,
	hidden boolean NOT NULL
);

CREATE TABLE IF NOT EXISTS session_requests (
	id bigserial PRIMARY KEY,
	creation_time bigint NOT NULL,
	attendee_user_id bigint NOT NULL,
	course_id bigint NOT NULL,
	start_time bigint NOT NULL,
	duration bigint NOT NULL,
	message text NOT NULL
);

CREATE TABLE IF NOT EXISTS session_request_responses (
	session_request_id bigint PRIMARY KEY,
	creation_time bigint NOT NULL,
	creator_user_id bigint NOT NULL,
	message text NOT NULL,
	accepted boolean NOT NULL,
	committment_id bigint NOT NULL
);

CREATE TABLE IF NOT EXISTS committments (
	id bigserial PRIMARY KEY,
	creation_time bigint NOT NULL,
	creator_user_id bigint NOT NULL,
	attendee_user_id bigint NOT NULL,
	session_id bigint NOT NULL,
	cancellable boolean NOT NULL
);
CREATE INDEX IF NOT EXISTS committments_pair_idx ON committments (attendee_user_id, session_id);

CREATE TABLE IF NOT EXISTS committment_responses (
	committment_id bigint PRIMARY KEY,
	creation_time bigint NOT NULL,
	creator_user_id bigint NOT NULL,
	kind text NOT NULL
);
`
