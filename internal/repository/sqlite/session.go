package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/jmoiron/sqlx"
)

var (
	_ scs.Store    = (*SessionStore)(nil)
	_ scs.CtxStore = (*SessionStore)(nil)
)

// SessionStore keeps scs session data in the sessions table, so flash
// messages and CSRF nonces survive a server restart.
//
// Expiry is stored as Unix nanoseconds; expired rows are never returned by
// Find and are removed by DeleteExpired.
type SessionStore struct {
	conn *sqlx.DB
}

// Sessions returns a session store sharing this database's pool.
func (db *DB) Sessions() *SessionStore {
	return &SessionStore{conn: db.conn}
}

// FindCtx implements scs.CtxStore.
func (s *SessionStore) FindCtx(ctx context.Context, token string) ([]byte, bool, error) {
	var data []byte
	err := s.conn.GetContext(ctx, &data,
		`SELECT data FROM sessions WHERE token = ? AND expiry > ?`,
		token, time.Now().UnixNano(),
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("sqlite: finding session: %w", err)
	}
	return data, true, nil
}

// CommitCtx implements scs.CtxStore.
func (s *SessionStore) CommitCtx(ctx context.Context, token string, b []byte, expiry time.Time) error {
	_, err := s.conn.ExecContext(ctx,
		`INSERT INTO sessions (token, data, expiry) VALUES (?, ?, ?)
		 ON CONFLICT(token) DO UPDATE SET data = excluded.data, expiry = excluded.expiry`,
		token, b, expiry.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("sqlite: committing session: %w", err)
	}
	return nil
}

// DeleteCtx implements scs.CtxStore.
func (s *SessionStore) DeleteCtx(ctx context.Context, token string) error {
	if _, err := s.conn.ExecContext(ctx, `DELETE FROM sessions WHERE token = ?`, token); err != nil {
		return fmt.Errorf("sqlite: deleting session: %w", err)
	}
	return nil
}

// Find implements scs.Store
func (s *SessionStore) Find(token string) ([]byte, bool, error) {
	return s.FindCtx(context.Background(), token)
}

// Commit implements scs.Store
func (s *SessionStore) Commit(token string, b []byte, expiry time.Time) error {
	return s.CommitCtx(context.Background(), token, b, expiry)
}

// Delete implements scs.Store
func (s *SessionStore) Delete(token string) error {
	return s.DeleteCtx(context.Background(), token)
}

// DeleteExpired removes sessions whose expiry has passed and reports how many
// were dropped. The server calls it once at startup.
func (s *SessionStore) DeleteExpired(ctx context.Context) (int64, error) {
	res, err := s.conn.ExecContext(ctx,
		`DELETE FROM sessions WHERE expiry <= ?`, time.Now().UnixNano())
	if err != nil {
		return 0, fmt.Errorf("sqlite: deleting expired sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	return n, nil
}
