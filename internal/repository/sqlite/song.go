package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/sakif/song-catalog/internal/apperror"
	"github.com/sakif/song-catalog/internal/model"
	"github.com/sakif/song-catalog/internal/repository"
)

// Compile-time check that *DB implements repository.SongRepository.
var _ repository.SongRepository = (*DB)(nil)

type opKind int

const (
	opSave opKind = iota
	opRemove
)

// pendingOp is a change queued by Save or Remove with flush=false. It keeps
// the caller's pointer so the ID of a queued insert lands on the caller's
// song once the queue is flushed.
type pendingOp struct {
	kind opKind
	song *model.Song
}

const songColumns = `id, title, score, created_at, updated_at`

// FindAll returns every song ordered by id. An empty table yields an empty,
// non-nil slice.
func (db *DB) FindAll(ctx context.Context) ([]model.Song, error) {
	songs := []model.Song{}
	err := db.conn.SelectContext(ctx, &songs,
		`SELECT `+songColumns+` FROM songs ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing songs: %w", err)
	}
	return songs, nil
}

// FindByID loads a single song. sql.ErrNoRows is translated to the domain's
// NotFound error so the HTTP layer can answer 404.
func (db *DB) FindByID(ctx context.Context, id int64) (*model.Song, error) {
	var song model.Song
	err := db.conn.GetContext(ctx, &song,
		`SELECT `+songColumns+` FROM songs WHERE id = ?`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("song", id)
		}
		return nil, fmt.Errorf("sqlite: getting song %d: %w", id, err)
	}
	return &song, nil
}

// Save inserts a new song (ID == 0) or updates an existing one.
//
// With flush=true the change, together with anything queued before it, is
// committed in one transaction before Save returns, and a new song has its ID
// set. With flush=false the change waits for the next flush.
//
// Updates never touch created_at: it is written once by the insert.
func (db *DB) Save(ctx context.Context, song *model.Song, flush bool) error {
	if song == nil {
		return errors.New("sqlite: save: nil song")
	}
	return db.enqueue(ctx, pendingOp{kind: opSave, song: song}, flush)
}

// Remove deletes a persisted song. Same flush semantics as Save.
func (db *DB) Remove(ctx context.Context, song *model.Song, flush bool) error {
	if song == nil {
		return errors.New("sqlite: remove: nil song")
	}
	if song.IsNew() {
		return apperror.NotFound("song", song.ID)
	}
	return db.enqueue(ctx, pendingOp{kind: opRemove, song: song}, flush)
}

// Flush commits every queued change in a single transaction.
func (db *DB) Flush(ctx context.Context) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.flushLocked(ctx)
}

func (db *DB) enqueue(ctx context.Context, op pendingOp, flush bool) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	db.pending = append(db.pending, op)
	if !flush {
		return nil
	}
	return db.flushLocked(ctx)
}

// flushLocked applies the queue inside one transaction. db.mu must be held.
//
// The queue is emptied whether or not the commit succeeds: a batch that failed
// once is not replayed behind the caller's back. IDs handed out to inserts of
// a failed batch are reset to zero so those songs still report IsNew.
func (db *DB) flushLocked(ctx context.Context) error {
	if len(db.pending) == 0 {
		return nil
	}
	ops := db.pending
	db.pending = nil

	tx, err := db.conn.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning flush: %w", err)
	}

	var inserted []*model.Song
	rollback := func(cause error) error {
		tx.Rollback()
		for _, s := range inserted {
			s.ID = 0
		}
		return cause
	}

	for _, op := range ops {
		switch op.kind {
		case opSave:
			if op.song.IsNew() {
				if err := insertSong(ctx, tx, op.song); err != nil {
					return rollback(err)
				}
				inserted = append(inserted, op.song)
				continue
			}
			if err := updateSong(ctx, tx, op.song); err != nil {
				return rollback(err)
			}
		case opRemove:
			if err := deleteSong(ctx, tx, op.song.ID); err != nil {
				return rollback(err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return rollback(fmt.Errorf("sqlite: committing flush: %w", err))
	}
	return nil
}

func insertSong(ctx context.Context, tx *sqlx.Tx, song *model.Song) error {
	res, err := tx.NamedExecContext(ctx,
		`INSERT INTO songs (title, score, created_at, updated_at)
		 VALUES (:title, :score, :created_at, :updated_at)`,
		song,
	)
	if err != nil {
		return fmt.Errorf("sqlite: inserting song: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("sqlite: reading inserted song id: %w", err)
	}
	song.ID = id
	return nil
}

func updateSong(ctx context.Context, tx *sqlx.Tx, song *model.Song) error {
	res, err := tx.NamedExecContext(ctx,
		`UPDATE songs
		 SET title = :title, score = :score, updated_at = :updated_at
		 WHERE id = :id`,
		song,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating song %d: %w", song.ID, err)
	}
	return expectOneRow(res, song.ID)
}

func deleteSong(ctx context.Context, tx *sqlx.Tx, id int64) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM songs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting song %d: %w", id, err)
	}
	return expectOneRow(res, id)
}

// expectOneRow turns "the WHERE clause matched nothing" into NotFound.
func expectOneRow(res sql.Result, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if n == 0 {
		return apperror.NotFound("song", id)
	}
	return nil
}
