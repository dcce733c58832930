// Package repository declares the persistence contracts the rest of the
// application programs against. Concrete implementations live in
// sub-packages (see repository/sqlite).
package repository

import (
	"context"

	"github.com/sakif/song-catalog/internal/model"
)

// SongRepository persists songs.
//
// Save and Remove take a flush flag: with flush=true the change is committed
// before the call returns; with flush=false it is queued and only committed by
// the next Flush (or by a later flushing Save/Remove). A queued insert gets
// its ID when it is flushed.
//
// FindByID returns an error wrapping apperror.ErrNotFound for unknown ids.
type SongRepository interface {
	FindAll(ctx context.Context) ([]model.Song, error)
	FindByID(ctx context.Context, id int64) (*model.Song, error)
	Save(ctx context.Context, song *model.Song, flush bool) error
	Remove(ctx context.Context, song *model.Song, flush bool) error
	Flush(ctx context.Context) error
}
