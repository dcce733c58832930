// Package service contains the business logic layer of the application.
//
// THE THREE-LAYER ARCHITECTURE:
//
//	Handler (HTTP layer)     → binds forms, flashes, redirects, renders
//	Service (Business layer) → derives and stamps fields, persists
//	Repository (Data layer)  → reads/writes the database
//
// The form binder decides whether a submission is acceptable. Everything
// that happens to a song AFTER it has been accepted lives here: the score is
// recomputed from the submitted text and rounded, timestamps are set, and the
// result is saved with flush-now semantics. Keeping those rules out of
// model.Song means the entity stays a plain record and the rules can be
// tested with a fake repository and a fixed clock.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sakif/song-catalog/internal/apperror"
	"github.com/sakif/song-catalog/internal/model"
	"github.com/sakif/song-catalog/internal/repository"
)

// ScorePlaces is the number of decimal places a stored score keeps.
const ScorePlaces = 1

// SongService applies the post-validation rules of the create and edit
// workflows and talks to the repository.
type SongService struct {
	repo   repository.SongRepository
	logger *slog.Logger
	now    func() time.Time
}

// NewSongService creates a SongService using the wall clock.
func NewSongService(repo repository.SongRepository, logger *slog.Logger) *SongService {
	return &SongService{
		repo:   repo,
		logger: logger,
		now:    time.Now,
	}
}

// RoundScore parses the submitted score text and rounds it to ScorePlaces
// decimal places, half away from zero.
//
// Rounding works on the decimal text, not on a float64, so "8.05" becomes
// 8.1 even though the nearest float64 to 8.05 is slightly below it:
//
//	"7.86" → 7.9    "7.84" → 7.8
//	"8.05" → 8.1    "8.04" → 8.0
//	"-0.05" → -0.1
func RoundScore(raw string) (float64, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return 0, apperror.ValidationFailed("score", "score must be a number")
	}
	f, _ := d.Round(ScorePlaces).Float64()
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, apperror.ValidationFailed("score", "score is out of range")
	}
	return f, nil
}

// Create finalises a freshly bound song and inserts it.
//
// The score is recomputed from rawScore, overriding whatever the form bound,
// and CreatedAt and UpdatedAt are set to the same instant.
func (s *SongService) Create(ctx context.Context, song *model.Song, rawScore string) error {
	score, err := RoundScore(rawScore)
	if err != nil {
		return err
	}

	now := s.now().UTC()
	song.Score = score
	song.CreatedAt = now
	song.UpdatedAt = now

	if err := s.repo.Save(ctx, song, true); err != nil {
		s.logger.Error("failed to create song",
			slog.String("title", song.Title),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("creating song: %w", err)
	}

	s.logger.Info("song created",
		slog.Int64("id", song.ID),
		slog.String("title", song.Title),
		slog.Float64("score", song.Score),
	)
	return nil
}

// Update finalises an edited song and saves it.
//
// Only UpdatedAt is stamped; CreatedAt is left as loaded. UpdatedAt always
// moves strictly forward, even if the clock reads the same instant as (or an
// instant before) the previous edit.
func (s *SongService) Update(ctx context.Context, song *model.Song, rawScore string) error {
	if song.IsNew() {
		return apperror.ValidationFailed("id", "cannot update a song that was never saved")
	}

	score, err := RoundScore(rawScore)
	if err != nil {
		return err
	}

	now := s.now().UTC()
	if !now.After(song.UpdatedAt) {
		now = song.UpdatedAt.Add(time.Microsecond)
	}
	song.Score = score
	song.UpdatedAt = now

	if err := s.repo.Save(ctx, song, true); err != nil {
		s.logger.Error("failed to update song",
			slog.Int64("id", song.ID),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("updating song %d: %w", song.ID, err)
	}

	s.logger.Info("song updated",
		slog.Int64("id", song.ID),
		slog.String("title", song.Title),
		slog.Float64("score", song.Score),
	)
	return nil
}

// Delete removes a song with flush-now semantics. Authorising the deletion
// (the CSRF check) is the caller's job.
func (s *SongService) Delete(ctx context.Context, song *model.Song) error {
	if err := s.repo.Remove(ctx, song, true); err != nil {
		return fmt.Errorf("deleting song %d: %w", song.ID, err)
	}

	s.logger.Info("song deleted",
		slog.Int64("id", song.ID),
		slog.String("title", song.Title),
	)
	return nil
}

// Get loads a song by id. Unknown ids yield an error wrapping
// apperror.ErrNotFound.
func (s *SongService) Get(ctx context.Context, id int64) (*model.Song, error) {
	return s.repo.FindByID(ctx, id)
}

// List returns every song, in whatever order the repository yields them.
func (s *SongService) List(ctx context.Context) ([]model.Song, error) {
	songs, err := s.repo.FindAll(ctx)
	if err != nil {
		s.logger.Error("failed to list songs", slog.String("error", err.Error()))
		return nil, fmt.Errorf("listing songs: %w", err)
	}
	return songs, nil
}
