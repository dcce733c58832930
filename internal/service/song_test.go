package service

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/sakif/song-catalog/internal/apperror"
	"github.com/sakif/song-catalog/internal/model"
)

// =========================================================================
// MOCK REPOSITORY
// =========================================================================
//
// mockSongRepo implements repository.SongRepository in memory. It records
// every Save/Remove call so tests can assert on the flush flag as well as on
// the stored data.

type mockSongRepo struct {
	songs   map[int64]model.Song
	nextID  int64
	saves   int
	removes int
	flushes []bool
	saveErr error
}

func newMockRepo() *mockSongRepo {
	return &mockSongRepo{songs: make(map[int64]model.Song)}
}

func (m *mockSongRepo) FindAll(_ context.Context) ([]model.Song, error) {
	out := make([]model.Song, 0, len(m.songs))
	for _, s := range m.songs {
		out = append(out, s)
	}
	return out, nil
}

func (m *mockSongRepo) FindByID(_ context.Context, id int64) (*model.Song, error) {
	s, ok := m.songs[id]
	if !ok {
		return nil, apperror.NotFound("song", id)
	}
	return &s, nil
}

func (m *mockSongRepo) Save(_ context.Context, song *model.Song, flush bool) error {
	m.saves++
	m.flushes = append(m.flushes, flush)
	if m.saveErr != nil {
		return m.saveErr
	}
	if song.IsNew() {
		m.nextID++
		song.ID = m.nextID
	}
	m.songs[song.ID] = *song
	return nil
}

func (m *mockSongRepo) Remove(_ context.Context, song *model.Song, flush bool) error {
	m.removes++
	m.flushes = append(m.flushes, flush)
	if _, ok := m.songs[song.ID]; !ok {
		return apperror.NotFound("song", song.ID)
	}
	delete(m.songs, song.ID)
	return nil
}

func (m *mockSongRepo) Flush(_ context.Context) error { return nil }

// =========================================================================
// TEST HELPERS
// =========================================================================

var t0 = time.Date(2024, 5, 10, 9, 30, 0, 0, time.UTC)

// newTestService wires a SongService to a mock repository and a clock that
// returns the times handed to it, in order, repeating the last one.
func newTestService(t *testing.T, times ...time.Time) (*SongService, *mockSongRepo) {
	t.Helper()
	repo := newMockRepo()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	svc := NewSongService(repo, logger)

	if len(times) == 0 {
		times = []time.Time{t0}
	}
	i := 0
	svc.now = func() time.Time {
		tm := times[i]
		if i < len(times)-1 {
			i++
		}
		return tm
	}
	return svc, repo
}

// =========================================================================
// CREATE TESTS
// =========================================================================

func TestCreate_RoundsScoreAndStamps(t *testing.T) {
	svc, repo := newTestService(t)

	// The form bound the unrounded value; the service must override it.
	song := &model.Song{Title: "Test", Score: 7.86}
	if err := svc.Create(context.Background(), song, "7.86"); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if song.ID == 0 {
		t.Error("Create() did not persist the song")
	}
	if song.Score != 7.9 {
		t.Errorf("Score = %v, want 7.9", song.Score)
	}
	if !song.CreatedAt.Equal(t0) {
		t.Errorf("CreatedAt = %v, want %v", song.CreatedAt, t0)
	}
	if !song.CreatedAt.Equal(song.UpdatedAt) {
		t.Errorf("CreatedAt %v != UpdatedAt %v", song.CreatedAt, song.UpdatedAt)
	}
	if got := repo.songs[song.ID].Score; got != 7.9 {
		t.Errorf("stored Score = %v, want 7.9", got)
	}
}

func TestCreate_FlushesImmediately(t *testing.T) {
	svc, repo := newTestService(t)

	if err := svc.Create(context.Background(), &model.Song{Title: "x"}, "1"); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if len(repo.flushes) != 1 || !repo.flushes[0] {
		t.Errorf("Save flush flags = %v, want [true]", repo.flushes)
	}
}

func TestCreate_InvalidScoreDoesNotSave(t *testing.T) {
	for _, raw := range []string{"abc", "1e400"} {
		svc, repo := newTestService(t)

		err := svc.Create(context.Background(), &model.Song{Title: "x"}, raw)

		if !errors.Is(err, apperror.ErrValidation) {
			t.Errorf("Create(%q) error = %v, want ErrValidation", raw, err)
		}
		if repo.saves != 0 {
			t.Errorf("Create(%q) called Save %d times, want 0", raw, repo.saves)
		}
	}
}

func TestCreate_RepositoryError(t *testing.T) {
	svc, repo := newTestService(t)
	boom := errors.New("disk full")
	repo.saveErr = boom

	err := svc.Create(context.Background(), &model.Song{Title: "x"}, "5")
	if !errors.Is(err, boom) {
		t.Errorf("Create() error = %v, want wrapped %v", err, boom)
	}
}

// =========================================================================
// UPDATE TESTS
// =========================================================================

func TestUpdate_OnlyRefreshesUpdatedAt(t *testing.T) {
	later := t0.Add(90 * time.Minute)
	svc, repo := newTestService(t, t0, later)
	ctx := context.Background()

	song := &model.Song{Title: "Original"}
	if err := svc.Create(ctx, song, "5"); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	song.Title = "Edited"
	if err := svc.Update(ctx, song, "6.44"); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	stored := repo.songs[song.ID]
	if !stored.CreatedAt.Equal(t0) {
		t.Errorf("CreatedAt = %v, want unchanged %v", stored.CreatedAt, t0)
	}
	if !stored.UpdatedAt.Equal(later) {
		t.Errorf("UpdatedAt = %v, want %v", stored.UpdatedAt, later)
	}
	if stored.Score != 6.4 {
		t.Errorf("Score = %v, want 6.4", stored.Score)
	}
	if stored.Title != "Edited" {
		t.Errorf("Title = %q, want %q", stored.Title, "Edited")
	}
}

func TestUpdate_UpdatedAtStrictlyIncreases(t *testing.T) {
	tests := []struct {
		name  string
		clock time.Time
	}{
		{name: "clock did not advance", clock: t0},
		{name: "clock went backwards", clock: t0.Add(-time.Hour)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _ := newTestService(t, t0, tt.clock)
			ctx := context.Background()

			song := &model.Song{Title: "Tick"}
			if err := svc.Create(ctx, song, "1"); err != nil {
				t.Fatalf("Create() error = %v", err)
			}
			before := song.UpdatedAt

			if err := svc.Update(ctx, song, "2"); err != nil {
				t.Fatalf("Update() error = %v", err)
			}
			if !song.UpdatedAt.After(before) {
				t.Errorf("UpdatedAt = %v, want strictly after %v", song.UpdatedAt, before)
			}
			if song.CreatedAt.After(song.UpdatedAt) {
				t.Errorf("CreatedAt %v is after UpdatedAt %v", song.CreatedAt, song.UpdatedAt)
			}
		})
	}
}

func TestUpdate_NewSong(t *testing.T) {
	svc, repo := newTestService(t)

	err := svc.Update(context.Background(), &model.Song{Title: "new"}, "1")
	if !errors.Is(err, apperror.ErrValidation) {
		t.Errorf("Update() error = %v, want ErrValidation", err)
	}
	if repo.saves != 0 {
		t.Errorf("Save called %d times, want 0", repo.saves)
	}
}

// =========================================================================
// DELETE / READ TESTS
// =========================================================================

func TestDelete_RemovesWithFlush(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()
	keep := &model.Song{Title: "keep"}
	drop := &model.Song{Title: "drop"}
	svc.Create(ctx, keep, "1")
	svc.Create(ctx, drop, "2")

	if err := svc.Delete(ctx, drop); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	if _, ok := repo.songs[drop.ID]; ok {
		t.Error("Delete() left the song in the repository")
	}
	if _, ok := repo.songs[keep.ID]; !ok {
		t.Error("Delete() removed an unrelated song")
	}
	if last := repo.flushes[len(repo.flushes)-1]; !last {
		t.Error("Remove was not called with flush=true")
	}
}

func TestGet_NotFound(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Get(context.Background(), 77)
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}
}

func TestList(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	svc.Create(ctx, &model.Song{Title: "a"}, "1")
	svc.Create(ctx, &model.Song{Title: "b"}, "2")

	songs, err := svc.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(songs) != 2 {
		t.Errorf("List() returned %d songs, want 2", len(songs))
	}
}
