// Package model defines the data structures used throughout the application.
//
// Types here are plain records. Rules that derive or stamp field values
// (score rounding, timestamps) live in the service layer, so a Song can be
// built, bound and compared in tests without dragging business logic along.
package model

import (
	"strconv"
	"time"
)

// Song is one catalog entry.
//
// ID is assigned by the repository on the first flushed save; zero means the
// song has never been persisted. Score always holds the value rounded to one
// decimal place once the song has gone through a create or edit submission.
type Song struct {
	ID        int64     `json:"id"        db:"id"`
	Title     string    `json:"title"     db:"title"`
	Score     float64   `json:"score"     db:"score"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

// IsNew reports whether the song has not been persisted yet.
func (s *Song) IsNew() bool {
	return s.ID == 0
}

// CSRFTokenID is the scope used for tokens protecting state-changing actions
// on this particular song, e.g. "song_42".
func (s *Song) CSRFTokenID() string {
	return "song_" + strconv.FormatInt(s.ID, 10)
}
