package form

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/sakif/song-catalog/internal/apperror"
	"github.com/sakif/song-catalog/internal/model"
)

// Input names of the song form.
const (
	FieldTitle = "title"
	FieldScore = "score"
)

// MaxTitleLength is the longest accepted title, in characters.
const MaxTitleLength = 255

// MaxScore bounds the magnitude of a score. Anything larger cannot be
// stored with one decimal place of precision.
const MaxScore = 1_000_000_000

var maxScore = decimal.NewFromInt(MaxScore)

// songInput holds the raw submitted values and their validation rules.
type songInput struct {
	Title string `form:"title" validate:"required,max=255"`
	Score string `form:"score" validate:"required,numeric,score_range"`
}

var songMessages = map[string]string{
	"title.required":    "Please enter a title.",
	"title.max":         "The title cannot be longer than 255 characters.",
	"score.required":    "Please enter a score.",
	"score.numeric":     "The score must be a number, e.g. 7.5.",
	"score.score_range": "The score must be between -1000000000 and 1000000000.",
}

// scoreInRange backs the score_range rule. It only runs on text that already
// passed the numeric rule.
func scoreInRange(fl validator.FieldLevel) bool {
	d, err := decimal.NewFromString(fl.Field().String())
	if err != nil {
		return false
	}
	return d.Abs().LessThanOrEqual(maxScore)
}

// SongForm binds a submission onto a *model.Song.
type SongForm struct {
	song      *model.Song
	input     songInput
	submitted bool
	errors    map[string]string
}

// NewSongForm creates a form for song. An existing song pre-populates the
// inputs; a new one starts empty.
func NewSongForm(song *model.Song) *SongForm {
	f := &SongForm{song: song}
	f.input.Title = song.Title
	if !song.IsNew() {
		f.input.Score = strconv.FormatFloat(song.Score, 'f', -1, 64)
	}
	return f
}

// Handle reads the request. Anything but a POST leaves the form untouched.
//
// A POST that carries at least one of the form's fields marks the form as
// submitted: the validation rules run, title (trimmed) is bound onto the
// song, and the score is bound when it passed its rules. A body that cannot be
// parsed at all is reported as an error rather than as a field problem.
func (f *SongForm) Handle(r *http.Request) error {
	if r.Method != http.MethodPost {
		return nil
	}
	if err := r.ParseForm(); err != nil {
		return apperror.ValidationFailed("", "the submitted form could not be read")
	}

	_, hasTitle := r.PostForm[FieldTitle]
	_, hasScore := r.PostForm[FieldScore]
	if !hasTitle && !hasScore {
		return nil
	}
	f.submitted = true

	var in songInput
	if err := decoder.Decode(&in, r.PostForm); err != nil {
		return apperror.ValidationFailed("", "the submitted form could not be read")
	}
	f.input.Title = strings.TrimSpace(in.Title)
	f.input.Score = strings.TrimSpace(in.Score)

	f.errors = fieldErrors(f.input, songMessages)

	f.song.Title = f.input.Title
	if _, bad := f.errors[FieldScore]; !bad {
		if score, err := strconv.ParseFloat(f.input.Score, 64); err == nil {
			f.song.Score = score
		}
	}
	return nil
}

// IsSubmitted reports whether the request carried this form's data.
func (f *SongForm) IsSubmitted() bool { return f.submitted }

// IsValid reports whether the form was submitted and passed every rule.
func (f *SongForm) IsValid() bool { return f.submitted && len(f.errors) == 0 }

// Song returns the bound entity.
func (f *SongForm) Song() *model.Song { return f.song }

// Title is the title to show in the input.
func (f *SongForm) Title() string { return f.input.Title }

// RawScore is the score text exactly as submitted (trimmed), or the stored
// score when the form was not submitted.
func (f *SongForm) RawScore() string { return f.input.Score }

// Errors returns the per-field messages of the last submission.
func (f *SongForm) Errors() map[string]string { return f.errors }

// Error returns the message for one field, or "".
func (f *SongForm) Error(field string) string { return f.errors[field] }
