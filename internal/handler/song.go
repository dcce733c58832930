// Package handler contains the HTTP handlers of the song catalog.
//
// HANDLER RESPONSIBILITIES:
//  1. Read the request (URL parameters, form body)
//  2. Hand accepted data to the service layer
//  3. Answer: render a page, or flash a message and redirect
//
// Handlers hold no business rules. Score rounding and timestamps live in the
// service; persistence lives behind the repository. The collaborators a
// handler talks to are small interfaces so tests can swap in fakes.
package handler

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/song-catalog/internal/apperror"
	"github.com/sakif/song-catalog/internal/csrf"
	"github.com/sakif/song-catalog/internal/form"
	"github.com/sakif/song-catalog/internal/model"
)

// Flash kinds understood by the layout.
const (
	flashSuccess = "success"
	flashError   = "error"
)

// Route the workflows return to.
const routeIndex = "song.index"

// formTokenID is the intent of the token carried by the create and edit forms.
const formTokenID = "song_form"

// Songs is the service the handler drives. *service.SongService implements it.
type Songs interface {
	List(ctx context.Context) ([]model.Song, error)
	Get(ctx context.Context, id int64) (*model.Song, error)
	Create(ctx context.Context, song *model.Song, rawScore string) error
	Update(ctx context.Context, song *model.Song, rawScore string) error
	Delete(ctx context.Context, song *model.Song) error
}

// Responder turns handler outcomes into responses: one-time flash messages,
// redirects by route name, and rendered views.
type Responder interface {
	AddFlash(ctx context.Context, kind, message string)
	RedirectTo(w http.ResponseWriter, r *http.Request, route string)
	Render(w http.ResponseWriter, r *http.Request, status int, view string, data any)
	Error(w http.ResponseWriter, r *http.Request, status int, message string)
}

// CSRFTokens issues and checks per-intent security tokens. Verify fails with
// an apperror.ErrForbidden whose message says why.
type CSRFTokens interface {
	Token(ctx context.Context, id string) (string, error)
	Verify(ctx context.Context, id, supplied string) error
}

// SongRow is one line of the listing.
type SongRow struct {
	Song        model.Song
	DeleteToken string
}

// IndexPage is the data of the "index" view.
type IndexPage struct {
	Rows []SongRow
}

// FormPage is the data of the "create" and "edit" views.
type FormPage struct {
	Form *form.SongForm
	// Song is the record as loaded, before this request's changes. Nil on create.
	Song        *model.Song
	FormToken   string
	DeleteToken string
	Submit      string
}

// SongHandler serves the list, create, edit and delete pages.
type SongHandler struct {
	songs  Songs
	resp   Responder
	tokens CSRFTokens
	logger *slog.Logger
}

// NewSongHandler creates a SongHandler.
func NewSongHandler(songs Songs, resp Responder, tokens CSRFTokens, logger *slog.Logger) *SongHandler {
	return &SongHandler{
		songs:  songs,
		resp:   resp,
		tokens: tokens,
		logger: logger,
	}
}

// HandleIndex lists every song, each with a delete token of its own.
//
// HTTP: GET /
func (h *SongHandler) HandleIndex(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	songs, err := h.songs.List(ctx)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	rows := make([]SongRow, 0, len(songs))
	for _, s := range songs {
		token, err := h.tokens.Token(ctx, s.CSRFTokenID())
		if err != nil {
			h.fail(w, r, err)
			return
		}
		rows = append(rows, SongRow{Song: s, DeleteToken: token})
	}

	h.resp.Render(w, r, http.StatusOK, "index", IndexPage{Rows: rows})
}

// HandleCreate shows the empty form and accepts its submission.
//
// HTTP: GET, POST /create
//
// A valid submission is saved and answered with a redirect to the list; an
// invalid one is rendered again, with the user's input, as 422. A submission
// without a valid form token is refused with 403.
func (h *SongHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	song := &model.Song{}

	f := form.NewSongForm(song)
	if err := h.handleForm(f, r); err != nil {
		h.fail(w, r, err)
		return
	}

	if f.IsValid() {
		if err := h.songs.Create(ctx, song, f.RawScore()); err != nil {
			h.fail(w, r, err)
			return
		}
		h.resp.AddFlash(ctx, flashSuccess, "The song was added successfully.")
		h.resp.RedirectTo(w, r, routeIndex)
		return
	}

	formToken, err := h.tokens.Token(ctx, formTokenID)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	h.resp.Render(w, r, formStatus(f), "create", FormPage{
		Form:      f,
		FormToken: formToken,
		Submit:    "Add song",
	})
}

// HandleEdit shows a song in the form and accepts changes to it.
//
// HTTP: GET, POST /edit/{id}
func (h *SongHandler) HandleEdit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	song, err := h.loadSong(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	loaded := *song

	f := form.NewSongForm(song)
	if err := h.handleForm(f, r); err != nil {
		h.fail(w, r, err)
		return
	}

	if f.IsValid() {
		if err := h.songs.Update(ctx, song, f.RawScore()); err != nil {
			h.fail(w, r, err)
			return
		}
		h.resp.AddFlash(ctx, flashSuccess, fmt.Sprintf(`"%s" was updated successfully.`, song.Title))
		h.resp.RedirectTo(w, r, routeIndex)
		return
	}

	formToken, err := h.tokens.Token(ctx, formTokenID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	deleteToken, err := h.tokens.Token(ctx, loaded.CSRFTokenID())
	if err != nil {
		h.fail(w, r, err)
		return
	}

	h.resp.Render(w, r, formStatus(f), "edit", FormPage{
		Form:        f,
		Song:        &loaded,
		FormToken:   formToken,
		DeleteToken: deleteToken,
		Submit:      "Save changes",
	})
}

// HandleDelete removes a song when the request carries the delete token
// issued for it.
//
// HTTP: POST /delate/{id}
//
// Whether or not the token checks out, the answer is a redirect to the list;
// the flash message tells the user which of the two happened.
func (h *SongHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	song, err := h.loadSong(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	if err := h.tokens.Verify(ctx, song.CSRFTokenID(), r.PostFormValue(csrf.FieldName)); err != nil {
		h.logger.Warn("song not deleted: invalid csrf token",
			slog.Int64("id", song.ID),
			slog.String("reason", err.Error()),
			slog.String("remote_addr", r.RemoteAddr),
		)
		h.resp.AddFlash(ctx, flashError, "Invalid security token, the song was not deleted.")
		h.resp.RedirectTo(w, r, routeIndex)
		return
	}

	if err := h.songs.Delete(ctx, song); err != nil {
		h.fail(w, r, err)
		return
	}

	h.resp.AddFlash(ctx, flashSuccess, "The song was deleted successfully.")
	h.resp.RedirectTo(w, r, routeIndex)
}

// handleForm lets f read the request and, once it holds a submission, checks
// the form token that came with it.
func (h *SongHandler) handleForm(f *form.SongForm, r *http.Request) error {
	if err := f.Handle(r); err != nil {
		return err
	}
	if !f.IsSubmitted() {
		return nil
	}
	if err := h.tokens.Verify(r.Context(), formTokenID, r.PostFormValue(csrf.FieldName)); err != nil {
		h.logger.Warn("song form rejected: invalid csrf token",
			slog.String("path", r.URL.Path),
			slog.String("reason", err.Error()),
			slog.String("remote_addr", r.RemoteAddr),
		)
		return apperror.Forbidden("Invalid security token, please reload the form and submit it again.")
	}
	return nil
}

// loadSong reads the {id} URL parameter and loads that song. The router only
// matches digits, so the parse can fail only on overflow; that id cannot
// exist and is reported as not found.
func (h *SongHandler) loadSong(r *http.Request) (*model.Song, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		return nil, apperror.NotFound("song", 0)
	}
	return h.songs.Get(r.Context(), id)
}

// formStatus is 422 for a rejected submission and 200 otherwise.
func formStatus(f *form.SongForm) int {
	if f.IsSubmitted() && !f.IsValid() {
		return http.StatusUnprocessableEntity
	}
	return http.StatusOK
}
