package web

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alexedwards/scs/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestResponder(t *testing.T) *Responder {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	rs, err := NewResponder(scs.New(), logger)
	require.NoError(t, err)
	return rs
}

// sessionRequest builds a request whose context carries a loaded session.
func sessionRequest(t *testing.T, rs *Responder, method, target string) *http.Request {
	t.Helper()
	ctx, err := rs.sessions.Load(context.Background(), "")
	require.NoError(t, err)
	return httptest.NewRequest(method, target, nil).WithContext(ctx)
}

func TestPath(t *testing.T) {
	tests := []struct {
		route  string
		params []any
		want   string
	}{
		{"song.index", nil, "/"},
		{"song.create", nil, "/create"},
		{"song.edit", []any{int64(7)}, "/edit/7"},
		{"song.delate", []any{42}, "/delate/42"},
	}
	for _, tt := range tests {
		t.Run(tt.route, func(t *testing.T) {
			assert.Equal(t, tt.want, Path(tt.route, tt.params...))
		})
	}
}

func TestPath_UnknownRoute(t *testing.T) {
	assert.Panics(t, func() { Path("song.nope") })
}

func TestRedirectTo(t *testing.T) {
	rs := newTestResponder(t)
	r := sessionRequest(t, rs, http.MethodPost, "/create")
	w := httptest.NewRecorder()

	rs.RedirectTo(w, r, "song.index")

	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/", w.Header().Get("Location"))
}

func TestFlashes_ShownOnce(t *testing.T) {
	rs := newTestResponder(t)
	r := sessionRequest(t, rs, http.MethodGet, "/")

	rs.AddFlash(r.Context(), FlashSuccess, "The song was added successfully.")
	rs.AddFlash(r.Context(), FlashError, "Invalid security token, the song was not deleted.")

	w := httptest.NewRecorder()
	rs.Render(w, r, http.StatusOK, "index", map[string]any{"Rows": nil})
	body := w.Body.String()
	assert.Contains(t, body, "flash-success")
	assert.Contains(t, body, "The song was added successfully.")
	assert.Contains(t, body, "flash-error")

	w = httptest.NewRecorder()
	rs.Render(w, r, http.StatusOK, "index", map[string]any{"Rows": nil})
	assert.NotContains(t, w.Body.String(), "The song was added successfully.")
}

func TestRender_StatusAndContentType(t *testing.T) {
	rs := newTestResponder(t)
	r := sessionRequest(t, rs, http.MethodGet, "/")
	w := httptest.NewRecorder()

	rs.Render(w, r, http.StatusTeapot, "index", map[string]any{"Rows": nil})

	assert.Equal(t, http.StatusTeapot, w.Code)
	assert.Equal(t, "text/html; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Body.String(), "No songs yet.")
}

func TestRender_UnknownView(t *testing.T) {
	rs := newTestResponder(t)
	r := sessionRequest(t, rs, http.MethodGet, "/")
	w := httptest.NewRecorder()

	rs.Render(w, r, http.StatusOK, "missing", nil)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestRender_TemplateErrorIsClean500(t *testing.T) {
	rs := newTestResponder(t)
	r := sessionRequest(t, rs, http.MethodGet, "/")
	w := httptest.NewRecorder()

	// The edit view needs .Song.Title; a string has no such field.
	rs.Render(w, r, http.StatusOK, "edit", "not a view model")

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "<html")
}

func TestRender_EscapesUserInput(t *testing.T) {
	rs := newTestResponder(t)
	r := sessionRequest(t, rs, http.MethodGet, "/")
	w := httptest.NewRecorder()

	rs.Error(w, r, http.StatusNotFound, "<b>song</b> not found")

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "&lt;b&gt;song&lt;/b&gt; not found")
	assert.Contains(t, w.Body.String(), "404 Not Found")
}

func TestStatic(t *testing.T) {
	srv := httptest.NewServer(http.StripPrefix("/static/", Static()))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/static/style.css")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/css")
}
