// Package web renders the HTML side of the application: page templates,
// one-time flash messages kept in the session, and redirects by route name.
//
// Templates and the stylesheet are embedded into the binary, so the server
// needs nothing from the working directory at runtime.
package web

import (
	"bytes"
	"context"
	"embed"
	"encoding/gob"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/dustin/go-humanize"
)

//go:embed templates/*.html
var templateFiles embed.FS

//go:embed static
var staticFiles embed.FS

// Flash kinds.
const (
	FlashSuccess = "success"
	FlashError   = "error"
)

const flashKey = "flashes"

// Flash is a one-time message shown on the next rendered page.
type Flash struct {
	Kind    string
	Message string
}

func init() {
	// scs encodes session values with gob, which needs concrete types
	// registered before they can travel inside an interface value.
	gob.Register([]Flash{})
}

// Route names and their path patterns. A "{id}" segment is filled by Path.
var routes = map[string]string{
	"song.index":  "/",
	"song.create": "/create",
	"song.edit":   "/edit/{id}",
	"song.delate": "/delate/{id}",
}

// Path builds the URL of a named route. It panics on an unknown name, which
// can only come from a typo in code or templates.
func Path(route string, params ...any) string {
	pattern, ok := routes[route]
	if !ok {
		panic("web: unknown route " + strconv.Quote(route))
	}
	if len(params) > 0 {
		pattern = strings.Replace(pattern, "{id}", fmt.Sprint(params[0]), 1)
	}
	return pattern
}

// page is what every template receives as its root value.
type page struct {
	Flashes []Flash
	Data    any
}

// Responder implements flash, redirect and render for the handlers.
type Responder struct {
	sessions *scs.SessionManager
	views    map[string]*template.Template
	logger   *slog.Logger
}

// Views rendered by Responder.Render.
var viewNames = []string{"index", "create", "edit", "error"}

// NewResponder parses every view together with the shared layout. Parsing
// happens once here so a broken template fails startup instead of a request.
func NewResponder(sessions *scs.SessionManager, logger *slog.Logger) (*Responder, error) {
	funcs := template.FuncMap{
		"path":  Path,
		"score": func(f float64) string { return strconv.FormatFloat(f, 'f', 1, 64) },
		"ago":   func(t time.Time) string { return humanize.Time(t) },
		"stamp": func(t time.Time) string { return t.Local().Format("2006-01-02 15:04") },
	}

	views := make(map[string]*template.Template, len(viewNames))
	for _, name := range viewNames {
		tmpl, err := template.New("base.html").Funcs(funcs).ParseFS(templateFiles,
			"templates/base.html",
			"templates/_*.html",
			"templates/"+name+".html",
		)
		if err != nil {
			return nil, fmt.Errorf("web: parsing view %s: %w", name, err)
		}
		views[name] = tmpl
	}

	return &Responder{
		sessions: sessions,
		views:    views,
		logger:   logger,
	}, nil
}

// Static serves the embedded stylesheet and friends. Mount it under /static/.
func Static() http.Handler {
	sub, err := fs.Sub(staticFiles, "static")
	if err != nil {
		panic(err) // the embed pattern guarantees the directory exists
	}
	return http.FileServer(http.FS(sub))
}

// AddFlash queues a message for the next page rendered in this session.
func (rs *Responder) AddFlash(ctx context.Context, kind, message string) {
	flashes, _ := rs.sessions.Get(ctx, flashKey).([]Flash)
	rs.sessions.Put(ctx, flashKey, append(flashes, Flash{Kind: kind, Message: message}))
}

// popFlashes returns and clears the queued messages.
func (rs *Responder) popFlashes(ctx context.Context) []Flash {
	flashes, _ := rs.sessions.Pop(ctx, flashKey).([]Flash)
	return flashes
}

// RedirectTo answers 303 See Other to the named route, so a browser that
// POSTed a form follows up with a GET.
func (rs *Responder) RedirectTo(w http.ResponseWriter, r *http.Request, route string) {
	http.Redirect(w, r, Path(route), http.StatusSeeOther)
}

// Render executes view with data and writes it with the given status.
//
// The page is rendered into a buffer first: a template error then becomes a
// clean 500 instead of half a page followed by garbage.
func (rs *Responder) Render(w http.ResponseWriter, r *http.Request, status int, view string, data any) {
	tmpl, ok := rs.views[view]
	if !ok {
		rs.logger.Error("unknown view", slog.String("view", view))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	p := page{Flashes: rs.popFlashes(r.Context()), Data: data}
	if err := tmpl.ExecuteTemplate(&buf, "base", p); err != nil {
		rs.logger.Error("failed to render template",
			slog.String("view", view),
			slog.String("error", err.Error()),
		)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	buf.WriteTo(w)
}

// ErrorPage is the data of the "error" view.
type ErrorPage struct {
	Status  int
	Title   string
	Message string
}

// Error renders the error page for status with a user-facing message.
func (rs *Responder) Error(w http.ResponseWriter, r *http.Request, status int, message string) {
	rs.Render(w, r, status, "error", ErrorPage{
		Status:  status,
		Title:   http.StatusText(status),
		Message: message,
	})
}
