package handler

// ERROR PAGES:
// Every failure a handler cannot recover from locally ends up in fail, which
// maps the domain error to a status code and renders the error page.
//
// errors.Is walks the whole chain built with %w, so a repository error such
// as fmt.Errorf("deleting song 42: %w", apperror.NotFound(...)) still maps to
// 404 after the service has wrapped it.

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/sakif/song-catalog/internal/apperror"
)

const internalErrorMessage = "Something went wrong on our side. Please try again."

// errorStatus maps err to an HTTP status and a message that is safe to show.
func errorStatus(err error) (int, string) {
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) {
		return http.StatusInternalServerError, internalErrorMessage
	}

	switch {
	case errors.Is(err, apperror.ErrValidation):
		return http.StatusBadRequest, appErr.Message
	case errors.Is(err, apperror.ErrNotFound):
		return http.StatusNotFound, "The requested song does not exist."
	case errors.Is(err, apperror.ErrForbidden):
		return http.StatusForbidden, appErr.Message
	}
	return http.StatusInternalServerError, internalErrorMessage
}

// fail renders the error page for err. Server-side failures are logged with
// their full chain; the client only ever sees the generic message.
func (h *SongHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, message := errorStatus(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
	} else {
		h.logger.Debug("request rejected",
			slog.String("path", r.URL.Path),
			slog.Int("status", status),
			slog.String("error", err.Error()),
		)
	}
	h.resp.Error(w, r, status, message)
}
