// internal/httpserver/routes_board.go
//
// HTTP routes for the board editor.
// Exposes four endpoints under /games/{id}/board:
//   - GET  /board        → current document (Start/Finish default if never saved)
//   - PUT  /board        → replace the document; rebuilds tile mechanics
//   - POST /board/lock   → freeze edits
//   - POST /board/unlock → reopen edits
//
// Writes require the host password header. Reads are public so spectators
// and overlays can render tile titles.

package httpserver

import (
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/robalobadob/ladders/internal/apperr"
)

// mountBoard registers all /board routes on a game sub-router.
func (s *Server) mountBoard(r chi.Router) {
	r.Route("/board", func(r chi.Router) {
		r.Get("/", s.handleGetBoard)
		r.Put("/", s.handlePutBoard)
		r.Post("/lock", s.handleLock(true))
		r.Post("/unlock", s.handleLock(false))
	})
}

func (s *Server) handleGetBoard(w http.ResponseWriter, r *http.Request) {
	rev, err := s.svc.GetBoard(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rev)
}

// handlePutBoard passes the raw body through so the document's own schema
// version decides how it is parsed.
func (s *Server) handlePutBoard(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeJSON(w, http.StatusRequestEntityTooLarge, errorBody{Error: apperr.CodeBadJSON, Message: "body too large"})
		return
	}
	rev, err := s.svc.SaveBoard(r.Context(), chi.URLParam(r, "id"), r.Header.Get(HostHeader), raw)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rev)
}

func (s *Server) handleLock(locked bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, pw := chi.URLParam(r, "id"), r.Header.Get(HostHeader)
		var err error
		if locked {
			_, err = s.svc.LockBoard(r.Context(), id, pw)
		} else {
			_, err = s.svc.UnlockBoard(r.Context(), id, pw)
		}
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true, "locked": locked})
	}
}
