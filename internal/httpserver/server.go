// internal/httpserver/server.go
//
// HTTP server wiring for the ladders backend.
// Responsibilities:
//   - Router + middleware (JSON, CORS, timeouts, panic recovery, request IDs, access log).
//   - Public endpoints: "/", "/health".
//   - Game registry endpoints: create, resolve join code, list by clan, teams, register.
//   - Play endpoints (session bearer token): roll, proof.
//   - Read views: state (spectators), overlay (revision-cacheable).
//   - Board endpoints (host password): mounted under /games/{id}/board.
//
// Notes:
//   - Host actions carry the host password in X-Host-Password, not a session.
//   - Roll refusals are 200 {"ok":false,"reason":...}; only "unauthorized" is a 401.

package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/robalobadob/ladders/internal/apperr"
	"github.com/robalobadob/ladders/internal/auth"
	"github.com/robalobadob/ladders/internal/engine"
	"github.com/robalobadob/ladders/internal/game"
)

// HostHeader carries the host password on administrative requests.
const HostHeader = "X-Host-Password"

const maxBodyBytes = 1 << 20

// Options tune transport behavior.
type Options struct {
	ClientOrigin   string
	RequestTimeout time.Duration
}

// Server bundles router, engine and session signer.
type Server struct {
	r      *chi.Mux
	svc    *engine.Service
	signer *auth.Signer
}

// New constructs a Server, installs middleware, and registers routes.
func New(svc *engine.Service, signer *auth.Signer, opts Options) *Server {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 10 * time.Second
	}
	if opts.ClientOrigin == "" {
		opts.ClientOrigin = "http://localhost:5173"
	}
	s := &Server{r: chi.NewRouter(), svc: svc, signer: signer}

	// --- middleware ---
	s.r.Use(chimw.RequestID)                    // add X-Request-ID
	s.r.Use(chimw.RealIP)                       // set RemoteAddr from X-Forwarded-For etc.
	s.r.Use(accessLog)                          // one zerolog line per request
	s.r.Use(chimw.Recoverer)                    // recover from panics
	s.r.Use(chimw.Timeout(opts.RequestTimeout)) // bound handler time
	s.r.Use(jsonContentType)                    // default JSON responses
	s.r.Use(cors(opts.ClientOrigin))            // single-origin CORS

	// --- diagnostics ---
	s.r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"service":"ladders","endpoints":["/health","POST /games","POST /games/resolve","GET /clans/{clan}/games","/games/{id}/*"]}`))
	})
	s.r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ok":true}`))
	})

	// --- registry ---
	s.r.Post("/games", s.handleCreateGame)
	s.r.Post("/games/resolve", s.handleResolve)
	s.r.Get("/clans/{clan}/games", s.handleListGames)

	s.r.Route("/games/{id}", func(r chi.Router) {
		r.Post("/teams", s.handleCreateTeam)
		r.Post("/register", s.handleRegister)
		r.Post("/finish", s.handleFinish)

		r.With(s.withSession).Post("/roll", s.handleRoll)
		r.With(s.requireSession).Post("/proof", s.handleProof)

		r.Get("/state", s.handleState)
		r.Get("/overlay", s.handleOverlay)

		s.mountBoard(r)
	})

	// JSON 404 for easier debugging
	s.r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not_found", "path": r.URL.Path})
	})
	s.r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method_not_allowed"})
	})

	return s
}

// Start begins serving HTTP on addr.
func (s *Server) Start(addr string) error { return http.ListenAndServe(addr, s.r) }

// Router exposes the internal router (useful for tests).
func (s *Server) Router() chi.Router { return s.r }

// ------------------------------ REGISTRY -----------------------------------

func (s *Server) handleCreateGame(w http.ResponseWriter, r *http.Request) {
	var req engine.CreateGameInput
	if !decodeJSON(w, r, &req) {
		return
	}
	created, err := s.svc.CreateGame(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

type resolveReq struct {
	Clan     string `json:"clan"`
	JoinCode string `json:"joinCode"`
}

type resolveRes struct {
	GameID    string `json:"gameId"`
	Name      string `json:"name,omitempty"`
	BoardSize int    `json:"boardSize"`
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	var req resolveReq
	if !decodeJSON(w, r, &req) {
		return
	}
	g, err := s.svc.ResolveJoinCode(r.Context(), req.Clan, req.JoinCode)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resolveRes{GameID: g.ID, Name: g.Name, BoardSize: g.BoardSize})
}

func (s *Server) handleListGames(w http.ResponseWriter, r *http.Request) {
	games, err := s.svc.ListGames(r.Context(), chi.URLParam(r, "clan"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"games": games})
}

func (s *Server) handleCreateTeam(w http.ResponseWriter, r *http.Request) {
	var req engine.TeamInput
	if !decodeJSON(w, r, &req) {
		return
	}
	team, err := s.svc.CreateTeam(r.Context(), chi.URLParam(r, "id"), r.Header.Get(HostHeader), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, team)
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req engine.RegisterInput
	if !decodeJSON(w, r, &req) {
		return
	}
	reg, err := s.svc.Register(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	status := http.StatusCreated
	if reg.Reissued {
		status = http.StatusOK
	}
	writeJSON(w, status, reg)
}

func (s *Server) handleFinish(w http.ResponseWriter, r *http.Request) {
	g, err := s.svc.FinishGame(r.Context(), chi.URLParam(r, "id"), r.Header.Get(HostHeader))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

// -------------------------------- PLAY -------------------------------------

// rollRes flattens RollResult and its outcome into one object.
type rollRes struct {
	OK                bool       `json:"ok"`
	Reason            string     `json:"reason,omitempty"`
	RetryAfterSeconds int64      `json:"retryAfterSeconds,omitempty"`
	Roll              int        `json:"roll,omitempty"`
	From              *int       `json:"from,omitempty"`
	To                *int       `json:"to,omitempty"`
	Jump              *game.Jump `json:"jump,omitempty"`
	AwaitingProof     *bool      `json:"awaitingProof,omitempty"`
	PendingTile       *int       `json:"pendingTile,omitempty"`
}

func (s *Server) handleRoll(w http.ResponseWriter, r *http.Request) {
	// A missing session is still passed through so an inactive game reports
	// "inactive" before "unauthorized".
	sess, _ := sessionFrom(r)
	res, err := s.svc.Roll(r.Context(), chi.URLParam(r, "id"), sess)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !res.OK {
		status := http.StatusOK
		if res.Reason == apperr.CodeUnauthorized {
			status = http.StatusUnauthorized
		}
		writeJSON(w, status, rollRes{Reason: res.Reason, RetryAfterSeconds: res.RetryAfterSeconds})
		return
	}
	out := res.Outcome
	body := rollRes{
		OK:            true,
		Roll:          out.Roll,
		From:          &out.From,
		To:            &out.To,
		AwaitingProof: &out.AwaitingProof,
		PendingTile:   out.PendingTile,
		Jump:          out.Jump,
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleProof(w http.ResponseWriter, r *http.Request) {
	sess, _ := sessionFrom(r)
	var req engine.ProofInput
	if !decodeJSON(w, r, &req) {
		return
	}
	p, err := s.svc.SubmitProof(r.Context(), chi.URLParam(r, "id"), sess, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"ok": true, "proof": p})
}

// -------------------------------- VIEWS ------------------------------------

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	view, err := s.svc.State(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleOverlay(w http.ResponseWriter, r *http.Request) {
	validators := entityTags(r.Header.Values("If-None-Match"))
	if rev := r.URL.Query().Get("rev"); rev != "" {
		validators = append(validators, rev)
	}
	res, err := s.svc.Overlay(r.Context(), chi.URLParam(r, "id"), r.URL.Query().Get("participant"), validators...)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("ETag", `"`+res.Token+`"`)
	w.Header().Set("Cache-Control", "no-cache")
	if res.NotModified {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(res.Body)
}

// ------------------------------- HELPERS -----------------------------------

// entityTags flattens If-None-Match header values into bare tags, dropping
// the weak prefix and quotes. "*" is kept as is.
func entityTags(headers []string) []string {
	var tags []string
	for _, h := range headers {
		for _, part := range strings.Split(h, ",") {
			tag := strings.Trim(strings.TrimPrefix(strings.TrimSpace(part), "W/"), `"`)
			if tag != "" {
				tags = append(tags, tag)
			}
		}
	}
	return tags
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Field   string `json:"field,omitempty"`
}

// writeError maps err to a status and a JSON body. Auth failures carry no detail.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperr.HTTPStatus(err)
	e, ok := apperr.As(err)
	if !ok {
		log.Error().Err(err).Str("path", r.URL.Path).Str("requestId", chimw.GetReqID(r.Context())).Msg("request failed")
		writeJSON(w, status, errorBody{Error: apperr.CodeInternal})
		return
	}
	body := errorBody{Error: e.Code, Message: e.Message, Field: e.Field}
	if e.Kind == apperr.KindAuth {
		body.Message, body.Field = "invalid", ""
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// decodeJSON reads a bounded JSON body into v, writing a 400 on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorBody{Error: apperr.CodeBadJSON, Message: "body too large"})
			return false
		}
		writeJSON(w, http.StatusBadRequest, errorBody{Error: apperr.CodeBadJSON, Message: err.Error()})
		return false
	}
	return true
}
