package web

import (
	"context"
	"crypto/subtle"
	"embed"
	"encoding/json"
	"errors"
	"html/template"
	"net/http"
	"strings"
	"time"

	"eventclock/internal/board"
	"eventclock/internal/clock"
	"eventclock/internal/config"
	"eventclock/internal/countdown"
	"eventclock/internal/eventtime"
	appLog "eventclock/internal/log"
	"eventclock/internal/model"
	"eventclock/internal/store"
)

// EventStore is the part of the local store the API writes to.
type EventStore interface {
	Create(ctx context.Context, ev model.Event) (model.Event, error)
	Delete(ctx context.Context, id string) error
}

// Refresher reloads the board from its sources.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// Server provides the HTTP API, the live stream and the board page.
type Server struct {
	cfg       *config.Config
	board     *board.Board
	store     EventStore
	refresher Refresher
	clock     clock.Clock
	mux       *http.ServeMux
	page      *template.Template

	// streamInterval is how often /api/stream pushes a snapshot.
	streamInterval time.Duration
}

//go:embed templates/*.html
var templatesFS embed.FS

type Options struct {
	Config    *config.Config
	Board     *board.Board
	Store     EventStore
	Refresher Refresher
	Clock     clock.Clock
}

// NewServer constructs a new Server.
func NewServer(opts Options) *Server {
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}
	if opts.Config == nil {
		opts.Config = config.DefaultConfig()
	}
	s := &Server{
		cfg:            opts.Config,
		board:          opts.Board,
		store:          opts.Store,
		refresher:      opts.Refresher,
		clock:          opts.Clock,
		mux:            http.NewServeMux(),
		page:           template.Must(template.New("board.html").Funcs(pageFuncs).ParseFS(templatesFS, "templates/board.html")),
		streamInterval: time.Second,
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	// Empty username or password means disabled.
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="eventclock", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// ListenAndServe serves on cfg.Listen until ctx is cancelled, then shuts
// down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+s.cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /api/events", s.handleEvents)
	s.mux.HandleFunc("POST /api/events", s.handleCreateEvent)
	s.mux.HandleFunc("DELETE /api/events/{id}", s.handleDeleteEvent)
	s.mux.HandleFunc("GET /api/countdown", s.handleCountdown)
	s.mux.HandleFunc("GET /api/stream", s.handleStream)
	s.mux.HandleFunc("GET /board", s.handleBoard)
	s.mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/board", http.StatusFound)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleEvents returns the categorized board snapshot.
func (s *Server) handleEvents(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.board.Snapshot())
}

// createEventRequest is the JSON body of POST /api/events. Times use the
// formats accepted by countdown.ParseTarget; zone-less values are read in
// the configured timezone.
type createEventRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Location    string `json:"location"`
	Start       string `json:"start"`
	End         string `json:"end"`
	AllDay      bool   `json:"all_day"`
}

func (s *Server) handleCreateEvent(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, "local event store not available")
		return
	}

	var req createEventRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}

	target, err := countdown.ParseTarget(req.Start, req.End, s.cfg.Location())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ev, err := s.store.Create(r.Context(), model.Event{
		Title:       req.Title,
		Description: req.Description,
		Location:    req.Location,
		AllDay:      req.AllDay,
		Start:       target.Start,
		End:         target.End,
	})
	if errors.Is(err, store.ErrInvalidEvent) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		appLog.Error("create event failed", err)
		writeError(w, http.StatusInternalServerError, "failed to create event")
		return
	}

	appLog.Info("local event created", "id", ev.ID, "title", ev.Title, "start", ev.Start.Format(time.RFC3339))
	s.refresh(r.Context())
	writeJSON(w, http.StatusCreated, ev)
}

func (s *Server) handleDeleteEvent(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, "local event store not available")
		return
	}

	id := r.PathValue("id")
	err := s.store.Delete(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "event not found")
		return
	}
	if err != nil {
		appLog.Error("delete event failed", err, "id", id)
		writeError(w, http.StatusInternalServerError, "failed to delete event")
		return
	}

	appLog.Info("local event deleted", "id", id)
	s.refresh(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

// refresh reloads the board after a local change. Feed failures were
// already logged by the refresher and do not fail the request.
func (s *Server) refresh(ctx context.Context) {
	if s.refresher == nil {
		return
	}
	if err := s.refresher.Refresh(ctx); err != nil {
		appLog.Warn("refresh after local change incomplete", "reason", err)
	}
}

type countdownResponse struct {
	Start   time.Time              `json:"start"`
	End     *time.Time             `json:"end,omitempty"`
	State   countdown.State        `json:"state"`
	Urgency eventtime.UrgencyLevel `json:"urgency"`
}

// handleCountdown computes the countdown for an ad-hoc target.
//
// GET /api/countdown?start=2026-03-14T12:00:00Z&end=2026-03-14T14:00:00Z
func (s *Server) handleCountdown(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	target, err := countdown.ParseTarget(q.Get("start"), q.Get("end"), s.cfg.Location())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	now := s.clock.Now()
	resp := countdownResponse{
		Start:   target.Start,
		State:   countdown.Compute(target, now),
		Urgency: eventtime.UrgencyAt(target.Start, now),
	}
	if target.HasEnd() {
		end := target.End
		resp.End = &end
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}

var pageFuncs = template.FuncMap{
	"clock": func(st countdown.State) string {
		return eventtime.Clock(st.Days, st.Hours, st.Minutes, st.Seconds)
	},
	"relative": eventtime.RelativeLabel,
	"upper":    strings.ToUpper,
}

type pageData struct {
	Title    string
	Snapshot board.Snapshot
	Sections []pageSection
}

type pageSection struct {
	Name  string
	Items []board.Item
}

// handleBoard renders the board page. The root element carries
// data-ready="true" once rendered so headless captures know when to shoot.
func (s *Server) handleBoard(w http.ResponseWriter, _ *http.Request) {
	snap := s.board.Snapshot()
	data := pageData{
		Title:    "eventclock",
		Snapshot: snap,
		Sections: []pageSection{
			{Name: string(eventtime.CategoryOngoing), Items: snap.Ongoing},
			{Name: string(eventtime.CategoryToday), Items: snap.Today},
			{Name: string(eventtime.CategoryUpcoming), Items: snap.Upcoming},
			{Name: string(eventtime.CategoryEnded), Items: snap.Ended},
		},
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.page.Execute(w, data); err != nil {
		appLog.Error("render board page failed", err)
	}
}
