package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/DevRickLin/feishu-greeter/internal/biz/domain"
	"github.com/DevRickLin/feishu-greeter/internal/biz/repo"
)

// TrackedReader exposes the last tracked message of a key
type TrackedReader interface {
	Peek(groupID string, kind domain.Kind) *domain.TrackedMessage
}

// TimerCanceller cancels pending auto-deletes of a key
type TimerCanceller interface {
	CancelAll(groupID string, kind domain.Kind) bool
}

// Deps are the collaborators of the API server
type Deps struct {
	Configs  repo.ConfigRepo
	Rules    repo.RulesRepo
	Tracked  TrackedReader
	Timers   TimerCanceller
	Gatherer prometheus.Gatherer
}

// Server provides the HTTP settings and diagnostics API
type Server struct {
	deps   Deps
	server *http.Server
	port   int
	log    zerolog.Logger
}

// NewServer creates a new API server
func NewServer(deps Deps, port int, logger zerolog.Logger) *Server {
	if deps.Gatherer == nil {
		deps.Gatherer = prometheus.DefaultGatherer
	}
	return &Server{
		deps: deps,
		port: port,
		log:  logger.With().Str("component", "api").Logger(),
	}
}

// Handler returns the API routes
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Lifecycle configs
	mux.HandleFunc("GET /api/lifecycle/{group}", s.handleListLifecycle)
	mux.HandleFunc("GET /api/lifecycle/{group}/{kind}", s.handleGetLifecycle)
	mux.HandleFunc("PUT /api/lifecycle/{group}/{kind}", s.handlePutLifecycle)

	// Tracked messages
	mux.HandleFunc("GET /api/tracked/{group}/{kind}", s.handleTracked)

	// Rules links
	mux.HandleFunc("GET /api/rules/{group}", s.handleGetRules)
	mux.HandleFunc("PUT /api/rules/{group}", s.handlePutRules)

	// Template preview
	mux.HandleFunc("POST /api/preview", s.handlePreview)

	mux.Handle("GET /metrics", promhttp.HandlerFor(s.deps.Gatherer, promhttp.HandlerOpts{}))

	// Health check
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	return mux
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:    fmt.Sprintf("127.0.0.1:%d", s.port),
		Handler: s.Handler(),
	}

	s.log.Info().Int("port", s.port).Msg("starting HTTP server")
	err := s.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Stop stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// ============ Lifecycle Handlers ============

// pathKey reads the {group}/{kind} path values
func pathKey(r *http.Request) (domain.Key, error) {
	kind, err := domain.ParseKind(r.PathValue("kind"))
	if err != nil {
		return domain.Key{}, err
	}
	return domain.Key{GroupID: r.PathValue("group"), Kind: kind}, nil
}

func (s *Server) handleListLifecycle(w http.ResponseWriter, r *http.Request) {
	configs, err := s.deps.Configs.ListLifecycleConfigs(r.Context(), r.PathValue("group"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	if configs == nil {
		configs = []*domain.LifecycleConfig{}
	}
	s.writeJSON(w, configs)
}

func (s *Server) handleGetLifecycle(w http.ResponseWriter, r *http.Request) {
	key, err := pathKey(r)
	if err != nil {
		s.writeStatus(w, http.StatusBadRequest, err)
		return
	}
	cfg, err := s.deps.Configs.GetLifecycleConfig(r.Context(), key.GroupID, key.Kind)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if cfg == nil {
		s.writeStatus(w, http.StatusNotFound, fmt.Errorf("no %s config for %s", key.Kind, key.GroupID))
		return
	}
	s.writeJSON(w, cfg)
}

func (s *Server) handlePutLifecycle(w http.ResponseWriter, r *http.Request) {
	key, err := pathKey(r)
	if err != nil {
		s.writeStatus(w, http.StatusBadRequest, err)
		return
	}
	var cfg domain.LifecycleConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		s.writeStatus(w, http.StatusBadRequest, fmt.Errorf("invalid body: %w", err))
		return
	}
	// The path decides which record is written
	cfg.GroupID = key.GroupID
	cfg.Kind = key.Kind
	cfg.UpdatedAt = time.Now()
	if err := cfg.Validate(); err != nil {
		s.writeStatus(w, http.StatusBadRequest, err)
		return
	}
	if err := s.deps.Configs.SaveLifecycleConfig(r.Context(), &cfg); err != nil {
		s.writeError(w, err)
		return
	}
	if s.deps.Timers != nil && (!cfg.IsEnabled || cfg.DeleteAfterSeconds == 0) {
		if s.deps.Timers.CancelAll(key.GroupID, key.Kind) {
			s.log.Info().Str("key", key.String()).Msg("pending auto-delete cancelled")
		}
	}
	s.log.Info().Str("key", key.String()).Bool("enabled", cfg.IsEnabled).Msg("lifecycle config saved")
	s.writeJSON(w, cfg)
}

func (s *Server) handleTracked(w http.ResponseWriter, r *http.Request) {
	key, err := pathKey(r)
	if err != nil {
		s.writeStatus(w, http.StatusBadRequest, err)
		return
	}
	msg := s.deps.Tracked.Peek(key.GroupID, key.Kind)
	if msg == nil {
		s.writeStatus(w, http.StatusNotFound, fmt.Errorf("nothing tracked for %s", key))
		return
	}
	s.writeJSON(w, msg)
}

// ============ Rules Handlers ============

type rulesBody struct {
	Link string `json:"link"`
}

func (s *Server) handleGetRules(w http.ResponseWriter, r *http.Request) {
	link, err := s.deps.Rules.GetRulesLink(r.Context(), r.PathValue("group"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, rulesBody{Link: link})
}

func (s *Server) handlePutRules(w http.ResponseWriter, r *http.Request) {
	var body rulesBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeStatus(w, http.StatusBadRequest, fmt.Errorf("invalid body: %w", err))
		return
	}
	if err := s.deps.Rules.SetRulesLink(r.Context(), r.PathValue("group"), body.Link); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, body)
}

// ============ Preview ============

// PreviewRequest renders a template against sample data
type PreviewRequest struct {
	Content     string `json:"content"`
	UserID      string `json:"user_id"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Username    string `json:"username"`
	ChatName    string `json:"chat_name"`
	MemberCount int    `json:"member_count"`
	RulesLink   string `json:"rules_link"`
}

// PreviewResponse is the rendered template
type PreviewResponse struct {
	Text      string   `json:"text"`
	Empty     bool     `json:"empty"`
	Unknown   []string `json:"unknown,omitempty"`
	Available []string `json:"available"`
}

// Preview renders req.Content
func Preview(req PreviewRequest) PreviewResponse {
	user := domain.User{
		ID:        req.UserID,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Username:  req.Username,
	}
	meta := domain.GroupMeta{Name: req.ChatName, MemberCount: req.MemberCount, RulesLink: req.RulesLink}
	text := domain.Render(req.Content, domain.NewBindings(user, meta))
	return PreviewResponse{
		Text:      text,
		Empty:     strings.TrimSpace(text) == "",
		Unknown:   domain.UnknownPlaceholders(req.Content),
		Available: domain.Placeholders(),
	}
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	var req PreviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeStatus(w, http.StatusBadRequest, fmt.Errorf("invalid body: %w", err))
		return
	}
	s.writeJSON(w, Preview(req))
}

// ============ Helpers ============

func (s *Server) writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	s.log.Error().Err(err).Msg("request failed")
	s.writeStatus(w, http.StatusInternalServerError, err)
}

func (s *Server) writeStatus(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
