package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"bizdesk/pkg/apperr"
	"bizdesk/pkg/approval"
	"bizdesk/pkg/auth"
	"bizdesk/pkg/catalog"
	"bizdesk/pkg/store"
	"bizdesk/pkg/version"
)

// Server holds the dependencies shared by the HTTP handlers.
type Server struct {
	Store     store.Store
	Approvals *approval.Service
	Catalog   *catalog.Holder
	Issuer    *auth.Issuer
	Hub       *Hub
	Log       zerolog.Logger
	// BootToken, when set, authenticates as a built-in administrator.
	BootToken string

	now   func() time.Time
	newID func() string
}

func NewServer(st store.Store, approvals *approval.Service, cat *catalog.Holder, issuer *auth.Issuer, hub *Hub, log zerolog.Logger) *Server {
	return &Server{
		Store:     st,
		Approvals: approvals,
		Catalog:   cat,
		Issuer:    issuer,
		Hub:       hub,
		Log:       log,
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// Handler returns the routed mux wrapped in the standard middleware chain.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return s.wrap(mux)
}

// RegisterRoutes wires the HTTP handlers on the provided mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", s.handleHealth)

	mux.HandleFunc("/api/v1/auth/register", s.handleRegister)
	mux.HandleFunc("/api/v1/auth/login", s.handleLogin)
	mux.HandleFunc("/api/v1/me", s.authed(s.handleMe))
	mux.HandleFunc("/api/v1/users", s.authed(s.handleUsers))

	mux.HandleFunc("/api/v1/instances", s.authed(s.handleInstances))
	mux.HandleFunc("/api/v1/instances/{id}", s.authed(s.handleInstance))
	mux.HandleFunc("/api/v1/instances/{id}/timeline", s.authed(s.handleTimeline))
	mux.HandleFunc("/api/v1/instances/{id}/history", s.authed(s.handleHistory))
	mux.HandleFunc("/api/v1/instances/{id}/withdraw", s.authed(s.handleWithdraw))
	mux.HandleFunc("/api/v1/instances/{id}/terminate", s.authed(s.handleTerminate))
	mux.HandleFunc("/api/v1/instances/{id}/urge", s.authed(s.handleUrge))
	mux.HandleFunc("/api/v1/tasks", s.authed(s.handleTasks))
	mux.HandleFunc("/api/v1/tasks/{id}/approve", s.authed(s.handleApprove))
	mux.HandleFunc("/api/v1/tasks/{id}/reject", s.authed(s.handleReject))
	mux.HandleFunc("/api/v1/tasks/{id}/delegate", s.authed(s.handleDelegate))

	mux.HandleFunc("/api/v1/opportunities", s.authed(s.handleOpportunities))
	mux.HandleFunc("/api/v1/opportunities/funnel", s.authed(s.handleFunnel))
	mux.HandleFunc("/api/v1/opportunities/conversion", s.authed(s.handleConversion))
	mux.HandleFunc("/api/v1/opportunities/report", s.authed(s.handleReport))
	mux.HandleFunc("/api/v1/opportunities/catalog", s.authed(s.handleCatalog))
	mux.HandleFunc("/api/v1/opportunities/{id}", s.authed(s.handleOpportunity))
	mux.HandleFunc("/api/v1/opportunities/{id}/advance", s.authed(s.handleAdvance))
	mux.HandleFunc("/api/v1/opportunities/{id}/retreat", s.authed(s.handleRetreat))
	mux.HandleFunc("/api/v1/opportunities/{id}/score", s.authed(s.handleScore))

	mux.HandleFunc("/api/v1/labels", s.authed(s.handleLabels))
	mux.HandleFunc("/api/v1/labels/{domain}", s.authed(s.handleLabelDomain))

	mux.HandleFunc("/api/v1/audit", s.authed(s.handleAudit))
	mux.HandleFunc("/api/v1/ws", s.authed(s.handleWS))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.Store.Ping(r.Context()); err != nil {
		s.Log.Warn().Err(err).Msg("health check failed")
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Status string `json:"status"`
		version.Info
	}{"ok", version.Current()})
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request, _ approval.Actor) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	entries, err := s.Store.ListAudit(r.Context(), r.URL.Query().Get("target"), queryInt(r, "limit", 50))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Error   string   `json:"error"`
	Code    string   `json:"code,omitempty"`
	Details []string `json:"details,omitempty"`
}

// writeError maps err onto a status code and a JSON error body. Internal
// errors are logged and their text is not sent to the client.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperr.HTTPStatus(err)
	body := errorBody{Error: err.Error(), Code: string(apperr.CodeOf(err))}
	if status == http.StatusInternalServerError {
		zerolog.Ctx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		body.Error = "internal error"
	}
	var ae *apperr.Error
	if errors.As(err, &ae) && status != http.StatusInternalServerError {
		body.Error = ae.Message
	}
	writeJSON(w, status, body)
}

func methodNotAllowed(w http.ResponseWriter) {
	writeJSON(w, http.StatusMethodNotAllowed, errorBody{Error: "method not allowed"})
}

func decode(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apperr.InvalidInput("body", "invalid payload")
	}
	return nil
}

func queryInt(r *http.Request, key string, def int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil || v <= 0 {
		return def
	}
	return v
}

func queryBool(r *http.Request, key string) bool {
	b, _ := strconv.ParseBool(r.URL.Query().Get(key))
	return b
}

func queryList(r *http.Request, key string) []string {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
