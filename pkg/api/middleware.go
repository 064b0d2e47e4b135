package api

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"bizdesk/pkg/approval"
	"bizdesk/pkg/auth"
)

var requestIDHeader = middleware.RequestIDHeader

// wrap applies the middleware chain around h. The request id is outermost so
// the access log and panic responses carry it.
func (s *Server) wrap(h http.Handler) http.Handler {
	h = middleware.Recoverer(h)
	h = accessLog(s.Log)(h)
	h = echoRequestID(h)
	return middleware.RequestID(h)
}

// echoRequestID returns the id chosen by middleware.RequestID to the client.
func echoRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := middleware.GetReqID(r.Context()); id != "" {
			w.Header().Set(requestIDHeader, id)
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Unwrap() http.ResponseWriter { return s.ResponseWriter }

// Hijack is needed for websocket upgrades behind the access log.
func (s *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := s.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	s.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func accessLog(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			reqLog := log.With().Str("request_id", middleware.GetReqID(r.Context())).Logger()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r.WithContext(reqLog.WithContext(r.Context())))
			ev := reqLog.Info()
			if rec.status >= http.StatusInternalServerError {
				ev = reqLog.Error()
			}
			ev.Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", rec.status).
				Dur("duration", time.Since(start)).
				Msg("http request")
		})
	}
}

type actorHandler func(http.ResponseWriter, *http.Request, approval.Actor)

// authed resolves the caller from a bearer token, or the token query
// parameter for websocket clients that cannot set headers.
func (s *Server) authed(next actorHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := r.URL.Query().Get("token")
		if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
			token = strings.TrimPrefix(h, "Bearer ")
		}
		if token == "" {
			writeJSON(w, http.StatusUnauthorized, errorBody{Error: "unauthorized"})
			return
		}
		if s.BootToken != "" && token == s.BootToken {
			next(w, r, approval.Actor{ID: "system", Name: "system", Admin: true})
			return
		}
		claims, err := s.Issuer.Parse(token)
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, errorBody{Error: "unauthorized"})
			return
		}
		next(w, r, actorFromClaims(claims))
	}
}

func actorFromClaims(c *auth.Claims) approval.Actor {
	name := c.Name
	if name == "" {
		name = c.Username
	}
	return approval.Actor{ID: c.UserID, Name: name, Admin: c.Admin}
}
