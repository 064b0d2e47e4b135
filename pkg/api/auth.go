package api

import (
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"bizdesk/pkg/apperr"
	"bizdesk/pkg/approval"
	"bizdesk/pkg/model"
)

type authRequest struct {
	Username    string `json:"username"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name,omitempty"`
	IsAdmin     bool   `json:"is_admin,omitempty"`
}

type tokenResponse struct {
	Token string     `json:"token"`
	User  model.User `json:"user"`
}

func (req authRequest) validate() error {
	if strings.TrimSpace(req.Username) == "" || req.Password == "" {
		return apperr.InvalidInput("body", "username and password are required")
	}
	return nil
}

// handleRegister only allows the first user to be created (admin). The count
// is a cheap early-out; CreateFirstUser decides atomically.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req authRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := req.validate(); err != nil {
		s.writeError(w, r, err)
		return
	}
	count, err := s.Store.CountUsers(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if count > 0 {
		s.writeError(w, r, apperr.Forbidden("registration closed"))
		return
	}
	req.IsAdmin = true
	user, err := s.newUser(req)
	if err == nil {
		err = s.Store.CreateFirstUser(r.Context(), user)
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.issueToken(w, r, user)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req authRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := req.validate(); err != nil {
		s.writeError(w, r, err)
		return
	}
	user, err := s.Store.GetUserByUsername(r.Context(), req.Username)
	if err != nil && !apperr.IsNotFound(err) {
		s.writeError(w, r, err)
		return
	}
	if err != nil || bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: "invalid credentials"})
		return
	}
	s.issueToken(w, r, user)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request, actor approval.Actor) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, actorView{ID: actor.ID, Name: actor.Name, Admin: actor.Admin})
}

type actorView struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Admin bool   `json:"admin"`
}

// handleUsers lists users for assignee pickers; creating one needs an admin.
func (s *Server) handleUsers(w http.ResponseWriter, r *http.Request, actor approval.Actor) {
	switch r.Method {
	case http.MethodGet:
		users, err := s.Store.ListUsers(r.Context())
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, users)
	case http.MethodPost:
		if !actor.Admin {
			s.writeError(w, r, apperr.Forbidden("only an administrator can create users"))
			return
		}
		var req authRequest
		if err := decode(r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}
		if err := req.validate(); err != nil {
			s.writeError(w, r, err)
			return
		}
		user, err := s.createUser(r, req)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		s.audit(r, actor, "create_user", user.ID, user.Username)
		writeJSON(w, http.StatusCreated, user)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) newUser(req authRequest) (model.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return model.User{}, apperr.Wrap(err, apperr.CodeInvalidInput, "password cannot be hashed")
	}
	return model.User{
		ID:           s.newID(),
		Username:     strings.TrimSpace(req.Username),
		DisplayName:  strings.TrimSpace(req.DisplayName),
		PasswordHash: string(hash),
		IsAdmin:      req.IsAdmin,
		CreatedAt:    s.now(),
	}, nil
}

func (s *Server) createUser(r *http.Request, req authRequest) (model.User, error) {
	user, err := s.newUser(req)
	if err != nil {
		return model.User{}, err
	}
	if err := s.Store.CreateUser(r.Context(), user); err != nil {
		return model.User{}, err
	}
	return user, nil
}

func (s *Server) issueToken(w http.ResponseWriter, r *http.Request, user model.User) {
	token, err := s.Issuer.Generate(user)
	if err != nil {
		s.writeError(w, r, apperr.Wrap(err, apperr.CodeInternal, "sign token"))
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{Token: token, User: user})
}

// audit is best effort; a failed write is logged only.
func (s *Server) audit(r *http.Request, actor approval.Actor, action, target, detail string) {
	err := s.Store.AppendAudit(r.Context(), model.AuditEntry{
		Actor:     actor.Name,
		Action:    action,
		Target:    target,
		Detail:    detail,
		Timestamp: s.now(),
	})
	if err != nil {
		s.Log.Warn().Err(err).Str("action", action).Msg("audit append failed")
	}
}
