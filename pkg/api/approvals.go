package api

import (
	"context"
	"net/http"

	"bizdesk/pkg/approval"
	"bizdesk/pkg/model"
	"bizdesk/pkg/store"
)

type reasonRequest struct {
	Reason  string `json:"reason,omitempty"`
	Message string `json:"message,omitempty"`
}

type delegateRequest struct {
	To      string `json:"to"`
	Comment string `json:"comment,omitempty"`
}

type closeOp func(ctx context.Context, actor approval.Actor, id, reason string) (model.ApprovalInstance, error)

type taskOp func(ctx context.Context, actor approval.Actor, taskID string, d approval.Decision) (model.ApprovalInstance, error)

func (s *Server) handleInstances(w http.ResponseWriter, r *http.Request, actor approval.Actor) {
	switch r.Method {
	case http.MethodGet:
		q := r.URL.Query()
		list, err := s.Approvals.List(r.Context(), store.InstanceQuery{
			Status:    model.InstanceStatus(q.Get("status")),
			Initiator: q.Get("initiator"),
			Limit:     queryInt(r, "limit", 0),
		})
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	case http.MethodPost:
		var req approval.SubmitRequest
		if err := decode(r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}
		in, err := s.Approvals.Submit(r.Context(), actor, req)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, in)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleInstance(w http.ResponseWriter, r *http.Request, _ approval.Actor) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	in, err := s.Approvals.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, in)
}

func (s *Server) handleTimeline(w http.ResponseWriter, r *http.Request, _ approval.Actor) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	nodes, err := s.Approvals.Timeline(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nodes)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request, _ approval.Actor) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	entries, err := s.Approvals.History(r.Context(), r.PathValue("id"), queryInt(r, "limit", 50))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request, actor approval.Actor) {
	s.closeInstance(w, r, actor, s.Approvals.Withdraw)
}

func (s *Server) handleTerminate(w http.ResponseWriter, r *http.Request, actor approval.Actor) {
	s.closeInstance(w, r, actor, s.Approvals.Terminate)
}

func (s *Server) closeInstance(w http.ResponseWriter, r *http.Request, actor approval.Actor, op closeOp) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req reasonRequest
	if !decodeOptional(w, r, s, &req) {
		return
	}
	in, err := op(r.Context(), actor, r.PathValue("id"), req.Reason)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, in)
}

func (s *Server) handleUrge(w http.ResponseWriter, r *http.Request, actor approval.Actor) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req reasonRequest
	if !decodeOptional(w, r, s, &req) {
		return
	}
	if err := s.Approvals.Urge(r.Context(), actor, r.PathValue("id"), req.Message); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "sent"})
}

// handleTasks lists pending tasks; assignee defaults to the caller.
func (s *Server) handleTasks(w http.ResponseWriter, r *http.Request, actor approval.Actor) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	assignee := r.URL.Query().Get("assignee")
	if assignee == "" {
		assignee = actor.ID
	}
	tasks, err := s.Approvals.PendingTasks(r.Context(), assignee)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if tasks == nil {
		tasks = []model.PendingTask{}
	}
	writeJSON(w, http.StatusOK, tasks)
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request, actor approval.Actor) {
	s.decideTask(w, r, actor, s.Approvals.Approve)
}

func (s *Server) handleReject(w http.ResponseWriter, r *http.Request, actor approval.Actor) {
	s.decideTask(w, r, actor, s.Approvals.Reject)
}

func (s *Server) decideTask(w http.ResponseWriter, r *http.Request, actor approval.Actor, op taskOp) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var d approval.Decision
	if !decodeOptional(w, r, s, &d) {
		return
	}
	in, err := op(r.Context(), actor, r.PathValue("id"), d)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, in)
}

func (s *Server) handleDelegate(w http.ResponseWriter, r *http.Request, actor approval.Actor) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req delegateRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	in, err := s.Approvals.Delegate(r.Context(), actor, r.PathValue("id"), req.To, req.Comment)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, in)
}

// decodeOptional decodes a body when one was sent. It writes the error
// response itself and reports whether the handler should continue.
func decodeOptional(w http.ResponseWriter, r *http.Request, s *Server, v interface{}) bool {
	if r.Body == nil || r.ContentLength == 0 {
		return true
	}
	if err := decode(r, v); err != nil {
		s.writeError(w, r, err)
		return false
	}
	return true
}
