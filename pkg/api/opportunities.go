package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"bizdesk/pkg/apperr"
	"bizdesk/pkg/approval"
	"bizdesk/pkg/model"
	"bizdesk/pkg/opportunity"
)

type scoreView struct {
	ID             string  `json:"id"`
	Score          int     `json:"score"`
	Hot            bool    `json:"hot"`
	Overdue        bool    `json:"overdue"`
	DaysToClose    *int    `json:"days_to_close,omitempty"`
	WeightedAmount float64 `json:"weighted_amount"`
}

func (s *Server) handleOpportunities(w http.ResponseWriter, r *http.Request, actor approval.Actor) {
	switch r.Method {
	case http.MethodGet:
		f, err := opportunityFilter(r)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		list, err := s.Store.ListOpportunities(r.Context())
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		cat, now := s.Catalog.Get(), s.now()
		list = cat.Filter(list, f, now)
		list = cat.Sort(list, r.URL.Query().Get("sort"), r.URL.Query().Get("order") == "desc", now)
		writeJSON(w, http.StatusOK, list)
	case http.MethodPost:
		var o model.Opportunity
		if err := decode(r, &o); err != nil {
			s.writeError(w, r, err)
			return
		}
		now := s.now()
		o.ID = s.newID()
		o.CreatedAt, o.UpdatedAt = now, now
		if o.Stage == "" {
			o.Stage = model.StageDiscovery
		}
		if o.Priority == "" {
			o.Priority = model.PriorityMedium
		}
		if o.Owner == "" {
			o.Owner = actor.Name
		}
		if !s.validOpportunity(w, o) {
			return
		}
		if err := s.Store.CreateOpportunity(r.Context(), o); err != nil {
			s.writeError(w, r, err)
			return
		}
		s.audit(r, actor, "create_opportunity", o.ID, o.Name)
		writeJSON(w, http.StatusCreated, o)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleOpportunity(w http.ResponseWriter, r *http.Request, actor approval.Actor) {
	id := r.PathValue("id")
	switch r.Method {
	case http.MethodGet:
		o, err := s.Store.GetOpportunity(r.Context(), id)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, o)
	case http.MethodPut, http.MethodPatch:
		o, err := s.Store.GetOpportunity(r.Context(), id)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		created := o.CreatedAt
		// fields missing from the body keep their stored values
		if err := json.NewDecoder(r.Body).Decode(&o); err != nil {
			s.writeError(w, r, apperr.InvalidInput("body", "invalid payload"))
			return
		}
		o.ID, o.CreatedAt, o.UpdatedAt = id, created, s.now()
		if !s.validOpportunity(w, o) {
			return
		}
		if err := s.Store.UpdateOpportunity(r.Context(), o); err != nil {
			s.writeError(w, r, err)
			return
		}
		s.audit(r, actor, "update_opportunity", o.ID, o.Name)
		writeJSON(w, http.StatusOK, o)
	case http.MethodDelete:
		if err := s.Store.DeleteOpportunity(r.Context(), id); err != nil {
			s.writeError(w, r, err)
			return
		}
		s.audit(r, actor, "delete_opportunity", id, "")
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) validOpportunity(w http.ResponseWriter, o model.Opportunity) bool {
	problems := s.Catalog.Get().Validate(o)
	if len(problems) == 0 {
		return true
	}
	writeJSON(w, http.StatusBadRequest, errorBody{
		Error:   "invalid opportunity",
		Code:    string(apperr.CodeInvalidInput),
		Details: problems,
	})
	return false
}

func (s *Server) handleAdvance(w http.ResponseWriter, r *http.Request, actor approval.Actor) {
	s.moveStage(w, r, actor, "advance", opportunity.NextStage)
}

func (s *Server) handleRetreat(w http.ResponseWriter, r *http.Request, actor approval.Actor) {
	s.moveStage(w, r, actor, "retreat", opportunity.PrevStage)
}

func (s *Server) moveStage(w http.ResponseWriter, r *http.Request, actor approval.Actor, verb string, step func(model.Stage) (model.Stage, bool)) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	o, err := s.Store.GetOpportunity(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	next, ok := step(o.Stage)
	if !ok {
		s.writeError(w, r, apperr.Conflict("cannot "+verb+" from stage "+string(o.Stage)))
		return
	}
	from := o.Stage
	o.Stage, o.UpdatedAt = next, s.now()
	if err := s.Store.UpdateOpportunity(r.Context(), o); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.audit(r, actor, verb+"_opportunity", o.ID, string(from)+" -> "+string(next))
	writeJSON(w, http.StatusOK, o)
}

func (s *Server) handleScore(w http.ResponseWriter, r *http.Request, _ approval.Actor) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	o, err := s.Store.GetOpportunity(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	cat, now := s.Catalog.Get(), s.now()
	v := scoreView{
		ID:             o.ID,
		Score:          cat.Score(o, now),
		Hot:            cat.IsHot(o, now),
		Overdue:        cat.IsOverdue(o, now),
		WeightedAmount: cat.WeightedAmount(o),
	}
	if days, ok := opportunity.DaysToClose(o, now); ok {
		v.DaysToClose = &days
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) handleFunnel(w http.ResponseWriter, r *http.Request, _ approval.Actor) {
	s.aggregate(w, r, func(cat *opportunity.Catalog, list []model.Opportunity) interface{} {
		return cat.Funnel(list)
	})
}

func (s *Server) handleConversion(w http.ResponseWriter, r *http.Request, _ approval.Actor) {
	s.aggregate(w, r, func(cat *opportunity.Catalog, list []model.Opportunity) interface{} {
		return cat.ConversionRates(list)
	})
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request, _ approval.Actor) {
	s.aggregate(w, r, func(cat *opportunity.Catalog, list []model.Opportunity) interface{} {
		return cat.Report(list, s.now())
	})
}

// aggregate applies the request filter before summarising, so dashboards can
// scope a funnel or report to one owner or source.
func (s *Server) aggregate(w http.ResponseWriter, r *http.Request, fn func(*opportunity.Catalog, []model.Opportunity) interface{}) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	f, err := opportunityFilter(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	list, err := s.Store.ListOpportunities(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	cat := s.Catalog.Get()
	writeJSON(w, http.StatusOK, fn(cat, cat.Filter(list, f, s.now())))
}

func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request, _ approval.Actor) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, s.Catalog.Get())
}

func opportunityFilter(r *http.Request) (opportunity.Filter, error) {
	q := r.URL.Query()
	f := opportunity.Filter{
		Source:   q.Get("source"),
		Type:     q.Get("type"),
		Owner:    q.Get("owner"),
		Keyword:  q.Get("q"),
		OnlyOpen: queryBool(r, "open"),
		Overdue:  queryBool(r, "overdue"),
		Hot:      queryBool(r, "hot"),
	}
	for _, st := range queryList(r, "stage") {
		f.Stages = append(f.Stages, model.Stage(strings.ToUpper(st)))
	}
	for _, p := range queryList(r, "priority") {
		f.Priorities = append(f.Priorities, model.Priority(strings.ToUpper(p)))
	}
	var err error
	if f.MinAmount, err = queryAmount(r, "min_amount"); err != nil {
		return f, err
	}
	if f.MaxAmount, err = queryAmount(r, "max_amount"); err != nil {
		return f, err
	}
	return f, nil
}

func queryAmount(r *http.Request, key string) (*float64, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, apperr.InvalidInput(key, "must be a number")
	}
	return &v, nil
}
