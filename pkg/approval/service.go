// Package approval runs the approval workflow: submitting instances and moving
// their tasks through approve, reject, delegate, withdraw, terminate and urge.
package approval

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"bizdesk/pkg/apperr"
	"bizdesk/pkg/model"
	"bizdesk/pkg/store"
	"bizdesk/pkg/timeline"
)

// Event types published to users.
const (
	EventTaskAssigned       = "task_assigned"
	EventTaskApproved       = "task_approved"
	EventUrge               = "urge"
	EventInstanceApproved   = "instance_approved"
	EventInstanceRejected   = "instance_rejected"
	EventInstanceWithdrawn  = "instance_withdrawn"
	EventInstanceTerminated = "instance_terminated"
)

// Publisher delivers events to a connected user. Delivery is best effort.
type Publisher interface {
	Publish(userID string, ev model.Event)
}

type nopPublisher struct{}

func (nopPublisher) Publish(string, model.Event) {}

// Actor is the authenticated caller of an operation.
type Actor struct {
	ID    string
	Name  string
	Admin bool
}

// Step is one approver in a submitted flow.
type Step struct {
	NodeID       string `json:"node_id"`
	NodeName     string `json:"node_name"`
	Assignee     string `json:"assignee"`
	AssigneeName string `json:"assignee_name,omitempty"`
}

// SubmitRequest starts a new approval instance.
type SubmitRequest struct {
	Title        string `json:"title"`
	BusinessType string `json:"business_type,omitempty"`
	BusinessID   string `json:"business_id,omitempty"`
	Steps        []Step `json:"steps"`
}

// Decision carries the approver's comment and attachments.
type Decision struct {
	Comment     string   `json:"comment"`
	Attachments []string `json:"attachments,omitempty"`
}

// Service implements the workflow transitions on top of a store.Store.
type Service struct {
	store     store.Store
	pub       Publisher
	log       zerolog.Logger
	now       func() time.Time
	newID     func() string
	urgeEvery time.Duration

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

type Option func(*Service)

func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

func WithIDs(next func() string) Option { return func(s *Service) { s.newID = next } }

// WithUrgeInterval sets the minimum gap between reminders for one instance.
func WithUrgeInterval(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.urgeEvery = d
		}
	}
}

func NewService(st store.Store, pub Publisher, log zerolog.Logger, opts ...Option) *Service {
	if pub == nil {
		pub = nopPublisher{}
	}
	s := &Service{
		store:     st,
		pub:       pub,
		log:       log.With().Str("component", "approval").Logger(),
		now:       time.Now,
		newID:     uuid.NewString,
		urgeEvery: time.Minute,
		limiters:  map[string]*rate.Limiter{},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// ── Submit ────────────────────────────────────────────────────────────────────

// Submit creates a PENDING instance whose first step becomes the current node.
func (s *Service) Submit(ctx context.Context, actor Actor, req SubmitRequest) (model.ApprovalInstance, error) {
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return model.ApprovalInstance{}, apperr.InvalidInput("title", "title is required")
	}
	if len(req.Steps) == 0 {
		return model.ApprovalInstance{}, apperr.InvalidInput("steps", "at least one approval step is required")
	}

	now := s.now()
	in := model.ApprovalInstance{
		ID:            s.newID(),
		Title:         title,
		BusinessType:  req.BusinessType,
		BusinessID:    req.BusinessID,
		Status:        model.InstancePending,
		Initiator:     actor.ID,
		InitiatorName: actor.Name,
		CreatedAt:     now,
	}
	seen := map[string]bool{}
	for i, step := range req.Steps {
		field := fmt.Sprintf("steps[%d]", i)
		if step.Assignee == "" {
			return model.ApprovalInstance{}, apperr.InvalidInput(field+".assignee", "assignee is required")
		}
		nodeID := step.NodeID
		if nodeID == "" {
			nodeID = fmt.Sprintf("node-%d", i+1)
		}
		if seen[nodeID] {
			return model.ApprovalInstance{}, apperr.InvalidInput(field+".node_id", "duplicate node "+nodeID)
		}
		seen[nodeID] = true
		name, err := s.assigneeName(ctx, step)
		if err != nil {
			return model.ApprovalInstance{}, err
		}
		nodeName := step.NodeName
		if nodeName == "" {
			nodeName = fmt.Sprintf("Step %d", i+1)
		}
		in.Tasks = append(in.Tasks, model.ApprovalTask{
			ID:           s.newID(),
			InstanceID:   in.ID,
			Seq:          i + 1,
			NodeID:       nodeID,
			NodeName:     nodeName,
			Status:       model.TaskPending,
			Assignee:     step.Assignee,
			AssigneeName: name,
		})
	}
	first := &in.Tasks[0]
	first.CreatedAt = now
	in.CurrentNodeID = first.NodeID

	if err := s.store.CreateInstance(ctx, in); err != nil {
		return model.ApprovalInstance{}, err
	}
	s.appendAudit(ctx, actor, "submit", in.ID, fmt.Sprintf("%q with %d steps", in.Title, len(in.Tasks)))
	s.notify(first.Assignee, EventTaskAssigned, in, first.ID, actor, "")
	s.log.Info().
		Str("instance_id", in.ID).
		Str("initiator", actor.ID).
		Int("steps", len(in.Tasks)).
		Msg("approval instance submitted")
	return in, nil
}

func (s *Service) assigneeName(ctx context.Context, step Step) (string, error) {
	if step.AssigneeName != "" {
		return step.AssigneeName, nil
	}
	u, err := s.store.GetUser(ctx, step.Assignee)
	if apperr.IsNotFound(err) {
		return "", apperr.InvalidInput("assignee", "unknown user "+step.Assignee)
	}
	if err != nil {
		return "", err
	}
	return u.Name(), nil
}

// ── Queries ───────────────────────────────────────────────────────────────────

func (s *Service) Get(ctx context.Context, id string) (model.ApprovalInstance, error) {
	return s.store.GetInstance(ctx, id)
}

func (s *Service) List(ctx context.Context, q store.InstanceQuery) ([]model.ApprovalInstance, error) {
	if q.Status != "" && !q.Status.Valid() {
		return nil, apperr.InvalidInput("status", "unknown status "+string(q.Status))
	}
	return s.store.ListInstances(ctx, q)
}

// Timeline derives the display timeline of an instance as of now.
func (s *Service) Timeline(ctx context.Context, id string) ([]model.TimelineNode, error) {
	in, err := s.store.GetInstance(ctx, id)
	if err != nil {
		return nil, err
	}
	return timeline.Build(in, s.now()), nil
}

// PendingTasks lists the tasks waiting on assignee.
func (s *Service) PendingTasks(ctx context.Context, assignee string) ([]model.PendingTask, error) {
	if assignee == "" {
		return nil, apperr.InvalidInput("assignee", "assignee is required")
	}
	return s.store.PendingTasks(ctx, assignee)
}

// History returns the audit entries recorded against an instance.
func (s *Service) History(ctx context.Context, id string, limit int) ([]model.AuditEntry, error) {
	if _, err := s.store.GetInstance(ctx, id); err != nil {
		return nil, err
	}
	return s.store.ListAudit(ctx, id, limit)
}

// ── helpers ───────────────────────────────────────────────────────────────────

// appendAudit is best effort; a failed audit write never undoes the transition.
func (s *Service) appendAudit(ctx context.Context, actor Actor, action, target, detail string) {
	err := s.store.AppendAudit(ctx, model.AuditEntry{
		Actor:     actorLabel(actor),
		Action:    action,
		Target:    target,
		Detail:    detail,
		Timestamp: s.now(),
	})
	if err != nil {
		s.log.Warn().Err(err).Str("action", action).Str("target", target).Msg("audit append failed")
	}
}

func actorLabel(a Actor) string {
	if a.Name != "" {
		return a.Name
	}
	return a.ID
}

func (s *Service) notify(userID, typ string, in model.ApprovalInstance, taskID string, actor Actor, msg string) {
	if userID == "" || userID == actor.ID {
		return
	}
	s.pub.Publish(userID, model.Event{
		Type:       typ,
		InstanceID: in.ID,
		TaskID:     taskID,
		Title:      in.Title,
		Actor:      actorLabel(actor),
		Message:    msg,
		At:         s.now(),
	})
}

// orderedTasks returns pointers into in.Tasks sorted by Seq.
func orderedTasks(in *model.ApprovalInstance) []*model.ApprovalTask {
	out := make([]*model.ApprovalTask, len(in.Tasks))
	for i := range in.Tasks {
		out[i] = &in.Tasks[i]
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out
}

func findTask(in *model.ApprovalInstance, taskID string) *model.ApprovalTask {
	for i := range in.Tasks {
		if in.Tasks[i].ID == taskID {
			return &in.Tasks[i]
		}
	}
	return nil
}

func (s *Service) limiter(instanceID string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.limiters[instanceID]
	if !ok {
		l = rate.NewLimiter(rate.Every(s.urgeEvery), 1)
		s.limiters[instanceID] = l
	}
	return l
}

func (s *Service) forgetLimiter(instanceID string) {
	s.mu.Lock()
	delete(s.limiters, instanceID)
	s.mu.Unlock()
}
