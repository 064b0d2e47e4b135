package store

import (
	"context"
	"sort"
	"strings"
	"sync"

	"bizdesk/pkg/apperr"
	"bizdesk/pkg/model"
)

// MemoryStore is a simple in-memory implementation, intended for dev/demo.
// Values are copied on the way in and out so callers never share state.
type MemoryStore struct {
	mu            sync.RWMutex
	instances     map[string]model.ApprovalInstance
	taskInstance  map[string]string // task id -> instance id
	opportunities map[string]model.Opportunity
	users         map[string]model.User
	audit         []model.AuditEntry
	auditSeq      uint
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		instances:     make(map[string]model.ApprovalInstance),
		taskInstance:  make(map[string]string),
		opportunities: make(map[string]model.Opportunity),
		users:         make(map[string]model.User),
	}
}

func (m *MemoryStore) CreateInstance(_ context.Context, in model.ApprovalInstance) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.instances[in.ID]; ok {
		return apperr.Conflict("instance " + in.ID + " already exists")
	}
	for _, t := range in.Tasks {
		m.taskInstance[t.ID] = in.ID
	}
	m.instances[in.ID] = in.Clone()
	return nil
}

func (m *MemoryStore) GetInstance(_ context.Context, id string) (model.ApprovalInstance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	in, ok := m.instances[id]
	if !ok {
		return model.ApprovalInstance{}, apperr.NotFound("instance", id)
	}
	return in.Clone(), nil
}

func (m *MemoryStore) GetInstanceByTask(ctx context.Context, taskID string) (model.ApprovalInstance, error) {
	m.mu.RLock()
	id, ok := m.taskInstance[taskID]
	m.mu.RUnlock()
	if !ok {
		return model.ApprovalInstance{}, apperr.NotFound("task", taskID)
	}
	return m.GetInstance(ctx, id)
}

func (m *MemoryStore) ListInstances(_ context.Context, q InstanceQuery) ([]model.ApprovalInstance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.ApprovalInstance, 0, len(m.instances))
	for _, in := range m.instances {
		if q.Status != "" && in.Status != q.Status {
			continue
		}
		if q.Initiator != "" && in.Initiator != q.Initiator {
			continue
		}
		out = append(out, in.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (m *MemoryStore) UpdateInstance(_ context.Context, in model.ApprovalInstance) (model.ApprovalInstance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.instances[in.ID]
	if !ok {
		return model.ApprovalInstance{}, apperr.NotFound("instance", in.ID)
	}
	if cur.Version != in.Version {
		return model.ApprovalInstance{}, apperr.Conflict("instance " + in.ID + " was modified concurrently")
	}
	in.Version++
	for _, t := range in.Tasks {
		m.taskInstance[t.ID] = in.ID
	}
	m.instances[in.ID] = in.Clone()
	return in.Clone(), nil
}

func (m *MemoryStore) PendingTasks(_ context.Context, assignee string) ([]model.PendingTask, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.PendingTask
	for _, in := range m.instances {
		if in.Status != model.InstancePending {
			continue
		}
		t, ok := in.CurrentTask()
		if !ok || t.Assignee != assignee {
			continue
		}
		task := *t
		task.Attachments = append([]string(nil), t.Attachments...)
		out = append(out, model.PendingTask{
			ApprovalTask:  task,
			InstanceTitle: in.Title,
			InitiatorName: in.InitiatorName,
			BusinessType:  in.BusinessType,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryStore) ListOpportunities(_ context.Context) ([]model.Opportunity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.Opportunity, 0, len(m.opportunities))
	for _, o := range m.opportunities {
		out = append(out, cloneOpportunity(o))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *MemoryStore) GetOpportunity(_ context.Context, id string) (model.Opportunity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.opportunities[id]
	if !ok {
		return model.Opportunity{}, apperr.NotFound("opportunity", id)
	}
	return cloneOpportunity(o), nil
}

func (m *MemoryStore) CreateOpportunity(_ context.Context, o model.Opportunity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.opportunities[o.ID]; ok {
		return apperr.Conflict("opportunity " + o.ID + " already exists")
	}
	m.opportunities[o.ID] = cloneOpportunity(o)
	return nil
}

func (m *MemoryStore) UpdateOpportunity(_ context.Context, o model.Opportunity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.opportunities[o.ID]; !ok {
		return apperr.NotFound("opportunity", o.ID)
	}
	m.opportunities[o.ID] = cloneOpportunity(o)
	return nil
}

func (m *MemoryStore) DeleteOpportunity(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.opportunities[id]; !ok {
		return apperr.NotFound("opportunity", id)
	}
	delete(m.opportunities, id)
	return nil
}

func cloneOpportunity(o model.Opportunity) model.Opportunity {
	if o.ExpectedCloseDate != nil {
		d := *o.ExpectedCloseDate
		o.ExpectedCloseDate = &d
	}
	return o
}

func (m *MemoryStore) CreateUser(_ context.Context, u model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if strings.EqualFold(existing.Username, u.Username) {
			return apperr.Conflict("username " + u.Username + " is taken")
		}
	}
	m.users[u.ID] = u
	return nil
}

func (m *MemoryStore) CreateFirstUser(_ context.Context, u model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.users) > 0 {
		return errRegistrationClosed()
	}
	m.users[u.ID] = u
	return nil
}

func (m *MemoryStore) GetUser(_ context.Context, id string) (model.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return model.User{}, apperr.NotFound("user", id)
	}
	return u, nil
}

func (m *MemoryStore) GetUserByUsername(_ context.Context, username string) (model.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.users {
		if strings.EqualFold(u.Username, username) {
			return u, nil
		}
	}
	return model.User{}, apperr.NotFound("user", username)
}

func (m *MemoryStore) ListUsers(_ context.Context) ([]model.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.User, 0, len(m.users))
	for _, u := range m.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

func (m *MemoryStore) CountUsers(_ context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.users)), nil
}

func (m *MemoryStore) AppendAudit(_ context.Context, e model.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.auditSeq++
	e.ID = m.auditSeq
	m.audit = append(m.audit, e)
	return nil
}

func (m *MemoryStore) ListAudit(_ context.Context, target string, limit int) ([]model.AuditEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	limit = auditLimit(limit)
	out := []model.AuditEntry{}
	for i := len(m.audit) - 1; i >= 0 && len(out) < limit; i-- {
		if target != "" && m.audit[i].Target != target {
			continue
		}
		out = append(out, m.audit[i])
	}
	return out, nil
}

// Ping reports readiness for health/info endpoints.
func (m *MemoryStore) Ping(context.Context) error { return nil }
