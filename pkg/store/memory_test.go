package store

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bizdesk/pkg/apperr"
	"bizdesk/pkg/model"
)

var t0 = time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)

func sampleInstance(id string, created time.Time) model.ApprovalInstance {
	return model.ApprovalInstance{
		ID:            id,
		Title:         "Purchase " + id,
		Status:        model.InstancePending,
		Initiator:     "u1",
		InitiatorName: "Alice",
		CurrentNodeID: "n1",
		CreatedAt:     created,
		Tasks: []model.ApprovalTask{
			{ID: id + "-t1", InstanceID: id, Seq: 1, NodeID: "n1", NodeName: "Manager", Status: model.TaskPending, Assignee: "u2", AssigneeName: "Bob", CreatedAt: created},
			{ID: id + "-t2", InstanceID: id, Seq: 2, NodeID: "n2", NodeName: "Finance", Status: model.TaskPending, Assignee: "u3", AssigneeName: "Carol"},
		},
	}
}

func TestMemoryInstanceLifecycle(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()

	require.NoError(t, m.CreateInstance(ctx, sampleInstance("i1", t0)))
	assert.True(t, apperr.IsNotFound(func() error { _, err := m.GetInstance(ctx, "nope"); return err }()))
	assert.Equal(t, apperr.CodeConflict, apperr.CodeOf(m.CreateInstance(ctx, sampleInstance("i1", t0))))

	got, err := m.GetInstanceByTask(ctx, "i1-t2")
	require.NoError(t, err)
	assert.Equal(t, "i1", got.ID)

	// mutating the returned copy must not leak into the store
	got.Tasks[0].Comment = "scribble"
	again, err := m.GetInstance(ctx, "i1")
	require.NoError(t, err)
	assert.Empty(t, again.Tasks[0].Comment)

	again.Status = model.InstanceApproved
	updated, err := m.UpdateInstance(ctx, again)
	require.NoError(t, err)
	assert.Equal(t, 1, updated.Version)

	// stale write
	_, err = m.UpdateInstance(ctx, again)
	assert.Equal(t, apperr.CodeConflict, apperr.CodeOf(err))

	stored, _ := m.GetInstance(ctx, "i1")
	assert.Equal(t, model.InstanceApproved, stored.Status)
}

func TestMemoryListInstances(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	require.NoError(t, m.CreateInstance(ctx, sampleInstance("old", t0)))
	require.NoError(t, m.CreateInstance(ctx, sampleInstance("new", t0.Add(time.Hour))))
	done := sampleInstance("done", t0.Add(2*time.Hour))
	done.Status = model.InstanceRejected
	done.Initiator = "u9"
	require.NoError(t, m.CreateInstance(ctx, done))

	all, err := m.ListInstances(ctx, InstanceQuery{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "done", all[0].ID, "newest first")

	pending, _ := m.ListInstances(ctx, InstanceQuery{Status: model.InstancePending, Limit: 1})
	require.Len(t, pending, 1)
	assert.Equal(t, "new", pending[0].ID)

	mine, _ := m.ListInstances(ctx, InstanceQuery{Initiator: "u9"})
	require.Len(t, mine, 1)
}

func TestMemoryPendingTasksFollowCurrentNode(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	require.NoError(t, m.CreateInstance(ctx, sampleInstance("i1", t0)))

	bob, err := m.PendingTasks(ctx, "u2")
	require.NoError(t, err)
	require.Len(t, bob, 1)
	assert.Equal(t, "Purchase i1", bob[0].InstanceTitle)
	assert.Equal(t, "Alice", bob[0].InitiatorName)

	carol, _ := m.PendingTasks(ctx, "u3")
	assert.Empty(t, carol, "second step is not actionable yet")
}

func TestMemoryOpportunities(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	closeAt := t0.AddDate(0, 1, 0)
	o := model.Opportunity{ID: "o1", Name: "Fleet", Customer: "Acme", Stage: model.StageDiscovery, ExpectedCloseDate: &closeAt, CreatedAt: t0}
	require.NoError(t, m.CreateOpportunity(ctx, o))

	// the caller's pointer must not alias stored state
	closeAt = closeAt.AddDate(1, 0, 0)
	got, err := m.GetOpportunity(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, t0.AddDate(0, 1, 0), *got.ExpectedCloseDate)

	got.Stage = model.StageQualified
	require.NoError(t, m.UpdateOpportunity(ctx, got))
	list, _ := m.ListOpportunities(ctx)
	require.Len(t, list, 1)
	assert.Equal(t, model.StageQualified, list[0].Stage)

	require.NoError(t, m.DeleteOpportunity(ctx, "o1"))
	assert.True(t, apperr.IsNotFound(m.DeleteOpportunity(ctx, "o1")))
	assert.True(t, apperr.IsNotFound(m.UpdateOpportunity(ctx, got)))
}

func TestMemoryUsers(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	require.NoError(t, m.CreateUser(ctx, model.User{ID: "u1", Username: "alice"}))
	assert.Equal(t, apperr.CodeConflict, apperr.CodeOf(m.CreateUser(ctx, model.User{ID: "u2", Username: "Alice"})))

	u, err := m.GetUserByUsername(ctx, "ALICE")
	require.NoError(t, err)
	assert.Equal(t, "u1", u.ID)

	n, _ := m.CountUsers(ctx)
	assert.Equal(t, int64(1), n)

	_, err = m.GetUser(ctx, "u9")
	assert.True(t, apperr.IsNotFound(err))
}

func TestMemoryCreateFirstUserConcurrent(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()

	const n = 8
	errs := make(chan error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs <- m.CreateFirstUser(ctx, model.User{ID: fmt.Sprintf("u%d", i), Username: fmt.Sprintf("root%d", i), IsAdmin: true})
		}(i)
	}
	wg.Wait()
	close(errs)

	ok := 0
	for err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.Equal(t, apperr.CodeForbidden, apperr.CodeOf(err))
	}
	assert.Equal(t, 1, ok)
	count, _ := m.CountUsers(ctx)
	assert.Equal(t, int64(1), count)
}

func TestMemoryAuditNewestFirst(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	for i, target := range []string{"i1", "i2", "i1"} {
		require.NoError(t, m.AppendAudit(ctx, model.AuditEntry{Actor: "alice", Action: "approve", Target: target, Timestamp: t0.Add(time.Duration(i) * time.Minute)}))
	}

	all, _ := m.ListAudit(ctx, "", 0)
	require.Len(t, all, 3)
	assert.Equal(t, uint(3), all[0].ID)

	i1, _ := m.ListAudit(ctx, "i1", 1)
	require.Len(t, i1, 1)
	assert.Equal(t, uint(3), i1[0].ID)
}

func TestAuditLimitBounds(t *testing.T) {
	assert.Equal(t, defaultAuditLimit, auditLimit(0))
	assert.Equal(t, defaultAuditLimit, auditLimit(-3))
	assert.Equal(t, 7, auditLimit(7))
	assert.Equal(t, maxAuditLimit, auditLimit(maxAuditLimit+1))
	assert.Equal(t, maxAuditLimit, auditLimit(9000000000000000000))
}

func TestMemoryAuditHugeLimit(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	for i := 0; i < maxAuditLimit+5; i++ {
		require.NoError(t, m.AppendAudit(ctx, model.AuditEntry{Actor: "alice", Action: "approve", Target: "i1"}))
	}
	var (
		out []model.AuditEntry
		err error
	)
	require.NotPanics(t, func() { out, err = m.ListAudit(ctx, "i1", 9000000000000000000) })
	require.NoError(t, err)
	assert.Len(t, out, maxAuditLimit)
}

func TestWithAuditRedirects(t *testing.T) {
	ctx := context.Background()
	primary := NewMemoryStore()
	journal := NewMemoryStore()
	s := WithAudit(primary, journal)

	require.NoError(t, s.AppendAudit(ctx, model.AuditEntry{Actor: "a", Action: "x", Target: "t"}))
	fromPrimary, _ := primary.ListAudit(ctx, "", 0)
	fromJournal, _ := journal.ListAudit(ctx, "", 0)
	assert.Empty(t, fromPrimary)
	assert.Len(t, fromJournal, 1)

	assert.Same(t, primary, WithAudit(primary, nil).(*MemoryStore))
}
