package approval

import (
	"context"
	"fmt"
	"strings"

	"bizdesk/pkg/apperr"
	"bizdesk/pkg/model"
)

// actionableTask loads the instance owning taskID and checks that the task is
// the pending task on the current node and that actor is its assignee.
func (s *Service) actionableTask(ctx context.Context, actor Actor, taskID string) (model.ApprovalInstance, *model.ApprovalTask, error) {
	in, err := s.store.GetInstanceByTask(ctx, taskID)
	if err != nil {
		return in, nil, err
	}
	if in.Status != model.InstancePending {
		return in, nil, apperr.Newf(apperr.CodeConflict, "instance is not pending (status: %s)", in.Status)
	}
	t := findTask(&in, taskID)
	if t == nil {
		return in, nil, apperr.NotFound("task", taskID)
	}
	if t.Status != model.TaskPending {
		return in, nil, apperr.Newf(apperr.CodeConflict, "task %s is not pending", taskID)
	}
	if t.NodeID != in.CurrentNodeID {
		return in, nil, apperr.Newf(apperr.CodeConflict, "task %s is not on the current node", taskID)
	}
	if err := assertCanAct(t, actor); err != nil {
		return in, nil, err
	}
	return in, t, nil
}

func assertCanAct(t *model.ApprovalTask, actor Actor) error {
	if t.Assignee != actor.ID {
		return apperr.Forbidden("only the assignee can act on this task")
	}
	return nil
}

// ── Approve ───────────────────────────────────────────────────────────────────

// Approve completes the caller's task and moves the instance to the next
// pending step, or to APPROVED when none remain.
func (s *Service) Approve(ctx context.Context, actor Actor, taskID string, d Decision) (model.ApprovalInstance, error) {
	in, t, err := s.actionableTask(ctx, actor, taskID)
	if err != nil {
		return model.ApprovalInstance{}, err
	}
	now := s.now()
	t.Status = model.TaskCompleted
	t.Action = model.ActionApprove
	t.Comment = strings.TrimSpace(d.Comment)
	t.Attachments = d.Attachments
	t.CompletedAt = &now
	nodeName := t.NodeName

	var next *model.ApprovalTask
	for _, candidate := range orderedTasks(&in) {
		if candidate.Status == model.TaskPending {
			next = candidate
			break
		}
	}
	if next != nil {
		next.CreatedAt = now
		in.CurrentNodeID = next.NodeID
	} else {
		in.Status = model.InstanceApproved
		in.CurrentNodeID = ""
		in.CompletedAt = &now
	}

	updated, err := s.store.UpdateInstance(ctx, in)
	if err != nil {
		return model.ApprovalInstance{}, err
	}
	s.appendAudit(ctx, actor, "approve", in.ID, "approved at "+nodeName)
	if next != nil {
		s.notify(next.Assignee, EventTaskAssigned, updated, next.ID, actor, "")
		s.notify(updated.Initiator, EventTaskApproved, updated, taskID, actor, nodeName+" approved")
	} else {
		s.forgetLimiter(in.ID)
		s.notify(updated.Initiator, EventInstanceApproved, updated, taskID, actor, "")
	}
	s.log.Info().
		Str("instance_id", in.ID).
		Str("task_id", taskID).
		Str("actor", actor.ID).
		Bool("complete", next == nil).
		Msg("task approved")
	return updated, nil
}

// ── Reject ────────────────────────────────────────────────────────────────────

// Reject completes the caller's task with REJECT and closes the instance.
func (s *Service) Reject(ctx context.Context, actor Actor, taskID string, d Decision) (model.ApprovalInstance, error) {
	in, t, err := s.actionableTask(ctx, actor, taskID)
	if err != nil {
		return model.ApprovalInstance{}, err
	}
	comment := strings.TrimSpace(d.Comment)
	if comment == "" {
		return model.ApprovalInstance{}, apperr.InvalidInput("comment", "rejection reason is required")
	}
	now := s.now()
	t.Status = model.TaskCompleted
	t.Action = model.ActionReject
	t.Comment = comment
	t.Attachments = d.Attachments
	t.CompletedAt = &now
	in.Status = model.InstanceRejected
	in.CurrentNodeID = ""
	in.CompletedAt = &now

	updated, err := s.store.UpdateInstance(ctx, in)
	if err != nil {
		return model.ApprovalInstance{}, err
	}
	s.forgetLimiter(in.ID)
	s.appendAudit(ctx, actor, "reject", in.ID, "rejected at "+t.NodeName+": "+comment)
	s.notify(updated.Initiator, EventInstanceRejected, updated, taskID, actor, comment)
	s.log.Info().
		Str("instance_id", in.ID).
		Str("task_id", taskID).
		Str("actor", actor.ID).
		Msg("task rejected")
	return updated, nil
}

// ── Delegation ────────────────────────────────────────────────────────────────

// Delegate hands the caller's pending task to another user. The first
// assignee is remembered in DelegateFrom across repeated delegation.
func (s *Service) Delegate(ctx context.Context, actor Actor, taskID, to, comment string) (model.ApprovalInstance, error) {
	if to == "" {
		return model.ApprovalInstance{}, apperr.InvalidInput("to", "delegate is required")
	}
	in, t, err := s.actionableTask(ctx, actor, taskID)
	if err != nil {
		return model.ApprovalInstance{}, err
	}
	if to == t.Assignee {
		return model.ApprovalInstance{}, apperr.InvalidInput("to", "task is already assigned to this user")
	}
	target, err := s.store.GetUser(ctx, to)
	if apperr.IsNotFound(err) {
		return model.ApprovalInstance{}, apperr.InvalidInput("to", "unknown user "+to)
	}
	if err != nil {
		return model.ApprovalInstance{}, err
	}
	if t.DelegateFrom == "" {
		t.DelegateFrom = t.Assignee
		t.DelegateFromName = t.AssigneeName
	}
	t.Assignee = target.ID
	t.AssigneeName = target.Name()

	updated, err := s.store.UpdateInstance(ctx, in)
	if err != nil {
		return model.ApprovalInstance{}, err
	}
	detail := fmt.Sprintf("%s delegated to %s", t.NodeName, target.Name())
	if c := strings.TrimSpace(comment); c != "" {
		detail += ": " + c
	}
	s.appendAudit(ctx, actor, "delegate", in.ID, detail)
	s.notify(target.ID, EventTaskAssigned, updated, taskID, actor, comment)
	s.log.Info().
		Str("instance_id", in.ID).
		Str("task_id", taskID).
		Str("from", actor.ID).
		Str("to", target.ID).
		Msg("task delegated")
	return updated, nil
}

// ── Withdraw / Terminate ──────────────────────────────────────────────────────

// Withdraw lets the initiator pull back a PENDING instance.
func (s *Service) Withdraw(ctx context.Context, actor Actor, instanceID, reason string) (model.ApprovalInstance, error) {
	in, err := s.store.GetInstance(ctx, instanceID)
	if err != nil {
		return model.ApprovalInstance{}, err
	}
	if in.Initiator != actor.ID {
		return model.ApprovalInstance{}, apperr.Forbidden("only the initiator can withdraw the instance")
	}
	return s.closeInstance(ctx, actor, in, model.InstanceWithdrawn, EventInstanceWithdrawn, "withdraw", reason)
}

// Terminate lets an administrator force-close a PENDING instance.
func (s *Service) Terminate(ctx context.Context, actor Actor, instanceID, reason string) (model.ApprovalInstance, error) {
	if !actor.Admin {
		return model.ApprovalInstance{}, apperr.Forbidden("only an administrator can terminate an instance")
	}
	in, err := s.store.GetInstance(ctx, instanceID)
	if err != nil {
		return model.ApprovalInstance{}, err
	}
	return s.closeInstance(ctx, actor, in, model.InstanceTerminated, EventInstanceTerminated, "terminate", reason)
}

func (s *Service) closeInstance(ctx context.Context, actor Actor, in model.ApprovalInstance, to model.InstanceStatus, event, action, reason string) (model.ApprovalInstance, error) {
	if in.Status != model.InstancePending {
		return model.ApprovalInstance{}, apperr.Newf(apperr.CodeConflict, "instance cannot be closed from status %s", in.Status)
	}
	var assignee, taskID string
	if t, ok := in.CurrentTask(); ok {
		assignee, taskID = t.Assignee, t.ID
	}
	now := s.now()
	in.Status = to
	in.CurrentNodeID = ""
	in.CompletedAt = &now

	updated, err := s.store.UpdateInstance(ctx, in)
	if err != nil {
		return model.ApprovalInstance{}, err
	}
	s.forgetLimiter(in.ID)
	s.appendAudit(ctx, actor, action, in.ID, strings.TrimSpace(reason))
	s.notify(assignee, event, updated, taskID, actor, reason)
	s.notify(updated.Initiator, event, updated, "", actor, reason)
	s.log.Info().
		Str("instance_id", in.ID).
		Str("actor", actor.ID).
		Str("status", string(to)).
		Msg("approval instance closed")
	return updated, nil
}

// ── Urge ──────────────────────────────────────────────────────────────────────

// Urge reminds the current assignee. Only the initiator or an administrator
// may urge, and each instance accepts one reminder per urge interval.
func (s *Service) Urge(ctx context.Context, actor Actor, instanceID, message string) error {
	in, err := s.store.GetInstance(ctx, instanceID)
	if err != nil {
		return err
	}
	if in.Initiator != actor.ID && !actor.Admin {
		return apperr.Forbidden("only the initiator can urge this instance")
	}
	if in.Status != model.InstancePending {
		return apperr.Newf(apperr.CodeConflict, "instance is not pending (status: %s)", in.Status)
	}
	t, ok := in.CurrentTask()
	if !ok {
		return apperr.Conflict("instance has no current task")
	}
	if !s.limiter(in.ID).AllowN(s.now(), 1) {
		return apperr.New(apperr.CodeRateLimited, "a reminder was sent recently, try again later")
	}
	msg := strings.TrimSpace(message)
	if msg == "" {
		msg = fmt.Sprintf("%s is waiting for your approval", in.Title)
	}
	s.appendAudit(ctx, actor, "urge", in.ID, "reminded "+t.AssigneeName)
	s.notify(t.Assignee, EventUrge, in, t.ID, actor, msg)
	s.log.Info().Str("instance_id", in.ID).Str("assignee", t.Assignee).Msg("urge sent")
	return nil
}
