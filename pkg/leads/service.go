// Package leads implements single-lead mutations: notes, status changes,
// assignment. Every mutation is gated by the authorization matrix and writes
// the store before any caller-visible state changes.
package leads

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jordanlanch/leadconsole/pkg/authz"
	"github.com/jordanlanch/leadconsole/pkg/domain"
	"github.com/jordanlanch/leadconsole/pkg/logger"
	"github.com/jordanlanch/leadconsole/pkg/pipeline"
)

// Statuses that hand control to the capture workflow before committing.
var capturedStatuses = map[domain.Status]bool{
	domain.StatusFollowUp:        true,
	domain.StatusLanguageBarrier: true,
	domain.StatusConverted:       true,
}

// Invalidator drops cached list pages for a pipeline after a mutation.
type Invalidator interface {
	InvalidateLists(ctx context.Context, pipeline string) error
}

// Service handles mutations for one pipeline.
type Service struct {
	store   domain.LeadStore
	capture domain.CaptureWorkflow
	targets domain.TargetsCounter
	inval   Invalidator
	pipe    pipeline.Config
	log     logger.Logger
	now     func() time.Time
}

// NewService wires a mutation service. capture, targets and inval are
// optional; a nil capture rejects gated status transitions.
func NewService(store domain.LeadStore, capture domain.CaptureWorkflow, targets domain.TargetsCounter, inval Invalidator, pipe pipeline.Config, log logger.Logger) *Service {
	if log == nil {
		log = logger.Nop()
	}
	return &Service{
		store:   store,
		capture: capture,
		targets: targets,
		inval:   inval,
		pipe:    pipe,
		log:     log.With("pipeline", pipe.Key),
		now:     time.Now,
	}
}

// Get retrieves one lead.
func (s *Service) Get(ctx context.Context, id string) (*domain.Lead, error) {
	return s.store.Get(ctx, s.pipe.Collection, id)
}

// SaveNote appends a note to the lead's history and overwrites the
// denormalized note field shown in the list.
func (s *Service) SaveNote(ctx context.Context, actor domain.Actor, id, note string) (*domain.Lead, error) {
	lead, err := s.store.Get(ctx, s.pipe.Collection, id)
	if err != nil {
		return nil, err
	}
	if d := authz.CanMutate(actor, *lead, authz.MutationEdit); !d.Allowed {
		return nil, domain.NewForbiddenError(d.Reason)
	}

	now := s.now().UnixMilli()
	fields := map[string]interface{}{
		s.pipe.Field(pipeline.FieldNote):      note,
		s.pipe.Field(pipeline.FieldUpdatedAt): now,
	}
	if err := s.store.Write(ctx, s.pipe.Collection, id, fields); err != nil {
		return nil, fmt.Errorf("failed to save note: %w", err)
	}
	entry := domain.HistoryEntry{Content: note, CreatedBy: actor.Name, CreatedAt: now, Kind: domain.HistoryNote}
	if err := s.store.AppendHistory(ctx, s.pipe.Collection, id, entry); err != nil {
		return nil, fmt.Errorf("failed to append note history: %w", err)
	}

	s.invalidate(ctx)
	return s.store.Get(ctx, s.pipe.Collection, id)
}

// ChangeStatus moves a lead to the target status. Transitions into follow-up,
// language-barrier and converted do not apply until the capture workflow
// confirms and supplies the extra data. Converting adjusts the external
// targets counter; reverting a conversion adjusts it back.
func (s *Service) ChangeStatus(ctx context.Context, actor domain.Actor, id string, target domain.Status) (*domain.Lead, error) {
	return s.ChangeStatusWith(ctx, actor, id, target, s.capture)
}

// ChangeStatusWith runs a status change against a caller-supplied capture
// workflow. Over HTTP the client is the capture form, so the handler passes a
// workflow holding the submitted data.
func (s *Service) ChangeStatusWith(ctx context.Context, actor domain.Actor, id string, target domain.Status, capture domain.CaptureWorkflow) (*domain.Lead, error) {
	if !s.pipe.HasStatus(target) {
		return nil, domain.NewValidationError(fmt.Sprintf("status %q not available in this pipeline", target))
	}
	lead, err := s.store.Get(ctx, s.pipe.Collection, id)
	if err != nil {
		return nil, err
	}
	if d := authz.CanMutate(actor, *lead, authz.MutationStatus); !d.Allowed {
		return nil, domain.NewForbiddenError(d.Reason)
	}

	now := s.now().UnixMilli()
	fields := map[string]interface{}{
		s.pipe.Field(pipeline.FieldStatus):    string(target),
		s.pipe.Field(pipeline.FieldUpdatedAt): now,
	}

	if capturedStatuses[target] {
		if capture == nil {
			return nil, domain.NewInternalError(errors.New("no capture workflow configured"))
		}
		res, err := capture.Capture(ctx, *lead, target)
		if err != nil {
			return nil, fmt.Errorf("failed to capture status data: %w", err)
		}
		if res == nil || !res.Confirmed {
			// The operator backed out; the status change is dropped.
			return lead, nil
		}
		switch target {
		case domain.StatusFollowUp:
			if res.CallbackAt == nil {
				return nil, domain.NewValidationError("follow-up requires a callback time")
			}
			fields[s.pipe.Field(pipeline.FieldCallback)] = &domain.CallbackInfo{
				ScheduledAt: *res.CallbackAt,
				ScheduledBy: actor.Name,
				CreatedAt:   s.now(),
			}
		case domain.StatusLanguageBarrier:
			fields[s.pipe.Field(pipeline.FieldLanguage)] = res.Language
		case domain.StatusConverted:
			at := now
			if res.ConvertedAt != nil {
				at = res.ConvertedAt.UnixMilli()
			}
			fields[s.pipe.Field(pipeline.FieldConvertedAt)] = at
		}
	}

	reverting := lead.Status == domain.StatusConverted && target != domain.StatusConverted
	if reverting {
		fields[s.pipe.Field(pipeline.FieldConvertedAt)] = nil
	}

	if err := s.store.Write(ctx, s.pipe.Collection, id, fields); err != nil {
		return nil, fmt.Errorf("failed to change status: %w", err)
	}

	if target == domain.StatusConverted && lead.Status != domain.StatusConverted {
		s.bumpTargets(ctx, true)
	} else if reverting {
		s.bumpTargets(ctx, false)
	}

	s.invalidate(ctx)
	return s.store.Get(ctx, s.pipe.Collection, id)
}

// Assign puts the lead into the assignee's queue. Reassigning to the current
// owner is allowed and still records exactly one history entry.
func (s *Service) Assign(ctx context.Context, actor domain.Actor, id string, assignee domain.Actor) (*domain.Lead, error) {
	lead, err := s.store.Get(ctx, s.pipe.Collection, id)
	if err != nil {
		return nil, err
	}
	if d := authz.CanAssign(actor, *lead, assignee); !d.Allowed {
		return nil, domain.NewForbiddenError(d.Reason)
	}

	now := s.now().UnixMilli()
	fields := map[string]interface{}{
		s.pipe.Field(pipeline.FieldAssignedTo):   assignee.Name,
		s.pipe.Field(pipeline.FieldAssignedToID): assignee.ID,
		s.pipe.Field(pipeline.FieldUpdatedAt):    now,
	}
	if err := s.store.Write(ctx, s.pipe.Collection, id, fields); err != nil {
		return nil, fmt.Errorf("failed to assign lead: %w", err)
	}
	entry := domain.HistoryEntry{
		Content:   fmt.Sprintf("assigned to %s", assignee.Name),
		CreatedBy: actor.Name,
		CreatedAt: now,
		Kind:      domain.HistoryAssignment,
	}
	if err := s.store.AppendHistory(ctx, s.pipe.Collection, id, entry); err != nil {
		return nil, fmt.Errorf("failed to append assignment history: %w", err)
	}

	s.invalidate(ctx)
	return s.store.Get(ctx, s.pipe.Collection, id)
}

// Unassign returns the lead to the unowned pool.
func (s *Service) Unassign(ctx context.Context, actor domain.Actor, id string) (*domain.Lead, error) {
	lead, err := s.store.Get(ctx, s.pipe.Collection, id)
	if err != nil {
		return nil, err
	}
	if d := authz.CanMutate(actor, *lead, authz.MutationUnassign); !d.Allowed {
		return nil, domain.NewForbiddenError(d.Reason)
	}

	now := s.now().UnixMilli()
	fields := map[string]interface{}{
		s.pipe.Field(pipeline.FieldAssignedTo):   "",
		s.pipe.Field(pipeline.FieldAssignedToID): "",
		s.pipe.Field(pipeline.FieldUpdatedAt):    now,
	}
	if err := s.store.Write(ctx, s.pipe.Collection, id, fields); err != nil {
		return nil, fmt.Errorf("failed to unassign lead: %w", err)
	}
	entry := domain.HistoryEntry{Content: "unassigned", CreatedBy: actor.Name, CreatedAt: now, Kind: domain.HistoryAssignment}
	if err := s.store.AppendHistory(ctx, s.pipe.Collection, id, entry); err != nil {
		return nil, fmt.Errorf("failed to append assignment history: %w", err)
	}

	s.invalidate(ctx)
	return s.store.Get(ctx, s.pipe.Collection, id)
}

// Delete removes a lead entirely. Elevated roles only.
func (s *Service) Delete(ctx context.Context, actor domain.Actor, id string) error {
	if !actor.Role.Elevated() {
		return domain.NewForbiddenError("only managers may delete leads")
	}
	if err := s.store.Delete(ctx, s.pipe.Collection, id); err != nil {
		return fmt.Errorf("failed to delete lead: %w", err)
	}
	s.invalidate(ctx)
	return nil
}

// bumpTargets adjusts the external converted-leads counter. Counter failures
// never fail the mutation; they are logged and left to reconciliation.
func (s *Service) bumpTargets(ctx context.Context, up bool) {
	if s.targets == nil {
		return
	}
	var err error
	if up {
		err = s.targets.IncrTargets(ctx, s.pipe.Key)
	} else {
		err = s.targets.DecrTargets(ctx, s.pipe.Key)
	}
	if err != nil {
		s.log.Warn("failed to adjust targets counter", "error", err)
	}
}

func (s *Service) invalidate(ctx context.Context) {
	if s.inval == nil {
		return
	}
	if err := s.inval.InvalidateLists(ctx, s.pipe.Key); err != nil {
		s.log.Warn("failed to invalidate list cache", "error", err)
	}
}
