// Package authz is the single authorization gate for lead mutations.
// Every mutation path calls into it; no call site re-implements the role
// or unassigned-sentinel checks.
package authz

import (
	"strings"

	"github.com/jordanlanch/leadconsole/pkg/domain"
)

// Mutation identifies the kind of change being attempted.
type Mutation string

const (
	MutationEdit     Mutation = "edit"   // notes, customer query, plain field edits
	MutationStatus   Mutation = "status" // gated exactly like a plain edit
	MutationAssign   Mutation = "assign"
	MutationUnassign Mutation = "unassign"
)

// Denial reasons surfaced to the operator.
const (
	ReasonUnassigned   = "lead is unassigned"
	ReasonOwnedByOther = "lead is owned by another agent"
	ReasonAssignSelf   = "agents may only assign leads to themselves"
	ReasonUnknownRole  = "unknown role"
)

// Decision is the boolean-plus-reason result of an authorization check.
// Authorization failures are never errors.
type Decision struct {
	Allowed bool
	Reason  string
}

func allow() Decision             { return Decision{Allowed: true} }
func deny(reason string) Decision { return Decision{Allowed: false, Reason: reason} }

// unassignedSentinels are the stored placeholders that all mean "no owner".
// A null owner arrives here as the empty string.
var unassignedSentinels = map[string]struct{}{
	"":  {},
	"-": {},
	"–": {}, // dash variant written by an old client
}

// Unassigned reports whether the owner value means "no owner". Whitespace-only
// strings count as unassigned.
func Unassigned(owner string) bool {
	trimmed := strings.TrimSpace(owner)
	_, ok := unassignedSentinels[trimmed]
	return ok
}

// OwnedBy reports whether the lead is assigned to the given actor, comparing
// by display name as the store records it.
func OwnedBy(lead domain.Lead, actor domain.Actor) bool {
	if Unassigned(lead.AssignedTo) {
		return false
	}
	return lead.AssignedTo == actor.Name
}

// CanMutate decides whether the actor may perform the mutation on the lead.
// Total over (role, assignment state, mutation kind); it never panics and
// never returns an error.
func CanMutate(actor domain.Actor, lead domain.Lead, kind Mutation) Decision {
	if actor.Role.Elevated() {
		return allow()
	}
	if actor.Role != domain.RoleAgent {
		return deny(ReasonUnknownRole)
	}

	switch {
	case Unassigned(lead.AssignedTo):
		// An agent may claim an unassigned lead but not touch it otherwise.
		if kind == MutationAssign {
			return allow()
		}
		return deny(ReasonUnassigned)
	case OwnedBy(lead, actor):
		return allow()
	default:
		return deny(ReasonOwnedByOther)
	}
}

// CanAssign decides whether the actor may assign the lead to the assignee.
// Agents may only assign to themselves, whether claiming an unassigned lead
// or re-assigning one they own.
func CanAssign(actor domain.Actor, lead domain.Lead, assignee domain.Actor) Decision {
	if d := CanMutate(actor, lead, MutationAssign); !d.Allowed {
		return d
	}
	if actor.Role == domain.RoleAgent && assignee.ID != actor.ID {
		return deny(ReasonAssignSelf)
	}
	return allow()
}

// CanBulkMutate applies CanMutate to every lead in the batch. For restricted
// roles the batch is all-or-nothing: one failing member rejects the whole
// batch before any mutation runs.
func CanBulkMutate(actor domain.Actor, leads []domain.Lead, kind Mutation) Decision {
	if actor.Role.Elevated() {
		return allow()
	}
	for _, l := range leads {
		if d := CanMutate(actor, l, kind); !d.Allowed {
			return d
		}
	}
	return allow()
}
