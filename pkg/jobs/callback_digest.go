// Package jobs holds the scheduled background work. The only shipped job is
// the morning callback digest, one message per pipeline summarizing which
// follow-ups are due today and which slipped.
package jobs

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jordanlanch/leadconsole/pkg/authz"
	"github.com/jordanlanch/leadconsole/pkg/callback"
	"github.com/jordanlanch/leadconsole/pkg/domain"
	"github.com/jordanlanch/leadconsole/pkg/logger"
	"github.com/jordanlanch/leadconsole/pkg/pipeline"
)

const (
	digestTemplateID = "d-callback-digest"
	digestPageSize   = 100
	digestMaxPages   = 50
)

// OwnerDue is the per-operator digest line for one pipeline.
type OwnerDue struct {
	Owner    string `json:"owner"`
	DueToday int    `json:"due_today"`
	Overdue  int    `json:"overdue"`
}

// CallbackDigest scans every pipeline's follow-up leads and reports which
// callbacks are due. Delivery is optional; without a recipient the digest is
// only logged.
type CallbackDigest struct {
	store     domain.LeadStore
	notifier  domain.Notifier
	pipelines *pipeline.Registry
	recipient string
	log       logger.Logger
	now       func() time.Time
}

// NewCallbackDigest creates the digest job. recipient may be empty.
func NewCallbackDigest(store domain.LeadStore, notifier domain.Notifier, pipelines *pipeline.Registry, recipient string, log logger.Logger) *CallbackDigest {
	if log == nil {
		log = logger.Nop()
	}
	return &CallbackDigest{
		store:     store,
		notifier:  notifier,
		pipelines: pipelines,
		recipient: recipient,
		log:       log,
		now:       time.Now,
	}
}

// Run executes one digest pass over all pipelines. Per-pipeline failures are
// logged and do not abort the remaining pipelines.
func (d *CallbackDigest) Run(ctx context.Context) {
	now := d.now()
	for _, pipe := range d.pipelines.All() {
		due, err := d.CollectDue(ctx, pipe, now)
		if err != nil {
			d.log.Error("callback digest scan failed", "pipeline", pipe.Key, "error", err)
			continue
		}
		d.report(ctx, pipe, due)
	}
}

// CollectDue walks the pipeline's follow-up leads and aggregates due and
// overdue callbacks per owner. Leads without a schedule are ignored.
func (d *CallbackDigest) CollectDue(ctx context.Context, pipe pipeline.Config, now time.Time) ([]OwnerDue, error) {
	preds := []domain.Predicate{
		{Field: pipe.Field(pipeline.FieldStatus), Op: domain.OpEq, Value: string(pipe.FollowUpStatus)},
	}
	sortBy := domain.Sort{Field: pipe.Field(pipeline.FieldCreatedAt), Desc: false}

	byOwner := make(map[string]*OwnerDue)
	cursor := ""
	for page := 0; page < digestMaxPages; page++ {
		res, err := d.store.Query(ctx, pipe.Collection, preds, sortBy, cursor, digestPageSize)
		if err != nil {
			return nil, fmt.Errorf("failed to query follow-up leads: %w", err)
		}
		for _, l := range res.Items {
			if l.Callback == nil {
				continue
			}
			key := callback.Priority(l, now)
			owner := l.AssignedTo
			if authz.Unassigned(owner) {
				owner = "unassigned"
			}
			entry, ok := byOwner[owner]
			if !ok {
				entry = &OwnerDue{Owner: owner}
				byOwner[owner] = entry
			}
			switch {
			case key.Bucket == callback.BucketToday:
				entry.DueToday++
			case key.Bucket == callback.BucketNone && key.Tiebreak != nil:
				entry.Overdue++
			}
		}
		if !res.HasMore {
			break
		}
		cursor = res.NextCursor
	}

	out := make([]OwnerDue, 0, len(byOwner))
	for _, entry := range byOwner {
		if entry.DueToday == 0 && entry.Overdue == 0 {
			continue
		}
		out = append(out, *entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Owner < out[j].Owner })
	return out, nil
}

func (d *CallbackDigest) report(ctx context.Context, pipe pipeline.Config, due []OwnerDue) {
	var today, overdue int
	lines := make([]string, 0, len(due))
	for _, o := range due {
		today += o.DueToday
		overdue += o.Overdue
		lines = append(lines, fmt.Sprintf("%s: %d due today, %d overdue", o.Owner, o.DueToday, o.Overdue))
	}

	d.log.Info("callback digest",
		"pipeline", pipe.Key, "due_today", today, "overdue", overdue, "owners", len(due))

	if d.notifier == nil || d.recipient == "" || len(due) == 0 {
		return
	}
	res := d.notifier.Send(ctx, d.recipient, digestTemplateID, map[string]string{
		"pipeline":  pipe.Key,
		"due_today": fmt.Sprintf("%d", today),
		"overdue":   fmt.Sprintf("%d", overdue),
		"detail":    strings.Join(lines, "\n"),
	})
	if !res.Success {
		d.log.Warn("callback digest delivery failed", "pipeline", pipe.Key, "reason", res.Reason)
	}
}
