package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jordanlanch/leadconsole/pkg/domain"
	"github.com/jordanlanch/leadconsole/pkg/leadstore"
	"github.com/jordanlanch/leadconsole/pkg/logger"
	"github.com/jordanlanch/leadconsole/pkg/pipeline"
)

type digestNotifier struct {
	sends []digestSend
}

type digestSend struct {
	destination string
	templateID  string
	params      map[string]string
}

func (n *digestNotifier) Send(ctx context.Context, destination, templateID string, params map[string]string) domain.SendResult {
	n.sends = append(n.sends, digestSend{destination: destination, templateID: templateID, params: params})
	return domain.SendResult{Success: true}
}

func followUpLead(id, owner string, scheduledAt time.Time) domain.Lead {
	return domain.Lead{
		ID:         id,
		Name:       "Lead " + id,
		Status:     domain.StatusFollowUp,
		AssignedTo: owner,
		CreatedAt:  scheduledAt.Add(-48 * time.Hour).UnixMilli(),
		Callback: &domain.CallbackInfo{
			ScheduledAt: scheduledAt,
			ScheduledBy: owner,
		},
	}
}

func TestCollectDue(t *testing.T) {
	reg := pipeline.Defaults()
	pipe, err := reg.Get("web")
	require.NoError(t, err)

	now := time.Date(2024, 3, 10, 7, 0, 0, 0, time.UTC)
	store := leadstore.NewMemory(reg)
	store.Put(pipe.Collection, followUpLead("l1", "Alice", now.Add(3*time.Hour)))
	store.Put(pipe.Collection, followUpLead("l2", "Alice", now.Add(14*time.Hour)))
	store.Put(pipe.Collection, followUpLead("l3", "Alice", now.Add(-26*time.Hour)))
	store.Put(pipe.Collection, followUpLead("l4", "Bob", now.Add(26*time.Hour)))
	store.Put(pipe.Collection, followUpLead("l5", "", now.Add(2*time.Hour)))
	// Every unassigned spelling buckets together, never as an operator
	// named after the sentinel.
	store.Put(pipe.Collection, followUpLead("l6", "–", now.Add(4*time.Hour)))
	store.Put(pipe.Collection, followUpLead("l7", "   ", now.Add(5*time.Hour)))
	// Leads outside follow-up never enter the digest, scheduled or not.
	other := followUpLead("l8", "Alice", now.Add(time.Hour))
	other.Status = domain.StatusInterested
	store.Put(pipe.Collection, other)

	digest := NewCallbackDigest(store, nil, reg, "", logger.Nop())
	due, err := digest.CollectDue(context.Background(), pipe, now)
	require.NoError(t, err)

	// Bob only has a callback tomorrow, so he drops out entirely.
	require.Len(t, due, 2)
	assert.Equal(t, OwnerDue{Owner: "Alice", DueToday: 2, Overdue: 1}, due[0])
	assert.Equal(t, OwnerDue{Owner: "unassigned", DueToday: 3}, due[1])
}

func TestRunDelivery(t *testing.T) {
	reg := pipeline.Defaults()
	pipe, err := reg.Get("web")
	require.NoError(t, err)

	now := time.Date(2024, 3, 10, 7, 0, 0, 0, time.UTC)
	store := leadstore.NewMemory(reg)
	store.Put(pipe.Collection, followUpLead("l1", "Alice", now.Add(2*time.Hour)))

	t.Run("Success - digest sent to recipient", func(t *testing.T) {
		notifier := &digestNotifier{}
		digest := NewCallbackDigest(store, notifier, reg, "ops@example.com", logger.Nop())
		digest.now = func() time.Time { return now }

		digest.Run(context.Background())

		// Only the web pipeline has due callbacks; the others stay silent.
		require.Len(t, notifier.sends, 1)
		send := notifier.sends[0]
		assert.Equal(t, "ops@example.com", send.destination)
		assert.Equal(t, digestTemplateID, send.templateID)
		assert.Equal(t, "web", send.params["pipeline"])
		assert.Equal(t, "1", send.params["due_today"])
		assert.Equal(t, "0", send.params["overdue"])
		assert.Contains(t, send.params["detail"], "Alice: 1 due today")
	})

	t.Run("Success - no recipient configured logs only", func(t *testing.T) {
		notifier := &digestNotifier{}
		digest := NewCallbackDigest(store, notifier, reg, "", logger.Nop())
		digest.now = func() time.Time { return now }

		digest.Run(context.Background())

		assert.Empty(t, notifier.sends)
	})
}
