// Package callback computes follow-up urgency for leads with a scheduled
// callback. Pure functions only; callers supply the clock.
package callback

import (
	"math"
	"time"

	"github.com/jordanlanch/leadconsole/pkg/domain"
)

// Urgency buckets, lowest number first in the follow-up view.
const (
	BucketToday    = 1 // scheduled on the same calendar day as now
	BucketTomorrow = 2 // scheduled on the next calendar day
	BucketLater    = 3 // scheduled two or more days ahead
	BucketNone     = 4 // unscheduled or overdue
)

// Key is the composite ordering key for the follow-up view: bucket first,
// then scheduled time ascending. Tiebreak is nil for bucket 4 entries
// without a schedule, which keep their relative order.
type Key struct {
	Bucket   int
	Tiebreak *time.Time
}

// Priority buckets a lead by how urgently its callback is due. Comparison is
// calendar-day based (midnight-aligned in now's location), so a callback at
// 23:59 today and one at 00:01 tomorrow land in different buckets.
func Priority(l domain.Lead, now time.Time) Key {
	if l.Callback == nil {
		return Key{Bucket: BucketNone}
	}

	sched := l.Callback.ScheduledAt.In(now.Location())
	days := daysBetween(now, sched)

	switch {
	case days < 0:
		// Overdue callbacks sort with the unscheduled, but keep the
		// timestamp so equal-bucket ordering stays deterministic.
		return Key{Bucket: BucketNone, Tiebreak: &sched}
	case days == 0:
		return Key{Bucket: BucketToday, Tiebreak: &sched}
	case days == 1:
		return Key{Bucket: BucketTomorrow, Tiebreak: &sched}
	default:
		return Key{Bucket: BucketLater, Tiebreak: &sched}
	}
}

// Less orders two keys: lower bucket first, then earlier tiebreak. Keys
// without a tiebreak compare equal, preserving insertion order under a
// stable sort.
func Less(a, b Key) bool {
	if a.Bucket != b.Bucket {
		return a.Bucket < b.Bucket
	}
	if a.Tiebreak == nil || b.Tiebreak == nil {
		return false
	}
	return a.Tiebreak.Before(*b.Tiebreak)
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// daysBetween counts calendar-day steps from a to b. Rounding absorbs DST
// transitions where a "day" is 23 or 25 hours.
func daysBetween(a, b time.Time) int {
	diff := startOfDay(b).Sub(startOfDay(a)).Hours() / 24
	return int(math.Round(diff))
}
