// Package timeline reconciles the three message sources of a conversation —
// optimistic local sends, vendor real-time pushes, and authoritative backend
// rows — into one deduplicated, chronologically ordered view.
package timeline

import (
	"sort"
	"sync"
	"time"

	"heartlink-client/pkg/constants"

	"heartlink-client/internal/domain"
)

// Source identifies which of the three message sources produced a batch
type Source int

const (
	SourceLocal Source = iota
	SourcePush
	SourceBackend
)

// String returns the metric label for a source
func (s Source) String() string {
	switch s {
	case SourceLocal:
		return "local"
	case SourcePush:
		return "push"
	default:
		return "backend"
	}
}

// tolerance is the timestamp window inside which two entries with matching
// sender and content are considered the same logical message. Push batches get
// the widened window because a push can arrive well before the backend write
// commits.
func (s Source) tolerance() time.Duration {
	if s == SourceLocal {
		return constants.LocalConfirmTolerance
	}
	return constants.PushBackfillTolerance
}

// sameLogical reports whether a and b describe the same logical message: the
// sender must match, and either the permanent ids match, the incoming entry
// carries the existing entry's temp id, or the content matches with timestamps
// inside the tolerance window.
func sameLogical(a, b *domain.Message, tol time.Duration) bool {
	if a.SenderID != b.SenderID {
		return false
	}
	if a.HasPermanentID() && b.HasPermanentID() {
		return a.ID == b.ID
	}
	if a.LocalTempID != "" && (a.LocalTempID == b.LocalTempID || a.LocalTempID == b.ID) {
		return true
	}
	if a.Body != b.Body || a.MediaURL != b.MediaURL {
		return false
	}
	delta := a.CreatedAt.Sub(b.CreatedAt)
	if delta < 0 {
		delta = -delta
	}
	return delta <= tol
}

// reconcile folds the incoming entry into the existing one, upgrading the
// temporary id to the permanent id once available and preserving the existing
// entry's position in the timeline. Returns true if anything changed.
func reconcile(existing *domain.Message, incoming *domain.Message) bool {
	changed := false
	if incoming.HasPermanentID() && existing.ID != incoming.ID {
		existing.ID = incoming.ID
		changed = true
	}
	if incoming.MediaURL != "" && existing.MediaURL != incoming.MediaURL {
		existing.MediaURL = incoming.MediaURL
		changed = true
	}
	if incoming.ReadAt != nil && existing.ReadAt == nil {
		existing.ReadAt = incoming.ReadAt
		changed = true
	}
	if incoming.Provenance == domain.ProvenanceBackend && existing.Provenance != domain.ProvenanceBackend {
		existing.Provenance = domain.ProvenanceBackend
		changed = true
	}
	return changed
}

// Merge folds a batch from one source into the current timeline. It is pure
// with respect to its inputs: when nothing changes it returns the current
// slice unmodified (reference-equal), so a redundant reconciliation poll never
// causes a visible re-render. Merge is idempotent and order-independent across
// the three sources: the dedup rule is applied before every append.
func Merge(current []domain.Message, batch []domain.Message, src Source) ([]domain.Message, bool) {
	if len(batch) == 0 {
		return current, false
	}

	next := current
	copied := false
	ensureOwned := func() {
		if !copied {
			next = make([]domain.Message, len(current))
			copy(next, current)
			copied = true
		}
	}

	changed := false
	tol := src.tolerance()

	for i := range batch {
		incoming := batch[i]

		matched := false
		for j := range next {
			if sameLogical(&next[j], &incoming, tol) {
				ensureOwned()
				if reconcile(&next[j], &incoming) {
					changed = true
				}
				matched = true
				break
			}
		}
		if matched {
			continue
		}

		ensureOwned()
		next = append(next, incoming)
		changed = true
	}

	if !changed {
		return current, false
	}

	sort.SliceStable(next, func(i, j int) bool {
		return next[i].CreatedAt.Before(next[j].CreatedAt)
	})
	return next, true
}

// DayGroup is one calendar day of messages for display
type DayGroup struct {
	Day      time.Time // midnight, local time of the day
	Messages []domain.Message
}

// GroupByDay splits an ordered timeline into display groups by calendar day
func GroupByDay(messages []domain.Message) []DayGroup {
	var groups []DayGroup
	for _, m := range messages {
		y, mo, d := m.CreatedAt.Local().Date()
		day := time.Date(y, mo, d, 0, 0, 0, 0, time.Local)
		if len(groups) == 0 || !groups[len(groups)-1].Day.Equal(day) {
			groups = append(groups, DayGroup{Day: day})
		}
		groups[len(groups)-1].Messages = append(groups[len(groups)-1].Messages, m)
	}
	return groups
}

// Timeline is the thread-safe reconciled view of one conversation
type Timeline struct {
	mu       sync.RWMutex
	messages []domain.Message
}

// New creates an empty timeline
func New() *Timeline {
	return &Timeline{}
}

// Apply merges a batch from the given source, returning whether the rendered
// view changed
func (t *Timeline) Apply(batch []domain.Message, src Source) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	next, changed := Merge(t.messages, batch, src)
	t.messages = next
	return changed
}

// Drop removes the entry with the given temporary id. Used to roll back a
// specific failed optimistic entry; never touches reconciled entries.
func (t *Timeline) Drop(tempID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.messages {
		if t.messages[i].LocalTempID == tempID && !t.messages[i].HasPermanentID() {
			t.messages = append(t.messages[:i:i], t.messages[i+1:]...)
			return true
		}
	}
	return false
}

// Snapshot returns the current ordered timeline. The returned slice is the
// internal one and must be treated as read-only; it is replaced wholesale on
// change, never mutated in place.
func (t *Timeline) Snapshot() []domain.Message {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.messages
}

// Len returns the number of entries
func (t *Timeline) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.messages)
}

// FindByTempID returns a copy of the entry with the given temp id, if present
func (t *Timeline) FindByTempID(tempID string) (domain.Message, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for i := range t.messages {
		if t.messages[i].LocalTempID == tempID {
			return t.messages[i], true
		}
	}
	return domain.Message{}, false
}
