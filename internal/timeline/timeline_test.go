package timeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"heartlink-client/internal/domain"
)

var base = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func localMsg(tempID, sender, body string, at time.Time) domain.Message {
	return domain.Message{
		ID:          tempID,
		LocalTempID: tempID,
		SenderID:    sender,
		Body:        body,
		CreatedAt:   at,
		Provenance:  domain.ProvenanceLocal,
	}
}

func backendMsg(id, sender, body string, at time.Time) domain.Message {
	return domain.Message{
		ID:         id,
		SenderID:   sender,
		Body:       body,
		CreatedAt:  at,
		Provenance: domain.ProvenanceBackend,
	}
}

func TestMerge_BackendConfirmUpgradesOptimisticEntry(t *testing.T) {
	optimistic := localMsg("tmp-1", "alice", "hey there", base)
	current, changed := Merge(nil, []domain.Message{optimistic}, SourceLocal)
	require.True(t, changed)
	require.Len(t, current, 1)

	// Backend confirm carries the temp id back, as the send path arranges
	confirmed := backendMsg("42", "alice", "hey there", base.Add(300*time.Millisecond))
	confirmed.LocalTempID = "tmp-1"

	next, changed := Merge(current, []domain.Message{confirmed}, SourceLocal)
	require.True(t, changed)
	require.Len(t, next, 1, "confirm must reconcile, not duplicate")
	assert.Equal(t, "42", next[0].ID)
	assert.Equal(t, "tmp-1", next[0].LocalTempID)
	assert.True(t, next[0].HasPermanentID())
	assert.Equal(t, domain.ProvenanceBackend, next[0].Provenance)
	// Position timestamp stays the optimistic one
	assert.Equal(t, base, next[0].CreatedAt)
}

func TestMerge_PushThenBackendRowConverge(t *testing.T) {
	push := domain.Message{
		SenderID:   "bob",
		Body:       "look at this",
		MediaURL:   "https://cdn.example.com/img.jpg",
		CreatedAt:  base,
		Provenance: domain.ProvenancePush,
	}
	current, changed := Merge(nil, []domain.Message{push}, SourcePush)
	require.True(t, changed)

	// Authoritative row lands 20s later, within the push tolerance
	row := backendMsg("77", "bob", "look at this", base.Add(20*time.Second))
	row.MediaURL = "https://cdn.example.com/img.jpg"

	next, changed := Merge(current, []domain.Message{row}, SourceBackend)
	require.True(t, changed)
	require.Len(t, next, 1)
	assert.Equal(t, "77", next[0].ID)
	assert.Equal(t, domain.ProvenanceBackend, next[0].Provenance)
}

func TestMerge_RedundantPollReturnsSameSlice(t *testing.T) {
	rows := []domain.Message{
		backendMsg("1", "alice", "first", base),
		backendMsg("2", "bob", "second", base.Add(time.Minute)),
	}
	current, changed := Merge(nil, rows, SourceBackend)
	require.True(t, changed)

	again, changed := Merge(current, rows, SourceBackend)
	assert.False(t, changed)
	// Reference equality is the contract: no re-render on an unchanged poll
	assert.Same(t, &current[0], &again[0])
	assert.Len(t, again, 2)
}

func TestMerge_NeverDuplicatesPermanentIDs(t *testing.T) {
	rows := []domain.Message{
		backendMsg("1", "alice", "a", base),
		backendMsg("2", "alice", "b", base.Add(time.Second)),
	}
	current, _ := Merge(nil, rows, SourceBackend)

	// Same rows again via the push path, then backend again
	current, _ = Merge(current, rows, SourcePush)
	current, _ = Merge(current, rows, SourceBackend)

	seen := map[string]bool{}
	for _, m := range current {
		assert.False(t, seen[m.ID], "duplicate permanent id %s", m.ID)
		seen[m.ID] = true
	}
	assert.Len(t, current, 2)
}

func TestMerge_OrderIndependentAcrossSources(t *testing.T) {
	optimistic := localMsg("tmp-9", "alice", "ping", base)
	confirmed := backendMsg("9", "alice", "ping", base.Add(time.Second))
	confirmed.LocalTempID = "tmp-9"
	other := backendMsg("10", "bob", "pong", base.Add(2*time.Second))

	// Path A: local first, then backend batch
	a, _ := Merge(nil, []domain.Message{optimistic}, SourceLocal)
	a, _ = Merge(a, []domain.Message{confirmed, other}, SourceBackend)

	// Path B: backend batch first, then local echo
	b, _ := Merge(nil, []domain.Message{confirmed, other}, SourceBackend)
	b, _ = Merge(b, []domain.Message{optimistic}, SourceLocal)

	require.Len(t, a, 2)
	require.Len(t, b, 2)
	for i := range a {
		assert.Equal(t, a[i].ID, b[i].ID)
		assert.Equal(t, a[i].Body, b[i].Body)
	}
}

func TestMerge_ContentMatchOutsideToleranceIsDistinct(t *testing.T) {
	first := localMsg("tmp-a", "alice", "hello", base)
	current, _ := Merge(nil, []domain.Message{first}, SourceLocal)

	// Same text sent again ten minutes later is a genuinely new message
	repeat := backendMsg("50", "alice", "hello", base.Add(10*time.Minute))
	next, changed := Merge(current, []domain.Message{repeat}, SourceBackend)

	require.True(t, changed)
	assert.Len(t, next, 2)
}

func TestMerge_SortsChronologically(t *testing.T) {
	rows := []domain.Message{
		backendMsg("3", "bob", "third", base.Add(2*time.Minute)),
		backendMsg("1", "alice", "first", base),
		backendMsg("2", "bob", "second", base.Add(time.Minute)),
	}
	current, _ := Merge(nil, rows, SourceBackend)

	require.Len(t, current, 3)
	assert.Equal(t, "1", current[0].ID)
	assert.Equal(t, "2", current[1].ID)
	assert.Equal(t, "3", current[2].ID)
}

func TestMerge_ReadReceiptUpgrade(t *testing.T) {
	row := backendMsg("5", "bob", "seen yet?", base)
	current, _ := Merge(nil, []domain.Message{row}, SourceBackend)

	readAt := base.Add(time.Minute)
	row.ReadAt = &readAt
	next, changed := Merge(current, []domain.Message{row}, SourceBackend)

	require.True(t, changed)
	require.NotNil(t, next[0].ReadAt)
	assert.Equal(t, readAt, *next[0].ReadAt)
}

func TestTimeline_DropRemovesOnlyUnconfirmedEntry(t *testing.T) {
	tl := New()
	tl.Apply([]domain.Message{localMsg("tmp-x", "alice", "oops", base)}, SourceLocal)

	confirmed := backendMsg("11", "alice", "kept", base.Add(time.Second))
	confirmed.LocalTempID = "tmp-y"
	tl.Apply([]domain.Message{confirmed}, SourceBackend)

	assert.True(t, tl.Drop("tmp-x"))
	assert.False(t, tl.Drop("tmp-y"), "reconciled entries are never rolled back")
	assert.Equal(t, 1, tl.Len())
}

func TestGroupByDay(t *testing.T) {
	d1 := time.Date(2025, 6, 1, 23, 50, 0, 0, time.Local)
	d2 := time.Date(2025, 6, 2, 0, 10, 0, 0, time.Local)
	msgs := []domain.Message{
		backendMsg("1", "alice", "late", d1),
		backendMsg("2", "bob", "early", d2),
		backendMsg("3", "alice", "later", d2.Add(time.Hour)),
	}

	groups := GroupByDay(msgs)

	require.Len(t, groups, 2)
	assert.Len(t, groups[0].Messages, 1)
	assert.Len(t, groups[1].Messages, 2)
}
