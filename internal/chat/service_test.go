package chat

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "heartlink-client/pkg/errors"

	"heartlink-client/internal/backend"
	"heartlink-client/internal/chatconn"
	"heartlink-client/internal/domain"
)

type fakeBackend struct {
	mu sync.Mutex

	sendCalls   int
	sendErr     error
	storedID    string
	rows        [][]domain.Message // consumed per Messages call; last repeats
	fetchCalls  int
	readIDs     []string
	uploadErr   error
	uploadedURL string
}

func (f *fakeBackend) Messages(ctx context.Context, q backend.MessagesQuery) ([]domain.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetchCalls++
	if len(f.rows) == 0 {
		return nil, nil
	}
	i := f.fetchCalls - 1
	if i >= len(f.rows) {
		i = len(f.rows) - 1
	}
	return f.rows[i], nil
}

func (f *fakeBackend) SendMessage(ctx context.Context, input backend.SendMessageInput) (*domain.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sendCalls++
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	return &domain.Message{
		ID:             f.storedID,
		ConversationID: input.ChatID,
		SenderID:       "alice",
		Body:           input.Content,
		Kind:           domain.MessageKind(input.MessageType),
		MediaURL:       input.MediaURL,
		CreatedAt:      time.Now(),
		Provenance:     domain.ProvenanceBackend,
	}, nil
}

func (f *fakeBackend) MarkRead(ctx context.Context, messageID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.readIDs = append(f.readIDs, messageID)
	return nil
}

func (f *fakeBackend) UploadMedia(ctx context.Context, filename string, r io.Reader) (*backend.UploadResult, error) {
	if f.uploadErr != nil {
		return nil, apperrors.UploadFailedError(f.uploadErr)
	}
	return &backend.UploadResult{URL: f.uploadedURL, MessageType: "image"}, nil
}

func (f *fakeBackend) Conversations(ctx context.Context) ([]domain.Conversation, error) {
	return nil, nil
}

func (f *fakeBackend) ChatRequests(ctx context.Context) ([]domain.ChatRequest, error) {
	return nil, nil
}

type fakeRealtime struct {
	mu   sync.Mutex
	sent []chatconn.OutboundMessage
	err  error
}

func (f *fakeRealtime) Send(ctx context.Context, msg chatconn.OutboundMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, msg)
	return f.err
}

func (f *fakeRealtime) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func newTestService(api *fakeBackend, rt *fakeRealtime, notify NotifyFunc) *Service {
	s := NewService(api, rt, Config{SelfID: "alice"}, notify, nil)
	s.sleep = func(time.Duration) {}
	return s
}

func TestSend_ConfirmReconcilesOptimisticEntry(t *testing.T) {
	api := &fakeBackend{storedID: "msg-42"}
	rt := &fakeRealtime{}
	svc := newTestService(api, rt, nil)

	msg, err := svc.Send(context.Background(), SendInput{
		ConversationID: "conv-1", ReceiverID: "bob", Body: "hey", Kind: domain.MessageKindText,
	})

	require.NoError(t, err)
	assert.Equal(t, "msg-42", msg.ID)
	assert.True(t, msg.HasPermanentID())

	snapshot := svc.Timeline("conv-1").Snapshot()
	require.Len(t, snapshot, 1, "confirm must not duplicate the optimistic entry")
	assert.Equal(t, "msg-42", snapshot[0].ID)
	assert.Equal(t, 1, rt.count(), "realtime delivery runs alongside persistence")
}

func TestSend_BackendFailureKeepsOptimisticEntryAndStillPushes(t *testing.T) {
	api := &fakeBackend{sendErr: errors.New("backend down")}
	rt := &fakeRealtime{}

	var notified *apperrors.AppError
	svc := newTestService(api, rt, func(err *apperrors.AppError) { notified = err })

	msg, err := svc.Send(context.Background(), SendInput{
		ConversationID: "conv-1", ReceiverID: "bob", Body: "hey", Kind: domain.MessageKindText,
	})

	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodePersistFailed))
	assert.Equal(t, apperrors.SeverityFatalNonBlocking, apperrors.SeverityOf(err))

	require.NotNil(t, notified)
	assert.Equal(t, apperrors.ErrCodePersistFailed, notified.Code)

	// Optimistic entry stays, realtime write was independent
	assert.Equal(t, 1, svc.Timeline("conv-1").Len())
	assert.False(t, msg.HasPermanentID())
	assert.Equal(t, 1, rt.count(), "push must not be blocked by backend failure")
}

func TestSend_RealtimeFailureIsSilent(t *testing.T) {
	api := &fakeBackend{storedID: "msg-1"}
	rt := &fakeRealtime{err: errors.New("socket closed")}

	var notified *apperrors.AppError
	svc := newTestService(api, rt, func(err *apperrors.AppError) { notified = err })

	_, err := svc.Send(context.Background(), SendInput{
		ConversationID: "conv-1", ReceiverID: "bob", Body: "hey", Kind: domain.MessageKindText,
	})

	require.NoError(t, err, "vendor delivery failure never surfaces")
	assert.Nil(t, notified)
	assert.Equal(t, 1, api.sendCalls, "persistence was independent of the push failure")
}

func TestHandleInboundPush_BackfillRetriesOnce(t *testing.T) {
	pushed := domain.Message{
		SenderID:  "bob",
		Body:      "incoming",
		Kind:      domain.MessageKindText,
		CreatedAt: time.Now(),
	}
	confirmed := pushed
	confirmed.ID = "msg-9"
	confirmed.ConversationID = "bob"
	confirmed.Provenance = domain.ProvenanceBackend

	// First fetch races the backend write and sees nothing; the retry succeeds
	api := &fakeBackend{rows: [][]domain.Message{nil, {confirmed}}}
	svc := newTestService(api, &fakeRealtime{}, nil)

	svc.HandleInboundPush(context.Background(), pushed)

	assert.Equal(t, 2, api.fetchCalls, "exactly one retry after the initial miss")
	snapshot := svc.Timeline("bob").Snapshot()
	require.Len(t, snapshot, 1)
	assert.Equal(t, "msg-9", snapshot[0].ID)
	assert.True(t, snapshot[0].HasPermanentID())
}

func TestHandleInboundPush_NoRetryWhenFirstLookupResolves(t *testing.T) {
	pushed := domain.Message{
		SenderID:  "bob",
		Body:      "incoming",
		Kind:      domain.MessageKindText,
		CreatedAt: time.Now(),
	}
	confirmed := pushed
	confirmed.ID = "msg-9"
	confirmed.ConversationID = "bob"
	confirmed.Provenance = domain.ProvenanceBackend

	api := &fakeBackend{rows: [][]domain.Message{{confirmed}}}
	svc := newTestService(api, &fakeRealtime{}, nil)

	svc.HandleInboundPush(context.Background(), pushed)

	assert.Equal(t, 1, api.fetchCalls)
}

func TestPoll_UnchangedResultReportsNoChange(t *testing.T) {
	rows := []domain.Message{
		{ID: "1", ConversationID: "conv-1", SenderID: "bob", Body: "a", CreatedAt: time.Now(), Provenance: domain.ProvenanceBackend},
	}
	api := &fakeBackend{rows: [][]domain.Message{rows}}
	svc := newTestService(api, &fakeRealtime{}, nil)

	changed, err := svc.Poll(context.Background(), "conv-1")
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = svc.Poll(context.Background(), "conv-1")
	require.NoError(t, err)
	assert.False(t, changed, "an identical poll result must not flag a re-render")
}

func TestMarkRead_OnlyUnreadInboundWithPermanentIDs(t *testing.T) {
	readAt := time.Now()
	rows := []domain.Message{
		{ID: "1", ConversationID: "conv-1", SenderID: "bob", Body: "unread", CreatedAt: time.Now(), Provenance: domain.ProvenanceBackend},
		{ID: "2", ConversationID: "conv-1", SenderID: "bob", Body: "read", ReadAt: &readAt, CreatedAt: time.Now(), Provenance: domain.ProvenanceBackend},
		{ID: "3", ConversationID: "conv-1", SenderID: "alice", Body: "own", CreatedAt: time.Now(), Provenance: domain.ProvenanceBackend},
	}
	api := &fakeBackend{rows: [][]domain.Message{rows}}
	svc := newTestService(api, &fakeRealtime{}, nil)
	_, err := svc.Poll(context.Background(), "conv-1")
	require.NoError(t, err)

	svc.MarkRead(context.Background(), "conv-1")

	assert.Equal(t, []string{"1"}, api.readIDs)
}

func TestUpload_FailureNotifiesWithoutRollback(t *testing.T) {
	api := &fakeBackend{uploadErr: errors.New("storage full")}

	var notified *apperrors.AppError
	svc := newTestService(api, &fakeRealtime{}, func(err *apperrors.AppError) { notified = err })

	_, err := svc.Upload(context.Background(), "photo.jpg", nil)

	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeUploadFailed))
	require.NotNil(t, notified)
	assert.Equal(t, apperrors.ErrCodeUploadFailed, notified.Code)
}

func TestSend_RejectsOversizedBody(t *testing.T) {
	api := &fakeBackend{storedID: "msg-1"}
	svc := newTestService(api, &fakeRealtime{}, nil)

	_, err := svc.Send(context.Background(), SendInput{
		ConversationID: "conv-1", ReceiverID: "bob",
		Body: strings.Repeat("a", 10001), Kind: domain.MessageKindText,
	})

	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeInvalidState))
	assert.Equal(t, 0, api.sendCalls)
	assert.Equal(t, 0, svc.Timeline("conv-1").Len(), "no optimistic entry for a rejected send")
}

func TestTriggerPoll_CoalescesKicks(t *testing.T) {
	svc := newTestService(&fakeBackend{}, &fakeRealtime{}, nil)

	// Back-to-back triggers must not block the caller
	svc.TriggerPoll()
	svc.TriggerPoll()
	svc.TriggerPoll()

	assert.Len(t, svc.pollKick, 1)
}
