// Package chat implements optimistic sends with independent dual-write and the
// reconciliation flows that keep conversation timelines consistent across the
// three message sources.
package chat

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"heartlink-client/pkg/constants"
	apperrors "heartlink-client/pkg/errors"
	"heartlink-client/pkg/logger"
	"heartlink-client/pkg/metrics"

	"heartlink-client/internal/backend"
	"heartlink-client/internal/chatconn"
	"heartlink-client/internal/domain"
	"heartlink-client/internal/timeline"
)

// BackendAPI is the authoritative store surface the service needs
type BackendAPI interface {
	Messages(ctx context.Context, q backend.MessagesQuery) ([]domain.Message, error)
	SendMessage(ctx context.Context, input backend.SendMessageInput) (*domain.Message, error)
	MarkRead(ctx context.Context, messageID string) error
	UploadMedia(ctx context.Context, filename string, r io.Reader) (*backend.UploadResult, error)
	Conversations(ctx context.Context) ([]domain.Conversation, error)
	ChatRequests(ctx context.Context) ([]domain.ChatRequest, error)
}

// RealtimeSender is the vendor delivery surface the service needs
type RealtimeSender interface {
	Send(ctx context.Context, msg chatconn.OutboundMessage) error
}

// NotifyFunc surfaces fatal-non-blocking errors (upload failure, persistence
// failure) as lightweight notifications without rolling back optimistic state
type NotifyFunc func(err *apperrors.AppError)

// Config holds chat service tuning knobs
type Config struct {
	SelfID string
	// PollInterval is the cadence of the authoritative reconciliation poll
	PollInterval time.Duration
	// BackfillRetryDelay is the wait before the single backfill retry when a
	// push races the backend write; zero means constants default
	BackfillRetryDelay time.Duration
}

// Service maintains one reconciled timeline per conversation
type Service struct {
	api      BackendAPI
	realtime RealtimeSender
	cfg      Config
	notify   NotifyFunc

	mu        sync.Mutex
	timelines map[string]*timeline.Timeline
	pollKick  chan struct{}

	metrics *metrics.Metrics
	log     *zap.Logger

	// sleep is injectable for tests
	sleep func(time.Duration)
}

// NewService creates the chat service
func NewService(api BackendAPI, realtime RealtimeSender, cfg Config, notify NotifyFunc, m *metrics.Metrics) *Service {
	if cfg.PollInterval == 0 {
		cfg.PollInterval = constants.ReconcilePollInterval
	}
	if cfg.BackfillRetryDelay == 0 {
		cfg.BackfillRetryDelay = constants.PushBackfillRetryDelay
	}
	if notify == nil {
		notify = func(*apperrors.AppError) {}
	}
	return &Service{
		api:       api,
		realtime:  realtime,
		cfg:       cfg,
		notify:    notify,
		timelines: make(map[string]*timeline.Timeline),
		pollKick:  make(chan struct{}, 1),
		metrics:   m,
		log:       logger.Named("chat"),
		sleep:     time.Sleep,
	}
}

// Timeline returns the reconciled timeline for a conversation, creating it on
// first use
func (s *Service) Timeline(conversationID string) *timeline.Timeline {
	s.mu.Lock()
	defer s.mu.Unlock()
	tl, ok := s.timelines[conversationID]
	if !ok {
		tl = timeline.New()
		s.timelines[conversationID] = tl
	}
	return tl
}

// SendInput describes one outgoing message
type SendInput struct {
	ConversationID string
	ReceiverID     string
	Body           string
	Kind           domain.MessageKind
	MediaURL       string
}

// Send appends an optimistic entry immediately, then persists to the backend
// and pushes via the vendor concurrently and independently: neither write
// blocks or rolls back the other. Backend failure is surfaced as a
// non-blocking notification; push failure is silent because the backend owns
// durability and the recipient recovers the message on its next poll.
func (s *Service) Send(ctx context.Context, input SendInput) (domain.Message, error) {
	if len(input.Body) > constants.MaxMessageLength {
		return domain.Message{}, apperrors.InvalidStateError("message exceeds maximum length")
	}

	tempID := "tmp-" + uuid.NewString()
	optimistic := domain.Message{
		ID:             tempID,
		LocalTempID:    tempID,
		ConversationID: input.ConversationID,
		SenderID:       s.cfg.SelfID,
		Body:           input.Body,
		Kind:           input.Kind,
		MediaURL:       input.MediaURL,
		CreatedAt:      time.Now(),
		Provenance:     domain.ProvenanceLocal,
	}

	tl := s.Timeline(input.ConversationID)
	tl.Apply([]domain.Message{optimistic}, timeline.SourceLocal)
	if s.metrics != nil {
		s.metrics.RecordMessagesMerged(timeline.SourceLocal.String(), 1)
	}

	var wg sync.WaitGroup
	var persistErr error

	wg.Add(2)
	go func() {
		defer wg.Done()
		persistErr = s.persist(ctx, tl, tempID, input)
	}()
	go func() {
		defer wg.Done()
		s.push(ctx, input)
	}()
	wg.Wait()

	if persistErr != nil {
		appErr := apperrors.PersistFailedError(persistErr)
		s.notify(appErr)
		// The optimistic entry stays: vendor delivery was still attempted and
		// the conversation proceeds degraded
		return optimistic, appErr
	}

	msg, _ := tl.FindByTempID(tempID)
	return msg, nil
}

// persist writes to the authoritative store and reconciles the optimistic
// entry with the returned permanent row
func (s *Service) persist(ctx context.Context, tl *timeline.Timeline, tempID string, input SendInput) error {
	stored, err := s.api.SendMessage(ctx, backend.SendMessageInput{
		ReceiverID:  input.ReceiverID,
		Content:     input.Body,
		MessageType: string(input.Kind),
		ChatID:      input.ConversationID,
		MediaURL:    input.MediaURL,
	})
	if err != nil {
		if s.metrics != nil {
			s.metrics.RecordMessageSent("backend", "failure")
		}
		return err
	}

	confirmed := *stored
	confirmed.LocalTempID = tempID
	tl.Apply([]domain.Message{confirmed}, timeline.SourceLocal)

	if s.metrics != nil {
		s.metrics.RecordMessageSent("backend", "success")
		s.metrics.RecordMessageDeduplicated()
	}
	return nil
}

// push attempts vendor real-time delivery; failures are logged and dropped
func (s *Service) push(ctx context.Context, input SendInput) {
	err := s.realtime.Send(ctx, chatconn.OutboundMessage{
		ReceiverID: input.ReceiverID,
		Body:       input.Body,
		Kind:       input.Kind,
		MediaURL:   input.MediaURL,
	})
	if s.metrics != nil {
		outcome := "success"
		if err != nil {
			outcome = "failure"
		}
		s.metrics.RecordMessageSent("realtime", outcome)
	}
	if err != nil {
		s.log.Debug("realtime delivery failed, backend poll will recover", zap.Error(err))
	}
}

// HandleInboundPush inserts a vendor-delivered message immediately for
// responsiveness, then backfills its permanent id from the authoritative
// store. The lookup is retried once after a short delay to cover the race
// where the push arrives before the backend write commits.
func (s *Service) HandleInboundPush(ctx context.Context, msg domain.Message) {
	if msg.ConversationID == "" {
		// Pushes from unknown conversations are keyed by sender until the
		// next conversation refresh
		msg.ConversationID = msg.SenderID
	}
	msg.Provenance = domain.ProvenancePush

	tl := s.Timeline(msg.ConversationID)
	tl.Apply([]domain.Message{msg}, timeline.SourcePush)
	if s.metrics != nil {
		s.metrics.RecordMessagesMerged(timeline.SourcePush.String(), 1)
	}

	if s.backfill(ctx, tl, msg) {
		return
	}
	s.sleep(s.cfg.BackfillRetryDelay)
	s.backfill(ctx, tl, msg)
}

// backfill merges the authoritative list and reports whether the pushed
// message now carries a permanent id
func (s *Service) backfill(ctx context.Context, tl *timeline.Timeline, pushed domain.Message) bool {
	rows, err := s.api.Messages(ctx, backend.MessagesQuery{ChatID: pushed.ConversationID})
	if err != nil {
		s.log.Debug("backfill fetch failed", zap.Error(err))
		return false
	}
	tl.Apply(rows, timeline.SourceBackend)

	for _, m := range tl.Snapshot() {
		if m.SenderID != pushed.SenderID || m.Body != pushed.Body || m.MediaURL != pushed.MediaURL {
			continue
		}
		delta := m.CreatedAt.Sub(pushed.CreatedAt)
		if delta < 0 {
			delta = -delta
		}
		if delta <= constants.PushBackfillTolerance {
			return m.HasPermanentID()
		}
	}
	return false
}

// Poll re-fetches the authoritative message list for one conversation and
// merges it. The rendered timeline is replaced only when the merge changes it.
func (s *Service) Poll(ctx context.Context, conversationID string) (bool, error) {
	rows, err := s.api.Messages(ctx, backend.MessagesQuery{ChatID: conversationID})
	if err != nil {
		return false, err
	}

	tl := s.Timeline(conversationID)
	changed := tl.Apply(rows, timeline.SourceBackend)

	if s.metrics != nil {
		result := "unchanged"
		if changed {
			result = "changed"
			s.metrics.RecordMessagesMerged(timeline.SourceBackend.String(), len(rows))
		}
		s.metrics.RecordReconcilePoll(result)
	}
	return changed, nil
}

// TriggerPoll requests an immediate reconciliation pass (window focus regained,
// new-message notification)
func (s *Service) TriggerPoll() {
	select {
	case s.pollKick <- struct{}{}:
	default:
	}
}

// RunPollLoop polls every tracked conversation on the fixed interval and on
// demand, until ctx is cancelled
func (s *Service) RunPollLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-s.pollKick:
		}

		s.mu.Lock()
		ids := make([]string, 0, len(s.timelines))
		for id := range s.timelines {
			ids = append(ids, id)
		}
		s.mu.Unlock()

		for _, id := range ids {
			if _, err := s.Poll(ctx, id); err != nil {
				s.log.Debug("reconciliation poll failed",
					zap.String("conversation", id),
					zap.Error(err))
			}
		}
	}
}

// Upload stores an attachment and returns its URL for a subsequent Send.
// Failure is fatal-non-blocking: surfaced, nothing rolled back.
func (s *Service) Upload(ctx context.Context, filename string, r io.Reader) (*backend.UploadResult, error) {
	result, err := s.api.UploadMedia(ctx, filename, r)
	if err != nil {
		appErr := apperrors.GetAppError(err)
		s.notify(appErr)
		return nil, appErr
	}
	return result, nil
}

// MarkRead marks every unread inbound message of a conversation as read
func (s *Service) MarkRead(ctx context.Context, conversationID string) {
	tl := s.Timeline(conversationID)
	for _, m := range tl.Snapshot() {
		if m.SenderID == s.cfg.SelfID || m.ReadAt != nil || !m.HasPermanentID() {
			continue
		}
		if err := s.api.MarkRead(ctx, m.ID); err != nil {
			s.log.Debug("mark read failed", zap.String("message_id", m.ID), zap.Error(err))
		}
	}
}

// Conversations fetches the conversation list
func (s *Service) Conversations(ctx context.Context) ([]domain.Conversation, error) {
	return s.api.Conversations(ctx)
}

// ChatRequests fetches pending chat requests
func (s *Service) ChatRequests(ctx context.Context) ([]domain.ChatRequest, error) {
	return s.api.ChatRequests(ctx)
}

// TimelineSizes reports entry counts per conversation for the status endpoint
func (s *Service) TimelineSizes() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	sizes := make(map[string]int, len(s.timelines))
	for id, tl := range s.timelines {
		sizes[id] = tl.Len()
	}
	return sizes
}
