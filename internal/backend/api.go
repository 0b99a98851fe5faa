package backend

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"time"

	"heartlink-client/pkg/constants"
	apperrors "heartlink-client/pkg/errors"

	"heartlink-client/internal/domain"
)

// ChatCredential is a vendor chat session credential scoped to one user
type ChatCredential struct {
	Token  string `json:"token"`
	AppKey string `json:"appKey"`
}

// RTCCredential is a vendor media session credential. UID may differ from the
// requested uid: the server reassigns it to resolve identity collisions and
// the caller must adopt the returned value.
type RTCCredential struct {
	Token string `json:"token"`
	AppID string `json:"appId"`
	UID   uint32 `json:"uid"`
}

// UploadResult describes a stored media attachment
type UploadResult struct {
	URL         string `json:"url"`
	MessageType string `json:"messageType"`
}

// wireMessage is the backend representation of a message row
type wireMessage struct {
	ID          string     `json:"id"`
	ChatID      string     `json:"chatId"`
	SenderID    string     `json:"senderId"`
	Content     string     `json:"content"`
	MessageType string     `json:"messageType"`
	MediaURL    string     `json:"mediaUrl,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	ReadAt      *time.Time `json:"readAt,omitempty"`
}

func (w *wireMessage) toDomain() domain.Message {
	return domain.Message{
		ID:             w.ID,
		ConversationID: w.ChatID,
		SenderID:       w.SenderID,
		Body:           w.Content,
		Kind:           domain.MessageKind(w.MessageType),
		MediaURL:       w.MediaURL,
		CreatedAt:      w.CreatedAt,
		ReadAt:         w.ReadAt,
		Provenance:     domain.ProvenanceBackend,
	}
}

// ChatToken requests a vendor chat credential for the given user
func (c *Client) ChatToken(ctx context.Context, userID string) (*ChatCredential, error) {
	var cred ChatCredential
	body := map[string]string{"userId": userID}
	if err := c.doJSON(ctx, http.MethodPost, "/api/agora/chat-token", nil, body, &cred); err != nil {
		return nil, err
	}
	return &cred, nil
}

// RTCToken requests a vendor media credential scoped to a channel and numeric
// identity
func (c *Client) RTCToken(ctx context.Context, channelName string, uid uint32) (*RTCCredential, error) {
	var cred RTCCredential
	body := map[string]any{"channelName": channelName, "uid": uid}
	if err := c.doJSON(ctx, http.MethodPost, "/api/agora/rtc-token", nil, body, &cred); err != nil {
		return nil, err
	}
	return &cred, nil
}

// MessagesQuery selects a conversation either by chat id or by peer user id
type MessagesQuery struct {
	ChatID string
	UserID string
}

// Messages fetches the authoritative message list for a conversation
func (c *Client) Messages(ctx context.Context, q MessagesQuery) ([]domain.Message, error) {
	query := url.Values{}
	if q.ChatID != "" {
		query.Set("chatId", q.ChatID)
	} else if q.UserID != "" {
		query.Set("userId", q.UserID)
	}

	var rows []wireMessage
	if err := c.doJSON(ctx, http.MethodGet, "/api/messages", query, nil, &rows); err != nil {
		return nil, err
	}

	messages := make([]domain.Message, len(rows))
	for i := range rows {
		messages[i] = rows[i].toDomain()
	}
	return messages, nil
}

// SendMessageInput contains message persistence data
type SendMessageInput struct {
	ReceiverID  string `json:"receiverId"`
	Content     string `json:"content"`
	MessageType string `json:"messageType"`
	ChatID      string `json:"chatId,omitempty"`
	MediaURL    string `json:"mediaUrl,omitempty"`
}

// SendMessage persists a message to the authoritative store and returns the
// stored row with its permanent id
func (c *Client) SendMessage(ctx context.Context, input SendMessageInput) (*domain.Message, error) {
	var row wireMessage
	if err := c.doJSON(ctx, http.MethodPost, "/api/messages", nil, input, &row); err != nil {
		return nil, err
	}
	msg := row.toDomain()
	return &msg, nil
}

// MarkRead marks a message as read
func (c *Client) MarkRead(ctx context.Context, messageID string) error {
	return c.doJSON(ctx, http.MethodPut, "/api/messages/"+messageID+"/read", nil, nil, nil)
}

// UploadMedia uploads an attachment via multipart form and returns its URL.
// Uploads bypass the retry policy: a failed upload is surfaced immediately and
// must not roll back optimistic chat state.
func (c *Client) UploadMedia(ctx context.Context, filename string, r io.Reader) (*UploadResult, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, apperrors.UploadFailedError(err)
	}
	n, err := io.Copy(part, io.LimitReader(r, constants.MaxAttachmentSize+1))
	if err != nil {
		return nil, apperrors.UploadFailedError(err)
	}
	if n > constants.MaxAttachmentSize {
		return nil, apperrors.UploadFailedError(fmt.Errorf("attachment exceeds %d bytes", constants.MaxAttachmentSize))
	}
	if err := mw.Close(); err != nil {
		return nil, apperrors.UploadFailedError(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/messages/upload", &buf)
	if err != nil {
		return nil, apperrors.UploadFailedError(err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, apperrors.UploadFailedError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, apperrors.UploadFailedError(fmt.Errorf("upload returned %d: %s", resp.StatusCode, string(b)))
	}

	var result UploadResult
	if err := jsonDecode(resp.Body, &result); err != nil {
		return nil, apperrors.UploadFailedError(err)
	}
	return &result, nil
}

// Profile fetches one user profile
func (c *Client) Profile(ctx context.Context, id string) (*domain.Profile, error) {
	var p domain.Profile
	if err := c.doJSON(ctx, http.MethodGet, "/api/profiles/"+id, nil, nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// SearchProfiles fetches profiles matching the given filters
func (c *Client) SearchProfiles(ctx context.Context, filters map[string]string) ([]domain.Profile, error) {
	query := url.Values{}
	for k, v := range filters {
		query.Set(k, v)
	}
	var profiles []domain.Profile
	if err := c.doJSON(ctx, http.MethodGet, "/api/profiles", query, nil, &profiles); err != nil {
		return nil, err
	}
	return profiles, nil
}

// Conversations fetches the conversation list for the authenticated user
func (c *Client) Conversations(ctx context.Context) ([]domain.Conversation, error) {
	var convs []domain.Conversation
	if err := c.doJSON(ctx, http.MethodGet, "/api/messages/conversations", nil, nil, &convs); err != nil {
		return nil, err
	}
	return convs, nil
}

// ChatRequests fetches pending chat requests for the authenticated user
func (c *Client) ChatRequests(ctx context.Context) ([]domain.ChatRequest, error) {
	var reqs []domain.ChatRequest
	if err := c.doJSON(ctx, http.MethodGet, "/api/messages/chat-requests", nil, nil, &reqs); err != nil {
		return nil, err
	}
	return reqs, nil
}
