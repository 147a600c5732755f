// Package api is the REST client for the chat backend.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"homeservices/chatcore/internal/config"
	"homeservices/chatcore/internal/models"

	"github.com/rs/zerolog/log"
)

// StatusError is returned for every non-2xx response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	body := e.Body
	if len(body) > 200 {
		body = body[:200] + "..."
	}
	return fmt.Sprintf("api: status %d: %s", e.Code, body)
}

// Client talks to the backend with a bearer token. It implements chat.Backend.
type Client struct {
	BaseURL string
	Token   string
	HTTP    *http.Client

	requestTimeout time.Duration
	uploadTimeout  time.Duration
}

// NewClient returns a client for baseURL, e.g. http://localhost:8080/api.
func NewClient(baseURL, token string) *Client {
	return &Client{
		BaseURL:        strings.TrimRight(baseURL, "/"),
		Token:          token,
		HTTP:           &http.Client{},
		requestTimeout: config.RequestTimeout,
		uploadTimeout:  config.ImageUploadTimeout,
	}
}

// SetTimeouts overrides the per-request deadlines.
func (c *Client) SetTimeouts(request, upload time.Duration) {
	if request > 0 {
		c.requestTimeout = request
	}
	if upload > 0 {
		c.uploadTimeout = upload
	}
}

// Me returns the caller's identity.
func (c *Client) Me(ctx context.Context) (models.Identity, error) {
	var body struct {
		ID   string `json:"id"`
		OID  string `json:"_id"`
		Role string `json:"role"`
		User *struct {
			ID   string `json:"id"`
			OID  string `json:"_id"`
			Role string `json:"role"`
		} `json:"user"`
	}
	if err := c.getJSON(ctx, "/users/me", nil, &body); err != nil {
		return models.Identity{}, err
	}
	id, role := body.ID, body.Role
	if id == "" {
		id = body.OID
	}
	if id == "" && body.User != nil {
		id, role = body.User.ID, body.User.Role
		if id == "" {
			id = body.User.OID
		}
	}
	ident := models.Identity{UserID: id, Role: models.Role(strings.ToLower(role))}
	if ident.UserID == "" || !ident.Role.Valid() {
		return models.Identity{}, fmt.Errorf("%w: /users/me without id or role", models.ErrMalformedPayload)
	}
	return ident, nil
}

// Contacts returns the chat partners of a user with the given role: approved
// workers for customers, existing chats for workers.
func (c *Client) Contacts(ctx context.Context, role models.Role) ([]models.Contact, error) {
	path := "/users/approved-workers"
	if role == models.RoleWorker {
		path = "/chat/my-chats"
	}
	q := url.Values{"includeActivity": {"true"}}

	var raw json.RawMessage
	if err := c.getJSON(ctx, path, q, &raw); err != nil {
		return nil, err
	}
	var wire []models.WireContact
	if err := decodeList(raw, &wire, "workers", "chats", "data"); err != nil {
		return nil, err
	}
	out := make([]models.Contact, 0, len(wire))
	for _, w := range wire {
		contact, err := w.Normalize()
		if err != nil {
			log.Debug().Err(err).Str("path", path).Msg("skipping contact")
			continue
		}
		out = append(out, contact)
	}
	return out, nil
}

// ResolveRoom returns the room of the pair, creating it on first use.
func (c *Client) ResolveRoom(ctx context.Context, customerID, workerID string) (models.Room, error) {
	q := url.Values{"customerId": {customerID}, "workerId": {workerID}}
	var body struct {
		RoomID string `json:"roomId"`
		ID     string `json:"_id"`
	}
	if err := c.getJSON(ctx, "/chat/rooms", q, &body); err != nil {
		return models.Room{}, err
	}
	roomID := body.RoomID
	if roomID == "" {
		roomID = body.ID
	}
	if roomID == "" {
		return models.Room{}, fmt.Errorf("%w: room without id", models.ErrMalformedPayload)
	}
	return models.Room{RoomID: roomID, CustomerID: customerID, WorkerID: workerID}, nil
}

// Messages returns the first page of the room's log, newest first.
func (c *Client) Messages(ctx context.Context, roomID string) ([]models.Message, error) {
	q := url.Values{"limit": {strconv.Itoa(config.MessagePageSize)}}
	var raw json.RawMessage
	if err := c.getJSON(ctx, "/chat/rooms/"+url.PathEscape(roomID)+"/messages", q, &raw); err != nil {
		return nil, err
	}
	var wire []models.WireMessage
	if err := decodeList(raw, &wire, "messages", "data"); err != nil {
		return nil, err
	}
	msgs, dropped := models.NormalizeMessages(wire)
	if dropped > 0 {
		log.Warn().Int("dropped", dropped).Str("room_id", roomID).Msg("messages without id skipped")
	}
	return msgs, nil
}

// SendMessage persists a text message.
func (c *Client) SendMessage(ctx context.Context, roomID, content string) (models.Message, error) {
	payload, err := json.Marshal(map[string]string{"content": content})
	if err != nil {
		return models.Message{}, err
	}
	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	var raw json.RawMessage
	err = c.do(ctx, http.MethodPost, "/chat/rooms/"+url.PathEscape(roomID)+"/messages", nil,
		bytes.NewReader(payload), "application/json", &raw)
	if err != nil {
		return models.Message{}, err
	}
	return decodeSingleMessage(raw)
}

// UploadImages posts assets as multipart "images" parts together with the
// room's pair ids. file:// URIs are read from disk.
func (c *Client) UploadImages(ctx context.Context, room models.Room, assets []models.ImageAsset) (models.Message, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, asset := range assets {
		if err := writeImagePart(mw, asset); err != nil {
			return models.Message{}, err
		}
	}
	_ = mw.WriteField("customerId", room.CustomerID)
	_ = mw.WriteField("workerId", room.WorkerID)
	if err := mw.Close(); err != nil {
		return models.Message{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.uploadTimeout)
	defer cancel()

	var raw json.RawMessage
	err := c.do(ctx, http.MethodPost, "/chat/rooms/"+url.PathEscape(room.RoomID)+"/messages", nil,
		&buf, mw.FormDataContentType(), &raw)
	if err != nil {
		return models.Message{}, err
	}
	return decodeSingleMessage(raw)
}

// MarkRead marks every message of the room as read by the caller and
// returns the messages whose receipts changed.
func (c *Client) MarkRead(ctx context.Context, roomID string) ([]models.Message, error) {
	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	var body struct {
		UpdatedMessages []models.WireMessage `json:"updatedMessages"`
	}
	if err := c.do(ctx, http.MethodPost, "/chat/rooms/"+url.PathEscape(roomID)+"/mark-read", nil,
		nil, "", &body); err != nil {
		return nil, err
	}
	msgs, _ := models.NormalizeMessages(body.UpdatedMessages)
	return msgs, nil
}

func (c *Client) getJSON(ctx context.Context, path string, q url.Values, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()
	return c.do(ctx, http.MethodGet, path, q, nil, "", out)
}

func (c *Client) do(ctx context.Context, method, path string, q url.Values, body io.Reader, contentType string, out any) error {
	u := c.BaseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return fmt.Errorf("build %s %s: %w", method, path, err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read %s %s: %w", method, path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: %s %s: %v", models.ErrMalformedPayload, method, path, err)
	}
	return nil
}

// decodeList accepts a bare array or an object wrapping it under one of keys.
func decodeList[T any](raw json.RawMessage, out *[]T, keys ...string) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		*out = nil
		return nil
	}
	if raw[0] == '[' {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("%w: %v", models.ErrMalformedPayload, err)
		}
		return nil
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return fmt.Errorf("%w: %v", models.ErrMalformedPayload, err)
	}
	for _, k := range keys {
		if inner, ok := obj[k]; ok {
			return decodeList(inner, out)
		}
	}
	return fmt.Errorf("%w: no list under %v", models.ErrMalformedPayload, keys)
}

// decodeSingleMessage accepts a bare message or {"message": {...}}.
func decodeSingleMessage(raw json.RawMessage) (models.Message, error) {
	var wrapped struct {
		Message json.RawMessage `json:"message"`
	}
	if err := json.Unmarshal(raw, &wrapped); err == nil && len(wrapped.Message) > 0 && wrapped.Message[0] == '{' {
		return models.DecodeMessage(wrapped.Message)
	}
	return models.DecodeMessage(raw)
}

func writeImagePart(mw *multipart.Writer, asset models.ImageAsset) error {
	path := strings.TrimPrefix(asset.URI, "file://")
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open image %s: %w", path, err)
	}
	defer f.Close()

	name := asset.FileName
	if name == "" {
		name = filepath.Base(path)
	}
	mimeType := asset.MimeType
	if mimeType == "" {
		mimeType = mime.TypeByExtension(filepath.Ext(name))
	}
	if mimeType == "" {
		mimeType = "image/jpeg"
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="images"; filename=%q`, name))
	h.Set("Content-Type", mimeType)
	part, err := mw.CreatePart(h)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, f); err != nil {
		return fmt.Errorf("copy image %s: %w", path, err)
	}
	return nil
}
