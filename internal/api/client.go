// Package api implements the HTTP client for the remote coaching service.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/stillpoint/stillpoint/internal/coach"
)

// StartSessionResponse is the service's reply to a session start call.
type StartSessionResponse struct {
	SessionID     string               `json:"sessionId"`
	ExpiresAt     time.Time            `json:"expiresAt"`
	InitialPrompt *coach.GuidanceEvent `json:"initialPrompt,omitempty"`
}

// Journal is one entry in the persisted session history.
type Journal struct {
	SessionID string `json:"sessionId"`
	coach.Summary
}

// JournalDetail is a single journal together with the session's
// guidance timeline.
type JournalDetail struct {
	Journal
	Events []coach.GuidanceEvent `json:"events"`
}

type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient builds a client for the service at baseURL. The timeout applies
// per request; zero means no timeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// StartSession creates a new session on the service.
func (c *Client) StartSession(ctx context.Context) (StartSessionResponse, error) {
	var out StartSessionResponse
	if err := c.doJSON(ctx, http.MethodPost, "/sessions", nil, "", &out); err != nil {
		return StartSessionResponse{}, err
	}
	if out.SessionID == "" {
		return StartSessionResponse{}, fmt.Errorf("start session: response has no session id")
	}
	return out, nil
}

// CompleteSession finalizes the session and returns the freshly generated
// summary.
func (c *Client) CompleteSession(ctx context.Context, sessionID string) (coach.Summary, error) {
	var out coach.Summary
	err := c.doJSON(ctx, http.MethodPost, "/sessions/"+url.PathEscape(sessionID)+"/complete", nil, "", &out)
	return out, err
}

// GetSummary fetches the durably stored copy of the session's summary.
func (c *Client) GetSummary(ctx context.Context, sessionID string) (coach.Summary, error) {
	var out coach.Summary
	err := c.doJSON(ctx, http.MethodGet, "/sessions/"+url.PathEscape(sessionID)+"/summary", nil, "", &out)
	return out, err
}

// ListJournals returns the persisted session history, newest first.
func (c *Client) ListJournals(ctx context.Context) ([]Journal, error) {
	var out struct {
		Entries []Journal `json:"entries"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/journals", nil, "", &out); err != nil {
		return nil, err
	}
	return out.Entries, nil
}

// GetJournal returns one persisted summary with its guidance timeline.
func (c *Client) GetJournal(ctx context.Context, sessionID string) (JournalDetail, error) {
	var out JournalDetail
	err := c.doJSON(ctx, http.MethodGet, "/journals/"+url.PathEscape(sessionID), nil, "", &out)
	return out, err
}

// UploadChunk sends one sequenced audio chunk as a multipart form. The
// service keys storage by sequence number, so out-of-order completion of
// concurrent uploads is harmless.
func (c *Client) UploadChunk(ctx context.Context, sessionID string, seq int, pcm []byte) error {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	if err := writer.WriteField("sequence", strconv.Itoa(seq)); err != nil {
		return fmt.Errorf("write sequence field: %w", err)
	}
	part, err := writer.CreateFormFile("chunk", fmt.Sprintf("chunk-%06d.pcm", seq))
	if err != nil {
		return fmt.Errorf("create chunk part: %w", err)
	}
	if _, err := part.Write(pcm); err != nil {
		return fmt.Errorf("write chunk payload: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("close multipart writer: %w", err)
	}

	path := "/sessions/" + url.PathEscape(sessionID) + "/audio"
	return c.doJSON(ctx, http.MethodPost, path, &body, writer.FormDataContentType(), nil)
}

// EventsURL is the websocket endpoint for the session's guidance event
// stream, derived from the client's base URL.
func (c *Client) EventsURL(sessionID string) string {
	u := c.baseURL
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u + "/sessions/" + url.PathEscape(sessionID) + "/events"
}

func (c *Client) doJSON(ctx context.Context, method, path string, body io.Reader, contentType string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build %s %s request: %w", method, path, err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%s %s: %s", method, path, errorMessage(resp))
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s response: %w", method, path, err)
	}
	return nil
}

// errorMessage extracts a human-readable message from an error response,
// falling back to the HTTP status line.
func errorMessage(resp *http.Response) string {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var payload struct {
		Error  string `json:"error"`
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(raw, &payload); err == nil {
		if payload.Error != "" {
			return payload.Error
		}
		if payload.Detail != "" {
			return payload.Detail
		}
	}

	if msg := strings.TrimSpace(string(raw)); msg != "" {
		return fmt.Sprintf("%s: %s", resp.Status, msg)
	}
	return resp.Status
}
