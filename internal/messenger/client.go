// ABOUTME: Outbound adapter posting text messages to the Graph API
// ABOUTME: One call per message, no retries; the caller decides what a failure means

package messenger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

// DefaultGraphBaseURL is the Graph API endpoint used when the config does
// not override it.
const DefaultGraphBaseURL = "https://graph.facebook.com/v21.0"

// Client sends messages to Messenger recipients through the Graph API.
type Client struct {
	baseURL     string
	accessToken string
	httpClient  *http.Client
	logger      *slog.Logger
}

// NewClient creates a Graph API client. baseURL may be empty for the
// default; pass nil logger for default.
func NewClient(accessToken, baseURL string, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultGraphBaseURL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:     baseURL,
		accessToken: accessToken,
		httpClient:  &http.Client{Timeout: 10 * time.Second},
		logger:      logger.With("component", "graph-client"),
	}
}

// sendRequest is the /me/messages body.
type sendRequest struct {
	Recipient sendRecipient `json:"recipient"`
	Message   sendMessage   `json:"message"`
}

type sendRecipient struct {
	ID string `json:"id"`
}

type sendMessage struct {
	Text string `json:"text"`
}

// sendResponse is the success body; graphError the failure body.
type sendResponse struct {
	RecipientID string `json:"recipient_id"`
	MessageID   string `json:"message_id"`
}

type graphError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    int    `json:"code"`
	} `json:"error"`
}

// SendText posts one text message to the recipient and returns the
// platform message ID.
func (c *Client) SendText(ctx context.Context, recipient, text string) (string, error) {
	body, err := json.Marshal(sendRequest{
		Recipient: sendRecipient{ID: recipient},
		Message:   sendMessage{Text: text},
	})
	if err != nil {
		return "", fmt.Errorf("encoding send request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/me/messages?access_token=%s", c.baseURL, url.QueryEscape(c.accessToken))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating send request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("posting to graph api: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("reading graph api response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var ge graphError
		if json.Unmarshal(respBody, &ge) == nil && ge.Error.Message != "" {
			return "", fmt.Errorf("graph api error (status %d, code %d): %s",
				resp.StatusCode, ge.Error.Code, ge.Error.Message)
		}
		return "", fmt.Errorf("graph api error: status %d", resp.StatusCode)
	}

	var sr sendResponse
	if err := json.Unmarshal(respBody, &sr); err != nil {
		return "", fmt.Errorf("decoding graph api response: %w", err)
	}

	c.logger.Debug("message sent", "recipient", recipient, "message_id", sr.MessageID)
	return sr.MessageID, nil
}
