package chat

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/catscratch/catbot/environments"
	"github.com/catscratch/catbot/internal/domain"
	"github.com/catscratch/catbot/pkg/logger"
)

// Client talks to the chat platform's Web API. The platform's own transport
// and UI rendering stay opaque; this client only needs to post a payload to
// a channel, update a posted message in place, and check channel access.
type Client struct {
	httpClient *resty.Client
	baseURL    string
}

type apiResponse struct {
	OK      bool   `json:"ok"`
	Error   string `json:"error,omitempty"`
	Channel string `json:"channel,omitempty"`
	TS      string `json:"ts,omitempty"`
}

func NewClient(cfg environments.ChatConfig) *Client {
	client := resty.New().
		SetTimeout(cfg.Timeout).
		SetRetryCount(3).
		SetRetryWaitTime(500*time.Millisecond).
		SetRetryMaxWaitTime(2*time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetAuthToken(cfg.BotToken)

	return &Client{
		httpClient: client,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
	}
}

// PostMessage delivers a rendered payload to a channel and returns the
// platform's message reference for later in-place updates.
func (c *Client) PostMessage(ctx context.Context, channel string, payload domain.RenderedPayload) (string, error) {
	body := map[string]any{
		"channel": channel,
		"text":    flattenPayload(payload),
		"blocks":  payload,
	}

	var apiResp apiResponse

	startTime := time.Now()

	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&apiResp).
		Post(c.baseURL + "/chat.postMessage")

	duration := time.Since(startTime)

	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}

	logger.Debugf("postMessage to %s completed in %v (status: %d)", channel, duration, resp.StatusCode())

	if resp.StatusCode() != http.StatusOK {
		return "", fmt.Errorf("unexpected status code: %d, body: %s", resp.StatusCode(), resp.String())
	}
	if !apiResp.OK {
		return "", fmt.Errorf("chat API error: %s", apiResp.Error)
	}

	return apiResp.TS, nil
}

// UpdateMessage replaces a previously posted message's content. Vote-count
// re-renders go through here.
func (c *Client) UpdateMessage(ctx context.Context, channel, messageRef string, payload domain.RenderedPayload) error {
	body := map[string]any{
		"channel": channel,
		"ts":      messageRef,
		"text":    flattenPayload(payload),
		"blocks":  payload,
	}

	var apiResp apiResponse

	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&apiResp).
		Post(c.baseURL + "/chat.update")

	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}

	if resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("unexpected status code: %d, body: %s", resp.StatusCode(), resp.String())
	}
	if !apiResp.OK {
		return fmt.Errorf("chat API error: %s", apiResp.Error)
	}

	return nil
}

// PostEphemeral sends a user-visible, non-persistent notice, used for
// validation and vote errors.
func (c *Client) PostEphemeral(ctx context.Context, channel, userID, text string) error {
	body := map[string]any{
		"channel": channel,
		"user":    userID,
		"text":    text,
	}

	var apiResp apiResponse

	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&apiResp).
		Post(c.baseURL + "/chat.postEphemeral")

	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}

	if resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("unexpected status code: %d, body: %s", resp.StatusCode(), resp.String())
	}
	if !apiResp.OK {
		return fmt.Errorf("chat API error: %s", apiResp.Error)
	}

	return nil
}

// CheckChannel is the pre-flight check run before a record is accepted for
// scheduling.
func (c *Client) CheckChannel(ctx context.Context, channel string) (bool, error) {
	var apiResp apiResponse

	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetQueryParam("channel", channel).
		SetResult(&apiResp).
		Get(c.baseURL + "/conversations.info")

	if err != nil {
		return false, fmt.Errorf("failed to send request: %w", err)
	}

	if resp.StatusCode() != http.StatusOK {
		return false, fmt.Errorf("unexpected status code: %d, body: %s", resp.StatusCode(), resp.String())
	}

	return apiResp.OK, nil
}

func (c *Client) GetURL() string {
	return c.baseURL
}

// flattenPayload builds the plain-text fallback the platform shows in
// notifications.
func flattenPayload(payload domain.RenderedPayload) string {
	var sb strings.Builder
	if payload.Title != "" {
		sb.WriteString(payload.Title)
		sb.WriteString("\n")
	}
	sb.WriteString(payload.Body)
	for _, opt := range payload.Options {
		sb.WriteString(fmt.Sprintf("\n%s (%d)", opt.Label, opt.Count))
	}
	return sb.String()
}
