// Package slack is the chat transport: it finds the notifier's channel and
// its previous messages, and posts or edits attachment messages.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/lucasnoah/codepipeline-notifier/internal/message"
)

const (
	defaultBaseURL      = "https://slack.com/api"
	defaultHistoryLimit = 10
	channelPageSize     = 1000
)

// APIError is a Slack Web API response with ok=false.
type APIError struct {
	Method  string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("slack %s failed: %s", e.Method, e.Message)
}

// Options configure a Client. Zero values fall back to Slack defaults.
type Options struct {
	BaseURL    string
	Token      string
	BotName    string
	BotIcon    string
	HTTPClient *http.Client
	// HistoryLimit is how many recent channel messages FindMessage scans.
	HistoryLimit int
	// ChannelIDOverride skips conversations.list when set.
	ChannelIDOverride string
}

// Client calls the Slack Web API with a bot token.
type Client struct {
	baseURL           string
	token             string
	botName           string
	botIcon           string
	historyLimit      int
	channelIDOverride string
	httpClient        *http.Client

	mu        sync.Mutex
	botUserID string
}

// NewClient creates a Client, filling unset Options with defaults.
func NewClient(opts Options) *Client {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 20 * time.Second}
	}
	limit := opts.HistoryLimit
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	return &Client{
		baseURL:           baseURL,
		token:             strings.TrimSpace(opts.Token),
		botName:           opts.BotName,
		botIcon:           opts.BotIcon,
		historyLimit:      limit,
		channelIDOverride: strings.TrimSpace(opts.ChannelIDOverride),
		httpClient:        httpClient,
	}
}

type response struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

func (r response) apiError(method string) error {
	if r.OK && r.Error == "" {
		return nil
	}
	msg := r.Error
	if msg == "" {
		msg = "unknown error"
	}
	return &APIError{Method: method, Message: msg}
}

type channelList struct {
	response
	Channels []struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"channels"`
	ResponseMetadata struct {
		NextCursor string `json:"next_cursor"`
	} `json:"response_metadata"`
}

// FindChannelID resolves a channel name to its id.
func (c *Client) FindChannelID(ctx context.Context, name string) (string, error) {
	if c.channelIDOverride != "" {
		return c.channelIDOverride, nil
	}
	name = strings.TrimPrefix(strings.TrimSpace(name), "#")
	cursor := ""
	for {
		params := url.Values{
			"exclude_archived": {"true"},
			"limit":            {strconv.Itoa(channelPageSize)},
		}
		if cursor != "" {
			params.Set("cursor", cursor)
		}
		var res channelList
		if err := c.get(ctx, "conversations.list", params, &res); err != nil {
			return "", err
		}
		if err := res.apiError("conversations.list"); err != nil {
			return "", err
		}
		for _, ch := range res.Channels {
			if ch.Name == name {
				return ch.ID, nil
			}
		}
		cursor = res.ResponseMetadata.NextCursor
		if cursor == "" {
			return "", errors.Errorf("slack channel %q not found", name)
		}
	}
}

type authTest struct {
	response
	UserID string `json:"user_id"`
}

// BotUserID returns the user id of the token's bot, cached after the first call.
func (c *Client) BotUserID(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.botUserID != "" {
		return c.botUserID, nil
	}
	var res authTest
	if err := c.get(ctx, "auth.test", nil, &res); err != nil {
		return "", err
	}
	if err := res.apiError("auth.test"); err != nil {
		return "", err
	}
	c.botUserID = res.UserID
	return c.botUserID, nil
}

type history struct {
	response
	Messages []message.Message `json:"messages"`
}

// FindMessage scans the latest channel messages posted by the bot for one
// whose attachment footer carries marker. It returns nil when none matches.
func (c *Client) FindMessage(ctx context.Context, channelID, marker string) (*message.Message, error) {
	botID, err := c.BotUserID(ctx)
	if err != nil {
		return nil, err
	}
	var res history
	params := url.Values{
		"channel": {channelID},
		"limit":   {strconv.Itoa(c.historyLimit)},
	}
	if err := c.get(ctx, "conversations.history", params, &res); err != nil {
		return nil, err
	}
	if err := res.apiError("conversations.history"); err != nil {
		return nil, err
	}
	for i := range res.Messages {
		msg := &res.Messages[i]
		if msg.User != botID {
			continue
		}
		for _, a := range msg.Attachments {
			if a.Footer != "" && message.FooterMarker(a.Footer) == marker {
				return msg, nil
			}
		}
	}
	return nil, nil
}

type postRequest struct {
	Channel     string               `json:"channel"`
	TS          string               `json:"ts,omitempty"`
	Username    string               `json:"username,omitempty"`
	IconEmoji   string               `json:"icon_emoji,omitempty"`
	Attachments []message.Attachment `json:"attachments"`
}

type postResponse struct {
	response
	TS string `json:"ts"`
}

// Send posts a new message and returns its ts.
func (c *Client) Send(ctx context.Context, channelID string, attachments []message.Attachment) (string, error) {
	req := postRequest{Channel: channelID, Username: c.botName, IconEmoji: c.botIcon, Attachments: attachments}
	var res postResponse
	if err := c.post(ctx, "chat.postMessage", req, &res); err != nil {
		return "", err
	}
	if err := res.apiError("chat.postMessage"); err != nil {
		return "", err
	}
	return res.TS, nil
}

// Update replaces the attachments of the message at ts.
func (c *Client) Update(ctx context.Context, channelID, ts string, attachments []message.Attachment) error {
	req := postRequest{Channel: channelID, TS: ts, Username: c.botName, Attachments: attachments}
	var res postResponse
	if err := c.post(ctx, "chat.update", req, &res); err != nil {
		return err
	}
	return res.apiError("chat.update")
}

func (c *Client) get(ctx context.Context, method string, params url.Values, out any) error {
	endpoint := c.baseURL + "/" + method
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return errors.Wrapf(err, "build %s request", method)
	}
	return c.do(req, method, out)
}

func (c *Client) post(ctx context.Context, method string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrapf(err, "encode %s request", method)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+method, bytes.NewReader(body))
	if err != nil {
		return errors.Wrapf(err, "build %s request", method)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	return c.do(req, method, out)
}

func (c *Client) do(req *http.Request, method string, out any) error {
	if c.token == "" {
		return errors.New("slack bot token is required")
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrapf(err, "slack %s", method)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrapf(err, "read slack %s response", method)
	}
	log.Debug().Str("method", method).Int("status", resp.StatusCode).Msg("slack api call")
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{Method: method, Message: fmt.Sprintf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return errors.Wrapf(err, "decode slack %s response", method)
	}
	return nil
}
