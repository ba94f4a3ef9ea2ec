// Package line talks to the LINE Messaging API through the official SDK:
// replies, pushes, user profiles, message content and webhook parsing.
package line

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"
)

const (
	// DefaultAPIBaseURL serves messaging and profile endpoints.
	DefaultAPIBaseURL = "https://api.line.me"
	// DefaultDataBaseURL serves message content.
	DefaultDataBaseURL = "https://api-data.line.me"

	// MaxContentBytes caps a downloaded media body.
	MaxContentBytes = 10 << 20
)

// Client calls the Messaging API with a channel access token.
type Client struct {
	api  *messaging_api.MessagingApiAPI
	blob *messaging_api.MessagingApiBlobAPI
}

type options struct {
	apiBase    string
	dataBase   string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*options)

// WithBaseURLs overrides both API hosts, mainly for tests.
func WithBaseURLs(api, data string) Option {
	return func(o *options) {
		o.apiBase = api
		o.dataBase = data
	}
}

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(o *options) { o.httpClient = hc }
}

// NewClient creates a client for the channel access token.
func NewClient(token string, opts ...Option) (*Client, error) {
	o := options{
		apiBase:    DefaultAPIBaseURL,
		dataBase:   DefaultDataBaseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(&o)
	}

	api, err := messaging_api.NewMessagingApiAPI(token,
		messaging_api.WithHTTPClient(o.httpClient),
		messaging_api.WithEndpoint(o.apiBase),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create messaging client: %w", err)
	}
	blob, err := messaging_api.NewMessagingApiBlobAPI(token,
		messaging_api.WithBlobHTTPClient(o.httpClient),
		messaging_api.WithBlobEndpoint(o.dataBase),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create blob client: %w", err)
	}
	return &Client{api: api, blob: blob}, nil
}

// messaging returns a copy of the messaging client bound to ctx. The SDK
// stores the context on the client, so each call gets its own copy.
func (c *Client) messaging(ctx context.Context) *messaging_api.MessagingApiAPI {
	api := *c.api
	return api.WithContext(ctx)
}

func (c *Client) content(ctx context.Context) *messaging_api.MessagingApiBlobAPI {
	blob := *c.blob
	return blob.WithContext(ctx)
}

// Reply answers an event through its one-time reply token.
func (c *Client) Reply(ctx context.Context, replyToken, text string) error {
	_, err := c.messaging(ctx).ReplyMessage(&messaging_api.ReplyMessageRequest{
		ReplyToken: replyToken,
		Messages:   []messaging_api.MessageInterface{messaging_api.TextMessage{Text: text}},
	})
	if err != nil {
		return fmt.Errorf("line reply failed: %w", err)
	}
	return nil
}

// Push sends an unsolicited message to a user.
func (c *Client) Push(ctx context.Context, userID, text string) error {
	_, err := c.messaging(ctx).PushMessage(&messaging_api.PushMessageRequest{
		To:       userID,
		Messages: []messaging_api.MessageInterface{messaging_api.TextMessage{Text: text}},
	}, "")
	if err != nil {
		return fmt.Errorf("line push failed: %w", err)
	}
	return nil
}

// DisplayName fetches the user's profile display name.
func (c *Client) DisplayName(ctx context.Context, userID string) (string, error) {
	profile, err := c.messaging(ctx).GetProfile(userID)
	if err != nil {
		return "", fmt.Errorf("line profile lookup failed: %w", err)
	}
	return profile.DisplayName, nil
}

// Ping checks that the channel access token is accepted by fetching the
// bot's own info.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.messaging(ctx).GetBotInfo(); err != nil {
		return fmt.Errorf("line bot info failed: %w", err)
	}
	return nil
}

// Content downloads the binary body of a media message.
func (c *Client) Content(ctx context.Context, messageID string) ([]byte, error) {
	resp, err := c.content(ctx).GetMessageContent(messageID)
	if resp != nil {
		defer func() { _ = resp.Body.Close() }()
	}
	if err != nil {
		return nil, fmt.Errorf("line content %s failed: %w", messageID, err)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxContentBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read content: %w", err)
	}
	if len(data) > MaxContentBytes {
		return nil, fmt.Errorf("content exceeds %d bytes", MaxContentBytes)
	}
	return data, nil
}
