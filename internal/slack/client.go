// Package slack is the outbound collaborator client: posting channel
// and ephemeral messages, uploading export files, and resolving actor
// and channel ids to display names. All calls are rate limited and
// retried with backoff; name lookups degrade to the raw id instead of
// failing the operation that wanted the name.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/meetbot/internal/retry"
)

const defaultBaseURL = "https://slack.com/api"

// Config carries the client's construction parameters. BaseURL and
// HTTPClient exist for tests; leaving them zero picks the real API.
type Config struct {
	Token      string
	BaseURL    string
	HTTPClient *http.Client
}

// Client talks to the Slack Web API.
type Client struct {
	token      string
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	backoff    retry.Config

	mu           sync.RWMutex
	userNames    map[string]string
	channelNames map[string]string
}

// NewClient creates a Slack Web API client.
func NewClient(cfg Config) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		token:      cfg.Token,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: httpClient,
		// Slack's Tier 3 methods allow ~50 requests per minute.
		limiter:      rate.NewLimiter(rate.Every(1200*time.Millisecond), 5),
		backoff:      retry.DefaultConfig(),
		userNames:    make(map[string]string),
		channelNames: make(map[string]string),
	}
}

type apiResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
	User  struct {
		RealName string `json:"real_name"`
		Name     string `json:"name"`
	} `json:"user"`
	Channel struct {
		Name string `json:"name"`
	} `json:"channel"`
}

// PostPublic posts a message visible to the whole channel.
func (c *Client) PostPublic(ctx context.Context, channelID, text string) error {
	return c.callJSON(ctx, "chat.postMessage", map[string]interface{}{
		"channel": channelID,
		"text":    text,
	}, nil)
}

// PostPrivate posts an ephemeral message visible only to the actor.
func (c *Client) PostPrivate(ctx context.Context, channelID, userID, text string) error {
	return c.callJSON(ctx, "chat.postEphemeral", map[string]interface{}{
		"channel": channelID,
		"user":    userID,
		"text":    text,
	}, nil)
}

// UploadFile uploads a document to the channel with a caption. The
// caller owns the content; nothing is kept after the upload.
func (c *Client) UploadFile(ctx context.Context, channelID, filename string, content []byte, caption string) error {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return fmt.Errorf("failed to create upload form: %w", err)
	}
	if _, err := part.Write(content); err != nil {
		return fmt.Errorf("failed to write upload content: %w", err)
	}
	fields := map[string]string{
		"channels":        channelID,
		"filename":        filename,
		"initial_comment": caption,
		"title":           "Meeting Export",
	}
	for k, v := range fields {
		if err := writer.WriteField(k, v); err != nil {
			return fmt.Errorf("failed to write upload field: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to finalize upload form: %w", err)
	}

	return c.do(ctx, "files.upload", func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/files.upload", bytes.NewReader(body.Bytes()))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", writer.FormDataContentType())
		return req, nil
	}, nil)
}

// UserName resolves an actor id to a display name, falling back to the
// raw id when the lookup fails. Results are cached for the process
// lifetime; workspace renames are rare enough not to matter here.
func (c *Client) UserName(ctx context.Context, userID string) string {
	c.mu.RLock()
	name, ok := c.userNames[userID]
	c.mu.RUnlock()
	if ok {
		return name
	}

	var resp apiResponse
	err := c.callForm(ctx, "users.info", url.Values{"user": {userID}}, &resp)
	if err != nil {
		log.Warn().Str("user_id", userID).Err(err).Msg("Failed to resolve user name")
		return userID
	}

	name = resp.User.RealName
	if name == "" {
		name = resp.User.Name
	}
	if name == "" {
		return userID
	}

	c.mu.Lock()
	c.userNames[userID] = name
	c.mu.Unlock()
	return name
}

// ChannelName resolves a channel id to its name, falling back to the
// raw id when the lookup fails.
func (c *Client) ChannelName(ctx context.Context, channelID string) string {
	c.mu.RLock()
	name, ok := c.channelNames[channelID]
	c.mu.RUnlock()
	if ok {
		return name
	}

	var resp apiResponse
	err := c.callForm(ctx, "conversations.info", url.Values{"channel": {channelID}}, &resp)
	if err != nil {
		log.Warn().Str("channel_id", channelID).Err(err).Msg("Failed to resolve channel name")
		return channelID
	}
	if resp.Channel.Name == "" {
		return channelID
	}

	c.mu.Lock()
	c.channelNames[channelID] = resp.Channel.Name
	c.mu.Unlock()
	return resp.Channel.Name
}

func (c *Client) callJSON(ctx context.Context, method string, payload map[string]interface{}, out *apiResponse) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", method, err)
	}
	return c.do(ctx, method, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+method, bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json; charset=utf-8")
		return req, nil
	}, out)
}

func (c *Client) callForm(ctx context.Context, method string, values url.Values, out *apiResponse) error {
	return c.do(ctx, method, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/"+method+"?"+values.Encode(), nil)
		if err != nil {
			return nil, err
		}
		return req, nil
	}, out)
}

func (c *Client) do(ctx context.Context, method string, build func() (*http.Request, error), out *apiResponse) error {
	return retry.Do(ctx, c.backoff, method, func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		req, err := build()
		if err != nil {
			return fmt.Errorf("failed to build %s request: %w", method, err)
		}
		req.Header.Set("Authorization", "Bearer "+c.token)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("%s request failed: %w", method, err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to read %s response: %w", method, err)
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("%s returned status %d: %s", method, resp.StatusCode, string(body))
		}

		envelope := apiResponse{}
		if out == nil {
			out = &envelope
		}
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("failed to parse %s response: %w", method, err)
		}
		if !out.OK {
			return fmt.Errorf("%s returned error: %s", method, out.Error)
		}
		return nil
	})
}
