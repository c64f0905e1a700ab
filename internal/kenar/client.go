// Package kenar talks to the Divar Kenar chatbot REST API.
package kenar

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/park285/xo-kenar-bot/internal/util"
	"github.com/park285/xo-kenar-bot/internal/xo"
)

const (
	DefaultBaseURL = "https://api.divar.ir"
	retryBaseDelay = 100 * time.Millisecond
)

// StatusError is a non-2xx answer from the API.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("kenar api error: status=%d body=%s", e.Status, e.Body)
}

type Client struct {
	baseURL string
	apiKey  string
	http    *fasthttp.Client

	timeout  time.Duration
	retryMax int
}

type Option func(*Client)

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func WithRetry(max int) Option {
	return func(c *Client) { c.retryMax = max }
}

// WithDial replaces the dialer, e.g. with an in-memory listener in tests.
func WithDial(dial fasthttp.DialFunc) Option {
	return func(c *Client) { c.http.Dial = dial }
}

func NewClient(baseURL, apiKey string, opts ...Option) *Client {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL:  strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:   strings.TrimSpace(apiKey),
		http:     &fasthttp.Client{ReadTimeout: 30 * time.Second, WriteTimeout: 30 * time.Second, MaxConnsPerHost: 64},
		timeout:  30 * time.Second,
		retryMax: 3,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Send posts text, with the board controls when grid is non-nil.
func (c *Client) Send(ctx context.Context, conversationID, text string, grid *xo.ControlGrid) error {
	conversationID = strings.TrimSpace(conversationID)
	if conversationID == "" {
		return errors.New("conversation id is required")
	}
	return c.SendMessage(ctx, conversationID, BuildMessage(text, grid))
}

func (c *Client) SendMessage(ctx context.Context, conversationID string, msg MessageRequest) error {
	path := "/v2/open-platform/chatbot-conversations/" + url.PathEscape(conversationID) + "/messages"
	return c.doJSON(ctx, fasthttp.MethodPost, path, msg)
}

// BuildMessage converts a control grid into the API's button rows.
func BuildMessage(text string, grid *xo.ControlGrid) MessageRequest {
	msg := MessageRequest{Type: MessageTypeText, TextMessage: text}
	if grid == nil {
		return msg
	}
	rows := make([]ButtonRow, 0, len(grid.Rows))
	for _, row := range grid.Rows {
		buttons := make([]Button, 0, len(row))
		for _, ctl := range row {
			buttons = append(buttons, Button{
				Caption: ctl.Caption,
				Action: ButtonAction{GetDynamicAction: &DynamicAction{Data: ActionData{
					GameID:   strconv.FormatInt(ctl.Payload.GameID, 10),
					Position: strconv.Itoa(ctl.Payload.Position),
					Action:   ctl.Payload.Action,
					Disabled: strconv.FormatBool(ctl.Payload.Disabled),
				}}},
			})
		}
		rows = append(rows, ButtonRow{Buttons: buttons})
	}
	msg.Buttons = &Buttons{Rows: rows}
	return msg
}

func (c *Client) doJSON(ctx context.Context, method, path string, in any) error {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}()

	req.Header.SetMethod(method)
	req.SetRequestURI(c.baseURL + path)
	req.Header.SetContentType("application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req.SetBody(payload)

	attempts := c.retryMax
	if attempts <= 0 {
		attempts = 1
	}
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		err := c.http.DoDeadline(req, resp, c.deadline(ctx))
		if err != nil {
			lastErr = fmt.Errorf("request failed: %w", err)
		} else if status := resp.StatusCode(); status < 200 || status >= 300 {
			lastErr = &StatusError{Status: status, Body: truncate(string(resp.Body()), 512)}
			if !shouldRetryStatus(status) {
				return lastErr
			}
		} else {
			return nil
		}
		if attempt == attempts {
			break
		}
		if sleepErr := util.SleepContext(ctx, util.Backoff(retryBaseDelay, attempt)); sleepErr != nil {
			return lastErr
		}
	}
	return lastErr
}

func (c *Client) deadline(ctx context.Context) time.Time {
	clientDL := time.Now().Add(c.timeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(clientDL) {
		return dl
	}
	return clientDL
}

func shouldRetryStatus(code int) bool {
	switch code {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
