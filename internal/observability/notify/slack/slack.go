// Package slack posts prediction job failures to a Slack incoming webhook.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rohittupe/prediction-service/internal/observability/notify"
)

const (
	defaultUsername = "prediction-service"
	baseBackoff     = 200 * time.Millisecond
	maxErrorBody    = 4 << 10
)

// Config holds webhook settings.
type Config struct {
	WebhookURL string
	Channel    string
	Username   string
	Timeout    time.Duration
	// RetryLimit is the number of extra attempts after a retryable failure.
	RetryLimit int
	// StatusURLPrefix turns the job id into a link to "<prefix>/<job id>".
	StatusURLPrefix string
	HTTPClient      *http.Client
}

// Client is a notify.Sink backed by a Slack webhook.
type Client struct {
	webhook    string
	channel    string
	username   string
	retryLimit int
	statusURL  *url.URL
	http       *http.Client
}

var _ notify.Sink = (*Client)(nil)

// NewClient validates cfg and builds a Client.
func NewClient(cfg Config) (*Client, error) {
	webhook := strings.TrimSpace(cfg.WebhookURL)
	if webhook == "" {
		return nil, errors.New("slack webhook url is required")
	}
	if _, err := url.ParseRequestURI(webhook); err != nil {
		return nil, fmt.Errorf("slack webhook url: %w", err)
	}

	c := &Client{
		webhook:    webhook,
		channel:    strings.TrimSpace(cfg.Channel),
		username:   strings.TrimSpace(cfg.Username),
		retryLimit: max(cfg.RetryLimit, 0),
		http:       cfg.HTTPClient,
	}
	if c.username == "" {
		c.username = defaultUsername
	}
	if c.http == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 5 * time.Second
		}
		c.http = &http.Client{Timeout: timeout}
	}
	if prefix := strings.TrimSpace(cfg.StatusURLPrefix); prefix != "" {
		if u, err := url.Parse(prefix); err == nil && u.Scheme != "" && u.Host != "" {
			c.statusURL = u
		}
	}
	return c, nil
}

// Notify posts failure, retrying network errors, 429 and 5xx responses with
// exponential backoff.
func (c *Client) Notify(ctx context.Context, failure notify.JobFailure) error {
	body, err := json.Marshal(c.buildMessage(failure))
	if err != nil {
		return fmt.Errorf("encode slack message: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.retryLimit; attempt++ {
		if attempt > 0 {
			if err := sleep(ctx, baseBackoff<<(attempt-1)); err != nil {
				return errors.Join(lastErr, err)
			}
		}
		lastErr = c.post(ctx, body)
		if lastErr == nil {
			return nil
		}
		var se *statusError
		if errors.As(lastErr, &se) && !se.retryable() {
			return lastErr
		}
	}
	return lastErr
}

type message struct {
	Text     string  `json:"text"`
	Username string  `json:"username,omitempty"`
	Channel  string  `json:"channel,omitempty"`
	Blocks   []block `json:"blocks"`
}

type block struct {
	Type   string `json:"type"`
	Text   *text  `json:"text,omitempty"`
	Fields []text `json:"fields,omitempty"`
	Elems  []text `json:"elements,omitempty"`
}

type text struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func mrkdwn(s string) text { return text{Type: "mrkdwn", Text: s} }

func (c *Client) buildMessage(f notify.JobFailure) message {
	severity := f.Severity
	if severity == "" {
		severity = notify.SeverityCritical
	}
	at := f.FailedAt
	if at.IsZero() {
		at = time.Now()
	}

	headline := fmt.Sprintf("Prediction job %s failed", c.jobRef(f.JobID))
	fields := []text{mrkdwn("*Severity*\n" + string(severity))}
	if f.MemberID != "" {
		fields = append(fields, mrkdwn("*Member*\n"+escape(f.MemberID)))
	}
	if f.Class != "" {
		fields = append(fields, mrkdwn("*Class*\n`"+escape(f.Class)+"`"))
	}
	if f.Source != "" {
		fields = append(fields, mrkdwn("*Source*\n"+escape(f.Source)))
	}

	blocks := []block{
		{Type: "section", Text: &text{Type: "mrkdwn", Text: ":rotating_light: *" + headline + "*"}},
		{Type: "section", Fields: fields},
	}
	if f.Reason != "" {
		blocks = append(blocks, block{Type: "section", Text: &text{Type: "mrkdwn", Text: "> " + escape(f.Reason)}})
	}
	blocks = append(blocks, block{Type: "context", Elems: []text{mrkdwn(at.UTC().Format(time.RFC3339))}})

	fallback := headline
	if f.Reason != "" {
		fallback += ": " + escape(f.Reason)
	}
	return message{
		Text:     fallback,
		Username: c.username,
		Channel:  c.channel,
		Blocks:   blocks,
	}
}

func (c *Client) jobRef(jobID string) string {
	id := escape(jobID)
	if id == "" {
		return "(unknown)"
	}
	if c.statusURL == nil {
		return "`" + id + "`"
	}
	return fmt.Sprintf("<%s|%s>", c.statusURL.JoinPath(jobID).String(), id)
}

type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("slack webhook returned %d: %s", e.code, e.body)
}

func (e *statusError) retryable() bool {
	return e.code == http.StatusTooManyRequests || e.code >= http.StatusInternalServerError
}

func (c *Client) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webhook, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("post slack webhook: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode/100 != 2 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &statusError{code: resp.StatusCode, body: strings.TrimSpace(string(raw))}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func escape(s string) string {
	return strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;").Replace(s)
}
