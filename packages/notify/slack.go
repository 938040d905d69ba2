package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// SlackNotifier posts run summaries to a Slack incoming webhook.
type SlackNotifier struct {
	webhookURL string
	channel    string
	username   string
	iconEmoji  string
	client     *http.Client
	now        func() time.Time
}

type SlackOption func(*SlackNotifier)

// WithSlackChannel overrides the webhook's default channel.
func WithSlackChannel(channel string) SlackOption {
	return func(s *SlackNotifier) {
		s.channel = channel
	}
}

func WithSlackUsername(username string) SlackOption {
	return func(s *SlackNotifier) {
		s.username = username
	}
}

func WithSlackHTTPClient(c *http.Client) SlackOption {
	return func(s *SlackNotifier) {
		s.client = c
	}
}

// NewSlackNotifier posts as "apicheck" unless WithSlackUsername says
// otherwise.
func NewSlackNotifier(webhookURL string, opts ...SlackOption) *SlackNotifier {
	s := &SlackNotifier{
		webhookURL: webhookURL,
		username:   "apicheck",
		iconEmoji:  ":satellite:",
		client:     &http.Client{Timeout: 10 * time.Second},
		now:        time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

func (s *SlackNotifier) Name() string {
	return "slack"
}

type slackMessage struct {
	Channel     string            `json:"channel,omitempty"`
	Username    string            `json:"username,omitempty"`
	IconEmoji   string            `json:"icon_emoji,omitempty"`
	Attachments []slackAttachment `json:"attachments"`
}

type slackAttachment struct {
	Color  string       `json:"color"`
	Title  string       `json:"title"`
	Text   string       `json:"text,omitempty"`
	Fields []slackField `json:"fields,omitempty"`
	Footer string       `json:"footer,omitempty"`
	TS     int64        `json:"ts,omitempty"`
}

type slackField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

// maxListedFailures keeps messages under Slack's attachment size limit.
const maxListedFailures = 10

func (s *SlackNotifier) message(summary *Summary) slackMessage {
	color := "good"
	title := fmt.Sprintf(":white_check_mark: %s: all %d cases passed", summary.Suite, summary.Passed)

	switch {
	case !summary.OK():
		color = "danger"
		title = fmt.Sprintf(":x: %s: %d failed, %d errored", summary.Suite, summary.Failed, summary.Errored)
	case summary.IsRecovery:
		title = fmt.Sprintf(":tada: %s recovered", summary.Suite)
	}

	var fields []slackField
	field := func(title, value string) {
		if value != "" {
			fields = append(fields, slackField{Title: title, Value: value, Short: true})
		}
	}
	field("Total", strconv.Itoa(summary.Total))
	field("Passed", strconv.Itoa(summary.Passed))
	field("Failed", strconv.Itoa(summary.Failed+summary.Errored))
	field("Duration", summary.Duration.Round(time.Millisecond).String())
	if summary.P95 > 0 {
		field("p95", summary.P95.Round(time.Millisecond).String())
	}
	field("Environment", summary.Environment)

	var text strings.Builder
	if len(summary.Failures) > 0 {
		text.WriteString("*Failed cases:*\n")
		for i, f := range summary.Failures {
			if i == maxListedFailures {
				fmt.Fprintf(&text, "... and %d more\n", len(summary.Failures)-i)
				break
			}
			fmt.Fprintf(&text, "- `%s`: %s\n", f.Case, f.Message)
		}
	}

	return slackMessage{
		Channel:   s.channel,
		Username:  s.username,
		IconEmoji: s.iconEmoji,
		Attachments: []slackAttachment{{
			Color:  color,
			Title:  title,
			Text:   text.String(),
			Fields: fields,
			Footer: summary.BaseURL,
			TS:     s.now().Unix(),
		}},
	}
}

// Notify posts summary to the webhook.
func (s *SlackNotifier) Notify(ctx context.Context, summary *Summary) error {
	data, err := json.Marshal(s.message(summary))
	if err != nil {
		return fmt.Errorf("failed to marshal Slack message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("invalid Slack webhook URL: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send Slack notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("slack API returned status %d: %s", resp.StatusCode, string(body))
	}
	return nil
}
