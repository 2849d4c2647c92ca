package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// SlackNotifier posts run summaries to a Slack incoming webhook
type SlackNotifier struct {
	webhookURL string
	client     *http.Client
}

type slackPayload struct {
	Text        string            `json:"text"`
	Attachments []slackAttachment `json:"attachments"`
}

type slackAttachment struct {
	Color    string       `json:"color"`
	Fallback string       `json:"fallback"`
	Text     string       `json:"text,omitempty"`
	Fields   []slackField `json:"fields,omitempty"`
	Footer   string       `json:"footer"`
	TS       int64        `json:"ts"`
}

type slackField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

// NewSlackNotifier returns a notifier for webhookURL. An empty URL disables it.
func NewSlackNotifier(webhookURL string) *SlackNotifier {
	return &SlackNotifier{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

// SlackColor maps a notification type to an attachment colour
func SlackColor(t NotificationType) string {
	switch t {
	case NotifySuccess:
		return "good"
	case NotifyWarning:
		return "warning"
	case NotifyError:
		return "danger"
	default:
		return "#439FE0"
	}
}

func (s *SlackNotifier) payload(n Notification, now time.Time) slackPayload {
	att := slackAttachment{
		Color:    SlackColor(n.Type),
		Fallback: n.Title + ": " + n.Message,
		Text:     n.Message,
		Footer:   "lintgate",
		TS:       now.Unix(),
	}
	if n.RunID != "" {
		att.Fields = append(att.Fields, slackField{Title: "Run", Value: n.RunID, Short: true})
	}
	if n.LogPath != "" {
		att.Fields = append(att.Fields, slackField{Title: "Log", Value: "`" + n.LogPath + "`"})
	}
	return slackPayload{Text: "*" + n.Title + "*", Attachments: []slackAttachment{att}}
}

// Send posts n with a background context
func (s *SlackNotifier) Send(n Notification) error {
	return s.SendContext(context.Background(), n)
}

// SendContext posts n to the webhook. Any 2xx response counts as delivered.
func (s *SlackNotifier) SendContext(ctx context.Context, n Notification) error {
	if s.webhookURL == "" {
		return nil
	}
	body, err := json.Marshal(s.payload(n, time.Now()))
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("slack: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("slack: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("slack: webhook answered %d", resp.StatusCode)
	}
	return nil
}
