package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"
)

// SlackNotifier posts to an incoming webhook. Webhooks cannot upload files,
// so attachments are listed by name in the footer.
type SlackNotifier struct {
	webhookURL string
	footer     string
	client     *http.Client
}

// SlackMessage represents a Slack message payload
type SlackMessage struct {
	Text        string            `json:"text"`
	Attachments []SlackAttachment `json:"attachments,omitempty"`
}

// SlackAttachment represents a Slack message attachment
type SlackAttachment struct {
	Color  string `json:"color"`
	Title  string `json:"title,omitempty"`
	Text   string `json:"text"`
	Footer string `json:"footer,omitempty"`
}

func NewSlackNotifier(webhookURL string) *SlackNotifier {
	return &SlackNotifier{
		webhookURL: webhookURL,
		footer:     "recoru-upload",
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (m *SlackMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// SlackColor returns the Slack color for a notification type
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

func (s *SlackNotifier) message(n Notification) SlackMessage {
	footer := s.footer
	if len(n.Attachments) > 0 {
		names := make([]string, len(n.Attachments))
		for i, a := range n.Attachments {
			names[i] = filepath.Base(a)
		}
		footer += " | files: " + strings.Join(names, ", ")
	}
	return SlackMessage{
		Text: n.Title,
		Attachments: []SlackAttachment{{
			Color:  SlackColor(n.Type),
			Text:   n.Message,
			Footer: footer,
		}},
	}
}

func (s *SlackNotifier) Send(ctx context.Context, n Notification) error {
	if s.webhookURL == "" {
		return nil // Disabled
	}

	msg := s.message(n)
	payload, err := msg.ToJSON()
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("slack: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("slack returned %d", resp.StatusCode)
	}
	return nil
}
