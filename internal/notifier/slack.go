package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ahmetcdevelopment/task-management-api/internal/models"
)

// SlackConfig holds Slack webhook configuration.
type SlackConfig struct {
	WebhookURL string                    // Slack incoming webhook URL
	BaseURL    string                    // Prefix for action links, e.g. https://tasks.example.com
	Types      []models.NotificationType // Types to forward; empty forwards all
}

// Validate validates the Slack configuration.
func (c *SlackConfig) Validate() error {
	if c.WebhookURL == "" {
		return fmt.Errorf("webhook URL is required")
	}
	if !strings.HasPrefix(c.WebhookURL, "https://") {
		return fmt.Errorf("webhook URL must use HTTPS")
	}
	for _, t := range c.Types {
		if !t.Valid() {
			return fmt.Errorf("unknown notification type %q", t)
		}
	}
	return nil
}

// SlackNotifier forwards notifications to Slack via webhook.
type SlackNotifier struct {
	config     SlackConfig
	types      map[models.NotificationType]struct{}
	httpClient *http.Client
}

// NewSlackNotifier creates a new Slack notifier.
func NewSlackNotifier(config SlackConfig) (*SlackNotifier, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid slack config: %w", err)
	}

	return &SlackNotifier{
		config: config,
		types:  typeSet(config.Types),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}, nil
}

func typeSet(types []models.NotificationType) map[models.NotificationType]struct{} {
	if len(types) == 0 {
		return nil
	}
	set := make(map[models.NotificationType]struct{}, len(types))
	for _, t := range types {
		set[t] = struct{}{}
	}
	return set
}

// Name returns "slack".
func (s *SlackNotifier) Name() string {
	return "slack"
}

// Accepts reports whether t is on the allow-list.
func (s *SlackNotifier) Accepts(t models.NotificationType) bool {
	if s.types == nil {
		return true
	}
	_, ok := s.types[t]
	return ok
}

// Send posts a notification to Slack.
func (s *SlackNotifier) Send(ctx context.Context, n *models.Notification) error {
	payload := s.buildPayload(n)

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.WebhookURL, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("slack API error: status %d, body: %s", resp.StatusCode, string(body))
	}

	return nil
}

// Close is a no-op for Slack notifier.
func (s *SlackNotifier) Close() error {
	return nil
}

// slackMessage represents the Slack webhook payload.
type slackMessage struct {
	Text   string       `json:"text"`
	Blocks []slackBlock `json:"blocks"`
}

// slackBlock represents a Slack Block Kit block.
type slackBlock struct {
	Type     string      `json:"type"`
	Text     *slackText  `json:"text,omitempty"`
	Fields   []slackText `json:"fields,omitempty"`
	Elements []slackText `json:"elements,omitempty"`
}

// slackText represents text in Slack Block Kit.
type slackText struct {
	Type  string `json:"type"`
	Text  string `json:"text"`
	Emoji bool   `json:"emoji,omitempty"`
}

func (s *SlackNotifier) buildPayload(n *models.Notification) slackMessage {
	emoji := typeEmoji(n.Type)
	timestamp := n.CreatedAt.Format("2006-01-02 15:04:05 MST")

	blocks := []slackBlock{
		{
			Type: "header",
			Text: &slackText{
				Type:  "plain_text",
				Text:  truncate(fmt.Sprintf("%s %s", emoji, n.Title), 150),
				Emoji: true,
			},
		},
		{
			Type: "section",
			Text: &slackText{
				Type: "mrkdwn",
				Text: n.Message,
			},
		},
		{
			Type: "section",
			Fields: []slackText{
				{
					Type: "mrkdwn",
					Text: fmt.Sprintf("*Type:*\n%s", n.Type),
				},
				{
					Type: "mrkdwn",
					Text: fmt.Sprintf("*Time:*\n%s", timestamp),
				},
			},
		},
	}

	var footer []string
	if n.RelatedEntityType != "" && n.RelatedEntityID != "" {
		footer = append(footer, fmt.Sprintf("%s `%s`", n.RelatedEntityType, n.RelatedEntityID))
	}
	if n.ActionURL != "" {
		link := strings.TrimRight(s.config.BaseURL, "/") + n.ActionURL
		footer = append(footer, fmt.Sprintf("<%s|Open>", link))
	}
	if len(footer) > 0 {
		blocks = append(blocks, slackBlock{
			Type: "context",
			Elements: []slackText{
				{
					Type: "mrkdwn",
					Text: strings.Join(footer, " | "),
				},
			},
		})
	}

	return slackMessage{
		Text:   fmt.Sprintf("%s: %s", n.Title, n.Message),
		Blocks: blocks,
	}
}

// typeEmoji returns an emoji for the notification type.
func typeEmoji(t models.NotificationType) string {
	switch t {
	case models.NotificationError:
		return "\U0001F534" // red circle
	case models.NotificationWarning, models.NotificationReminder:
		return "\U0001F7E1" // yellow circle
	case models.NotificationSuccess, models.NotificationTaskCompleted:
		return "\U0001F7E2" // green circle
	case models.NotificationTaskAssigned, models.NotificationTaskUpdated:
		return "\U0001F4CB" // clipboard
	case models.NotificationProjectCreated, models.NotificationProjectUpdated,
		models.NotificationTeamMemberAdded, models.NotificationTeamMemberRemoved:
		return "\U0001F4C1" // folder
	default:
		return "\u26AA" // white circle
	}
}

// truncate truncates a string to max runes with ellipsis.
func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}
