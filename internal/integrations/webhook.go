package integrations

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/meetingwhisperer/server/internal/pipeline"
)

// WebhookConfig holds incoming-webhook URLs for chat platforms.
type WebhookConfig struct {
	TeamsURL string `yaml:"teams_url"`
	SlackURL string `yaml:"slack_url"`
}

// Webhooks posts meeting summaries to Teams and Slack incoming webhooks.
type Webhooks struct {
	cfg WebhookConfig
	hc  *http.Client
	log *logrus.Logger
}

func NewWebhooks(cfg WebhookConfig, log *logrus.Logger) *Webhooks {
	if log == nil {
		log = logrus.New()
	}
	return &Webhooks{cfg: cfg, hc: &http.Client{Timeout: 15 * time.Second}, log: log}
}

func (w *Webhooks) TeamsConfigured() bool { return w.cfg.TeamsURL != "" }
func (w *Webhooks) SlackConfigured() bool { return w.cfg.SlackURL != "" }

// PostSummary sends the final report to the named platform.
func (w *Webhooks) PostSummary(ctx context.Context, platform string, report pipeline.FinalReport) error {
	switch platform {
	case "teams":
		if !w.TeamsConfigured() {
			return fmt.Errorf("teams webhook is not configured")
		}
		return w.post(ctx, w.cfg.TeamsURL, teamsCard(report))
	case "slack":
		if !w.SlackConfigured() {
			return fmt.Errorf("slack webhook is not configured")
		}
		return w.post(ctx, w.cfg.SlackURL, slackBlocks(report))
	default:
		return fmt.Errorf("unknown platform: %s", platform)
	}
}

func (w *Webhooks) post(ctx context.Context, url string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("webhook %s: %s", resp.Status, string(msg))
	}
	return nil
}

func actionItemLines(report pipeline.FinalReport) []string {
	var out []string
	for _, item := range report.ActionItems {
		line := item.Text
		if item.Assignee != "" {
			line += " (" + item.Assignee + ")"
		}
		out = append(out, line)
	}
	return out
}

// teamsCard builds a legacy MessageCard payload, which every Teams incoming
// webhook still accepts.
func teamsCard(report pipeline.FinalReport) map[string]interface{} {
	facts := []map[string]string{
		{"name": "Transcript lines", "value": fmt.Sprintf("%d", report.TranscriptLines)},
		{"name": "Participants", "value": strings.Join(report.Summary.Participants, ", ")},
		{"name": "Overall mood", "value": report.EmotionAnalysis.OverallSentiment},
	}
	text := report.Summary.Summary
	if items := actionItemLines(report); len(items) > 0 {
		text += "\n\n**Action items:**\n- " + strings.Join(items, "\n- ")
	}
	return map[string]interface{}{
		"@type":      "MessageCard",
		"@context":   "http://schema.org/extensions",
		"themeColor": "6264A7",
		"summary":    report.Summary.Title,
		"sections": []map[string]interface{}{{
			"activityTitle": report.Summary.Title,
			"facts":         facts,
			"text":          text,
			"markdown":      true,
		}},
	}
}

func slackBlocks(report pipeline.FinalReport) map[string]interface{} {
	blocks := []map[string]interface{}{
		{
			"type": "header",
			"text": map[string]string{"type": "plain_text", "text": report.Summary.Title},
		},
		{
			"type": "section",
			"text": map[string]string{"type": "mrkdwn", "text": report.Summary.Summary},
		},
	}
	if items := actionItemLines(report); len(items) > 0 {
		blocks = append(blocks, map[string]interface{}{
			"type": "section",
			"text": map[string]string{"type": "mrkdwn", "text": "*Action items:*\n• " + strings.Join(items, "\n• ")},
		})
	}
	blocks = append(blocks, map[string]interface{}{
		"type": "context",
		"elements": []map[string]string{{
			"type": "mrkdwn",
			"text": fmt.Sprintf("Meeting %s · %d transcript lines · mood %s",
				report.SessionID, report.TranscriptLines, report.EmotionAnalysis.OverallSentiment),
		}},
	})
	return map[string]interface{}{"blocks": blocks}
}
