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

	"github.com/meetingwhisperer/server/internal/session"
)

// JiraConfig holds cloud Jira credentials. All four fields are required for
// the integration to be considered configured.
type JiraConfig struct {
	BaseURL    string `yaml:"base_url"`
	Email      string `yaml:"email"`
	APIToken   string `yaml:"api_token"`
	ProjectKey string `yaml:"project_key"`
}

// Jira creates one issue per action item through the cloud REST API.
type Jira struct {
	cfg JiraConfig
	hc  *http.Client
	log *logrus.Logger
}

func NewJira(cfg JiraConfig, log *logrus.Logger) *Jira {
	if log == nil {
		log = logrus.New()
	}
	return &Jira{
		cfg: JiraConfig{
			BaseURL:    strings.TrimRight(cfg.BaseURL, "/"),
			Email:      cfg.Email,
			APIToken:   cfg.APIToken,
			ProjectKey: cfg.ProjectKey,
		},
		hc:  &http.Client{Timeout: 15 * time.Second},
		log: log,
	}
}

func (j *Jira) Configured() bool {
	return j.cfg.BaseURL != "" && j.cfg.Email != "" && j.cfg.APIToken != "" && j.cfg.ProjectKey != ""
}

// CreatedIssue reports one created issue back to the caller.
type CreatedIssue struct {
	Key  string `json:"key"`
	URL  string `json:"url"`
	Text string `json:"text"`
}

var jiraPriorities = map[session.Priority]string{
	session.PriorityHigh:   "High",
	session.PriorityMedium: "Medium",
	session.PriorityLow:    "Low",
}

// CreateIssues files one Jira task per action item. A failed item is logged
// and skipped so one bad payload does not abandon the rest of the list.
func (j *Jira) CreateIssues(ctx context.Context, sessionID string, items []session.ActionItem) ([]CreatedIssue, error) {
	if !j.Configured() {
		return nil, fmt.Errorf("jira integration is not configured")
	}

	var created []CreatedIssue
	for _, item := range items {
		issue, err := j.createIssue(ctx, sessionID, item)
		if err != nil {
			j.log.WithError(err).WithField("text", item.Text).Warn("jira issue creation failed")
			continue
		}
		created = append(created, issue)
	}
	return created, nil
}

func (j *Jira) createIssue(ctx context.Context, sessionID string, item session.ActionItem) (CreatedIssue, error) {
	summary := item.Text
	if len(summary) > 255 {
		summary = summary[:252] + "..."
	}

	description := fmt.Sprintf("Action item from meeting %s.", sessionID)
	if item.Assignee != "" {
		description += fmt.Sprintf(" Suggested assignee: %s.", item.Assignee)
	}

	payload := map[string]interface{}{
		"fields": map[string]interface{}{
			"project":   map[string]string{"key": j.cfg.ProjectKey},
			"issuetype": map[string]string{"name": "Task"},
			"summary":   summary,
			"priority":  map[string]string{"name": jiraPriorities[item.Priority]},
			"description": map[string]interface{}{
				"type":    "doc",
				"version": 1,
				"content": []map[string]interface{}{{
					"type": "paragraph",
					"content": []map[string]interface{}{{
						"type": "text",
						"text": description,
					}},
				}},
			},
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return CreatedIssue{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, j.cfg.BaseURL+"/rest/api/3/issue", bytes.NewReader(body))
	if err != nil {
		return CreatedIssue{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(j.cfg.Email, j.cfg.APIToken)

	resp, err := j.hc.Do(req)
	if err != nil {
		return CreatedIssue{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		msg, _ := io.ReadAll(resp.Body)
		return CreatedIssue{}, fmt.Errorf("jira %s: %s", resp.Status, string(msg))
	}

	var out struct {
		Key string `json:"key"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return CreatedIssue{}, fmt.Errorf("jira decode: %w", err)
	}
	return CreatedIssue{
		Key:  out.Key,
		URL:  j.cfg.BaseURL + "/browse/" + out.Key,
		Text: item.Text,
	}, nil
}
