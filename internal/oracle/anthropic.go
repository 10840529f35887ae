package oracle

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

const (
	anthropicMessagesURL = "https://api.anthropic.com/v1/messages"
	anthropicVersion     = "2023-06-01"
	defaultModel         = "claude-3-haiku-20240307"
)

// Anthropic derives structured insights from the Claude messages API. All
// call kinds ask for a JSON response and parse it strictly; anything
// non-parseable is an error for the caller to neutralize.
type Anthropic struct {
	apiKey        string
	model         string
	realtimeModel string
	endpoint      string
	hc            *http.Client
	log           *logrus.Logger
}

func NewAnthropic(cfg Config, log *logrus.Logger) (*Anthropic, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic API key is required")
	}
	model := cfg.Model
	if model == "" {
		model = defaultModel
	}
	realtime := cfg.RealtimeModel
	if realtime == "" {
		realtime = model
	}
	if log == nil {
		log = logrus.New()
	}
	return &Anthropic{
		apiKey:        cfg.APIKey,
		model:         model,
		realtimeModel: realtime,
		endpoint:      anthropicMessagesURL,
		hc:            &http.Client{Timeout: 60 * time.Second},
		log:           log,
	}, nil
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature float64            `json:"temperature"`
	System      string             `json:"system"`
	Messages    []anthropicMessage `json:"messages"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

// complete sends one user prompt and returns the raw text of the reply.
func (a *Anthropic) complete(ctx context.Context, model, system, prompt string, maxTokens int, temperature float64) (string, error) {
	payload, err := json.Marshal(anthropicRequest{
		Model:       model,
		MaxTokens:   maxTokens,
		Temperature: temperature,
		System:      system,
		Messages:    []anthropicMessage{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", a.apiKey)
	req.Header.Set("anthropic-version", anthropicVersion)

	resp, err := a.hc.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("anthropic %s: %s", resp.Status, string(body))
	}

	var out anthropicResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("anthropic decode: %w", err)
	}
	if len(out.Content) == 0 {
		return "", fmt.Errorf("anthropic returned empty content")
	}
	return out.Content[0].Text, nil
}

// decodeJSON unmarshals a model reply into v, tolerating markdown code
// fences around the JSON body.
func decodeJSON(raw string, v interface{}) error {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")
	raw = strings.TrimSpace(raw)
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return fmt.Errorf("malformed structured response: %w", err)
	}
	return nil
}

func transcriptText(lines []session.TranscriptLine) string {
	var b strings.Builder
	for _, l := range lines {
		b.WriteString(l.Speaker)
		b.WriteString(": ")
		b.WriteString(l.Text)
		b.WriteString("\n")
	}
	return b.String()
}

func actionItemText(items []session.ActionItem) string {
	var b strings.Builder
	for _, it := range items {
		assignee := it.Assignee
		if assignee == "" {
			assignee = "Unassigned"
		}
		fmt.Fprintf(&b, "- %s (Assignee: %s, Priority: %s)\n", it.Text, assignee, it.Priority)
	}
	return b.String()
}

func (a *Anthropic) ExtractActions(ctx context.Context, lines []session.TranscriptLine, existing []session.ActionItem) ([]session.ReconciledItem, error) {
	existingBlock := "none"
	if len(existing) > 0 {
		existingBlock = actionItemText(existing)
	}

	prompt := fmt.Sprintf(`Analyze this meeting conversation segment and extract action items.

CONVERSATION:
%s
EXISTING ACTION ITEMS:
%s
Look for:
- Tasks to be done ("needs to", "should", "will", "let's")
- Assignments ("you should", "can you", "I'll", "assigned to")
- Deadlines ("by tomorrow", "this week", "before Friday")
- Priorities (urgent, important, critical, low priority)

Compare against the existing items. For each item you return, set
"disposition" to "new" when it is a genuinely new task, or "updated" when it
refines an existing item (a deadline, assignee or priority mentioned later);
for updated items set "replaces" to the exact text of the existing item.
Do not repeat existing items that are unchanged.

Return ONLY a JSON array. Each element:
{"text": "...", "assignee": "name or empty", "priority": "high|medium|low", "confidence": 0.0-1.0, "disposition": "new|updated", "replaces": "existing text or empty"}

If no action items are found, return [].`, transcriptText(lines), existingBlock)

	raw, err := a.complete(ctx, a.model,
		"You are an expert at identifying action items and tasks from meeting conversations. Only extract clear, actionable items. Always respond with valid JSON.",
		prompt, 1024, 0.2)
	if err != nil {
		return nil, err
	}

	var items []session.ReconciledItem
	if err := decodeJSON(raw, &items); err != nil {
		return nil, err
	}
	return items, nil
}

func (a *Anthropic) ScoreEmotion(ctx context.Context, speaker, text string) (EmotionScore, error) {
	prompt := fmt.Sprintf(`Analyze the emotion and sentiment of this single message in a meeting context. Be realistic and nuanced - not everything is happy or positive.

Speaker: %s
Message: "%s"

Guidelines:
- Short factual statements are neutral
- Questions are often neutral or uncertain
- Only use happy/excited for genuinely positive language
- Use concerned/frustrated for problem discussions

Respond with JSON:
{"primary_emotion": "excited|happy|content|neutral|uncertain|concerned|frustrated|disappointed|calm|focused", "energy_level": "high|medium|low", "stress_level": "none|low|medium|high", "confidence": 0.0-1.0}`, speaker, text)

	raw, err := a.complete(ctx, a.realtimeModel,
		"You are an expert workplace emotion analyst. Most workplace communication is neutral or professional. Always respond with valid JSON.",
		prompt, 256, 0.1)
	if err != nil {
		return EmotionScore{}, err
	}

	var score EmotionScore
	if err := decodeJSON(raw, &score); err != nil {
		return EmotionScore{}, err
	}
	return score, nil
}

func (a *Anthropic) Summarize(ctx context.Context, lines []session.TranscriptLine, items []session.ActionItem) (Summary, error) {
	prompt := fmt.Sprintf(`You are an expert meeting summarizer. Analyze this meeting transcript and provide a structured summary.

TRANSCRIPT:
%s
ACTION ITEMS DETECTED:
%s
Please provide:
1. A brief meeting title (5-10 words)
2. Executive summary (2-3 sentences)
3. Key discussion points (bullet points)
4. Decisions made (bullet points)
5. List of participants mentioned

Format your response as JSON with keys: title, summary, key_points, decisions, participants`, transcriptText(lines), actionItemText(items))

	raw, err := a.complete(ctx, a.model,
		"You are an expert meeting analyst. Provide concise, actionable summaries. Always respond with valid JSON.",
		prompt, 1024, 0.3)
	if err != nil {
		return Summary{}, err
	}

	var summary Summary
	if err := decodeJSON(raw, &summary); err != nil {
		return Summary{}, err
	}
	return summary, nil
}

func (a *Anthropic) AnalyzeEmotions(ctx context.Context, lines []session.TranscriptLine) (EmotionReport, error) {
	prompt := fmt.Sprintf(`Analyze the emotions and sentiment in this meeting transcript. Provide realistic, nuanced analysis - not all meetings are happy or positive.

Meeting Transcript:
%s
Analyze and provide:
1. Overall meeting sentiment: positive, neutral, negative, or mixed
2. Happiness level: very happy, happy, neutral, concerned, or frustrated
3. Individual speaker emotions, specific and realistic for each speaker
4. Key emotional moments: real emotional shifts, not generic statements
5. Energy level: high, medium, or low
6. Stress indicators: actual deadlines, blockers, or problems discussed

Format your response as JSON with keys: overall_sentiment, happiness_level, energy_level, speakers, emotional_moments, stress_indicators, confidence_score`, transcriptText(lines))

	raw, err := a.complete(ctx, a.model,
		"You are an expert workplace emotion and sentiment analyst. Avoid being overly positive - most workplace communication is neutral or professional. Always respond with valid JSON.",
		prompt, 1024, 0.2)
	if err != nil {
		return EmotionReport{}, err
	}

	var report EmotionReport
	if err := decodeJSON(raw, &report); err != nil {
		return EmotionReport{}, err
	}
	return report, nil
}

func (a *Anthropic) Answer(ctx context.Context, question string, lines []session.TranscriptLine, items []session.ActionItem, summary *Summary) (Answer, error) {
	var meetingCtx strings.Builder
	meetingCtx.WriteString("MEETING TRANSCRIPT:\n")
	meetingCtx.WriteString(transcriptText(lines))
	if len(items) > 0 {
		meetingCtx.WriteString("\nACTION ITEMS:\n")
		meetingCtx.WriteString(actionItemText(items))
	}
	if summary != nil {
		fmt.Fprintf(&meetingCtx, "\nMEETING SUMMARY:\nTitle: %s\nSummary: %s\n", summary.Title, summary.Summary)
	}

	prompt := fmt.Sprintf(`You are an intelligent meeting assistant. Answer the user's question based on the meeting context provided.

%s
USER QUESTION: %s

Provide a clear, concise answer based on the meeting content. If the answer isn't in the meeting context, say so politely.

Return your response as JSON with:
- answer: your detailed answer to the question
- confidence: score from 0.0 to 1.0
- sources: array of relevant quotes from the meeting that support your answer
- relevant_speakers: list of speakers who discussed this topic`, meetingCtx.String(), question)

	raw, err := a.complete(ctx, a.model,
		"You are a helpful meeting assistant that answers questions accurately based on meeting transcripts. Be honest if you don't have enough information. Always respond with valid JSON.",
		prompt, 1024, 0.3)
	if err != nil {
		return Answer{}, err
	}

	var ans Answer
	if err := decodeJSON(raw, &ans); err != nil {
		return Answer{}, err
	}
	return ans, nil
}

func (a *Anthropic) Explain(ctx context.Context, profile Profile, recent []session.TranscriptLine, latest string) (*Explanation, error) {
	prompt := fmt.Sprintf(`You are a personalized meeting assistant. Your job is to help %s understand the conversation by explaining terms and concepts outside their expertise.

User Profile:
- Name: %s
- Strong background: %s
- Areas needing support: %s
- Expertise level: %s

RECENT CONVERSATION CONTEXT:
%s
LATEST STATEMENT TO ANALYZE:
"%s"

Identify technical terms, jargon, or concepts in the latest statement that
might be unfamiliar given this background. If you find any, provide a brief,
clear explanation (2-3 sentences max), conversational and friendly.

Return your response as JSON:
{"needs_explanation": true/false, "terms_identified": ["term1"], "explanation": "brief explanation"}`,
		profile.Name, profile.Name,
		strings.Join(profile.StrongAreas, ", "),
		strings.Join(profile.WeakAreas, ", "),
		profile.ExpertiseLevel,
		transcriptText(recent), latest)

	raw, err := a.complete(ctx, a.realtimeModel,
		"You are a helpful and friendly assistant who provides personalized explanations. Always respond with valid JSON.",
		prompt, 512, 0.3)
	if err != nil {
		return nil, err
	}

	var result struct {
		NeedsExplanation bool     `json:"needs_explanation"`
		Terms            []string `json:"terms_identified"`
		Explanation      string   `json:"explanation"`
	}
	if err := decodeJSON(raw, &result); err != nil {
		return nil, err
	}
	if !result.NeedsExplanation {
		return nil, nil
	}
	return &Explanation{Terms: result.Terms, Explanation: result.Explanation}, nil
}
