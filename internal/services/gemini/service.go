package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"google.golang.org/genai"

	"voxbox/internal/services"
)

const (
	defaultModel              = "gemini-2.0-flash"
	defaultTimeout            = 120 * time.Second
	defaultMaxTranscriptChars = 120000
	defaultRetryAttempts      = 3
	defaultRetryBaseDelay     = 2 * time.Second
	defaultRetryMaxDelay      = 30 * time.Second
)

// Config captures the runtime settings required to talk to Gemini.
type Config struct {
	APIKey             string
	Model              string
	Timeout            time.Duration
	MaxTranscriptChars int
}

// GenerateFunc produces raw model output for a prompt. The default
// implementation calls the Gemini API; tests inject their own.
type GenerateFunc func(ctx context.Context, model, prompt string) (string, error)

// Service analyzes video transcripts into structured note material.
type Service struct {
	cfg      Config
	generate GenerateFunc

	retryMaxAttempts int
	retryBaseDelay   time.Duration
	retryMaxDelay    time.Duration
	sleeper          func(time.Duration)
}

// Option customizes the service.
type Option func(*Service)

// WithGenerateFunc overrides how prompts are sent to the model.
func WithGenerateFunc(fn GenerateFunc) Option {
	return func(s *Service) {
		if fn != nil {
			s.generate = fn
		}
	}
}

// WithRetryMaxAttempts overrides the default attempt count.
func WithRetryMaxAttempts(attempts int) Option {
	return func(s *Service) {
		s.retryMaxAttempts = attempts
	}
}

// WithRetryBackoff overrides the retry backoff delays.
func WithRetryBackoff(baseDelay, maxDelay time.Duration) Option {
	return func(s *Service) {
		s.retryBaseDelay = baseDelay
		s.retryMaxDelay = maxDelay
	}
}

// WithSleeper overrides how retry sleeps are performed (useful for tests).
func WithSleeper(sleeper func(time.Duration)) Option {
	return func(s *Service) {
		s.sleeper = sleeper
	}
}

// NewService constructs a Gemini analysis service.
func NewService(cfg Config, opts ...Option) *Service {
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxTranscriptChars <= 0 {
		cfg.MaxTranscriptChars = defaultMaxTranscriptChars
	}
	svc := &Service{
		cfg:              cfg,
		retryMaxAttempts: defaultRetryAttempts,
		retryBaseDelay:   defaultRetryBaseDelay,
		retryMaxDelay:    defaultRetryMaxDelay,
	}
	svc.generate = svc.generateContent
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// VideoInfo describes the video being analyzed. It seeds the prompt so the
// model can ground its summary in the source metadata.
type VideoInfo struct {
	Title           string
	Channel         string
	DurationSeconds int
}

// TagSuggestion is one tag proposed by the model.
type TagSuggestion struct {
	Name       string `json:"name"`
	Confidence int    `json:"confidence"`
	Primary    bool   `json:"primary"`
}

// Analysis is the structured payload decoded from the model response.
type Analysis struct {
	Title        string          `json:"title"`
	Summary      string          `json:"summary"`
	KeyTakeaways []string        `json:"key_takeaways"`
	Topics       []string        `json:"topics"`
	Tags         []TagSuggestion `json:"tags"`
}

// TagNames returns the suggested tag names in response order.
func (a *Analysis) TagNames() []string {
	if a == nil {
		return nil
	}
	names := make([]string, 0, len(a.Tags))
	for _, tag := range a.Tags {
		if name := strings.TrimSpace(tag.Name); name != "" {
			names = append(names, name)
		}
	}
	return names
}

// Analyze sends the transcript to the model and decodes the structured
// response. Rate-limit and malformed-payload failures are retried with
// exponential backoff; the final error is tagged for the summarize stage.
func (s *Service) Analyze(ctx context.Context, info VideoInfo, transcript string, availableTags []string) (*Analysis, error) {
	transcript = strings.TrimSpace(transcript)
	if transcript == "" {
		return nil, services.Wrap(services.ErrSummarization, "summarizing", "analyze", "transcript required", nil)
	}
	if strings.TrimSpace(s.cfg.APIKey) == "" {
		return nil, services.Wrap(services.ErrSummarization, "summarizing", "analyze", "api key required", nil)
	}

	prompt := s.buildPrompt(info, transcript, availableTags)
	attempts := s.retryAttempts()
	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
		raw, err := s.generate(callCtx, s.cfg.Model, prompt)
		cancel()
		if err == nil {
			analysis, decodeErr := decodeAnalysis(raw)
			if decodeErr == nil {
				return analysis, nil
			}
			err = decodeErr
		}

		lastErr = err
		delay, retry := s.retryDelay(ctx, err, attempt, attempts)
		if !retry {
			break
		}
		if sleepErr := s.sleep(ctx, delay); sleepErr != nil {
			lastErr = sleepErr
			break
		}
	}

	return nil, services.Wrap(services.ErrSummarization, "summarizing", "analyze",
		fmt.Sprintf("failed after %d attempts", attempts), lastErr)
}

// HealthCheck issues a minimal request to verify the API key and model.
func (s *Service) HealthCheck(ctx context.Context) error {
	if strings.TrimSpace(s.cfg.APIKey) == "" {
		return errors.New("gemini health: api key required")
	}
	callCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()
	raw, err := s.generate(callCtx, s.cfg.Model, `Respond with JSON only: {"ok":true}`)
	if err != nil {
		return fmt.Errorf("gemini health: %w", err)
	}
	var parsed struct {
		OK bool `json:"ok"`
	}
	if err := DecodeModelJSON(raw, &parsed); err != nil {
		return fmt.Errorf("gemini health: parse payload: %w", err)
	}
	if !parsed.OK {
		return errors.New("gemini health: unexpected response")
	}
	return nil
}

func (s *Service) generateContent(ctx context.Context, model, prompt string) (string, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  s.cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return "", fmt.Errorf("gemini request: create client: %w", err)
	}
	result, err := client.Models.GenerateContent(ctx, model, genai.Text(prompt), nil)
	if err != nil {
		return "", fmt.Errorf("gemini request: generate content: %w", err)
	}
	if result == nil || len(result.Candidates) == 0 || result.Candidates[0].Content == nil {
		return "", errors.New("gemini request: empty response")
	}
	var text strings.Builder
	for _, part := range result.Candidates[0].Content.Parts {
		if part != nil && part.Text != "" {
			text.WriteString(part.Text)
		}
	}
	if text.Len() == 0 {
		return "", errors.New("gemini request: no text parts in response")
	}
	return text.String(), nil
}

func (s *Service) buildPrompt(info VideoInfo, transcript string, availableTags []string) string {
	excerpt := truncateAtRune(transcript, s.cfg.MaxTranscriptChars)
	title := strings.TrimSpace(info.Title)
	if title == "" {
		title = "Unknown"
	}
	channel := strings.TrimSpace(info.Channel)
	if channel == "" {
		channel = "Unknown"
	}
	var b strings.Builder
	b.WriteString("Analyze this video transcript and provide a structured summary.\n\n")
	b.WriteString("VIDEO INFORMATION:\n")
	fmt.Fprintf(&b, "- Title: %s\n", title)
	fmt.Fprintf(&b, "- Channel: %s\n", channel)
	fmt.Fprintf(&b, "- Duration: %s\n\n", formatDuration(info.DurationSeconds))
	b.WriteString("TRANSCRIPT:\n")
	b.WriteString(excerpt)
	b.WriteString("\n\n---\n\n")
	b.WriteString("Return a JSON response with:\n\n")
	b.WriteString(`1. "title": A clean, descriptive title for the note (use the video title as base, clean up clickbait if present, max 60 chars)` + "\n\n")
	b.WriteString(`2. "summary": A 2-3 paragraph summary of the main content. Be specific about what is discussed. Write in clear, engaging prose.` + "\n\n")
	b.WriteString(`3. "key_takeaways": An array of 3-5 key points or insights from the video. Each should be actionable or memorable.` + "\n\n")
	fmt.Fprintf(&b, `4. "tags": Select 2-3 most appropriate tags from this list: [%s]`+"\n", strings.Join(availableTags, ", "))
	b.WriteString(`   Return as array with confidence scores: [{"name": "tag_name", "confidence": 0-100, "primary": true/false}]` + "\n")
	b.WriteString("   Mark ONE tag as primary (highest confidence). If no tag fits well, use \"uncategorized\".\n\n")
	b.WriteString(`5. "topics": An array of 3-5 specific topics or themes discussed (these can be new, not from the tag list)` + "\n\n")
	b.WriteString("Return ONLY valid JSON, no other text.")
	return b.String()
}

func decodeAnalysis(raw string) (*Analysis, error) {
	var analysis Analysis
	if err := DecodeModelJSON(raw, &analysis); err != nil {
		return nil, fmt.Errorf("decode analysis: %w", err)
	}
	analysis.Title = strings.TrimSpace(analysis.Title)
	analysis.Summary = strings.TrimSpace(analysis.Summary)
	if analysis.Summary == "" {
		return nil, errors.New("decode analysis: missing summary")
	}
	if len(analysis.KeyTakeaways) == 0 {
		return nil, errors.New("decode analysis: missing key takeaways")
	}
	if len(analysis.Tags) == 0 {
		analysis.Tags = []TagSuggestion{{Name: "uncategorized", Confidence: 100, Primary: true}}
	}
	hasPrimary := false
	for _, tag := range analysis.Tags {
		if tag.Primary {
			hasPrimary = true
			break
		}
	}
	if !hasPrimary {
		analysis.Tags[0].Primary = true
	}
	return &analysis, nil
}

func (s *Service) retryAttempts() int {
	if s.retryMaxAttempts <= 0 {
		return 1
	}
	return s.retryMaxAttempts
}

func (s *Service) retryDelay(ctx context.Context, err error, attempt, maxAttempts int) (time.Duration, bool) {
	if attempt >= maxAttempts || err == nil {
		return 0, false
	}
	if ctx.Err() != nil {
		return 0, false
	}
	if errors.Is(err, context.Canceled) {
		return 0, false
	}
	return s.backoffDelay(attempt), true
}

func (s *Service) backoffDelay(attempt int) time.Duration {
	base := s.retryBaseDelay
	if base <= 0 {
		return 0
	}
	maxDelay := s.retryMaxDelay
	if maxDelay <= 0 {
		maxDelay = defaultRetryMaxDelay
	}
	// attempt 1 -> base, attempt 2 -> base*2, attempt 3 -> base*4, ...
	delay := base
	for i := 1; i < attempt; i++ {
		if delay > maxDelay/2 {
			return maxDelay
		}
		delay *= 2
	}
	if delay > maxDelay {
		return maxDelay
	}
	return delay
}

func (s *Service) sleep(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if s.sleeper != nil {
		s.sleeper(delay)
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// DecodeModelJSON decodes JSON from a model response, handling common
// formatting quirks such as markdown code fences and surrounding prose.
func DecodeModelJSON(content string, target any) error {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return errors.New("empty payload")
	}
	directErr := json.Unmarshal([]byte(trimmed), target)
	if directErr == nil {
		return nil
	}
	sanitized := sanitizeJSONPayload(trimmed)
	if sanitized == "" || sanitized == trimmed {
		return directErr
	}
	if err := json.Unmarshal([]byte(sanitized), target); err != nil {
		return err
	}
	return nil
}

func sanitizeJSONPayload(content string) string {
	trimmed := strings.TrimSpace(stripCodeFence(content))
	if trimmed == "" {
		return ""
	}
	if trimmed[0] == '{' || trimmed[0] == '[' {
		return trimmed
	}
	if start := strings.Index(trimmed, "{"); start >= 0 {
		if end := strings.LastIndex(trimmed, "}"); end > start {
			return strings.TrimSpace(trimmed[start : end+1])
		}
	}
	return trimmed
}

func stripCodeFence(content string) string {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	body := trimmed[3:]
	body = strings.TrimLeft(body, " \t\r\n")
	if len(body) >= 4 && strings.EqualFold(body[:4], "json") {
		body = strings.TrimLeft(body[4:], " \t\r\n")
	}
	if idx := strings.LastIndex(body, "```"); idx >= 0 {
		body = body[:idx]
	}
	return strings.TrimSpace(body)
}

// truncateAtRune caps s at limit bytes without splitting a UTF-8 sequence.
func truncateAtRune(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	for limit > 0 && !utf8.RuneStart(s[limit]) {
		limit--
	}
	return s[:limit]
}

func formatDuration(seconds int) string {
	if seconds <= 0 {
		return "Unknown"
	}
	hours := seconds / 3600
	minutes := (seconds % 3600) / 60
	secs := seconds % 60
	switch {
	case hours > 0:
		return fmt.Sprintf("%dh %dm", hours, minutes)
	case minutes > 0:
		return fmt.Sprintf("%dm %ds", minutes, secs)
	default:
		return fmt.Sprintf("%ds", secs)
	}
}
