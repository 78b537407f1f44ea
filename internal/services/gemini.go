package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"studybuddy-backend/internal/logger"
	"studybuddy-backend/internal/models"
)

// Gateway is the only way the core talks to the AI provider.
type Gateway interface {
	Analyze(ctx context.Context, content string) (*models.AIAnalysisResult, error)
	// SynthesizeSpeech returns base64 encoded 16-bit PCM.
	SynthesizeSpeech(ctx context.Context, text string) (string, error)
}

// contentGenerator is the slice of *genai.GenerativeModel the gateway uses.
type contentGenerator interface {
	GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

type speechSynthesizer interface {
	Synthesize(ctx context.Context, text string) (string, error)
}

type GatewayConfig struct {
	APIKey         string
	AnalysisModel  string
	SpeechModel    string
	Voice          string
	ConcurrentReqs int
	AnalyzeTimeout time.Duration
	SpeechTimeout  time.Duration
}

type GeminiGateway struct {
	client         *genai.Client
	model          contentGenerator
	speech         speechSynthesizer
	rateChan       chan struct{} // Token bucket
	analyzeTimeout time.Duration
	speechTimeout  time.Duration
	log            *logger.Logger
}

func NewGeminiGateway(cfg GatewayConfig, log *logger.Logger) (*GeminiGateway, error) {
	ctx := context.Background()
	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	model := client.GenerativeModel(cfg.AnalysisModel)
	model.SetTemperature(0.3)
	model.ResponseMIMEType = "application/json"
	model.ResponseSchema = analysisSchema()

	speech, err := NewSpeechClient(cfg.APIKey, cfg.SpeechModel, cfg.Voice)
	if err != nil {
		client.Close()
		return nil, err
	}

	g := newGateway(model, speech, cfg.ConcurrentReqs, cfg.AnalyzeTimeout, cfg.SpeechTimeout, log)
	g.client = client
	return g, nil
}

func newGateway(model contentGenerator, speech speechSynthesizer, concurrentReqs int, analyzeTimeout, speechTimeout time.Duration, log *logger.Logger) *GeminiGateway {
	rateChan := make(chan struct{}, concurrentReqs)
	for i := 0; i < concurrentReqs; i++ {
		rateChan <- struct{}{}
	}
	return &GeminiGateway{
		model:          model,
		speech:         speech,
		rateChan:       rateChan,
		analyzeTimeout: analyzeTimeout,
		speechTimeout:  speechTimeout,
		log:            log,
	}
}

func (g *GeminiGateway) Close() {
	if g.client != nil {
		g.client.Close()
	}
}

func (g *GeminiGateway) acquireRate(ctx context.Context) error {
	select {
	case <-g.rateChan:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (g *GeminiGateway) releaseRate() {
	g.rateChan <- struct{}{}
}

// withTimeout runs fn under a deadline and reports expiry as TimeoutError
// when the caller's own context is still alive.
func withTimeout[T any](ctx context.Context, g *GeminiGateway, op string, after time.Duration, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	tctx := ctx
	cancel := func() {}
	if after > 0 {
		tctx, cancel = context.WithTimeout(ctx, after)
	}
	defer cancel()

	if err := g.acquireRate(tctx); err != nil {
		if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
			return zero, &TimeoutError{Op: op, After: after}
		}
		return zero, err
	}
	defer g.releaseRate()

	out, err := fn(tctx)
	if err != nil && ctx.Err() == nil && errors.Is(tctx.Err(), context.DeadlineExceeded) {
		return zero, &TimeoutError{Op: op, After: after}
	}
	return out, err
}

func (g *GeminiGateway) Analyze(ctx context.Context, content string) (*models.AIAnalysisResult, error) {
	return withTimeout(ctx, g, "analyze", g.analyzeTimeout, func(ctx context.Context) (*models.AIAnalysisResult, error) {
		resp, err := g.model.GenerateContent(ctx, genai.Text(buildAnalysisPrompt(content)))
		if err != nil {
			if ctx.Err() != nil {
				return nil, err
			}
			return nil, &AIRequestError{Message: err.Error(), Err: err}
		}

		for i, cand := range resp.Candidates {
			if cand.FinishReason != genai.FinishReasonStop && cand.FinishReason != genai.FinishReasonUnspecified {
				g.log.Warn("gemini analysis stopped early", "candidate", i, "finish_reason", cand.FinishReason.String())
			}
		}

		return decodeAnalysis(extractText(resp))
	})
}

func (g *GeminiGateway) SynthesizeSpeech(ctx context.Context, text string) (string, error) {
	return withTimeout(ctx, g, "synthesize speech", g.speechTimeout, func(ctx context.Context) (string, error) {
		return g.speech.Synthesize(ctx, text)
	})
}

func buildAnalysisPrompt(content string) string {
	return fmt.Sprintf(`Analyze the following study material and provide a structured JSON response.
Content: %q

The response must follow this schema:
{
  "summary": "Bullet points highlighting exam-oriented facts",
  "simpleExplanation": "Beginner-friendly explanation in simple English",
  "questions": "Generate short, long, and conceptual questions",
  "score": 0-100 (Speech Quality Score based on clarity, simplicity, readability),
  "feedback": "Why the score was given",
  "keywords": ["list", "of", "important", "keywords"],
  "difficulty": "Easy" | "Medium" | "Hard",
  "readingTime": "Estimated time like '5 mins'"
}`, content)
}

var analysisFields = []string{
	"summary", "simpleExplanation", "questions", "score",
	"feedback", "keywords", "difficulty", "readingTime",
}

func analysisSchema() *genai.Schema {
	text := func() *genai.Schema { return &genai.Schema{Type: genai.TypeString} }
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"summary":           text(),
			"simpleExplanation": text(),
			"questions":         text(),
			"score":             {Type: genai.TypeNumber},
			"feedback":          text(),
			"keywords":          {Type: genai.TypeArray, Items: text()},
			"difficulty": {
				Type:   genai.TypeString,
				Format: "enum",
				Enum:   []string{"Easy", "Medium", "Hard"},
			},
			"readingTime": text(),
		},
		Required: analysisFields,
	}
}

func extractText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	var text strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content != nil {
			for _, part := range cand.Content.Parts {
				if t, ok := part.(genai.Text); ok {
					text.WriteString(string(t))
				}
			}
		}
	}
	return text.String()
}

func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// analysisWire uses pointers so a missing key and a zero value differ.
type analysisWire struct {
	Summary           *string   `json:"summary"`
	SimpleExplanation *string   `json:"simpleExplanation"`
	Questions         *string   `json:"questions"`
	Score             *float64  `json:"score"`
	Feedback          *string   `json:"feedback"`
	Keywords          *[]string `json:"keywords"`
	Difficulty        *string   `json:"difficulty"`
	ReadingTime       *string   `json:"readingTime"`
}

// decodeAnalysis fails closed: every field must be present and well formed.
func decodeAnalysis(raw string) (*models.AIAnalysisResult, error) {
	body := stripCodeFence(raw)
	if body == "" {
		return nil, &AIRequestError{Message: "AI returned an empty response"}
	}

	var w analysisWire
	if err := json.Unmarshal([]byte(body), &w); err != nil {
		return nil, &AIRequestError{Message: "AI returned malformed JSON", Err: err}
	}

	var missing []string
	text := func(name string, v *string) string {
		if v == nil || strings.TrimSpace(*v) == "" {
			missing = append(missing, name)
			return ""
		}
		return *v
	}

	res := &models.AIAnalysisResult{
		Summary:           text("summary", w.Summary),
		SimpleExplanation: text("simpleExplanation", w.SimpleExplanation),
		Questions:         text("questions", w.Questions),
		Feedback:          text("feedback", w.Feedback),
		ReadingTime:       text("readingTime", w.ReadingTime),
	}
	if w.Score == nil {
		missing = append(missing, "score")
	}
	if w.Keywords == nil {
		missing = append(missing, "keywords")
	}
	if w.Difficulty == nil {
		missing = append(missing, "difficulty")
	}
	if len(missing) > 0 {
		return nil, &AIRequestError{Message: "AI response is missing required fields: " + strings.Join(missing, ", ")}
	}

	if math.IsNaN(*w.Score) || *w.Score < 0 || *w.Score > 100 {
		return nil, &AIRequestError{Message: fmt.Sprintf("AI response has score %v outside 0-100", *w.Score)}
	}
	res.Score = int(math.Round(*w.Score))

	d := models.Difficulty(strings.TrimSpace(*w.Difficulty))
	if !d.Valid() {
		return nil, &AIRequestError{Message: fmt.Sprintf("AI response has unknown difficulty %q", *w.Difficulty)}
	}
	res.Difficulty = d

	res.Keywords = make([]string, 0, len(*w.Keywords))
	for i, k := range *w.Keywords {
		k = strings.TrimSpace(k)
		if k == "" {
			return nil, &AIRequestError{Message: fmt.Sprintf("AI response has an empty keyword at position %d", i)}
		}
		res.Keywords = append(res.Keywords, k)
	}

	return res, nil
}
