package rating

import (
	"context"
	"fmt"
	"math"
	"unicode/utf8"

	"filing_rating/pkg/core/llm"
	"filing_rating/pkg/core/prompt"
	"filing_rating/pkg/core/utils"
	"filing_rating/pkg/models"

	"github.com/rs/zerolog"
)

// AgentNarrative is the agent name routed in config/models.yaml.
const AgentNarrative = "narrative_rater"

// DefaultMaxNarrativeChars bounds each section sent to the model.
const DefaultMaxNarrativeChars = 60000

// NarrativeRater produces a 1-5 rating from risk factors and MD&A text.
type NarrativeRater interface {
	Rate(ctx context.Context, riskText, mdaText string) (models.NarrativeRating, error)
}

// StaticRater returns a fixed rating. Used offline and in tests.
type StaticRater struct {
	Rating    int
	Rationale string
}

func (s StaticRater) Rate(ctx context.Context, riskText, mdaText string) (models.NarrativeRating, error) {
	if err := validateRating(float64(s.Rating)); err != nil {
		return models.NarrativeRating{}, err
	}
	return models.NarrativeRating{Rating: s.Rating, Rationale: s.Rationale}, nil
}

// PromptExecutor runs a prompt against the routed provider. agent.Manager
// satisfies it.
type PromptExecutor interface {
	ExecutePrompt(ctx context.Context, agentType string, prompt string, systemPrompt string, options map[string]interface{}) (string, error)
}

// LLMRater rates narrative sections with a chat model.
type LLMRater struct {
	executor PromptExecutor
	prompts  *prompt.Registry
	maxChars int
	logger   zerolog.Logger
}

// NewLLMRater builds a rater. A nil registry uses the built-in prompts and a
// non-positive maxChars uses DefaultMaxNarrativeChars.
func NewLLMRater(executor PromptExecutor, prompts *prompt.Registry, maxChars int, logger zerolog.Logger) *LLMRater {
	if prompts == nil {
		prompts = prompt.NewDefaultRegistry()
	}
	if maxChars <= 0 {
		maxChars = DefaultMaxNarrativeChars
	}
	return &LLMRater{
		executor: executor,
		prompts:  prompts,
		maxChars: maxChars,
		logger:   logger,
	}
}

type narrativeReply struct {
	Rating    float64 `json:"rating"`
	Rationale string  `json:"rationale"`
}

func (r *LLMRater) Rate(ctx context.Context, riskText, mdaText string) (models.NarrativeRating, error) {
	pt, err := r.prompts.GetPrompt(prompt.PromptIDs.RatingNarrative)
	if err != nil {
		return models.NarrativeRating{}, err
	}

	pctx := prompt.NewContext().
		Set("RiskText", truncateText(riskText, r.maxChars)).
		Set("MDAText", truncateText(mdaText, r.maxChars))
	userPrompt, err := prompt.RenderUserPrompt(pt, pctx)
	if err != nil {
		return models.NarrativeRating{}, err
	}

	raw, err := r.executor.ExecutePrompt(ctx, AgentNarrative, userPrompt, pt.SystemPrompt, map[string]interface{}{
		llm.OptionJSONMode:    true,
		llm.OptionTemperature: 0.0,
	})
	if err != nil {
		return models.NarrativeRating{}, fmt.Errorf("narrative rating request failed: %w", err)
	}

	var reply narrativeReply
	if _, err := utils.SmartParse(raw, &reply); err != nil {
		r.logger.Warn().Str("reply", preview(raw)).Msg("Unparseable narrative rating reply")
		return models.NarrativeRating{}, fmt.Errorf("%w: %v", models.ErrMalformedRating, err)
	}
	if err := validateRating(reply.Rating); err != nil {
		return models.NarrativeRating{}, err
	}

	return models.NarrativeRating{
		Rating:    int(reply.Rating),
		Rationale: utils.CleanMarkdown(reply.Rationale),
	}, nil
}

func validateRating(v float64) error {
	if v != math.Trunc(v) || v < 1 || v > 5 {
		return fmt.Errorf("%w: rating %v outside 1..5", models.ErrMalformedRating, v)
	}
	return nil
}

// truncateText cuts s to at most max bytes without splitting a rune.
func truncateText(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

func preview(s string) string {
	return truncateText(s, 200)
}
