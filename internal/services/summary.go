package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/voltbase/scooterdex-backend/internal/clients/openai"
	"github.com/voltbase/scooterdex-backend/internal/logger"
	"github.com/voltbase/scooterdex-backend/internal/repos"
	"github.com/voltbase/scooterdex-backend/internal/types"
)

const summarySystemPrompt = `You summarize e-scooter repair shop listings for a public directory. ` +
	`Write exactly one paragraph of at most 75 words. State whether e-scooter repair capability is ` +
	`confirmed, probable, or absent based only on the provided evidence. Name which of the three ` +
	`service tiers are evidenced: basic (tires, brakes, tubes), electrical (batteries, motors, ` +
	`controllers), advanced (diagnostics, firmware, custom builds). Do not advise calling ahead. ` +
	`Do not add any other commentary.`

const (
	summaryResponseCap = 160
	maxReviewExcerpts  = 12
	maxReviewChars     = 280
	maxQnAExcerpts     = 5
)

type StoreSummaryResult struct {
	Summary string
	Usage   openai.Usage
}

type SummaryGenerator interface {
	Summarize(ctx context.Context, store *types.Store) (*StoreSummaryResult, error)
}

type SummaryGeneratorConfig struct {
	MaxAttempts int
	// Cooldown between attempts; sized to the provider's rate-limit window
	// so a limited call waits the window out instead of burning attempts.
	RetryDelay time.Duration
}

func (c *SummaryGeneratorConfig) applyDefaults() {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 65 * time.Second
	}
}

type summaryGenerator struct {
	log     *logger.Logger
	ai      openai.Client
	limiter *RateLimiter
	callLog repos.AICallLogRepo
	cfg     SummaryGeneratorConfig
}

func NewSummaryGenerator(baseLog *logger.Logger, ai openai.Client, limiter *RateLimiter, callLog repos.AICallLogRepo, cfg SummaryGeneratorConfig) SummaryGenerator {
	cfg.applyDefaults()
	return &summaryGenerator{
		log:     baseLog.With("service", "SummaryGenerator"),
		ai:      ai,
		limiter: limiter,
		callLog: callLog,
		cfg:     cfg,
	}
}

func (g *summaryGenerator) Summarize(ctx context.Context, store *types.Store) (*StoreSummaryResult, error) {
	if store == nil {
		return nil, Terminal(fmt.Errorf("store required"))
	}

	userPrompt := RenderStoreText(store)
	estimated := (len(summarySystemPrompt)+len(userPrompt))/4 + summaryResponseCap
	if err := g.limiter.Reserve(ctx, estimated); err != nil {
		return nil, err
	}

	var result *StoreSummaryResult
	err := ExecuteWithRetry(ctx, g.log, "summarize "+store.PlaceID, g.cfg.MaxAttempts, FixedDelay{Interval: g.cfg.RetryDelay}, func(ctx context.Context) error {
		completion, callErr := g.ai.Complete(ctx, summarySystemPrompt, userPrompt, summaryResponseCap)
		if callErr != nil {
			if !openai.IsRetryable(callErr) {
				return Terminal(callErr)
			}
			return callErr
		}
		if completion.Text == "" {
			return Terminal(fmt.Errorf("summarization returned empty text"))
		}
		if completion.Usage.TotalTokens <= 0 {
			return Terminal(fmt.Errorf("summarization returned no token usage"))
		}
		result = &StoreSummaryResult{Summary: completion.Text, Usage: completion.Usage}
		return nil
	})

	g.recordCall(ctx, store.PlaceID, result, err)
	if err != nil {
		return nil, err
	}
	g.log.Debug("Store summarized",
		"place_id", store.PlaceID,
		"total_tokens", result.Usage.TotalTokens,
	)
	return result, nil
}

func (g *summaryGenerator) recordCall(ctx context.Context, placeID string, result *StoreSummaryResult, callErr error) {
	if g.callLog == nil {
		return
	}
	row := &types.AICallLog{
		PlaceID: placeID,
		Model:   g.ai.Model(),
		Success: callErr == nil,
	}
	if callErr != nil {
		row.Error = callErr.Error()
	}
	if result != nil {
		if usage, err := json.Marshal(result.Usage); err == nil {
			row.Usage = usage
		}
	}
	if err := g.callLog.Create(ctx, nil, row); err != nil {
		g.log.Warn("AI call log write failed", "place_id", placeID, "error", err)
	}
}

// RenderStoreText flattens a store row into the natural-language evidence
// blob the summarizer reads: identity, categories, description, the most
// recent reviews, and any Q&A, all bounded.
func RenderStoreText(store *types.Store) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Business: %s\n", store.Name)
	if store.CategoryName != "" {
		fmt.Fprintf(&b, "Primary category: %s\n", store.CategoryName)
	}
	if cats := decodeStrings(store.Categories); len(cats) > 0 {
		fmt.Fprintf(&b, "Categories: %s\n", strings.Join(cats, ", "))
	}
	if store.Description != "" {
		fmt.Fprintf(&b, "Description: %s\n", store.Description)
	}
	fmt.Fprintf(&b, "Rating: %s from %d reviews\n", formatScore(store.TotalScore), store.ReviewsCount)

	reviews := decodeReviews(store.Reviews)
	sort.SliceStable(reviews, func(i, j int) bool {
		return reviews[i].PublishedAt.After(reviews[j].PublishedAt)
	})
	if len(reviews) > maxReviewExcerpts {
		reviews = reviews[:maxReviewExcerpts]
	}
	if len(reviews) > 0 {
		b.WriteString("Recent reviews:\n")
		for _, rv := range reviews {
			text := rv.Text
			if len(text) > maxReviewChars {
				text = text[:maxReviewChars]
			}
			fmt.Fprintf(&b, "- %s\n", text)
		}
	}

	qna := decodeQnA(store.QuestionsAndAnswers)
	if len(qna) > maxQnAExcerpts {
		qna = qna[:maxQnAExcerpts]
	}
	if len(qna) > 0 {
		b.WriteString("Questions and answers:\n")
		for _, qa := range qna {
			fmt.Fprintf(&b, "- Q: %s A: %s\n", qa.Question, qa.Answer)
		}
	}
	return b.String()
}

type reviewExcerpt struct {
	Text        string    `json:"text"`
	PublishedAt time.Time `json:"publishedAtDate"`
}

type qnaExcerpt struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

func decodeStrings(raw []byte) []string {
	if len(raw) == 0 {
		return nil
	}
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}

func decodeReviews(raw []byte) []reviewExcerpt {
	if len(raw) == 0 {
		return nil
	}
	var out []reviewExcerpt
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	filtered := out[:0]
	for _, rv := range out {
		if strings.TrimSpace(rv.Text) != "" {
			filtered = append(filtered, rv)
		}
	}
	return filtered
}

func decodeQnA(raw []byte) []qnaExcerpt {
	if len(raw) == 0 {
		return nil
	}
	var out []qnaExcerpt
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}

func formatScore(score *float64) string {
	if score == nil {
		return "unrated"
	}
	return fmt.Sprintf("%.1f", *score)
}
