package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/chainlens/pkg/models"
)

// TaskTriangleInsights is the name of the built-in narrative task
const TaskTriangleInsights = "triangle_insights"

const (
	defaultModel             = "gpt-4o-mini"
	maxPromptRecommendations = 5
)

// Analyzer produces the triangle analysis a task reasons about
type Analyzer interface {
	Analyze(ctx context.Context, tenantID string, windowDays int) (*models.TriangleAnalysis, error)
}

// Completer is the chat completion surface of the LLM client
type Completer interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// NewOpenAIClient builds the chat client, pointing at baseURL when set
func NewOpenAIClient(apiKey, baseURL string) *openai.Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return openai.NewClientWithConfig(cfg)
}

// InsightsTask turns a triangle analysis into a short action plan
type InsightsTask struct {
	analyzer    Analyzer
	completer   Completer
	model       string
	maxTokens   int
	temperature float32
}

// NewInsightsTask creates the triangle_insights task. Without a completer
// the task returns the plain-text summary that would have been sent as the prompt.
func NewInsightsTask(analyzer Analyzer, completer Completer, model string, cfg Config) *InsightsTask {
	if model == "" {
		model = defaultModel
	}
	return &InsightsTask{
		analyzer:    analyzer,
		completer:   completer,
		model:       model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
	}
}

// Name implements Task
func (t *InsightsTask) Name() string { return TaskTriangleInsights }

// Run implements Task
func (t *InsightsTask) Run(ctx context.Context, tenantID string) (string, error) {
	analysis, err := t.analyzer.Analyze(ctx, tenantID, 0)
	if err != nil {
		return "", fmt.Errorf("failed to analyze tenant: %w", err)
	}

	summary := Summarize(analysis)
	if t.completer == nil {
		return summary, nil
	}

	resp, err := t.completer.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: t.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: "You are a supply chain analyst. You balance service level, cost and working capital.",
			},
			{
				Role: openai.ChatMessageRoleUser,
				Content: fmt.Sprintf(`Here is the supply chain triangle analysis of a business.

%s
Write a short action plan of at most five numbered steps. Lead with the weakest dimension and name the trade-offs each step makes against the other two dimensions.`, summary),
			},
		},
		Temperature: t.temperature,
		MaxTokens:   t.maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("failed to generate insights: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("completion returned no choices")
	}

	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// Summarize renders an analysis as plain text
func Summarize(analysis *models.TriangleAnalysis) string {
	var b strings.Builder

	s := analysis.Scores
	fmt.Fprintf(&b, "Overall score: %.1f\n", s.Overall)
	fmt.Fprintf(&b, "Service: %.1f, Cost: %.1f, Capital: %.1f\n", s.Service, s.Cost, s.Capital)

	m := analysis.Metrics
	fmt.Fprintf(&b, "Fill rate %.1f%%, stockout risk %.1f%%, on-time delivery %.1f%%\n",
		m.Service.FillRate, m.Service.StockoutRisk, m.Service.OnTimeDelivery)
	fmt.Fprintf(&b, "Gross margin %.1f%%, margin trend %.1f, price variance %.1f%%\n",
		m.Cost.GrossMargin, m.Cost.MarginTrend, m.Cost.PriceVariance)
	fmt.Fprintf(&b, "Inventory turnover %.2f, cash conversion cycle %.1f days, working capital ratio %.2f\n",
		m.Capital.InventoryTurnover, m.Capital.CashConversionCycle, m.Capital.WorkingCapitalRatio)

	if len(analysis.Recommendations) > 0 {
		b.WriteString("Recommendations:\n")
		for i, rec := range analysis.Recommendations {
			if i == maxPromptRecommendations {
				break
			}
			fmt.Fprintf(&b, "%d. [%s] %s: %s\n", rec.PriorityRank, rec.Dimension, rec.Title, rec.Description)
		}
	}

	return b.String()
}
