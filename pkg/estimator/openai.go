// Package estimator wraps the vision model behind the CalorieEstimator
// boundary: N photo URLs plus an optional description in, a structured
// estimate with confidence out.
package estimator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/gofrolist/calorie-track-ai-bot/pkg/config"
	"github.com/gofrolist/calorie-track-ai-bot/pkg/models"
)

const (
	// MaxPhotos is the platform's per-message image policy.
	MaxPhotos = 5

	// lowConfidenceThreshold marks estimates the user should double-check.
	lowConfidenceThreshold = 0.2
)

const systemPrompt = `You are a nutrition analysis assistant. Estimate the calories and
macronutrients of the meal shown in the photo(s). Respond with a single JSON object:
{"kcal_mean": number, "kcal_min": number, "kcal_max": number,
 "confidence": number between 0 and 1,
 "items": [{"label": string, "portion": string, "kcal": number}],
 "macronutrients": {"protein": grams, "carbs": grams, "fats": grams}}
kcal_min <= kcal_mean <= kcal_max must hold. No prose, JSON only.`

// completionClient is the slice of the OpenAI client the adapter uses.
type completionClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// OpenAIEstimator estimates meals with a vision-capable OpenAI model.
type OpenAIEstimator struct {
	client completionClient
	model  string
	logger *slog.Logger
}

// NewOpenAIEstimator creates an estimator for the configured model.
func NewOpenAIEstimator(cfg config.OpenAIConfig) *OpenAIEstimator {
	return &OpenAIEstimator{
		client: openai.NewClient(cfg.APIKey),
		model:  cfg.Model,
		logger: slog.Default().With("component", "estimator"),
	}
}

// NewOpenAIEstimatorWithClient wires a pre-built client (tests).
func NewOpenAIEstimatorWithClient(client completionClient, model string) *OpenAIEstimator {
	return &OpenAIEstimator{
		client: client,
		model:  model,
		logger: slog.Default().With("component", "estimator"),
	}
}

// modelEstimate is the JSON shape requested from the model.
type modelEstimate struct {
	KcalMean   float64 `json:"kcal_mean"`
	KcalMin    float64 `json:"kcal_min"`
	KcalMax    float64 `json:"kcal_max"`
	Confidence float64 `json:"confidence"`
	Items      []struct {
		Label   string  `json:"label"`
		Portion string  `json:"portion"`
		Kcal    float64 `json:"kcal"`
	} `json:"items"`
	Macronutrients struct {
		Protein float64 `json:"protein"`
		Carbs   float64 `json:"carbs"`
		Fats    float64 `json:"fats"`
	} `json:"macronutrients"`
}

// EstimateFromPhotos sends one vision call covering all photos and parses the
// structured response. Malformed model output is retried once, then fails
// with model_error; deadline hits fail with timeout; rate limits with
// quota_exhausted.
func (e *OpenAIEstimator) EstimateFromPhotos(ctx context.Context, urls []string, description string) (*models.EstimateResult, error) {
	if len(urls) < 1 || len(urls) > MaxPhotos {
		return nil, NewReasonError(config.FailureInvalidInput,
			fmt.Errorf("photo count must be 1..%d, got %d", MaxPhotos, len(urls)))
	}

	req := e.buildRequest(urls, description)
	start := time.Now()

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		resp, err := e.client.CreateChatCompletion(ctx, req)
		if err != nil {
			return nil, classifyCallError(err)
		}
		if len(resp.Choices) == 0 {
			lastErr = errors.New("model returned no choices")
			continue
		}

		result, err := parseEstimate(resp.Choices[0].Message.Content)
		if err != nil {
			lastErr = err
			e.logger.Warn("Model returned malformed estimate, retrying once",
				"attempt", attempt+1, "error", err)
			continue
		}

		result.ModelLatencyMs = time.Since(start).Milliseconds()
		if result.Confidence < lowConfidenceThreshold {
			result.LowConfidence = true
		}
		return result, nil
	}

	return nil, NewReasonError(config.FailureModelError,
		fmt.Errorf("model output unusable after retry: %w", lastErr))
}

func (e *OpenAIEstimator) buildRequest(urls []string, description string) openai.ChatCompletionRequest {
	parts := make([]openai.ChatMessagePart, 0, len(urls)+1)
	for _, url := range urls {
		parts = append(parts, openai.ChatMessagePart{
			Type: openai.ChatMessagePartTypeImageURL,
			ImageURL: &openai.ChatMessageImageURL{
				URL:    url,
				Detail: openai.ImageURLDetailAuto,
			},
		})
	}

	text := "Estimate the calories of this meal."
	if len(urls) > 1 {
		text = fmt.Sprintf("These %d photos show one meal from different angles. Estimate it as a single meal.", len(urls))
	}
	if description != "" {
		text += " The user describes it as: " + description
	}
	parts = append(parts, openai.ChatMessagePart{
		Type: openai.ChatMessagePartTypeText,
		Text: text,
	})

	return openai.ChatCompletionRequest{
		Model: e.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, MultiContent: parts},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	}
}

// parseEstimate decodes and validates one model reply.
func parseEstimate(content string) (*models.EstimateResult, error) {
	content = strings.TrimSpace(content)
	// Some models wrap JSON in a code fence despite the response format.
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")

	var raw modelEstimate
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		return nil, fmt.Errorf("decoding model JSON: %w", err)
	}

	result := &models.EstimateResult{
		CaloriesMean: raw.KcalMean,
		CaloriesMin:  raw.KcalMin,
		CaloriesMax:  raw.KcalMax,
		Confidence:   raw.Confidence,
		Macronutrients: models.Macronutrients{
			ProteinG: raw.Macronutrients.Protein,
			CarbsG:   raw.Macronutrients.Carbs,
			FatsG:    raw.Macronutrients.Fats,
		},
	}
	for _, item := range raw.Items {
		result.Items = append(result.Items, models.FoodItem{
			Label:   item.Label,
			Portion: item.Portion,
			Kcal:    item.Kcal,
		})
	}

	if err := result.Validate(); err != nil {
		return nil, fmt.Errorf("model estimate violates invariants: %w", err)
	}
	return result, nil
}

// classifyCallError maps transport-level failures onto the failure taxonomy.
func classifyCallError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return NewReasonError(config.FailureTimeout, err)
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode == http.StatusTooManyRequests {
		return NewReasonError(config.FailureQuotaExhausted, err)
	}
	return NewReasonError(config.FailureModelError, err)
}
