package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kailas-cloud/cvgen/internal/domain"
	domresult "github.com/kailas-cloud/cvgen/internal/domain/result"
	"github.com/kailas-cloud/cvgen/internal/metrics"
)

const (
	explainPrompt = "Translate the following technical error into a human-readable explanation: %s"
	fixPrompt     = "Suggest a fix for the following error: %s"

	explainFallback = "Could not generate a human-readable error."
	fixFallback     = "Could not generate a fix prompt."
)

// Diagnostician explains probe failures using an OpenAI-compatible chat API.
type Diagnostician struct {
	client *openai.Client
	model  string
	logger *zap.Logger
}

// Config holds the chat provider settings.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Logger  *zap.Logger
}

// NewDiagnostician creates an OpenAI-compatible diagnostician.
func NewDiagnostician(cfg *Config) *Diagnostician {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Diagnostician{
		client: openai.NewClientWithConfig(clientCfg),
		model:  cfg.Model,
		logger: logger,
	}
}

// Diagnose asks for an explanation and a fix suggestion concurrently.
// Any API failure fails the whole diagnosis; an empty answer falls back to a fixed text.
func (d *Diagnostician) Diagnose(ctx context.Context, code string, raw domresult.Raw) (domresult.Diagnosis, error) {
	subject := code
	if raw.Error != "" {
		subject = fmt.Sprintf("%s (%s)", code, raw.Error)
	}

	start := time.Now()
	var diag domresult.Diagnosis

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		text, err := d.complete(gctx, fmt.Sprintf(explainPrompt, subject), explainFallback)
		diag.Explanation = text
		return err
	})
	g.Go(func() error {
		text, err := d.complete(gctx, fmt.Sprintf(fixPrompt, subject), fixFallback)
		diag.FixSuggestion = text
		return err
	})
	err := g.Wait()
	metrics.DiagnosisDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return domresult.Diagnosis{}, err
	}

	d.logger.Debug("Diagnosis completed",
		zap.String("error_code", code),
		zap.String("model", d.model),
		zap.Duration("duration", time.Since(start)),
	)
	return diag, nil
}

func (d *Diagnostician) complete(ctx context.Context, prompt, fallback string) (string, error) {
	resp, err := d.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: d.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", parseAPIError(err)
	}
	if len(resp.Choices) == 0 {
		return fallback, nil
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return fallback, nil
	}
	return text, nil
}

// HealthCheck verifies API availability via ListModels (free endpoint).
func (d *Diagnostician) HealthCheck(ctx context.Context) error {
	if _, err := d.client.ListModels(ctx); err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	return nil
}

// Unavailable is the diagnostician used when no API key is configured.
type Unavailable struct{}

// Diagnose always reports domain.ErrDiagnosisUnavailable.
func (Unavailable) Diagnose(context.Context, string, domresult.Raw) (domresult.Diagnosis, error) {
	return domresult.Diagnosis{}, fmt.Errorf("no AI provider configured: %w", domain.ErrDiagnosisUnavailable)
}

// parseAPIError extracts a human-readable error from the API response.
// All errors are wrapped with domain.ErrDiagnosisUnavailable.
func parseAPIError(err error) error {
	wrap := domain.ErrDiagnosisUnavailable

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		if detail := extractDetail(reqErr.Body); detail != "" {
			return fmt.Errorf("chat API error %d: %s: %w", reqErr.HTTPStatusCode, detail, wrap)
		}
		return fmt.Errorf("chat API error %d: %s: %w", reqErr.HTTPStatusCode, string(reqErr.Body), wrap)
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("chat API error %d: %s: %w", apiErr.HTTPStatusCode, apiErr.Message, wrap)
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("chat request: %w: %w", err, wrap)
	}
	return fmt.Errorf("chat request failed: %w", wrap)
}

// extractDetail extracts the "detail" field from a JSON error body.
func extractDetail(body []byte) string {
	var parsed struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(body, &parsed) == nil && parsed.Detail != "" {
		return parsed.Detail
	}
	return ""
}
