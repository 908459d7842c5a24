package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const maxSubmissionChars = 12000

var (
	suggestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "edunexa",
		Subsystem: "ai",
		Name:      "feedback_duration_seconds",
		Help:      "Duration of AI feedback suggestion requests",
	}, []string{"model"})

	suggestFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "edunexa",
		Subsystem: "ai",
		Name:      "feedback_failures_total",
		Help:      "Number of failed AI feedback suggestion requests",
	}, []string{"model"})
)

// OpenAIConfig defines configuration options for the OpenAI suggester.
type OpenAIConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature float32
	Logger      zerolog.Logger
}

// OpenAISuggester implements FeedbackSuggester against the chat completion API.
type OpenAISuggester struct {
	client *openai.Client
	cfg    OpenAIConfig
	tracer trace.Tracer
	logger zerolog.Logger
}

// NewOpenAISuggester builds a suggester using the provided configuration.
func NewOpenAISuggester(cfg OpenAIConfig) (*OpenAISuggester, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 600
	}

	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}

	return &OpenAISuggester{
		client: openai.NewClientWithConfig(config),
		cfg:    cfg,
		tracer: otel.Tracer("github.com/noah-isme/edunexa-api/pkg/ai/openai"),
		logger: cfg.Logger.With().Str("component", "openai_suggester").Logger(),
	}, nil
}

// Suggest asks the model for a feedback draft and parses its JSON answer.
func (s *OpenAISuggester) Suggest(parent context.Context, input FeedbackInput) (FeedbackSuggestion, error) {
	ctx, span := s.tracer.Start(parent, "openai.suggest_feedback", trace.WithAttributes(
		attribute.String("model", s.cfg.Model),
	))
	defer span.End()

	start := time.Now()
	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       s.cfg.Model,
		MaxTokens:   s.cfg.MaxTokens,
		Temperature: s.cfg.Temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt()},
			{Role: openai.ChatMessageRoleUser, Content: buildUserPrompt(input)},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
	})
	suggestDuration.WithLabelValues(s.cfg.Model).Observe(time.Since(start).Seconds())
	if err != nil {
		return FeedbackSuggestion{}, s.fail(span, fmt.Errorf("openai suggest: %w", err))
	}
	if len(resp.Choices) == 0 {
		return FeedbackSuggestion{}, s.fail(span, fmt.Errorf("no choices returned from openai"))
	}

	suggestion, err := parseSuggestion(strings.TrimSpace(resp.Choices[0].Message.Content), input.MaxPoints)
	if err != nil {
		return FeedbackSuggestion{}, s.fail(span, err)
	}
	suggestion.Model = s.cfg.Model

	s.logger.Debug().Int("total_tokens", resp.Usage.TotalTokens).Msg("feedback suggestion generated")
	return suggestion, nil
}

func (s *OpenAISuggester) fail(span trace.Span, err error) error {
	suggestFailures.WithLabelValues(s.cfg.Model).Inc()
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

func systemPrompt() string {
	return "You help teachers grade coursework. Respond with a JSON object containing feedback (string, addressed to the student), " +
		"suggested_grade (number, optional), strengths (array of strings) and improvements (array of strings). Be specific and kind."
}

func buildUserPrompt(input FeedbackInput) string {
	builder := strings.Builder{}
	builder.WriteString("# Assignment\n")
	builder.WriteString(input.AssignmentTitle)
	if input.Instructions != "" {
		builder.WriteString("\n\n## Instructions\n")
		builder.WriteString(input.Instructions)
	}
	builder.WriteString(fmt.Sprintf("\n\n## Maximum points\n%g", input.MaxPoints))
	if input.Grade != nil {
		builder.WriteString(fmt.Sprintf("\n\n## Current grade\n%g", *input.Grade))
	}
	builder.WriteString("\n\n## Submission\n")
	text := strings.TrimSpace(input.SubmissionText)
	if len(text) > maxSubmissionChars {
		text = text[:maxSubmissionChars]
	}
	if text == "" {
		text = "(no text content)"
	}
	builder.WriteString(text)
	if input.FileName != "" {
		builder.WriteString("\n\n## Attached file\n")
		builder.WriteString(input.FileName)
	}
	builder.WriteString("\nReturn JSON.")
	return builder.String()
}

func parseSuggestion(content string, maxPoints float64) (FeedbackSuggestion, error) {
	var data FeedbackSuggestion
	if err := json.Unmarshal([]byte(content), &data); err != nil {
		return FeedbackSuggestion{}, fmt.Errorf("parse suggestion json: %w", err)
	}
	data.Feedback = strings.TrimSpace(data.Feedback)
	if data.Feedback == "" {
		return FeedbackSuggestion{}, fmt.Errorf("suggestion has no feedback")
	}

	if data.SuggestedGrade != nil {
		grade := *data.SuggestedGrade
		if grade < 0 {
			grade = 0
		}
		if maxPoints > 0 && grade > maxPoints {
			grade = maxPoints
		}
		data.SuggestedGrade = &grade
	}

	return data, nil
}
