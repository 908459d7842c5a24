package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestParseSuggestionClampsGrade(t *testing.T) {
	suggestion, err := parseSuggestion(`{"feedback":" Solid work ","suggested_grade":140,"strengths":["structure"]}`, 100)
	require.NoError(t, err)
	require.Equal(t, "Solid work", suggestion.Feedback)
	require.NotNil(t, suggestion.SuggestedGrade)
	require.Equal(t, 100.0, *suggestion.SuggestedGrade)
	require.Equal(t, []string{"structure"}, suggestion.Strengths)

	suggestion, err = parseSuggestion(`{"feedback":"Needs work","suggested_grade":-3}`, 100)
	require.NoError(t, err)
	require.Equal(t, 0.0, *suggestion.SuggestedGrade)
}

func TestParseSuggestionRejectsEmptyFeedback(t *testing.T) {
	_, err := parseSuggestion(`{"feedback":"  "}`, 100)
	require.Error(t, err)

	_, err = parseSuggestion(`not json`, 100)
	require.Error(t, err)
}

func TestOpenAISuggesterCallsChatCompletions(t *testing.T) {
	var captured map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)
		require.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"id":     "chatcmpl-1",
			"object": "chat.completion",
			"model":  "gpt-4o-mini",
			"choices": []map[string]interface{}{{
				"index":         0,
				"finish_reason": "stop",
				"message": map[string]interface{}{
					"role":    "assistant",
					"content": `{"feedback":"Clear argument, cite more sources.","suggested_grade":42,"improvements":["citations"]}`,
				},
			}},
			"usage": map[string]int{"prompt_tokens": 10, "completion_tokens": 20, "total_tokens": 30},
		})
	}))
	defer server.Close()

	suggester, err := NewOpenAISuggester(OpenAIConfig{APIKey: "sk-test", BaseURL: server.URL, Logger: zerolog.Nop()})
	require.NoError(t, err)

	suggestion, err := suggester.Suggest(context.Background(), FeedbackInput{
		AssignmentTitle: "Essay",
		MaxPoints:       50,
		SubmissionText:  "The industrial revolution...",
	})
	require.NoError(t, err)
	require.Equal(t, "Clear argument, cite more sources.", suggestion.Feedback)
	require.Equal(t, 42.0, *suggestion.SuggestedGrade)
	require.Equal(t, "gpt-4o-mini", suggestion.Model)
	require.Equal(t, "gpt-4o-mini", captured["model"])
}

func TestNewOpenAISuggesterRequiresKey(t *testing.T) {
	_, err := NewOpenAISuggester(OpenAIConfig{})
	require.Error(t, err)
}
