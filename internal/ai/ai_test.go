package ai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/camuig/rf-history/internal/analyzer"
	"github.com/camuig/rf-history/internal/config"
	"github.com/camuig/rf-history/internal/logger"
)

func TestStripThinkTags(t *testing.T) {
	assert.Equal(t, "answer", StripThinkTags("<think>\nhmm\n</think>\nanswer"))
}

func TestParseReview(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  Review
	}{
		{
			name:  "plain json",
			input: `{"risk_level":"high","comment":"Риск высокий","recommendations":["Снизить лот"]}`,
			want:  Review{RiskLevel: "high", Comment: "Риск высокий", Recommendations: []string{"Снизить лот"}},
		},
		{
			name:  "fenced with reasoning",
			input: "<think>...</think>\n```json\n{\"risk_level\":\"low\",\"comment\":\"ok\"}\n```",
			want:  Review{RiskLevel: "low", Comment: "ok"},
		},
		{
			name:  "embedded in prose",
			input: `Вот ответ: {"risk_level":"medium","comment":"так себе"} спасибо`,
			want:  Review{RiskLevel: "medium", Comment: "так себе"},
		},
		{
			name:  "free text",
			input: "Просто текст без JSON",
			want:  Review{Comment: "Просто текст без JSON"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseReview(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, *got)
		})
	}

	_, err := ParseReview("<think>only thoughts</think>")
	assert.Error(t, err)
}

func sampleRequest() *ReviewRequest {
	return &ReviewRequest{
		Summary: analyzer.Summary{
			Window:     analyzer.Window{Kind: analyzer.WindowWeek},
			Start:      time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC),
			Finish:     time.Date(2024, 3, 17, 0, 0, 0, 0, time.UTC),
			Balance:    analyzer.Defined(1010),
			Profit:     10,
			OrderCount: 4,
			GridCount:  2,
			WinRate:    analyzer.Defined(0.75),
		},
		Grids: []analyzer.Grid{{
			ID: 4, Side: analyzer.SideSell, OpenTime: time.Date(2024, 3, 11, 10, 0, 0, 0, time.UTC),
			OrderCount: 3, Qty: 0.5, Drawdown: 12.5, DrawdownRatio: analyzer.Defined(0.0125),
		}},
		Params: analyzer.DefaultParams(),
	}
}

func TestBuildReviewPrompt(t *testing.T) {
	prompt := BuildReviewPrompt(sampleRequest())

	assert.Contains(t, prompt, "## Период: week")
	assert.Contains(t, prompt, "С 2024-03-11 по 2024-03-17")
	assert.Contains(t, prompt, "Баланс: 1010.00")
	assert.Contains(t, prompt, "win rate: 75.00%")
	assert.Contains(t, prompt, "ROI: н/д")
	assert.Contains(t, prompt, "| 2024-03-11 10:00 | sell | 3 | 0.50 | 12.50 | 1.25% | н/д |")
	assert.Contains(t, prompt, "Шаг: 180 пунктов")
}

func TestAdvisorComment(t *testing.T) {
	var got struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"{\"risk_level\":\"high\",\"comment\":\"Слишком большой лот\"}"},"finish_reason":"stop"}]}`)
	}))
	defer srv.Close()

	cfg := &config.Config{AI: config.AIConfig{APIKey: "secret", BaseURL: srv.URL, Model: "test-model", TimeoutSeconds: 5}}
	advisor := NewAdvisor(cfg, logger.Discard())

	review, err := advisor.Comment(context.Background(), sampleRequest())
	require.NoError(t, err)
	assert.Equal(t, "high", review.RiskLevel)
	assert.Equal(t, "Слишком большой лот", review.Comment)

	assert.Equal(t, "test-model", got.Model)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Contains(t, got.Messages[1].Content, "## Сводка")
}
