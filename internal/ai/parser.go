package ai

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"
)

var thinkTagRegex = regexp.MustCompile(`(?s)<think>.*?</think>`)

// StripThinkTags removes DeepSeek R1 reasoning tags from the response.
func StripThinkTags(text string) string {
	return strings.TrimSpace(thinkTagRegex.ReplaceAllString(text, ""))
}

// ParseReview parses the model answer. It accepts a bare JSON object, one
// wrapped in markdown code fences or embedded in prose; anything else is kept
// as a free-form comment.
func ParseReview(text string) (*Review, error) {
	cleaned := StripThinkTags(text)

	// Remove markdown code fences
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	if cleaned == "" {
		return nil, errors.New("empty AI response")
	}

	var review Review
	if err := json.Unmarshal([]byte(cleaned), &review); err == nil && review.Comment != "" {
		return &review, nil
	}

	start := strings.Index(cleaned, "{")
	end := strings.LastIndex(cleaned, "}")
	if start >= 0 && end > start {
		review = Review{}
		if err := json.Unmarshal([]byte(cleaned[start:end+1]), &review); err == nil && review.Comment != "" {
			return &review, nil
		}
	}

	return &Review{Comment: cleaned}, nil
}
