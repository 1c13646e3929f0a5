package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/MARYCOMPLEX/food-agent/internal/domain"
	"github.com/MARYCOMPLEX/food-agent/internal/usecase/search"
)

const intentSystemPrompt = `你是一个美食搜索意图解析助手。将用户的自然语言需求解析为结构化的搜索意图。

解析规则：
- location: 城市或区域，必填。用户没有提到任何地点时无法搜索。
- food_type: 具体的食物类型（如"米线""火锅"）。没有提到时为"美食"。
- requirements: 用户的附加要求（如"便宜""不排队""老店"），没有则为空数组。
- exclude_keywords: 用户明确不要的内容，没有则为空数组。
- 当且仅当无法确定地点时，设置 need_clarify 为 true，并在 questions 中给出要问用户的问题（如"请问你在哪个城市？"）。

只输出 JSON，格式：
{"location": "昆明", "food_type": "米线", "requirements": [], "exclude_keywords": [], "need_clarify": false, "questions": []}

不要输出任何解释文字。`

// IntentParser implements the intent-parsing collaborator over chat
// completions.
type IntentParser struct {
	client *Client
}

// NewIntentParser creates the LLM-backed intent parser.
func NewIntentParser(client *Client) *IntentParser {
	return &IntentParser{client: client}
}

// Parse turns a user turn into a structured intent, or into clarify
// questions when the location is missing.
func (p *IntentParser) Parse(ctx context.Context, input string, conv *domain.ConversationContext) (search.ParseResult, error) {
	var b strings.Builder
	if conv != nil && len(conv.Messages) > 0 {
		b.WriteString("对话历史:\n")
		b.WriteString(conv.HistoryForLLM(3))
		b.WriteString("\n\n")
	}
	fmt.Fprintf(&b, "用户输入: %s", input)

	raw, err := p.client.chat(ctx, "intent_parser", intentSystemPrompt, b.String())
	if err != nil {
		return search.ParseResult{}, err
	}

	data, ok := extractJSON(raw)
	if !ok {
		return search.ParseResult{}, fmt.Errorf("no JSON in intent output")
	}

	var parsed struct {
		Location        string   `json:"location"`
		FoodType        string   `json:"food_type"`
		Requirements    []string `json:"requirements"`
		ExcludeKeywords []string `json:"exclude_keywords"`
		NeedClarify     bool     `json:"need_clarify"`
		Questions       []string `json:"questions"`
	}
	if err := json.Unmarshal(data, &parsed); err != nil {
		return search.ParseResult{}, fmt.Errorf("decode intent output: %w", err)
	}

	if parsed.NeedClarify || parsed.Location == "" {
		questions := parsed.Questions
		if len(questions) == 0 {
			questions = []string{"请问你想在哪个城市或区域找吃的？"}
		}
		return search.ParseResult{NeedClarify: true, Questions: questions}, nil
	}

	return search.ParseResult{
		Intent: &domain.SearchIntent{
			Location:        strings.TrimSpace(parsed.Location),
			FoodType:        strings.TrimSpace(parsed.FoodType),
			Requirements:    parsed.Requirements,
			ExcludeKeywords: parsed.ExcludeKeywords,
		},
	}, nil
}
