package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/MARYCOMPLEX/food-agent/internal/domain"
)

const interpreterSystemPrompt = `你是一个多轮对话意图判断助手。用户已经拿到一批店铺推荐，现在又说了一句话。判断这句话是对已有结果的哪种操作。

可选 action：
- "exclude": 排除某家店，target 为店名
- "category_filter": 按菜系筛选，target 为菜系关键词
- "location_filter": 按区域筛选，target 为区域关键词
- "expand": 想要更多店铺
- "detail": 询问某家店的详情，target 为店名
- "confirm": 让你从结果中选一家
- "new_search": 与已有结果无关，是一次全新的搜索需求

只输出 JSON，格式：
{"action": "detail", "target": "老面馆"}

不要输出任何解释文字。`

var followUpActions = map[string]domain.FollowUpType{
	"exclude":         domain.FollowUpExclude,
	"category_filter": domain.FollowUpCategory,
	"location_filter": domain.FollowUpLocation,
	"expand":          domain.FollowUpExpand,
	"detail":          domain.FollowUpDetail,
	"confirm":         domain.FollowUpConfirm,
	"new_search":      domain.FollowUpNewSearch,
}

// Interpreter implements the semantic follow-up fallback over chat
// completions, used only when no classification rule matches.
type Interpreter struct {
	client *Client
}

// NewInterpreter creates the LLM-backed follow-up interpreter.
func NewInterpreter(client *Client) *Interpreter {
	return &Interpreter{client: client}
}

// Interpret maps an ambiguous turn onto a follow-up action.
func (i *Interpreter) Interpret(ctx context.Context, input string, conv *domain.ConversationContext) (domain.FollowUp, error) {
	var b strings.Builder
	if conv != nil {
		if shops := conv.WorkingShops(); len(shops) > 0 {
			b.WriteString("当前推荐的店铺:\n")
			for _, shop := range shops {
				fmt.Fprintf(&b, "- %s\n", shop.Name)
			}
			b.WriteString("\n")
		}
		if len(conv.Messages) > 0 {
			b.WriteString("对话历史:\n")
			b.WriteString(conv.HistoryForLLM(3))
			b.WriteString("\n\n")
		}
	}
	fmt.Fprintf(&b, "用户输入: %s", input)

	raw, err := i.client.chat(ctx, "interpreter", interpreterSystemPrompt, b.String())
	if err != nil {
		return domain.FollowUp{}, err
	}

	data, ok := extractJSON(raw)
	if !ok {
		return domain.FollowUp{}, fmt.Errorf("no JSON in interpreter output")
	}

	var parsed struct {
		Action string `json:"action"`
		Target string `json:"target"`
	}
	if err := json.Unmarshal(data, &parsed); err != nil {
		return domain.FollowUp{}, fmt.Errorf("decode interpreter output: %w", err)
	}

	action, ok := followUpActions[parsed.Action]
	if !ok {
		action = domain.FollowUpNewSearch
	}
	return domain.FollowUp{Type: action, Target: strings.TrimSpace(parsed.Target)}, nil
}
