package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/MARYCOMPLEX/food-agent/internal/domain"
)

const taggerSystemPrompt = `你是一个评论语义分析助手。逐条分析美食笔记的评论，输出每条评论的语义标签。

对每条评论判断：
- identity: 评论者是否表现出本地人身份。"strong" = 明确自称本地人（如"本地人""土生土长""我家楼下""从小吃到大"），"medium" = 有本地生活迹象（如"住附近""常去""每周都来"），"none" = 无身份信号。
- sentiment: 对店铺的态度，"positive" / "negative" / "neutral"。
- is_correction: 评论是否在纠正笔记内容（如"其实不是""别被骗了""博主说错了"）。
- mentioned_shops: 评论中提到的店铺名列表，没有则为空数组。

只输出 JSON，格式：
{"tags": [{"id": "c0", "identity": "none", "sentiment": "neutral", "is_correction": false, "mentioned_shops": []}]}

不要输出任何解释文字。`

// Tagger implements the semantic-tagging collaborator over chat
// completions. Its raw output is untrusted; the tagging service repairs it.
type Tagger struct {
	client *Client
}

// NewTagger creates the LLM-backed tagger.
func NewTagger(client *Client) *Tagger {
	return &Tagger{client: client}
}

// Tag requests one semantic tag per comment unit.
func (t *Tagger) Tag(ctx context.Context, doc domain.SourceDocument, units []domain.CommentUnit) ([]domain.SemanticTag, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "笔记标题: %s\n", doc.Title)
	if doc.Desc != "" {
		fmt.Fprintf(&b, "笔记内容: %s\n", truncateRunes(doc.Desc, 500))
	}
	b.WriteString("\n评论列表:\n")
	for _, u := range units {
		fmt.Fprintf(&b, "[%s] %s\n", u.ID, truncateRunes(u.Text, 200))
	}

	raw, err := t.client.chat(ctx, "tagger", taggerSystemPrompt, b.String())
	if err != nil {
		return nil, err
	}

	data, ok := extractJSON(raw)
	if !ok {
		return nil, fmt.Errorf("no JSON in tagger output")
	}

	var parsed struct {
		Tags []struct {
			ID           string   `json:"id"`
			Identity     string   `json:"identity"`
			Sentiment    string   `json:"sentiment"`
			IsCorrection bool     `json:"is_correction"`
			Shops        []string `json:"mentioned_shops"`
		} `json:"tags"`
	}
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("decode tagger output: %w", err)
	}

	tags := make([]domain.SemanticTag, 0, len(parsed.Tags))
	for _, t := range parsed.Tags {
		tags = append(tags, domain.SemanticTag{
			UnitID:       t.ID,
			Identity:     domain.Identity(t.Identity),
			Sentiment:    domain.Sentiment(t.Sentiment),
			IsCorrection: t.IsCorrection,
			Shops:        t.Shops,
		})
	}
	return tags, nil
}
