package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/MARYCOMPLEX/food-agent/internal/domain"
)

const analyzerSystemPrompt = `你是一个美食内容分析助手。分析一篇美食笔记及其评论，提取其中提到的店铺，并判断每家店是本地人认可的老店还是营销推广的网红店。

判断依据：
- 本地人评论（"本地人""从小吃到大""我家楼下"）是强信号。
- 评论纠正笔记内容（"其实一般""别被骗了"）时以评论为准。
- 大量强调排队、拍照、打卡的内容是网红店信号。

score 取值: "definitely_local" / "likely_local" / "unknown" / "likely_wanghong" / "definitely_wanghong"。

只输出 JSON，格式：
{"restaurants": [{"name": "店名", "location": "位置", "features": ["特色"], "wanghong_analysis": {"score": "likely_local", "confidence": 0.8, "reasons": ["多条本地人好评"], "indicators": {"has_local_mentions": true}}}]}

不要输出任何解释文字。`

// Analyzer is the degraded single-pass analysis path: one free-text LLM
// call over the whole document, used when unit tagging is unavailable.
type Analyzer struct {
	client *Client
}

// NewAnalyzer creates the LLM-backed single-pass analyzer.
func NewAnalyzer(client *Client) *Analyzer {
	return &Analyzer{client: client}
}

// Analyze extracts shop recommendations from a whole document.
func (a *Analyzer) Analyze(ctx context.Context, doc domain.SourceDocument, intent domain.SearchIntent) ([]*domain.Restaurant, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "笔记标题: %s\n", doc.Title)
	fmt.Fprintf(&b, "笔记内容: %s\n", truncateRunes(doc.Desc, 2000))
	b.WriteString("\n评论:\n")
	for i, c := range doc.Comments {
		if i >= 20 {
			break
		}
		fmt.Fprintf(&b, "- %s\n", truncateRunes(c.Text, 200))
	}
	if len(intent.ExcludeKeywords) > 0 {
		fmt.Fprintf(&b, "\n用户排除: %s\n", strings.Join(intent.ExcludeKeywords, ", "))
	}

	raw, err := a.client.chat(ctx, "analyzer", analyzerSystemPrompt, b.String())
	if err != nil {
		return nil, err
	}

	data, ok := extractJSON(raw)
	if !ok {
		return nil, fmt.Errorf("no JSON in analyzer output")
	}

	var parsed struct {
		Restaurants []struct {
			Name     string   `json:"name"`
			Location string   `json:"location"`
			Features []string `json:"features"`
			Wanghong struct {
				Score      string   `json:"score"`
				Confidence float64  `json:"confidence"`
				Reasons    []string `json:"reasons"`
				Indicators struct {
					HasLocalMentions bool `json:"has_local_mentions"`
				} `json:"indicators"`
			} `json:"wanghong_analysis"`
		} `json:"restaurants"`
	}
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("decode analyzer output: %w", err)
	}

	out := make([]*domain.Restaurant, 0, len(parsed.Restaurants))
	for _, r := range parsed.Restaurants {
		class := domain.ParseClassification(r.Wanghong.Score)
		confidence := r.Wanghong.Confidence
		if confidence == 0 {
			confidence = 0.5
		}
		verdict := &domain.Verdict{
			Class:         class,
			Confidence:    confidence,
			Reasons:       r.Wanghong.Reasons,
			LocalMentions: r.Wanghong.Indicators.HasLocalMentions,
		}

		rec := &domain.Restaurant{
			Name:        r.Name,
			Location:    r.Location,
			Features:    r.Features,
			SourceDocs:  []string{doc.ID},
			Confidence:  confidence,
			Verdict:     verdict,
			Recommended: !class.Wanghong(),
		}
		if rec.Location == "" {
			rec.Location = intent.Location
		}
		if !rec.Recommended {
			reasons := verdict.Reasons
			if len(reasons) > 2 {
				reasons = reasons[:2]
			}
			rec.FilterReason = "判定为网红店: " + strings.Join(reasons, ", ")
		}
		out = append(out, rec)
	}
	return out, nil
}
