package xhs

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/MARYCOMPLEX/food-agent/internal/domain"
)

// noteDTO mirrors the sidecar's note shape. Counters arrive as numbers or
// as display strings like "1.2万", so they decode through flexCount.
type noteDTO struct {
	ID       string       `json:"id"`
	Title    string       `json:"title"`
	Desc     string       `json:"desc"`
	FullDesc string       `json:"full_desc,omitempty"`
	Link     string       `json:"link,omitempty"`
	Tags     []string     `json:"tags,omitempty"`
	Stats    statsDTO     `json:"stats"`
	Comments []commentDTO `json:"comments,omitempty"`
}

type statsDTO struct {
	Likes    flexCount `json:"likes"`
	Comments flexCount `json:"comments"`
}

type commentDTO struct {
	Text        string    `json:"text"`
	Likes       flexCount `json:"likes"`
	SubComments flexCount `json:"sub_comments"`
	User        string    `json:"user,omitempty"`
}

func (n noteDTO) toDomain() domain.SourceDocument {
	desc := n.FullDesc
	if desc == "" {
		desc = n.Desc
	}
	doc := domain.SourceDocument{
		ID:            n.ID,
		Title:         n.Title,
		Desc:          desc,
		Link:          n.Link,
		Likes:         int(n.Stats.Likes),
		CommentsCount: int(n.Stats.Comments),
		Tags:          n.Tags,
	}
	for _, c := range n.Comments {
		doc.Comments = append(doc.Comments, domain.Comment{
			Text:        c.Text,
			Likes:       int(c.Likes),
			SubComments: int(c.SubComments),
			User:        c.User,
		})
	}
	return doc
}

// flexCount decodes an engagement counter that may be a JSON number, a
// numeric string, or a display string ("1.2万"). Unparseable values
// decode to zero.
type flexCount int

func (f *flexCount) UnmarshalJSON(data []byte) error {
	var n int
	if err := json.Unmarshal(data, &n); err == nil {
		*f = flexCount(n)
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		*f = 0
		return nil
	}
	*f = flexCount(parseCount(s))
	return nil
}

func parseCount(s string) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}

	scale := 1.0
	switch {
	case strings.HasSuffix(s, "万"):
		scale = 10000
		s = strings.TrimSuffix(s, "万")
	case strings.HasSuffix(s, "w"), strings.HasSuffix(s, "W"):
		scale = 10000
		s = s[:len(s)-1]
	case strings.HasSuffix(s, "k"), strings.HasSuffix(s, "K"):
		scale = 1000
		s = s[:len(s)-1]
	}

	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return int(v * scale)
}
