package domain

// Comment is a raw comment attached to a source document. Likes and
// SubComments are zero when the source did not report them; the preprocessor
// may still recover a like count from inline markup in Text.
type Comment struct {
	Text        string `json:"text"`
	Likes       int    `json:"likes,omitempty"`
	SubComments int    `json:"sub_comments,omitempty"`
	User        string `json:"user,omitempty"`
}

// SourceDocument is one note from the content source. Identity is the
// external ID; documents are deduplicated by ID across all search phases
// within one run.
type SourceDocument struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	Desc          string    `json:"desc,omitempty"`
	Link          string    `json:"link,omitempty"`
	Likes         int       `json:"likes,omitempty"`
	CommentsCount int       `json:"comments_count,omitempty"`
	Tags          []string  `json:"tags,omitempty"`
	Comments      []Comment `json:"comments,omitempty"`
}

// CommentUnit is a normalized comment ready for tagging and scoring.
// The ID is stable within its document ("c0", "c1", ...). Engagement is the
// deterministic engagement coefficient computed by the preprocessor; it is
// never recomputed downstream.
type CommentUnit struct {
	ID          string  `json:"id"`
	Text        string  `json:"text"`
	Likes       int     `json:"likes"`
	SubComments int     `json:"sub_comments"`
	Engagement  float64 `json:"engagement"`
}
