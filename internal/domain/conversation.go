package domain

import "strings"

// Message is one entry of the per-session dialogue log.
type Message struct {
	Role    string `json:"role"` // "user" or "assistant"
	Content string `json:"content"`
}

// ConversationContext is the per-session working state owned by the search
// orchestrator. Shops is the superset of every recommendation the session
// has seen; Working scopes it to the names currently in view. Category and
// location filters narrow Working from the superset (so a later turn can
// pivot back), while expand merges strictly-new shops into both. Excluded
// names stay excluded across expands.
type ConversationContext struct {
	Messages   []Message       `json:"messages,omitempty"`
	LastIntent *SearchIntent   `json:"last_intent,omitempty"`
	Shops      map[string]*Restaurant `json:"shops,omitempty"` // keyed by normalized name
	Order      []string        `json:"order,omitempty"`        // insertion order of Shops keys
	Working    []string        `json:"working,omitempty"`      // normalized names in scope
	Excluded   []string        `json:"excluded,omitempty"`
	TurnCount  int             `json:"turn_count"`
	SeenDocs   map[string]bool `json:"seen_docs,omitempty"`
}

// NewConversationContext returns an empty context ready for the first turn.
func NewConversationContext() *ConversationContext {
	return &ConversationContext{
		Shops:    make(map[string]*Restaurant),
		SeenDocs: make(map[string]bool),
	}
}

// AddUserMessage appends a user turn to the dialogue log.
func (c *ConversationContext) AddUserMessage(content string) {
	c.Messages = append(c.Messages, Message{Role: "user", Content: content})
}

// AddAssistantMessage appends an assistant reply to the dialogue log.
func (c *ConversationContext) AddAssistantMessage(content string) {
	c.Messages = append(c.Messages, Message{Role: "assistant", Content: content})
}

// HistoryForLLM renders the most recent turns as plain text for collaborator
// prompts. Long messages are truncated to keep the prompt bounded.
func (c *ConversationContext) HistoryForLLM(maxTurns int) string {
	msgs := c.Messages
	if limit := maxTurns * 2; len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	var b strings.Builder
	for i, m := range msgs {
		if i > 0 {
			b.WriteByte('\n')
		}
		content := m.Content
		if len(content) > 200 {
			content = content[:200] + "..."
		}
		b.WriteString(m.Role + ": " + content)
	}
	return b.String()
}

// AddShops merges recommendations into the superset and brings new names
// into the working set. Existing entries are replaced, not duplicated.
func (c *ConversationContext) AddShops(recs []*Restaurant) {
	for _, r := range recs {
		key := r.Key()
		if key == "" {
			continue
		}
		if _, ok := c.Shops[key]; !ok {
			c.Order = append(c.Order, key)
			c.Working = append(c.Working, key)
		}
		c.Shops[key] = r
	}
}

// SetWorking replaces the in-scope name set, preserving superset membership.
func (c *ConversationContext) SetWorking(keys []string) {
	c.Working = append(c.Working[:0], keys...)
}

// WorkingShops returns the in-scope recommendations in working order.
func (c *ConversationContext) WorkingShops() []*Restaurant {
	out := make([]*Restaurant, 0, len(c.Working))
	for _, key := range c.Working {
		if r, ok := c.Shops[key]; ok {
			out = append(out, r)
		}
	}
	return out
}

// AllShops returns the full superset in insertion order.
func (c *ConversationContext) AllShops() []*Restaurant {
	out := make([]*Restaurant, 0, len(c.Order))
	for _, key := range c.Order {
		if r, ok := c.Shops[key]; ok {
			out = append(out, r)
		}
	}
	return out
}

// ShopByName finds a shop by exact normalized match first, then by
// substring in either direction.
func (c *ConversationContext) ShopByName(name string) *Restaurant {
	key := NormalizeShopName(name)
	if r, ok := c.Shops[key]; ok {
		return r
	}
	for _, k := range c.Order {
		if strings.Contains(k, key) || strings.Contains(key, k) {
			return c.Shops[k]
		}
	}
	return nil
}

// ExcludeShop records a name as excluded for the rest of the session.
func (c *ConversationContext) ExcludeShop(name string) {
	for _, ex := range c.Excluded {
		if NormalizeShopName(ex) == NormalizeShopName(name) {
			return
		}
	}
	c.Excluded = append(c.Excluded, name)
}

// IsExcluded matches a shop name against the accumulated exclusion list
// using substring containment in either direction, mirroring how users
// abbreviate shop names.
func (c *ConversationContext) IsExcluded(name string) bool {
	key := NormalizeShopName(name)
	for _, ex := range c.Excluded {
		exKey := NormalizeShopName(ex)
		if strings.Contains(key, exKey) || strings.Contains(exKey, key) {
			return true
		}
	}
	return false
}

// MarkSeen records a document id for cross-turn dedup (used by expand).
func (c *ConversationContext) MarkSeen(docID string) {
	if docID != "" {
		c.SeenDocs[docID] = true
	}
}

// Reset clears all state for an explicit "start over".
func (c *ConversationContext) Reset() {
	*c = *NewConversationContext()
}

// Restore re-initializes the maps after deserialization, where empty maps
// come back nil.
func (c *ConversationContext) Restore() {
	if c.Shops == nil {
		c.Shops = make(map[string]*Restaurant)
	}
	if c.SeenDocs == nil {
		c.SeenDocs = make(map[string]bool)
	}
}
