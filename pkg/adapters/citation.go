package adapters

import (
	"strconv"
	"strings"
)

// Citation is a uniform provenance record across heterogeneous provider
// citation formats. Only Provider is always set; every other field may be
// absent depending on what the provider returned.
type Citation struct {
	Provider   string
	URL        string
	Title      string
	Source     string
	Snippet    string
	CitationID string
	StartIndex *int
	EndIndex   *int
	// Raw carries the verbatim provider-specific citation payload, kept as an
	// opaque passthrough for diagnostics.
	Raw map[string]any
}

// Key composes the identifying fields into a dedup key. Two citations from one
// response with the same key are the same citation.
func (c Citation) Key() string {
	parts := []string{
		c.Provider,
		c.URL,
		c.Title,
		c.Source,
		c.Snippet,
		c.CitationID,
		indexPart(c.StartIndex),
		indexPart(c.EndIndex),
	}
	return strings.Join(parts, "\x1f")
}

func indexPart(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}

// Map flattens the citation into a plain mapping for return to callers.
// Absent optional fields are omitted.
func (c Citation) Map() map[string]any {
	out := map[string]any{"provider": c.Provider}
	if c.URL != "" {
		out["url"] = c.URL
	}
	if c.Title != "" {
		out["title"] = c.Title
	}
	if c.Source != "" {
		out["source"] = c.Source
	}
	if c.Snippet != "" {
		out["snippet"] = c.Snippet
	}
	if c.CitationID != "" {
		out["citation_id"] = c.CitationID
	}
	if c.StartIndex != nil {
		out["start_index"] = *c.StartIndex
	}
	if c.EndIndex != nil {
		out["end_index"] = *c.EndIndex
	}
	if c.Raw != nil {
		out["raw"] = c.Raw
	}
	return out
}

// CitationSet accumulates citations in discovery order, dropping duplicates by
// Key. Scope is one extraction pass over one response.
type CitationSet struct {
	seen map[string]struct{}
	list []Citation
}

func NewCitationSet() *CitationSet {
	return &CitationSet{seen: make(map[string]struct{})}
}

// Add appends the citation unless its key was already seen.
func (s *CitationSet) Add(c Citation) bool {
	key := c.Key()
	if _, dup := s.seen[key]; dup {
		return false
	}
	s.seen[key] = struct{}{}
	s.list = append(s.list, c)
	return true
}

// Merge adds every citation from items, preserving the set's dedup discipline.
func (s *CitationSet) Merge(items []Citation) {
	for _, c := range items {
		s.Add(c)
	}
}

// List returns the accumulated citations in insertion order.
func (s *CitationSet) List() []Citation {
	return append([]Citation(nil), s.list...)
}

// IntPtr is a convenience for optional index fields parsed from provider JSON.
func IntPtr(v int) *int { return &v }

// FloatIndex converts a JSON number to an optional index field.
func FloatIndex(v any) *int {
	switch n := v.(type) {
	case float64:
		i := int(n)
		return &i
	case int:
		i := n
		return &i
	}
	return nil
}
