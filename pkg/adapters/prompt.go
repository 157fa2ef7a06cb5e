package adapters

import "strings"

// Prompt is an immutable prompt input: either a single text or an ordered
// sequence of conversation turns. Adapters never mutate a Prompt.
type Prompt struct {
	text  string
	turns []string
	list  bool
}

// Text builds a single-string prompt.
func Text(s string) Prompt {
	return Prompt{text: s}
}

// Turns builds a list-style prompt from ordered conversation turns.
func Turns(turns ...string) Prompt {
	copied := append([]string(nil), turns...)
	return Prompt{turns: copied, list: true}
}

// IsList reports whether the prompt is a sequence of turns.
func (p Prompt) IsList() bool { return p.list }

// List returns the conversation turns. A single-text prompt yields one turn.
func (p Prompt) List() []string {
	if !p.list {
		return []string{p.text}
	}
	return append([]string(nil), p.turns...)
}

// String flattens the prompt into one text block, joining turns with blank lines.
func (p Prompt) String() string {
	if !p.list {
		return p.text
	}
	return strings.Join(p.turns, "\n\n")
}
