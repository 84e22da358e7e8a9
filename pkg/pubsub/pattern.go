package pubsub

import "strings"

// Topic pattern syntax:
//
//	.  literal hierarchy separator
//	*  exactly one non-empty, separator-free segment
//	#  one or more characters of any kind, possibly spanning separators
//
// Every other character matches itself and a pattern always matches the whole
// topic, never a prefix. Substitution is character-level, so wildcards may
// appear mid-literal: "orders.v*" matches "orders.v2".
const (
	separator        = '.'
	segmentWildcard  = '*'
	spanningWildcard = '#'
)

type tokenKind uint8

const (
	literalToken tokenKind = iota
	segmentToken           // *
	spanToken              // #
)

type token struct {
	kind tokenKind
	lit  string
}

// Pattern is a compiled topic pattern. Matching is implemented with an
// explicit tokenizer and backtracking walk instead of translating to a
// regular expression, so characters that are special to regexp syntax carry
// no hidden meaning here.
type Pattern struct {
	raw    string
	tokens []token
}

// Compile parses a topic pattern. It fails with a *PatternError on an empty
// pattern; any subscribe call propagates that error immediately, so a broken
// pattern never lingers until publish time.
//
// Matching backtracks per wildcard, so patterns stacking many consecutive `#`
// tokens can match in exponential time. Patterns are expected to come from
// the application, not from untrusted input.
func Compile(pattern string) (*Pattern, error) {
	if pattern == "" {
		return nil, &PatternError{Pattern: pattern, Err: ErrEmptyPattern}
	}

	var tokens []token
	lit := strings.Builder{}
	flush := func() {
		if lit.Len() > 0 {
			tokens = append(tokens, token{kind: literalToken, lit: lit.String()})
			lit.Reset()
		}
	}

	for i := 0; i < len(pattern); i++ {
		switch pattern[i] {
		case segmentWildcard:
			flush()
			tokens = append(tokens, token{kind: segmentToken})
		case spanningWildcard:
			flush()
			tokens = append(tokens, token{kind: spanToken})
		default:
			lit.WriteByte(pattern[i])
		}
	}
	flush()

	return &Pattern{raw: pattern, tokens: tokens}, nil
}

// MustCompile is Compile that panics on failure, for patterns known at
// compile time.
func MustCompile(pattern string) *Pattern {
	p, err := Compile(pattern)
	if err != nil {
		panic(err)
	}
	return p
}

// String returns the original pattern text.
func (p *Pattern) String() string {
	return p.raw
}

// Match reports whether topic satisfies the pattern in its entirety.
func (p *Pattern) Match(topic string) bool {
	return matchTokens(p.tokens, topic)
}

// matchTokens walks the token list against the topic with backtracking: each
// wildcard tries the shortest acceptable consumption first and extends it
// until the rest of the pattern fits or the topic is exhausted.
func matchTokens(tokens []token, topic string) bool {
	if len(tokens) == 0 {
		return topic == ""
	}

	switch tk := tokens[0]; tk.kind {
	case literalToken:
		if !strings.HasPrefix(topic, tk.lit) {
			return false
		}
		return matchTokens(tokens[1:], topic[len(tk.lit):])

	case segmentToken:
		// At least one character, none of them a separator.
		for i := 0; i < len(topic) && topic[i] != separator; i++ {
			if matchTokens(tokens[1:], topic[i+1:]) {
				return true
			}
		}
		return false

	default: // spanToken
		// At least one character of any kind.
		for i := 1; i <= len(topic); i++ {
			if matchTokens(tokens[1:], topic[i:]) {
				return true
			}
		}
		return false
	}
}
