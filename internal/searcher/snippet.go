package searcher

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	// maxSnippetSentences caps the sentences kept in a snippet
	maxSnippetSentences = 2
	// fallbackSnippetRunes is the snippet length when no sentence matches
	fallbackSnippetRunes = 200
)

// sentencePattern matches a run of text up to and including its terminators,
// or the trailing unterminated remainder
var sentencePattern = regexp.MustCompile(`[^.!?]+[.!?]*`)

// queryTokens splits a query into lower-case tokens worth matching
func queryTokens(query string) []string {
	fields := strings.Fields(strings.ToLower(query))
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if utf8.RuneCountInString(f) >= 2 {
			tokens = append(tokens, f)
		}
	}
	return tokens
}

// ExtractSnippet returns up to two sentences of content that contain any of
// the tokens, joined and period-terminated. Without a match it returns the
// first 200 runes, with "..." appended when truncated.
//
// Search passes the tokens from queryTokens, which drops words shorter than
// two runes. A query made only of single-character words therefore never
// matches a sentence and always gets the prefix snippet.
func ExtractSnippet(content string, tokens []string) string {
	if len(tokens) > 0 {
		matched := make([]string, 0, maxSnippetSentences)
		for _, sentence := range sentencePattern.FindAllString(content, -1) {
			sentence = strings.TrimSpace(sentence)
			if sentence == "" {
				continue
			}
			lower := strings.ToLower(sentence)
			for _, tok := range tokens {
				if strings.Contains(lower, tok) {
					matched = append(matched, strings.TrimRight(sentence, ".!? "))
					break
				}
			}
			if len(matched) == maxSnippetSentences {
				break
			}
		}
		if len(matched) > 0 {
			return strings.Join(matched, ". ") + "."
		}
	}

	content = strings.TrimSpace(content)
	if utf8.RuneCountInString(content) <= fallbackSnippetRunes {
		return content
	}
	runes := []rune(content)
	return string(runes[:fallbackSnippetRunes]) + "..."
}
