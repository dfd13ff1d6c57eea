package searcher

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/dshills/docsearch-mcp/pkg/types"
)

// rewriteMaxResults replaces an unset or out-of-range MaxResults during
// query rewriting
const rewriteMaxResults = 20

var (
	// disallowedChars matches anything outside letters, digits, underscore,
	// whitespace and hyphen
	disallowedChars = regexp.MustCompile(`[^\p{L}\p{N}_\s-]`)
	whitespaceRun   = regexp.MustCompile(`\s+`)
)

// abbreviations are expanded as whole words during query rewriting
var abbreviations = map[string]string{
	"ai":  "artificial intelligence",
	"ml":  "machine learning",
	"nlp": "natural language processing",
	"db":  "database",
	"llm": "large language model",
	"dl":  "deep learning",
	"nn":  "neural network",
	"ir":  "information retrieval",
}

// OptimizeQuery normalizes the query text for embedding and clamps
// MaxResults to a sane default when it is unset or over the limit
func OptimizeQuery(q types.SearchQuery) types.SearchQuery {
	text := strings.ToLower(q.Query)
	text = disallowedChars.ReplaceAllString(text, "")
	text = strings.TrimSpace(whitespaceRun.ReplaceAllString(text, " "))

	if text != "" {
		words := strings.Split(text, " ")
		for i, w := range words {
			if expanded, ok := abbreviations[w]; ok {
				words[i] = expanded
			}
		}
		text = strings.Join(words, " ")
	}

	q.Query = text
	if q.MaxResults <= 0 || q.MaxResults > types.MaxResultsLimit {
		q.MaxResults = rewriteMaxResults
	}
	return q
}

// ValidateQuery rejects empty queries and out-of-range thresholds and
// applies the MaxResults default and ceiling
func ValidateQuery(q types.SearchQuery, defaultMax int) (types.SearchQuery, error) {
	q.Query = strings.TrimSpace(q.Query)
	if q.Query == "" {
		return q, fmt.Errorf("%w: query cannot be empty", types.ErrInvalidQuery)
	}

	if q.Threshold != nil && (*q.Threshold < 0 || *q.Threshold > 1) {
		return q, fmt.Errorf("%w: threshold %v outside [0, 1]", types.ErrInvalidQuery, *q.Threshold)
	}

	if defaultMax <= 0 {
		defaultMax = types.DefaultMaxResults
	}
	if q.MaxResults <= 0 {
		q.MaxResults = defaultMax
	}
	if q.MaxResults > types.MaxResultsLimit {
		q.MaxResults = types.MaxResultsLimit
	}

	return q, nil
}

// cacheKeyInput is the canonical form hashed into a result cache key.
// Field order is fixed by the struct and filter lists are sorted.
type cacheKeyInput struct {
	Query      string          `json:"query"`
	MaxResults int             `json:"maxResults"`
	Threshold  *float64        `json:"threshold"`
	Filters    *cacheKeyFilter `json:"filters"`
}

type cacheKeyFilter struct {
	FileTypes []string   `json:"fileTypes"`
	Authors   []string   `json:"authors"`
	From      *time.Time `json:"from"`
	To        *time.Time `json:"to"`
}

// CacheKey derives the result cache key for a query. Equal queries map to the
// same key regardless of filter list order or duplicates.
func CacheKey(q types.SearchQuery) string {
	input := cacheKeyInput{
		Query:      q.Query,
		MaxResults: q.MaxResults,
		Threshold:  q.Threshold,
	}

	if !q.Filters.IsEmpty() {
		f := &cacheKeyFilter{
			FileTypes: canonicalList(q.Filters.FileTypes, normalizeFileType),
			Authors:   canonicalList(q.Filters.Authors, func(s string) string { return strings.ToLower(strings.TrimSpace(s)) }),
		}
		if dr := q.Filters.DateRange; dr != nil {
			if !dr.From.IsZero() {
				from := dr.From.UTC()
				f.From = &from
			}
			if !dr.To.IsZero() {
				to := dr.To.UTC()
				f.To = &to
			}
		}
		input.Filters = f
	}

	// Marshalling plain strings, ints, floats and times cannot fail
	data, _ := json.Marshal(input)
	sum := sha256.Sum256(data)
	return ResultKeyPrefix + hex.EncodeToString(sum[:])
}

// canonicalList normalizes, sorts and deduplicates a filter list
func canonicalList(values []string, normalize func(string) string) []string {
	if len(values) == 0 {
		return nil
	}
	out := make([]string, 0, len(values))
	for _, v := range values {
		out = append(out, normalize(v))
	}
	sort.Strings(out)

	unique := out[:1]
	for _, v := range out[1:] {
		if v != unique[len(unique)-1] {
			unique = append(unique, v)
		}
	}
	return unique
}
