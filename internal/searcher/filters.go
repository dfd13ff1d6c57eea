package searcher

import (
	"strings"

	"github.com/dshills/docsearch-mcp/pkg/types"
)

// MatchFilters reports whether doc satisfies every set filter. File types
// compare case-insensitively with or without a leading dot; authors compare
// case-insensitively; the date range applies to LastModified.
func MatchFilters(doc *types.Document, f *types.SearchFilters) bool {
	if f == nil {
		return true
	}

	if len(f.FileTypes) > 0 {
		fileType := normalizeFileType(doc.Metadata.FileType)
		if !containsFunc(f.FileTypes, func(ft string) bool { return normalizeFileType(ft) == fileType }) {
			return false
		}
	}

	if len(f.Authors) > 0 {
		if doc.Metadata.Author == "" {
			return false
		}
		if !containsFunc(f.Authors, func(a string) bool { return strings.EqualFold(strings.TrimSpace(a), doc.Metadata.Author) }) {
			return false
		}
	}

	if f.DateRange != nil && !f.DateRange.Contains(doc.Metadata.LastModified) {
		return false
	}

	return true
}

func normalizeFileType(ft string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ft), "."))
}

func containsFunc(values []string, match func(string) bool) bool {
	for _, v := range values {
		if match(v) {
			return true
		}
	}
	return false
}
