package indexer

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/dshills/docsearch-mcp/pkg/types"
)

const (
	// maxTitleRunes truncates titles taken from the first line of text
	maxTitleRunes = 100
	// authorScanLines bounds the search for an "Author:" header
	authorScanLines = 10
)

// DocumentID derives a stable identifier from an absolute source path, so
// re-ingesting a file replaces its previous version
func DocumentID(absPath string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("file://"+filepath.ToSlash(absPath))).String()
}

// LoadDocument reads a UTF-8 text file into a Document
func LoadDocument(path string) (*types.Document, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(abs)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", abs)
	}

	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, err
	}
	if !utf8.Valid(data) {
		return nil, fmt.Errorf("%s is not valid UTF-8 text", abs)
	}
	content := string(data)

	doc := &types.Document{
		ID:         DocumentID(abs),
		Title:      extractTitle(content, abs),
		Content:    content,
		SourcePath: abs,
		Metadata: types.DocumentMetadata{
			FileType:     strings.ToLower(strings.TrimPrefix(filepath.Ext(abs), ".")),
			Author:       extractAuthor(content),
			CreatedAt:    info.ModTime().UTC(),
			LastModified: info.ModTime().UTC(),
			Size:         info.Size(),
			Extra:        map[string]string{"filename": filepath.Base(abs)},
		},
	}
	doc.ComputeContentHash()

	return doc, nil
}

// extractTitle uses the first heading, else the first non-empty line, else
// the file name
func extractTitle(content, path string) string {
	var firstLine string
	scanner := bufio.NewScanner(strings.NewReader(content))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "#") {
			if heading := strings.TrimSpace(strings.TrimLeft(line, "#")); heading != "" {
				return truncateRunes(heading, maxTitleRunes)
			}
			continue
		}
		if firstLine == "" && !isAuthorLine(line) {
			firstLine = line
		}
	}

	if firstLine != "" {
		return truncateRunes(firstLine, maxTitleRunes)
	}
	return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
}

// extractAuthor reads an "Author: name" line near the top of the text
func extractAuthor(content string) string {
	scanner := bufio.NewScanner(strings.NewReader(content))
	for i := 0; i < authorScanLines && scanner.Scan(); i++ {
		line := strings.TrimSpace(scanner.Text())
		if isAuthorLine(line) {
			return strings.TrimSpace(line[len("author:"):])
		}
	}
	return ""
}

func isAuthorLine(line string) bool {
	return len(line) > len("author:") && strings.EqualFold(line[:len("author:")], "author:")
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
