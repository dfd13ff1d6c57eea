package chunker

import (
	"errors"
	"regexp"
	"unicode"
	"unicode/utf8"

	"github.com/dshills/docsearch-mcp/pkg/types"
)

const (
	// DefaultChunkSize is the target chunk length in bytes
	DefaultChunkSize = 512

	// DefaultChunkOverlap is the number of bytes shared by adjacent windows
	DefaultChunkOverlap = 50

	// sentenceLookback and sentenceLookahead bound the search for a sentence
	// terminator around the raw window end
	sentenceLookback  = 100
	sentenceLookahead = 50

	// wordLookback bounds the search for a whitespace fallback cut
	wordLookback = 50
)

// paragraphBreak matches a blank line, possibly containing whitespace
var paragraphBreak = regexp.MustCompile(`\n\s*\n`)

// Options controls how a document is split
type Options struct {
	ChunkSize          int
	ChunkOverlap       int
	PreserveSentences  bool
	PreserveParagraphs bool
}

// DefaultOptions returns the options used when none are configured
func DefaultOptions() Options {
	return Options{
		ChunkSize:          DefaultChunkSize,
		ChunkOverlap:       DefaultChunkOverlap,
		PreserveSentences:  true,
		PreserveParagraphs: true,
	}
}

// Validate rejects option combinations that make the sliding window degenerate
func (o Options) Validate() error {
	if o.ChunkSize <= 0 {
		return errors.New("chunk size must be positive")
	}
	if o.ChunkOverlap < 0 {
		return errors.New("chunk overlap must not be negative")
	}
	if o.ChunkOverlap >= o.ChunkSize {
		return errors.New("chunk overlap must be smaller than chunk size")
	}
	return nil
}

// normalize replaces values the window cannot work with. Overlap >= size is
// left alone: the window still advances by at least one byte per step.
func (o Options) normalize() Options {
	if o.ChunkSize <= 0 {
		o.ChunkSize = DefaultChunkSize
	}
	if o.ChunkOverlap < 0 {
		o.ChunkOverlap = 0
	}
	return o
}

// Chunker splits documents into overlapping, boundary-aware chunks
type Chunker struct {
	opts Options
}

// New creates a Chunker with default options
func New() *Chunker {
	return &Chunker{opts: DefaultOptions()}
}

// NewWithOptions creates a Chunker with the given default options
func NewWithOptions(opts Options) *Chunker {
	return &Chunker{opts: opts}
}

// Options returns the chunker's configured options
func (c *Chunker) Options() Options {
	return c.opts
}

// ChunkDocument splits a document using the chunker's configured options
func (c *Chunker) ChunkDocument(doc *types.Document) []*types.Chunk {
	return c.Chunk(doc, c.opts)
}

// Chunk splits a document into an ordered sequence of chunks. Offsets are
// byte offsets into doc.Content and chunk indices run 0,1,2,... across all
// paragraphs. An empty document yields no chunks.
func (c *Chunker) Chunk(doc *types.Document, opts Options) []*types.Chunk {
	opts = opts.normalize()
	text := doc.Content

	chunks := make([]*types.Chunk, 0)
	emit := func(start, end int) {
		start, end = trimSpan(text, start, end)
		if start >= end {
			return
		}
		idx := len(chunks)
		chunk := &types.Chunk{
			ID:         types.ChunkID(doc.ID, idx),
			DocumentID: doc.ID,
			ChunkIndex: idx,
			Content:    text[start:end],
			StartIndex: start,
			EndIndex:   end,
		}
		chunk.ComputeContentHash()
		chunks = append(chunks, chunk)
	}

	for _, p := range splitParagraphs(text, opts.PreserveParagraphs) {
		if p.end-p.start <= opts.ChunkSize {
			emit(p.start, p.end)
			continue
		}
		slideWindow(text, p, opts, emit)
	}

	return chunks
}

// span is a half-open byte range of the document
type span struct {
	start int
	end   int
}

// splitParagraphs returns the trimmed, non-empty paragraphs of text
func splitParagraphs(text string, preserve bool) []span {
	spans := make([]span, 0)
	add := func(start, end int) {
		start, end = trimSpan(text, start, end)
		if start < end {
			spans = append(spans, span{start: start, end: end})
		}
	}

	if !preserve {
		add(0, len(text))
		return spans
	}

	prev := 0
	for _, loc := range paragraphBreak.FindAllStringIndex(text, -1) {
		add(prev, loc[0])
		prev = loc[1]
	}
	add(prev, len(text))

	return spans
}

// slideWindow emits chunks for a paragraph longer than the chunk size
func slideWindow(text string, p span, opts Options, emit func(start, end int)) {
	start := p.start
	prevEnd := p.start

	for start < p.end {
		rawEnd := start + opts.ChunkSize
		if rawEnd >= p.end {
			emit(start, p.end)
			return
		}

		// Every cut must include the first non-space byte after the previous
		// chunk so each window adds text
		floor := skipSpaces(text, prevEnd, p.end)

		end := -1
		if opts.PreserveSentences {
			end = findSentenceEnd(text, floor, rawEnd, p.end)
		}
		if end < 0 {
			end = findWordEnd(text, floor, rawEnd)
		}
		if end < 0 {
			end = hardCut(text, floor, rawEnd, p.end)
		}

		emit(start, end)
		if end >= p.end {
			return
		}
		prevEnd = end

		next := end - opts.ChunkOverlap
		if next < start+1 {
			next = start + 1
		}
		start = runeCeil(text, next)
	}
}

// findSentenceEnd looks for a terminator backward from rawEnd, then forward
// into the lookahead band. It returns the cut position or -1.
func findSentenceEnd(text string, floor, rawEnd, limit int) int {
	lo := max(rawEnd-sentenceLookback, floor)
	for i := rawEnd - 1; i >= lo; i-- {
		if isTerminatorAt(text, i, limit) {
			return i + 1
		}
	}

	hi := min(rawEnd+sentenceLookahead, limit)
	for i := max(rawEnd, floor); i < hi; i++ {
		if isTerminatorAt(text, i, limit) {
			return i + 1
		}
	}

	return -1
}

// isTerminatorAt reports whether text[i] ends a sentence: '.', '!' or '?'
// followed by whitespace or the end of the paragraph
func isTerminatorAt(text string, i, limit int) bool {
	switch text[i] {
	case '.', '!', '?':
	default:
		return false
	}
	return i+1 == limit || isSpaceByte(text[i+1])
}

// findWordEnd returns the nearest whitespace at or before rawEnd within the
// word lookback, or -1
func findWordEnd(text string, floor, rawEnd int) int {
	lo := rawEnd - wordLookback
	for i := rawEnd; i > floor && i >= lo; i-- {
		if isSpaceByte(text[i]) {
			return i
		}
	}
	return -1
}

// hardCut cuts at rawEnd, moved to a rune boundary
func hardCut(text string, floor, rawEnd, limit int) int {
	i := max(rawEnd, floor+1)
	if i >= limit {
		return limit
	}
	for i > floor+1 && !utf8.RuneStart(text[i]) {
		i--
	}
	if utf8.RuneStart(text[i]) {
		return i
	}
	return runeCeil(text, i)
}

// skipSpaces returns the first position at or after i holding a non-space byte
func skipSpaces(text string, i, limit int) int {
	for i < limit && isSpaceByte(text[i]) {
		i++
	}
	return i
}

// runeCeil moves i forward to the next rune boundary
func runeCeil(text string, i int) int {
	for i < len(text) && !utf8.RuneStart(text[i]) {
		i++
	}
	return i
}

// trimSpan shrinks [start, end) to exclude leading and trailing whitespace
func trimSpan(text string, start, end int) (int, int) {
	for start < end {
		r, size := utf8.DecodeRuneInString(text[start:end])
		if !unicode.IsSpace(r) {
			break
		}
		start += size
	}
	for end > start {
		r, size := utf8.DecodeLastRuneInString(text[start:end])
		if !unicode.IsSpace(r) {
			break
		}
		end -= size
	}
	return start, end
}

func isSpaceByte(b byte) bool {
	switch b {
	case ' ', '\t', '\n', '\r', '\v', '\f':
		return true
	}
	return false
}

// EstimateTokenCount estimates the number of tokens in a string (chars/4)
func EstimateTokenCount(text string) int {
	return len(text) / 4
}
