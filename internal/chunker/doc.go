// Package chunker divides document text into overlapping chunks for embedding and search.
//
// The chunker slides a fixed-size window through each paragraph and moves the
// cut to a natural boundary so sentences and words stay intact whenever the
// text allows it.
//
// # Basic Usage
//
//	c := chunker.New()
//	chunks := c.ChunkDocument(doc)
//
//	for _, chunk := range chunks {
//	    fmt.Printf("Chunk %d: bytes %d-%d\n",
//	        chunk.ChunkIndex, chunk.StartIndex, chunk.EndIndex)
//	}
//
// # Chunking Strategy
//
//   - Paragraphs: with PreserveParagraphs the text is split on blank lines
//     first; a paragraph that fits in ChunkSize becomes one chunk
//   - Sentences: with PreserveSentences the cut moves to the nearest '.', '!'
//     or '?' followed by whitespace, 100 bytes back or 50 bytes forward
//   - Words: otherwise the cut moves back to whitespace within 50 bytes
//   - Hard cut: as a last resort the window is cut at ChunkSize, never inside
//     a UTF-8 sequence
//
// The next window starts ChunkOverlap bytes before the previous cut, and
// always at least one byte after the previous window start.
//
// # Offsets
//
// StartIndex and EndIndex are byte offsets into the full document, across
// paragraphs, so that
//
//	doc.Content[chunk.StartIndex:chunk.EndIndex] == chunk.Content
//
// Chunk indices are assigned 0,1,2,... per document. Whitespace-only
// candidates are dropped without consuming an index.
package chunker
