package searcher

import (
	"sort"

	"github.com/dshills/docsearch-mcp/pkg/types"
)

// registry maps document and chunk IDs to their in-memory records. It is
// not safe for concurrent use; Searcher guards it.
type registry struct {
	documents map[string]*types.Document
	chunks    map[string]*types.Chunk
}

func newRegistry() *registry {
	return &registry{
		documents: make(map[string]*types.Document),
		chunks:    make(map[string]*types.Chunk),
	}
}

// put publishes a document and its chunks, replacing any previous version
func (r *registry) put(doc *types.Document, chunks []*types.Chunk) {
	r.remove(doc.ID)

	if len(doc.ChunkIDs) != len(chunks) {
		doc.ChunkIDs = make([]string, len(chunks))
		for i, chunk := range chunks {
			doc.ChunkIDs[i] = chunk.ID
		}
	}
	r.documents[doc.ID] = doc
	for _, chunk := range chunks {
		r.chunks[chunk.ID] = chunk
	}
}

// remove drops a document and every chunk it owns
func (r *registry) remove(id string) {
	doc, ok := r.documents[id]
	if !ok {
		return
	}
	for _, chunkID := range doc.ChunkIDs {
		delete(r.chunks, chunkID)
	}
	delete(r.documents, id)
}

// resolve looks up a chunk and its owning document
func (r *registry) resolve(chunkID string) (*types.Chunk, *types.Document, bool) {
	chunk, ok := r.chunks[chunkID]
	if !ok {
		return nil, nil, false
	}
	doc, ok := r.documents[chunk.DocumentID]
	if !ok {
		return nil, nil, false
	}
	return chunk, doc, true
}

// chunksOf returns the registered chunks of a document keyed by ID
func (r *registry) chunksOf(id string) map[string]*types.Chunk {
	doc, ok := r.documents[id]
	if !ok {
		return nil
	}
	chunks := make(map[string]*types.Chunk, len(doc.ChunkIDs))
	for _, chunkID := range doc.ChunkIDs {
		if chunk, ok := r.chunks[chunkID]; ok {
			chunks[chunkID] = chunk
		}
	}
	return chunks
}

func (r *registry) chunkIDsOf(id string) []string {
	doc, ok := r.documents[id]
	if !ok {
		return nil
	}
	return append([]string(nil), doc.ChunkIDs...)
}

// candidates returns the chunk IDs of documents that satisfy filters. The
// result is never nil so an empty set restricts the index to nothing.
func (r *registry) candidates(filters *types.SearchFilters) []string {
	ids := make([]string, 0)
	for _, doc := range r.documents {
		if MatchFilters(doc, filters) {
			ids = append(ids, doc.ChunkIDs...)
		}
	}
	sort.Strings(ids)
	return ids
}
