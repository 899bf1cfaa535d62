// Package embed drives chunk-level embedding: finding chunks still
// awaiting a vector, batching them through the embedder worker, and
// persisting the resulting EMBEDDING rows and provenance.
package embed

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"docprovrag/internal/store"
	"docprovrag/internal/worker"
	"docprovrag/models"
)

// defaultBatchSize caps how many chunk texts are sent to the embedder
// worker in a single call.
const defaultBatchSize = 32

// Pipeline binds a store Engine to the embedder worker used to turn
// pending chunks into searchable vectors.
type Pipeline struct {
	store    *store.Engine
	embedder *worker.Embedder
}

// New builds a Pipeline.
func New(s *store.Engine, embedder *worker.Embedder) *Pipeline {
	return &Pipeline{store: s, embedder: embedder}
}

// EmbedPendingChunks embeds every chunk of documentID whose
// embedding_status is still pending, in document order, and returns
// the number of chunks newly embedded. A single chunk's embedding
// failure does not abort the batch; it is skipped and counted
// separately so a malformed chunk cannot block its document's siblings.
func (p *Pipeline) EmbedPendingChunks(ctx context.Context, documentID string) (embedded, failed int, err error) {
	chunks, err := p.store.ListChunksByDocument(ctx, documentID)
	if err != nil {
		return 0, 0, err
	}

	var pending []*models.Chunk
	for _, c := range chunks {
		if c.EmbeddingStatus == models.EmbeddingPending {
			pending = append(pending, c)
		}
	}
	if len(pending) == 0 {
		return 0, 0, nil
	}

	for start := 0; start < len(pending); start += defaultBatchSize {
		end := start + defaultBatchSize
		if end > len(pending) {
			end = len(pending)
		}
		batch := pending[start:end]

		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Text
		}
		resp, err := p.embedder.Embed(ctx, texts, string(models.TaskSearchDocument), len(texts))
		if err != nil {
			failed += len(batch)
			continue
		}

		for i, c := range batch {
			if err := p.embedOne(ctx, c, resp.Vectors[i], resp.Model); err != nil {
				failed++
				continue
			}
			embedded++
		}
	}
	return embedded, failed, nil
}

// embedOne builds and persists one chunk's EMBEDDING provenance and
// embedding row, one link below the chunk's own provenance.
func (p *Pipeline) embedOne(ctx context.Context, c *models.Chunk, vector []float32, modelName string) error {
	chain, err := p.store.Provenance().Chain(ctx, c.ProvenanceID)
	if err != nil {
		return fmt.Errorf("embed: load chunk provenance chain: %w", err)
	}
	chunkProv := chain[len(chain)-1]

	prov := &models.Provenance{
		ID:               uuid.NewString(),
		Type:             models.ProvEmbedding,
		CreatedAt:        time.Now().UTC(),
		SourceType:       models.SourceEmbedding,
		SourceID:         &c.ProvenanceID,
		RootDocumentID:   chunkProv.RootDocumentID,
		ParentID:         &c.ProvenanceID,
		ParentIDs:        append(append([]string{}, chunkProv.ParentIDs...), c.ProvenanceID),
		ChainDepth:       chunkProv.ChainDepth + 1,
		ChainPath:        append(append([]string{}, chunkProv.ChainPath...), string(models.ProvEmbedding)),
		ContentHash:      c.TextHash,
		Processor:        modelName,
		ProcessingParams: map[string]any{"model": modelName},
	}

	emb := &models.Embedding{
		ID:           uuid.NewString(),
		Owner:        models.EmbeddingOwner{Kind: models.OwnerChunk, ChunkID: c.ID},
		DocumentID:   c.DocumentID,
		OriginalText: c.Text,
		ModelName:    modelName,
		TaskType:     models.TaskSearchDocument,
		ProvenanceID: prov.ID,
		ContentHash:  prov.ContentHash,
		CreatedAt:    prov.CreatedAt,
		Vector:       vector,
	}

	return p.store.InsertEmbedding(ctx, emb, prov)
}
