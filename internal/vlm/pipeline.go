// Package vlm drives the per-image vision-language description
// pipeline: pending -> processing -> {complete, failed}, deduplicating
// identical image bytes by content_hash and embedding the resulting
// description text.
package vlm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"docprovrag/internal/hashutil"
	"docprovrag/internal/store"
	"docprovrag/internal/worker"
	"docprovrag/models"
)

// maxDescribeAttempts bounds retries of transient worker failures
// before an image is marked failed with the last error preserved.
const maxDescribeAttempts = 3

// embedModelTaskType matches the convention used for chunk embeddings:
// description text is indexed content, not a search query.
const embedModelTaskType = models.TaskSearchDocument

// Pipeline binds a store Engine to the VLM describer and embedder
// workers needed to carry an image from discovery to a searchable
// description.
type Pipeline struct {
	store    *store.Engine
	describe *worker.VLMDescriber
	embedder *worker.Embedder
}

// New builds a Pipeline.
func New(s *store.Engine, describe *worker.VLMDescriber, embedder *worker.Embedder) *Pipeline {
	return &Pipeline{store: s, describe: describe, embedder: embedder}
}

// Process drives one already-inserted, vlm_status=pending image through
// the pipeline. A worker failure is recorded as vlm_status=failed on the
// image row, not returned as an error; only a store-layer failure that
// leaves state ambiguous is returned to the caller.
func (p *Pipeline) Process(ctx context.Context, img *models.Image) error {
	shared, err := p.tryDedup(ctx, img)
	if err != nil {
		return err
	}
	if shared {
		return nil
	}

	if err := p.store.SetImageVLMResult(ctx, img.ID, models.VLMProcessing, "", nil, nil, "", nil, nil); err != nil {
		return fmt.Errorf("vlm: mark processing: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= maxDescribeAttempts; attempt++ {
		resp, err := p.describe.Describe(ctx, img.ExtractedPath, img.ContextText)
		if err == nil {
			return p.complete(ctx, img, resp)
		}
		lastErr = err
		if !retryable(err) {
			break
		}
	}
	return p.fail(ctx, img, lastErr)
}

// tryDedup looks up a completed image sharing the same content_hash.
// If one is found, the incoming image's result is copied from it
// directly — no worker call, no new embedding — and a processing_params
// note names the donor image so the reuse is traceable.
func (p *Pipeline) tryDedup(ctx context.Context, img *models.Image) (bool, error) {
	if img.ContentHash == "" {
		return false, nil
	}
	donor, err := p.store.ImageByContentHash(ctx, img.ContentHash)
	if err != nil {
		return false, fmt.Errorf("vlm: dedup lookup: %w", err)
	}
	if donor == nil || donor.ID == img.ID {
		return false, nil
	}

	prov, err := p.childProvenance(ctx, img, donor.VLMModel, map[string]any{
		"shared_from_image_id": donor.ID,
		"dedup":                true,
	})
	if err != nil {
		return false, err
	}
	if err := p.store.RecordProvenance(ctx, prov); err != nil {
		return false, fmt.Errorf("vlm: record dedup provenance: %w", err)
	}

	if err := p.store.SetImageVLMResult(ctx, img.ID, models.VLMComplete, donor.VLMDescription,
		donor.VLMStructuredData, donor.VLMEmbeddingID, donor.VLMModel, donor.VLMConfidence, donor.VLMTokensUsed); err != nil {
		return false, fmt.Errorf("vlm: copy dedup result: %w", err)
	}
	return true, nil
}

// complete records the VLM_DESCRIPTION provenance row, embeds the
// description (best-effort: an embedding failure still leaves the image
// complete, just without vlm_embedding_id), and persists the VLM result.
func (p *Pipeline) complete(ctx context.Context, img *models.Image, resp *worker.VLMResponse) error {
	descProv, err := p.childProvenance(ctx, img, "vlm", map[string]any{
		"confidence": resp.Confidence, "tokens_used": resp.TokensUsed,
	})
	if err != nil {
		return err
	}
	if err := p.store.RecordProvenance(ctx, descProv); err != nil {
		return fmt.Errorf("vlm: record description provenance: %w", err)
	}

	var embeddingID *string
	if p.embedder != nil && resp.Description != "" {
		id, err := p.embedDescription(ctx, img, descProv, resp.Description)
		if err == nil {
			embeddingID = &id
		}
	}

	confidence := resp.Confidence
	tokens := resp.TokensUsed
	if err := p.store.SetImageVLMResult(ctx, img.ID, models.VLMComplete, resp.Description,
		resp.StructuredData, embeddingID, "vlm", &confidence, &tokens); err != nil {
		return fmt.Errorf("vlm: set complete result: %w", err)
	}
	return nil
}

// fail records a terminal failure with the triggering error's message
// preserved in vlm_description so the reason survives for operators.
func (p *Pipeline) fail(ctx context.Context, img *models.Image, cause error) error {
	reason := "vlm: unknown failure"
	if cause != nil {
		reason = cause.Error()
	}
	if err := p.store.SetImageVLMResult(ctx, img.ID, models.VLMFailed, reason, nil, nil, "", nil, nil); err != nil {
		return fmt.Errorf("vlm: set failed result: %w", err)
	}
	return nil
}

// embedDescription embeds description and persists it as an embedding
// owned by the image, recording an EMBEDDING provenance row one link
// below the given VLM_DESCRIPTION provenance.
func (p *Pipeline) embedDescription(ctx context.Context, img *models.Image, descProv *models.Provenance, description string) (string, error) {
	resp, err := p.embedder.Embed(ctx, []string{description}, string(embedModelTaskType), 1)
	if err != nil {
		return "", fmt.Errorf("vlm: embed description: %w", err)
	}
	if len(resp.Vectors) != 1 {
		return "", fmt.Errorf("vlm: embedder returned %d vectors, want 1", len(resp.Vectors))
	}

	embProv := &models.Provenance{
		ID:               uuid.NewString(),
		Type:             models.ProvEmbedding,
		CreatedAt:        time.Now().UTC(),
		SourceType:       models.SourceVLM,
		SourceID:         &descProv.ID,
		RootDocumentID:   descProv.RootDocumentID,
		ParentID:         &descProv.ID,
		ParentIDs:        append(append([]string{}, descProv.ParentIDs...), descProv.ID),
		ChainDepth:       descProv.ChainDepth + 1,
		ChainPath:        append(append([]string{}, descProv.ChainPath...), string(models.ProvEmbedding)),
		ContentHash:      hashutil.HashString(description),
		Processor:        resp.Model,
		ProcessingParams: map[string]any{"model": resp.Model, "dimensions": resp.Dimensions},
	}

	emb := &models.Embedding{
		ID:           uuid.NewString(),
		Owner:        models.EmbeddingOwner{Kind: models.OwnerImage, ImageID: img.ID},
		DocumentID:   img.DocumentID,
		OriginalText: description,
		ModelName:    resp.Model,
		TaskType:     embedModelTaskType,
		ProvenanceID: embProv.ID,
		ContentHash:  embProv.ContentHash,
		CreatedAt:    embProv.CreatedAt,
		Vector:       resp.Vectors[0],
	}

	if err := p.store.InsertEmbedding(ctx, emb, embProv); err != nil {
		return "", fmt.Errorf("vlm: insert description embedding: %w", err)
	}
	return emb.ID, nil
}

// childProvenance builds a VLM_DESCRIPTION provenance row one link
// below the image's own provenance in the chain.
func (p *Pipeline) childProvenance(ctx context.Context, img *models.Image, processor string, params map[string]any) (*models.Provenance, error) {
	chain, err := p.store.Provenance().Chain(ctx, img.ProvenanceID)
	if err != nil {
		return nil, fmt.Errorf("vlm: load image provenance chain: %w", err)
	}
	imgProv := chain[len(chain)-1]

	return &models.Provenance{
		ID:               uuid.NewString(),
		Type:             models.ProvVLMDescription,
		CreatedAt:        time.Now().UTC(),
		SourceType:       models.SourceVLM,
		SourceID:         &img.ProvenanceID,
		RootDocumentID:   imgProv.RootDocumentID,
		ParentID:         &img.ProvenanceID,
		ParentIDs:        append(append([]string{}, imgProv.ParentIDs...), img.ProvenanceID),
		ChainDepth:       imgProv.ChainDepth + 1,
		ChainPath:        append(append([]string{}, imgProv.ChainPath...), string(models.ProvVLMDescription)),
		ContentHash:      hashutil.HashString(img.ContentHash + processor),
		Processor:        processor,
		ProcessingParams: params,
	}, nil
}

func retryable(err error) bool {
	return errors.Is(err, worker.ErrWorkerTimeout) || errors.Is(err, worker.ErrWorkerFailed)
}
