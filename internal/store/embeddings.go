package store

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"strconv"
	"strings"

	"docprovrag/internal/errs"
	"docprovrag/models"
)

// L2Normalize scales v in place to unit length. A zero vector is left
// unchanged (dividing by zero would produce NaNs).
func L2Normalize(v []float32) {
	var sumSq float64
	for _, x := range v {
		sumSq += float64(x) * float64(x)
	}
	norm := math.Sqrt(sumSq)
	if norm == 0 {
		return
	}
	for i := range v {
		v[i] = float32(float64(v[i]) / norm)
	}
}

func vecLiteral(v []float32) string {
	parts := make([]string, len(v))
	for i, f := range v {
		parts[i] = strconv.FormatFloat(float64(f), 'f', -1, 32)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

// InsertEmbedding writes an embedding row, its provenance, and its
// vector into vec_embeddings, in one transaction. Vectors are
// L2-normalized in place before being written.
func (e *Engine) InsertEmbedding(ctx context.Context, emb *models.Embedding, prov *models.Provenance) error {
	if len(emb.Vector) != VectorDimension {
		return errs.Validation("embedding vector has wrong dimension", map[string]any{
			"got": len(emb.Vector), "want": VectorDimension,
		})
	}
	L2Normalize(emb.Vector)

	tx, err := e.DB().BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin: %w", err)
	}
	defer tx.Rollback()

	if err := e.Provenance().Create(ctx, tx, prov); err != nil {
		return err
	}

	var chunkID, imageID, extractionID any
	switch emb.Owner.Kind {
	case models.OwnerChunk:
		chunkID = emb.Owner.ChunkID
	case models.OwnerImage:
		imageID = emb.Owner.ImageID
	case models.OwnerExtraction:
		extractionID = emb.Owner.ExtractionID
	default:
		return errs.Validation("embedding owner kind must be chunk, image, or extraction", nil)
	}

	const q = `INSERT INTO embeddings (id, chunk_id, image_id, extraction_id, document_id, original_text,
		model_name, model_version, task_type, inference_mode, gpu_device, provenance_id, content_hash, created_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)`
	_, err = tx.ExecContext(ctx, q, emb.ID, chunkID, imageID, extractionID, emb.DocumentID, emb.OriginalText,
		emb.ModelName, emb.ModelVersion, string(emb.TaskType), string(emb.InferenceMode), emb.GPUDevice,
		emb.ProvenanceID, emb.ContentHash, emb.CreatedAt)
	if err != nil {
		return translateConstraintErr(err, "embedding", map[string]any{"owner": emb.Owner.Kind})
	}

	if _, err := tx.ExecContext(ctx, `INSERT INTO vec_embeddings (embedding_id, vector) VALUES (?, ?)`,
		emb.ID, vecLiteral(emb.Vector)); err != nil {
		return fmt.Errorf("store: insert vec_embeddings: %w", err)
	}

	if emb.Owner.Kind == models.OwnerChunk {
		if _, err := tx.ExecContext(ctx, `UPDATE chunks SET embedding_status = ?, embedded_at = ? WHERE id = ?`,
			models.EmbeddingComplete, now(), emb.Owner.ChunkID); err != nil {
			return fmt.Errorf("store: mark chunk embedded: %w", err)
		}
	}

	if err := insertEntityTags(ctx, tx, "embedding", emb.ProvenanceID, []string{string(emb.TaskType)}); err != nil {
		return err
	}

	return tx.Commit()
}

// GetEmbedding fetches one embedding row (without its vector) by id.
func (e *Engine) GetEmbedding(ctx context.Context, id string) (*models.Embedding, error) {
	row := e.DB().QueryRowContext(ctx, embeddingSelectCols+` WHERE id = ?`, id)
	emb, err := scanEmbedding(row)
	if err == sql.ErrNoRows {
		return nil, errs.NotFound("embedding", id)
	}
	return emb, err
}

const embeddingSelectCols = `SELECT e.id, e.chunk_id, e.image_id, e.extraction_id, e.document_id, e.original_text,
	e.model_name, e.model_version, e.task_type, e.inference_mode, e.gpu_device, e.provenance_id,
	e.content_hash, e.created_at FROM embeddings e`

func scanEmbedding(row rowScanner) (*models.Embedding, error) {
	var emb models.Embedding
	var chunkID, imageID, extractionID sql.NullString
	var taskType, inferenceMode string
	if err := row.Scan(&emb.ID, &chunkID, &imageID, &extractionID, &emb.DocumentID, &emb.OriginalText,
		&emb.ModelName, &emb.ModelVersion, &taskType, &inferenceMode, &emb.GPUDevice, &emb.ProvenanceID,
		&emb.ContentHash, &emb.CreatedAt); err != nil {
		return nil, err
	}
	emb.TaskType = models.TaskType(taskType)
	emb.InferenceMode = models.InferenceMode(inferenceMode)
	switch {
	case chunkID.Valid:
		emb.Owner = models.EmbeddingOwner{Kind: models.OwnerChunk, ChunkID: chunkID.String}
	case imageID.Valid:
		emb.Owner = models.EmbeddingOwner{Kind: models.OwnerImage, ImageID: imageID.String}
	case extractionID.Valid:
		emb.Owner = models.EmbeddingOwner{Kind: models.OwnerExtraction, ExtractionID: extractionID.String}
	}
	return &emb, nil
}

// cosineFromL2 recovers cosine similarity from an L2 distance between
// two unit vectors: ‖a-b‖² = 2 - 2·cos(a,b).
func cosineFromL2(l2Dist float64) float64 {
	sim := 1 - (l2Dist*l2Dist)/2
	if sim < 0 {
		return 0
	}
	if sim > 1 {
		return 1
	}
	return sim
}
