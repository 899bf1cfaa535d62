package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"docprovrag/internal/errs"
	"docprovrag/models"
)

// InsertChunks writes a dense, document-ordered batch of chunks plus
// their CHUNK provenance rows in one transaction. chunk_index must
// already be dense 0..N-1 on entry; InsertChunks does not renumber.
func (e *Engine) InsertChunks(ctx context.Context, chunks []*models.Chunk, provs []*models.Provenance) error {
	if len(chunks) != len(provs) {
		return errs.Validation("chunks and provenance records must pair 1:1", map[string]any{
			"chunks": len(chunks), "provenance": len(provs),
		})
	}
	tx, err := e.DB().BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin: %w", err)
	}
	defer tx.Rollback()

	for i, c := range chunks {
		if c.CharacterEnd <= c.CharacterStart {
			return errs.Validation("character_end must be greater than character_start", map[string]any{"chunk_index": c.ChunkIndex})
		}
		if c.IsAtomic && (c.OverlapPrevious != 0 || c.OverlapNext != 0) {
			return errs.Validation("atomic chunks must have zero overlap", map[string]any{"chunk_index": c.ChunkIndex})
		}
		if err := e.Provenance().Create(ctx, tx, provs[i]); err != nil {
			return err
		}
		if err := insertChunk(ctx, tx, c); err != nil {
			return err
		}
		if err := insertEntityTags(ctx, tx, "chunk", provs[i].ID, c.ContentTypes); err != nil {
			return err
		}
	}

	if err := bumpMetadataCounts(ctx, tx, 0, len(chunks)); err != nil {
		return err
	}

	return tx.Commit()
}

func insertChunk(ctx context.Context, tx *sql.Tx, c *models.Chunk) error {
	contentTypesJSON, err := json.Marshal(c.ContentTypes)
	if err != nil {
		return fmt.Errorf("store: encode content_types: %w", err)
	}
	var tableMetaJSON []byte
	if c.TableMetadata != nil {
		tableMetaJSON, err = json.Marshal(c.TableMetadata)
		if err != nil {
			return fmt.Errorf("store: encode table_metadata: %w", err)
		}
	}

	const q = `INSERT INTO chunks (id, document_id, ocr_result_id, text, text_hash, chunk_index,
		character_start, character_end, page_number, page_range, overlap_previous, overlap_next,
		provenance_id, embedding_status, heading_context, heading_level, section_path, content_types,
		is_atomic, chunking_strategy, ocr_quality_score, table_metadata)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`
	_, err = tx.ExecContext(ctx, q, c.ID, c.DocumentID, c.OCRResultID, c.Text, c.TextHash, c.ChunkIndex,
		c.CharacterStart, c.CharacterEnd, c.PageNumber, c.PageRange, c.OverlapPrevious, c.OverlapNext,
		c.ProvenanceID, models.EmbeddingPending, c.HeadingContext, c.HeadingLevel, c.SectionPath,
		string(contentTypesJSON), c.IsAtomic, c.ChunkingStrategy, c.OCRQualityScore, nullableString(tableMetaJSON))
	if err != nil {
		return translateConstraintErr(err, "chunk", map[string]any{"document_id": c.DocumentID, "chunk_index": c.ChunkIndex})
	}
	return nil
}

func nullableString(b []byte) any {
	if b == nil {
		return nil
	}
	return string(b)
}

// ListChunksByDocument returns a document's chunks in index order.
func (e *Engine) ListChunksByDocument(ctx context.Context, documentID string) ([]*models.Chunk, error) {
	rows, err := e.DB().QueryContext(ctx, chunkSelectCols+` WHERE document_id = ? ORDER BY chunk_index ASC`, documentID)
	if err != nil {
		return nil, fmt.Errorf("store: list chunks: %w", err)
	}
	defer rows.Close()
	return scanChunks(rows)
}

// GetChunk fetches one chunk by id.
func (e *Engine) GetChunk(ctx context.Context, id string) (*models.Chunk, error) {
	row := e.DB().QueryRowContext(ctx, chunkSelectCols+` WHERE id = ?`, id)
	c, err := scanChunk(row)
	if err == sql.ErrNoRows {
		return nil, errs.NotFound("chunk", id)
	}
	return c, err
}

// MarkChunkEmbedded flips a chunk's embedding_status to complete.
func (e *Engine) MarkChunkEmbedded(ctx context.Context, chunkID string) error {
	_, err := e.DB().ExecContext(ctx, `UPDATE chunks SET embedding_status = ?, embedded_at = ? WHERE id = ?`,
		models.EmbeddingComplete, now(), chunkID)
	if err != nil {
		return fmt.Errorf("store: mark chunk embedded: %w", err)
	}
	return nil
}

const chunkSelectCols = `SELECT id, document_id, ocr_result_id, text, text_hash, chunk_index, character_start,
	character_end, page_number, page_range, overlap_previous, overlap_next, provenance_id, embedding_status,
	embedded_at, heading_context, heading_level, section_path, content_types, is_atomic, chunking_strategy,
	ocr_quality_score, table_metadata FROM chunks`

func scanChunk(row rowScanner) (*models.Chunk, error) {
	var c models.Chunk
	var status string
	var contentTypesJSON string
	var tableMetaJSON sql.NullString
	if err := row.Scan(&c.ID, &c.DocumentID, &c.OCRResultID, &c.Text, &c.TextHash, &c.ChunkIndex,
		&c.CharacterStart, &c.CharacterEnd, &c.PageNumber, &c.PageRange, &c.OverlapPrevious, &c.OverlapNext,
		&c.ProvenanceID, &status, &c.EmbeddedAt, &c.HeadingContext, &c.HeadingLevel, &c.SectionPath,
		&contentTypesJSON, &c.IsAtomic, &c.ChunkingStrategy, &c.OCRQualityScore, &tableMetaJSON); err != nil {
		return nil, err
	}
	c.EmbeddingStatus = models.EmbeddingStatus(status)
	_ = json.Unmarshal([]byte(contentTypesJSON), &c.ContentTypes)
	if tableMetaJSON.Valid && tableMetaJSON.String != "" {
		var tm models.TableMetadata
		if err := json.Unmarshal([]byte(tableMetaJSON.String), &tm); err == nil {
			c.TableMetadata = &tm
		}
	}
	return &c, nil
}

func scanChunks(rows *sql.Rows) ([]*models.Chunk, error) {
	var out []*models.Chunk
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
