package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"docprovrag/internal/errs"
	"docprovrag/internal/hashutil"
	"docprovrag/models"
)

// InsertImage writes an image row plus its IMAGE provenance.
// The caller decides is_header_footer; InsertImage rejects a flagged
// image whose block_type is not PageHeader, PageFooter or Picture, and
// otherwise persists the flag as given.
func (e *Engine) InsertImage(ctx context.Context, img *models.Image, prov *models.Provenance) error {
	if img.IsHeaderFooter {
		switch img.BlockType {
		case models.BlockPageHeader, models.BlockPageFooter, models.BlockPicture:
		default:
			return errs.Validation("is_header_footer requires block_type in {PageHeader, PageFooter, Picture}", map[string]any{
				"block_type": img.BlockType,
			})
		}
	}

	tx, err := e.DB().BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin: %w", err)
	}
	defer tx.Rollback()

	if err := e.Provenance().Create(ctx, tx, prov); err != nil {
		return err
	}

	var structuredJSON []byte
	if img.VLMStructuredData != nil {
		structuredJSON, err = hashutil.CanonicalJSON(img.VLMStructuredData)
		if err != nil {
			return fmt.Errorf("store: encode vlm_structured_data: %w", err)
		}
	}

	const q = `INSERT INTO images (id, document_id, ocr_result_id, page_number, bbox_x, bbox_y, bbox_width,
		bbox_height, image_index, format, width, height, extracted_path, file_size, vlm_status,
		vlm_description, vlm_structured_data, vlm_model, vlm_confidence, vlm_processed_at, vlm_tokens_used,
		context_text, provenance_id, block_type, is_header_footer, content_hash)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`
	_, err = tx.ExecContext(ctx, q, img.ID, img.DocumentID, img.OCRResultID, img.PageNumber,
		img.BoundingBox.X, img.BoundingBox.Y, img.BoundingBox.Width, img.BoundingBox.Height, img.ImageIndex,
		img.Format, img.Dimensions.Width, img.Dimensions.Height, img.ExtractedPath, img.FileSize,
		string(img.VLMStatus), img.VLMDescription, nullableString(structuredJSON), img.VLMModel,
		img.VLMConfidence, img.VLMProcessedAt, img.VLMTokensUsed, img.ContextText, img.ProvenanceID,
		string(img.BlockType), img.IsHeaderFooter, img.ContentHash)
	if err != nil {
		return translateConstraintErr(err, "image", map[string]any{"document_id": img.DocumentID})
	}

	tags := []string{string(img.BlockType)}
	if img.IsHeaderFooter {
		tags = append(tags, "header_footer")
	}
	if err := insertEntityTags(ctx, tx, "image", img.ProvenanceID, tags); err != nil {
		return err
	}

	return tx.Commit()
}

// RecordProvenance writes a standalone provenance row in its own
// transaction. Most provenance rows are created alongside the artifact
// they describe (InsertImage, InsertEmbedding, ...) and share that
// artifact's transaction; this entry point is for the rarer case where
// a caller (the VLM pipeline's description and dedup-reuse steps) needs
// to record a provenance row with no artifact row of its own.
func (e *Engine) RecordProvenance(ctx context.Context, prov *models.Provenance) error {
	tx, err := e.DB().BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin: %w", err)
	}
	defer tx.Rollback()
	if err := e.Provenance().Create(ctx, tx, prov); err != nil {
		return err
	}
	return tx.Commit()
}

// ImageByContentHash finds an already-described image sharing identical
// pixel bytes, used by the VLM pipeline's dedup-by-content-hash policy.
func (e *Engine) ImageByContentHash(ctx context.Context, hash string) (*models.Image, error) {
	row := e.DB().QueryRowContext(ctx, imageSelectCols+` WHERE content_hash = ? AND vlm_status = 'complete' LIMIT 1`, hash)
	img, err := scanImage(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return img, err
}

// SetImageVLMResult records the outcome of a VLM description call.
func (e *Engine) SetImageVLMResult(ctx context.Context, imageID string, status models.VLMStatus, description string, structured map[string]any, embeddingID *string, modelName string, confidence *float64, tokensUsed *int) error {
	structuredJSON, err := hashutil.CanonicalJSON(structured)
	if err != nil {
		return fmt.Errorf("store: encode vlm_structured_data: %w", err)
	}
	_, err = e.DB().ExecContext(ctx, `UPDATE images SET vlm_status=?, vlm_description=?, vlm_structured_data=?,
		vlm_embedding_id=?, vlm_model=?, vlm_confidence=?, vlm_processed_at=?, vlm_tokens_used=? WHERE id=?`,
		string(status), description, nullableString(structuredJSON), embeddingID, modelName, confidence, now(), tokensUsed, imageID)
	if err != nil {
		return fmt.Errorf("store: set image vlm result: %w", err)
	}
	return nil
}

// ListImagesByDocument lists a document's images, capped at 5,000 rows
// per the bounded-state requirement.
func (e *Engine) ListImagesByDocument(ctx context.Context, documentID string) ([]*models.Image, error) {
	rows, err := e.DB().QueryContext(ctx, imageSelectCols+` WHERE document_id = ? ORDER BY page_number, image_index LIMIT 5000`, documentID)
	if err != nil {
		return nil, fmt.Errorf("store: list images: %w", err)
	}
	defer rows.Close()

	var out []*models.Image
	for rows.Next() {
		img, err := scanImage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, img)
	}
	return out, rows.Err()
}

// PendingVLMImages lists images awaiting VLM description, used by the
// health check and the VLM pipeline's work queue.
func (e *Engine) PendingVLMImages(ctx context.Context, limit int) ([]*models.Image, error) {
	if limit <= 0 || limit > 5000 {
		limit = 500
	}
	rows, err := e.DB().QueryContext(ctx, imageSelectCols+` WHERE vlm_status = 'pending' ORDER BY page_number LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list pending vlm images: %w", err)
	}
	defer rows.Close()

	var out []*models.Image
	for rows.Next() {
		img, err := scanImage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, img)
	}
	return out, rows.Err()
}

const imageSelectCols = `SELECT id, document_id, ocr_result_id, page_number, bbox_x, bbox_y, bbox_width,
	bbox_height, image_index, format, width, height, extracted_path, file_size, vlm_status, vlm_description,
	vlm_structured_data, vlm_embedding_id, vlm_model, vlm_confidence, vlm_processed_at, vlm_tokens_used,
	context_text, provenance_id, block_type, is_header_footer, content_hash FROM images`

func scanImage(row rowScanner) (*models.Image, error) {
	var img models.Image
	var status, blockType string
	var structuredJSON sql.NullString
	if err := row.Scan(&img.ID, &img.DocumentID, &img.OCRResultID, &img.PageNumber, &img.BoundingBox.X,
		&img.BoundingBox.Y, &img.BoundingBox.Width, &img.BoundingBox.Height, &img.ImageIndex, &img.Format,
		&img.Dimensions.Width, &img.Dimensions.Height, &img.ExtractedPath, &img.FileSize, &status,
		&img.VLMDescription, &structuredJSON, &img.VLMEmbeddingID, &img.VLMModel, &img.VLMConfidence,
		&img.VLMProcessedAt, &img.VLMTokensUsed, &img.ContextText, &img.ProvenanceID, &blockType,
		&img.IsHeaderFooter, &img.ContentHash); err != nil {
		return nil, err
	}
	img.VLMStatus = models.VLMStatus(status)
	img.BlockType = models.BlockType(blockType)
	if structuredJSON.Valid && structuredJSON.String != "" && structuredJSON.String != "null" {
		if err := json.Unmarshal([]byte(structuredJSON.String), &img.VLMStructuredData); err != nil {
			img.VLMStructuredData = map[string]any{"_parse_error": true, "_raw": structuredJSON.String}
		}
	}
	return &img, nil
}
