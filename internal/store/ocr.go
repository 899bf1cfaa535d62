package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"docprovrag/internal/errs"
	"docprovrag/internal/hashutil"
	"docprovrag/models"
)

// RecordOCRResult persists one OCR pass plus its OCR_RESULT provenance,
// and transitions the document to processing (if pending) or leaves its
// status untouched otherwise; the caller marks the document complete
// after chunking/embedding succeed.
func (e *Engine) RecordOCRResult(ctx context.Context, doc *models.Document, text string, mode models.DatalabMode, pageCount int, qualityScore float64, jsonBlocks map[string]any) (*models.OCRResult, *models.Provenance, error) {
	docProv, err := e.Provenance().Chain(ctx, doc.ProvenanceID)
	if err != nil {
		return nil, nil, err
	}
	rootProv := docProv[0]

	tx, err := e.DB().BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("store: begin: %w", err)
	}
	defer tx.Rollback()

	ocrID := uuid.NewString()
	provID := uuid.NewString()
	ts := now()
	contentHash := hashutil.HashString(text)

	rec := &models.Provenance{
		ID:             provID,
		Type:           models.ProvOCRResult,
		CreatedAt:      ts,
		SourceType:     models.SourceOCR,
		SourceID:       &doc.ProvenanceID,
		RootDocumentID: rootProv.ID,
		ParentID:       &doc.ProvenanceID,
		ParentIDs:      []string{doc.ProvenanceID},
		ChainDepth:     1,
		ChainPath:      []string{string(models.ProvDocument), string(models.ProvOCRResult)},
		ContentHash:    contentHash,
		InputHash:      doc.FileHash,
		FileHash:       &doc.FileHash,
		Processor:      "ocr",
		ProcessingParams: map[string]any{
			"mode": string(mode), "page_count": pageCount,
		},
	}
	if err := e.Provenance().Create(ctx, tx, rec); err != nil {
		return nil, nil, err
	}

	blocksJSON, err := hashutil.CanonicalJSON(jsonBlocks)
	if err != nil {
		return nil, nil, fmt.Errorf("store: encode json_blocks: %w", err)
	}

	const q = `INSERT INTO ocr_results (id, document_id, extracted_text, text_length, datalab_mode,
		parse_quality_score, page_count, content_hash, created_at, json_blocks) VALUES (?,?,?,?,?,?,?,?,?,?)`
	_, err = tx.ExecContext(ctx, q, ocrID, doc.ID, text, len(text), string(mode), qualityScore, pageCount, contentHash, ts, string(blocksJSON))
	if err != nil {
		return nil, nil, translateConstraintErr(err, "ocr_result", map[string]any{"document_id": doc.ID})
	}

	if doc.Status == models.DocPending {
		if _, err := tx.ExecContext(ctx, `UPDATE documents SET status = ?, modified_at = ? WHERE id = ?`, models.DocProcessing, ts, doc.ID); err != nil {
			return nil, nil, fmt.Errorf("store: mark document processing: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("store: commit: %w", err)
	}

	return &models.OCRResult{
		ID: ocrID, DocumentID: doc.ID, ExtractedText: text, TextLength: len(text),
		DatalabMode: mode, ParseQualityScore: qualityScore, PageCount: pageCount,
		ContentHash: contentHash, CreatedAt: ts, JSONBlocks: jsonBlocks,
	}, rec, nil
}

// GetOCRResult fetches the single OCR result for a document.
func (e *Engine) GetOCRResult(ctx context.Context, documentID string) (*models.OCRResult, error) {
	row := e.DB().QueryRowContext(ctx, ocrSelectCols+` WHERE document_id = ?`, documentID)
	res, err := scanOCRResult(row)
	if err == sql.ErrNoRows {
		return nil, errs.NotFound("ocr_result", documentID)
	}
	if err != nil {
		return nil, fmt.Errorf("store: get ocr_result: %w", err)
	}
	return res, nil
}

const ocrSelectCols = `SELECT id, document_id, extracted_text, text_length, datalab_request_id, datalab_mode,
	parse_quality_score, page_count, cost_cents, content_hash, created_at, json_blocks FROM ocr_results`

func scanOCRResult(row rowScanner) (*models.OCRResult, error) {
	var r models.OCRResult
	var mode string
	var reqID sql.NullString
	var blocksJSON sql.NullString
	if err := row.Scan(&r.ID, &r.DocumentID, &r.ExtractedText, &r.TextLength, &reqID, &mode,
		&r.ParseQualityScore, &r.PageCount, &r.CostCents, &r.ContentHash, &r.CreatedAt, &blocksJSON); err != nil {
		return nil, err
	}
	r.DatalabMode = models.DatalabMode(mode)
	r.DatalabRequestID = reqID.String
	if blocksJSON.Valid && blocksJSON.String != "" && blocksJSON.String != "null" {
		if err := json.Unmarshal([]byte(blocksJSON.String), &r.JSONBlocks); err != nil {
			r.JSONBlocks = map[string]any{"_parse_error": true, "_raw": blocksJSON.String}
		}
	}
	return &r, nil
}
