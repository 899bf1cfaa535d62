package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"docprovrag/internal/errs"
	"docprovrag/internal/hashutil"
	"docprovrag/models"
)

// CreateDocument inserts a pending document row and its root DOCUMENT
// provenance record in one transaction. If a document with the same
// file_hash already exists, the existing document is returned instead
// (ingest dedupe).
func (e *Engine) CreateDocument(ctx context.Context, filePath, fileName, fileHash, fileType string, fileSize int64) (*models.Document, error) {
	db := e.DB()

	if existing, err := e.DocumentByFileHash(ctx, fileHash); err != nil {
		return nil, err
	} else if existing != nil {
		return existing, nil
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("store: begin: %w", err)
	}
	defer tx.Rollback()

	docID := uuid.NewString()
	provID := uuid.NewString()
	ts := now()

	contentHash := hashutil.HashString(fileHash + fileName)

	rec := &models.Provenance{
		ID:             provID,
		Type:           models.ProvDocument,
		CreatedAt:      ts,
		SourceType:     models.SourceFile,
		RootDocumentID: provID,
		ParentIDs:      []string{},
		ChainDepth:     0,
		ChainPath:      []string{string(models.ProvDocument)},
		ContentHash:    contentHash,
		InputHash:      fileHash,
		FileHash:       &fileHash,
		Processor:      "ingest",
	}
	if err := e.Provenance().Create(ctx, tx, rec); err != nil {
		return nil, err
	}

	const q = `INSERT INTO documents (id, file_path, file_name, file_hash, file_size, file_type,
		status, provenance_id, created_at, modified_at) VALUES (?,?,?,?,?,?,?,?,?,?)`
	_, err = tx.ExecContext(ctx, q, docID, filePath, fileName, fileHash, fileSize, fileType,
		models.DocPending, provID, ts, ts)
	if err != nil {
		return nil, translateConstraintErr(err, "document", map[string]any{"file_hash": fileHash})
	}

	if err := bumpMetadataCounts(ctx, tx, 1, 0); err != nil {
		return nil, err
	}

	if err := insertEntityTags(ctx, tx, "document", docID, []string{fileType}); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("store: commit: %w", err)
	}

	return e.GetDocument(ctx, docID)
}

// DocumentByFileHash returns the document with the given file hash, or
// nil if none exists.
func (e *Engine) DocumentByFileHash(ctx context.Context, fileHash string) (*models.Document, error) {
	row := e.DB().QueryRowContext(ctx, documentSelectCols+` WHERE file_hash = ?`, fileHash)
	doc, err := scanDocument(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: document by file_hash: %w", err)
	}
	return doc, nil
}

// GetDocument fetches one document by id.
func (e *Engine) GetDocument(ctx context.Context, id string) (*models.Document, error) {
	row := e.DB().QueryRowContext(ctx, documentSelectCols+` WHERE id = ?`, id)
	doc, err := scanDocument(row)
	if err == sql.ErrNoRows {
		return nil, errs.NotFound("document", id)
	}
	if err != nil {
		return nil, fmt.Errorf("store: get document: %w", err)
	}
	return doc, nil
}

// ListDocuments pages documents, newest first. limit/offset are clamped.
func (e *Engine) ListDocuments(ctx context.Context, limit, offset int) ([]*models.Document, error) {
	limit, offset = clampPage(limit, offset)
	rows, err := e.DB().QueryContext(ctx, documentSelectCols+` ORDER BY created_at DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("store: list documents: %w", err)
	}
	defer rows.Close()

	var out []*models.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, rows.Err()
}

// SetDocumentStatus transitions a document's lifecycle status.
func (e *Engine) SetDocumentStatus(ctx context.Context, id string, status models.DocumentStatus, errMsg *string) error {
	_, err := e.DB().ExecContext(ctx,
		`UPDATE documents SET status = ?, error_message = ?, modified_at = ? WHERE id = ?`,
		status, errMsg, now(), id)
	if err != nil {
		return fmt.Errorf("store: set document status: %w", err)
	}
	return nil
}

func clampPage(limit, offset int) (int, int) {
	if limit <= 0 || limit > 5000 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

const documentSelectCols = `SELECT id, file_path, file_name, file_hash, file_size, file_type, status,
	page_count, provenance_id, created_at, modified_at, ocr_completed_at, error_message,
	doc_title, doc_author, doc_subject, datalab_file_id FROM documents`

func scanDocument(row rowScanner) (*models.Document, error) {
	var d models.Document
	var status string
	if err := row.Scan(&d.ID, &d.FilePath, &d.FileName, &d.FileHash, &d.FileSize, &d.FileType, &status,
		&d.PageCount, &d.ProvenanceID, &d.CreatedAt, &d.ModifiedAt, &d.OCRCompletedAt, &d.ErrorMessage,
		&d.DocTitle, &d.DocAuthor, &d.DocSubject, &d.DatalabFileID); err != nil {
		return nil, err
	}
	d.Status = models.DocumentStatus(status)
	return &d, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

// bumpMetadataCounts adjusts the rolling document/chunk counts in
// database_metadata, seeding the singleton row if absent.
func bumpMetadataCounts(ctx context.Context, tx *sql.Tx, docDelta, chunkDelta int) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO database_metadata (id, document_count, chunk_count, updated_at)
		VALUES (1, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			document_count = document_count + excluded.document_count,
			chunk_count = chunk_count + excluded.chunk_count,
			updated_at = excluded.updated_at`,
		docDelta, chunkDelta, now())
	if err != nil {
		return fmt.Errorf("store: bump metadata counts: %w", err)
	}
	return nil
}

// translateConstraintErr maps a sqlite constraint failure to the
// conflict/integrity error kinds instead of leaking the driver string.
func translateConstraintErr(err error, entity string, details map[string]any) error {
	msg := err.Error()
	switch {
	case containsAny(msg, "UNIQUE constraint"):
		return errs.Conflict(errs.CategoryDatabaseExists, fmt.Sprintf("%s already exists", entity), details)
	case containsAny(msg, "FOREIGN KEY constraint"):
		return errs.New(errs.ErrIntegrity, errs.CategoryForeignKey, fmt.Sprintf("%s references a missing row", entity), details)
	default:
		return fmt.Errorf("store: %s: %w", entity, err)
	}
}

func containsAny(s string, substrs ...string) bool {
	for _, sub := range substrs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
