package store

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
)

// DeleteDocument cascades the deletion of a document and everything it
// owns. Order matters: the circular FK between images.vlm_embedding_id
// and embeddings.image_id is broken first by nulling vlm_embedding_id,
// vec_embeddings rows (not itself FK-linked to embeddings) are deleted
// explicitly, entity_tags are deleted by (entity_type, entity_id) pairs,
// and provenance rows are removed deepest-first last, after every row
// that references them is gone.
func (e *Engine) DeleteDocument(ctx context.Context, documentID string) error {
	tx, err := e.DB().BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin: %w", err)
	}
	defer tx.Rollback()

	var embeddingIDs []string
	rows, err := tx.QueryContext(ctx, `SELECT id FROM embeddings WHERE document_id = ?`, documentID)
	if err != nil {
		return fmt.Errorf("store: cascade: list embeddings: %w", err)
	}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return err
		}
		embeddingIDs = append(embeddingIDs, id)
	}
	rows.Close()

	if _, err := tx.ExecContext(ctx, `UPDATE images SET vlm_embedding_id = NULL WHERE document_id = ?`, documentID); err != nil {
		return fmt.Errorf("store: cascade: null vlm_embedding_id: %w", err)
	}

	for _, id := range embeddingIDs {
		if _, err := tx.ExecContext(ctx, `DELETE FROM vec_embeddings WHERE embedding_id = ?`, id); err != nil {
			return fmt.Errorf("store: cascade: delete vec_embeddings: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM embeddings WHERE document_id = ?`, documentID); err != nil {
		return fmt.Errorf("store: cascade: delete embeddings: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM images WHERE document_id = ?`, documentID); err != nil {
		return fmt.Errorf("store: cascade: delete images: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM extractions WHERE document_id = ?`, documentID); err != nil {
		return fmt.Errorf("store: cascade: delete extractions: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE document_id = ?`, documentID); err != nil {
		return fmt.Errorf("store: cascade: delete chunks: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM document_clusters WHERE document_id = ?`, documentID); err != nil {
		return fmt.Errorf("store: cascade: delete document_clusters: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM workflow_states WHERE document_id = ?`, documentID); err != nil {
		return fmt.Errorf("store: cascade: delete workflow_states: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM comparisons WHERE document_a_id = ? OR document_b_id = ?`, documentID, documentID); err != nil {
		return fmt.Errorf("store: cascade: delete comparisons: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM ocr_results WHERE document_id = ?`, documentID); err != nil {
		return fmt.Errorf("store: cascade: delete ocr_results: %w", err)
	}

	for _, entityType := range []string{"document", "chunk", "image", "extraction", "embedding"} {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM entity_tags WHERE entity_type = ? AND entity_id IN (
				SELECT id FROM provenance WHERE root_document_id IN (SELECT provenance_id FROM documents WHERE id = ?)
			)`, entityType, documentID); err != nil {
			return fmt.Errorf("store: cascade: delete entity_tags: %w", err)
		}
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM entity_tags WHERE entity_type = 'document' AND entity_id = ?`, documentID); err != nil {
		return fmt.Errorf("store: cascade: delete document entity_tags: %w", err)
	}

	var rootProvID string
	if err := tx.QueryRowContext(ctx, `SELECT provenance_id FROM documents WHERE id = ?`, documentID).Scan(&rootProvID); err != nil {
		return fmt.Errorf("store: cascade: load document provenance_id: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, documentID); err != nil {
		return fmt.Errorf("store: cascade: delete document: %w", err)
	}

	if err := deleteProvenanceDeepestFirst(ctx, tx, rootProvID); err != nil {
		return err
	}

	if err := bumpMetadataCounts(ctx, tx, -1, 0); err != nil {
		return err
	}

	return tx.Commit()
}

// deleteProvenanceDeepestFirst removes rootID and every descendant
// provenance row, ordered by chain_depth descending so children are
// always gone before their parents.
func deleteProvenanceDeepestFirst(ctx context.Context, tx *sql.Tx, rootID string) error {
	rows, err := tx.QueryContext(ctx, `SELECT id, chain_depth FROM provenance WHERE root_document_id = (
		SELECT root_document_id FROM provenance WHERE id = ?
	)`, rootID)
	if err != nil {
		return fmt.Errorf("store: cascade: list provenance: %w", err)
	}
	type row struct {
		id    string
		depth int
	}
	var all []row
	for rows.Next() {
		var r row
		if err := rows.Scan(&r.id, &r.depth); err != nil {
			rows.Close()
			return err
		}
		all = append(all, r)
	}
	rows.Close()

	sort.Slice(all, func(i, j int) bool { return all[i].depth > all[j].depth })
	for _, r := range all {
		if _, err := tx.ExecContext(ctx, `DELETE FROM provenance WHERE id = ?`, r.id); err != nil {
			return fmt.Errorf("store: cascade: delete provenance %s: %w", r.id, err)
		}
	}
	return nil
}
