package store

import (
	"context"
	"database/sql"
	"fmt"
)

// IntegrityGap reports one category of health-check finding.
type IntegrityGap struct {
	Category  string   `json:"category"`
	Count     int      `json:"count"`
	SampleIDs []string `json:"sample_ids"`
	Fixable   bool     `json:"fixable"`
	FixTool   string   `json:"fix_tool,omitempty"`
}

// HealthReport is the full integrity scan result.
type HealthReport struct {
	Gaps []IntegrityGap
}

const sampleSize = 10

// CheckHealth walks the integrity predicates: chunks without embeddings,
// documents without OCR results, images with pending VLM, orphan
// vectors, orphan provenance. If fix is true, orphan vectors are pruned;
// the other categories marked fixable are reported with the FixTool that
// repairs them and are not repaired by this call. With fix false the
// call is read-only.
func (e *Engine) CheckHealth(ctx context.Context, fix bool) (*HealthReport, error) {
	report := &HealthReport{}

	gap, err := e.gapChunksWithoutEmbeddings(ctx)
	if err != nil {
		return nil, err
	}
	report.Gaps = append(report.Gaps, gap)

	gap, err = e.gapDocumentsWithoutOCR(ctx)
	if err != nil {
		return nil, err
	}
	report.Gaps = append(report.Gaps, gap)

	gap, err = e.gapPendingVLM(ctx)
	if err != nil {
		return nil, err
	}
	report.Gaps = append(report.Gaps, gap)

	gap, err = e.gapOrphanVectors(ctx, fix)
	if err != nil {
		return nil, err
	}
	report.Gaps = append(report.Gaps, gap)

	gap, err = e.gapOrphanProvenance(ctx)
	if err != nil {
		return nil, err
	}
	report.Gaps = append(report.Gaps, gap)

	return report, nil
}

func (e *Engine) gapChunksWithoutEmbeddings(ctx context.Context) (IntegrityGap, error) {
	ids, err := queryIDs(ctx, e.DB(), `SELECT c.id FROM chunks c LEFT JOIN embeddings e ON e.chunk_id = c.id
		WHERE e.id IS NULL AND c.embedding_status != 'complete' LIMIT ?`, sampleSize)
	if err != nil {
		return IntegrityGap{}, err
	}
	count, err := countRows(ctx, e.DB(), `SELECT COUNT(*) FROM chunks c LEFT JOIN embeddings e ON e.chunk_id = c.id
		WHERE e.id IS NULL AND c.embedding_status != 'complete'`)
	if err != nil {
		return IntegrityGap{}, err
	}
	return IntegrityGap{Category: "chunks_without_embeddings", Count: count, SampleIDs: ids, Fixable: true, FixTool: "reembed_chunks"}, nil
}

func (e *Engine) gapDocumentsWithoutOCR(ctx context.Context) (IntegrityGap, error) {
	ids, err := queryIDs(ctx, e.DB(), `SELECT d.id FROM documents d LEFT JOIN ocr_results o ON o.document_id = d.id
		WHERE o.id IS NULL AND d.status != 'pending' LIMIT ?`, sampleSize)
	if err != nil {
		return IntegrityGap{}, err
	}
	count, err := countRows(ctx, e.DB(), `SELECT COUNT(*) FROM documents d LEFT JOIN ocr_results o ON o.document_id = d.id
		WHERE o.id IS NULL AND d.status != 'pending'`)
	if err != nil {
		return IntegrityGap{}, err
	}
	return IntegrityGap{Category: "documents_without_ocr", Count: count, SampleIDs: ids, Fixable: false}, nil
}

func (e *Engine) gapPendingVLM(ctx context.Context) (IntegrityGap, error) {
	ids, err := queryIDs(ctx, e.DB(), `SELECT id FROM images WHERE vlm_status = 'pending' LIMIT ?`, sampleSize)
	if err != nil {
		return IntegrityGap{}, err
	}
	count, err := countRows(ctx, e.DB(), `SELECT COUNT(*) FROM images WHERE vlm_status = 'pending'`)
	if err != nil {
		return IntegrityGap{}, err
	}
	return IntegrityGap{Category: "images_pending_vlm", Count: count, SampleIDs: ids, Fixable: true, FixTool: "run_vlm_pipeline"}, nil
}

func (e *Engine) gapOrphanVectors(ctx context.Context, fix bool) (IntegrityGap, error) {
	ids, err := queryIDs(ctx, e.DB(), `SELECT v.embedding_id FROM vec_embeddings v
		LEFT JOIN embeddings e ON e.id = v.embedding_id WHERE e.id IS NULL LIMIT ?`, sampleSize)
	if err != nil {
		return IntegrityGap{}, err
	}
	count, err := countRows(ctx, e.DB(), `SELECT COUNT(*) FROM vec_embeddings v
		LEFT JOIN embeddings e ON e.id = v.embedding_id WHERE e.id IS NULL`)
	if err != nil {
		return IntegrityGap{}, err
	}
	if fix && count > 0 {
		if _, err := e.DB().ExecContext(ctx, `DELETE FROM vec_embeddings WHERE embedding_id NOT IN (SELECT id FROM embeddings)`); err != nil {
			return IntegrityGap{}, fmt.Errorf("store: fix orphan vectors: %w", err)
		}
		count = 0
	}
	return IntegrityGap{Category: "orphan_vectors", Count: count, SampleIDs: ids, Fixable: true, FixTool: "prune_orphan_vectors"}, nil
}

func (e *Engine) gapOrphanProvenance(ctx context.Context) (IntegrityGap, error) {
	ids, err := queryIDs(ctx, e.DB(), `SELECT p.id FROM provenance p WHERE p.parent_id IS NOT NULL
		AND NOT EXISTS (SELECT 1 FROM provenance parent WHERE parent.id = p.parent_id) LIMIT ?`, sampleSize)
	if err != nil {
		return IntegrityGap{}, err
	}
	count, err := countRows(ctx, e.DB(), `SELECT COUNT(*) FROM provenance p WHERE p.parent_id IS NOT NULL
		AND NOT EXISTS (SELECT 1 FROM provenance parent WHERE parent.id = p.parent_id)`)
	if err != nil {
		return IntegrityGap{}, err
	}
	return IntegrityGap{Category: "orphan_provenance", Count: count, SampleIDs: ids, Fixable: false}, nil
}

func queryIDs(ctx context.Context, db *sql.DB, query string, limit int) ([]string, error) {
	rows, err := db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("store: health query: %w", err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func countRows(ctx context.Context, db *sql.DB, query string) (int, error) {
	var n int
	if err := db.QueryRowContext(ctx, query).Scan(&n); err != nil {
		return 0, fmt.Errorf("store: health count: %w", err)
	}
	return n, nil
}
