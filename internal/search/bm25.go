package search

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// LexicalResult is one BM25 hit, joined with the chunk and document
// metadata callers need alongside the raw score.
type LexicalResult struct {
	ChunkID         string
	DocumentID      string
	Text            string
	Rank            int
	BM25Score       float64 // raw bm25() output: lower is more relevant
	HeadingContext  string
	SectionPath     string
	ContentTypes    []string
	IsAtomic        bool
	PageRange       *string
	PageNumber      *int
	HeadingLevel    int
	OCRQualityScore *float64
	DocTitle        *string
	DocAuthor       *string
	DocSubject      *string
}

// LexicalSearch runs a sanitized query against chunks_fts and returns
// results ordered by BM25 rank (bm25() ascending means more relevant
// first in SQLite FTS5), annotated with chunk and document metadata.
func LexicalSearch(ctx context.Context, db *sql.DB, rawQuery string, limit int) ([]LexicalResult, error) {
	if limit <= 0 {
		limit = 20
	}
	sanitized := Sanitize(rawQuery)
	if sanitized == "" {
		return nil, nil
	}

	const q = `
		SELECT c.id, c.document_id, c.text, bm25(chunks_fts) AS score,
			c.heading_context, c.section_path, c.content_types, c.is_atomic,
			c.page_range, c.page_number, c.heading_level, c.ocr_quality_score,
			d.doc_title, d.doc_author, d.doc_subject
		FROM chunks_fts
		JOIN chunks c ON c.rowid = chunks_fts.rowid
		JOIN documents d ON d.id = c.document_id
		WHERE chunks_fts MATCH ?
		ORDER BY score ASC
		LIMIT ?`

	rows, err := db.QueryContext(ctx, q, sanitized, limit)
	if err != nil {
		return nil, fmt.Errorf("search: bm25 query: %w", err)
	}
	defer rows.Close()

	var results []LexicalResult
	rank := 1
	for rows.Next() {
		var r LexicalResult
		var contentTypesJSON string
		if err := rows.Scan(&r.ChunkID, &r.DocumentID, &r.Text, &r.BM25Score,
			&r.HeadingContext, &r.SectionPath, &contentTypesJSON, &r.IsAtomic,
			&r.PageRange, &r.PageNumber, &r.HeadingLevel, &r.OCRQualityScore,
			&r.DocTitle, &r.DocAuthor, &r.DocSubject); err != nil {
			return nil, fmt.Errorf("search: scan bm25 result: %w", err)
		}
		_ = json.Unmarshal([]byte(contentTypesJSON), &r.ContentTypes)
		r.Rank = rank
		rank++
		results = append(results, r)
	}
	return results, rows.Err()
}
