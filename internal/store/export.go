package store

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strings"

	"docprovrag/models"
)

// ExportFormat selects the export encoding.
type ExportFormat string

const (
	ExportJSON     ExportFormat = "json"
	ExportCSV      ExportFormat = "csv"
	ExportMarkdown ExportFormat = "markdown"
)

// DocumentExport is the full export payload for one document.
type DocumentExport struct {
	Document    *models.Document      `json:"document"`
	OCRResult   *models.OCRResult     `json:"ocr_result,omitempty"`
	Chunks      []*models.Chunk       `json:"chunks,omitempty"`
	Images      []*models.Image       `json:"images,omitempty"`
	Provenance  []*models.Provenance  `json:"provenance,omitempty"`
}

// ExportDocumentOptions selects which related rows ride along.
type ExportDocumentOptions struct {
	IncludeChunks     bool
	IncludeImages     bool
	IncludeProvenance bool
}

// ExportDocument builds the export payload and encodes it in the
// requested format.
func (e *Engine) ExportDocument(ctx context.Context, documentID string, format ExportFormat, opts ExportDocumentOptions) ([]byte, error) {
	doc, err := e.GetDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	payload := DocumentExport{Document: doc}

	if ocr, err := e.GetOCRResult(ctx, documentID); err == nil {
		payload.OCRResult = ocr
	}
	if opts.IncludeChunks {
		if payload.Chunks, err = e.ListChunksByDocument(ctx, documentID); err != nil {
			return nil, err
		}
	}
	if opts.IncludeImages {
		if payload.Images, err = e.ListImagesByDocument(ctx, documentID); err != nil {
			return nil, err
		}
	}
	if opts.IncludeProvenance {
		if payload.Provenance, err = e.Provenance().ByRootDocument(ctx, doc.ProvenanceID); err != nil {
			return nil, err
		}
	}

	switch format {
	case ExportCSV:
		return exportDocumentCSV(payload)
	case ExportMarkdown:
		return exportDocumentMarkdown(payload), nil
	default:
		return json.MarshalIndent(payload, "", "  ")
	}
}

func exportDocumentCSV(payload DocumentExport) ([]byte, error) {
	var buf strings.Builder
	w := csv.NewWriter(&buf)
	_ = w.Write([]string{"chunk_index", "heading_context", "section_path", "text"})
	for _, c := range payload.Chunks {
		_ = w.Write([]string{fmt.Sprint(c.ChunkIndex), c.HeadingContext, c.SectionPath, c.Text})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("store: export csv: %w", err)
	}
	return []byte(buf.String()), nil
}

func exportDocumentMarkdown(payload DocumentExport) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", payload.Document.FileName)
	fmt.Fprintf(&b, "- file_hash: %s\n- status: %s\n\n", payload.Document.FileHash, payload.Document.Status)
	for _, c := range payload.Chunks {
		if c.HeadingContext != "" {
			fmt.Fprintf(&b, "## %s\n\n", c.HeadingContext)
		}
		fmt.Fprintf(&b, "%s\n\n", c.Text)
	}
	return []byte(b.String())
}

// CorpusSummary is one row of the streamed corpus export.
type CorpusSummary struct {
	DocumentID string `json:"document_id"`
	FileName   string `json:"file_name"`
	Status     string `json:"status"`
	ChunkCount int    `json:"chunk_count"`
	ImageCount int    `json:"image_count"`
}

// ExportCorpus streams document summaries with chunk/image counts.
func (e *Engine) ExportCorpus(ctx context.Context) ([]CorpusSummary, error) {
	rows, err := e.DB().QueryContext(ctx, `SELECT d.id, d.file_name, d.status,
		(SELECT COUNT(*) FROM chunks c WHERE c.document_id = d.id),
		(SELECT COUNT(*) FROM images i WHERE i.document_id = d.id)
		FROM documents d ORDER BY d.created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("store: export corpus: %w", err)
	}
	defer rows.Close()

	var out []CorpusSummary
	for rows.Next() {
		var s CorpusSummary
		if err := rows.Scan(&s.DocumentID, &s.FileName, &s.Status, &s.ChunkCount, &s.ImageCount); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
