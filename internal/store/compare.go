package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"docprovrag/internal/hashutil"
	"docprovrag/models"
)

// ComparisonResult is the full comparison payload for a document pair.
type ComparisonResult struct {
	DocumentAID      string         `json:"document_a_id"`
	DocumentBID      string         `json:"document_b_id"`
	Summary          string         `json:"summary"`
	TextDiff         []DiffLine     `json:"text_diff,omitempty"`
	StructuralDiff    map[string]any `json:"structural_diff,omitempty"`
	ComponentsFailed []string       `json:"components_failed"`
}

// DiffLine is one line-level operation in a text diff.
type DiffLine struct {
	Op   string `json:"op"` // "equal", "insert", "delete"
	Text string `json:"text"`
}

// CompareDocuments diffs two documents' OCR text and structural
// metadata, recording a COMPARISON provenance for the pair. Any
// component that fails to compute is listed in ComponentsFailed rather
// than aborting the whole comparison.
func (e *Engine) CompareDocuments(ctx context.Context, aID, bID string) (*ComparisonResult, error) {
	result := &ComparisonResult{DocumentAID: aID, DocumentBID: bID}

	docA, err := e.GetDocument(ctx, aID)
	if err != nil {
		return nil, err
	}
	docB, err := e.GetDocument(ctx, bID)
	if err != nil {
		return nil, err
	}

	ocrA, errA := e.GetOCRResult(ctx, aID)
	ocrB, errB := e.GetOCRResult(ctx, bID)

	if errA != nil || errB != nil {
		result.ComponentsFailed = append(result.ComponentsFailed, "text_diff", "structural_diff")
	} else {
		result.TextDiff = lineDiff(ocrA.ExtractedText, ocrB.ExtractedText)
		result.StructuralDiff = map[string]any{
			"page_count_a":     ocrA.PageCount,
			"page_count_b":     ocrB.PageCount,
			"text_length_a":    ocrA.TextLength,
			"text_length_b":    ocrB.TextLength,
			"quality_score_a":  ocrA.ParseQualityScore,
			"quality_score_b":  ocrB.ParseQualityScore,
			"mode_a":           ocrA.DatalabMode,
			"mode_b":           ocrB.DatalabMode,
		}
	}

	result.Summary = summarize(docA, docB, result)

	rootProv, err := e.Provenance().Chain(ctx, docA.ProvenanceID)
	if err != nil {
		return nil, err
	}

	tx, err := e.DB().BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("store: begin: %w", err)
	}
	defer tx.Rollback()

	compID := uuid.NewString()
	provID := uuid.NewString()
	ts := now()
	rec := &models.Provenance{
		ID: provID, Type: models.ProvComparison, CreatedAt: ts, SourceType: models.SourceFile,
		SourceID: &docA.ProvenanceID, RootDocumentID: rootProv[0].ID, ParentID: &docA.ProvenanceID,
		ParentIDs: []string{docA.ProvenanceID}, ChainDepth: 1,
		ChainPath: []string{string(models.ProvDocument), string(models.ProvComparison)},
		ContentHash: hashutil.HashString(aID + ":" + bID), Processor: "compare",
	}
	if err := e.Provenance().Create(ctx, tx, rec); err != nil {
		return nil, err
	}

	componentsJSON, err := json.Marshal(result.ComponentsFailed)
	if err != nil {
		return nil, fmt.Errorf("store: encode components_failed: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO comparisons (id, document_a_id, document_b_id, summary,
		components_failed, provenance_id, created_at) VALUES (?,?,?,?,?,?,?)`,
		compID, aID, bID, result.Summary, string(componentsJSON), provID, ts); err != nil {
		return nil, fmt.Errorf("store: insert comparison: %w", err)
	}

	return result, tx.Commit()
}

func summarize(a, b *models.Document, result *ComparisonResult) string {
	if len(result.ComponentsFailed) > 0 {
		return fmt.Sprintf("%s vs %s: comparison incomplete (%s unavailable)", a.FileName, b.FileName, strings.Join(result.ComponentsFailed, ", "))
	}
	changed := 0
	for _, l := range result.TextDiff {
		if l.Op != "equal" {
			changed++
		}
	}
	return fmt.Sprintf("%s vs %s: %d changed lines of %d", a.FileName, b.FileName, changed, len(result.TextDiff))
}

// lineDiff computes a simple line-level diff using longest-common-
// subsequence backtracking, adequate for the document-pair comparisons
// this system performs (page-scale text, not large binary blobs).
func lineDiff(a, b string) []DiffLine {
	linesA := strings.Split(a, "\n")
	linesB := strings.Split(b, "\n")

	n, m := len(linesA), len(linesB)
	lcs := make([][]int, n+1)
	for i := range lcs {
		lcs[i] = make([]int, m+1)
	}
	for i := n - 1; i >= 0; i-- {
		for j := m - 1; j >= 0; j-- {
			if linesA[i] == linesB[j] {
				lcs[i][j] = lcs[i+1][j+1] + 1
			} else if lcs[i+1][j] >= lcs[i][j+1] {
				lcs[i][j] = lcs[i+1][j]
			} else {
				lcs[i][j] = lcs[i][j+1]
			}
		}
	}

	var out []DiffLine
	i, j := 0, 0
	for i < n && j < m {
		switch {
		case linesA[i] == linesB[j]:
			out = append(out, DiffLine{Op: "equal", Text: linesA[i]})
			i++
			j++
		case lcs[i+1][j] >= lcs[i][j+1]:
			out = append(out, DiffLine{Op: "delete", Text: linesA[i]})
			i++
		default:
			out = append(out, DiffLine{Op: "insert", Text: linesB[j]})
			j++
		}
	}
	for ; i < n; i++ {
		out = append(out, DiffLine{Op: "delete", Text: linesA[i]})
	}
	for ; j < m; j++ {
		out = append(out, DiffLine{Op: "insert", Text: linesB[j]})
	}
	return out
}
