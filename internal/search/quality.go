package search

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
)

// QualityBoostFloor and QualityBoostCeiling bound the multiplier applied
// to a result based on its OCR quality score: the lowest-quality chunks
// are still surfaced, just discounted, never zeroed out.
const (
	QualityBoostFloor   = 0.8
	QualityBoostCeiling = 1.0
)

// QualityMultiplier maps an OCR quality score in [0, 1] to a relevance
// multiplier in [QualityBoostFloor, QualityBoostCeiling]. A missing
// score (no OCR quality signal available) is treated as full quality,
// since absence of a penalty signal should never itself be penalized.
func QualityMultiplier(qualityScore *float64) float64 {
	if qualityScore == nil {
		return QualityBoostCeiling
	}
	q := *qualityScore
	if q < 0 {
		q = 0
	}
	if q > 1 {
		q = 1
	}
	return QualityBoostFloor + q*(QualityBoostCeiling-QualityBoostFloor)
}

// ApplyQualityBoostLexical re-weights and re-sorts BM25 results by
// quality-adjusted score, recomputing rank in place. BM25 scores from
// FTS5 are negative and lower-is-better, so multiplying by the
// multiplier (at most 1) moves low-quality chunks toward zero, further
// down rather than up.
func ApplyQualityBoostLexical(results []LexicalResult) []LexicalResult {
	out := make([]LexicalResult, len(results))
	copy(out, results)
	for i := range out {
		mult := QualityMultiplier(out[i].OCRQualityScore)
		out[i].BM25Score = out[i].BM25Score * mult
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].BM25Score < out[j].BM25Score })
	for i := range out {
		out[i].Rank = i + 1
	}
	return out
}

// ApplyQualityBoostSemantic re-weights and re-sorts semantic results by
// quality-adjusted similarity, recomputing rank in place. Semantic
// similarity is higher-is-better, so multiplying directly applies the
// discount.
func ApplyQualityBoostSemantic(results []SemanticResult, qualityByEmbeddingID map[string]*float64) []SemanticResult {
	out := make([]SemanticResult, len(results))
	copy(out, results)
	for i := range out {
		mult := QualityMultiplier(qualityByEmbeddingID[out[i].EmbeddingID])
		out[i].Similarity = out[i].Similarity * mult
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Similarity > out[j].Similarity })
	for i := range out {
		out[i].Rank = i + 1
	}
	return out
}

// QualityByEmbeddingID looks up the owning chunk's ocr_quality_score for
// each embedding in results, keyed by embedding id. Only chunk-owned
// embeddings carry a quality score; image and extraction embeddings map
// to nil, which QualityMultiplier treats as full quality.
func QualityByEmbeddingID(ctx context.Context, db *sql.DB, results []SemanticResult) (map[string]*float64, error) {
	out := make(map[string]*float64, len(results))
	if len(results) == 0 {
		return out, nil
	}

	chunkIDToEmbedding := make(map[string]string, len(results))
	placeholders := make([]string, 0, len(results))
	args := make([]any, 0, len(results))
	for _, r := range results {
		out[r.EmbeddingID] = nil
		if r.ChunkID != nil {
			chunkIDToEmbedding[*r.ChunkID] = r.EmbeddingID
			placeholders = append(placeholders, "?")
			args = append(args, *r.ChunkID)
		}
	}
	if len(placeholders) == 0 {
		return out, nil
	}

	q := fmt.Sprintf(`SELECT id, ocr_quality_score FROM chunks WHERE id IN (%s)`, strings.Join(placeholders, ","))

	rows, err := db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("search: quality lookup: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var chunkID string
		var score *float64
		if err := rows.Scan(&chunkID, &score); err != nil {
			return nil, fmt.Errorf("search: scan quality lookup: %w", err)
		}
		if embeddingID, ok := chunkIDToEmbedding[chunkID]; ok {
			out[embeddingID] = score
		}
	}
	return out, rows.Err()
}
