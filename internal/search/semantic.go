package search

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ThresholdMode records which path produced the similarity floor
// actually applied to a semantic search's results.
type ThresholdMode string

const (
	ThresholdExplicit        ThresholdMode = "explicit"
	ThresholdAdaptive        ThresholdMode = "adaptive"
	ThresholdAdaptiveFallback ThresholdMode = "adaptive_fallback"
)

// adaptiveStddevFactor (k in mean - k*stddev) controls how permissive
// the adaptive floor is; larger values admit lower-similarity results.
const adaptiveStddevFactor = 1.0

// SemanticResult is one vector KNN hit with its owner identity (exactly
// one of ChunkID/ImageID/ExtractionID is set, matching the embedding
// ownership sum type) and recovered cosine similarity.
type SemanticResult struct {
	EmbeddingID  string
	ChunkID      *string
	ImageID      *string
	ExtractionID *string
	DocumentID   string
	Similarity   float64
	Rank         int
}

// SemanticSearchResult bundles the ranked hits with the threshold
// bookkeeping callers need to report which mode and value were applied.
type SemanticSearchResult struct {
	Results       []SemanticResult
	ThresholdMode ThresholdMode
	Threshold     float64
}

// SemanticSearch runs a top-K vector KNN over vec_embeddings using an
// already-embedded, L2-normalized query vector, then applies either the
// caller-supplied explicit threshold or an adaptively computed floor.
func SemanticSearch(ctx context.Context, db *sql.DB, queryVector []float32, topK int, explicitThreshold *float64) (*SemanticSearchResult, error) {
	if topK <= 0 {
		topK = 20
	}

	const q = `
		SELECT e.id, e.chunk_id, e.image_id, e.extraction_id, e.document_id, vt.distance
		FROM vec_embeddings vt
		JOIN embeddings e ON e.id = vt.embedding_id
		WHERE vt.vector MATCH ? AND k = ?
		ORDER BY vt.distance ASC`

	rows, err := db.QueryContext(ctx, q, vecLiteral(queryVector), topK)
	if err != nil {
		return nil, fmt.Errorf("search: semantic query: %w", err)
	}
	defer rows.Close()

	var raw []SemanticResult
	var similarities []float64
	for rows.Next() {
		var r SemanticResult
		var dist float64
		if err := rows.Scan(&r.EmbeddingID, &r.ChunkID, &r.ImageID, &r.ExtractionID, &r.DocumentID, &dist); err != nil {
			return nil, fmt.Errorf("search: scan semantic result: %w", err)
		}
		r.Similarity = cosineFromL2(dist)
		raw = append(raw, r)
		similarities = append(similarities, r.Similarity)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	mode := ThresholdAdaptive
	threshold := 0.0
	if explicitThreshold != nil {
		mode = ThresholdExplicit
		threshold = *explicitThreshold
	} else {
		if len(similarities) <= 1 {
			mode = ThresholdAdaptiveFallback
			threshold = 0
		} else {
			threshold = adaptiveFloor(similarities)
		}
	}

	var filtered []SemanticResult
	rank := 1
	for _, r := range raw {
		if r.Similarity < threshold {
			continue
		}
		r.Rank = rank
		rank++
		filtered = append(filtered, r)
	}

	return &SemanticSearchResult{Results: filtered, ThresholdMode: mode, Threshold: threshold}, nil
}

// adaptiveFloor computes mean - k*stddev over the score distribution,
// clamped to [0, 1] so it never excludes every result by accident.
func adaptiveFloor(scores []float64) float64 {
	mean := meanOf(scores)
	sd := stddevOf(scores, mean)
	floor := mean - adaptiveStddevFactor*sd
	if floor < 0 {
		floor = 0
	}
	if floor > 1 {
		floor = 1
	}
	return floor
}

func meanOf(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func stddevOf(xs []float64, mean float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sumSq float64
	for _, x := range xs {
		d := x - mean
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(len(xs)))
}

// cosineFromL2 recovers cosine similarity from vec0's native L2
// distance for unit-normalized vectors, using ||a-b||^2 = 2 - 2*cos(a,b),
// clamped to [0, 1] against floating-point drift at the extremes.
func cosineFromL2(l2Dist float64) float64 {
	cos := 1 - (l2Dist*l2Dist)/2
	if cos < 0 {
		return 0
	}
	if cos > 1 {
		return 1
	}
	return cos
}

// vecLiteral formats a float32 vector as the bracketed literal
// sqlite-vec's MATCH operator expects.
func vecLiteral(v []float32) string {
	parts := make([]string, len(v))
	for i, f := range v {
		parts[i] = strconv.FormatFloat(float64(f), 'f', -1, 32)
	}
	return "[" + strings.Join(parts, ",") + "]"
}
