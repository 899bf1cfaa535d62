package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"docprovrag/internal/hashutil"
	"docprovrag/models"
)

// ClusterAssignment pairs a document id with its cluster membership,
// built by internal/cluster and persisted here.
type ClusterAssignment struct {
	DocumentID            string
	ClusterID             *string
	SimilarityToCentroid  float64
	MembershipProbability float64
	IsNoise               bool
}

// PersistClusteringRun writes clusters, one CLUSTERING provenance per
// cluster, and every document assignment in a single transaction.
func (e *Engine) PersistClusteringRun(ctx context.Context, clusters []*models.Cluster, provs []*models.Provenance, assignments []ClusterAssignment) error {
	tx, err := e.DB().BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin: %w", err)
	}
	defer tx.Rollback()

	for i, c := range clusters {
		if err := e.Provenance().Create(ctx, tx, provs[i]); err != nil {
			return err
		}
		centroidJSON, err := json.Marshal(c.CentroidJSON)
		if err != nil {
			return fmt.Errorf("store: encode centroid_json: %w", err)
		}
		paramsJSON, err := hashutil.CanonicalJSON(c.AlgorithmParamsJSON)
		if err != nil {
			return fmt.Errorf("store: encode algorithm_params_json: %w", err)
		}
		const q = `INSERT INTO clusters (id, run_id, cluster_index, centroid_json, coherence_score,
			algorithm, algorithm_params_json, silhouette_score) VALUES (?,?,?,?,?,?,?,?)`
		if _, err := tx.ExecContext(ctx, q, c.ID, c.RunID, c.ClusterIndex, string(centroidJSON),
			c.CoherenceScore, c.Algorithm, string(paramsJSON), c.SilhouetteScore); err != nil {
			return translateConstraintErr(err, "cluster", map[string]any{"run_id": c.RunID})
		}
	}

	for _, a := range assignments {
		const q = `INSERT INTO document_clusters (id, document_id, cluster_id, similarity_to_centroid,
			membership_probability, is_noise) VALUES (?,?,?,?,?,?)`
		if _, err := tx.ExecContext(ctx, q, uuid.NewString(), a.DocumentID, a.ClusterID,
			a.SimilarityToCentroid, a.MembershipProbability, a.IsNoise); err != nil {
			return translateConstraintErr(err, "document_cluster", map[string]any{"document_id": a.DocumentID})
		}
	}

	return tx.Commit()
}

// DocumentVectorRow is a document-level embedding vector used as input
// to the clustering coordinator.
type DocumentVectorRow struct {
	DocumentID string
	Vector     []float64
}

// DocumentChunkEmbeddings loads every chunk embedding vector for a
// document, used to compute the mean document-level vector.
func (e *Engine) DocumentChunkEmbeddings(ctx context.Context, documentID string) ([][]float32, error) {
	rows, err := e.DB().QueryContext(ctx, `SELECT v.vector FROM vec_embeddings v
		JOIN embeddings e ON e.id = v.embedding_id
		WHERE e.document_id = ? AND e.chunk_id IS NOT NULL`, documentID)
	if err != nil {
		return nil, fmt.Errorf("store: document chunk embeddings: %w", err)
	}
	defer rows.Close()

	var out [][]float32
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		vec, err := parseVecLiteral(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, vec)
	}
	return out, rows.Err()
}

// DocumentsWithEmbeddings lists the ids of every document that has at
// least one chunk embedding, the candidate set for a clustering run.
func (e *Engine) DocumentsWithEmbeddings(ctx context.Context) ([]string, error) {
	rows, err := e.DB().QueryContext(ctx, `SELECT DISTINCT document_id FROM embeddings WHERE chunk_id IS NOT NULL`)
	if err != nil {
		return nil, fmt.Errorf("store: documents with embeddings: %w", err)
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

func parseVecLiteral(raw string) ([]float32, error) {
	var floats []float32
	raw = trimBrackets(raw)
	if raw == "" {
		return floats, nil
	}
	for _, part := range splitComma(raw) {
		var f float64
		if _, err := fmt.Sscanf(part, "%g", &f); err != nil {
			return nil, fmt.Errorf("store: parse vector literal: %w", err)
		}
		floats = append(floats, float32(f))
	}
	return floats, nil
}

func trimBrackets(s string) string {
	if len(s) >= 2 && s[0] == '[' && s[len(s)-1] == ']' {
		return s[1 : len(s)-1]
	}
	return s
}

func splitComma(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == ',' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	out = append(out, s[start:])
	return out
}
