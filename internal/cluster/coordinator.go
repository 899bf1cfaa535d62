// Package cluster implements the clustering coordinator: aggregating
// document-level vectors from chunk embeddings, dispatching to the
// clustering worker, and persisting the run.
package cluster

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"docprovrag/internal/errs"
	"docprovrag/internal/hashutil"
	"docprovrag/internal/store"
	"docprovrag/internal/worker"
	"docprovrag/models"
)

// minDocumentsForClustering is the fewest documents with chunk
// embeddings a run accepts; below it Run returns an
// INSUFFICIENT_DOCUMENTS validation error, since clustering needs at
// least a pair to produce a meaningful partition.
const minDocumentsForClustering = 2

// Coordinator runs clustering passes over a store Engine using a
// worker.Clusterer for the actual algorithm.
type Coordinator struct {
	store     *store.Engine
	clusterer *worker.Clusterer
}

// New builds a Coordinator bound to the given store and clusterer.
func New(s *store.Engine, c *worker.Clusterer) *Coordinator {
	return &Coordinator{store: s, clusterer: c}
}

// Run executes one clustering pass: aggregates each eligible
// document's chunk embeddings into a document-level vector, requires
// at least two such documents, dispatches to the worker, and persists
// clusters/provenance/assignments in one transaction.
func (c *Coordinator) Run(ctx context.Context, params worker.ClusterParams) ([]*models.Cluster, error) {
	documentIDs, err := c.store.DocumentsWithEmbeddings(ctx)
	if err != nil {
		return nil, err
	}

	var vectors [][]float64
	var usedDocIDs []string
	for _, docID := range documentIDs {
		vec, err := c.documentVector(ctx, docID)
		if err != nil {
			return nil, err
		}
		if vec == nil {
			continue
		}
		vectors = append(vectors, vec)
		usedDocIDs = append(usedDocIDs, docID)
	}

	if len(usedDocIDs) < minDocumentsForClustering {
		return nil, errs.New(errs.ErrValidation, errs.CategoryInsufficientDocs,
			fmt.Sprintf("clustering requires at least %d documents with chunk embeddings, found %d", minDocumentsForClustering, len(usedDocIDs)),
			map[string]any{"found": len(usedDocIDs), "required": minDocumentsForClustering})
	}

	result, err := c.clusterer.Run(ctx, vectors, usedDocIDs, params)
	if err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	now := time.Now().UTC()

	clustersByIndex := map[int]*models.Cluster{}
	var clusters []*models.Cluster
	var provs []*models.Provenance
	for _, label := range result.Labels {
		if label < 0 {
			continue // noise, handled per-document below
		}
		if _, ok := clustersByIndex[label]; ok {
			continue
		}
		var centroid []float64
		if label < len(result.Centroids) {
			centroid = result.Centroids[label]
		}
		var coherence float64
		if label < len(result.CoherenceScores) {
			coherence = result.CoherenceScores[label]
		}
		cl := &models.Cluster{
			ID:                  uuid.NewString(),
			RunID:               runID,
			ClusterIndex:        label,
			CentroidJSON:        centroid,
			CoherenceScore:      coherence,
			Algorithm:           params.Algorithm,
			AlgorithmParamsJSON: algorithmParamsMap(params),
			SilhouetteScore:     result.SilhouetteScore,
		}
		clustersByIndex[label] = cl
		clusters = append(clusters, cl)

		provID := uuid.NewString()
		provs = append(provs, &models.Provenance{
			ID:             provID,
			Type:           models.ProvClustering,
			CreatedAt:      now,
			SourceType:     models.SourceEmbedding,
			RootDocumentID: provID,
			ParentIDs:      []string{},
			ChainDepth:     0,
			ChainPath:      []string{string(models.ProvClustering)},
			ContentHash:    clusterContentHash(cl),
			Processor:      "cluster.coordinator",
			ProcessingParams: map[string]any{
				"algorithm": params.Algorithm, "run_id": runID, "cluster_index": label,
			},
		})
	}

	var assignments []store.ClusterAssignment
	for i, docID := range usedDocIDs {
		label := -1
		if i < len(result.Labels) {
			label = result.Labels[i]
		}
		var prob float64
		if i < len(result.Probabilities) {
			prob = result.Probabilities[i]
		}

		if label < 0 {
			assignments = append(assignments, store.ClusterAssignment{
				DocumentID: docID, ClusterID: nil, SimilarityToCentroid: 0,
				MembershipProbability: prob, IsNoise: true,
			})
			continue
		}

		cl := clustersByIndex[label]
		similarity := cosineToCentroid(vectors[i], cl.CentroidJSON)
		clID := cl.ID
		assignments = append(assignments, store.ClusterAssignment{
			DocumentID: docID, ClusterID: &clID, SimilarityToCentroid: similarity,
			MembershipProbability: prob, IsNoise: false,
		})
	}

	if err := c.store.PersistClusteringRun(ctx, clusters, provs, assignments); err != nil {
		return nil, err
	}
	return clusters, nil
}

// documentVector aggregates a document's chunk embeddings into a
// single L2-normalized vector: sum in float64 for precision, divide by
// count, normalize. Returns nil if the document has no embeddings.
func (c *Coordinator) documentVector(ctx context.Context, documentID string) ([]float64, error) {
	vectors, err := c.store.DocumentChunkEmbeddings(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, nil
	}

	dim := len(vectors[0])
	sum := make([]float64, dim)
	for _, v := range vectors {
		for i, f := range v {
			if i < dim {
				sum[i] += float64(f)
			}
		}
	}
	mean := make([]float64, dim)
	for i, s := range sum {
		mean[i] = s / float64(len(vectors))
	}
	return l2NormalizeFloat64(mean), nil
}

func l2NormalizeFloat64(v []float64) []float64 {
	var sumSq float64
	for _, f := range v {
		sumSq += f * f
	}
	norm := math.Sqrt(sumSq)
	if norm == 0 {
		return v
	}
	out := make([]float64, len(v))
	for i, f := range v {
		out[i] = f / norm
	}
	return out
}

// cosineToCentroid returns max(0, min(1, dot)) since both vectors are
// L2-normalized, per the documented clustering invariant.
func cosineToCentroid(vec, centroid []float64) float64 {
	n := len(vec)
	if len(centroid) < n {
		n = len(centroid)
	}
	var dot float64
	for i := 0; i < n; i++ {
		dot += vec[i] * centroid[i]
	}
	if dot < 0 {
		return 0
	}
	if dot > 1 {
		return 1
	}
	return dot
}

func algorithmParamsMap(p worker.ClusterParams) map[string]any {
	m := map[string]any{"algorithm": p.Algorithm, "min_cluster_size": p.MinClusterSize}
	if p.NClusters != nil {
		m["n_clusters"] = *p.NClusters
	}
	if p.DistanceThreshold != nil {
		m["distance_threshold"] = *p.DistanceThreshold
	}
	if p.Linkage != "" {
		m["linkage"] = p.Linkage
	}
	return m
}

func clusterContentHash(cl *models.Cluster) string {
	return hashutil.HashString(fmt.Sprintf("%s:%d:%s", cl.RunID, cl.ClusterIndex, cl.Algorithm))
}
