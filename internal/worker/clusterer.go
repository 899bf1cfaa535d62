package worker

import (
	"context"

	"docprovrag/internal/errs"
)

// Clusterer wraps a Process configured for the clustering worker.
type Clusterer struct {
	proc *Process
}

// NewClusterer binds a Clusterer to the given binary path.
func NewClusterer(binaryPath string) *Clusterer {
	return &Clusterer{proc: NewProcess(KindClusterer, binaryPath)}
}

// ClusterParams is the algorithm configuration sent to the worker.
// K-means requires NClusters; the others accept a threshold or
// MinClusterSize.
type ClusterParams struct {
	Algorithm         string
	NClusters         *int
	MinClusterSize    int
	DistanceThreshold *float64
	Linkage           string
}

// Run dispatches a clustering request and returns the parsed result.
func (c *Clusterer) Run(ctx context.Context, embeddings [][]float64, documentIDs []string, params ClusterParams) (*ClusterResponse, error) {
	if params.Algorithm == "kmeans" && params.NClusters == nil {
		return nil, errs.Validation("kmeans requires n_clusters", nil)
	}
	req := ClusterRequest{
		Embeddings: embeddings, DocumentIDs: documentIDs, Algorithm: params.Algorithm,
		NClusters: params.NClusters, MinClusterSize: params.MinClusterSize,
		DistanceThreshold: params.DistanceThreshold, Linkage: params.Linkage,
	}
	var resp ClusterResponse
	if err := c.proc.Call(ctx, req, &resp); err != nil {
		return nil, err
	}
	if len(resp.Labels) != len(documentIDs) {
		return nil, &CallError{Kind: ErrWorkerParseError, Message: "clusterer returned a different number of labels than documents submitted"}
	}
	return &resp, nil
}
