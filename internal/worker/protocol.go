// Package worker drives the external worker processes (embedder,
// reranker, clusterer, VLM preprocessor), one child per call, over a single-shot
// JSON request/response protocol on stdin/stdout, with timeout
// enforcement, SIGTERM→SIGKILL escalation, and bounded stderr capture.
package worker

import "time"

// Kind names which worker role a Process instance plays; used only for
// logging and default timeout selection.
type Kind string

const (
	KindEmbedder  Kind = "embedder"
	KindReranker  Kind = "reranker"
	KindClusterer Kind = "clusterer"
	KindVLM       Kind = "vlm"
)

// DefaultTimeout returns the per-call timeout for a worker kind.
func DefaultTimeout(k Kind) time.Duration {
	switch k {
	case KindEmbedder:
		return 5 * time.Minute
	case KindReranker:
		return 30 * time.Second
	case KindClusterer:
		return 5 * time.Minute
	case KindVLM:
		return 15 * time.Minute
	default:
		return 5 * time.Minute
	}
}

// DefaultGraceWindow is how long a worker is given to exit after
// SIGTERM before SIGKILL is sent.
const DefaultGraceWindow = 5 * time.Second

// StderrRingSize is the default bound on captured stderr output.
const StderrRingSize = 10 * 1024

// EmbedRequest is sent to the embedder worker.
type EmbedRequest struct {
	Texts     []string `json:"texts"`
	TaskType  string   `json:"task_type"`
	BatchSize int      `json:"batch_size"`
}

// EmbedResponse is the embedder worker's success payload.
type EmbedResponse struct {
	Success    bool        `json:"success"`
	Vectors    [][]float32 `json:"vectors"`
	Model      string      `json:"model"`
	Dimensions int         `json:"dimensions"`
}

// RerankPassage is one candidate passage sent to the reranker.
type RerankPassage struct {
	Index         int     `json:"index"`
	Text          string  `json:"text"`
	OriginalScore float64 `json:"original_score"`
}

// RerankRequest is sent to the reranker worker.
type RerankRequest struct {
	Query    string          `json:"query"`
	Passages []RerankPassage `json:"passages"`
}

// RerankedPassage is one scored result from the reranker.
type RerankedPassage struct {
	Index           int     `json:"index"`
	RelevanceScore  float64 `json:"relevance_score"`
	OriginalScore   float64 `json:"original_score"`
}

// RerankResponse wraps the reranker's response array with the success
// flag the shared validation logic expects.
type RerankResponse struct {
	Success bool              `json:"success"`
	Results []RerankedPassage `json:"results"`
}

// ClusterRequest is sent to the clustering worker.
type ClusterRequest struct {
	Embeddings        [][]float64 `json:"embeddings"`
	DocumentIDs       []string    `json:"document_ids"`
	Algorithm         string      `json:"algorithm"`
	NClusters         *int        `json:"n_clusters,omitempty"`
	MinClusterSize    int         `json:"min_cluster_size"`
	DistanceThreshold *float64    `json:"distance_threshold,omitempty"`
	Linkage           string      `json:"linkage,omitempty"`
}

// ClusterResponse is the clustering worker's success payload.
type ClusterResponse struct {
	Success         bool        `json:"success"`
	Labels          []int       `json:"labels"`
	Probabilities   []float64   `json:"probabilities"`
	Centroids       [][]float64 `json:"centroids"`
	NClusters       int         `json:"n_clusters"`
	SilhouetteScore float64     `json:"silhouette_score"`
	CoherenceScores []float64   `json:"coherence_scores"`
	ElapsedMs       int64       `json:"elapsed_ms"`
}

// VLMRequest is sent to the vision-language description worker.
type VLMRequest struct {
	ImagePath   string `json:"image_path"`
	ContextText string `json:"context_text,omitempty"`
}

// VLMResponse is the VLM worker's success payload.
type VLMResponse struct {
	Success       bool           `json:"success"`
	Description   string         `json:"description"`
	StructuredData map[string]any `json:"structured_data,omitempty"`
	Confidence    float64        `json:"confidence"`
	TokensUsed    int            `json:"tokens_used"`
}
