// Package models holds the entities of the provenance-indexed document
// store: documents, OCR results, chunks, embeddings, images, clusters,
// workflow states, and the provenance records linking all of them.
package models

import (
	"encoding/json"
	"time"
)

// ProvenanceType enumerates the provenance row variants. The chain is
// append-only and every derived artifact carries one of these.
type ProvenanceType string

const (
	ProvDocument       ProvenanceType = "DOCUMENT"
	ProvOCRResult      ProvenanceType = "OCR_RESULT"
	ProvChunk          ProvenanceType = "CHUNK"
	ProvEmbedding      ProvenanceType = "EMBEDDING"
	ProvImage          ProvenanceType = "IMAGE"
	ProvVLMDescription ProvenanceType = "VLM_DESCRIPTION"
	ProvExtraction     ProvenanceType = "EXTRACTION"
	ProvComparison     ProvenanceType = "COMPARISON"
	ProvClustering     ProvenanceType = "CLUSTERING"
	ProvFormFill       ProvenanceType = "FORM_FILL"
)

// SourceType records which subsystem produced a provenance row's artifact.
type SourceType string

const (
	SourceFile      SourceType = "FILE"
	SourceOCR       SourceType = "OCR"
	SourceChunking  SourceType = "CHUNKING"
	SourceEmbedding SourceType = "EMBEDDING"
	SourceVLM       SourceType = "VLM"
)

// Location pins a provenance row to a position within the originating
// document. It is a tagged JSON variant: every field is optional and
// unknown fields surviving a round trip are preserved by Extra.
type Location struct {
	PageNumber     *int `json:"page_number,omitempty"`
	PageRange      *string `json:"page_range,omitempty"`
	ChunkIndex     *int `json:"chunk_index,omitempty"`
	CharacterStart *int `json:"character_start,omitempty"`
	CharacterEnd   *int `json:"character_end,omitempty"`

	// Extra preserves fields not modeled above so a read-modify-write
	// cycle never silently drops unknown data.
	Extra map[string]any `json:"-"`
}

// locationKnownFields names the json keys handled by Location's typed
// fields; anything else round-trips through Extra.
var locationKnownFields = map[string]bool{
	"page_number":     true,
	"page_range":      true,
	"chunk_index":     true,
	"character_start": true,
	"character_end":   true,
}

// MarshalJSON encodes the typed fields alongside whatever unknown keys
// Extra is carrying, so a read-modify-write cycle never drops them.
func (l Location) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(l.Extra)+5)
	for k, v := range l.Extra {
		if !locationKnownFields[k] {
			out[k] = v
		}
	}
	if l.PageNumber != nil {
		out["page_number"] = *l.PageNumber
	}
	if l.PageRange != nil {
		out["page_range"] = *l.PageRange
	}
	if l.ChunkIndex != nil {
		out["chunk_index"] = *l.ChunkIndex
	}
	if l.CharacterStart != nil {
		out["character_start"] = *l.CharacterStart
	}
	if l.CharacterEnd != nil {
		out["character_end"] = *l.CharacterEnd
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes the typed fields and stashes every other key in
// Extra, untouched, for the next encode.
func (l *Location) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	if v, ok := raw["page_number"]; ok {
		if err := json.Unmarshal(v, &l.PageNumber); err != nil {
			return err
		}
	}
	if v, ok := raw["page_range"]; ok {
		if err := json.Unmarshal(v, &l.PageRange); err != nil {
			return err
		}
	}
	if v, ok := raw["chunk_index"]; ok {
		if err := json.Unmarshal(v, &l.ChunkIndex); err != nil {
			return err
		}
	}
	if v, ok := raw["character_start"]; ok {
		if err := json.Unmarshal(v, &l.CharacterStart); err != nil {
			return err
		}
	}
	if v, ok := raw["character_end"]; ok {
		if err := json.Unmarshal(v, &l.CharacterEnd); err != nil {
			return err
		}
	}

	extra := make(map[string]any, len(raw))
	for k, v := range raw {
		if locationKnownFields[k] {
			continue
		}
		var val any
		if err := json.Unmarshal(v, &val); err != nil {
			return err
		}
		extra[k] = val
	}
	if len(extra) > 0 {
		l.Extra = extra
	}
	return nil
}

// Provenance is the spine of the system: an append-only, tamper-evident
// record of how every artifact was derived.
type Provenance struct {
	ID                     string         `json:"id"`
	Type                   ProvenanceType `json:"type"`
	CreatedAt              time.Time      `json:"created_at"`
	ProcessedAt            *time.Time     `json:"processed_at,omitempty"`
	SourceType             SourceType     `json:"source_type"`
	SourceID               *string        `json:"source_id,omitempty"`
	RootDocumentID         string         `json:"root_document_id"`
	ParentID               *string        `json:"parent_id,omitempty"`
	ParentIDs              []string       `json:"parent_ids"`
	ChainDepth             int            `json:"chain_depth"`
	ChainPath              []string       `json:"chain_path"`
	ContentHash            string         `json:"content_hash"`
	InputHash              string         `json:"input_hash,omitempty"`
	FileHash               *string        `json:"file_hash,omitempty"`
	Processor              string         `json:"processor"`
	ProcessorVersion       string         `json:"processor_version,omitempty"`
	ProcessingParams       map[string]any `json:"processing_params,omitempty"`
	ProcessingDurationMs   *int64         `json:"processing_duration_ms,omitempty"`
	ProcessingQualityScore *float64       `json:"processing_quality_score,omitempty"`
	Location               *Location      `json:"location,omitempty"`
}

// DocumentStatus is the lifecycle state of a Document row.
type DocumentStatus string

const (
	DocPending    DocumentStatus = "pending"
	DocProcessing DocumentStatus = "processing"
	DocComplete   DocumentStatus = "complete"
	DocFailed     DocumentStatus = "failed"
)

// Document is one ingested source file.
type Document struct {
	ID             string         `json:"id"`
	FilePath       string         `json:"file_path"`
	FileName       string         `json:"file_name"`
	FileHash       string         `json:"file_hash"`
	FileSize       int64          `json:"file_size"`
	FileType       string         `json:"file_type"`
	Status         DocumentStatus `json:"status"`
	PageCount      *int           `json:"page_count,omitempty"`
	ProvenanceID   string         `json:"provenance_id"`
	CreatedAt      time.Time      `json:"created_at"`
	ModifiedAt     time.Time      `json:"modified_at"`
	OCRCompletedAt *time.Time     `json:"ocr_completed_at,omitempty"`
	ErrorMessage   *string        `json:"error_message,omitempty"`
	DocTitle       *string        `json:"doc_title,omitempty"`
	DocAuthor      *string        `json:"doc_author,omitempty"`
	DocSubject     *string        `json:"doc_subject,omitempty"`
	DatalabFileID  *string        `json:"datalab_file_id,omitempty"`
}

// DatalabMode is the OCR fidelity tier requested from the external
// OCR collaborator.
type DatalabMode string

const (
	ModeFast     DatalabMode = "fast"
	ModeBalanced DatalabMode = "balanced"
	ModeAccurate DatalabMode = "accurate"
)

// OCRResult is the single OCR pass recorded per document.
type OCRResult struct {
	ID                string         `json:"id"`
	DocumentID        string         `json:"document_id"`
	ExtractedText     string         `json:"extracted_text"`
	TextLength        int            `json:"text_length"`
	DatalabRequestID  string         `json:"datalab_request_id,omitempty"`
	DatalabMode       DatalabMode    `json:"datalab_mode"`
	ParseQualityScore float64        `json:"parse_quality_score"`
	PageCount         int            `json:"page_count"`
	CostCents         float64        `json:"cost_cents"`
	ContentHash       string         `json:"content_hash"`
	CreatedAt         time.Time      `json:"created_at"`
	JSONBlocks        map[string]any `json:"json_blocks,omitempty"`
}

// EmbeddingStatus tracks whether a chunk's vector has been produced.
type EmbeddingStatus string

const (
	EmbeddingPending  EmbeddingStatus = "pending"
	EmbeddingComplete EmbeddingStatus = "complete"
	EmbeddingFailed   EmbeddingStatus = "failed"
)

// TableMetadata annotates an atomic chunk that captured a markdown table.
type TableMetadata struct {
	ColumnHeaders []string `json:"column_headers"`
	RowCount      int      `json:"row_count"`
	ColumnCount   int      `json:"column_count"`
	Caption       string   `json:"caption,omitempty"`
	Summary       string   `json:"summary,omitempty"`
}

// Chunk is one unit of chunked document text.
type Chunk struct {
	ID               string          `json:"id"`
	DocumentID       string          `json:"document_id"`
	OCRResultID      string          `json:"ocr_result_id"`
	Text             string          `json:"text"`
	TextHash         string          `json:"text_hash"`
	ChunkIndex       int             `json:"chunk_index"`
	CharacterStart   int             `json:"character_start"`
	CharacterEnd     int             `json:"character_end"`
	PageNumber       *int            `json:"page_number,omitempty"`
	PageRange        *string         `json:"page_range,omitempty"`
	OverlapPrevious  int             `json:"overlap_previous"`
	OverlapNext      int             `json:"overlap_next"`
	ProvenanceID     string          `json:"provenance_id"`
	EmbeddingStatus  EmbeddingStatus `json:"embedding_status"`
	EmbeddedAt       *time.Time      `json:"embedded_at,omitempty"`
	HeadingContext   string          `json:"heading_context,omitempty"`
	HeadingLevel     int             `json:"heading_level,omitempty"`
	SectionPath      string          `json:"section_path,omitempty"`
	ContentTypes     []string        `json:"content_types"`
	IsAtomic         bool            `json:"is_atomic"`
	ChunkingStrategy string          `json:"chunking_strategy"`
	OCRQualityScore  *float64        `json:"ocr_quality_score,omitempty"`
	TableMetadata    *TableMetadata  `json:"table_metadata,omitempty"`
}

// TaskType distinguishes document-side from query-side embedding calls,
// some embedding models bias the vector differently per side.
type TaskType string

const (
	TaskSearchDocument TaskType = "search_document"
	TaskSearchQuery    TaskType = "search_query"
)

// InferenceMode records where the embedding model ran.
type InferenceMode string

const InferenceLocal InferenceMode = "local"

// EmbeddingOwnerKind is the sum-type tag over which artifact an
// embedding belongs to. The storage schema keeps three nullable FK
// columns for query flexibility, but in-memory code always goes
// through this exclusive owner model (see DESIGN.md).
type EmbeddingOwnerKind string

const (
	OwnerChunk      EmbeddingOwnerKind = "chunk"
	OwnerImage      EmbeddingOwnerKind = "image"
	OwnerExtraction EmbeddingOwnerKind = "extraction"
)

// EmbeddingOwner is the sum type: exactly one of ChunkID/ImageID/
// ExtractionID is populated, selected by Kind.
type EmbeddingOwner struct {
	Kind         EmbeddingOwnerKind
	ChunkID      string
	ImageID      string
	ExtractionID string
}

// Embedding is a dense vector row plus the metadata needed to reproduce
// and audit it. The vector itself lives in the companion vec_embeddings
// table keyed by ID.
type Embedding struct {
	ID             string         `json:"id"`
	Owner          EmbeddingOwner `json:"-"`
	DocumentID     string         `json:"document_id"`
	OriginalText   string         `json:"original_text"`
	ModelName      string         `json:"model_name"`
	ModelVersion   string         `json:"model_version,omitempty"`
	TaskType       TaskType       `json:"task_type"`
	InferenceMode  InferenceMode  `json:"inference_mode"`
	GPUDevice      string         `json:"gpu_device,omitempty"`
	ProvenanceID   string         `json:"provenance_id"`
	ContentHash    string         `json:"content_hash"`
	CreatedAt      time.Time      `json:"created_at"`
	Vector         []float32      `json:"-"`
}

// Dimension is the fixed dense vector width used across the store.
const Dimension = 768

// BoundingBox locates an extracted image within its page.
type BoundingBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Dimensions is a width/height pair in pixels.
type Dimensions struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// VLMStatus tracks the vision-language description pipeline per image.
type VLMStatus string

const (
	VLMPending    VLMStatus = "pending"
	VLMProcessing VLMStatus = "processing"
	VLMComplete   VLMStatus = "complete"
	VLMFailed     VLMStatus = "failed"
)

// BlockType is the structural role the OCR block tree assigned an image.
type BlockType string

const (
	BlockFigure     BlockType = "Figure"
	BlockPicture    BlockType = "Picture"
	BlockPageHeader BlockType = "PageHeader"
	BlockPageFooter BlockType = "PageFooter"
)

// Image is one image region extracted during OCR.
type Image struct {
	ID                 string         `json:"id"`
	DocumentID         string         `json:"document_id"`
	OCRResultID        string         `json:"ocr_result_id"`
	PageNumber         int            `json:"page_number"`
	BoundingBox        BoundingBox    `json:"bounding_box"`
	ImageIndex         int            `json:"image_index"`
	Format             string         `json:"format"`
	Dimensions         Dimensions     `json:"dimensions"`
	ExtractedPath      string         `json:"extracted_path"`
	FileSize           int64          `json:"file_size"`
	VLMStatus          VLMStatus      `json:"vlm_status"`
	VLMDescription     string         `json:"vlm_description,omitempty"`
	VLMStructuredData  map[string]any `json:"vlm_structured_data,omitempty"`
	VLMEmbeddingID     *string        `json:"vlm_embedding_id,omitempty"`
	VLMModel           string         `json:"vlm_model,omitempty"`
	VLMConfidence      *float64       `json:"vlm_confidence,omitempty"`
	VLMProcessedAt     *time.Time     `json:"vlm_processed_at,omitempty"`
	VLMTokensUsed      *int           `json:"vlm_tokens_used,omitempty"`
	ContextText        string         `json:"context_text,omitempty"`
	ProvenanceID       string         `json:"provenance_id"`
	BlockType          BlockType      `json:"block_type"`
	IsHeaderFooter     bool           `json:"is_header_footer"`
	ContentHash        string         `json:"content_hash"`
}

// Cluster is one group produced by a clustering run.
type Cluster struct {
	ID                  string         `json:"id"`
	RunID               string         `json:"run_id"`
	ClusterIndex        int            `json:"cluster_index"`
	CentroidJSON        []float64      `json:"centroid_json"`
	CoherenceScore      float64        `json:"coherence_score"`
	Algorithm           string         `json:"algorithm"`
	AlgorithmParamsJSON map[string]any `json:"algorithm_params_json,omitempty"`
	SilhouetteScore     float64        `json:"silhouette_score"`
}

// DocumentCluster assigns a document to a cluster (or to noise).
type DocumentCluster struct {
	ID                   string  `json:"id"`
	DocumentID           string  `json:"document_id"`
	ClusterID            *string `json:"cluster_id,omitempty"`
	SimilarityToCentroid float64 `json:"similarity_to_centroid"`
	MembershipProbability float64 `json:"membership_probability"`
	IsNoise              bool    `json:"is_noise"`
}

// WorkflowStateName enumerates the allowed nodes in the workflow
// transition graph.
type WorkflowStateName string

const (
	WorkflowNone              WorkflowStateName = ""
	WorkflowDraft              WorkflowStateName = "draft"
	WorkflowSubmitted          WorkflowStateName = "submitted"
	WorkflowInReview           WorkflowStateName = "in_review"
	WorkflowApproved           WorkflowStateName = "approved"
	WorkflowRejected           WorkflowStateName = "rejected"
	WorkflowChangesRequested   WorkflowStateName = "changes_requested"
	WorkflowExecuted           WorkflowStateName = "executed"
	WorkflowExpired            WorkflowStateName = "expired"
	WorkflowArchived           WorkflowStateName = "archived"
)

// WorkflowState is one append-only state transition record for a document.
type WorkflowState struct {
	ID          string            `json:"id"`
	DocumentID  string            `json:"document_id"`
	State       WorkflowStateName `json:"state"`
	Reviewer    string            `json:"reviewer,omitempty"`
	Reason      string            `json:"reason,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
}

// Extraction is a derived artifact pulled from a document (e.g. a form
// field or structured record) that can itself carry an embedding.
type Extraction struct {
	ID           string         `json:"id"`
	DocumentID   string         `json:"document_id"`
	Kind         string         `json:"kind"`
	Data         map[string]any `json:"data"`
	ProvenanceID string         `json:"provenance_id"`
	CreatedAt    time.Time      `json:"created_at"`
}
