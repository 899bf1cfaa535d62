package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"docprovrag/internal/chunking"
	"docprovrag/internal/cluster"
	"docprovrag/internal/embed"
	"docprovrag/internal/errs"
	"docprovrag/internal/search"
	"docprovrag/internal/store"
	"docprovrag/internal/vlm"
	"docprovrag/internal/worker"
	"docprovrag/models"
)

// Services bundles every engine the boundary dispatches into. They are
// package-level, since there is exactly one of each per running process.
var (
	db            *store.Engine
	embedder      *worker.Embedder
	reranker      *worker.Reranker
	clusterer     *worker.Clusterer
	vlmDescriber  *worker.VLMDescriber
	searchEngine  *search.Engine
	clusterCoord  *cluster.Coordinator
	vlmPipeline   *vlm.Pipeline
	embedPipeline *embed.Pipeline
)

// WorkerBinaries names the external worker processes the boundary
// spawns on demand. Locating these binaries is a host/deployment
// concern this system places out of scope; main.go supplies
// whatever paths its environment provides.
type WorkerBinaries struct {
	Embedder  string
	Reranker  string
	Clusterer string
	VLM       string
}

// InitializeServices opens the store at dbPath and wires every internal
// package against it and the named worker binaries.
func InitializeServices(dbPath string, bins WorkerBinaries) error {
	var err error
	db, err = store.Open(dbPath)
	if err != nil {
		return err
	}

	embedder = worker.NewEmbedder(bins.Embedder)
	reranker = worker.NewReranker(bins.Reranker)
	clusterer = worker.NewClusterer(bins.Clusterer)
	vlmDescriber = worker.NewVLMDescriber(bins.VLM, nil)

	searchEngine = search.NewEngine(db.DB(), embedder, search.WithReranker(reranker))
	clusterCoord = cluster.New(db, clusterer)
	vlmPipeline = vlm.New(db, vlmDescriber, embedder)
	embedPipeline = embed.New(db, embedder)

	return nil
}

// Cleanup releases the open database handle.
func Cleanup() {
	if db != nil {
		db.Close()
	}
}

// HealthHandler is the liveness probe; CheckHealthHandler below is the
// richer integrity scan.
func HealthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": "docprovrag"})
}

// --- Documents ---

type createDocumentRequest struct {
	FilePath string `json:"file_path" binding:"required"`
	FileName string `json:"file_name" binding:"required"`
	FileHash string `json:"file_hash" binding:"required"`
	FileType string `json:"file_type" binding:"required"`
	FileSize int64  `json:"file_size"`
}

func CreateDocumentHandler(c *gin.Context) {
	var req createDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	doc, err := db.CreateDocument(c.Request.Context(), req.FilePath, req.FileName, req.FileHash, req.FileType, req.FileSize)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusCreated, doc)
}

func GetDocumentHandler(c *gin.Context) {
	doc, err := db.GetDocument(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, doc)
}

func ListDocumentsHandler(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	offset, _ := strconv.Atoi(c.Query("offset"))
	docs, err := db.ListDocuments(c.Request.Context(), limit, offset)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"documents": docs, "total": len(docs)})
}

func DeleteDocumentHandler(c *gin.Context) {
	id := c.Param("id")
	if err := db.DeleteDocument(c.Request.Context(), id); err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"document_id": id})
}

// --- OCR ingestion ---

type recordOCRRequest struct {
	Text         string         `json:"text" binding:"required"`
	Mode         string         `json:"mode"`
	PageCount    int            `json:"page_count"`
	QualityScore float64        `json:"quality_score"`
	JSONBlocks   map[string]any `json:"json_blocks"`
}

func RecordOCRResultHandler(c *gin.Context) {
	var req recordOCRRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	doc, err := db.GetDocument(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	mode := models.ModeBalanced
	if req.Mode != "" {
		mode = models.DatalabMode(req.Mode)
	}
	res, _, err := db.RecordOCRResult(c.Request.Context(), doc, req.Text, mode, req.PageCount, req.QualityScore, req.JSONBlocks)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusCreated, res)
}

// --- Chunking / embedding ---

// ChunkDocumentHandler is intentionally thin: chunking is driven by
// internal/chunking, which already returns rows ready for InsertChunks.
// The boundary loads the OCR text and persists the result; it passes no
// page boundaries to chunking, so chunks carry no page number or page
// range.
func ChunkDocumentHandler(c *gin.Context) {
	documentID := c.Param("id")
	ocrResult, err := db.GetOCRResult(c.Request.Context(), documentID)
	if err != nil {
		fail(c, err)
		return
	}
	doc, err := db.GetDocument(c.Request.Context(), documentID)
	if err != nil {
		fail(c, err)
		return
	}

	ocrProvID, err := ocrProvenanceID(c, doc, ocrResult)
	if err != nil {
		fail(c, err)
		return
	}

	quality := ocrResult.ParseQualityScore
	chunks, provs, err := chunking.Chunk(chunking.Input{
		DocumentID:     documentID,
		OCRResultID:    ocrResult.ID,
		OCRProvID:      ocrProvID,
		OCRContentHash: ocrResult.ContentHash,
		RootDocID:      doc.ProvenanceID,
		Text:           ocrResult.ExtractedText,
		QualityScore:   &quality,
	}, chunking.Options{})
	if err != nil {
		fail(c, err)
		return
	}
	if err := db.InsertChunks(c.Request.Context(), chunks, provs); err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusCreated, gin.H{"document_id": documentID, "chunks_created": len(chunks)})
}

// ocrProvenanceID locates the OCR_RESULT provenance row for a document.
// OCRResult does not carry its own provenance id, since that row is
// created and returned only at RecordOCRResult time; chunking, run
// later as its own step, re-derives it from the document's provenance
// tree instead of threading it through a side channel.
func ocrProvenanceID(c *gin.Context, doc *models.Document, ocrResult *models.OCRResult) (string, error) {
	records, err := db.Provenance().ByRootDocument(c.Request.Context(), doc.ProvenanceID)
	if err != nil {
		return "", err
	}
	for _, rec := range records {
		if rec.Type == models.ProvOCRResult && rec.SourceID != nil && *rec.SourceID == doc.ProvenanceID {
			return rec.ID, nil
		}
	}
	return "", errs.NotFound("ocr_provenance", doc.ID)
}

func EmbedPendingChunksHandler(c *gin.Context) {
	documentID := c.Param("id")
	embedded, failed, err := embedPipeline.EmbedPendingChunks(c.Request.Context(), documentID)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"document_id": documentID, "embedded": embedded, "failed": failed})
}

// --- Images / VLM ---

func ListImagesHandler(c *gin.Context) {
	images, err := db.ListImagesByDocument(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"document_id": c.Param("id"), "images": images})
}

func PendingVLMImagesHandler(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	images, err := db.PendingVLMImages(c.Request.Context(), limit)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"images": images, "total": len(images)})
}

func DescribeImageHandler(c *gin.Context) {
	imageID := c.Param("id")
	img, err := findImage(c, imageID)
	if err != nil {
		fail(c, err)
		return
	}
	if err := vlmPipeline.Process(c.Request.Context(), img); err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"image_id": imageID})
}

// --- Search ---

type searchRequest struct {
	Query             string             `json:"query" binding:"required"`
	Mode              string             `json:"mode"`
	Limit             int                `json:"limit"`
	SemanticThreshold *float64           `json:"semantic_threshold"`
	ApplyQualityBoost bool               `json:"apply_quality_boost"`
	Rerank            bool               `json:"rerank"`
	RRFWeights        map[string]float64 `json:"rrf_weights"`
}

func SearchHandler(c *gin.Context) {
	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if req.Limit <= 0 {
		req.Limit = 10
	}

	opts := search.Options{
		Mode:              search.Mode(req.Mode),
		Limit:             req.Limit,
		SemanticThreshold: req.SemanticThreshold,
		ApplyQualityBoost: req.ApplyQualityBoost,
		Rerank:            req.Rerank,
	}
	if req.Mode == "" {
		opts.Mode = search.ModeAuto
	}
	if len(req.RRFWeights) > 0 {
		opts.RRFWeights = map[search.SourceKind]float64{}
		if w, ok := req.RRFWeights["bm25"]; ok {
			opts.RRFWeights[search.SourceBM25] = w
		}
		if w, ok := req.RRFWeights["semantic"]; ok {
			opts.RRFWeights[search.SourceSemantic] = w
		}
	}

	report, err := searchEngine.Search(c.Request.Context(), req.Query, opts)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, report)
}

// --- Clustering ---

type clusterRequest struct {
	Algorithm         string   `json:"algorithm" binding:"required"`
	NClusters         *int     `json:"n_clusters"`
	MinClusterSize    int      `json:"min_cluster_size"`
	DistanceThreshold *float64 `json:"distance_threshold"`
	Linkage           string   `json:"linkage"`
}

func RunClusteringHandler(c *gin.Context) {
	var req clusterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if req.MinClusterSize <= 0 {
		req.MinClusterSize = 2
	}
	params := worker.ClusterParams{
		Algorithm: req.Algorithm, NClusters: req.NClusters,
		MinClusterSize: req.MinClusterSize, DistanceThreshold: req.DistanceThreshold, Linkage: req.Linkage,
	}
	clusters, err := clusterCoord.Run(c.Request.Context(), params)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"clusters": clusters, "total": len(clusters)})
}

// --- Health / export / compare ---

func CheckHealthHandler(c *gin.Context) {
	fix := c.Query("fix") == "true"
	report, err := db.CheckHealth(c.Request.Context(), fix)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, report)
}

func ExportDocumentHandler(c *gin.Context) {
	format := store.ExportFormat(c.DefaultQuery("format", string(store.ExportJSON)))
	opts := store.ExportDocumentOptions{
		IncludeChunks:     c.Query("include_chunks") != "false",
		IncludeImages:     c.Query("include_images") != "false",
		IncludeProvenance: c.Query("include_provenance") == "true",
	}
	data, err := db.ExportDocument(c.Request.Context(), c.Param("id"), format, opts)
	if err != nil {
		fail(c, err)
		return
	}
	c.Data(http.StatusOK, contentTypeFor(format), data)
}

func ExportCorpusHandler(c *gin.Context) {
	summaries, err := db.ExportCorpus(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"documents": summaries, "total": len(summaries)})
}

func CompareDocumentsHandler(c *gin.Context) {
	a := c.Query("a")
	b := c.Query("b")
	if a == "" || b == "" {
		badRequest(c, "query params 'a' and 'b' are required document ids")
		return
	}
	result, err := db.CompareDocuments(c.Request.Context(), a, b)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, result)
}

// --- Workflow ---

type transitionRequest struct {
	State    string `json:"state" binding:"required"`
	Reviewer string `json:"reviewer"`
	Reason   string `json:"reason"`
}

func TransitionWorkflowHandler(c *gin.Context) {
	var req transitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	ws, err := db.TransitionWorkflow(c.Request.Context(), c.Param("id"), models.WorkflowStateName(req.State), req.Reviewer, req.Reason)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusCreated, ws)
}

func WorkflowHistoryHandler(c *gin.Context) {
	history, err := db.WorkflowHistory(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"document_id": c.Param("id"), "history": history})
}

func contentTypeFor(f store.ExportFormat) string {
	switch f {
	case store.ExportCSV:
		return "text/csv"
	case store.ExportMarkdown:
		return "text/markdown"
	default:
		return "application/json"
	}
}

func findImage(c *gin.Context, imageID string) (*models.Image, error) {
	// Images are listed per-document; the boundary has no direct
	// get-by-id store method, so pending images are scanned for a
	// match against a generous bound.
	images, err := db.PendingVLMImages(c.Request.Context(), 5000)
	if err != nil {
		return nil, err
	}
	for _, img := range images {
		if img.ID == imageID {
			return img, nil
		}
	}
	return nil, errs.NotFound("image", imageID)
}
