package api

import (
	"github.com/gin-gonic/gin"
)

// SetupRoutes registers every boundary endpoint on a fresh gin engine.
func SetupRoutes() *gin.Engine {
	r := gin.Default()

	r.GET("/health", HealthHandler)

	v1 := r.Group("/api/v1")
	{
		// Documents
		v1.POST("/documents", CreateDocumentHandler)
		v1.GET("/documents", ListDocumentsHandler)
		v1.GET("/documents/:id", GetDocumentHandler)
		v1.DELETE("/documents/:id", DeleteDocumentHandler)

		// OCR ingestion
		v1.POST("/documents/:id/ocr", RecordOCRResultHandler)

		// Chunking / embedding
		v1.POST("/documents/:id/chunk", ChunkDocumentHandler)
		v1.POST("/documents/:id/embed", EmbedPendingChunksHandler)

		// Images / VLM
		v1.GET("/documents/:id/images", ListImagesHandler)
		v1.GET("/images/pending", PendingVLMImagesHandler)
		v1.POST("/images/:id/describe", DescribeImageHandler)

		// Search
		v1.POST("/search", SearchHandler)

		// Clustering
		v1.POST("/clusters/run", RunClusteringHandler)

		// Workflow
		v1.POST("/documents/:id/workflow", TransitionWorkflowHandler)
		v1.GET("/documents/:id/workflow", WorkflowHistoryHandler)

		// Health, export, comparison
		v1.GET("/health/check", CheckHealthHandler)
		v1.GET("/documents/:id/export", ExportDocumentHandler)
		v1.GET("/corpus/export", ExportCorpusHandler)
		v1.GET("/documents/compare", CompareDocumentsHandler)
	}

	return r
}
