package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"docprovrag/api"
	"docprovrag/config"
)

// workerBinariesFromEnv locates the four external worker executables.
// Their paths are a host/deployment detail the configuration surface
// does not enumerate, so this demo harness reads them directly rather
// than growing config.Config with entries the recognized-option list
// does not name.
func workerBinariesFromEnv() api.WorkerBinaries {
	return api.WorkerBinaries{
		Embedder:  envOrDefault("DOCPROVRAG_EMBEDDER_BIN", "./bin/embedder"),
		Reranker:  envOrDefault("DOCPROVRAG_RERANKER_BIN", "./bin/reranker"),
		Clusterer: envOrDefault("DOCPROVRAG_CLUSTERER_BIN", "./bin/clusterer"),
		VLM:       envOrDefault("DOCPROVRAG_VLM_BIN", "./bin/vlm_describer"),
	}
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	dbName := flag.String("database", "default.db", "Database file name within the databases directory")
	showHelp := flag.Bool("help", false, "Show help information")
	showVersion := flag.Bool("version", false, "Show version information")

	flag.Usage = func() {
		log.Printf("Usage: %s [options]\n", os.Args[0])
		log.Println("\nDocument Provenance RAG Server - OCR, chunking, embedding, and hybrid search")
		log.Println("\nOptions:")
		flag.PrintDefaults()
		log.Println("\nExamples:")
		log.Printf("  %s                          # Open ./databases/default.db\n", os.Args[0])
		log.Printf("  %s -database=acme.db        # Open a named database\n", os.Args[0])
		log.Printf("  %s -help                    # Show this help\n", os.Args[0])
	}

	flag.Parse()

	if *showHelp {
		flag.Usage()
		os.Exit(0)
	}
	if *showVersion {
		log.Println("docprovrag v1.0.0")
		log.Println("Document Provenance RAG Server")
		os.Exit(0)
	}

	cfg := config.Load()
	log.Printf("Configuration loaded: databases_path=%s server_port=%s embedding_device=%s",
		cfg.DatabasesPath, cfg.ServerPort, cfg.EmbeddingDevice)

	if err := os.MkdirAll(cfg.DatabasesPath, 0o755); err != nil {
		log.Fatalf("Failed to prepare databases path: %v", err)
	}
	dbPath := filepath.Join(cfg.DatabasesPath, *dbName)

	if err := api.InitializeServices(dbPath, workerBinariesFromEnv()); err != nil {
		log.Fatalf("Failed to initialize services: %v", err)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		log.Println("Shutting down gracefully...")
		api.Cleanup()
		os.Exit(0)
	}()

	router := api.SetupRoutes()

	log.Printf("Server starting on port %s, database %s", cfg.ServerPort, dbPath)
	log.Println("Available endpoints:")
	log.Println("  GET    /health                          - liveness probe")
	log.Println("  POST   /api/v1/documents                - register a document")
	log.Println("  GET    /api/v1/documents                - list documents")
	log.Println("  GET    /api/v1/documents/:id             - fetch a document")
	log.Println("  DELETE /api/v1/documents/:id             - cascade-delete a document")
	log.Println("  POST   /api/v1/documents/:id/ocr         - record an OCR pass")
	log.Println("  POST   /api/v1/documents/:id/chunk       - chunk recorded OCR text")
	log.Println("  POST   /api/v1/documents/:id/embed       - embed pending chunks")
	log.Println("  GET    /api/v1/documents/:id/images      - list extracted images")
	log.Println("  GET    /api/v1/images/pending            - list images awaiting VLM description")
	log.Println("  POST   /api/v1/images/:id/describe       - run VLM description for an image")
	log.Println("  POST   /api/v1/search                    - hybrid BM25/semantic search")
	log.Println("  POST   /api/v1/clusters/run               - cluster documents by embedding")
	log.Println("  POST   /api/v1/documents/:id/workflow    - transition review workflow state")
	log.Println("  GET    /api/v1/documents/:id/workflow    - workflow history")
	log.Println("  GET    /api/v1/health/check               - integrity scan")
	log.Println("  GET    /api/v1/documents/:id/export      - export a document")
	log.Println("  GET    /api/v1/corpus/export              - export corpus summary")
	log.Println("  GET    /api/v1/documents/compare          - compare two documents")

	if err := router.Run(":" + cfg.ServerPort); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
