package store

import (
	"database/sql"
	"fmt"
)

// TargetSchemaVersion is the schema version baked into this binary.
const TargetSchemaVersion = 1

// VectorDimension is the fixed width of every stored embedding.
const VectorDimension = 768

var baseTables = []string{
	`CREATE TABLE IF NOT EXISTS schema_version (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		version INTEGER NOT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS database_metadata (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		name TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		document_count INTEGER NOT NULL DEFAULT 0,
		chunk_count INTEGER NOT NULL DEFAULT 0,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS provenance (
		id TEXT PRIMARY KEY,
		type TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		processed_at DATETIME,
		source_type TEXT NOT NULL,
		source_id TEXT,
		root_document_id TEXT NOT NULL,
		parent_id TEXT REFERENCES provenance(id),
		parent_ids TEXT NOT NULL,
		chain_depth INTEGER NOT NULL,
		chain_path TEXT NOT NULL,
		content_hash TEXT NOT NULL,
		input_hash TEXT,
		file_hash TEXT,
		processor TEXT NOT NULL,
		processor_version TEXT,
		processing_params TEXT,
		processing_duration_ms INTEGER,
		processing_quality_score REAL,
		location TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		file_path TEXT NOT NULL,
		file_name TEXT NOT NULL,
		file_hash TEXT NOT NULL,
		file_size INTEGER NOT NULL,
		file_type TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		page_count INTEGER,
		provenance_id TEXT NOT NULL REFERENCES provenance(id),
		created_at DATETIME NOT NULL,
		modified_at DATETIME NOT NULL,
		ocr_completed_at DATETIME,
		error_message TEXT,
		doc_title TEXT,
		doc_author TEXT,
		doc_subject TEXT,
		datalab_file_id TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS ocr_results (
		id TEXT PRIMARY KEY,
		document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
		extracted_text TEXT NOT NULL,
		text_length INTEGER NOT NULL,
		datalab_request_id TEXT,
		datalab_mode TEXT NOT NULL DEFAULT 'balanced',
		parse_quality_score REAL NOT NULL DEFAULT 0,
		page_count INTEGER NOT NULL DEFAULT 0,
		cost_cents REAL NOT NULL DEFAULT 0,
		content_hash TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		json_blocks TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS chunks (
		id TEXT PRIMARY KEY,
		document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
		ocr_result_id TEXT NOT NULL REFERENCES ocr_results(id) ON DELETE CASCADE,
		text TEXT NOT NULL,
		text_hash TEXT NOT NULL,
		chunk_index INTEGER NOT NULL,
		character_start INTEGER NOT NULL,
		character_end INTEGER NOT NULL,
		page_number INTEGER,
		page_range TEXT,
		overlap_previous INTEGER NOT NULL DEFAULT 0,
		overlap_next INTEGER NOT NULL DEFAULT 0,
		provenance_id TEXT NOT NULL REFERENCES provenance(id),
		embedding_status TEXT NOT NULL DEFAULT 'pending',
		embedded_at DATETIME,
		heading_context TEXT,
		heading_level INTEGER,
		section_path TEXT,
		content_types TEXT NOT NULL DEFAULT '[]',
		is_atomic INTEGER NOT NULL DEFAULT 0,
		chunking_strategy TEXT NOT NULL DEFAULT '',
		ocr_quality_score REAL,
		table_metadata TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS extractions (
		id TEXT PRIMARY KEY,
		document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
		kind TEXT NOT NULL,
		data TEXT NOT NULL,
		provenance_id TEXT NOT NULL REFERENCES provenance(id),
		created_at DATETIME NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS embeddings (
		id TEXT PRIMARY KEY,
		chunk_id TEXT REFERENCES chunks(id) ON DELETE CASCADE,
		image_id TEXT,
		extraction_id TEXT REFERENCES extractions(id) ON DELETE CASCADE,
		document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
		original_text TEXT NOT NULL,
		model_name TEXT NOT NULL,
		model_version TEXT,
		task_type TEXT NOT NULL,
		inference_mode TEXT NOT NULL DEFAULT 'local',
		gpu_device TEXT,
		provenance_id TEXT NOT NULL REFERENCES provenance(id),
		content_hash TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		CHECK ((chunk_id IS NOT NULL) + (image_id IS NOT NULL) + (extraction_id IS NOT NULL) = 1)
	)`,
	`CREATE TABLE IF NOT EXISTS images (
		id TEXT PRIMARY KEY,
		document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
		ocr_result_id TEXT NOT NULL REFERENCES ocr_results(id) ON DELETE CASCADE,
		page_number INTEGER NOT NULL,
		bbox_x REAL NOT NULL, bbox_y REAL NOT NULL, bbox_width REAL NOT NULL, bbox_height REAL NOT NULL,
		image_index INTEGER NOT NULL,
		format TEXT NOT NULL,
		width INTEGER NOT NULL,
		height INTEGER NOT NULL,
		extracted_path TEXT NOT NULL,
		file_size INTEGER NOT NULL,
		vlm_status TEXT NOT NULL DEFAULT 'pending',
		vlm_description TEXT,
		vlm_structured_data TEXT,
		vlm_embedding_id TEXT REFERENCES embeddings(id) ON DELETE SET NULL,
		vlm_model TEXT,
		vlm_confidence REAL,
		vlm_processed_at DATETIME,
		vlm_tokens_used INTEGER,
		context_text TEXT,
		provenance_id TEXT NOT NULL REFERENCES provenance(id),
		block_type TEXT NOT NULL,
		is_header_footer INTEGER NOT NULL DEFAULT 0,
		content_hash TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS clusters (
		id TEXT PRIMARY KEY,
		run_id TEXT NOT NULL,
		cluster_index INTEGER NOT NULL,
		centroid_json TEXT NOT NULL,
		coherence_score REAL NOT NULL DEFAULT 0,
		algorithm TEXT NOT NULL,
		algorithm_params_json TEXT,
		silhouette_score REAL NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS document_clusters (
		id TEXT PRIMARY KEY,
		document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
		cluster_id TEXT REFERENCES clusters(id) ON DELETE CASCADE,
		similarity_to_centroid REAL NOT NULL DEFAULT 0,
		membership_probability REAL NOT NULL DEFAULT 0,
		is_noise INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS workflow_states (
		id TEXT PRIMARY KEY,
		document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
		state TEXT NOT NULL,
		reviewer TEXT,
		reason TEXT,
		created_at DATETIME NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS comparisons (
		id TEXT PRIMARY KEY,
		document_a_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
		document_b_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
		summary TEXT NOT NULL,
		text_diff TEXT,
		structural_diff TEXT,
		components_failed TEXT NOT NULL DEFAULT '[]',
		provenance_id TEXT NOT NULL REFERENCES provenance(id),
		created_at DATETIME NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS entity_tags (
		id TEXT PRIMARY KEY,
		entity_type TEXT NOT NULL,
		entity_id TEXT NOT NULL,
		tag TEXT NOT NULL
	)`,
}

var baseIndexes = []string{
	`CREATE INDEX IF NOT EXISTS idx_documents_file_hash ON documents(file_hash)`,
	`CREATE INDEX IF NOT EXISTS idx_ocr_results_document ON ocr_results(document_id)`,
	`CREATE INDEX IF NOT EXISTS idx_chunks_document ON chunks(document_id)`,
	`CREATE INDEX IF NOT EXISTS idx_chunks_ocr_result ON chunks(ocr_result_id)`,
	`CREATE INDEX IF NOT EXISTS idx_embeddings_chunk ON embeddings(chunk_id)`,
	`CREATE INDEX IF NOT EXISTS idx_embeddings_image ON embeddings(image_id)`,
	`CREATE INDEX IF NOT EXISTS idx_embeddings_extraction ON embeddings(extraction_id)`,
	`CREATE INDEX IF NOT EXISTS idx_embeddings_document ON embeddings(document_id)`,
	`CREATE INDEX IF NOT EXISTS idx_images_document ON images(document_id)`,
	`CREATE INDEX IF NOT EXISTS idx_images_provenance ON images(provenance_id)`,
	`CREATE INDEX IF NOT EXISTS idx_images_ocr_result ON images(ocr_result_id)`,
	`CREATE INDEX IF NOT EXISTS idx_extractions_document ON extractions(document_id)`,
	`CREATE INDEX IF NOT EXISTS idx_document_clusters_document ON document_clusters(document_id)`,
	`CREATE INDEX IF NOT EXISTS idx_document_clusters_cluster ON document_clusters(cluster_id)`,
	`CREATE INDEX IF NOT EXISTS idx_workflow_states_document ON workflow_states(document_id)`,
	`CREATE INDEX IF NOT EXISTS idx_provenance_root ON provenance(root_document_id)`,
	`CREATE INDEX IF NOT EXISTS idx_provenance_parent ON provenance(parent_id)`,
	`CREATE INDEX IF NOT EXISTS idx_provenance_type ON provenance(type)`,
	`CREATE INDEX IF NOT EXISTS idx_entity_tags_entity ON entity_tags(entity_type, entity_id)`,
}

// requiredFTSTriggers names the triggers whose presence getStatus() checks
// for drift detection, per the chunk-text FTS sync requirement.
var requiredFTSTriggers = []string{
	"chunks_fts_ai", "chunks_fts_ad", "chunks_fts_au",
	"images_fts_ai", "images_fts_ad", "images_fts_au",
}

var ftsObjects = []string{
	`CREATE VIRTUAL TABLE IF NOT EXISTS chunks_fts USING fts5(
		text, content='chunks', content_rowid='rowid'
	)`,
	`CREATE TRIGGER IF NOT EXISTS chunks_fts_ai AFTER INSERT ON chunks BEGIN
		INSERT INTO chunks_fts(rowid, text) VALUES (new.rowid, new.text);
	END`,
	`CREATE TRIGGER IF NOT EXISTS chunks_fts_ad AFTER DELETE ON chunks BEGIN
		INSERT INTO chunks_fts(chunks_fts, rowid, text) VALUES('delete', old.rowid, old.text);
	END`,
	`CREATE TRIGGER IF NOT EXISTS chunks_fts_au AFTER UPDATE ON chunks BEGIN
		INSERT INTO chunks_fts(chunks_fts, rowid, text) VALUES('delete', old.rowid, old.text);
		INSERT INTO chunks_fts(rowid, text) VALUES (new.rowid, new.text);
	END`,
	`CREATE VIRTUAL TABLE IF NOT EXISTS images_fts USING fts5(
		vlm_description, content='images', content_rowid='rowid'
	)`,
	`CREATE TRIGGER IF NOT EXISTS images_fts_ai AFTER INSERT ON images BEGIN
		INSERT INTO images_fts(rowid, vlm_description) VALUES (new.rowid, new.vlm_description);
	END`,
	`CREATE TRIGGER IF NOT EXISTS images_fts_ad AFTER DELETE ON images BEGIN
		INSERT INTO images_fts(images_fts, rowid, vlm_description) VALUES('delete', old.rowid, old.vlm_description);
	END`,
	`CREATE TRIGGER IF NOT EXISTS images_fts_au AFTER UPDATE ON images BEGIN
		INSERT INTO images_fts(images_fts, rowid, vlm_description) VALUES('delete', old.rowid, old.vlm_description);
		INSERT INTO images_fts(rowid, vlm_description) VALUES (new.rowid, new.vlm_description);
	END`,
}

func vecEmbeddingsDDL(dimension int) string {
	return fmt.Sprintf(`CREATE VIRTUAL TABLE IF NOT EXISTS vec_embeddings USING vec0(
		embedding_id TEXT PRIMARY KEY,
		vector FLOAT[%d]
	)`, dimension)
}

// createSchema creates every required object against a fresh or
// already-migrated database. It is idempotent (IF NOT EXISTS everywhere)
// so it is safe to call on every open.
func createSchema(db *sql.DB, dimension int) error {
	for _, stmt := range baseTables {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("store: create table: %w", err)
		}
	}
	for _, stmt := range baseIndexes {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("store: create index: %w", err)
		}
	}
	for _, stmt := range ftsObjects {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("store: create fts object: %w", err)
		}
	}
	if _, err := db.Exec(vecEmbeddingsDDL(dimension)); err != nil {
		return fmt.Errorf("store: create vec_embeddings: %w", err)
	}
	return nil
}

// verifyRequiredObjects checks that every table named in the schema and
// the vec_embeddings virtual table exist. It does not check triggers;
// that's getStatus()'s job (drift, not bootstrap, concern).
func verifyRequiredObjects(db *sql.DB) error {
	required := []string{"schema_version", "database_metadata", "provenance", "documents", "ocr_results",
		"chunks", "extractions", "embeddings", "images", "clusters", "document_clusters", "workflow_states",
		"comparisons", "entity_tags", "chunks_fts", "images_fts", "vec_embeddings"}
	for _, table := range required {
		var name string
		if err := db.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&name); err != nil {
			return fmt.Errorf("store: required object %s missing: %w", table, err)
		}
	}
	return nil
}
