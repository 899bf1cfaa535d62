package provenance

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docprovrag/models"
)

const provenanceTableDDL = `CREATE TABLE provenance (
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
)`

func openTestTracker(t *testing.T) (*Tracker, *sql.DB) {
	t.Helper()
	db, err := sql.Open("sqlite3", "file::memory:?cache=shared")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	_, err = db.Exec(provenanceTableDDL)
	require.NoError(t, err)
	return New(db), db
}

func rootRecord(id string) *models.Provenance {
	return &models.Provenance{
		ID: id, Type: models.ProvDocument, CreatedAt: time.Now().UTC(),
		SourceType: models.SourceFile, RootDocumentID: id,
		ParentIDs: []string{}, ChainPath: []string{string(models.ProvDocument)},
		ContentHash: "sha256:" + sampleDigest, Processor: "ingest",
	}
}

const sampleDigest = "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcd"

func TestCreate_RejectsChainDepthMismatch(t *testing.T) {
	tracker, db := openTestTracker(t)
	tx, err := db.Begin()
	require.NoError(t, err)
	defer tx.Rollback()

	rec := rootRecord("doc-1")
	rec.ChainDepth = 1 // parent_ids is empty, so this must fail

	err = tracker.Create(context.Background(), tx, rec)
	assert.Error(t, err)
}

func TestCreate_RejectsChainPathTypeMismatch(t *testing.T) {
	tracker, db := openTestTracker(t)
	tx, err := db.Begin()
	require.NoError(t, err)
	defer tx.Rollback()

	rec := rootRecord("doc-2")
	rec.ChainPath = []string{string(models.ProvOCRResult)}

	err = tracker.Create(context.Background(), tx, rec)
	assert.Error(t, err)
}

func TestCreate_RejectsDocumentWithNonSelfReferentialRoot(t *testing.T) {
	tracker, db := openTestTracker(t)
	tx, err := db.Begin()
	require.NoError(t, err)
	defer tx.Rollback()

	rec := rootRecord("doc-3")
	rec.RootDocumentID = "someone-else"

	err = tracker.Create(context.Background(), tx, rec)
	assert.Error(t, err)
}

func TestCreate_RejectsMissingParent(t *testing.T) {
	tracker, db := openTestTracker(t)
	tx, err := db.Begin()
	require.NoError(t, err)
	defer tx.Rollback()

	missingParent := "does-not-exist"
	rec := &models.Provenance{
		ID: "child-1", Type: models.ProvOCRResult, CreatedAt: time.Now().UTC(),
		SourceType: models.SourceOCR, RootDocumentID: "doc-4",
		ParentID: &missingParent, ParentIDs: []string{missingParent}, ChainDepth: 1,
		ChainPath:   []string{string(models.ProvDocument), string(models.ProvOCRResult)},
		ContentHash: "sha256:" + sampleDigest, Processor: "ocr",
	}

	err = tracker.Create(context.Background(), tx, rec)
	assert.Error(t, err)
}

func TestCreate_ThenChain_RoundTripsRootToLeaf(t *testing.T) {
	tracker, db := openTestTracker(t)
	tx, err := db.Begin()
	require.NoError(t, err)

	root := rootRecord("doc-5")
	require.NoError(t, tracker.Create(context.Background(), tx, root))

	parentID := root.ID
	child := &models.Provenance{
		ID: "child-5", Type: models.ProvOCRResult, CreatedAt: time.Now().UTC(),
		SourceType: models.SourceOCR, SourceID: &parentID, RootDocumentID: root.ID,
		ParentID: &parentID, ParentIDs: []string{parentID}, ChainDepth: 1,
		ChainPath:   []string{string(models.ProvDocument), string(models.ProvOCRResult)},
		ContentHash: "sha256:" + sampleDigest, Processor: "ocr",
	}
	require.NoError(t, tracker.Create(context.Background(), tx, child))
	require.NoError(t, tx.Commit())

	chain, err := tracker.Chain(context.Background(), child.ID)
	require.NoError(t, err)
	require.Len(t, chain, 2)
	assert.Equal(t, root.ID, chain[0].ID, "chain must be root-first")
	assert.Equal(t, child.ID, chain[1].ID)
}

func TestCreate_PreservesLocationRoundTrip(t *testing.T) {
	tracker, db := openTestTracker(t)
	tx, err := db.Begin()
	require.NoError(t, err)

	root := rootRecord("doc-6")
	idx := 3
	root.Location = &models.Location{ChunkIndex: &idx, Extra: map[string]any{"custom_field": "kept"}}
	require.NoError(t, tracker.Create(context.Background(), tx, root))
	require.NoError(t, tx.Commit())

	chain, err := tracker.Chain(context.Background(), root.ID)
	require.NoError(t, err)
	require.NotNil(t, chain[0].Location)
	assert.Equal(t, idx, *chain[0].Location.ChunkIndex)
	assert.Equal(t, "kept", chain[0].Location.Extra["custom_field"])
}
