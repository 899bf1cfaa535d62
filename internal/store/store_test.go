package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docprovrag/models"
)

func openTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := Open(filepath.Join(t.TempDir(), "store_test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	return e
}

// newTestChunk builds a minimal valid chunk/provenance pair rooted at doc,
// backed by a real ocr_results row so the chunks table's foreign key holds.
func newTestChunk(t *testing.T, e *Engine, doc *models.Document, chunkID, provID string) (*models.Chunk, *models.Provenance) {
	t.Helper()
	ctx := context.Background()
	ocrResult, _, err := e.RecordOCRResult(ctx, doc, "hello world", models.ModeFast, 1, 0.9, nil)
	require.NoError(t, err)

	chunk := &models.Chunk{
		ID: chunkID, DocumentID: doc.ID, OCRResultID: ocrResult.ID, Text: "hello", TextHash: "h",
		ChunkIndex: 0, CharacterStart: 0, CharacterEnd: 5,
		ProvenanceID: provID, EmbeddingStatus: models.EmbeddingPending, ContentTypes: []string{"text"},
	}
	prov := &models.Provenance{
		ID: provID, Type: models.ProvChunk, CreatedAt: time.Now().UTC(),
		RootDocumentID: doc.ProvenanceID, ParentIDs: []string{}, ChainPath: []string{string(models.ProvChunk)},
		ContentHash: hash64(),
	}
	return chunk, prov
}

func TestCreateDocument_DuplicateFileHashReturnsExistingRow(t *testing.T) {
	e := openTestEngine(t)
	ctx := context.Background()

	first, err := e.CreateDocument(ctx, "/tmp/a.pdf", "a.pdf", "hash-1", "pdf", 100)
	require.NoError(t, err)

	second, err := e.CreateDocument(ctx, "/tmp/a-renamed.pdf", "a-renamed.pdf", "hash-1", "pdf", 100)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID, "identical file_hash must dedupe to the original document")
}

func TestCreateDocument_WritesFileTypeEntityTag(t *testing.T) {
	e := openTestEngine(t)
	ctx := context.Background()

	doc, err := e.CreateDocument(ctx, "/tmp/b.pdf", "b.pdf", "hash-2", "pdf", 50)
	require.NoError(t, err)

	var tag string
	err = e.DB().QueryRowContext(ctx,
		`SELECT tag FROM entity_tags WHERE entity_type = 'document' AND entity_id = ?`, doc.ID).Scan(&tag)
	require.NoError(t, err)
	assert.Equal(t, "pdf", tag)
}

func TestInsertChunks_RejectsNonPositiveSpan(t *testing.T) {
	e := openTestEngine(t)
	ctx := context.Background()

	doc, err := e.CreateDocument(ctx, "/tmp/c.pdf", "c.pdf", "hash-3", "pdf", 10)
	require.NoError(t, err)
	chunk, prov := newTestChunk(t, e, doc, "chunk-1", "prov-1")
	chunk.CharacterStart, chunk.CharacterEnd = 10, 5

	err = e.InsertChunks(ctx, []*models.Chunk{chunk}, []*models.Provenance{prov})
	assert.Error(t, err)
}

func TestInsertChunks_WritesContentTypesAsEntityTags(t *testing.T) {
	e := openTestEngine(t)
	ctx := context.Background()

	doc, err := e.CreateDocument(ctx, "/tmp/d.pdf", "d.pdf", "hash-4", "pdf", 10)
	require.NoError(t, err)
	chunk, prov := newTestChunk(t, e, doc, "chunk-2", "prov-2")

	require.NoError(t, e.InsertChunks(ctx, []*models.Chunk{chunk}, []*models.Provenance{prov}))

	var tag string
	err = e.DB().QueryRowContext(ctx,
		`SELECT tag FROM entity_tags WHERE entity_type = 'chunk' AND entity_id = ?`, "prov-2").Scan(&tag)
	require.NoError(t, err)
	assert.Equal(t, "text", tag)
}

func TestDeleteDocument_CascadesEntityTagsAndChunks(t *testing.T) {
	e := openTestEngine(t)
	ctx := context.Background()

	doc, err := e.CreateDocument(ctx, "/tmp/e.pdf", "e.pdf", "hash-5", "pdf", 10)
	require.NoError(t, err)
	chunk, prov := newTestChunk(t, e, doc, "chunk-3", "prov-3")
	require.NoError(t, e.InsertChunks(ctx, []*models.Chunk{chunk}, []*models.Provenance{prov}))

	require.NoError(t, e.DeleteDocument(ctx, doc.ID))

	var chunkCount int
	require.NoError(t, e.DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks WHERE document_id = ?`, doc.ID).Scan(&chunkCount))
	assert.Zero(t, chunkCount)

	var tagCount int
	require.NoError(t, e.DB().QueryRowContext(ctx,
		`SELECT COUNT(*) FROM entity_tags WHERE entity_type = 'document' AND entity_id = ?`, doc.ID).Scan(&tagCount))
	assert.Zero(t, tagCount)

	var chunkTagCount int
	require.NoError(t, e.DB().QueryRowContext(ctx,
		`SELECT COUNT(*) FROM entity_tags WHERE entity_type = 'chunk' AND entity_id = ?`, "prov-3").Scan(&chunkTagCount))
	assert.Zero(t, chunkTagCount)
}

// hash64 is a fixed stand-in sha256-shaped content_hash for tests that
// only need a syntactically valid value, not a real digest.
func hash64() string {
	return "sha256:0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcd"
}
