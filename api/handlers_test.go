package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docprovrag/internal/store"
)

func setupTestEngine(t *testing.T) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	engine, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { engine.Close() })
	db = engine
}

func doRequest(r *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestHealthHandler_ReportsHealthy(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := SetupRoutes()
	rec := doRequest(r, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")
}

func TestCreateDocumentHandler_RejectsMissingRequiredFields(t *testing.T) {
	setupTestEngine(t)
	r := SetupRoutes()
	rec := doRequest(r, http.MethodPost, "/api/v1/documents", map[string]any{"file_name": "a.pdf"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateDocumentHandler_ThenGetAndList(t *testing.T) {
	setupTestEngine(t)
	r := SetupRoutes()

	createRec := doRequest(r, http.MethodPost, "/api/v1/documents", map[string]any{
		"file_path": "/tmp/a.pdf", "file_name": "a.pdf", "file_hash": "hash-a", "file_type": "pdf", "file_size": 10,
	})
	require.Equal(t, http.StatusCreated, createRec.Code)

	var created Envelope
	require.NoError(t, json.Unmarshal(createRec.Body.Bytes(), &created))
	require.True(t, created.Success)
	docMap, ok := created.Data.(map[string]any)
	require.True(t, ok)
	docID, _ := docMap["id"].(string)
	require.NotEmpty(t, docID)

	getRec := doRequest(r, http.MethodGet, "/api/v1/documents/"+docID, nil)
	assert.Equal(t, http.StatusOK, getRec.Code)

	listRec := doRequest(r, http.MethodGet, "/api/v1/documents", nil)
	assert.Equal(t, http.StatusOK, listRec.Code)
	assert.Contains(t, listRec.Body.String(), docID)
}

func TestCreateDocumentHandler_DuplicateFileHashReturnsSameDocument(t *testing.T) {
	setupTestEngine(t)
	r := SetupRoutes()

	req := map[string]any{
		"file_path": "/tmp/b.pdf", "file_name": "b.pdf", "file_hash": "hash-b", "file_type": "pdf", "file_size": 5,
	}
	first := doRequest(r, http.MethodPost, "/api/v1/documents", req)
	second := doRequest(r, http.MethodPost, "/api/v1/documents", req)
	require.Equal(t, http.StatusCreated, first.Code)
	require.Equal(t, http.StatusCreated, second.Code)
	assert.JSONEq(t, first.Body.String(), second.Body.String())
}

func TestGetDocumentHandler_UnknownIDIsNotFound(t *testing.T) {
	setupTestEngine(t)
	r := SetupRoutes()
	rec := doRequest(r, http.MethodGet, "/api/v1/documents/does-not-exist", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteDocumentHandler_RemovesDocumentAndItsTag(t *testing.T) {
	setupTestEngine(t)
	r := SetupRoutes()

	createRec := doRequest(r, http.MethodPost, "/api/v1/documents", map[string]any{
		"file_path": "/tmp/c.pdf", "file_name": "c.pdf", "file_hash": "hash-c", "file_type": "pdf", "file_size": 3,
	})
	require.Equal(t, http.StatusCreated, createRec.Code)
	var created Envelope
	require.NoError(t, json.Unmarshal(createRec.Body.Bytes(), &created))
	docID := created.Data.(map[string]any)["id"].(string)

	delRec := doRequest(r, http.MethodDelete, "/api/v1/documents/"+docID, nil)
	assert.Equal(t, http.StatusOK, delRec.Code)

	getRec := doRequest(r, http.MethodGet, "/api/v1/documents/"+docID, nil)
	assert.Equal(t, http.StatusNotFound, getRec.Code)

	var tagCount int
	require.NoError(t, db.DB().QueryRow(`SELECT COUNT(*) FROM entity_tags WHERE entity_type = 'document' AND entity_id = ?`, docID).Scan(&tagCount))
	assert.Zero(t, tagCount)
}
