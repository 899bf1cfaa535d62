// Package provenance implements the append-only chain of custody that
// links every derived artifact back to its originating document: create,
// chain, descendants, byRootDocument, and filtered query.
package provenance

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"docprovrag/internal/errs"
	"docprovrag/internal/hashutil"
	"docprovrag/models"
)

// Tracker provides the provenance chain contract over a shared database
// handle. It never opens or closes the handle itself.
type Tracker struct {
	db *sql.DB
}

// New builds a Tracker over an already-open database handle.
func New(db *sql.DB) *Tracker {
	return &Tracker{db: db}
}

// Create inserts a new provenance row, enforcing chain invariants before
// touching the database: chain_depth == len(parent_ids), chain_path[depth]
// == type, and (for non-root rows) that parent_id exists.
func (t *Tracker) Create(ctx context.Context, tx *sql.Tx, rec *models.Provenance) error {
	if rec.ChainDepth != len(rec.ParentIDs) {
		return errs.Validation("chain_depth must equal len(parent_ids)", map[string]any{
			"chain_depth": rec.ChainDepth, "parent_ids_len": len(rec.ParentIDs),
		})
	}
	if rec.ChainDepth >= len(rec.ChainPath) || models.ProvenanceType(rec.ChainPath[rec.ChainDepth]) != rec.Type {
		return errs.Validation("chain_path[chain_depth] must equal type", map[string]any{
			"chain_depth": rec.ChainDepth, "type": rec.Type,
		})
	}
	if rec.Type == models.ProvDocument {
		if rec.ParentID != nil {
			return errs.Validation("DOCUMENT provenance must have a nil parent_id", nil)
		}
		if rec.RootDocumentID != rec.ID {
			return errs.Validation("DOCUMENT provenance must have root_document_id == id", nil)
		}
	} else if rec.ParentID != nil {
		exists, err := t.exists(ctx, tx, *rec.ParentID)
		if err != nil {
			return err
		}
		if !exists {
			return errs.Integrity("parent provenance not found", map[string]any{"parent_id": *rec.ParentID})
		}
	}

	paramsJSON, err := hashutil.CanonicalJSON(rec.ProcessingParams)
	if err != nil {
		return fmt.Errorf("provenance: encode processing_params: %w", err)
	}
	parentIDsJSON, err := json.Marshal(rec.ParentIDs)
	if err != nil {
		return fmt.Errorf("provenance: encode parent_ids: %w", err)
	}
	chainPathJSON, err := json.Marshal(rec.ChainPath)
	if err != nil {
		return fmt.Errorf("provenance: encode chain_path: %w", err)
	}
	var locationJSON []byte
	if rec.Location != nil {
		locationJSON, err = hashutil.CanonicalJSON(rec.Location)
		if err != nil {
			return fmt.Errorf("provenance: encode location: %w", err)
		}
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	const q = `INSERT INTO provenance (
		id, type, created_at, processed_at, source_type, source_id, root_document_id,
		parent_id, parent_ids, chain_depth, chain_path, content_hash, input_hash, file_hash,
		processor, processor_version, processing_params, processing_duration_ms,
		processing_quality_score, location
	) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`

	_, err = tx.ExecContext(ctx, q,
		rec.ID, string(rec.Type), rec.CreatedAt, rec.ProcessedAt, string(rec.SourceType), rec.SourceID,
		rec.RootDocumentID, rec.ParentID, string(parentIDsJSON), rec.ChainDepth, string(chainPathJSON),
		rec.ContentHash, rec.InputHash, rec.FileHash, rec.Processor, rec.ProcessorVersion,
		string(paramsJSON), rec.ProcessingDurationMs, rec.ProcessingQualityScore, nullableString(locationJSON),
	)
	if err != nil {
		return fmt.Errorf("provenance: insert: %w", err)
	}
	return nil
}

func nullableString(b []byte) any {
	if b == nil {
		return nil
	}
	return string(b)
}

func (t *Tracker) exists(ctx context.Context, tx *sql.Tx, id string) (bool, error) {
	var n int
	err := tx.QueryRowContext(ctx, `SELECT 1 FROM provenance WHERE id = ?`, id).Scan(&n)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("provenance: exists check: %w", err)
	}
	return true, nil
}

// Chain returns ancestors from root to id, inclusive, in topological
// (root-first) order. Fails if any parent link in the path is missing.
func (t *Tracker) Chain(ctx context.Context, id string) ([]*models.Provenance, error) {
	rec, err := t.get(ctx, id)
	if err != nil {
		return nil, err
	}
	chain := []*models.Provenance{rec}
	for rec.ParentID != nil {
		parent, err := t.get(ctx, *rec.ParentID)
		if err != nil {
			return nil, errs.Integrity("provenance chain broken: missing parent", map[string]any{
				"missing_parent_id": *rec.ParentID,
			})
		}
		chain = append(chain, parent)
		rec = parent
	}
	// reverse to root-first
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain, nil
}

func (t *Tracker) get(ctx context.Context, id string) (*models.Provenance, error) {
	row := t.db.QueryRowContext(ctx, selectCols+` WHERE id = ?`, id)
	rec, err := scanProvenance(row)
	if err == sql.ErrNoRows {
		return nil, errs.NotFound("provenance", id)
	}
	return rec, err
}

// Descendants returns all records whose parent_ids contains id.
func (t *Tracker) Descendants(ctx context.Context, id string) ([]*models.Provenance, error) {
	rows, err := t.db.QueryContext(ctx, selectCols+` WHERE parent_ids LIKE ?`, "%"+id+"%")
	if err != nil {
		return nil, fmt.Errorf("provenance: descendants query: %w", err)
	}
	defer rows.Close()
	return scanAllFiltered(rows, func(rec *models.Provenance) bool {
		for _, p := range rec.ParentIDs {
			if p == id {
				return true
			}
		}
		return false
	})
}

// ByRootDocument returns every provenance row rooted at rootID.
func (t *Tracker) ByRootDocument(ctx context.Context, rootID string) ([]*models.Provenance, error) {
	rows, err := t.db.QueryContext(ctx, selectCols+` WHERE root_document_id = ? ORDER BY chain_depth ASC, created_at ASC`, rootID)
	if err != nil {
		return nil, fmt.Errorf("provenance: byRootDocument query: %w", err)
	}
	defer rows.Close()
	return scanAll(rows)
}

// QueryFilters pages provenance rows by type, processor, and date range.
type QueryFilters struct {
	Type      models.ProvenanceType
	Processor string
	From      *time.Time
	To        *time.Time
	Limit     int
	Offset    int
}

// Query pages provenance rows by the given filters.
func (t *Tracker) Query(ctx context.Context, f QueryFilters) ([]*models.Provenance, error) {
	where := "WHERE 1=1"
	args := []any{}
	if f.Type != "" {
		where += " AND type = ?"
		args = append(args, string(f.Type))
	}
	if f.Processor != "" {
		where += " AND processor = ?"
		args = append(args, f.Processor)
	}
	if f.From != nil {
		where += " AND created_at >= ?"
		args = append(args, *f.From)
	}
	if f.To != nil {
		where += " AND created_at <= ?"
		args = append(args, *f.To)
	}
	limit := f.Limit
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}
	args = append(args, limit, offset)

	rows, err := t.db.QueryContext(ctx, selectCols+" "+where+" ORDER BY created_at DESC LIMIT ? OFFSET ?", args...)
	if err != nil {
		return nil, fmt.Errorf("provenance: query: %w", err)
	}
	defer rows.Close()
	return scanAll(rows)
}

const selectCols = `SELECT id, type, created_at, processed_at, source_type, source_id, root_document_id,
	parent_id, parent_ids, chain_depth, chain_path, content_hash, input_hash, file_hash,
	processor, processor_version, processing_params, processing_duration_ms,
	processing_quality_score, location FROM provenance`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProvenance(row rowScanner) (*models.Provenance, error) {
	var rec models.Provenance
	var parentIDsJSON, chainPathJSON, paramsJSON string
	var locationJSON sql.NullString
	var typ, sourceType string
	if err := row.Scan(
		&rec.ID, &typ, &rec.CreatedAt, &rec.ProcessedAt, &sourceType, &rec.SourceID, &rec.RootDocumentID,
		&rec.ParentID, &parentIDsJSON, &rec.ChainDepth, &chainPathJSON, &rec.ContentHash, &rec.InputHash,
		&rec.FileHash, &rec.Processor, &rec.ProcessorVersion, &paramsJSON, &rec.ProcessingDurationMs,
		&rec.ProcessingQualityScore, &locationJSON,
	); err != nil {
		return nil, err
	}
	rec.Type = models.ProvenanceType(typ)
	rec.SourceType = models.SourceType(sourceType)

	if err := json.Unmarshal([]byte(parentIDsJSON), &rec.ParentIDs); err != nil {
		log.Printf("provenance: malformed parent_ids on row id=%s: %v", rec.ID, err)
		rec.ParentIDs = nil
	}
	if err := json.Unmarshal([]byte(chainPathJSON), &rec.ChainPath); err != nil {
		log.Printf("provenance: malformed chain_path on row id=%s: %v", rec.ID, err)
		rec.ChainPath = nil
	}
	if paramsJSON != "" {
		if err := json.Unmarshal([]byte(paramsJSON), &rec.ProcessingParams); err != nil {
			log.Printf("provenance: malformed processing_params on row id=%s: %v", rec.ID, err)
			rec.ProcessingParams = map[string]any{"_parse_error": true, "_raw": paramsJSON}
		}
	}
	if locationJSON.Valid && locationJSON.String != "" {
		var loc models.Location
		if err := json.Unmarshal([]byte(locationJSON.String), &loc); err != nil {
			log.Printf("provenance: malformed location on row id=%s: %v", rec.ID, err)
			rec.Location = &models.Location{Extra: map[string]any{"_parse_error": true, "_raw": locationJSON.String}}
		} else {
			rec.Location = &loc
		}
	}
	return &rec, nil
}

func scanAll(rows *sql.Rows) ([]*models.Provenance, error) {
	var out []*models.Provenance
	for rows.Next() {
		rec, err := scanProvenance(rows)
		if err != nil {
			return nil, fmt.Errorf("provenance: scan: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func scanAllFiltered(rows *sql.Rows, keep func(*models.Provenance) bool) ([]*models.Provenance, error) {
	var out []*models.Provenance
	for rows.Next() {
		rec, err := scanProvenance(rows)
		if err != nil {
			return nil, fmt.Errorf("provenance: scan: %w", err)
		}
		if keep(rec) {
			out = append(out, rec)
		}
	}
	return out, rows.Err()
}
