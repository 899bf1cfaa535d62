package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

// insertEntityTags writes one entity_tags row per tag, keyed by the
// entity's own provenance id (or the document id, for entity_type
// "document") so DeleteDocument's cascade query can find them again.
func insertEntityTags(ctx context.Context, tx *sql.Tx, entityType, entityID string, tags []string) error {
	for _, tag := range tags {
		if tag == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO entity_tags (id, entity_type, entity_id, tag) VALUES (?,?,?,?)`,
			uuid.NewString(), entityType, entityID, tag); err != nil {
			return fmt.Errorf("store: insert entity_tags: %w", err)
		}
	}
	return nil
}
