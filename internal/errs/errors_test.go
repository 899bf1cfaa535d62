package errs

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNotFound_ClassifiesAsErrNotFound(t *testing.T) {
	err := NotFound("document", "doc-1")
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.Equal(t, CategoryDocumentNotFound, err.Category)
	assert.Contains(t, err.Error(), "doc-1")
}

func TestValidation_ClassifiesAsErrValidation(t *testing.T) {
	err := Validation("bad input", map[string]any{"field": "text"})
	assert.True(t, errors.Is(err, ErrValidation))
	assert.Equal(t, CategoryValidation, err.Category)
	assert.Equal(t, "text", err.Details["field"])
}

func TestIntegrity_ClassifiesAsErrIntegrity(t *testing.T) {
	err := Integrity("dangling reference", nil)
	assert.True(t, errors.Is(err, ErrIntegrity))
	assert.Equal(t, CategoryReferentialIntegrity, err.Category)
}

func TestConflict_PreservesCallerCategory(t *testing.T) {
	err := Conflict(CategoryInvalidTransition, "cannot transition", nil)
	assert.True(t, errors.Is(err, ErrConflict))
	assert.Equal(t, CategoryInvalidTransition, err.Category)
}

func TestSchema_ClassifiesAsErrSchema(t *testing.T) {
	err := Schema("migration failed", nil)
	assert.True(t, errors.Is(err, ErrSchema))
	assert.Equal(t, CategorySchema, err.Category)
}

func TestCategorizedError_UnwrapReachesSentinel(t *testing.T) {
	err := NotFound("image", "img-1")
	var wrapped error = err
	assert.True(t, errors.Is(wrapped, ErrNotFound))
	assert.False(t, errors.Is(wrapped, ErrValidation))
}
