package api

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"docprovrag/internal/errs"
)

func TestStatusFor_MapsEachSentinelToItsStatus(t *testing.T) {
	cases := []struct {
		err  *errs.CategorizedError
		want int
	}{
		{errs.NotFound("document", "d1"), http.StatusNotFound},
		{errs.Validation("bad", nil), http.StatusBadRequest},
		{errs.Conflict(errs.CategoryDatabaseExists, "exists", nil), http.StatusConflict},
		{errs.Integrity("dangling", nil), http.StatusUnprocessableEntity},
		{errs.Schema("migration", nil), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, statusFor(tc.err))
	}
}

func TestStatusFor_WorkerAndResourceKinds(t *testing.T) {
	worker := errs.New(errs.ErrWorker, errs.CategoryWorkerFailed, "worker failed", nil)
	assert.Equal(t, http.StatusBadGateway, statusFor(worker))

	resource := errs.New(errs.ErrResource, errs.CategoryPathNotFound, "path missing", nil)
	assert.Equal(t, http.StatusNotFound, statusFor(resource))
}
