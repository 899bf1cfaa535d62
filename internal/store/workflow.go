package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"docprovrag/internal/errs"
	"docprovrag/models"
)

// workflowTransitions is the allowed document review transition graph.
// An empty starting state is modeled as WorkflowNone.
var workflowTransitions = map[models.WorkflowStateName][]models.WorkflowStateName{
	models.WorkflowNone:             {models.WorkflowDraft},
	models.WorkflowDraft:            {models.WorkflowSubmitted},
	models.WorkflowSubmitted:        {models.WorkflowInReview},
	models.WorkflowInReview:         {models.WorkflowApproved, models.WorkflowRejected, models.WorkflowChangesRequested},
	models.WorkflowChangesRequested: {models.WorkflowSubmitted},
	models.WorkflowApproved:         {models.WorkflowExecuted, models.WorkflowExpired, models.WorkflowArchived},
	models.WorkflowRejected:         {models.WorkflowArchived},
	models.WorkflowExecuted:         {models.WorkflowArchived},
	models.WorkflowExpired:          {},
	models.WorkflowArchived:         {},
}

// CurrentWorkflowState returns the latest state for a document, or
// WorkflowNone if none has been recorded yet.
func (e *Engine) CurrentWorkflowState(ctx context.Context, documentID string) (models.WorkflowStateName, error) {
	var state string
	err := e.DB().QueryRowContext(ctx,
		`SELECT state FROM workflow_states WHERE document_id = ? ORDER BY created_at DESC LIMIT 1`, documentID).Scan(&state)
	if err != nil {
		if err.Error() == "sql: no rows in result set" {
			return models.WorkflowNone, nil
		}
		return "", fmt.Errorf("store: current workflow state: %w", err)
	}
	return models.WorkflowStateName(state), nil
}

// TransitionWorkflow appends a new workflow state if the transition from
// the document's current state is allowed; otherwise it hard-fails,
// naming both the current state and the allowed set.
func (e *Engine) TransitionWorkflow(ctx context.Context, documentID string, next models.WorkflowStateName, reviewer, reason string) (*models.WorkflowState, error) {
	current, err := e.CurrentWorkflowState(ctx, documentID)
	if err != nil {
		return nil, err
	}

	allowed := workflowTransitions[current]
	ok := false
	for _, a := range allowed {
		if a == next {
			ok = true
			break
		}
	}
	if !ok {
		return nil, errs.Conflict(errs.CategoryInvalidTransition,
			fmt.Sprintf("cannot transition from %q to %q", current, next),
			map[string]any{"current_state": current, "allowed_states": allowed, "attempted": next})
	}

	ws := &models.WorkflowState{
		ID: uuid.NewString(), DocumentID: documentID, State: next,
		Reviewer: reviewer, Reason: reason, CreatedAt: now(),
	}
	_, err = e.DB().ExecContext(ctx, `INSERT INTO workflow_states (id, document_id, state, reviewer, reason, created_at)
		VALUES (?,?,?,?,?,?)`, ws.ID, ws.DocumentID, string(ws.State), ws.Reviewer, ws.Reason, ws.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("store: insert workflow_state: %w", err)
	}
	return ws, nil
}

// WorkflowHistory returns every recorded state for a document, oldest first.
func (e *Engine) WorkflowHistory(ctx context.Context, documentID string) ([]*models.WorkflowState, error) {
	rows, err := e.DB().QueryContext(ctx, `SELECT id, document_id, state, reviewer, reason, created_at
		FROM workflow_states WHERE document_id = ? ORDER BY created_at ASC`, documentID)
	if err != nil {
		return nil, fmt.Errorf("store: workflow history: %w", err)
	}
	defer rows.Close()

	var out []*models.WorkflowState
	for rows.Next() {
		var ws models.WorkflowState
		var state string
		if err := rows.Scan(&ws.ID, &ws.DocumentID, &state, &ws.Reviewer, &ws.Reason, &ws.CreatedAt); err != nil {
			return nil, err
		}
		ws.State = models.WorkflowStateName(state)
		out = append(out, &ws)
	}
	return out, rows.Err()
}
