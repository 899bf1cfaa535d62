package worker

import "context"

// Embedder wraps a Process configured for the embedding worker.
type Embedder struct {
	proc *Process
}

// NewEmbedder binds an Embedder to the given binary path.
func NewEmbedder(binaryPath string) *Embedder {
	return &Embedder{proc: NewProcess(KindEmbedder, binaryPath)}
}

// Embed requests dense vectors for a batch of texts. Vectors come back
// L2-normalized by contract, but callers should still normalize before
// persisting since the worker is an external, possibly misbehaving,
// collaborator.
func (e *Embedder) Embed(ctx context.Context, texts []string, taskType string, batchSize int) (*EmbedResponse, error) {
	req := EmbedRequest{Texts: texts, TaskType: taskType, BatchSize: batchSize}
	var resp EmbedResponse
	if err := e.proc.Call(ctx, req, &resp); err != nil {
		return nil, err
	}
	if len(resp.Vectors) != len(texts) {
		return nil, &CallError{Kind: ErrWorkerParseError, Message: "embedder returned a different number of vectors than texts submitted"}
	}
	return &resp, nil
}
