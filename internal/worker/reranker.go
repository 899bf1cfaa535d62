package worker

import "context"

// MaxRerankPassages is the default cap on passages sent to the
// cross-encoder per call. The spec leaves open whether 20 is a model
// limit or a safety cap; we expose it as a field so callers can override
// it rather than hard-code it, per the recorded Open Question decision.
const MaxRerankPassages = 20

// Reranker wraps a Process configured for the cross-encoder worker.
type Reranker struct {
	proc         *Process
	MaxPassages  int
}

// NewReranker binds a Reranker to the given binary path.
func NewReranker(binaryPath string) *Reranker {
	return &Reranker{proc: NewProcess(KindReranker, binaryPath), MaxPassages: MaxRerankPassages}
}

// Rerank scores query against passages, truncating to MaxPassages if the
// caller submitted more.
func (r *Reranker) Rerank(ctx context.Context, query string, passages []RerankPassage) ([]RerankedPassage, error) {
	if len(passages) > r.MaxPassages {
		passages = passages[:r.MaxPassages]
	}
	req := RerankRequest{Query: query, Passages: passages}
	var resp RerankResponse
	if err := r.proc.Call(ctx, req, &resp); err != nil {
		return nil, err
	}
	return resp.Results, nil
}
