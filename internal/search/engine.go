package search

import (
	"context"
	"database/sql"
	"fmt"

	"golang.org/x/sync/errgroup"

	"docprovrag/internal/worker"
)

// Engine is the hybrid search entry point: it dispatches BM25 and
// semantic lookups in parallel, applies quality boosting within each
// list, fuses with reciprocal rank fusion, and optionally reranks.
type Engine struct {
	db       *sql.DB
	embedder *worker.Embedder
	reranker *worker.Reranker
}

// EngineOption configures an Engine at construction time.
type EngineOption func(*Engine)

// WithReranker attaches a cross-encoder reranker. Without one, Search
// never attempts a rerank pass.
func WithReranker(r *worker.Reranker) EngineOption {
	return func(e *Engine) { e.reranker = r }
}

// NewEngine builds a search Engine over an open database handle and an
// embedder used to vectorize incoming queries.
func NewEngine(db *sql.DB, embedder *worker.Embedder, opts ...EngineOption) *Engine {
	e := &Engine{db: db, embedder: embedder}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Mode picks which source lists a Search call consults.
type Mode string

const (
	ModeAuto     Mode = "auto"
	ModeBM25     Mode = "bm25"
	ModeSemantic Mode = "semantic"
	ModeHybrid   Mode = "hybrid"
)

// Options configures one Search call.
type Options struct {
	Mode               Mode
	Limit              int
	SemanticThreshold  *float64
	ApplyQualityBoost  bool
	Rerank             bool
	RRFWeights         map[SourceKind]float64
	RRFK               int
}

func (o Options) withDefaults() Options {
	if o.Limit <= 0 {
		o.Limit = 20
	}
	if o.Mode == "" {
		o.Mode = ModeAuto
	}
	return o
}

// Result is one fused, optionally reranked, search hit.
type Result struct {
	Key             string
	ChunkID         *string
	ImageID         *string
	ExtractionID    *string
	FusedScore      float64
	RerankScore     *float64
	RerankerFailed  bool
	RerankFailReason string
	Lexical         *LexicalResult
	Semantic        *SemanticResult
}

// SearchReport bundles the results with the classification and
// threshold metadata a caller needs to explain the response.
type SearchReport struct {
	Results         []Result
	Classification  Classification
	ThresholdMode   ThresholdMode
	ThresholdValue  float64
}

// Search runs the hybrid pipeline. When Mode is ModeAuto, the pure
// heuristic classifier picks bm25/semantic/hybrid; otherwise the
// caller's mode is honored as-is.
func (e *Engine) Search(ctx context.Context, query string, opts Options) (*SearchReport, error) {
	opts = opts.withDefaults()

	classification := Classify(query)
	mode := opts.Mode
	if mode == ModeAuto {
		switch classification.RecommendedStrategy {
		case StrategyBM25:
			mode = ModeBM25
		case StrategySemantic:
			mode = ModeSemantic
		default:
			mode = ModeHybrid
		}
	}

	var lexical []LexicalResult
	var semanticReport *SemanticSearchResult

	g, gctx := errgroup.WithContext(ctx)
	if mode == ModeBM25 || mode == ModeHybrid {
		g.Go(func() error {
			results, err := LexicalSearch(gctx, e.db, query, opts.Limit)
			if err != nil {
				return fmt.Errorf("search: lexical: %w", err)
			}
			lexical = results
			return nil
		})
	}
	if mode == ModeSemantic || mode == ModeHybrid {
		g.Go(func() error {
			resp, err := e.embedder.Embed(gctx, []string{query}, "search_query", 1)
			if err != nil {
				return fmt.Errorf("search: embed query: %w", err)
			}
			report, err := SemanticSearch(gctx, e.db, resp.Vectors[0], opts.Limit, opts.SemanticThreshold)
			if err != nil {
				return fmt.Errorf("search: semantic: %w", err)
			}
			semanticReport = report
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if opts.ApplyQualityBoost {
		lexical = ApplyQualityBoostLexical(lexical)
		if semanticReport != nil {
			qualityByEmbeddingID, err := QualityByEmbeddingID(ctx, e.db, semanticReport.Results)
			if err != nil {
				return nil, err
			}
			semanticReport.Results = ApplyQualityBoostSemantic(semanticReport.Results, qualityByEmbeddingID)
		}
	}

	lists := map[SourceKind][]RankedEntry{}
	lexByKey := map[string]LexicalResult{}
	for _, r := range lexical {
		chunkID := r.ChunkID
		entry := RankedEntry{ChunkID: &chunkID, Rank: r.Rank, Source: SourceBM25}
		lists[SourceBM25] = append(lists[SourceBM25], entry)
		lexByKey[entry.DedupKey()] = r
	}

	semByKey := map[string]SemanticResult{}
	if semanticReport != nil {
		for _, r := range semanticReport.Results {
			entry := RankedEntry{ChunkID: r.ChunkID, ImageID: r.ImageID, ExtractionID: r.ExtractionID,
				EmbeddingID: strPtr(r.EmbeddingID), Rank: r.Rank, Source: SourceSemantic}
			lists[SourceSemantic] = append(lists[SourceSemantic], entry)
			semByKey[entry.DedupKey()] = r
		}
	}

	fused := Fuse(lists, opts.RRFWeights, opts.RRFK)

	results := make([]Result, 0, len(fused))
	for _, f := range fused {
		res := Result{Key: f.Key, FusedScore: f.Score}
		if bm25Entry, ok := f.Entries[SourceBM25]; ok {
			res.ChunkID = bm25Entry.ChunkID
			if lex, ok := lexByKey[f.Key]; ok {
				lr := lex
				res.Lexical = &lr
			}
		}
		if semEntry, ok := f.Entries[SourceSemantic]; ok {
			if res.ChunkID == nil {
				res.ChunkID = semEntry.ChunkID
			}
			res.ImageID = semEntry.ImageID
			res.ExtractionID = semEntry.ExtractionID
			if sem, ok := semByKey[f.Key]; ok {
				sr := sem
				res.Semantic = &sr
			}
		}
		results = append(results, res)
	}

	if opts.Rerank && e.reranker != nil && len(results) > 0 {
		results = e.rerank(ctx, query, results)
	}

	report := &SearchReport{Results: results, Classification: classification}
	if semanticReport != nil {
		report.ThresholdMode = semanticReport.ThresholdMode
		report.ThresholdValue = semanticReport.Threshold
	}
	return report, nil
}

// rerank re-scores the top candidates with the cross-encoder worker.
// If the worker is unavailable or fails, the original fused order is
// preserved and every result is flagged reranker_failed=true with a
// machine-readable reason, never dropped.
func (e *Engine) rerank(ctx context.Context, query string, results []Result) []Result {
	bounded := results
	if len(bounded) > e.reranker.MaxPassages {
		bounded = bounded[:e.reranker.MaxPassages]
	}

	passages := make([]worker.RerankPassage, len(bounded))
	for i, r := range bounded {
		passages[i] = worker.RerankPassage{Index: i, Text: passageText(r), OriginalScore: r.FusedScore}
	}

	scored, err := e.reranker.Rerank(ctx, query, passages)
	if err != nil {
		reason := failureReason(err)
		for i := range results {
			results[i].RerankerFailed = true
			results[i].RerankFailReason = reason
		}
		return results
	}

	scoreByIndex := make(map[int]float64, len(scored))
	for _, s := range scored {
		scoreByIndex[s.Index] = s.RelevanceScore
	}
	for i := range bounded {
		if score, ok := scoreByIndex[i]; ok {
			s := score
			bounded[i].RerankScore = &s
		}
	}
	sortByRerankScore(bounded)
	copy(results, bounded)
	return results
}

func passageText(r Result) string {
	if r.Lexical != nil {
		return r.Lexical.Text
	}
	return ""
}

func failureReason(err error) string {
	if ce, ok := err.(*worker.CallError); ok && ce.Kind != nil {
		return ce.Kind.Error()
	}
	return "reranker_unavailable"
}

func sortByRerankScore(results []Result) {
	for i := 1; i < len(results); i++ {
		for j := i; j > 0 && better(results[j], results[j-1]); j-- {
			results[j], results[j-1] = results[j-1], results[j]
		}
	}
}

func better(a, b Result) bool {
	if a.RerankScore == nil || b.RerankScore == nil {
		return false
	}
	return *a.RerankScore > *b.RerankScore
}

func strPtr(s string) *string { return &s }
