package search

import "sort"

// SourceKind names a per-source result list participating in fusion.
// The declared order is also the tie-break priority: BM25 outranks
// semantic when scores and ranks otherwise agree.
type SourceKind string

const (
	SourceBM25     SourceKind = "bm25"
	SourceSemantic SourceKind = "semantic"
)

// sourcePriority gives each SourceKind a tie-break rank; lower wins.
var sourcePriority = map[SourceKind]int{
	SourceBM25:     0,
	SourceSemantic: 1,
}

// DefaultRRFK is the k constant in weight / (k + rank).
const DefaultRRFK = 60

// RankedEntry is one row from a single source's ranked result list,
// carrying whichever identifiers that source populated. Dedup keying
// prefers chunk_id, then image_id, then extraction_id, then
// embedding_id, so the same underlying chunk fuses correctly even when
// only one side has an embedding id.
type RankedEntry struct {
	ChunkID      *string
	ImageID      *string
	ExtractionID *string
	EmbeddingID  *string
	Rank         int // 1-based
	Source       SourceKind
}

// DedupKey returns the identifier used to merge entries across lists.
func (e RankedEntry) DedupKey() string {
	switch {
	case e.ChunkID != nil && *e.ChunkID != "":
		return "chunk:" + *e.ChunkID
	case e.ImageID != nil && *e.ImageID != "":
		return "image:" + *e.ImageID
	case e.ExtractionID != nil && *e.ExtractionID != "":
		return "extraction:" + *e.ExtractionID
	case e.EmbeddingID != nil && *e.EmbeddingID != "":
		return "embedding:" + *e.EmbeddingID
	default:
		return ""
	}
}

// Fused is one result after reciprocal rank fusion: its dedup key, the
// combined score, and the per-source ranks/entries that contributed.
type Fused struct {
	Key     string
	Score   float64
	Ranks   map[SourceKind]int
	Entries map[SourceKind]RankedEntry
}

// Fuse combines per-source ranked lists via reciprocal rank fusion:
// contribution = weight / (k + rank), summed across every source list
// in which the key appears. Results are sorted by fused score
// descending; ties are broken by the lower rank on the
// highest-priority source present (BM25 before semantic), matching the
// rule that BM25 provenance wins when both sides have a hit.
func Fuse(lists map[SourceKind][]RankedEntry, weights map[SourceKind]float64, k int) []Fused {
	if k <= 0 {
		k = DefaultRRFK
	}
	byKey := map[string]*Fused{}
	var order []string

	for source, entries := range lists {
		weight := weights[source]
		if weight == 0 {
			weight = 1.0
		}
		for _, e := range entries {
			key := e.DedupKey()
			if key == "" {
				continue
			}
			f, ok := byKey[key]
			if !ok {
				f = &Fused{Key: key, Ranks: map[SourceKind]int{}, Entries: map[SourceKind]RankedEntry{}}
				byKey[key] = f
				order = append(order, key)
			}
			f.Score += weight / float64(k+e.Rank)
			f.Ranks[source] = e.Rank
			f.Entries[source] = e
		}
	}

	results := make([]Fused, 0, len(order))
	for _, key := range order {
		results = append(results, *byKey[key])
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return strongerSourceRank(results[i]) < strongerSourceRank(results[j])
	})

	return results
}

// strongerSourceRank returns the rank on the highest-priority source
// present in f, for tie-breaking fused scores that land exactly equal.
func strongerSourceRank(f Fused) int {
	bestPriority := len(sourcePriority) + 1
	bestRank := int(^uint(0) >> 1) // max int
	for source, rank := range f.Ranks {
		p := sourcePriority[source]
		if p < bestPriority || (p == bestPriority && rank < bestRank) {
			bestPriority = p
			bestRank = rank
		}
	}
	return bestRank
}
