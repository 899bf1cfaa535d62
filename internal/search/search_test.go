package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitize_PreservesNearAsOrdinaryTerm(t *testing.T) {
	sanitized := Sanitize("house NEAR river")
	assert.Equal(t, `"house" "NEAR" "river"`, sanitized)
}

func TestSanitize_PassesThroughBooleanOperators(t *testing.T) {
	sanitized := Sanitize("cats AND dogs")
	assert.Equal(t, `"cats" AND "dogs"`, sanitized)
}

func TestSanitize_EscapesEmbeddedQuotes(t *testing.T) {
	sanitized := Sanitize(`say "hi"`)
	assert.Contains(t, sanitized, `""hi""`)
}

func TestCosineFromL2_ClampedToUnitRange(t *testing.T) {
	assert.InDelta(t, 1.0, cosineFromL2(0), 1e-9)
	assert.InDelta(t, 0.0, cosineFromL2(2), 1e-9)
	assert.Equal(t, 0.0, cosineFromL2(10))
}

func TestFuse_DisjointListsProduceCombinedLength(t *testing.T) {
	ids := func(n int) []RankedEntry {
		out := make([]RankedEntry, n)
		for i := 0; i < n; i++ {
			id := idFor("bm25", i)
			out[i] = RankedEntry{ChunkID: &id, Rank: i + 1, Source: SourceBM25}
		}
		return out
	}
	semIDs := func(n int) []RankedEntry {
		out := make([]RankedEntry, n)
		for i := 0; i < n; i++ {
			id := idFor("sem", i)
			out[i] = RankedEntry{ChunkID: &id, Rank: i + 1, Source: SourceSemantic}
		}
		return out
	}

	lists := map[SourceKind][]RankedEntry{
		SourceBM25:     ids(5),
		SourceSemantic: semIDs(5),
	}
	fused := Fuse(lists, nil, 60)
	require.Len(t, fused, 10)
	assert.Equal(t, "chunk:"+idFor("bm25", 0), fused[0].Key, "tied top-rank scores break toward BM25 priority")
}

func TestFuse_OverlappingChunkOutranksBM25Only(t *testing.T) {
	a := "chunk-a"
	b := "chunk-b"
	lists := map[SourceKind][]RankedEntry{
		SourceBM25:     {{ChunkID: &a, Rank: 1, Source: SourceBM25}, {ChunkID: &b, Rank: 2, Source: SourceBM25}},
		SourceSemantic: {{ChunkID: &b, Rank: 1, Source: SourceSemantic}},
	}
	fused := Fuse(lists, nil, 60)
	require.Len(t, fused, 2)
	assert.Equal(t, "chunk:chunk-b", fused[0].Key, "B's combined BM25+semantic score must outrank A's BM25-only score")
}

func TestClassify_QuotedIDIsExactBM25(t *testing.T) {
	c := Classify(`"IBB-2023"`)
	assert.Equal(t, QueryExact, c.QueryType)
	assert.Equal(t, StrategyBM25, c.RecommendedStrategy)
}

func TestClassify_QuestionIsSemantic(t *testing.T) {
	c := Classify("what documents discuss whistleblower protections")
	assert.Equal(t, QuerySemantic, c.QueryType)
	assert.Equal(t, StrategySemantic, c.RecommendedStrategy)
}

func TestClassify_NoSignalsIsMixedHybridWithDefaultConfidence(t *testing.T) {
	c := Classify("some random text here")
	assert.Equal(t, QueryMixed, c.QueryType)
	assert.Equal(t, StrategyHybrid, c.RecommendedStrategy)
	assert.Equal(t, 0.5, c.Confidence)
	assert.Empty(t, c.DetectedPatterns)
}

func TestClassify_ConfidenceNeverReachesOne(t *testing.T) {
	c := Classify(`"IBB-2023" @user #tag 12345678 2023-01-01`)
	assert.LessOrEqual(t, c.Confidence, maxConfidence)
}

func TestQualityMultiplier_BoundsAndDefault(t *testing.T) {
	assert.Equal(t, QualityBoostCeiling, QualityMultiplier(nil))
	zero := 0.0
	assert.InDelta(t, QualityBoostFloor, QualityMultiplier(&zero), 1e-9)
	one := 1.0
	assert.InDelta(t, QualityBoostCeiling, QualityMultiplier(&one), 1e-9)
}

func idFor(prefix string, i int) string {
	return prefix + "-" + string(rune('a'+i))
}
