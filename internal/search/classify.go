package search

import (
	"regexp"
	"strings"
)

// QueryType is the classifier's verdict on whether a query reads as a
// precise lookup or a conceptual question.
type QueryType string

const (
	QueryExact    QueryType = "exact"
	QuerySemantic QueryType = "semantic"
	QueryMixed    QueryType = "mixed"
)

// Strategy is the retrieval path the classifier recommends.
type Strategy string

const (
	StrategyBM25     Strategy = "bm25"
	StrategySemantic Strategy = "semantic"
	StrategyHybrid   Strategy = "hybrid"
)

// Classification is the classifier's full verdict.
type Classification struct {
	QueryType          QueryType
	RecommendedStrategy Strategy
	Confidence         float64
	Reasoning          string
	DetectedPatterns   []string
}

var (
	quotedStringRe    = regexp.MustCompile(`"[^"]+"`)
	idPatternRe       = regexp.MustCompile(`\b[A-Z]{2,}-?\d{2,}\b`)
	isoDateRe         = regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}\b`)
	properNounSeqRe   = regexp.MustCompile(`\b([A-Z][a-z]+\s+){1,}[A-Z][a-z]+\b`)
	longNumberRe      = regexp.MustCompile(`\b\d{5,}\b`)
	symbolPrefixRe    = regexp.MustCompile(`[@#]\w+`)
	questionWordRe    = regexp.MustCompile(`(?i)\b(what|why|how|when|where|who)\b`)
	functionPhraseRe  = regexp.MustCompile(`(?i)\b(about|related to|similar to|regarding|concerning)\b`)
)

const (
	shortQueryWordCount = 2
	longQueryWordCount  = 10
	maxConfidence       = 0.95
	noSignalConfidence  = 0.5
	perSignalWeight     = 0.15
)

// Classify scores a query's exact-lookup signals against its
// conceptual-question signals using pure string heuristics (no model
// call), returning a recommended retrieval strategy and a confidence
// that is 0.5 when no signal fires and capped below 1.0 otherwise,
// since the classifier never claims certainty.
func Classify(query string) Classification {
	words := strings.Fields(query)
	wordCount := len(words)

	patterns := []string{}
	exactScore := 0
	semanticScore := 0

	if quotedStringRe.MatchString(query) {
		patterns = append(patterns, "quoted_string")
		exactScore++
	}
	if idPatternRe.MatchString(query) {
		patterns = append(patterns, "id_pattern")
		exactScore++
	}
	if isoDateRe.MatchString(query) {
		patterns = append(patterns, "iso_date")
		exactScore++
	}
	if properNounSeqRe.MatchString(query) {
		patterns = append(patterns, "proper_noun_sequence")
		exactScore++
	}
	if longNumberRe.MatchString(query) {
		patterns = append(patterns, "long_number")
		exactScore++
	}
	if symbolPrefixRe.MatchString(query) {
		patterns = append(patterns, "symbol_prefix")
		exactScore++
	}
	if wordCount > 0 && wordCount <= shortQueryWordCount {
		patterns = append(patterns, "short_query")
		exactScore++
	}

	if questionWordRe.MatchString(query) {
		patterns = append(patterns, "question_word")
		semanticScore++
	}
	if functionPhraseRe.MatchString(query) {
		patterns = append(patterns, "function_phrase")
		semanticScore++
	}
	if wordCount >= longQueryWordCount {
		patterns = append(patterns, "long_query")
		semanticScore++
	}

	queryType, strategy := classifyVerdict(exactScore, semanticScore)
	confidence := confidenceFor(exactScore, semanticScore)
	reasoning := reasoningFor(queryType, exactScore, semanticScore, patterns)

	return Classification{
		QueryType:           queryType,
		RecommendedStrategy: strategy,
		Confidence:          confidence,
		Reasoning:           reasoning,
		DetectedPatterns:    patterns,
	}
}

func classifyVerdict(exactScore, semanticScore int) (QueryType, Strategy) {
	switch {
	case exactScore > semanticScore && exactScore > 0:
		return QueryExact, StrategyBM25
	case semanticScore > exactScore && semanticScore > 0:
		return QuerySemantic, StrategySemantic
	default:
		return QueryMixed, StrategyHybrid
	}
}

func confidenceFor(exactScore, semanticScore int) float64 {
	if exactScore == 0 && semanticScore == 0 {
		return noSignalConfidence
	}
	diff := exactScore - semanticScore
	if diff < 0 {
		diff = -diff
	}
	confidence := noSignalConfidence + perSignalWeight*float64(diff)
	if confidence > maxConfidence {
		confidence = maxConfidence
	}
	return confidence
}

func reasoningFor(qt QueryType, exactScore, semanticScore int, patterns []string) string {
	if len(patterns) == 0 {
		return "no exact or semantic indicators detected; defaulting to hybrid retrieval"
	}
	switch qt {
	case QueryExact:
		return "exact-lookup indicators (" + strings.Join(patterns, ", ") + ") outweigh conceptual indicators"
	case QuerySemantic:
		return "conceptual indicators (" + strings.Join(patterns, ", ") + ") outweigh exact-lookup indicators"
	default:
		return "exact and conceptual indicators are evenly matched (" + strings.Join(patterns, ", ") + ")"
	}
}
