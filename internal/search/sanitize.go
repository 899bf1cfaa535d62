// Package search implements the hybrid BM25 + vector retrieval engine:
// query sanitization, lexical and semantic result lists, reciprocal
// rank fusion, pure-heuristic query classification, quality-aware
// re-weighting, and optional cross-encoder reranking.
package search

import "strings"

// ftsReservedRunes are FTS5 special characters that must be escaped or
// quoted when they appear inside a user query term, so a raw query
// never accidentally forms unbalanced FTS5 syntax.
const ftsReservedRunes = `"*^():`

// ftsBooleanOperators are passed through unescaped so callers can still
// write explicit boolean queries. NEAR is deliberately excluded: the
// spec requires it be treated as an ordinary search term rather than
// FTS5's proximity operator, since OCR'd prose routinely contains the
// word "near".
var ftsBooleanOperators = map[string]bool{
	"AND": true,
	"OR":  true,
	"NOT": true,
}

// Sanitize rewrites a raw user query into one safe to hand to FTS5's
// MATCH operator: each whitespace-delimited term is individually
// quoted (escaping embedded double quotes) unless it is one of the
// three preserved boolean operators. A bare "NEAR" is quoted like any
// other term, neutralizing FTS5's proximity operator.
func Sanitize(raw string) string {
	terms := strings.Fields(raw)
	if len(terms) == 0 {
		return ""
	}

	out := make([]string, 0, len(terms))
	for _, term := range terms {
		if ftsBooleanOperators[term] {
			out = append(out, term)
			continue
		}
		out = append(out, quoteTerm(term))
	}
	return strings.Join(out, " ")
}

// quoteTerm wraps a term in double quotes, escaping any quote
// characters already present, so FTS5 always treats it as a plain
// string token rather than parsing embedded reserved syntax.
func quoteTerm(term string) string {
	escaped := strings.ReplaceAll(term, `"`, `""`)
	return `"` + escaped + `"`
}

// ContainsReserved reports whether raw contains any FTS5 syntax
// character that Sanitize would otherwise need to neutralize; callers
// use this for quick validation/logging rather than parsing.
func ContainsReserved(raw string) bool {
	return strings.ContainsAny(raw, ftsReservedRunes)
}
