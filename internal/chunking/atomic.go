package chunking

import (
	"regexp"
	"strings"

	"docprovrag/models"
)

// AtomicKind distinguishes the reasons a span of text must never be split.
type AtomicKind string

const (
	AtomicTable  AtomicKind = "table"
	AtomicFigure AtomicKind = "figure"
	AtomicCode   AtomicKind = "code"
)

// AtomicRegion is a character span, recovered from the OCR JSON block
// tree or from in-band markdown, that must be emitted as a single
// chunk regardless of size limits.
type AtomicRegion struct {
	Kind       AtomicKind
	Start, End int
	Table      *models.TableMetadata
}

var htmlTagRe = regexp.MustCompile(`<[^>]+>`)

// DetectAtomicRegionsFromBlocks scans already-classified blocks for
// table and code segments, producing one atomic region per block and
// synthesizing table metadata (row/column counts, header presence) by
// counting pipe-delimited rows.
func DetectAtomicRegionsFromBlocks(blocks []Block) []AtomicRegion {
	var regions []AtomicRegion
	for _, b := range blocks {
		switch b.Kind {
		case BlockTable:
			regions = append(regions, AtomicRegion{
				Kind: AtomicTable, Start: b.Start, End: b.End,
				Table: synthesizeTableMetadata(b.Text),
			})
		case BlockCode:
			regions = append(regions, AtomicRegion{Kind: AtomicCode, Start: b.Start, End: b.End})
		}
	}
	return regions
}

// synthesizeTableMetadata counts rows and columns from a markdown
// table's pipe-delimited lines and reports whether the second line is
// a separator row (indicating a header).
func synthesizeTableMetadata(tableText string) *models.TableMetadata {
	lines := nonEmptyLines(tableText)
	if len(lines) == 0 {
		return nil
	}
	cols := countColumns(lines[0])
	hasHeader := len(lines) > 1 && tableSepRe.MatchString(strings.TrimSpace(lines[1]))
	rows := len(lines)
	var headers []string
	if hasHeader {
		rows--
		headers = splitTableRow(lines[0])
	}
	return &models.TableMetadata{
		ColumnHeaders: headers,
		RowCount:      rows,
		ColumnCount:   cols,
	}
}

func splitTableRow(row string) []string {
	trimmed := strings.Trim(strings.TrimSpace(row), "|")
	parts := strings.Split(trimmed, "|")
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
	}
	return parts
}

func nonEmptyLines(text string) []string {
	var out []string
	for _, l := range strings.Split(text, "\n") {
		if strings.TrimSpace(l) != "" {
			out = append(out, l)
		}
	}
	return out
}

func countColumns(row string) int {
	trimmed := strings.Trim(strings.TrimSpace(row), "|")
	if trimmed == "" {
		return 0
	}
	return len(strings.Split(trimmed, "|"))
}

// FindOverlapping returns the first atomic region overlapping the
// given character span, or nil if the span lies wholly outside every
// known atomic region.
func FindOverlapping(start, end int, regions []AtomicRegion) *AtomicRegion {
	for i := range regions {
		r := &regions[i]
		if start < r.End && end > r.Start {
			return r
		}
	}
	return nil
}

// StripHTML removes inline HTML tags left over from OCR markdown
// output (e.g. <br>, <sup>) without disturbing surrounding text.
func StripHTML(text string) string {
	return htmlTagRe.ReplaceAllString(text, "")
}

// RegionFromJSONBlock classifies an OCR JSON block-tree node's
// block_type into an AtomicKind, returning ok=false for node types
// that do not force atomicity (e.g. plain Text or SectionHeader).
func RegionFromJSONBlock(blockType string, start, end int) (AtomicRegion, bool) {
	switch strings.ToLower(blockType) {
	case "table", "tableofcontents":
		return AtomicRegion{Kind: AtomicTable, Start: start, End: end}, true
	case "figure", "picture", "image":
		return AtomicRegion{Kind: AtomicFigure, Start: start, End: end}, true
	case "code":
		return AtomicRegion{Kind: AtomicCode, Start: start, End: end}, true
	default:
		return AtomicRegion{}, false
	}
}
