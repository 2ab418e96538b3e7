package normalize

import (
	"errors"
	"regexp"
	"strings"

	"github.com/sjproject/dartsearch/pkg/models"
)

// ErrEmptyDocument is returned when the raw content has no usable text.
var ErrEmptyDocument = errors.New("document has no content")

// Normalizer turns raw disclosure bytes into a sectioned Document.
type Normalizer interface {
	Normalize(documentID, corpName string, raw []byte) (models.Document, error)
}

// Text is the default normalizer for the plain-text exports the gateway
// produces. Sections split on runs of two or more blank lines or on numbered
// heading lines; each section is tagged STRUCTURED when it looks tabular.
type Text struct{}

func NewText() *Text { return &Text{} }

var (
	sectionBreak = regexp.MustCompile(`\n[ \t]*\n[ \t]*\n+`)
	headingLine  = regexp.MustCompile(`(?m)^(?:[IVX]+\.|\d+\.)\s+\S`)

	// Tabular markers observed in DART filings: markdown pipes, box-drawing
	// rules, separator lines, and numeric data rows.
	tableMarkers = []*regexp.Regexp{
		regexp.MustCompile(`\|.*\|`),
		regexp.MustCompile(`┌.*┐`),
		regexp.MustCompile(`─{3,}`),
		regexp.MustCompile(`(?m)^\s*\d+\s+\S+\s+[\d,]+\s*$`),
	}
)

func (t *Text) Normalize(documentID, corpName string, raw []byte) (models.Document, error) {
	text := strings.ReplaceAll(string(raw), "\r\n", "\n")
	if strings.TrimSpace(text) == "" {
		return models.Document{}, ErrEmptyDocument
	}

	doc := models.Document{ID: documentID, CorpName: corpName}
	for _, part := range splitSections(text) {
		part = strings.TrimRight(part, " \t\n")
		if strings.TrimSpace(part) == "" {
			continue
		}
		kind := models.KindNarrative
		if looksTabular(part) {
			kind = models.KindStructured
		}
		doc.Sections = append(doc.Sections, models.Section{
			Index: len(doc.Sections),
			Kind:  kind,
			Text:  part,
		})
	}
	if len(doc.Sections) == 0 {
		return models.Document{}, ErrEmptyDocument
	}
	return doc, nil
}

func splitSections(text string) []string {
	var parts []string
	for _, block := range sectionBreak.Split(text, -1) {
		// Further split on top-level heading lines so one filing chapter
		// becomes one section.
		idxs := headingLine.FindAllStringIndex(block, -1)
		prev := 0
		for _, idx := range idxs {
			if idx[0] > prev {
				parts = append(parts, block[prev:idx[0]])
			}
			prev = idx[0]
		}
		parts = append(parts, block[prev:])
	}
	return parts
}

func looksTabular(s string) bool {
	for _, re := range tableMarkers {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}
