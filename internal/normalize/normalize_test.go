package normalize

import (
	"errors"
	"testing"

	"github.com/sjproject/dartsearch/pkg/models"
)

func TestNormalizeSplitsSections(t *testing.T) {
	raw := "I. 회사의 개요\n이 회사는 반도체를 만듭니다.\n\n\n재무제표 내용이 이어집니다.\nII. 사업의 내용\n주요 사업은 메모리입니다."

	doc, err := NewText().Normalize("doc-1", "삼성전자", []byte(raw))
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	if doc.ID != "doc-1" || doc.CorpName != "삼성전자" {
		t.Errorf("document metadata not carried: %+v", doc)
	}
	if len(doc.Sections) < 3 {
		t.Fatalf("expected at least 3 sections, got %d", len(doc.Sections))
	}
	for i, sec := range doc.Sections {
		if sec.Index != i {
			t.Errorf("section %d has index %d", i, sec.Index)
		}
	}
}

func TestNormalizeTagsTabularSections(t *testing.T) {
	tests := []struct {
		name string
		text string
		want models.SectionKind
	}{
		{
			name: "markdown pipes",
			text: "| 과목 | 금액 |\n| 매출 | 100 |",
			want: models.KindStructured,
		},
		{
			name: "box drawing",
			text: "┌────────┐\n내용\n└────────┘",
			want: models.KindStructured,
		},
		{
			name: "separator rule",
			text: "과목     금액\n──────────\n매출     100",
			want: models.KindStructured,
		},
		{
			name: "plain prose",
			text: "회사는 전년 대비 매출이 증가했다고 밝혔습니다.",
			want: models.KindNarrative,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := NewText().Normalize("doc", "", []byte(tt.text))
			if err != nil {
				t.Fatalf("Normalize failed: %v", err)
			}
			if doc.Sections[0].Kind != tt.want {
				t.Errorf("kind = %s, want %s", doc.Sections[0].Kind, tt.want)
			}
		})
	}
}

func TestNormalizeEmptyDocument(t *testing.T) {
	for _, raw := range []string{"", "   \n\t \n  "} {
		if _, err := NewText().Normalize("doc", "", []byte(raw)); !errors.Is(err, ErrEmptyDocument) {
			t.Errorf("Normalize(%q): expected ErrEmptyDocument, got %v", raw, err)
		}
	}
}

func TestNormalizeHandlesCRLF(t *testing.T) {
	doc, err := NewText().Normalize("doc", "", []byte("첫 줄입니다.\r\n\r\n\r\n둘째 문단입니다."))
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	if len(doc.Sections) != 2 {
		t.Errorf("CRLF blank lines should still split sections, got %d", len(doc.Sections))
	}
}
