package ingest

import (
	"strings"
	"testing"

	"github.com/missionlens/missionlens/pkg/models"
)

func TestParseText(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantText string
		wantErrs int
	}{
		{
			name:     "trims and collapses whitespace",
			input:    "  line one   with\tgaps  \n\n\n\n\nline two  ",
			wantText: "line one with gaps \n\nline two",
		},
		{
			name:     "plain text untouched",
			input:    "Single clean line",
			wantText: "Single clean line",
		},
		{
			name:     "empty input flagged",
			input:    "   \n  ",
			wantText: "",
			wantErrs: 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseText(tt.input, "test.txt")
			if got.Text != tt.wantText {
				t.Errorf("text = %q, want %q", got.Text, tt.wantText)
			}
			if len(got.Errors) != tt.wantErrs {
				t.Errorf("errors = %v, want %d", got.Errors, tt.wantErrs)
			}
			if got.Metadata["source_label"] != "test.txt" {
				t.Errorf("source_label = %q", got.Metadata["source_label"])
			}
		})
	}
}

func TestParseText_Metadata(t *testing.T) {
	got := ParseText("three little words", "notes.txt")
	if got.Metadata["word_count"] != "3" {
		t.Errorf("word_count = %s", got.Metadata["word_count"])
	}
	if got.Metadata["line_count"] != "1" {
		t.Errorf("line_count = %s", got.Metadata["line_count"])
	}
}

func TestParseCSV(t *testing.T) {
	data := []byte("name,role\nAda,engineer\nGrace,admiral\n,\n")
	got := ParseCSV(data, "crew.csv")

	if len(got.Errors) != 0 {
		t.Fatalf("unexpected errors: %v", got.Errors)
	}
	if got.Metadata["column_count"] != "2" || got.Metadata["row_count"] != "2" {
		t.Errorf("metadata = %v", got.Metadata)
	}
	if !strings.HasPrefix(got.Text, "CSV Data Summary: 2 rows, 2 columns") {
		t.Errorf("header line wrong: %q", got.Text)
	}
	if !strings.Contains(got.Text, "Row 1: name: Ada | role: engineer") {
		t.Errorf("row rendering wrong:\n%s", got.Text)
	}
	if strings.Contains(got.Text, "Row 3") {
		t.Error("blank row should be skipped")
	}
}

func TestParseCSV_RowLimit(t *testing.T) {
	var b strings.Builder
	b.WriteString("id\n")
	for i := 0; i < 60; i++ {
		b.WriteString("x\n")
	}
	got := ParseCSV([]byte(b.String()), "big.csv")

	if !strings.Contains(got.Text, "... and 10 more rows") {
		t.Errorf("row limit marker missing:\n%s", got.Text[len(got.Text)-80:])
	}
	if strings.Contains(got.Text, "Row 51:") {
		t.Error("rows past the limit should not be rendered")
	}
}

func TestParseCSV_Invalid(t *testing.T) {
	if got := ParseCSV([]byte(`"unterminated`), "bad.csv"); len(got.Errors) == 0 {
		t.Error("expected parse error")
	}
	if got := ParseCSV(nil, "empty.csv"); len(got.Errors) == 0 {
		t.Error("expected empty-file error")
	}
}

func TestNormalize(t *testing.T) {
	p := ParseText("Content worth keeping", "a.txt")
	n := Normalize(p, models.SourceText, "a.txt")
	if !n.Valid {
		t.Fatalf("valid content marked invalid: %v", n.Errors)
	}
	if n.Metadata["source_type"] != "text" || n.Metadata["source_identifier"] != "a.txt" {
		t.Errorf("metadata = %v", n.Metadata)
	}

	empty := Normalize(ParseText("", "b.txt"), models.SourceText, "b.txt")
	if empty.Valid {
		t.Error("empty content should be invalid")
	}
	if len(empty.Errors) == 0 {
		t.Error("expected normalization errors for empty content")
	}
}

func TestNewMission(t *testing.T) {
	n := Normalize(ParseText("A valid document body", "doc.txt"), models.SourceText, "doc.txt")
	m := NewMission(models.SourceText, "doc.txt", "", "A valid document body", n)

	if m.ID == "" {
		t.Error("mission id not assigned")
	}
	if m.Status != models.StatusIngested {
		t.Errorf("status = %s, want ingested", m.Status)
	}
	if m.IngestedAt.IsZero() {
		t.Error("ingested timestamp not assigned")
	}

	bad := Normalize(ParseText("", "x.txt"), models.SourceText, "x.txt")
	if got := NewMission(models.SourceText, "x.txt", "", "", bad); got.Status != models.StatusError {
		t.Errorf("invalid content status = %s, want error", got.Status)
	}
	if got := NewMission(models.SourceText, "x.txt", "", "", bad); got.ErrorMessage == "" {
		t.Error("error message should be populated for invalid content")
	}
}
