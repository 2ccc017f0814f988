// Package ingest converts raw text and CSV input into the normalized
// document form the analysis pipeline consumes. PDF extraction is
// handled by an upstream collaborator and never reaches this package.
package ingest

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/missionlens/missionlens/pkg/models"
)

const csvRowLimit = 50

var (
	multiNewline = regexp.MustCompile(`\n{3,}`)
	multiSpace   = regexp.MustCompile(`[ \t]+`)
)

// Parsed is the output of a format parser before normalization.
type Parsed struct {
	Text     string
	Metadata map[string]string
	Errors   []string
}

// Normalized is the shared internal form of any ingested document.
type Normalized struct {
	Content  string
	Metadata map[string]string
	Errors   []string
	Valid    bool
}

// ParseText cleans raw text input: trims, collapses runs of blank
// lines to one, and normalizes horizontal whitespace.
func ParseText(content, sourceLabel string) Parsed {
	cleaned := strings.TrimSpace(content)
	cleaned = multiNewline.ReplaceAllString(cleaned, "\n\n")
	cleaned = multiSpace.ReplaceAllString(cleaned, " ")

	lineCount := 0
	if cleaned != "" {
		lineCount = strings.Count(cleaned, "\n") + 1
	}
	p := Parsed{
		Text: cleaned,
		Metadata: map[string]string{
			"word_count":      strconv.Itoa(len(strings.Fields(cleaned))),
			"character_count": strconv.Itoa(len(cleaned)),
			"line_count":      strconv.Itoa(lineCount),
			"source_label":    sourceLabel,
		},
	}
	if cleaned == "" {
		p.Errors = append(p.Errors, "Empty text content provided")
	}
	return p
}

// ParseCSV converts CSV data into a headed, row-per-line text
// representation the generation stages can reason about. Only the
// first csvRowLimit rows are rendered in full.
func ParseCSV(data []byte, filename string) Parsed {
	p := Parsed{Metadata: map[string]string{}}

	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1

	records, err := r.ReadAll()
	if err != nil {
		p.Errors = append(p.Errors, fmt.Sprintf("Failed to parse CSV: %v", err))
		return p
	}
	if len(records) == 0 {
		p.Errors = append(p.Errors, "Empty CSV file")
		return p
	}

	headers := records[0]
	var rows [][]string
	for _, row := range records[1:] {
		for _, cell := range row {
			if strings.TrimSpace(cell) != "" {
				rows = append(rows, row)
				break
			}
		}
	}

	p.Metadata["column_count"] = strconv.Itoa(len(headers))
	p.Metadata["row_count"] = strconv.Itoa(len(rows))
	p.Metadata["columns"] = strings.Join(headers, ", ")

	var b strings.Builder
	fmt.Fprintf(&b, "CSV Data Summary: %d rows, %d columns\n", len(rows), len(headers))
	fmt.Fprintf(&b, "Columns: %s\n\n", strings.Join(headers, ", "))
	for i, row := range rows {
		if i >= csvRowLimit {
			fmt.Fprintf(&b, "... and %d more rows\n", len(rows)-csvRowLimit)
			break
		}
		parts := make([]string, len(row))
		for j, cell := range row {
			name := "Col" + strconv.Itoa(j)
			if j < len(headers) {
				name = headers[j]
			}
			parts[j] = name + ": " + cell
		}
		fmt.Fprintf(&b, "Row %d: %s\n", i+1, strings.Join(parts, " | "))
	}
	p.Text = strings.TrimSuffix(b.String(), "\n")
	return p
}

// Normalize converts parsed content into the shared internal schema.
// Content that is empty after parsing marks the document invalid.
func Normalize(p Parsed, source models.SourceType, identifier string) Normalized {
	meta := map[string]string{
		"source_type":       string(source),
		"source_identifier": identifier,
		"content_length":    strconv.Itoa(len(p.Text)),
		"word_count":        strconv.Itoa(len(strings.Fields(p.Text))),
	}
	for k, v := range p.Metadata {
		meta[k] = v
	}

	n := Normalized{
		Content:  p.Text,
		Metadata: meta,
		Errors:   p.Errors,
		Valid:    true,
	}
	if strings.TrimSpace(n.Content) == "" {
		n.Valid = false
		n.Errors = append(n.Errors, "No content extracted")
	}
	return n
}

// NewMission builds a mission record from normalized input. Invalid
// content yields an error-status mission rather than a rejection, so
// the failure is visible alongside successful ingests.
func NewMission(source models.SourceType, filename, sourceLabel, raw string, n Normalized) models.Mission {
	status := models.StatusIngested
	if !n.Valid {
		status = models.StatusError
	}
	return models.Mission{
		ID:                uuid.NewString(),
		SourceType:        source,
		Filename:          filename,
		SourceLabel:       sourceLabel,
		RawContent:        raw,
		NormalizedContent: n.Content,
		Status:            status,
		Metadata:          n.Metadata,
		ErrorMessage:      strings.Join(n.Errors, "; "),
		IngestedAt:        time.Now().UTC(),
	}
}
