package main

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/missionlens/missionlens/pkg/models"
)

type captureStore struct {
	created []models.Mission
}

func (c *captureStore) Migrate(ctx context.Context, summaryDim int) error { return nil }

func (c *captureStore) CreateMission(ctx context.Context, m models.Mission) error {
	c.created = append(c.created, m)
	return nil
}

func (c *captureStore) GetMission(ctx context.Context, id string) (models.Mission, bool, error) {
	return models.Mission{}, false, nil
}

func (c *captureStore) ListMissions(ctx context.Context, limit, offset int) ([]models.Mission, error) {
	return nil, nil
}

func (c *captureStore) UpdateMissionStatus(ctx context.Context, id string, status models.MissionStatus, errMsg string) error {
	return nil
}

func (c *captureStore) DeleteMission(ctx context.Context, id string) (bool, error) {
	return false, nil
}

func (c *captureStore) InsertAnalysis(ctx context.Context, a models.Analysis) error { return nil }

func (c *captureStore) LatestAnalysis(ctx context.Context, missionID string) (models.Analysis, bool, error) {
	return models.Analysis{}, false, nil
}

func (c *captureStore) ListAnalyses(ctx context.Context, missionID string) ([]models.Analysis, error) {
	return nil, nil
}

func (c *captureStore) UpsertSummaryVec(ctx context.Context, missionID, summary string, vec []float32) error {
	return nil
}

func (c *captureStore) SearchRelated(ctx context.Context, missionID string, k int) ([]models.RelatedMission, error) {
	return nil, nil
}

func uploadRequest(t *testing.T, filename, content string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := fw.Write([]byte(content)); err != nil {
		t.Fatal(err)
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, "/missions/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestCreateMissionFromFile_CSVKeepsRawBytes(t *testing.T) {
	raw := "name,role\nAda,engineer\nGrace,admiral\n"
	st := &captureStore{}
	w := httptest.NewRecorder()

	createMissionFromFile(w, uploadRequest(t, "crew.csv", raw), st)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if len(st.created) != 1 {
		t.Fatalf("created %d missions, want 1", len(st.created))
	}
	m := st.created[0]
	if m.SourceType != models.SourceCSV {
		t.Errorf("source type = %s, want csv", m.SourceType)
	}
	if m.RawContent != raw {
		t.Errorf("raw content = %q, want the uploaded bytes", m.RawContent)
	}
	if !strings.HasPrefix(m.NormalizedContent, "CSV Data Summary") {
		t.Errorf("normalized content = %q", m.NormalizedContent)
	}
}

func TestCreateMissionFromFile_TextKeepsRawBytes(t *testing.T) {
	raw := "  line one   with\tgaps  \n\n\n\nline two\n"
	st := &captureStore{}
	w := httptest.NewRecorder()

	createMissionFromFile(w, uploadRequest(t, "notes.txt", raw), st)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	m := st.created[0]
	if m.RawContent != raw {
		t.Errorf("raw content = %q, want original bytes untouched", m.RawContent)
	}
	if m.NormalizedContent != "line one with gaps \n\nline two" {
		t.Errorf("normalized content = %q", m.NormalizedContent)
	}
}

func TestCreateMissionFromFile_UnsupportedExtension(t *testing.T) {
	st := &captureStore{}
	w := httptest.NewRecorder()

	createMissionFromFile(w, uploadRequest(t, "report.pdf", "%PDF-1.4"), st)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
	if len(st.created) != 0 {
		t.Errorf("created %d missions, want 0", len(st.created))
	}
}
