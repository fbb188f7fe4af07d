package cli

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/lifeos/tasks/internal/config"
	"github.com/lifeos/tasks/internal/domain"
	"github.com/lifeos/tasks/internal/record"
	"github.com/lifeos/tasks/internal/store"
	"github.com/lifeos/tasks/internal/testutil"
)

func newTestServer(t *testing.T, token string) (*httptest.Server, *store.Store) {
	t.Helper()
	st := testutil.TempStore(t)
	server := newDaemonServer(st, &config.Config{}, token)
	mux := http.NewServeMux()
	server.registerRoutes(mux)
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts, st
}

func decodeBody(t *testing.T, resp *http.Response, dst any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
}

func TestDaemonHealth(t *testing.T) {
	ts, _ := newTestServer(t, "")

	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var body map[string]any
	decodeBody(t, resp, &body)
	if body["ok"] != true {
		t.Errorf("unexpected health body: %v", body)
	}
}

func TestDaemonAuthRequired(t *testing.T) {
	ts, _ := newTestServer(t, "secret-token")

	resp, err := http.Get(ts.URL + "/api/review")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401 without token, got %d", resp.StatusCode)
	}

	req, _ := http.NewRequest("GET", ts.URL+"/api/review", nil)
	req.Header.Set("Authorization", "Bearer secret-token")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200 with token, got %d", resp.StatusCode)
	}
}

func TestDaemonDictationIngest(t *testing.T) {
	ts, st := newTestServer(t, "")

	resp, err := http.Post(ts.URL+"/ingest/dictation", "application/json",
		strings.NewReader(`{"text": "water the plants"}`))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var body map[string]any
	decodeBody(t, resp, &body)
	id, _ := body["id"].(string)
	if id == "" {
		t.Fatal("expected an id in response")
	}

	_, ok, err := st.Get(domain.CollectionRawEvents, id)
	if err != nil || !ok {
		t.Errorf("raw event not stored: ok=%v err=%v", ok, err)
	}
}

func TestDaemonDictationRejectsEmpty(t *testing.T) {
	ts, _ := newTestServer(t, "")

	resp, err := http.Post(ts.URL+"/ingest/dictation", "application/json",
		strings.NewReader(`{"text": "  "}`))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}

	var body map[string]any
	decodeBody(t, resp, &body)
	if body["detail"] == nil {
		t.Errorf("error body should carry detail, got %v", body)
	}
}

func TestDaemonSlackURLVerification(t *testing.T) {
	ts, _ := newTestServer(t, "")

	resp, err := http.Post(ts.URL+"/ingest/slack/events", "application/json",
		strings.NewReader(`{"type": "url_verification", "challenge": "abc123"}`))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	var body map[string]any
	decodeBody(t, resp, &body)
	if body["challenge"] != "abc123" {
		t.Errorf("expected challenge echo, got %v", body)
	}
}

func TestDaemonReviewApproveNotFound(t *testing.T) {
	ts, _ := newTestServer(t, "")

	resp, err := http.Post(ts.URL+"/api/review/missing/approve", "application/json", nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404, got %d", resp.StatusCode)
	}
}

func TestDaemonReviewFlow(t *testing.T) {
	ts, st := newTestServer(t, "")

	err := st.Put(domain.CollectionTaskCandidates, record.Record{
		"id":         "c1",
		"title":      "Candidate",
		"status":     domain.CandidateStatusPending,
		"created_at": "2026-01-01T00:00:00Z",
	})
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	resp, err := http.Get(ts.URL + "/api/review")
	if err != nil {
		t.Fatalf("queue request failed: %v", err)
	}
	var queue struct {
		Items []map[string]any `json:"items"`
	}
	decodeBody(t, resp, &queue)
	if len(queue.Items) != 1 {
		t.Fatalf("expected 1 queued candidate, got %d", len(queue.Items))
	}

	resp, err = http.Post(ts.URL+"/api/review/c1/approve", "application/json", nil)
	if err != nil {
		t.Fatalf("approve request failed: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var approved struct {
		Task            map[string]any `json:"task"`
		AlreadyApproved bool           `json:"already_approved"`
	}
	decodeBody(t, resp, &approved)
	if approved.AlreadyApproved {
		t.Error("fresh approval reported as duplicate")
	}
	if approved.Task["title"] != "Candidate" {
		t.Errorf("unexpected task: %v", approved.Task)
	}

	resp, err = http.Get(ts.URL + "/api/review/approved")
	if err != nil {
		t.Fatalf("approved request failed: %v", err)
	}
	var recent struct {
		Tasks []map[string]any `json:"tasks"`
	}
	decodeBody(t, resp, &recent)
	if len(recent.Tasks) != 1 {
		t.Errorf("expected 1 recent task, got %d", len(recent.Tasks))
	}
}

func multipartBundle(t *testing.T, bundle, overrides string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", "bundle.json")
	if err != nil {
		t.Fatalf("CreateFormFile failed: %v", err)
	}
	if _, err := io.WriteString(part, bundle); err != nil {
		t.Fatalf("write bundle failed: %v", err)
	}
	if overrides != "" {
		if err := writer.WriteField("overrides", overrides); err != nil {
			t.Fatalf("write overrides failed: %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close writer failed: %v", err)
	}
	return &buf, writer.FormDataContentType()
}

func TestDaemonImportPreview(t *testing.T) {
	ts, st := newTestServer(t, "")

	if err := st.Put(domain.CollectionTasks, record.Record{"id": "t1", "title": "old"}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	body, contentType := multipartBundle(t, `{
		"tasks": [{"id": "t1", "title": "new"}, {"id": "t2", "title": "fresh"}]
	}`, "")

	resp, err := http.Post(ts.URL+"/api/import/preview", contentType, body)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var preview struct {
		Preview struct {
			Counts map[string]int `json:"counts"`
		} `json:"preview"`
		Collisions map[string][]string `json:"collisions"`
	}
	decodeBody(t, resp, &preview)
	if preview.Preview.Counts["tasks"] != 2 {
		t.Errorf("expected 2 tasks, got %d", preview.Preview.Counts["tasks"])
	}
	if len(preview.Collisions["tasks"]) != 1 || preview.Collisions["tasks"][0] != "t1" {
		t.Errorf("expected collision on t1, got %v", preview.Collisions["tasks"])
	}

	// Preview must not change the store.
	count, err := st.Count(domain.CollectionTasks)
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if count != 1 {
		t.Errorf("preview changed the store: %d records", count)
	}
}

func TestDaemonImportWithOverrides(t *testing.T) {
	ts, st := newTestServer(t, "")

	if err := st.Put(domain.CollectionTasks, record.Record{"id": "t1", "title": "old", "priority": "low"}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	body, contentType := multipartBundle(t,
		`{"tasks": [{"id": "t1", "title": "new", "priority": "high"}]}`,
		`{"tasks": {"t1": {"priority": "existing"}}}`)

	resp, err := http.Post(ts.URL+"/api/import", contentType, body)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var result struct {
		Counts map[string]struct {
			Inserted int `json:"inserted"`
			Merged   int `json:"merged"`
		} `json:"counts"`
	}
	decodeBody(t, resp, &result)
	if result.Counts["tasks"].Merged != 1 {
		t.Errorf("expected 1 merged, got %+v", result.Counts["tasks"])
	}

	merged, _, err := st.Get(domain.CollectionTasks, "t1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if merged["title"] != "new" || merged["priority"] != "low" {
		t.Errorf("override not applied: %v", merged)
	}
}

func TestDaemonImportMalformedBundle(t *testing.T) {
	ts, _ := newTestServer(t, "")

	resp, err := http.Post(ts.URL+"/api/import", "application/json",
		strings.NewReader(`["not", "an", "object"]`))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}

	var body map[string]any
	decodeBody(t, resp, &body)
	detail, _ := body["detail"].(string)
	if !strings.Contains(detail, "malformed bundle") {
		t.Errorf("unexpected error detail: %q", detail)
	}
}

func TestDaemonExport(t *testing.T) {
	ts, st := newTestServer(t, "")

	if err := st.Put(domain.CollectionTasks, record.Record{"id": "t1", "title": "x"}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	resp, err := http.Get(ts.URL + "/api/export")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var doc map[string]any
	decodeBody(t, resp, &doc)
	tasks, _ := doc["tasks"].([]any)
	if len(tasks) != 1 {
		t.Errorf("expected 1 exported task, got %v", doc["tasks"])
	}
	if doc["exported_at"] == nil {
		t.Error("expected exported_at")
	}
}
