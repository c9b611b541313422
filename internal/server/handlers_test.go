package server

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"datalik/internal/auth"
	"datalik/internal/config"
	"datalik/internal/logger"
	"datalik/internal/session/memory"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()

	hash, err := auth.HashPassword("pw")
	if err != nil {
		t.Fatalf("HashPassword() err=%v", err)
	}
	store := auth.StaticStore{
		"ana": {Email: "ana@example.com", Name: "Ana", PasswordHash: hash, Role: auth.RoleAnalyst},
	}

	return New(config.GetDefaults(), logger.Nop(), auth.NewAuthenticator(store), memory.New(), nil)
}

func login(t *testing.T, srv *Server) string {
	t.Helper()

	body := `{"username":"ana","password":"pw"}`
	req := httptest.NewRequest(http.MethodPost, "/api/login", strings.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("login status=%d body=%s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Token string `json:"token"`
		Role  string `json:"role"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	if resp.Token == "" || resp.Role != "Analyst" {
		t.Fatalf("login response=%+v", resp)
	}
	return resp.Token
}

func uploadCSV(t *testing.T, srv *Server, token, filename, content string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := fw.Write([]byte(content)); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func authedRequest(t *testing.T, srv *Server, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()

	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, path, nil)
	} else {
		r = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, r)
	return rec
}

const salesCSV = "date,sales,region\n2024-01-01,10,north\n2024-01-02,20,south\n2024-01-03,30,north\n"

func TestHealthNeedsNoAuth(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t)
	rec := authedRequest(t, srv, http.MethodGet, "/health", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("health status=%d", rec.Code)
	}
}

func TestAPIRejectsMissingToken(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t)
	rec := authedRequest(t, srv, http.MethodGet, "/api/dataset", "", "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status=%d, want 401", rec.Code)
	}

	rec = authedRequest(t, srv, http.MethodGet, "/api/dataset", "not-a-token", "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad token status=%d, want 401", rec.Code)
	}
}

func TestLogin_BadCredentials(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t)
	rec := authedRequest(t, srv, http.MethodPost, "/api/login", "", `{"username":"ana","password":"nope"}`)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status=%d, want 401", rec.Code)
	}
}

func TestUploadAndSummary(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t)
	token := login(t, srv)

	rec := uploadCSV(t, srv, token, "sales.csv", salesCSV)
	if rec.Code != http.StatusOK {
		t.Fatalf("upload status=%d body=%s", rec.Code, rec.Body.String())
	}

	var sum struct {
		RowCount int `json:"row_count"`
		Columns  []struct {
			Name string `json:"name"`
			Type string `json:"type"`
		} `json:"columns"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &sum); err != nil {
		t.Fatalf("decode summary: %v", err)
	}
	if sum.RowCount != 3 || len(sum.Columns) != 3 {
		t.Fatalf("summary=%+v", sum)
	}
}

func TestUpload_ValidationFailureIs422(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t)
	token := login(t, srv)

	rec := uploadCSV(t, srv, token, "dup.csv", "amount,Amount\n1,2\n")
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status=%d body=%s, want 422", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "issues") {
		t.Fatalf("body lacks issues: %s", rec.Body.String())
	}
}

func TestDataset_NotFoundBeforeUpload(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t)
	token := login(t, srv)

	rec := authedRequest(t, srv, http.MethodGet, "/api/dataset", token, "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status=%d, want 404 before first upload", rec.Code)
	}
}

func TestMetricsRoundtrip(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t)
	token := login(t, srv)
	if rec := uploadCSV(t, srv, token, "sales.csv", salesCSV); rec.Code != http.StatusOK {
		t.Fatalf("upload status=%d", rec.Code)
	}

	body := `{"start":"2024-01-01","end":"2024-01-31","granularity":"day"}`
	rec := authedRequest(t, srv, http.MethodPost, "/api/metrics", token, body)
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics status=%d body=%s", rec.Code, rec.Body.String())
	}

	var res struct {
		Metrics []struct {
			Name   string  `json:"name"`
			Column string  `json:"column"`
			Value  float64 `json:"value"`
		} `json:"metrics"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode metrics: %v", err)
	}
	found := false
	for _, m := range res.Metrics {
		if m.Name == "sum" && m.Column == "sales" {
			found = true
			if m.Value != 60 {
				t.Fatalf("sales sum=%v, want 60", m.Value)
			}
		}
	}
	if !found {
		t.Fatalf("no sales sum in %+v", res.Metrics)
	}
}

func TestMetrics_BadRequestFieldsAre400(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t)
	token := login(t, srv)
	if rec := uploadCSV(t, srv, token, "sales.csv", salesCSV); rec.Code != http.StatusOK {
		t.Fatalf("upload status=%d", rec.Code)
	}

	tests := []struct {
		name string
		body string
	}{
		{"unknown granularity", `{"start":"2024-01-01","end":"2024-01-31","granularity":"hour"}`},
		{"unknown group_by column", `{"start":"2024-01-01","end":"2024-01-31","granularity":"day","group_by":"nope"}`},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			rec := authedRequest(t, srv, http.MethodPost, "/api/metrics", token, tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status=%d body=%s, want 400", rec.Code, rec.Body.String())
			}
		})
	}
}

func TestMetrics_EmptyWindowIs422(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t)
	token := login(t, srv)
	if rec := uploadCSV(t, srv, token, "sales.csv", salesCSV); rec.Code != http.StatusOK {
		t.Fatalf("upload status=%d", rec.Code)
	}

	body := `{"start":"2030-01-01","end":"2030-01-31","granularity":"day"}`
	rec := authedRequest(t, srv, http.MethodPost, "/api/metrics", token, body)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status=%d body=%s, want 422", rec.Code, rec.Body.String())
	}
}

func TestExportCSVRoundtrip(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t)
	token := login(t, srv)
	if rec := uploadCSV(t, srv, token, "sales.csv", salesCSV); rec.Code != http.StatusOK {
		t.Fatalf("upload status=%d", rec.Code)
	}

	rec := authedRequest(t, srv, http.MethodGet, "/api/export/csv", token, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("export status=%d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Fatalf("content type=%q", ct)
	}
	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	if len(lines) != 4 {
		t.Fatalf("exported %d lines, want header plus 3 rows:\n%s", len(lines), rec.Body.String())
	}
}

func TestSessionReset(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t)
	token := login(t, srv)
	if rec := uploadCSV(t, srv, token, "sales.csv", salesCSV); rec.Code != http.StatusOK {
		t.Fatalf("upload status=%d", rec.Code)
	}

	if rec := authedRequest(t, srv, http.MethodPost, "/api/session/reset", token, ""); rec.Code != http.StatusNoContent {
		t.Fatalf("reset status=%d", rec.Code)
	}
	if rec := authedRequest(t, srv, http.MethodGet, "/api/dataset", token, ""); rec.Code != http.StatusNotFound {
		t.Fatalf("dataset after reset status=%d, want 404", rec.Code)
	}
}

func TestLogoutClosesSession(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t)
	token := login(t, srv)

	if rec := authedRequest(t, srv, http.MethodPost, "/api/logout", token, ""); rec.Code != http.StatusNoContent {
		t.Fatalf("logout status=%d", rec.Code)
	}
	if rec := authedRequest(t, srv, http.MethodGet, "/api/dataset", token, ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("status after logout=%d, want 401", rec.Code)
	}
}
