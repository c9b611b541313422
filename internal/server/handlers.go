package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"datalik/internal/export"
	"datalik/internal/ingest"
	"datalik/internal/kpi"
	"datalik/internal/schema"
	"datalik/internal/source/sqldb"
	"datalik/internal/telemetry"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writePipelineError maps the pipeline error taxonomy onto HTTP:
// unparseable input and caller mistakes are 4xx, the "no dataset yet"
// and "no data in window" states carry enough structure to render.
func (s *Server) writePipelineError(w http.ResponseWriter, err error) {
	var formatErr *schema.FormatError
	var reqErr *kpi.RequestError
	var notFound *schema.NotFoundError
	var emptyWin *schema.EmptyWindowError

	switch {
	case errors.As(err, &formatErr):
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error":  formatErr.Error(),
			"format": formatErr.Format,
		})
	case errors.As(err, &reqErr):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &notFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &emptyWin):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error": err.Error(),
			"start": emptyWin.Start.Format(schema.DateLayout),
			"end":   emptyWin.End.Format(schema.DateLayout),
		})
	default:
		s.logger.Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed login body")
		return
	}

	token, id, err := s.auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"token":    token,
		"username": id.Username,
		"role":     string(id.Role),
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	id := identityFrom(r.Context())
	if closed, ok := s.auth.Logout(bearerToken(r)); ok {
		// Session state dies with the session.
		if err := s.cache.Destroy(r.Context(), closed.SessionID); err != nil {
			s.logger.Warn("session teardown failed", zap.Error(err))
		}
	}
	s.logger.WithSession(id.SessionID).Info("logged out")
	w.WriteHeader(http.StatusNoContent)
}

// handleUpload ingests a multipart file upload. The optional
// "required_columns" form field names template columns that must be
// present (comma-separated).
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	id := identityFrom(r.Context())
	start := time.Now()

	r.Body = http.MaxBytesReader(w, r.Body, s.config.Server.MaxUploadSize)
	file, hdr, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing file field")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("read upload: %v", err))
		return
	}

	up := ingest.RawUpload{
		Filename: hdr.Filename,
		Format:   ingest.FormatFromFilename(hdr.Filename),
		Data:     data,
	}
	opt := ingest.Options{
		SampleRows:       s.config.Ingest.SampleRows,
		CategoricalRatio: s.config.Ingest.CategoricalRatio,
	}
	if req := strings.TrimSpace(r.FormValue("required_columns")); req != "" {
		opt.Template = &ingest.Template{Name: "upload", Required: splitCSV(req)}
	}

	res, err := ingest.Run(r.Context(), up, opt)
	if err != nil {
		s.countUpload(string(up.Format), "error")
		s.writePipelineError(w, err)
		return
	}

	s.metrics.ObserveHistogram(telemetry.MetricStageDuration, time.Since(start).Seconds(),
		telemetry.Labels{"stage": "ingest"})

	if !res.Promoted() {
		s.countUpload(string(up.Format), "rejected")
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":  "validation failed",
			"issues": res.Issues,
		})
		return
	}

	if err := s.cache.Put(r.Context(), id.SessionID, res.Dataset); err != nil {
		s.writePipelineError(w, err)
		return
	}

	s.countUpload(string(up.Format), "ok")
	s.metrics.IncCounter(telemetry.MetricRowsIngested, float64(res.Dataset.RowCount()),
		telemetry.Labels{"format": string(up.Format)})
	s.logger.WithSession(id.SessionID).Info("dataset promoted",
		zap.String("filename", hdr.Filename),
		zap.Int("rows", res.Dataset.RowCount()),
		zap.Int("columns", len(res.Columns)),
	)

	writeJSON(w, http.StatusOK, res.Summarize())
}

func (s *Server) countUpload(format, status string) {
	s.metrics.IncCounter(telemetry.MetricUploads, 1, telemetry.Labels{
		"format": format,
		"status": status,
	})
}

type sqlSourceRequest struct {
	Kind    string `json:"kind"`
	DSN     string `json:"dsn"`
	Table   string `json:"table,omitempty"`
	Query   string `json:"query,omitempty"`
	MaxRows int    `json:"max_rows,omitempty"`
}

// handleSQLSource loads rows from an external database and runs them
// through the same inference/validation/normalization path as a file
// upload.
func (s *Server) handleSQLSource(w http.ResponseWriter, r *http.Request) {
	id := identityFrom(r.Context())

	var req sqlSourceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed sql source body")
		return
	}
	if req.Table == "" && req.Query == "" {
		writeError(w, http.StatusBadRequest, "one of table or query is required")
		return
	}

	cfg := sqldb.Config{Kind: req.Kind, DSN: req.DSN, MaxRows: req.MaxRows}

	var (
		header []string
		rows   [][]string
		err    error
	)
	if req.Table != "" {
		header, rows, err = sqldb.LoadTable(r.Context(), cfg, req.Table)
	} else {
		header, rows, err = sqldb.Query(r.Context(), cfg, req.Query)
	}
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	opt := ingest.Options{
		SampleRows:       s.config.Ingest.SampleRows,
		CategoricalRatio: s.config.Ingest.CategoricalRatio,
	}
	res, err := ingest.RunRows(header, rows, "", opt, "sql")
	if err != nil {
		s.writePipelineError(w, err)
		return
	}
	if !res.Promoted() {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":  "validation failed",
			"issues": res.Issues,
		})
		return
	}

	if err := s.cache.Put(r.Context(), id.SessionID, res.Dataset); err != nil {
		s.writePipelineError(w, err)
		return
	}

	s.countUpload("sql", "ok")
	writeJSON(w, http.StatusOK, res.Summarize())
}

// handleDataset returns the session's current dataset as row objects.
func (s *Server) handleDataset(w http.ResponseWriter, r *http.Request) {
	id := identityFrom(r.Context())

	ds, err := s.cache.Get(r.Context(), id.SessionID)
	if err != nil {
		s.writePipelineError(w, err)
		return
	}

	body, err := export.JSON(export.DatasetSource{DS: ds})
	if err != nil {
		s.writePipelineError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

type metricsRequest struct {
	Start       string `json:"start"`
	End         string `json:"end"`
	Granularity string `json:"granularity"`
	GroupBy     string `json:"group_by,omitempty"`
	TopK        int    `json:"top_k,omitempty"`
}

func parseDay(s string) (time.Time, error) {
	if t, err := time.Parse(schema.DateLayout, s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	id := identityFrom(r.Context())

	var req metricsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed metrics body")
		return
	}

	start, err := parseDay(req.Start)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("bad start date %q", req.Start))
		return
	}
	end, err := parseDay(req.End)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("bad end date %q", req.End))
		return
	}

	kreq := kpi.Request{
		Start:       start,
		End:         end,
		Granularity: kpi.Granularity(req.Granularity),
		GroupBy:     req.GroupBy,
		TopK:        req.TopK,
	}
	if kreq.Granularity == "" {
		kreq.Granularity = kpi.GranularityDay
	}
	if kreq.TopK <= 0 {
		kreq.TopK = s.config.Metrics.TopK
	}

	res, err := s.cache.Metrics(r.Context(), id.SessionID, kreq)
	if err != nil {
		var emptyWin *schema.EmptyWindowError
		var notFound *schema.NotFoundError
		if errors.As(err, &emptyWin) || errors.As(err, &notFound) {
			s.countQuery("empty")
		} else {
			s.countQuery("error")
		}
		s.writePipelineError(w, err)
		return
	}

	s.countQuery("ok")
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) countQuery(status string) {
	s.metrics.IncCounter(telemetry.MetricQueries, 1, telemetry.Labels{"status": status})
}

func (s *Server) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	id := identityFrom(r.Context())

	ds, err := s.cache.Get(r.Context(), id.SessionID)
	if err != nil {
		s.writePipelineError(w, err)
		return
	}

	body, err := export.CSV(export.DatasetSource{DS: ds})
	if err != nil {
		s.writePipelineError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="dataset.csv"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func (s *Server) handleExportJSON(w http.ResponseWriter, r *http.Request) {
	s.handleDataset(w, r)
}

// handleSessionReset destroys the session's dataset and cached metrics
// without closing the login session.
func (s *Server) handleSessionReset(w http.ResponseWriter, r *http.Request) {
	id := identityFrom(r.Context())
	if err := s.cache.Destroy(r.Context(), id.SessionID); err != nil {
		s.writePipelineError(w, err)
		return
	}
	s.logger.WithSession(id.SessionID).Info("session state reset")
	w.WriteHeader(http.StatusNoContent)
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
