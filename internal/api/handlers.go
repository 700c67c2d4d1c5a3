package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/wesm/chanvault/internal/query"
	"github.com/wesm/chanvault/internal/schema"
	"github.com/wesm/chanvault/internal/search"
)

// ErrorResponse represents an API error.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// FieldsResponse lists the searchable fields.
type FieldsResponse struct {
	Fields  []search.Field `json:"fields"`
	Aliases []search.Alias `json:"aliases"`
}

// SchemaResponse describes the current table mapping.
type SchemaResponse struct {
	DateColumn       string   `json:"date_column"`
	InsertDateColumn string   `json:"insert_date_column"`
	Columns          []string `json:"columns"`
	MissingFields    []string `json:"missing_fields"`
	EarliestDate     string   `json:"earliest_date,omitempty"`
	BuiltAt          string   `json:"built_at"`
}

// SchedulerStatusResponse represents scheduler status.
type SchedulerStatusResponse struct {
	Running bool        `json:"running"`
	Jobs    []JobStatus `json:"jobs"`
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes an error response.
func writeError(w http.ResponseWriter, status int, err string, message string) {
	writeJSON(w, status, ErrorResponse{Error: err, Message: message})
}

// errorCode maps a search error kind to its API error code.
func errorCode(err error) string {
	switch {
	case errors.Is(err, search.ErrMissingParameter):
		return "missing_parameter"
	case errors.Is(err, search.ErrInvalidField):
		return "invalid_field"
	case errors.Is(err, search.ErrInvalidValue):
		return "invalid_value"
	case errors.Is(err, search.ErrInvalidBound):
		return "invalid_bound"
	default:
		return "internal_error"
	}
}

// writeQueryError maps an error from a store-backed operation to a
// response. Store failures never expose their message.
func (s *Server) writeQueryError(w http.ResponseWriter, op string, err error, attrs ...any) {
	switch {
	case search.IsInputError(err):
		writeError(w, http.StatusBadRequest, errorCode(err), err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		s.logger.Warn(op+" abandoned", append(attrs, "error", err)...)
		writeError(w, http.StatusServiceUnavailable, "timeout", op+" did not complete")
	default:
		s.logger.Error(op+" failed", append(attrs, "error", err)...)
		writeError(w, http.StatusInternalServerError, "internal_error", op+" failed")
	}
}

// intParam parses an integer request parameter.
func intParam(name, raw string) (int64, error) {
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer, got %q", search.ErrInvalidValue, name, raw)
	}
	return n, nil
}

// searchParams reads the query string into search parameters. A "q" term
// of the form field:value is accepted when field is not given.
func (s *Server) searchParams(r *http.Request) (query.Params, error) {
	q := r.URL.Query()
	p := query.Params{
		Field:  q.Get("field"),
		Mode:   q.Get("mode"),
		Before: q.Get("before"),
		Limit:  s.cfg.Search.DefaultLimit,
	}
	if q.Has("value") {
		v := q.Get("value")
		p.Value = &v
	}
	if p.Field == "" && q.Get("q") != "" {
		req, err := search.ParseTerm(q.Get("q"))
		if err != nil {
			return p, err
		}
		p.Field, p.Value = req.Field, req.Value
		if p.Mode == "" {
			p.Mode = req.Mode
		}
	}

	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return p, fmt.Errorf("%w: limit must be an integer, got %q", search.ErrInvalidValue, raw)
		}
		p.Limit = n
	}
	if p.Limit < 1 || p.Limit > s.cfg.Search.MaxLimit {
		return p, fmt.Errorf("%w: limit must be between 1 and %d", search.ErrInvalidValue, s.cfg.Search.MaxLimit)
	}
	return p, nil
}

// handleSearch runs one page of a field search.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if s.searcher == nil {
		writeError(w, http.StatusServiceUnavailable, "store_unavailable", "Database not available")
		return
	}

	p, err := s.searchParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, errorCode(err), err.Error())
		return
	}

	page, err := s.searcher.Search(r.Context(), p)
	if err != nil {
		s.writeQueryError(w, "search", err, "field", p.Field)
		return
	}

	if page.Results == nil {
		page.Results = []query.Record{}
	}
	writeJSON(w, http.StatusOK, page)
}

// handleGetMessage returns one message by channel and message id.
func (s *Server) handleGetMessage(w http.ResponseWriter, r *http.Request) {
	if s.messages == nil {
		writeError(w, http.StatusServiceUnavailable, "store_unavailable", "Database not available")
		return
	}
	chatID, err := intParam("chat_id", chi.URLParam(r, "chat_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, errorCode(err), err.Error())
		return
	}
	id, err := intParam("id", chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, errorCode(err), err.Error())
		return
	}

	rec, err := s.messages.Message(r.Context(), chatID, id)
	if err != nil {
		s.writeQueryError(w, "lookup", err, "chat_id", chatID, "id", id)
		return
	}
	if rec == nil {
		writeError(w, http.StatusNotFound, "not_found", "Message not found")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// handleCount returns the number of stored messages.
func (s *Server) handleCount(w http.ResponseWriter, r *http.Request) {
	if s.messages == nil {
		writeError(w, http.StatusServiceUnavailable, "store_unavailable", "Database not available")
		return
	}
	n, err := s.messages.Count(r.Context())
	if err != nil {
		s.writeQueryError(w, "count", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"count": n})
}

// handleLast returns messages ingested in a span of minutes. since is a
// Unix timestamp in seconds and defaults to the span before now; for is
// the span in minutes.
func (s *Server) handleLast(w http.ResponseWriter, r *http.Request) {
	if s.messages == nil {
		writeError(w, http.StatusServiceUnavailable, "store_unavailable", "Database not available")
		return
	}

	q := r.URL.Query()
	var p query.IngestParams
	if raw := q.Get("since"); raw != "" {
		sec, err := intParam("since", raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, errorCode(err), err.Error())
			return
		}
		p.Since = time.Unix(sec, 0).UTC()
	}
	if raw := q.Get("for"); raw != "" {
		minutes, err := intParam("for", raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, errorCode(err), err.Error())
			return
		}
		if minutes < 1 {
			writeError(w, http.StatusBadRequest, "invalid_value", "for must be at least 1 minute")
			return
		}
		p.Span = time.Duration(minutes) * time.Minute
	}
	if raw := q.Get("limit"); raw != "" {
		n, err := intParam("limit", raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, errorCode(err), err.Error())
			return
		}
		if n < 1 {
			writeError(w, http.StatusBadRequest, "invalid_value", "limit must be at least 1")
			return
		}
		p.Limit = int(min(n, query.MaxIngestLimit+1))
	}

	page, err := s.messages.Ingested(r.Context(), p)
	if err != nil {
		s.writeQueryError(w, "last", err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// handleFields returns the searchable fields and their aliases.
func (s *Server) handleFields(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, FieldsResponse{
		Fields:  search.Fields(),
		Aliases: search.Aliases(),
	})
}

func (s *Server) schemaResponse(ctx context.Context, m *schema.Mapping) SchemaResponse {
	cols := m.Columns()
	sort.Strings(cols)

	resp := SchemaResponse{
		DateColumn:       m.DateColumn,
		InsertDateColumn: m.InsertDateColumn,
		Columns:          cols,
		MissingFields:    []string{},
		BuiltAt:          m.BuiltAt.UTC().Format(time.RFC3339),
	}
	for _, p := range m.Projection {
		if p.Missing {
			resp.MissingFields = append(resp.MissingFields, p.Field)
		}
	}
	if earliest := s.registry.Earliest(ctx); earliest != nil {
		resp.EarliestDate = earliest.UTC().Format(query.CursorLayout)
	}
	return resp
}

// handleSchema returns the current mapping, refreshing it if stale.
func (s *Server) handleSchema(w http.ResponseWriter, r *http.Request) {
	if s.registry == nil {
		writeError(w, http.StatusServiceUnavailable, "store_unavailable", "Database not available")
		return
	}
	m := s.registry.Ensure(r.Context(), false)
	writeJSON(w, http.StatusOK, s.schemaResponse(r.Context(), m))
}

// handleSchemaRefresh forces a schema rebuild.
func (s *Server) handleSchemaRefresh(w http.ResponseWriter, r *http.Request) {
	if s.registry == nil {
		writeError(w, http.StatusServiceUnavailable, "store_unavailable", "Database not available")
		return
	}
	m := s.registry.Ensure(r.Context(), true)
	s.logger.Info("schema refreshed via API", "date_column", m.DateColumn)
	writeJSON(w, http.StatusOK, s.schemaResponse(r.Context(), m))
}

// handleSchedulerStatus returns the scheduler status.
func (s *Server) handleSchedulerStatus(w http.ResponseWriter, r *http.Request) {
	if s.scheduler == nil {
		writeJSON(w, http.StatusOK, SchedulerStatusResponse{Jobs: []JobStatus{}})
		return
	}
	jobs := s.scheduler.Status()
	if jobs == nil {
		jobs = []JobStatus{}
	}
	writeJSON(w, http.StatusOK, SchedulerStatusResponse{
		Running: s.scheduler.IsRunning(),
		Jobs:    jobs,
	})
}

// handleTriggerJob runs a scheduled job immediately.
func (s *Server) handleTriggerJob(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if s.scheduler == nil {
		writeError(w, http.StatusNotFound, "not_found", "No jobs are scheduled")
		return
	}

	if err := s.scheduler.Trigger(name); err != nil {
		s.logger.Warn("failed to trigger job", "job", name, "error", err)
		writeError(w, http.StatusConflict, "job_error", err.Error())
		return
	}

	s.logger.Info("job triggered via API", "job", name)
	writeJSON(w, http.StatusAccepted, map[string]string{
		"status":  "accepted",
		"message": "Started " + name,
	})
}
