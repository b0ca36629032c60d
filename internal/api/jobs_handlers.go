package api

import (
	"bytes"
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"sportsync/internal/export"
	"sportsync/internal/jobs"
	"sportsync/internal/models"

	"github.com/go-chi/chi/v5"
	jsoniter "github.com/json-iterator/go"
)

const (
	exportPageSize = 500
	exportMaxRows  = 10000
	xlsxMIME       = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

type createJobRequest struct {
	Type     string              `json:"type"`
	Params   jsoniter.RawMessage `json:"params"`
	Priority string              `json:"priority"`
	Delay    string              `json:"delay"`
}

type jobResponse struct {
	Job     *models.SyncJob `json:"job"`
	Created bool            `json:"created"`
}

func triggeredBy(r *http.Request) string {
	if name := clientName(r); name != "" {
		return models.TriggeredByAPI + ":" + name
	}
	return models.TriggeredByAPI
}

func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var body createJobRequest
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	jobType := models.JobType(strings.TrimSpace(body.Type))
	if !jobType.Valid() {
		writeError(w, http.StatusBadRequest, "unknown job type "+strconv.Quote(body.Type))
		return
	}
	params, err := models.DecodeParams(jobType, body.Params)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var delay time.Duration
	if body.Delay != "" {
		delay, err = time.ParseDuration(body.Delay)
		if err != nil || delay < 0 {
			writeError(w, http.StatusBadRequest, "invalid delay")
			return
		}
	}

	job, created, err := s.deps.Jobs.CreateJob(r.Context(), jobs.CreateRequest{
		Params:      params,
		Priority:    models.ParsePriority(body.Priority),
		TriggeredBy: triggeredBy(r),
		Delay:       delay,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, jobResponse{Job: job, Created: created})
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	f, err := parseJobFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	list, total, err := s.deps.Jobs.ListJobs(r.Context(), f)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if list == nil {
		list = []models.SyncJob{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"jobs":   list,
		"total":  total,
		"limit":  f.Limit,
		"offset": f.Offset,
	})
}

func parseJobFilter(r *http.Request) (models.JobFilter, error) {
	q := r.URL.Query()
	f := models.JobFilter{
		Type:   models.JobType(q.Get("type")),
		Status: models.JobStatus(q.Get("status")),
	}
	if f.Type != "" && !f.Type.Valid() {
		return f, errBadParam("type")
	}
	var err error
	if f.From, err = parseTimeParam(q.Get("from"), false); err != nil {
		return f, errBadParam("from")
	}
	if f.To, err = parseTimeParam(q.Get("to"), true); err != nil {
		return f, errBadParam("to")
	}
	if f.Limit, err = parseIntParam(q.Get("limit")); err != nil {
		return f, errBadParam("limit")
	}
	if f.Offset, err = parseIntParam(q.Get("offset")); err != nil {
		return f, errBadParam("offset")
	}
	return f, nil
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.deps.Jobs.GetJob(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, s.deps.Jobs.CancelJob, "cancelled")
}

func (s *Server) handleForceRelease(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, s.deps.Jobs.ForceReleaseJob, "released")
}

// transition runs a conditional status change and answers 409 when the job
// was not in a state that allows it.
func (s *Server) transition(w http.ResponseWriter, r *http.Request,
	apply func(ctx context.Context, id string) (bool, error), field string) {
	id := chi.URLParam(r, "id")
	ok, err := apply(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if !ok {
		job, err := s.deps.Jobs.GetJob(r.Context(), id)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":  "job is " + string(job.Status),
			field:    false,
			"job_id": id,
		})
		return
	}
	s.logger.Info().Str("job_id", id).Str("action", field).Str("by", triggeredBy(r)).Msg("job state changed over api")
	writeJSON(w, http.StatusOK, map[string]any{field: true, "job_id": id})
}

func (s *Server) handleRetryJob(w http.ResponseWriter, r *http.Request) {
	job, created, err := s.deps.Jobs.RetryJob(r.Context(), chi.URLParam(r, "id"), models.TriggeredByRetry)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, jobResponse{Job: job, Created: created})
}

func (s *Server) handleForceReleaseByType(w http.ResponseWriter, r *http.Request) {
	jobType := models.JobType(r.URL.Query().Get("type"))
	if !jobType.Valid() {
		writeError(w, http.StatusBadRequest, "type is required")
		return
	}
	n, err := s.deps.Jobs.ForceReleaseByType(r.Context(), jobType)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"type": jobType, "released": n})
}

func (s *Server) handleCleanup(w http.ResponseWriter, r *http.Request) {
	days, err := parseIntParam(r.URL.Query().Get("days"))
	if err != nil || days < 0 {
		writeError(w, http.StatusBadRequest, "invalid days")
		return
	}
	n, err := s.deps.Jobs.CleanupOldJobs(r.Context(), days)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": n})
}

func (s *Server) handleJobStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.deps.Jobs.Stats(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleQueue(w http.ResponseWriter, r *http.Request) {
	counts, err := s.deps.Jobs.QueueCounts(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, counts)
}

// handleExportJobs writes the jobs created within [from, to] as a workbook.
// The range defaults to the last seven days.
func (s *Server) handleExportJobs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	now := s.now().UTC()
	to := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	from := to.AddDate(0, 0, -7)
	if v := q.Get("from"); v != "" {
		parsed, err := time.Parse(models.DateLayout, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid from date; expected YYYY-MM-DD")
			return
		}
		from = parsed
	}
	if v := q.Get("to"); v != "" {
		parsed, err := time.Parse(models.DateLayout, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid to date; expected YYYY-MM-DD")
			return
		}
		to = parsed
	}
	if to.Before(from) {
		writeError(w, http.StatusBadRequest, "to is before from")
		return
	}

	end := to.Add(24*time.Hour - time.Nanosecond)
	filter := models.JobFilter{
		Type:   models.JobType(q.Get("type")),
		Status: models.JobStatus(q.Get("status")),
		From:   &from,
		To:     &end,
		Limit:  exportPageSize,
	}
	var all []models.SyncJob
	for len(all) < exportMaxRows {
		page, total, err := s.deps.Jobs.ListJobs(r.Context(), filter)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		all = append(all, page...)
		if len(page) < exportPageSize || len(all) >= total {
			break
		}
		filter.Offset += len(page)
	}

	stats, err := s.deps.Jobs.Stats(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}

	var buf bytes.Buffer
	if err := export.WriteJobs(&buf, all, stats, from, to); err != nil {
		s.logger.Error().Err(err).Msg("failed to build jobs export")
		writeError(w, http.StatusInternalServerError, "export failed")
		return
	}
	w.Header().Set("Content-Type", xlsxMIME)
	w.Header().Set("Content-Disposition", `attachment; filename="`+export.FileName(from, to)+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}
