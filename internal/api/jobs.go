package api

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"

	"github.com/davidfague/bmtool/internal/export"
	"github.com/davidfague/bmtool/internal/service"
)

// JobRequest is the body of POST /api/jobs.
type JobRequest struct {
	Kind   string            `json:"kind" validate:"required,oneof=total percent convergence divergence gap"`
	Title  string            `json:"title" validate:"max=200"`
	Params map[string]string `json:"params"`
}

func jobSubmitHandler(jm *JobManager, validate *validator.Validate) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if jm == nil {
			writeError(w, r, newAPIError(http.StatusServiceUnavailable, "JOBS_DISABLED", "render jobs are not enabled", nil))
			return
		}
		var req JobRequest
		if err := render.DecodeJSON(r.Body, &req); err != nil {
			writeError(w, r, newAPIError(http.StatusBadRequest, "INVALID_REQUEST", "invalid JSON body", err.Error()))
			return
		}
		if err := validate.Struct(req); err != nil {
			writeError(w, r, newAPIError(http.StatusBadRequest, "VALIDATION_FAILED", "invalid job request", err.Error()))
			return
		}

		params := make(map[string]string, len(req.Params)+1)
		for k, v := range req.Params {
			params[k] = v
		}
		// Reject bad parameters now rather than as a failed job.
		if _, err := service.MatrixRequestFromParams(req.Kind, params); err != nil {
			writeError(w, r, err)
			return
		}
		if req.Title != "" {
			params["title"] = req.Title
		}

		job, err := jm.Submit(req.Kind, params)
		if err != nil {
			writeError(w, r, fmt.Errorf("failed to submit job: %w", err))
			return
		}
		render.Status(r, http.StatusAccepted)
		render.JSON(w, r, map[string]interface{}{
			"job_id": job.ID,
			"status": job.Status,
		})
	}
}

func jobStatusHandler(jm *JobManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if jm == nil {
			writeError(w, r, notFound("job"))
			return
		}
		job := jm.Get(chi.URLParam(r, "job_id"))
		if job == nil {
			writeError(w, r, notFound("job"))
			return
		}
		render.JSON(w, r, job)
	}
}

func jobCancelHandler(jm *JobManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if jm == nil {
			writeError(w, r, notFound("job"))
			return
		}
		id := chi.URLParam(r, "job_id")
		job := jm.Get(id)
		if job == nil {
			writeError(w, r, notFound("job"))
			return
		}
		// Finished jobs are removed; live ones are cancelled.
		if job.Status.Finished() {
			if err := jm.Delete(id); err != nil {
				writeError(w, r, fmt.Errorf("failed to delete job: %w", err))
				return
			}
			render.JSON(w, r, map[string]interface{}{"job_id": id, "deleted": true})
			return
		}
		if !jm.Cancel(id) {
			writeError(w, r, newAPIError(http.StatusConflict, "NOT_CANCELLABLE", "job can no longer be cancelled", nil))
			return
		}
		render.JSON(w, r, map[string]interface{}{"job_id": id, "cancelled": true})
	}
}

func reportsHandler(jm *JobManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if jm == nil {
			render.JSON(w, r, map[string]interface{}{"reports": []interface{}{}})
			return
		}
		limit := 50
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				writeError(w, r, invalidParameter("limit", "limit must be a positive integer"))
				return
			}
			limit = n
		}
		reports, err := jm.Store().ListReports(limit)
		if err != nil {
			writeError(w, r, fmt.Errorf("failed to list reports: %w", err))
			return
		}
		render.JSON(w, r, map[string]interface{}{"reports": reports})
	}
}

func reportHandler(jm *JobManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if jm == nil {
			writeError(w, r, notFound("report"))
			return
		}
		rep, err := jm.Store().GetReport(chi.URLParam(r, "report_id"))
		if err != nil {
			writeError(w, r, fmt.Errorf("failed to get report: %w", err))
			return
		}
		if rep == nil {
			writeError(w, r, notFound("report"))
			return
		}
		render.JSON(w, r, map[string]interface{}{
			"report":  rep,
			"mapping": rep.Grid.Mapping(),
		})
	}
}

func reportExportHandler(jm *JobManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if jm == nil {
			writeError(w, r, notFound("report"))
			return
		}
		rep, err := jm.Store().GetReport(chi.URLParam(r, "report_id"))
		if err != nil {
			writeError(w, r, fmt.Errorf("failed to get report: %w", err))
			return
		}
		if rep == nil {
			writeError(w, r, notFound("report"))
			return
		}
		var buf bytes.Buffer
		if err := export.WriteXLSX(&buf, rep.Grid, rep.Title); err != nil {
			writeError(w, r, fmt.Errorf("failed to export report: %w", err))
			return
		}
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", rep.ID+".xlsx"))
		w.Write(buf.Bytes())
	}
}
